package models

import "fmt"

// Kind names a synchronized entity kind. It doubles as the REST collection
// path on the server.
type Kind string

const (
	KindSuppliers Kind = "suppliers"
	KindCustomers Kind = "customers"
	KindVehicles  Kind = "vehicles"
	KindProducts  Kind = "products"
	KindStock     Kind = "stock"
	KindShipments Kind = "shipments"
)

// ForeignKey is a column in another table that references a kind.
type ForeignKey struct {
	Table  string
	Column string
}

type kindInfo struct {
	table    string
	readOnly bool
	// dependents lists the columns rewritten when a record of this kind
	// receives its server identity.
	dependents []ForeignKey
}

// syncOrder: independent kinds first so that references resolve.
var syncOrder = []Kind{
	KindSuppliers,
	KindCustomers,
	KindVehicles,
	KindProducts,
	KindStock,
	KindShipments,
}

var kinds = map[Kind]kindInfo{
	KindSuppliers: {
		table: "suppliers",
		dependents: []ForeignKey{
			{Table: "products", Column: "supplier_id"},
			{Table: "shipments", Column: "supplier_id"},
		},
	},
	KindCustomers: {
		table:      "customers",
		dependents: []ForeignKey{{Table: "shipments", Column: "customer_id"}},
	},
	KindVehicles: {
		table:    "vehicles",
		readOnly: true,
	},
	KindProducts: {
		table: "products",
		dependents: []ForeignKey{
			{Table: "stock_levels", Column: "product_id"},
			{Table: "shipments", Column: "product_id"},
		},
	},
	KindStock: {
		table:    "stock_levels",
		readOnly: true,
	},
	KindShipments: {
		table: "shipments",
	},
}

// Kinds returns every kind in synchronization order.
func Kinds() []Kind {
	out := make([]Kind, len(syncOrder))
	copy(out, syncOrder)
	return out
}

// ParseKind validates a kind name.
func ParseKind(s string) (Kind, error) {
	k := Kind(s)
	if _, ok := kinds[k]; !ok {
		return "", fmt.Errorf("unknown entity kind %q", s)
	}
	return k, nil
}

// ReadOnly reports whether the client only mirrors server-owned records of
// this kind and never originates them.
func (k Kind) ReadOnly() bool { return kinds[k].readOnly }

// Table returns the local table name.
func (k Kind) Table() string { return kinds[k].table }

// Dependents returns the foreign key columns pointing at this kind.
func (k Kind) Dependents() []ForeignKey {
	deps := kinds[k].dependents
	out := make([]ForeignKey, len(deps))
	copy(out, deps)
	return out
}

func (k Kind) String() string { return string(k) }
