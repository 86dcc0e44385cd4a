package models

import "time"

// Shipment status constants
const (
	ShipmentStatusDraft     = "draft"
	ShipmentStatusPending   = "pending"
	ShipmentStatusShipped   = "shipped"
	ShipmentStatusDelivered = "delivered"
	ShipmentStatusCancelled = "cancelled"
)

// Shipment is an outbound delivery of a product to a customer.
type Shipment struct {
	Record
	Reference   string     `gorm:"index" json:"reference"`
	Status      string     `gorm:"index;default:draft" json:"status"`
	Quantity    float64    `json:"quantity"`
	ScheduledAt *time.Time `json:"scheduledAt,omitempty"`
	DeliveredAt *time.Time `json:"deliveredAt,omitempty"`

	CustomerID ID `gorm:"index" json:"customerId"`
	SupplierID ID `gorm:"index" json:"supplierId"`
	VehicleID  ID `gorm:"index" json:"vehicleId"`
	ProductID  ID `gorm:"index" json:"productId"`
}

func (Shipment) TableName() string { return KindShipments.Table() }
func (*Shipment) Kind() Kind       { return KindShipments }

func (s *Shipment) References() []Reference {
	var refs []Reference
	add := func(col string, target Kind, id ID) {
		if !id.IsZero() {
			refs = append(refs, Reference{Column: col, Target: target, ID: id})
		}
	}
	add("customer_id", KindCustomers, s.CustomerID)
	add("supplier_id", KindSuppliers, s.SupplierID)
	add("vehicle_id", KindVehicles, s.VehicleID)
	add("product_id", KindProducts, s.ProductID)
	return refs
}

func (s *Shipment) Label() string { return s.Reference + " (" + s.Status + ")" }
