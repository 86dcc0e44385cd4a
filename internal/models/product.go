package models

// Product mirrors the server's product catalogue.
type Product struct {
	Record
	DefaultCode   string  `gorm:"index" json:"defaultCode"` // Internal reference / SKU
	Barcode       string  `gorm:"index" json:"barcode"`
	Name          string  `gorm:"not null" json:"name"`
	ListPrice     float64 `json:"listPrice"`
	StandardPrice float64 `json:"standardPrice"` // Cost
	Weight        float64 `json:"weight"`
	SupplierID    ID      `gorm:"index" json:"supplierId"`
}

func (Product) TableName() string { return KindProducts.Table() }
func (*Product) Kind() Kind       { return KindProducts }

func (p *Product) References() []Reference {
	if p.SupplierID.IsZero() {
		return nil
	}
	return []Reference{{Column: "supplier_id", Target: KindSuppliers, ID: p.SupplierID}}
}

func (p *Product) Label() string {
	if p.DefaultCode != "" {
		return "[" + p.DefaultCode + "] " + p.Name
	}
	return p.Name
}
