package models

// Partner carries the fields suppliers and customers share.
type Partner struct {
	Name   string `gorm:"index;not null" json:"name"`
	Email  string `json:"email"`
	Phone  string `json:"phone"`
	Street string `json:"street"`
	City   string `json:"city"`
	Zip    string `json:"zip"`
	Vat    string `json:"vat"` // Tax ID
}

// Supplier is a partner goods are received from.
type Supplier struct {
	Record
	Partner
}

func (Supplier) TableName() string        { return KindSuppliers.Table() }
func (*Supplier) Kind() Kind              { return KindSuppliers }
func (*Supplier) References() []Reference { return nil }

// Customer is a partner goods are shipped to.
type Customer struct {
	Record
	Partner
}

func (Customer) TableName() string        { return KindCustomers.Table() }
func (*Customer) Kind() Kind              { return KindCustomers }
func (*Customer) References() []Reference { return nil }

// Label is the display name.
func (p *Partner) Label() string { return p.Name }
