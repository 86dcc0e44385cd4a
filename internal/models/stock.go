package models

// StockLevel is the on-hand quantity of a product at a location, as
// computed by the server.
type StockLevel struct {
	Record
	ProductID ID      `gorm:"index" json:"productId"`
	Location  string  `gorm:"index" json:"location"` // "WH/Stock/Shelf 1"
	Quantity  float64 `json:"quantity"`
}

func (StockLevel) TableName() string { return KindStock.Table() }
func (*StockLevel) Kind() Kind       { return KindStock }

func (s *StockLevel) References() []Reference {
	if s.ProductID.IsZero() {
		return nil
	}
	return []Reference{{Column: "product_id", Target: KindProducts, ID: s.ProductID}}
}

func (s *StockLevel) Label() string { return s.Location }
