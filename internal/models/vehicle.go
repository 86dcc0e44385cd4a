package models

// Vehicle is a delivery vehicle. The fleet is managed on the server; the
// client only mirrors it.
type Vehicle struct {
	Record
	Plate      string  `gorm:"index;not null" json:"plate"`
	Model      string  `json:"model"`
	CapacityKg float64 `json:"capacityKg"`
	Active     bool    `json:"active"`
}

func (Vehicle) TableName() string        { return KindVehicles.Table() }
func (*Vehicle) Kind() Kind              { return KindVehicles }
func (*Vehicle) References() []Reference { return nil }

func (v *Vehicle) Label() string { return v.Plate }
