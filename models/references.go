package models

// Customer, SalesOrder and BOM are owned by other parts of the dashboard.
// The pipeline only joins them for display.

// Customer is the partner an order is delivered to
type Customer struct {
	ID   uint   `gorm:"primaryKey" json:"id"`
	Name string `gorm:"not null" json:"name"`
}

// TableName specifies the table name for the Customer model
func (Customer) TableName() string {
	return "clienti"
}

// SalesOrder is the commercial order a commessa was opened from
type SalesOrder struct {
	ID     uint   `gorm:"primaryKey" json:"id"`
	Number string `gorm:"not null" json:"number"`
}

// TableName specifies the table name for the SalesOrder model
func (SalesOrder) TableName() string {
	return "ordini_vendita"
}

// BOM is the bill-of-materials header attached to an order
type BOM struct {
	ID      uint   `gorm:"primaryKey" json:"id"`
	Name    string `gorm:"not null" json:"name"`
	Version string `json:"version"`
}

// TableName specifies the table name for the BOM model
func (BOM) TableName() string {
	return "distinte_base"
}
