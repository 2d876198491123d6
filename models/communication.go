package models

import (
	"time"
)

// Communication is a note or message logged against an order
type Communication struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	OrderID   uint      `gorm:"not null;index" json:"order_id"`
	Channel   string    `gorm:"not null;default:'note'" json:"channel"` // note, call, whatsapp, email
	Author    string    `gorm:"not null" json:"author"`
	Text      string    `gorm:"type:text;not null" json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName specifies the table name for the Communication model
func (Communication) TableName() string {
	return "commessa_comunicazioni"
}
