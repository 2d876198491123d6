package models

import (
	"time"
)

// Attachment is a media object stored in S3 for an order's gallery
type Attachment struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	OrderID   uint      `gorm:"not null;index" json:"order_id"`
	S3Key     string    `gorm:"column:s3_key;not null" json:"s3_key"`
	Filename  string    `gorm:"not null" json:"filename"`
	URL       *string   `gorm:"-" json:"url,omitempty"` // computed field, presigned URL
	CreatedAt time.Time `json:"created_at"`
}

// TableName specifies the table name for the Attachment model
func (Attachment) TableName() string {
	return "commessa_media"
}
