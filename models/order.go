package models

import (
	"time"
)

// OrderType classifies the kind of fulfillment an order represents
type OrderType string

const (
	OrderTypeSupply       OrderType = "supply"
	OrderTypeIntervention OrderType = "intervention"
	OrderTypeSpareParts   OrderType = "spareparts"
)

// IsValid reports whether t is a known order type
func (t OrderType) IsValid() bool {
	switch t {
	case OrderTypeSupply, OrderTypeIntervention, OrderTypeSpareParts:
		return true
	}
	return false
}

// Priority orders the dashboard listing
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"

	DefaultPriority = PriorityMedium
)

// Weight maps a priority to its sort weight (urgent=4 ... low=1, unset=0)
func (p Priority) Weight() int {
	switch p {
	case PriorityUrgent:
		return 4
	case PriorityHigh:
		return 3
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 1
	}
	return 0
}

// IsValid reports whether p is a known priority
func (p Priority) IsValid() bool {
	return p.Weight() > 0
}

// Order represents a commessa: a unit of fulfillment work tracked through phases
type Order struct {
	ID           uint        `gorm:"primaryKey" json:"id"`
	Number       string      `gorm:"uniqueIndex;not null" json:"number"`
	Title        string      `gorm:"not null" json:"title"`
	Type         OrderType   `gorm:"not null;default:'supply'" json:"type"`
	Priority     Priority    `gorm:"not null;default:'medium'" json:"priority"`
	Deadline     *time.Time  `json:"deadline"`
	CustomerID   *uint       `gorm:"index" json:"customer_id"`
	Customer     *Customer   `gorm:"foreignKey:CustomerID" json:"customer,omitempty"`
	SalesOrderID *uint       `gorm:"index" json:"sales_order_id"`
	SalesOrder   *SalesOrder `gorm:"foreignKey:SalesOrderID" json:"sales_order,omitempty"`
	LeadID       *uint       `json:"lead_id"`
	BOMID        *uint       `gorm:"column:bom_id" json:"bom_id"`
	BOM          *BOM        `gorm:"foreignKey:BOMID" json:"bom,omitempty"`

	Article          string `json:"article"`
	Notes            string `gorm:"type:text" json:"notes"`
	Description      string `gorm:"type:text" json:"description"`
	DeliveryMode     string `json:"delivery_mode"`
	InterventionType string `json:"intervention_type"`
	Diameter         string `json:"diameter"`
	SmokeInlet       string `json:"smoke_inlet"`

	ShippingAddress  string `json:"shipping_address"`
	ShippingCity     string `json:"shipping_city"`
	ShippingZip      string `json:"shipping_zip"`
	ShippingProvince string `json:"shipping_province"`

	PaymentOnDelivery bool     `gorm:"not null;default:false" json:"payment_on_delivery"`
	PaymentAmount     *float64 `json:"payment_amount"`
	Warranty          bool     `gorm:"not null;default:false" json:"warranty"`
	Archived          bool     `gorm:"not null;default:false;index" json:"archived"`

	Phases []Phase `gorm:"foreignKey:OrderID" json:"phases"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName specifies the table name for the Order model
func (Order) TableName() string {
	return "commesse"
}

// CustomerName returns the joined customer display name, if any
func (o Order) CustomerName() string {
	if o.Customer == nil {
		return ""
	}
	return o.Customer.Name
}

// IsCompleted reports whether the order has phases and all of them are completed
func (o Order) IsCompleted() bool {
	if len(o.Phases) == 0 {
		return false
	}
	for _, p := range o.Phases {
		if !IsCompleted(p.Status) {
			return false
		}
	}
	return true
}

// CurrentPhase returns the first phase not yet completed, or nil when the order is done
func (o Order) CurrentPhase() *Phase {
	for i := range o.Phases {
		if !IsCompleted(o.Phases[i].Status) {
			return &o.Phases[i]
		}
	}
	return nil
}

// Clone returns a deep copy sharing no pointers with o
func (o Order) Clone() Order {
	c := o
	c.Deadline = clonePtr(o.Deadline)
	c.CustomerID = clonePtr(o.CustomerID)
	c.Customer = clonePtr(o.Customer)
	c.SalesOrderID = clonePtr(o.SalesOrderID)
	c.SalesOrder = clonePtr(o.SalesOrder)
	c.LeadID = clonePtr(o.LeadID)
	c.BOMID = clonePtr(o.BOMID)
	c.BOM = clonePtr(o.BOM)
	c.PaymentAmount = clonePtr(o.PaymentAmount)
	if o.Phases != nil {
		c.Phases = make([]Phase, len(o.Phases))
		for i, p := range o.Phases {
			c.Phases[i] = p.Clone()
		}
	}
	return c
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
