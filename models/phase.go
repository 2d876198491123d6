package models

import (
	"time"
)

// Phase is one stage of an order's workflow
type Phase struct {
	ID            uint       `gorm:"primaryKey" json:"id"`
	OrderID       uint       `gorm:"not null;index;uniqueIndex:idx_phase_position" json:"order_id"`
	PhaseType     PhaseType  `gorm:"not null" json:"phase_type"`
	PhaseOrder    int        `gorm:"not null;uniqueIndex:idx_phase_position" json:"phase_order"`
	Status        string     `gorm:"not null" json:"status"`
	ScheduledDate *time.Time `json:"scheduled_date"`
	StartedAt     *time.Time `json:"started_at"`
	CompletedAt   *time.Time `json:"completed_at"`
	Notes         string     `gorm:"type:text" json:"notes"`
	Locked        bool       `gorm:"-" json:"locked"` // computed at read time, never persisted
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// TableName specifies the table name for the Phase model
func (Phase) TableName() string {
	return "commessa_fasi"
}

// StatusLabel returns the display label for the phase's current status
func (p Phase) StatusLabel() string {
	return StatusLabel(p.PhaseType, p.Status)
}

// Clone returns a copy of p with its own timestamp pointers
func (p Phase) Clone() Phase {
	c := p
	c.ScheduledDate = clonePtr(p.ScheduledDate)
	c.StartedAt = clonePtr(p.StartedAt)
	c.CompletedAt = clonePtr(p.CompletedAt)
	return c
}
