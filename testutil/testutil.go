// Package testutil holds database fixtures shared by package tests.
package testutil

import (
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/opsdash/commesse-api/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var dbCounter atomic.Int64

// NewTestDB opens a private in-memory sqlite database with every model migrated.
// Each call gets its own database, shared by all connections of the returned pool.
func NewTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:commesse_test_%d?mode=memory&cache=shared", dbCounter.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}

	if err := db.AutoMigrate(models.All()...); err != nil {
		t.Fatalf("Failed to migrate test database: %v", err)
	}

	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

// PhaseSeed describes a phase created by SeedOrder; position is its index + 1
type PhaseSeed struct {
	Type   models.PhaseType
	Status string
}

// SeedOrder creates an order, its customer and its phases
func SeedOrder(t *testing.T, db *gorm.DB, number, title, customer string, priority models.Priority, phases ...PhaseSeed) models.Order {
	t.Helper()

	order := models.Order{
		Number:   number,
		Title:    title,
		Type:     models.OrderTypeSupply,
		Priority: priority,
	}
	if customer != "" {
		c := models.Customer{Name: customer}
		if err := db.Create(&c).Error; err != nil {
			t.Fatalf("Failed to create customer: %v", err)
		}
		order.CustomerID = &c.ID
	}
	if err := db.Omit("Phases").Create(&order).Error; err != nil {
		t.Fatalf("Failed to create order: %v", err)
	}

	for i, seed := range phases {
		phase := models.Phase{
			OrderID:    order.ID,
			PhaseType:  seed.Type,
			PhaseOrder: i + 1,
			Status:     seed.Status,
		}
		if err := db.Create(&phase).Error; err != nil {
			t.Fatalf("Failed to create phase: %v", err)
		}
	}

	if err := db.Preload("Customer").
		Preload("Phases", func(db *gorm.DB) *gorm.DB { return db.Order("phase_order ASC") }).
		First(&order, order.ID).Error; err != nil {
		t.Fatalf("Failed to reload order: %v", err)
	}
	return order
}
