package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/opsdash/commesse-api/models"
	"gorm.io/gorm"
)

// OrderRepository is the durable backing store for orders and their dependents
type OrderRepository interface {
	// ListOrders returns every order with its phases sorted by phase_order
	// and the customer, sales order and BOM joins loaded.
	ListOrders(ctx context.Context) ([]models.Order, error)
	FindOrder(ctx context.Context, id uint) (*models.Order, error)

	UpdatePhase(ctx context.Context, m PhaseMutation) error
	UpdateOrder(ctx context.Context, id uint, fields map[string]interface{}) error

	DeletePhases(ctx context.Context, orderID uint) error
	DeleteCommunications(ctx context.Context, orderID uint) error
	DeleteAttachments(ctx context.Context, orderID uint) error
	DeleteOrder(ctx context.Context, orderID uint) error
	ListAttachmentKeys(ctx context.Context, orderID uint) ([]string, error)

	// WithinTransaction runs fn against a repository bound to one transaction
	WithinTransaction(ctx context.Context, fn func(repo OrderRepository) error) error
}

// GormOrderRepository implements OrderRepository on top of gorm
type GormOrderRepository struct {
	db *gorm.DB
}

// NewGormOrderRepository creates a repository backed by db
func NewGormOrderRepository(db *gorm.DB) *GormOrderRepository {
	return &GormOrderRepository{db: db}
}

func (r *GormOrderRepository) withJoins(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).
		Preload("Customer").
		Preload("SalesOrder").
		Preload("BOM").
		Preload("Phases", func(db *gorm.DB) *gorm.DB {
			return db.Order("phase_order ASC")
		})
}

// ListOrders loads all orders, archived included
func (r *GormOrderRepository) ListOrders(ctx context.Context) ([]models.Order, error) {
	var orders []models.Order
	if err := r.withJoins(ctx).Order("id ASC").Find(&orders).Error; err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	return orders, nil
}

// FindOrder loads a single order with its phases
func (r *GormOrderRepository) FindOrder(ctx context.Context, id uint) (*models.Order, error) {
	var order models.Order
	if err := r.withJoins(ctx).First(&order, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load order %d: %w", id, err)
	}
	return &order, nil
}

// UpdatePhase writes status, schedule and derived timestamps in one statement
func (r *GormOrderRepository) UpdatePhase(ctx context.Context, m PhaseMutation) error {
	fields := m.Fields()
	if len(fields) == 0 {
		return nil
	}
	res := r.db.WithContext(ctx).Model(&models.Phase{}).Where("id = ?", m.PhaseID).Updates(fields)
	if res.Error != nil {
		return fmt.Errorf("failed to update phase %d: %w", m.PhaseID, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateOrder writes the given columns of an order row
func (r *GormOrderRepository) UpdateOrder(ctx context.Context, id uint, fields map[string]interface{}) error {
	if len(fields) == 0 {
		return nil
	}
	res := r.db.WithContext(ctx).Model(&models.Order{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return fmt.Errorf("failed to update order %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeletePhases removes every phase row of an order
func (r *GormOrderRepository) DeletePhases(ctx context.Context, orderID uint) error {
	if err := r.db.WithContext(ctx).Where("order_id = ?", orderID).Delete(&models.Phase{}).Error; err != nil {
		return fmt.Errorf("failed to delete phases of order %d: %w", orderID, err)
	}
	return nil
}

// DeleteCommunications removes every communication row of an order
func (r *GormOrderRepository) DeleteCommunications(ctx context.Context, orderID uint) error {
	if err := r.db.WithContext(ctx).Where("order_id = ?", orderID).Delete(&models.Communication{}).Error; err != nil {
		return fmt.Errorf("failed to delete communications of order %d: %w", orderID, err)
	}
	return nil
}

// DeleteAttachments removes the media rows of an order. S3 objects are not touched.
func (r *GormOrderRepository) DeleteAttachments(ctx context.Context, orderID uint) error {
	if err := r.db.WithContext(ctx).Where("order_id = ?", orderID).Delete(&models.Attachment{}).Error; err != nil {
		return fmt.Errorf("failed to delete media of order %d: %w", orderID, err)
	}
	return nil
}

// DeleteOrder removes the order row itself
func (r *GormOrderRepository) DeleteOrder(ctx context.Context, orderID uint) error {
	res := r.db.WithContext(ctx).Delete(&models.Order{}, orderID)
	if res.Error != nil {
		return fmt.Errorf("failed to delete order %d: %w", orderID, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListAttachmentKeys returns the S3 keys of an order's media
func (r *GormOrderRepository) ListAttachmentKeys(ctx context.Context, orderID uint) ([]string, error) {
	var keys []string
	if err := r.db.WithContext(ctx).Model(&models.Attachment{}).
		Where("order_id = ?", orderID).
		Order("id ASC").
		Pluck("s3_key", &keys).Error; err != nil {
		return nil, fmt.Errorf("failed to list media of order %d: %w", orderID, err)
	}
	return keys, nil
}

// WithinTransaction runs fn inside a gorm transaction; any error rolls it back
func (r *GormOrderRepository) WithinTransaction(ctx context.Context, fn func(repo OrderRepository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&GormOrderRepository{db: tx})
	})
}
