package services

import (
	"context"
	"errors"

	"go.uber.org/zap"
)

// MediaRemover deletes stored media objects
type MediaRemover interface {
	RemoveObjects(ctx context.Context, keys []string) error
}

// OrderEvictor drops a deleted order from a cache
type OrderEvictor interface {
	Evict(orderID uint)
}

// CascadeOption configures a CascadeDeleter
type CascadeOption func(*CascadeDeleter)

// WithMediaRemover removes the order's media objects after a successful delete
func WithMediaRemover(m MediaRemover) CascadeOption {
	return func(d *CascadeDeleter) {
		d.media = m
	}
}

// WithEvictor drops the order from a cache after a successful delete
func WithEvictor(e OrderEvictor) CascadeOption {
	return func(d *CascadeDeleter) {
		d.evictor = e
	}
}

// WithTransaction runs every step in one repository transaction
func WithTransaction(enabled bool) CascadeOption {
	return func(d *CascadeDeleter) {
		d.transactional = enabled
	}
}

// WithDeletionMetrics records deletion outcomes on m
func WithDeletionMetrics(m *Metrics) CascadeOption {
	return func(d *CascadeDeleter) {
		d.metrics = m
	}
}

// CascadeDeleter removes an order and its dependents in dependency order:
// phases, communications, media rows, then the order row.
type CascadeDeleter struct {
	repo          OrderRepository
	media         MediaRemover
	evictor       OrderEvictor
	logger        *zap.Logger
	metrics       *Metrics
	transactional bool
}

var cascadeDeleterInstance *CascadeDeleter

// GetCascadeDeleter returns the deleter registered with SetCascadeDeleter
func GetCascadeDeleter() *CascadeDeleter {
	return cascadeDeleterInstance
}

// SetCascadeDeleter registers the deleter used by the HTTP handlers
func SetCascadeDeleter(d *CascadeDeleter) {
	cascadeDeleterInstance = d
}

// NewCascadeDeleter creates a deleter working on repo
func NewCascadeDeleter(repo OrderRepository, logger *zap.Logger, opts ...CascadeOption) *CascadeDeleter {
	d := &CascadeDeleter{repo: repo, logger: logger}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

type deleteStep struct {
	name string
	run  func(ctx context.Context, repo OrderRepository, orderID uint) error
}

var cascadeSteps = []deleteStep{
	{"phases", func(ctx context.Context, r OrderRepository, id uint) error { return r.DeletePhases(ctx, id) }},
	{"communications", func(ctx context.Context, r OrderRepository, id uint) error { return r.DeleteCommunications(ctx, id) }},
	{"media", func(ctx context.Context, r OrderRepository, id uint) error { return r.DeleteAttachments(ctx, id) }},
	{"order", func(ctx context.Context, r OrderRepository, id uint) error { return r.DeleteOrder(ctx, id) }},
}

// DeleteOrder removes the order and everything that depends on it.
// It returns ErrNotFound, a *PersistenceError when nothing was removed, or a
// *PartialDeletionError when a later step failed after earlier ones succeeded.
// A partially deleted order is never recreated.
func (d *CascadeDeleter) DeleteOrder(ctx context.Context, orderID uint) error {
	order, err := d.repo.FindOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return err
		}
		d.metrics.deletion("failed")
		return &PersistenceError{Op: "cascade_delete", Err: err}
	}

	keys, err := d.repo.ListAttachmentKeys(ctx, orderID)
	if err != nil {
		d.metrics.deletion("failed")
		return &PersistenceError{Op: "cascade_delete", Err: err}
	}

	if d.transactional {
		err = d.repo.WithinTransaction(ctx, func(tx OrderRepository) error {
			_, err := runSteps(ctx, tx, orderID)
			return err
		})
		if err != nil {
			d.metrics.deletion("failed")
			d.logger.Warn("cascading delete rolled back",
				zap.Uint("order_id", orderID),
				zap.String("order_number", order.Number),
				zap.Error(err))
			return &PersistenceError{Op: "cascade_delete", Err: err}
		}
	} else {
		removed, err := runSteps(ctx, d.repo, orderID)
		if err != nil {
			if len(removed) == 0 {
				d.metrics.deletion("failed")
				return &PersistenceError{Op: "cascade_delete", Err: err}
			}
			d.metrics.deletion("partial")
			d.logger.Error("order partially deleted",
				zap.Uint("order_id", orderID),
				zap.String("order_number", order.Number),
				zap.Strings("removed", removed),
				zap.Error(err))
			return &PartialDeletionError{OrderID: orderID, Removed: removed, Err: err}
		}
	}

	if d.evictor != nil {
		d.evictor.Evict(orderID)
	}
	d.metrics.deletion("deleted")
	d.logger.Info("order deleted",
		zap.Uint("order_id", orderID),
		zap.String("order_number", order.Number),
		zap.Int("media_objects", len(keys)))

	if d.media != nil && len(keys) > 0 {
		if err := d.media.RemoveObjects(context.WithoutCancel(ctx), keys); err != nil {
			d.logger.Warn("failed to remove media objects of deleted order",
				zap.Uint("order_id", orderID),
				zap.Strings("keys", keys),
				zap.Error(err))
		}
	}
	return nil
}

// runSteps stops at the first failure and reports the steps already done
func runSteps(ctx context.Context, repo OrderRepository, orderID uint) ([]string, error) {
	var removed []string
	for _, step := range cascadeSteps {
		if err := step.run(ctx, repo, orderID); err != nil {
			return removed, err
		}
		removed = append(removed, step.name)
	}
	return removed, nil
}
