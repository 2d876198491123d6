package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/opsdash/commesse-api/models"
	"go.uber.org/zap"
)

// Mutation tracks the background half of an optimistic mutation
type Mutation struct {
	orderID uint
	done    chan struct{}
	err     error
}

func newMutation(orderID uint) *Mutation {
	return &Mutation{orderID: orderID, done: make(chan struct{})}
}

// OrderID is the order the mutation applies to
func (m *Mutation) OrderID() uint {
	return m.orderID
}

func (m *Mutation) finish(err error) {
	m.err = err
	close(m.done)
}

// Done is closed once the cache has been reconciled or restored
func (m *Mutation) Done() <-chan struct{} {
	return m.done
}

// Wait blocks until the durable write settles. It returns nil or a
// *PersistenceError; a ctx error only means the caller stopped waiting.
func (m *Mutation) Wait(ctx context.Context) error {
	select {
	case <-m.done:
		return m.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Option configures a PipelineStore
type Option func(*PipelineStore)

// WithClock overrides the time source used for derived timestamps
func WithClock(now func() time.Time) Option {
	return func(s *PipelineStore) {
		s.now = now
	}
}

// WithMetrics records mutation outcomes on m
func WithMetrics(m *Metrics) Option {
	return func(s *PipelineStore) {
		s.metrics = m
	}
}

// PipelineStore owns the optimistic order cache. Every mutation validates
// against the cache, commits the new state immediately, then writes to the
// repository in the background. A successful write reconciles the order from
// the repository and dispatches a notification; a failed write restores the
// mutated order to its pre-mutation state.
type PipelineStore struct {
	repo     OrderRepository
	notifier Notifier
	logger   *zap.Logger
	metrics  *Metrics
	now      func() time.Time

	cache  orderCache
	writes sync.WaitGroup
}

var pipelineStoreInstance *PipelineStore

// GetPipelineStore returns the store registered with SetPipelineStore
func GetPipelineStore() *PipelineStore {
	return pipelineStoreInstance
}

// SetPipelineStore registers the store used by the HTTP handlers
func SetPipelineStore(s *PipelineStore) {
	pipelineStoreInstance = s
}

// NewPipelineStore creates a store backed by repo. notifier may be nil.
func NewPipelineStore(repo OrderRepository, notifier Notifier, logger *zap.Logger, opts ...Option) *PipelineStore {
	s := &PipelineStore{
		repo:     repo,
		notifier: notifier,
		logger:   logger,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Refresh reloads the cache from the repository. Orders with a durable
// write still in flight keep their optimistic state until it settles.
func (s *PipelineStore) Refresh(ctx context.Context) error {
	orders, err := s.repo.ListOrders(ctx)
	if err != nil {
		return fmt.Errorf("failed to refresh orders: %w", err)
	}
	for i := range orders {
		SortPhases(orders[i].Phases)
		if err := ValidatePhaseSequence(orders[i].Phases); err != nil {
			s.logger.Warn("order has an inconsistent phase sequence",
				zap.Uint("order_id", orders[i].ID),
				zap.String("order_number", orders[i].Number),
				zap.Error(err))
		}
	}
	s.cache.merge(orders)
	return nil
}

func (s *PipelineStore) ensureLoaded(ctx context.Context) error {
	if _, loaded := s.cache.read(); loaded {
		return nil
	}
	return s.Refresh(ctx)
}

// Orders returns a deep copy of every cached order with locks computed
func (s *PipelineStore) Orders(ctx context.Context) ([]models.Order, error) {
	if err := s.ensureLoaded(ctx); err != nil {
		return nil, err
	}
	current, _ := s.cache.read()
	orders := cloneOrders(current)
	for i := range orders {
		orders[i].Phases = ComputeLocks(orders[i].Phases)
	}
	return orders, nil
}

// Order returns a deep copy of one order with locks computed
func (s *PipelineStore) Order(ctx context.Context, id uint) (models.Order, error) {
	var order models.Order
	err := s.withRetry(ctx, func() error {
		current, _ := s.cache.read()
		i, ok := locateOrder(current, id)
		if !ok {
			return ErrNotFound
		}
		order = current[i].Clone()
		return nil
	})
	if err != nil {
		return models.Order{}, err
	}
	order.Phases = ComputeLocks(order.Phases)
	return order, nil
}

// List returns the filtered and sorted listing projection
func (s *PipelineStore) List(ctx context.Context, q ListQuery) ([]models.Order, error) {
	orders, err := s.Orders(ctx)
	if err != nil {
		return nil, err
	}
	return FilterAndSort(orders, q), nil
}

// Evict drops an order from the cache after it was deleted
func (s *PipelineStore) Evict(orderID uint) {
	s.cache.removeOrder(orderID)
}

// withRetry runs fn against the cache. An unknown id triggers one refresh
// and a second attempt, for rows created after the last load.
func (s *PipelineStore) withRetry(ctx context.Context, fn func() error) error {
	if err := s.ensureLoaded(ctx); err != nil {
		return err
	}
	err := fn()
	if !errors.Is(err, ErrNotFound) {
		return err
	}
	if err := s.Refresh(ctx); err != nil {
		return err
	}
	return fn()
}

// ApplyPhaseStatusChange moves a phase to status
func (s *PipelineStore) ApplyPhaseStatusChange(ctx context.Context, phaseID uint, status string) (*Mutation, error) {
	const op = "phase_status"

	var (
		snap     cacheSnapshot
		mutation PhaseMutation
		before   models.Phase
		orderID  uint
	)
	err := s.withRetry(ctx, func() error {
		var err error
		snap, err = s.cache.update(func(current []models.Order) ([]models.Order, uint, error) {
			oi, pi, ok := locatePhase(current, phaseID)
			if !ok {
				return nil, 0, ErrNotFound
			}
			order := current[oi]
			before = order.Phases[pi]
			orderID = order.ID

			m, err := ValidateTransition(before, status, order.Phases, s.now())
			if err != nil {
				return nil, 0, err
			}
			mutation = m

			next := order.Clone()
			next.Phases[pi] = m.Apply(before)
			return withOrder(current, oi, next), order.ID, nil
		})
		return err
	})
	if err != nil {
		s.reject(op, err)
		return nil, err
	}

	return s.persist(ctx, op, orderID, snap,
		func(ctx context.Context) error {
			return s.repo.UpdatePhase(ctx, mutation)
		},
		func(order models.Order) Notification {
			fields := phaseFields(before)
			fields["old_status"] = before.Status
			fields["new_status"] = mutation.Status
			fields["status_label"] = models.StatusLabel(before.PhaseType, mutation.Status)
			fields["changed_by"] = ActorFrom(ctx)
			return NewNotification(KindPhaseStatusChanged, order, fields)
		},
	), nil
}

// ApplyPriorityChange sets the priority of an order
func (s *PipelineStore) ApplyPriorityChange(ctx context.Context, orderID uint, priority models.Priority) (*Mutation, error) {
	const op = "priority"

	if !priority.IsValid() {
		err := newValidationError(KindInvalidPriority, "priority %q is not valid", priority)
		s.reject(op, err)
		return nil, err
	}

	var (
		snap cacheSnapshot
		old  models.Priority
	)
	err := s.withRetry(ctx, func() error {
		var err error
		snap, err = s.cache.update(func(current []models.Order) ([]models.Order, uint, error) {
			i, ok := locateOrder(current, orderID)
			if !ok {
				return nil, 0, ErrNotFound
			}
			old = current[i].Priority
			if old == priority {
				return nil, 0, newValidationError(KindNoOp, "order %d already has priority %s", orderID, priority)
			}
			next := current[i].Clone()
			next.Priority = priority
			return withOrder(current, i, next), orderID, nil
		})
		return err
	})
	if err != nil {
		s.reject(op, err)
		return nil, err
	}

	return s.persist(ctx, op, orderID, snap,
		func(ctx context.Context) error {
			return s.repo.UpdateOrder(ctx, orderID, map[string]interface{}{"priority": priority})
		},
		func(order models.Order) Notification {
			return NewNotification(KindPriorityChanged, order, map[string]interface{}{
				"old_priority": string(old),
				"new_priority": string(priority),
				"changed_by":   ActorFrom(ctx),
			})
		},
	), nil
}

// SchedulePhase sets the scheduled date of a phase. An installation phase
// still waiting to be scheduled moves to the scheduled status in the same write.
func (s *PipelineStore) SchedulePhase(ctx context.Context, phaseID uint, date time.Time) (*Mutation, error) {
	const op = "phase_schedule"

	var (
		snap       cacheSnapshot
		mutation   PhaseMutation
		before     models.Phase
		orderID    uint
		reschedule bool
	)
	err := s.withRetry(ctx, func() error {
		var err error
		snap, err = s.cache.update(func(current []models.Order) ([]models.Order, uint, error) {
			oi, pi, ok := locatePhase(current, phaseID)
			if !ok {
				return nil, 0, ErrNotFound
			}
			order := current[oi]
			before = order.Phases[pi]
			orderID = order.ID

			m, again, err := ValidateSchedule(before, date, order.Phases)
			if err != nil {
				return nil, 0, err
			}
			mutation, reschedule = m, again

			next := order.Clone()
			next.Phases[pi] = m.Apply(before)
			return withOrder(current, oi, next), order.ID, nil
		})
		return err
	})
	if err != nil {
		s.reject(op, err)
		return nil, err
	}

	return s.persist(ctx, op, orderID, snap,
		func(ctx context.Context) error {
			return s.repo.UpdatePhase(ctx, mutation)
		},
		func(order models.Order) Notification {
			kind := KindPhaseScheduled
			fields := phaseFields(before)
			fields["scheduled_date"] = date.Format("2006-01-02")
			if reschedule {
				kind = KindPhaseRescheduled
				fields["previous_date"] = before.ScheduledDate.Format("2006-01-02")
			}
			if mutation.Status != "" {
				fields["new_status"] = mutation.Status
			}
			fields["changed_by"] = ActorFrom(ctx)
			return NewNotification(kind, order, fields)
		},
	), nil
}

// UpdateOrderFields applies an edit of the order's descriptive fields.
// No notification is sent for these edits.
func (s *PipelineStore) UpdateOrderFields(ctx context.Context, orderID uint, patch OrderPatch) (*Mutation, error) {
	const op = "order_fields"

	if err := patch.Validate(); err != nil {
		s.reject(op, err)
		return nil, err
	}
	fields := patch.Fields()
	if len(fields) == 0 {
		err := newValidationError(KindNoOp, "no fields to update on order %d", orderID)
		s.reject(op, err)
		return nil, err
	}

	var snap cacheSnapshot
	err := s.withRetry(ctx, func() error {
		var err error
		snap, err = s.cache.update(func(current []models.Order) ([]models.Order, uint, error) {
			i, ok := locateOrder(current, orderID)
			if !ok {
				return nil, 0, ErrNotFound
			}
			return withOrder(current, i, applyOrderFields(current[i].Clone(), fields)), orderID, nil
		})
		return err
	})
	if err != nil {
		s.reject(op, err)
		return nil, err
	}

	return s.persist(ctx, op, orderID, snap,
		func(ctx context.Context) error {
			return s.repo.UpdateOrder(ctx, orderID, fields)
		},
		nil,
	), nil
}

// SendUrgentMessage broadcasts free text about an order. Nothing is persisted.
func (s *PipelineStore) SendUrgentMessage(ctx context.Context, orderID uint, text string) error {
	order, err := s.Order(ctx, orderID)
	if err != nil {
		return err
	}
	n, err := NewUrgentMessage(order, text, ActorFrom(ctx))
	if err != nil {
		s.reject("urgent_message", err)
		return err
	}
	if s.notifier != nil {
		s.notifier.Dispatch(ctx, n)
	}
	s.metrics.mutation("urgent_message", "sent")
	return nil
}

// Close waits for in-flight durable writes to settle
func (s *PipelineStore) Close(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.writes.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("pipeline store close: %w", ctx.Err())
	}
}

func (s *PipelineStore) reject(op string, err error) {
	outcome := "rejected"
	if IsNoOp(err) {
		outcome = "noop"
	} else if errors.Is(err, ErrNotFound) {
		outcome = "not_found"
	}
	s.metrics.mutation(op, outcome)
}

// persist runs write in the background. The write is not cancelled with the
// caller's request.
func (s *PipelineStore) persist(
	ctx context.Context,
	op string,
	orderID uint,
	snap cacheSnapshot,
	write func(ctx context.Context) error,
	notify func(order models.Order) Notification,
) *Mutation {
	m := newMutation(orderID)
	bg := context.WithoutCancel(ctx)

	s.writes.Add(1)
	go func() {
		defer s.writes.Done()

		started := time.Now()
		err := write(bg)
		s.metrics.observeWrite(op, started)
		if err != nil {
			s.cache.restore(snap)
			s.cache.settle(orderID)
			s.metrics.rollback(op)
			s.metrics.mutation(op, "rolled_back")
			s.logger.Warn("durable write failed, cache restored",
				zap.String("op", op),
				zap.Uint("order_id", orderID),
				zap.Error(err))
			m.finish(&PersistenceError{Op: op, Err: err})
			return
		}

		order := s.reconcile(bg, orderID)
		s.cache.settle(orderID)
		s.metrics.mutation(op, "committed")
		if notify != nil && s.notifier != nil {
			s.notifier.Dispatch(bg, notify(order))
		}
		m.finish(nil)
	}()
	return m
}

// reconcile reloads an order from the repository into the cache. If the
// read fails the optimistic state stays in place.
func (s *PipelineStore) reconcile(ctx context.Context, orderID uint) models.Order {
	fresh, err := s.repo.FindOrder(ctx, orderID)
	if err == nil {
		SortPhases(fresh.Phases)
		s.cache.replaceOrder(*fresh)
		return fresh.Clone()
	}

	s.logger.Warn("failed to reconcile order after write",
		zap.Uint("order_id", orderID),
		zap.Error(err))
	current, _ := s.cache.read()
	if i, ok := locateOrder(current, orderID); ok {
		return current[i].Clone()
	}
	return models.Order{ID: orderID}
}

func phaseFields(phase models.Phase) map[string]interface{} {
	return map[string]interface{}{
		"phase_id":    phase.ID,
		"phase_type":  string(phase.PhaseType),
		"phase_order": phase.PhaseOrder,
	}
}
