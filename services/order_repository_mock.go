package services

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/opsdash/commesse-api/models"
)

// MockOrderRepository is an in-memory OrderRepository for testing.
// Failures can be injected per operation and writes can be held on a gate.
type MockOrderRepository struct {
	mu             sync.Mutex
	orders         map[uint]models.Order
	communications map[uint]int
	attachments    map[uint][]string
	failures       map[string]error
	calls          []string
	gate           chan struct{}
}

// NewMockOrderRepository creates a mock repository seeded with orders
func NewMockOrderRepository(orders ...models.Order) *MockOrderRepository {
	m := &MockOrderRepository{
		orders:         make(map[uint]models.Order),
		communications: make(map[uint]int),
		attachments:    make(map[uint][]string),
		failures:       make(map[string]error),
	}
	for _, o := range orders {
		m.orders[o.ID] = o.Clone()
	}
	return m
}

// FailOn makes every later call to op return err; a nil err clears it
func (m *MockOrderRepository) FailOn(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.failures, op)
		return
	}
	m.failures[op] = err
}

// HoldWrites blocks every write until a value is sent on (or close is called for) the returned channel
func (m *MockOrderRepository) HoldWrites() chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gate = make(chan struct{})
	return m.gate
}

// SetCommunications records n communication rows for an order
func (m *MockOrderRepository) SetCommunications(orderID uint, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.communications[orderID] = n
}

// SetAttachmentKeys records media keys for an order
func (m *MockOrderRepository) SetAttachmentKeys(orderID uint, keys ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attachments[orderID] = keys
}

// Calls returns the operations invoked so far, in order
func (m *MockOrderRepository) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

// WriteCount returns how many write operations were attempted
func (m *MockOrderRepository) WriteCount() int {
	n := 0
	for _, c := range m.Calls() {
		if c != "ListOrders" && c != "FindOrder" && c != "ListAttachmentKeys" {
			n++
		}
	}
	return n
}

// Communications returns the number of communication rows left for an order
func (m *MockOrderRepository) Communications(orderID uint) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.communications[orderID]
}

// Stored returns the stored copy of an order
func (m *MockOrderRepository) Stored(id uint) (models.Order, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return models.Order{}, false
	}
	return o.Clone(), true
}

func (m *MockOrderRepository) record(op string, write bool) error {
	m.mu.Lock()
	m.calls = append(m.calls, op)
	gate := m.gate
	err := m.failures[op]
	m.mu.Unlock()

	if write && gate != nil {
		<-gate
	}
	return err
}

func (m *MockOrderRepository) ListOrders(ctx context.Context) ([]models.Order, error) {
	if err := m.record("ListOrders", false); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	orders := make([]models.Order, 0, len(m.orders))
	for _, o := range m.orders {
		orders = append(orders, o.Clone())
	}
	sort.Slice(orders, func(i, j int) bool { return orders[i].ID < orders[j].ID })
	return orders, nil
}

func (m *MockOrderRepository) FindOrder(ctx context.Context, id uint) (*models.Order, error) {
	if err := m.record("FindOrder", false); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	c := o.Clone()
	return &c, nil
}

func (m *MockOrderRepository) UpdatePhase(ctx context.Context, mut PhaseMutation) error {
	if err := m.record("UpdatePhase", true); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, o := range m.orders {
		for i, p := range o.Phases {
			if p.ID == mut.PhaseID {
				o = o.Clone()
				o.Phases[i] = mut.Apply(p)
				o.Phases[i].UpdatedAt = time.Now()
				m.orders[id] = o
				return nil
			}
		}
	}
	return ErrNotFound
}

func (m *MockOrderRepository) UpdateOrder(ctx context.Context, id uint, fields map[string]interface{}) error {
	if err := m.record("UpdateOrder", true); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return ErrNotFound
	}
	m.orders[id] = applyOrderFields(o.Clone(), fields)
	return nil
}

func (m *MockOrderRepository) DeletePhases(ctx context.Context, orderID uint) error {
	if err := m.record("DeletePhases", true); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if o, ok := m.orders[orderID]; ok {
		o = o.Clone()
		o.Phases = nil
		m.orders[orderID] = o
	}
	return nil
}

func (m *MockOrderRepository) DeleteCommunications(ctx context.Context, orderID uint) error {
	if err := m.record("DeleteCommunications", true); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.communications, orderID)
	return nil
}

func (m *MockOrderRepository) DeleteAttachments(ctx context.Context, orderID uint) error {
	if err := m.record("DeleteAttachments", true); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.attachments, orderID)
	return nil
}

func (m *MockOrderRepository) DeleteOrder(ctx context.Context, orderID uint) error {
	if err := m.record("DeleteOrder", true); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.orders[orderID]; !ok {
		return ErrNotFound
	}
	delete(m.orders, orderID)
	return nil
}

func (m *MockOrderRepository) ListAttachmentKeys(ctx context.Context, orderID uint) ([]string, error) {
	if err := m.record("ListAttachmentKeys", false); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.attachments[orderID]...), nil
}

// WithinTransaction restores the pre-call state when fn fails
func (m *MockOrderRepository) WithinTransaction(ctx context.Context, fn func(repo OrderRepository) error) error {
	m.mu.Lock()
	orders := make(map[uint]models.Order, len(m.orders))
	for id, o := range m.orders {
		orders[id] = o.Clone()
	}
	communications := make(map[uint]int, len(m.communications))
	for id, n := range m.communications {
		communications[id] = n
	}
	attachments := make(map[uint][]string, len(m.attachments))
	for id, keys := range m.attachments {
		attachments[id] = append([]string(nil), keys...)
	}
	m.mu.Unlock()

	if err := fn(m); err != nil {
		m.mu.Lock()
		m.orders = orders
		m.communications = communications
		m.attachments = attachments
		m.mu.Unlock()
		return err
	}
	return nil
}
