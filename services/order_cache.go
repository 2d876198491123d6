package services

import (
	"sync"

	"github.com/opsdash/commesse-api/models"
)

// orderCache holds the client-visible order list. The slice it points to is
// never modified after publication; every write swaps in a new slice, so a
// reader either sees the state before a mutation or the state after it.
//
// pending counts the durable writes in flight per order. evicted holds the
// ids of deleted orders, which never come back into the cache.
type orderCache struct {
	mu      sync.RWMutex
	orders  []models.Order
	loaded  bool
	pending map[uint]int
	evicted map[uint]struct{}
}

// cacheSnapshot is the state of one order before a mutation, used to roll back
type cacheSnapshot struct {
	orderID uint
	prior   models.Order
}

// merge publishes a full load from the repository. Orders with writes in
// flight keep their optimistic state and evicted orders stay out.
func (c *orderCache) merge(fresh []models.Order) {
	c.mu.Lock()
	defer c.mu.Unlock()
	next := make([]models.Order, 0, len(fresh))
	for _, o := range fresh {
		if _, gone := c.evicted[o.ID]; gone {
			continue
		}
		if c.pending[o.ID] > 0 {
			if i, ok := locateOrder(c.orders, o.ID); ok {
				o = c.orders[i]
			}
		}
		next = append(next, o)
	}
	c.orders = next
	c.loaded = true
}

// restore puts the order back to its snapshot state. Other orders keep their
// current state and an order removed since the snapshot stays removed.
func (c *orderCache) restore(s cacheSnapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, gone := c.evicted[s.orderID]; gone {
		return
	}
	if i, ok := locateOrder(c.orders, s.orderID); ok {
		c.orders = withOrder(c.orders, i, s.prior)
	}
}

// update builds the next state and commits it under the write lock. fn must
// not modify its argument and returns the id of the one order it changed,
// which stays pending until settle is called for it.
func (c *orderCache) update(fn func(current []models.Order) ([]models.Order, uint, error)) (cacheSnapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	next, orderID, err := fn(c.orders)
	if err != nil {
		return cacheSnapshot{}, err
	}
	snap := cacheSnapshot{orderID: orderID}
	if i, ok := locateOrder(c.orders, orderID); ok {
		snap.prior = c.orders[i]
	}
	c.orders = next
	if c.pending == nil {
		c.pending = make(map[uint]int)
	}
	c.pending[orderID]++
	return snap, nil
}

// settle marks one write on orderID as finished
func (c *orderCache) settle(orderID uint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending[orderID] <= 1 {
		delete(c.pending, orderID)
		return
	}
	c.pending[orderID]--
}

// read returns the current published slice. Callers must not modify it.
func (c *orderCache) read() ([]models.Order, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.orders, c.loaded
}

func (c *orderCache) replaceOrder(fresh models.Order) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, gone := c.evicted[fresh.ID]; gone {
		return
	}
	if i, ok := locateOrder(c.orders, fresh.ID); ok {
		c.orders = withOrder(c.orders, i, fresh)
		return
	}
	next := make([]models.Order, len(c.orders), len(c.orders)+1)
	copy(next, c.orders)
	c.orders = append(next, fresh)
}

func (c *orderCache) removeOrder(id uint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.evicted == nil {
		c.evicted = make(map[uint]struct{})
	}
	c.evicted[id] = struct{}{}
	next := make([]models.Order, 0, len(c.orders))
	for _, o := range c.orders {
		if o.ID != id {
			next = append(next, o)
		}
	}
	c.orders = next
}

func cloneOrders(orders []models.Order) []models.Order {
	out := make([]models.Order, len(orders))
	for i, o := range orders {
		out[i] = o.Clone()
	}
	return out
}

// locatePhase returns the index of the order owning phaseID and of the phase within it
func locatePhase(orders []models.Order, phaseID uint) (int, int, bool) {
	for oi, o := range orders {
		for pi, p := range o.Phases {
			if p.ID == phaseID {
				return oi, pi, true
			}
		}
	}
	return 0, 0, false
}

func locateOrder(orders []models.Order, orderID uint) (int, bool) {
	for i, o := range orders {
		if o.ID == orderID {
			return i, true
		}
	}
	return 0, false
}

// withOrder returns a shallow copy of orders with index i replaced by o
func withOrder(orders []models.Order, i int, o models.Order) []models.Order {
	next := make([]models.Order, len(orders))
	copy(next, orders)
	next[i] = o
	return next
}
