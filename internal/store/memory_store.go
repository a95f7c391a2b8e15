package store

import (
	"context"
	"sort"
	"sync"

	"github.com/example/paypal-checkout/internal/checkout"
)

// MemoryOrderStore keeps orders in memory. It backs tests and local
// development without Postgres or DynamoDB.
type MemoryOrderStore struct {
	mu     sync.RWMutex
	orders map[string]checkout.Order
}

func NewMemoryOrderStore() *MemoryOrderStore {
	return &MemoryOrderStore{orders: make(map[string]checkout.Order)}
}

// Save upserts an order record.
func (s *MemoryOrderStore) Save(ctx context.Context, order *checkout.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders[order.ID] = *order
	return nil
}

// Get returns a copy of the order, so callers cannot mutate stored state
// without going through Save.
func (s *MemoryOrderStore) Get(ctx context.Context, orderID string) (*checkout.Order, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	order, ok := s.orders[orderID]
	if !ok {
		return nil, false, nil
	}
	return &order, true, nil
}

// List returns all orders, newest first.
func (s *MemoryOrderStore) List(ctx context.Context) ([]*checkout.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	orders := make([]*checkout.Order, 0, len(s.orders))
	for id := range s.orders {
		order := s.orders[id]
		orders = append(orders, &order)
	}
	sort.Slice(orders, func(i, j int) bool {
		return orders[i].CreatedAt.After(orders[j].CreatedAt)
	})
	return orders, nil
}
