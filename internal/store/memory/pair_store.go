// Package memory provides an in-process active pair store used in demo mode
// and when no Redis instance is configured. Contents do not survive restarts.
package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/nh-chitose/r2-re/internal/domain"
)

// PairStore implements domain.ActivePairStore with a map guarded by a mutex.
// Insertion order is tracked explicitly so GetAll matches the durable store's
// ordering contract.
type PairStore struct {
	mu        sync.Mutex
	pairs     map[string]domain.OrderPair
	order     []string
	observers []func()
}

// NewPairStore creates an empty PairStore.
func NewPairStore() *PairStore {
	return &PairStore{pairs: make(map[string]domain.OrderPair)}
}

// Get returns the pair stored under key, or domain.ErrNotFound.
func (s *PairStore) Get(_ context.Context, key string) (domain.OrderPair, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pair, ok := s.pairs[key]
	if !ok {
		return domain.OrderPair{}, domain.ErrNotFound
	}
	return pair, nil
}

// GetAll returns every stored pair in insertion order.
func (s *PairStore) GetAll(_ context.Context) ([]domain.KeyedPair, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.KeyedPair, 0, len(s.order))
	for _, key := range s.order {
		out = append(out, domain.KeyedPair{Key: key, Value: s.pairs[key]})
	}
	return out, nil
}

// Put stores the pair under a fresh key and returns that key.
func (s *PairStore) Put(_ context.Context, pair domain.OrderPair) (string, error) {
	if err := pair.Validate(); err != nil {
		return "", err
	}
	key := uuid.New().String()
	s.mu.Lock()
	s.pairs[key] = pair
	s.order = append(s.order, key)
	s.mu.Unlock()
	s.notify()
	return key, nil
}

// Del removes the pair stored under key.
func (s *PairStore) Del(_ context.Context, key string) error {
	s.mu.Lock()
	if _, ok := s.pairs[key]; !ok {
		s.mu.Unlock()
		return domain.ErrNotFound
	}
	delete(s.pairs, key)
	for i, k := range s.order {
		if k == key {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	s.mu.Unlock()
	s.notify()
	return nil
}

// DelAll removes every stored pair.
func (s *PairStore) DelAll(_ context.Context) error {
	s.mu.Lock()
	s.pairs = make(map[string]domain.OrderPair)
	s.order = nil
	s.mu.Unlock()
	s.notify()
	return nil
}

// OnChange registers a callback invoked after every mutation.
func (s *PairStore) OnChange(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, fn)
}

func (s *PairStore) notify() {
	s.mu.Lock()
	observers := make([]func(), len(s.observers))
	copy(observers, s.observers)
	s.mu.Unlock()
	for _, fn := range observers {
		fn()
	}
}

// Compile-time interface check.
var _ domain.ActivePairStore = (*PairStore)(nil)
