package config

import (
	"fmt"
	"sync"
)

// Store hands out immutable configuration snapshots to the trading services
// and accepts validated runtime updates. Services read a snapshot once per
// cycle; there is no TTL-based cache invalidation inside the trading logic.
type Store struct {
	mu        sync.RWMutex
	cfg       *Config
	observers []func(*Config)
}

// NewStore creates a Store around an already-validated Config.
func NewStore(cfg *Config) *Store {
	return &Store{cfg: cfg}
}

// Config returns the current configuration snapshot. Callers must treat it as
// read-only.
func (s *Store) Config() *Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// Set validates and installs a new configuration, then notifies observers.
func (s *Store) Set(cfg *Config) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config: set: %w", err)
	}
	s.mu.Lock()
	s.cfg = cfg
	observers := append([]func(*Config){}, s.observers...)
	s.mu.Unlock()

	for _, fn := range observers {
		fn(cfg)
	}
	return nil
}

// OnUpdate registers a callback invoked after every successful Set.
func (s *Store) OnUpdate(fn func(*Config)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, fn)
}
