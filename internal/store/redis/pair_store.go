package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/nh-chitose/r2-re/internal/domain"
)

const (
	pairHashKey  = "r2:pairs"
	pairIndexKey = "r2:pairs:index"
)

// PairStore implements domain.ActivePairStore on a Redis hash keyed by opaque
// IDs, with a companion list preserving insertion order.
type PairStore struct {
	rdb    *redis.Client
	revive domain.RevivePairFunc

	mu        sync.Mutex
	observers []func()
}

// NewPairStore creates a PairStore backed by the given Client. revive is
// applied to every pair read back from Redis.
func NewPairStore(c *Client, revive domain.RevivePairFunc) *PairStore {
	return &PairStore{rdb: c.Underlying(), revive: revive}
}

// Get returns the pair stored under key, or domain.ErrNotFound.
func (s *PairStore) Get(ctx context.Context, key string) (domain.OrderPair, error) {
	data, err := s.rdb.HGet(ctx, pairHashKey, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.OrderPair{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.OrderPair{}, fmt.Errorf("redis: get pair %s: %w", key, err)
	}
	return s.decode(data)
}

// GetAll returns every stored pair in insertion order. Index entries whose
// hash record has been removed are skipped.
func (s *PairStore) GetAll(ctx context.Context) ([]domain.KeyedPair, error) {
	keys, err := s.rdb.LRange(ctx, pairIndexKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: list pairs: %w", err)
	}
	if len(keys) == 0 {
		return nil, nil
	}
	values, err := s.rdb.HMGet(ctx, pairHashKey, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: load pairs: %w", err)
	}

	out := make([]domain.KeyedPair, 0, len(keys))
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		pair, err := s.decode([]byte(raw))
		if err != nil {
			return nil, err
		}
		out = append(out, domain.KeyedPair{Key: keys[i], Value: pair})
	}
	return out, nil
}

// Put stores the pair under a fresh key and returns that key.
func (s *PairStore) Put(ctx context.Context, pair domain.OrderPair) (string, error) {
	if err := pair.Validate(); err != nil {
		return "", err
	}
	data, err := json.Marshal([2]domain.Order{*pair[0], *pair[1]})
	if err != nil {
		return "", fmt.Errorf("redis: encode pair: %w", err)
	}
	key := uuid.New().String()

	pipe := s.rdb.TxPipeline()
	pipe.HSet(ctx, pairHashKey, key, data)
	pipe.RPush(ctx, pairIndexKey, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return "", fmt.Errorf("redis: put pair: %w", err)
	}
	s.notify()
	return key, nil
}

// Del removes the pair stored under key.
func (s *PairStore) Del(ctx context.Context, key string) error {
	pipe := s.rdb.TxPipeline()
	del := pipe.HDel(ctx, pairHashKey, key)
	pipe.LRem(ctx, pairIndexKey, 0, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: del pair %s: %w", key, err)
	}
	if del.Val() == 0 {
		return domain.ErrNotFound
	}
	s.notify()
	return nil
}

// DelAll removes every stored pair.
func (s *PairStore) DelAll(ctx context.Context) error {
	if err := s.rdb.Del(ctx, pairHashKey, pairIndexKey).Err(); err != nil {
		return fmt.Errorf("redis: del all pairs: %w", err)
	}
	s.notify()
	return nil
}

// OnChange registers a callback invoked after every successful mutation.
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

func (s *PairStore) decode(data []byte) (domain.OrderPair, error) {
	var raw [2]domain.Order
	if err := json.Unmarshal(data, &raw); err != nil {
		return domain.OrderPair{}, fmt.Errorf("redis: decode pair: %w", err)
	}
	return s.revive(raw), nil
}

// Compile-time interface check.
var _ domain.ActivePairStore = (*PairStore)(nil)
