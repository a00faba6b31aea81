package pricecache

import (
	"context"
	"fmt"
	"sync"

	"github.com/goccy/go-json"
	"github.com/krobus00/order-trigger-service/internal/entity"
	"github.com/redis/go-redis/v9"
)

// Store keeps the last observed price per instrument so that reference
// prices can be resolved without calling the upstream quote source again.
type Store interface {
	Load(ctx context.Context, instrument string) (entity.PriceObservation, bool, error)
	Save(ctx context.Context, observation entity.PriceObservation) error
}

const keyPrefix = "price:last:"

type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(cacheDSN string) (*RedisStore, error) {
	if cacheDSN == "" {
		return nil, fmt.Errorf("redis cache_dsn is required")
	}

	options, err := redis.ParseURL(cacheDSN)
	if err != nil {
		return nil, fmt.Errorf("parse redis cache_dsn: %w", err)
	}

	return &RedisStore{client: redis.NewClient(options)}, nil
}

func (s *RedisStore) Load(ctx context.Context, instrument string) (entity.PriceObservation, bool, error) {
	raw, err := s.client.Get(ctx, keyPrefix+instrument).Result()
	if err != nil {
		if err == redis.Nil {
			return entity.PriceObservation{}, false, nil
		}
		return entity.PriceObservation{}, false, err
	}

	var observation entity.PriceObservation
	if err := json.Unmarshal([]byte(raw), &observation); err != nil {
		return entity.PriceObservation{}, false, err
	}

	return observation, true, nil
}

func (s *RedisStore) Save(ctx context.Context, observation entity.PriceObservation) error {
	payload, err := json.Marshal(observation)
	if err != nil {
		return err
	}

	return s.client.Set(ctx, keyPrefix+observation.Instrument, payload, 0).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

// MemoryStore is the in-process fallback used in tests and single-process
// local runs.
type MemoryStore struct {
	mu           sync.RWMutex
	observations map[string]entity.PriceObservation
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{observations: make(map[string]entity.PriceObservation)}
}

func (s *MemoryStore) Load(_ context.Context, instrument string) (entity.PriceObservation, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	observation, ok := s.observations[instrument]
	return observation, ok, nil
}

func (s *MemoryStore) Save(_ context.Context, observation entity.PriceObservation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.observations[observation.Instrument] = observation
	return nil
}
