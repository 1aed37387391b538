package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store caches catalog reads in Redis.
type Store struct {
	redis *redis.Client
	ttl   time.Duration
}

// NewStore creates a catalog cache. A zero ttl keeps entries until evicted.
func NewStore(redisClient *redis.Client, ttl time.Duration) *Store {
	return &Store{redis: redisClient, ttl: ttl}
}

func (s *Store) rosterKey(id ClinicID) string {
	return fmt.Sprintf("catalog:roster:%d", id)
}

const clinicsKey = "catalog:clinics"

// GetRoster returns a cached roster. The bool is false on a cache miss.
func (s *Store) GetRoster(ctx context.Context, id ClinicID) (*Roster, bool, error) {
	var roster Roster
	ok, err := s.get(ctx, s.rosterKey(id), &roster)
	if err != nil || !ok {
		return nil, false, err
	}
	return &roster, true, nil
}

// SetRoster caches a roster.
func (s *Store) SetRoster(ctx context.Context, roster *Roster) error {
	return s.set(ctx, s.rosterKey(roster.Clinic.ID), roster)
}

// GetClinics returns the cached clinic list.
func (s *Store) GetClinics(ctx context.Context) ([]Clinic, bool, error) {
	var clinics []Clinic
	ok, err := s.get(ctx, clinicsKey, &clinics)
	if err != nil || !ok {
		return nil, false, err
	}
	return clinics, true, nil
}

// SetClinics caches the clinic list.
func (s *Store) SetClinics(ctx context.Context, clinics []Clinic) error {
	return s.set(ctx, clinicsKey, clinics)
}

func (s *Store) get(ctx context.Context, key string, out any) (bool, error) {
	data, err := s.redis.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("catalog: get %s: %w", key, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return false, fmt.Errorf("catalog: unmarshal %s: %w", key, err)
	}
	return true, nil
}

func (s *Store) set(ctx context.Context, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("catalog: marshal %s: %w", key, err)
	}
	if err := s.redis.Set(ctx, key, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("catalog: set %s: %w", key, err)
	}
	return nil
}
