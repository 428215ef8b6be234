package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"SmartTrader/internal/domain/models"
	domrepo "SmartTrader/internal/domain/repository"
	"SmartTrader/pkg/cache"
)

var _ domrepo.StateStore = (*CacheStateStore)(nil)

// CacheStateStore keeps the latest account and decision per symbol in a
// cache backend (memory, Redis or layered).
type CacheStateStore struct {
	cache cache.Service
	ttl   time.Duration
}

func NewCacheStateStore(c cache.Service, ttl time.Duration) *CacheStateStore {
	return &CacheStateStore{cache: c, ttl: ttl}
}

func accountKey(symbol string) string  { return cache.GenerateKey("account", symbol) }
func decisionKey(symbol string) string { return cache.GenerateKey("decision", symbol) }
func lockKey(symbol string) string     { return cache.GenerateKey("lock", symbol) }

func (s *CacheStateStore) SaveAccount(ctx context.Context, snap *models.AccountSnapshot) error {
	if err := s.cache.Set(ctx, accountKey(snap.Symbol), snap, s.ttl); err != nil {
		return fmt.Errorf("save account: %w", err)
	}
	return nil
}

func (s *CacheStateStore) LoadAccount(ctx context.Context, symbol string) (*models.AccountSnapshot, error) {
	var snap models.AccountSnapshot
	if err := s.cache.Get(ctx, accountKey(symbol), &snap); err != nil {
		if errors.Is(err, cache.ErrCacheMiss) {
			return nil, nil
		}
		return nil, fmt.Errorf("load account: %w", err)
	}
	return &snap, nil
}

func (s *CacheStateStore) SaveLastDecision(ctx context.Context, rec *models.DecisionRecord) error {
	if err := s.cache.Set(ctx, decisionKey(rec.Symbol), rec, s.ttl); err != nil {
		return fmt.Errorf("save last decision: %w", err)
	}
	return nil
}

func (s *CacheStateStore) LoadLastDecision(ctx context.Context, symbol string) (*models.DecisionRecord, error) {
	var rec models.DecisionRecord
	if err := s.cache.Get(ctx, decisionKey(symbol), &rec); err != nil {
		if errors.Is(err, cache.ErrCacheMiss) {
			return nil, nil
		}
		return nil, fmt.Errorf("load last decision: %w", err)
	}
	return &rec, nil
}

func (s *CacheStateStore) AcquireLock(ctx context.Context, symbol string, ttl time.Duration) (bool, error) {
	ok, err := s.cache.TryLock(ctx, lockKey(symbol), ttl)
	if err != nil {
		return false, fmt.Errorf("acquire lock %s: %w", symbol, err)
	}
	return ok, nil
}

// RefreshLock extends a lock this process already holds.
func (s *CacheStateStore) RefreshLock(ctx context.Context, symbol string, ttl time.Duration) error {
	if err := s.cache.Set(ctx, lockKey(symbol), "locked", ttl); err != nil {
		return fmt.Errorf("refresh lock %s: %w", symbol, err)
	}
	return nil
}

func (s *CacheStateStore) ReleaseLock(ctx context.Context, symbol string) error {
	return s.cache.Unlock(ctx, lockKey(symbol))
}
