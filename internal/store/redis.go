package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/makimyys-afk/memearena-solana/internal/model"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis read-through
// cache. Battle reads check Redis first then fall back to the primary;
// every lifecycle transition invalidates the cached battle so pollers see
// the committed state on the next read.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// --- Write-through (write to primary, invalidate cache) ---

func (s *CachedStore) CreateBattle(ctx context.Context, b *model.Battle) error {
	if err := s.primary.CreateBattle(ctx, b); err != nil {
		return err
	}
	s.cacheBattle(ctx, b)
	return nil
}

func (s *CachedStore) TransitionBattle(ctx context.Context, b *model.Battle, from model.BattleStatus) error {
	if err := s.primary.TransitionBattle(ctx, b, from); err != nil {
		return err
	}
	// Invalidate; next read re-populates from the primary.
	s.rdb.Del(ctx, battleKey(b.ID))
	return nil
}

func (s *CachedStore) DeleteBattle(ctx context.Context, id string, from model.BattleStatus) error {
	if err := s.primary.DeleteBattle(ctx, id, from); err != nil {
		return err
	}
	s.rdb.Del(ctx, battleKey(id))
	return nil
}

func (s *CachedStore) PutPlayerRecord(ctx context.Context, r *model.PlayerRecord) error {
	if err := s.primary.PutPlayerRecord(ctx, r); err != nil {
		return err
	}
	s.rdb.Del(ctx, playerKey(r.Account))
	return nil
}

// --- Read-through (check cache first) ---

func (s *CachedStore) GetBattle(ctx context.Context, id string) (*model.Battle, error) {
	data, err := s.rdb.Get(ctx, battleKey(id)).Bytes()
	if err == nil {
		var b model.Battle
		if json.Unmarshal(data, &b) == nil {
			return &b, nil
		}
	}

	// Cache miss: read from primary.
	b, err := s.primary.GetBattle(ctx, id)
	if err != nil {
		return nil, err
	}

	s.cacheBattle(ctx, b)
	return b, nil
}

func (s *CachedStore) GetPlayerRecord(ctx context.Context, account string) (*model.PlayerRecord, error) {
	data, err := s.rdb.Get(ctx, playerKey(account)).Bytes()
	if err == nil {
		var r model.PlayerRecord
		if json.Unmarshal(data, &r) == nil {
			return &r, nil
		}
	}

	r, err := s.primary.GetPlayerRecord(ctx, account)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(r); err == nil {
		s.rdb.Set(ctx, playerKey(account), data, s.ttl)
	}
	return r, nil
}

// --- Passthrough (list reads always hit the primary) ---

func (s *CachedStore) ListBattles(ctx context.Context) ([]model.Battle, error) {
	return s.primary.ListBattles(ctx)
}

func (s *CachedStore) ListPlayerRecords(ctx context.Context) ([]model.PlayerRecord, error) {
	return s.primary.ListPlayerRecords(ctx)
}

// --- Cache helpers ---

func (s *CachedStore) cacheBattle(ctx context.Context, b *model.Battle) {
	if data, err := json.Marshal(b); err == nil {
		s.rdb.Set(ctx, battleKey(b.ID), data, s.ttl)
	}
}

func battleKey(id string) string      { return fmt.Sprintf("battle:%s", id) }
func playerKey(account string) string { return fmt.Sprintf("player:%s", account) }
