package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/makimyys-afk/memearena-solana/internal/model"
)

// MemoryStore implements Store with in-memory maps. Used for testing and
// single-node development deployments (no persistence across restarts).
type MemoryStore struct {
	mu      sync.RWMutex
	battles map[string]*model.Battle
	players map[string]*model.PlayerRecord
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		battles: make(map[string]*model.Battle),
		players: make(map[string]*model.PlayerRecord),
	}
}

func (s *MemoryStore) CreateBattle(_ context.Context, b *model.Battle) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.battles[b.ID]; exists {
		return fmt.Errorf("battle %s already exists", b.ID)
	}

	// Store a copy to avoid external mutation.
	cp := *b
	s.battles[b.ID] = &cp
	return nil
}

func (s *MemoryStore) GetBattle(_ context.Context, id string) (*model.Battle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.battles[id]
	if !ok {
		return nil, fmt.Errorf("battle %s: %w", id, ErrNotFound)
	}
	cp := *b
	return &cp, nil
}

func (s *MemoryStore) ListBattles(_ context.Context) ([]model.Battle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	battles := make([]model.Battle, 0, len(s.battles))
	for _, b := range s.battles {
		battles = append(battles, *b)
	}
	sort.Slice(battles, func(i, j int) bool {
		if battles[i].CreatedAt.Equal(battles[j].CreatedAt) {
			return battles[i].ID < battles[j].ID
		}
		return battles[i].CreatedAt.Before(battles[j].CreatedAt)
	})
	return battles, nil
}

func (s *MemoryStore) TransitionBattle(_ context.Context, b *model.Battle, from model.BattleStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.battles[b.ID]
	if !ok {
		return fmt.Errorf("battle %s: %w", b.ID, ErrNotFound)
	}
	if stored.Status != from {
		return fmt.Errorf("battle %s is %s, expected %s: %w", b.ID, stored.Status, from, ErrConflict)
	}

	cp := *b
	s.battles[b.ID] = &cp
	return nil
}

func (s *MemoryStore) DeleteBattle(_ context.Context, id string, from model.BattleStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.battles[id]
	if !ok {
		return fmt.Errorf("battle %s: %w", id, ErrNotFound)
	}
	if stored.Status != from {
		return fmt.Errorf("battle %s is %s, expected %s: %w", id, stored.Status, from, ErrConflict)
	}

	delete(s.battles, id)
	return nil
}

func (s *MemoryStore) PutPlayerRecord(_ context.Context, r *model.PlayerRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *r
	s.players[r.Account] = &cp
	return nil
}

func (s *MemoryStore) GetPlayerRecord(_ context.Context, account string) (*model.PlayerRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.players[account]
	if !ok {
		return nil, fmt.Errorf("player %s: %w", account, ErrNotFound)
	}
	cp := *r
	return &cp, nil
}

func (s *MemoryStore) ListPlayerRecords(_ context.Context) ([]model.PlayerRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := make([]model.PlayerRecord, 0, len(s.players))
	for _, r := range s.players {
		records = append(records, *r)
	}
	return records, nil
}
