// Package store defines the persistence interface for the battle ledger.
// Implementations include PostgreSQL (source of truth), Redis (read-through
// cache), and in-memory (for testing and single-node deployments).
package store

import (
	"context"
	"errors"

	"github.com/makimyys-afk/memearena-solana/internal/model"
)

var (
	// ErrNotFound is returned when a battle or player record does not exist.
	ErrNotFound = errors.New("store: not found")

	// ErrConflict is returned when a conditional transition observes a
	// battle whose status no longer matches the expected pre-transition
	// state. Callers surface this as an invalid transition.
	ErrConflict = errors.New("store: status conflict")
)

// Store is the persistence interface. Each battle is a single unit of
// mutual exclusion: TransitionBattle and DeleteBattle are conditional on
// the stored status, so of two racing transitions exactly one succeeds
// and the loser observes ErrConflict.
type Store interface {
	// --- Battle operations ---

	// CreateBattle persists a new battle in the waiting state.
	CreateBattle(ctx context.Context, b *model.Battle) error

	// GetBattle retrieves a battle by ID. Returns ErrNotFound if absent.
	GetBattle(ctx context.Context, id string) (*model.Battle, error)

	// ListBattles returns all battles ordered by creation time ascending.
	ListBattles(ctx context.Context) ([]model.Battle, error)

	// TransitionBattle replaces the stored battle with b, but only if the
	// stored status equals from. Returns ErrConflict on a status mismatch
	// and ErrNotFound if the battle does not exist.
	TransitionBattle(ctx context.Context, b *model.Battle, from model.BattleStatus) error

	// DeleteBattle removes a battle, but only if its stored status equals
	// from. Same conflict semantics as TransitionBattle.
	DeleteBattle(ctx context.Context, id string, from model.BattleStatus) error

	// --- Player records ---

	// PutPlayerRecord inserts or replaces a player's aggregate record.
	PutPlayerRecord(ctx context.Context, r *model.PlayerRecord) error

	// GetPlayerRecord retrieves one account's record. ErrNotFound if the
	// account has never settled a battle.
	GetPlayerRecord(ctx context.Context, account string) (*model.PlayerRecord, error)

	// ListPlayerRecords returns all player records.
	ListPlayerRecords(ctx context.Context) ([]model.PlayerRecord, error)
}
