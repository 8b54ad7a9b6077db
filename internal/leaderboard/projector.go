// Package leaderboard folds settlement deltas into per-player aggregate
// records and produces the ranked view consumed by presentation pollers.
package leaderboard

import (
	"context"
	"errors"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/makimyys-afk/memearena-solana/internal/model"
	"github.com/makimyys-afk/memearena-solana/internal/store"
)

// Projector applies settlement deltas to player records. Deltas are not
// idempotent — replaying one double-counts — so the caller must deliver
// each delta exactly once. The resolver guarantees this because the
// terminal battle transition succeeds at most once.
type Projector struct {
	store store.Store
}

// NewProjector creates a projector over the given store.
func NewProjector(st store.Store) *Projector {
	return &Projector{store: st}
}

// Apply folds one delta into the account's record, creating the record
// lazily on first settlement. A win increments wins and adds the payout to
// earned; a loss increments losses. Both sides accumulate wagered stake.
func (p *Projector) Apply(ctx context.Context, d model.SettlementDelta) error {
	r, err := p.store.GetPlayerRecord(ctx, d.Account)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			return err
		}
		r = &model.PlayerRecord{
			Account: d.Account,
			Earned:  decimal.Zero,
			Wagered: decimal.Zero,
		}
	}

	if d.Win {
		r.Wins++
		r.Earned = r.Earned.Add(d.Amount)
		r.Champion = d.Fighter
	} else {
		r.Losses++
	}
	r.Wagered = r.Wagered.Add(d.Wager)

	return p.store.PutPlayerRecord(ctx, r)
}

// Rank returns the leaderboard: wins descending, ties broken by fewer
// losses, then higher earnings, then account ascending. Ranks are 1-based,
// contiguous, and distinct even between tied records.
func (p *Projector) Rank(ctx context.Context) ([]model.LeaderboardEntry, error) {
	records, err := p.store.ListPlayerRecords(ctx)
	if err != nil {
		return nil, err
	}

	sort.Slice(records, func(i, j int) bool {
		a, b := records[i], records[j]
		if a.Wins != b.Wins {
			return a.Wins > b.Wins
		}
		if a.Losses != b.Losses {
			return a.Losses < b.Losses
		}
		if !a.Earned.Equal(b.Earned) {
			return a.Earned.GreaterThan(b.Earned)
		}
		return a.Account < b.Account
	})

	entries := make([]model.LeaderboardEntry, 0, len(records))
	for i, r := range records {
		entries = append(entries, model.LeaderboardEntry{
			Rank:     i + 1,
			Account:  r.Account,
			Wins:     r.Wins,
			Losses:   r.Losses,
			Earned:   r.Earned,
			Wagered:  r.Wagered,
			Champion: r.Champion,
		})
	}
	return entries, nil
}
