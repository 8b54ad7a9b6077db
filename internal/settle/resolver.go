// Package settle implements battle settlement: a single uniform draw picks
// the winner, the fee split is computed, and the battle is moved to its
// terminal state. The transition is conditional on the battle still being
// active, so a second resolve of the same battle is rejected rather than
// re-drawn.
//
// All monetary values use shopspring/decimal — never float64 for money.
// The draw itself needs fairness, not unpredictability: both sides are
// mechanically identical, so math/rand is sufficient.
package settle

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/shopspring/decimal"

	"github.com/makimyys-afk/memearena-solana/internal/model"
	"github.com/makimyys-afk/memearena-solana/internal/store"
)

// ErrNotActive is returned when resolve is attempted on a battle that is
// not in the active state, including a battle that was already resolved.
var ErrNotActive = errors.New("settle: battle is not active")

// DefaultFeeRate is the fraction of the pot retained by the platform.
var DefaultFeeRate = decimal.NewFromFloat(0.03)

// Resolver draws winners and computes payouts.
type Resolver struct {
	store   store.Store
	feeRate decimal.Decimal
	draw    func() float64 // uniform in [0,1)
	now     func() time.Time
}

// NewResolver creates a resolver with the given fee rate. Pass a nil draw
// to use math/rand; tests inject a deterministic source.
func NewResolver(st store.Store, feeRate decimal.Decimal, draw func() float64) *Resolver {
	if draw == nil {
		draw = rand.Float64
	}
	return &Resolver{
		store:   st,
		feeRate: feeRate,
		draw:    draw,
		now:     time.Now,
	}
}

// FeeRate returns the configured fee rate.
func (r *Resolver) FeeRate() decimal.Decimal {
	return r.feeRate
}

// Payout computes the winner's payout for a given per-side wager:
// pot = wager * 2, payout = pot * (1 - feeRate).
func (r *Resolver) Payout(wager decimal.Decimal) decimal.Decimal {
	pot := wager.Mul(decimal.NewFromInt(2))
	return pot.Sub(pot.Mul(r.feeRate))
}

// Resolve draws a winner for an active battle, persists the terminal state,
// and returns the completed battle with the two ledger deltas it produced:
// one win carrying the payout, one loss carrying zero.
//
// The winner is the creator when the draw lands below 0.5, the opponent
// otherwise. A battle that is not active fails with ErrNotActive; a battle
// that does not exist fails with store.ErrNotFound.
func (r *Resolver) Resolve(ctx context.Context, battleID string) (*model.Battle, []model.SettlementDelta, error) {
	b, err := r.store.GetBattle(ctx, battleID)
	if err != nil {
		return nil, nil, err
	}
	if b.Status != model.StatusActive {
		return nil, nil, fmt.Errorf("battle %s is %s: %w", battleID, b.Status, ErrNotActive)
	}

	if r.draw() < 0.5 {
		b.Winner = model.SideA
		b.WinnerAccount = b.Creator
	} else {
		b.Winner = model.SideB
		b.WinnerAccount = b.Opponent
	}

	b.Payout = r.Payout(b.Wager)
	b.Status = model.StatusCompleted
	resolvedAt := r.now().UTC()
	b.ResolvedAt = &resolvedAt

	if err := r.store.TransitionBattle(ctx, b, model.StatusActive); err != nil {
		if errors.Is(err, store.ErrConflict) {
			// Lost the race against a concurrent resolve.
			return nil, nil, fmt.Errorf("battle %s: %w", battleID, ErrNotActive)
		}
		return nil, nil, err
	}

	winnerFighter, loserFighter := b.FighterA, b.FighterB
	if b.Winner == model.SideB {
		winnerFighter, loserFighter = b.FighterB, b.FighterA
	}

	deltas := []model.SettlementDelta{
		{Account: b.WinnerAccount, Win: true, Amount: b.Payout, Wager: b.Wager, Fighter: winnerFighter},
		{Account: b.LoserAccount(), Win: false, Amount: decimal.Zero, Wager: b.Wager, Fighter: loserFighter},
	}
	return b, deltas, nil
}
