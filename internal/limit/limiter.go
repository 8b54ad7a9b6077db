// Package limit enforces per-account stake limits across open battles.
//
// An account with many simultaneous open battles has that much stake
// escrowed at once. This package caps both the number of open battles an
// account participates in and the total stake it has at risk, checked
// before create and join.
package limit

import (
	"errors"

	"github.com/shopspring/decimal"

	"github.com/makimyys-afk/memearena-solana/internal/model"
)

var (
	// ErrOpenBattleLimitExceeded is returned when an account would exceed
	// its maximum number of simultaneous open battles.
	ErrOpenBattleLimitExceeded = errors.New("limit: open battle limit exceeded")

	// ErrStakeLimitExceeded is returned when an account would exceed its
	// maximum total stake at risk across open battles.
	ErrStakeLimitExceeded = errors.New("limit: stake at risk limit exceeded")
)

// StakeLimiter enforces per-account limits over open (waiting or active)
// battles. A zero limit disables the corresponding check.
type StakeLimiter struct {
	// MaxOpenBattles is the maximum number of open battles one account
	// may participate in at once.
	MaxOpenBattles int

	// MaxStakeAtRisk is the maximum total stake one account may have
	// escrowed across all its open battles.
	MaxStakeAtRisk decimal.Decimal
}

// NewStakeLimiter creates a limiter with the given caps.
func NewStakeLimiter(maxOpen int, maxStake decimal.Decimal) *StakeLimiter {
	return &StakeLimiter{
		MaxOpenBattles: maxOpen,
		MaxStakeAtRisk: maxStake,
	}
}

// Check validates whether the account can escrow stakeDelta for one more
// battle, given the currently open battles. Returns nil when within
// limits, or an error describing the violation.
func (l *StakeLimiter) Check(account string, stakeDelta decimal.Decimal, open []model.Battle) error {
	count := 0
	atRisk := decimal.Zero
	for _, b := range open {
		if b.Status != model.StatusWaiting && b.Status != model.StatusActive {
			continue
		}
		if b.Creator != account && b.Opponent != account {
			continue
		}
		count++
		atRisk = atRisk.Add(b.Wager)
	}

	if l.MaxOpenBattles > 0 && count+1 > l.MaxOpenBattles {
		return ErrOpenBattleLimitExceeded
	}
	if l.MaxStakeAtRisk.IsPositive() && atRisk.Add(stakeDelta).GreaterThan(l.MaxStakeAtRisk) {
		return ErrStakeLimitExceeded
	}
	return nil
}
