// Package model defines the core domain types shared across the battle engine.
// All monetary values use shopspring/decimal — never float64 for money.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// BattleStatus is the lifecycle state of a battle. Transitions only move
// forward: waiting → active → completed. Never backward.
type BattleStatus string

const (
	StatusWaiting   BattleStatus = "waiting"
	StatusActive    BattleStatus = "active"
	StatusCompleted BattleStatus = "completed"
)

// Winner side markers for a completed battle.
const (
	SideA = "A" // creator's side
	SideB = "B" // opponent's side
)

// Battle is one wager-backed match between two accounts. The wager is fixed
// at creation; both sides stake exactly that amount, so pot = wager * 2.
type Battle struct {
	ID       string          `json:"id" db:"id"`
	Creator  string          `json:"creator" db:"creator"`
	FighterA string          `json:"fighter_a" db:"fighter_a"`
	Opponent string          `json:"opponent,omitempty" db:"opponent"`
	FighterB string          `json:"fighter_b,omitempty" db:"fighter_b"`
	Wager    decimal.Decimal `json:"wager" db:"wager"`
	Status   BattleStatus    `json:"status" db:"status"`

	// Resolution fields, populated only once Status is completed.
	Winner        string          `json:"winner,omitempty" db:"winner"` // "A" or "B"
	WinnerAccount string          `json:"winner_account,omitempty" db:"winner_account"`
	Payout        decimal.Decimal `json:"payout" db:"payout"`
	ResolvedAt    *time.Time      `json:"resolved_at,omitempty" db:"resolved_at"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Pot returns the total staked amount: one wager from each side.
func (b *Battle) Pot() decimal.Decimal {
	return b.Wager.Mul(decimal.NewFromInt(2))
}

// LoserAccount returns the account on the losing side of a completed battle.
func (b *Battle) LoserAccount() string {
	if b.Winner == SideA {
		return b.Opponent
	}
	return b.Creator
}

// PlayerRecord is the per-account cumulative win/loss/earnings aggregate.
// Records are created lazily on first settlement and counters only increase.
type PlayerRecord struct {
	Account  string          `json:"account" db:"account"`
	Wins     int             `json:"wins" db:"wins"`
	Losses   int             `json:"losses" db:"losses"`
	Earned   decimal.Decimal `json:"earned" db:"earned"`               // Σ payouts won
	Wagered  decimal.Decimal `json:"wagered" db:"wagered"`             // Σ stakes across settled battles
	Champion string          `json:"champion,omitempty" db:"champion"` // fighter used in most recent win
}

// SettlementDelta is a single win/loss outcome update destined for one
// PlayerRecord. Each settlement emits exactly two: one win, one loss.
type SettlementDelta struct {
	Account string
	Win     bool
	Amount  decimal.Decimal // payout for the winner, zero for the loser
	Wager   decimal.Decimal // the battle's per-side stake
	Fighter string          // the fighter this account brought to the battle
}

// LeaderboardEntry is one ranked row of the leaderboard projection.
type LeaderboardEntry struct {
	Rank     int             `json:"rank"`
	Account  string          `json:"account"`
	Wins     int             `json:"wins"`
	Losses   int             `json:"losses"`
	Earned   decimal.Decimal `json:"earned"`
	Wagered  decimal.Decimal `json:"wagered"`
	Champion string          `json:"champion,omitempty"`
}

// Stats is the aggregate view over all battles ever created.
type Stats struct {
	TotalBattles  int             `json:"total_battles"`
	ActiveBattles int             `json:"active_battles"` // waiting + active
	TotalVolume   decimal.Decimal `json:"total_volume"`   // Σ wager*2 over all battles
	Treasury      decimal.Decimal `json:"treasury"`       // total_volume * fee rate
	TotalPlayers  int             `json:"total_players"`  // accounts with ≥1 settlement
}
