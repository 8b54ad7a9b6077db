package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/makimyys-afk/memearena-solana/internal/model"
)

// PostgresStore implements Store using PostgreSQL as the source of truth.
// All monetary values are stored as NUMERIC for exact decimal precision.
// Status-conditional transitions use WHERE status = $n + RowsAffected, so
// racing writers are serialized by the database.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) CreateBattle(ctx context.Context, b *model.Battle) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO battles (id, creator, fighter_a, opponent, fighter_b, wager, status,
		                      winner, winner_account, payout, resolved_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6::NUMERIC, $7, $8, $9, $10::NUMERIC, $11, $12)`,
		b.ID, b.Creator, b.FighterA, nullStr(b.Opponent), nullStr(b.FighterB),
		b.Wager.String(), string(b.Status),
		nullStr(b.Winner), nullStr(b.WinnerAccount), b.Payout.String(),
		b.ResolvedAt, b.CreatedAt,
	)
	return err
}

func (s *PostgresStore) GetBattle(ctx context.Context, id string) (*model.Battle, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, creator, fighter_a, opponent, fighter_b,
		        wager::TEXT, status, winner, winner_account, payout::TEXT,
		        resolved_at, created_at
		 FROM battles WHERE id = $1`, id)

	b, err := scanBattle(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("battle %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("get battle %s: %w", id, err)
	}
	return b, nil
}

func (s *PostgresStore) ListBattles(ctx context.Context) ([]model.Battle, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, creator, fighter_a, opponent, fighter_b,
		        wager::TEXT, status, winner, winner_account, payout::TEXT,
		        resolved_at, created_at
		 FROM battles ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var battles []model.Battle
	for rows.Next() {
		b, err := scanBattle(rows)
		if err != nil {
			return nil, err
		}
		battles = append(battles, *b)
	}
	return battles, rows.Err()
}

func (s *PostgresStore) TransitionBattle(ctx context.Context, b *model.Battle, from model.BattleStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE battles
		 SET opponent = $2, fighter_b = $3, status = $4,
		     winner = $5, winner_account = $6, payout = $7::NUMERIC, resolved_at = $8
		 WHERE id = $1 AND status = $9`,
		b.ID, nullStr(b.Opponent), nullStr(b.FighterB), string(b.Status),
		nullStr(b.Winner), nullStr(b.WinnerAccount), b.Payout.String(), b.ResolvedAt,
		string(from),
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return s.conflictOrNotFound(ctx, b.ID, from)
	}
	return nil
}

func (s *PostgresStore) DeleteBattle(ctx context.Context, id string, from model.BattleStatus) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM battles WHERE id = $1 AND status = $2`, id, string(from))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return s.conflictOrNotFound(ctx, id, from)
	}
	return nil
}

// conflictOrNotFound distinguishes a missing battle from a status mismatch
// after a conditional write touched zero rows.
func (s *PostgresStore) conflictOrNotFound(ctx context.Context, id string, from model.BattleStatus) error {
	var status string
	err := s.pool.QueryRow(ctx, `SELECT status FROM battles WHERE id = $1`, id).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("battle %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return err
	}
	return fmt.Errorf("battle %s is %s, expected %s: %w", id, status, from, ErrConflict)
}

func (s *PostgresStore) PutPlayerRecord(ctx context.Context, r *model.PlayerRecord) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO players (account, wins, losses, earned, wagered, champion)
		 VALUES ($1, $2, $3, $4::NUMERIC, $5::NUMERIC, $6)
		 ON CONFLICT (account) DO UPDATE
		 SET wins = EXCLUDED.wins, losses = EXCLUDED.losses,
		     earned = EXCLUDED.earned, wagered = EXCLUDED.wagered,
		     champion = EXCLUDED.champion`,
		r.Account, r.Wins, r.Losses, r.Earned.String(), r.Wagered.String(),
		nullStr(r.Champion),
	)
	return err
}

func (s *PostgresStore) GetPlayerRecord(ctx context.Context, account string) (*model.PlayerRecord, error) {
	var r model.PlayerRecord
	var earned, wagered string
	var champion sql.NullString

	err := s.pool.QueryRow(ctx,
		`SELECT account, wins, losses, earned::TEXT, wagered::TEXT, champion
		 FROM players WHERE account = $1`, account).
		Scan(&r.Account, &r.Wins, &r.Losses, &earned, &wagered, &champion)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("player %s: %w", account, ErrNotFound)
		}
		return nil, fmt.Errorf("get player %s: %w", account, err)
	}

	r.Earned, _ = decimal.NewFromString(earned)
	r.Wagered, _ = decimal.NewFromString(wagered)
	r.Champion = champion.String
	return &r, nil
}

func (s *PostgresStore) ListPlayerRecords(ctx context.Context) ([]model.PlayerRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT account, wins, losses, earned::TEXT, wagered::TEXT, champion
		 FROM players`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []model.PlayerRecord
	for rows.Next() {
		var r model.PlayerRecord
		var earned, wagered string
		var champion sql.NullString

		if err := rows.Scan(&r.Account, &r.Wins, &r.Losses, &earned, &wagered, &champion); err != nil {
			return nil, err
		}
		r.Earned, _ = decimal.NewFromString(earned)
		r.Wagered, _ = decimal.NewFromString(wagered)
		r.Champion = champion.String
		records = append(records, r)
	}
	return records, rows.Err()
}

// battleRow abstracts pgx.Row / pgx.Rows for scanBattle.
type battleRow interface {
	Scan(dest ...interface{}) error
}

func scanBattle(row battleRow) (*model.Battle, error) {
	var b model.Battle
	var opponent, fighterB, winner, winnerAccount sql.NullString
	var wager, payout string
	var resolvedAt sql.NullTime
	var status string

	if err := row.Scan(&b.ID, &b.Creator, &b.FighterA, &opponent, &fighterB,
		&wager, &status, &winner, &winnerAccount, &payout,
		&resolvedAt, &b.CreatedAt); err != nil {
		return nil, err
	}

	b.Opponent = opponent.String
	b.FighterB = fighterB.String
	b.Status = model.BattleStatus(status)
	b.Winner = winner.String
	b.WinnerAccount = winnerAccount.String
	b.Wager, _ = decimal.NewFromString(wager)
	b.Payout, _ = decimal.NewFromString(payout)
	if resolvedAt.Valid {
		t := resolvedAt.Time
		b.ResolvedAt = &t
	}
	return &b, nil
}

func nullStr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Schema reference (applied out of band):
//
//	CREATE TABLE battles (
//	    id             TEXT PRIMARY KEY,
//	    creator        TEXT NOT NULL,
//	    fighter_a      TEXT NOT NULL,
//	    opponent       TEXT,
//	    fighter_b      TEXT,
//	    wager          NUMERIC NOT NULL,
//	    status         TEXT NOT NULL,
//	    winner         TEXT,
//	    winner_account TEXT,
//	    payout         NUMERIC NOT NULL DEFAULT 0,
//	    resolved_at    TIMESTAMPTZ,
//	    created_at     TIMESTAMPTZ NOT NULL
//	);
//
//	CREATE TABLE players (
//	    account  TEXT PRIMARY KEY,
//	    wins     INTEGER NOT NULL DEFAULT 0,
//	    losses   INTEGER NOT NULL DEFAULT 0,
//	    earned   NUMERIC NOT NULL DEFAULT 0,
//	    wagered  NUMERIC NOT NULL DEFAULT 0,
//	    champion TEXT
//	);
