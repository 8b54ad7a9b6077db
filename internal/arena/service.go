// Package arena provides the HTTP handlers and business logic for the
// battle lifecycle: creating wager-backed battles, joining them, resolving
// winners, and serving the leaderboard and aggregate stats to pollers.
//
// All monetary values use shopspring/decimal — never float64 for money.
package arena

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/makimyys-afk/memearena-solana/internal/fighter"
	"github.com/makimyys-afk/memearena-solana/internal/leaderboard"
	"github.com/makimyys-afk/memearena-solana/internal/limit"
	"github.com/makimyys-afk/memearena-solana/internal/metrics"
	"github.com/makimyys-afk/memearena-solana/internal/model"
	"github.com/makimyys-afk/memearena-solana/internal/settle"
	"github.com/makimyys-afk/memearena-solana/internal/store"
)

// Error kinds returned in the JSON error body so presentation collaborators
// can distinguish a lost race (re-poll) from bad input (show message) from
// a stale reference (refresh list).
const (
	KindBadRequest        = "bad_request"
	KindNotFound          = "not_found"
	KindInvalidWager      = "invalid_wager"
	KindSelfJoin          = "self_join"
	KindInvalidTransition = "invalid_transition"
	KindLimitExceeded     = "limit_exceeded"
)

// Service handles battle operations. The mutex serializes lifecycle
// transitions (single-instance); the store's conditional transitions are
// the hard guarantee, so racing writers fail with a conflict even without
// the mutex.
type Service struct {
	store     store.Store
	resolver  *settle.Resolver
	projector *leaderboard.Projector
	limiter   *limit.StakeLimiter
	minWager  decimal.Decimal
	mu        sync.Mutex
	wsHub     *WSHub // optional WebSocket hub for battle event broadcasts
}

// NewService creates a new arena service.
// Pass nil for hub if WebSocket broadcasting is not needed.
func NewService(st store.Store, resolver *settle.Resolver, projector *leaderboard.Projector,
	limiter *limit.StakeLimiter, minWager decimal.Decimal, hub *WSHub) *Service {
	return &Service{
		store:     st,
		resolver:  resolver,
		projector: projector,
		limiter:   limiter,
		minWager:  minWager,
		wsHub:     hub,
	}
}

// --- Request types ---

// CreateBattleRequest is the JSON body for POST /battles.
type CreateBattleRequest struct {
	Account string          `json:"account"`
	Fighter string          `json:"fighter"`
	Wager   decimal.Decimal `json:"wager"`
}

// JoinBattleRequest is the JSON body for POST /battles/{battleID}/join.
type JoinBattleRequest struct {
	Account string `json:"account"`
	Fighter string `json:"fighter"`
}

// CancelBattleRequest is the JSON body for DELETE /battles/{battleID}.
type CancelBattleRequest struct {
	Account string `json:"account"`
}

// --- Lifecycle handlers ---

// CreateBattle handles POST /api/v1/battles
func (s *Service) CreateBattle(w http.ResponseWriter, r *http.Request) {
	var req CreateBattleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", KindBadRequest, http.StatusBadRequest)
		return
	}

	if req.Account == "" {
		writeError(w, "account is required", KindBadRequest, http.StatusBadRequest)
		return
	}
	if err := fighter.ValidateSymbol(req.Fighter); err != nil {
		writeError(w, err.Error(), KindBadRequest, http.StatusBadRequest)
		return
	}
	if req.Wager.LessThanOrEqual(decimal.Zero) || req.Wager.LessThan(s.minWager) {
		writeError(w, "wager must be at least "+s.minWager.String(), KindInvalidWager, http.StatusBadRequest)
		return
	}

	ctx := r.Context()

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkLimits(w, r, req.Account, req.Wager); err != nil {
		return
	}

	battle := &model.Battle{
		ID:        uuid.New().String(),
		Creator:   req.Account,
		FighterA:  req.Fighter,
		Wager:     req.Wager,
		Status:    model.StatusWaiting,
		Payout:    decimal.Zero,
		CreatedAt: time.Now().UTC(),
	}

	if err := s.store.CreateBattle(ctx, battle); err != nil {
		writeError(w, "failed to create battle", KindBadRequest, http.StatusInternalServerError)
		return
	}

	metrics.BattlesCreated.Inc()
	slog.Info("battle created",
		"id", battle.ID,
		"creator", battle.Creator,
		"fighter", battle.FighterA,
		"wager", battle.Wager.String(),
	)

	if s.wsHub != nil {
		s.wsHub.Broadcast(WSMessage{
			Type:     "battle_created",
			BattleID: battle.ID,
			Status:   string(battle.Status),
			Wager:    battle.Wager.String(),
		})
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(battle)
}

// JoinBattle handles POST /api/v1/battles/{battleID}/join
// The single join-race point: of two concurrent joins on one waiting
// battle, exactly one transitions it to active; the other observes the
// post-transition state and fails with an invalid transition.
func (s *Service) JoinBattle(w http.ResponseWriter, r *http.Request) {
	battleID := chi.URLParam(r, "battleID")

	var req JoinBattleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", KindBadRequest, http.StatusBadRequest)
		return
	}
	if req.Account == "" {
		writeError(w, "account is required", KindBadRequest, http.StatusBadRequest)
		return
	}
	if err := fighter.ValidateSymbol(req.Fighter); err != nil {
		writeError(w, err.Error(), KindBadRequest, http.StatusBadRequest)
		return
	}

	ctx := r.Context()

	s.mu.Lock()
	defer s.mu.Unlock()

	battle, err := s.store.GetBattle(ctx, battleID)
	if err != nil {
		writeError(w, "battle not found", KindNotFound, http.StatusNotFound)
		return
	}
	if battle.Status != model.StatusWaiting {
		writeError(w, "battle is not open for joining", KindInvalidTransition, http.StatusConflict)
		return
	}
	if req.Account == battle.Creator {
		writeError(w, "cannot join your own battle", KindSelfJoin, http.StatusConflict)
		return
	}

	if err := s.checkLimits(w, r, req.Account, battle.Wager); err != nil {
		return
	}

	battle.Opponent = req.Account
	battle.FighterB = req.Fighter
	battle.Status = model.StatusActive

	if err := s.store.TransitionBattle(ctx, battle, model.StatusWaiting); err != nil {
		if errors.Is(err, store.ErrConflict) {
			metrics.TransitionConflicts.WithLabelValues("join").Inc()
			writeError(w, "battle is no longer open for joining", KindInvalidTransition, http.StatusConflict)
			return
		}
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, "battle not found", KindNotFound, http.StatusNotFound)
			return
		}
		writeError(w, "failed to join battle", KindBadRequest, http.StatusInternalServerError)
		return
	}

	metrics.BattlesJoined.Inc()
	slog.Info("battle joined",
		"id", battle.ID,
		"opponent", battle.Opponent,
		"fighter", battle.FighterB,
	)

	if s.wsHub != nil {
		s.wsHub.Broadcast(WSMessage{
			Type:     "battle_joined",
			BattleID: battle.ID,
			Status:   string(battle.Status),
			Wager:    battle.Wager.String(),
		})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(battle)
}

// ResolveBattle handles POST /api/v1/battles/{battleID}/resolve
// Draws the winner, persists the terminal state, and folds the two
// settlement deltas into the leaderboard. The terminal transition succeeds
// at most once, so each delta pair is delivered exactly once.
func (s *Service) ResolveBattle(w http.ResponseWriter, r *http.Request) {
	battleID := chi.URLParam(r, "battleID")
	ctx := r.Context()

	s.mu.Lock()
	defer s.mu.Unlock()

	battle, deltas, err := s.resolver.Resolve(ctx, battleID)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			writeError(w, "battle not found", KindNotFound, http.StatusNotFound)
		case errors.Is(err, settle.ErrNotActive):
			writeError(w, "battle is not active", KindInvalidTransition, http.StatusConflict)
		default:
			writeError(w, "failed to resolve battle", KindBadRequest, http.StatusInternalServerError)
		}
		return
	}

	for _, d := range deltas {
		if err := s.projector.Apply(ctx, d); err != nil {
			slog.Error("leaderboard update failed", "battle", battle.ID, "account", d.Account, "err", err)
			writeError(w, "settlement recorded but leaderboard update failed", KindBadRequest, http.StatusInternalServerError)
			return
		}
	}

	metrics.BattlesResolved.WithLabelValues(battle.Winner).Inc()
	payoutF, _ := battle.Payout.Float64()
	metrics.PayoutTotal.Add(payoutF)

	slog.Info("battle resolved",
		"id", battle.ID,
		"winner", battle.Winner,
		"winner_account", battle.WinnerAccount,
		"payout", battle.Payout.String(),
	)

	if s.wsHub != nil {
		s.wsHub.Broadcast(WSMessage{
			Type:     "battle_resolved",
			BattleID: battle.ID,
			Status:   string(battle.Status),
			Wager:    battle.Wager.String(),
			Winner:   battle.WinnerAccount,
			Payout:   battle.Payout.String(),
		})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(battle)
}

// CancelBattle handles DELETE /api/v1/battles/{battleID}
// Only the creator may cancel, and only while the battle is still waiting.
func (s *Service) CancelBattle(w http.ResponseWriter, r *http.Request) {
	battleID := chi.URLParam(r, "battleID")

	var req CancelBattleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", KindBadRequest, http.StatusBadRequest)
		return
	}
	if req.Account == "" {
		writeError(w, "account is required", KindBadRequest, http.StatusBadRequest)
		return
	}

	ctx := r.Context()

	s.mu.Lock()
	defer s.mu.Unlock()

	battle, err := s.store.GetBattle(ctx, battleID)
	if err != nil {
		writeError(w, "battle not found", KindNotFound, http.StatusNotFound)
		return
	}
	if battle.Status != model.StatusWaiting || battle.Creator != req.Account {
		writeError(w, "battle cannot be cancelled", KindInvalidTransition, http.StatusConflict)
		return
	}

	if err := s.store.DeleteBattle(ctx, battleID, model.StatusWaiting); err != nil {
		if errors.Is(err, store.ErrConflict) {
			metrics.TransitionConflicts.WithLabelValues("cancel").Inc()
			writeError(w, "battle is no longer waiting", KindInvalidTransition, http.StatusConflict)
			return
		}
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, "battle not found", KindNotFound, http.StatusNotFound)
			return
		}
		writeError(w, "failed to cancel battle", KindBadRequest, http.StatusInternalServerError)
		return
	}

	metrics.BattlesCancelled.Inc()
	slog.Info("battle cancelled", "id", battleID, "creator", req.Account)

	if s.wsHub != nil {
		s.wsHub.Broadcast(WSMessage{
			Type:     "battle_cancelled",
			BattleID: battleID,
		})
	}

	w.WriteHeader(http.StatusNoContent)
}

// --- Query facade handlers (read-only, polled by presentation) ---

// GetBattle handles GET /api/v1/battles/{battleID}
func (s *Service) GetBattle(w http.ResponseWriter, r *http.Request) {
	battleID := chi.URLParam(r, "battleID")

	battle, err := s.store.GetBattle(r.Context(), battleID)
	if err != nil {
		writeError(w, "battle not found", KindNotFound, http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(battle)
}

// ListBattles handles GET /api/v1/battles
// Returns all battles, optionally filtered by ?status=<status>.
func (s *Service) ListBattles(w http.ResponseWriter, r *http.Request) {
	battles, err := s.store.ListBattles(r.Context())
	if err != nil {
		writeError(w, "failed to list battles", KindBadRequest, http.StatusInternalServerError)
		return
	}
	if battles == nil {
		battles = []model.Battle{}
	}

	if status := r.URL.Query().Get("status"); status != "" {
		filtered := []model.Battle{}
		for _, b := range battles {
			if b.Status == model.BattleStatus(status) {
				filtered = append(filtered, b)
			}
		}
		battles = filtered
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(battles)
}

// ListOpenBattles handles GET /api/v1/battles/open
// Returns waiting and active battles ordered by creation time ascending.
func (s *Service) ListOpenBattles(w http.ResponseWriter, r *http.Request) {
	battles, err := s.store.ListBattles(r.Context())
	if err != nil {
		writeError(w, "failed to list battles", KindBadRequest, http.StatusInternalServerError)
		return
	}

	open := []model.Battle{}
	for _, b := range battles {
		if b.Status == model.StatusWaiting || b.Status == model.StatusActive {
			open = append(open, b)
		}
	}
	metrics.OpenBattles.Set(float64(len(open)))

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(open)
}

// Leaderboard handles GET /api/v1/leaderboard
func (s *Service) Leaderboard(w http.ResponseWriter, r *http.Request) {
	entries, err := s.projector.Rank(r.Context())
	if err != nil {
		writeError(w, "failed to load leaderboard", KindBadRequest, http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []model.LeaderboardEntry{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(entries)
}

// Stats handles GET /api/v1/stats
// Derived on each call: total volume is Σ wager*2 over stored battles,
// treasury is volume * fee rate.
func (s *Service) Stats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	battles, err := s.store.ListBattles(ctx)
	if err != nil {
		writeError(w, "failed to load stats", KindBadRequest, http.StatusInternalServerError)
		return
	}
	players, err := s.store.ListPlayerRecords(ctx)
	if err != nil {
		writeError(w, "failed to load stats", KindBadRequest, http.StatusInternalServerError)
		return
	}

	stats := model.Stats{
		TotalBattles: len(battles),
		TotalVolume:  decimal.Zero,
		TotalPlayers: len(players),
	}
	for _, b := range battles {
		stats.TotalVolume = stats.TotalVolume.Add(b.Pot())
		if b.Status == model.StatusWaiting || b.Status == model.StatusActive {
			stats.ActiveBattles++
		}
	}
	stats.Treasury = stats.TotalVolume.Mul(s.resolver.FeeRate())

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(stats)
}

// Fighters handles GET /api/v1/fighters
func (s *Service) Fighters(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(fighter.Roster())
}

// --- Helpers ---

// checkLimits applies the stake limiter for one more battle at the given
// wager. Writes the error response itself and returns non-nil when the
// request must not proceed.
func (s *Service) checkLimits(w http.ResponseWriter, r *http.Request, account string, wager decimal.Decimal) error {
	if s.limiter == nil {
		return nil
	}
	battles, err := s.store.ListBattles(r.Context())
	if err != nil {
		writeError(w, "failed to check stake limits", KindBadRequest, http.StatusInternalServerError)
		return err
	}
	if err := s.limiter.Check(account, wager, battles); err != nil {
		writeError(w, err.Error(), KindLimitExceeded, http.StatusConflict)
		return err
	}
	return nil
}

// writeError writes a JSON error response with a machine-readable kind.
func writeError(w http.ResponseWriter, message, kind string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message, "kind": kind})
}
