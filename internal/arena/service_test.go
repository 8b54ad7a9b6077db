package arena_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/makimyys-afk/memearena-solana/internal/arena"
	"github.com/makimyys-afk/memearena-solana/internal/leaderboard"
	"github.com/makimyys-afk/memearena-solana/internal/limit"
	"github.com/makimyys-afk/memearena-solana/internal/model"
	"github.com/makimyys-afk/memearena-solana/internal/settle"
	"github.com/makimyys-afk/memearena-solana/internal/store"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

type testEnv struct {
	store     *store.MemoryStore
	projector *leaderboard.Projector
	router    chi.Router
}

// newTestEnv creates a Service with in-memory store and chi router. The
// draw function controls settlement outcomes; nil uses math/rand.
func newTestEnv(t *testing.T, draw func() float64, limiter *limit.StakeLimiter) *testEnv {
	t.Helper()
	ms := store.NewMemoryStore()
	resolver := settle.NewResolver(ms, settle.DefaultFeeRate, draw)
	projector := leaderboard.NewProjector(ms)
	svc := arena.NewService(ms, resolver, projector, limiter, d(0.01), nil)

	r := chi.NewRouter()
	r.Get("/api/v1/battles", svc.ListBattles)
	r.Get("/api/v1/battles/open", svc.ListOpenBattles)
	r.Post("/api/v1/battles", svc.CreateBattle)
	r.Get("/api/v1/battles/{battleID}", svc.GetBattle)
	r.Post("/api/v1/battles/{battleID}/join", svc.JoinBattle)
	r.Post("/api/v1/battles/{battleID}/resolve", svc.ResolveBattle)
	r.Delete("/api/v1/battles/{battleID}", svc.CancelBattle)
	r.Get("/api/v1/leaderboard", svc.Leaderboard)
	r.Get("/api/v1/stats", svc.Stats)
	r.Get("/api/v1/fighters", svc.Fighters)

	return &testEnv{store: ms, projector: projector, router: r}
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *testEnv) createBattle(t *testing.T, account, fighter string, wager float64) model.Battle {
	t.Helper()
	w := e.do(t, "POST", "/api/v1/battles", arena.CreateBattleRequest{
		Account: account,
		Fighter: fighter,
		Wager:   d(wager),
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create battle failed: %d %s", w.Code, w.Body.String())
	}
	var b model.Battle
	json.Unmarshal(w.Body.Bytes(), &b)
	return b
}

func errKind(w *httptest.ResponseRecorder) string {
	var body map[string]string
	json.Unmarshal(w.Body.Bytes(), &body)
	return body["kind"]
}

// --- Create ---

func TestCreateBattle_StartsWaiting(t *testing.T) {
	env := newTestEnv(t, nil, nil)

	b := env.createBattle(t, "alice", "BONK", 0.5)

	if b.ID == "" {
		t.Error("expected non-empty battle id")
	}
	if b.Status != model.StatusWaiting {
		t.Errorf("expected waiting, got %s", b.Status)
	}
	if b.Opponent != "" || b.FighterB != "" {
		t.Errorf("fresh battle must have no opponent, got %q/%q", b.Opponent, b.FighterB)
	}
	if b.WinnerAccount != "" || b.ResolvedAt != nil {
		t.Error("fresh battle must have no resolution fields")
	}
	if !b.Wager.Equal(d(0.5)) {
		t.Errorf("expected wager 0.5, got %s", b.Wager)
	}
	if b.CreatedAt.IsZero() {
		t.Error("expected created_at to be set")
	}
}

func TestCreateBattle_InvalidWager(t *testing.T) {
	env := newTestEnv(t, nil, nil)

	for _, wager := range []float64{0, -1, 0.005} {
		w := env.do(t, "POST", "/api/v1/battles", arena.CreateBattleRequest{
			Account: "alice",
			Fighter: "BONK",
			Wager:   d(wager),
		})
		if w.Code != http.StatusBadRequest {
			t.Errorf("wager %v: expected 400, got %d", wager, w.Code)
		}
		if kind := errKind(w); kind != arena.KindInvalidWager {
			t.Errorf("wager %v: expected kind invalid_wager, got %s", wager, kind)
		}
	}
}

func TestCreateBattle_MinWagerAccepted(t *testing.T) {
	env := newTestEnv(t, nil, nil)

	b := env.createBattle(t, "alice", "BONK", 0.01)
	if b.Status != model.StatusWaiting {
		t.Errorf("expected waiting, got %s", b.Status)
	}
}

func TestCreateBattle_MissingAccount(t *testing.T) {
	env := newTestEnv(t, nil, nil)

	w := env.do(t, "POST", "/api/v1/battles", arena.CreateBattleRequest{
		Fighter: "BONK",
		Wager:   d(1),
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestCreateBattle_BadFighterSymbol(t *testing.T) {
	env := newTestEnv(t, nil, nil)

	w := env.do(t, "POST", "/api/v1/battles", arena.CreateBattleRequest{
		Account: "alice",
		Fighter: "bonk coin",
		Wager:   d(1),
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

// --- Join ---

func TestJoinBattle_TransitionsToActive(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	b := env.createBattle(t, "alice", "BONK", 0.5)

	w := env.do(t, "POST", "/api/v1/battles/"+b.ID+"/join", arena.JoinBattleRequest{
		Account: "bob",
		Fighter: "WIF",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var joined model.Battle
	json.Unmarshal(w.Body.Bytes(), &joined)
	if joined.Status != model.StatusActive {
		t.Errorf("expected active, got %s", joined.Status)
	}
	if joined.Opponent != "bob" || joined.FighterB != "WIF" {
		t.Errorf("unexpected opponent fields: %q/%q", joined.Opponent, joined.FighterB)
	}
	if !joined.Wager.Equal(b.Wager) {
		t.Errorf("wager must not change on join: %s", joined.Wager)
	}
}

func TestJoinBattle_SelfJoinRejected(t *testing.T) {
	env := newTestEnv(t, nil, nil)

	for _, wager := range []float64{0.01, 0.5, 10} {
		b := env.createBattle(t, "alice", "BONK", wager)
		w := env.do(t, "POST", "/api/v1/battles/"+b.ID+"/join", arena.JoinBattleRequest{
			Account: "alice",
			Fighter: "WIF",
		})
		if w.Code != http.StatusConflict {
			t.Errorf("expected 409, got %d", w.Code)
		}
		if kind := errKind(w); kind != arena.KindSelfJoin {
			t.Errorf("expected kind self_join, got %s", kind)
		}
	}
}

func TestJoinBattle_NotFound(t *testing.T) {
	env := newTestEnv(t, nil, nil)

	w := env.do(t, "POST", "/api/v1/battles/nothing/join", arena.JoinBattleRequest{
		Account: "bob",
		Fighter: "WIF",
	})
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
	if kind := errKind(w); kind != arena.KindNotFound {
		t.Errorf("expected kind not_found, got %s", kind)
	}
}

func TestJoinBattle_AlreadyActive(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	b := env.createBattle(t, "alice", "BONK", 0.5)

	env.do(t, "POST", "/api/v1/battles/"+b.ID+"/join", arena.JoinBattleRequest{
		Account: "bob", Fighter: "WIF",
	})

	w := env.do(t, "POST", "/api/v1/battles/"+b.ID+"/join", arena.JoinBattleRequest{
		Account: "carol", Fighter: "PEPE",
	})
	if w.Code != http.StatusConflict {
		t.Errorf("expected 409, got %d", w.Code)
	}
	if kind := errKind(w); kind != arena.KindInvalidTransition {
		t.Errorf("expected kind invalid_transition, got %s", kind)
	}

	// The first joiner's state survives.
	stored, _ := env.store.GetBattle(context.Background(), b.ID)
	if stored.Opponent != "bob" {
		t.Errorf("opponent must stay bob, got %s", stored.Opponent)
	}
}

func TestJoinBattle_ConcurrentJoinsExactlyOneWins(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	b := env.createBattle(t, "alice", "BONK", 0.5)

	const joiners = 8
	codes := make([]int, joiners)
	var wg sync.WaitGroup
	for i := 0; i < joiners; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			w := env.do(t, "POST", "/api/v1/battles/"+b.ID+"/join", arena.JoinBattleRequest{
				Account: fmt.Sprintf("joiner-%d", i),
				Fighter: "WIF",
			})
			codes[i] = w.Code
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, code := range codes {
		switch code {
		case http.StatusOK:
			wins++
		case http.StatusConflict:
		default:
			t.Errorf("unexpected status %d", code)
		}
	}
	if wins != 1 {
		t.Errorf("exactly one join must succeed, got %d", wins)
	}

	stored, _ := env.store.GetBattle(context.Background(), b.ID)
	if stored.Status != model.StatusActive {
		t.Errorf("expected active, got %s", stored.Status)
	}
}

// --- Resolve ---

func TestResolveBattle_CompletesAndPaysOut(t *testing.T) {
	env := newTestEnv(t, func() float64 { return 0.1 }, nil)
	b := env.createBattle(t, "alice", "BONK", 1.0)
	env.do(t, "POST", "/api/v1/battles/"+b.ID+"/join", arena.JoinBattleRequest{
		Account: "bob", Fighter: "WIF",
	})

	w := env.do(t, "POST", "/api/v1/battles/"+b.ID+"/resolve", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resolved model.Battle
	json.Unmarshal(w.Body.Bytes(), &resolved)
	if resolved.Status != model.StatusCompleted {
		t.Errorf("expected completed, got %s", resolved.Status)
	}
	if resolved.Winner != model.SideA || resolved.WinnerAccount != "alice" {
		t.Errorf("expected creator win, got %s/%s", resolved.Winner, resolved.WinnerAccount)
	}
	if !resolved.Payout.Equal(d(1.94)) {
		t.Errorf("expected payout 1.94, got %s", resolved.Payout)
	}
	if resolved.ResolvedAt == nil {
		t.Error("expected resolved_at to be set")
	}
}

func TestResolveBattle_WaitingRejected(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	b := env.createBattle(t, "alice", "BONK", 1.0)

	w := env.do(t, "POST", "/api/v1/battles/"+b.ID+"/resolve", nil)
	if w.Code != http.StatusConflict {
		t.Errorf("expected 409, got %d", w.Code)
	}
	if kind := errKind(w); kind != arena.KindInvalidTransition {
		t.Errorf("expected kind invalid_transition, got %s", kind)
	}
}

func TestResolveBattle_SecondResolveRejected(t *testing.T) {
	env := newTestEnv(t, func() float64 { return 0.1 }, nil)
	b := env.createBattle(t, "alice", "BONK", 1.0)
	env.do(t, "POST", "/api/v1/battles/"+b.ID+"/join", arena.JoinBattleRequest{
		Account: "bob", Fighter: "WIF",
	})
	env.do(t, "POST", "/api/v1/battles/"+b.ID+"/resolve", nil)

	w := env.do(t, "POST", "/api/v1/battles/"+b.ID+"/resolve", nil)
	if w.Code != http.StatusConflict {
		t.Errorf("expected 409 on second resolve, got %d", w.Code)
	}

	// Each settlement delivers exactly one win and one loss.
	records, _ := env.store.ListPlayerRecords(context.Background())
	total := 0
	for _, r := range records {
		total += r.Wins + r.Losses
	}
	if total != 2 {
		t.Errorf("wins+losses should be 2 after one settlement, got %d", total)
	}
}

func TestResolveBattle_NotFound(t *testing.T) {
	env := newTestEnv(t, nil, nil)

	w := env.do(t, "POST", "/api/v1/battles/nothing/resolve", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}

// --- Cancel ---

func TestCancelBattle_CreatorOnly(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	b := env.createBattle(t, "alice", "BONK", 1.0)

	w := env.do(t, "DELETE", "/api/v1/battles/"+b.ID, arena.CancelBattleRequest{Account: "bob"})
	if w.Code != http.StatusConflict {
		t.Errorf("expected 409 for non-creator, got %d", w.Code)
	}

	w = env.do(t, "DELETE", "/api/v1/battles/"+b.ID, arena.CancelBattleRequest{Account: "alice"})
	if w.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d: %s", w.Code, w.Body.String())
	}

	if w := env.do(t, "GET", "/api/v1/battles/"+b.ID, nil); w.Code != http.StatusNotFound {
		t.Errorf("cancelled battle should be gone, got %d", w.Code)
	}
}

func TestCancelBattle_ActiveRejected(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	b := env.createBattle(t, "alice", "BONK", 1.0)
	env.do(t, "POST", "/api/v1/battles/"+b.ID+"/join", arena.JoinBattleRequest{
		Account: "bob", Fighter: "WIF",
	})

	w := env.do(t, "DELETE", "/api/v1/battles/"+b.ID, arena.CancelBattleRequest{Account: "alice"})
	if w.Code != http.StatusConflict {
		t.Errorf("expected 409 for active battle, got %d", w.Code)
	}
	if kind := errKind(w); kind != arena.KindInvalidTransition {
		t.Errorf("expected kind invalid_transition, got %s", kind)
	}
}

// --- Queries ---

func TestListOpenBattles_ExcludesCompleted(t *testing.T) {
	env := newTestEnv(t, func() float64 { return 0.1 }, nil)

	waiting := env.createBattle(t, "alice", "BONK", 1.0)
	active := env.createBattle(t, "bob", "WIF", 1.0)
	env.do(t, "POST", "/api/v1/battles/"+active.ID+"/join", arena.JoinBattleRequest{
		Account: "carol", Fighter: "PEPE",
	})
	done := env.createBattle(t, "dave", "MEW", 1.0)
	env.do(t, "POST", "/api/v1/battles/"+done.ID+"/join", arena.JoinBattleRequest{
		Account: "erin", Fighter: "BRETT",
	})
	env.do(t, "POST", "/api/v1/battles/"+done.ID+"/resolve", nil)

	w := env.do(t, "GET", "/api/v1/battles/open", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var open []model.Battle
	json.Unmarshal(w.Body.Bytes(), &open)
	if len(open) != 2 {
		t.Fatalf("expected 2 open battles, got %d", len(open))
	}
	// Ordered by creation time ascending.
	if open[0].ID != waiting.ID || open[1].ID != active.ID {
		t.Errorf("unexpected order: %s, %s", open[0].ID, open[1].ID)
	}
}

func TestListBattles_StatusFilter(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	env.createBattle(t, "alice", "BONK", 1.0)
	b := env.createBattle(t, "bob", "WIF", 1.0)
	env.do(t, "POST", "/api/v1/battles/"+b.ID+"/join", arena.JoinBattleRequest{
		Account: "carol", Fighter: "PEPE",
	})

	w := env.do(t, "GET", "/api/v1/battles?status=waiting", nil)
	var battles []model.Battle
	json.Unmarshal(w.Body.Bytes(), &battles)
	if len(battles) != 1 || battles[0].Status != model.StatusWaiting {
		t.Errorf("expected 1 waiting battle, got %+v", battles)
	}
}

func TestStats_DerivedFromLedger(t *testing.T) {
	env := newTestEnv(t, func() float64 { return 0.1 }, nil)

	env.createBattle(t, "alice", "BONK", 1.0)
	b := env.createBattle(t, "bob", "WIF", 0.5)
	env.do(t, "POST", "/api/v1/battles/"+b.ID+"/join", arena.JoinBattleRequest{
		Account: "carol", Fighter: "PEPE",
	})
	env.do(t, "POST", "/api/v1/battles/"+b.ID+"/resolve", nil)

	w := env.do(t, "GET", "/api/v1/stats", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var stats model.Stats
	json.Unmarshal(w.Body.Bytes(), &stats)

	if stats.TotalBattles != 2 {
		t.Errorf("expected 2 total battles, got %d", stats.TotalBattles)
	}
	if stats.ActiveBattles != 1 {
		t.Errorf("expected 1 active battle, got %d", stats.ActiveBattles)
	}
	// Volume: 1.0*2 + 0.5*2 = 3; treasury: 3 * 0.03 = 0.09.
	if !stats.TotalVolume.Equal(d(3)) {
		t.Errorf("expected volume 3, got %s", stats.TotalVolume)
	}
	if !stats.Treasury.Equal(d(0.09)) {
		t.Errorf("expected treasury 0.09, got %s", stats.Treasury)
	}
	if stats.TotalPlayers != 2 {
		t.Errorf("expected 2 players, got %d", stats.TotalPlayers)
	}
}

func TestFighters_RosterServed(t *testing.T) {
	env := newTestEnv(t, nil, nil)

	w := env.do(t, "GET", "/api/v1/fighters", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var roster []struct {
		Symbol string `json:"symbol"`
		Name   string `json:"name"`
	}
	json.Unmarshal(w.Body.Bytes(), &roster)
	if len(roster) == 0 {
		t.Error("expected non-empty roster")
	}
}

// --- Limits ---

func TestCreateBattle_OpenBattleLimit(t *testing.T) {
	limiter := limit.NewStakeLimiter(2, decimal.Zero)
	env := newTestEnv(t, nil, limiter)

	env.createBattle(t, "alice", "BONK", 1.0)
	env.createBattle(t, "alice", "BONK", 1.0)

	w := env.do(t, "POST", "/api/v1/battles", arena.CreateBattleRequest{
		Account: "alice", Fighter: "BONK", Wager: d(1),
	})
	if w.Code != http.StatusConflict {
		t.Errorf("expected 409, got %d: %s", w.Code, w.Body.String())
	}
	if kind := errKind(w); kind != arena.KindLimitExceeded {
		t.Errorf("expected kind limit_exceeded, got %s", kind)
	}

	// A different account is unaffected.
	env.createBattle(t, "bob", "WIF", 1.0)
}

func TestJoinBattle_StakeLimit(t *testing.T) {
	limiter := limit.NewStakeLimiter(0, d(1))
	env := newTestEnv(t, nil, limiter)

	b1 := env.createBattle(t, "alice", "BONK", 0.8)
	b2 := env.createBattle(t, "bob", "WIF", 0.5)

	w := env.do(t, "POST", "/api/v1/battles/"+b1.ID+"/join", arena.JoinBattleRequest{
		Account: "carol", Fighter: "PEPE",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("first join should pass: %d %s", w.Code, w.Body.String())
	}

	// carol already has 0.8 at risk; 0.5 more exceeds the 1.0 cap.
	w = env.do(t, "POST", "/api/v1/battles/"+b2.ID+"/join", arena.JoinBattleRequest{
		Account: "carol", Fighter: "PEPE",
	})
	if w.Code != http.StatusConflict {
		t.Errorf("expected 409, got %d", w.Code)
	}
}

// --- End to end ---

func TestEndToEnd_SettlementFlow(t *testing.T) {
	env := newTestEnv(t, func() float64 { return 0.9 }, nil) // opponent wins

	b := env.createBattle(t, "alice", "BONK", 0.5)

	w := env.do(t, "POST", "/api/v1/battles/"+b.ID+"/join", arena.JoinBattleRequest{
		Account: "bob", Fighter: "WIF",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("join failed: %d", w.Code)
	}
	var active model.Battle
	json.Unmarshal(w.Body.Bytes(), &active)
	if active.Status != model.StatusActive || active.FighterA == "" || active.FighterB == "" {
		t.Fatalf("expected active battle with both fighters, got %+v", active)
	}

	w = env.do(t, "POST", "/api/v1/battles/"+b.ID+"/resolve", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("resolve failed: %d %s", w.Code, w.Body.String())
	}

	// 0.5 * 2 * 0.97 = 0.97 to bob.
	w = env.do(t, "GET", "/api/v1/leaderboard", nil)
	var board []model.LeaderboardEntry
	json.Unmarshal(w.Body.Bytes(), &board)
	if len(board) != 2 {
		t.Fatalf("expected 2 leaderboard entries, got %d", len(board))
	}

	if board[0].Account != "bob" || board[0].Wins != 1 || board[0].Losses != 0 {
		t.Errorf("unexpected winner row: %+v", board[0])
	}
	if !board[0].Earned.Equal(d(0.97)) {
		t.Errorf("expected bob earned 0.97, got %s", board[0].Earned)
	}
	if board[1].Account != "alice" || board[1].Wins != 0 || board[1].Losses != 1 {
		t.Errorf("unexpected loser row: %+v", board[1])
	}
	if !board[1].Earned.IsZero() {
		t.Errorf("expected alice earned 0, got %s", board[1].Earned)
	}
}
