package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/makimyys-afk/memearena-solana/internal/arena"
	"github.com/makimyys-afk/memearena-solana/internal/config"
	"github.com/makimyys-afk/memearena-solana/internal/leaderboard"
	"github.com/makimyys-afk/memearena-solana/internal/limit"
	"github.com/makimyys-afk/memearena-solana/internal/metrics"
	"github.com/makimyys-afk/memearena-solana/internal/settle"
	"github.com/makimyys-afk/memearena-solana/internal/store"
)

func main() {
	godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg := config.Load()

	// --- Initialize store ---
	var st store.Store
	var cleanup []func()

	if cfg.DatabaseURL != "" {
		pool, err := pgxpool.New(context.Background(), cfg.DatabaseURL)
		if err != nil {
			slog.Error("database connection failed", "err", err)
			os.Exit(1)
		}
		cleanup = append(cleanup, pool.Close)
		st = store.NewPostgresStore(pool)
		slog.Info("connected to PostgreSQL")

		// Wrap with Redis read-through cache if configured.
		if cfg.RedisURL != "" {
			opt, err := redis.ParseURL(cfg.RedisURL)
			if err != nil {
				slog.Error("invalid REDIS_URL", "err", err)
				os.Exit(1)
			}
			rdb := redis.NewClient(opt)
			cleanup = append(cleanup, func() { rdb.Close() })
			st = store.NewCachedStore(st, rdb, cfg.CacheTTL)
			slog.Info("Redis cache enabled")
		}
	} else {
		slog.Warn("DATABASE_URL not set, using in-memory store (data will not persist)")
		st = store.NewMemoryStore()
	}

	defer func() {
		for _, fn := range cleanup {
			fn()
		}
	}()

	// --- Engine components ---
	var limiter *limit.StakeLimiter
	if cfg.MaxOpenBattles > 0 || cfg.MaxStakeAtRisk.IsPositive() {
		limiter = limit.NewStakeLimiter(cfg.MaxOpenBattles, cfg.MaxStakeAtRisk)
	}

	resolver := settle.NewResolver(st, cfg.FeeRate, nil)
	projector := leaderboard.NewProjector(st)

	// --- WebSocket hub ---
	wsHub := arena.NewWSHub()
	go wsHub.Run()

	// --- Arena service ---
	arenaSvc := arena.NewService(st, resolver, projector, limiter, cfg.MinWager, wsHub)

	// --- HTTP router ---
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(metrics.Middleware)

	// CORS middleware for frontend cross-origin requests.
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","service":"battle-engine"}`))
	})

	// Prometheus metrics endpoint.
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// WebSocket endpoint for real-time battle events.
		r.Get("/ws", wsHub.HandleWS)

		// Battle lifecycle.
		r.Get("/battles", arenaSvc.ListBattles)
		r.Get("/battles/open", arenaSvc.ListOpenBattles)
		r.Post("/battles", arenaSvc.CreateBattle)
		r.Get("/battles/{battleID}", arenaSvc.GetBattle)
		r.Post("/battles/{battleID}/join", arenaSvc.JoinBattle)
		r.Post("/battles/{battleID}/resolve", arenaSvc.ResolveBattle)
		r.Delete("/battles/{battleID}", arenaSvc.CancelBattle)

		// Leaderboard and stats.
		r.Get("/leaderboard", arenaSvc.Leaderboard)
		r.Get("/stats", arenaSvc.Stats)
		r.Get("/fighters", arenaSvc.Fighters)
	})

	// --- Server ---
	srv := &http.Server{
		Addr:         cfg.Addr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("battle-engine listening", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	slog.Info("shutting down battle-engine...")
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("shutdown error", "err", err)
	}
	fmt.Println("battle-engine stopped")
}
