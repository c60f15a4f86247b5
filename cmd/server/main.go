package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/studyable/studyhub/internal/aicache"
	"github.com/studyable/studyhub/internal/annotation"
	"github.com/studyable/studyhub/internal/content"
	"github.com/studyable/studyhub/internal/notify"
	"github.com/studyable/studyhub/internal/platform/cache"
	"github.com/studyable/studyhub/internal/platform/config"
	"github.com/studyable/studyhub/internal/platform/database"
	"github.com/studyable/studyhub/internal/quiz"
	"github.com/studyable/studyhub/internal/version"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	setupLogger(cfg.Log)

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	// Graceful shutdown on SIGTERM/SIGINT.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	db, err := database.New(ctx, cfg.Database.URL, cfg.Database.MaxConns, cfg.Database.MinConns)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := database.Migrate(db.Pool); err != nil {
		slog.Error("failed to migrate database", "error", err)
		os.Exit(1)
	}

	redisCache, err := cache.New(ctx, cfg.Cache.URL)
	if err != nil {
		slog.Error("failed to connect to cache", "error", err)
		os.Exit(1)
	}
	defer redisCache.Close()

	registry := content.NewRegistry(
		content.NewPostgresStore(db.Pool),
		content.NewPostgresMembership(db.Pool),
	)

	hub := notify.NewHub()
	unread := notify.NewUnreadCache(redisCache.Client)
	notifyStore := notify.NewPostgresStore(db.Pool)
	dispatcher := notify.NewDispatcher(notify.DispatcherConfig{
		Store:      notifyStore,
		Hub:        hub,
		Unread:     unread,
		QueueSize:  cfg.Notify.QueueSize,
		MaxRetries: uint64(cfg.Notify.MaxRetries),
	})
	go dispatcher.Run(ctx)

	notifications := notify.NewService(notifyStore, unread)

	users := annotation.NewPostgresUsers(db.Pool)
	annotations := annotation.NewService(
		annotation.NewPostgresStore(db.Pool),
		registry,
		users,
		dispatcher,
	)

	versions, err := version.NewEngine(registry, version.NewPostgresStore(db.Pool))
	if err != nil {
		slog.Error("failed to build version engine", "error", err)
		os.Exit(1)
	}

	quizStore := quiz.NewPostgresStore(db.Pool)
	quizzes := quiz.NewEngine(quiz.EngineConfig{
		Store:   quizStore,
		Events:  dispatcher,
		Timeout: cfg.Quiz.SessionTimeout,
		Policy:  quiz.SessionPolicy(cfg.Quiz.SessionPolicy),
	})

	if cfg.QuizBankPath != "" {
		if err := seedQuizBank(ctx, db, quizStore, cfg.QuizBankPath); err != nil {
			slog.Error("failed to seed quiz bank", "error", err, "path", cfg.QuizBankPath)
			os.Exit(1)
		}
	}

	aiResults := aicache.NewCache(aicache.NewPostgresStore(db.Pool), redisCache.Client)

	go runSweeper(ctx, quizzes, cfg.Quiz.SweepInterval)
	go runReconciler(ctx, annotations)

	mux := newMux(db, redisCache, hub, &api{
		annotations:   annotations,
		versions:      versions,
		quizzes:       quizzes,
		notifications: notifications,
		aiResults:     aiResults,
		users:         users,
	})

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
	}
}

func setupLogger(cfg config.LogConfig) {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}

// seedQuizBank loads the YAML quiz bank and seeds it into an empty
// database under a system account. A database that already has quizzes
// is left alone.
func seedQuizBank(ctx context.Context, db *database.DB, store quiz.Store, path string) error {
	bank, err := quiz.NewBank(path)
	if err != nil {
		return err
	}

	var existing int64
	if err := db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM mcq_quiz`).Scan(&existing); err != nil {
		return fmt.Errorf("counting quizzes: %w", err)
	}
	if existing > 0 {
		slog.Info("quiz bank skipped", "existing_quizzes", existing)
		return nil
	}

	var ownerID int64
	err = db.Pool.QueryRow(ctx,
		`INSERT INTO app_user (username, email, display_name)
		 VALUES ('system', 'system@localhost', 'System')
		 ON CONFLICT (username) DO UPDATE SET username = EXCLUDED.username
		 RETURNING id`).Scan(&ownerID)
	if err != nil {
		return fmt.Errorf("ensuring system user: %w", err)
	}

	seeded, err := bank.Seed(ctx, store, ownerID)
	if err != nil {
		return err
	}
	slog.Info("quiz bank seeded", "quizzes", seeded)
	return nil
}

// runSweeper expires overdue quiz sessions on a fixed interval.
func runSweeper(ctx context.Context, engine *quiz.Engine, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := engine.Sweep(ctx); err != nil {
				slog.Warn("session sweep failed", "error", err)
			}
		}
	}
}

// runReconciler recomputes comment counters from live rows once an hour.
func runReconciler(ctx context.Context, svc *annotation.Service) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := svc.ReconcileCommentCounts(ctx); err != nil {
				slog.Warn("comment count reconciliation failed", "error", err)
			}
		}
	}
}

// newMux creates the HTTP router with health checks and the live
// notification feed.
func newMux(db *database.DB, c *cache.Cache, hub *notify.Hub, a *api) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handleHealthz)
	mux.HandleFunc("GET /readyz", handleReadyz(db, c))
	mux.Handle("GET /ws/notifications", hub)
	a.register(mux)
	return mux
}

func handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

func handleReadyz(db *database.DB, c *cache.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		if err := db.HealthCheck(ctx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"unavailable","reason":"database"}`))
			return
		}
		if err := c.HealthCheck(ctx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"unavailable","reason":"cache"}`))
			return
		}

		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ready"}`))
	}
}
