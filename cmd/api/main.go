package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"acquisition_backend/internal/adapters"
	"acquisition_backend/internal/agent"
	"acquisition_backend/internal/approval"
	"acquisition_backend/internal/calendar"
	"acquisition_backend/internal/email"
	"acquisition_backend/internal/events"
	apphttp "acquisition_backend/internal/http"
	"acquisition_backend/internal/http/router"
	"acquisition_backend/internal/idempotency"
	"acquisition_backend/internal/leads"
	"acquisition_backend/internal/leads/repository"
	"acquisition_backend/internal/scheduler"
	"acquisition_backend/internal/storage"
	"acquisition_backend/platform/config"
	"acquisition_backend/platform/db"
	"acquisition_backend/platform/logger"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	// Initialize structured logger
	log := logger.New(cfg.Env)
	log.Info("starting api server", "env", cfg.Env, "addr", cfg.HTTPAddr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ========================================================================
	// Infrastructure Layer
	// ========================================================================

	if err := withRetry(ctx, log, "database migrations", 5, 2*time.Second, func() error {
		return db.RunMigrations(ctx, cfg, cfg.MigrationsDir)
	}); err != nil {
		log.Error("failed to run database migrations", "error", err)
		panic("failed to run database migrations: " + err.Error())
	}
	log.Info("database migrations complete")

	var pool *pgxpool.Pool
	if err := withRetry(ctx, log, "database connection", 5, 2*time.Second, func() error {
		p, err := db.NewPool(ctx, cfg)
		if err != nil {
			return err
		}
		pool = p
		return nil
	}); err != nil {
		log.Error("failed to connect to database", "error", err)
		panic("failed to connect to database: " + err.Error())
	}
	defer pool.Close()
	log.Info("database connection established")

	// Event bus for decoupled communication between modules
	eventBus := events.NewInMemoryBus(log)

	// Redis backs the send idempotency guard and the inbox poll cursor.
	// Both degrade gracefully without it, so a missing URL is a warning.
	var redisClient *redis.Client
	if cfg.GetRedisURL() != "" {
		rc, err := idempotency.NewClient(cfg.GetRedisURL())
		if err != nil {
			log.Error("failed to initialize redis client", "error", err)
		} else {
			redisClient = rc
			defer func() { _ = redisClient.Close() }()
		}
	} else {
		log.Warn("REDIS_URL not configured; idempotency guard and poll cursor disabled")
	}

	var sender email.Sender
	if cfg.GetEmailEnabled() {
		sender = email.NewSMTPSender(cfg)
	} else {
		log.Warn("email delivery disabled; outbound mail will be logged only")
		sender = email.NewNoopSender(log)
	}

	var inbox *email.IMAPPoller
	if cfg.IsIMAPEnabled() {
		inbox = email.NewIMAPPoller(cfg, log)
	} else {
		log.Warn("IMAP not configured; reply polling disabled")
	}

	transcripts := initTranscriptStore(ctx, cfg, log)

	// ========================================================================
	// Agents and Port Adapters
	// ========================================================================

	scorer, err := agent.NewScorer(cfg, log)
	if err != nil {
		log.Error("failed to initialize scoring agent", "error", err)
		panic("failed to initialize scoring agent: " + err.Error())
	}
	drafter, err := agent.NewDrafter(cfg, cfg.GetEmailFromName(), log)
	if err != nil {
		log.Error("failed to initialize drafting agent", "error", err)
		panic("failed to initialize drafting agent: " + err.Error())
	}
	slotExtractor, err := agent.NewSlotExtractor(cfg, log)
	if err != nil {
		log.Error("failed to initialize slot extraction agent", "error", err)
		panic("failed to initialize slot extraction agent: " + err.Error())
	}
	analyst, err := agent.NewAnalyst(cfg, log)
	if err != nil {
		log.Error("failed to initialize analyst agent", "error", err)
		panic("failed to initialize analyst agent: " + err.Error())
	}

	repo := repository.New(pool)
	policy := cfg.GetWorkflowPolicy()

	scoring := adapters.NewScoringAdapter(scorer, log)
	outreach := adapters.NewOutreachAdapter(drafter, sender, inbox, repo, log)
	scheduling := adapters.NewSchedulingAdapter(slotExtractor, calendar.New(cfg, log), sender, policy, log)
	analytics := adapters.NewAnalyticsAdapter(transcripts, analyst, log)

	// ========================================================================
	// Domain Modules (Composition Root)
	// ========================================================================

	approvalModule := approval.NewModule(approval.NewPostgresStore(pool), eventBus, cfg, sender, log)
	leadsModule := leads.NewModule(pool, redisClient, eventBus, approvalModule.Service,
		scoring, outreach, scheduling, analytics, transcripts, cfg, log)

	// Bridge local events onto the task queue so the worker process sees
	// transcript uploads and gate decisions taken over HTTP.
	schedClient, closeScheduler := initScheduler(cfg, log)
	if closeScheduler != nil {
		defer closeScheduler()
	}
	relay := scheduler.NewEventRelay(schedClient, repo, policy, log)
	relay.SubscribeHandoffs(eventBus)

	// ========================================================================
	// HTTP Layer
	// ========================================================================

	app := &apphttp.App{
		Config:   cfg,
		Logger:   log,
		Health:   db.NewPoolAdapter(pool),
		EventBus: eventBus,
		Modules: []apphttp.Module{
			approvalModule,
			leadsModule,
		},
	}

	engine := router.New(app)

	srvErr := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", cfg.HTTPAddr)
		srvErr <- engine.Run(cfg.HTTPAddr)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received, gracefully shutting down")
	case err := <-srvErr:
		if err != nil {
			log.Error("server error", "error", err)
			panic("server error: " + err.Error())
		}
	}
}

// initTranscriptStore picks MinIO when configured and falls back to the
// in-memory store, which does not survive restarts.
func initTranscriptStore(ctx context.Context, cfg *config.Config, log *logger.Logger) storage.TranscriptStore {
	if !cfg.IsMinIOEnabled() {
		log.Warn("MinIO not configured; transcripts stored in memory only")
		return storage.NewMemoryStore()
	}

	store, err := storage.NewMinIOStore(cfg)
	if err != nil {
		log.Error("failed to initialize transcript storage", "error", err)
		panic("failed to initialize transcript storage: " + err.Error())
	}
	if err := withRetry(ctx, log, "ensure transcripts bucket", 5, 2*time.Second, func() error {
		return store.EnsureBucket(ctx)
	}); err != nil {
		log.Error("failed to ensure transcripts bucket exists", "error", err)
		panic("failed to ensure transcripts bucket exists: " + err.Error())
	}
	log.Info("transcript storage initialized", "bucket", cfg.GetMinIOBucketTranscripts())
	return store
}

func initScheduler(cfg config.SchedulerConfig, log *logger.Logger) (*scheduler.Client, func()) {
	if cfg.GetRedisURL() == "" {
		log.Warn("REDIS_URL not configured; worker handoffs disabled")
		return nil, nil
	}

	client, err := scheduler.NewClient(cfg)
	if err != nil {
		log.Error("failed to initialize scheduler client", "error", err)
		return nil, nil
	}

	return client, func() {
		_ = client.Close()
	}
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return fmt.Errorf("%s: invalid retry attempts", name)
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
			log.Warn("retryable operation failed", "operation", name, "attempt", attempt, "error", err)
		}

		if attempt < attempts {
			delay := time.Duration(attempt*attempt) * baseDelay
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return errors.New(name + ": " + lastErr.Error())
}
