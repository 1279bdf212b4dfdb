package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"acquisition_backend/internal/adapters"
	"acquisition_backend/internal/agent"
	"acquisition_backend/internal/approval"
	"acquisition_backend/internal/calendar"
	"acquisition_backend/internal/email"
	"acquisition_backend/internal/events"
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

// The worker process owns everything that runs without a request: the
// orchestrator loop, the asynq timers, inbox polling, and approval row
// retention. The api process owns the HTTP surface.
func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting worker", "env", cfg.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

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

	eventBus := events.NewInMemoryBus(log)

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

	// The gate notifier subscribes here: approval requests originate from
	// workflow steps, and those run in this process. Routes are never
	// registered; the HTTP surface belongs to the api process.
	approvalStore := approval.NewPostgresStore(pool)
	approvalModule := approval.NewModule(approvalStore, eventBus, cfg, sender, log)
	leadsModule := leads.NewModule(pool, redisClient, eventBus, approvalModule.Service,
		scoring, outreach, scheduling, analytics, transcripts, cfg, log)

	schedClient, err := scheduler.NewClient(cfg)
	if err != nil {
		log.Error("failed to initialize scheduler client", "error", err)
		panic("failed to initialize scheduler client: " + err.Error())
	}
	defer func() { _ = schedClient.Close() }()

	relay := scheduler.NewEventRelay(schedClient, repo, policy, log)
	relay.SubscribeDeadlines(eventBus)

	cleanupInterval := getDurationEnv("APPROVAL_CLEANUP_INTERVAL", time.Hour)
	resolvedRetention := time.Duration(getPositiveIntEnv("APPROVAL_RESOLVED_RETENTION_DAYS", 30)) * 24 * time.Hour
	retention := scheduler.NewApprovalRetention(approvalStore, log, cleanupInterval, resolvedRetention)
	go retention.Run(ctx)

	go leadsModule.Orchestrator.Run(ctx)

	worker, err := scheduler.NewWorker(cfg, schedClient, leadsModule.Workflow, repo, eventBus, log)
	if err != nil {
		log.Error("failed to initialize scheduler worker", "error", err)
		panic("failed to initialize scheduler worker: " + err.Error())
	}

	worker.Run(ctx)
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

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return errors.New(name + ": invalid retry attempts")
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

func getPositiveIntEnv(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}

	parsed, err := strconv.Atoi(raw)
	if err != nil || parsed <= 0 {
		return fallback
	}

	return parsed
}

func getDurationEnv(key string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}

	parsed, err := time.ParseDuration(raw)
	if err != nil || parsed <= 0 {
		return fallback
	}

	return parsed
}
