// Package leads is the customer-acquisition pipeline bounded context: the
// stage machine, its workflow engine, the orchestrator that drives
// suspended runs, and the operator HTTP surface.
package leads

import (
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"acquisition_backend/internal/approval"
	"acquisition_backend/internal/events"
	apphttp "acquisition_backend/internal/http"
	"acquisition_backend/internal/idempotency"
	"acquisition_backend/internal/leads/repository"
	"acquisition_backend/internal/storage"
	"acquisition_backend/platform/config"
	"acquisition_backend/platform/logger"
)

// Module is the leads bounded context implementing http.Module.
type Module struct {
	handler *Handler

	Service      *Service
	Workflow     *Workflow
	Orchestrator *Orchestrator
}

// NewModule wires the leads module. The four ports are passed in so the
// composition root decides which adapters back them; everything else is
// built here.
func NewModule(
	pool *pgxpool.Pool,
	redisClient *redis.Client,
	bus events.Bus,
	approvals *approval.Service,
	scoring ScoringPort,
	outreach OutreachPort,
	scheduling SchedulingPort,
	analytics AnalyticsPort,
	transcripts storage.TranscriptStore,
	cfg config.WorkflowConfig,
	log *logger.Logger,
) *Module {
	repo := repository.New(pool)
	policy := cfg.GetWorkflowPolicy()

	guard := idempotency.New(redisClient, policy.ReplyMaxWait, log)
	workflow := NewWorkflow(repo, approvals, scoring, outreach, scheduling, analytics, guard, bus, policy, log)
	svc := NewService(repo, repo, workflow, transcripts, bus, log)
	orch := NewOrchestrator(workflow, repo, repo, outreach, bus, redisClient, policy, log)

	return &Module{
		handler:      NewHandler(svc),
		Service:      svc,
		Workflow:     workflow,
		Orchestrator: orch,
	}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "leads"
}

// RegisterRoutes mounts lead routes on the provided router context. All
// lead routes require operator authentication.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	group := ctx.Protected.Group("/leads")
	m.handler.RegisterRoutes(group)
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
