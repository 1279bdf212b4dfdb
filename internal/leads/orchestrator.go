package leads

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"acquisition_backend/internal/events"
	"acquisition_backend/internal/leads/domain"
	"acquisition_backend/internal/leads/repository"
	"acquisition_backend/platform/apperr"
	"acquisition_backend/platform/config"
	"acquisition_backend/platform/logger"
)

// pollCursorKey stores the last inbox poll time in redis so a restarted
// process does not re-scan the whole mailbox window.
const pollCursorKey = "leads:poll_cursor"

// analyticsSweepInterval paces the recovery lane for transcripts whose
// queue handoff was lost. Slow on purpose; the task queue is the fast path.
const analyticsSweepInterval = time.Minute

// Orchestrator drives suspended workflow runs: a periodic tick re-evaluates
// every due run, a slower poll pulls inbound replies, and approval
// resolutions dispatch their lead immediately instead of waiting for the
// tick. All stage logic lives in the Workflow; the orchestrator only
// decides WHEN a lead is looked at.
type Orchestrator struct {
	workflow *Workflow
	store    repository.Store
	runs     repository.RunStore
	outreach OutreachPort
	bus      events.Bus
	redis    *redis.Client
	policy   config.Policy
	log      *logger.Logger

	// Idempotency protection: tracks leads with an in-flight dispatch so
	// the tick and the approval fast path never double-drive one lead.
	activeRuns map[uuid.UUID]bool
	runsMu     sync.Mutex

	now func() time.Time
}

// NewOrchestrator wires the run driver. The redis client may be nil; the
// poll cursor then falls back to the reply window on every restart.
func NewOrchestrator(
	workflow *Workflow,
	store repository.Store,
	runs repository.RunStore,
	outreach OutreachPort,
	bus events.Bus,
	redisClient *redis.Client,
	policy config.Policy,
	log *logger.Logger,
) *Orchestrator {
	return &Orchestrator{
		workflow:   workflow,
		store:      store,
		runs:       runs,
		outreach:   outreach,
		bus:        bus,
		redis:      redisClient,
		policy:     policy,
		log:        log.WithComponent("orchestrator"),
		activeRuns: make(map[uuid.UUID]bool),
		now:        time.Now,
	}
}

// Run subscribes the approval fast path and loops until the context ends.
func (o *Orchestrator) Run(ctx context.Context) {
	o.bus.Subscribe(events.ApprovalResolved{}.EventName(), events.HandlerFunc(func(hctx context.Context, e events.Event) error {
		evt, ok := e.(events.ApprovalResolved)
		if !ok {
			return nil
		}
		o.onApprovalResolved(hctx, evt)
		return nil
	}))

	tick := time.NewTicker(o.policy.TickInterval)
	defer tick.Stop()
	poll := time.NewTicker(o.policy.PollInterval)
	defer poll.Stop()
	analytics := time.NewTicker(analyticsSweepInterval)
	defer analytics.Stop()

	o.log.Info("orchestrator started",
		"tickInterval", o.policy.TickInterval,
		"pollInterval", o.policy.PollInterval,
		"batchLimit", o.policy.BatchLimit)

	for {
		select {
		case <-ctx.Done():
			o.log.Info("orchestrator stopped")
			return
		case <-tick.C:
			o.tick(ctx)
		case <-poll.C:
			o.pollReplies(ctx)
		case <-analytics.C:
			o.sweepAnalytics(ctx)
		}
	}
}

// tick is one full pass: repair the run table, abandon overdue reply
// waits, promote the scored pool, then dispatch every due run.
func (o *Orchestrator) tick(ctx context.Context) {
	runs := o.reconcileRuns(ctx)
	o.sweepReplyDeadlines(ctx, runs)

	if result, err := o.workflow.Shortlist(ctx); err != nil {
		o.log.Warn("shortlist pass failed", "error", err)
	} else if result.Promoted > 0 {
		o.log.Info("shortlist pass promoted leads",
			"considered", result.Considered,
			"eligible", result.Eligible,
			"promoted", result.Promoted)
	}

	o.dispatchDue(ctx, runs)
}

// reconcileRuns repairs the run table against the lead store: every
// non-terminal lead gets a run, and no run outlives its lead. Crash
// recovery falls out of this: whatever was lost mid-flight is rebuilt
// from committed lead state on the next tick.
func (o *Orchestrator) reconcileRuns(ctx context.Context) []*domain.WorkflowRun {
	runs, err := o.runs.ListRuns(ctx)
	if err != nil {
		o.log.Warn("failed to list workflow runs", "error", err)
		return nil
	}

	byLead := make(map[uuid.UUID]*domain.WorkflowRun, len(runs))
	for _, run := range runs {
		byLead[run.LeadID] = run
	}

	live := make(map[uuid.UUID]bool)
	for _, stage := range domain.AllStages() {
		if domain.IsTerminal(stage) {
			continue
		}
		leads, err := o.store.ListByStage(ctx, stage)
		if err != nil {
			o.log.Warn("failed to list leads for reconcile", "stage", stage, "error", err)
			continue
		}
		for _, lead := range leads {
			live[lead.ID] = true
			if _, ok := byLead[lead.ID]; ok {
				continue
			}
			run := domain.NewWorkflowRun(lead.ID, lead.Stage)
			if err := o.runs.SaveRun(ctx, run); err != nil {
				o.log.Warn("failed to recreate workflow run", "leadId", lead.ID, "error", err)
				continue
			}
			o.log.Info("recreated missing workflow run", "leadId", lead.ID, "stage", lead.Stage)
			byLead[lead.ID] = run
			runs = append(runs, run)
		}
	}

	alive := runs[:0]
	for _, run := range runs {
		if live[run.LeadID] {
			alive = append(alive, run)
			continue
		}
		if err := o.runs.DeleteRun(ctx, run.LeadID); err != nil && !errors.Is(err, repository.ErrRunNotFound) {
			o.log.Warn("failed to delete orphaned run", "leadId", run.LeadID, "error", err)
		}
	}
	return alive
}

// sweepReplyDeadlines abandons leads whose reply wait ran out. Reply-wait
// runs are never dispatched (nothing to do until mail arrives), so the
// sweep is the tick-side enforcement of the reply deadline. The lead store
// is consulted alongside the run table: after a crash the rebuilt run has
// no deadline yet, but an awaiting-reply lead past its send window is
// overdue regardless.
func (o *Orchestrator) sweepReplyDeadlines(ctx context.Context, runs []*domain.WorkflowRun) {
	now := o.now()

	overdue := make(map[uuid.UUID]bool)
	for _, run := range runs {
		if run.Pending.Type != domain.ActionReplyWait || run.Pending.Deadline == nil {
			continue
		}
		if now.After(*run.Pending.Deadline) {
			overdue[run.LeadID] = true
		}
	}

	stale, err := o.store.ListReplyOverdue(ctx, now.Add(-o.policy.ReplyMaxWait))
	if err != nil {
		o.log.Warn("failed to list overdue leads", "error", err)
	}
	for _, lead := range stale {
		overdue[lead.ID] = true
	}

	for leadID := range overdue {
		if !o.markRunning(leadID) {
			continue
		}

		_, err := o.workflow.Abandon(ctx, leadID, "no reply within the configured wait")
		o.markComplete(leadID)
		if err != nil {
			var ae *apperr.Error
			if errors.As(err, &ae) && (ae.Kind == apperr.KindConflict || ae.Kind == apperr.KindNotFound) {
				// The lead moved or vanished since the snapshot; the
				// reconcile pass cleans the run up.
				continue
			}
			o.log.Warn("failed to abandon overdue lead", "leadId", leadID, "error", err)
			continue
		}

		o.log.Info("abandoned lead after reply deadline", "leadId", leadID)
		if err := o.runs.DeleteRun(ctx, leadID); err != nil && !errors.Is(err, repository.ErrRunNotFound) {
			o.log.Warn("failed to close abandoned run", "leadId", leadID, "error", err)
		}
	}
}

// dispatchDue advances every due run, at most BatchLimit leads at a time.
func (o *Orchestrator) dispatchDue(ctx context.Context, runs []*domain.WorkflowRun) {
	now := o.now()
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.policy.BatchLimit)

	for _, run := range runs {
		if run.Pending.Type == domain.ActionReplyWait {
			// Reply waits resume on inbound mail or the deadline sweep,
			// never on the tick.
			continue
		}
		if !run.Due(now) {
			continue
		}
		run := run
		g.Go(func() error {
			o.dispatchRun(gctx, run)
			return nil
		})
	}
	_ = g.Wait()
}

// dispatchRun steps one lead until it stops making progress, then records
// the new suspension on its run.
func (o *Orchestrator) dispatchRun(ctx context.Context, run *domain.WorkflowRun) {
	if !o.markRunning(run.LeadID) {
		return
	}
	defer o.markComplete(run.LeadID)

	for {
		result, err := o.workflow.Advance(ctx, run.LeadID)
		if err != nil {
			var ae *apperr.Error
			switch {
			case errors.As(err, &ae) && ae.Kind == apperr.KindConflict:
				// Lost a version race; the next tick re-reads fresh state.
				o.log.Debug("dispatch lost a version race", "leadId", run.LeadID)
			case errors.As(err, &ae) && ae.Kind == apperr.KindNotFound:
				if derr := o.runs.DeleteRun(ctx, run.LeadID); derr != nil && !errors.Is(derr, repository.ErrRunNotFound) {
					o.log.Warn("failed to delete run for missing lead", "leadId", run.LeadID, "error", derr)
				}
			default:
				o.log.Error("dispatch failed", "leadId", run.LeadID, "error", err)
			}
			return
		}

		switch result.Outcome {
		case OutcomeTerminal:
			if err := o.runs.DeleteRun(ctx, run.LeadID); err != nil && !errors.Is(err, repository.ErrRunNotFound) {
				o.log.Warn("failed to close finished run", "leadId", run.LeadID, "error", err)
			}
			return
		case OutcomeSuspended:
			run.Stage = result.Lead.Stage
			run.Suspend(result.Pending)
			if err := o.runs.SaveRun(ctx, run); err != nil {
				o.log.Warn("failed to save suspended run", "leadId", run.LeadID, "error", err)
			}
			return
		case OutcomeAdvanced:
			run.Resume(result.Lead.Stage)
			if err := o.runs.SaveRun(ctx, run); err != nil {
				o.log.Warn("failed to save advanced run", "leadId", run.LeadID, "error", err)
			}
			// Keep stepping while the lead makes progress.
		default:
			if run.Stage != result.Lead.Stage {
				run.Resume(result.Lead.Stage)
				if err := o.runs.SaveRun(ctx, run); err != nil {
					o.log.Warn("failed to save parked run", "leadId", run.LeadID, "error", err)
				}
			}
			return
		}
	}
}

// onApprovalResolved dispatches the decided lead right away. The workflow
// re-reads the decision from the approval store, so a stale or duplicate
// event is harmless.
func (o *Orchestrator) onApprovalResolved(ctx context.Context, evt events.ApprovalResolved) {
	o.log.Info("approval resolved, dispatching lead",
		"leadId", evt.LeadID,
		"stage", evt.Stage,
		"approved", evt.Approved)

	run, err := o.runs.GetRun(ctx, evt.LeadID)
	if err != nil {
		if !errors.Is(err, repository.ErrRunNotFound) {
			o.log.Warn("failed to load run for resolved approval", "leadId", evt.LeadID, "error", err)
		}
		// No run yet; the next tick reconciles and dispatches.
		return
	}
	o.dispatchRun(ctx, run)
}

// pollReplies pulls inbound mail and feeds it to the workflow. Replies the
// lead cannot take (already terminal, or not yet sent) are acked anyway so
// one bad message cannot wedge the poll; transient failures stay unacked
// and come back next cycle.
func (o *Orchestrator) pollReplies(ctx context.Context) {
	cycleStart := o.now().UTC()
	replies, err := o.outreach.PollReplies(ctx, o.pollCursor(ctx))
	if err != nil {
		o.log.Warn("reply poll failed", "error", err)
		return
	}

	var acked []string
	for _, reply := range replies {
		err := o.workflow.HandleReply(ctx, reply.LeadID, reply.Text)
		if err == nil {
			o.resumeAfterReply(ctx, reply.LeadID)
			acked = append(acked, reply.Token)
			continue
		}

		var ae *apperr.Error
		if errors.As(err, &ae) && (ae.Kind == apperr.KindConflict || ae.Kind == apperr.KindNotFound) {
			o.log.Info("dropping reply the lead cannot take",
				"leadId", reply.LeadID,
				"reason", err.Error())
			acked = append(acked, reply.Token)
			continue
		}
		o.log.Warn("failed to handle reply, leaving unacked", "leadId", reply.LeadID, "error", err)
	}

	if len(acked) > 0 {
		if err := o.outreach.AckReplies(ctx, acked...); err != nil {
			o.log.Warn("failed to ack replies", "error", err)
		}
	}
	o.savePollCursor(ctx, cycleStart)
}

// sweepAnalytics nudges leads whose transcript never made it onto the task
// queue, either because the queue was down or because the process died
// between the upload and the enqueue. The queue handoff is the fast path;
// this pass only guarantees the analysis eventually happens.
func (o *Orchestrator) sweepAnalytics(ctx context.Context) {
	leads, err := o.store.ListAnalyzable(ctx)
	if err != nil {
		o.log.Warn("failed to list analyzable leads", "error", err)
		return
	}

	for _, lead := range leads {
		if !o.markRunning(lead.ID) {
			continue
		}
		result, err := o.workflow.RunAnalytics(ctx, lead.ID)
		o.markComplete(lead.ID)
		if err != nil {
			var ae *apperr.Error
			if errors.As(err, &ae) && (ae.Kind == apperr.KindConflict || ae.Kind == apperr.KindNotFound) {
				continue
			}
			o.log.Warn("analytics sweep failed", "leadId", lead.ID, "error", err)
			continue
		}
		if result.Outcome == OutcomeTerminal {
			o.log.Info("recovered stranded transcript analysis", "leadId", lead.ID)
			if err := o.runs.DeleteRun(ctx, lead.ID); err != nil && !errors.Is(err, repository.ErrRunNotFound) {
				o.log.Warn("failed to close analyzed run", "leadId", lead.ID, "error", err)
			}
		}
	}
}

// resumeAfterReply clears the run's reply wait so the next tick schedules
// the lead.
func (o *Orchestrator) resumeAfterReply(ctx context.Context, leadID uuid.UUID) {
	run, err := o.runs.GetRun(ctx, leadID)
	if err != nil {
		if !errors.Is(err, repository.ErrRunNotFound) {
			o.log.Warn("failed to load run after reply", "leadId", leadID, "error", err)
		}
		return
	}
	run.Resume(domain.StageReplyReceived)
	if err := o.runs.SaveRun(ctx, run); err != nil {
		o.log.Warn("failed to resume run after reply", "leadId", leadID, "error", err)
	}
}

func (o *Orchestrator) pollCursor(ctx context.Context) time.Time {
	fallback := o.now().Add(-o.policy.ReplyMaxWait)
	if o.redis == nil {
		return fallback
	}

	val, err := o.redis.Get(ctx, pollCursorKey).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			o.log.Warn("failed to read poll cursor", "error", err)
		}
		return fallback
	}
	cursor, err := time.Parse(time.RFC3339, val)
	if err != nil {
		return fallback
	}
	return cursor
}

func (o *Orchestrator) savePollCursor(ctx context.Context, t time.Time) {
	if o.redis == nil {
		return
	}
	if err := o.redis.Set(ctx, pollCursorKey, t.Format(time.RFC3339), 0).Err(); err != nil {
		o.log.Warn("failed to save poll cursor", "error", err)
	}
}

// markRunning attempts to mark a lead dispatch as active. Returns true if
// successfully marked, false if already running.
func (o *Orchestrator) markRunning(leadID uuid.UUID) bool {
	o.runsMu.Lock()
	defer o.runsMu.Unlock()
	if o.activeRuns[leadID] {
		return false
	}
	o.activeRuns[leadID] = true
	return true
}

// markComplete removes the active dispatch marker.
func (o *Orchestrator) markComplete(leadID uuid.UUID) {
	o.runsMu.Lock()
	defer o.runsMu.Unlock()
	delete(o.activeRuns, leadID)
}
