package leads

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"acquisition_backend/internal/approval"
	"acquisition_backend/internal/events"
	"acquisition_backend/internal/idempotency"
	"acquisition_backend/internal/leads/domain"
	"acquisition_backend/internal/leads/repository"
	"acquisition_backend/platform/apperr"
	"acquisition_backend/platform/backoff"
	"acquisition_backend/platform/config"
	"acquisition_backend/platform/logger"
)

// Outcome says what a dispatch pass did with a lead.
type Outcome string

const (
	// OutcomeAdvanced means a transition committed and the lead can make
	// further progress on the next pass.
	OutcomeAdvanced Outcome = "advanced"
	// OutcomeSuspended means the lead is waiting on an external signal:
	// an approval, a reply, or a retry timer.
	OutcomeSuspended Outcome = "suspended"
	// OutcomeParked means nothing drives this stage per lead; another
	// process (the batch shortlist) owns the next edge.
	OutcomeParked Outcome = "parked"
	// OutcomeTerminal means the chain is finished for this lead.
	OutcomeTerminal Outcome = "terminal"
)

// StepResult reports one Advance pass: the lead as committed and, for
// suspended outcomes, what the lead is now waiting on.
type StepResult struct {
	Outcome Outcome
	Lead    *domain.LeadRecord
	Pending domain.PendingAction
}

// Workflow applies stage transitions one atomic unit at a time: read the
// record with its version, validate the edge, make at most one
// side-effecting port call, and commit through the store's version check.
// A Conflict from the store aborts the pass without applying anything;
// the caller re-reads and re-evaluates.
type Workflow struct {
	store      repository.Store
	approvals  *approval.Service
	scoring    ScoringPort
	outreach   OutreachPort
	scheduling SchedulingPort
	analytics  AnalyticsPort
	guard      *idempotency.Guard
	bus        events.Bus
	policy     config.Policy
	retryDelay backoff.Strategy
	log        *logger.Logger

	// now is swapped in tests to drive deadlines.
	now func() time.Time
}

// NewWorkflow wires the transition engine.
func NewWorkflow(
	store repository.Store,
	approvals *approval.Service,
	scoring ScoringPort,
	outreach OutreachPort,
	scheduling SchedulingPort,
	analytics AnalyticsPort,
	guard *idempotency.Guard,
	bus events.Bus,
	policy config.Policy,
	log *logger.Logger,
) *Workflow {
	return &Workflow{
		store:      store,
		approvals:  approvals,
		scoring:    scoring,
		outreach:   outreach,
		scheduling: scheduling,
		analytics:  analytics,
		guard:      guard,
		bus:        bus,
		policy:     policy,
		retryDelay: backoff.NewExponentialWithJitter(policy.BackoffInitial, policy.BackoffMax),
		log:        log.WithComponent("workflow"),
		now:        time.Now,
	}
}

// Advance makes at most one transition for the lead. SCORED leads are
// parked here; the batch Shortlist pass owns that edge.
func (w *Workflow) Advance(ctx context.Context, leadID uuid.UUID) (*StepResult, error) {
	lead, err := w.load(ctx, leadID)
	if err != nil {
		return nil, err
	}

	if domain.IsTerminal(lead.Stage) {
		return &StepResult{Outcome: OutcomeTerminal, Lead: lead}, nil
	}

	switch lead.Stage {
	case domain.StageDiscovered:
		return w.stepScore(ctx, lead)
	case domain.StageScored:
		return &StepResult{Outcome: OutcomeParked, Lead: lead}, nil
	case domain.StageShortlisted:
		return w.stepDraft(ctx, lead)
	case domain.StageDrafted:
		return w.stepRequestSendApproval(ctx, lead)
	case domain.StageAwaitingSendApproval:
		return w.stepSend(ctx, lead)
	case domain.StageSent:
		return w.stepEnterReplyWait(ctx, lead)
	case domain.StageAwaitingReply:
		return w.stepCheckReplyDeadline(ctx, lead)
	case domain.StageReplyReceived:
		return w.stepSchedule(ctx, lead)
	case domain.StageAwaitingScheduleApproval:
		return w.stepBook(ctx, lead)
	default:
		return nil, apperr.Validation(fmt.Sprintf("no transition defined for stage %s", lead.Stage))
	}
}

func (w *Workflow) stepScore(ctx context.Context, lead *domain.LeadRecord) (*StepResult, error) {
	pctx, cancel := w.portCtx(ctx)
	score, err := w.scoring.Score(pctx, lead.Contact)
	cancel()
	if err != nil {
		return w.resolvePortFailure(ctx, lead, err)
	}

	lead.Score = &score
	lead.ClearError()
	if err := w.commit(ctx, lead, domain.StageScored); err != nil {
		return nil, err
	}

	w.bus.Publish(ctx, events.LeadScored{
		BaseEvent: events.NewBaseEvent(),
		LeadID:    lead.ID,
		Score:     score,
	})
	return &StepResult{Outcome: OutcomeAdvanced, Lead: lead}, nil
}

func (w *Workflow) stepDraft(ctx context.Context, lead *domain.LeadRecord) (*StepResult, error) {
	// An existing draft is reused, never regenerated; that makes the
	// draft edge idempotent per lead and stage.
	if lead.Draft == nil {
		pctx, cancel := w.portCtx(ctx)
		draft, err := w.outreach.Draft(pctx, lead.Contact)
		cancel()
		if err != nil {
			return w.resolvePortFailure(ctx, lead, err)
		}
		lead.Draft = &draft
	}

	lead.ClearError()
	if err := w.commit(ctx, lead, domain.StageDrafted); err != nil {
		return nil, err
	}
	return &StepResult{Outcome: OutcomeAdvanced, Lead: lead}, nil
}

func (w *Workflow) stepRequestSendApproval(ctx context.Context, lead *domain.LeadRecord) (*StepResult, error) {
	if err := w.commit(ctx, lead, domain.StageAwaitingSendApproval); err != nil {
		return nil, err
	}
	return w.requestApproval(ctx, lead, w.sendApprovalSummary(lead))
}

func (w *Workflow) stepSend(ctx context.Context, lead *domain.LeadRecord) (*StepResult, error) {
	stage := domain.StageAwaitingSendApproval

	if !lead.Approved(stage) {
		result, decided, err := w.checkGate(ctx, lead, w.sendApprovalSummary(lead))
		if err != nil || !decided {
			return result, err
		}
	}

	token := lead.IdempotencyToken(stage)
	receipt := SendReceipt{}
	outcome, err := w.guard.Begin(ctx, token)
	if err != nil {
		return w.resolvePortFailure(ctx, lead, err)
	}

	switch outcome.State {
	case idempotency.StateInFlight:
		// Another process is mid-send for this token. Check back later.
		return w.suspendRetry(ctx, lead, w.policy.BackoffInitial)
	case idempotency.StateDone:
		// The send committed on the wire but not in the store; adopt the
		// recorded receipt instead of sending again.
		receipt = SendReceipt{MessageID: outcome.Receipt, SentAt: w.now().UTC()}
	default:
		pctx, cancel := w.portCtx(ctx)
		receipt, err = w.outreach.Send(pctx, token, lead.Contact, *lead.Draft)
		cancel()
		if err != nil {
			w.releaseUnlessAmbiguous(ctx, token, err)
			return w.resolvePortFailure(ctx, lead, err)
		}
		if gerr := w.guard.Remember(ctx, token, receipt.MessageID); gerr != nil {
			w.log.Warn("failed to record send receipt", "leadId", lead.ID, "error", gerr)
		}
	}

	sentAt := receipt.SentAt
	if sentAt.IsZero() {
		sentAt = w.now().UTC()
	}
	lead.SentAt = &sentAt
	lead.ClearError()
	if err := w.commit(ctx, lead, domain.StageSent); err != nil {
		return nil, err
	}
	return &StepResult{Outcome: OutcomeAdvanced, Lead: lead}, nil
}

func (w *Workflow) stepEnterReplyWait(ctx context.Context, lead *domain.LeadRecord) (*StepResult, error) {
	if err := w.commit(ctx, lead, domain.StageAwaitingReply); err != nil {
		return nil, err
	}

	deadline := lead.SentAt.Add(w.policy.ReplyMaxWait)
	return &StepResult{
		Outcome: OutcomeSuspended,
		Lead:    lead,
		Pending: domain.PendingAction{Type: domain.ActionReplyWait, Deadline: &deadline},
	}, nil
}

func (w *Workflow) stepCheckReplyDeadline(ctx context.Context, lead *domain.LeadRecord) (*StepResult, error) {
	deadline := lead.SentAt.Add(w.policy.ReplyMaxWait)
	if w.now().After(deadline) {
		return w.abandonLead(ctx, lead, "no reply within the configured wait")
	}

	return &StepResult{
		Outcome: OutcomeSuspended,
		Lead:    lead,
		Pending: domain.PendingAction{Type: domain.ActionReplyWait, Deadline: &deadline},
	}, nil
}

func (w *Workflow) stepSchedule(ctx context.Context, lead *domain.LeadRecord) (*StepResult, error) {
	pctx, cancel := w.portCtx(ctx)
	slots, err := w.scheduling.ExtractSlots(pctx, *lead.Reply, w.now())
	cancel()
	if err != nil {
		return w.resolvePortFailure(ctx, lead, err)
	}

	if len(slots) > 0 {
		slot := slots[0]
		lead.Slot = &slot
		lead.ClearError()
		if err := w.commit(ctx, lead, domain.StageAwaitingScheduleApproval); err != nil {
			return nil, err
		}
		return w.requestApproval(ctx, lead, w.scheduleApprovalSummary(lead))
	}

	// The reply committed to nothing concrete. Ask once per reply attempt
	// for a time, then wait for the clarification like a fresh reply.
	token := lead.IdempotencyToken(domain.StageReplyReceived)
	outcome, err := w.guard.Begin(ctx, token)
	if err != nil {
		return w.resolvePortFailure(ctx, lead, err)
	}

	if outcome.State == idempotency.StateAcquired {
		pctx, cancel := w.portCtx(ctx)
		err = w.scheduling.SendFollowUp(pctx, token, lead.Contact)
		cancel()
		if err != nil {
			w.releaseUnlessAmbiguous(ctx, token, err)
			return w.resolvePortFailure(ctx, lead, err)
		}
		if gerr := w.guard.Remember(ctx, token, "follow-up"); gerr != nil {
			w.log.Warn("failed to record follow-up receipt", "leadId", lead.ID, "error", gerr)
		}
	}

	deadline := w.now().Add(w.policy.ReplyMaxWait)
	return &StepResult{
		Outcome: OutcomeSuspended,
		Lead:    lead,
		Pending: domain.PendingAction{Type: domain.ActionReplyWait, Deadline: &deadline},
	}, nil
}

func (w *Workflow) stepBook(ctx context.Context, lead *domain.LeadRecord) (*StepResult, error) {
	stage := domain.StageAwaitingScheduleApproval

	if !lead.Approved(stage) {
		result, decided, err := w.checkGate(ctx, lead, w.scheduleApprovalSummary(lead))
		if err != nil || !decided {
			return result, err
		}
	}

	token := lead.IdempotencyToken(stage)
	receipt := BookingReceipt{}
	outcome, err := w.guard.Begin(ctx, token)
	if err != nil {
		return w.resolvePortFailure(ctx, lead, err)
	}

	switch outcome.State {
	case idempotency.StateInFlight:
		return w.suspendRetry(ctx, lead, w.policy.BackoffInitial)
	case idempotency.StateDone:
		receipt = BookingReceipt{BookingID: outcome.Receipt, Slot: *lead.Slot}
	default:
		pctx, cancel := w.portCtx(ctx)
		receipt, err = w.scheduling.Book(pctx, token, lead.Contact, *lead.Slot)
		cancel()
		if err != nil {
			w.releaseUnlessAmbiguous(ctx, token, err)
			return w.resolvePortFailure(ctx, lead, err)
		}
		if gerr := w.guard.Remember(ctx, token, receipt.BookingID); gerr != nil {
			w.log.Warn("failed to record booking receipt", "leadId", lead.ID, "error", gerr)
		}
	}

	if !receipt.Slot.Start.IsZero() {
		lead.Slot = &receipt.Slot
	}
	lead.ClearError()
	if err := w.commit(ctx, lead, domain.StageScheduled); err != nil {
		return nil, err
	}

	w.bus.Publish(ctx, events.MeetingBooked{
		BaseEvent: events.NewBaseEvent(),
		LeadID:    lead.ID,
		Start:     lead.Slot.Start,
		End:       lead.Slot.End,
	})
	return &StepResult{Outcome: OutcomeTerminal, Lead: lead}, nil
}

// HandleReply records an inbound reply. At AWAITING_REPLY it advances the
// chain; at REPLY_RECEIVED it replaces the reply and opens a new attempt so
// the next follow-up (if needed) gets its own token. Re-delivering a reply
// already on the record is a no-op, which makes redelivery after a crash
// safe.
func (w *Workflow) HandleReply(ctx context.Context, leadID uuid.UUID, text string) error {
	lead, err := w.load(ctx, leadID)
	if err != nil {
		return err
	}

	if lead.Reply != nil && *lead.Reply == text {
		return nil
	}

	switch lead.Stage {
	case domain.StageAwaitingReply:
		lead.Reply = &text
		lead.ClearError()
		if err := w.commit(ctx, lead, domain.StageReplyReceived); err != nil {
			return err
		}
	case domain.StageReplyReceived:
		lead.Reply = &text
		lead.AdvanceAttempt(domain.StageReplyReceived)
		lead.ClearError()
		if err := w.commit(ctx, lead, lead.Stage); err != nil {
			return err
		}
	default:
		return apperr.Conflict(fmt.Sprintf("lead in stage %s is not awaiting a reply", lead.Stage))
	}

	w.bus.Publish(ctx, events.ReplyReceived{
		BaseEvent: events.NewBaseEvent(),
		LeadID:    lead.ID,
		Preview:   preview(text, 80),
	})
	return nil
}

// RunAnalytics drives the parallel analytics sub-workflow: any lead with a
// transcript and no summary can enter ANALYZED regardless of where the main
// chain stopped, except from FAILED or ABANDONED. Analytics failures never
// fail the lead; they burn their own retry budget and then stop.
func (w *Workflow) RunAnalytics(ctx context.Context, leadID uuid.UUID) (*StepResult, error) {
	lead, err := w.load(ctx, leadID)
	if err != nil {
		return nil, err
	}

	if lead.TranscriptRef == nil {
		return nil, apperr.Validation("lead has no transcript to analyze")
	}
	if !domain.CanTransition(lead.Stage, domain.StageAnalyzed) {
		return nil, apperr.Conflict(fmt.Sprintf("lead in stage %s cannot be analyzed", lead.Stage))
	}
	if lead.Attempts(domain.StageAnalyzed) >= w.policy.MaxRetries {
		return &StepResult{Outcome: OutcomeParked, Lead: lead}, nil
	}

	pctx, cancel := w.portCtx(ctx)
	summary, err := w.analytics.Analyze(pctx, *lead.TranscriptRef, lead.Contact)
	cancel()
	if err != nil {
		lead.RecordFailure(domain.StageAnalyzed, err.Error())
		if cerr := w.commit(ctx, lead, lead.Stage); cerr != nil {
			return nil, cerr
		}
		if lead.Attempts(domain.StageAnalyzed) >= w.policy.MaxRetries {
			w.log.Warn("analytics retry budget exhausted", "leadId", lead.ID, "error", err)
			return &StepResult{Outcome: OutcomeParked, Lead: lead}, nil
		}
		resumeAt := w.now().Add(w.retryDelay.Delay(lead.Attempts(domain.StageAnalyzed)))
		return &StepResult{
			Outcome: OutcomeSuspended,
			Lead:    lead,
			Pending: domain.PendingAction{Type: domain.ActionRetry, ResumeAt: &resumeAt, Attempt: lead.Attempts(domain.StageAnalyzed)},
		}, nil
	}

	lead.Analysis = summary
	lead.ClearError()
	if err := w.commit(ctx, lead, domain.StageAnalyzed); err != nil {
		return nil, err
	}

	w.bus.Publish(ctx, events.AnalyticsReady{
		BaseEvent: events.NewBaseEvent(),
		LeadID:    lead.ID,
	})
	return &StepResult{Outcome: OutcomeTerminal, Lead: lead}, nil
}

// Abandon forces ABANDONED from any non-terminal stage, short-circuiting
// pending retries, approvals, and polls.
func (w *Workflow) Abandon(ctx context.Context, leadID uuid.UUID, reason string) (*domain.LeadRecord, error) {
	lead, err := w.load(ctx, leadID)
	if err != nil {
		return nil, err
	}

	if domain.IsTerminal(lead.Stage) {
		return nil, apperr.Conflict(fmt.Sprintf("lead is already terminal (%s)", lead.Stage))
	}

	result, err := w.abandonLead(ctx, lead, reason)
	if err != nil {
		return nil, err
	}
	return result.Lead, nil
}

// ResetFailed returns a FAILED lead to the stage it fell out of with a
// fresh retry budget. This is the only backward transition and it never
// happens automatically.
func (w *Workflow) ResetFailed(ctx context.Context, leadID uuid.UUID) (*domain.LeadRecord, error) {
	lead, err := w.load(ctx, leadID)
	if err != nil {
		return nil, err
	}

	if lead.Stage != domain.StageFailed {
		return nil, apperr.Conflict(fmt.Sprintf("lead is %s, only FAILED leads can be reset", lead.Stage))
	}
	if lead.FailedFrom == nil {
		return nil, apperr.New(apperr.KindInternal, "failed lead has no recorded origin stage")
	}
	origin := *lead.FailedFrom
	if !domain.CanResetFrom(origin) {
		return nil, apperr.Validation(fmt.Sprintf("cannot reset a lead back to %s", origin))
	}

	// Deliberately outside the transition table: reset is the explicit
	// manual exception to forward-only movement.
	lead.Stage = origin
	lead.FailedFrom = nil
	lead.LastError = nil
	if lead.RetryCounts != nil {
		lead.RetryCounts[origin] = 0
	}
	if ok, reason := domain.ValidateRecord(lead); !ok {
		return nil, apperr.Validation(reason)
	}
	if err := w.save(ctx, lead); err != nil {
		return nil, err
	}

	w.bus.Publish(ctx, events.LeadStageChanged{
		BaseEvent: events.NewBaseEvent(),
		LeadID:    lead.ID,
		OldStage:  domain.StageFailed,
		NewStage:  origin,
	})
	return lead, nil
}

// ---- shared transition plumbing ----

func (w *Workflow) load(ctx context.Context, leadID uuid.UUID) (*domain.LeadRecord, error) {
	lead, err := w.store.Get(ctx, leadID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.NotFound("lead not found")
		}
		return nil, apperr.Wrap(apperr.KindInternal, "failed to load lead", err)
	}
	return lead, nil
}

// commit validates the edge and writes the record through the version
// check. A same-stage commit persists interim state (retry counters,
// approval flags) without raising a transition event.
func (w *Workflow) commit(ctx context.Context, lead *domain.LeadRecord, to domain.Stage) error {
	from := lead.Stage
	if to != from {
		if !domain.CanTransition(from, to) {
			return apperr.Validation(fmt.Sprintf("no edge from %s to %s", from, to))
		}
		lead.Stage = to
	}
	if ok, reason := domain.ValidateRecord(lead); !ok {
		lead.Stage = from
		return apperr.Validation(reason)
	}

	if err := w.save(ctx, lead); err != nil {
		lead.Stage = from
		return err
	}

	if to != from {
		w.log.StageChange(lead.ID.String(), string(from), string(to))
		w.bus.Publish(ctx, events.LeadStageChanged{
			BaseEvent: events.NewBaseEvent(),
			LeadID:    lead.ID,
			OldStage:  from,
			NewStage:  to,
		})
	}
	return nil
}

func (w *Workflow) save(ctx context.Context, lead *domain.LeadRecord) error {
	err := w.store.Save(ctx, lead)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrVersionConflict):
		return apperr.Conflict("lead changed concurrently")
	case errors.Is(err, repository.ErrNotFound):
		return apperr.NotFound("lead not found")
	default:
		return apperr.Wrap(apperr.KindInternal, "failed to save lead", err)
	}
}

// requestApproval asks the gate for a decision on the lead's current gated
// stage and suspends the run on it. Requesting is idempotent per
// (lead, stage, attempt); a crashed process re-requests the same token.
func (w *Workflow) requestApproval(ctx context.Context, lead *domain.LeadRecord, summary string) (*StepResult, error) {
	req, err := w.approvals.RequestApproval(ctx, lead.ID, lead.Stage, lead.Attempts(lead.Stage), summary)
	if err != nil {
		// The stage is committed; the next pass re-requests.
		w.log.Warn("approval request failed, will retry next pass", "leadId", lead.ID, "stage", lead.Stage, "error", err)
		return &StepResult{
			Outcome: OutcomeSuspended,
			Lead:    lead,
			Pending: domain.PendingAction{Type: domain.ActionApproval, Attempt: lead.Attempts(lead.Stage)},
		}, nil
	}

	return &StepResult{
		Outcome: OutcomeSuspended,
		Lead:    lead,
		Pending: domain.PendingAction{Type: domain.ActionApproval, ApprovalID: req.ID.String(), Attempt: req.Attempt},
	}, nil
}

// checkGate reads the approval for the lead's current gated stage. It
// returns decided=true only for an Approved resolution, with the grant
// recorded on the record (persisted by the caller's commit). Pending
// suspends; Rejected abandons the lead.
func (w *Workflow) checkGate(ctx context.Context, lead *domain.LeadRecord, summary string) (*StepResult, bool, error) {
	stage := lead.Stage
	req, err := w.approvals.StatusForToken(ctx, lead.ID, stage, lead.Attempts(stage))
	if err != nil {
		var ae *apperr.Error
		if errors.As(err, &ae) && ae.Kind == apperr.KindNotFound {
			// No request on file for this attempt (lost before commit, or
			// a retry opened a new attempt). Mint one.
			result, rerr := w.requestApproval(ctx, lead, summary)
			return result, false, rerr
		}
		return nil, false, apperr.Wrap(apperr.KindInternal, "failed to check approval", err)
	}

	switch req.Status {
	case approval.StatusApproved:
		lead.GrantApproval(stage)
		return nil, true, nil
	case approval.StatusRejected:
		reason := fmt.Sprintf("%s rejected", stage)
		if req.Reason != nil && *req.Reason != "" {
			reason = fmt.Sprintf("%s rejected: %s", stage, *req.Reason)
		}
		result, err := w.abandonLead(ctx, lead, reason)
		return result, false, err
	default:
		return &StepResult{
			Outcome: OutcomeSuspended,
			Lead:    lead,
			Pending: domain.PendingAction{Type: domain.ActionApproval, ApprovalID: req.ID.String(), Attempt: req.Attempt},
		}, false, nil
	}
}

// resolvePortFailure classifies a port error into a state mutation:
// validation fails the lead immediately, transient errors retry in place
// with backoff, and an exhausted budget fails the lead with the exhaustion
// recorded as its last error.
func (w *Workflow) resolvePortFailure(ctx context.Context, lead *domain.LeadRecord, portErr error) (*StepResult, error) {
	stage := lead.Stage
	lead.RecordFailure(stage, portErr.Error())

	var ae *apperr.Error
	if errors.As(portErr, &ae) && ae.Kind == apperr.KindValidation {
		return w.failLead(ctx, lead, portErr.Error())
	}

	attempts := lead.Attempts(stage)
	if attempts >= w.policy.MaxRetries {
		exhausted := apperr.Wrap(apperr.KindExhausted, fmt.Sprintf("retry budget exhausted after %d attempts", attempts), portErr)
		msg := exhausted.Error()
		lead.LastError = &msg
		return w.failLead(ctx, lead, msg)
	}

	// Transient: keep the stage, persist the counter, back off.
	if err := w.commit(ctx, lead, stage); err != nil {
		return nil, err
	}
	return w.suspendRetryAt(lead, w.now().Add(w.retryDelay.Delay(attempts)), attempts), nil
}

func (w *Workflow) failLead(ctx context.Context, lead *domain.LeadRecord, reason string) (*StepResult, error) {
	origin := lead.Stage
	lead.FailedFrom = &origin
	if err := w.commit(ctx, lead, domain.StageFailed); err != nil {
		return nil, err
	}

	w.bus.Publish(ctx, events.LeadFailed{
		BaseEvent: events.NewBaseEvent(),
		LeadID:    lead.ID,
		Origin:    origin,
		Reason:    reason,
	})
	return &StepResult{Outcome: OutcomeTerminal, Lead: lead}, nil
}

func (w *Workflow) abandonLead(ctx context.Context, lead *domain.LeadRecord, reason string) (*StepResult, error) {
	if err := w.commit(ctx, lead, domain.StageAbandoned); err != nil {
		return nil, err
	}

	w.bus.Publish(ctx, events.LeadAbandoned{
		BaseEvent: events.NewBaseEvent(),
		LeadID:    lead.ID,
		Reason:    reason,
	})
	return &StepResult{Outcome: OutcomeTerminal, Lead: lead}, nil
}

func (w *Workflow) suspendRetry(ctx context.Context, lead *domain.LeadRecord, delay time.Duration) (*StepResult, error) {
	return w.suspendRetryAt(lead, w.now().Add(delay), lead.Attempts(lead.Stage)), nil
}

func (w *Workflow) suspendRetryAt(lead *domain.LeadRecord, resumeAt time.Time, attempt int) *StepResult {
	return &StepResult{
		Outcome: OutcomeSuspended,
		Lead:    lead,
		Pending: domain.PendingAction{Type: domain.ActionRetry, ResumeAt: &resumeAt, Attempt: attempt},
	}
}

// releaseUnlessAmbiguous frees the idempotency token after a failed call,
// except when the failure leaves the outcome unknown (timeout or cancel).
// Ambiguous tokens expire on their own TTL instead.
func (w *Workflow) releaseUnlessAmbiguous(ctx context.Context, token string, callErr error) {
	if errors.Is(callErr, context.DeadlineExceeded) || errors.Is(callErr, context.Canceled) {
		return
	}
	if err := w.guard.Release(ctx, token); err != nil {
		w.log.Warn("failed to release idempotency token", "token", token, "error", err)
	}
}

func (w *Workflow) portCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, w.policy.PortTimeout)
}

func (w *Workflow) sendApprovalSummary(lead *domain.LeadRecord) string {
	if lead.Draft == nil {
		return fmt.Sprintf("Send outreach to %s", lead.Contact.Email)
	}
	return fmt.Sprintf("Send %q to %s: %s", lead.Draft.Subject, lead.Contact.Email, preview(lead.Draft.Body, 140))
}

func (w *Workflow) scheduleApprovalSummary(lead *domain.LeadRecord) string {
	if lead.Slot == nil {
		return fmt.Sprintf("Book a meeting with %s", lead.Contact.Email)
	}
	return fmt.Sprintf("Book %s with %s (%s to %s)",
		lead.Slot.Start.Format("Mon Jan 2 15:04"),
		lead.Contact.Email,
		lead.Slot.Start.Format(time.RFC3339),
		lead.Slot.End.Format(time.RFC3339),
	)
}

func preview(text string, limit int) string {
	text = strings.TrimSpace(strings.ReplaceAll(text, "\n", " "))
	if len(text) <= limit {
		return text
	}
	return text[:limit] + "..."
}
