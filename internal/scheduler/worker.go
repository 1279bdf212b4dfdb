package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"acquisition_backend/internal/events"
	"acquisition_backend/internal/leads"
	"acquisition_backend/internal/leads/domain"
	"acquisition_backend/internal/leads/repository"
	"acquisition_backend/platform/apperr"
	"acquisition_backend/platform/config"
	"acquisition_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

type Worker struct {
	server   *asynq.Server
	mux      *asynq.ServeMux
	client   *Client
	workflow *leads.Workflow
	runs     repository.RunStore
	bus      events.Bus
	log      *logger.Logger
	now      func() time.Time
}

func NewWorker(
	cfg config.SchedulerConfig,
	client *Client,
	workflow *leads.Workflow,
	runs repository.RunStore,
	bus events.Bus,
	log *logger.Logger,
) (*Worker, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	queue := cfg.GetAsynqQueueName()
	if queue == "" {
		queue = "default"
	}

	concurrency := cfg.GetAsynqConcurrency()
	if concurrency < 1 {
		concurrency = 10
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			queue: 1,
		},
	})

	mux := asynq.NewServeMux()
	w := &Worker{
		server:   server,
		mux:      mux,
		client:   client,
		workflow: workflow,
		runs:     runs,
		bus:      bus,
		log:      log,
		now:      time.Now,
	}

	mux.HandleFunc(TaskReplyDeadline, w.handleReplyDeadline)
	mux.HandleFunc(TaskTranscriptAnalysis, w.handleTranscriptAnalysis)
	mux.HandleFunc(TaskApprovalResolved, w.handleApprovalResolved)

	return w, nil
}

func (w *Worker) Run(ctx context.Context) {
	if w == nil || w.server == nil {
		return
	}

	go func() {
		<-ctx.Done()
		w.server.Shutdown()
	}()

	if err := w.server.Run(w.mux); err != nil {
		w.log.Error("scheduler worker stopped", "error", err)
	}
}

// handleReplyDeadline is the per-lead twin of the orchestrator's deadline
// sweep. It fires at the deadline armed when the lead entered its wait; a
// lead that moved on, or whose deadline a later reply pushed out, is left
// alone.
func (w *Worker) handleReplyDeadline(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseReplyDeadlinePayload(task)
	if err != nil {
		return err
	}

	leadID, err := uuid.Parse(payload.LeadID)
	if err != nil {
		return err
	}

	run, err := w.runs.GetRun(ctx, leadID)
	if err != nil {
		if errors.Is(err, repository.ErrRunNotFound) {
			return nil
		}
		return err
	}

	if run.Pending.Type != domain.ActionReplyWait || run.Pending.Deadline == nil {
		return nil
	}
	if w.now().Before(*run.Pending.Deadline) {
		// A later reply pushed the deadline out. Follow it.
		return w.client.ScheduleReplyDeadline(ctx, payload, *run.Pending.Deadline)
	}

	if _, err := w.workflow.Abandon(ctx, leadID, "no reply within the configured wait"); err != nil {
		var ae *apperr.Error
		if errors.As(err, &ae) && (ae.Kind == apperr.KindConflict || ae.Kind == apperr.KindNotFound) {
			return nil
		}
		return err
	}

	if err := w.runs.DeleteRun(ctx, leadID); err != nil && !errors.Is(err, repository.ErrRunNotFound) {
		w.log.Warn("failed to close run after deadline abandon", "leadId", leadID, "error", err)
	}

	w.log.Info("lead abandoned on reply deadline", "leadId", leadID)
	return nil
}

// handleTranscriptAnalysis runs one analytics attempt. Transient failures
// re-enqueue at the workflow's own backoff time rather than leaning on the
// queue's retry schedule; parked and terminal outcomes complete the task.
func (w *Worker) handleTranscriptAnalysis(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseTranscriptAnalysisPayload(task)
	if err != nil {
		return err
	}

	leadID, err := uuid.Parse(payload.LeadID)
	if err != nil {
		return err
	}

	result, err := w.workflow.RunAnalytics(ctx, leadID)
	if err != nil {
		var ae *apperr.Error
		if errors.As(err, &ae) {
			switch ae.Kind {
			case apperr.KindConflict:
				return err
			case apperr.KindValidation, apperr.KindNotFound:
				w.log.Info("dropping analysis the lead cannot take", "leadId", leadID, "error", err)
				return nil
			}
		}
		return err
	}

	if result.Outcome == leads.OutcomeSuspended && result.Pending.ResumeAt != nil {
		return w.client.ScheduleTranscriptAnalysis(ctx, payload, *result.Pending.ResumeAt)
	}
	return nil
}

// handleApprovalResolved republishes the decision on this process's bus so
// the orchestrator's subscription fires here, in the process that actually
// dispatches leads.
func (w *Worker) handleApprovalResolved(ctx context.Context, task *asynq.Task) error {
	if w.bus == nil {
		return nil
	}

	payload, err := ParseApprovalResolvedPayload(task)
	if err != nil {
		return err
	}

	leadID, err := uuid.Parse(payload.LeadID)
	if err != nil {
		return err
	}

	return w.bus.PublishSync(ctx, events.ApprovalResolved{
		BaseEvent: events.NewBaseEvent(),
		RequestID: payload.RequestID,
		LeadID:    leadID,
		Stage:     domain.Stage(payload.Stage),
		Approved:  payload.Approved,
		Reason:    payload.Reason,
	})
}
