package scheduler

import (
	"context"
	"time"

	"acquisition_backend/internal/events"
	"acquisition_backend/internal/leads/domain"
	"acquisition_backend/internal/leads/repository"
	"acquisition_backend/platform/config"
	"acquisition_backend/platform/logger"
)

// EventRelay turns bus events into queued tasks. The bus is in-process, so
// each process subscribes the relay to the events it publishes itself:
// the worker arms deadline timers for the stage changes its workflow makes,
// the API hands transcript attaches and gate decisions over the queue.
type EventRelay struct {
	client *Client
	store  repository.Store
	policy config.Policy
	log    *logger.Logger
	now    func() time.Time
}

func NewEventRelay(client *Client, store repository.Store, policy config.Policy, log *logger.Logger) *EventRelay {
	return &EventRelay{
		client: client,
		store:  store,
		policy: policy,
		log:    log.WithComponent("event-relay"),
		now:    time.Now,
	}
}

// SubscribeDeadlines arms the durable abandonment timers. Call this in the
// process that runs the workflow.
func (r *EventRelay) SubscribeDeadlines(bus events.Bus) {
	bus.Subscribe(events.LeadStageChanged{}.EventName(), events.HandlerFunc(r.onStageChanged))
	bus.Subscribe(events.ReplyReceived{}.EventName(), events.HandlerFunc(r.onReplyReceived))
}

// SubscribeHandoffs forwards API-side events to the worker process. Call
// this in the process that serves HTTP.
func (r *EventRelay) SubscribeHandoffs(bus events.Bus) {
	bus.Subscribe(events.TranscriptAttached{}.EventName(), events.HandlerFunc(r.onTranscriptAttached))
	bus.Subscribe(events.ApprovalResolved{}.EventName(), events.HandlerFunc(r.onApprovalResolved))
}

func (r *EventRelay) onStageChanged(ctx context.Context, e events.Event) error {
	evt, ok := e.(events.LeadStageChanged)
	if !ok || evt.NewStage != domain.StageAwaitingReply {
		return nil
	}

	lead, err := r.store.Get(ctx, evt.LeadID)
	if err != nil {
		return err
	}
	if lead.SentAt == nil {
		r.log.Warn("waiting lead has no send time, timer not armed", "leadId", evt.LeadID)
		return nil
	}

	deadline := lead.SentAt.Add(r.policy.ReplyMaxWait)
	return r.client.ScheduleReplyDeadline(ctx, ReplyDeadlinePayload{LeadID: evt.LeadID.String()}, deadline)
}

// onReplyReceived re-arms the timer. This also covers the wait after a
// clarification follow-up, which keeps the lead in the same stage and so
// fires no stage-change event.
func (r *EventRelay) onReplyReceived(ctx context.Context, e events.Event) error {
	evt, ok := e.(events.ReplyReceived)
	if !ok {
		return nil
	}

	deadline := r.now().Add(r.policy.ReplyMaxWait)
	return r.client.ScheduleReplyDeadline(ctx, ReplyDeadlinePayload{LeadID: evt.LeadID.String()}, deadline)
}

func (r *EventRelay) onTranscriptAttached(ctx context.Context, e events.Event) error {
	evt, ok := e.(events.TranscriptAttached)
	if !ok {
		return nil
	}
	return r.client.ScheduleTranscriptAnalysis(ctx, TranscriptAnalysisPayload{LeadID: evt.LeadID.String()}, time.Time{})
}

func (r *EventRelay) onApprovalResolved(ctx context.Context, e events.Event) error {
	evt, ok := e.(events.ApprovalResolved)
	if !ok {
		return nil
	}
	return r.client.EnqueueApprovalResolved(ctx, ApprovalResolvedPayload{
		RequestID: evt.RequestID,
		LeadID:    evt.LeadID.String(),
		Stage:     string(evt.Stage),
		Approved:  evt.Approved,
		Reason:    evt.Reason,
	})
}
