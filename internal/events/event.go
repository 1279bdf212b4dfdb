// Package events provides domain event definitions for decoupled,
// event-driven communication between modules.
// Infrastructure (Bus, Handler) is in platform/events.
package events

import (
	"time"

	"acquisition_backend/internal/leads/domain"
	"acquisition_backend/platform/events"

	"github.com/google/uuid"
)

// Re-export platform types for convenience
type (
	Event       = events.Event
	Bus         = events.Bus
	Handler     = events.Handler
	HandlerFunc = events.HandlerFunc
	BaseEvent   = events.BaseEvent
)

// Re-export platform functions
var NewBaseEvent = events.NewBaseEvent

// =============================================================================
// Lead Events
// =============================================================================

// LeadCreated is published when a lead enters the pipeline.
type LeadCreated struct {
	BaseEvent
	LeadID uuid.UUID `json:"leadId"`
	Email  string    `json:"email"`
	Name   string    `json:"name"`
}

func (e LeadCreated) EventName() string { return "leads.created" }

// LeadStageChanged is published after every committed transition.
type LeadStageChanged struct {
	BaseEvent
	LeadID   uuid.UUID    `json:"leadId"`
	OldStage domain.Stage `json:"oldStage"`
	NewStage domain.Stage `json:"newStage"`
}

func (e LeadStageChanged) EventName() string { return "leads.stage_changed" }

// LeadScored is published when the scoring port returns a score.
type LeadScored struct {
	BaseEvent
	LeadID uuid.UUID `json:"leadId"`
	Score  float64   `json:"score"`
}

func (e LeadScored) EventName() string { return "leads.scored" }

// ShortlistComputed is published after a batch shortlist pass.
type ShortlistComputed struct {
	BaseEvent
	Considered int `json:"considered"`
	Promoted   int `json:"promoted"`
	TopK       int `json:"topK"`
}

func (e ShortlistComputed) EventName() string { return "leads.shortlist_computed" }

// ReplyReceived is published when the inbox poll matches a sent lead.
type ReplyReceived struct {
	BaseEvent
	LeadID  uuid.UUID `json:"leadId"`
	Preview string    `json:"preview"`
}

func (e ReplyReceived) EventName() string { return "leads.reply_received" }

// MeetingBooked is published when the calendar booking commits.
type MeetingBooked struct {
	BaseEvent
	LeadID uuid.UUID `json:"leadId"`
	Start  time.Time `json:"start"`
	End    time.Time `json:"end"`
}

func (e MeetingBooked) EventName() string { return "leads.meeting_booked" }

// LeadFailed is published when a lead exhausts its retry budget.
type LeadFailed struct {
	BaseEvent
	LeadID uuid.UUID    `json:"leadId"`
	Origin domain.Stage `json:"origin"`
	Reason string       `json:"reason"`
}

func (e LeadFailed) EventName() string { return "leads.failed" }

// LeadAbandoned is published when a lead leaves the pipeline without
// completing it, by rejection, timeout, or an explicit abandon.
type LeadAbandoned struct {
	BaseEvent
	LeadID uuid.UUID `json:"leadId"`
	Reason string    `json:"reason"`
}

func (e LeadAbandoned) EventName() string { return "leads.abandoned" }

// TranscriptAttached is published when a call transcript lands on a lead.
// Subscribers kick off the analytics pass.
type TranscriptAttached struct {
	BaseEvent
	LeadID        uuid.UUID `json:"leadId"`
	TranscriptRef string    `json:"transcriptRef"`
}

func (e TranscriptAttached) EventName() string { return "leads.transcript_attached" }

// AnalyticsReady is published when a transcript analysis lands.
type AnalyticsReady struct {
	BaseEvent
	LeadID uuid.UUID `json:"leadId"`
}

func (e AnalyticsReady) EventName() string { return "leads.analytics_ready" }

// =============================================================================
// Approval Events
// =============================================================================

// ApprovalRequested is published when a gated stage asks for a decision.
// Subscribers notify the operator (email with one-click links).
type ApprovalRequested struct {
	BaseEvent
	RequestID string       `json:"requestId"`
	LeadID    uuid.UUID    `json:"leadId"`
	Stage     domain.Stage `json:"stage"`
	Summary   string       `json:"summary"`
}

func (e ApprovalRequested) EventName() string { return "approvals.requested" }

// ApprovalResolved is published when an operator decides a pending request.
// The orchestrator subscribes to advance the lead without waiting for the
// next tick.
type ApprovalResolved struct {
	BaseEvent
	RequestID string       `json:"requestId"`
	LeadID    uuid.UUID    `json:"leadId"`
	Stage     domain.Stage `json:"stage"`
	Approved  bool         `json:"approved"`
	Reason    string       `json:"reason,omitempty"`
}

func (e ApprovalResolved) EventName() string { return "approvals.resolved" }
