package leads

import (
	"context"
	"time"

	"github.com/google/uuid"

	"acquisition_backend/internal/leads/domain"
)

// SendReceipt confirms an outreach message left the system.
type SendReceipt struct {
	MessageID string    `json:"message_id"`
	SentAt    time.Time `json:"sent_at"`
}

// BookingReceipt confirms a committed calendar booking.
type BookingReceipt struct {
	BookingID string      `json:"booking_id"`
	Slot      domain.Slot `json:"slot"`
	JoinURL   string      `json:"join_url,omitempty"`
}

// Reply is an inbound message matched to a lead. Token is an opaque
// delivery marker the orchestrator passes back through AckReplies once the
// reply is committed, so a crash in between re-delivers instead of losing it.
type Reply struct {
	Token      string    `json:"token"`
	LeadID     uuid.UUID `json:"lead_id"`
	Text       string    `json:"text"`
	ReceivedAt time.Time `json:"received_at"`
}

// ScoringPort rates a lead's buying intent.
type ScoringPort interface {
	Score(ctx context.Context, contact domain.Contact) (float64, error)
}

// OutreachPort generates and delivers outreach mail and detects replies.
type OutreachPort interface {
	// Draft generates the outreach message for a contact.
	Draft(ctx context.Context, contact domain.Contact) (domain.Draft, error)

	// Send delivers the draft. The token makes the delivery at most once
	// per (lead, stage, attempt); re-sending with a consumed token must
	// not produce a second email.
	Send(ctx context.Context, token string, contact domain.Contact, draft domain.Draft) (SendReceipt, error)

	// PollReplies returns inbound replies matched to known leads, newer
	// than the given cursor. Delivery is at least once until acked.
	PollReplies(ctx context.Context, since time.Time) ([]Reply, error)

	// AckReplies marks the given replies as processed so they are never
	// delivered again.
	AckReplies(ctx context.Context, tokens ...string) error
}

// SchedulingPort turns replies into booked meetings.
type SchedulingPort interface {
	// ExtractSlots parses candidate meeting times out of a reply. An empty
	// result with a nil error means the reply names no usable time.
	ExtractSlots(ctx context.Context, replyText string, now time.Time) ([]domain.Slot, error)

	// Book commits the meeting. At most once per token.
	Book(ctx context.Context, token string, contact domain.Contact, slot domain.Slot) (BookingReceipt, error)

	// SendFollowUp asks the contact for a concrete time when their reply
	// had none. At most once per token.
	SendFollowUp(ctx context.Context, token string, contact domain.Contact) error
}

// AnalyticsPort summarizes a stored meeting transcript.
type AnalyticsPort interface {
	Analyze(ctx context.Context, transcriptRef string, contact domain.Contact) (*domain.AnalysisSummary, error)
}
