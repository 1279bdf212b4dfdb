// Package email delivers outbound mail (outreach, approval requests,
// scheduling follow-ups) and polls the inbox for replies.
package email

import (
	"context"
	"time"

	"acquisition_backend/platform/logger"
)

// Sender delivers the emails this system produces.
type Sender interface {
	// SendOutreach delivers an approved outreach draft as plain text.
	SendOutreach(ctx context.Context, toEmail, toName, subject, body string) error
	// SendApprovalRequest notifies the operator of a pending decision
	// with one-click approve and reject links.
	SendApprovalRequest(ctx context.Context, toEmail, stage, summary, approveURL, rejectURL string) error
	// SendSchedulingFollowUp asks a replied lead for a concrete meeting time.
	SendSchedulingFollowUp(ctx context.Context, toEmail, toName string) error
	// SendMeetingConfirmation confirms a booked slot to the lead.
	SendMeetingConfirmation(ctx context.Context, toEmail, toName string, start, end time.Time) error
}

// NoopSender logs instead of sending. Used when SMTP is not configured,
// typically in development.
type NoopSender struct {
	log *logger.Logger
}

func NewNoopSender(log *logger.Logger) *NoopSender {
	return &NoopSender{log: log.WithComponent("email")}
}

func (n *NoopSender) SendOutreach(_ context.Context, toEmail, _, subject, _ string) error {
	n.log.Info("email disabled, skipping outreach", "to", toEmail, "subject", subject)
	return nil
}

func (n *NoopSender) SendApprovalRequest(_ context.Context, toEmail, stage, _, approveURL, _ string) error {
	n.log.Info("email disabled, skipping approval request", "to", toEmail, "stage", stage, "approve_url", approveURL)
	return nil
}

func (n *NoopSender) SendSchedulingFollowUp(_ context.Context, toEmail, _ string) error {
	n.log.Info("email disabled, skipping scheduling follow-up", "to", toEmail)
	return nil
}

func (n *NoopSender) SendMeetingConfirmation(_ context.Context, toEmail, _ string, start, _ time.Time) error {
	n.log.Info("email disabled, skipping meeting confirmation", "to", toEmail, "start", start)
	return nil
}
