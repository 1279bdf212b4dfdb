package adapters

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"

	"acquisition_backend/internal/agent"
	"acquisition_backend/internal/email"
	"acquisition_backend/internal/leads"
	"acquisition_backend/internal/leads/domain"
	"acquisition_backend/internal/leads/repository"
	"acquisition_backend/platform/apperr"
	"acquisition_backend/platform/logger"
)

// LeadLookup resolves an inbound sender address to a lead. The store
// satisfies it; the adapter needs nothing else from the repository.
type LeadLookup interface {
	FindByEmail(ctx context.Context, email string) (*domain.LeadRecord, error)
}

// OutreachAdapter adapts the drafting agent, the SMTP sender, and the IMAP
// inbox to the workflow's OutreachPort.
type OutreachAdapter struct {
	drafter *agent.Drafter
	sender  email.Sender
	inbox   *email.IMAPPoller
	lookup  LeadLookup
	log     *logger.Logger
}

func NewOutreachAdapter(
	drafter *agent.Drafter,
	sender email.Sender,
	inbox *email.IMAPPoller,
	lookup LeadLookup,
	log *logger.Logger,
) *OutreachAdapter {
	return &OutreachAdapter{
		drafter: drafter,
		sender:  sender,
		inbox:   inbox,
		lookup:  lookup,
		log:     log.WithComponent("outreach"),
	}
}

// Draft generates the personalized outreach message.
func (a *OutreachAdapter) Draft(ctx context.Context, contact domain.Contact) (domain.Draft, error) {
	return a.drafter.Draft(ctx, contact)
}

// Send delivers the approved draft. SMTP reports no message ID, so the
// receipt carries a generated one for the audit trail.
func (a *OutreachAdapter) Send(ctx context.Context, token string, contact domain.Contact, draft domain.Draft) (leads.SendReceipt, error) {
	if err := a.sender.SendOutreach(ctx, contact.Email, contact.Name, draft.Subject, draft.Body); err != nil {
		return leads.SendReceipt{}, apperr.Wrap(apperr.KindService, "outreach delivery failed", err)
	}

	a.log.Info("outreach sent", "email", contact.Email, "token", token)
	return leads.SendReceipt{
		MessageID: uuid.New().String(),
		SentAt:    time.Now().UTC(),
	}, nil
}

// PollReplies pulls unseen human replies and matches them to leads by
// sender address. Mail from unknown senders is marked seen and dropped
// here; everything returned stays unseen until the workflow acks it, so
// delivery to the record is at-least-once. The since hint is unused: the
// IMAP search is by the unseen flag, which already scopes the fetch.
func (a *OutreachAdapter) PollReplies(ctx context.Context, _ time.Time) ([]leads.Reply, error) {
	if a.inbox == nil {
		return nil, nil
	}
	inbound, err := a.inbox.FetchUnread(ctx)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindService, "inbox fetch failed", err)
	}

	var (
		replies []leads.Reply
		drop    []int
	)
	for _, msg := range inbound {
		lead, err := a.lookup.FindByEmail(ctx, msg.From)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				a.log.Info("dropping mail from unknown sender", "from", msg.From, "subject", msg.Subject)
				drop = append(drop, msg.UID)
				continue
			}
			return nil, apperr.Wrap(apperr.KindInternal, "lead lookup failed", err)
		}

		replies = append(replies, leads.Reply{
			Token:      strconv.Itoa(msg.UID),
			LeadID:     lead.ID,
			Text:       msg.Body,
			ReceivedAt: msg.Sent,
		})
	}

	if len(drop) > 0 {
		if err := a.inbox.MarkProcessed(ctx, drop...); err != nil {
			a.log.Warn("failed to mark unmatched mail seen", "error", err)
		}
	}
	return replies, nil
}

// AckReplies marks handled messages seen so they stop reappearing.
func (a *OutreachAdapter) AckReplies(ctx context.Context, tokens ...string) error {
	uids := make([]int, 0, len(tokens))
	for _, token := range tokens {
		uid, err := strconv.Atoi(token)
		if err != nil {
			return apperr.Validation("malformed reply token " + token)
		}
		uids = append(uids, uid)
	}
	if len(uids) == 0 || a.inbox == nil {
		return nil
	}
	return a.inbox.MarkProcessed(ctx, uids...)
}

var _ leads.OutreachPort = (*OutreachAdapter)(nil)
