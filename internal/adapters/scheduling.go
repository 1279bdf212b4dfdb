package adapters

import (
	"context"
	"errors"
	"fmt"
	"time"

	"acquisition_backend/internal/agent"
	"acquisition_backend/internal/calendar"
	"acquisition_backend/internal/email"
	"acquisition_backend/internal/leads"
	"acquisition_backend/internal/leads/domain"
	"acquisition_backend/platform/apperr"
	"acquisition_backend/platform/config"
	"acquisition_backend/platform/logger"
)

// SchedulingAdapter adapts the slot extraction agent, the calendar client,
// and the mail sender to the workflow's SchedulingPort.
type SchedulingAdapter struct {
	extractor *agent.SlotExtractor
	cal       *calendar.Client
	sender    email.Sender
	duration  time.Duration
	log       *logger.Logger
}

func NewSchedulingAdapter(
	extractor *agent.SlotExtractor,
	cal *calendar.Client,
	sender email.Sender,
	policy config.Policy,
	log *logger.Logger,
) *SchedulingAdapter {
	return &SchedulingAdapter{
		extractor: extractor,
		cal:       cal,
		sender:    sender,
		duration:  policy.MeetingDuration,
		log:       log.WithComponent("scheduling"),
	}
}

// ExtractSlots parses the reply for a concrete meeting time. An empty
// result is not an error; it means the reply committed to nothing.
func (a *SchedulingAdapter) ExtractSlots(ctx context.Context, replyText string, now time.Time) ([]domain.Slot, error) {
	slot, err := a.extractor.Extract(ctx, replyText, now, a.duration)
	if err != nil {
		return nil, err
	}
	if slot == nil {
		return nil, nil
	}
	return []domain.Slot{*slot}, nil
}

// Book places the meeting on the calendar and confirms it to the invitee.
// A slot someone else took in the meantime is a permanent failure for this
// slot; retrying the same time cannot succeed.
func (a *SchedulingAdapter) Book(ctx context.Context, token string, contact domain.Contact, slot domain.Slot) (leads.BookingReceipt, error) {
	booking, err := a.cal.Book(ctx, calendar.BookingRequest{
		IdempotencyKey: token,
		Title:          fmt.Sprintf("Intro call with %s", contact.Name),
		InviteeName:    contact.Name,
		InviteeEmail:   contact.Email,
		Start:          slot.Start,
		End:            slot.End,
		Notes:          contact.Notes,
	})
	if err != nil {
		if errors.Is(err, calendar.ErrSlotTaken) {
			return leads.BookingReceipt{}, apperr.Wrap(apperr.KindValidation, "requested slot is no longer available", err)
		}
		return leads.BookingReceipt{}, apperr.Wrap(apperr.KindService, "calendar booking failed", err)
	}

	// The booking stands even if the confirmation mail does not go out.
	if err := a.sender.SendMeetingConfirmation(ctx, contact.Email, contact.Name, booking.Start, booking.End); err != nil {
		a.log.Warn("failed to send meeting confirmation", "email", contact.Email, "error", err)
	}

	return leads.BookingReceipt{
		BookingID: booking.ID,
		Slot:      domain.Slot{Start: booking.Start, End: booking.End},
		JoinURL:   booking.JoinURL,
	}, nil
}

// SendFollowUp asks the contact for a concrete time.
func (a *SchedulingAdapter) SendFollowUp(ctx context.Context, token string, contact domain.Contact) error {
	if err := a.sender.SendSchedulingFollowUp(ctx, contact.Email, contact.Name); err != nil {
		return apperr.Wrap(apperr.KindService, "follow-up delivery failed", err)
	}
	a.log.Info("scheduling follow-up sent", "email", contact.Email, "token", token)
	return nil
}

var _ leads.SchedulingPort = (*SchedulingAdapter)(nil)
