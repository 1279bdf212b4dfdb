package approval

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"acquisition_backend/internal/events"
	"acquisition_backend/internal/leads/domain"
	"acquisition_backend/platform/apperr"
	"acquisition_backend/platform/logger"
)

// Service manages approval requests and publishes their lifecycle events.
type Service struct {
	store Store
	bus   events.Bus
	log   *logger.Logger
}

func NewService(store Store, bus events.Bus, log *logger.Logger) *Service {
	return &Service{
		store: store,
		bus:   bus,
		log:   log.WithComponent("approval"),
	}
}

// RequestApproval files a request for the given gate, or returns the
// existing one for the same (lead, stage, attempt). Re-requests after a
// crash therefore land on the original request and see its decision.
func (s *Service) RequestApproval(ctx context.Context, leadID uuid.UUID, stage domain.Stage, attempt int, summary string) (*Request, error) {
	if !domain.IsGated(stage) {
		return nil, apperr.Validation("stage does not take approvals").WithDetails(map[string]string{"stage": string(stage)})
	}

	existing, err := s.store.FindByToken(ctx, leadID, stage, attempt)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, apperr.Wrap(apperr.KindInternal, "look up approval request", err)
	}

	req := &Request{
		ID:          uuid.New(),
		LeadID:      leadID,
		Stage:       stage,
		Attempt:     attempt,
		Summary:     summary,
		Status:      StatusPending,
		RequestedAt: time.Now().UTC(),
	}
	if err := s.store.Create(ctx, req); err != nil {
		if errors.Is(err, ErrDuplicate) {
			// Lost a race with a concurrent re-request; theirs counts.
			return s.store.FindByToken(ctx, leadID, stage, attempt)
		}
		return nil, apperr.Wrap(apperr.KindInternal, "create approval request", err)
	}

	s.log.Info("approval requested",
		"request_id", req.ID.String(),
		"lead_id", leadID.String(),
		"stage", string(stage),
		"attempt", attempt,
	)
	s.bus.Publish(ctx, events.ApprovalRequested{
		BaseEvent: events.NewBaseEvent(),
		RequestID: req.ID.String(),
		LeadID:    leadID,
		Stage:     stage,
		Summary:   summary,
	})
	return req, nil
}

// Resolve records a decision on a pending request. Resolving twice is a
// conflict; the first decision stands.
func (s *Service) Resolve(ctx context.Context, id uuid.UUID, approved bool, reason string) (*Request, error) {
	req, err := s.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, apperr.NotFound("approval request not found")
		}
		return nil, apperr.Wrap(apperr.KindInternal, "load approval request", err)
	}
	if req.Resolved() {
		return nil, apperr.Conflict("approval request already resolved").WithDetails(map[string]string{
			"status": string(req.Status),
		})
	}

	now := time.Now().UTC()
	req.Status = StatusApproved
	if !approved {
		req.Status = StatusRejected
	}
	if reason != "" {
		req.Reason = &reason
	}
	req.ResolvedAt = &now

	if err := s.store.Update(ctx, req); err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "record approval decision", err)
	}

	s.log.Info("approval resolved",
		"request_id", req.ID.String(),
		"lead_id", req.LeadID.String(),
		"stage", string(req.Stage),
		"approved", approved,
	)
	s.bus.Publish(ctx, events.ApprovalResolved{
		BaseEvent: events.NewBaseEvent(),
		RequestID: req.ID.String(),
		LeadID:    req.LeadID,
		Stage:     req.Stage,
		Approved:  approved,
		Reason:    reason,
	})
	return req, nil
}

// Status returns the request by ID.
func (s *Service) Status(ctx context.Context, id uuid.UUID) (*Request, error) {
	req, err := s.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, apperr.NotFound("approval request not found")
		}
		return nil, apperr.Wrap(apperr.KindInternal, "load approval request", err)
	}
	return req, nil
}

// StatusForToken returns the request for (lead, stage, attempt), or
// NotFound when nothing has been requested yet.
func (s *Service) StatusForToken(ctx context.Context, leadID uuid.UUID, stage domain.Stage, attempt int) (*Request, error) {
	req, err := s.store.FindByToken(ctx, leadID, stage, attempt)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, apperr.NotFound("no approval request for this attempt")
		}
		return nil, apperr.Wrap(apperr.KindInternal, "look up approval request", err)
	}
	return req, nil
}

// ListPending returns requests still waiting for a decision.
func (s *Service) ListPending(ctx context.Context) ([]*Request, error) {
	return s.store.ListPending(ctx)
}

// ListByLead returns every request ever filed for a lead.
func (s *Service) ListByLead(ctx context.Context, leadID uuid.UUID) ([]*Request, error) {
	return s.store.ListByLead(ctx, leadID)
}
