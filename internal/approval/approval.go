// Package approval implements the human gate. Side effects that need an
// operator's sign-off suspend on a request here; the workflow resumes once
// the request is approved or rejected. Requests are idempotent per
// (lead, stage, attempt), so re-entering a gated stage never files a
// duplicate.
package approval

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"acquisition_backend/internal/leads/domain"
)

// Status is the lifecycle of an approval request.
type Status string

const (
	StatusPending  Status = "PENDING"
	StatusApproved Status = "APPROVED"
	StatusRejected Status = "REJECTED"
)

// Request is a pending or resolved approval.
type Request struct {
	ID          uuid.UUID    `json:"id"`
	LeadID      uuid.UUID    `json:"lead_id"`
	Stage       domain.Stage `json:"stage"`
	Attempt     int          `json:"attempt"`
	Summary     string       `json:"summary"`
	Status      Status       `json:"status"`
	Reason      *string      `json:"reason,omitempty"`
	RequestedAt time.Time    `json:"requested_at"`
	ResolvedAt  *time.Time   `json:"resolved_at,omitempty"`
}

// Resolved reports whether a decision has been recorded.
func (r *Request) Resolved() bool {
	return r.Status != StatusPending
}

var (
	// ErrNotFound is returned when an approval request does not exist.
	ErrNotFound = errors.New("approval request not found")
	// ErrDuplicate is returned when a request for the same
	// (lead, stage, attempt) already exists.
	ErrDuplicate = errors.New("approval request already exists")
)

// Store is the approval request store contract.
type Store interface {
	Create(ctx context.Context, req *Request) error
	Get(ctx context.Context, id uuid.UUID) (*Request, error)
	// FindByToken returns the request for (lead, stage, attempt)
	// regardless of its status.
	FindByToken(ctx context.Context, leadID uuid.UUID, stage domain.Stage, attempt int) (*Request, error)
	Update(ctx context.Context, req *Request) error
	ListPending(ctx context.Context) ([]*Request, error)
	ListByLead(ctx context.Context, leadID uuid.UUID) ([]*Request, error)
	// DeleteResolvedBefore removes requests decided before the cutoff.
	// Pending requests are never removed.
	DeleteResolvedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
