package domain

import (
	"time"

	"github.com/google/uuid"
)

// ActionType names what a suspended run is waiting on.
type ActionType string

const (
	// ActionNone means the run can progress on the next tick.
	ActionNone ActionType = ""
	// ActionApproval means the run is suspended on a human decision.
	ActionApproval ActionType = "approval"
	// ActionReplyWait means the run is suspended on an inbox reply.
	ActionReplyWait ActionType = "reply_wait"
	// ActionRetry means the run is backing off before another attempt.
	ActionRetry ActionType = "retry"
)

// PendingAction describes what a run is suspended on, with enough state to
// resume after a restart: the approval being awaited, the abandonment
// deadline for reply waits, and the earliest next-attempt time for retries.
type PendingAction struct {
	Type       ActionType `json:"type,omitempty"`
	ApprovalID string     `json:"approval_id,omitempty"`
	Deadline   *time.Time `json:"deadline,omitempty"`
	ResumeAt   *time.Time `json:"resume_at,omitempty"`
	Attempt    int        `json:"attempt,omitempty"`
}

// WorkflowRun ties a lead to one orchestration session. There is at most one
// run per lead; the orchestrator owns it exclusively and persists it so an
// interrupted process resumes where it stopped.
type WorkflowRun struct {
	ID        uuid.UUID     `json:"id"`
	LeadID    uuid.UUID     `json:"lead_id"`
	Stage     Stage         `json:"stage"`
	Pending   PendingAction `json:"pending"`
	StartedAt time.Time     `json:"started_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// NewWorkflowRun opens an orchestration session for a lead.
func NewWorkflowRun(leadID uuid.UUID, stage Stage) *WorkflowRun {
	now := time.Now().UTC()
	return &WorkflowRun{
		ID:        uuid.New(),
		LeadID:    leadID,
		Stage:     stage,
		StartedAt: now,
		UpdatedAt: now,
	}
}

// Due reports whether the run may be dispatched at the given instant. Runs
// backing off before a retry are not due until their resume time passes;
// runs suspended on approvals or replies are dispatched so the tick can
// check their external signal.
func (w *WorkflowRun) Due(now time.Time) bool {
	if w.Pending.Type == ActionRetry && w.Pending.ResumeAt != nil {
		return !now.Before(*w.Pending.ResumeAt)
	}
	return true
}

// Suspend records what the run is waiting on.
func (w *WorkflowRun) Suspend(action PendingAction) {
	w.Pending = action
	w.UpdatedAt = time.Now().UTC()
}

// Resume clears the pending action after the awaited signal arrived.
func (w *WorkflowRun) Resume(stage Stage) {
	w.Stage = stage
	w.Pending = PendingAction{}
	w.UpdatedAt = time.Now().UTC()
}

// Clone returns a deep copy of the run.
func (w *WorkflowRun) Clone() *WorkflowRun {
	if w == nil {
		return nil
	}
	dup := *w
	if w.Pending.Deadline != nil {
		deadline := *w.Pending.Deadline
		dup.Pending.Deadline = &deadline
	}
	if w.Pending.ResumeAt != nil {
		resumeAt := *w.Pending.ResumeAt
		dup.Pending.ResumeAt = &resumeAt
	}
	return &dup
}
