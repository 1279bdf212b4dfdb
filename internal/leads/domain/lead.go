package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Contact is the lead's contact information captured at intake.
type Contact struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Phone   string `json:"phone,omitempty"`
	Company string `json:"company,omitempty"`
	Notes   string `json:"notes,omitempty"`
}

// Draft is a generated outreach message awaiting approval.
type Draft struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// Slot is a candidate or booked meeting time.
type Slot struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// AnalysisSummary is the structured result of transcript analysis.
type AnalysisSummary struct {
	Summary         string   `json:"summary"`
	TopThemes       []string `json:"top_themes"`
	PainPoints      []string `json:"pain_points"`
	NextBestActions []string `json:"next_best_actions"`
	Sentiment       string   `json:"sentiment"`
	NotableQuotes   []string `json:"notable_quotes"`
}

// LeadRecord is the durable per-lead state. Only the workflow mutates it;
// ports return results that the workflow applies. Version backs the store's
// optimistic-concurrency save.
type LeadRecord struct {
	ID            uuid.UUID        `json:"id"`
	Contact       Contact          `json:"contact"`
	Score         *float64         `json:"score,omitempty"`
	Stage         Stage            `json:"stage"`
	Draft         *Draft           `json:"draft,omitempty"`
	SentAt        *time.Time       `json:"sent_at,omitempty"`
	Reply         *string          `json:"reply,omitempty"`
	Slot          *Slot            `json:"slot,omitempty"`
	TranscriptRef *string          `json:"transcript_ref,omitempty"`
	Analysis      *AnalysisSummary `json:"analysis,omitempty"`
	RetryCounts   map[Stage]int    `json:"retry_counts,omitempty"`
	LastError     *string          `json:"last_error,omitempty"`
	Approvals     map[Stage]bool   `json:"approvals,omitempty"`
	FailedFrom    *Stage           `json:"failed_from,omitempty"`
	Version       int64            `json:"version"`
	CreatedAt     time.Time        `json:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
}

// NewLeadRecord creates a lead at the start of the pipeline.
func NewLeadRecord(contact Contact) *LeadRecord {
	now := time.Now().UTC()
	return &LeadRecord{
		ID:          uuid.New(),
		Contact:     contact,
		Stage:       StageDiscovered,
		RetryCounts: make(map[Stage]int),
		Approvals:   make(map[Stage]bool),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Attempts returns the recorded retry count for a stage.
func (r *LeadRecord) Attempts(stage Stage) int {
	if r.RetryCounts == nil {
		return 0
	}
	return r.RetryCounts[stage]
}

// RecordFailure increments the stage's retry counter and stores the error.
func (r *LeadRecord) RecordFailure(stage Stage, message string) {
	if r.RetryCounts == nil {
		r.RetryCounts = make(map[Stage]int)
	}
	r.RetryCounts[stage]++
	r.LastError = &message
}

// ClearError drops the recorded last error after a successful step.
func (r *LeadRecord) ClearError() {
	r.LastError = nil
}

// AdvanceAttempt opens a new attempt for a stage without recording a
// failure. A fresh clarification reply uses it so the next follow-up token
// differs from the one already consumed.
func (r *LeadRecord) AdvanceAttempt(stage Stage) {
	if r.RetryCounts == nil {
		r.RetryCounts = make(map[Stage]int)
	}
	r.RetryCounts[stage]++
}

// GrantApproval marks the gated stage approved. The flag is write-once:
// granting an already-approved stage is a no-op, and nothing ever unsets it.
func (r *LeadRecord) GrantApproval(stage Stage) {
	if r.Approvals == nil {
		r.Approvals = make(map[Stage]bool)
	}
	r.Approvals[stage] = true
}

// Approved reports whether the gated stage has a recorded approval.
func (r *LeadRecord) Approved(stage Stage) bool {
	if r.Approvals == nil {
		return false
	}
	return r.Approvals[stage]
}

// IdempotencyToken derives the at-most-once key for a side effect at the
// given stage: (lead, stage, attempt). A new attempt after a recorded
// failure yields a new token; everything else reuses the same one.
func (r *LeadRecord) IdempotencyToken(stage Stage) string {
	return fmt.Sprintf("%s:%s:%d", r.ID, stage, r.Attempts(stage))
}

// Clone returns a deep copy. Mutating the copy never touches the
// original, which keeps batch snapshots and store reads isolated.
func (r *LeadRecord) Clone() *LeadRecord {
	if r == nil {
		return nil
	}
	dup := *r
	if r.Score != nil {
		score := *r.Score
		dup.Score = &score
	}
	if r.Draft != nil {
		draft := *r.Draft
		dup.Draft = &draft
	}
	if r.SentAt != nil {
		sentAt := *r.SentAt
		dup.SentAt = &sentAt
	}
	if r.Reply != nil {
		reply := *r.Reply
		dup.Reply = &reply
	}
	if r.Slot != nil {
		slot := *r.Slot
		dup.Slot = &slot
	}
	if r.TranscriptRef != nil {
		ref := *r.TranscriptRef
		dup.TranscriptRef = &ref
	}
	if r.Analysis != nil {
		analysis := *r.Analysis
		analysis.TopThemes = append([]string(nil), r.Analysis.TopThemes...)
		analysis.PainPoints = append([]string(nil), r.Analysis.PainPoints...)
		analysis.NextBestActions = append([]string(nil), r.Analysis.NextBestActions...)
		analysis.NotableQuotes = append([]string(nil), r.Analysis.NotableQuotes...)
		dup.Analysis = &analysis
	}
	if r.LastError != nil {
		lastErr := *r.LastError
		dup.LastError = &lastErr
	}
	if r.FailedFrom != nil {
		origin := *r.FailedFrom
		dup.FailedFrom = &origin
	}
	dup.RetryCounts = make(map[Stage]int, len(r.RetryCounts))
	for k, v := range r.RetryCounts {
		dup.RetryCounts[k] = v
	}
	dup.Approvals = make(map[Stage]bool, len(r.Approvals))
	for k, v := range r.Approvals {
		dup.Approvals[k] = v
	}
	return &dup
}

// ValidateRecord checks the record's stage/data consistency. It returns
// false with a reason when a field required by the current stage is absent
// or a gate was skipped.
func ValidateRecord(r *LeadRecord) (bool, string) {
	if !IsKnownStage(r.Stage) {
		return false, fmt.Sprintf("unknown stage %q", r.Stage)
	}

	switch r.Stage {
	case StageScored, StageShortlisted:
		if r.Score == nil {
			return false, "scored lead is missing its score"
		}
	case StageDrafted, StageAwaitingSendApproval:
		if r.Draft == nil {
			return false, "drafted lead is missing its draft"
		}
	case StageSent, StageAwaitingReply:
		if r.SentAt == nil {
			return false, "sent lead is missing its send timestamp"
		}
		if !r.Approved(StageAwaitingSendApproval) {
			return false, "sent lead is missing its send approval"
		}
	case StageReplyReceived, StageAwaitingScheduleApproval:
		if r.Reply == nil {
			return false, "reply stage without reply content"
		}
	case StageScheduled:
		if r.Slot == nil {
			return false, "scheduled lead is missing its slot"
		}
		if !r.Approved(StageAwaitingScheduleApproval) {
			return false, "scheduled lead is missing its schedule approval"
		}
	case StageAnalyzed:
		if r.Analysis == nil {
			return false, "analyzed lead is missing its summary"
		}
	case StageFailed:
		if r.FailedFrom == nil {
			return false, "failed lead is missing its origin stage"
		}
	}

	return true, ""
}
