// Package repository persists lead records and workflow runs. Both the
// Postgres and in-memory implementations share the same optimistic
// concurrency contract: Save compares the caller's version against the
// stored one and refuses stale writes.
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"acquisition_backend/internal/leads/domain"
)

var (
	// ErrNotFound is returned when a lead does not exist.
	ErrNotFound = errors.New("lead not found")
	// ErrVersionConflict is returned when a save carries a stale version.
	// The write did not happen; the caller must re-read and re-evaluate.
	ErrVersionConflict = errors.New("lead version conflict")
	// ErrRunNotFound is returned when a lead has no workflow run.
	ErrRunNotFound = errors.New("workflow run not found")
)

// Store is the lead record store contract.
type Store interface {
	Create(ctx context.Context, rec *domain.LeadRecord) error
	Get(ctx context.Context, id uuid.UUID) (*domain.LeadRecord, error)
	FindByEmail(ctx context.Context, email string) (*domain.LeadRecord, error)
	// Save writes the record if the stored version still matches
	// rec.Version, then bumps rec.Version. Stale saves fail with
	// ErrVersionConflict.
	Save(ctx context.Context, rec *domain.LeadRecord) error
	ListByStage(ctx context.Context, stage domain.Stage) ([]*domain.LeadRecord, error)
	ListAnalyzable(ctx context.Context) ([]*domain.LeadRecord, error)
	ListReplyOverdue(ctx context.Context, sentBefore time.Time) ([]*domain.LeadRecord, error)
	StageCounts(ctx context.Context) (map[domain.Stage]int, error)
	Archive(ctx context.Context, id uuid.UUID) error
}

// RunStore is the workflow run store contract. One run per lead.
type RunStore interface {
	GetRun(ctx context.Context, leadID uuid.UUID) (*domain.WorkflowRun, error)
	SaveRun(ctx context.Context, run *domain.WorkflowRun) error
	DeleteRun(ctx context.Context, leadID uuid.UUID) error
	ListRuns(ctx context.Context) ([]*domain.WorkflowRun, error)
}

// Repository is the Postgres-backed Store and RunStore.
type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const leadColumns = `
	id, contact_name, contact_email, contact_phone, contact_company, contact_notes,
	score, stage, draft, sent_at, reply, slot, transcript_ref, analysis,
	retry_counts, last_error, approvals, failed_from, version, created_at, updated_at`

// Create inserts a new lead at version 1.
func (r *Repository) Create(ctx context.Context, rec *domain.LeadRecord) error {
	fields, err := encodeLead(rec)
	if err != nil {
		return err
	}

	rec.Version = 1
	_, err = r.pool.Exec(ctx, `
		INSERT INTO leads (
			id, contact_name, contact_email, contact_phone, contact_company, contact_notes,
			score, stage, draft, sent_at, reply, slot, transcript_ref, analysis,
			retry_counts, last_error, approvals, failed_from, version, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10, $11, $12, $13, $14,
			$15, $16, $17, $18, $19, $20, $21
		)
	`,
		rec.ID, rec.Contact.Name, rec.Contact.Email, rec.Contact.Phone, rec.Contact.Company, rec.Contact.Notes,
		rec.Score, string(rec.Stage), fields.draft, rec.SentAt, rec.Reply, fields.slot, rec.TranscriptRef, fields.analysis,
		fields.retryCounts, rec.LastError, fields.approvals, stagePtr(rec.FailedFrom), rec.Version, rec.CreatedAt, rec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create lead: %w", err)
	}
	return nil
}

// Get returns the lead by ID.
func (r *Repository) Get(ctx context.Context, id uuid.UUID) (*domain.LeadRecord, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+leadColumns+` FROM leads WHERE id = $1`, id)
	rec, err := scanLead(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return rec, err
}

// FindByEmail returns the lead whose contact email matches, for reply
// correlation. The most recently created lead wins when an address was
// ingested twice.
func (r *Repository) FindByEmail(ctx context.Context, email string) (*domain.LeadRecord, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+leadColumns+`
		FROM leads
		WHERE lower(contact_email) = lower($1)
		ORDER BY created_at DESC
		LIMIT 1
	`, email)
	rec, err := scanLead(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return rec, err
}

// Save writes the record guarded by its version and bumps it on success.
func (r *Repository) Save(ctx context.Context, rec *domain.LeadRecord) error {
	fields, err := encodeLead(rec)
	if err != nil {
		return err
	}

	rec.UpdatedAt = time.Now().UTC()
	tag, err := r.pool.Exec(ctx, `
		UPDATE leads SET
			contact_name = $3, contact_email = $4, contact_phone = $5, contact_company = $6, contact_notes = $7,
			score = $8, stage = $9, draft = $10, sent_at = $11, reply = $12, slot = $13,
			transcript_ref = $14, analysis = $15, retry_counts = $16, last_error = $17,
			approvals = $18, failed_from = $19, version = version + 1, updated_at = $20
		WHERE id = $1 AND version = $2
	`,
		rec.ID, rec.Version,
		rec.Contact.Name, rec.Contact.Email, rec.Contact.Phone, rec.Contact.Company, rec.Contact.Notes,
		rec.Score, string(rec.Stage), fields.draft, rec.SentAt, rec.Reply, fields.slot,
		rec.TranscriptRef, fields.analysis, fields.retryCounts, rec.LastError,
		fields.approvals, stagePtr(rec.FailedFrom), rec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("save lead: %w", err)
	}

	if tag.RowsAffected() == 0 {
		var exists bool
		if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM leads WHERE id = $1)`, rec.ID).Scan(&exists); err != nil {
			return fmt.Errorf("save lead: %w", err)
		}
		if !exists {
			return ErrNotFound
		}
		return ErrVersionConflict
	}

	rec.Version++
	return nil
}

// ListByStage returns all leads at the given stage, oldest first.
func (r *Repository) ListByStage(ctx context.Context, stage domain.Stage) ([]*domain.LeadRecord, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+leadColumns+`
		FROM leads
		WHERE stage = $1
		ORDER BY created_at ASC
	`, string(stage))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectLeads(rows)
}

// ListAnalyzable returns leads with a transcript but no analysis yet,
// excluding dead branches.
func (r *Repository) ListAnalyzable(ctx context.Context) ([]*domain.LeadRecord, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+leadColumns+`
		FROM leads
		WHERE transcript_ref IS NOT NULL
		  AND analysis IS NULL
		  AND stage NOT IN ('FAILED', 'ABANDONED', 'ANALYZED')
		ORDER BY created_at ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectLeads(rows)
}

// ListReplyOverdue returns awaiting-reply leads sent at or before the
// cutoff, for the abandonment sweep.
func (r *Repository) ListReplyOverdue(ctx context.Context, sentBefore time.Time) ([]*domain.LeadRecord, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+leadColumns+`
		FROM leads
		WHERE stage = $1 AND sent_at IS NOT NULL AND sent_at <= $2
		ORDER BY sent_at ASC
	`, string(domain.StageAwaitingReply), sentBefore)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectLeads(rows)
}

// StageCounts returns the number of leads per stage.
func (r *Repository) StageCounts(ctx context.Context) (map[domain.Stage]int, error) {
	rows, err := r.pool.Query(ctx, `SELECT stage, COUNT(*) FROM leads GROUP BY stage`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[domain.Stage]int)
	for rows.Next() {
		var stage string
		var count int
		if err := rows.Scan(&stage, &count); err != nil {
			return nil, err
		}
		counts[domain.Stage(stage)] = count
	}
	return counts, rows.Err()
}

// Archive removes the lead and its run. Deletion is only ever explicit.
func (r *Repository) Archive(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM leads WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("archive lead: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	if _, err := r.pool.Exec(ctx, `DELETE FROM workflow_runs WHERE lead_id = $1`, id); err != nil {
		return fmt.Errorf("archive lead run: %w", err)
	}
	return nil
}

type encodedLead struct {
	draft       []byte
	slot        []byte
	analysis    []byte
	retryCounts []byte
	approvals   []byte
}

func encodeLead(rec *domain.LeadRecord) (encodedLead, error) {
	var enc encodedLead
	var err error

	if rec.Draft != nil {
		if enc.draft, err = json.Marshal(rec.Draft); err != nil {
			return enc, fmt.Errorf("encode draft: %w", err)
		}
	}
	if rec.Slot != nil {
		if enc.slot, err = json.Marshal(rec.Slot); err != nil {
			return enc, fmt.Errorf("encode slot: %w", err)
		}
	}
	if rec.Analysis != nil {
		if enc.analysis, err = json.Marshal(rec.Analysis); err != nil {
			return enc, fmt.Errorf("encode analysis: %w", err)
		}
	}
	if enc.retryCounts, err = json.Marshal(rec.RetryCounts); err != nil {
		return enc, fmt.Errorf("encode retry counts: %w", err)
	}
	if enc.approvals, err = json.Marshal(rec.Approvals); err != nil {
		return enc, fmt.Errorf("encode approvals: %w", err)
	}
	return enc, nil
}

func scanLead(row pgx.Row) (*domain.LeadRecord, error) {
	var rec domain.LeadRecord
	var stage string
	var draft, slot, analysis, retryCounts, approvals []byte
	var failedFrom *string

	err := row.Scan(
		&rec.ID, &rec.Contact.Name, &rec.Contact.Email, &rec.Contact.Phone, &rec.Contact.Company, &rec.Contact.Notes,
		&rec.Score, &stage, &draft, &rec.SentAt, &rec.Reply, &slot, &rec.TranscriptRef, &analysis,
		&retryCounts, &rec.LastError, &approvals, &failedFrom, &rec.Version, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	rec.Stage = domain.Stage(stage)
	if failedFrom != nil {
		origin := domain.Stage(*failedFrom)
		rec.FailedFrom = &origin
	}
	if len(draft) > 0 {
		if err := json.Unmarshal(draft, &rec.Draft); err != nil {
			return nil, fmt.Errorf("decode draft: %w", err)
		}
	}
	if len(slot) > 0 {
		if err := json.Unmarshal(slot, &rec.Slot); err != nil {
			return nil, fmt.Errorf("decode slot: %w", err)
		}
	}
	if len(analysis) > 0 {
		if err := json.Unmarshal(analysis, &rec.Analysis); err != nil {
			return nil, fmt.Errorf("decode analysis: %w", err)
		}
	}
	if len(retryCounts) > 0 {
		if err := json.Unmarshal(retryCounts, &rec.RetryCounts); err != nil {
			return nil, fmt.Errorf("decode retry counts: %w", err)
		}
	}
	if rec.RetryCounts == nil {
		rec.RetryCounts = make(map[domain.Stage]int)
	}
	if len(approvals) > 0 {
		if err := json.Unmarshal(approvals, &rec.Approvals); err != nil {
			return nil, fmt.Errorf("decode approvals: %w", err)
		}
	}
	if rec.Approvals == nil {
		rec.Approvals = make(map[domain.Stage]bool)
	}

	return &rec, nil
}

func collectLeads(rows pgx.Rows) ([]*domain.LeadRecord, error) {
	items := make([]*domain.LeadRecord, 0)
	for rows.Next() {
		rec, err := scanLead(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, rec)
	}
	return items, rows.Err()
}

func stagePtr(s *domain.Stage) *string {
	if s == nil {
		return nil
	}
	str := string(*s)
	return &str
}
