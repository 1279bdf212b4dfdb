package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"acquisition_backend/internal/leads/domain"
)

// GetRun returns the workflow run for a lead.
func (r *Repository) GetRun(ctx context.Context, leadID uuid.UUID) (*domain.WorkflowRun, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, lead_id, stage, pending, started_at, updated_at
		FROM workflow_runs
		WHERE lead_id = $1
	`, leadID)
	run, err := scanRun(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	return run, err
}

// SaveRun upserts the run. Each lead has at most one.
func (r *Repository) SaveRun(ctx context.Context, run *domain.WorkflowRun) error {
	pending, err := json.Marshal(run.Pending)
	if err != nil {
		return fmt.Errorf("encode pending action: %w", err)
	}

	run.UpdatedAt = time.Now().UTC()
	_, err = r.pool.Exec(ctx, `
		INSERT INTO workflow_runs (id, lead_id, stage, pending, started_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (lead_id) DO UPDATE SET
			stage = EXCLUDED.stage,
			pending = EXCLUDED.pending,
			updated_at = EXCLUDED.updated_at
	`, run.ID, run.LeadID, string(run.Stage), pending, run.StartedAt, run.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save run: %w", err)
	}
	return nil
}

// DeleteRun removes the run when a lead reaches a terminal stage.
func (r *Repository) DeleteRun(ctx context.Context, leadID uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM workflow_runs WHERE lead_id = $1`, leadID)
	if err != nil {
		return fmt.Errorf("delete run: %w", err)
	}
	return nil
}

// ListRuns returns every live run, for the scheduler tick and for
// recovery after a restart.
func (r *Repository) ListRuns(ctx context.Context) ([]*domain.WorkflowRun, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, lead_id, stage, pending, started_at, updated_at
		FROM workflow_runs
		ORDER BY started_at ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]*domain.WorkflowRun, 0)
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, run)
	}
	return items, rows.Err()
}

func scanRun(row pgx.Row) (*domain.WorkflowRun, error) {
	var run domain.WorkflowRun
	var stage string
	var pending []byte

	err := row.Scan(&run.ID, &run.LeadID, &stage, &pending, &run.StartedAt, &run.UpdatedAt)
	if err != nil {
		return nil, err
	}

	run.Stage = domain.Stage(stage)
	if len(pending) > 0 {
		if err := json.Unmarshal(pending, &run.Pending); err != nil {
			return nil, fmt.Errorf("decode pending action: %w", err)
		}
	}
	return &run, nil
}
