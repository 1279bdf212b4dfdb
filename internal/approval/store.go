package approval

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"acquisition_backend/internal/leads/domain"
)

// PostgresStore persists approval requests. The (lead_id, stage, attempt)
// unique index backs the idempotent request contract.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const requestColumns = `id, lead_id, stage, attempt, summary, status, reason, requested_at, resolved_at`

func (s *PostgresStore) Create(ctx context.Context, req *Request) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO approval_requests (id, lead_id, stage, attempt, summary, status, reason, requested_at, resolved_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, req.ID, req.LeadID, string(req.Stage), req.Attempt, req.Summary, string(req.Status), req.Reason, req.RequestedAt, req.ResolvedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicate
		}
		return fmt.Errorf("create approval request: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id uuid.UUID) (*Request, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+requestColumns+` FROM approval_requests WHERE id = $1`, id)
	req, err := scanRequest(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return req, err
}

func (s *PostgresStore) FindByToken(ctx context.Context, leadID uuid.UUID, stage domain.Stage, attempt int) (*Request, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+requestColumns+`
		FROM approval_requests
		WHERE lead_id = $1 AND stage = $2 AND attempt = $3
	`, leadID, string(stage), attempt)
	req, err := scanRequest(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return req, err
}

func (s *PostgresStore) Update(ctx context.Context, req *Request) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE approval_requests
		SET status = $2, reason = $3, resolved_at = $4
		WHERE id = $1
	`, req.ID, string(req.Status), req.Reason, req.ResolvedAt)
	if err != nil {
		return fmt.Errorf("update approval request: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ListPending(ctx context.Context) ([]*Request, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+requestColumns+`
		FROM approval_requests
		WHERE status = $1
		ORDER BY requested_at ASC
	`, string(StatusPending))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRequests(rows)
}

func (s *PostgresStore) DeleteResolvedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM approval_requests
		WHERE status <> $1 AND resolved_at IS NOT NULL AND resolved_at < $2
	`, string(StatusPending), cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete resolved approval requests: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *PostgresStore) ListByLead(ctx context.Context, leadID uuid.UUID) ([]*Request, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+requestColumns+`
		FROM approval_requests
		WHERE lead_id = $1
		ORDER BY requested_at ASC
	`, leadID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRequests(rows)
}

func scanRequest(row pgx.Row) (*Request, error) {
	var req Request
	var stage, status string
	err := row.Scan(&req.ID, &req.LeadID, &stage, &req.Attempt, &req.Summary, &status, &req.Reason, &req.RequestedAt, &req.ResolvedAt)
	if err != nil {
		return nil, err
	}
	req.Stage = domain.Stage(stage)
	req.Status = Status(status)
	return &req, nil
}

func collectRequests(rows pgx.Rows) ([]*Request, error) {
	items := make([]*Request, 0)
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, req)
	}
	return items, rows.Err()
}
