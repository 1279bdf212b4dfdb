// Package adapters binds the surrounding services (agents, mail, calendar,
// object storage) to the ports the lead workflow consumes. Each adapter
// translates between the workflow's contract and one service's API; no
// pipeline logic lives here.
package adapters

import (
	"context"

	"acquisition_backend/internal/agent"
	"acquisition_backend/internal/leads/domain"
	"acquisition_backend/platform/logger"
)

// ScoringAdapter adapts the intent scoring agent to the workflow's
// ScoringPort.
type ScoringAdapter struct {
	scorer *agent.Scorer
	log    *logger.Logger
}

func NewScoringAdapter(scorer *agent.Scorer, log *logger.Logger) *ScoringAdapter {
	return &ScoringAdapter{scorer: scorer, log: log.WithComponent("scoring")}
}

// Score returns the contact's intent score. The agent's rationale is
// logged, not persisted; the record only carries the number.
func (a *ScoringAdapter) Score(ctx context.Context, contact domain.Contact) (float64, error) {
	score, rationale, err := a.scorer.Score(ctx, contact)
	if err != nil {
		return 0, err
	}
	if rationale != "" {
		a.log.Debug("scored contact", "email", contact.Email, "score", score, "rationale", rationale)
	}
	return score, nil
}
