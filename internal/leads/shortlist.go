package leads

import (
	"context"
	"errors"
	"sort"

	"acquisition_backend/internal/events"
	"acquisition_backend/internal/leads/domain"
	"acquisition_backend/platform/apperr"
)

// ShortlistResult reports one batch pass over the scored pool.
type ShortlistResult struct {
	Considered int `json:"considered"`
	Eligible   int `json:"eligible"`
	Promoted   int `json:"promoted"`
	Skipped    int `json:"skipped"`
}

// Shortlist promotes the top-K scored leads to SHORTLISTED in one pass over
// a snapshot of the SCORED pool. Leads that miss the cut stay SCORED and
// compete again next pass; there is no rejection in this step. A version
// conflict on one winner skips that lead only, the rest of the batch still
// commits.
func (w *Workflow) Shortlist(ctx context.Context) (*ShortlistResult, error) {
	pool, err := w.store.ListByStage(ctx, domain.StageScored)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "failed to list scored leads", err)
	}

	result := &ShortlistResult{Considered: len(pool)}
	if len(pool) == 0 {
		return result, nil
	}

	eligible := make([]*domain.LeadRecord, 0, len(pool))
	for _, lead := range pool {
		if lead.Score != nil && *lead.Score >= w.policy.ShortlistMinScore {
			eligible = append(eligible, lead)
		}
	}
	result.Eligible = len(eligible)

	// Highest score first; ties break on age then ID so repeated passes
	// over the same pool pick the same winners.
	sort.Slice(eligible, func(i, j int) bool {
		si, sj := *eligible[i].Score, *eligible[j].Score
		if si != sj {
			return si > sj
		}
		if !eligible[i].CreatedAt.Equal(eligible[j].CreatedAt) {
			return eligible[i].CreatedAt.Before(eligible[j].CreatedAt)
		}
		return eligible[i].ID.String() < eligible[j].ID.String()
	})

	winners := eligible
	if w.policy.ShortlistTopK > 0 && len(winners) > w.policy.ShortlistTopK {
		winners = winners[:w.policy.ShortlistTopK]
	}

	for _, lead := range winners {
		if err := w.commit(ctx, lead, domain.StageShortlisted); err != nil {
			var ae *apperr.Error
			if errors.As(err, &ae) && ae.Kind == apperr.KindConflict {
				// Someone else moved this lead since the snapshot. Leave it
				// to the next pass.
				result.Skipped++
				continue
			}
			return result, err
		}
		result.Promoted++
	}

	if result.Promoted > 0 {
		w.bus.Publish(ctx, events.ShortlistComputed{
			BaseEvent:  events.NewBaseEvent(),
			Considered: result.Considered,
			Promoted:   result.Promoted,
			TopK:       w.policy.ShortlistTopK,
		})
	}
	return result, nil
}
