package adapters

import (
	"context"
	"errors"

	"acquisition_backend/internal/agent"
	"acquisition_backend/internal/leads"
	"acquisition_backend/internal/leads/domain"
	"acquisition_backend/internal/storage"
	"acquisition_backend/platform/apperr"
	"acquisition_backend/platform/logger"
)

// AnalyticsAdapter feeds stored transcripts through the analyst agent.
type AnalyticsAdapter struct {
	transcripts storage.TranscriptStore
	analyst     *agent.Analyst
	log         *logger.Logger
}

func NewAnalyticsAdapter(transcripts storage.TranscriptStore, analyst *agent.Analyst, log *logger.Logger) *AnalyticsAdapter {
	return &AnalyticsAdapter{
		transcripts: transcripts,
		analyst:     analyst,
		log:         log.WithComponent("analytics"),
	}
}

// Analyze loads the transcript behind ref and summarizes it. A missing
// transcript is permanent for this reference; the object is not coming back.
func (a *AnalyticsAdapter) Analyze(ctx context.Context, transcriptRef string, contact domain.Contact) (*domain.AnalysisSummary, error) {
	text, err := a.transcripts.FetchText(ctx, transcriptRef)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, apperr.Wrap(apperr.KindValidation, "transcript is gone from storage", err)
		}
		return nil, apperr.Wrap(apperr.KindService, "transcript fetch failed", err)
	}

	summary, err := a.analyst.Analyze(ctx, text, contact)
	if err != nil {
		return nil, err
	}
	a.log.Info("transcript analyzed", "ref", transcriptRef, "sentiment", summary.Sentiment)
	return summary, nil
}

var _ leads.AnalyticsPort = (*AnalyticsAdapter)(nil)
