package adapters

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"

	"acquisition_backend/internal/agent"
	"acquisition_backend/internal/leads/domain"
	"acquisition_backend/internal/storage"
	"acquisition_backend/platform/apperr"
	"acquisition_backend/platform/logger"
)

func newAnalyticsAdapter(t *testing.T) (*AnalyticsAdapter, *storage.MemoryStore) {
	t.Helper()
	analyst, err := agent.NewAnalyst(stubAIConfig{}, logger.New("development"))
	if err != nil {
		t.Fatalf("failed to create analyst: %v", err)
	}
	transcripts := storage.NewMemoryStore()
	return NewAnalyticsAdapter(transcripts, analyst, logger.New("development")), transcripts
}

func TestAnalyzeSummarizesStoredTranscript(t *testing.T) {
	a, transcripts := newAnalyticsAdapter(t)

	transcript := "Dana: our onboarding takes three weeks.\nRep: we can cut that to two days."
	ref, err := transcripts.Put(context.Background(), uuid.New(), strings.NewReader(transcript), int64(len(transcript)))
	if err != nil {
		t.Fatalf("failed to store transcript: %v", err)
	}

	summary, err := a.Analyze(context.Background(), ref, domain.Contact{Name: "Dana Fields", Email: "dana@acme.example"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary == nil || summary.Summary == "" {
		t.Fatalf("expected a non-empty summary, got %#v", summary)
	}
}

func TestAnalyzeMissingTranscriptIsPermanent(t *testing.T) {
	a, _ := newAnalyticsAdapter(t)

	_, err := a.Analyze(context.Background(), "gone/ref.txt", domain.Contact{Name: "Dana Fields", Email: "dana@acme.example"})

	var ae *apperr.Error
	if !errors.As(err, &ae) || ae.Kind != apperr.KindValidation {
		t.Fatalf("expected a permanent error for a missing transcript, got %v", err)
	}
}
