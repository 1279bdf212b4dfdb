package leads

import (
	"context"
	"testing"
	"time"

	"acquisition_backend/internal/leads/domain"
)

func (f *fixture) seedScored(t *testing.T, email string, score float64, createdAt time.Time) *domain.LeadRecord {
	t.Helper()
	lead := domain.NewLeadRecord(domain.Contact{Name: "Lead " + email, Email: email})
	lead.Stage = domain.StageScored
	lead.Score = &score
	lead.CreatedAt = createdAt
	if err := f.mem.Create(context.Background(), lead); err != nil {
		t.Fatalf("seed scored lead: %v", err)
	}
	return lead
}

func TestShortlistPromotesTopK(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	base := f.clock.Now()

	low := f.seedScored(t, "low@acme.example", 0.2, base)
	mid := f.seedScored(t, "mid@acme.example", 0.5, base)
	high := f.seedScored(t, "high@acme.example", 0.9, base)
	second := f.seedScored(t, "second@acme.example", 0.8, base)

	result, err := f.wf.Shortlist(ctx)
	if err != nil {
		t.Fatalf("shortlist: %v", err)
	}
	if result.Considered != 4 || result.Eligible != 4 || result.Promoted != 2 {
		t.Fatalf("expected 4 considered, 4 eligible, 2 promoted; got %+v", result)
	}

	for _, want := range []struct {
		lead  *domain.LeadRecord
		stage domain.Stage
	}{
		{high, domain.StageShortlisted},
		{second, domain.StageShortlisted},
		{mid, domain.StageScored},
		{low, domain.StageScored},
	} {
		if got := f.get(t, want.lead.ID); got.Stage != want.stage {
			t.Fatalf("lead %s: expected %s, got %s", want.lead.Contact.Email, want.stage, got.Stage)
		}
	}

	if !f.bus.has("leads.shortlist_computed") {
		t.Fatal("expected a shortlist_computed event")
	}
}

func TestShortlistFiltersBelowMinScore(t *testing.T) {
	f := newFixture(t)
	policy := f.wf.policy
	policy.ShortlistMinScore = 0.6
	f.wf.policy = policy

	base := f.clock.Now()
	weak := f.seedScored(t, "weak@acme.example", 0.5, base)
	strong := f.seedScored(t, "strong@acme.example", 0.9, base)

	result, err := f.wf.Shortlist(context.Background())
	if err != nil {
		t.Fatalf("shortlist: %v", err)
	}
	if result.Eligible != 1 || result.Promoted != 1 {
		t.Fatalf("expected one eligible and one promoted, got %+v", result)
	}
	if got := f.get(t, weak.ID); got.Stage != domain.StageScored {
		t.Fatalf("below-threshold lead must stay SCORED, got %s", got.Stage)
	}
	if got := f.get(t, strong.ID); got.Stage != domain.StageShortlisted {
		t.Fatalf("expected the strong lead promoted, got %s", got.Stage)
	}
}

func TestShortlistTieBreaksOnAge(t *testing.T) {
	f := newFixture(t)
	policy := f.wf.policy
	policy.ShortlistTopK = 1
	f.wf.policy = policy

	base := f.clock.Now()
	older := f.seedScored(t, "older@acme.example", 0.7, base.Add(-time.Hour))
	newer := f.seedScored(t, "newer@acme.example", 0.7, base)

	if _, err := f.wf.Shortlist(context.Background()); err != nil {
		t.Fatalf("shortlist: %v", err)
	}
	if got := f.get(t, older.ID); got.Stage != domain.StageShortlisted {
		t.Fatalf("older lead should win the tie, got %s", got.Stage)
	}
	if got := f.get(t, newer.ID); got.Stage != domain.StageScored {
		t.Fatalf("newer lead should wait, got %s", got.Stage)
	}
}

func TestShortlistEmptyPool(t *testing.T) {
	f := newFixture(t)

	result, err := f.wf.Shortlist(context.Background())
	if err != nil {
		t.Fatalf("shortlist: %v", err)
	}
	if result.Considered != 0 || result.Promoted != 0 {
		t.Fatalf("empty pool should be a no-op, got %+v", result)
	}
	if f.bus.has("leads.shortlist_computed") {
		t.Fatal("no event expected for an empty pass")
	}
}

func TestShortlistSkipsConflictedWinner(t *testing.T) {
	f := newFixture(t)
	base := f.clock.Now()

	first := f.seedScored(t, "first@acme.example", 0.9, base)
	second := f.seedScored(t, "second@acme.example", 0.8, base)

	// The best lead moves under us; only its promotion is lost.
	f.store.conflicts = 1

	result, err := f.wf.Shortlist(context.Background())
	if err != nil {
		t.Fatalf("shortlist: %v", err)
	}
	if result.Skipped != 1 || result.Promoted != 1 {
		t.Fatalf("expected one skip and one promotion, got %+v", result)
	}
	if got := f.get(t, first.ID); got.Stage != domain.StageScored {
		t.Fatalf("conflicted lead keeps its stored stage, got %s", got.Stage)
	}
	if got := f.get(t, second.ID); got.Stage != domain.StageShortlisted {
		t.Fatalf("remaining winner should still promote, got %s", got.Stage)
	}
}
