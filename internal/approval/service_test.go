package approval

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"

	"acquisition_backend/internal/events"
	"acquisition_backend/internal/leads/domain"
	"acquisition_backend/platform/apperr"
	"acquisition_backend/platform/logger"
)

type recordingBus struct {
	mu        sync.Mutex
	published []events.Event
}

func (b *recordingBus) Publish(_ context.Context, e events.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published = append(b.published, e)
}

func (b *recordingBus) PublishSync(ctx context.Context, e events.Event) error {
	b.Publish(ctx, e)
	return nil
}

func (b *recordingBus) Subscribe(string, events.Handler) {}

func (b *recordingBus) names() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	names := make([]string, 0, len(b.published))
	for _, e := range b.published {
		names = append(names, e.EventName())
	}
	return names
}

func newTestService() (*Service, *recordingBus) {
	bus := &recordingBus{}
	return NewService(NewMemoryStore(), bus, logger.New("development")), bus
}

func TestRequestApprovalIsIdempotentPerAttempt(t *testing.T) {
	svc, bus := newTestService()
	ctx := context.Background()
	leadID := uuid.New()

	first, err := svc.RequestApproval(ctx, leadID, domain.StageAwaitingSendApproval, 0, "send this draft?")
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if first.Status != StatusPending {
		t.Fatalf("new request should be pending, got %s", first.Status)
	}

	again, err := svc.RequestApproval(ctx, leadID, domain.StageAwaitingSendApproval, 0, "send this draft?")
	if err != nil {
		t.Fatalf("re-request: %v", err)
	}
	if again.ID != first.ID {
		t.Fatalf("re-request minted a new request: %s vs %s", again.ID, first.ID)
	}

	if got := bus.names(); len(got) != 1 || got[0] != "approvals.requested" {
		t.Fatalf("expected exactly one requested event, got %v", got)
	}

	// A new attempt after a failure is a different gate pass.
	nextAttempt, err := svc.RequestApproval(ctx, leadID, domain.StageAwaitingSendApproval, 1, "send this draft?")
	if err != nil {
		t.Fatalf("next attempt: %v", err)
	}
	if nextAttempt.ID == first.ID {
		t.Fatalf("new attempt should have its own request")
	}
}

func TestRequestApprovalRejectsUngatedStage(t *testing.T) {
	svc, _ := newTestService()

	_, err := svc.RequestApproval(context.Background(), uuid.New(), domain.StageScored, 0, "")
	if apperr.GetKind(err) != apperr.KindValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestResolveApproveAndReject(t *testing.T) {
	svc, bus := newTestService()
	ctx := context.Background()

	req, err := svc.RequestApproval(ctx, uuid.New(), domain.StageAwaitingSendApproval, 0, "send?")
	if err != nil {
		t.Fatalf("request: %v", err)
	}

	resolved, err := svc.Resolve(ctx, req.ID, true, "looks good")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if resolved.Status != StatusApproved {
		t.Fatalf("expected approved, got %s", resolved.Status)
	}
	if resolved.ResolvedAt == nil {
		t.Fatalf("resolved request must carry a decision time")
	}

	other, err := svc.RequestApproval(ctx, uuid.New(), domain.StageAwaitingScheduleApproval, 0, "book?")
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	rejected, err := svc.Resolve(ctx, other.ID, false, "bad timing")
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if rejected.Status != StatusRejected {
		t.Fatalf("expected rejected, got %s", rejected.Status)
	}
	if rejected.Reason == nil || *rejected.Reason != "bad timing" {
		t.Fatalf("rejection reason not recorded")
	}

	names := bus.names()
	resolvedCount := 0
	for _, name := range names {
		if name == "approvals.resolved" {
			resolvedCount++
		}
	}
	if resolvedCount != 2 {
		t.Fatalf("expected 2 resolved events, got %d in %v", resolvedCount, names)
	}
}

func TestResolveTwiceConflicts(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	req, err := svc.RequestApproval(ctx, uuid.New(), domain.StageAwaitingSendApproval, 0, "send?")
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if _, err := svc.Resolve(ctx, req.ID, true, ""); err != nil {
		t.Fatalf("first resolve: %v", err)
	}

	_, err = svc.Resolve(ctx, req.ID, false, "changed my mind")
	if apperr.GetKind(err) != apperr.KindConflict {
		t.Fatalf("second resolve should conflict, got %v", err)
	}

	// The first decision stands.
	current, err := svc.Status(ctx, req.ID)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if current.Status != StatusApproved {
		t.Fatalf("decision was overwritten: %s", current.Status)
	}
}

func TestResolveUnknownRequest(t *testing.T) {
	svc, _ := newTestService()

	_, err := svc.Resolve(context.Background(), uuid.New(), true, "")
	if apperr.GetKind(err) != apperr.KindNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestListPendingExcludesResolved(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	first, _ := svc.RequestApproval(ctx, uuid.New(), domain.StageAwaitingSendApproval, 0, "a")
	if _, err := svc.RequestApproval(ctx, uuid.New(), domain.StageAwaitingSendApproval, 0, "b"); err != nil {
		t.Fatalf("request: %v", err)
	}
	if _, err := svc.Resolve(ctx, first.ID, true, ""); err != nil {
		t.Fatalf("resolve: %v", err)
	}

	pending, err := svc.ListPending(ctx)
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("expected 1 pending request, got %d", len(pending))
	}
	if pending[0].Summary != "b" {
		t.Fatalf("wrong request left pending: %s", pending[0].Summary)
	}
}

func TestStatusForToken(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	leadID := uuid.New()

	_, err := svc.StatusForToken(ctx, leadID, domain.StageAwaitingSendApproval, 0)
	if apperr.GetKind(err) != apperr.KindNotFound {
		t.Fatalf("expected not found before any request, got %v", err)
	}

	req, err := svc.RequestApproval(ctx, leadID, domain.StageAwaitingSendApproval, 0, "send?")
	if err != nil {
		t.Fatalf("request: %v", err)
	}

	got, err := svc.StatusForToken(ctx, leadID, domain.StageAwaitingSendApproval, 0)
	if err != nil {
		t.Fatalf("status for token: %v", err)
	}
	if got.ID != req.ID {
		t.Fatalf("wrong request returned")
	}
}
