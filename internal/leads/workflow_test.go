package leads

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"acquisition_backend/internal/approval"
	"acquisition_backend/internal/events"
	"acquisition_backend/internal/idempotency"
	"acquisition_backend/internal/leads/domain"
	"acquisition_backend/internal/leads/repository"
	"acquisition_backend/platform/apperr"
	"acquisition_backend/platform/backoff"
	"acquisition_backend/platform/config"
	"acquisition_backend/platform/logger"
)

// ---- test doubles ----

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

func (b *recordingBus) has(name string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, e := range b.published {
		if e.EventName() == name {
			return true
		}
	}
	return false
}

type stubScoring struct {
	score float64
	err   error
	calls int
}

func (s *stubScoring) Score(_ context.Context, _ domain.Contact) (float64, error) {
	s.calls++
	if s.err != nil {
		return 0, s.err
	}
	return s.score, nil
}

type stubOutreach struct {
	draft      domain.Draft
	draftErr   error
	sendErr    error
	draftCalls int
	sendCalls  int
	replies    []Reply
	pollErr    error
	acked      []string
}

func (s *stubOutreach) Draft(_ context.Context, _ domain.Contact) (domain.Draft, error) {
	s.draftCalls++
	if s.draftErr != nil {
		return domain.Draft{}, s.draftErr
	}
	return s.draft, nil
}

func (s *stubOutreach) Send(_ context.Context, _ string, _ domain.Contact, _ domain.Draft) (SendReceipt, error) {
	s.sendCalls++
	if s.sendErr != nil {
		return SendReceipt{}, s.sendErr
	}
	return SendReceipt{MessageID: "msg-1"}, nil
}

func (s *stubOutreach) PollReplies(_ context.Context, _ time.Time) ([]Reply, error) {
	if s.pollErr != nil {
		return nil, s.pollErr
	}
	return s.replies, nil
}

func (s *stubOutreach) AckReplies(_ context.Context, tokens ...string) error {
	s.acked = append(s.acked, tokens...)
	return nil
}

type stubScheduling struct {
	slots        []domain.Slot
	extractErr   error
	bookErr      error
	extractCalls int
	bookCalls    int
	followUps    int
}

func (s *stubScheduling) ExtractSlots(_ context.Context, _ string, _ time.Time) ([]domain.Slot, error) {
	s.extractCalls++
	if s.extractErr != nil {
		return nil, s.extractErr
	}
	return s.slots, nil
}

func (s *stubScheduling) Book(_ context.Context, _ string, _ domain.Contact, slot domain.Slot) (BookingReceipt, error) {
	s.bookCalls++
	if s.bookErr != nil {
		return BookingReceipt{}, s.bookErr
	}
	return BookingReceipt{BookingID: "bk-1", Slot: slot, JoinURL: "https://meet.example/bk-1"}, nil
}

func (s *stubScheduling) SendFollowUp(_ context.Context, _ string, _ domain.Contact) error {
	s.followUps++
	return nil
}

type stubAnalytics struct {
	summary *domain.AnalysisSummary
	err     error
	calls   int
}

func (s *stubAnalytics) Analyze(_ context.Context, _ string, _ domain.Contact) (*domain.AnalysisSummary, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.summary, nil
}

// flakyStore injects version conflicts on demand.
type flakyStore struct {
	repository.Store
	conflicts int
}

func (s *flakyStore) Save(ctx context.Context, rec *domain.LeadRecord) error {
	if s.conflicts > 0 {
		s.conflicts--
		return repository.ErrVersionConflict
	}
	return s.Store.Save(ctx, rec)
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// ---- fixture ----

type fixture struct {
	mem       *repository.MemoryStore
	store     *flakyStore
	approvals *approval.Service
	bus       *recordingBus
	scoring   *stubScoring
	outreach  *stubOutreach
	schedule  *stubScheduling
	analytics *stubAnalytics
	guard     *idempotency.Guard
	clock     *fakeClock
	wf        *Workflow
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	log := logger.New("development")

	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	f := &fixture{
		mem:       repository.NewMemoryStore(),
		approvals: approval.NewService(approval.NewMemoryStore(), &recordingBus{}, log),
		bus:       &recordingBus{},
		scoring:   &stubScoring{score: 0.9},
		outreach:  &stubOutreach{draft: domain.Draft{Subject: "Quick intro", Body: "Hello there"}},
		schedule: &stubScheduling{slots: []domain.Slot{{
			Start: time.Date(2026, time.March, 3, 14, 0, 0, 0, time.UTC),
			End:   time.Date(2026, time.March, 3, 15, 0, 0, 0, time.UTC),
		}}},
		analytics: &stubAnalytics{summary: &domain.AnalysisSummary{Summary: "Strong fit", Sentiment: "positive"}},
		guard:     idempotency.New(client, time.Hour, log),
		clock:     &fakeClock{t: time.Date(2026, time.March, 2, 9, 0, 0, 0, time.UTC)},
	}
	f.store = &flakyStore{Store: f.mem}

	f.wf = NewWorkflow(
		f.store, f.approvals,
		f.scoring, f.outreach, f.schedule, f.analytics,
		f.guard, f.bus, config.DefaultPolicy(), log,
	)
	f.wf.now = f.clock.Now
	f.wf.retryDelay = backoff.NewExponential(time.Second, time.Minute)
	return f
}

func (f *fixture) seed(t *testing.T, stage domain.Stage) *domain.LeadRecord {
	t.Helper()
	lead := domain.NewLeadRecord(domain.Contact{
		Name:    "Dana Fields",
		Email:   "dana@acme.example",
		Company: "Acme",
	})

	// Walk the record forward so every stage invariant holds.
	score := 0.9
	sentAt := f.clock.Now().Add(-time.Hour)
	reply := "Tuesday at 2pm works for me"
	slot := domain.Slot{
		Start: time.Date(2026, time.March, 3, 14, 0, 0, 0, time.UTC),
		End:   time.Date(2026, time.March, 3, 15, 0, 0, 0, time.UTC),
	}

	switch stage {
	case domain.StageScheduled:
		lead.GrantApproval(domain.StageAwaitingScheduleApproval)
		fallthrough
	case domain.StageAwaitingScheduleApproval:
		lead.Slot = &slot
		fallthrough
	case domain.StageReplyReceived:
		lead.Reply = &reply
		fallthrough
	case domain.StageAwaitingReply, domain.StageSent:
		lead.SentAt = &sentAt
		lead.GrantApproval(domain.StageAwaitingSendApproval)
		fallthrough
	case domain.StageAwaitingSendApproval, domain.StageDrafted:
		lead.Draft = &domain.Draft{Subject: "Quick intro", Body: "Hello there"}
		fallthrough
	case domain.StageShortlisted, domain.StageScored:
		lead.Score = &score
	}

	lead.Stage = stage
	if ok, reason := domain.ValidateRecord(lead); !ok {
		t.Fatalf("seed produced an invalid %s record: %s", stage, reason)
	}
	if err := f.mem.Create(context.Background(), lead); err != nil {
		t.Fatalf("seed create: %v", err)
	}
	return lead
}

func (f *fixture) get(t *testing.T, id uuid.UUID) *domain.LeadRecord {
	t.Helper()
	lead, err := f.mem.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("get lead: %v", err)
	}
	return lead
}

func (f *fixture) approve(t *testing.T, result *StepResult) {
	t.Helper()
	if result.Pending.Type != domain.ActionApproval || result.Pending.ApprovalID == "" {
		t.Fatalf("expected an approval suspension, got %+v", result.Pending)
	}
	id, err := uuid.Parse(result.Pending.ApprovalID)
	if err != nil {
		t.Fatalf("parse approval id: %v", err)
	}
	if _, err := f.approvals.Resolve(context.Background(), id, true, ""); err != nil {
		t.Fatalf("resolve approval: %v", err)
	}
}

func (f *fixture) advance(t *testing.T, id uuid.UUID) *StepResult {
	t.Helper()
	result, err := f.wf.Advance(context.Background(), id)
	if err != nil {
		t.Fatalf("advance: %v", err)
	}
	return result
}

// ---- tests ----

func TestHappyPathReachesScheduled(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	lead := f.seed(t, domain.StageDiscovered)

	if res := f.advance(t, lead.ID); res.Outcome != OutcomeAdvanced || res.Lead.Stage != domain.StageScored {
		t.Fatalf("expected advance to SCORED, got %s/%s", res.Outcome, res.Lead.Stage)
	}
	if res := f.advance(t, lead.ID); res.Outcome != OutcomeParked {
		t.Fatalf("scored lead should park for the batch pass, got %s", res.Outcome)
	}

	if _, err := f.wf.Shortlist(ctx); err != nil {
		t.Fatalf("shortlist: %v", err)
	}
	if got := f.get(t, lead.ID); got.Stage != domain.StageShortlisted {
		t.Fatalf("expected SHORTLISTED after batch pass, got %s", got.Stage)
	}

	if res := f.advance(t, lead.ID); res.Lead.Stage != domain.StageDrafted {
		t.Fatalf("expected DRAFTED, got %s", res.Lead.Stage)
	}

	gate := f.advance(t, lead.ID)
	if gate.Outcome != OutcomeSuspended || gate.Lead.Stage != domain.StageAwaitingSendApproval {
		t.Fatalf("expected suspension at the send gate, got %s/%s", gate.Outcome, gate.Lead.Stage)
	}
	if f.outreach.sendCalls != 0 {
		t.Fatalf("nothing may be sent before approval, got %d sends", f.outreach.sendCalls)
	}

	// Re-dispatch without a decision stays suspended.
	if res := f.advance(t, lead.ID); res.Outcome != OutcomeSuspended || f.outreach.sendCalls != 0 {
		t.Fatalf("undecided gate must hold the lead, got %s with %d sends", res.Outcome, f.outreach.sendCalls)
	}

	f.approve(t, gate)
	if res := f.advance(t, lead.ID); res.Lead.Stage != domain.StageSent {
		t.Fatalf("expected SENT after approval, got %s", res.Lead.Stage)
	}
	if f.outreach.sendCalls != 1 {
		t.Fatalf("expected exactly one send, got %d", f.outreach.sendCalls)
	}

	wait := f.advance(t, lead.ID)
	if wait.Outcome != OutcomeSuspended || wait.Pending.Type != domain.ActionReplyWait {
		t.Fatalf("expected reply wait, got %s/%s", wait.Outcome, wait.Pending.Type)
	}
	if wait.Pending.Deadline == nil {
		t.Fatal("reply wait must carry a deadline")
	}

	if err := f.wf.HandleReply(ctx, lead.ID, "Tuesday at 2pm works for me"); err != nil {
		t.Fatalf("handle reply: %v", err)
	}
	if got := f.get(t, lead.ID); got.Stage != domain.StageReplyReceived {
		t.Fatalf("expected REPLY_RECEIVED, got %s", got.Stage)
	}

	schedGate := f.advance(t, lead.ID)
	if schedGate.Lead.Stage != domain.StageAwaitingScheduleApproval {
		t.Fatalf("expected schedule gate, got %s", schedGate.Lead.Stage)
	}
	f.approve(t, schedGate)

	final := f.advance(t, lead.ID)
	if final.Outcome != OutcomeTerminal || final.Lead.Stage != domain.StageScheduled {
		t.Fatalf("expected terminal SCHEDULED, got %s/%s", final.Outcome, final.Lead.Stage)
	}
	if f.schedule.bookCalls != 1 {
		t.Fatalf("expected exactly one booking, got %d", f.schedule.bookCalls)
	}

	got := f.get(t, lead.ID)
	if got.SentAt == nil || got.Slot == nil || got.Reply == nil {
		t.Fatal("scheduled lead should carry send time, slot, and reply")
	}
	if !f.bus.has("leads.meeting_booked") {
		t.Fatal("expected a meeting_booked event")
	}
}

func TestTransientFailureRetriesThenFails(t *testing.T) {
	f := newFixture(t)
	f.scoring.err = apperr.Service("scoring model unavailable")
	lead := f.seed(t, domain.StageDiscovered)

	for i := 1; i <= 2; i++ {
		res := f.advance(t, lead.ID)
		if res.Outcome != OutcomeSuspended || res.Pending.Type != domain.ActionRetry {
			t.Fatalf("failure %d should suspend for retry, got %s/%s", i, res.Outcome, res.Pending.Type)
		}
		if res.Pending.Attempt != i {
			t.Fatalf("expected attempt %d, got %d", i, res.Pending.Attempt)
		}
		if res.Pending.ResumeAt == nil || !res.Pending.ResumeAt.After(f.clock.Now()) {
			t.Fatal("retry suspension must carry a future resume time")
		}
	}

	final := f.advance(t, lead.ID)
	if final.Outcome != OutcomeTerminal || final.Lead.Stage != domain.StageFailed {
		t.Fatalf("third failure should exhaust the budget, got %s/%s", final.Outcome, final.Lead.Stage)
	}

	got := f.get(t, lead.ID)
	if got.FailedFrom == nil || *got.FailedFrom != domain.StageDiscovered {
		t.Fatalf("FAILED lead must remember its origin, got %v", got.FailedFrom)
	}
	if got.Attempts(domain.StageDiscovered) != 3 {
		t.Fatalf("expected 3 recorded attempts, got %d", got.Attempts(domain.StageDiscovered))
	}
	if got.LastError == nil || !strings.Contains(*got.LastError, "retry budget exhausted after 3 attempts") {
		t.Fatalf("expected exhaustion in last error, got %v", got.LastError)
	}
	if !f.bus.has("leads.failed") {
		t.Fatal("expected a leads.failed event")
	}
}

func TestValidationErrorFailsWithoutRetry(t *testing.T) {
	f := newFixture(t)
	f.scoring.err = apperr.Validation("contact has no usable email")
	lead := f.seed(t, domain.StageDiscovered)

	res := f.advance(t, lead.ID)
	if res.Outcome != OutcomeTerminal || res.Lead.Stage != domain.StageFailed {
		t.Fatalf("validation failures are permanent, got %s/%s", res.Outcome, res.Lead.Stage)
	}
	if f.scoring.calls != 1 {
		t.Fatalf("validation failure must not be retried, got %d calls", f.scoring.calls)
	}
	got := f.get(t, lead.ID)
	if got.FailedFrom == nil || *got.FailedFrom != domain.StageDiscovered {
		t.Fatalf("expected origin DISCOVERED, got %v", got.FailedFrom)
	}
}

func TestRejectionAbandonsLead(t *testing.T) {
	f := newFixture(t)
	lead := f.seed(t, domain.StageShortlisted)

	f.advance(t, lead.ID) // DRAFTED
	gate := f.advance(t, lead.ID)

	id := uuid.MustParse(gate.Pending.ApprovalID)
	if _, err := f.approvals.Resolve(context.Background(), id, false, "tone is off"); err != nil {
		t.Fatalf("reject: %v", err)
	}

	res := f.advance(t, lead.ID)
	if res.Outcome != OutcomeTerminal || res.Lead.Stage != domain.StageAbandoned {
		t.Fatalf("rejected lead should be abandoned, got %s/%s", res.Outcome, res.Lead.Stage)
	}
	if f.outreach.sendCalls != 0 {
		t.Fatalf("rejected draft must never be sent, got %d sends", f.outreach.sendCalls)
	}
	if !f.bus.has("leads.abandoned") {
		t.Fatal("expected a leads.abandoned event")
	}
}

func TestSendAdoptsRecordedReceiptAfterCrash(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	lead := f.seed(t, domain.StageAwaitingSendApproval)
	lead.GrantApproval(domain.StageAwaitingSendApproval)
	if err := f.mem.Save(ctx, lead); err != nil {
		t.Fatalf("save: %v", err)
	}

	// A previous process sent the mail and crashed before committing.
	token := lead.IdempotencyToken(domain.StageAwaitingSendApproval)
	if _, err := f.guard.Begin(ctx, token); err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := f.guard.Remember(ctx, token, "msg-from-crashed-run"); err != nil {
		t.Fatalf("remember: %v", err)
	}

	res := f.advance(t, lead.ID)
	if res.Lead.Stage != domain.StageSent {
		t.Fatalf("expected SENT, got %s", res.Lead.Stage)
	}
	if f.outreach.sendCalls != 0 {
		t.Fatalf("recorded receipt must be adopted, not re-sent; got %d sends", f.outreach.sendCalls)
	}
}

func TestSendDefersWhileAnotherProcessIsInFlight(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	lead := f.seed(t, domain.StageAwaitingSendApproval)
	lead.GrantApproval(domain.StageAwaitingSendApproval)
	if err := f.mem.Save(ctx, lead); err != nil {
		t.Fatalf("save: %v", err)
	}

	token := lead.IdempotencyToken(domain.StageAwaitingSendApproval)
	if _, err := f.guard.Begin(ctx, token); err != nil {
		t.Fatalf("begin: %v", err)
	}

	res := f.advance(t, lead.ID)
	if res.Outcome != OutcomeSuspended || res.Pending.Type != domain.ActionRetry {
		t.Fatalf("in-flight token should defer the send, got %s/%s", res.Outcome, res.Pending.Type)
	}
	if f.outreach.sendCalls != 0 {
		t.Fatalf("deferred send must not call the port, got %d", f.outreach.sendCalls)
	}
	if got := f.get(t, lead.ID); got.Stage != domain.StageAwaitingSendApproval {
		t.Fatalf("stage must not move while deferred, got %s", got.Stage)
	}
}

func TestVersionConflictAbortsWithoutStateChange(t *testing.T) {
	f := newFixture(t)
	lead := f.seed(t, domain.StageDiscovered)
	f.store.conflicts = 1

	_, err := f.wf.Advance(context.Background(), lead.ID)
	var ae *apperr.Error
	if !errors.As(err, &ae) || ae.Kind != apperr.KindConflict {
		t.Fatalf("expected a conflict error, got %v", err)
	}

	got := f.get(t, lead.ID)
	if got.Stage != domain.StageDiscovered || got.Score != nil {
		t.Fatalf("aborted pass must not persist anything, got %s score=%v", got.Stage, got.Score)
	}

	// The next pass re-reads and succeeds.
	res := f.advance(t, lead.ID)
	if res.Lead.Stage != domain.StageScored {
		t.Fatalf("expected SCORED on retry, got %s", res.Lead.Stage)
	}
}

func TestHandleReplyLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	lead := f.seed(t, domain.StageAwaitingReply)

	if err := f.wf.HandleReply(ctx, lead.ID, "Tuesday works"); err != nil {
		t.Fatalf("first reply: %v", err)
	}
	got := f.get(t, lead.ID)
	if got.Stage != domain.StageReplyReceived || got.Reply == nil || *got.Reply != "Tuesday works" {
		t.Fatalf("expected reply recorded at REPLY_RECEIVED, got %s %v", got.Stage, got.Reply)
	}

	// Redelivery of the same text is a no-op.
	if err := f.wf.HandleReply(ctx, lead.ID, "Tuesday works"); err != nil {
		t.Fatalf("duplicate reply: %v", err)
	}
	if got := f.get(t, lead.ID); got.Attempts(domain.StageReplyReceived) != 0 {
		t.Fatalf("duplicate must not open a new attempt, got %d", got.Attempts(domain.StageReplyReceived))
	}

	// A different reply replaces the text and opens a new attempt.
	if err := f.wf.HandleReply(ctx, lead.ID, "Actually, Wednesday is better"); err != nil {
		t.Fatalf("clarification: %v", err)
	}
	got = f.get(t, lead.ID)
	if *got.Reply != "Actually, Wednesday is better" {
		t.Fatalf("clarification should replace the reply, got %q", *got.Reply)
	}
	if got.Attempts(domain.StageReplyReceived) != 1 {
		t.Fatalf("clarification should open attempt 1, got %d", got.Attempts(domain.StageReplyReceived))
	}
}

func TestHandleReplyRejectsWrongStage(t *testing.T) {
	f := newFixture(t)
	lead := f.seed(t, domain.StageDiscovered)

	err := f.wf.HandleReply(context.Background(), lead.ID, "hello?")
	var ae *apperr.Error
	if !errors.As(err, &ae) || ae.Kind != apperr.KindConflict {
		t.Fatalf("expected conflict for a reply out of order, got %v", err)
	}
}

func TestNoSlotReplySendsOneFollowUpPerAttempt(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.schedule.slots = nil
	lead := f.seed(t, domain.StageReplyReceived)

	res := f.advance(t, lead.ID)
	if res.Outcome != OutcomeSuspended || res.Pending.Type != domain.ActionReplyWait {
		t.Fatalf("no-slot reply should wait for clarification, got %s/%s", res.Outcome, res.Pending.Type)
	}
	if f.schedule.followUps != 1 {
		t.Fatalf("expected one follow-up, got %d", f.schedule.followUps)
	}

	// Re-dispatching the same attempt must not ask again.
	if res := f.advance(t, lead.ID); f.schedule.followUps != 1 {
		t.Fatalf("re-dispatch sent a duplicate follow-up (%d), outcome %s", f.schedule.followUps, res.Outcome)
	}

	// A fresh clarification opens a new attempt and may ask once more.
	if err := f.wf.HandleReply(ctx, lead.ID, "what times do you have?"); err != nil {
		t.Fatalf("clarification: %v", err)
	}
	if res := f.advance(t, lead.ID); res.Outcome != OutcomeSuspended {
		t.Fatalf("still no slot, expected suspension, got %s", res.Outcome)
	}
	if f.schedule.followUps != 2 {
		t.Fatalf("expected a second follow-up for the new attempt, got %d", f.schedule.followUps)
	}

	// Once a concrete time arrives, the lead moves to the schedule gate.
	f.schedule.slots = []domain.Slot{{
		Start: time.Date(2026, time.March, 4, 15, 0, 0, 0, time.UTC),
		End:   time.Date(2026, time.March, 4, 16, 0, 0, 0, time.UTC),
	}}
	if err := f.wf.HandleReply(ctx, lead.ID, "Wednesday at 3pm then"); err != nil {
		t.Fatalf("final reply: %v", err)
	}
	res = f.advance(t, lead.ID)
	if res.Lead.Stage != domain.StageAwaitingScheduleApproval {
		t.Fatalf("expected schedule gate, got %s", res.Lead.Stage)
	}
}

func TestRunAnalyticsFromScheduled(t *testing.T) {
	f := newFixture(t)
	lead := f.seed(t, domain.StageScheduled)
	ref := "transcripts/" + lead.ID.String()
	lead.TranscriptRef = &ref
	if err := f.mem.Save(context.Background(), lead); err != nil {
		t.Fatalf("save: %v", err)
	}

	res, err := f.wf.RunAnalytics(context.Background(), lead.ID)
	if err != nil {
		t.Fatalf("run analytics: %v", err)
	}
	if res.Outcome != OutcomeTerminal || res.Lead.Stage != domain.StageAnalyzed {
		t.Fatalf("expected terminal ANALYZED, got %s/%s", res.Outcome, res.Lead.Stage)
	}
	got := f.get(t, lead.ID)
	if got.Analysis == nil || got.Analysis.Summary != "Strong fit" {
		t.Fatalf("expected analysis on record, got %+v", got.Analysis)
	}
	if !f.bus.has("leads.analytics_ready") {
		t.Fatal("expected an analytics_ready event")
	}
}

func TestRunAnalyticsRefusesTerminalFailures(t *testing.T) {
	f := newFixture(t)
	lead := f.seed(t, domain.StageDiscovered)
	origin := domain.StageDiscovered
	lead.Stage = domain.StageFailed
	lead.FailedFrom = &origin
	ref := "transcripts/x"
	lead.TranscriptRef = &ref
	if err := f.mem.Save(context.Background(), lead); err != nil {
		t.Fatalf("save: %v", err)
	}

	_, err := f.wf.RunAnalytics(context.Background(), lead.ID)
	var ae *apperr.Error
	if !errors.As(err, &ae) || ae.Kind != apperr.KindConflict {
		t.Fatalf("FAILED leads cannot be analyzed, got %v", err)
	}
}

func TestAnalyticsFailureNeverFailsTheLead(t *testing.T) {
	f := newFixture(t)
	f.analytics.err = apperr.Service("summarizer down")
	lead := f.seed(t, domain.StageScheduled)
	ref := "transcripts/" + lead.ID.String()
	lead.TranscriptRef = &ref
	if err := f.mem.Save(context.Background(), lead); err != nil {
		t.Fatalf("save: %v", err)
	}

	for i := 1; i <= 2; i++ {
		res, err := f.wf.RunAnalytics(context.Background(), lead.ID)
		if err != nil {
			t.Fatalf("attempt %d: %v", i, err)
		}
		if res.Outcome != OutcomeSuspended {
			t.Fatalf("attempt %d should suspend for retry, got %s", i, res.Outcome)
		}
	}

	res, err := f.wf.RunAnalytics(context.Background(), lead.ID)
	if err != nil {
		t.Fatalf("final attempt: %v", err)
	}
	if res.Outcome != OutcomeParked {
		t.Fatalf("exhausted analytics should park, got %s", res.Outcome)
	}

	got := f.get(t, lead.ID)
	if got.Stage != domain.StageScheduled {
		t.Fatalf("analytics failure must never move the lead, got %s", got.Stage)
	}
	if got.LastError == nil {
		t.Fatal("exhausted analytics should leave the error readable")
	}

	// Further calls stop touching the port.
	if _, err := f.wf.RunAnalytics(context.Background(), lead.ID); err != nil {
		t.Fatalf("parked attempt: %v", err)
	}
	if f.analytics.calls != 3 {
		t.Fatalf("expected 3 port calls total, got %d", f.analytics.calls)
	}
}

func TestAbandonFromAnyNonTerminalStage(t *testing.T) {
	f := newFixture(t)
	lead := f.seed(t, domain.StageSent)

	got, err := f.wf.Abandon(context.Background(), lead.ID, "went with a competitor")
	if err != nil {
		t.Fatalf("abandon: %v", err)
	}
	if got.Stage != domain.StageAbandoned {
		t.Fatalf("expected ABANDONED, got %s", got.Stage)
	}
	if !f.bus.has("leads.abandoned") {
		t.Fatal("expected a leads.abandoned event")
	}
}

func TestAbandonTerminalLeadConflicts(t *testing.T) {
	f := newFixture(t)
	lead := f.seed(t, domain.StageScheduled)

	_, err := f.wf.Abandon(context.Background(), lead.ID, "too late")
	var ae *apperr.Error
	if !errors.As(err, &ae) || ae.Kind != apperr.KindConflict {
		t.Fatalf("terminal leads cannot be abandoned, got %v", err)
	}
}

func TestResetFailedRestoresOriginWithFreshBudget(t *testing.T) {
	f := newFixture(t)
	f.scoring.err = apperr.Service("scoring model unavailable")
	lead := f.seed(t, domain.StageDiscovered)

	for i := 0; i < 3; i++ {
		f.advance(t, lead.ID)
	}
	if got := f.get(t, lead.ID); got.Stage != domain.StageFailed {
		t.Fatalf("setup should fail the lead, got %s", got.Stage)
	}

	reset, err := f.wf.ResetFailed(context.Background(), lead.ID)
	if err != nil {
		t.Fatalf("reset: %v", err)
	}
	if reset.Stage != domain.StageDiscovered {
		t.Fatalf("expected the origin stage back, got %s", reset.Stage)
	}
	if reset.Attempts(domain.StageDiscovered) != 0 || reset.LastError != nil || reset.FailedFrom != nil {
		t.Fatalf("reset must clear budget and error, got attempts=%d err=%v from=%v",
			reset.Attempts(domain.StageDiscovered), reset.LastError, reset.FailedFrom)
	}

	// With the fault cleared the lead progresses again.
	f.scoring.err = nil
	res := f.advance(t, lead.ID)
	if res.Lead.Stage != domain.StageScored {
		t.Fatalf("reset lead should score on the next pass, got %s", res.Lead.Stage)
	}
}

func TestResetRequiresFailedStage(t *testing.T) {
	f := newFixture(t)
	lead := f.seed(t, domain.StageSent)

	_, err := f.wf.ResetFailed(context.Background(), lead.ID)
	var ae *apperr.Error
	if !errors.As(err, &ae) || ae.Kind != apperr.KindConflict {
		t.Fatalf("only FAILED leads reset, got %v", err)
	}
}
