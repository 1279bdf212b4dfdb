package domain

import (
	"testing"
	"time"
)

func TestNewLeadRecordStartsAtDiscovery(t *testing.T) {
	rec := NewLeadRecord(Contact{Name: "Dana", Email: "dana@example.com"})

	if rec.Stage != StageDiscovered {
		t.Fatalf("expected new lead at DISCOVERED, got %s", rec.Stage)
	}
	if rec.ID.String() == "" {
		t.Fatal("expected a lead ID")
	}
	if rec.Score != nil || rec.Draft != nil || rec.Reply != nil {
		t.Fatal("expected nullable fields to start unset")
	}
}

func TestRecordFailureTracksAttemptsAndError(t *testing.T) {
	rec := NewLeadRecord(Contact{Email: "x@example.com"})

	rec.RecordFailure(StageDiscovered, "scoring unavailable")
	rec.RecordFailure(StageDiscovered, "scoring still unavailable")

	if got := rec.Attempts(StageDiscovered); got != 2 {
		t.Fatalf("expected 2 attempts, got %d", got)
	}
	if rec.LastError == nil || *rec.LastError != "scoring still unavailable" {
		t.Fatalf("expected last error to hold the most recent failure, got %v", rec.LastError)
	}
	if got := rec.Attempts(StageAwaitingSendApproval); got != 0 {
		t.Fatalf("expected other stages untouched, got %d", got)
	}

	rec.ClearError()
	if rec.LastError != nil {
		t.Fatal("expected error cleared")
	}
}

func TestIdempotencyTokenChangesPerAttempt(t *testing.T) {
	rec := NewLeadRecord(Contact{Email: "x@example.com"})

	first := rec.IdempotencyToken(StageAwaitingSendApproval)
	if first != rec.IdempotencyToken(StageAwaitingSendApproval) {
		t.Fatal("token must be stable while the attempt counter is unchanged")
	}

	rec.RecordFailure(StageAwaitingSendApproval, "smtp timeout")
	second := rec.IdempotencyToken(StageAwaitingSendApproval)
	if second == first {
		t.Fatal("token must change after a recorded failure")
	}

	if rec.IdempotencyToken(StageAwaitingScheduleApproval) == second {
		t.Fatal("tokens must differ across stages")
	}
}

func TestGrantApprovalIsWriteOnce(t *testing.T) {
	rec := NewLeadRecord(Contact{Email: "x@example.com"})

	if rec.Approved(StageAwaitingSendApproval) {
		t.Fatal("approval must start unset")
	}

	rec.GrantApproval(StageAwaitingSendApproval)
	if !rec.Approved(StageAwaitingSendApproval) {
		t.Fatal("expected approval recorded")
	}

	// a second grant is a no-op, and there is no way to unset the flag
	rec.GrantApproval(StageAwaitingSendApproval)
	if !rec.Approved(StageAwaitingSendApproval) {
		t.Fatal("approval flag must stay set")
	}
}

func TestValidateRecordFlagsMissingStageData(t *testing.T) {
	rec := NewLeadRecord(Contact{Email: "x@example.com"})

	if ok, _ := ValidateRecord(rec); !ok {
		t.Fatal("fresh record must validate")
	}

	rec.Stage = StageScored
	if ok, reason := ValidateRecord(rec); ok || reason == "" {
		t.Fatal("scored lead without a score must not validate")
	}

	score := 0.8
	rec.Score = &score
	if ok, _ := ValidateRecord(rec); !ok {
		t.Fatal("scored lead with a score must validate")
	}
}

func TestValidateRecordEnforcesGates(t *testing.T) {
	rec := NewLeadRecord(Contact{Email: "x@example.com"})
	now := time.Now()
	rec.Stage = StageSent
	rec.SentAt = &now

	if ok, _ := ValidateRecord(rec); ok {
		t.Fatal("SENT without a send approval must not validate")
	}

	rec.GrantApproval(StageAwaitingSendApproval)
	if ok, reason := ValidateRecord(rec); !ok {
		t.Fatalf("SENT with approval must validate, got: %s", reason)
	}
}
