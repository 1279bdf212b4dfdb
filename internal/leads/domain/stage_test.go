package domain

import "testing"

func TestMainChainEdges(t *testing.T) {
	chain := []Stage{
		StageDiscovered,
		StageScored,
		StageShortlisted,
		StageDrafted,
		StageAwaitingSendApproval,
		StageSent,
		StageAwaitingReply,
		StageReplyReceived,
		StageAwaitingScheduleApproval,
		StageScheduled,
	}

	for i := 0; i < len(chain)-1; i++ {
		if !CanTransition(chain[i], chain[i+1]) {
			t.Fatalf("expected edge %s -> %s", chain[i], chain[i+1])
		}
	}
}

func TestNoStageSkipping(t *testing.T) {
	cases := []struct{ from, to Stage }{
		{StageDiscovered, StageShortlisted},
		{StageDiscovered, StageSent},
		{StageScored, StageDrafted},
		{StageShortlisted, StageAwaitingSendApproval},
		{StageDrafted, StageSent},
		{StageSent, StageReplyReceived},
		{StageReplyReceived, StageScheduled},
	}
	for _, tc := range cases {
		if CanTransition(tc.from, tc.to) {
			t.Fatalf("unexpected edge %s -> %s", tc.from, tc.to)
		}
	}
}

func TestNoBackwardEdges(t *testing.T) {
	if CanTransition(StageSent, StageDrafted) {
		t.Fatal("unexpected backward edge SENT -> DRAFTED")
	}
	if CanTransition(StageScored, StageDiscovered) {
		t.Fatal("unexpected backward edge SCORED -> DISCOVERED")
	}
}

func TestTerminalStagesHaveNoChainSuccessors(t *testing.T) {
	for _, s := range []Stage{StageScheduled, StageAnalyzed, StageFailed, StageAbandoned} {
		if !IsTerminal(s) {
			t.Fatalf("expected %s to be terminal", s)
		}
		if succ := Next(s); len(succ) != 0 {
			t.Fatalf("terminal stage %s has chain successors %v", s, succ)
		}
	}
}

func TestAnalyticsReachableFromActiveAndScheduled(t *testing.T) {
	for _, from := range []Stage{StageDiscovered, StageSent, StageAwaitingReply, StageScheduled} {
		if !CanTransition(from, StageAnalyzed) {
			t.Fatalf("expected analytics edge from %s", from)
		}
	}
	for _, from := range []Stage{StageFailed, StageAbandoned, StageAnalyzed} {
		if CanTransition(from, StageAnalyzed) {
			t.Fatalf("unexpected analytics edge from %s", from)
		}
	}
}

func TestAbandonAndFailReachableFromNonTerminalOnly(t *testing.T) {
	for _, to := range []Stage{StageAbandoned, StageFailed} {
		for _, from := range AllStages() {
			got := CanTransition(from, to)
			want := !IsTerminal(from)
			if got != want {
				t.Fatalf("edge %s -> %s: got %v, want %v", from, to, got, want)
			}
		}
	}
}

func TestUnknownStageRejected(t *testing.T) {
	if IsKnownStage(Stage("Triage")) {
		t.Fatal("expected unknown stage to be rejected")
	}
	if CanTransition(Stage("Triage"), StageScored) {
		t.Fatal("expected edge from unknown stage to be rejected")
	}
	if CanTransition(StageDiscovered, Stage("SCORED ")) {
		t.Fatal("expected edge to unknown stage to be rejected")
	}
}

func TestCanResetFrom(t *testing.T) {
	if !CanResetFrom(StageAwaitingSendApproval) {
		t.Fatal("expected reset to a mid-chain stage to be allowed")
	}
	if CanResetFrom(StageScheduled) {
		t.Fatal("expected reset to a terminal stage to be rejected")
	}
	if CanResetFrom(Stage("bogus")) {
		t.Fatal("expected reset to an unknown stage to be rejected")
	}
}

func TestTransitionTableIsClosed(t *testing.T) {
	known := make(map[Stage]struct{})
	for _, s := range AllStages() {
		known[s] = struct{}{}
		if !IsKnownStage(s) {
			t.Fatalf("stage %s missing from transition table", s)
		}
	}

	for from, succ := range transitions {
		if _, ok := known[from]; !ok {
			t.Fatalf("transition table key %s not in AllStages", from)
		}
		for _, to := range succ {
			if _, ok := known[to]; !ok {
				t.Fatalf("transition target %s not in AllStages", to)
			}
		}
	}
}

func TestGatedStages(t *testing.T) {
	if !IsGated(StageAwaitingSendApproval) || !IsGated(StageAwaitingScheduleApproval) {
		t.Fatal("expected both approval stages to be gated")
	}
	if IsGated(StageDrafted) {
		t.Fatal("DRAFTED must not be gated")
	}
}
