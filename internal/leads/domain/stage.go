// Package domain holds the lead workflow's core types: the stage machine,
// the lead record, and the per-lead workflow run.
package domain

// Stage is a point in the acquisition pipeline. The set is closed; anything
// outside it is rejected at the boundary.
type Stage string

const (
	StageDiscovered               Stage = "DISCOVERED"
	StageScored                   Stage = "SCORED"
	StageShortlisted              Stage = "SHORTLISTED"
	StageDrafted                  Stage = "DRAFTED"
	StageAwaitingSendApproval     Stage = "AWAITING_SEND_APPROVAL"
	StageSent                     Stage = "SENT"
	StageAwaitingReply            Stage = "AWAITING_REPLY"
	StageReplyReceived            Stage = "REPLY_RECEIVED"
	StageAwaitingScheduleApproval Stage = "AWAITING_SCHEDULE_APPROVAL"
	StageScheduled                Stage = "SCHEDULED"
	StageAnalyzed                 Stage = "ANALYZED"
	StageFailed                   Stage = "FAILED"
	StageAbandoned                Stage = "ABANDONED"
)

// transitions is the forward edge per stage along the main chain. Cross-cutting
// edges (analytics, abandon, fail, manual reset) are handled by CanTransition
// and CanResetFrom, keeping this table the single chain of record.
var transitions = map[Stage][]Stage{
	StageDiscovered:               {StageScored},
	StageScored:                   {StageShortlisted},
	StageShortlisted:              {StageDrafted},
	StageDrafted:                  {StageAwaitingSendApproval},
	StageAwaitingSendApproval:     {StageSent},
	StageSent:                     {StageAwaitingReply},
	StageAwaitingReply:            {StageReplyReceived},
	StageReplyReceived:            {StageAwaitingScheduleApproval},
	StageAwaitingScheduleApproval: {StageScheduled},
	StageScheduled:                {},
	StageAnalyzed:                 {},
	StageFailed:                   {},
	StageAbandoned:                {},
}

// terminalStages covers the stages where the main chain stops. SCHEDULED is
// terminal for the chain but still reachable by the analytics sub-workflow.
var terminalStages = map[Stage]struct{}{
	StageScheduled: {},
	StageAnalyzed:  {},
	StageFailed:    {},
	StageAbandoned: {},
}

// gatedStages are the stages that hold for a human approval before the next
// side-effecting transition.
var gatedStages = map[Stage]struct{}{
	StageAwaitingSendApproval:     {},
	StageAwaitingScheduleApproval: {},
}

// IsKnownStage reports whether s is part of the closed stage set.
func IsKnownStage(s Stage) bool {
	_, ok := transitions[s]
	return ok
}

// IsTerminal reports whether the main chain stops at s.
func IsTerminal(s Stage) bool {
	_, ok := terminalStages[s]
	return ok
}

// IsGated reports whether s requires an approval resolution to advance.
func IsGated(s Stage) bool {
	_, ok := gatedStages[s]
	return ok
}

// Next returns the main-chain successors of s.
func Next(s Stage) []Stage {
	succ := transitions[s]
	out := make([]Stage, len(succ))
	copy(out, succ)
	return out
}

// CanTransition reports whether the edge from → to exists. Besides the main
// chain: ANALYZED is reachable from every stage that is not FAILED, ABANDONED,
// or already ANALYZED; FAILED and ABANDONED are reachable from every
// non-terminal stage.
func CanTransition(from, to Stage) bool {
	if !IsKnownStage(from) || !IsKnownStage(to) {
		return false
	}

	switch to {
	case StageAnalyzed:
		return from != StageFailed && from != StageAbandoned && from != StageAnalyzed
	case StageFailed, StageAbandoned:
		return !IsTerminal(from)
	}

	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// CanResetFrom reports whether a FAILED lead may be manually reset back to
// the given origin stage. Only the explicit retry-after-failure path moves
// a stage backward.
func CanResetFrom(origin Stage) bool {
	return IsKnownStage(origin) && !IsTerminal(origin)
}

// AllStages returns the closed stage set in pipeline order.
func AllStages() []Stage {
	return []Stage{
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
		StageAnalyzed,
		StageFailed,
		StageAbandoned,
	}
}
