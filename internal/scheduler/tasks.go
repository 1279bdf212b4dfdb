package scheduler

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

// TaskReplyDeadline abandons a lead that is still waiting on a reply when
// its deadline passes. Scheduled at send time and re-armed on every
// inbound reply; the tick-time sweep backstops it.
const TaskReplyDeadline = "leads.reply_deadline"

// TaskTranscriptAnalysis drives the analytics pass for one lead.
const TaskTranscriptAnalysis = "leads.transcript_analysis"

// TaskApprovalResolved carries a gate decision from the API process to the
// worker so the lead dispatches immediately instead of on the next tick.
const TaskApprovalResolved = "leads.approval_resolved"

type ReplyDeadlinePayload struct {
	LeadID string `json:"leadId"`
}

type TranscriptAnalysisPayload struct {
	LeadID string `json:"leadId"`
}

type ApprovalResolvedPayload struct {
	RequestID string `json:"requestId"`
	LeadID    string `json:"leadId"`
	Stage     string `json:"stage"`
	Approved  bool   `json:"approved"`
	Reason    string `json:"reason,omitempty"`
}

func NewReplyDeadlineTask(payload ReplyDeadlinePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskReplyDeadline, data), nil
}

func ParseReplyDeadlinePayload(task *asynq.Task) (ReplyDeadlinePayload, error) {
	var payload ReplyDeadlinePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return ReplyDeadlinePayload{}, err
	}
	return payload, nil
}

func NewTranscriptAnalysisTask(payload TranscriptAnalysisPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTranscriptAnalysis, data), nil
}

func ParseTranscriptAnalysisPayload(task *asynq.Task) (TranscriptAnalysisPayload, error) {
	var payload TranscriptAnalysisPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return TranscriptAnalysisPayload{}, err
	}
	return payload, nil
}

func NewApprovalResolvedTask(payload ApprovalResolvedPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskApprovalResolved, data), nil
}

func ParseApprovalResolvedPayload(task *asynq.Task) (ApprovalResolvedPayload, error) {
	var payload ApprovalResolvedPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return ApprovalResolvedPayload{}, err
	}
	return payload, nil
}
