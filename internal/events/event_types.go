package events

import (
	"time"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventIssueReplayed          EventType = "issue_replayed"
	EventIssuePartiallyReplayed EventType = "issue_partially_replayed"
	EventIssueSkipped           EventType = "issue_skipped"
	EventRunFinished            EventType = "run_finished"
)

// Event represents an outcome emitted by the replay service.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	RunID     string      `json:"run_id"`
	IssueID   int64       `json:"issue_id,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// IssueOutcomePayload describes how one issue's replay ended.
type IssueOutcomePayload struct {
	TrackerKind string         `json:"tracker_kind"`
	Snapshots   int            `json:"snapshots"`
	Written     int            `json:"written"`
	Resumed     int            `json:"resumed"`
	WriteErrors int            `json:"write_errors"`
	Anomalies   map[string]int `json:"anomalies,omitempty"`
	Duration    time.Duration  `json:"duration"`
	Reason      string         `json:"reason,omitempty"`
}

// RunFinishedPayload summarises a run.
type RunFinishedPayload struct {
	TrackerKind       string `json:"tracker_kind"`
	FullyReplayed     int    `json:"fully_replayed"`
	PartiallyReplayed int    `json:"partially_replayed"`
	Skipped           int    `json:"skipped"`
	Cancelled         bool   `json:"cancelled"`
}
