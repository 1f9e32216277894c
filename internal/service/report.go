package service

import (
	"sort"
	"time"

	"github.com/spec-kit/issuelog/internal/replay"
)

// Outcome classifies how one issue's replay ended.
type Outcome string

const (
	OutcomeFullyReplayed     Outcome = "fully_replayed"
	OutcomePartiallyReplayed Outcome = "partially_replayed"
	OutcomeSkipped           Outcome = "skipped"
)

// IssueReport is the result of replaying one issue.
type IssueReport struct {
	IssueID     int64          `json:"issue_id"`
	Outcome     Outcome        `json:"outcome"`
	Snapshots   int            `json:"snapshots"`
	Resumed     int            `json:"resumed"`
	Written     int            `json:"written"`
	WriteErrors int            `json:"write_errors"`
	Anomalies   map[string]int `json:"anomalies,omitempty"`
	Reason      string         `json:"reason,omitempty"`
	Duration    time.Duration  `json:"duration"`
}

// RunReport summarises one replay run.
type RunReport struct {
	ID                string         `json:"id"`
	TrackerKind       string         `json:"tracker_kind"`
	TrackerID         int64          `json:"tracker_id,omitempty"`
	StartedAt         time.Time      `json:"started_at"`
	FinishedAt        time.Time      `json:"finished_at"`
	Cancelled         bool           `json:"cancelled"`
	Issues            int            `json:"issues"`
	NotStarted        int            `json:"not_started"`
	FullyReplayed     []int64        `json:"fully_replayed"`
	PartiallyReplayed []int64        `json:"partially_replayed"`
	Skipped           []int64        `json:"skipped"`
	SnapshotsWritten  int            `json:"snapshots_written"`
	WriteErrors       int            `json:"write_errors"`
	Anomalies         map[string]int `json:"anomalies"`
	Failures          []IssueReport  `json:"failures,omitempty"`
}

func newRunReport(id, kind string, trackerID int64, issues int, startedAt time.Time) *RunReport {
	anomalies := make(map[string]int, 3)
	for _, kind := range []replay.AnomalyKind{
		replay.AnomalyUnmappedField,
		replay.AnomalyUnresolvedPerson,
		replay.AnomalyCoercionFailure,
	} {
		anomalies[string(kind)] = 0
	}
	return &RunReport{
		ID:                id,
		TrackerKind:       kind,
		TrackerID:         trackerID,
		StartedAt:         startedAt,
		Issues:            issues,
		FullyReplayed:     []int64{},
		PartiallyReplayed: []int64{},
		Skipped:           []int64{},
		Anomalies:         anomalies,
	}
}

func (r *RunReport) add(issue IssueReport) {
	switch issue.Outcome {
	case OutcomeFullyReplayed:
		r.FullyReplayed = append(r.FullyReplayed, issue.IssueID)
	case OutcomePartiallyReplayed:
		r.PartiallyReplayed = append(r.PartiallyReplayed, issue.IssueID)
		r.Failures = append(r.Failures, issue)
	default:
		r.Skipped = append(r.Skipped, issue.IssueID)
		r.Failures = append(r.Failures, issue)
	}
	r.SnapshotsWritten += issue.Written
	r.WriteErrors += issue.WriteErrors
	for kind, n := range issue.Anomalies {
		r.Anomalies[kind] += n
	}
}

func (r *RunReport) finish(dispatched int, cancelled bool, at time.Time) {
	for _, ids := range [][]int64{r.FullyReplayed, r.PartiallyReplayed, r.Skipped} {
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	}
	sort.Slice(r.Failures, func(i, j int) bool { return r.Failures[i].IssueID < r.Failures[j].IssueID })
	r.NotStarted = r.Issues - dispatched
	r.Cancelled = cancelled
	r.FinishedAt = at
}

// Processed is the number of issues that reached an outcome.
func (r *RunReport) Processed() int {
	return len(r.FullyReplayed) + len(r.PartiallyReplayed) + len(r.Skipped)
}
