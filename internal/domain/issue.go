package domain

import "time"

// CurrentState is the latest recorded state of an issue as harvested from the tracker.
type CurrentState struct {
	IssueID     int64
	TrackerID   int64
	Issue       string
	SubmittedBy Value
	SubmittedAt time.Time
	Values      map[string]Value
}

// ChangeEvent is one recorded mutation of a single field.
type ChangeEvent struct {
	IssueID   int64
	Field     string
	OldValue  string
	NewValue  string
	Author    string
	ChangedAt time.Time
}

// FieldChange is one row of a field history as returned by the event source.
type FieldChange struct {
	OldValue  string
	NewValue  string
	Author    string
	ChangedAt time.Time
}

// Event attaches the issue and field to a history row.
func (c FieldChange) Event(issueID int64, field string) ChangeEvent {
	return ChangeEvent{
		IssueID:   issueID,
		Field:     field,
		OldValue:  c.OldValue,
		NewValue:  c.NewValue,
		Author:    c.Author,
		ChangedAt: c.ChangedAt,
	}
}
