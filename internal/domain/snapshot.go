package domain

import (
	"sort"
	"time"
)

// Snapshot is the full state of an issue at one point of its history.
// Snapshots are values: With returns a new snapshot and never touches the receiver.
type Snapshot struct {
	IssueID    int64
	TrackerID  int64
	Issue      string
	Seq        int
	ChangedBy  Value
	RecordedAt time.Time
	values     map[string]Value
}

// NewSnapshot copies values into a fresh snapshot.
func NewSnapshot(issueID, trackerID int64, issue string, changedBy Value, recordedAt time.Time, values map[string]Value) Snapshot {
	copied := make(map[string]Value, len(values))
	for name, v := range values {
		copied[name] = v
	}
	return Snapshot{
		IssueID:    issueID,
		TrackerID:  trackerID,
		Issue:      issue,
		ChangedBy:  changedBy,
		RecordedAt: recordedAt,
		values:     copied,
	}
}

// With returns the successor of s: one attribute overridden, provenance replaced, seq advanced.
func (s Snapshot) With(attribute string, value Value, changedBy Value, recordedAt time.Time) Snapshot {
	next := NewSnapshot(s.IssueID, s.TrackerID, s.Issue, changedBy, recordedAt, s.values)
	next.Seq = s.Seq + 1
	next.values[attribute] = value
	return next
}

// Get returns the value of an attribute.
func (s Snapshot) Get(attribute string) (Value, bool) {
	v, ok := s.values[attribute]
	return v, ok
}

// Value returns the attribute value or null.
func (s Snapshot) Value(attribute string) Value {
	return s.values[attribute]
}

// Attributes lists the attribute names in lexical order.
func (s Snapshot) Attributes() []string {
	names := make([]string, 0, len(s.values))
	for name := range s.values {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Values returns a copy of the attribute map.
func (s Snapshot) Values() map[string]Value {
	copied := make(map[string]Value, len(s.values))
	for name, v := range s.values {
		copied[name] = v
	}
	return copied
}

// Diff lists attributes whose values differ between s and other, in lexical order.
func (s Snapshot) Diff(other Snapshot) []string {
	seen := make(map[string]struct{}, len(s.values))
	var changed []string
	for name, v := range s.values {
		seen[name] = struct{}{}
		if ov, ok := other.values[name]; !ok || !ov.Equal(v) {
			changed = append(changed, name)
		}
	}
	for name := range other.values {
		if _, ok := seen[name]; !ok {
			changed = append(changed, name)
		}
	}
	sort.Strings(changed)
	return changed
}
