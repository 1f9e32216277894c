package dto

import (
	"time"

	"github.com/spec-kit/issuelog/internal/domain"
)

// SnapshotResponse is one stored snapshot.
type SnapshotResponse struct {
	Seq        int            `json:"seq"`
	IssueID    int64          `json:"issue_id"`
	TrackerID  int64          `json:"tracker_id"`
	Issue      string         `json:"issue"`
	ChangedBy  any            `json:"changed_by"`
	RecordedAt *time.Time     `json:"recorded_at"`
	Attributes map[string]any `json:"attributes"`
}

// NewSnapshotResponse renders a snapshot with JSON-native attribute values.
func NewSnapshotResponse(s domain.Snapshot) SnapshotResponse {
	resp := SnapshotResponse{
		Seq:        s.Seq,
		IssueID:    s.IssueID,
		TrackerID:  s.TrackerID,
		Issue:      s.Issue,
		ChangedBy:  ValueJSON(s.ChangedBy),
		Attributes: make(map[string]any),
	}
	if !s.RecordedAt.IsZero() {
		at := s.RecordedAt.UTC()
		resp.RecordedAt = &at
	}
	for name, v := range s.Values() {
		resp.Attributes[name] = ValueJSON(v)
	}
	return resp
}

// ValueJSON maps a value to null, a string, a number or an RFC 3339 timestamp.
// Unknown people render as the string "unknown".
func ValueJSON(v domain.Value) any {
	switch v.Kind() {
	case domain.KindString, domain.KindUnknownPerson:
		return v.String()
	case domain.KindInt, domain.KindPerson:
		return v.Int64()
	case domain.KindTime:
		return v.Timestamp()
	default:
		return nil
	}
}
