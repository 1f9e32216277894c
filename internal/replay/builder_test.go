package replay

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/issuelog/internal/domain"
	"github.com/spec-kit/issuelog/internal/schema"
)

type peopleStub map[string]domain.PersonID

func (p peopleStub) ResolvePerson(_ context.Context, identifier string) (domain.PersonID, error) {
	if id, ok := p[identifier]; ok {
		return id, nil
	}
	return 0, domain.ErrPersonNotFound
}

type brokenResolver struct{}

func (brokenResolver) ResolvePerson(context.Context, string) (domain.PersonID, error) {
	return 0, errors.New("connection refused")
}

var (
	t0 = time.Date(2010, 1, 1, 9, 0, 0, 0, time.UTC)
	t1 = t0.Add(24 * time.Hour)
	t2 = t1.Add(24 * time.Hour)

	people = peopleStub{"a@example.org": 1, "b@example.org": 2, "reporter@example.org": 9}
)

func bugzillaState(values map[string]domain.Value) domain.CurrentState {
	return domain.CurrentState{
		IssueID:     42,
		TrackerID:   1,
		Issue:       "42",
		SubmittedBy: domain.Person(9),
		SubmittedAt: t0.Add(-time.Hour),
		Values:      values,
	}
}

func event(field, oldValue, newValue, author string, at time.Time) domain.ChangeEvent {
	return domain.ChangeEvent{IssueID: 42, Field: field, OldValue: oldValue, NewValue: newValue, Author: author, ChangedAt: at}
}

func attributeNames(adapter schema.Adapter) []string {
	var names []string
	for _, a := range adapter.Attributes() {
		names = append(names, a.Name)
	}
	return names
}

func Test_Replay_Scenario42(t *testing.T) {
	adapter := schema.Bugzilla()
	builder := NewBuilder(people, nil)

	current := bugzillaState(map[string]domain.Value{
		"status":   domain.String("RESOLVED"),
		"priority": domain.String("P2"),
		"summary":  domain.String("X"),
	})
	events := []domain.ChangeEvent{
		event("status", "NEW", "ASSIGNED", "a@example.org", t1),
		event("status", "ASSIGNED", "RESOLVED", "b@example.org", t2),
		event("Priority", "P3", "P2", "a@example.org", t0),
	}

	result, err := builder.Replay(context.Background(), 42, current, events, adapter)
	require.NoError(t, err)
	require.Len(t, result.Snapshots, 4)

	expected := []struct {
		status, priority string
		author           domain.Value
		at               time.Time
	}{
		{status: "NEW", priority: "P3", author: domain.Person(9), at: t0.Add(-time.Hour)},
		{status: "NEW", priority: "P2", author: domain.Person(1), at: t0},
		{status: "ASSIGNED", priority: "P2", author: domain.Person(1), at: t1},
		{status: "RESOLVED", priority: "P2", author: domain.Person(2), at: t2},
	}

	for i, want := range expected {
		s := result.Snapshots[i]
		assert.Equal(t, want.status, s.Value("status").String(), "snapshot %d status", i)
		assert.Equal(t, want.priority, s.Value("priority").String(), "snapshot %d priority", i)
		assert.Equal(t, "X", s.Value("summary").String(), "snapshot %d summary", i)
		assert.True(t, want.author.Equal(s.ChangedBy), "snapshot %d author", i)
		assert.Equal(t, want.at, s.RecordedAt, "snapshot %d time", i)
		assert.Equal(t, i, s.Seq)
		assert.Equal(t, int64(42), s.IssueID)
	}
	assert.Empty(t, result.Anomalies)
}

func Test_Replay_InitialValueInference(t *testing.T) {
	builder := NewBuilder(people, nil)
	current := bugzillaState(map[string]domain.Value{"status": domain.String("ASSIGNED")})

	result, err := builder.Replay(context.Background(), 42, current,
		[]domain.ChangeEvent{event("status", "NEW", "ASSIGNED", "a@example.org", t1)},
		schema.Bugzilla())
	require.NoError(t, err)
	require.Len(t, result.Snapshots, 2)

	assert.Equal(t, "NEW", result.Snapshots[0].Value("status").String())
	assert.Equal(t, "ASSIGNED", result.Snapshots[1].Value("status").String())
	assert.True(t, domain.Person(1).Equal(result.Snapshots[1].ChangedBy))
	assert.Equal(t, t1, result.Snapshots[1].RecordedAt)
}

func Test_Replay_NoHistory_YieldsCurrentState(t *testing.T) {
	adapter := schema.Jira()
	current := domain.CurrentState{
		IssueID:     7,
		TrackerID:   2,
		Issue:       "PROJ-7",
		SubmittedBy: domain.Person(9),
		SubmittedAt: t0,
		Values: map[string]domain.Value{
			"status":      domain.String("Open"),
			"assigned_to": domain.Person(2),
			"votes":       domain.Int(3),
			"not_a_field": domain.String("ignored"),
		},
	}

	result, err := NewBuilder(people, nil).Replay(context.Background(), 7, current, nil, adapter)
	require.NoError(t, err)
	require.Len(t, result.Snapshots, 1)

	s := result.Snapshots[0]
	assert.Equal(t, sortedCopy(attributeNames(adapter)), s.Attributes())
	assert.Equal(t, "Open", s.Value("status").String())
	assert.True(t, domain.Person(2).Equal(s.Value("assigned_to")))
	assert.True(t, domain.Int(3).Equal(s.Value("votes")))
	assert.True(t, s.Value("environment").IsNull())
	assert.Equal(t, t0, s.RecordedAt)
	_, hasExtra := s.Get("not_a_field")
	assert.False(t, hasExtra)
}

func Test_Replay_GenericTrackerIgnoresEveryLabel(t *testing.T) {
	current := domain.CurrentState{IssueID: 3, TrackerID: 4, Issue: "3", SubmittedAt: t0,
		Values: map[string]domain.Value{"summary": domain.String("crash on save")}}

	result, err := NewBuilder(people, nil).Replay(context.Background(), 3, current,
		[]domain.ChangeEvent{event("Summary", "crash", "crash on save", "a@example.org", t1)},
		schema.Generic(schema.KindTrac))
	require.NoError(t, err)
	require.Len(t, result.Snapshots, 1)
	assert.Equal(t, "crash on save", result.Snapshots[0].Value("summary").String())
	assert.Equal(t, 1, result.Count(AnomalyUnmappedField))
	assert.True(t, domain.UnknownPerson().Equal(result.Snapshots[0].ChangedBy))
}

func Test_Replay_UnmappedFieldTolerance(t *testing.T) {
	current := bugzillaState(map[string]domain.Value{"status": domain.String("NEW")})
	events := []domain.ChangeEvent{
		event("Depends on", "", "1234", "a@example.org", t1),
		event("Depends on", "1234", "", "a@example.org", t2),
		event("Blocks", "", "99", "a@example.org", t2),
	}

	result, err := NewBuilder(people, nil).Replay(context.Background(), 42, current, events, schema.Bugzilla())
	require.NoError(t, err)
	assert.Len(t, result.Snapshots, 1)
	assert.Equal(t, 2, result.Count(AnomalyUnmappedField))
}

func Test_Replay_UnknownAuthorDoesNotAbort(t *testing.T) {
	current := bugzillaState(map[string]domain.Value{"status": domain.String("CLOSED")})
	events := []domain.ChangeEvent{
		event("status", "NEW", "ASSIGNED", "ghost@example.org", t0),
		event("status", "ASSIGNED", "RESOLVED", "a@example.org", t1),
		event("status", "RESOLVED", "CLOSED", "", t2),
	}

	result, err := NewBuilder(people, nil).Replay(context.Background(), 42, current, events, schema.Bugzilla())
	require.NoError(t, err)
	require.Len(t, result.Snapshots, 4)

	assert.Equal(t, domain.KindUnknownPerson, result.Snapshots[1].ChangedBy.Kind())
	assert.Equal(t, "ASSIGNED", result.Snapshots[1].Value("status").String())
	assert.True(t, domain.Person(1).Equal(result.Snapshots[2].ChangedBy))
	assert.Equal(t, "RESOLVED", result.Snapshots[2].Value("status").String())
	assert.Equal(t, domain.KindUnknownPerson, result.Snapshots[3].ChangedBy.Kind())
	assert.Equal(t, 2, result.Count(AnomalyUnresolvedPerson))
}

func Test_Replay_UnknownAssigneeBecomesSentinelValue(t *testing.T) {
	current := bugzillaState(map[string]domain.Value{"assigned_to": domain.Person(2)})
	events := []domain.ChangeEvent{
		event("Assignee", "nobody@example.org", "b@example.org", "a@example.org", t1),
	}

	result, err := NewBuilder(people, nil).Replay(context.Background(), 42, current, events, schema.Bugzilla())
	require.NoError(t, err)
	require.Len(t, result.Snapshots, 2)
	assert.Equal(t, domain.KindUnknownPerson, result.Snapshots[0].Value("assigned_to").Kind())
	assert.True(t, domain.Person(2).Equal(result.Snapshots[1].Value("assigned_to")))
	assert.Equal(t, 1, result.Count(AnomalyUnresolvedPerson))
}

func Test_Replay_CoercionFailureKeepsPreviousValue(t *testing.T) {
	current := bugzillaState(map[string]domain.Value{"votes": domain.Int(5)})
	events := []domain.ChangeEvent{
		event("Votes", "1", "3", "a@example.org", t0),
		event("Votes", "3", "lots", "a@example.org", t1),
		event("Votes", "lots", "5", "b@example.org", t2),
	}

	result, err := NewBuilder(people, nil).Replay(context.Background(), 42, current, events, schema.Bugzilla())
	require.NoError(t, err)
	require.Len(t, result.Snapshots, 4)

	assert.True(t, domain.Int(1).Equal(result.Snapshots[0].Value("votes")))
	assert.True(t, domain.Int(3).Equal(result.Snapshots[1].Value("votes")))
	assert.True(t, domain.Int(3).Equal(result.Snapshots[2].Value("votes")))
	assert.True(t, domain.Person(1).Equal(result.Snapshots[2].ChangedBy))
	assert.True(t, domain.Int(5).Equal(result.Snapshots[3].Value("votes")))

	require.Equal(t, 1, result.Count(AnomalyCoercionFailure))
	assert.Equal(t, "lots", result.Anomalies[0].Raw)
	assert.ErrorIs(t, result.Anomalies[0].Err, domain.ErrValueCoercion)
}

func Test_Replay_MalformedInitialValueIsNull(t *testing.T) {
	current := bugzillaState(map[string]domain.Value{"votes": domain.Int(2)})
	events := []domain.ChangeEvent{event("Votes", "n/a", "2", "a@example.org", t1)}

	result, err := NewBuilder(people, nil).Replay(context.Background(), 42, current, events, schema.Bugzilla())
	require.NoError(t, err)
	assert.True(t, result.Snapshots[0].Value("votes").IsNull())
	assert.True(t, domain.Int(2).Equal(result.Snapshots[1].Value("votes")))
}

func Test_Replay_WhitespaceValueMatchesStoredString(t *testing.T) {
	current := bugzillaState(map[string]domain.Value{"status_whiteboard": domain.String(" ")})
	events := []domain.ChangeEvent{event("Whiteboard", "x", " ", "a@example.org", t1)}

	result, err := NewBuilder(people, nil).Replay(context.Background(), 42, current, events, schema.Bugzilla())
	require.NoError(t, err)
	require.Len(t, result.Snapshots, 2)

	assert.True(t, domain.String("x").Equal(result.Snapshots[0].Value("status_whiteboard")))
	last := result.Snapshots[1].Value("status_whiteboard")
	assert.Equal(t, domain.KindString, last.Kind())
	assert.True(t, current.Values["status_whiteboard"].Equal(last))
}

func Test_Replay_TieBreakIsFieldThenArrival(t *testing.T) {
	current := bugzillaState(map[string]domain.Value{
		"status":     domain.String("RESOLVED"),
		"resolution": domain.String("FIXED"),
	})
	events := []domain.ChangeEvent{
		event("status", "NEW", "ASSIGNED", "a@example.org", t1),
		event("status", "ASSIGNED", "RESOLVED", "a@example.org", t1),
		event("resolution", "", "FIXED", "a@example.org", t1),
	}

	result, err := NewBuilder(people, nil).Replay(context.Background(), 42, current, events, schema.Bugzilla())
	require.NoError(t, err)
	require.Len(t, result.Snapshots, 4)

	assert.Equal(t, "NEW", result.Snapshots[0].Value("status").String())
	assert.True(t, result.Snapshots[0].Value("resolution").IsNull())
	assert.Equal(t, []string{"resolution"}, result.Snapshots[0].Diff(result.Snapshots[1]))
	assert.Equal(t, "ASSIGNED", result.Snapshots[2].Value("status").String())
	assert.Equal(t, "RESOLVED", result.Snapshots[3].Value("status").String())
}

func Test_Replay_Invariants(t *testing.T) {
	adapter := schema.Bugzilla()
	current := bugzillaState(map[string]domain.Value{
		"status":      domain.String("VERIFIED"),
		"priority":    domain.String("P1"),
		"assigned_to": domain.Person(2),
		"product":     domain.String("Core"),
	})
	events := []domain.ChangeEvent{
		event("Product", "Firefox", "Core", "b@example.org", t2),
		event("status", "NEW", "ASSIGNED", "a@example.org", t0),
		event("Assignee", "a@example.org", "b@example.org", "a@example.org", t0),
		event("status", "ASSIGNED", "RESOLVED", "b@example.org", t1),
		event("status", "RESOLVED", "VERIFIED", "b@example.org", t2.Add(time.Minute)),
		event("Priority", "P3", "P1", "a@example.org", t1),
		event("Flags", "", "review?", "a@example.org", t1),
	}

	result, err := NewBuilder(people, nil).Replay(context.Background(), 42, current, events, adapter)
	require.NoError(t, err)
	require.Len(t, result.Snapshots, 7)

	declared := attributeNames(adapter)
	for i, s := range result.Snapshots {
		assert.Equal(t, sortedCopy(declared), s.Attributes(), "completeness of snapshot %d", i)
		if i == 0 {
			continue
		}
		prev := result.Snapshots[i-1]
		assert.False(t, s.RecordedAt.Before(prev.RecordedAt), "order of snapshot %d", i)
		assert.Len(t, prev.Diff(s), 1, "single delta of snapshot %d", i)
	}

	last := result.Snapshots[len(result.Snapshots)-1]
	for _, name := range []string{"status", "priority", "assigned_to", "product"} {
		assert.True(t, current.Values[name].Equal(last.Value(name)), "final %s matches current state", name)
	}
}

func Test_Replay_ResolverOutageIsReported(t *testing.T) {
	current := bugzillaState(nil)
	events := []domain.ChangeEvent{event("status", "NEW", "ASSIGNED", "a@example.org", t1)}

	_, err := NewBuilder(brokenResolver{}, nil).Replay(context.Background(), 42, current, events, schema.Bugzilla())
	assert.ErrorIs(t, err, domain.ErrSourceUnavailable)
}

func Test_Replay_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewBuilder(people, nil).Replay(ctx, 42, bugzillaState(nil), nil, schema.Bugzilla())
	assert.ErrorIs(t, err, context.Canceled)
}

func sortedCopy(in []string) []string {
	out := append([]string(nil), in...)
	sort.Strings(out)
	return out
}
