package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/issuelog/internal/config"
	"github.com/spec-kit/issuelog/internal/domain"
	"github.com/spec-kit/issuelog/internal/events"
	"github.com/spec-kit/issuelog/internal/observability"
	"github.com/spec-kit/issuelog/internal/repository"
	"github.com/spec-kit/issuelog/internal/schema"
)

var base = time.Date(2010, 6, 1, 12, 0, 0, 0, time.UTC)

type fakeIssues struct {
	states map[int64]domain.CurrentState
	gate   chan struct{}
	panics map[int64]bool
}

func (f *fakeIssues) ListIssueIDs(context.Context, int64) ([]int64, error) {
	ids := make([]int64, 0, len(f.states))
	for id := range f.states {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (f *fakeIssues) LoadCurrentState(_ context.Context, issueID int64, _ schema.Adapter) (domain.CurrentState, error) {
	if f.gate != nil {
		<-f.gate
	}
	if f.panics[issueID] {
		panic(fmt.Sprintf("corrupt row for issue %d", issueID))
	}
	state, ok := f.states[issueID]
	if !ok {
		return domain.CurrentState{}, repository.ErrIssueNotFound
	}
	return state, nil
}

type fakeChanges struct {
	history map[int64]map[string][]domain.FieldChange
	broken  map[int64]bool
}

func (f *fakeChanges) ListChangedFields(_ context.Context, issueID int64) ([]string, error) {
	if f.broken[issueID] {
		return nil, domain.ErrSourceUnavailable
	}
	var fields []string
	for _, field := range []string{"Priority", "Product", "Severity", "status"} {
		if _, ok := f.history[issueID][field]; ok {
			fields = append(fields, field)
		}
	}
	return fields, nil
}

func (f *fakeChanges) FieldHistory(_ context.Context, issueID int64, field string) ([]domain.FieldChange, error) {
	return f.history[issueID][field], nil
}

type fakeSink struct {
	mu       sync.Mutex
	stored   map[int64][]domain.Snapshot
	failures map[int64]map[int]error
}

func newFakeSink() *fakeSink {
	return &fakeSink{stored: map[int64][]domain.Snapshot{}, failures: map[int64]map[int]error{}}
}

func (f *fakeSink) failAt(issueID int64, seq int, err error) {
	if f.failures[issueID] == nil {
		f.failures[issueID] = map[int]error{}
	}
	f.failures[issueID][seq] = err
}

func (f *fakeSink) Append(_ context.Context, _ schema.Adapter, s domain.Snapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failures[s.IssueID][s.Seq]; err != nil {
		return repository.ClassifySinkError(err)
	}
	f.stored[s.IssueID] = append(f.stored[s.IssueID], s)
	return nil
}

func (f *fakeSink) Persisted(_ context.Context, _ schema.Adapter, issueID int64) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.stored[issueID]), nil
}

func (f *fakeSink) ListByIssue(_ context.Context, _ schema.Adapter, issueID int64) ([]domain.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Snapshot(nil), f.stored[issueID]...), nil
}

type fakeResolver map[string]domain.PersonID

func (f fakeResolver) ResolvePerson(_ context.Context, identifier string) (domain.PersonID, error) {
	if id, ok := f[identifier]; ok {
		return id, nil
	}
	return 0, domain.ErrPersonNotFound
}

func currentState(id int64, status, priority string) domain.CurrentState {
	return domain.CurrentState{
		IssueID:     id,
		TrackerID:   1,
		Issue:       "bug",
		SubmittedBy: domain.Person(1),
		SubmittedAt: base,
		Values: map[string]domain.Value{
			"status":   domain.String(status),
			"priority": domain.String(priority),
			"summary":  domain.String("X"),
		},
	}
}

// scenario builds issue 42 with four snapshots and issue 7 with none recorded in the log.
func scenario() (*fakeIssues, *fakeChanges) {
	issues := &fakeIssues{states: map[int64]domain.CurrentState{
		42: currentState(42, "RESOLVED", "P2"),
		7:  currentState(7, "NEW", "P1"),
	}}
	changes := &fakeChanges{history: map[int64]map[string][]domain.FieldChange{
		42: {
			"status": {
				{OldValue: "NEW", NewValue: "ASSIGNED", Author: "a@x.org", ChangedAt: base.Add(2 * time.Hour)},
				{OldValue: "ASSIGNED", NewValue: "RESOLVED", Author: "b@x.org", ChangedAt: base.Add(3 * time.Hour)},
			},
			"Priority": {
				{OldValue: "P3", NewValue: "P2", Author: "a@x.org", ChangedAt: base.Add(time.Hour)},
			},
			"Product": {},
		},
	}}
	return issues, changes
}

type harness struct {
	service  *ReplayService
	sink     *fakeSink
	events   *[]events.Event
	reports  ReportStore
	issues   *fakeIssues
	changes  *fakeChanges
	registry *observability.Metrics
}

func newHarness(t *testing.T) harness {
	t.Helper()
	issues, changes := scenario()
	sink := newFakeSink()
	dispatcher := events.NewInMemoryDispatcher()
	metrics := observability.NewMetrics()
	NewOutcomeNotifier(dispatcher, zap.NewNop(), metrics).RegisterHandlers()

	var (
		mu        sync.Mutex
		published []events.Event
	)
	for _, et := range []events.EventType{
		events.EventIssueReplayed, events.EventIssuePartiallyReplayed,
		events.EventIssueSkipped, events.EventRunFinished,
	} {
		dispatcher.Subscribe(et, func(_ context.Context, e events.Event) error {
			mu.Lock()
			published = append(published, e)
			mu.Unlock()
			return nil
		})
	}

	reports := NewMemoryReportStore()
	svc := NewReplayService(ReplayDependencies{
		IssueRepo:    issues,
		ChangeRepo:   changes,
		SnapshotRepo: sink,
		Resolver:     fakeResolver{"a@x.org": 10, "b@x.org": 11},
		Dispatcher:   dispatcher,
		Reports:      reports,
	}, config.ReplayConfig{TrackerKind: "bugzilla", Workers: 2}, zap.NewNop())

	return harness{service: svc, sink: sink, events: &published, reports: reports,
		issues: issues, changes: changes, registry: metrics}
}

func Test_Run_FullyReplaysEveryIssue(t *testing.T) {
	h := newHarness(t)

	report, err := h.service.Run(context.Background(), RunOptions{})
	require.NoError(t, err)

	assert.NotEmpty(t, report.ID)
	assert.Equal(t, "bugzilla", report.TrackerKind)
	assert.Equal(t, []int64{7, 42}, report.FullyReplayed)
	assert.Empty(t, report.PartiallyReplayed)
	assert.Empty(t, report.Skipped)
	assert.Equal(t, 5, report.SnapshotsWritten)
	assert.False(t, report.Cancelled)
	assert.Zero(t, report.NotStarted)

	stored := h.sink.stored[42]
	require.Len(t, stored, 4)
	assert.Equal(t, "NEW", stored[0].Value("status").String())
	assert.Equal(t, "P3", stored[0].Value("priority").String())
	assert.Equal(t, "P2", stored[1].Value("priority").String())
	assert.Equal(t, "RESOLVED", stored[3].Value("status").String())
	assert.True(t, domain.Person(11).Equal(stored[3].ChangedBy))
	for i, s := range stored {
		assert.Equal(t, i, s.Seq)
	}

	latest, err := h.reports.Latest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, report.ID, latest.ID)

	assert.Len(t, *h.events, 3)
	series, err := testutil.GatherAndCount(h.registry.Registry(), "issuelog_issues_total")
	require.NoError(t, err)
	assert.Equal(t, 1, series)
}

func Test_Run_ResumesAfterStoredSnapshots(t *testing.T) {
	h := newHarness(t)

	_, err := h.service.Run(context.Background(), RunOptions{IssueIDs: []int64{42}})
	require.NoError(t, err)
	h.sink.stored[42] = h.sink.stored[42][:2]

	report, err := h.service.Run(context.Background(), RunOptions{IssueIDs: []int64{42}})
	require.NoError(t, err)

	assert.Equal(t, []int64{42}, report.FullyReplayed)
	assert.Equal(t, 2, report.SnapshotsWritten)
	require.Len(t, h.sink.stored[42], 4)
	assert.Equal(t, 3, h.sink.stored[42][3].Seq)
}

func Test_Run_IsolatedWriteFailureIsPartial(t *testing.T) {
	h := newHarness(t)
	h.sink.failAt(42, 1, &pgconn.PgError{Code: "22001"})

	report, err := h.service.Run(context.Background(), RunOptions{})
	require.NoError(t, err)

	assert.Equal(t, []int64{42}, report.PartiallyReplayed)
	assert.Equal(t, []int64{7}, report.FullyReplayed)
	assert.Equal(t, 1, report.WriteErrors)
	assert.Len(t, h.sink.stored[42], 3, "later snapshots are still written")
	require.Len(t, report.Failures, 1)
	assert.Contains(t, report.Failures[0].Reason, "1 of 4")
}

func Test_Run_ConnectionFailureHaltsOnlyThatIssue(t *testing.T) {
	h := newHarness(t)
	h.sink.failAt(42, 2, &pgconn.PgError{Code: "08006"})

	report, err := h.service.Run(context.Background(), RunOptions{})
	require.NoError(t, err)

	assert.Equal(t, []int64{42}, report.PartiallyReplayed)
	assert.Equal(t, []int64{7}, report.FullyReplayed)
	assert.Len(t, h.sink.stored[42], 2)
	assert.Contains(t, report.Failures[0].Reason, "seq 2")
}

func Test_Run_ConnectionFailureBeforeAnyWriteSkips(t *testing.T) {
	h := newHarness(t)
	h.sink.failAt(42, 0, &pgconn.PgError{Code: "57P01"})

	report, err := h.service.Run(context.Background(), RunOptions{IssueIDs: []int64{42}})
	require.NoError(t, err)

	assert.Equal(t, []int64{42}, report.Skipped)
	assert.Empty(t, h.sink.stored[42])
}

func Test_Run_SourceUnavailableSkipsIssue(t *testing.T) {
	h := newHarness(t)
	h.changes.broken = map[int64]bool{42: true}

	report, err := h.service.Run(context.Background(), RunOptions{IssueIDs: []int64{42, 7, 99}})
	require.NoError(t, err)

	assert.Equal(t, []int64{42, 99}, report.Skipped)
	assert.Equal(t, []int64{7}, report.FullyReplayed)
	require.Len(t, report.Failures, 2)
	assert.Contains(t, report.Failures[0].Reason, "load change log")
	assert.Contains(t, report.Failures[1].Reason, "load current state")
}

func Test_Run_PanickingIssueIsSkippedAndOthersContinue(t *testing.T) {
	h := newHarness(t)
	h.issues.states[13] = currentState(13, "NEW", "P1")
	h.issues.panics = map[int64]bool{13: true}

	report, err := h.service.Run(context.Background(), RunOptions{})
	require.NoError(t, err)

	assert.Equal(t, []int64{7, 42}, report.FullyReplayed)
	assert.Equal(t, []int64{13}, report.Skipped)
	require.Len(t, report.Failures, 1)
	assert.Contains(t, report.Failures[0].Reason, "corrupt row for issue 13")
	assert.Len(t, h.sink.stored[42], 4)

	skipped := 0
	for _, e := range *h.events {
		if e.Type == events.EventIssueSkipped && e.IssueID == 13 {
			skipped++
		}
	}
	assert.Equal(t, 1, skipped)
}

func Test_Run_CountsAnomalies(t *testing.T) {
	h := newHarness(t)
	h.changes.history[42]["Severity"] = []domain.FieldChange{
		{OldValue: "minor", NewValue: "major", Author: "ghost", ChangedAt: base.Add(4 * time.Hour)},
	}
	h.changes.history[42]["Flags"] = []domain.FieldChange{{NewValue: "x", ChangedAt: base}}
	h.changes.history[42]["status"][0].Author = "nobody"

	report, err := h.service.Run(context.Background(), RunOptions{IssueIDs: []int64{42}})
	require.NoError(t, err)

	assert.Equal(t, 2, report.Anomalies["unresolved_person"])
	assert.Equal(t, 0, report.Anomalies["unmapped_field"], "Flags is never listed by the fake source")
	assert.Equal(t, []int64{42}, report.FullyReplayed)
}

func Test_Run_UnknownKind(t *testing.T) {
	h := newHarness(t)
	_, err := h.service.Run(context.Background(), RunOptions{Kind: "redmine"})
	assert.ErrorIs(t, err, domain.ErrUnknownTrackerKind)
}

func Test_Run_CancelledBeforeStart(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := h.service.Run(ctx, RunOptions{IssueIDs: []int64{42, 7}})

	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, report)
	assert.True(t, report.Cancelled)
	assert.Equal(t, 2, report.NotStarted)
	assert.Zero(t, report.Processed())
}

func Test_Start_RejectsConcurrentRuns(t *testing.T) {
	h := newHarness(t)
	h.issues.gate = make(chan struct{})

	id, err := h.service.Start(context.Background(), RunOptions{IssueIDs: []int64{42}})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	_, err = h.service.Start(context.Background(), RunOptions{})
	assert.ErrorIs(t, err, ErrRunInProgress)

	close(h.issues.gate)
	h.service.Wait()

	latest, err := h.service.Latest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, id, latest.ID)

	_, err = h.service.Start(context.Background(), RunOptions{IssueIDs: []int64{7}})
	assert.NoError(t, err)
	h.service.Wait()
}

func Test_Snapshots_ReadsStoredHistory(t *testing.T) {
	h := newHarness(t)
	_, err := h.service.Run(context.Background(), RunOptions{IssueIDs: []int64{42}})
	require.NoError(t, err)

	snapshots, err := h.service.Snapshots(context.Background(), "bg", 42)
	require.NoError(t, err)
	assert.Len(t, snapshots, 4)

	_, err = h.service.Snapshots(context.Background(), "nope", 42)
	assert.True(t, errors.Is(err, domain.ErrUnknownTrackerKind))
}
