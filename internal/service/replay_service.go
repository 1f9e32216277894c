package service

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/issuelog/internal/config"
	"github.com/spec-kit/issuelog/internal/domain"
	"github.com/spec-kit/issuelog/internal/events"
	"github.com/spec-kit/issuelog/internal/replay"
	"github.com/spec-kit/issuelog/internal/repository"
	"github.com/spec-kit/issuelog/internal/schema"
	"github.com/spec-kit/issuelog/internal/worker"
)

// ErrRunInProgress is returned by Start while a background run is still going.
var ErrRunInProgress = errors.New("a replay run is already in progress")

// RunOptions selects what one run replays. Zero values fall back to the configured defaults.
type RunOptions struct {
	Kind      string
	TrackerID int64
	IssueIDs  []int64
	Workers   int
}

// ReplayService reconstructs and persists snapshot histories for a set of issues.
type ReplayService struct {
	issues     repository.IssueRepository
	changes    repository.ChangeRepository
	sink       repository.SnapshotRepository
	builder    *replay.Builder
	dispatcher events.Dispatcher
	reports    ReportStore
	overrides  schema.Overrides
	defaults   config.ReplayConfig
	logger     *zap.Logger
	now        func() time.Time

	mu      sync.Mutex
	running bool
	wg      sync.WaitGroup
}

// ReplayDependencies bundles collaborators for the replay service.
type ReplayDependencies struct {
	IssueRepo    repository.IssueRepository
	ChangeRepo   repository.ChangeRepository
	SnapshotRepo repository.SnapshotRepository
	Resolver     schema.PersonResolver
	Dispatcher   events.Dispatcher
	Reports      ReportStore
	Overrides    schema.Overrides
}

// NewReplayService wires the service. Dispatcher and Reports may be nil.
func NewReplayService(deps ReplayDependencies, defaults config.ReplayConfig, logger *zap.Logger) *ReplayService {
	dispatcher := deps.Dispatcher
	if dispatcher == nil {
		dispatcher = events.NewInMemoryDispatcher()
	}
	reports := deps.Reports
	if reports == nil {
		reports = NewMemoryReportStore()
	}
	return &ReplayService{
		issues:     deps.IssueRepo,
		changes:    deps.ChangeRepo,
		sink:       deps.SnapshotRepo,
		builder:    replay.NewBuilder(deps.Resolver, logger),
		dispatcher: dispatcher,
		reports:    reports,
		overrides:  deps.Overrides,
		defaults:   defaults,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Adapter returns the adapter for a tracker kind with the configured label overrides applied.
func (s *ReplayService) Adapter(kind string) (schema.Adapter, error) {
	if kind == "" {
		kind = s.defaults.TrackerKind
	}
	adapter, err := schema.ForKind(kind)
	if err != nil {
		return nil, err
	}
	return schema.WithOverrides(adapter, s.overrides[adapter.Kind()])
}

// Run replays every selected issue with a bounded number of workers and returns the report.
// When ctx is cancelled no further issues are started; the partial report is returned together
// with the context error.
func (s *ReplayService) Run(ctx context.Context, opts RunOptions) (*RunReport, error) {
	return s.run(ctx, uuid.NewString(), opts)
}

// Start launches Run in the background and returns its id. Only one background run at a time.
func (s *ReplayService) Start(ctx context.Context, opts RunOptions) (string, error) {
	if _, err := s.Adapter(opts.Kind); err != nil {
		return "", err
	}

	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return "", ErrRunInProgress
	}
	s.running = true
	s.mu.Unlock()

	id := uuid.NewString()
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			s.mu.Lock()
			s.running = false
			s.mu.Unlock()
		}()
		if _, err := s.run(ctx, id, opts); err != nil {
			s.logger.Error("background replay run failed", zap.String("run_id", id), zap.Error(err))
		}
	}()
	return id, nil
}

// Wait blocks until the background run, if any, has returned.
func (s *ReplayService) Wait() {
	s.wg.Wait()
}

// Latest returns the most recent stored run report.
func (s *ReplayService) Latest(ctx context.Context) (*RunReport, error) {
	return s.reports.Latest(ctx)
}

// Snapshots returns the stored history of one issue.
func (s *ReplayService) Snapshots(ctx context.Context, kind string, issueID int64) ([]domain.Snapshot, error) {
	adapter, err := s.Adapter(kind)
	if err != nil {
		return nil, err
	}
	return s.sink.ListByIssue(ctx, adapter, issueID)
}

func (s *ReplayService) run(ctx context.Context, runID string, opts RunOptions) (*RunReport, error) {
	adapter, err := s.Adapter(opts.Kind)
	if err != nil {
		return nil, err
	}

	trackerID := opts.TrackerID
	if trackerID == 0 {
		trackerID = s.defaults.TrackerID
	}
	workers := opts.Workers
	if workers < 1 {
		workers = s.defaults.WorkerCount()
	}

	ids := opts.IssueIDs
	if len(ids) == 0 {
		ids, err = s.issues.ListIssueIDs(ctx, trackerID)
		if err != nil {
			return nil, fmt.Errorf("list issues: %w", err)
		}
	}

	logger := s.logger.With(zap.String("run_id", runID), zap.String("tracker_kind", string(adapter.Kind())))
	logger.Info("replay run started", zap.Int("issues", len(ids)), zap.Int("workers", workers))

	report := newRunReport(runID, string(adapter.Kind()), trackerID, len(ids), s.now())

	results, dispatched := worker.Run(ctx, workers, ids,
		func(ctx context.Context, issueID int64) IssueReport {
			issue := s.replayIssue(ctx, adapter, issueID, logger)
			s.publishIssue(ctx, runID, adapter, issue, logger)
			return issue
		},
		func(issueID int64, recovered any) IssueReport {
			logger.Error("issue replay panicked",
				zap.Int64("issue_id", issueID),
				zap.Any("panic", recovered),
				zap.ByteString("stack", debug.Stack()))
			issue := IssueReport{
				IssueID: issueID,
				Outcome: OutcomeSkipped,
				Reason:  fmt.Sprintf("panic: %v", recovered),
			}
			s.publishIssue(ctx, runID, adapter, issue, logger)
			return issue
		})
	for _, issue := range results {
		report.add(issue)
	}
	report.finish(dispatched, ctx.Err() != nil, s.now())

	// the report outlives a cancelled run
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.reports.Save(saveCtx, report); err != nil {
		logger.Warn("saving run report failed", zap.Error(err))
	}
	s.publish(saveCtx, events.Event{
		Type:  events.EventRunFinished,
		RunID: runID,
		Payload: events.RunFinishedPayload{
			TrackerKind:       report.TrackerKind,
			FullyReplayed:     len(report.FullyReplayed),
			PartiallyReplayed: len(report.PartiallyReplayed),
			Skipped:           len(report.Skipped),
			Cancelled:         report.Cancelled,
		},
	}, logger)

	logger.Info("replay run finished",
		zap.Int("fully_replayed", len(report.FullyReplayed)),
		zap.Int("partially_replayed", len(report.PartiallyReplayed)),
		zap.Int("skipped", len(report.Skipped)),
		zap.Int("not_started", report.NotStarted),
		zap.Int("snapshots_written", report.SnapshotsWritten),
		zap.Any("anomalies", report.Anomalies),
		zap.Duration("elapsed", report.FinishedAt.Sub(report.StartedAt)))

	if report.Cancelled {
		return report, ctx.Err()
	}
	return report, nil
}

func (s *ReplayService) replayIssue(ctx context.Context, adapter schema.Adapter, issueID int64, logger *zap.Logger) IssueReport {
	start := time.Now()
	logger = logger.With(zap.Int64("issue_id", issueID))
	out := IssueReport{IssueID: issueID, Outcome: OutcomeSkipped}

	skip := func(stage string, err error) IssueReport {
		out.Reason = fmt.Sprintf("%s: %v", stage, err)
		out.Duration = time.Since(start)
		logger.Error("skipping issue", zap.String("stage", stage), zap.Error(err))
		return out
	}

	state, err := s.issues.LoadCurrentState(ctx, issueID, adapter)
	if err != nil {
		return skip("load current state", err)
	}
	history, err := repository.LoadEvents(ctx, s.changes, issueID)
	if err != nil {
		return skip("load change log", err)
	}
	result, err := s.builder.Replay(ctx, issueID, state, history, adapter)
	if err != nil {
		return skip("replay", err)
	}

	out.Snapshots = len(result.Snapshots)
	out.Anomalies = countAnomalies(result)

	done, err := s.sink.Persisted(ctx, adapter, issueID)
	if err != nil {
		if errors.Is(err, domain.ErrSinkConnection) {
			return skip("read stored history", err)
		}
		logger.Warn("could not read stored history; appending everything", zap.Error(err))
		done = 0
	}
	if done > len(result.Snapshots) {
		done = len(result.Snapshots)
	}
	out.Resumed = done

	halted := false
	for _, snapshot := range result.Snapshots[done:] {
		err := s.sink.Append(ctx, adapter, snapshot)
		if err == nil {
			out.Written++
			continue
		}
		if errors.Is(err, domain.ErrSinkConnection) {
			halted = true
			out.Reason = fmt.Sprintf("sink connection lost at seq %d: %v", snapshot.Seq, err)
			logger.Error("halting issue replay", zap.Int("seq", snapshot.Seq), zap.Error(err))
			break
		}
		out.WriteErrors++
		logger.Warn("snapshot write failed", zap.Int("seq", snapshot.Seq), zap.Error(err))
	}

	stored := out.Resumed + out.Written
	switch {
	case !halted && out.WriteErrors == 0:
		out.Outcome = OutcomeFullyReplayed
	case stored > 0:
		out.Outcome = OutcomePartiallyReplayed
		if out.Reason == "" {
			out.Reason = fmt.Sprintf("%d of %d snapshots failed to write", out.WriteErrors, out.Snapshots)
		}
	default:
		out.Outcome = OutcomeSkipped
	}
	out.Duration = time.Since(start)
	return out
}

func countAnomalies(result replay.Result) map[string]int {
	if len(result.Anomalies) == 0 {
		return nil
	}
	counts := make(map[string]int)
	for _, a := range result.Anomalies {
		counts[string(a.Kind)]++
	}
	return counts
}

func (s *ReplayService) publishIssue(ctx context.Context, runID string, adapter schema.Adapter, issue IssueReport, logger *zap.Logger) {
	eventType := events.EventIssueSkipped
	switch issue.Outcome {
	case OutcomeFullyReplayed:
		eventType = events.EventIssueReplayed
	case OutcomePartiallyReplayed:
		eventType = events.EventIssuePartiallyReplayed
	}
	s.publish(context.WithoutCancel(ctx), events.Event{
		Type:    eventType,
		RunID:   runID,
		IssueID: issue.IssueID,
		Payload: events.IssueOutcomePayload{
			TrackerKind: string(adapter.Kind()),
			Snapshots:   issue.Snapshots,
			Written:     issue.Written,
			Resumed:     issue.Resumed,
			WriteErrors: issue.WriteErrors,
			Anomalies:   issue.Anomalies,
			Duration:    issue.Duration,
			Reason:      issue.Reason,
		},
	}, logger)
}

func (s *ReplayService) publish(ctx context.Context, event events.Event, logger *zap.Logger) {
	event.ID = uuid.NewString()
	event.Timestamp = s.now()
	if err := s.dispatcher.Publish(ctx, event); err != nil {
		logger.Warn("event handler failed", zap.String("event_type", string(event.Type)), zap.Error(err))
	}
}
