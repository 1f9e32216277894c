package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/spec-kit/issuelog/internal/events"
	"github.com/spec-kit/issuelog/internal/observability"
)

// OutcomeNotifier turns replay outcome events into log lines and metrics.
type OutcomeNotifier struct {
	dispatcher events.Dispatcher
	logger     *zap.Logger
	metrics    *observability.Metrics
}

// NewOutcomeNotifier creates the notifier. metrics may be nil.
func NewOutcomeNotifier(dispatcher events.Dispatcher, logger *zap.Logger, metrics *observability.Metrics) *OutcomeNotifier {
	return &OutcomeNotifier{
		dispatcher: dispatcher,
		logger:     logger,
		metrics:    metrics,
	}
}

// RegisterHandlers subscribes to events.
func (n *OutcomeNotifier) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	n.dispatcher.Subscribe(events.EventIssueReplayed, n.handleIssueOutcome)
	n.dispatcher.Subscribe(events.EventIssuePartiallyReplayed, n.handleIssueOutcome)
	n.dispatcher.Subscribe(events.EventIssueSkipped, n.handleIssueOutcome)
	n.dispatcher.Subscribe(events.EventRunFinished, n.handleRunFinished)
}

func (n *OutcomeNotifier) handleIssueOutcome(_ context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.IssueOutcomePayload)
	if !ok {
		return nil
	}

	outcome := outcomeFor(event.Type)
	n.metrics.RecordIssue(string(outcome), payload.Written, payload.Duration)
	n.metrics.RecordSinkFailures("write", payload.WriteErrors)
	for kind, count := range payload.Anomalies {
		n.metrics.RecordAnomalies(kind, count)
	}

	fields := []zap.Field{
		zap.String("run_id", event.RunID),
		zap.Int64("issue_id", event.IssueID),
		zap.String("outcome", string(outcome)),
		zap.Int("snapshots", payload.Snapshots),
		zap.Int("written", payload.Written),
		zap.Int("resumed", payload.Resumed),
	}
	if outcome == OutcomeFullyReplayed {
		n.logger.Debug("issue replayed", fields...)
		return nil
	}
	n.logger.Warn("issue not fully replayed", append(fields, zap.String("reason", payload.Reason))...)
	return nil
}

func (n *OutcomeNotifier) handleRunFinished(_ context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.RunFinishedPayload)
	if !ok {
		return nil
	}
	n.metrics.RecordRun(payload.TrackerKind)
	n.logger.Info("RunFinished",
		zap.String("run_id", event.RunID),
		zap.Any("payload", payload))
	return nil
}

func outcomeFor(t events.EventType) Outcome {
	switch t {
	case events.EventIssueReplayed:
		return OutcomeFullyReplayed
	case events.EventIssuePartiallyReplayed:
		return OutcomePartiallyReplayed
	default:
		return OutcomeSkipped
	}
}
