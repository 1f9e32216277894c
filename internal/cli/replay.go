package cli

import (
	"context"
	"errors"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spec-kit/issuelog/internal/service"
)

type replayOptions struct {
	kind    string
	tracker int64
	workers int
	issues  []int64
}

func (o replayOptions) runOptions() service.RunOptions {
	return service.RunOptions{
		Kind:      o.kind,
		TrackerID: o.tracker,
		IssueIDs:  o.issues,
		Workers:   o.workers,
	}
}

func newReplayCmd(out func(*cobra.Command) printer) *cobra.Command {
	var opts replayOptions

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Replay change logs once and print the run report",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.workers < 0 || opts.tracker < 0 {
				return errors.New("--workers and --tracker must not be negative")
			}

			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := openApp(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			report, runErr := a.replay.Run(ctx, opts.runOptions())
			if report == nil {
				return runErr
			}
			if runErr != nil && !errors.Is(runErr, context.Canceled) {
				logger.Warn("replay run interrupted", zap.Error(runErr))
			}

			if err := printReport(out(cmd), report); err != nil {
				return err
			}
			return runErr
		},
	}

	cmd.Flags().StringVar(&opts.kind, "kind", "", "tracker kind: bugzilla, jira, trac or trac_wordpress (default from REPLAY_TRACKER_KIND)")
	cmd.Flags().Int64Var(&opts.tracker, "tracker", 0, "only replay issues of this tracker id")
	cmd.Flags().IntVar(&opts.workers, "workers", 0, "number of issues replayed concurrently (default from REPLAY_WORKERS)")
	cmd.Flags().Int64SliceVar(&opts.issues, "issue", nil, "replay only these issue ids (repeatable)")
	return cmd
}

func printReport(p printer, report *service.RunReport) error {
	if done, err := p.JSON(report); done || err != nil {
		return err
	}

	p.Printf("Run %s (%s)\n", report.ID, report.TrackerKind)
	p.Printf("  Issues: %d selected, %d processed", report.Issues, report.Processed())
	if report.Cancelled {
		p.Printf(", %d not started (cancelled)", report.NotStarted)
	}
	p.Printf("\n")
	p.Printf("  Fully replayed: %d\n", len(report.FullyReplayed))
	p.Printf("  Partially replayed: %d\n", len(report.PartiallyReplayed))
	p.Printf("  Skipped: %d\n", len(report.Skipped))
	p.Printf("  Snapshots written: %d\n", report.SnapshotsWritten)
	p.Printf("  Write errors: %d\n", report.WriteErrors)

	kinds := make([]string, 0, len(report.Anomalies))
	for kind := range report.Anomalies {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)
	parts := make([]string, 0, len(kinds))
	for _, kind := range kinds {
		parts = append(parts, kind+"="+strconv.Itoa(report.Anomalies[kind]))
	}
	p.Printf("  Anomalies: %s\n", strings.Join(parts, " "))

	for _, f := range report.Failures {
		if f.Reason != "" {
			p.Printf("  issue %d: %s (%s)\n", f.IssueID, f.Outcome, f.Reason)
		} else {
			p.Printf("  issue %d: %s\n", f.IssueID, f.Outcome)
		}
	}
	return nil
}
