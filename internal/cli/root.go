package cli

import (
	"fmt"
	"io"
	"os"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// NewRootCmd builds the issuelog command tree.
func NewRootCmd() *cobra.Command {
	var jsonOutput bool

	root := &cobra.Command{
		Use:   "issuelog",
		Short: "issuelog - replay issue tracker change logs into snapshot histories",
		Long: `issuelog rebuilds the full state history of every issue harvested from a
Bugzilla, Jira or Trac tracker by replaying its change log backwards from the
current state, and appends one snapshot per change to the per-kind log table.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")

	out := func(cmd *cobra.Command) printer {
		return printer{w: cmd.OutOrStdout(), json: jsonOutput}
	}

	root.AddCommand(
		newReplayCmd(out),
		newServeCmd(),
		newTokenCmd(out),
		newKindsCmd(out),
	)
	return root
}

// Execute runs the root command and exits non-zero on error.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

type printer struct {
	w    io.Writer
	json bool
}

// JSON prints v as indented JSON if --json is set and reports whether it did.
func (p printer) JSON(v any) (bool, error) {
	if !p.json {
		return false, nil
	}
	enc := json.NewEncoder(p.w)
	enc.SetIndent("", "  ")
	return true, enc.Encode(v)
}

func (p printer) Printf(format string, args ...any) {
	fmt.Fprintf(p.w, format, args...)
}
