package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "text" | "json"
	// Offline forces analysis requests into the pending queue.
	Offline bool

	app *App
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// Opener builds the App a command runs against.
type Opener func(ctx context.Context, opts *RootOptions) (*App, error)

// NewRootCommand creates the trackerctl command tree. A nil open uses
// OpenApp. The returned closer releases the App once the command has run,
// whether or not it failed.
func NewRootCommand(open Opener) (*cobra.Command, func() error) {
	if open == nil {
		open = OpenApp
	}
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:           "trackerctl",
		Short:         "Manage expenses and document analyses from the terminal",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			if !needsApp(cmd) {
				return nil
			}
			app, err := open(cmd.Context(), opts)
			if err != nil {
				return err
			}
			opts.app = app
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (text|json)")
	cmd.PersistentFlags().BoolVar(&opts.Offline, "offline", false, "treat the analysis API as unreachable")

	cmd.AddCommand(newExpenseCommand(opts))
	cmd.AddCommand(newSummaryCommand(opts))
	cmd.AddCommand(newKeyCommand(opts))
	cmd.AddCommand(newAnalyzeCommand(opts))
	cmd.AddCommand(newQueueCommand(opts))
	cmd.AddCommand(newHistoryCommand(opts))
	cmd.AddCommand(newEventsCommand(opts))

	closer := func() error {
		if opts.app == nil {
			return nil
		}
		app := opts.app
		opts.app = nil
		return app.Close()
	}
	return cmd, closer
}

// needsApp is false for cobra's own help and completion commands.
func needsApp(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		switch c.Name() {
		case "help", "completion", cobra.ShellCompRequestCmd, cobra.ShellCompNoDescRequestCmd:
			return false
		}
	}
	return true
}

// emit prints v as indented JSON in json mode, otherwise calls text with a
// tab-aligned writer.
func emit(cmd *cobra.Command, opts *RootOptions, v any, text func(w io.Writer)) error {
	out := cmd.OutOrStdout()
	if opts.Format == "json" {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	text(tw)
	return tw.Flush()
}
