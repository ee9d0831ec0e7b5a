package cli

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"expensetracker/internal/amqp"
	"expensetracker/internal/appstate"
	"expensetracker/internal/core"
	"expensetracker/internal/services"
)

var errNoEvents = errors.New("AMQP is not configured: set AMQP_URL to follow events")

func newKeyCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "key",
		Short: "Manage the analysis API key",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "set [KEY]",
		Short: "Save the API key, reading it from stdin when omitted",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var key string
			if len(args) == 1 && args[0] != "-" {
				key = args[0]
			} else {
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && !errors.Is(err, io.EOF) {
					return fmt.Errorf("read key: %w", err)
				}
				key = line
			}
			if err := opts.app.Analysis.SaveAPIKey(cmd.Context(), key); err != nil {
				return err
			}
			// Saving a key drains the queue when online; report what it did.
			opts.app.Analysis.Wait()
			snap := opts.app.Analysis.Refresh(cmd.Context())
			return emit(cmd, opts, snap, func(w io.Writer) {
				fmt.Fprintf(w, "API key saved (%s)\n", snap.MaskedKey)
				if snap.PendingCount > 0 {
					fmt.Fprintf(w, "%d files still waiting\n", snap.PendingCount)
				}
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Remove the saved API key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.app.Analysis.ClearAPIKey(cmd.Context()); err != nil {
				return err
			}
			return emit(cmd, opts, map[string]bool{"apiKeySet": false}, func(w io.Writer) {
				fmt.Fprintln(w, "API key removed")
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show whether a key is saved, masked",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			key, ok, err := opts.app.Analysis.APIKey(cmd.Context())
			if err != nil {
				return err
			}
			masked := ""
			if ok {
				masked = appstate.Mask(key)
			}
			payload := struct {
				APIKeySet bool   `json:"apiKeySet"`
				MaskedKey string `json:"maskedKey,omitempty"`
			}{ok, masked}
			return emit(cmd, opts, payload, func(w io.Writer) {
				if !ok {
					fmt.Fprintln(w, "No API key saved")
					return
				}
				fmt.Fprintln(w, masked)
			})
		},
	})
	return cmd
}

type outcomeJSON struct {
	FileName string `json:"fileName"`
	Status   string `json:"status"`
	Message  string `json:"message"`
	Summary  string `json:"summary,omitempty"`
}

func outcomesJSON(outs []services.Outcome) []outcomeJSON {
	res := make([]outcomeJSON, 0, len(outs))
	for _, o := range outs {
		j := outcomeJSON{FileName: o.FileName, Status: o.Status.String(), Message: o.Message()}
		if o.Entry != nil {
			j.Summary = o.Entry.Summary
		}
		res = append(res, j)
	}
	return res
}

func printOutcomes(w io.Writer, outs []outcomeJSON) {
	for _, o := range outs {
		fmt.Fprintf(w, "[%s]\t%s\n", o.Status, o.Message)
		if o.Summary != "" {
			fmt.Fprintf(w, "\n%s\n\n", strings.TrimSpace(o.Summary))
		}
	}
}

func newAnalyzeCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "analyze FILE...",
		Short: "Analyze files now, or queue them when offline or without a key",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			files := make([]core.FileUpload, 0, len(args))
			for _, path := range args {
				data, err := os.ReadFile(path)
				if err != nil {
					return fmt.Errorf("read %s: %w", path, err)
				}
				files = append(files, core.FileUpload{
					Name: filepath.Base(path),
					Type: http.DetectContentType(data),
					Data: data,
				})
			}
			outs := outcomesJSON(opts.app.Analysis.SubmitAll(cmd.Context(), files))
			if err := emit(cmd, opts, outs, func(w io.Writer) { printOutcomes(w, outs) }); err != nil {
				return err
			}
			for _, o := range outs {
				if o.Status == services.StatusFailed.String() || o.Status == services.StatusRejectedOversize.String() {
					return errors.New("some files were not accepted")
				}
			}
			return nil
		},
	}
}

func newQueueCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect or process files waiting for analysis",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List waiting files, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			snap := opts.app.Analysis.Refresh(cmd.Context())
			return emit(cmd, opts, snap.Pending, func(w io.Writer) {
				if len(snap.Pending) == 0 {
					fmt.Fprintln(w, "Queue is empty")
					return
				}
				fmt.Fprintln(w, "NAME\tSIZE\tQUEUED")
				for _, p := range snap.Pending {
					fmt.Fprintf(w, "%s\t%s\t%s\n", p.Name, humanize.IBytes(uint64(p.Size)), humanize.Time(p.EnqueuedAt))
				}
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "drain",
		Short: "Analyze every waiting file now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			report, err := opts.app.Analysis.Drain(cmd.Context())
			if err != nil {
				return err
			}
			outs := outcomesJSON(report.Outcomes)
			payload := struct {
				Taken     int           `json:"taken"`
				Succeeded int           `json:"succeeded"`
				Failed    int           `json:"failed"`
				Requeued  int           `json:"requeued"`
				Outcomes  []outcomeJSON `json:"outcomes"`
			}{report.Taken, report.Succeeded, report.Failed, report.Requeued, outs}
			return emit(cmd, opts, payload, func(w io.Writer) {
				if report.Taken == 0 {
					fmt.Fprintln(w, "Nothing to process (queue empty, offline or no API key)")
					return
				}
				printOutcomes(w, outs)
				fmt.Fprintf(w, "%d analyzed, %d failed, %d still waiting\n", report.Succeeded, report.Failed, report.Requeued)
			})
		},
	})
	return cmd
}

func newHistoryCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "history",
		Short: "Show stored analysis results, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, err := opts.app.Analysis.History(cmd.Context())
			if err != nil {
				return err
			}
			if entries == nil {
				entries = []core.AnalysisEntry{}
			}
			return emit(cmd, opts, entries, func(w io.Writer) {
				if len(entries) == 0 {
					fmt.Fprintln(w, "No analyses yet")
					return
				}
				for _, e := range entries {
					fmt.Fprintf(w, "%s\t%s\n%s\n\n", e.FileName, humanize.Time(e.AnalyzedAt), strings.TrimSpace(e.Summary))
				}
			})
		},
	}
}

func newEventsCommand(opts *RootOptions) *cobra.Command {
	var binding string
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Follow domain events published on the AMQP exchange",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.app.Events == nil {
				return errNoEvents
			}
			out := cmd.OutOrStdout()
			err := opts.app.Events.Consume(cmd.Context(), binding, func(ev *amqp.Event) error {
				if opts.Format == "json" {
					return json.NewEncoder(out).Encode(ev)
				}
				_, err := fmt.Fprintf(out, "%s %s %s\n", ev.Timestamp.Format("2006-01-02 15:04:05"), ev.Type, describeEvent(ev))
				return err
			})
			if cmd.Context().Err() != nil {
				return nil
			}
			return err
		},
	}
	cmd.Flags().StringVar(&binding, "binding", "#", "routing key pattern, e.g. expense.*")
	return cmd
}

func describeEvent(ev *amqp.Event) string {
	switch {
	case ev.Expense != nil:
		return fmt.Sprintf("%s %q %s %s", ev.Expense.OccurredOn, ev.Expense.Title, ev.Expense.Amount, ev.Expense.Category)
	case ev.Analysis != nil:
		return ev.Analysis.FileName
	default:
		return ev.ExpenseID
	}
}
