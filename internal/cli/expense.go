package cli

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"expensetracker/internal/core"
	"expensetracker/internal/export"
	"expensetracker/internal/services"
)

func newExpenseCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "expense",
		Short: "Add, list, delete, export and import expenses",
	}
	cmd.AddCommand(newExpenseAddCommand(opts))
	cmd.AddCommand(newExpenseListCommand(opts))
	cmd.AddCommand(newExpenseDeleteCommand(opts))
	cmd.AddCommand(newExpenseExportCommand(opts))
	cmd.AddCommand(newExpenseImportCommand(opts))
	return cmd
}

func newExpenseAddCommand(opts *RootOptions) *cobra.Command {
	var in services.ExpenseInput
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Record a new expense",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := opts.app.Expenses.CreateExpense(cmd.Context(), in)
			if err != nil {
				return err
			}
			row := export.RowFromExpense(e)
			return emit(cmd, opts, row, func(w io.Writer) {
				fmt.Fprintf(w, "Saved %s\t%s\t%s\t%s\n", row.ID, row.Date, row.Title, row.Amount)
			})
		},
	}
	cmd.Flags().StringVar(&in.Title, "title", "", "expense title")
	cmd.Flags().StringVar(&in.Amount, "amount", "", "amount, e.g. 12.50")
	cmd.Flags().StringVar(&in.Category, "category", "", "category name")
	cmd.Flags().StringVar(&in.Date, "date", "", "date as YYYY-MM-DD (default today)")
	cmd.Flags().StringVar(&in.Notes, "notes", "", "optional notes")
	_ = cmd.MarkFlagRequired("title")
	_ = cmd.MarkFlagRequired("amount")
	_ = cmd.MarkFlagRequired("category")
	return cmd
}

func newExpenseListCommand(opts *RootOptions) *cobra.Command {
	var view string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List expenses for this month, this year or all time",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			list, err := opts.app.Expenses.ListExpenses(cmd.Context(), services.ParseView(view))
			if err != nil {
				return err
			}
			rows := make([]export.Row, 0, len(list))
			total := decimal.Zero
			for _, e := range list {
				rows = append(rows, export.RowFromExpense(e))
				total = total.Add(e.Amount)
			}
			return emit(cmd, opts, rows, func(w io.Writer) {
				fmt.Fprintln(w, "DATE\tTITLE\tCATEGORY\tAMOUNT\tID")
				for _, r := range rows {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", r.Date, r.Title, r.Category, r.Amount, r.ID)
				}
				fmt.Fprintf(w, "\t%d expenses\tTOTAL\t%s\t\n", len(rows), core.FormatAmount(total))
			})
		},
	}
	cmd.Flags().StringVar(&view, "view", "monthly", "monthly, yearly or all")
	return cmd
}

func newExpenseDeleteCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete ID",
		Short: "Delete an expense by id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.app.Expenses.DeleteExpense(cmd.Context(), args[0]); err != nil {
				return err
			}
			return emit(cmd, opts, map[string]string{"deleted": args[0]}, func(w io.Writer) {
				fmt.Fprintf(w, "Deleted %s\n", args[0])
			})
		},
	}
}

func newExpenseExportCommand(opts *RootOptions) *cobra.Command {
	var (
		view   string
		output string
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write expenses as CSV",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			list, err := opts.app.Expenses.ListExpenses(cmd.Context(), services.ParseView(view))
			if err != nil {
				return err
			}
			if output == "" || output == "-" {
				return export.WriteCSV(cmd.OutOrStdout(), list)
			}
			f, err := os.Create(output)
			if err != nil {
				return fmt.Errorf("create %s: %w", output, err)
			}
			if err := export.WriteCSV(f, list); err != nil {
				f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Exported %d expenses to %s\n", len(list), output)
			return nil
		},
	}
	cmd.Flags().StringVar(&view, "view", "all", "monthly, yearly or all")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default stdout)")
	return cmd
}

func newExpenseImportCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "import FILE",
		Short: "Add every row of a CSV export as a new expense",
		Long: `Reads a CSV with the columns written by "expense export". Each row is
validated and stored under a fresh id. Import stops at the first invalid row;
rows before it stay saved.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("open %s: %w", args[0], err)
			}
			defer f.Close()

			rows, err := export.ReadCSV(f)
			if err != nil {
				return err
			}
			start := time.Now()
			for i, r := range rows {
				_, err := opts.app.Expenses.CreateExpense(cmd.Context(), services.ExpenseInput{
					Title:    r.Title,
					Amount:   r.Amount,
					Category: r.Category,
					Date:     r.Date,
					Notes:    r.Notes,
				})
				if err != nil {
					// Row 1 is the header.
					return fmt.Errorf("row %d: %w", i+2, err)
				}
			}
			return emit(cmd, opts, map[string]int{"imported": len(rows)}, func(w io.Writer) {
				fmt.Fprintf(w, "Imported %d expenses in %s\n", len(rows), time.Since(start).Round(time.Millisecond))
			})
		},
	}
}

func newSummaryCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Show monthly or yearly totals",
	}
	cmd.AddCommand(newSummaryMonthCommand(opts))
	cmd.AddCommand(newSummaryYearCommand(opts))
	return cmd
}

type categoryJSON struct {
	Name   string `json:"name"`
	Amount string `json:"amount"`
}

func categoriesJSON(in []core.CategoryAmount) []categoryJSON {
	out := make([]categoryJSON, 0, len(in))
	for _, c := range in {
		out = append(out, categoryJSON{Name: c.Name, Amount: core.FormatAmount(c.Amount)})
	}
	return out
}

func newSummaryMonthCommand(opts *RootOptions) *cobra.Command {
	var year, month int
	cmd := &cobra.Command{
		Use:   "month",
		Short: "Totals per category for one month",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			today := opts.app.Expenses.Today()
			if year == 0 {
				year = today.Year()
			}
			if month == 0 {
				month = today.Month()
			}
			ov, err := opts.app.Expenses.MonthOverview(cmd.Context(), year, month)
			if err != nil {
				return err
			}
			payload := struct {
				Year       int            `json:"year"`
				Month      int            `json:"month"`
				Total      string         `json:"total"`
				Count      int            `json:"count"`
				Categories []categoryJSON `json:"categories"`
			}{ov.Year, ov.Month, core.FormatAmount(ov.Total), ov.Count, categoriesJSON(ov.ByCategory)}
			return emit(cmd, opts, payload, func(w io.Writer) {
				fmt.Fprintf(w, "%s %d\t%s\t(%d expenses)\n", time.Month(ov.Month), ov.Year, payload.Total, ov.Count)
				for _, c := range payload.Categories {
					fmt.Fprintf(w, "  %s\t%s\t\n", c.Name, c.Amount)
				}
			})
		},
	}
	cmd.Flags().IntVar(&year, "year", 0, "year (default current)")
	cmd.Flags().IntVar(&month, "month", 0, "month 1-12 (default current)")
	return cmd
}

func newSummaryYearCommand(opts *RootOptions) *cobra.Command {
	var year int
	cmd := &cobra.Command{
		Use:   "year",
		Short: "Totals per month and category for one year",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if year == 0 {
				year = opts.app.Expenses.Today().Year()
			}
			ov, err := opts.app.Expenses.YearOverview(cmd.Context(), year)
			if err != nil {
				return err
			}
			months := make([]categoryJSON, 0, len(ov.ByMonth))
			for _, m := range ov.ByMonth {
				months = append(months, categoryJSON{Name: time.Month(m.Month).String(), Amount: core.FormatAmount(m.Total)})
			}
			payload := struct {
				Year       int            `json:"year"`
				Total      string         `json:"total"`
				Months     []categoryJSON `json:"months"`
				Categories []categoryJSON `json:"categories"`
			}{ov.Year, core.FormatAmount(ov.Total), months, categoriesJSON(ov.ByCategory)}
			return emit(cmd, opts, payload, func(w io.Writer) {
				fmt.Fprintf(w, "%d\t%s\t\n", ov.Year, payload.Total)
				for _, m := range payload.Months {
					fmt.Fprintf(w, "  %s\t%s\t\n", m.Name, m.Amount)
				}
				if len(payload.Categories) > 0 {
					fmt.Fprintln(w, "By category")
					for _, c := range payload.Categories {
						fmt.Fprintf(w, "  %s\t%s\t\n", c.Name, c.Amount)
					}
				}
			})
		},
	}
	cmd.Flags().IntVar(&year, "year", 0, "year (default current)")
	return cmd
}
