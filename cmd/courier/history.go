package main

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/Veraticus/courier/internal/cli"
	"github.com/Veraticus/courier/internal/common"
	"github.com/Veraticus/courier/internal/model"
	"github.com/Veraticus/courier/internal/service"
)

const historyDateLayout = "2006-01-02"

func historyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Query the transfer history",
	}

	cmd.AddCommand(historyListCmd())
	cmd.AddCommand(historyShowCmd())
	cmd.AddCommand(historySearchCmd())

	return cmd
}

func historyListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List transfers in a date range",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withHistory(cmd, func(store service.RecordHistory, out io.Writer) error {
				start, end, err := historyRange(cmd, time.Now())
				if err != nil {
					return err
				}
				recs, err := store.GetTransferRecordsByDateRange(cmd.Context(), start, end)
				if err != nil {
					return fmt.Errorf("failed to list transfers: %w", err)
				}
				return printRecords(out, recs)
			})
		},
	}

	cmd.Flags().String("from", "", "Start date, YYYY-MM-DD (default: 30 days ago)")
	cmd.Flags().String("to", "", "End date, YYYY-MM-DD, inclusive (default: today)")

	return cmd
}

func historyShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one transfer with its files",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withHistory(cmd, func(store service.RecordHistory, out io.Writer) error {
				rec, err := store.GetTransferRecord(cmd.Context(), args[0])
				if errors.Is(err, common.ErrNotFound) {
					return common.NewUserError("no transfer with id "+args[0], err)
				}
				if err != nil {
					return err
				}
				fmt.Fprintln(out, formatRecord(rec))
				return nil
			})
		},
	}
}

func historySearchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "search <text>",
		Short: "Search transfers by folder, employee, dataset, path or file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetInt("limit")
			return withHistory(cmd, func(store service.RecordHistory, out io.Writer) error {
				recs, err := store.SearchTransferRecords(cmd.Context(), args[0], limit)
				if err != nil {
					return fmt.Errorf("failed to search transfers: %w", err)
				}
				return printRecords(out, recs)
			})
		},
	}

	cmd.Flags().Int("limit", 100, "Maximum number of results")

	return cmd
}

// withHistory opens the history store for the duration of fn.
func withHistory(cmd *cobra.Command, fn func(service.RecordHistory, io.Writer) error) error {
	settings, err := loadSettings()
	if err != nil {
		return err
	}
	store, err := initStorage(cmd.Context(), settings)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer closeStorage(store)

	return fn(store, cmd.OutOrStdout())
}

// historyRange parses --from and --to. The end date is inclusive.
func historyRange(cmd *cobra.Command, now time.Time) (time.Time, time.Time, error) {
	from, _ := cmd.Flags().GetString("from")
	to, _ := cmd.Flags().GetString("to")

	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.Local)
	start := today.AddDate(0, 0, -30)
	end := today.AddDate(0, 0, 1)

	if from != "" {
		t, err := time.ParseInLocation(historyDateLayout, from, time.Local)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid --from date: %w", err)
		}
		start = t
	}
	if to != "" {
		t, err := time.ParseInLocation(historyDateLayout, to, time.Local)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid --to date: %w", err)
		}
		end = t.AddDate(0, 0, 1)
	}
	if !start.Before(end) {
		return time.Time{}, time.Time{}, fmt.Errorf("--from must be before --to")
	}
	return start, end, nil
}

func printRecords(out io.Writer, recs []model.TransferRecord) error {
	if len(recs) == 0 {
		_, err := fmt.Fprintln(out, cli.InfoStyle.Render("No transfers found"))
		return err
	}
	_, err := fmt.Fprint(out, cli.FormatRecordTable(recs))
	return err
}

func formatRecord(r *model.TransferRecord) string {
	header := fmt.Sprintf("%s  %s\n", cli.BoldStyle.Render(r.FolderName), statusText(r.Status))
	details := fmt.Sprintf("ID:          %s\n", r.ID) +
		fmt.Sprintf("Employee:    %s\n", r.EmployeeID) +
		fmt.Sprintf("Dataset:     %s\n", r.Dataset) +
		fmt.Sprintf("Audit:       %s\n", r.AuditStatus) +
		fmt.Sprintf("Source:      %s\n", r.Source) +
		fmt.Sprintf("Destination: %s\n", r.Destination) +
		fmt.Sprintf("Started:     %s\n", r.StartedAt.Local().Format(time.DateTime)) +
		fmt.Sprintf("Finished:    %s\n", r.FinishedAt.Local().Format(time.DateTime)) +
		fmt.Sprintf("Files:       %d (%s)\n", r.FileCount, cli.FormatBytes(r.TotalBytes))
	if r.Overridden {
		details += cli.WarningStyle.Render("Transferred with audit override") + "\n"
	}
	if r.Message != "" {
		details += fmt.Sprintf("Message:     %s\n", r.Message)
	}

	files := ""
	for _, f := range r.Files {
		line := fmt.Sprintf("  %s  %s", f.RelativePath, cli.FormatBytes(f.Size))
		if f.Hash != "" {
			line += "  " + cli.SubtleStyle.Render(string(r.HashAlgorithm)+":"+f.Hash)
		}
		files += line + "\n"
	}

	return cli.RenderBox(header, details+files)
}

func statusText(s model.TransferStatus) string {
	return cli.TransferStatusStyle(s).Render(string(s))
}
