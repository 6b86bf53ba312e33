package main

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/Veraticus/courier/internal/cli"
	"github.com/Veraticus/courier/internal/retention"
)

func retentionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "retention",
		Short: "Delete transferred originals older than the retention period",
	}

	cmd.PersistentFlags().Int("days", -1, "Retention period in days (default: retention.days)")

	cmd.AddCommand(&cobra.Command{
		Use:   "cleanup",
		Short: "Run retention cleanup once",
		RunE:  runRetentionCleanup,
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "watch",
		Short: "Run retention cleanup on the configured schedule until interrupted",
		RunE:  runRetentionWatch,
	})

	return cmd
}

func retentionDays(cmd *cobra.Command, configured int) int {
	if days, _ := cmd.Flags().GetInt("days"); days >= 0 {
		return days
	}
	return configured
}

func runRetentionCleanup(cmd *cobra.Command, _ []string) error {
	settings, err := loadSettings()
	if err != nil {
		return err
	}

	days := retentionDays(cmd, settings.Retention.Days)
	result, err := retention.NewCleaner(slog.Default()).Cleanup(cmd.Context(), settings.Paths.Retention, days)
	if err != nil {
		return err
	}

	printCleanup(cmd.OutOrStdout(), result, days)
	return nil
}

func runRetentionWatch(cmd *cobra.Command, _ []string) error {
	settings, err := loadSettings()
	if err != nil {
		return err
	}

	days := retentionDays(cmd, settings.Retention.Days)
	scheduler, err := retention.NewScheduler(retention.NewCleaner(slog.Default()), settings.Paths.Retention, days, settings.Retention.Schedule, slog.Default())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	scheduler.OnResult(func(r retention.Result, err error) {
		if err != nil {
			fmt.Fprintln(out, cli.FormatError("retention cleanup failed: "+err.Error()))
			return
		}
		printCleanup(out, r, days)
	})

	fmt.Fprintln(out, cli.FormatInfo(fmt.Sprintf("Watching %s with schedule %q", settings.Paths.Retention, settings.Retention.Schedule)))
	return scheduler.Run(cmd.Context())
}

func printCleanup(out io.Writer, r retention.Result, days int) {
	fmt.Fprintln(out, cli.FormatSuccess(fmt.Sprintf("Deleted %d folders older than %d days, kept %d", len(r.Deleted), days, r.Kept)))
	for _, p := range r.Skipped {
		fmt.Fprintln(out, cli.FormatWarning("Could not delete "+p))
	}
}
