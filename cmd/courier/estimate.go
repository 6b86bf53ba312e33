package main

import (
	"fmt"
	"log/slog"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Veraticus/courier/internal/cli"
)

func estimateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "estimate [folder...]",
		Short: "Show what a transfer would copy without copying",
		Long: `Run the bulk-copy mechanism in list-only mode for each staged folder and
report how many files and bytes a transfer would move.`,
		RunE: runEstimate,
	}
}

func runEstimate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	logger := slog.Default()

	settings, err := loadSettings()
	if err != nil {
		return err
	}

	candidates, err := scanStaging(ctx, settings, args, logger)
	if err != nil {
		return err
	}

	engine, err := newBulkEngine(settings, logger)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
		cli.BoldStyle.Render("FOLDER"),
		cli.BoldStyle.Render("AUDIT"),
		cli.BoldStyle.Render("FILES"),
		cli.BoldStyle.Render("SIZE"))

	var totalFiles int
	var totalBytes int64
	for _, c := range candidates {
		outcome, err := engine.EstimateOnly(ctx, c.Path, settings.CopyConfiguration())
		if err != nil {
			return fmt.Errorf("failed to estimate %s: %w", c.Name, err)
		}
		totalFiles += outcome.Counts.FilesScanned
		totalBytes += outcome.Counts.BytesTotal

		status := c.Verdict().Status
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\n",
			c.Name,
			cli.StatusStyle(status).Render(string(status)),
			outcome.Counts.FilesScanned,
			cli.FormatBytes(outcome.Counts.BytesTotal))
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("failed to write estimate: %w", err)
	}

	fmt.Fprintln(out, cli.FormatInfo(fmt.Sprintf("%d folders, %d files, %s", len(candidates), totalFiles, cli.FormatBytes(totalBytes))))
	return nil
}
