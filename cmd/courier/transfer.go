package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/Veraticus/courier/internal/bulkcopy"
	"github.com/Veraticus/courier/internal/cli"
	"github.com/Veraticus/courier/internal/common"
	"github.com/Veraticus/courier/internal/config"
	"github.com/Veraticus/courier/internal/model"
	"github.com/Veraticus/courier/internal/progress"
	"github.com/Veraticus/courier/internal/transfer"
)

func transferCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "transfer [folder...]",
		Short: "Transfer audited folders to the destination",
		Long: `Audit staged folders and copy every transferable one to the destination.

Folders are transferred one at a time. Each successful transfer is recorded in
the history database, rendered as a compliance record, and the staged original
is moved into the retention area.`,
		RunE: runTransfer,
	}

	cmd.Flags().String("dest", "", "Destination root (default: paths.destination)")
	cmd.Flags().String("policy", "", "Conflict policy: skip, overwrite or append_sequence")
	cmd.Flags().String("mode", "", "Transfer mode: bulk or perfile")
	cmd.Flags().Bool("override", false, "Transfer folders that failed audit")
	cmd.Flags().Bool("no-progress", false, "Disable the progress bar")

	return cmd
}

func runTransfer(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	logger := slog.Default()

	settings, err := loadSettings()
	if err != nil {
		return err
	}

	dest, _ := cmd.Flags().GetString("dest")
	if dest == "" {
		dest = settings.Paths.Destination
	}
	if dest == "" {
		return common.NewUserError("no destination configured", fmt.Errorf("%w: set --dest or paths.destination", common.ErrMissingConfig))
	}

	opts, err := transferFlags(cmd, settings)
	if err != nil {
		return err
	}

	candidates, err := scanStaging(ctx, settings, args, logger)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(candidates) == 0 {
		fmt.Fprintln(out, cli.InfoStyle.Render("Nothing to transfer"))
		return nil
	}

	store, err := initStorage(ctx, settings)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer closeStorage(store)

	var options []transfer.Option
	options = append(options, transfer.WithStore(store))

	renderer, err := newRenderer(settings, logger)
	if err != nil {
		return err
	}
	if renderer != nil {
		options = append(options, transfer.WithRenderer(renderer))
	}

	var sink progress.Sink
	if noProgress, _ := cmd.Flags().GetBool("no-progress"); !noProgress {
		bar := cli.NewProgressBar(cmd.ErrOrStderr())
		defer bar.Finish()
		options = append(options, transfer.WithStartHook(bar.Start))
		sink = bar.Sink()
	}

	var bulk *bulkcopy.Engine
	if opts.Mode == model.ModeBulk {
		if bulk, err = newBulkEngine(settings, logger); err != nil {
			return err
		}
	}

	orchestrator := transfer.NewOrchestrator(bulk, opts, logger, options...)
	outcomes, remaining, runErr := orchestrator.TransferAll(ctx, candidates, dest, sink)

	fmt.Fprintln(out)
	for i, o := range outcomes {
		fmt.Fprintln(out, cli.FormatOutcome(folderName(o, candidates, i), o))
	}
	for _, c := range remaining {
		if orchestrator.Gated(c) {
			fmt.Fprintln(out, cli.FormatWarning(fmt.Sprintf("%s not transferred: audit %s", c.Name, gateStatus(c))))
		}
	}

	if runErr != nil {
		return runErr
	}
	if failed := countFailed(outcomes); failed > 0 {
		return fmt.Errorf("%d of %d transfers failed", failed, len(outcomes))
	}
	return nil
}

// transferFlags applies command-line overrides to the configured options.
func transferFlags(cmd *cobra.Command, settings config.Settings) (transfer.Options, error) {
	override, _ := cmd.Flags().GetBool("override")
	opts := transferOptions(settings, override)

	if p, _ := cmd.Flags().GetString("policy"); p != "" {
		policy, err := model.ParseConflictPolicy(p)
		if err != nil {
			return opts, err
		}
		opts.Policy = policy
	}
	if m, _ := cmd.Flags().GetString("mode"); m != "" {
		switch mode := model.TransferMode(m); mode {
		case model.ModeBulk, model.ModePerFile:
			opts.Mode = mode
		default:
			return opts, fmt.Errorf("unknown transfer mode %q", m)
		}
	}
	return opts, nil
}

// folderName finds the folder an outcome belongs to by its source path.
func folderName(o *model.TransferOutcome, candidates []*model.FolderCandidate, fallback int) string {
	for _, c := range candidates {
		if c.Path == o.Source {
			return c.Name
		}
	}
	if fallback < len(candidates) {
		return candidates[fallback].Name
	}
	return o.Source
}

func gateStatus(c *model.FolderCandidate) model.AuditStatus {
	if v := c.Verdict(); v != nil {
		return v.Status
	}
	return "missing"
}

func countFailed(outcomes []*model.TransferOutcome) int {
	n := 0
	for _, o := range outcomes {
		if !o.Success {
			n++
		}
	}
	return n
}
