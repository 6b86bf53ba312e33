package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/Veraticus/courier/internal/cli"
	"github.com/Veraticus/courier/internal/model"
)

func auditCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit [folder...]",
		Short: "Audit staged folders",
		Long: `Check staged folders against the naming convention, the dataset whitelist
and the extension blacklist.

With no arguments every folder in the staging area is audited. Passed and
Caution folders can be transferred; Failed and Error folders need --override.`,
		RunE: runAudit,
	}

	cmd.Flags().Bool("strict", false, "Exit with an error when any folder is not transferable")

	return cmd
}

func runAudit(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	strict, _ := cmd.Flags().GetBool("strict")

	settings, err := loadSettings()
	if err != nil {
		return err
	}

	candidates, err := scanStaging(ctx, settings, args, slog.Default())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(candidates) == 0 {
		fmt.Fprintln(out, cli.InfoStyle.Render("No folders waiting in "+settings.Paths.Staging))
		return nil
	}

	fmt.Fprintln(out, cli.FormatTitle("Audit"))

	counts := map[model.AuditStatus]int{}
	for _, c := range candidates {
		v := c.Verdict()
		counts[v.Status]++
		fmt.Fprintln(out, cli.FormatVerdict(v))
	}

	fmt.Fprintln(out, auditSummary(counts))

	blocked := counts[model.AuditFailed] + counts[model.AuditError]
	if strict && blocked > 0 {
		return fmt.Errorf("%d of %d folders failed audit", blocked, len(candidates))
	}
	return nil
}

func auditSummary(counts map[model.AuditStatus]int) string {
	return fmt.Sprintf("%s  %s  %s  %s",
		cli.SuccessStyle.Render(fmt.Sprintf("%d passed", counts[model.AuditPassed])),
		cli.WarningStyle.Render(fmt.Sprintf("%d caution", counts[model.AuditCaution])),
		cli.ErrorStyle.Render(fmt.Sprintf("%d failed", counts[model.AuditFailed])),
		cli.ErrorStyle.Render(fmt.Sprintf("%d error", counts[model.AuditError])))
}
