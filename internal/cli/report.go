package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/Veraticus/courier/internal/model"
)

// FormatVerdict renders an audit verdict for the terminal.
func FormatVerdict(v *model.AuditVerdict) string {
	var b strings.Builder

	status := StatusStyle(v.Status).Bold(true).Render(string(v.Status))
	fmt.Fprintf(&b, "%s %s  %s\n", FolderIcon, BoldStyle.Render(v.FolderName), status)
	fmt.Fprintf(&b, "   %s\n", SubtleStyle.Render(fmt.Sprintf("%d files, %s", v.FileCount, FormatBytes(v.TotalBytes))))

	for _, issue := range v.Issues {
		fmt.Fprintf(&b, "   %s\n", StatusStyle(v.Status).Render("- "+issue))
	}
	for _, a := range v.ArchiveFiles {
		fmt.Fprintf(&b, "   %s %s\n", ArchiveIcon, SubtleStyle.Render(a))
	}
	return b.String()
}

// FormatOutcome renders a one-folder transfer outcome.
func FormatOutcome(folder string, o *model.TransferOutcome) string {
	switch {
	case o.Skipped:
		return FormatWarning(fmt.Sprintf("%s skipped: %s", folder, o.Message))
	case o.Canceled:
		return FormatWarning(fmt.Sprintf("%s canceled", folder))
	case o.Success:
		return FormatSuccess(fmt.Sprintf("%s → %s (%d files, %s in %s)",
			folder, o.Destination, o.Counts.FilesCopied, FormatBytes(o.Counts.BytesCopied),
			o.Duration().Round(time.Millisecond)))
	default:
		msg := FormatError(fmt.Sprintf("%s failed: %s", folder, o.Message))
		for _, e := range o.Errors {
			if e.Path == "" || e.Path == o.Source {
				continue
			}
			msg += "\n   " + SubtleStyle.Render(fmt.Sprintf("%s: %s", e.Path, e.Message))
		}
		return msg
	}
}

// FormatRecordTable renders transfer records as an aligned table.
func FormatRecordTable(records []model.TransferRecord) string {
	headers := []string{"ID", "FOLDER", "STATUS", "FILES", "SIZE", "FINISHED"}
	rows := make([][]string, 0, len(records))
	for _, r := range records {
		rows = append(rows, []string{
			shortID(r.ID),
			r.FolderName,
			string(r.Status),
			fmt.Sprintf("%d", r.FileCount),
			FormatBytes(r.TotalBytes),
			r.FinishedAt.Local().Format("2006-01-02 15:04:05"),
		})
	}

	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = lipgloss.Width(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			widths[i] = max(widths[i], lipgloss.Width(cell))
		}
	}

	var b strings.Builder
	cells := make([]string, len(headers))
	for i, h := range headers {
		cells[i] = TableCellStyle.Width(widths[i] + 2).Render(h)
	}
	b.WriteString(TableHeaderStyle.Render(lipgloss.JoinHorizontal(lipgloss.Top, cells...)))
	b.WriteString("\n")

	for _, row := range rows {
		for i, cell := range row {
			cells[i] = TableCellStyle.Width(widths[i] + 2).Render(cell)
		}
		b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, cells...))
		b.WriteString("\n")
	}
	return b.String()
}

// FormatBytes formats a byte count with binary units.
func FormatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
