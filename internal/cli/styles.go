// Package cli renders courier's terminal output with lipgloss.
package cli

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/Veraticus/courier/internal/model"
)

// tone is the meaning a piece of output carries. Every status an operator
// sees is drawn in the color of its tone.
type tone int

const (
	toneGood tone = iota
	toneCaution
	toneBad
	toneNeutral
	toneMuted
)

// palette adapts to light and dark terminals.
var palette = map[tone]lipgloss.AdaptiveColor{
	toneGood:    {Light: "#1B7F5A", Dark: "#4ECDC4"},
	toneCaution: {Light: "#9A6B00", Dark: "#FFE66D"},
	toneBad:     {Light: "#B3261E", Dark: "#FF6B6B"},
	toneNeutral: {Light: "#1F5F99", Dark: "#5DA9E9"},
	toneMuted:   {Light: "#6B6B6B", Dark: "#8A8A8A"},
}

var auditTones = map[model.AuditStatus]tone{
	model.AuditPassed:  toneGood,
	model.AuditCaution: toneCaution,
	model.AuditFailed:  toneBad,
	model.AuditError:   toneBad,
}

var transferTones = map[model.TransferStatus]tone{
	model.TransferSucceeded: toneGood,
	model.TransferSkipped:   toneCaution,
	model.TransferFailed:    toneBad,
}

func toned(t tone) lipgloss.Style {
	return lipgloss.NewStyle().Foreground(palette[t])
}

// Styles for each tone of output.
var (
	SuccessStyle = toned(toneGood)
	WarningStyle = toned(toneCaution)
	ErrorStyle   = toned(toneBad)
	InfoStyle    = toned(toneNeutral)
	SubtleStyle  = toned(toneMuted)
	BoldStyle    = lipgloss.NewStyle().Bold(true)

	// TableHeaderStyle underlines the header row of record tables.
	TableHeaderStyle = BoldStyle.Underline(true)
	// TableCellStyle pads table columns apart.
	TableCellStyle = lipgloss.NewStyle().PaddingRight(2)

	titleStyle = toned(toneNeutral).Bold(true)
	boxStyle   = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(palette[toneMuted]).
			Padding(0, 1)
)

// Marks placed in front of folder and archive lines in audit reports.
const (
	FolderIcon  = "▸"
	ArchiveIcon = "⧉"
)

// StatusStyle returns the style for an audit status. Unknown statuses are
// drawn as failures.
func StatusStyle(s model.AuditStatus) lipgloss.Style {
	if t, ok := auditTones[s]; ok {
		return toned(t)
	}
	return toned(toneBad)
}

// TransferStatusStyle returns the style for a recorded transfer status.
func TransferStatusStyle(s model.TransferStatus) lipgloss.Style {
	if t, ok := transferTones[s]; ok {
		return toned(t)
	}
	return toned(toneBad)
}

func mark(t tone, symbol, message string) string {
	return toned(t).Render(symbol + " " + message)
}

// FormatSuccess prefixes message with a check mark.
func FormatSuccess(message string) string { return mark(toneGood, "✓", message) }

// FormatError prefixes message with a cross.
func FormatError(message string) string { return mark(toneBad, "✗", message) }

// FormatWarning prefixes message with an exclamation mark.
func FormatWarning(message string) string { return mark(toneCaution, "!", message) }

// FormatInfo prefixes message with an arrow.
func FormatInfo(message string) string { return mark(toneNeutral, "→", message) }

// FormatTitle renders a section heading followed by a blank line.
func FormatTitle(title string) string {
	return titleStyle.Render(title) + "\n"
}

// RenderBox draws a rounded box with title on its first line.
func RenderBox(title, content string) string {
	return boxStyle.Render(lipgloss.JoinVertical(lipgloss.Left, titleStyle.Render(title), content))
}
