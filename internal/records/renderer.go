// Package records renders compliance documents for finished transfers.
package records

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/Veraticus/courier/internal/common"
	"github.com/Veraticus/courier/internal/model"
	"github.com/Veraticus/courier/internal/service"
)

// TimestampLayout is the timestamp used in record file names.
const TimestampLayout = "20060102150405"

// Format is a compliance record output format.
type Format string

// Supported formats.
const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// ParseFormat converts a config value into a Format.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatJSON, FormatCSV, FormatXLSX:
		return f, nil
	default:
		return "", fmt.Errorf("unknown record format %q", s)
	}
}

// FileName returns the record file name for a folder transferred at t.
func FileName(folder string, t time.Time, format Format) string {
	return fmt.Sprintf("%s_%s.%s", folder, t.Format(TimestampLayout), format)
}

var _ service.RecordRenderer = (*Renderer)(nil)

// Renderer writes one file per configured format into a records directory.
type Renderer struct {
	logger  *slog.Logger
	dir     string
	formats []Format
}

// NewRenderer creates a renderer for the given formats.
func NewRenderer(dir string, formats []string, logger *slog.Logger) (*Renderer, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("%w: records directory", common.ErrMissingConfig)
	}

	parsed := make([]Format, 0, len(formats))
	seen := make(map[Format]bool)
	for _, s := range formats {
		f, err := ParseFormat(s)
		if err != nil {
			return nil, err
		}
		if !seen[f] {
			seen[f] = true
			parsed = append(parsed, f)
		}
	}
	if len(parsed) == 0 {
		parsed = []Format{FormatJSON}
	}

	return &Renderer{dir: dir, formats: parsed, logger: common.LoggerOrDefault(logger)}, nil
}

// Render writes the record in every format. Paths of files that were written
// are returned even when another format fails.
func (r *Renderer) Render(ctx context.Context, record *model.TransferRecord) ([]string, error) {
	if record == nil {
		return nil, errors.New("nil transfer record")
	}
	if err := os.MkdirAll(r.dir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create records directory: %w", err)
	}

	stamp := record.FinishedAt
	if stamp.IsZero() {
		stamp = record.StartedAt
	}

	var (
		paths []string
		errs  []error
	)
	for _, format := range r.formats {
		if err := ctx.Err(); err != nil {
			return paths, err
		}

		content, err := encode(format, record)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", format, err))
			continue
		}

		path := filepath.Join(r.dir, FileName(record.FolderName, stamp.Local(), format))
		if err := writeFile(path, content); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", format, err))
			continue
		}
		r.logger.Debug("wrote transfer record", "path", path, "record_id", record.ID)
		paths = append(paths, path)
	}
	return paths, errors.Join(errs...)
}

func encode(format Format, record *model.TransferRecord) ([]byte, error) {
	switch format {
	case FormatJSON:
		return encodeJSON(record)
	case FormatCSV:
		return encodeCSV(record)
	case FormatXLSX:
		return encodeXLSX(record)
	default:
		return nil, fmt.Errorf("unknown record format %q", format)
	}
}

// writeFile writes through a temporary file so readers never see partial records.
func writeFile(path string, content []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, content, 0o640); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}

type jsonFile struct {
	Modified     *time.Time `json:"modified,omitempty"`
	RelativePath string     `json:"relative_path"`
	Hash         string     `json:"hash,omitempty"`
	Size         int64      `json:"size"`
}

type jsonRecord struct {
	StartedAt       time.Time  `json:"started_at"`
	FinishedAt      time.Time  `json:"finished_at"`
	ID              string     `json:"id"`
	Folder          string     `json:"folder"`
	Source          string     `json:"source"`
	Destination     string     `json:"destination"`
	EmployeeID      string     `json:"employee_id,omitempty"`
	Dataset         string     `json:"dataset,omitempty"`
	Status          string     `json:"status"`
	AuditStatus     string     `json:"audit_status,omitempty"`
	Message         string     `json:"message,omitempty"`
	HashAlgorithm   string     `json:"hash_algorithm,omitempty"`
	Files           []jsonFile `json:"files"`
	FileCount       int        `json:"file_count"`
	TotalBytes      int64      `json:"total_bytes"`
	DurationSeconds float64    `json:"duration_seconds"`
	Overridden      bool       `json:"audit_overridden"`
}

func encodeJSON(record *model.TransferRecord) ([]byte, error) {
	doc := jsonRecord{
		StartedAt:       record.StartedAt,
		FinishedAt:      record.FinishedAt,
		ID:              record.ID,
		Folder:          record.FolderName,
		Source:          record.Source,
		Destination:     record.Destination,
		EmployeeID:      record.EmployeeID,
		Dataset:         record.Dataset,
		Status:          string(record.Status),
		AuditStatus:     string(record.AuditStatus),
		Message:         record.Message,
		HashAlgorithm:   string(record.HashAlgorithm),
		Files:           make([]jsonFile, 0, len(record.Files)),
		FileCount:       record.FileCount,
		TotalBytes:      record.TotalBytes,
		DurationSeconds: record.FinishedAt.Sub(record.StartedAt).Seconds(),
		Overridden:      record.Overridden,
	}
	for _, f := range record.Files {
		jf := jsonFile{RelativePath: f.RelativePath, Hash: f.Hash, Size: f.Size}
		if !f.ModTime.IsZero() {
			mod := f.ModTime
			jf.Modified = &mod
		}
		doc.Files = append(doc.Files, jf)
	}

	content, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal JSON: %w", err)
	}
	return content, nil
}

var csvHeaders = []string{
	"Record ID", "Folder", "Employee ID", "Dataset", "Status", "Audit Status",
	"Started At", "Finished At", "Relative Path", "Size", "Modified", "Hash Algorithm", "Hash",
}

func encodeCSV(record *model.TransferRecord) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	if err := writer.Write(csvHeaders); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}
	for _, row := range fileRows(record) {
		if err := writer.Write(row); err != nil {
			return nil, fmt.Errorf("failed to write CSV row: %w", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("failed to flush CSV: %w", err)
	}
	return buf.Bytes(), nil
}

// fileRows flattens a record into one row per file, or a single row without
// file columns when nothing was copied.
func fileRows(record *model.TransferRecord) [][]string {
	prefix := []string{
		record.ID,
		record.FolderName,
		record.EmployeeID,
		record.Dataset,
		string(record.Status),
		string(record.AuditStatus),
		record.StartedAt.Format(time.RFC3339),
		record.FinishedAt.Format(time.RFC3339),
	}

	if len(record.Files) == 0 {
		return [][]string{append(append([]string{}, prefix...), "", "", "", string(record.HashAlgorithm), "")}
	}

	rows := make([][]string, 0, len(record.Files))
	for _, f := range record.Files {
		modified := ""
		if !f.ModTime.IsZero() {
			modified = f.ModTime.Format(time.RFC3339)
		}
		row := append(append([]string{}, prefix...),
			f.RelativePath,
			strconv.FormatInt(f.Size, 10),
			modified,
			string(record.HashAlgorithm),
			f.Hash,
		)
		rows = append(rows, row)
	}
	return rows
}

const (
	summarySheet = "Summary"
	filesSheet   = "Files"
)

func encodeXLSX(record *model.TransferRecord) ([]byte, error) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return nil, fmt.Errorf("failed to name summary sheet: %w", err)
	}

	summary := [][2]any{
		{"Record ID", record.ID},
		{"Folder", record.FolderName},
		{"Source", record.Source},
		{"Destination", record.Destination},
		{"Employee ID", record.EmployeeID},
		{"Dataset", record.Dataset},
		{"Status", string(record.Status)},
		{"Audit Status", string(record.AuditStatus)},
		{"Audit Overridden", record.Overridden},
		{"Started At", record.StartedAt.Format(time.RFC3339)},
		{"Finished At", record.FinishedAt.Format(time.RFC3339)},
		{"File Count", record.FileCount},
		{"Total Bytes", record.TotalBytes},
		{"Hash Algorithm", string(record.HashAlgorithm)},
		{"Message", record.Message},
	}
	for i, kv := range summary {
		if err := setRow(f, summarySheet, i+1, kv[0], kv[1]); err != nil {
			return nil, err
		}
	}

	if _, err := f.NewSheet(filesSheet); err != nil {
		return nil, fmt.Errorf("failed to create files sheet: %w", err)
	}
	if err := setRow(f, filesSheet, 1, "Relative Path", "Size", "Modified", "Hash"); err != nil {
		return nil, err
	}
	for i, file := range record.Files {
		modified := ""
		if !file.ModTime.IsZero() {
			modified = file.ModTime.Format(time.RFC3339)
		}
		if err := setRow(f, filesSheet, i+2, file.RelativePath, file.Size, modified, file.Hash); err != nil {
			return nil, err
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("failed to generate Excel file: %w", err)
	}
	return buf.Bytes(), nil
}

func setRow(f *excelize.File, sheet string, row int, values ...any) error {
	for col, v := range values {
		cell, err := excelize.CoordinatesToCellName(col+1, row)
		if err != nil {
			return fmt.Errorf("failed to compute cell name: %w", err)
		}
		if err := f.SetCellValue(sheet, cell, v); err != nil {
			return fmt.Errorf("failed to set cell %s: %w", cell, err)
		}
	}
	return nil
}
