package testutil

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Veraticus/courier/internal/model"
)

// RecordBuilder builds transfer records with sensible defaults.
type RecordBuilder struct {
	record model.TransferRecord
}

// NewRecord starts a succeeded record for folder, parsing employee and dataset
// from an EmployeeID_yyyyMMdd_Dataset name when possible.
func NewRecord(folder string) *RecordBuilder {
	started := time.Date(2026, 1, 16, 9, 0, 0, 0, time.UTC)
	b := &RecordBuilder{record: model.TransferRecord{
		ID:            uuid.NewString(),
		FolderName:    folder,
		Source:        "/staging/" + folder,
		Destination:   "/dest/" + folder,
		Status:        model.TransferSucceeded,
		AuditStatus:   model.AuditPassed,
		HashAlgorithm: model.HashSHA256,
		StartedAt:     started,
		FinishedAt:    started.Add(time.Minute),
	}}

	if parts := strings.Split(folder, "_"); len(parts) >= 3 {
		b.record.EmployeeID = parts[0]
		b.record.Dataset = parts[2]
	}
	return b
}

// WithID sets the record ID.
func (b *RecordBuilder) WithID(id string) *RecordBuilder {
	b.record.ID = id
	return b
}

// WithStatus sets the record status.
func (b *RecordBuilder) WithStatus(s model.TransferStatus) *RecordBuilder {
	b.record.Status = s
	return b
}

// WithMessage sets the record message.
func (b *RecordBuilder) WithMessage(msg string) *RecordBuilder {
	b.record.Message = msg
	return b
}

// FinishedAt sets the start and finish times, one minute apart.
func (b *RecordBuilder) FinishedAt(t time.Time) *RecordBuilder {
	b.record.StartedAt = t.Add(-time.Minute)
	b.record.FinishedAt = t
	return b
}

// WithFiles adds n files of size bytes each.
func (b *RecordBuilder) WithFiles(n int, size int64) *RecordBuilder {
	for i := range n {
		b.WithFile(fmt.Sprintf("scan_%03d.raw", i+1), size, fmt.Sprintf("%064x", i+1))
	}
	return b
}

// WithFile adds one file.
func (b *RecordBuilder) WithFile(rel string, size int64, hash string) *RecordBuilder {
	b.record.Files = append(b.record.Files, model.RecordFile{
		RelativePath: rel,
		Size:         size,
		Hash:         hash,
		ModTime:      b.record.StartedAt.Add(-time.Hour),
	})
	b.record.FileCount = len(b.record.Files)
	b.record.TotalBytes += size
	return b
}

// Overridden marks the record as transferred despite a failed audit.
func (b *RecordBuilder) Overridden() *RecordBuilder {
	b.record.Overridden = true
	b.record.AuditStatus = model.AuditFailed
	return b
}

// Build returns a copy of the record.
func (b *RecordBuilder) Build() *model.TransferRecord {
	r := b.record
	r.Files = append([]model.RecordFile(nil), b.record.Files...)
	return &r
}
