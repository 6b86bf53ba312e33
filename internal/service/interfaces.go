// Package service defines the interfaces for the collaborators of a transfer.
package service

import (
	"context"
	"time"

	"github.com/Veraticus/courier/internal/model"
)

// RecordStore is the write contract of the transfer-history store.
// Records are insert-only.
type RecordStore interface {
	SaveTransferRecord(ctx context.Context, record *model.TransferRecord) error
}

// RecordHistory is the full transfer-history store.
type RecordHistory interface {
	RecordStore

	GetTransferRecord(ctx context.Context, id string) (*model.TransferRecord, error)
	GetTransferRecordsByDateRange(ctx context.Context, start, end time.Time) ([]model.TransferRecord, error)
	SearchTransferRecords(ctx context.Context, query string, limit int) ([]model.TransferRecord, error)

	Migrate(ctx context.Context) error
	Close() error
}

// RecordRenderer writes compliance documents for a finished transfer and
// returns the paths it created.
type RecordRenderer interface {
	Render(ctx context.Context, record *model.TransferRecord) ([]string, error)
}
