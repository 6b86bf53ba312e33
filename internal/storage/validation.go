package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Veraticus/courier/internal/model"
)

// Validation errors.
var (
	ErrNilContext       = errors.New("context cannot be nil")
	ErrEmptyString      = errors.New("string parameter cannot be empty")
	ErrNilParameter     = errors.New("parameter cannot be nil")
	ErrInvalidDateRange = errors.New("start date must be before end date")
	ErrInvalidStatus    = errors.New("invalid transfer status")
	ErrInvalidRecord    = errors.New("invalid transfer record")
)

// validateContext ensures the context is not nil.
func validateContext(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}
	return nil
}

// validateString ensures a string parameter is not empty.
func validateString(s string, paramName string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%w: %s", ErrEmptyString, paramName)
	}
	return nil
}

// validateRecord checks the fields the history schema requires.
func validateRecord(record *model.TransferRecord) error {
	if record == nil {
		return fmt.Errorf("%w: record", ErrNilParameter)
	}
	if strings.TrimSpace(record.ID) == "" {
		return fmt.Errorf("%w: missing ID", ErrInvalidRecord)
	}
	if strings.TrimSpace(record.FolderName) == "" {
		return fmt.Errorf("%w: missing folder name", ErrInvalidRecord)
	}
	if record.StartedAt.IsZero() || record.FinishedAt.IsZero() {
		return fmt.Errorf("%w: missing timing", ErrInvalidRecord)
	}
	if record.FinishedAt.Before(record.StartedAt) {
		return fmt.Errorf("%w: finished before it started", ErrInvalidRecord)
	}

	switch record.Status {
	case model.TransferSucceeded, model.TransferFailed, model.TransferSkipped:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidStatus, record.Status)
	}

	for i, f := range record.Files {
		if strings.TrimSpace(f.RelativePath) == "" {
			return fmt.Errorf("%w: file at index %d has no path", ErrInvalidRecord, i)
		}
		if f.Size < 0 {
			return fmt.Errorf("%w: file %s has negative size", ErrInvalidRecord, f.RelativePath)
		}
	}
	return nil
}
