package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Veraticus/courier/internal/common"
	"github.com/Veraticus/courier/internal/model"
)

const (
	defaultSearchLimit = 100

	recordColumns = `id, folder_name, source, destination, employee_id, dataset,
		hash_algorithm, status, audit_status, message, file_count, total_bytes,
		started_at, finished_at, overridden`
)

// SaveTransferRecord inserts a record and its files. Records are never updated.
func (s *SQLiteStorage) SaveTransferRecord(ctx context.Context, record *model.TransferRecord) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateRecord(record); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO transfer_records (`+recordColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.ID, record.FolderName, record.Source, record.Destination,
		record.EmployeeID, record.Dataset, string(record.HashAlgorithm),
		string(record.Status), string(record.AuditStatus), record.Message,
		record.FileCount, record.TotalBytes,
		record.StartedAt.UTC(), record.FinishedAt.UTC(), record.Overridden,
	)
	if err != nil {
		return fmt.Errorf("failed to insert transfer record %s: %w", record.ID, err)
	}

	if len(record.Files) > 0 {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO transfer_files (record_id, relative_path, size, mod_time, hash)
			VALUES (?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("failed to prepare statement: %w", err)
		}
		defer func() { _ = stmt.Close() }()

		for _, f := range record.Files {
			if _, err := stmt.ExecContext(ctx, record.ID, f.RelativePath, f.Size, nullTime(f.ModTime), nullString(f.Hash)); err != nil {
				return fmt.Errorf("failed to insert file %s: %w", f.RelativePath, err)
			}
		}
	}

	return tx.Commit()
}

// GetTransferRecord returns the record with the given ID.
func (s *SQLiteStorage) GetTransferRecord(ctx context.Context, id string) (*model.TransferRecord, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM transfer_records WHERE id = ?`, id)
	record, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("transfer record %s: %w", id, common.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	if record.Files, err = s.loadFiles(ctx, record.ID); err != nil {
		return nil, err
	}
	return record, nil
}

// GetTransferRecordsByDateRange returns records started within [start, end], newest first.
func (s *SQLiteStorage) GetTransferRecordsByDateRange(ctx context.Context, start, end time.Time) ([]model.TransferRecord, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if end.Before(start) {
		return nil, fmt.Errorf("%w: end date %v is before start date %v", ErrInvalidDateRange, end, start)
	}

	return s.queryRecords(ctx, `
		SELECT `+recordColumns+` FROM transfer_records
		WHERE started_at >= ? AND started_at <= ?
		ORDER BY started_at DESC`,
		start.UTC(), end.UTC())
}

// SearchTransferRecords matches text against record fields and file paths, newest first.
func (s *SQLiteStorage) SearchTransferRecords(ctx context.Context, query string, limit int) ([]model.TransferRecord, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(query, "query"); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultSearchLimit
	}

	pattern := "%" + escapeLike(strings.TrimSpace(query)) + "%"
	return s.queryRecords(ctx, `
		SELECT `+recordColumns+` FROM transfer_records r
		WHERE r.folder_name LIKE ?1 ESCAPE '\'
			OR r.employee_id LIKE ?1 ESCAPE '\'
			OR r.dataset LIKE ?1 ESCAPE '\'
			OR r.source LIKE ?1 ESCAPE '\'
			OR r.destination LIKE ?1 ESCAPE '\'
			OR r.message LIKE ?1 ESCAPE '\'
			OR EXISTS (
				SELECT 1 FROM transfer_files f
				WHERE f.record_id = r.id AND f.relative_path LIKE ?1 ESCAPE '\'
			)
		ORDER BY r.started_at DESC
		LIMIT ?2`,
		pattern, limit)
}

func (s *SQLiteStorage) queryRecords(ctx context.Context, query string, args ...any) ([]model.TransferRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transfer records: %w", err)
	}

	var records []model.TransferRecord
	for rows.Next() {
		record, scanErr := scanRecord(rows)
		if scanErr != nil {
			_ = rows.Close()
			return nil, scanErr
		}
		records = append(records, *record)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("error iterating transfer records: %w", err)
	}
	_ = rows.Close()

	// Files are loaded after the cursor closes; the pool holds one connection.
	for i := range records {
		if records[i].Files, err = s.loadFiles(ctx, records[i].ID); err != nil {
			return nil, err
		}
	}
	return records, nil
}

func (s *SQLiteStorage) loadFiles(ctx context.Context, recordID string) ([]model.RecordFile, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT relative_path, size, mod_time, hash
		FROM transfer_files WHERE record_id = ?
		ORDER BY id`, recordID)
	if err != nil {
		return nil, fmt.Errorf("failed to query transfer files: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var files []model.RecordFile
	for rows.Next() {
		var (
			f       model.RecordFile
			modTime sql.NullTime
			hash    sql.NullString
		)
		if err := rows.Scan(&f.RelativePath, &f.Size, &modTime, &hash); err != nil {
			return nil, fmt.Errorf("failed to scan transfer file: %w", err)
		}
		if modTime.Valid {
			f.ModTime = modTime.Time
		}
		f.Hash = hash.String
		files = append(files, f)
	}
	return files, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*model.TransferRecord, error) {
	var (
		r                                   model.TransferRecord
		employeeID, dataset, hashAlg, audit sql.NullString
		message                             sql.NullString
		status                              string
	)
	err := row.Scan(
		&r.ID, &r.FolderName, &r.Source, &r.Destination,
		&employeeID, &dataset, &hashAlg, &status, &audit, &message,
		&r.FileCount, &r.TotalBytes, &r.StartedAt, &r.FinishedAt, &r.Overridden,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan transfer record: %w", err)
	}

	r.EmployeeID = employeeID.String
	r.Dataset = dataset.String
	r.HashAlgorithm = model.HashAlgorithm(hashAlg.String)
	r.Status = model.TransferStatus(status)
	r.AuditStatus = model.AuditStatus(audit.String)
	r.Message = message.String
	return &r, nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t.UTC(), Valid: !t.IsZero()}
}
