// Package testutil provides test fixtures for the courier packages: an
// in-memory transfer-history store, transfer record builders and staged folders.
package testutil

import (
	"context"
	"testing"

	"github.com/Veraticus/courier/internal/model"
	"github.com/Veraticus/courier/internal/storage"
)

// TestDB is a migrated in-memory transfer-history store.
type TestDB struct {
	Storage *storage.SQLiteStorage
	Records []*model.TransferRecord
	t       *testing.T
}

// TestDBOptions provides configuration options for test database setup.
type TestDBOptions struct {
	CustomSetup    func(context.Context, *storage.SQLiteStorage) error
	Records        []*model.TransferRecord
	SkipMigrations bool
}

// SetupTestDB creates a migrated in-memory database seeded with records.
// It registers cleanup with t.
//
// Example:
//
//	db := testutil.SetupTestDB(t,
//		testutil.NewRecord("E001_20260116_UG").WithFiles(2, 1000).Build(),
//	)
func SetupTestDB(t *testing.T, records ...*model.TransferRecord) *TestDB {
	t.Helper()
	return SetupTestDBWithOptions(t, TestDBOptions{Records: records})
}

// SetupTestDBWithOptions creates a test database with custom options.
func SetupTestDBWithOptions(t *testing.T, opts TestDBOptions) *TestDB {
	t.Helper()

	store, err := storage.NewSQLiteStorage(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})

	ctx := context.Background()
	if !opts.SkipMigrations {
		if err := store.Migrate(ctx); err != nil {
			t.Fatalf("failed to run migrations: %v", err)
		}
	}

	for _, r := range opts.Records {
		if err := store.SaveTransferRecord(ctx, r); err != nil {
			t.Fatalf("failed to seed record %q: %v", r.ID, err)
		}
	}

	if opts.CustomSetup != nil {
		if err := opts.CustomSetup(ctx, store); err != nil {
			t.Fatalf("custom setup failed: %v", err)
		}
	}

	return &TestDB{
		Storage: store,
		Records: opts.Records,
		t:       t,
	}
}

// MustGetRecord loads a record by ID or fails the test.
func (db *TestDB) MustGetRecord(id string) *model.TransferRecord {
	db.t.Helper()
	r, err := db.Storage.GetTransferRecord(context.Background(), id)
	if err != nil {
		db.t.Fatalf("failed to load record %q: %v", id, err)
	}
	return r
}
