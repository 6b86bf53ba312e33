package main

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"

	"github.com/spf13/viper"

	"github.com/Veraticus/courier/internal/audit"
	"github.com/Veraticus/courier/internal/bulkcopy"
	"github.com/Veraticus/courier/internal/config"
	"github.com/Veraticus/courier/internal/model"
	"github.com/Veraticus/courier/internal/records"
	"github.com/Veraticus/courier/internal/staging"
	"github.com/Veraticus/courier/internal/storage"
	"github.com/Veraticus/courier/internal/transfer"
)

// loadSettings reads the configuration snapshot from the global viper instance.
func loadSettings() (config.Settings, error) {
	return config.Load(viper.GetViper())
}

// initStorage opens the transfer-history database and runs migrations.
func initStorage(ctx context.Context, settings config.Settings) (*storage.SQLiteStorage, error) {
	store, err := storage.NewSQLiteStorage(settings.Paths.Database)
	if err != nil {
		return nil, err
	}

	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return store, nil
}

func closeStorage(store *storage.SQLiteStorage) {
	if err := store.Close(); err != nil {
		slog.Error("failed to close storage", "error", err)
	}
}

// newBulkEngine builds the bulk-copy engine for the configured mechanism.
func newBulkEngine(settings config.Settings, logger *slog.Logger) (*bulkcopy.Engine, error) {
	mech, err := bulkcopy.New(settings.Transfer.Mechanism, settings.BulkCopy.RsyncPath, logger)
	if err != nil {
		return nil, err
	}
	return bulkcopy.NewEngine(mech, logger, bulkcopy.WithErrorObserver(func(e model.TransferError) {
		logger.Warn("copy error", "path", e.Path, "code", e.Code, "message", e.Message)
	})), nil
}

// scanStaging loads and audits staged folders. When names is not empty only
// those folders are returned, in the order given.
func scanStaging(ctx context.Context, settings config.Settings, names []string, logger *slog.Logger) ([]*model.FolderCandidate, error) {
	policy, err := audit.NewPolicy(settings.Audit)
	if err != nil {
		return nil, err
	}

	scanner := staging.NewScanner(policy, logger)
	var candidates []*model.FolderCandidate
	if len(names) == 0 {
		candidates, err = scanner.Scan(ctx, settings.Paths.Staging)
		if err != nil {
			return nil, fmt.Errorf("failed to scan staging area: %w", err)
		}
	} else {
		for _, name := range slices.Compact(slices.Clone(names)) {
			c, err := scanner.Load(ctx, filepath.Join(settings.Paths.Staging, filepath.Base(name)))
			if err != nil {
				return nil, fmt.Errorf("failed to load %s: %w", name, err)
			}
			candidates = append(candidates, c)
		}
	}

	engine := audit.NewEngine(logger)
	for _, c := range candidates {
		engine.AuditCandidate(ctx, c, policy)
	}
	return candidates, nil
}

// transferOptions converts settings into orchestrator options.
func transferOptions(settings config.Settings, override bool) transfer.Options {
	return transfer.Options{
		Policy:          settings.Transfer.ConflictPolicy,
		Mode:            settings.Transfer.Mode,
		HashAlgorithm:   settings.Transfer.HashAlgorithm,
		Hashing:         settings.Transfer.HashingEnabled,
		RetentionRoot:   settings.Paths.Retention,
		Copy:            settings.CopyConfiguration(),
		Retry:           settings.RetryOptions(),
		DestinationWait: settings.Transfer.WaitForDestination,
		Override:        override,
	}
}

// newRenderer builds the compliance-record renderer, or nil when no records
// directory is configured.
func newRenderer(settings config.Settings, logger *slog.Logger) (*records.Renderer, error) {
	if settings.Paths.Records == "" {
		return nil, nil
	}
	return records.NewRenderer(settings.Paths.Records, settings.Formats, logger)
}
