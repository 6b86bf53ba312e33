// Package config provides configuration loading for the application.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/Veraticus/courier/internal/common"
	"github.com/Veraticus/courier/internal/model"
	"github.com/spf13/viper"
)

// DefaultNamePattern matches EmployeeID_yyyyMMdd_Dataset with an optional _N suffix.
const DefaultNamePattern = `^[A-Za-z0-9]+_\d{8}_[A-Za-z0-9]+(_\d+)?$`

// PathSettings holds the directories the application works with.
type PathSettings struct {
	Staging     string
	Retention   string
	Records     string
	Destination string
	Database    string
}

// AuditSettings holds the folder audit policy.
type AuditSettings struct {
	NamePattern       string
	Datasets          []string
	Blacklist         []string
	ArchiveExtensions []string
	Checks            []model.AuditCheck
}

// RetrySettings configures the orchestrator's own retry policy.
type RetrySettings struct {
	MaxRetries int
	BaseDelay  time.Duration
	Jitter     bool
}

// TransferSettings configures how folders are transferred.
type TransferSettings struct {
	ConflictPolicy     model.ConflictPolicy
	Mode               model.TransferMode
	Mechanism          string
	HashAlgorithm      model.HashAlgorithm
	Retry              RetrySettings
	WaitForDestination time.Duration
	HashingEnabled     bool
}

// BulkCopySettings are tuning parameters for the bulk-copy mechanism.
type BulkCopySettings struct {
	RsyncPath          string
	IncludeFiles       []string
	ExcludeFiles       []string
	ExcludeDirs        []string
	Threads            int
	RetryCount         int
	RetryWait          time.Duration
	BufferSize         int
	BandwidthLimit     int64
	CopySubdirectories bool
	IncludeEmptyDirs   bool
	PreserveTimestamps bool
	PreserveAttributes bool
}

// RetentionSettings configures retention folder cleanup.
type RetentionSettings struct {
	Schedule string
	Days     int
}

// Settings is a read-only configuration snapshot.
type Settings struct {
	Paths     PathSettings
	Audit     AuditSettings
	Transfer  TransferSettings
	BulkCopy  BulkCopySettings
	Retention RetentionSettings
	Formats   []string
}

// SetDefaults registers default values on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("paths.staging", "~/courier/staging")
	v.SetDefault("paths.retention", "~/courier/retention")
	v.SetDefault("paths.records", "~/courier/records")
	v.SetDefault("paths.destination", "")
	v.SetDefault("database.path", "$HOME/.local/share/courier/courier.db")

	v.SetDefault("audit.name_pattern", DefaultNamePattern)
	v.SetDefault("audit.datasets", []string{"UG", "OG", "LB"})
	v.SetDefault("audit.blacklist", []string{".exe", ".bat", ".cmd", ".ps1", ".vbs", ".js", ".msi", ".dll", ".scr"})
	v.SetDefault("audit.archive_extensions", []string{".zip", ".7z", ".rar", ".tar", ".gz", ".tgz"})
	v.SetDefault("audit.checks", []string{string(model.CheckName), string(model.CheckDataset), string(model.CheckExtension)})

	v.SetDefault("transfer.conflict_policy", string(model.ConflictAppendSequence))
	v.SetDefault("transfer.mode", string(model.ModeBulk))
	v.SetDefault("transfer.mechanism", "native")
	v.SetDefault("transfer.hashing.enabled", true)
	v.SetDefault("transfer.hashing.algorithm", string(model.HashSHA256))
	v.SetDefault("transfer.retry.max_retries", 3)
	v.SetDefault("transfer.retry.base_delay", time.Second)
	v.SetDefault("transfer.retry.jitter", true)
	v.SetDefault("transfer.wait_for_destination", time.Duration(0))

	v.SetDefault("bulkcopy.threads", 8)
	v.SetDefault("bulkcopy.retry_count", 0)
	v.SetDefault("bulkcopy.retry_wait", time.Duration(0))
	v.SetDefault("bulkcopy.buffer_size", 1<<20)
	v.SetDefault("bulkcopy.bandwidth_limit", 0)
	v.SetDefault("bulkcopy.copy_subdirectories", true)
	v.SetDefault("bulkcopy.include_empty_dirs", true)
	v.SetDefault("bulkcopy.preserve_timestamps", true)
	v.SetDefault("bulkcopy.preserve_attributes", true)
	v.SetDefault("bulkcopy.rsync_path", "rsync")

	v.SetDefault("retention.days", 30)
	v.SetDefault("retention.schedule", "0 0 3 * * *")

	v.SetDefault("records.formats", []string{"json"})
}

// Load builds a Settings snapshot from v, applying defaults and validating values.
func Load(v *viper.Viper) (Settings, error) {
	SetDefaults(v)

	policy, err := model.ParseConflictPolicy(v.GetString("transfer.conflict_policy"))
	if err != nil {
		return Settings{}, fmt.Errorf("%w: %v", common.ErrInvalidConfig, err)
	}
	algorithm, err := model.ParseHashAlgorithm(v.GetString("transfer.hashing.algorithm"))
	if err != nil {
		return Settings{}, fmt.Errorf("%w: %v", common.ErrInvalidConfig, err)
	}

	checks := make([]model.AuditCheck, 0, 3)
	for _, c := range v.GetStringSlice("audit.checks") {
		checks = append(checks, model.AuditCheck(strings.ToLower(strings.TrimSpace(c))))
	}

	s := Settings{
		Paths: PathSettings{
			Staging:     ExpandPath(v.GetString("paths.staging")),
			Retention:   ExpandPath(v.GetString("paths.retention")),
			Records:     ExpandPath(v.GetString("paths.records")),
			Destination: ExpandPath(v.GetString("paths.destination")),
			Database:    ExpandPath(v.GetString("database.path")),
		},
		Audit: AuditSettings{
			NamePattern:       v.GetString("audit.name_pattern"),
			Datasets:          v.GetStringSlice("audit.datasets"),
			Blacklist:         v.GetStringSlice("audit.blacklist"),
			ArchiveExtensions: v.GetStringSlice("audit.archive_extensions"),
			Checks:            checks,
		},
		Transfer: TransferSettings{
			ConflictPolicy: policy,
			Mode:           model.TransferMode(strings.ToLower(v.GetString("transfer.mode"))),
			Mechanism:      strings.ToLower(v.GetString("transfer.mechanism")),
			HashingEnabled: v.GetBool("transfer.hashing.enabled"),
			HashAlgorithm:  algorithm,
			Retry: RetrySettings{
				MaxRetries: v.GetInt("transfer.retry.max_retries"),
				BaseDelay:  v.GetDuration("transfer.retry.base_delay"),
				Jitter:     v.GetBool("transfer.retry.jitter"),
			},
			WaitForDestination: v.GetDuration("transfer.wait_for_destination"),
		},
		BulkCopy: BulkCopySettings{
			RsyncPath:          v.GetString("bulkcopy.rsync_path"),
			IncludeFiles:       v.GetStringSlice("bulkcopy.include_files"),
			ExcludeFiles:       v.GetStringSlice("bulkcopy.exclude_files"),
			ExcludeDirs:        v.GetStringSlice("bulkcopy.exclude_dirs"),
			Threads:            v.GetInt("bulkcopy.threads"),
			RetryCount:         v.GetInt("bulkcopy.retry_count"),
			RetryWait:          v.GetDuration("bulkcopy.retry_wait"),
			BufferSize:         v.GetInt("bulkcopy.buffer_size"),
			BandwidthLimit:     v.GetInt64("bulkcopy.bandwidth_limit"),
			CopySubdirectories: v.GetBool("bulkcopy.copy_subdirectories"),
			IncludeEmptyDirs:   v.GetBool("bulkcopy.include_empty_dirs"),
			PreserveTimestamps: v.GetBool("bulkcopy.preserve_timestamps"),
			PreserveAttributes: v.GetBool("bulkcopy.preserve_attributes"),
		},
		Retention: RetentionSettings{
			Days:     v.GetInt("retention.days"),
			Schedule: v.GetString("retention.schedule"),
		},
		Formats: v.GetStringSlice("records.formats"),
	}

	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// Validate checks the snapshot for values the application cannot work with.
func (s Settings) Validate() error {
	if _, err := regexp.Compile(s.Audit.NamePattern); err != nil {
		return fmt.Errorf("%w: audit.name_pattern: %v", common.ErrInvalidConfig, err)
	}
	for _, c := range s.Audit.Checks {
		switch c {
		case model.CheckName, model.CheckDataset, model.CheckExtension:
		default:
			return fmt.Errorf("%w: unknown audit check %q", common.ErrInvalidConfig, c)
		}
	}
	switch s.Transfer.Mode {
	case model.ModeBulk, model.ModePerFile:
	default:
		return fmt.Errorf("%w: unknown transfer mode %q", common.ErrInvalidConfig, s.Transfer.Mode)
	}
	switch s.Transfer.Mechanism {
	case "native", "rsync":
	default:
		return fmt.Errorf("%w: unknown bulk copy mechanism %q", common.ErrInvalidConfig, s.Transfer.Mechanism)
	}
	if s.Transfer.Retry.MaxRetries < 0 || s.Transfer.Retry.BaseDelay < 0 {
		return fmt.Errorf("%w: retry values must be >= 0", common.ErrInvalidConfig)
	}
	if s.BulkCopy.Threads < 1 {
		return fmt.Errorf("%w: bulkcopy.threads must be >= 1", common.ErrInvalidConfig)
	}
	if s.Retention.Days < 0 {
		return fmt.Errorf("%w: retention.days must be >= 0", common.ErrInvalidConfig)
	}
	for _, f := range s.Formats {
		switch strings.ToLower(f) {
		case "json", "csv", "xlsx":
		default:
			return fmt.Errorf("%w: unknown record format %q", common.ErrInvalidConfig, f)
		}
	}
	return nil
}

// CheckEnabled reports whether the audit check is part of the strategy set.
func (a AuditSettings) CheckEnabled(c model.AuditCheck) bool {
	for _, enabled := range a.Checks {
		if enabled == c {
			return true
		}
	}
	return false
}

// CopyConfiguration builds a fresh CopyConfiguration from the bulk copy settings.
// The mechanism's internal retry is always disabled; retries belong to RetryPolicy.
func (s Settings) CopyConfiguration() model.CopyConfiguration {
	return model.CopyConfiguration{
		IncludeFiles:       append([]string(nil), s.BulkCopy.IncludeFiles...),
		ExcludeFiles:       append([]string(nil), s.BulkCopy.ExcludeFiles...),
		ExcludeDirs:        append([]string(nil), s.BulkCopy.ExcludeDirs...),
		Threads:            s.BulkCopy.Threads,
		RetryCount:         0,
		RetryWait:          0,
		BufferSize:         s.BulkCopy.BufferSize,
		BandwidthLimit:     s.BulkCopy.BandwidthLimit,
		CopySubdirectories: s.BulkCopy.CopySubdirectories,
		IncludeEmptyDirs:   s.BulkCopy.IncludeEmptyDirs,
		PreserveTimestamps: s.BulkCopy.PreserveTimestamps,
		PreserveAttributes: s.BulkCopy.PreserveAttributes,
	}
}

// RetryOptions converts the retry settings for common.Execute.
func (s Settings) RetryOptions() common.RetryOptions {
	return common.RetryOptions{
		MaxRetries: s.Transfer.Retry.MaxRetries,
		BaseDelay:  s.Transfer.Retry.BaseDelay,
		UseJitter:  s.Transfer.Retry.Jitter,
	}
}

// ExpandPath expands ~ and environment variables in a file path.
// It handles both ~ for home directory and $VAR style environment variables.
func ExpandPath(path string) string {
	if path == "" {
		return path
	}

	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			path = filepath.Join(home, path[2:])
		}
	} else if path == "~" {
		home, err := os.UserHomeDir()
		if err == nil {
			path = home
		}
	}

	return os.ExpandEnv(path)
}
