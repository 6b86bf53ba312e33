package model

import (
	"fmt"
	"strings"
	"time"
)

// ConflictPolicy decides what happens when the destination folder already exists.
type ConflictPolicy string

// Conflict policies.
const (
	ConflictSkip           ConflictPolicy = "skip"
	ConflictOverwrite      ConflictPolicy = "overwrite"
	ConflictAppendSequence ConflictPolicy = "append_sequence"
)

// ParseConflictPolicy converts a config value into a ConflictPolicy.
func ParseConflictPolicy(s string) (ConflictPolicy, error) {
	switch p := ConflictPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case ConflictSkip, ConflictOverwrite, ConflictAppendSequence:
		return p, nil
	default:
		return "", fmt.Errorf("unknown conflict policy %q", s)
	}
}

// HashAlgorithm selects the content hash computed for transferred files.
type HashAlgorithm string

// Supported hash algorithms.
const (
	HashSHA256 HashAlgorithm = "sha256"
	HashSHA512 HashAlgorithm = "sha512"
	HashSHA1   HashAlgorithm = "sha1"
	HashMD5    HashAlgorithm = "md5"
)

// ParseHashAlgorithm converts a config value into a HashAlgorithm.
func ParseHashAlgorithm(s string) (HashAlgorithm, error) {
	normalized := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "")
	switch a := HashAlgorithm(normalized); a {
	case HashSHA256, HashSHA512, HashSHA1, HashMD5:
		return a, nil
	default:
		return "", fmt.Errorf("unknown hash algorithm %q", s)
	}
}

// TransferMode selects how file payloads are moved.
type TransferMode string

// Transfer modes.
const (
	ModeBulk    TransferMode = "bulk"
	ModePerFile TransferMode = "perfile"
)

// CopyConfiguration is the per-call configuration handed to the bulk-copy mechanism.
// It is built fresh for every transfer and never mutated afterwards.
type CopyConfiguration struct {
	IncludeFiles       []string
	IncludePaths       []string // exact slash-separated relative paths; replaces IncludeFiles when set
	ExcludeFiles       []string
	ExcludeDirs        []string
	Threads            int
	RetryCount         int
	RetryWait          time.Duration
	BufferSize         int
	BandwidthLimit     int64 // bytes per second, 0 = unlimited
	CopySubdirectories bool
	IncludeEmptyDirs   bool
	PreserveAttributes bool
	PreserveTimestamps bool
	Mirror             bool
	Purge              bool
	Move               bool
	ListOnly           bool
}

// Clone returns a deep copy so callers can derive variants without aliasing slices.
func (c CopyConfiguration) Clone() CopyConfiguration {
	out := c
	out.IncludeFiles = append([]string(nil), c.IncludeFiles...)
	out.IncludePaths = append([]string(nil), c.IncludePaths...)
	out.ExcludeFiles = append([]string(nil), c.ExcludeFiles...)
	out.ExcludeDirs = append([]string(nil), c.ExcludeDirs...)
	return out
}

// TransferError is one error recorded during a transfer.
type TransferError struct {
	Path        string
	Message     string
	Code        int
	Fatal       bool
	Recoverable bool
}

// TransferCounts holds the per-category counters of a transfer.
type TransferCounts struct {
	DirsScanned  int
	DirsCopied   int
	DirsSkipped  int
	DirsFailed   int
	FilesScanned int
	FilesCopied  int
	FilesSkipped int
	FilesFailed  int
	BytesTotal   int64
	BytesCopied  int64
	BytesSkipped int64
	BytesFailed  int64
}

// TransferOutcome is the result of one transfer attempt. A new attempt produces a new value.
type TransferOutcome struct {
	StartedAt   time.Time
	FinishedAt  time.Time
	Source      string
	Destination string
	Message     string
	RecordID    string
	Errors      []TransferError
	Counts      TransferCounts
	ExitCode    int
	Success     bool
	Skipped     bool // destination already existed under the skip policy
	Canceled    bool
}

// HasFatalErrors reports whether any recorded error is fatal.
func (o *TransferOutcome) HasFatalErrors() bool {
	for _, e := range o.Errors {
		if e.Fatal {
			return true
		}
	}
	return false
}

// Duration returns how long the attempt took.
func (o *TransferOutcome) Duration() time.Duration {
	if o.FinishedAt.IsZero() || o.StartedAt.IsZero() {
		return 0
	}
	return o.FinishedAt.Sub(o.StartedAt)
}

// ProgressSnapshot is an ephemeral view of an in-flight transfer.
type ProgressSnapshot struct {
	ETA              *time.Duration
	CurrentFile      string
	CompletedFiles   int
	TotalFiles       int
	BytesTransferred int64
	TotalBytes       int64
	Throughput       float64 // bytes per second, averaged since start
	Percent          int
}

// TransferStatus is the final state stored in a transfer record.
type TransferStatus string

// Transfer record statuses.
const (
	TransferSucceeded TransferStatus = "Succeeded"
	TransferFailed    TransferStatus = "Failed"
	TransferSkipped   TransferStatus = "Skipped"
)

// RecordFile is per-file metadata stored in a transfer record.
type RecordFile struct {
	ModTime      time.Time
	RelativePath string
	Hash         string
	Size         int64
}

// TransferRecord is the immutable summary persisted to the history store
// and rendered into compliance records.
type TransferRecord struct {
	StartedAt     time.Time
	FinishedAt    time.Time
	ID            string
	FolderName    string
	Source        string
	Destination   string
	EmployeeID    string
	Dataset       string
	HashAlgorithm HashAlgorithm
	Status        TransferStatus
	AuditStatus   AuditStatus
	Message       string
	Files         []RecordFile
	FileCount     int
	TotalBytes    int64
	Overridden    bool
}
