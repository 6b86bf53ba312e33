// Package model defines the core domain models used throughout the application.
package model

import (
	"sync"
	"time"
)

// FileStatus tracks where a single file is in the audit/transfer pipeline.
type FileStatus string

// File status constants.
const (
	FileReady       FileStatus = "Ready"
	FileBlacklisted FileStatus = "Blacklisted"
	FileCompressed  FileStatus = "Compressed"
	FileTransferred FileStatus = "Transferred"
)

// FileEntry is a file inside a FolderCandidate.
type FileEntry struct {
	ModTime      time.Time
	Name         string
	RelativePath string // slash separated, relative to the folder root
	Hash         string
	Status       FileStatus
	Size         int64
	IsViewable   bool
	IsArchive    bool
}

// NameFields holds the components parsed out of a folder name.
type NameFields struct {
	Date       time.Time
	EmployeeID string
	DateText   string
	Dataset    string
	Sequence   int
	HasSeq     bool
}

// ChangeKind identifies which part of a FolderCandidate changed.
type ChangeKind string

// Change kinds emitted to candidate observers.
const (
	ChangeVerdict    ChangeKind = "verdict"
	ChangeFileStatus ChangeKind = "file_status"
	ChangeFileHash   ChangeKind = "file_hash"
)

// CandidateChange describes a mutation applied through a FolderCandidate setter.
type CandidateChange struct {
	Kind         ChangeKind
	Folder       string
	RelativePath string
}

// FolderCandidate is a folder discovered in the staging area.
// Mutations go through the setter methods so observers see every change.
type FolderCandidate struct {
	DiscoveredAt time.Time
	verdict      *AuditVerdict
	Name         string
	Path         string
	Fields       NameFields
	Files        []FileEntry
	observers    []func(CandidateChange)
	mu           sync.RWMutex
}

// NewFolderCandidate creates a candidate for the folder at path.
func NewFolderCandidate(name, path string, files []FileEntry) *FolderCandidate {
	return &FolderCandidate{
		Name:         name,
		Path:         path,
		Files:        files,
		DiscoveredAt: time.Now(),
	}
}

// Observe registers fn to be called after every setter mutation.
func (c *FolderCandidate) Observe(fn func(CandidateChange)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.observers = append(c.observers, fn)
}

// Verdict returns the most recent audit verdict, or nil if never audited.
func (c *FolderCandidate) Verdict() *AuditVerdict {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.verdict
}

// SetVerdict replaces the audit verdict. Verdicts are never partially updated.
func (c *FolderCandidate) SetVerdict(v *AuditVerdict) {
	c.mu.Lock()
	c.verdict = v
	c.mu.Unlock()
	c.notify(CandidateChange{Kind: ChangeVerdict, Folder: c.Name})
}

// SetFileStatus updates the status of the file with the given relative path.
// It reports whether the file was found.
func (c *FolderCandidate) SetFileStatus(relPath string, status FileStatus) bool {
	c.mu.Lock()
	idx := c.indexLocked(relPath)
	if idx >= 0 {
		c.Files[idx].Status = status
	}
	c.mu.Unlock()

	if idx < 0 {
		return false
	}
	c.notify(CandidateChange{Kind: ChangeFileStatus, Folder: c.Name, RelativePath: relPath})
	return true
}

// SetFileHash records the content hash of the file with the given relative path.
func (c *FolderCandidate) SetFileHash(relPath, hash string) bool {
	c.mu.Lock()
	idx := c.indexLocked(relPath)
	if idx >= 0 {
		c.Files[idx].Hash = hash
	}
	c.mu.Unlock()

	if idx < 0 {
		return false
	}
	c.notify(CandidateChange{Kind: ChangeFileHash, Folder: c.Name, RelativePath: relPath})
	return true
}

// Snapshot returns a copy of the file list safe for concurrent reads.
func (c *FolderCandidate) Snapshot() []FileEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]FileEntry, len(c.Files))
	copy(out, c.Files)
	return out
}

// TotalBytes returns the sum of file sizes.
func (c *FolderCandidate) TotalBytes() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var total int64
	for _, f := range c.Files {
		total += f.Size
	}
	return total
}

func (c *FolderCandidate) indexLocked(relPath string) int {
	for i := range c.Files {
		if c.Files[i].RelativePath == relPath {
			return i
		}
	}
	return -1
}

func (c *FolderCandidate) notify(change CandidateChange) {
	c.mu.RLock()
	observers := make([]func(CandidateChange), len(c.observers))
	copy(observers, c.observers)
	c.mu.RUnlock()

	for _, fn := range observers {
		fn(change)
	}
}
