// Package audit validates candidate folders against the transfer policy.
package audit

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/Veraticus/courier/internal/common"
	"github.com/Veraticus/courier/internal/config"
	"github.com/Veraticus/courier/internal/model"
	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-billy/v5/util"
)

// Policy is the compiled audit policy.
type Policy struct {
	NamePattern       *regexp.Regexp
	datasets          map[string]struct{}
	blacklist         map[string]struct{}
	archiveExtensions map[string]struct{}
	checks            map[model.AuditCheck]struct{}
}

// NewPolicy compiles audit settings into a Policy.
func NewPolicy(s config.AuditSettings) (Policy, error) {
	pattern := s.NamePattern
	if pattern == "" {
		pattern = config.DefaultNamePattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return Policy{}, fmt.Errorf("%w: name pattern: %v", common.ErrInvalidConfig, err)
	}

	p := Policy{
		NamePattern:       re,
		datasets:          make(map[string]struct{}, len(s.Datasets)),
		blacklist:         extensionSet(s.Blacklist),
		archiveExtensions: extensionSet(s.ArchiveExtensions),
		checks:            make(map[model.AuditCheck]struct{}, len(s.Checks)),
	}
	for _, d := range s.Datasets {
		p.datasets[d] = struct{}{}
	}
	for _, c := range s.Checks {
		p.checks[c] = struct{}{}
	}
	return p, nil
}

// Enabled reports whether check is part of the audit strategy.
func (p Policy) Enabled(check model.AuditCheck) bool {
	_, ok := p.checks[check]
	return ok
}

// IsArchive reports whether a file name has an archive extension.
func (p Policy) IsArchive(name string) bool {
	_, ok := p.archiveExtensions[normalizeExt(path.Ext(name))]
	return ok
}

func (p Policy) isBlacklisted(name string) (string, bool) {
	ext := normalizeExt(path.Ext(name))
	if ext == "" {
		return "", false
	}
	_, ok := p.blacklist[ext]
	return ext, ok
}

func extensionSet(exts []string) map[string]struct{} {
	set := make(map[string]struct{}, len(exts))
	for _, e := range exts {
		if n := normalizeExt(e); n != "" {
			set[n] = struct{}{}
		}
	}
	return set
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext == "" {
		return ""
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}

// FSOpener returns a filesystem rooted at the given directory.
type FSOpener func(root string) billy.Filesystem

// OSOpener opens directories on the local (or network-mapped) filesystem.
func OSOpener(root string) billy.Filesystem {
	return osfs.New(root)
}

// Engine audits folders.
type Engine struct {
	open   FSOpener
	now    func() time.Time
	logger *slog.Logger
}

// NewEngine creates an audit engine reading the OS filesystem.
func NewEngine(logger *slog.Logger) *Engine {
	return NewEngineWithFS(OSOpener, logger)
}

// NewEngineWithFS creates an audit engine that enumerates folders through open.
func NewEngineWithFS(open FSOpener, logger *slog.Logger) *Engine {
	return &Engine{
		open:   open,
		now:    time.Now,
		logger: common.LoggerOrDefault(logger),
	}
}

// Audit validates the folder's name, dataset and file extensions against policy.
// Validation failures are reported in the verdict, never returned as errors.
func (e *Engine) Audit(ctx context.Context, folderPath, folderName string, policy Policy) *model.AuditVerdict {
	verdict := &model.AuditVerdict{
		AuditedAt:  e.now(),
		FolderName: folderName,
		FolderPath: folderPath,
	}

	verdict.Name = ParseName(folderName, policy.NamePattern)
	if !policy.Enabled(model.CheckName) {
		verdict.Name.Valid = true
	} else if !verdict.Name.Valid {
		verdict.Issues = append(verdict.Issues, verdict.Name.Message)
	}

	verdict.Dataset = checkDataset(verdict.Name.Fields.Dataset, policy)
	if !verdict.Dataset.Valid {
		verdict.Issues = append(verdict.Issues, verdict.Dataset.Message)
	}

	verdict.Extension.Performed = policy.Enabled(model.CheckExtension)
	err := e.enumerate(ctx, folderPath, policy, verdict)
	verdict.Extension.Valid = !verdict.Extension.Performed || len(verdict.Extension.Violations) == 0
	for _, v := range verdict.Extension.Violations {
		verdict.Issues = append(verdict.Issues, fmt.Sprintf("Blacklisted file type %s: %s", v.Extension, v.RelativePath))
	}

	switch {
	case err != nil:
		verdict.Status = model.AuditError
		verdict.Issues = append(verdict.Issues, fmt.Sprintf("Failed to enumerate folder: %v", err))
		e.logger.Error("Audit enumeration failed", "folder", folderName, "error", err)
	case verdict.AllChecksValid() && len(verdict.ArchiveFiles) > 0:
		verdict.Status = model.AuditCaution
	case verdict.AllChecksValid():
		verdict.Status = model.AuditPassed
	default:
		verdict.Status = model.AuditFailed
	}

	e.logger.Debug("Audited folder",
		"folder", folderName,
		"status", verdict.Status,
		"files", verdict.FileCount,
		"issues", len(verdict.Issues))

	return verdict
}

// AuditCandidate audits c, stores the verdict on it and updates per-file statuses.
func (e *Engine) AuditCandidate(ctx context.Context, c *model.FolderCandidate, policy Policy) *model.AuditVerdict {
	verdict := e.Audit(ctx, c.Path, c.Name, policy)

	blacklisted := make(map[string]struct{}, len(verdict.Extension.Violations))
	for _, v := range verdict.Extension.Violations {
		blacklisted[v.RelativePath] = struct{}{}
	}

	for _, f := range c.Snapshot() {
		if f.Status == model.FileTransferred {
			continue
		}
		status := model.FileReady
		if _, ok := blacklisted[f.RelativePath]; ok {
			status = model.FileBlacklisted
		} else if policy.IsArchive(f.Name) {
			status = model.FileCompressed
		}
		if f.Status != status {
			c.SetFileStatus(f.RelativePath, status)
		}
	}

	c.SetVerdict(verdict)
	return verdict
}

func checkDataset(dataset string, policy Policy) model.DatasetCheck {
	check := model.DatasetCheck{Dataset: dataset}
	if !policy.Enabled(model.CheckDataset) {
		check.Valid = true
		return check
	}

	check.Performed = true
	if dataset == "" {
		check.Message = "Dataset is missing from folder name"
		return check
	}
	if _, ok := policy.datasets[dataset]; !ok {
		check.Message = fmt.Sprintf("Dataset %q is not in the approved list", dataset)
		return check
	}
	check.Valid = true
	check.Message = "Dataset is approved"
	return check
}

// enumerate walks every file under folderPath, filling counts, archive files and
// extension violations.
func (e *Engine) enumerate(ctx context.Context, folderPath string, policy Policy, verdict *model.AuditVerdict) error {
	fs := e.open(folderPath)

	return util.Walk(fs, "", func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if info.IsDir() {
			return nil
		}

		rel := strings.TrimPrefix(filepath.ToSlash(p), "/")
		verdict.FileCount++
		verdict.TotalBytes += info.Size()

		if policy.IsArchive(info.Name()) {
			verdict.ArchiveFiles = append(verdict.ArchiveFiles, rel)
		}
		if verdict.Extension.Performed {
			if ext, bad := policy.isBlacklisted(info.Name()); bad {
				verdict.Extension.Violations = append(verdict.Extension.Violations, model.ExtensionViolation{
					RelativePath: rel,
					Extension:    ext,
				})
			}
		}
		return nil
	})
}
