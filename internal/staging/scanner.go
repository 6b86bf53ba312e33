// Package staging discovers candidate folders waiting in the staging area.
package staging

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/Veraticus/courier/internal/audit"
	"github.com/Veraticus/courier/internal/common"
	"github.com/Veraticus/courier/internal/model"
	"github.com/go-git/go-billy/v5/util"
)

var viewableExtensions = map[string]struct{}{
	".txt": {}, ".pdf": {}, ".csv": {}, ".json": {}, ".xml": {}, ".log": {},
	".jpg": {}, ".jpeg": {}, ".png": {}, ".gif": {}, ".bmp": {}, ".md": {},
	".docx": {}, ".xlsx": {}, ".pptx": {},
}

// Scanner builds FolderCandidates from the immediate subfolders of a staging directory.
type Scanner struct {
	open   audit.FSOpener
	now    func() time.Time
	logger *slog.Logger
	policy audit.Policy
}

// NewScanner creates a scanner reading the OS filesystem.
func NewScanner(policy audit.Policy, logger *slog.Logger) *Scanner {
	return NewScannerWithFS(audit.OSOpener, policy, logger)
}

// NewScannerWithFS creates a scanner that reads through open.
func NewScannerWithFS(open audit.FSOpener, policy audit.Policy, logger *slog.Logger) *Scanner {
	return &Scanner{
		open:   open,
		now:    time.Now,
		logger: common.LoggerOrDefault(logger),
		policy: policy,
	}
}

// Scan lists the staging directory and returns one candidate per subfolder,
// sorted by name.
func (s *Scanner) Scan(ctx context.Context, stagingDir string) ([]*model.FolderCandidate, error) {
	fs := s.open(stagingDir)
	entries, err := fs.ReadDir("")
	if err != nil {
		return nil, fmt.Errorf("failed to list staging area %s: %w", stagingDir, err)
	}

	var candidates []*model.FolderCandidate
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		c, err := s.Load(ctx, filepath.Join(stagingDir, entry.Name()))
		if err != nil {
			s.logger.Warn("Skipping unreadable staging folder", "folder", entry.Name(), "error", err)
			continue
		}
		candidates = append(candidates, c)
	}

	sort.Slice(candidates, func(i, j int) bool { return candidates[i].Name < candidates[j].Name })

	s.logger.Info("Scanned staging area", "path", stagingDir, "folders", len(candidates))
	return candidates, nil
}

// Load builds a candidate for a single folder.
func (s *Scanner) Load(ctx context.Context, folderPath string) (*model.FolderCandidate, error) {
	fs := s.open(folderPath)
	var files []model.FileEntry

	err := util.Walk(fs, "", func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if info.IsDir() {
			return nil
		}

		ext := strings.ToLower(path.Ext(info.Name()))
		_, viewable := viewableExtensions[ext]
		files = append(files, model.FileEntry{
			Name:         info.Name(),
			RelativePath: strings.TrimPrefix(filepath.ToSlash(p), "/"),
			Size:         info.Size(),
			ModTime:      info.ModTime(),
			Status:       model.FileReady,
			IsViewable:   viewable,
			IsArchive:    s.policy.IsArchive(info.Name()),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(files, func(i, j int) bool { return files[i].RelativePath < files[j].RelativePath })

	name := filepath.Base(folderPath)
	c := model.NewFolderCandidate(name, folderPath, files)
	c.DiscoveredAt = s.now()
	c.Fields = audit.ParseName(name, s.policy.NamePattern).Fields
	return c, nil
}
