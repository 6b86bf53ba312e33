package retention

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"syscall"
)

// Move relocates source into root under its own name, replacing any folder
// already there, and keeps the source folder's timestamps.
func Move(ctx context.Context, source, root string) (string, error) {
	info, err := os.Stat(source)
	if err != nil {
		return "", fmt.Errorf("stat source folder: %w", err)
	}
	if err := os.MkdirAll(root, 0o750); err != nil {
		return "", fmt.Errorf("create retention root: %w", err)
	}

	target := filepath.Join(root, filepath.Base(source))
	if _, err := os.Lstat(target); err == nil {
		clearReadOnly(target)
		if err := os.RemoveAll(target); err != nil {
			return "", fmt.Errorf("replace existing retention folder: %w", err)
		}
	}

	err = os.Rename(source, target)
	if errors.Is(err, syscall.EXDEV) {
		err = moveAcrossDevices(ctx, source, target)
	}
	if err != nil {
		return "", fmt.Errorf("move to retention: %w", err)
	}

	mtime := info.ModTime()
	if err := os.Chtimes(target, mtime, mtime); err != nil {
		return target, fmt.Errorf("preserve folder timestamp: %w", err)
	}
	return target, nil
}

func moveAcrossDevices(ctx context.Context, source, target string) error {
	if err := copyTree(ctx, source, target); err != nil {
		_ = os.RemoveAll(target)
		return err
	}
	clearReadOnly(source)
	return os.RemoveAll(source)
}

func copyTree(ctx context.Context, source, target string) error {
	type dirTime struct {
		path string
		info fs.FileInfo
	}
	var dirs []dirTime

	err := filepath.WalkDir(source, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		rel, err := filepath.Rel(source, p)
		if err != nil {
			return err
		}
		dst := filepath.Join(target, rel)
		info, err := d.Info()
		if err != nil {
			return err
		}

		switch {
		case d.IsDir():
			dirs = append(dirs, dirTime{path: dst, info: info})
			return os.MkdirAll(dst, 0o750)
		case info.Mode().IsRegular():
			return copyRegular(p, dst, info)
		default:
			return nil
		}
	})
	if err != nil {
		return err
	}

	// Directory times change while children are written; restore them last.
	for i := len(dirs) - 1; i >= 0; i-- {
		mtime := dirs[i].info.ModTime()
		_ = os.Chtimes(dirs[i].path, mtime, mtime)
	}
	return nil
}

func copyRegular(src, dst string, info fs.FileInfo) error {
	in, err := os.Open(src) //nolint:gosec // walking a folder we own
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm()|0o200) //nolint:gosec // target is under the retention root
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	mtime := info.ModTime()
	return os.Chtimes(dst, mtime, mtime)
}
