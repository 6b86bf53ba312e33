package transfer

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"io/fs"
	"os"
	"path"

	"github.com/go-git/go-billy/v5"

	"github.com/Veraticus/courier/internal/common"
	"github.com/Veraticus/courier/internal/model"
	"github.com/Veraticus/courier/internal/progress"
)

// copiedFile is the result of copying one file.
type copiedFile struct {
	entry model.FileEntry
	hash  string
}

// fileCopier copies files one at a time between two filesystems, hashing the
// bytes as they are written. Each file is retried on its own.
type fileCopier struct {
	src       billy.Filesystem
	dst       billy.Filesystem
	retrier   *common.Retrier
	retryOpts common.RetryOptions
	alg       model.HashAlgorithm
	hashing   bool
}

// copy copies a single entry, creating intermediate directories as needed.
func (c *fileCopier) copy(ctx context.Context, entry model.FileEntry) (copiedFile, error) {
	if err := ctx.Err(); err != nil {
		return copiedFile{}, err
	}

	in, err := c.src.Open(entry.RelativePath)
	if errors.Is(err, fs.ErrNotExist) {
		return copiedFile{}, common.Permanent(fmt.Errorf("%w: %s", common.ErrSourceMissing, entry.RelativePath))
	}
	if err != nil {
		return copiedFile{}, err
	}
	defer func() { _ = in.Close() }()

	if dir := path.Dir(entry.RelativePath); dir != "." {
		if err := c.dst.MkdirAll(dir, 0o750); err != nil {
			return copiedFile{}, err
		}
	}

	out, err := c.dst.OpenFile(entry.RelativePath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o640)
	if err != nil {
		return copiedFile{}, err
	}

	var (
		h      hash.Hash
		writer io.Writer = out
	)
	if c.hashing {
		if h, err = NewHash(c.alg); err != nil {
			_ = out.Close()
			return copiedFile{}, err
		}
		writer = io.MultiWriter(out, h)
	}

	if _, err := io.Copy(writer, &ctxReader{ctx: ctx, r: in}); err != nil {
		_ = out.Close()
		return copiedFile{}, fmt.Errorf("copy %s: %w", entry.RelativePath, err)
	}
	if err := out.Close(); err != nil {
		return copiedFile{}, err
	}

	if ch, ok := c.dst.(billy.Change); ok && !entry.ModTime.IsZero() {
		if err := ch.Chtimes(entry.RelativePath, entry.ModTime, entry.ModTime); err != nil {
			return copiedFile{}, err
		}
	}

	result := copiedFile{entry: entry}
	if h != nil {
		result.hash = hex.EncodeToString(h.Sum(nil))
	}
	return result, nil
}

// copyAll copies every entry in order, reporting a snapshot after each file.
// It stops at the first error and returns the files copied so far.
func (c *fileCopier) copyAll(ctx context.Context, entries []model.FileEntry, sink progress.Sink, onCopied func(copiedFile)) ([]copiedFile, error) {
	var totalBytes int64
	for _, e := range entries {
		totalBytes += e.Size
	}

	estimator := progress.NewEstimator(sink, progress.WithInterval(0))
	estimator.Start(len(entries), totalBytes)

	copied := make([]copiedFile, 0, len(entries))
	for _, e := range entries {
		estimator.SetCurrentFile(e.RelativePath)
		cf, err := common.ExecuteWith(ctx, c.retrier, func(ctx context.Context) (copiedFile, error) {
			return c.copy(ctx, e)
		}, c.retryOpts)
		if err != nil {
			return copied, err
		}
		copied = append(copied, cf)
		if onCopied != nil {
			onCopied(cf)
		}
		estimator.FileCopied(e.RelativePath, e.Size)
	}
	estimator.Complete()
	return copied, nil
}
