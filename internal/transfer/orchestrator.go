// Package transfer moves audited folders from the staging area to their destination.
package transfer

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/google/uuid"

	"github.com/Veraticus/courier/internal/bulkcopy"
	"github.com/Veraticus/courier/internal/common"
	"github.com/Veraticus/courier/internal/conflict"
	"github.com/Veraticus/courier/internal/model"
	"github.com/Veraticus/courier/internal/progress"
	"github.com/Veraticus/courier/internal/retention"
	"github.com/Veraticus/courier/internal/service"
)

// Options controls how folders are transferred.
type Options struct {
	Policy        model.ConflictPolicy
	Mode          model.TransferMode
	HashAlgorithm model.HashAlgorithm
	RetentionRoot string
	Copy          model.CopyConfiguration
	Retry         common.RetryOptions
	// DestinationWait is how long to wait for the destination root to appear.
	// Zero means the destination must already be reachable.
	DestinationWait time.Duration
	Hashing         bool
	// Override transfers folders whose audit did not pass.
	Override bool
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithStore sets the transfer-history store that receives every record.
func WithStore(store service.RecordStore) Option {
	return func(o *Orchestrator) { o.store = store }
}

// WithRenderer sets the compliance-record renderer.
func WithRenderer(r service.RecordRenderer) Option {
	return func(o *Orchestrator) { o.renderer = r }
}

// WithRetrier replaces the retrier used around copy attempts.
func WithRetrier(r *common.Retrier) Option {
	return func(o *Orchestrator) { o.retrier = r }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// WithIDGenerator replaces the generator of transfer record IDs.
func WithIDGenerator(fn func() string) Option {
	return func(o *Orchestrator) { o.newID = fn }
}

// WithFilesystem replaces how the per-file copier opens directories.
func WithFilesystem(open func(root string) billy.Filesystem) Option {
	return func(o *Orchestrator) { o.open = open }
}

// WithStartHook registers fn to be called with the folder name when a copy begins.
func WithStartHook(fn func(folder string)) Option {
	return func(o *Orchestrator) { o.onStart = fn }
}

// WithPollInterval sets how often the destination root is checked while waiting.
func WithPollInterval(d time.Duration) Option {
	return func(o *Orchestrator) { o.pollInterval = d }
}

// Orchestrator runs the per-folder transfer pipeline:
// resolve, copy, hash, record, then move the source into retention.
type Orchestrator struct {
	bulk         *bulkcopy.Engine
	resolver     *conflict.Resolver
	store        service.RecordStore
	renderer     service.RecordRenderer
	retrier      *common.Retrier
	logger       *slog.Logger
	now          func() time.Time
	newID        func() string
	open         func(root string) billy.Filesystem
	onStart      func(folder string)
	opts         Options
	pollInterval time.Duration
}

// NewOrchestrator creates an orchestrator. bulk may be nil when opts.Mode is per-file.
func NewOrchestrator(bulk *bulkcopy.Engine, opts Options, logger *slog.Logger, options ...Option) *Orchestrator {
	logger = common.LoggerOrDefault(logger)
	o := &Orchestrator{
		bulk:         bulk,
		resolver:     conflict.NewResolver(),
		retrier:      common.NewRetrier(logger),
		logger:       logger,
		now:          time.Now,
		newID:        uuid.NewString,
		open:         func(root string) billy.Filesystem { return osfs.New(root) },
		opts:         opts,
		pollInterval: DefaultPollInterval,
	}
	if o.opts.Mode == "" {
		o.opts.Mode = model.ModeBulk
	}
	if o.opts.HashAlgorithm == "" {
		o.opts.HashAlgorithm = model.HashSHA256
	}
	for _, opt := range options {
		opt(o)
	}
	return o
}

// Gated reports whether c may not be transferred without an override.
func (o *Orchestrator) Gated(c *model.FolderCandidate) bool {
	if o.opts.Override {
		return false
	}
	v := c.Verdict()
	return v == nil || !v.Status.Transferable()
}

// TransferFolder transfers one candidate into destinationRoot.
//
// The returned outcome is never nil. A skipped folder is a success. The error
// is non-nil whenever the outcome is not successful; on cancellation it is the
// context error.
func (o *Orchestrator) TransferFolder(ctx context.Context, c *model.FolderCandidate, destinationRoot string, sink progress.Sink) (*model.TransferOutcome, error) {
	if sink == nil {
		sink = progress.Discard
	}
	outcome := &model.TransferOutcome{
		StartedAt: o.now(),
		Source:    c.Path,
	}
	log := o.logger.With("folder", c.Name)

	if o.Gated(c) {
		status := model.AuditStatus("not audited")
		if v := c.Verdict(); v != nil {
			status = v.Status
		}
		err := common.Permanent(fmt.Errorf("%w: %s is %s", common.ErrAuditGate, c.Name, status))
		return o.failed(outcome, err), err
	}

	if err := o.awaitDestination(ctx, destinationRoot); err != nil {
		if common.IsCanceled(err) {
			return o.canceled(outcome), err
		}
		return o.failed(outcome, err), err
	}

	destination, err := o.resolver.Resolve(destinationRoot, c.Name, o.opts.Policy)
	if err != nil {
		err = common.Permanent(fmt.Errorf("resolve destination: %w", err))
		return o.failed(outcome, err), err
	}
	outcome.Destination = destination

	if o.opts.Policy == model.ConflictSkip {
		exists, err := o.resolver.Exists(destination)
		if err != nil {
			err = common.Permanent(err)
			return o.failed(outcome, err), err
		}
		if exists {
			outcome.Success = true
			outcome.Skipped = true
			outcome.Message = "destination already exists"
			outcome.Counts.FilesSkipped = len(c.Snapshot())
			outcome.Counts.BytesSkipped = c.TotalBytes()
			outcome.FinishedAt = o.now()
			log.Info("skipping transfer, destination already exists", "destination", destination)
			_ = o.record(ctx, c, outcome, model.TransferSkipped)
			return outcome, nil
		}
	}

	if err := ctx.Err(); err != nil {
		return o.canceled(outcome), err
	}

	if err := os.MkdirAll(destination, 0o750); err != nil {
		err = common.Permanent(fmt.Errorf("%w: %s: %v", common.ErrDestinationUnwritable, destination, err))
		return o.failed(outcome, err), err
	}

	log.Info("transferring folder", "destination", destination, "mode", o.opts.Mode)
	if o.onStart != nil {
		o.onStart(c.Name)
	}

	var copyErr error
	switch o.opts.Mode {
	case model.ModePerFile:
		copyErr = o.copyPerFile(ctx, c, destination, outcome, sink)
	default:
		copyErr = o.copyBulk(ctx, c, destination, outcome, sink)
	}
	if copyErr != nil {
		if common.IsCanceled(copyErr) || ctx.Err() != nil {
			o.canceled(outcome)
			log.Warn("transfer canceled", "destination", destination)
			_ = o.record(ctx, c, outcome, model.TransferFailed)
			if ctx.Err() != nil {
				return outcome, ctx.Err()
			}
			return outcome, copyErr
		}
		o.failed(outcome, copyErr)
		log.Error("transfer failed", "destination", destination, "error", copyErr)
		_ = o.record(ctx, c, outcome, model.TransferFailed)
		return outcome, copyErr
	}

	if err := o.record(ctx, c, outcome, model.TransferSucceeded); err != nil {
		err = fmt.Errorf("save transfer record: %w", err)
		o.failed(outcome, err)
		return outcome, err
	}

	if o.opts.RetentionRoot != "" {
		target, err := retention.Move(context.WithoutCancel(ctx), c.Path, o.opts.RetentionRoot)
		if err != nil {
			log.Warn("failed to move folder into retention", "retention_root", o.opts.RetentionRoot, "error", err)
		} else {
			log.Info("moved folder into retention", "target", target)
		}
	}

	outcome.Success = true
	outcome.FinishedAt = o.now()
	log.Info("transfer succeeded",
		"destination", destination,
		"files_copied", outcome.Counts.FilesCopied,
		"bytes_copied", outcome.Counts.BytesCopied,
		"duration", outcome.Duration())
	return outcome, nil
}

// TransferAll transfers candidates one after another. Gated candidates are not
// attempted. Candidates that were not transferred are returned as remaining.
// Only cancellation stops the run early.
func (o *Orchestrator) TransferAll(ctx context.Context, candidates []*model.FolderCandidate, destinationRoot string, sink progress.Sink) ([]*model.TransferOutcome, []*model.FolderCandidate, error) {
	var (
		outcomes  []*model.TransferOutcome
		remaining []*model.FolderCandidate
	)

	for i, c := range candidates {
		if o.Gated(c) {
			o.logger.Info("not transferring folder that failed audit", "folder", c.Name)
			remaining = append(remaining, c)
			continue
		}

		outcome, err := o.TransferFolder(ctx, c, destinationRoot, sink)
		outcomes = append(outcomes, outcome)
		if outcome.Success {
			continue
		}
		remaining = append(remaining, c)

		if common.IsCanceled(err) {
			remaining = append(remaining, candidates[i+1:]...)
			return outcomes, remaining, err
		}
	}
	return outcomes, remaining, nil
}

// copyBulk copies the whole folder through the bulk-copy engine, retrying
// recoverable failures, then hashes what landed in the destination.
func (o *Orchestrator) copyBulk(ctx context.Context, c *model.FolderCandidate, destination string, outcome *model.TransferOutcome, sink progress.Sink) error {
	if o.bulk == nil {
		return common.Permanent(errors.New("bulk copy engine is not configured"))
	}

	cumulative := progress.NewCumulative(sink)
	var (
		last            *model.TransferOutcome
		earlier, counts model.TransferCounts
	)
	_, err := common.ExecuteWith(ctx, o.retrier, func(ctx context.Context) (*model.TransferOutcome, error) {
		result, err := o.bulk.TransferFolder(ctx, c.Path, destination, o.opts.Copy, cumulative.Sink())
		if result != nil {
			last = result
			counts = mergeAttempts(earlier, result.Counts)
			if err != nil {
				earlier = counts
				cumulative.Resume(result.Counts.FilesCopied, result.Counts.BytesCopied)
			}
		}
		return result, err
	}, o.opts.Retry)

	if last != nil {
		outcome.Counts = counts
		outcome.Errors = last.Errors
		outcome.ExitCode = last.ExitCode
		outcome.Message = last.Message
	}
	if err != nil {
		return err
	}

	dst := o.open(destination)
	for _, f := range c.Snapshot() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := dst.Stat(f.RelativePath); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("stat copied file %s: %w", f.RelativePath, err)
			}
			continue
		}
		c.SetFileStatus(f.RelativePath, model.FileTransferred)

		if !o.opts.Hashing {
			continue
		}
		sum, err := HashFile(ctx, dst, f.RelativePath, o.opts.HashAlgorithm)
		if err != nil {
			return err
		}
		c.SetFileHash(f.RelativePath, sum)
	}
	return nil
}

// mergeAttempts adds the copies made by earlier failed attempts to the counts
// of the latest one. A retry sees those files as already up to date, so they
// move from skipped to copied. Failures are the latest attempt's alone.
func mergeAttempts(earlier, latest model.TransferCounts) model.TransferCounts {
	out := latest
	out.DirsCopied += earlier.DirsCopied
	out.FilesCopied += earlier.FilesCopied
	out.BytesCopied += earlier.BytesCopied
	out.DirsSkipped = max(latest.DirsSkipped-earlier.DirsCopied, 0)
	out.FilesSkipped = max(latest.FilesSkipped-earlier.FilesCopied, 0)
	out.BytesSkipped = max(latest.BytesSkipped-earlier.BytesCopied, 0)
	out.DirsScanned = max(latest.DirsScanned, earlier.DirsScanned)
	out.FilesScanned = max(latest.FilesScanned, earlier.FilesScanned)
	out.BytesTotal = max(latest.BytesTotal, earlier.BytesTotal)
	return out
}

// copyPerFile copies each file on its own, hashing while writing.
func (o *Orchestrator) copyPerFile(ctx context.Context, c *model.FolderCandidate, destination string, outcome *model.TransferOutcome, sink progress.Sink) error {
	files := c.Snapshot()
	outcome.Counts.FilesScanned = len(files)
	outcome.Counts.BytesTotal = c.TotalBytes()

	copier := &fileCopier{
		src:       o.open(c.Path),
		dst:       o.open(destination),
		retrier:   o.retrier,
		retryOpts: o.opts.Retry,
		alg:       o.opts.HashAlgorithm,
		hashing:   o.opts.Hashing,
	}

	copied, err := copier.copyAll(ctx, files, sink, func(cf copiedFile) {
		c.SetFileStatus(cf.entry.RelativePath, model.FileTransferred)
		if cf.hash != "" {
			c.SetFileHash(cf.entry.RelativePath, cf.hash)
		}
	})

	outcome.Counts.FilesCopied = len(copied)
	for _, cf := range copied {
		outcome.Counts.BytesCopied += cf.entry.Size
	}
	if err != nil {
		failed := files[len(copied)]
		outcome.Counts.FilesFailed = 1
		outcome.Counts.BytesFailed = failed.Size
		outcome.Errors = append(outcome.Errors, model.TransferError{
			Path:        failed.RelativePath,
			Message:     err.Error(),
			Fatal:       common.IsPermanent(err),
			Recoverable: common.IsRetryable(err),
		})
		return err
	}

	outcome.Message = fmt.Sprintf("%d files copied", len(copied))
	return nil
}

// awaitDestination waits up to DestinationWait for root to exist.
func (o *Orchestrator) awaitDestination(ctx context.Context, root string) error {
	if o.opts.DestinationWait <= 0 {
		return nil
	}

	waitCtx, cancel := context.WithTimeout(ctx, o.opts.DestinationWait)
	defer cancel()

	err := WaitForDestination(waitCtx, root, o.pollInterval)
	if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		return common.Permanent(fmt.Errorf("%w: %s after %s", common.ErrDestinationUnavailable, root, o.opts.DestinationWait))
	}
	return err
}

// record persists and renders the transfer record. Store failures are
// returned, render failures are logged.
func (o *Orchestrator) record(ctx context.Context, c *model.FolderCandidate, outcome *model.TransferOutcome, status model.TransferStatus) error {
	rec := o.buildRecord(c, outcome, status)
	outcome.RecordID = rec.ID

	// The record describes what happened even when the transfer was canceled.
	ctx = context.WithoutCancel(ctx)

	if o.store != nil {
		if err := o.store.SaveTransferRecord(ctx, rec); err != nil {
			o.logger.Error("failed to save transfer record", "folder", c.Name, "record_id", rec.ID, "error", err)
			return err
		}
	}

	if o.renderer != nil {
		paths, err := o.renderer.Render(ctx, rec)
		if err != nil {
			o.logger.Warn("failed to render transfer record", "folder", c.Name, "record_id", rec.ID, "error", err)
		}
		for _, p := range paths {
			o.logger.Debug("wrote transfer record", "folder", c.Name, "path", p)
		}
	}
	return nil
}

func (o *Orchestrator) buildRecord(c *model.FolderCandidate, outcome *model.TransferOutcome, status model.TransferStatus) *model.TransferRecord {
	finished := outcome.FinishedAt
	if finished.IsZero() {
		finished = o.now()
	}

	rec := &model.TransferRecord{
		ID:          o.newID(),
		StartedAt:   outcome.StartedAt,
		FinishedAt:  finished,
		FolderName:  c.Name,
		Source:      c.Path,
		Destination: outcome.Destination,
		EmployeeID:  c.Fields.EmployeeID,
		Dataset:     c.Fields.Dataset,
		Status:      status,
		Message:     outcome.Message,
	}
	if o.opts.Hashing {
		rec.HashAlgorithm = o.opts.HashAlgorithm
	}
	if v := c.Verdict(); v != nil {
		rec.AuditStatus = v.Status
		rec.Overridden = o.opts.Override && !v.Status.Transferable()
	} else {
		rec.Overridden = o.opts.Override
	}

	for _, f := range c.Snapshot() {
		rec.Files = append(rec.Files, model.RecordFile{
			RelativePath: f.RelativePath,
			Size:         f.Size,
			ModTime:      f.ModTime,
			Hash:         f.Hash,
		})
		rec.TotalBytes += f.Size
	}
	rec.FileCount = len(rec.Files)
	return rec
}

func (o *Orchestrator) failed(outcome *model.TransferOutcome, err error) *model.TransferOutcome {
	outcome.Success = false
	outcome.Message = err.Error()
	if !outcome.HasFatalErrors() && common.IsPermanent(err) {
		outcome.Errors = append(outcome.Errors, model.TransferError{
			Path:    outcome.Source,
			Message: err.Error(),
			Fatal:   true,
		})
	}
	outcome.FinishedAt = o.now()
	return outcome
}

func (o *Orchestrator) canceled(outcome *model.TransferOutcome) *model.TransferOutcome {
	outcome.Success = false
	outcome.Canceled = true
	outcome.Message = "transfer canceled"
	outcome.FinishedAt = o.now()
	return outcome
}

// DestinationFor returns where c would land under destinationRoot without
// creating anything.
func (o *Orchestrator) DestinationFor(c *model.FolderCandidate, destinationRoot string) (string, error) {
	return o.resolver.Resolve(filepath.Clean(destinationRoot), c.Name, o.opts.Policy)
}
