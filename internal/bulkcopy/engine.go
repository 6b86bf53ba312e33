package bulkcopy

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Veraticus/courier/internal/common"
	"github.com/Veraticus/courier/internal/model"
	"github.com/Veraticus/courier/internal/progress"
)

const eventBuffer = 256

// ErrorObserver is told about every per-file error as it happens.
type ErrorObserver func(model.TransferError)

// Option configures an Engine.
type Option func(*Engine)

// WithErrorObserver registers a callback for errors reported mid-run.
func WithErrorObserver(fn ErrorObserver) Option {
	return func(e *Engine) { e.onError = fn }
}

// WithClock replaces the time source used for outcome timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithProgressOptions passes options to every estimator the engine creates.
func WithProgressOptions(opts ...progress.Option) Option {
	return func(e *Engine) { e.progressOpts = append(e.progressOpts, opts...) }
}

// Engine runs one mechanism invocation per call and turns its result into a
// TransferOutcome.
type Engine struct {
	mech         Mechanism
	logger       *slog.Logger
	onError      ErrorObserver
	now          func() time.Time
	progressOpts []progress.Option
}

// NewEngine creates an engine around mech.
func NewEngine(mech Mechanism, logger *slog.Logger, opts ...Option) *Engine {
	e := &Engine{
		mech:   mech,
		logger: common.LoggerOrDefault(logger),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Mechanism returns the wrapped mechanism.
func (e *Engine) Mechanism() Mechanism { return e.mech }

// TransferFolder copies source into destination in a single attempt.
//
// The returned error is permanent for a missing source or a fatal exit status,
// retryable for a partial failure, and the bare context error on cancellation.
func (e *Engine) TransferFolder(ctx context.Context, source, destination string, cfg model.CopyConfiguration, sink progress.Sink) (*model.TransferOutcome, error) {
	outcome := &model.TransferOutcome{
		StartedAt:   e.now(),
		Source:      source,
		Destination: destination,
	}

	if err := checkSource(source); err != nil {
		return e.fail(outcome, err.Error(), ExitFatal), common.Permanent(err)
	}

	// Retries belong to the caller, never to the mechanism.
	cfg = cfg.Clone()
	cfg.RetryCount = 0
	cfg.RetryWait = 0
	cfg.ListOnly = false

	totals := e.totals(ctx, source, destination, cfg)
	if err := ctx.Err(); err != nil {
		return e.canceled(outcome), err
	}

	estimator := progress.NewEstimator(sink, e.progressOpts...)
	estimator.Start(totals.Files, totals.Bytes)

	events := make(chan Event, eventBuffer)
	var fileErrors []model.TransferError
	consumed := make(chan struct{})
	go func() {
		defer close(consumed)
		for ev := range events {
			switch ev.Kind {
			case EventFileCopied:
				estimator.FileCopied(ev.Path, ev.Size)
			case EventFileSkipped:
				estimator.SetCurrentFile(ev.Path)
			case EventError:
				te := model.TransferError{
					Path:        ev.Path,
					Message:     ev.Message,
					Code:        ev.Code,
					Fatal:       ev.Code&ExitFatal != 0,
					Recoverable: ev.Code&ExitFatal == 0,
				}
				fileErrors = append(fileErrors, te)
				if e.onError != nil {
					e.onError(te)
				}
			}
		}
	}()

	runDone := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			if err := e.mech.Stop(); err != nil {
				e.logger.Warn("failed to stop copy mechanism", "mechanism", e.mech.Name(), "error", err)
			}
		case <-runDone:
		}
	}()

	e.logger.Info("starting bulk copy",
		"mechanism", e.mech.Name(),
		"source", source,
		"destination", destination,
		"files", totals.Files,
		"bytes", totals.Bytes)

	result, runErr := e.mech.Run(ctx, source, destination, cfg, events)
	close(runDone)
	close(events)
	<-consumed

	outcome.Errors = fileErrors
	outcome.Counts = result.Counts
	if outcome.Counts.BytesTotal == 0 {
		outcome.Counts.BytesTotal = totals.Bytes
	}

	if ctx.Err() != nil || common.IsCanceled(runErr) {
		err := ctx.Err()
		if err == nil {
			err = runErr
		}
		return e.canceled(outcome), err
	}
	if runErr != nil {
		return e.fail(outcome, runErr.Error(), ExitFatal), runErr
	}

	status := DecodeExitCode(result.ExitCode)
	outcome.ExitCode = result.ExitCode
	outcome.Errors = append(outcome.Errors, status.Errors()...)
	outcome.Success = status.Success()
	outcome.Message = status.Summary()
	outcome.FinishedAt = e.now()

	switch {
	case outcome.Success:
		estimator.Complete()
		e.logger.Info("bulk copy finished",
			"files_copied", outcome.Counts.FilesCopied,
			"bytes_copied", outcome.Counts.BytesCopied,
			"duration", outcome.Duration())
		return outcome, nil
	case status.Fatal():
		return outcome, common.Permanent(fmt.Errorf("%w: exit code %d: %s", common.ErrFatalCopy, result.ExitCode, outcome.Message))
	case status.Recoverable():
		return outcome, fmt.Errorf("%w: exit code %d: %s", common.ErrPartialCopy, result.ExitCode, outcome.Message)
	default:
		return outcome, common.Permanent(fmt.Errorf("copy incomplete: exit code %d: %s", result.ExitCode, outcome.Message))
	}
}

// EstimateOnly reports what a copy of source would move without writing anything.
func (e *Engine) EstimateOnly(ctx context.Context, source string, cfg model.CopyConfiguration) (*model.TransferOutcome, error) {
	outcome := &model.TransferOutcome{StartedAt: e.now(), Source: source}
	if err := checkSource(source); err != nil {
		return e.fail(outcome, err.Error(), ExitFatal), common.Permanent(err)
	}

	cfg = cfg.Clone()
	cfg.ListOnly = true
	totals := e.totals(ctx, source, "", cfg)
	if err := ctx.Err(); err != nil {
		return e.canceled(outcome), err
	}

	outcome.Counts = model.TransferCounts{
		DirsScanned:  totals.Dirs,
		FilesScanned: totals.Files,
		BytesTotal:   totals.Bytes,
	}
	outcome.Success = true
	outcome.Message = fmt.Sprintf("%d files, %d bytes", totals.Files, totals.Bytes)
	outcome.FinishedAt = e.now()
	return outcome, nil
}

// TransferFiles copies only the listed files, given absolute or relative to sourceRoot.
// Names are matched literally, never as wildcard patterns.
func (e *Engine) TransferFiles(ctx context.Context, files []string, sourceRoot, destination string, cfg model.CopyConfiguration, sink progress.Sink) (*model.TransferOutcome, error) {
	if len(files) == 0 {
		now := e.now()
		return &model.TransferOutcome{
			StartedAt:   now,
			FinishedAt:  now,
			Source:      sourceRoot,
			Destination: destination,
			Success:     true,
			Message:     "no files selected",
		}, nil
	}

	include := make([]string, 0, len(files))
	for _, f := range files {
		rel := f
		if filepath.IsAbs(f) {
			var err error
			if rel, err = filepath.Rel(sourceRoot, f); err != nil {
				return nil, common.Permanent(fmt.Errorf("file %s: %w", f, err))
			}
		}
		rel = filepath.ToSlash(filepath.Clean(rel))
		if rel == ".." || strings.HasPrefix(rel, "../") {
			return nil, common.Permanent(fmt.Errorf("file %s is outside %s", f, sourceRoot))
		}
		include = append(include, rel)
	}

	cfg = cfg.Clone()
	cfg.IncludeFiles = nil
	cfg.IncludePaths = include
	return e.TransferFolder(ctx, sourceRoot, destination, cfg, sink)
}

// totals asks the mechanism for a dry run and falls back to walking the source.
func (e *Engine) totals(ctx context.Context, source, destination string, cfg model.CopyConfiguration) Totals {
	listCfg := cfg.Clone()
	listCfg.ListOnly = true

	totals, err := e.mech.List(ctx, source, destination, listCfg)
	if err == nil {
		return totals
	}
	if common.IsCanceled(err) {
		return Totals{}
	}
	e.logger.Warn("dry run failed, counting source files instead", "source", source, "error", err)

	dirs, files, err := walkSource(ctx, source, cfg)
	if err != nil {
		e.logger.Warn("could not count source files", "source", source, "error", err)
		return Totals{}
	}
	totals = Totals{Files: len(files), Dirs: len(dirs)}
	for _, f := range files {
		totals.Bytes += f.info.Size()
	}
	return totals
}

func (e *Engine) fail(outcome *model.TransferOutcome, msg string, code int) *model.TransferOutcome {
	outcome.Success = false
	outcome.Message = msg
	outcome.ExitCode = code
	outcome.Errors = append(outcome.Errors, model.TransferError{
		Path:    outcome.Source,
		Message: msg,
		Code:    code,
		Fatal:   code&ExitFatal != 0,
	})
	outcome.FinishedAt = e.now()
	return outcome
}

func (e *Engine) canceled(outcome *model.TransferOutcome) *model.TransferOutcome {
	outcome.Success = false
	outcome.Canceled = true
	outcome.Message = "transfer canceled"
	outcome.FinishedAt = e.now()
	return outcome
}

func checkSource(source string) error {
	info, err := os.Stat(source)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("%w: %s", common.ErrSourceMissing, source)
	case err != nil:
		return fmt.Errorf("stat source %s: %w", source, err)
	case !info.IsDir():
		return fmt.Errorf("%w: %s is not a directory", common.ErrSourceMissing, source)
	}
	return nil
}
