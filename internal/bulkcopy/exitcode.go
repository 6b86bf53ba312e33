package bulkcopy

import (
	"strings"

	"github.com/Veraticus/courier/internal/model"
)

// Exit status bits reported by the bulk-copy mechanism.
const (
	ExitNoChange   = 0
	ExitCopied     = 1
	ExitExtra      = 2
	ExitMismatched = 4
	ExitFailed     = 8
	ExitFatal      = 16

	maxKnownExitCode = ExitFatal | ExitFailed | ExitMismatched | ExitExtra | ExitCopied
)

// ExitFlag describes one bit of the exit status.
type ExitFlag struct {
	Meaning     string
	Bit         int
	Fatal       bool
	Recoverable bool
}

var exitFlags = []ExitFlag{
	{Bit: ExitFatal, Meaning: "Fatal error, no files were copied", Fatal: true},
	{Bit: ExitFailed, Meaning: "Some files or directories could not be copied", Recoverable: true},
	{Bit: ExitMismatched, Meaning: "Mismatched files or directories were detected"},
	{Bit: ExitExtra, Meaning: "Extra files or directories exist at the destination"},
	{Bit: ExitCopied, Meaning: "Files were copied successfully"},
}

// ExitStatus is the decoded form of an exit code.
type ExitStatus struct {
	Flags   []ExitFlag
	Code    int
	Unknown bool
}

// DecodeExitCode maps an exit code to the flags it carries.
func DecodeExitCode(code int) ExitStatus {
	status := ExitStatus{Code: code}

	switch {
	case code == ExitNoChange:
		status.Flags = []ExitFlag{{Bit: ExitNoChange, Meaning: "No files were copied, source and destination are in sync"}}
	case code < 0 || code > maxKnownExitCode:
		status.Unknown = true
		status.Flags = []ExitFlag{{Bit: code, Meaning: "Unknown exit code", Recoverable: true}}
	default:
		for _, f := range exitFlags {
			if code&f.Bit != 0 {
				status.Flags = append(status.Flags, f)
			}
		}
	}
	return status
}

// Success reports whether the exit code means the copy completed cleanly.
func (s ExitStatus) Success() bool {
	return s.Code >= 0 && s.Code <= ExitCopied
}

// Fatal reports whether the fatal bit is set.
func (s ExitStatus) Fatal() bool {
	for _, f := range s.Flags {
		if f.Fatal {
			return true
		}
	}
	return false
}

// Recoverable reports whether retrying the copy may help.
func (s ExitStatus) Recoverable() bool {
	if s.Fatal() {
		return false
	}
	for _, f := range s.Flags {
		if f.Recoverable {
			return true
		}
	}
	return false
}

// Summary joins the meaning of every flag.
func (s ExitStatus) Summary() string {
	meanings := make([]string, 0, len(s.Flags))
	for _, f := range s.Flags {
		meanings = append(meanings, f.Meaning)
	}
	return strings.Join(meanings, "; ")
}

// Errors returns the outcome error entries for codes of 8 and above.
func (s ExitStatus) Errors() []model.TransferError {
	if s.Code >= 0 && s.Code < ExitFailed {
		return nil
	}

	var errs []model.TransferError
	for _, f := range s.Flags {
		if f.Fatal || f.Recoverable {
			errs = append(errs, model.TransferError{
				Code:        s.Code,
				Message:     f.Meaning,
				Fatal:       f.Fatal,
				Recoverable: f.Recoverable,
			})
		}
	}
	return errs
}
