package model

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrBinaryNotFound   = errors.New("scanner binary not found")
	ErrTemplatesMissing = errors.New("scanner templates missing")
)

// ScanErrorKind classifies a failed scan attempt.
type ScanErrorKind string

const (
	ScanBinaryNotFound   ScanErrorKind = "binary_not_found"
	ScanTemplatesMissing ScanErrorKind = "templates_missing"
	ScanTimeout          ScanErrorKind = "timeout"
	ScanNonZeroExit      ScanErrorKind = "non_zero_exit"
	ScanParseFailure     ScanErrorKind = "parse_failure"
)

// ScanError is a failed invocation of the external scanner for one target.
type ScanError struct {
	Kind      ScanErrorKind
	Target    Target
	ExitCode  int // set for ScanNonZeroExit
	Malformed int // set for ScanParseFailure
	Err       error
}

func (e *ScanError) Error() string {
	msg := fmt.Sprintf("scan %s: %s", e.Target, e.Kind)
	switch e.Kind {
	case ScanNonZeroExit:
		msg = fmt.Sprintf("%s (code %d)", msg, e.ExitCode)
	case ScanParseFailure:
		msg = fmt.Sprintf("%s (%d malformed lines)", msg, e.Malformed)
	}
	if e.Err != nil {
		msg = msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *ScanError) Unwrap() error {
	return e.Err
}

// Retryable reports whether another attempt against the same target can
// succeed. Missing binary or templates are run-wide setup failures.
func (e *ScanError) Retryable() bool {
	switch e.Kind {
	case ScanBinaryNotFound, ScanTemplatesMissing:
		return false
	default:
		return true
	}
}

// SynthesisErrorKind classifies a failed summarization call.
type SynthesisErrorKind string

const (
	SynthesisTransientUpstream SynthesisErrorKind = "transient_upstream"
	SynthesisAuthFailure       SynthesisErrorKind = "auth_failure"
	SynthesisInvalidResponse   SynthesisErrorKind = "invalid_response"
	SynthesisPayloadTooLarge   SynthesisErrorKind = "payload_too_large"
)

// SynthesisError is a failed call to the remote summarization service.
type SynthesisError struct {
	Kind       SynthesisErrorKind
	Target     Target
	StatusCode int
	Err        error
}

func (e *SynthesisError) Error() string {
	msg := fmt.Sprintf("synthesis %s: %s", e.Target, e.Kind)
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.StatusCode)
	}
	if e.Err != nil {
		msg = msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *SynthesisError) Unwrap() error {
	return e.Err
}

func (e *SynthesisError) Retryable() bool {
	return e.Kind == SynthesisTransientUpstream
}

// SetupError aborts the whole run before any job is scheduled.
type SetupError struct {
	Reason string
	Err    error
}

func (e *SetupError) Error() string {
	if e.Err != nil {
		return "setup: " + e.Reason + ": " + e.Err.Error()
	}
	return "setup: " + e.Reason
}

func (e *SetupError) Unwrap() error {
	return e.Err
}

// AssemblyError means the final report could not be written at all.
// Artifacts produced earlier in the run are left in place.
type AssemblyError struct {
	Err error
}

func (e *AssemblyError) Error() string {
	return "assembling report: " + e.Err.Error()
}

func (e *AssemblyError) Unwrap() error {
	return e.Err
}

// RenderError means the external renderer failed. The Markdown source is
// retained, so this never invalidates the run artifacts.
type RenderError struct {
	MarkdownPath string
	Err          error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("rendering %s: %v", e.MarkdownPath, e.Err)
}

func (e *RenderError) Unwrap() error {
	return e.Err
}

// ErrorKind extracts the classification string of a scan or synthesis
// error for reporting. A bare context error means the run was cancelled
// before the unit of work got a classified failure. Unclassified errors
// report as "internal".
func ErrorKind(err error) string {
	var scanErr *ScanError
	if errors.As(err, &scanErr) {
		return string(scanErr.Kind)
	}
	var synthErr *SynthesisError
	if errors.As(err, &synthErr) {
		return string(synthErr.Kind)
	}
	var setupErr *SetupError
	if errors.As(err, &setupErr) {
		return "setup"
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return "cancelled"
	}
	if err != nil {
		return "internal"
	}
	return ""
}
