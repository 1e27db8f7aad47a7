// Package cmn provides common low-level types and utilities shared by all
// bulkcollect packages: typed errors, assertions, JSON helpers, bounded
// concurrency primitives, and retry/backoff helpers.
/*
 * Copyright (c) 2026
 */
package cmn

import (
	"errors"
	"fmt"
)

// Kind is a programmatically distinguishable error category, per the
// error-kinds table: each stage/task failure is classified into exactly
// one of these so callers can decide retry policy with errors.Is.
type Kind string

const (
	KindMatrixInvalid     Kind = "MatrixInvalid"
	KindConfigInvalid     Kind = "ConfigInvalid"
	KindToolUnavailable   Kind = "ToolUnavailable"
	KindSourceMissing     Kind = "SourceMissing"
	KindChecksumMismatch  Kind = "ChecksumMismatch"
	KindTransientError    Kind = "TransientError"
	KindPermanentError    Kind = "PermanentError"
	KindStorageError      Kind = "StorageError"
	KindCancelled         Kind = "Cancelled"
	KindIncompatibleMode  Kind = "IncompatibleMode"
)

// KindError wraps an underlying cause with a Kind so that it can be
// matched with errors.Is(err, cmn.ErrSourceMissing) etc. while still
// carrying the original diagnostic text.
type KindError struct {
	Kind  Kind
	Cause error
}

func (e *KindError) Error() string {
	if e.Cause == nil {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Cause)
}

func (e *KindError) Unwrap() error { return e.Cause }

// Is allows errors.Is(err, cmn.ErrSourceMissing) to match any KindError
// carrying the same Kind, regardless of Cause.
func (e *KindError) Is(target error) bool {
	var ke *KindError
	if errors.As(target, &ke) {
		return e.Kind == ke.Kind
	}
	return false
}

// Sentinel KindErrors, one per row of the error-kinds table. Use
// errors.Is(err, cmn.ErrTransientError) to classify.
var (
	ErrMatrixInvalid    = &KindError{Kind: KindMatrixInvalid}
	ErrConfigInvalid    = &KindError{Kind: KindConfigInvalid}
	ErrToolUnavailable  = &KindError{Kind: KindToolUnavailable}
	ErrSourceMissing    = &KindError{Kind: KindSourceMissing}
	ErrChecksumMismatch = &KindError{Kind: KindChecksumMismatch}
	ErrTransientError   = &KindError{Kind: KindTransientError}
	ErrPermanentError   = &KindError{Kind: KindPermanentError}
	ErrStorageError     = &KindError{Kind: KindStorageError}
	ErrCancelled        = &KindError{Kind: KindCancelled}
	ErrIncompatibleMode = &KindError{Kind: KindIncompatibleMode}
)

// Wrap attaches kind to cause, preserving cause for errors.Unwrap/errors.Is
// chains and for %v formatting.
func Wrap(kind Kind, cause error) error {
	if cause == nil {
		return nil
	}
	return &KindError{Kind: kind, Cause: cause}
}

// Wrapf is Wrap with an fmt.Errorf-formatted cause.
func Wrapf(kind Kind, format string, args ...interface{}) error {
	return &KindError{Kind: kind, Cause: fmt.Errorf(format, args...)}
}
