package shared

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net"
)

var (
	// Configuration errors
	ErrMissingConfig      = fmt.Errorf("configuration not found")
	ErrInvalidConfig      = fmt.Errorf("invalid configuration")
	ErrMissingCredentials = fmt.Errorf("missing credentials")

	// Authentication errors
	ErrAuthFailed = fmt.Errorf("authentication failed")
	ErrTimeout    = fmt.Errorf("operation timed out")

	// Provider and capability errors
	ErrTransient        = fmt.Errorf("transient failure")
	ErrTrackNotFound    = fmt.Errorf("track not found")
	ErrNoMatch          = fmt.Errorf("no candidate within duration tolerance")
	ErrFilesystem       = fmt.Errorf("filesystem error")
	ErrCheckpointLocked = fmt.Errorf("checkpoint is locked by another process")

	// Input validation errors
	ErrInvalidInput    = fmt.Errorf("invalid input")
	ErrDuplicateRow    = fmt.Errorf("duplicate track identity")
	ErrMissingArgument = fmt.Errorf("missing required argument")

	// ErrIncomplete reports that a stage returned with rows still pending.
	ErrIncomplete = fmt.Errorf("rows remain unprocessed")
)

// ErrorKind is the classification a stage uses to decide how to treat a failure.
type ErrorKind int

const (
	KindFatal ErrorKind = iota
	KindTransient
	KindNotFound
	KindAuth
	KindValidation
	KindFilesystem
)

func (k ErrorKind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindNotFound:
		return "not_found"
	case KindAuth:
		return "auth"
	case KindValidation:
		return "validation"
	case KindFilesystem:
		return "filesystem"
	default:
		return "fatal"
	}
}

// Retryable reports whether an error of this kind may succeed on a later attempt.
func (k ErrorKind) Retryable() bool {
	return k == KindTransient || k == KindFilesystem
}

// Classify maps an error onto the pipeline error taxonomy.
//
// Timeouts, including context deadlines, are transient. A cancelled parent
// context is fatal so the caller stops instead of retrying.
func Classify(err error) ErrorKind {
	if err == nil {
		return KindFatal
	}

	switch {
	case errors.Is(err, ErrAuthFailed), errors.Is(err, ErrMissingCredentials):
		return KindAuth
	case errors.Is(err, ErrTrackNotFound), errors.Is(err, ErrNoMatch):
		return KindNotFound
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrInvalidConfig), errors.Is(err, ErrDuplicateRow):
		return KindValidation
	case errors.Is(err, ErrTransient), errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return KindTransient
	case errors.Is(err, ErrFilesystem), errors.Is(err, fs.ErrPermission):
		return KindFilesystem
	case errors.Is(err, context.Canceled):
		return KindFatal
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return KindTransient
	}
	return KindFatal
}
