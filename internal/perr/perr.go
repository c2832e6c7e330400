// Package perr defines a pipeline error-kind taxonomy: not distinct Go
// types per kind, but one wrapped error carrying a Kind and an explicit
// retryability flag, built on plain fmt.Errorf("...: %w", err) wrapping
// rather than a typed-error library.
package perr

import (
	"errors"
	"fmt"
)

// Kind classifies a pipeline-facing failure.
type Kind string

const (
	KindNetwork  Kind = "network"  // timeout, DNS, connection reset, 5xx, 429
	KindHTTP     Kind = "http"     // 4xx other than 429
	KindParse    Kind = "parse"    // malformed payload
	KindMedia    Kind = "media"    // source buffer rejected data, decode failure
	KindKey      Kind = "key"      // DRM license/key status failure
	KindManifest Kind = "manifest" // manifest cannot be loaded or parsed
)

// Error wraps an underlying cause with a Kind and an explicit retryability
// flag (some ParseErrors are retryable once, then fatal; that state lives in
// the pipeline, not here).
type Error struct {
	Kind      Kind
	Retryable bool
	Err       error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New wraps err with the given kind and retryability.
func New(kind Kind, retryable bool, err error) *Error {
	return &Error{Kind: kind, Retryable: retryable, Err: err}
}

// Network builds a retryable NetworkError.
func Network(err error) *Error { return New(KindNetwork, true, err) }

// HTTP builds a fatal HttpError (4xx other than 429).
func HTTP(status int, err error) *Error {
	return New(KindHTTP, false, fmt.Errorf("http status %d: %w", status, err))
}

// RateLimited builds a retryable NetworkError for a 429 response.
func RateLimited(err error) *Error {
	return New(KindNetwork, true, fmt.Errorf("http status 429: %w", err))
}

// Parse builds a ParseError; callers decide first-attempt retryability —
// typically retryable once, then fatal on a repeat failure.
func Parse(retryable bool, err error) *Error {
	return New(KindParse, retryable, err)
}

// Media builds a fatal MediaError.
func Media(err error) *Error { return New(KindMedia, false, err) }

// Key builds a KeyError; fatal unless the DRM layer classifies it recoverable.
func Key(retryable bool, err error) *Error {
	return New(KindKey, retryable, err)
}

// Manifest builds a fatal ManifestError.
func Manifest(err error) *Error { return New(KindManifest, false, err) }

// IsRetryable reports whether err (or a wrapped *Error within it) is
// retryable. A plain error with no Kind is treated as non-retryable.
func IsRetryable(err error) bool {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Retryable
	}
	return false
}

// KindOf extracts the Kind from err, if any.
func KindOf(err error) (Kind, bool) {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind, true
	}
	return "", false
}
