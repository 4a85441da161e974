package tagcache

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jonwraymond/tagcache/cache"
)

// Sentinel errors. Operation errors wrap one of these with %w.
var (
	// ErrConfiguration is returned by New for a malformed or incomplete Config.
	ErrConfiguration = errors.New("tagcache: invalid configuration")

	// ErrBackendUnavailable wraps an I/O failure of the inner backend.
	ErrBackendUnavailable = errors.New("tagcache: backend unavailable")

	// ErrIndexUnavailable wraps an I/O failure of the tag index.
	ErrIndexUnavailable = errors.New("tagcache: tag index unavailable")

	// ErrUnsupported is returned when the inner backend lacks an optional capability.
	ErrUnsupported = errors.New("tagcache: operation not supported by backend")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("tagcache: closed")
)

// ConfigError reports which configuration field is invalid. It matches
// ErrConfiguration with errors.Is.
type ConfigError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ConfigError) Error() string {
	msg := "tagcache: invalid configuration: " + e.Field + ": " + e.Reason
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes both ErrConfiguration and the underlying cause.
func (e *ConfigError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrConfiguration}
	}
	return []error{ErrConfiguration, e.Err}
}

// KeyError is a per-key failure inside a sweep.
type KeyError struct {
	Key string
	Err error
}

func (e KeyError) Error() string { return fmt.Sprintf("%q: %v", e.Key, e.Err) }
func (e KeyError) Unwrap() error { return e.Err }

// SweepError aggregates the keys a tag sweep failed to remove. Keys not listed
// were removed.
type SweepError struct {
	Mode     cache.CleanMode
	Resolved int
	Failures []KeyError
}

func (e *SweepError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "tagcache: clean %s: %d of %d keys failed", e.Mode, len(e.Failures), e.Resolved)
	for i, f := range e.Failures {
		if i == 3 {
			fmt.Fprintf(&b, "; and %d more", len(e.Failures)-i)
			break
		}
		b.WriteString("; ")
		b.WriteString(f.Error())
	}
	return b.String()
}

// Unwrap returns every per-key error so errors.Is sees them all.
func (e *SweepError) Unwrap() []error {
	errs := make([]error, len(e.Failures))
	for i, f := range e.Failures {
		errs[i] = f
	}
	return errs
}

// Keys returns the keys that failed, in sweep order.
func (e *SweepError) Keys() []string {
	keys := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		keys[i] = f.Key
	}
	return keys
}

// backendError classifies an inner backend failure. Caller mistakes and
// cancellation pass through; everything else is ErrBackendUnavailable.
func backendError(op, key string, err error) error {
	if err == nil {
		return nil
	}
	where := op
	if key != "" {
		where = fmt.Sprintf("%s %q", op, key)
	}
	if errors.Is(err, cache.ErrInvalidKey) ||
		errors.Is(err, cache.ErrKeyTooLong) ||
		errors.Is(err, cache.ErrUnsupportedCleanMode) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("tagcache: %s: %w", where, err)
	}
	return fmt.Errorf("%w: %s: %w", ErrBackendUnavailable, where, err)
}

func indexError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrIndexUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", ErrIndexUnavailable, op, err)
}
