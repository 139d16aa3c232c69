// Package apperr defines the error kinds shared across the service and the
// StoreError wrapper used to attach operation context to them.
package apperr

import (
	"errors"
	"fmt"
)

// Sentinel errors, one per error kind named in the service's error handling
// design. Callers test for these with errors.Is, never by message string.
var (
	// ErrBadInput covers malformed JSON, wrong vector length, and
	// sentence/label count mismatches.
	ErrBadInput = errors.New("bad input")

	// ErrBadDimension is returned when a vector's length does not equal
	// the configured dimension D.
	ErrBadDimension = errors.New("bad dimension")

	// ErrStoreUnavailable is returned when the metadata store cannot be
	// opened or queried.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrCorrupt is returned when a cached vector fails to deserialize,
	// or a snapshot file fails to parse.
	ErrCorrupt = errors.New("corrupt data")

	// ErrNotFound is returned when a snapshot file is absent, or when a
	// payload to delete is not in the index.
	ErrNotFound = errors.New("not found")

	// ErrEmbedProvider wraps a transport, auth, or decode failure from
	// the embedding source.
	ErrEmbedProvider = errors.New("embedding provider error")

	// ErrPersist covers snapshot write/read failures.
	ErrPersist = errors.New("persist error")

	// ErrIndex covers ANN index insertion/build failures.
	ErrIndex = errors.New("index error")
)

// StoreError wraps an error with the operation name and the sentinel kind
// it maps to, so callers can both log detail (Error()) and branch on kind
// (errors.Is(err, apperr.ErrBadInput)).
type StoreError struct {
	Op   string
	Kind error
	Err  error
}

func (e *StoreError) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%v: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is(err, apperr.ErrBadInput) match a wrapped StoreError
// whose Kind or Err is that sentinel.
func (e *StoreError) Is(target error) bool {
	return errors.Is(e.Kind, target) || errors.Is(e.Err, target)
}

// Wrap attaches an operation name and error kind to err. Returns nil if err
// is nil.
func Wrap(op string, kind error, err error) error {
	if err == nil {
		return nil
	}
	return &StoreError{Op: op, Kind: kind, Err: err}
}
