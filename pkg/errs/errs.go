// Package errs defines the two error kinds that cross component boundaries
// in the coherence engine (spec §7): BackendFailure for an unreachable or
// erroring TSDB, and CacheFailure for a KV-store error. Callers use
// errors.As to distinguish them rather than matching on error strings.
package errs

import "fmt"

// BackendFailure indicates the TSDB was unreachable or returned a non-2xx /
// error-shaped response. There is no recovery at the engine layer; the
// dispatcher translates it to an HTTP 500 and the read-ahead worker logs
// and moves to the next tracked query.
type BackendFailure struct {
	Msg string
	Err error
}

func (e *BackendFailure) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("backend failure: %s: %v", e.Msg, e.Err)
	}
	return fmt.Sprintf("backend failure: %s", e.Msg)
}

func (e *BackendFailure) Unwrap() error { return e.Err }

// NewBackendFailure builds a BackendFailure wrapping cause, which may be nil.
func NewBackendFailure(msg string, cause error) *BackendFailure {
	return &BackendFailure{Msg: msg, Err: cause}
}

// CacheFailure indicates the KV-store errored on a read or write. On the
// request path this degrades the affected KQuery to a direct COLD-path
// proxy; on the read-ahead path it aborts the current pass.
type CacheFailure struct {
	Msg string
	Err error
}

func (e *CacheFailure) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("cache failure: %s: %v", e.Msg, e.Err)
	}
	return fmt.Sprintf("cache failure: %s", e.Msg)
}

func (e *CacheFailure) Unwrap() error { return e.Err }

// NewCacheFailure builds a CacheFailure wrapping cause, which may be nil.
func NewCacheFailure(msg string, cause error) *CacheFailure {
	return &CacheFailure{Msg: msg, Err: cause}
}
