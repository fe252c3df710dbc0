// Package ragerr defines the typed error kinds shared across the engine.
//
// Per the design notes, sum types replace the stringly-typed error cases
// of the source implementation. Retrieval, ranking, bandit, and reranker
// code paths never return a *ragerr.Error to their callers — they log and
// fall back to a safe default. On the answer path, only llmbinding
// failures and coordinator deadline expiry surface as *ragerr.Error;
// outside it, pipeline.PresetParams reports an unknown preset name as a
// NotFound *ragerr.Error.
package ragerr

import (
	"errors"
	"fmt"
)

// Kind enumerates the categories of error the engine surfaces to callers.
type Kind int

const (
	// Config indicates an invalid parameter range, e.g. mmr_lambda outside [0,1].
	Config Kind = iota
	// NotFound indicates a missing model id or unknown arm id.
	NotFound
	// Unavailable indicates the LLM binding cannot load or was cancelled.
	Unavailable
	// Timeout indicates a coordinator deadline was exceeded.
	Timeout
	// Corrupt indicates malformed persisted data (row/column mismatches, dimension mismatches).
	Corrupt
	// Internal indicates an unexpected invariant violation.
	Internal
)

// String renders the kind for logging and error messages.
func (k Kind) String() string {
	switch k {
	case Config:
		return "config"
	case NotFound:
		return "not_found"
	case Unavailable:
		return "unavailable"
	case Timeout:
		return "timeout"
	case Corrupt:
		return "corrupt"
	case Internal:
		return "internal"
	default:
		return "unknown"
	}
}

// Error is the typed error value returned across package boundaries.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target shares this error's Kind, allowing callers to
// write errors.Is(err, ragerr.Timeout) style checks via a sentinel built
// with New(kind, "", nil).
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return e.Kind == other.Kind
	}
	return false
}

// New builds an *Error for op with the given kind, wrapping cause (which may be nil).
func New(kind Kind, op string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Err: cause}
}

// Sentinel returns a comparable *Error for use with errors.Is checks, e.g.
//
//	if errors.Is(err, ragerr.Sentinel(ragerr.Timeout)) { ... }
func Sentinel(kind Kind) error {
	return &Error{Kind: kind}
}
