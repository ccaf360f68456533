// Package errors provides error handling for Persona.
//
// This package re-exports github.com/cockroachdb/errors, providing:
//   - Stack traces for debugging
//   - Error wrapping and context
//   - PII-safe error formatting
//
// Usage:
//
//	// Create new error
//	err := errors.New("something went wrong")
//
//	// Wrap with context
//	if err := doSomething(); err != nil {
//	    return errors.Wrap(err, "failed to do something")
//	}
//
//	// Check errors
//	if errors.Is(err, errors.ErrNotFound) {
//	    // handle not found
//	}
//
// For full documentation see: https://pkg.go.dev/github.com/cockroachdb/errors
package errors

import (
	crdb "github.com/cockroachdb/errors"
)

// Core error creation and wrapping
var (
	New          = crdb.New
	Newf         = crdb.Newf
	Wrap         = crdb.Wrap
	Wrapf        = crdb.Wrapf
	WithStack    = crdb.WithStack
	WithMessage  = crdb.WithMessage
	WithMessagef = crdb.WithMessagef
)

// User-facing messages and details
var (
	WithHint    = crdb.WithHint
	WithHintf   = crdb.WithHintf
	WithDetail  = crdb.WithDetail
	WithDetailf = crdb.WithDetailf
)

// Error inspection
var (
	Is        = crdb.Is
	IsAny     = crdb.IsAny
	As        = crdb.As
	Unwrap    = crdb.Unwrap
	UnwrapAll = crdb.UnwrapAll
)

// Sentinel errors for the Persona claim engine.
// Use these with errors.Is() for type-safe error checking.
// Wrap these with errors.Wrap() to add context while preserving the type.
var (
	// ErrNotFound indicates a claim, tag, context, entity, or conflict set
	// does not exist
	ErrNotFound = New("not found")

	// ErrCycle indicates a hierarchy parent change would create a cycle
	ErrCycle = New("hierarchy cycle")

	// ErrConflictSize indicates a conflict set was given fewer than two claims
	ErrConflictSize = New("conflict set requires at least two claims")

	// ErrDuplicateFriendlyID indicates a friendly id collision on insert
	ErrDuplicateFriendlyID = New("duplicate friendly id")

	// ErrStrategyUnavailable indicates a search strategy's dependency is
	// disabled or misconfigured; the strategy is skipped, search continues
	ErrStrategyUnavailable = New("search strategy unavailable")

	// ErrStrategyTimeout indicates a search strategy exceeded its deadline;
	// handled the same way as ErrStrategyUnavailable
	ErrStrategyTimeout = New("search strategy timed out")
)

// IsNotFound checks if an error is or wraps ErrNotFound.
func IsNotFound(err error) bool {
	return err != nil && Is(err, ErrNotFound)
}

// IsCycle checks if an error is or wraps ErrCycle.
func IsCycle(err error) bool {
	return err != nil && Is(err, ErrCycle)
}
