// Package errs implements the solver's error taxonomy: a small tagged sum of
// error kinds with a bounded cause chain, plus the revert-decoding protocol
// used to turn opaque on-chain revert data into a human-readable reason.
package errs

import (
	"github.com/cockroachdb/errors"
)

// Kind tags an error with its taxonomy classification.
type Kind string

const (
	KindTransport         Kind = "Transport"
	KindTimeout           Kind = "Timeout"
	KindNodeReverted      Kind = "NodeReverted"
	KindInsufficientFunds Kind = "InsufficientFunds"
	KindFeeCapTooLow      Kind = "FeeCapTooLow"
	KindUserRejected      Kind = "UserRejected"
	KindDecode            Kind = "Decode"
	KindCompose           Kind = "Compose"
	KindParse             Kind = "Parse"
	KindNoRoute           Kind = "NoRoute"
	KindFetch             Kind = "Fetch"
	KindInternal          Kind = "Internal"
)

// maxCauseDepth bounds cause-chain traversal so that decoding or diagnosing
// an error always terminates, even on an accidentally cyclic wrap chain.
const maxCauseDepth = 25

// SolverError is the solver's tagged error type. It wraps an underlying
// cause (built with cockroachdb/errors, which preserves a walkable chain)
// and attaches a taxonomy Kind.
type SolverError struct {
	Kind  Kind
	cause error
}

func (e *SolverError) Error() string {
	if e.cause == nil {
		return string(e.Kind)
	}
	return string(e.Kind) + ": " + e.cause.Error()
}

// Unwrap exposes the wrapped cause so stdlib errors.Is/As and
// cockroachdb/errors both work against SolverError.
func (e *SolverError) Unwrap() error { return e.cause }

// New creates a SolverError of the given kind wrapping msg.
func New(kind Kind, msg string) *SolverError {
	return &SolverError{Kind: kind, cause: errors.New(msg)}
}

// Wrap creates a SolverError of the given kind wrapping an existing error,
// attaching msg as context via cockroachdb/errors.Wrap.
func Wrap(kind Kind, err error, msg string) *SolverError {
	if err == nil {
		return nil
	}
	return &SolverError{Kind: kind, cause: errors.Wrap(err, msg)}
}

// KindOf extracts the Kind from err if it (or something in its chain) is a
// *SolverError, otherwise returns KindInternal.
func KindOf(err error) Kind {
	var se *SolverError
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindInternal
}

// CauseChain walks err's cause chain up to maxCauseDepth deep and returns a
// snapshot of each level's message, guaranteeing termination regardless of
// chain depth.
func CauseChain(err error) []string {
	chain := make([]string, 0, maxCauseDepth)
	cur := err
	for i := 0; i < maxCauseDepth && cur != nil; i++ {
		chain = append(chain, cur.Error())
		cur = errors.Unwrap(cur)
	}
	return chain
}

// knownNodeErrorKinds lists the taxonomy kinds that represent a node/chain
// originated error (as opposed to a transport-level failure), per §7's
// ContainsNodeError predicate.
var knownNodeErrorKinds = map[Kind]bool{
	KindNodeReverted:      true,
	KindInsufficientFunds: true,
	KindFeeCapTooLow:      true,
}

// ContainsNodeError reports whether err represents a node-originated error:
// a known revert/fee/funds error, or one whose JSON-RPC error code is
// execution-reverted (-32000/3, represented here by KindNodeReverted since
// the RPC transport is out of scope and normalizes codes to kinds upstream).
func ContainsNodeError(err error) bool {
	if err == nil {
		return false
	}
	return knownNodeErrorKinds[KindOf(err)]
}

// NoneNodeError is the telemetry-facing complement of ContainsNodeError,
// set as the `noneNodeError` span attribute per §7.
func NoneNodeError(err error) bool {
	return !ContainsNodeError(err)
}
