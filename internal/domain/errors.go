package domain

import (
	"context"
	"errors"
)

var (
	ErrUnsupportedChain = errors.New("unsupported chain")
	ErrNotFound         = errors.New("not found")
	ErrInvalidLogArgs   = errors.New("invalid log args")
	ErrSignatureInvalid = errors.New("signature invalid")
	ErrNotAuthorized    = errors.New("not authorized")
	ErrStorageConflict  = errors.New("storage conflict")
	ErrChainUnavailable = errors.New("chain unavailable")
	ErrInvalidInput     = errors.New("invalid input")
	ErrDebateMismatch   = errors.New("debate mismatch")
)

// Retryable reports whether a caller may retry the operation later and expect
// a different outcome. Missing transactions are retryable because they may not
// be mined yet.
func Retryable(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, ErrChainUnavailable), errors.Is(err, ErrNotFound):
		return true
	case errors.Is(err, context.DeadlineExceeded):
		return true
	default:
		return false
	}
}

// Kind returns a stable, client-safe name for the error class.
func Kind(err error) string {
	switch {
	case errors.Is(err, ErrUnsupportedChain):
		return "unsupported_chain"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrInvalidLogArgs):
		return "invalid_log_args"
	case errors.Is(err, ErrSignatureInvalid):
		return "signature_invalid"
	case errors.Is(err, ErrNotAuthorized):
		return "not_authorized"
	case errors.Is(err, ErrStorageConflict):
		return "storage_conflict"
	case errors.Is(err, ErrChainUnavailable):
		return "chain_unavailable"
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, ErrDebateMismatch):
		return "debate_mismatch"
	default:
		return "internal"
	}
}
