package blockchain

import (
	"errors"
	"fmt"
)

// ErrorType identifies the kind of ledger failure.
type ErrorType string

const (
	ErrorTypeEmptyChain       ErrorType = "EMPTY_CHAIN"
	ErrorTypeInvalidLinkage   ErrorType = "INVALID_LINKAGE"
	ErrorTypeInvalidProof     ErrorType = "INVALID_PROOF"
	ErrorTypeEmptyPendingPool ErrorType = "EMPTY_PENDING_POOL"
	ErrorTypeCorruptPeerChain ErrorType = "CORRUPT_PEER_CHAIN"
	ErrorTypeMalformedImport  ErrorType = "MALFORMED_IMPORT"
)

// LedgerError is returned by every rejecting ledger operation. A LedgerError
// always means the ledger was left exactly as it was before the call.
type LedgerError struct {
	Type       ErrorType `json:"errorType"`
	Message    string    `json:"message"`
	BlockIndex uint64    `json:"blockIndex,omitempty"` // 0 when no block is involved
	Details    string    `json:"details,omitempty"`
	err        error
}

// Error implements the error interface.
func (e *LedgerError) Error() string {
	if e.BlockIndex != 0 {
		return fmt.Sprintf("[%s] (block %d) %s", e.Type, e.BlockIndex, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Unwrap returns the wrapped error, for errors.Is/As.
func (e *LedgerError) Unwrap() error {
	return e.err
}

// NewError creates a new LedgerError.
func NewError(errorType ErrorType, message string) *LedgerError {
	return &LedgerError{Type: errorType, Message: message}
}

func NewErrorf(errorType ErrorType, format string, args ...interface{}) *LedgerError {
	return &LedgerError{Type: errorType, Message: fmt.Sprintf(format, args...)}
}

func (e *LedgerError) WithBlockIndex(index uint64) *LedgerError {
	e.BlockIndex = index
	return e
}

func (e *LedgerError) Wrap(err error) *LedgerError {
	e.err = err
	if e.Details == "" && err != nil {
		e.Details = err.Error()
	}
	return e
}

// IsErrorType reports whether err, or any error it wraps, is a LedgerError of type t.
func IsErrorType(err error, t ErrorType) bool {
	var le *LedgerError
	for err != nil {
		if !errors.As(err, &le) {
			return false
		}
		if le.Type == t {
			return true
		}
		err = le.err
	}
	return false
}
