package ledger

import (
	"errors"
	"fmt"
)

// Kind classifies a ledger rejection.
type Kind string

const (
	KindUnauthorized        Kind = "Unauthorized"
	KindInvalidTarget       Kind = "InvalidTarget"
	KindInsufficientFunds   Kind = "InsufficientFunds"
	KindInsufficientShares  Kind = "InsufficientShares"
	KindNoHolding           Kind = "NoHolding"
	KindInvalidPrice        Kind = "InvalidPrice"
	KindInternalConsistency Kind = "InternalConsistency"
)

// Error is a ledger rejection. Every Error aborts its transaction.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return "ledger: " + string(e.Kind)
	}
	return e.Message
}

// Is matches any Error of the same kind, so the package sentinels work
// with errors.Is regardless of message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

var (
	ErrUnauthorized        = &Error{Kind: KindUnauthorized}
	ErrInvalidTarget       = &Error{Kind: KindInvalidTarget}
	ErrInsufficientFunds   = &Error{Kind: KindInsufficientFunds}
	ErrInsufficientShares  = &Error{Kind: KindInsufficientShares}
	ErrNoHolding           = &Error{Kind: KindNoHolding}
	ErrInvalidPrice        = &Error{Kind: KindInvalidPrice}
	ErrInternalConsistency = &Error{Kind: KindInternalConsistency}

	// ErrInvalidAmount is returned before any transaction starts when the
	// trade amount is not positive.
	ErrInvalidAmount = errors.New("ledger: amount must be positive")
)

func rejectf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// KindOf returns the kind of a ledger error, or "" for other errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
