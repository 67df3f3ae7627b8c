package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound          = errors.New("booking not found")
	ErrUserNotFound      = errors.New("user not found")
	ErrUnauthorized      = errors.New("not allowed for this requester")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrTransientStorage  = errors.New("temporary storage failure")
	ErrInvalidRequest    = errors.New("invalid booking request")
)

// ErrStaleStatus marks the losing side of two concurrent transitions: the
// conditional update found a different persisted status than expected.
// Matches ErrInvalidTransition under errors.Is; safe to retry after re-read.
var ErrStaleStatus = fmt.Errorf("%w: booking status changed concurrently", ErrInvalidTransition)

// ErrPrecondition is the match target for every PreconditionError.
var ErrPrecondition = errors.New("precondition failed")

// Precondition sub-reasons, surfaced verbatim to clients so UIs can explain
// the rejection.
const (
	ReasonTooFar               = "too far from required location"
	ReasonLocationUnavailable  = "location unavailable"
	ReasonInsufficientEvidence = "insufficient pre-pickup evidence"
	ReasonPaymentPending       = "payment pending"
	ReasonOtpWrong             = "wrong delivery code"
	ReasonOtpExpired           = "delivery code expired"
	ReasonOtpLocked            = "delivery code locked after too many attempts"
	ReasonOtpConsumed          = "delivery code already used"
	ReasonOtpMissing           = "no delivery code issued"
)

type PreconditionError struct {
	Reason string
}

func (e *PreconditionError) Error() string {
	return "precondition failed: " + e.Reason
}

func (e *PreconditionError) Is(target error) bool {
	return target == ErrPrecondition
}

func Precondition(reason string) error {
	return &PreconditionError{Reason: reason}
}
