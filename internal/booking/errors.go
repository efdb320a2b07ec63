package booking

import (
	"errors"
	"fmt"
	"strings"

	"cinebook/internal/models"
)

var (
	ErrNoSeats           = errors.New("no seats requested")
	ErrTooManySeats      = errors.New("requested seats exceed the per-booking cap")
	ErrBookingNotFound   = errors.New("booking not found")
	ErrShowNotFound      = errors.New("show not found")
	ErrUnauthorized      = errors.New("booking does not belong to the caller")
	ErrAlreadyCancelled  = errors.New("booking is already cancelled")
	ErrAlreadyTerminal   = errors.New("booking is already in a terminal state")
	ErrAlreadyPaid       = errors.New("booking is already paid")
	ErrShowStarted       = errors.New("show has already started")
	ErrRetryLimitReached = errors.New("payment retry limit reached")
)

// SeatsUnavailableError surfaces a ledger conflict to the caller: one or
// more seats were taken between the UI's last read and the claim. The user
// re-selects; the service never retries onto different seats.
type SeatsUnavailableError struct {
	Seats []string
}

func (e *SeatsUnavailableError) Error() string {
	return fmt.Sprintf("seats no longer available: %s", strings.Join(e.Seats, ", "))
}

// PersistenceError wraps a storage failure that occurred after seats were
// claimed. By the time the caller sees it, the compensating seat release
// has already run.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("storage failure during %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// LatePaymentError records a payment success that arrived after the
// booking had already gone terminal and its seats were released. The
// money was taken; confirming would double-sell, so the handler raises an
// operational alert and a refund has to follow.
type LatePaymentError struct {
	BookingID string
	Status    models.BookingStatus
}

func (e *LatePaymentError) Error() string {
	return fmt.Sprintf("payment succeeded for booking %s already in state %s; refund required", e.BookingID, e.Status)
}
