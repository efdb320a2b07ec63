package booking

import (
	"context"
	"fmt"
	"sync"
	"time"

	"cinebook/internal/logger"
)

// RecoverPendingTimeouts re-arms the payment timeout for every PENDING
// booking, called once at startup. Bookings whose window already elapsed
// get an immediate check.
func (s *Service) RecoverPendingTimeouts(ctx context.Context) error {
	if s.scheduler == nil {
		return nil
	}
	pending, err := s.DB.ListPendingBookings(ctx)
	if err != nil {
		return &PersistenceError{Op: "list pending bookings", Err: err}
	}
	for _, b := range pending {
		s.scheduler.SchedulePaymentCheck(b.ID, b.CreatedAt.Add(s.cfg.PaymentTimeout))
	}
	if len(pending) > 0 {
		s.logger.Info("SCHEDULER", fmt.Sprintf("re-armed payment timeout for %d pending booking(s)", len(pending)))
	}
	return nil
}

// OutcomeHandler is the callback side of the payment timeout.
type OutcomeHandler interface {
	OnPaymentTimeoutOrFailure(ctx context.Context, bookingID string) error
}

// TimerScheduler runs payment-timeout checks on in-process timers. The
// handler no-ops on already-terminal bookings, so a timer firing after the
// payment outcome arrived is harmless. Rescheduling a booking replaces its
// pending timer.
type TimerScheduler struct {
	mu      sync.Mutex
	timers  map[string]*time.Timer
	handler OutcomeHandler
	log     *logger.Logger
}

func NewTimerScheduler(handler OutcomeHandler, log *logger.Logger) *TimerScheduler {
	return &TimerScheduler{
		timers:  make(map[string]*time.Timer),
		handler: handler,
		log:     log,
	}
}

func (t *TimerScheduler) SchedulePaymentCheck(bookingID string, at time.Time) {
	d := time.Until(at)
	if d < 0 {
		d = 0
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if existing, ok := t.timers[bookingID]; ok {
		existing.Stop()
	}
	t.timers[bookingID] = time.AfterFunc(d, func() {
		t.mu.Lock()
		delete(t.timers, bookingID)
		t.mu.Unlock()

		if err := t.handler.OnPaymentTimeoutOrFailure(context.Background(), bookingID); err != nil {
			t.log.Error("SCHEDULER", fmt.Sprintf("payment timeout check for booking %s: %v", bookingID, err))
		}
	})
}

// len is for tests.
func (t *TimerScheduler) len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.timers)
}

// Stop cancels all pending checks. Used on shutdown; the checks run again
// from persisted state when the service restarts.
func (t *TimerScheduler) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for id, timer := range t.timers {
		timer.Stop()
		delete(t.timers, id)
	}
}
