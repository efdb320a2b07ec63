package booking

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"cinebook/internal/models"
)

// RetryPayment opens a fresh payment session for a PENDING booking whose
// previous session lapsed. The seats stay claimed; only the retry counter
// and the payment session change. Capped at MaxPaymentRetries attempts.
func (s *Service) RetryPayment(ctx context.Context, userID, bookingID string) (*models.PaymentRequest, error) {
	booking, err := s.DB.GetBookingByID(ctx, bookingID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrBookingNotFound
	}
	if err != nil {
		return nil, &PersistenceError{Op: "load booking", Err: err}
	}

	if booking.UserID != userID {
		return nil, ErrUnauthorized
	}
	switch booking.Status {
	case models.BookingConfirmed:
		return nil, ErrAlreadyPaid
	case models.BookingCancelled:
		return nil, ErrAlreadyCancelled
	case models.BookingFailed:
		return nil, ErrAlreadyTerminal
	}

	ok, err := s.DB.IncrementRetryCount(ctx, bookingID, s.cfg.MaxPaymentRetries)
	if err != nil {
		return nil, &PersistenceError{Op: "count payment retry", Err: err}
	}
	if !ok {
		return nil, ErrRetryLimitReached
	}

	show, err := s.DB.GetShow(ctx, booking.ShowID)
	if err != nil {
		return nil, &PersistenceError{Op: "load show", Err: err}
	}

	now := s.now()
	expiresAt := now.Add(s.cfg.PaymentTimeout)
	session, err := s.Payments.CreateCheckoutSession(ctx, CheckoutRequest{
		BookingID:   booking.ID,
		Amount:      booking.Amount,
		Currency:    s.pricingCfg.Currency,
		Description: show.MovieTitle,
		ExpiresAt:   expiresAt,
	})
	if err != nil {
		return nil, fmt.Errorf("create payment session: %w", err)
	}

	if err := s.DB.SetPaymentSession(ctx, booking.ID, session.ID, session.URL); err != nil {
		s.logger.Error("BOOKING", fmt.Sprintf("failed to store retried payment session for booking %s: %v", booking.ID, err))
	}

	if s.scheduler != nil {
		s.scheduler.SchedulePaymentCheck(booking.ID, expiresAt)
	}

	s.logger.LogPayment("RETRY", bookingID, fmt.Sprintf("new session for booking %s, attempt %d of %d",
		booking.Reference, booking.PaymentRetryCount+1, s.cfg.MaxPaymentRetries))

	return &models.PaymentRequest{
		BookingID:  booking.ID,
		Reference:  booking.Reference,
		Amount:     booking.Amount,
		Currency:   s.pricingCfg.Currency,
		PaymentURL: session.URL,
		SessionRef: session.ID,
		ExpiresAt:  expiresAt,
	}, nil
}
