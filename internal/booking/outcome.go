package booking

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"

	"cinebook/internal/models"
)

// OnPaymentSucceeded moves a PENDING booking to CONFIRMED. It is safe to
// call any number of times for the same booking: only the first call flips
// the status and awards loyalty points, duplicates are no-ops. A success
// arriving after the booking already timed out or was cancelled is an
// operational incident, surfaced as LatePaymentError.
func (s *Service) OnPaymentSucceeded(ctx context.Context, bookingID string) error {
	booking, err := s.DB.GetBookingByID(ctx, bookingID)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrBookingNotFound
	}
	if err != nil {
		return &PersistenceError{Op: "load booking", Err: err}
	}

	if booking.Status == models.BookingConfirmed {
		s.logger.LogPayment("SUCCESS", bookingID, "duplicate success notification, already confirmed")
		return nil
	}
	if booking.Status.Terminal() {
		return s.latePayment(booking)
	}

	confirmed, err := s.DB.MarkConfirmed(ctx, bookingID)
	if err != nil {
		return &PersistenceError{Op: "confirm booking", Err: err}
	}
	if !confirmed {
		// Lost the race. Re-read to tell duplicate-success from conflict.
		booking, err = s.DB.GetBookingByID(ctx, bookingID)
		if err != nil {
			return &PersistenceError{Op: "reload booking", Err: err}
		}
		if booking.Status == models.BookingConfirmed {
			return nil
		}
		return s.latePayment(booking)
	}
	booking.Status = models.BookingConfirmed

	s.awardPoints(ctx, booking)

	s.publish("booking.confirmed", booking, 0)
	s.logger.LogPayment("SUCCESS", bookingID, fmt.Sprintf("booking %s confirmed, %.2f charged", booking.Reference, booking.Amount))
	return nil
}

// OnPaymentTimeoutOrFailure moves a PENDING booking to FAILED and frees its
// seats. Bookings already CONFIRMED or otherwise terminal are left alone, so
// a stale timeout firing after a success changes nothing.
func (s *Service) OnPaymentTimeoutOrFailure(ctx context.Context, bookingID string) error {
	booking, err := s.DB.GetBookingByID(ctx, bookingID)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrBookingNotFound
	}
	if err != nil {
		return &PersistenceError{Op: "load booking", Err: err}
	}

	failed, err := s.DB.MarkFailedIfPending(ctx, bookingID)
	if err != nil {
		return &PersistenceError{Op: "fail booking", Err: err}
	}
	if !failed {
		s.logger.LogPayment("TIMEOUT", bookingID, fmt.Sprintf("ignored, booking is %s", booking.Status))
		return nil
	}
	booking.Status = models.BookingFailed

	if err := s.releaseBookingSeats(ctx, booking); err != nil {
		return err
	}

	if booking.LoyaltyPointsUsed > 0 {
		if err := s.DB.AdjustLoyalty(ctx, booking.UserID, booking.LoyaltyPointsUsed, 0); err != nil {
			s.logger.Error("BOOKING", fmt.Sprintf("failed to restore %d loyalty points to %s after payment failure: %v",
				booking.LoyaltyPointsUsed, booking.UserID, err))
		}
	}

	s.publish("booking.failed", booking, 0)
	s.logger.LogPayment("TIMEOUT", bookingID, fmt.Sprintf("booking %s failed, seats released", booking.Reference))
	return nil
}

// awardPoints credits earned loyalty points exactly once, piggybacking on
// the single successful MarkConfirmed transition.
func (s *Service) awardPoints(ctx context.Context, booking *models.Booking) {
	// AwardRate is the share of spend returned as point value, converted
	// to whole points at PointValue per point.
	points := int64(math.Round(booking.Amount * s.pricingCfg.AwardRate / s.pricingCfg.PointValue))
	if points <= 0 {
		return
	}
	if _, err := s.DB.EnsureUser(ctx, booking.UserID); err != nil {
		s.logger.Error("BOOKING", fmt.Sprintf("failed to load loyalty account %s: %v", booking.UserID, err))
		return
	}
	if err := s.DB.AdjustLoyalty(ctx, booking.UserID, points, booking.Amount); err != nil {
		s.logger.Error("BOOKING", fmt.Sprintf("failed to award %d loyalty points to %s: %v", points, booking.UserID, err))
	}
}

func (s *Service) latePayment(booking *models.Booking) error {
	err := &LatePaymentError{BookingID: booking.ID, Status: booking.Status}
	s.logger.Error("PAYMENT", fmt.Sprintf("ALERT: %v, reference %s, manual refund required", err, booking.Reference))
	s.publish("booking.payment_late", booking, booking.Amount)
	return err
}

func (s *Service) releaseBookingSeats(ctx context.Context, booking *models.Booking) error {
	seats, err := s.DB.GetSeatsByBooking(ctx, booking.ID)
	if err != nil {
		return &PersistenceError{Op: "load booking seats", Err: err}
	}
	keys := make([]string, 0, len(seats))
	for _, seat := range seats {
		keys = append(keys, seat.SeatKey)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := s.Ledger.Release(ctx, booking.ShowID, keys); err != nil {
		return &PersistenceError{Op: "release seats", Err: err}
	}
	return nil
}
