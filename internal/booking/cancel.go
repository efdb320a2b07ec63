package booking

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"cinebook/internal/models"
)

// Cancel voids a PENDING or CONFIRMED booking before its show starts,
// frees the seats, restores spent loyalty points, and reports the refund
// due (full amount for CONFIRMED, nothing for PENDING). Only the owner may
// cancel unless the caller is an admin.
func (s *Service) Cancel(ctx context.Context, userID, bookingID string, isAdmin bool) (*models.RefundInfo, error) {
	booking, err := s.DB.GetBookingByID(ctx, bookingID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrBookingNotFound
	}
	if err != nil {
		return nil, &PersistenceError{Op: "load booking", Err: err}
	}

	if !isAdmin && booking.UserID != userID {
		return nil, ErrUnauthorized
	}
	switch booking.Status {
	case models.BookingCancelled:
		return nil, ErrAlreadyCancelled
	case models.BookingFailed:
		return nil, ErrAlreadyTerminal
	}

	show, err := s.DB.GetShow(ctx, booking.ShowID)
	if err != nil {
		return nil, &PersistenceError{Op: "load show", Err: err}
	}
	now := s.now()
	if now.After(show.StartTime) {
		return nil, ErrShowStarted
	}

	var refund float64
	if booking.Status == models.BookingConfirmed {
		refund = booking.Amount
	}

	cancelled, err := s.DB.MarkCancelled(ctx, bookingID, refund, now)
	if err != nil {
		return nil, &PersistenceError{Op: "cancel booking", Err: err}
	}
	if !cancelled {
		// Raced with a concurrent cancel or payment timeout.
		return nil, ErrAlreadyTerminal
	}
	booking.Status = models.BookingCancelled

	if err := s.releaseBookingSeats(ctx, booking); err != nil {
		return nil, err
	}

	if booking.LoyaltyPointsUsed > 0 {
		if err := s.DB.AdjustLoyalty(ctx, booking.UserID, booking.LoyaltyPointsUsed, 0); err != nil {
			s.logger.Error("BOOKING", fmt.Sprintf("failed to restore %d loyalty points to %s on cancellation: %v",
				booking.LoyaltyPointsUsed, booking.UserID, err))
		}
	}

	s.publish("booking.cancelled", booking, refund)
	s.logger.LogBooking("CANCEL", bookingID, fmt.Sprintf("booking %s cancelled by %s, refund %.2f, %d point(s) restored",
		booking.Reference, userID, refund, booking.LoyaltyPointsUsed))

	return &models.RefundInfo{
		BookingID:      bookingID,
		RefundAmount:   refund,
		PointsRestored: booking.LoyaltyPointsUsed,
	}, nil
}
