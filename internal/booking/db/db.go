package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/uptrace/bun"

	"cinebook/internal/models"
)

var (
	ErrPromoExhausted = errors.New("promo code usage limit reached")
)

type DB struct {
	Bun *bun.DB
}

// ---------------- SHOWS ----------------

// GetShow fetches a show with its explicit tier prices attached.
func (d *DB) GetShow(ctx context.Context, id string) (*models.Show, error) {
	var show models.Show
	err := d.Bun.NewSelect().
		Model(&show).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	var tiers []models.ShowTierPrice
	err = d.Bun.NewSelect().
		Model(&tiers).
		Where("show_id = ?", id).
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	show.TierPrices = make(map[string]float64, len(tiers))
	for _, t := range tiers {
		show.TierPrices[t.Tier] = t.Price
	}
	return &show, nil
}

// ---------------- BOOKINGS ----------------

// CreateBooking inserts the booking and its seat rows in one transaction.
func (d *DB) CreateBooking(ctx context.Context, booking *models.Booking, seats []models.BookingSeat) error {
	return d.Bun.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewInsert().Model(booking).Exec(ctx); err != nil {
			return fmt.Errorf("insert booking: %w", err)
		}
		if len(seats) > 0 {
			if _, err := tx.NewInsert().Model(&seats).Exec(ctx); err != nil {
				return fmt.Errorf("insert booking seats: %w", err)
			}
		}
		return nil
	})
}

func (d *DB) GetBookingByID(ctx context.Context, id string) (*models.Booking, error) {
	var booking models.Booking
	err := d.Bun.NewSelect().
		Model(&booking).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &booking, nil
}

func (d *DB) GetSeatsByBooking(ctx context.Context, bookingID string) ([]models.BookingSeat, error) {
	var seats []models.BookingSeat
	err := d.Bun.NewSelect().
		Model(&seats).
		Where("booking_id = ?", bookingID).
		Order("seat_key").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return seats, nil
}

// GetBookingsWithSeatsByUser returns a user's bookings, newest first, each
// with its seat rows attached.
func (d *DB) GetBookingsWithSeatsByUser(ctx context.Context, userID string) ([]models.BookingWithSeats, error) {
	var bookings []models.Booking
	err := d.Bun.NewSelect().
		Model(&bookings).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	if len(bookings) == 0 {
		return []models.BookingWithSeats{}, nil
	}

	ids := make([]string, len(bookings))
	for i, b := range bookings {
		ids[i] = b.ID
	}

	var seats []models.BookingSeat
	err = d.Bun.NewSelect().
		Model(&seats).
		Where("booking_id IN (?)", bun.In(ids)).
		Order("booking_id", "seat_key").
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	seatsByBooking := make(map[string][]models.BookingSeat, len(bookings))
	for _, s := range seats {
		seatsByBooking[s.BookingID] = append(seatsByBooking[s.BookingID], s)
	}

	result := make([]models.BookingWithSeats, len(bookings))
	for i, b := range bookings {
		result[i] = models.BookingWithSeats{Booking: b, Seats: seatsByBooking[b.ID]}
		if result[i].Seats == nil {
			result[i].Seats = []models.BookingSeat{}
		}
	}
	return result, nil
}

// ListPendingBookings returns every booking still awaiting payment, used
// to re-arm timeout checks after a restart.
func (d *DB) ListPendingBookings(ctx context.Context) ([]models.Booking, error) {
	var bookings []models.Booking
	err := d.Bun.NewSelect().
		Model(&bookings).
		Where("status = ?", models.BookingPending).
		Order("created_at").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return bookings, nil
}

// ConfirmedSeatKeys lists the seat keys held by CONFIRMED bookings on a
// show, so the availability snapshot can tell BOOKED from HELD.
func (d *DB) ConfirmedSeatKeys(ctx context.Context, showID string) ([]string, error) {
	var keys []string
	err := d.Bun.NewSelect().
		Column("bs.seat_key").
		TableExpr("booking_seats AS bs").
		Join("JOIN bookings AS b ON b.id = bs.booking_id").
		Where("bs.show_id = ?", showID).
		Where("b.status = ?", models.BookingConfirmed).
		Scan(ctx, &keys)
	if err != nil {
		return nil, err
	}
	return keys, nil
}

// ---------------- STATE TRANSITIONS ----------------
//
// Transitions are compare-and-swap updates on the status column so that
// racing payment-success and payment-timeout handlers resolve cleanly:
// whichever commits first wins, the loser's update affects zero rows.

// MarkConfirmed flips PENDING to CONFIRMED and clears the payment link.
// Returns false when the booking was not PENDING.
func (d *DB) MarkConfirmed(ctx context.Context, id string) (bool, error) {
	res, err := d.Bun.NewUpdate().
		Model((*models.Booking)(nil)).
		Set("status = ?", models.BookingConfirmed).
		Set("payment_url = NULL").
		Set("updated_at = ?", time.Now()).
		Where("id = ? AND status = ?", id, models.BookingPending).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	affected, _ := res.RowsAffected()
	return affected > 0, nil
}

// MarkFailedIfPending flips PENDING to FAILED. Returns false when the
// booking was already confirmed or terminal, in which case the caller
// must not release its seats.
func (d *DB) MarkFailedIfPending(ctx context.Context, id string) (bool, error) {
	res, err := d.Bun.NewUpdate().
		Model((*models.Booking)(nil)).
		Set("status = ?", models.BookingFailed).
		Set("payment_url = NULL").
		Set("updated_at = ?", time.Now()).
		Where("id = ? AND status = ?", id, models.BookingPending).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	affected, _ := res.RowsAffected()
	return affected > 0, nil
}

// MarkCancelled flips a live booking to CANCELLED, recording the refund
// obligation and the cancellation time. Returns false when the booking
// was already FAILED or CANCELLED.
func (d *DB) MarkCancelled(ctx context.Context, id string, refund float64, at time.Time) (bool, error) {
	res, err := d.Bun.NewUpdate().
		Model((*models.Booking)(nil)).
		Set("status = ?", models.BookingCancelled).
		Set("refund_amount = ?", refund).
		Set("cancelled_at = ?", at).
		Set("payment_url = NULL").
		Set("updated_at = ?", at).
		Where("id = ?", id).
		Where("status IN (?)", bun.In([]models.BookingStatus{models.BookingPending, models.BookingConfirmed})).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	affected, _ := res.RowsAffected()
	return affected > 0, nil
}

func (d *DB) SetPaymentSession(ctx context.Context, id, sessionID, url string) error {
	_, err := d.Bun.NewUpdate().
		Model((*models.Booking)(nil)).
		Set("payment_session_id = ?", sessionID).
		Set("payment_url = ?", url).
		Set("updated_at = ?", time.Now()).
		Where("id = ?", id).
		Exec(ctx)
	return err
}

// IncrementRetryCount bumps the payment retry counter, refusing once max
// is reached. Returns false when the budget is spent.
func (d *DB) IncrementRetryCount(ctx context.Context, id string, max int) (bool, error) {
	res, err := d.Bun.NewUpdate().
		Model((*models.Booking)(nil)).
		Set("payment_retry_count = payment_retry_count + 1").
		Set("updated_at = ?", time.Now()).
		Where("id = ? AND payment_retry_count < ?", id, max).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	affected, _ := res.RowsAffected()
	return affected > 0, nil
}

// ---------------- PROMO CODES ----------------

// GetPromo looks a code up case-insensitively (codes are stored upper).
func (d *DB) GetPromo(ctx context.Context, code string) (*models.PromoCode, error) {
	var promo models.PromoCode
	err := d.Bun.NewSelect().
		Model(&promo).
		Where("code = ?", strings.ToUpper(code)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &promo, nil
}

// IncrementPromoUsage bumps used_count, guarded against overshooting the
// usage limit under concurrent redemptions.
func (d *DB) IncrementPromoUsage(ctx context.Context, code string) error {
	res, err := d.Bun.NewUpdate().
		Model((*models.PromoCode)(nil)).
		Set("used_count = used_count + 1").
		Where("code = ?", strings.ToUpper(code)).
		Where("usage_limit = 0 OR used_count < usage_limit").
		Exec(ctx)
	if err != nil {
		return err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrPromoExhausted
	}
	return nil
}

// ---------------- USERS / LOYALTY ----------------

// EnsureUser fetches the loyalty account, creating an empty one the first
// time an authenticated subject shows up.
func (d *DB) EnsureUser(ctx context.Context, userID string) (*models.User, error) {
	var user models.User
	err := d.Bun.NewSelect().
		Model(&user).
		Where("id = ?", userID).
		Limit(1).
		Scan(ctx)
	if err == nil {
		return &user, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	user = models.User{ID: userID, CreatedAt: time.Now()}
	if _, err := d.Bun.NewInsert().Model(&user).Exec(ctx); err != nil {
		return nil, fmt.Errorf("create user %s: %w", userID, err)
	}
	return &user, nil
}

// AdjustLoyalty applies point and lifetime-spend deltas atomically.
// Negative point deltas deduct on redemption; positive credit awards and
// cancellation reversals.
func (d *DB) AdjustLoyalty(ctx context.Context, userID string, pointsDelta int64, spendDelta float64) error {
	_, err := d.Bun.NewUpdate().
		Model((*models.User)(nil)).
		Set("loyalty_points = loyalty_points + ?", pointsDelta).
		Set("total_spent = total_spent + ?", spendDelta).
		Where("id = ?", userID).
		Exec(ctx)
	return err
}
