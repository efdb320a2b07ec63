package db_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"

	bookingdb "cinebook/internal/booking/db"
	"cinebook/internal/models"
)

func setupDB(t *testing.T) *bookingdb.DB {
	t.Helper()

	sqldb, err := sql.Open(sqliteshim.ShimName, ":memory:")
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)

	bunDB := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() { bunDB.Close() })

	ctx := context.Background()
	for _, model := range []interface{}{
		(*models.Show)(nil),
		(*models.ShowTierPrice)(nil),
		(*models.Booking)(nil),
		(*models.BookingSeat)(nil),
		(*models.PromoCode)(nil),
		(*models.User)(nil),
	} {
		_, err := bunDB.NewCreateTable().Model(model).Exec(ctx)
		require.NoError(t, err)
	}
	return &bookingdb.DB{Bun: bunDB}
}

func seedBooking(t *testing.T, d *bookingdb.DB, status models.BookingStatus) *models.Booking {
	t.Helper()
	booking := &models.Booking{
		ID:             uuid.NewString(),
		Reference:      "BK" + uuid.NewString()[:10],
		UserID:         "user-1",
		ShowID:         "show-1",
		Status:         status,
		Amount:         20,
		OriginalAmount: 20,
		CreatedAt:      time.Now(),
	}
	seats := []models.BookingSeat{
		{BookingID: booking.ID, SeatKey: "A1", ShowID: "show-1", Tier: "STANDARD", Price: 10},
		{BookingID: booking.ID, SeatKey: "A2", ShowID: "show-1", Tier: "STANDARD", Price: 10},
	}
	require.NoError(t, d.CreateBooking(context.Background(), booking, seats))
	return booking
}

func TestGetShowLoadsTierPrices(t *testing.T) {
	d := setupDB(t)
	ctx := context.Background()

	show := &models.Show{
		ID:         "show-1",
		MovieTitle: "Test Movie",
		ScreenName: "Screen 1",
		StartTime:  time.Now().Add(time.Hour),
		BasePrice:  10,
		CreatedAt:  time.Now(),
	}
	_, err := d.Bun.NewInsert().Model(show).Exec(ctx)
	require.NoError(t, err)
	_, err = d.Bun.NewInsert().Model(&models.ShowTierPrice{ShowID: "show-1", Tier: "PREMIUM", Price: 400}).Exec(ctx)
	require.NoError(t, err)

	loaded, err := d.GetShow(ctx, "show-1")
	require.NoError(t, err)
	assert.Equal(t, "Test Movie", loaded.MovieTitle)
	assert.Equal(t, map[string]float64{"PREMIUM": 400}, loaded.TierPrices)
}

func TestStatusTransitionsAreCompareAndSwap(t *testing.T) {
	d := setupDB(t)
	ctx := context.Background()
	booking := seedBooking(t, d, models.BookingPending)

	// Success wins first.
	confirmed, err := d.MarkConfirmed(ctx, booking.ID)
	require.NoError(t, err)
	assert.True(t, confirmed)

	// A stale timeout after the success changes nothing.
	failed, err := d.MarkFailedIfPending(ctx, booking.ID)
	require.NoError(t, err)
	assert.False(t, failed)

	loaded, err := d.GetBookingByID(ctx, booking.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingConfirmed, loaded.Status)

	// Confirming twice is also a no-op.
	confirmed, err = d.MarkConfirmed(ctx, booking.ID)
	require.NoError(t, err)
	assert.False(t, confirmed)
}

func TestTimeoutBeatsLateSuccess(t *testing.T) {
	d := setupDB(t)
	ctx := context.Background()
	booking := seedBooking(t, d, models.BookingPending)

	failed, err := d.MarkFailedIfPending(ctx, booking.ID)
	require.NoError(t, err)
	assert.True(t, failed)

	confirmed, err := d.MarkConfirmed(ctx, booking.ID)
	require.NoError(t, err)
	assert.False(t, confirmed, "success after timeout must lose the swap")
}

func TestMarkCancelled(t *testing.T) {
	d := setupDB(t)
	ctx := context.Background()
	now := time.Now()

	pending := seedBooking(t, d, models.BookingPending)
	ok, err := d.MarkCancelled(ctx, pending.ID, 0, now)
	require.NoError(t, err)
	assert.True(t, ok)

	// Cancelling again fails the swap.
	ok, err = d.MarkCancelled(ctx, pending.ID, 0, now)
	require.NoError(t, err)
	assert.False(t, ok)

	confirmed := seedBooking(t, d, models.BookingPending)
	_, err = d.MarkConfirmed(ctx, confirmed.ID)
	require.NoError(t, err)
	ok, err = d.MarkCancelled(ctx, confirmed.ID, 20, now)
	require.NoError(t, err)
	assert.True(t, ok, "confirmed bookings are cancellable")

	loaded, err := d.GetBookingByID(ctx, confirmed.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingCancelled, loaded.Status)
	assert.Equal(t, 20.0, loaded.RefundAmount)
}

func TestConfirmedSeatKeys(t *testing.T) {
	d := setupDB(t)
	ctx := context.Background()

	confirmed := seedBooking(t, d, models.BookingPending)
	_, err := d.MarkConfirmed(ctx, confirmed.ID)
	require.NoError(t, err)

	pending := &models.Booking{
		ID:             uuid.NewString(),
		Reference:      "BK-pending",
		UserID:         "user-2",
		ShowID:         "show-1",
		Status:         models.BookingPending,
		Amount:         10,
		OriginalAmount: 10,
		CreatedAt:      time.Now(),
	}
	require.NoError(t, d.CreateBooking(ctx, pending, []models.BookingSeat{
		{BookingID: pending.ID, SeatKey: "B1", ShowID: "show-1", Tier: "STANDARD", Price: 10},
	}))

	keys, err := d.ConfirmedSeatKeys(ctx, "show-1")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"A1", "A2"}, keys, "pending seats are not booked")
}

func TestIncrementRetryCountCap(t *testing.T) {
	d := setupDB(t)
	ctx := context.Background()
	booking := seedBooking(t, d, models.BookingPending)

	for i := 0; i < 3; i++ {
		ok, err := d.IncrementRetryCount(ctx, booking.ID, 3)
		require.NoError(t, err)
		assert.True(t, ok, "attempt %d within budget", i+1)
	}

	ok, err := d.IncrementRetryCount(ctx, booking.ID, 3)
	require.NoError(t, err)
	assert.False(t, ok, "fourth retry exceeds the cap")
}

func TestIncrementPromoUsage(t *testing.T) {
	d := setupDB(t)
	ctx := context.Background()
	now := time.Now()

	promo := &models.PromoCode{
		Code:          "SAVE20",
		DiscountType:  models.DiscountFixed,
		DiscountValue: 20,
		ValidFrom:     now.Add(-time.Hour),
		ValidUntil:    now.Add(time.Hour),
		UsageLimit:    2,
		Active:        true,
		CreatedAt:     now,
	}
	_, err := d.Bun.NewInsert().Model(promo).Exec(ctx)
	require.NoError(t, err)

	// Lookup is case-insensitive.
	loaded, err := d.GetPromo(ctx, "save20")
	require.NoError(t, err)
	assert.Equal(t, "SAVE20", loaded.Code)

	require.NoError(t, d.IncrementPromoUsage(ctx, "SAVE20"))
	require.NoError(t, d.IncrementPromoUsage(ctx, "SAVE20"))
	assert.ErrorIs(t, d.IncrementPromoUsage(ctx, "SAVE20"), bookingdb.ErrPromoExhausted)

	// Unlimited codes never exhaust.
	unlimited := &models.PromoCode{
		Code:          "FOREVER",
		DiscountType:  models.DiscountFixed,
		DiscountValue: 1,
		ValidFrom:     now.Add(-time.Hour),
		ValidUntil:    now.Add(time.Hour),
		UsageLimit:    0,
		Active:        true,
		CreatedAt:     now,
	}
	_, err = d.Bun.NewInsert().Model(unlimited).Exec(ctx)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		require.NoError(t, d.IncrementPromoUsage(ctx, "FOREVER"))
	}
}

func TestEnsureUserAndAdjustLoyalty(t *testing.T) {
	d := setupDB(t)
	ctx := context.Background()

	user, err := d.EnsureUser(ctx, "subject-1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), user.LoyaltyPoints)

	// Second call returns the existing account.
	again, err := d.EnsureUser(ctx, "subject-1")
	require.NoError(t, err)
	assert.Equal(t, user.ID, again.ID)

	require.NoError(t, d.AdjustLoyalty(ctx, "subject-1", 150, 30))
	require.NoError(t, d.AdjustLoyalty(ctx, "subject-1", -50, 0))

	user, err = d.EnsureUser(ctx, "subject-1")
	require.NoError(t, err)
	assert.Equal(t, int64(100), user.LoyaltyPoints)
	assert.Equal(t, 30.0, user.TotalSpent)
}

func TestGetBookingsWithSeatsByUser(t *testing.T) {
	d := setupDB(t)
	ctx := context.Background()

	first := seedBooking(t, d, models.BookingPending)

	results, err := d.GetBookingsWithSeatsByUser(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, first.ID, results[0].ID)
	assert.Len(t, results[0].Seats, 2)

	none, err := d.GetBookingsWithSeatsByUser(ctx, "stranger")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestListPendingBookings(t *testing.T) {
	d := setupDB(t)
	ctx := context.Background()

	pending := seedBooking(t, d, models.BookingPending)
	confirmed := seedBooking(t, d, models.BookingPending)
	_, err := d.MarkConfirmed(ctx, confirmed.ID)
	require.NoError(t, err)

	list, err := d.ListPendingBookings(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, pending.ID, list[0].ID)
}
