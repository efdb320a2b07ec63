package analytics_test

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

	"cinebook/internal/analytics"
	"cinebook/internal/models"
)

func setupDB(t *testing.T) *bun.DB {
	t.Helper()

	sqldb, err := sql.Open(sqliteshim.ShimName, ":memory:")
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)

	bunDB := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() { bunDB.Close() })

	ctx := context.Background()
	for _, model := range []interface{}{
		(*models.Booking)(nil),
		(*models.BookingSeat)(nil),
	} {
		_, err := bunDB.NewCreateTable().Model(model).Exec(ctx)
		require.NoError(t, err)
	}
	return bunDB
}

func seedBooking(t *testing.T, db *bun.DB, status models.BookingStatus, amount float64, promo string, seatTiers []string) {
	t.Helper()
	ctx := context.Background()

	booking := &models.Booking{
		ID:             uuid.NewString(),
		Reference:      "BK" + uuid.NewString()[:10],
		UserID:         "user-1",
		ShowID:         "show-1",
		Status:         status,
		Amount:         amount,
		OriginalAmount: amount + 5,
		PromoCode:      promo,
		CreatedAt:      time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC),
	}
	if promo != "" {
		booking.DiscountAmount = 5
	}
	_, err := db.NewInsert().Model(booking).Exec(ctx)
	require.NoError(t, err)

	for i, tier := range seatTiers {
		seat := &models.BookingSeat{
			BookingID: booking.ID,
			ShowID:    "show-1",
			SeatKey:   "A" + string(rune('1'+i)),
			Tier:      tier,
			Price:     amount / float64(len(seatTiers)),
		}
		_, err := db.NewInsert().Model(seat).Exec(ctx)
		require.NoError(t, err)
	}
}

func TestShowAnalyticsAggregates(t *testing.T) {
	db := setupDB(t)
	svc := analytics.NewService(db)
	ctx := context.Background()

	seedBooking(t, db, models.BookingConfirmed, 30, "", []string{"PREMIUM", "STANDARD"})
	seedBooking(t, db, models.BookingConfirmed, 10, "", []string{"STANDARD"})
	seedBooking(t, db, models.BookingFailed, 99, "", []string{"ECONOMY"})

	result, err := svc.GetShowAnalytics(ctx, "show-1", string(models.BookingConfirmed))
	require.NoError(t, err)

	assert.Equal(t, "show-1", result.ShowID)
	assert.Equal(t, 40.0, result.TotalRevenue, "failed bookings excluded")
	assert.Equal(t, 50.0, result.TotalBeforeDisc)
	assert.Equal(t, 3, result.TotalSeatsSold)

	require.Len(t, result.DailySales, 1)
	assert.Equal(t, "2026-08-20", result.DailySales[0].Date)
	assert.Equal(t, 40.0, result.DailySales[0].Revenue)
	assert.Equal(t, 3, result.DailySales[0].SeatsSold)

	tiers := make(map[string]analytics.TierSalesMetrics, len(result.SalesByTier))
	for _, ts := range result.SalesByTier {
		tiers[ts.Tier] = ts
	}
	assert.Equal(t, 1, tiers["PREMIUM"].SeatsSold)
	assert.Equal(t, 2, tiers["STANDARD"].SeatsSold)
	_, hasEconomy := tiers["ECONOMY"]
	assert.False(t, hasEconomy, "economy seat belongs to the failed booking")
}

func TestShowAnalyticsUnfiltered(t *testing.T) {
	db := setupDB(t)
	svc := analytics.NewService(db)

	seedBooking(t, db, models.BookingConfirmed, 30, "", []string{"STANDARD"})
	seedBooking(t, db, models.BookingFailed, 10, "", []string{"STANDARD"})

	result, err := svc.GetShowAnalytics(context.Background(), "show-1", "")
	require.NoError(t, err)
	assert.Equal(t, 40.0, result.TotalRevenue)
	assert.Equal(t, 2, result.TotalSeatsSold)
}

func TestShowPromoAnalytics(t *testing.T) {
	db := setupDB(t)
	svc := analytics.NewService(db)

	seedBooking(t, db, models.BookingConfirmed, 25, "SAVE20", []string{"STANDARD"})
	seedBooking(t, db, models.BookingConfirmed, 25, "SAVE20", []string{"STANDARD"})
	seedBooking(t, db, models.BookingConfirmed, 25, "", []string{"STANDARD"})

	result, err := svc.GetShowPromoAnalytics(context.Background(), "show-1", string(models.BookingConfirmed))
	require.NoError(t, err)

	require.Len(t, result.PromoUsage, 1)
	assert.Equal(t, "SAVE20", result.PromoUsage[0].PromoCode)
	assert.Equal(t, 2, result.PromoUsage[0].UsageCount)
	assert.Equal(t, 10.0, result.PromoUsage[0].TotalDiscount)
}
