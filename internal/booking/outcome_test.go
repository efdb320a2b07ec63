package booking_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"cinebook/internal/booking"
	"cinebook/internal/models"
)

func pendingBooking() *models.Booking {
	return &models.Booking{
		ID:        "b-1",
		Reference: "BKTEST01",
		UserID:    "user-1",
		ShowID:    "show-1",
		Status:    models.BookingPending,
		Amount:    30,
		CreatedAt: time.Now(),
	}
}

func TestPaymentSuccessConfirmsAndAwardsPoints(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.db.On("GetBookingByID", mock.Anything, "b-1").Return(pendingBooking(), nil)
	f.db.On("MarkConfirmed", mock.Anything, "b-1").Return(true, nil)
	f.db.On("EnsureUser", mock.Anything, "user-1").Return(&models.User{ID: "user-1"}, nil)
	// 30.00 at 1% back, 0.01 per point.
	f.db.On("AdjustLoyalty", mock.Anything, "user-1", int64(30), 30.0).Return(nil)
	f.events.On("PublishBookingEvent", mock.Anything).Return(nil)

	require.NoError(t, f.svc.OnPaymentSucceeded(ctx, "b-1"))

	f.db.AssertExpectations(t)
	event := f.events.Calls[0].Arguments.Get(0).(models.BookingEvent)
	assert.Equal(t, "booking.confirmed", event.Type)
}

func TestPaymentSuccessDuplicateIsNoOp(t *testing.T) {
	f := newFixture(t)
	b := pendingBooking()
	b.Status = models.BookingConfirmed
	f.db.On("GetBookingByID", mock.Anything, "b-1").Return(b, nil)

	require.NoError(t, f.svc.OnPaymentSucceeded(context.Background(), "b-1"))

	f.db.AssertNotCalled(t, "MarkConfirmed", mock.Anything, mock.Anything)
	f.db.AssertNotCalled(t, "AdjustLoyalty", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestPaymentSuccessAfterTimeoutIsLate(t *testing.T) {
	f := newFixture(t)
	b := pendingBooking()
	b.Status = models.BookingFailed
	f.db.On("GetBookingByID", mock.Anything, "b-1").Return(b, nil)
	f.events.On("PublishBookingEvent", mock.Anything).Return(nil)

	err := f.svc.OnPaymentSucceeded(context.Background(), "b-1")

	var late *booking.LatePaymentError
	require.ErrorAs(t, err, &late)
	assert.Equal(t, "b-1", late.BookingID)
	assert.Equal(t, models.BookingFailed, late.Status)
	f.db.AssertNotCalled(t, "MarkConfirmed", mock.Anything, mock.Anything)

	event := f.events.Calls[0].Arguments.Get(0).(models.BookingEvent)
	assert.Equal(t, "booking.payment_late", event.Type)
}

func TestPaymentSuccessLosesRaceToTimeout(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// PENDING at first read, but the timeout commits between the read and
	// the confirm CAS.
	failed := pendingBooking()
	failed.Status = models.BookingFailed
	f.db.On("GetBookingByID", mock.Anything, "b-1").Return(pendingBooking(), nil).Once()
	f.db.On("MarkConfirmed", mock.Anything, "b-1").Return(false, nil)
	f.db.On("GetBookingByID", mock.Anything, "b-1").Return(failed, nil).Once()
	f.events.On("PublishBookingEvent", mock.Anything).Return(nil)

	err := f.svc.OnPaymentSucceeded(ctx, "b-1")

	var late *booking.LatePaymentError
	require.ErrorAs(t, err, &late)
	f.db.AssertNotCalled(t, "AdjustLoyalty", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestPaymentTimeoutFailsBookingAndFreesSeats(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	b := pendingBooking()
	b.LoyaltyPointsUsed = 150
	seats := []models.BookingSeat{
		{BookingID: "b-1", ShowID: "show-1", SeatKey: "E6"},
		{BookingID: "b-1", ShowID: "show-1", SeatKey: "E7"},
	}
	f.db.On("GetBookingByID", mock.Anything, "b-1").Return(b, nil)
	f.db.On("MarkFailedIfPending", mock.Anything, "b-1").Return(true, nil)
	f.db.On("GetSeatsByBooking", mock.Anything, "b-1").Return(seats, nil)
	f.ledger.On("Release", mock.Anything, "show-1", []string{"E6", "E7"}).Return(nil)
	f.db.On("AdjustLoyalty", mock.Anything, "user-1", int64(150), 0.0).Return(nil)
	f.events.On("PublishBookingEvent", mock.Anything).Return(nil)

	require.NoError(t, f.svc.OnPaymentTimeoutOrFailure(ctx, "b-1"))

	f.db.AssertExpectations(t)
	f.ledger.AssertExpectations(t)
}

func TestPaymentTimeoutAfterConfirmIsNoOp(t *testing.T) {
	f := newFixture(t)
	b := pendingBooking()
	b.Status = models.BookingConfirmed
	f.db.On("GetBookingByID", mock.Anything, "b-1").Return(b, nil)
	f.db.On("MarkFailedIfPending", mock.Anything, "b-1").Return(false, nil)

	require.NoError(t, f.svc.OnPaymentTimeoutOrFailure(context.Background(), "b-1"))

	f.ledger.AssertNotCalled(t, "Release", mock.Anything, mock.Anything, mock.Anything)
	f.db.AssertNotCalled(t, "AdjustLoyalty", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestCancelConfirmedRefundsAndRestores(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	b := pendingBooking()
	b.Status = models.BookingConfirmed
	b.LoyaltyPointsUsed = 100
	f.db.On("GetBookingByID", mock.Anything, "b-1").Return(b, nil)
	f.db.On("GetShow", mock.Anything, "show-1").Return(liveShow(), nil)
	f.db.On("MarkCancelled", mock.Anything, "b-1", 30.0, mock.Anything).Return(true, nil)
	f.db.On("GetSeatsByBooking", mock.Anything, "b-1").
		Return([]models.BookingSeat{{BookingID: "b-1", ShowID: "show-1", SeatKey: "E6"}}, nil)
	f.ledger.On("Release", mock.Anything, "show-1", []string{"E6"}).Return(nil)
	f.db.On("AdjustLoyalty", mock.Anything, "user-1", int64(100), 0.0).Return(nil)
	f.events.On("PublishBookingEvent", mock.Anything).Return(nil)

	refund, err := f.svc.Cancel(ctx, "user-1", "b-1", false)
	require.NoError(t, err)

	assert.Equal(t, 30.0, refund.RefundAmount)
	assert.Equal(t, int64(100), refund.PointsRestored)
	f.db.AssertExpectations(t)
}

func TestCancelPendingRefundsNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.db.On("GetBookingByID", mock.Anything, "b-1").Return(pendingBooking(), nil)
	f.db.On("GetShow", mock.Anything, "show-1").Return(liveShow(), nil)
	f.db.On("MarkCancelled", mock.Anything, "b-1", 0.0, mock.Anything).Return(true, nil)
	f.db.On("GetSeatsByBooking", mock.Anything, "b-1").Return([]models.BookingSeat{}, nil)
	f.events.On("PublishBookingEvent", mock.Anything).Return(nil)

	refund, err := f.svc.Cancel(ctx, "user-1", "b-1", false)
	require.NoError(t, err)
	assert.Zero(t, refund.RefundAmount)
}

func TestCancelGuards(t *testing.T) {
	ctx := context.Background()

	t.Run("ownership", func(t *testing.T) {
		f := newFixture(t)
		f.db.On("GetBookingByID", mock.Anything, "b-1").Return(pendingBooking(), nil)
		_, err := f.svc.Cancel(ctx, "stranger", "b-1", false)
		assert.ErrorIs(t, err, booking.ErrUnauthorized)
	})

	t.Run("admin override", func(t *testing.T) {
		f := newFixture(t)
		f.db.On("GetBookingByID", mock.Anything, "b-1").Return(pendingBooking(), nil)
		f.db.On("GetShow", mock.Anything, "show-1").Return(liveShow(), nil)
		f.db.On("MarkCancelled", mock.Anything, "b-1", 0.0, mock.Anything).Return(true, nil)
		f.db.On("GetSeatsByBooking", mock.Anything, "b-1").Return([]models.BookingSeat{}, nil)
		f.events.On("PublishBookingEvent", mock.Anything).Return(nil)

		_, err := f.svc.Cancel(ctx, "stranger", "b-1", true)
		assert.NoError(t, err)
	})

	t.Run("already cancelled", func(t *testing.T) {
		f := newFixture(t)
		b := pendingBooking()
		b.Status = models.BookingCancelled
		f.db.On("GetBookingByID", mock.Anything, "b-1").Return(b, nil)
		_, err := f.svc.Cancel(ctx, "user-1", "b-1", false)
		assert.ErrorIs(t, err, booking.ErrAlreadyCancelled)
	})

	t.Run("show started", func(t *testing.T) {
		f := newFixture(t)
		started := liveShow()
		started.StartTime = time.Now().Add(-time.Hour)
		f.db.On("GetBookingByID", mock.Anything, "b-1").Return(pendingBooking(), nil)
		f.db.On("GetShow", mock.Anything, "show-1").Return(started, nil)
		_, err := f.svc.Cancel(ctx, "user-1", "b-1", false)
		assert.ErrorIs(t, err, booking.ErrShowStarted)
	})

	t.Run("lost cancel race", func(t *testing.T) {
		f := newFixture(t)
		f.db.On("GetBookingByID", mock.Anything, "b-1").Return(pendingBooking(), nil)
		f.db.On("GetShow", mock.Anything, "show-1").Return(liveShow(), nil)
		f.db.On("MarkCancelled", mock.Anything, "b-1", 0.0, mock.Anything).Return(false, nil)
		_, err := f.svc.Cancel(ctx, "user-1", "b-1", false)
		assert.ErrorIs(t, err, booking.ErrAlreadyTerminal)
	})
}

func TestRecoverPendingTimeouts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created := time.Now().Add(-10 * time.Minute)
	f.db.On("ListPendingBookings", mock.Anything).Return([]models.Booking{
		{ID: "b-1", Status: models.BookingPending, CreatedAt: created},
		{ID: "b-2", Status: models.BookingPending, CreatedAt: created.Add(time.Minute)},
	}, nil)
	f.scheduler.On("SchedulePaymentCheck", "b-1", created.Add(30*time.Minute)).Return()
	f.scheduler.On("SchedulePaymentCheck", "b-2", created.Add(31*time.Minute)).Return()

	require.NoError(t, f.svc.RecoverPendingTimeouts(ctx))
	f.scheduler.AssertExpectations(t)
}
