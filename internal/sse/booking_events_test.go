package sse_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cinebook/internal/models"
	"cinebook/internal/sse"
)

func TestBrokerRoutesByBookingAndShow(t *testing.T) {
	broker := sse.NewBroker()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bookingChan := broker.SubscribeToBooking(ctx, "b-1")
	showChan := broker.SubscribeToShow(ctx, "show-1")
	otherChan := broker.SubscribeToBooking(ctx, "b-2")

	event := models.BookingEvent{
		Type:      "booking.confirmed",
		BookingID: "b-1",
		ShowID:    "show-1",
		Status:    "CONFIRMED",
	}
	require.NoError(t, broker.PublishBookingEvent(event))

	select {
	case got := <-bookingChan:
		assert.Equal(t, "booking.confirmed", got.Type)
	case <-time.After(time.Second):
		t.Fatal("booking subscriber did not receive the event")
	}

	select {
	case got := <-showChan:
		assert.Equal(t, "b-1", got.BookingID)
	case <-time.After(time.Second):
		t.Fatal("show subscriber did not receive the event")
	}

	select {
	case <-otherChan:
		t.Fatal("unrelated booking subscriber received the event")
	default:
	}
}

func TestBrokerRemovesClientOnCancel(t *testing.T) {
	broker := sse.NewBroker()
	ctx, cancel := context.WithCancel(context.Background())

	ch := broker.SubscribeToBooking(ctx, "b-1")
	assert.Equal(t, 1, broker.BookingClientCount("b-1"))

	cancel()

	require.Eventually(t, func() bool {
		return broker.BookingClientCount("b-1") == 0
	}, time.Second, 5*time.Millisecond)

	// The channel closes so the SSE loop can exit.
	_, open := <-ch
	assert.False(t, open)
}

func TestBrokerDoesNotBlockOnSlowClient(t *testing.T) {
	broker := sse.NewBroker()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Never drained; the buffer fills and further sends are dropped.
	broker.SubscribeToShow(ctx, "show-1")

	done := make(chan struct{})
	go func() {
		for i := 0; i < 50; i++ {
			_ = broker.PublishBookingEvent(models.BookingEvent{
				Type:   "booking.created",
				ShowID: "show-1",
			})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publisher blocked on a slow subscriber")
	}
}
