// Package sse fans booking lifecycle events out to connected browsers.
// The payment page subscribes by booking ID to learn the outcome without
// polling; the seat-map page subscribes by show ID to refresh occupancy
// when any booking for that show changes state.
package sse

import (
	"context"
	"sync"

	"cinebook/internal/models"
)

// Broker manages SSE subscriber channels and event broadcasting.
type Broker struct {
	bookingClients map[string][]chan models.BookingEvent
	bookingMutex   sync.RWMutex

	showClients map[string][]chan models.BookingEvent
	showMutex   sync.RWMutex
}

func NewBroker() *Broker {
	return &Broker{
		bookingClients: make(map[string][]chan models.BookingEvent),
		showClients:    make(map[string][]chan models.BookingEvent),
	}
}

// SubscribeToBooking adds a client listening for one booking's lifecycle
// events. The channel closes when ctx is cancelled.
func (b *Broker) SubscribeToBooking(ctx context.Context, bookingID string) chan models.BookingEvent {
	clientChan := make(chan models.BookingEvent, 10)

	b.bookingMutex.Lock()
	b.bookingClients[bookingID] = append(b.bookingClients[bookingID], clientChan)
	b.bookingMutex.Unlock()

	go func() {
		<-ctx.Done()
		b.removeBookingClient(bookingID, clientChan)
	}()

	return clientChan
}

// SubscribeToShow adds a client listening for every booking event touching
// a show. The channel closes when ctx is cancelled.
func (b *Broker) SubscribeToShow(ctx context.Context, showID string) chan models.BookingEvent {
	clientChan := make(chan models.BookingEvent, 10)

	b.showMutex.Lock()
	b.showClients[showID] = append(b.showClients[showID], clientChan)
	b.showMutex.Unlock()

	go func() {
		<-ctx.Done()
		b.removeShowClient(showID, clientChan)
	}()

	return clientChan
}

// PublishBookingEvent broadcasts an event to the booking's subscribers and
// the show's subscribers. Satisfies the booking service's publisher
// interface so the broker can sit next to the Kafka producer.
func (b *Broker) PublishBookingEvent(event models.BookingEvent) error {
	b.bookingMutex.RLock()
	clients := b.bookingClients[event.BookingID]
	b.bookingMutex.RUnlock()

	for _, clientChan := range clients {
		// Non-blocking send: a slow client misses events, never stalls
		// the booking flow.
		select {
		case clientChan <- event:
		default:
		}
	}

	b.showMutex.RLock()
	showClients := b.showClients[event.ShowID]
	b.showMutex.RUnlock()

	for _, clientChan := range showClients {
		select {
		case clientChan <- event:
		default:
		}
	}

	return nil
}

func (b *Broker) removeBookingClient(bookingID string, clientChan chan models.BookingEvent) {
	b.bookingMutex.Lock()
	defer b.bookingMutex.Unlock()

	clients := b.bookingClients[bookingID]
	for i, ch := range clients {
		if ch == clientChan {
			b.bookingClients[bookingID] = append(clients[:i], clients[i+1:]...)
			close(clientChan)
			break
		}
	}

	if len(b.bookingClients[bookingID]) == 0 {
		delete(b.bookingClients, bookingID)
	}
}

func (b *Broker) removeShowClient(showID string, clientChan chan models.BookingEvent) {
	b.showMutex.Lock()
	defer b.showMutex.Unlock()

	clients := b.showClients[showID]
	for i, ch := range clients {
		if ch == clientChan {
			b.showClients[showID] = append(clients[:i], clients[i+1:]...)
			close(clientChan)
			break
		}
	}

	if len(b.showClients[showID]) == 0 {
		delete(b.showClients, showID)
	}
}

// BookingClientCount returns the number of clients subscribed to a booking.
func (b *Broker) BookingClientCount(bookingID string) int {
	b.bookingMutex.RLock()
	defer b.bookingMutex.RUnlock()
	return len(b.bookingClients[bookingID])
}

// ShowClientCount returns the number of clients subscribed to a show.
func (b *Broker) ShowClientCount(showID string) int {
	b.showMutex.RLock()
	defer b.showMutex.RUnlock()
	return len(b.showClients[showID])
}
