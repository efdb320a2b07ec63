package models

import "time"

// BookingEvent is the payload published to Kafka on every booking
// lifecycle transition, keyed by booking ID.
type BookingEvent struct {
	Type         string    `json:"type"`
	BookingID    string    `json:"booking_id"`
	Reference    string    `json:"reference"`
	UserID       string    `json:"user_id"`
	ShowID       string    `json:"show_id"`
	Status       string    `json:"status"`
	Amount       float64   `json:"amount"`
	RefundAmount float64   `json:"refund_amount,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}
