package models

import (
	"time"

	"github.com/uptrace/bun"
)

type BookingStatus string

const (
	BookingPending   BookingStatus = "PENDING"
	BookingConfirmed BookingStatus = "CONFIRMED"
	BookingFailed    BookingStatus = "FAILED"
	BookingCancelled BookingStatus = "CANCELLED"
)

// Terminal reports whether a status admits no further transitions.
// CONFIRMED bookings can still be cancelled before showtime.
func (s BookingStatus) Terminal() bool {
	return s == BookingFailed || s == BookingCancelled
}

// Booking is one user's attempt to purchase a set of seats for one show.
// Its seat keys live in booking_seats; while the booking is PENDING or
// CONFIRMED those keys are held by the user in the show's seat ledger.
type Booking struct {
	bun.BaseModel `bun:"table:bookings"`

	ID                string        `bun:"id,pk" json:"id"`
	Reference         string        `bun:"reference,unique,notnull" json:"reference"`
	UserID            string        `bun:"user_id,notnull" json:"user_id"`
	ShowID            string        `bun:"show_id,notnull" json:"show_id"`
	Status            BookingStatus `bun:"status,notnull" json:"status"`
	Amount            float64       `bun:"amount,notnull" json:"amount"`
	OriginalAmount    float64       `bun:"original_amount,notnull" json:"original_amount"`
	DiscountAmount    float64       `bun:"discount_amount,notnull,default:0" json:"discount_amount"`
	PromoCode         string        `bun:"promo_code,nullzero" json:"promo_code,omitempty"`
	LoyaltyPointsUsed int64         `bun:"loyalty_points_used,notnull,default:0" json:"loyalty_points_used"`
	PaymentSessionID  string        `bun:"payment_session_id,nullzero" json:"-"`
	PaymentURL        string        `bun:"payment_url,nullzero" json:"payment_url,omitempty"`
	PaymentRetryCount int           `bun:"payment_retry_count,notnull,default:0" json:"payment_retry_count"`
	RefundAmount      float64       `bun:"refund_amount,notnull,default:0" json:"refund_amount"`
	CreatedAt         time.Time     `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt         time.Time     `bun:"updated_at,nullzero" json:"updated_at,omitempty"`
	CancelledAt       time.Time     `bun:"cancelled_at,nullzero" json:"cancelled_at,omitempty"`
}

// BookingSeat links a booking to one claimed seat, with the per-seat price
// that was charged at reservation time.
type BookingSeat struct {
	bun.BaseModel `bun:"table:booking_seats"`

	BookingID string  `bun:"booking_id,pk" json:"booking_id"`
	SeatKey   string  `bun:"seat_key,pk" json:"seat_key"`
	ShowID    string  `bun:"show_id,notnull" json:"show_id"`
	Tier      string  `bun:"tier,notnull" json:"tier"`
	Price     float64 `bun:"price,notnull" json:"price"`
}

// BookingWithSeats pairs a booking with its seat rows for API responses.
type BookingWithSeats struct {
	Booking
	Seats []BookingSeat `json:"seats"`
}

// PaymentRequest is what Reserve hands back to the caller: where to send
// the user to pay, and when the session lapses.
type PaymentRequest struct {
	BookingID  string    `json:"booking_id"`
	Reference  string    `json:"reference"`
	Amount     float64   `json:"amount"`
	Currency   string    `json:"currency"`
	PaymentURL string    `json:"payment_url"`
	SessionRef string    `json:"session_ref"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// RefundInfo records the refund obligation computed by a cancellation.
// Moving the money is the payment processor's follow-up, not ours.
type RefundInfo struct {
	BookingID      string  `json:"booking_id"`
	RefundAmount   float64 `json:"refund_amount"`
	PointsRestored int64   `json:"points_restored"`
}
