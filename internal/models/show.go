package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Show is a single screening of a movie on one screen. The seat ledger for
// a show lives in the seat_claims table; the version column is bumped on
// every ledger write so concurrent claims can be detected.
type Show struct {
	bun.BaseModel `bun:"table:shows"`

	ID         string    `bun:"id,pk" json:"id"`
	MovieTitle string    `bun:"movie_title,notnull" json:"movie_title"`
	TheatreID  string    `bun:"theatre_id" json:"theatre_id"`
	ScreenName string    `bun:"screen_name,notnull" json:"screen_name"`
	StartTime  time.Time `bun:"start_time,notnull" json:"start_time"`
	BasePrice  float64   `bun:"base_price,notnull" json:"base_price"`
	Version    int64     `bun:"version,notnull,default:0" json:"-"`
	CreatedAt  time.Time `bun:"created_at,notnull" json:"created_at"`

	// TierPrices is loaded from show_tier_prices. An explicit tier price
	// overrides the base-price multiplier for that tier.
	TierPrices map[string]float64 `bun:"-" json:"tier_prices,omitempty"`
}

// ShowTierPrice is one explicit tier price on a show (e.g. PREMIUM -> 400).
type ShowTierPrice struct {
	bun.BaseModel `bun:"table:show_tier_prices"`

	ShowID string  `bun:"show_id,pk" json:"show_id"`
	Tier   string  `bun:"tier,pk" json:"tier"`
	Price  float64 `bun:"price,notnull" json:"price"`
}

// SeatClaim is one held seat in a show's ledger. A seat key is present at
// most once per show; absence means the seat is free.
type SeatClaim struct {
	bun.BaseModel `bun:"table:seat_claims"`

	ShowID  string    `bun:"show_id,pk" json:"show_id"`
	SeatKey string    `bun:"seat_key,pk" json:"seat_key"`
	Holder  string    `bun:"holder,notnull" json:"holder"`
	HeldAt  time.Time `bun:"held_at,notnull" json:"held_at"`
}

// Seat occupancy states reported by the advisory snapshot endpoint. The
// snapshot is for rendering only; Claim is the authority.
const (
	SeatFree   = "FREE"
	SeatHeld   = "HELD"
	SeatBooked = "BOOKED"
)
