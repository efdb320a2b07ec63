// Package pricing computes quotes for seat sets. The engine is pure: the
// same show, seats, promo, loyalty request and clock always produce the
// same breakdown, and nothing here writes anywhere. Promo usage counts and
// point balances are adjusted by the reservation service after the booking
// exists.
package pricing

import (
	"fmt"
	"math"
	"time"

	"cinebook/internal/config"
	"cinebook/internal/models"
)

type Engine struct {
	multipliers map[string]float64
	pointValue  float64
}

func NewEngine(cfg config.PricingConfig) *Engine {
	return &Engine{
		multipliers: map[string]float64{
			"PREMIUM":  cfg.PremiumMultiplier,
			"STANDARD": cfg.StandardMultiplier,
			"ECONOMY":  cfg.EconomyMultiplier,
		},
		pointValue: cfg.PointValue,
	}
}

// QuoteSeat is one seat in a quote request: the key and its layout tier.
type QuoteSeat struct {
	SeatKey string
	Tier    string
}

type SeatPrice struct {
	SeatKey string  `json:"seat_key"`
	Tier    string  `json:"tier"`
	Price   float64 `json:"price"`
}

type Breakdown struct {
	Subtotal        float64     `json:"subtotal"`
	PromoCode       string      `json:"promo_code,omitempty"`
	PromoDiscount   float64     `json:"promo_discount"`
	LoyaltyDiscount float64     `json:"loyalty_discount"`
	PointsUsed      int64       `json:"points_used"`
	Final           float64     `json:"final"`
	Seats           []SeatPrice `json:"seats"`
}

// SeatPrice resolves one seat's price: an explicit tier price on the show
// wins, otherwise base price times the tier multiplier, rounded half-up to
// two decimals.
func (e *Engine) SeatPrice(show *models.Show, tier string) (float64, error) {
	if p, ok := show.TierPrices[tier]; ok {
		return round2(p), nil
	}
	mult, ok := e.multipliers[tier]
	if !ok {
		return 0, fmt.Errorf("unknown seat tier %q", tier)
	}
	return round2(show.BasePrice * mult), nil
}

// Quote prices a seat set and applies promo and loyalty discounts with
// deterministic precedence: promo first, then loyalty capped at half the
// subtotal and at whatever the promo left. The combined discount never
// exceeds the subtotal.
//
// promo may be nil (no code supplied); passing a non-nil promo that fails
// validation returns a PromoError. pointsRequested above the account
// balance returns a LoyaltyError.
func (e *Engine) Quote(show *models.Show, seats []QuoteSeat, promo *models.PromoCode, pointsRequested int64, account *models.User, now time.Time) (*Breakdown, error) {
	b := &Breakdown{Seats: make([]SeatPrice, 0, len(seats))}

	for _, s := range seats {
		price, err := e.SeatPrice(show, s.Tier)
		if err != nil {
			return nil, err
		}
		b.Seats = append(b.Seats, SeatPrice{SeatKey: s.SeatKey, Tier: s.Tier, Price: price})
		b.Subtotal = round2(b.Subtotal + price)
	}

	if promo != nil {
		discount, err := e.promoDiscount(promo, b.Subtotal, now)
		if err != nil {
			return nil, err
		}
		b.PromoCode = promo.Code
		b.PromoDiscount = discount
	}

	if pointsRequested > 0 {
		if account == nil || pointsRequested > account.LoyaltyPoints {
			var balance int64
			if account != nil {
				balance = account.LoyaltyPoints
			}
			return nil, &LoyaltyError{Requested: pointsRequested, Balance: balance}
		}

		// Loyalty may never push the discount past 50% of the subtotal,
		// nor past what the promo discount left on the table.
		discount := float64(pointsRequested) * e.pointValue
		if cap := 0.5 * b.Subtotal; discount > cap {
			discount = cap
		}
		if remaining := b.Subtotal - b.PromoDiscount; discount > remaining {
			discount = remaining
		}
		if discount < 0 {
			discount = 0
		}
		b.LoyaltyDiscount = round2(discount)
		// The epsilon keeps the division from landing just under a whole
		// point (0.58/0.01 yields 57.999...), which would deduct one point
		// fewer than the discount actually granted.
		b.PointsUsed = int64(math.Floor(b.LoyaltyDiscount/e.pointValue + 1e-9))
	}

	b.Final = round2(b.Subtotal - b.PromoDiscount - b.LoyaltyDiscount)
	if b.Final < 0 {
		b.Final = 0
	}

	return b, nil
}

func (e *Engine) promoDiscount(promo *models.PromoCode, subtotal float64, now time.Time) (float64, error) {
	if !promo.Active {
		return 0, &PromoError{Code: promo.Code, Reason: PromoInactive}
	}
	if now.Before(promo.ValidFrom) || now.After(promo.ValidUntil) {
		return 0, &PromoError{Code: promo.Code, Reason: PromoExpired}
	}
	if promo.UsageLimit > 0 && promo.UsedCount >= promo.UsageLimit {
		return 0, &PromoError{Code: promo.Code, Reason: PromoLimitReached}
	}
	if subtotal < promo.MinAmount {
		return 0, &PromoError{Code: promo.Code, Reason: PromoBelowMinimum, MinAmount: promo.MinAmount}
	}

	var discount float64
	switch promo.DiscountType {
	case models.DiscountPercentage:
		discount = subtotal * promo.DiscountValue / 100
		if promo.MaxDiscount > 0 && discount > promo.MaxDiscount {
			discount = promo.MaxDiscount
		}
	case models.DiscountFixed:
		discount = promo.DiscountValue
		if discount > subtotal {
			discount = subtotal
		}
	default:
		return 0, fmt.Errorf("unsupported discount type %q", promo.DiscountType)
	}

	return round2(discount), nil
}

// round2 rounds half-up to two decimal places. The epsilon absorbs binary
// float error so exact midpoints land on the upper cent: 12.45*1.5 is
// 18.675 on paper but 18.67499... in a float64, and must still round to
// 18.68.
func round2(v float64) float64 {
	return math.Floor(v*100+0.5+1e-9) / 100
}
