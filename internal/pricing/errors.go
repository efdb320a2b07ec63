package pricing

import "fmt"

// PromoReason tells the caller exactly why a promo code was rejected so
// the UI can surface it; an invalid code is never silently ignored.
type PromoReason string

const (
	PromoNotFound     PromoReason = "not_found"
	PromoInactive     PromoReason = "inactive"
	PromoExpired      PromoReason = "expired"
	PromoLimitReached PromoReason = "usage_limit_reached"
	PromoBelowMinimum PromoReason = "below_minimum"
)

type PromoError struct {
	Code      string
	Reason    PromoReason
	MinAmount float64
}

func (e *PromoError) Error() string {
	switch e.Reason {
	case PromoNotFound:
		return fmt.Sprintf("promo code %s not found", e.Code)
	case PromoInactive:
		return fmt.Sprintf("promo code %s is not active", e.Code)
	case PromoExpired:
		return fmt.Sprintf("promo code %s has expired", e.Code)
	case PromoLimitReached:
		return fmt.Sprintf("promo code %s usage limit reached", e.Code)
	case PromoBelowMinimum:
		return fmt.Sprintf("minimum amount of %.2f required for promo code %s", e.MinAmount, e.Code)
	default:
		return fmt.Sprintf("promo code %s is invalid", e.Code)
	}
}

// LoyaltyError is returned when a redemption request exceeds the account
// balance. Cap clamping (the 50%% rule) is not an error.
type LoyaltyError struct {
	Requested int64
	Balance   int64
}

func (e *LoyaltyError) Error() string {
	return fmt.Sprintf("requested %d loyalty points but balance is %d", e.Requested, e.Balance)
}
