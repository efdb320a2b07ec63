package models

import (
	"time"

	"github.com/uptrace/bun"
)

type DiscountType string

const (
	DiscountPercentage DiscountType = "PERCENTAGE"
	DiscountFixed      DiscountType = "FIXED"
)

// PromoCode is a named discount rule. Admin CRUD lives elsewhere; the
// booking core only validates codes and bumps used_count on redemption.
type PromoCode struct {
	bun.BaseModel `bun:"table:promo_codes"`

	Code          string       `bun:"code,pk" json:"code"`
	DiscountType  DiscountType `bun:"discount_type,notnull" json:"discount_type"`
	DiscountValue float64      `bun:"discount_value,notnull" json:"discount_value"`
	MinAmount     float64      `bun:"min_amount,notnull,default:0" json:"min_amount"`
	MaxDiscount   float64      `bun:"max_discount,nullzero" json:"max_discount,omitempty"`
	ValidFrom     time.Time    `bun:"valid_from,notnull" json:"valid_from"`
	ValidUntil    time.Time    `bun:"valid_until,notnull" json:"valid_until"`
	UsageLimit    int          `bun:"usage_limit,notnull,default:0" json:"usage_limit"`
	UsedCount     int          `bun:"used_count,notnull,default:0" json:"used_count"`
	Active        bool         `bun:"active,notnull,default:true" json:"active"`
	Description   string       `bun:"description,nullzero" json:"description,omitempty"`
	CreatedAt     time.Time    `bun:"created_at,notnull" json:"created_at"`
}
