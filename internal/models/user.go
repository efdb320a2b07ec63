package models

import (
	"time"

	"github.com/uptrace/bun"
)

// User carries the loyalty account. Identity itself comes from the auth
// provider; the ID here is the provider's subject claim.
type User struct {
	bun.BaseModel `bun:"table:users"`

	ID            string    `bun:"id,pk" json:"id"`
	Email         string    `bun:"email,nullzero" json:"email,omitempty"`
	FullName      string    `bun:"full_name,nullzero" json:"full_name,omitempty"`
	LoyaltyPoints int64     `bun:"loyalty_points,notnull,default:0" json:"loyalty_points"`
	TotalSpent    float64   `bun:"total_spent,notnull,default:0" json:"total_spent"`
	CreatedAt     time.Time `bun:"created_at,notnull" json:"created_at"`
}
