package seatledger

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"cinebook/internal/logger"
)

// Holds places short-lived advisory seat holds in redis while a user works
// through checkout. A hold is a fast-path filter in front of the ledger
// CAS, never a reservation: expiry just means the next claim decides at
// the database.
type Holds struct {
	Client *redis.Client
	TTL    time.Duration
	Log    *logger.Logger
}

func NewHolds(client *redis.Client, ttl time.Duration, log *logger.Logger) *Holds {
	return &Holds{Client: client, TTL: ttl, Log: log}
}

func holdKey(showID, seatKey string) string {
	return fmt.Sprintf("seat_hold:%s:%s", showID, seatKey)
}

// Hold takes holds on every seat or none of them. A non-empty return
// names the seats already held by someone else.
func (h *Holds) Hold(ctx context.Context, showID string, seatKeys []string, holder string) ([]string, error) {
	held := []string{}
	for i, seat := range seatKeys {
		ok, err := h.Client.SetNX(ctx, holdKey(showID, seat), holder, h.TTL).Result()
		if err != nil {
			h.rollback(ctx, showID, held, holder)
			return nil, fmt.Errorf("redis hold error: %w", err)
		}
		if !ok {
			h.rollback(ctx, showID, held, holder)
			return h.contended(ctx, showID, seatKeys[i:]), nil
		}
		held = append(held, seat)
	}
	return nil, nil
}

// contended reports which of the remaining seats carry a foreign hold.
// The first seat is always included; its SetNX just lost. Our own holds
// were rolled back before this runs, so any surviving key is foreign.
func (h *Holds) contended(ctx context.Context, showID string, seats []string) []string {
	conflicts := []string{seats[0]}
	for _, seat := range seats[1:] {
		n, err := h.Client.Exists(ctx, holdKey(showID, seat)).Result()
		if err == nil && n > 0 {
			conflicts = append(conflicts, seat)
		}
	}
	return conflicts
}

// Release drops the caller's holds. Holds owned by someone else and
// already-expired holds are left alone.
func (h *Holds) Release(ctx context.Context, showID string, seatKeys []string, holder string) error {
	var firstErr error
	for _, seat := range seatKeys {
		if err := h.releaseOne(ctx, showID, seat, holder); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (h *Holds) releaseOne(ctx context.Context, showID, seat, holder string) error {
	key := holdKey(showID, seat)
	val, err := h.Client.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil // already expired or released
	}
	if err != nil {
		return err
	}
	if val == holder {
		_, err = h.Client.Del(ctx, key).Result()
		return err
	}
	return nil
}

func (h *Holds) rollback(ctx context.Context, showID string, held []string, holder string) {
	for _, seat := range held {
		if err := h.releaseOne(ctx, showID, seat, holder); err != nil && h.Log != nil {
			h.Log.Warn("LEDGER", fmt.Sprintf("failed to roll back hold on %s/%s: %v", showID, seat, err))
		}
	}
}
