// Package seatledger is the authoritative per-show seat occupancy record.
// Every mutation goes through Claim or Release, both of which serialize on
// the show row's version column so two concurrent claims for overlapping
// seats can never both succeed.
package seatledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/uptrace/bun"

	"cinebook/internal/logger"
	"cinebook/internal/models"
)

var (
	ErrShowNotFound = errors.New("show not found")

	// ErrContention means the claim lost the version race more times than
	// the retry budget allows. Callers surface it as a retryable failure.
	ErrContention = errors.New("seat ledger contention, retries exhausted")

	errVersionMoved = errors.New("show version moved")
)

// ConflictError names the seats that were no longer free when a claim was
// attempted. The claim took nothing; the user must re-select.
type ConflictError struct {
	ShowID string
	Seats  []string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("seats no longer available for show %s: %s", e.ShowID, strings.Join(e.Seats, ", "))
}

type Ledger struct {
	db         *bun.DB
	log        *logger.Logger
	maxRetries int
}

func New(db *bun.DB, log *logger.Logger, maxRetries int) *Ledger {
	if maxRetries < 1 {
		maxRetries = 1
	}
	return &Ledger{db: db, log: log, maxRetries: maxRetries}
}

// IsAvailable reports whether none of the seat keys currently has a holder.
// This is a point-in-time snapshot for rendering; Claim re-checks under the
// show lock and is the only authority.
func (l *Ledger) IsAvailable(ctx context.Context, showID string, seatKeys []string) (bool, []string, error) {
	taken, err := l.takenSeats(ctx, l.db, showID, seatKeys)
	if err != nil {
		return false, nil, err
	}
	return len(taken) == 0, taken, nil
}

// Claim atomically records holder against every seat key, or none of them.
// If any seat is already held it returns a ConflictError naming the taken
// seats. The version bump on the show row acts as the per-show lock: a
// concurrent claim either blocks behind it or fails the compare-and-swap
// and retries against the fresh state.
func (l *Ledger) Claim(ctx context.Context, showID string, seatKeys []string, holder string) error {
	for attempt := 0; attempt < l.maxRetries; attempt++ {
		err := l.tryClaim(ctx, showID, seatKeys, holder)
		if errors.Is(err, errVersionMoved) {
			continue
		}
		if err == nil {
			l.log.LogLedger("CLAIM", showID, fmt.Sprintf("%d seat(s) claimed by %s", len(seatKeys), holder))
		}
		return err
	}
	l.log.Warn("LEDGER", fmt.Sprintf("claim on show %s exhausted %d retries", showID, l.maxRetries))
	return ErrContention
}

func (l *Ledger) tryClaim(ctx context.Context, showID string, seatKeys []string, holder string) error {
	version, err := l.currentVersion(ctx, showID)
	if err != nil {
		return err
	}

	tx, err := l.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin claim tx: %w", err)
	}
	defer tx.Rollback()

	// The conditional bump is taken first so a concurrent claim on the
	// same show serializes behind this row before reading seat state.
	res, err := tx.NewUpdate().
		Model((*models.Show)(nil)).
		Set("version = version + 1").
		Where("id = ? AND version = ?", showID, version).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("bump show version: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return errVersionMoved
	}

	taken, err := l.takenSeats(ctx, tx, showID, seatKeys)
	if err != nil {
		return err
	}
	if len(taken) > 0 {
		return &ConflictError{ShowID: showID, Seats: taken}
	}

	claims := make([]models.SeatClaim, 0, len(seatKeys))
	now := time.Now()
	for _, key := range seatKeys {
		claims = append(claims, models.SeatClaim{
			ShowID:  showID,
			SeatKey: key,
			Holder:  holder,
			HeldAt:  now,
		})
	}
	if _, err := tx.NewInsert().Model(&claims).Exec(ctx); err != nil {
		return fmt.Errorf("insert seat claims: %w", err)
	}

	return tx.Commit()
}

// Release removes holder entries for the given seats unconditionally.
// Releasing an already-free seat is a no-op, never an error.
func (l *Ledger) Release(ctx context.Context, showID string, seatKeys []string) error {
	if len(seatKeys) == 0 {
		return nil
	}

	tx, err := l.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin release tx: %w", err)
	}
	defer tx.Rollback()

	// Unconditional bump, same serialization point as Claim.
	res, err := tx.NewUpdate().
		Model((*models.Show)(nil)).
		Set("version = version + 1").
		Where("id = ?", showID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("bump show version: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrShowNotFound
	}

	if _, err := tx.NewDelete().
		Model((*models.SeatClaim)(nil)).
		Where("show_id = ?", showID).
		Where("seat_key IN (?)", bun.In(seatKeys)).
		Exec(ctx); err != nil {
		return fmt.Errorf("delete seat claims: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	l.log.LogLedger("RELEASE", showID, fmt.Sprintf("%d seat(s) released", len(seatKeys)))
	return nil
}

// Snapshot returns the current seat-key to holder map for a show. Advisory
// only; it is stale the moment it is read.
func (l *Ledger) Snapshot(ctx context.Context, showID string) (map[string]string, error) {
	var claims []models.SeatClaim
	err := l.db.NewSelect().
		Model(&claims).
		Where("show_id = ?", showID).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("load seat claims: %w", err)
	}

	out := make(map[string]string, len(claims))
	for _, c := range claims {
		out[c.SeatKey] = c.Holder
	}
	return out, nil
}

func (l *Ledger) currentVersion(ctx context.Context, showID string) (int64, error) {
	var version int64
	err := l.db.NewSelect().
		Model((*models.Show)(nil)).
		Column("version").
		Where("id = ?", showID).
		Scan(ctx, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrShowNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("load show version: %w", err)
	}
	return version, nil
}

func (l *Ledger) takenSeats(ctx context.Context, db bun.IDB, showID string, seatKeys []string) ([]string, error) {
	if len(seatKeys) == 0 {
		return nil, nil
	}
	var taken []string
	err := db.NewSelect().
		Model((*models.SeatClaim)(nil)).
		Column("seat_key").
		Where("show_id = ?", showID).
		Where("seat_key IN (?)", bun.In(seatKeys)).
		Scan(ctx, &taken)
	if err != nil {
		return nil, fmt.Errorf("check seat availability: %w", err)
	}
	return taken, nil
}
