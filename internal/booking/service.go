package booking

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"cinebook/internal/booking/db"
	"cinebook/internal/config"
	"cinebook/internal/layout"
	"cinebook/internal/logger"
	"cinebook/internal/models"
	"cinebook/internal/pricing"
	"cinebook/internal/seatledger"
	"cinebook/internal/utils"
)

type DBLayer interface {
	GetShow(ctx context.Context, id string) (*models.Show, error)
	CreateBooking(ctx context.Context, booking *models.Booking, seats []models.BookingSeat) error
	GetBookingByID(ctx context.Context, id string) (*models.Booking, error)
	GetSeatsByBooking(ctx context.Context, bookingID string) ([]models.BookingSeat, error)
	GetBookingsWithSeatsByUser(ctx context.Context, userID string) ([]models.BookingWithSeats, error)
	ListPendingBookings(ctx context.Context) ([]models.Booking, error)
	ConfirmedSeatKeys(ctx context.Context, showID string) ([]string, error)
	MarkConfirmed(ctx context.Context, id string) (bool, error)
	MarkFailedIfPending(ctx context.Context, id string) (bool, error)
	MarkCancelled(ctx context.Context, id string, refund float64, at time.Time) (bool, error)
	SetPaymentSession(ctx context.Context, id, sessionID, url string) error
	IncrementRetryCount(ctx context.Context, id string, max int) (bool, error)
	GetPromo(ctx context.Context, code string) (*models.PromoCode, error)
	IncrementPromoUsage(ctx context.Context, code string) error
	EnsureUser(ctx context.Context, userID string) (*models.User, error)
	AdjustLoyalty(ctx context.Context, userID string, pointsDelta int64, spendDelta float64) error
}

// SeatLedger is the authoritative occupancy record; Claim is all-or-nothing.
type SeatLedger interface {
	Claim(ctx context.Context, showID string, seatKeys []string, holder string) error
	Release(ctx context.Context, showID string, seatKeys []string) error
	Snapshot(ctx context.Context, showID string) (map[string]string, error)
}

// SeatHolder is the optional redis fast path in front of the ledger.
type SeatHolder interface {
	Hold(ctx context.Context, showID string, seatKeys []string, holder string) (conflicts []string, err error)
	Release(ctx context.Context, showID string, seatKeys []string, holder string) error
}

type LayoutProvider interface {
	LayoutForShow(showID string) (*layout.Layout, error)
}

type CheckoutRequest struct {
	BookingID   string
	Amount      float64
	Currency    string
	Description string
	ExpiresAt   time.Time
}

type CheckoutSession struct {
	ID  string
	URL string
}

type PaymentGateway interface {
	CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error)
}

// Scheduler is the external "call me back at T" collaborator that drives
// the payment timeout.
type Scheduler interface {
	SchedulePaymentCheck(bookingID string, at time.Time)
}

type EventPublisher interface {
	PublishBookingEvent(event models.BookingEvent) error
}

type Deps struct {
	DB         DBLayer
	Ledger     SeatLedger
	Holds      SeatHolder
	Pricing    *pricing.Engine
	Layouts    LayoutProvider
	Payments   PaymentGateway
	Scheduler  Scheduler
	Events     EventPublisher
	Logger     *logger.Logger
	BookingCfg config.BookingConfig
	PricingCfg config.PricingConfig
}

type Service struct {
	DB       DBLayer
	Ledger   SeatLedger
	Holds    SeatHolder
	Pricing  *pricing.Engine
	Layouts  LayoutProvider
	Payments PaymentGateway

	scheduler  Scheduler
	events     EventPublisher
	logger     *logger.Logger
	cfg        config.BookingConfig
	pricingCfg config.PricingConfig
	now        func() time.Time
}

func NewService(d Deps) *Service {
	return &Service{
		DB:         d.DB,
		Ledger:     d.Ledger,
		Holds:      d.Holds,
		Pricing:    d.Pricing,
		Layouts:    d.Layouts,
		Payments:   d.Payments,
		scheduler:  d.Scheduler,
		events:     d.Events,
		logger:     d.Logger,
		cfg:        d.BookingCfg,
		pricingCfg: d.PricingCfg,
		now:        time.Now,
	}
}

// SetScheduler wires the timeout scheduler after construction; the
// in-process scheduler needs the service to exist first.
func (s *Service) SetScheduler(sched Scheduler) { s.scheduler = sched }

// Reserve attempts to claim seatKeys for userID on a show, price them, and
// open a payment session. On success the booking is PENDING with its seats
// held in the ledger; every failure path after the claim releases them
// again, so a rejected reservation never leaves seats stranded.
func (s *Service) Reserve(ctx context.Context, userID, showID string, seatKeys []string, promoCode string, loyaltyPoints int64) (*models.PaymentRequest, error) {
	seatKeys = dedupe(seatKeys)
	if len(seatKeys) == 0 {
		return nil, ErrNoSeats
	}
	if len(seatKeys) > s.cfg.SeatsPerBookingCap {
		return nil, fmt.Errorf("%w: %d seats requested, cap is %d", ErrTooManySeats, len(seatKeys), s.cfg.SeatsPerBookingCap)
	}

	show, err := s.DB.GetShow(ctx, showID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrShowNotFound
	}
	if err != nil {
		return nil, &PersistenceError{Op: "load show", Err: err}
	}

	now := s.now()
	if now.After(show.StartTime) {
		return nil, ErrShowStarted
	}

	quoteSeats, err := s.resolveTiers(showID, seatKeys)
	if err != nil {
		return nil, err
	}

	// Advisory redis hold first: cheap rejection while the user is racing
	// someone through checkout. The ledger claim below is the authority.
	if s.Holds != nil {
		conflicts, err := s.Holds.Hold(ctx, showID, seatKeys, userID)
		if err != nil {
			s.logger.Warn("BOOKING", fmt.Sprintf("seat hold error for show %s, falling through to ledger: %v", showID, err))
		} else if len(conflicts) > 0 {
			return nil, &SeatsUnavailableError{Seats: conflicts}
		} else {
			defer func() {
				if err := s.Holds.Release(context.Background(), showID, seatKeys, userID); err != nil {
					s.logger.Warn("BOOKING", fmt.Sprintf("failed to release seat holds for show %s: %v", showID, err))
				}
			}()
		}
	}

	if err := s.Ledger.Claim(ctx, showID, seatKeys, userID); err != nil {
		var conflict *seatledger.ConflictError
		if errors.As(err, &conflict) {
			return nil, &SeatsUnavailableError{Seats: conflict.Seats}
		}
		if errors.Is(err, seatledger.ErrShowNotFound) {
			return nil, ErrShowNotFound
		}
		return nil, &PersistenceError{Op: "claim seats", Err: err}
	}

	// From here on the seats are ours; bail out through release.
	release := func() {
		if err := s.Ledger.Release(context.Background(), showID, seatKeys); err != nil {
			s.logger.Error("BOOKING", fmt.Sprintf("compensating seat release failed for show %s seats %v: %v", showID, seatKeys, err))
		}
	}

	var promo *models.PromoCode
	if promoCode != "" {
		promo, err = s.DB.GetPromo(ctx, promoCode)
		if errors.Is(err, sql.ErrNoRows) {
			release()
			return nil, &pricing.PromoError{Code: strings.ToUpper(promoCode), Reason: pricing.PromoNotFound}
		}
		if err != nil {
			release()
			return nil, &PersistenceError{Op: "load promo code", Err: err}
		}
	}

	var account *models.User
	if loyaltyPoints > 0 {
		account, err = s.DB.EnsureUser(ctx, userID)
		if err != nil {
			release()
			return nil, &PersistenceError{Op: "load loyalty account", Err: err}
		}
	}

	quote, err := s.Pricing.Quote(show, quoteSeats, promo, loyaltyPoints, account, now)
	if err != nil {
		release()
		return nil, err
	}

	booking := &models.Booking{
		ID:                uuid.NewString(),
		Reference:         utils.GenerateBookingReference(),
		UserID:            userID,
		ShowID:            showID,
		Status:            models.BookingPending,
		Amount:            quote.Final,
		OriginalAmount:    quote.Subtotal,
		DiscountAmount:    quote.PromoDiscount + quote.LoyaltyDiscount,
		PromoCode:         quote.PromoCode,
		LoyaltyPointsUsed: quote.PointsUsed,
		CreatedAt:         now,
	}

	seats := make([]models.BookingSeat, 0, len(quote.Seats))
	for _, sp := range quote.Seats {
		seats = append(seats, models.BookingSeat{
			BookingID: booking.ID,
			SeatKey:   sp.SeatKey,
			ShowID:    showID,
			Tier:      sp.Tier,
			Price:     sp.Price,
		})
	}

	if err := s.DB.CreateBooking(ctx, booking, seats); err != nil {
		release()
		return nil, &PersistenceError{Op: "create booking", Err: err}
	}

	if promo != nil {
		if err := s.DB.IncrementPromoUsage(ctx, promo.Code); err != nil {
			s.failAndRelease(ctx, booking.ID, showID, seatKeys)
			if errors.Is(err, db.ErrPromoExhausted) {
				return nil, &pricing.PromoError{Code: promo.Code, Reason: pricing.PromoLimitReached}
			}
			return nil, &PersistenceError{Op: "redeem promo code", Err: err}
		}
	}

	if quote.PointsUsed > 0 {
		if err := s.DB.AdjustLoyalty(ctx, userID, -quote.PointsUsed, 0); err != nil {
			s.failAndRelease(ctx, booking.ID, showID, seatKeys)
			return nil, &PersistenceError{Op: "deduct loyalty points", Err: err}
		}
	}

	expiresAt := now.Add(s.cfg.PaymentTimeout)
	session, err := s.Payments.CreateCheckoutSession(ctx, CheckoutRequest{
		BookingID:   booking.ID,
		Amount:      quote.Final,
		Currency:    s.pricingCfg.Currency,
		Description: show.MovieTitle,
		ExpiresAt:   expiresAt,
	})
	if err != nil {
		s.failAndRelease(ctx, booking.ID, showID, seatKeys)
		if quote.PointsUsed > 0 {
			if lerr := s.DB.AdjustLoyalty(ctx, userID, quote.PointsUsed, 0); lerr != nil {
				s.logger.Error("BOOKING", fmt.Sprintf("failed to restore %d loyalty points to %s: %v", quote.PointsUsed, userID, lerr))
			}
		}
		return nil, fmt.Errorf("create payment session: %w", err)
	}

	if err := s.DB.SetPaymentSession(ctx, booking.ID, session.ID, session.URL); err != nil {
		// The session exists and the timeout check is still scheduled;
		// losing the stored ref only degrades observability.
		s.logger.Error("BOOKING", fmt.Sprintf("failed to store payment session for booking %s: %v", booking.ID, err))
	}

	if s.scheduler != nil {
		s.scheduler.SchedulePaymentCheck(booking.ID, expiresAt)
	}

	s.publish("booking.created", booking, 0)
	s.logger.LogBooking("RESERVE", booking.ID, fmt.Sprintf("user %s, show %s, %d seat(s), %.2f %s",
		userID, showID, len(seatKeys), quote.Final, s.pricingCfg.Currency))

	return &models.PaymentRequest{
		BookingID:  booking.ID,
		Reference:  booking.Reference,
		Amount:     quote.Final,
		Currency:   s.pricingCfg.Currency,
		PaymentURL: session.URL,
		SessionRef: session.ID,
		ExpiresAt:  expiresAt,
	}, nil
}

// GetBooking returns a booking with seats, enforcing ownership unless the
// caller holds the admin capability.
func (s *Service) GetBooking(ctx context.Context, userID, bookingID string, isAdmin bool) (*models.BookingWithSeats, error) {
	booking, err := s.DB.GetBookingByID(ctx, bookingID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrBookingNotFound
	}
	if err != nil {
		return nil, &PersistenceError{Op: "load booking", Err: err}
	}
	if !isAdmin && booking.UserID != userID {
		return nil, ErrUnauthorized
	}

	seats, err := s.DB.GetSeatsByBooking(ctx, bookingID)
	if err != nil {
		return nil, &PersistenceError{Op: "load booking seats", Err: err}
	}
	return &models.BookingWithSeats{Booking: *booking, Seats: seats}, nil
}

func (s *Service) ListBookings(ctx context.Context, userID string) ([]models.BookingWithSeats, error) {
	bookings, err := s.DB.GetBookingsWithSeatsByUser(ctx, userID)
	if err != nil {
		return nil, &PersistenceError{Op: "list bookings", Err: err}
	}
	return bookings, nil
}

// SeatMap builds the advisory occupancy snapshot for rendering: every
// layout seat FREE unless currently claimed (HELD) or claimed by a
// CONFIRMED booking (BOOKED).
func (s *Service) SeatMap(ctx context.Context, showID string) (map[string]string, error) {
	l, err := s.Layouts.LayoutForShow(showID)
	if err != nil {
		return nil, ErrShowNotFound
	}

	claims, err := s.Ledger.Snapshot(ctx, showID)
	if err != nil {
		return nil, &PersistenceError{Op: "snapshot ledger", Err: err}
	}

	confirmed, err := s.DB.ConfirmedSeatKeys(ctx, showID)
	if err != nil {
		return nil, &PersistenceError{Op: "load confirmed seats", Err: err}
	}
	confirmedSet := make(map[string]bool, len(confirmed))
	for _, key := range confirmed {
		confirmedSet[key] = true
	}

	out := make(map[string]string, len(l.Seats))
	for _, seat := range l.Seats {
		switch {
		case confirmedSet[seat.SeatKey]:
			out[seat.SeatKey] = models.SeatBooked
		case claims[seat.SeatKey] != "":
			out[seat.SeatKey] = models.SeatHeld
		default:
			out[seat.SeatKey] = models.SeatFree
		}
	}
	return out, nil
}

func (s *Service) resolveTiers(showID string, seatKeys []string) ([]pricing.QuoteSeat, error) {
	l, err := s.Layouts.LayoutForShow(showID)
	if err != nil {
		return nil, fmt.Errorf("resolve layout for show %s: %w", showID, err)
	}

	seats := make([]pricing.QuoteSeat, 0, len(seatKeys))
	for _, key := range seatKeys {
		tier, ok := l.TierOf(key)
		if !ok {
			return nil, fmt.Errorf("seat %q does not exist in layout %s", key, l.Name)
		}
		seats = append(seats, pricing.QuoteSeat{SeatKey: key, Tier: tier})
	}
	return seats, nil
}

// failAndRelease is the compensating action for failures after the booking
// row exists: mark it FAILED and free its seats.
func (s *Service) failAndRelease(ctx context.Context, bookingID, showID string, seatKeys []string) {
	if _, err := s.DB.MarkFailedIfPending(ctx, bookingID); err != nil {
		s.logger.Error("BOOKING", fmt.Sprintf("failed to mark booking %s FAILED: %v", bookingID, err))
	}
	if err := s.Ledger.Release(ctx, showID, seatKeys); err != nil {
		s.logger.Error("BOOKING", fmt.Sprintf("compensating seat release failed for booking %s: %v", bookingID, err))
	}
}

func (s *Service) publish(eventType string, booking *models.Booking, refund float64) {
	if s.events == nil {
		return
	}
	err := s.events.PublishBookingEvent(models.BookingEvent{
		Type:         eventType,
		BookingID:    booking.ID,
		Reference:    booking.Reference,
		UserID:       booking.UserID,
		ShowID:       booking.ShowID,
		Status:       string(booking.Status),
		Amount:       booking.Amount,
		RefundAmount: refund,
		Timestamp:    s.now(),
	})
	if err != nil {
		s.logger.Warn("KAFKA", fmt.Sprintf("publish %s for booking %s: %v", eventType, booking.ID, err))
	}
}

func dedupe(keys []string) []string {
	seen := make(map[string]bool, len(keys))
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		k = strings.TrimSpace(k)
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, k)
	}
	return out
}
