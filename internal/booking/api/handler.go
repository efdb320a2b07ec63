package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"cinebook/internal/auth"
	"cinebook/internal/booking"
	"cinebook/internal/booking/qr"
	"cinebook/internal/logger"
	"cinebook/internal/models"
	"cinebook/internal/pricing"
	"cinebook/internal/utils"
)

type Handler struct {
	Service       *booking.Service
	QR            *qr.Generator
	WebhookSecret string
	Logger        *logger.Logger
}

type createBookingRequest struct {
	ShowID        string   `json:"show_id"`
	Seats         []string `json:"seats"`
	PromoCode     string   `json:"promo_code,omitempty"`
	LoyaltyPoints int64    `json:"loyalty_points,omitempty"`
}

func (h *Handler) CreateBooking(w http.ResponseWriter, r *http.Request) {
	var req createBookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeJSON(w, http.StatusBadRequest, utils.ErrorResponse("Invalid request body", err.Error()))
		return
	}
	if req.ShowID == "" {
		h.writeJSON(w, http.StatusBadRequest, utils.ErrorResponse("Invalid request body", "show_id is required"))
		return
	}

	userID := auth.UserID(r.Context())
	payment, err := h.Service.Reserve(r.Context(), userID, req.ShowID, req.Seats, req.PromoCode, req.LoyaltyPoints)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, utils.SuccessResponse("Booking created, awaiting payment", payment))
}

func (h *Handler) ListBookings(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	bookings, err := h.Service.ListBookings(r.Context(), userID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, utils.SuccessResponse("Bookings retrieved", bookings))
}

func (h *Handler) GetBooking(w http.ResponseWriter, r *http.Request) {
	bookingID := chi.URLParam(r, "bookingId")
	result, err := h.Service.GetBooking(r.Context(), auth.UserID(r.Context()), bookingID, auth.IsAdmin(r.Context()))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, utils.SuccessResponse("Booking retrieved", result))
}

func (h *Handler) RetryPayment(w http.ResponseWriter, r *http.Request) {
	bookingID := chi.URLParam(r, "bookingId")
	payment, err := h.Service.RetryPayment(r.Context(), auth.UserID(r.Context()), bookingID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, utils.SuccessResponse("Payment session recreated", payment))
}

func (h *Handler) CancelBooking(w http.ResponseWriter, r *http.Request) {
	bookingID := chi.URLParam(r, "bookingId")
	refund, err := h.Service.Cancel(r.Context(), auth.UserID(r.Context()), bookingID, auth.IsAdmin(r.Context()))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, utils.SuccessResponse("Booking cancelled", refund))
}

// TicketQR streams the entry QR code for a confirmed booking.
func (h *Handler) TicketQR(w http.ResponseWriter, r *http.Request) {
	bookingID := chi.URLParam(r, "bookingId")
	result, err := h.Service.GetBooking(r.Context(), auth.UserID(r.Context()), bookingID, auth.IsAdmin(r.Context()))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	if result.Booking.Status != models.BookingConfirmed {
		h.writeJSON(w, http.StatusConflict, utils.ErrorResponse("Ticket not available",
			fmt.Sprintf("booking is %s, only CONFIRMED bookings have tickets", result.Booking.Status)))
		return
	}

	png, err := h.QR.GenerateTicketQR(&result.Booking, result.Seats)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("Failed to generate QR for booking %s: %v", bookingID, err))
		h.writeJSON(w, http.StatusInternalServerError, utils.ErrorResponse("Failed to generate ticket", "internal error"))
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(png); err != nil {
		h.Logger.Warn("API", fmt.Sprintf("Failed to write QR response: %v", err))
	}
}

// ShowSeatMap returns the advisory FREE/HELD/BOOKED snapshot for a show.
func (h *Handler) ShowSeatMap(w http.ResponseWriter, r *http.Request) {
	showID := chi.URLParam(r, "showId")
	seats, err := h.Service.SeatMap(r.Context(), showID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, utils.SuccessResponse("Seat map retrieved", seats))
}

// StripeWebhook is unauthenticated; the Stripe signature is the credential.
func (h *Handler) StripeWebhook(w http.ResponseWriter, r *http.Request) {
	if err := h.Service.HandleStripeWebhook(r, h.WebhookSecret); err != nil {
		var werr *booking.WebhookError
		if errors.As(err, &werr) {
			h.writeJSON(w, werr.StatusCode, utils.ErrorResponse("Webhook rejected", werr.PublicError))
			return
		}
		h.writeJSON(w, http.StatusInternalServerError, utils.ErrorResponse("Webhook rejected", "internal error"))
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) writeServiceError(w http.ResponseWriter, err error) {
	var (
		unavailable *booking.SeatsUnavailableError
		promoErr    *pricing.PromoError
		loyaltyErr  *pricing.LoyaltyError
		persistence *booking.PersistenceError
	)

	switch {
	case errors.As(err, &unavailable):
		h.writeJSON(w, http.StatusConflict, utils.ErrorResponse("Seats unavailable", unavailable.Error()))
	case errors.As(err, &promoErr):
		h.writeJSON(w, http.StatusUnprocessableEntity, utils.ErrorResponse("Promo code rejected", promoErr.Error()))
	case errors.As(err, &loyaltyErr):
		h.writeJSON(w, http.StatusUnprocessableEntity, utils.ErrorResponse("Loyalty points rejected", loyaltyErr.Error()))
	case errors.Is(err, booking.ErrBookingNotFound), errors.Is(err, booking.ErrShowNotFound):
		h.writeJSON(w, http.StatusNotFound, utils.ErrorResponse("Not found", err.Error()))
	case errors.Is(err, booking.ErrUnauthorized):
		h.writeJSON(w, http.StatusForbidden, utils.ErrorResponse("Forbidden", err.Error()))
	case errors.Is(err, booking.ErrNoSeats), errors.Is(err, booking.ErrTooManySeats):
		h.writeJSON(w, http.StatusBadRequest, utils.ErrorResponse("Invalid seat selection", err.Error()))
	case errors.Is(err, booking.ErrAlreadyCancelled),
		errors.Is(err, booking.ErrAlreadyTerminal),
		errors.Is(err, booking.ErrAlreadyPaid),
		errors.Is(err, booking.ErrShowStarted):
		h.writeJSON(w, http.StatusConflict, utils.ErrorResponse("Booking state conflict", err.Error()))
	case errors.Is(err, booking.ErrRetryLimitReached):
		h.writeJSON(w, http.StatusTooManyRequests, utils.ErrorResponse("Retry limit reached", err.Error()))
	case errors.As(err, &persistence):
		h.Logger.Error("API", fmt.Sprintf("Storage error: %v", err))
		h.writeJSON(w, http.StatusServiceUnavailable, utils.ErrorResponse("Service temporarily unavailable", "storage error"))
	default:
		h.Logger.Error("API", fmt.Sprintf("Unhandled service error: %v", err))
		h.writeJSON(w, http.StatusInternalServerError, utils.ErrorResponse("Internal error", "unexpected error"))
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body utils.APIResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.Logger.Warn("API", fmt.Sprintf("Failed to encode response: %v", err))
	}
}
