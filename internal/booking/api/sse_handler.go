package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"cinebook/internal/auth"
	"cinebook/internal/booking"
	"cinebook/internal/logger"
	"cinebook/internal/sse"
)

// SSEHandler streams booking lifecycle events over Server-Sent Events.
// The payment page watches its booking instead of polling; the seat-map
// page watches a show to refresh occupancy.
type SSEHandler struct {
	Service *booking.Service
	Broker  *sse.Broker
	Logger  *logger.Logger
}

// HandleBookingEvents streams events for one booking to its owner.
func (h *SSEHandler) HandleBookingEvents(w http.ResponseWriter, r *http.Request) {
	bookingID := chi.URLParam(r, "bookingId")
	if bookingID == "" {
		http.Error(w, "booking ID is required", http.StatusBadRequest)
		return
	}

	// Ownership gate before the stream opens.
	if _, err := h.Service.GetBooking(r.Context(), auth.UserID(r.Context()), bookingID, auth.IsAdmin(r.Context())); err != nil {
		h.Logger.Warn("SSE", fmt.Sprintf("Booking events access denied for %s: %v", bookingID, err))
		http.Error(w, "booking not accessible", http.StatusForbidden)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	setupSSEHeaders(w)

	ctx := r.Context()
	eventChan := h.Broker.SubscribeToBooking(ctx, bookingID)

	fmt.Fprintf(w, "event: connected\ndata: {\"status\":\"connected\",\"booking_id\":\"%s\"}\n\n", bookingID)
	flusher.Flush()

	h.Logger.Info("SSE", fmt.Sprintf("Client connected to booking events for %s (user %s)", bookingID, auth.UserID(ctx)))

	for {
		select {
		case event, ok := <-eventChan:
			if !ok {
				return
			}
			jsonData, err := json.Marshal(event)
			if err != nil {
				h.Logger.Error("SSE", fmt.Sprintf("Failed to serialize booking event: %v", err))
				continue
			}
			fmt.Fprintf(w, "event: booking\ndata: %s\n\n", jsonData)
			flusher.Flush()

		case <-ctx.Done():
			h.Logger.Debug("SSE", fmt.Sprintf("Client disconnected from booking events for %s", bookingID))
			return
		}
	}
}

// HandleShowEvents streams every booking event touching a show, so seat-map
// clients can re-fetch occupancy when it changes.
func (h *SSEHandler) HandleShowEvents(w http.ResponseWriter, r *http.Request) {
	showID := chi.URLParam(r, "showId")
	if showID == "" {
		http.Error(w, "show ID is required", http.StatusBadRequest)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	setupSSEHeaders(w)

	ctx := r.Context()
	eventChan := h.Broker.SubscribeToShow(ctx, showID)

	fmt.Fprintf(w, "event: connected\ndata: {\"status\":\"connected\",\"show_id\":\"%s\"}\n\n", showID)
	flusher.Flush()

	for {
		select {
		case event, ok := <-eventChan:
			if !ok {
				return
			}
			// Seat-map clients only need the trigger, not the booking
			// details of strangers.
			jsonData, err := json.Marshal(map[string]string{
				"type":    event.Type,
				"show_id": event.ShowID,
			})
			if err != nil {
				h.Logger.Error("SSE", fmt.Sprintf("Failed to serialize show event: %v", err))
				continue
			}
			fmt.Fprintf(w, "event: seats\ndata: %s\n\n", jsonData)
			flusher.Flush()

		case <-ctx.Done():
			h.Logger.Debug("SSE", fmt.Sprintf("Client disconnected from show events for %s", showID))
			return
		}
	}
}

func setupSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream;charset=UTF-8")
	w.Header().Set("Cache-Control", "no-cache, no-store, max-age=0, must-revalidate")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("X-Content-Type-Options", "nosniff")
}
