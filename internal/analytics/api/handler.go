package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"cinebook/internal/analytics"
	"cinebook/internal/auth"
	"cinebook/internal/logger"
	"cinebook/internal/utils"
)

// Handler exposes show sales analytics to admins.
type Handler struct {
	Service *analytics.Service
	Logger  *logger.Logger
}

// ShowAnalytics handles GET /admin/shows/{showId}/analytics. The optional
// `status` query filters by booking status; most callers want CONFIRMED.
func (h *Handler) ShowAnalytics(w http.ResponseWriter, r *http.Request) {
	if !auth.IsAdmin(r.Context()) {
		h.writeJSON(w, http.StatusForbidden, utils.ErrorResponse("Forbidden", "admin role required"))
		return
	}

	showID := chi.URLParam(r, "showId")
	status := r.URL.Query().Get("status")

	result, err := h.Service.GetShowAnalytics(r.Context(), showID, status)
	if err != nil {
		h.Logger.Error("ANALYTICS", fmt.Sprintf("Failed to aggregate show %s: %v", showID, err))
		h.writeJSON(w, http.StatusInternalServerError, utils.ErrorResponse("Failed to compute analytics", "internal error"))
		return
	}

	h.writeJSON(w, http.StatusOK, utils.SuccessResponse("Show analytics retrieved", result))
}

// ShowPromoAnalytics handles GET /admin/shows/{showId}/promo-analytics.
func (h *Handler) ShowPromoAnalytics(w http.ResponseWriter, r *http.Request) {
	if !auth.IsAdmin(r.Context()) {
		h.writeJSON(w, http.StatusForbidden, utils.ErrorResponse("Forbidden", "admin role required"))
		return
	}

	showID := chi.URLParam(r, "showId")
	status := r.URL.Query().Get("status")

	result, err := h.Service.GetShowPromoAnalytics(r.Context(), showID, status)
	if err != nil {
		h.Logger.Error("ANALYTICS", fmt.Sprintf("Failed to aggregate promo usage for show %s: %v", showID, err))
		h.writeJSON(w, http.StatusInternalServerError, utils.ErrorResponse("Failed to compute analytics", "internal error"))
		return
	}

	h.writeJSON(w, http.StatusOK, utils.SuccessResponse("Promo analytics retrieved", result))
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body utils.APIResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.Logger.Warn("ANALYTICS", fmt.Sprintf("Failed to encode response: %v", err))
	}
}
