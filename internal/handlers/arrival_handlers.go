package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/linea-events/linea-auth/internal/domain"
	"github.com/linea-events/linea-auth/pkg/logger"
)

// ArrivalData serves the public check-in display payload for a hash.
func (h *Handlers) ArrivalData(w http.ResponseWriter, r *http.Request) {
	eventID, ok := parseEventID(w, r)
	if !ok {
		return
	}
	hash := chi.URLParam(r, "hash")

	display, err := h.arrivalService.DisplayData(r.Context(), eventID, hash)
	if err != nil {
		if errors.Is(err, domain.ErrArrivalNotFound) {
			writeError(w, http.StatusNotFound, "Arrival record not found", "NOT_FOUND")
			return
		}
		logger.ErrorContext(r.Context(), "Arrival display lookup failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Something went wrong", "INTERNAL_ERROR")
		return
	}

	writeJSON(w, http.StatusOK, display)
}

// ArrivalScan performs the one-time check-in transition. Requires an
// admin session or the owner of this event; responses are written for
// the staff member holding the scanner, so they stay specific.
func (h *Handlers) ArrivalScan(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	if sess == nil {
		writeError(w, http.StatusUnauthorized, "Authentication required", "UNAUTHORIZED")
		return
	}

	eventID, ok := parseEventID(w, r)
	if !ok {
		return
	}
	hash := chi.URLParam(r, "hash")

	event, err := h.arrivalService.Event(r.Context(), eventID)
	if err != nil {
		if errors.Is(err, domain.ErrEventNotFound) {
			writeError(w, http.StatusNotFound, "Event not found", "NOT_FOUND")
			return
		}
		logger.ErrorContext(r.Context(), "Event lookup failed during scan", "error", err)
		writeError(w, http.StatusInternalServerError, "Something went wrong", "INTERNAL_ERROR")
		return
	}

	ownsEvent := event.OwnerID == sess.UserID
	if !domain.CanManageEvent(sess.Role, ownsEvent) {
		writeError(w, http.StatusForbidden, "You are not allowed to check in guests for this event", "FORBIDDEN")
		return
	}

	outcome, eventTitle, err := h.arrivalService.Scan(r.Context(), eventID, hash)
	if err != nil {
		if errors.Is(err, domain.ErrArrivalNotFound) {
			writeError(w, http.StatusNotFound, "Arrival record not found", "NOT_FOUND")
			return
		}
		logger.ErrorContext(r.Context(), "Arrival scan failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Something went wrong", "INTERNAL_ERROR")
		return
	}

	message := fmt.Sprintf("%s checked in", outcome.Email)
	if outcome.Status == domain.AlreadyArrived {
		message = fmt.Sprintf("%s already checked in at %s", outcome.Email, outcome.ArrivedAt.Format("15:04:05"))
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":    true,
		"status":     outcome.Status,
		"message":    message,
		"eventTitle": eventTitle,
		"userEmail":  outcome.Email,
		"arrivedAt":  outcome.ArrivedAt,
	})
}

func parseEventID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	eventID, err := strconv.ParseInt(chi.URLParam(r, "eventID"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid event ID", "INVALID_INPUT")
		return 0, false
	}
	return eventID, true
}
