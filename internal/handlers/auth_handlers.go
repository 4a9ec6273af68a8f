package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"

	"github.com/linea-events/linea-auth/internal/domain"
	"github.com/linea-events/linea-auth/pkg/logger"
)

// RequestMagicLink issues a LOGIN token and emails the link. With
// AUTH_EXPOSE_LINKS enabled the raw link comes back in the response
// instead (development and demo environments only).
func (h *Handlers) RequestMagicLink(w http.ResponseWriter, r *http.Request) {
	var req domain.MagicLinkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON format", "INVALID_INPUT")
		return
	}
	req.Normalize()

	t, link, err := h.tokenService.Issue(r.Context(), req.Email, domain.PurposeLogin)
	if err != nil {
		h.writeIssueError(w, r, err)
		return
	}

	if h.config.Auth.ExposeLinks {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"ok":        true,
			"magicLink": link,
			"expiresIn": int64(t.ExpiresAt.Sub(t.IssuedAt).Seconds()),
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ok":      true,
		"message": "If that address is valid, a sign-in link is on its way.",
	})
}

// Callback verifies a LOGIN token, creates the user on first sign-in,
// opens a session and redirects to the app with the session cookie set.
func (h *Handlers) Callback(w http.ResponseWriter, r *http.Request) {
	email, err := h.tokenService.Verify(r.Context(), r.URL.Query().Get("token"), domain.PurposeLogin)
	if err != nil {
		h.writeVerifyError(w, r, err)
		return
	}

	h.openSession(w, r, email, "", domain.RoleVisitor)
}

// RegisterOwner issues an OWNER_INVITATION token. The invitee's name
// rides along in the callback URL so the account can be created with it.
func (h *Handlers) RegisterOwner(w http.ResponseWriter, r *http.Request) {
	var req domain.OwnerRegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON format", "INVALID_INPUT")
		return
	}
	req.Normalize()
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "INVALID_INPUT")
		return
	}

	t, link, err := h.tokenService.Issue(r.Context(), req.Email, domain.PurposeOwnerInvitation)
	if err != nil {
		h.writeIssueError(w, r, err)
		return
	}
	link += "&name=" + url.QueryEscape(req.Name)

	if h.config.Auth.ExposeLinks {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"ok":        true,
			"magicLink": link,
			"expiresIn": int64(t.ExpiresAt.Sub(t.IssuedAt).Seconds()),
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ok":      true,
		"message": "If that address is valid, an invitation link is on its way.",
	})
}

// OwnerCallback is the OWNER_INVITATION analogue of Callback.
func (h *Handlers) OwnerCallback(w http.ResponseWriter, r *http.Request) {
	email, err := h.tokenService.Verify(r.Context(), r.URL.Query().Get("token"), domain.PurposeOwnerInvitation)
	if err != nil {
		h.writeVerifyError(w, r, err)
		return
	}

	h.openSession(w, r, email, r.URL.Query().Get("name"), domain.RoleOwner)
}

// Me reports the caller's identity from the session cookie. Never 401s:
// an anonymous caller is a valid answer, not an error.
func (h *Handlers) Me(w http.ResponseWriter, r *http.Request) {
	sess := h.resolveSession(r)
	if sess == nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{"authenticated": false})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"authenticated": true,
		"user": map[string]interface{}{
			"id":           sess.UserID,
			"email":        sess.Email,
			"role":         sess.Role,
			"display_name": sess.DisplayName,
		},
	})
}

// Logout revokes the session and clears the cookie. Idempotent: a
// missing or already-revoked session still signs out cleanly.
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(h.config.Auth.SessionCookieName); err == nil {
		if err := h.sessionService.Revoke(r.Context(), cookie.Value); err != nil {
			logger.ErrorContext(r.Context(), "Session revocation failed", "error", err)
		}
	}

	h.clearSessionCookie(w)
	writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true})
}

func (h *Handlers) openSession(w http.ResponseWriter, r *http.Request, email, displayName string, role domain.Role) {
	user, err := h.users.UpsertByEmail(r.Context(), email, displayName, role)
	if err != nil {
		logger.ErrorContext(r.Context(), "Failed to upsert user after verification", "error", err)
		writeError(w, http.StatusInternalServerError, "Something went wrong", "INTERNAL_ERROR")
		return
	}

	sess, err := h.sessionService.Create(r.Context(), user)
	if err != nil {
		logger.ErrorContext(r.Context(), "Failed to create session", "error", err)
		writeError(w, http.StatusInternalServerError, "Something went wrong", "INTERNAL_ERROR")
		return
	}

	h.setSessionCookie(w, sess.Token)
	http.Redirect(w, r, h.config.Server.PublicBaseURL, http.StatusFound)
}

func (h *Handlers) writeIssueError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidEmail):
		writeError(w, http.StatusBadRequest, "A valid email address is required", "INVALID_INPUT")
	case errors.Is(err, domain.ErrRateLimited):
		writeJSON(w, http.StatusTooManyRequests, map[string]interface{}{
			"error":      "Too many requests. Please try again later.",
			"code":       "RATE_LIMIT_EXCEEDED",
			"retryAfter": int64(h.config.Auth.RateLimitWindow.Seconds()),
		})
	default:
		logger.ErrorContext(r.Context(), "Token issuance failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Something went wrong", "INTERNAL_ERROR")
	}
}

// writeVerifyError collapses every verification failure into one
// message so callers cannot probe which case they hit.
func (h *Handlers) writeVerifyError(w http.ResponseWriter, r *http.Request, err error) {
	if isTokenError(err) {
		writeError(w, http.StatusBadRequest, "Invalid or expired token", "INVALID_TOKEN")
		return
	}
	logger.ErrorContext(r.Context(), "Token verification failed", "error", err)
	writeError(w, http.StatusInternalServerError, "Something went wrong", "INTERNAL_ERROR")
}
