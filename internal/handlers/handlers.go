package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/linea-events/linea-auth/internal/domain"
	"github.com/linea-events/linea-auth/internal/repository"
	"github.com/linea-events/linea-auth/internal/service"
	"github.com/linea-events/linea-auth/pkg/config"
	"github.com/linea-events/linea-auth/pkg/logger"
)

type Handlers struct {
	tokenService   service.TokenService
	sessionService service.SessionService
	arrivalService service.ArrivalService
	users          repository.UserRepository
	config         *config.Config
}

func New(
	tokenService service.TokenService,
	sessionService service.SessionService,
	arrivalService service.ArrivalService,
	users repository.UserRepository,
	cfg *config.Config,
) *Handlers {
	return &Handlers{
		tokenService:   tokenService,
		sessionService: sessionService,
		arrivalService: arrivalService,
		users:          users,
		config:         cfg,
	}
}

type ctxKey string

const ctxSession ctxKey = "session"

// RequireSession resolves the session cookie and rejects the request
// with 401 when no valid session exists. Store outages degrade inside
// the session service, not here.
func (h *Handlers) RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess := h.resolveSession(r)
		if sess == nil {
			writeError(w, http.StatusUnauthorized, "Authentication required", "UNAUTHORIZED")
			return
		}

		ctx := context.WithValue(r.Context(), ctxSession, sess)
		ctx = context.WithValue(ctx, logger.UserIDKey, sess.UserID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h *Handlers) resolveSession(r *http.Request) *domain.Session {
	cookie, err := r.Cookie(h.config.Auth.SessionCookieName)
	if err != nil || cookie.Value == "" {
		return nil
	}

	sess, err := h.sessionService.Resolve(r.Context(), cookie.Value)
	if err != nil {
		if !errors.Is(err, domain.ErrSessionNotFound) {
			logger.ErrorContext(r.Context(), "Session resolution failed", "error", err)
		}
		return nil
	}
	return sess
}

func sessionFrom(r *http.Request) *domain.Session {
	if sess, ok := r.Context().Value(ctxSession).(*domain.Session); ok {
		return sess
	}
	return nil
}

func (h *Handlers) setSessionCookie(w http.ResponseWriter, sessionToken string) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.config.Auth.SessionCookieName,
		Value:    sessionToken,
		Path:     "/",
		MaxAge:   int(h.config.Auth.SessionTTL.Seconds()),
		HttpOnly: true,
		Secure:   h.config.Auth.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *Handlers) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.config.Auth.SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.config.Auth.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, statusCode int, message, code string) {
	writeJSON(w, statusCode, map[string]string{
		"error": message,
		"code":  code,
	})
}

// isTokenError reports whether err is one of the verification failure
// cases that must all surface as the same generic message.
func isTokenError(err error) bool {
	return errors.Is(err, domain.ErrTokenNotFound) ||
		errors.Is(err, domain.ErrTokenExpired) ||
		errors.Is(err, domain.ErrTokenConsumed) ||
		errors.Is(err, domain.ErrTokenPurpose)
}
