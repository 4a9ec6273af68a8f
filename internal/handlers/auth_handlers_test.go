package handlers_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/linea-events/linea-auth/internal/domain"
	"github.com/linea-events/linea-auth/internal/handlers"
	"github.com/linea-events/linea-auth/internal/repository"
	"github.com/linea-events/linea-auth/internal/service"
	"github.com/linea-events/linea-auth/pkg/config"
	"github.com/linea-events/linea-auth/pkg/events"
)

// quietMailer satisfies the mail dependency without printing banners.
type quietMailer struct{}

func (quietMailer) SendMagicLinkEmail(string, string, time.Duration) error { return nil }

func (quietMailer) SendOwnerInviteEmail(string, string, string, time.Duration) error { return nil }

type testEnv struct {
	router   chi.Router
	arrivals service.ArrivalService
	cfg      *config.Config
}

// newTestEnv wires the full stack on in-memory stores with raw links
// exposed, mirroring the production router layout.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	cfg := &config.Config{
		Server: config.ServerConfig{
			PublicBaseURL: "http://localhost:5173",
		},
		Auth: config.AuthConfig{
			SessionCookieName: "linea_session",
			SessionTTL:        7 * 24 * time.Hour,
			LoginTokenTTL:     15 * time.Minute,
			OwnerInviteTTL:    30 * time.Minute,
			RateLimitMax:      3,
			RateLimitWindow:   5 * time.Minute,
			ExposeLinks:       true,
		},
	}

	tokenRepo := repository.NewMemoryTokenRepository(nil)
	rateLimitRepo := repository.NewMemoryRateLimitRepository(nil)
	userRepo := repository.NewMemoryUserRepository(nil)
	sessionCache := repository.NewMemorySessionCache(nil)
	sessionMirror := repository.NewNoopSessionMirror()
	arrivalRepo := repository.NewMemoryArrivalRepository(nil)
	eventDir := repository.NewMemoryEventDirectory([]domain.EventInfo{
		{ID: 1, Title: "Launch Party", OwnerID: 1},
	})
	publisher := events.NoopPublisher{}

	tokenService := service.NewTokenService(tokenRepo, rateLimitRepo, quietMailer{}, publisher, cfg)
	sessionService := service.NewSessionService(sessionCache, sessionMirror, userRepo, publisher, cfg.Auth.SessionTTL, false)
	arrivalService := service.NewArrivalService(arrivalRepo, eventDir, publisher)

	h := handlers.New(tokenService, sessionService, arrivalService, userRepo, cfg)

	r := chi.NewRouter()
	r.Route("/auth", func(r chi.Router) {
		r.Post("/request-magic-link", h.RequestMagicLink)
		r.Get("/callback", h.Callback)
		r.Post("/register-owner", h.RegisterOwner)
		r.Get("/owner-callback", h.OwnerCallback)
		r.Get("/me", h.Me)
		r.Post("/logout", h.Logout)
	})
	r.Route("/api/events/{eventID}/arrival/{hash}", func(r chi.Router) {
		r.Get("/data", h.ArrivalData)
		r.With(h.RequireSession).Post("/scan", h.ArrivalScan)
	})

	return &testEnv{router: r, arrivals: arrivalService, cfg: cfg}
}

func (e *testEnv) do(t *testing.T, method, target, body string, cookie *http.Cookie) *httptest.ResponseRecorder {
	t.Helper()

	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	if cookie != nil {
		req.AddCookie(cookie)
	}

	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()

	var out map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return out
}

// requestLink posts to the given issue endpoint and returns the exposed
// magic link rewritten as a router-relative target.
func (e *testEnv) requestLink(t *testing.T, endpoint, body string) string {
	t.Helper()

	rec := e.do(t, http.MethodPost, endpoint, body, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("%s: expected 200, got %d: %s", endpoint, rec.Code, rec.Body.String())
	}
	resp := decodeBody(t, rec)
	link, _ := resp["magicLink"].(string)
	if link == "" {
		t.Fatalf("expected exposed magic link in %v", resp)
	}

	u, err := url.Parse(link)
	if err != nil {
		t.Fatalf("parse link %q: %v", link, err)
	}
	return u.RequestURI()
}

// signIn walks the full login flow and returns the session cookie.
func (e *testEnv) signIn(t *testing.T, email string) *http.Cookie {
	t.Helper()

	target := e.requestLink(t, "/auth/request-magic-link", fmt.Sprintf(`{"email":%q}`, email))
	return e.followCallback(t, target)
}

// registerOwner walks the invitation flow and returns the session cookie.
func (e *testEnv) registerOwner(t *testing.T, email, name string) *http.Cookie {
	t.Helper()

	target := e.requestLink(t, "/auth/register-owner", fmt.Sprintf(`{"email":%q,"name":%q}`, email, name))
	return e.followCallback(t, target)
}

func (e *testEnv) followCallback(t *testing.T, target string) *http.Cookie {
	t.Helper()

	rec := e.do(t, http.MethodGet, target, "", nil)
	if rec.Code != http.StatusFound {
		t.Fatalf("callback: expected 302, got %d: %s", rec.Code, rec.Body.String())
	}
	if loc := rec.Header().Get("Location"); loc != e.cfg.Server.PublicBaseURL {
		t.Fatalf("expected redirect to app, got %q", loc)
	}

	for _, c := range rec.Result().Cookies() {
		if c.Name == e.cfg.Auth.SessionCookieName && c.Value != "" {
			return c
		}
	}
	t.Fatal("expected session cookie on callback response")
	return nil
}

func TestMagicLinkLoginFlow(t *testing.T) {
	env := newTestEnv(t)

	cookie := env.signIn(t, "Bob@Example.com")
	if !cookie.HttpOnly {
		t.Fatal("session cookie must be HttpOnly")
	}

	rec := env.do(t, http.MethodGet, "/auth/me", "", cookie)
	if rec.Code != http.StatusOK {
		t.Fatalf("me: expected 200, got %d", rec.Code)
	}
	resp := decodeBody(t, rec)
	if resp["authenticated"] != true {
		t.Fatalf("expected authenticated session, got %v", resp)
	}
	user := resp["user"].(map[string]interface{})
	if user["email"] != "bob@example.com" {
		t.Fatalf("expected normalized email, got %v", user["email"])
	}
	if user["role"] != string(domain.RoleVisitor) {
		t.Fatalf("expected VISITOR role on first login, got %v", user["role"])
	}
}

func TestCallbackRejectsBadToken(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/auth/callback?token=lv_bogus", "", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	resp := decodeBody(t, rec)
	if resp["error"] != "Invalid or expired token" {
		t.Fatalf("expected generic token error, got %v", resp)
	}
}

func TestCallbackTokenIsSingleUse(t *testing.T) {
	env := newTestEnv(t)

	target := env.requestLink(t, "/auth/request-magic-link", `{"email":"bob@example.com"}`)

	if rec := env.do(t, http.MethodGet, target, "", nil); rec.Code != http.StatusFound {
		t.Fatalf("first callback: expected 302, got %d", rec.Code)
	}
	if rec := env.do(t, http.MethodGet, target, "", nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("second callback: expected 400, got %d", rec.Code)
	}
}

func TestMagicLinkRateLimit(t *testing.T) {
	env := newTestEnv(t)
	body := `{"email":"bob@example.com"}`

	for i := 0; i < 3; i++ {
		if rec := env.do(t, http.MethodPost, "/auth/request-magic-link", body, nil); rec.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i+1, rec.Code)
		}
	}

	rec := env.do(t, http.MethodPost, "/auth/request-magic-link", body, nil)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 on 4th request, got %d", rec.Code)
	}
	resp := decodeBody(t, rec)
	if resp["retryAfter"] != float64(300) {
		t.Fatalf("expected retryAfter 300, got %v", resp["retryAfter"])
	}
}

func TestInvalidEmailRejected(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/auth/request-magic-link", `{"email":"not-an-email"}`, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestLogout(t *testing.T) {
	env := newTestEnv(t)
	cookie := env.signIn(t, "bob@example.com")

	rec := env.do(t, http.MethodPost, "/auth/logout", "", cookie)
	if rec.Code != http.StatusOK {
		t.Fatalf("logout: expected 200, got %d", rec.Code)
	}
	cleared := false
	for _, c := range rec.Result().Cookies() {
		if c.Name == env.cfg.Auth.SessionCookieName && c.MaxAge < 0 {
			cleared = true
		}
	}
	if !cleared {
		t.Fatal("expected session cookie cleared on logout")
	}

	rec = env.do(t, http.MethodGet, "/auth/me", "", cookie)
	resp := decodeBody(t, rec)
	if resp["authenticated"] != false {
		t.Fatalf("expected anonymous after logout, got %v", resp)
	}

	// Logging out again with the dead cookie still succeeds.
	if rec := env.do(t, http.MethodPost, "/auth/logout", "", cookie); rec.Code != http.StatusOK {
		t.Fatalf("repeat logout: expected 200, got %d", rec.Code)
	}
}

func TestOwnerInvitationFlow(t *testing.T) {
	env := newTestEnv(t)
	cookie := env.registerOwner(t, "carol@example.com", "Carol")

	rec := env.do(t, http.MethodGet, "/auth/me", "", cookie)
	resp := decodeBody(t, rec)
	user := resp["user"].(map[string]interface{})
	if user["role"] != string(domain.RoleOwner) {
		t.Fatalf("expected OWNER role, got %v", user["role"])
	}
	if user["display_name"] != "Carol" {
		t.Fatalf("expected display name from invitation, got %v", user["display_name"])
	}
}

func TestArrivalScanAuthorization(t *testing.T) {
	env := newTestEnv(t)

	// The owner signs in first so their user ID matches the seeded
	// event's owner.
	ownerCookie := env.registerOwner(t, "owner@example.com", "Olive")
	visitorCookie := env.signIn(t, "visitor@example.com")

	rec, err := env.arrivals.CreateRecord(context.Background(), 1, 7, "guest@example.com")
	if err != nil {
		t.Fatalf("seed arrival record: %v", err)
	}
	scanPath := fmt.Sprintf("/api/events/1/arrival/%s/scan", rec.Hash)
	dataPath := fmt.Sprintf("/api/events/1/arrival/%s/data", rec.Hash)

	// The display payload is public.
	dataRec := env.do(t, http.MethodGet, dataPath, "", nil)
	if dataRec.Code != http.StatusOK {
		t.Fatalf("data: expected 200, got %d", dataRec.Code)
	}

	if r := env.do(t, http.MethodPost, scanPath, "", nil); r.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous scan: expected 401, got %d", r.Code)
	}
	if r := env.do(t, http.MethodPost, scanPath, "", visitorCookie); r.Code != http.StatusForbidden {
		t.Fatalf("visitor scan: expected 403, got %d", r.Code)
	}

	scanRec := env.do(t, http.MethodPost, scanPath, "", ownerCookie)
	if scanRec.Code != http.StatusOK {
		t.Fatalf("owner scan: expected 200, got %d: %s", scanRec.Code, scanRec.Body.String())
	}
	resp := decodeBody(t, scanRec)
	if resp["status"] != string(domain.Arrived) {
		t.Fatalf("expected Arrived, got %v", resp["status"])
	}
	if resp["eventTitle"] != "Launch Party" {
		t.Fatalf("expected event title, got %v", resp["eventTitle"])
	}

	rescan := env.do(t, http.MethodPost, scanPath, "", ownerCookie)
	if rescan.Code != http.StatusOK {
		t.Fatalf("rescan: expected 200, got %d", rescan.Code)
	}
	resp = decodeBody(t, rescan)
	if resp["status"] != string(domain.AlreadyArrived) {
		t.Fatalf("expected AlreadyArrived on rescan, got %v", resp["status"])
	}
}

func TestArrivalDataUnknownHash(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/events/1/arrival/la_unknown/data", "", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}
