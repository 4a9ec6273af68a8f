package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/linea-events/linea-auth/internal/domain"
	"github.com/linea-events/linea-auth/internal/repository"
	"github.com/linea-events/linea-auth/pkg/config"
	"github.com/linea-events/linea-auth/pkg/events"
)

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			PublicBaseURL: "http://localhost:5173",
		},
		Auth: config.AuthConfig{
			LoginTokenTTL:   15 * time.Minute,
			OwnerInviteTTL:  30 * time.Minute,
			RateLimitMax:    3,
			RateLimitWindow: 5 * time.Minute,
		},
	}
}

func newTokenServiceForTest(clock *fakeClock) (TokenService, *mockMailer, *mockPublisher) {
	tokens := repository.NewMemoryTokenRepository(clock.Now)
	limits := repository.NewMemoryRateLimitRepository(clock.Now)
	mail := &mockMailer{}
	pub := &mockPublisher{}

	svc := NewTokenService(tokens, limits, mail, pub, testConfig()).(*tokenService)
	svc.now = clock.Now
	return svc, mail, pub
}

func TestIssueAndVerify(t *testing.T) {
	clock := newFakeClock()
	svc, mail, pub := newTokenServiceForTest(clock)
	ctx := context.Background()

	tok, link, err := svc.Issue(ctx, "Bob@Example.com", domain.PurposeLogin)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if tok.Email != "bob@example.com" {
		t.Fatalf("expected normalized email, got %q", tok.Email)
	}
	if !strings.Contains(link, "/auth/callback?token=") {
		t.Fatalf("unexpected link %q", link)
	}
	if mail.lastTo != "bob@example.com" {
		t.Fatalf("expected mail to bob@example.com, got %q", mail.lastTo)
	}
	if pub.count(events.TokenIssued) != 1 {
		t.Fatal("expected token issued event")
	}

	email, err := svc.Verify(ctx, tok.Token, domain.PurposeLogin)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if email != "bob@example.com" {
		t.Fatalf("expected bob@example.com, got %q", email)
	}

	if _, err := svc.Verify(ctx, tok.Token, domain.PurposeLogin); !errors.Is(err, domain.ErrTokenConsumed) {
		t.Fatalf("expected ErrTokenConsumed on second verify, got %v", err)
	}
}

func TestIssueRejectsInvalidEmail(t *testing.T) {
	svc, _, _ := newTokenServiceForTest(newFakeClock())

	if _, _, err := svc.Issue(context.Background(), "not-an-email", domain.PurposeLogin); !errors.Is(err, domain.ErrInvalidEmail) {
		t.Fatalf("expected ErrInvalidEmail, got %v", err)
	}
}

func TestVerifyConcurrentSingleUse(t *testing.T) {
	svc, _, _ := newTokenServiceForTest(newFakeClock())
	ctx := context.Background()

	tok, _, err := svc.Issue(ctx, "alice@example.com", domain.PurposeLogin)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	const callers = 16
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		consumed  int
	)

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Verify(ctx, tok.Token, domain.PurposeLogin)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, domain.ErrTokenConsumed):
				consumed++
			default:
				t.Errorf("unexpected verify error: %v", err)
			}
		}()
	}
	wg.Wait()

	if successes != 1 {
		t.Fatalf("expected exactly 1 successful verify, got %d", successes)
	}
	if consumed != callers-1 {
		t.Fatalf("expected %d AlreadyConsumed results, got %d", callers-1, consumed)
	}
}

func TestReissueInvalidatesPriorToken(t *testing.T) {
	svc, _, _ := newTokenServiceForTest(newFakeClock())
	ctx := context.Background()

	first, _, err := svc.Issue(ctx, "alice@example.com", domain.PurposeLogin)
	if err != nil {
		t.Fatalf("Issue first: %v", err)
	}
	second, _, err := svc.Issue(ctx, "alice@example.com", domain.PurposeLogin)
	if err != nil {
		t.Fatalf("Issue second: %v", err)
	}

	if _, err := svc.Verify(ctx, first.Token, domain.PurposeLogin); !errors.Is(err, domain.ErrTokenExpired) {
		t.Fatalf("expected first token force-expired, got %v", err)
	}
	if _, err := svc.Verify(ctx, second.Token, domain.PurposeLogin); err != nil {
		t.Fatalf("expected second token to verify, got %v", err)
	}
}

func TestReissueLeavesOtherPurposeAlone(t *testing.T) {
	svc, _, _ := newTokenServiceForTest(newFakeClock())
	ctx := context.Background()

	login, _, err := svc.Issue(ctx, "alice@example.com", domain.PurposeLogin)
	if err != nil {
		t.Fatalf("Issue login: %v", err)
	}
	if _, _, err := svc.Issue(ctx, "alice@example.com", domain.PurposeOwnerInvitation); err != nil {
		t.Fatalf("Issue invite: %v", err)
	}

	if _, err := svc.Verify(ctx, login.Token, domain.PurposeLogin); err != nil {
		t.Fatalf("login token should survive invite issuance, got %v", err)
	}
}

func TestVerifyExpiryBoundary(t *testing.T) {
	ctx := context.Background()

	t.Run("just inside TTL", func(t *testing.T) {
		clock := newFakeClock()
		svc, _, _ := newTokenServiceForTest(clock)

		tok, _, err := svc.Issue(ctx, "alice@example.com", domain.PurposeLogin)
		if err != nil {
			t.Fatalf("Issue: %v", err)
		}

		clock.Advance(15*time.Minute - time.Second)
		if _, err := svc.Verify(ctx, tok.Token, domain.PurposeLogin); err != nil {
			t.Fatalf("expected verify to succeed 1s before expiry, got %v", err)
		}
	})

	t.Run("just past TTL", func(t *testing.T) {
		clock := newFakeClock()
		svc, _, _ := newTokenServiceForTest(clock)

		tok, _, err := svc.Issue(ctx, "alice@example.com", domain.PurposeLogin)
		if err != nil {
			t.Fatalf("Issue: %v", err)
		}

		clock.Advance(15*time.Minute + time.Second)
		if _, err := svc.Verify(ctx, tok.Token, domain.PurposeLogin); !errors.Is(err, domain.ErrTokenExpired) {
			t.Fatalf("expected ErrTokenExpired past TTL, got %v", err)
		}
	})
}

func TestVerifyWrongPurpose(t *testing.T) {
	svc, _, _ := newTokenServiceForTest(newFakeClock())
	ctx := context.Background()

	tok, _, err := svc.Issue(ctx, "alice@example.com", domain.PurposeLogin)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	if _, err := svc.Verify(ctx, tok.Token, domain.PurposeOwnerInvitation); !errors.Is(err, domain.ErrTokenPurpose) {
		t.Fatalf("expected ErrTokenPurpose, got %v", err)
	}
	// The failed cross-purpose attempt must not consume the token.
	if _, err := svc.Verify(ctx, tok.Token, domain.PurposeLogin); err != nil {
		t.Fatalf("token should still verify for its own purpose, got %v", err)
	}
}

func TestVerifyUnknownToken(t *testing.T) {
	svc, _, _ := newTokenServiceForTest(newFakeClock())

	if _, err := svc.Verify(context.Background(), "lv_does-not-exist", domain.PurposeLogin); !errors.Is(err, domain.ErrTokenNotFound) {
		t.Fatalf("expected ErrTokenNotFound, got %v", err)
	}
}

func TestRateLimitThreshold(t *testing.T) {
	clock := newFakeClock()
	svc, _, _ := newTokenServiceForTest(clock)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, _, err := svc.Issue(ctx, "alice@example.com", domain.PurposeLogin); err != nil {
			t.Fatalf("Issue %d: %v", i+1, err)
		}
	}

	if _, _, err := svc.Issue(ctx, "alice@example.com", domain.PurposeLogin); !errors.Is(err, domain.ErrRateLimited) {
		t.Fatalf("expected 4th issuance rate limited, got %v", err)
	}

	// Another subject is unaffected.
	if _, _, err := svc.Issue(ctx, "bob@example.com", domain.PurposeLogin); err != nil {
		t.Fatalf("Issue for other subject: %v", err)
	}

	clock.Advance(5*time.Minute + time.Second)
	if _, _, err := svc.Issue(ctx, "alice@example.com", domain.PurposeLogin); err != nil {
		t.Fatalf("expected issuance after window elapsed, got %v", err)
	}
}

func TestIssueSurvivesMailFailure(t *testing.T) {
	clock := newFakeClock()
	tokens := repository.NewMemoryTokenRepository(clock.Now)
	limits := repository.NewMemoryRateLimitRepository(clock.Now)
	mail := &mockMailer{sendErr: errors.New("smtp down")}
	svc := NewTokenService(tokens, limits, mail, &mockPublisher{}, testConfig()).(*tokenService)
	svc.now = clock.Now

	tok, _, err := svc.Issue(context.Background(), "alice@example.com", domain.PurposeLogin)
	if err != nil {
		t.Fatalf("issuance must not fail on mail error, got %v", err)
	}
	if _, err := svc.Verify(context.Background(), tok.Token, domain.PurposeLogin); err != nil {
		t.Fatalf("token must stay verifiable, got %v", err)
	}
}
