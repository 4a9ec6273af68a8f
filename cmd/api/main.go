package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/linea-events/linea-auth/internal/domain"
	"github.com/linea-events/linea-auth/internal/handlers"
	"github.com/linea-events/linea-auth/internal/mailer"
	"github.com/linea-events/linea-auth/internal/repository"
	"github.com/linea-events/linea-auth/internal/service"
	"github.com/linea-events/linea-auth/pkg/cache"
	"github.com/linea-events/linea-auth/pkg/config"
	"github.com/linea-events/linea-auth/pkg/database"
	"github.com/linea-events/linea-auth/pkg/events"
	"github.com/linea-events/linea-auth/pkg/logger"
	mw "github.com/linea-events/linea-auth/pkg/middleware"
)

func main() {
	cfg := config.Load()
	ctx := context.Background()

	var (
		tokenRepo     repository.TokenRepository
		rateLimitRepo repository.RateLimitRepository
		userRepo      repository.UserRepository
		sessionCache  repository.SessionCache
		sessionMirror repository.SessionMirror
		arrivalRepo   repository.ArrivalRepository
		eventDir      repository.EventDirectory
	)

	// Store selection happens exactly once, here. Everything downstream
	// sees the same interfaces either way.
	if cfg.Auth.UseMemoryStore {
		logger.Warn("Running with in-memory stores; all state is lost on restart")
		tokenRepo = repository.NewMemoryTokenRepository(nil)
		rateLimitRepo = repository.NewMemoryRateLimitRepository(nil)
		userRepo = repository.NewMemoryUserRepository(nil)
		sessionCache = repository.NewMemorySessionCache(nil)
		sessionMirror = repository.NewNoopSessionMirror()
		arrivalRepo = repository.NewMemoryArrivalRepository(nil)
		eventDir = repository.NewMemoryEventDirectory([]domain.EventInfo{
			{ID: 1, Title: "Demo Launch Party", OwnerID: 1},
		})
	} else {
		pool, err := database.Connect(ctx, cfg.Database.URL, database.Options{
			MaxConns:    cfg.Database.MaxConns,
			MinConns:    cfg.Database.MinConns,
			MaxLifetime: cfg.Database.MaxLifetime,
		})
		if err != nil {
			logger.Error("Failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer pool.Close()

		redisClient, err := cache.Connect(ctx, cfg.Redis.URL, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			logger.Error("Failed to connect to redis", "error", err)
			os.Exit(1)
		}
		defer redisClient.Close()

		tokenRepo = repository.NewTokenRepository(pool)
		rateLimitRepo = repository.NewRateLimitRepository(pool)
		userRepo = repository.NewUserRepository(pool)
		sessionCache = repository.NewRedisSessionCache(redisClient)
		sessionMirror = repository.NewSessionMirror(pool)
		arrivalRepo = repository.NewArrivalRepository(pool)
		eventDir = repository.NewEventDirectory(pool)
	}

	var publisher events.Publisher
	if cfg.Auth.UseMemoryStore {
		publisher = events.NoopPublisher{}
	} else if natsPub, err := events.NewNATSPublisher(cfg.NATS.URL); err != nil {
		logger.Warn("NATS unavailable, analytics events will be dropped", "error", err)
		publisher = events.NoopPublisher{}
	} else {
		publisher = natsPub
		defer natsPub.Close()
	}

	var mail mailer.Service
	if cfg.Email.DevMode {
		mail = mailer.NewDevMailer()
	} else {
		mail = mailer.NewMailerSend(cfg.Email.MailerSendKey, cfg.Email.FromName, cfg.Email.FromEmail)
	}

	tokenService := service.NewTokenService(tokenRepo, rateLimitRepo, mail, publisher, cfg)
	sessionService := service.NewSessionService(
		sessionCache, sessionMirror, userRepo, publisher,
		cfg.Auth.SessionTTL, cfg.Auth.UseMemoryStore,
	)
	arrivalService := service.NewArrivalService(arrivalRepo, eventDir, publisher)

	h := handlers.New(tokenService, sessionService, arrivalService, userRepo, cfg)

	r := chi.NewRouter()
	r.Use(mw.RequestID)
	r.Use(mw.ServiceName("auth"))
	r.Use(mw.Logging)
	r.Use(mw.Health)
	r.Use(mw.CORS([]string{cfg.Server.PublicBaseURL}))

	r.Route("/auth", func(r chi.Router) {
		r.Post("/request-magic-link", h.RequestMagicLink)
		r.Get("/callback", h.Callback)
		r.Post("/register-owner", h.RegisterOwner)
		r.Get("/owner-callback", h.OwnerCallback)
		r.Get("/me", h.Me)
		r.Post("/logout", h.Logout)
		r.Post("/signout", h.Logout)
	})

	r.Route("/api/events/{eventID}/arrival/{hash}", func(r chi.Router) {
		r.Get("/data", h.ArrivalData)
		r.With(h.RequireSession).Post("/scan", h.ArrivalScan)
	})

	janitorCtx, stopJanitor := context.WithCancel(ctx)
	defer stopJanitor()
	go runJanitor(janitorCtx, tokenRepo, rateLimitRepo, sessionMirror)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		logger.Info("Shutting down auth service...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Auth service shutdown error", "error", err)
		}
	}()

	logger.Info("Starting auth service", "port", cfg.Server.Port)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("Auth service error", "error", err)
		os.Exit(1)
	}
}

// runJanitor periodically clears long-dead verification tokens, stale
// rate-limit counters and expired session mirror rows.
func runJanitor(
	ctx context.Context,
	tokens repository.TokenRepository,
	rateLimits repository.RateLimitRepository,
	mirror repository.SessionMirror,
) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := tokens.DeleteExpired(ctx); err != nil {
				logger.Warn("Token cleanup failed", "error", err)
			} else if n > 0 {
				logger.Info("Deleted dead verification tokens", "count", n)
			}
			if n, err := rateLimits.CleanupExpired(ctx); err != nil {
				logger.Warn("Rate limit cleanup failed", "error", err)
			} else if n > 0 {
				logger.Info("Deleted stale rate limit counters", "count", n)
			}
			if n, err := mirror.DeleteExpired(ctx); err != nil {
				logger.Warn("Session mirror cleanup failed", "error", err)
			} else if n > 0 {
				logger.Info("Deleted expired session mirror rows", "count", n)
			}
		}
	}
}
