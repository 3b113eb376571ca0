package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/sync/errgroup"

	"github.com/Skotchmaster/tachyon_hub/internal/backend"
	"github.com/Skotchmaster/tachyon_hub/internal/cache"
	"github.com/Skotchmaster/tachyon_hub/internal/config"
	"github.com/Skotchmaster/tachyon_hub/internal/events"
	"github.com/Skotchmaster/tachyon_hub/internal/health"
	"github.com/Skotchmaster/tachyon_hub/internal/httpserver"
	"github.com/Skotchmaster/tachyon_hub/internal/identity"
	authmw "github.com/Skotchmaster/tachyon_hub/internal/middleware/auth"
	"github.com/Skotchmaster/tachyon_hub/internal/models"
	"github.com/Skotchmaster/tachyon_hub/internal/oauth"
	"github.com/Skotchmaster/tachyon_hub/internal/proxy"
	"github.com/Skotchmaster/tachyon_hub/internal/repo"
	"github.com/Skotchmaster/tachyon_hub/internal/service"
	"github.com/Skotchmaster/tachyon_hub/internal/session"
	"github.com/Skotchmaster/tachyon_hub/internal/status"
	"github.com/Skotchmaster/tachyon_hub/pkg/db"
	"github.com/Skotchmaster/tachyon_hub/pkg/logging"
	"github.com/Skotchmaster/tachyon_hub/pkg/middleware/csrf"
)

const (
	uploaderCacheTTL = 5 * time.Minute
	purgeInterval    = time.Hour
)

func main() {
	cfg := config.Load()

	logger := logging.New(cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	gdb, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	sessions := &repo.GormRepo{DB: gdb}
	if err := sessions.Migrate(); err != nil {
		log.Fatalf("migrate: %v", err)
	}

	rc, err := cache.Connect(ctx, cfg.RedisURL)
	if err != nil {
		// the uploader cache is optional; listings fall back to the backend
		logger.Warn("redis_unavailable", "error", err)
		rc = nil
	}
	uploaderCache := cache.New[models.Uploader](rc, "hub:uploader", uploaderCacheTTL)

	prod := events.New(cfg.KafkaBrokers)

	rt := backend.BaseTransport(cfg.UpstreamTimeout)
	breaker := backend.NewBreaker("backend-api")
	client := backend.NewClient(backend.Options{
		BaseURL:       cfg.APIBaseURL,
		AuthKey:       cfg.AuthKey,
		APIKey:        cfg.DefaultAPIKey,
		Timeout:       cfg.UpstreamTimeout,
		HealthTimeout: cfg.HealthTimeout,
		Breaker:       breaker,
		Transport:     rt,
	})
	px, err := proxy.New(cfg.APIBaseURL, backend.WithBreaker(rt, breaker), client, cfg.UpstreamTimeout)
	if err != nil {
		log.Fatalf("proxy: %v", err)
	}

	codec := session.Codec{Secret: cfg.SessionSecret, Secure: cfg.CookieSecure}
	refresher := &session.Refresher{
		Bridge: &identity.Bridge{Backend: client, Events: prod},
		Lookup: client,
		TTL:    cfg.SessionTTL,
	}
	checker := &status.Checker{Backend: client, Sessions: sessions, Events: prod}
	gate := health.NewGate(client)

	csrfCfg := csrf.DefaultConfig()
	csrfCfg.Secure = cfg.CookieSecure

	e := echo.New()
	e.HideBanner = true
	e.Server.ReadTimeout = 10 * time.Second
	e.Server.WriteTimeout = cfg.UpstreamTimeout + 5*time.Second
	e.Server.ReadHeaderTimeout = 3 * time.Second
	e.Server.IdleTimeout = 60 * time.Second

	httpserver.Register(e, &httpserver.Deps{
		Logger: logger,
		DB:     gdb,
		Sessions: &authmw.Sessions{
			Codec:     codec,
			Refresher: refresher,
			Store:     sessions,
			Bans:      checker,
			Interval:  cfg.SessionRefreshInterval,
		},
		Auth: &httpserver.AuthHTTP{
			Discord: oauth.NewDiscord(oauth.Config{
				ClientID:     cfg.DiscordClientID,
				ClientSecret: cfg.DiscordClientSecret,
				RedirectURL:  cfg.DiscordRedirectURL,
				Timeout:      cfg.UpstreamTimeout,
			}),
			Codec:       codec,
			Refresher:   refresher,
			Store:       sessions,
			Checker:     checker,
			Events:      prod,
			FrontendURL: cfg.FrontendURL,
		},
		API: &httpserver.API{
			Gate:      gate,
			Codes:     &service.Codes{Backend: client, Uploaders: uploaderCache, JoinLimit: cfg.JoinLimit},
			Uploaders: &service.Uploaders{Backend: client, Bans: checker, Cache: uploaderCache, Events: prod},
			Keys:      &service.Keys{Backend: client},
			Rewards:   client,
		},
		Proxy: px,
		Gate:  gate,
		CSRF:  csrfCfg,
	})

	bg := logging.IntoContext(ctx, logger)
	g, gctx := errgroup.WithContext(bg)
	g.Go(func() error {
		(&health.Monitor{Gate: gate, Interval: cfg.HealthInterval}).Run(gctx)
		return nil
	})
	g.Go(func() error {
		purgeSessions(gctx, sessions)
		return nil
	})
	g.Go(func() error {
		logger.Info("server_started", "addr", cfg.Addr)
		if err := e.Start(cfg.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting_down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return e.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("server_error", "error", err)
	}

	if err := prod.Close(); err != nil {
		logger.Error("kafka_close_failed", "error", err)
	}
	if rc != nil {
		if err := rc.Close(); err != nil {
			logger.Error("redis_close_failed", "error", err)
		}
	}
	if sqlDB, err := gdb.DB(); err == nil {
		if err := sqlDB.Close(); err != nil {
			logger.Error("db_close_failed", "error", err)
		}
	}
	logger.Info("shutdown_complete")
}

// purgeSessions drops expired revocation records so the table stays small.
func purgeSessions(ctx context.Context, r *repo.GormRepo) {
	l := logging.FromContext(ctx).With("svc", "sessions.purge")
	t := time.NewTicker(purgeInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			n, err := r.PurgeExpired(ctx, now)
			if err != nil {
				l.Error("purge_failed", "error", err)
				continue
			}
			if n > 0 {
				l.Info("sessions_purged", "count", n)
			}
		}
	}
}
