package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/skcc-wooyoungmoon/agentframework-sub000/internal/access"
	"github.com/skcc-wooyoungmoon/agentframework-sub000/internal/asset"
	"github.com/skcc-wooyoungmoon/agentframework-sub000/internal/authz"
	"github.com/skcc-wooyoungmoon/agentframework-sub000/internal/authz/remote"
	"github.com/skcc-wooyoungmoon/agentframework-sub000/internal/httpapi"
	"github.com/skcc-wooyoungmoon/agentframework-sub000/internal/obs"
	"github.com/skcc-wooyoungmoon/agentframework-sub000/internal/project"
	"github.com/skcc-wooyoungmoon/agentframework-sub000/internal/store/pg"
	"github.com/skcc-wooyoungmoon/agentframework-sub000/internal/tasks"
)

var version = "0.3.0"

type config struct {
	addr          string
	pgDSN         string
	backendURL    string
	backendRealm  string
	backendClient string
	adminUser     string
	adminPass     string
	queueSize     int
	queueWorkers  int
	queueRate     float64
}

func loadConfig() config {
	return config{
		addr:          envOr("ACCESS_HTTP_ADDR", ":8080"),
		pgDSN:         os.Getenv("ACCESS_PG_DSN"),
		backendURL:    envOr("ACCESS_BACKEND_URL", "http://localhost:8081"),
		backendRealm:  envOr("ACCESS_BACKEND_REALM", "portal"),
		backendClient: envOr("ACCESS_BACKEND_CLIENT_ID", "admin-cli"),
		adminUser:     os.Getenv("ACCESS_ADMIN_USER"),
		adminPass:     os.Getenv("ACCESS_ADMIN_PASSWORD"),
		queueSize:     envInt("ACCESS_QUEUE_SIZE", 256),
		queueWorkers:  envInt("ACCESS_QUEUE_WORKERS", 4),
		queueRate:     float64(envInt("ACCESS_QUEUE_RATE", 20)),
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func main() {
	obs.Init()
	if os.Getenv("ACCESS_LOG_DEV") == "1" {
		if l, err := zap.NewDevelopment(); err == nil {
			obs.SetLogger(l)
		}
	}
	logger := obs.Logger()
	defer func() { _ = logger.Sync() }()

	cfg := loadConfig()
	if cfg.pgDSN == "" {
		log.Fatal("missing DSN: set ACCESS_PG_DSN")
	}
	if cfg.adminUser == "" || cfg.adminPass == "" {
		log.Fatal("missing admin credentials: set ACCESS_ADMIN_USER and ACCESS_ADMIN_PASSWORD")
	}

	store, err := pg.Open(cfg.pgDSN)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer store.Close()

	// Remote backend client plus the admin session cache that logs in
	// through it. The token source is bound after construction.
	client := remote.New(cfg.backendURL, cfg.backendRealm, cfg.backendClient)
	sessions := authz.NewSessionCache(client, logger)
	creds := authz.Credentials{Username: cfg.adminUser, Password: cfg.adminPass}
	client.SetTokenSource(sessions.Bound(creds))

	ids := authz.DefaultReservedIDs()
	sync := authz.NewSync(client, logger)
	synth := authz.NewSynthesizer(ids)

	registry := asset.NewRegistry(store, ids.PublicProject, logger)
	handlers := asset.NewHandlerRegistry(asset.HandlerFunc(func(ctx context.Context, resourceURL string) error {
		logger.Info("asset cleanup", zap.String("resource_url", resourceURL))
		return nil
	}), logger)

	members := project.NewService(store, sync, ids, logger)

	queue := tasks.New(cfg.queueSize, cfg.queueWorkers, cfg.queueRate, logger)
	lifecycle := project.NewLifecycle(store, sync, registry, handlers, queue, ids, logger)

	svc := access.New(access.Config{
		Synthesizer: synth,
		Sync:        sync,
		Sessions:    sessions,
		AdminCreds:  creds,
		Assets:      registry,
		Members:     members,
		Lifecycle:   lifecycle,
		ReservedIDs: ids,
		Logger:      logger,
	})
	// Warm the admin session so the first policy push does not pay the
	// login round trip.
	warmCtx, warmCancel := context.WithTimeout(context.Background(), 10*time.Second)
	if _, err := svc.EnsureAdminSession(warmCtx); err != nil {
		logger.Warn("admin session warm-up failed", zap.Error(err))
	}
	warmCancel()

	api := httpapi.New(httpapi.ReadyProbe{DB: store.DB()}, version)
	handler := httpapi.Logging(httpapi.RateLimit(httpapi.MaxBodyBytes(api.Handler(), 1<<20), 50, 25))

	srv := &http.Server{
		Addr:              cfg.addr,
		Handler:           handler,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	logger.Info("starting access-engine",
		zap.String("version", version),
		zap.String("addr", srv.Addr),
	)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	logger.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	queue.Close()
	logger.Info("stopped")
}
