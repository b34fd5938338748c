// Package app wires configuration, infrastructure, the three LifeBank
// cores, and the caller-layer policy into a running API server.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/wisbric/lifebank/internal/callerauth"
	"github.com/wisbric/lifebank/internal/config"
	"github.com/wisbric/lifebank/internal/httpserver"
	"github.com/wisbric/lifebank/internal/ledger"
	"github.com/wisbric/lifebank/internal/ledger/pgstore"
	"github.com/wisbric/lifebank/internal/ledger/redisbus"
	"github.com/wisbric/lifebank/internal/ledger/redisstore"
	"github.com/wisbric/lifebank/internal/ledger/sysclock"
	"github.com/wisbric/lifebank/internal/platform"
	"github.com/wisbric/lifebank/internal/telemetry"
	"github.com/wisbric/lifebank/pkg/accesscontrol"
	"github.com/wisbric/lifebank/pkg/bloodunit"
	"github.com/wisbric/lifebank/pkg/coldchain"
)

// Run is the main application entry point. It reads config, connects to
// infrastructure, and serves the API until ctx is cancelled.
func Run(ctx context.Context, cfg *config.Config) error {
	logger := telemetry.NewLogger(cfg.LogFormat, cfg.LogLevel)
	slog.SetDefault(logger)

	logger.Info("starting lifebank", "listen", cfg.ListenAddr())

	// Database backs the persistent storage tier.
	db, err := platform.NewPostgresPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer db.Close()

	if err := platform.RunMigrations(cfg.DatabaseURL, cfg.MigrationsDir); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	logger.Info("migrations applied")

	// Redis backs the instance/temporary tiers and the event bus.
	rdb, err := platform.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("connecting to redis: %w", err)
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			logger.Error("closing redis", "error", err)
		}
	}()

	metricsReg := telemetry.NewMetricsRegistry(telemetry.All()...)

	// The host surface the three cores run on.
	redisTiers := redisstore.New(rdb, cfg.RedisTemporaryTTL)
	store := &ledger.TieredStore{
		PersistentStore: pgstore.New(db),
		InstanceStore:   redisTiers,
		TemporaryStore:  redisTiers,
	}
	clock := sysclock.New()
	bus := redisbus.New(rdb)

	// One Env per request, never shared across goroutines. The caller
	// address comes from the identity callerauth resolved at the edge.
	envFn := func(r *http.Request) *ledger.Env {
		return &ledger.Env{
			Clock:    clock,
			Store:    store,
			Events:   bus,
			Caller:   callerauth.CallerFrom(r.Context()),
			SelfAddr: ledger.Address(cfg.SelfAddress),
		}
	}

	// Domain services.
	roleService := accesscontrol.NewService(logger)
	unitService := bloodunit.NewService(logger)
	tempService := coldchain.NewService(logger)

	// Caller-layer policy. Transition and role legality is enforced here,
	// in front of the cores — the registry records whatever an authorized
	// caller tells it. Reads are open; expiry endpoints are time-gated by
	// the registry itself.
	authz := callerauth.NewAuthorizer(roleService, envFn, ledger.Address(cfg.BootstrapAdmin), logger)
	authz.Require(http.MethodPost, "/api/v1/units", accesscontrol.RoleBloodBank)
	authz.Require(http.MethodPost, "/api/v1/units/expire-batch", accesscontrol.RoleBloodBank)
	authz.Require(http.MethodPost, "/api/v1/units/*/status",
		accesscontrol.RoleBloodBank, accesscontrol.RoleHospital, accesscontrol.RoleRider)
	authz.Require(http.MethodPost, "/api/v1/coldchain/thresholds", accesscontrol.RoleAdmin)
	authz.Require(http.MethodPost, "/api/v1/coldchain/units/*/reset", accesscontrol.RoleAdmin)
	authz.Require(http.MethodPost, "/api/v1/coldchain/readings",
		accesscontrol.RoleBloodBank, accesscontrol.RoleRider)
	authz.Require(http.MethodPost, "/api/v1/roles/grant", accesscontrol.RoleAdmin)
	authz.Require(http.MethodPost, "/api/v1/roles/revoke", accesscontrol.RoleAdmin)

	srv := httpserver.NewServer(cfg, logger, db, rdb, metricsReg)
	srv.Router.Use(callerauth.WithCaller)
	srv.Router.Use(authz.Middleware)

	unitHandler := bloodunit.NewHandler(unitService, envFn, logger)
	srv.Router.Mount("/api/v1/units", unitHandler.Routes())

	tempHandler := coldchain.NewHandler(tempService, envFn, logger)
	srv.Router.Mount("/api/v1/coldchain", tempHandler.Routes())

	roleHandler := accesscontrol.NewHandler(roleService, envFn, logger)
	srv.Router.Mount("/api/v1/roles", roleHandler.Routes())

	httpSrv := &http.Server{
		Addr:         cfg.ListenAddr(),
		Handler:      srv,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server listening", "addr", cfg.ListenAddr())
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down api server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
