package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/est31/share-login/core"
)

func main() {
	cfg := core.Load()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logCloser, err := core.SetupLogging(cfg, "api")
	if err != nil {
		log.Fatalf("failed to setup logging: %v", err)
	}
	defer logCloser.Close()

	db, err := core.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect database: %v", err)
	}
	defer db.Close()

	// Only schema version 1 is supported; anything else is fatal.
	if err := core.EnsureSchema(ctx, db); err != nil {
		log.Fatalf("schema check failed: %v", err)
	}

	store := core.NewPgCredentialStore(db)
	if err := core.BootstrapTenants(ctx, store, cfg); err != nil {
		log.Fatalf("bootstrap tenants failed: %v", err)
	}

	registry := core.NewMetricsRegistry()
	metrics := core.NewMetrics(registry)

	var tenants core.TenantResolver = store
	if cfg.RedisURL != "" {
		redisClient, err := core.NewRedisClient(cfg.RedisURL)
		if err != nil {
			log.Fatalf("failed to connect redis: %v", err)
		}
		defer redisClient.Close()
		tenants = core.NewCachedTenantResolver(store, redisClient, cfg.TenantCacheTTL, metrics)
		log.Printf("tenant cache enabled ttl=%s", cfg.TenantCacheTTL)
	}

	router := core.NewRouter(cfg, store, tenants, metrics)
	srv := core.NewHTTPServer(cfg, router)

	var companions []*http.Server
	if cfg.MetricsAddr != "" {
		metricsSrv := core.NewMetricsServer(cfg.MetricsAddr, registry, store.Ping)
		companions = append(companions, metricsSrv)
		go func() {
			log.Printf("starting metrics server on %s", cfg.MetricsAddr)
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Printf("metrics server failed: %v", err)
			}
		}()
	}

	log.Printf("starting http server on http://%s/", cfg.ListenAddr)
	if err := core.Serve(ctx, srv, nil, core.ShutdownGrace, companions...); err != nil {
		log.Fatalf("server stopped: %v", err)
	}
	log.Printf("server stopped")
}
