// Command store serves the remote cart store REST API over a JSON file or Redis.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/eduardoezequieel/Desafio2-LIC/internal/config"
	"github.com/eduardoezequieel/Desafio2-LIC/internal/database"
	"github.com/eduardoezequieel/Desafio2-LIC/internal/storeapi"
	"github.com/eduardoezequieel/Desafio2-LIC/internal/telemetry"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if err := cfg.SetupLogging(); err != nil {
		log.Fatalf("logging: %v", err)
	}
	gin.SetMode(cfg.GinMode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Init(ctx, telemetry.Config{
		Enabled:        cfg.TracingEnabled,
		ServiceName:    storeapi.ServiceName,
		ServiceVersion: "1.0.0",
	})
	if err != nil {
		log.Fatalf("tracing: %v", err)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			log.WithError(err).Warn("tracer shutdown failed")
		}
	}()

	db, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatalf("store: %v", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.WithError(err).Warn("store close failed")
		}
	}()

	srv := &http.Server{
		Addr:              ":" + cfg.StorePort,
		Handler:           storeapi.NewRouter(db),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errs := make(chan error, 1)
	go func() {
		log.WithField("addr", srv.Addr).Info("cart store listening")
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errs <- err
		}
	}()

	select {
	case err := <-errs:
		log.WithError(err).Error("server stopped")
	case <-ctx.Done():
		log.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("graceful shutdown failed")
	}
}

// openStore picks Redis when REDIS_ADDR is set and the JSON file otherwise.
func openStore(ctx context.Context, cfg config.Config) (database.Store, error) {
	if cfg.RedisAddr == "" {
		db, err := database.NewDatabase(cfg.DataFile)
		if err != nil {
			return nil, err
		}
		return db, nil
	}
	rs := database.NewRedisStore(cfg.RedisAddr, "store")
	if err := rs.Initialize(ctx, cfg.DataFile); err != nil {
		_ = rs.Close()
		return nil, err
	}
	return rs, nil
}
