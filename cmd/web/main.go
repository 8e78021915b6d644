// Command web runs the storefront: catalog and cart pages backed by the remote cart store.
package main

import (
	"context"
	"crypto/tls"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/eduardoezequieel/Desafio2-LIC/internal/config"
	"github.com/eduardoezequieel/Desafio2-LIC/internal/handlers"
	"github.com/eduardoezequieel/Desafio2-LIC/internal/services"
	"github.com/eduardoezequieel/Desafio2-LIC/internal/storeclient"
	"github.com/eduardoezequieel/Desafio2-LIC/internal/telemetry"
	"github.com/eduardoezequieel/Desafio2-LIC/internal/tlscert"
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
		ServiceName:    handlers.ServiceName,
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

	client := storeclient.New(cfg.StoreURL, storeclient.WithTimeout(cfg.StoreTimeout))
	mailer := services.NewEmailService(services.EmailConfig{
		Host:     cfg.SMTP.Host,
		Port:     cfg.SMTP.Port,
		User:     cfg.SMTP.User,
		Password: cfg.SMTP.Password,
		From:     cfg.SMTP.From,
	})
	if !mailer.Enabled() {
		log.Warn("SMTP not configured; receipts will not be mailed")
	}
	sessions := services.NewSessionRegistry(client, services.WithReceiptSender(mailer))
	defer sessions.Close()

	go sessions.Run(ctx, time.Minute, cfg.SessionIdleTimeout)

	h := handlers.NewHandler(client, sessions).SecureCookies(cfg.TLS.Enabled)
	r, err := handlers.NewRouter(h)
	if err != nil {
		log.Fatalf("router: %v", err)
	}

	servers := []*http.Server{}
	if cfg.TLS.Enabled {
		cert, err := tlscert.LoadOrCreate(cfg.TLS.CertFile, cfg.TLS.KeyFile)
		if err != nil {
			log.Fatalf("tls: %v", err)
		}
		servers = append(servers,
			&http.Server{
				Addr:              ":" + cfg.TLS.Port,
				Handler:           r,
				ReadHeaderTimeout: 10 * time.Second,
				TLSConfig:         &tls.Config{Certificates: []tls.Certificate{cert}, MinVersion: tls.VersionTLS12},
			},
			&http.Server{
				Addr:              ":" + cfg.Port,
				Handler:           redirectToHTTPS(cfg.TLS.Port),
				ReadHeaderTimeout: 10 * time.Second,
			},
		)
	} else {
		servers = append(servers, &http.Server{
			Addr:              ":" + cfg.Port,
			Handler:           r,
			ReadHeaderTimeout: 10 * time.Second,
		})
	}

	errs := make(chan error, len(servers))
	for _, srv := range servers {
		// closing the sessions ends open cart event streams
		srv.RegisterOnShutdown(sessions.Close)
		go func() {
			log.WithFields(log.Fields{"addr": srv.Addr, "tls": srv.TLSConfig != nil, "store": client.BaseURL()}).
				Info("storefront listening")
			var err error
			if srv.TLSConfig != nil {
				err = srv.ListenAndServeTLS("", "")
			} else {
				err = srv.ListenAndServe()
			}
			if !errors.Is(err, http.ErrServerClosed) {
				errs <- err
			}
		}()
	}

	select {
	case err := <-errs:
		log.WithError(err).Error("server stopped")
	case <-ctx.Done():
		log.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for _, srv := range servers {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).WithField("addr", srv.Addr).Warn("graceful shutdown failed")
		}
	}
}

func redirectToHTTPS(httpsPort string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		host := r.Host
		if h, _, err := net.SplitHostPort(host); err == nil {
			host = h
		}
		target := fmt.Sprintf("https://%s:%s%s", host, httpsPort, r.URL.Path)
		if r.URL.RawQuery != "" {
			target += "?" + r.URL.RawQuery
		}
		http.Redirect(w, r, target, http.StatusMovedPermanently)
	})
}
