package handler

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/eduardoezequieel/Desafio2-LIC/internal/config"
	"github.com/eduardoezequieel/Desafio2-LIC/internal/handlers"
	"github.com/eduardoezequieel/Desafio2-LIC/internal/services"
	"github.com/eduardoezequieel/Desafio2-LIC/internal/storeclient"
)

// Serverless instances have no background goroutine, so idle sessions are evicted
// from the request path at most once per evictInterval.
const evictInterval = time.Minute

var (
	once        sync.Once
	router      http.Handler
	sessions    *services.SessionRegistry
	idleTimeout time.Duration
	initErr     error

	evictMu   sync.Mutex
	lastEvict time.Time
)

func setup() {
	cfg, err := config.Load("")
	if err != nil {
		initErr = err
		return
	}
	if err := cfg.SetupLogging(); err != nil {
		initErr = err
		return
	}
	gin.SetMode(gin.ReleaseMode)

	client := storeclient.New(cfg.StoreURL, storeclient.WithTimeout(cfg.StoreTimeout))
	mailer := services.NewEmailService(services.EmailConfig{
		Host:     cfg.SMTP.Host,
		Port:     cfg.SMTP.Port,
		User:     cfg.SMTP.User,
		Password: cfg.SMTP.Password,
		From:     cfg.SMTP.From,
	})
	sessions = services.NewSessionRegistry(client, services.WithReceiptSender(mailer))
	idleTimeout = cfg.SessionIdleTimeout
	log.WithFields(log.Fields{"store": client.BaseURL(), "smtp": mailer.Enabled()}).Info("Handler - storefront ready")

	r, err := handlers.NewRouter(handlers.NewHandler(client, sessions).SecureCookies(true))
	if err != nil {
		initErr = err
		return
	}
	router = r
}

// Handler is the serverless entry point. The storefront is built on the first call
// and reused while the instance stays warm.
func Handler(w http.ResponseWriter, r *http.Request) {
	once.Do(setup)
	if initErr != nil {
		log.WithError(initErr).Error("Handler - storefront setup failed")
		http.Error(w, "storefront unavailable", http.StatusInternalServerError)
		return
	}
	evictIdle(time.Now())
	router.ServeHTTP(w, r)
}

func evictIdle(now time.Time) {
	evictMu.Lock()
	if now.Sub(lastEvict) < evictInterval {
		evictMu.Unlock()
		return
	}
	lastEvict = now
	evictMu.Unlock()

	sessions.Evict(idleTimeout)
}
