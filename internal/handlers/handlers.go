// Package handlers serves the storefront: catalog and cart pages plus the JSON API the
// page scripts call.
package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/eduardoezequieel/Desafio2-LIC/internal/models"
	"github.com/eduardoezequieel/Desafio2-LIC/internal/services"
	"github.com/eduardoezequieel/Desafio2-LIC/internal/storeclient"
)

const (
	sessionCookie = "user_session"
	sessionMaxAge = 3600 * 24 * 30
)

// Catalog reads products and categories from the store.
type Catalog interface {
	ListProducts(ctx context.Context, filter models.ProductFilter) ([]models.Product, error)
	GetProduct(ctx context.Context, id int) (*models.Product, error)
	ListCategories(ctx context.Context) ([]models.Category, error)
}

// Handler serves storefront requests.
type Handler struct {
	catalog       Catalog
	sessions      *services.SessionRegistry
	secureCookies bool
}

// NewHandler returns a Handler over catalog and sessions.
func NewHandler(catalog Catalog, sessions *services.SessionRegistry) *Handler {
	return &Handler{
		catalog:  catalog,
		sessions: sessions,
	}
}

// SecureCookies marks the session cookie Secure, for HTTPS deployments.
func (h *Handler) SecureCookies(secure bool) *Handler {
	h.secureCookies = secure
	return h
}

// session returns the caller's session, issuing a session cookie on first visit.
func (h *Handler) session(c *gin.Context) *services.Session {
	sessionID, _ := c.Cookie(sessionCookie)
	if _, err := uuid.Parse(sessionID); err != nil {
		sessionID = generateSessionID()
		c.SetCookie(sessionCookie, sessionID, sessionMaxAge, "/", "", h.secureCookies, true)
		log.WithField("session", sessionID).Debug("Handler.session - new session")
	}
	c.Set("session", sessionID)
	return h.sessions.Get(sessionID)
}

// ensureLoaded refreshes a session cart that has never been fetched.
func ensureLoaded(ctx context.Context, s *services.Session) {
	if s.Cart.Snapshot().Generation > 0 {
		return
	}
	if err := s.Cart.Refresh(ctx); err != nil {
		log.WithError(err).WithField("session", s.ID).Warn("Handler.ensureLoaded - initial refresh failed")
	}
}

func generateSessionID() string {
	return uuid.New().String()
}

// fail logs err and answers with the error envelope.
func fail(c *gin.Context, op string, err error) {
	status, message := classify(err)
	entry := log.WithError(err).WithFields(log.Fields{"status": status, "session": c.GetString("session")})
	if status >= http.StatusInternalServerError {
		entry.Errorf("%s - failed", op)
	} else {
		entry.Warnf("%s - rejected", op)
	}
	_ = c.Error(err)

	body := gin.H{"success": false, "error": message}
	var partial *services.PartialClearError
	if errors.As(err, &partial) {
		body["leftover"] = lineViews(partial.Leftover)
	}
	c.JSON(status, body)
}

func classify(err error) (int, string) {
	var partial *services.PartialClearError
	switch {
	case errors.Is(err, services.ErrQuantityTooHigh):
		return http.StatusUnprocessableEntity, "The maximum quantity is 99."
	case errors.Is(err, services.ErrInvalidQuantity):
		return http.StatusBadRequest, "Choose a quantity between 1 and 99."
	case errors.Is(err, services.ErrEmptyCart):
		return http.StatusUnprocessableEntity, "Your cart is empty."
	case errors.Is(err, services.ErrLineNotFound):
		return http.StatusNotFound, "That item is no longer in your cart."
	case errors.Is(err, services.ErrStateClosed):
		return http.StatusServiceUnavailable, "Your session expired. Please reload the page."
	case errors.As(err, &partial):
		return http.StatusBadGateway, "Some items could not be removed from your cart."
	case storeclient.IsNotFound(err):
		return http.StatusNotFound, "Not found."
	default:
		return http.StatusBadGateway, "The store is unavailable. Please try again."
	}
}

func lineViews(lines []models.CartLineWithProduct) []gin.H {
	out := make([]gin.H, 0, len(lines))
	for _, l := range lines {
		out = append(out, gin.H{
			"id":        l.ID,
			"productId": l.ProductID,
			"name":      l.Name(),
			"image":     l.Image(),
			"price":     l.Price,
			"quantity":  l.Quantity,
			"subtotal":  l.Subtotal(),
		})
	}
	return out
}

// cartView is the summary plus the lines. Stale marks a snapshot whose last reload failed.
func cartView(cart *services.CartService) gin.H {
	state := cart.State()
	s := state.Snapshot()
	view := summaryView(s, state.Err())
	view["lines"] = lineViews(s.Lines)
	return view
}
