package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

// ServiceName names the storefront's server spans.
const ServiceName = "storefront"

// NewRouter builds the storefront engine.
func NewRouter(h *Handler) (*gin.Engine, error) {
	renderer, err := LoadTemplates()
	if err != nil {
		return nil, err
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(otelgin.Middleware(ServiceName))
	r.Use(RequestLogger())
	if err := r.SetTrustedProxies([]string{"127.0.0.1", "::1"}); err != nil {
		return nil, err
	}
	r.HTMLRender = renderer

	r.GET("/healthz", h.Health)

	r.GET("/", h.CatalogPage)
	r.GET("/cart", h.CartPage)

	api := r.Group("/api")
	{
		api.GET("/products", h.ListProducts)
		api.GET("/products/:id", h.GetProduct)
		api.GET("/categories", h.ListCategories)

		api.GET("/cart", h.GetCart)
		api.GET("/cart/events", h.CartEvents)
		api.POST("/cart/items", h.AddItem)
		api.PUT("/cart/items/:id", h.SetQuantity)
		api.POST("/cart/items/:id/increment", h.Increment)
		api.POST("/cart/items/:id/decrement", h.Decrement)
		api.DELETE("/cart/items/:id", h.RemoveItem)

		api.POST("/checkout", h.Checkout)
		api.GET("/notices", h.Notices)
	}

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "Not found"})
	})

	return r, nil
}

// RequestLogger logs each request with logrus once it completes.
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		entry := log.WithFields(log.Fields{
			"method":  c.Request.Method,
			"path":    c.Request.URL.Path,
			"status":  c.Writer.Status(),
			"latency": time.Since(start).String(),
			"session": c.GetString("session"),
		})
		switch status := c.Writer.Status(); {
		case status >= http.StatusInternalServerError:
			entry.Error("storefront request")
		case status >= http.StatusBadRequest:
			entry.Warn("storefront request")
		default:
			entry.Info("storefront request")
		}
	}
}
