// Package storeapi serves the remote cart store REST contract, a json-server compatible
// subset over products, categories and cart lines.
package storeapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/eduardoezequieel/Desafio2-LIC/internal/database"
)

// ServiceName names the store's server spans.
const ServiceName = "cart-store"

// NewRouter builds the store engine over db.
func NewRouter(db database.Store) *gin.Engine {
	h := NewHandler(db)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(otelgin.Middleware(ServiceName))
	r.Use(logRequests())

	r.GET("/health", h.Health)

	r.GET("/products", h.ListProducts)
	r.GET("/products/:id", h.GetProduct)
	r.GET("/categories", h.ListCategories)

	r.GET("/cart", h.ListCart)
	r.GET("/cart/:id", h.GetCartLine)
	r.POST("/cart", h.CreateCartLine)
	r.PUT("/cart/:id", h.ReplaceCartLine)
	r.DELETE("/cart/:id", h.DeleteCartLine)

	return r
}

func logRequests() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		entry := log.WithFields(log.Fields{
			"method":  c.Request.Method,
			"path":    c.Request.URL.RequestURI(),
			"status":  c.Writer.Status(),
			"latency": time.Since(start).String(),
		})
		if c.Writer.Status() >= http.StatusInternalServerError {
			entry.Warn("store request")
			return
		}
		entry.Debug("store request")
	}
}
