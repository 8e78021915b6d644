package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/eduardoezequieel/Desafio2-LIC/internal/models"
)

// CatalogPage serves GET /?search=&category=.
func (h *Handler) CatalogPage(c *gin.Context) {
	sess := h.session(c)
	ctx := c.Request.Context()

	var filter models.ProductFilter
	_ = c.ShouldBindQuery(&filter)
	filter = filter.Normalize()

	if err := sess.Cart.Refresh(ctx); err != nil {
		log.WithError(err).Warn("CatalogPage - cart refresh failed")
	}

	data := gin.H{
		"title":       "Catalog",
		"filter":      filter,
		"filtered":    !filter.IsZero(),
		"products":    []models.Product{},
		"categories":  []models.Category{},
		"cart":        sess.Cart.Snapshot(),
		"minQuantity": models.MinQuantity,
		"maxQuantity": models.MaxQuantity,
	}

	status := http.StatusOK
	products, err := h.catalog.ListProducts(ctx, filter)
	if err != nil {
		log.WithError(err).Error("CatalogPage - products unavailable")
		data["loadError"] = "The catalog is unavailable right now. Please try again."
		status = http.StatusBadGateway
	} else {
		data["products"] = products
	}

	categories, err := h.catalog.ListCategories(ctx)
	if err != nil {
		log.WithError(err).Warn("CatalogPage - categories unavailable")
	} else {
		data["categories"] = categories
	}

	c.HTML(status, "catalog.html", data)
}

// CartPage serves GET /cart.
func (h *Handler) CartPage(c *gin.Context) {
	sess := h.session(c)

	data := gin.H{"title": "Cart"}
	status := http.StatusOK
	if err := sess.Cart.Refresh(c.Request.Context()); err != nil {
		log.WithError(err).Error("CartPage - cart refresh failed")
		data["loadError"] = "Your cart could not be loaded. Showing the last known contents."
		status = http.StatusBadGateway
	}
	data["cart"] = sess.Cart.Snapshot()

	c.HTML(status, "cart.html", data)
}
