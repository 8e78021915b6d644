package handlers

import (
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/eduardoezequieel/Desafio2-LIC/internal/models"
)

type addItemRequest struct {
	ProductID int `json:"product_id" binding:"required,min=1"`
	Quantity  int `json:"quantity"`
}

type setQuantityRequest struct {
	Quantity *int `json:"quantity" binding:"required"`
}

// ListProducts serves GET /api/products?search=&category=.
func (h *Handler) ListProducts(c *gin.Context) {
	var filter models.ProductFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid filter"})
		return
	}

	products, err := h.catalog.ListProducts(c.Request.Context(), filter.Normalize())
	if err != nil {
		fail(c, "ListProducts", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "products": products})
}

// GetProduct serves GET /api/products/:id for the product modal.
func (h *Handler) GetProduct(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid product id"})
		return
	}

	product, err := h.catalog.GetProduct(c.Request.Context(), id)
	if err != nil {
		fail(c, "GetProduct", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "product": product})
}

// ListCategories serves GET /api/categories.
func (h *Handler) ListCategories(c *gin.Context) {
	categories, err := h.catalog.ListCategories(c.Request.Context())
	if err != nil {
		fail(c, "ListCategories", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "categories": categories})
}

// GetCart serves GET /api/cart. The snapshot fingerprint is the ETag.
func (h *Handler) GetCart(c *gin.Context) {
	sess := h.session(c)
	if err := sess.Cart.Refresh(c.Request.Context()); err != nil {
		fail(c, "GetCart", err)
		return
	}

	snap := sess.Cart.Snapshot()
	etag := `"` + snap.Fingerprint + `"`
	c.Header("ETag", etag)
	c.Header("Cache-Control", "no-cache")
	if c.GetHeader("If-None-Match") == etag {
		c.Status(http.StatusNotModified)
		return
	}
	view := summaryView(snap, nil)
	view["lines"] = lineViews(snap.Lines)
	c.JSON(http.StatusOK, gin.H{"success": true, "cart": view})
}

// AddItem serves POST /api/cart/items, the product modal's confirm button.
func (h *Handler) AddItem(c *gin.Context) {
	sess := h.session(c)

	var req addItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid request"})
		return
	}

	ctx := c.Request.Context()
	product, err := h.catalog.GetProduct(ctx, req.ProductID)
	if err != nil {
		fail(c, "AddItem", err)
		return
	}

	if err := sess.Cart.AddToCart(ctx, *product, req.Quantity); err != nil {
		fail(c, "AddItem", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": product.Name + " added to your cart.", "cart": cartView(sess.Cart)})
}

// SetQuantity serves PUT /api/cart/items/:id.
func (h *Handler) SetQuantity(c *gin.Context) {
	sess := h.session(c)

	var req setQuantityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid request"})
		return
	}

	ctx := c.Request.Context()
	ensureLoaded(ctx, sess)
	if err := sess.Cart.SetQuantity(ctx, c.Param("id"), *req.Quantity); err != nil {
		fail(c, "SetQuantity", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "cart": cartView(sess.Cart)})
}

// Increment serves POST /api/cart/items/:id/increment.
func (h *Handler) Increment(c *gin.Context) {
	sess := h.session(c)
	ctx := c.Request.Context()
	ensureLoaded(ctx, sess)
	if err := sess.Cart.Increment(ctx, c.Param("id")); err != nil {
		fail(c, "Increment", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "cart": cartView(sess.Cart)})
}

// Decrement serves POST /api/cart/items/:id/decrement.
func (h *Handler) Decrement(c *gin.Context) {
	sess := h.session(c)
	ctx := c.Request.Context()
	ensureLoaded(ctx, sess)
	if err := sess.Cart.Decrement(ctx, c.Param("id")); err != nil {
		fail(c, "Decrement", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "cart": cartView(sess.Cart)})
}

// RemoveItem serves DELETE /api/cart/items/:id.
func (h *Handler) RemoveItem(c *gin.Context) {
	sess := h.session(c)
	if err := sess.Cart.Remove(c.Request.Context(), c.Param("id")); err != nil {
		fail(c, "RemoveItem", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "cart": cartView(sess.Cart)})
}

// Checkout serves POST /api/checkout. The body is optional.
func (h *Handler) Checkout(c *gin.Context) {
	sess := h.session(c)

	var form models.CheckoutForm
	if err := c.ShouldBindJSON(&form); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid email address"})
		return
	}

	ctx := c.Request.Context()
	ensureLoaded(ctx, sess)
	receipt, err := sess.Cart.Checkout(ctx, form.Email)
	if err != nil {
		fail(c, "Checkout", err)
		return
	}

	log.WithFields(log.Fields{"session": sess.ID, "receipt": receipt.Number}).Info("Checkout - completed")
	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"message":  "Thank you for your purchase!",
		"receipt":  receipt,
		"redirect": "/",
		"cart":     cartView(sess.Cart),
	})
}

// Notices serves GET /api/notices, draining the session's toasts.
func (h *Handler) Notices(c *gin.Context) {
	sess := h.session(c)
	c.JSON(http.StatusOK, gin.H{"success": true, "notices": sess.Notices.Drain()})
}

// Health serves GET /healthz.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "sessions": h.sessions.Len()})
}
