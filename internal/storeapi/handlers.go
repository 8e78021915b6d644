package storeapi

import (
	"net/http"
	"os"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/eduardoezequieel/Desafio2-LIC/internal/database"
	"github.com/eduardoezequieel/Desafio2-LIC/internal/models"
)

// Handler serves the store resources.
type Handler struct {
	db database.Store
}

// NewHandler returns a Handler over db.
func NewHandler(db database.Store) *Handler {
	return &Handler{db: db}
}

// Health reports whether the backing store answers.
func (h *Handler) Health(c *gin.Context) {
	if err := h.db.Ping(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "down", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// ListProducts serves GET /products?name_like=&category=.
func (h *Handler) ListProducts(c *gin.Context) {
	filter := models.ProductFilter{
		Search:   c.Query("name_like"),
		Category: c.Query("category"),
	}
	products, err := h.db.ListProducts(c.Request.Context(), filter)
	if err != nil {
		h.fail(c, "ListProducts", err)
		return
	}
	c.JSON(http.StatusOK, products)
}

// GetProduct serves GET /products/:id.
func (h *Handler) GetProduct(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{})
		return
	}
	product, err := h.db.GetProductByID(c.Request.Context(), id)
	if err != nil {
		h.fail(c, "GetProduct", err)
		return
	}
	c.JSON(http.StatusOK, product)
}

// ListCategories serves GET /categories.
func (h *Handler) ListCategories(c *gin.Context) {
	categories, err := h.db.ListCategories(c.Request.Context())
	if err != nil {
		h.fail(c, "ListCategories", err)
		return
	}
	c.JSON(http.StatusOK, categories)
}

// ListCart serves GET /cart, embedding each product when _expand=product.
func (h *Handler) ListCart(c *gin.Context) {
	ctx := c.Request.Context()
	lines, err := h.db.ListCartLines(ctx)
	if err != nil {
		h.fail(c, "ListCart", err)
		return
	}
	if c.Query("_expand") != "product" {
		c.JSON(http.StatusOK, lines)
		return
	}

	out := make([]models.CartLineWithProduct, 0, len(lines))
	for _, l := range lines {
		joined := models.CartLineWithProduct{CartLine: l}
		product, err := h.db.GetProductByID(ctx, l.ProductID)
		switch {
		case err == nil:
			joined.Product = product
		case errors.Is(err, os.ErrNotExist):
			// json-server leaves the key out when the parent record is gone
		default:
			h.fail(c, "ListCart", err)
			return
		}
		out = append(out, joined)
	}
	c.JSON(http.StatusOK, out)
}

// GetCartLine serves GET /cart/:id.
func (h *Handler) GetCartLine(c *gin.Context) {
	line, err := h.db.GetCartLine(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, "GetCartLine", err)
		return
	}
	c.JSON(http.StatusOK, line)
}

// CreateCartLine serves POST /cart.
func (h *Handler) CreateCartLine(c *gin.Context) {
	var line models.CartLine
	if !bindLine(c, &line) {
		return
	}
	if err := h.db.CreateCartLine(c.Request.Context(), &line); err != nil {
		h.fail(c, "CreateCartLine", err)
		return
	}
	log.WithFields(log.Fields{"line_id": line.ID, "product_id": line.ProductID, "quantity": line.Quantity}).
		Info("Store.CreateCartLine - created")
	c.JSON(http.StatusCreated, line)
}

// ReplaceCartLine serves PUT /cart/:id. The path id wins over the body id.
func (h *Handler) ReplaceCartLine(c *gin.Context) {
	var line models.CartLine
	if !bindLine(c, &line) {
		return
	}
	line.ID = c.Param("id")
	if err := h.db.ReplaceCartLine(c.Request.Context(), &line); err != nil {
		h.fail(c, "ReplaceCartLine", err)
		return
	}
	log.WithFields(log.Fields{"line_id": line.ID, "quantity": line.Quantity}).
		Info("Store.ReplaceCartLine - replaced")
	c.JSON(http.StatusOK, line)
}

// DeleteCartLine serves DELETE /cart/:id.
func (h *Handler) DeleteCartLine(c *gin.Context) {
	id := c.Param("id")
	if err := h.db.DeleteCartLine(c.Request.Context(), id); err != nil {
		h.fail(c, "DeleteCartLine", err)
		return
	}
	log.WithField("line_id", id).Info("Store.DeleteCartLine - deleted")
	c.JSON(http.StatusOK, gin.H{})
}

func bindLine(c *gin.Context, line *models.CartLine) bool {
	if err := c.ShouldBindJSON(line); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return false
	}
	if err := line.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return false
	}
	return true
}

func (h *Handler) fail(c *gin.Context, op string, err error) {
	switch {
	case errors.Is(err, os.ErrNotExist):
		c.JSON(http.StatusNotFound, gin.H{})
	case errors.Is(err, database.ErrDuplicateID):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		log.WithError(err).Errorf("Store.%s - failed", op)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
