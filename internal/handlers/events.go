package handlers

import (
	"io"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/eduardoezequieel/Desafio2-LIC/internal/services"
)

var eventsKeepAlive = 15 * time.Second

// CartEvents serves GET /api/cart/events, a server-sent event stream that pushes the
// navbar summary every time the session's cart state is refreshed.
func (h *Handler) CartEvents(c *gin.Context) {
	sess := h.session(c)
	ctx := c.Request.Context()
	ensureLoaded(ctx, sess)
	state := sess.Cart.State()

	// capacity one; a slow reader only ever sees the newest snapshot
	updates := make(chan services.CartSnapshot, 1)
	unsubscribe := state.Subscribe(func(s services.CartSnapshot) {
		for {
			select {
			case updates <- s:
				return
			default:
			}
			select {
			case <-updates:
			default:
			}
		}
	})
	defer unsubscribe()

	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")
	c.SSEvent("cart", summaryView(state.Snapshot(), state.Err()))
	c.Writer.Flush()

	logger := log.WithField("session", sess.ID)
	logger.Debug("CartEvents - stream opened")
	keepAlive := time.NewTicker(eventsKeepAlive)
	defer keepAlive.Stop()

	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case s := <-updates:
			c.SSEvent("cart", summaryView(s, state.Err()))
			return true
		case <-state.Done():
			c.SSEvent("expired", gin.H{"message": "Your session expired. Please reload the page."})
			return false
		case <-keepAlive.C:
			c.SSEvent("ping", gin.H{})
			return true
		}
	})
	logger.Debug("CartEvents - stream closed")
}

func summaryView(s services.CartSnapshot, refreshErr error) gin.H {
	return gin.H{
		"itemCount":  s.ItemCount(),
		"total":      s.Total(),
		"totalText":  services.FormatMoney(s.Total()),
		"generation": s.Generation,
		"stale":      refreshErr != nil,
	}
}
