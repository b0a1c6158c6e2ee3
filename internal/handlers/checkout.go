package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/models"
)

// Checkout handles POST /api/v1/checkout
//
// The idempotency key travels in the Idempotency-Key header. Retried keys
// replay the stored outcome with its original status code, so a 402 decline
// replays as a 402 even though nothing runs again.
func (h *Handlers) Checkout(c *gin.Context) {
	user := userID(c)
	if user == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "X-User-ID header is required"})
		return
	}

	key := c.GetHeader("Idempotency-Key")

	var req models.CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	out, err := h.checkout.Checkout(c.Request.Context(), user, key, &req)
	if err != nil {
		h.handleError(c, err)
		return
	}

	if out.Replayed {
		c.Header("Idempotency-Replayed", "true")
	}
	c.JSON(out.StatusCode, out.Result)
}
