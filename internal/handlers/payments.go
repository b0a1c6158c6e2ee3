package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// GetPayment handles GET /api/v1/payments/:id
func (h *Handlers) GetPayment(c *gin.Context) {
	payment, err := h.payments.GetPayment(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, payment)
}

// GetOrderPayment handles GET /api/v1/orders/:id/payment
func (h *Handlers) GetOrderPayment(c *gin.Context) {
	payment, err := h.payments.GetPaymentByOrder(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, payment)
}

// RefundPayment handles POST /api/v1/payments/:id/refund
func (h *Handlers) RefundPayment(c *gin.Context) {
	var req struct {
		Reason string `json:"reason"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	payment, err := h.payments.Refund(c.Request.Context(), c.Param("id"), req.Reason)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, payment)
}
