package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// GetInvoice handles GET /api/v1/orders/:id/invoice
func (h *Handlers) GetInvoice(c *gin.Context) {
	invoice, err := h.documents.GetInvoice(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, invoice)
}

// GetReceipt handles GET /api/v1/orders/:id/receipt
func (h *Handlers) GetReceipt(c *gin.Context) {
	receipt, err := h.documents.GetReceipt(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, receipt)
}

// ResendInvoice handles POST /api/v1/orders/:id/invoice/resend
//
// Re-emits the invoice event for the existing document. The invoice is
// never regenerated or renumbered.
func (h *Handlers) ResendInvoice(c *gin.Context) {
	invoice, err := h.documents.ResendInvoice(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, invoice)
}

// ResendReceipt handles POST /api/v1/orders/:id/receipt/resend
func (h *Handlers) ResendReceipt(c *gin.Context) {
	receipt, err := h.documents.ResendReceipt(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, receipt)
}
