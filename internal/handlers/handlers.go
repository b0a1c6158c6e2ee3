// Package handlers exposes the checkout service over HTTP. Handlers parse
// and bind, delegate to the service layer, and translate domain errors to
// status codes; they hold no business logic.
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/apperrors"
	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/config"
	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/service"
)

// Handlers holds all HTTP handlers for the checkout service.
type Handlers struct {
	checkout  *service.CheckoutService
	orders    *service.OrderService
	payments  *service.PaymentService
	documents *service.DocumentService
	config    *config.Config
	logger    *zap.Logger
}

// NewHandlers creates a new handlers instance.
func NewHandlers(
	checkout *service.CheckoutService,
	orders *service.OrderService,
	payments *service.PaymentService,
	documents *service.DocumentService,
	cfg *config.Config,
	logger *zap.Logger,
) *Handlers {
	return &Handlers{
		checkout:  checkout,
		orders:    orders,
		payments:  payments,
		documents: documents,
		config:    cfg,
		logger:    logger.Named("handlers"),
	}
}

// handleError maps domain errors to HTTP responses. State conflicts report
// 409 so clients can re-read the order and decide; only malformed input
// reports 400.
func (h *Handlers) handleError(c *gin.Context, err error) {
	var (
		validationErr *apperrors.ValidationError
		stockErr      *apperrors.InsufficientStockError
		declinedErr   *apperrors.PaymentDeclinedError
		transitionErr *apperrors.InvalidOrderStateTransitionError
		cancelledErr  *apperrors.OrderAlreadyCancelledError
		frozenErr     *apperrors.OrderModificationAfterPaymentError
		idemErr       *apperrors.IdempotencyConflictError
	)

	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.As(err, &validationErr):
		c.JSON(http.StatusBadRequest, gin.H{
			"error": validationErr.Message,
			"field": validationErr.Field,
		})
	case errors.As(err, &declinedErr):
		c.JSON(http.StatusPaymentRequired, gin.H{"error": declinedErr.Error()})
	case errors.As(err, &stockErr):
		c.JSON(http.StatusConflict, gin.H{
			"error":      stockErr.Error(),
			"product_id": stockErr.ProductID,
			"requested":  stockErr.Requested,
			"available":  stockErr.Available,
		})
	case errors.As(err, &idemErr):
		c.JSON(http.StatusConflict, gin.H{"error": idemErr.Error()})
	case errors.As(err, &transitionErr):
		c.JSON(http.StatusConflict, gin.H{"error": transitionErr.Error()})
	case errors.As(err, &cancelledErr):
		c.JSON(http.StatusConflict, gin.H{"error": cancelledErr.Error()})
	case errors.As(err, &frozenErr):
		c.JSON(http.StatusConflict, gin.H{"error": frozenErr.Error()})
	default:
		h.logger.Error("unhandled error", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}

// userID resolves the calling user from the X-User-ID header. Authentication
// itself happens upstream at the API gateway.
func userID(c *gin.Context) string {
	return c.GetHeader("X-User-ID")
}
