package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/apperrors"
	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/gateway"
	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/models"
	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/repository"
)

// PaymentService answers payment queries and handles refunds outside the
// checkout flow.
type PaymentService struct {
	payments repository.PaymentRepository
	gateway  gateway.Gateway
	logger   *zap.Logger
}

// NewPaymentService creates a new payment service.
func NewPaymentService(payments repository.PaymentRepository, gw gateway.Gateway, logger *zap.Logger) *PaymentService {
	return &PaymentService{
		payments: payments,
		gateway:  gw,
		logger:   logger,
	}
}

// GetPayment retrieves a payment by ID.
func (s *PaymentService) GetPayment(ctx context.Context, id string) (*models.Payment, error) {
	return s.payments.GetByID(ctx, id)
}

// GetPaymentByOrder retrieves the payment for an order.
func (s *PaymentService) GetPaymentByOrder(ctx context.Context, orderID string) (*models.Payment, error) {
	return s.payments.GetByOrderID(ctx, orderID)
}

// Refund reverses a captured payment in full.
func (s *PaymentService) Refund(ctx context.Context, paymentID, reason string) (*models.Payment, error) {
	if reason == "" {
		return nil, apperrors.NewValidationError("reason", "refund reason is required")
	}

	payment, err := s.payments.GetByID(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if !payment.CanRefund() {
		return nil, apperrors.NewValidationError("status", "payment cannot be refunded in status "+string(payment.Status))
	}

	result, err := s.gateway.Refund(ctx, payment.TransactionID, payment.Amount)
	if err != nil {
		return nil, err
	}
	if !result.Approved {
		return nil, &apperrors.PaymentDeclinedError{Reason: result.Reason}
	}

	if err := s.payments.UpdateStatus(ctx, payment.ID, models.PaymentStatusRefunded, "", ""); err != nil {
		return nil, err
	}
	payment.Status = models.PaymentStatusRefunded

	s.logger.Info("payment refunded",
		zap.String("payment_id", payment.ID),
		zap.String("order_id", payment.OrderID),
		zap.String("reason", reason),
	)
	return payment, nil
}
