package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/apperrors"
	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/config"
	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/events"
	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/gateway"
	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/metrics"
	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/models"
	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/repository"
)

// CheckoutOutcome is what the handler writes back: the durable result plus
// its HTTP status. Replayed marks a response served from the idempotency
// store instead of a fresh run.
type CheckoutOutcome struct {
	Result     *models.CheckoutResult
	StatusCode int
	Replayed   bool
}

// CheckoutService orchestrates the place-and-pay saga: reserve stock,
// create the order, take payment, then issue documents. Payment capture is
// the commit point; before it every step compensates on failure, after it
// nothing is rolled back.
type CheckoutService struct {
	carts       repository.CartRepository
	orders      repository.OrderRepository
	inventory   repository.InventoryRepository
	payments    repository.PaymentRepository
	idempotency repository.IdempotencyRepository
	gateway     gateway.Gateway
	documents   *DocumentService
	publisher   events.Publisher
	cache       repository.OrderCache
	config      *config.Config
	logger      *zap.Logger
}

// NewCheckoutService creates a new checkout service.
func NewCheckoutService(
	carts repository.CartRepository,
	orders repository.OrderRepository,
	inventory repository.InventoryRepository,
	payments repository.PaymentRepository,
	idempotency repository.IdempotencyRepository,
	gw gateway.Gateway,
	documents *DocumentService,
	publisher events.Publisher,
	cache repository.OrderCache,
	cfg *config.Config,
	logger *zap.Logger,
) *CheckoutService {
	return &CheckoutService{
		carts:       carts,
		orders:      orders,
		inventory:   inventory,
		payments:    payments,
		idempotency: idempotency,
		gateway:     gw,
		documents:   documents,
		publisher:   publisher,
		cache:       cache,
		config:      cfg,
		logger:      logger,
	}
}

// Checkout runs the saga for a user's cart under an idempotency key.
// Validation errors return before the key is claimed; every outcome past
// the gate, success or failure, is stored under the key and replayed
// verbatim on retry.
func (s *CheckoutService) Checkout(ctx context.Context, userID, key string, req *models.CheckoutRequest) (*CheckoutOutcome, error) {
	if err := ValidateIdempotencyKey(key); err != nil {
		return nil, err
	}
	if err := ValidateCheckoutRequest(req); err != nil {
		return nil, err
	}

	s.logger.Info("checkout started",
		zap.String("user_id", userID),
		zap.String("idempotency_key", key),
	)

	record := &models.IdempotencyRecord{
		Key:         key,
		UserID:      userID,
		Endpoint:    models.CheckoutEndpoint,
		RequestHash: hashRequest(req),
		CreatedAt:   time.Now(),
		ExpiresAt:   time.Now().Add(s.config.Checkout.IdempotencyTTL),
	}

	existing, claimed, err := s.idempotency.BeginAttempt(ctx, record)
	if err != nil {
		return nil, err
	}
	if !claimed {
		if existing.Status == models.IdempotencyStatusInProgress {
			return nil, &apperrors.IdempotencyConflictError{Key: key}
		}

		var cached models.CheckoutResult
		if err := json.Unmarshal(existing.ResponseBody, &cached); err != nil {
			return nil, err
		}
		s.logger.Info("checkout replayed from idempotency store",
			zap.String("user_id", userID),
			zap.String("idempotency_key", key),
		)
		metrics.RecordCheckoutOutcome(metrics.OutcomeReplayed)
		return &CheckoutOutcome{
			Result:     &cached,
			StatusCode: existing.StatusCode,
			Replayed:   true,
		}, nil
	}

	out, err := s.run(ctx, userID, key, req)
	if err != nil {
		// Infrastructure failure before an outcome was stored. Free the
		// key so the client's retry runs the saga instead of hitting an
		// IN_PROGRESS record until the TTL.
		if aerr := s.idempotency.Abandon(ctx, key, userID, models.CheckoutEndpoint); aerr != nil {
			s.logger.Error("failed to abandon idempotency record",
				zap.String("idempotency_key", key),
				zap.Error(aerr),
			)
		}
	}
	return out, err
}

func (s *CheckoutService) run(ctx context.Context, userID, key string, req *models.CheckoutRequest) (*CheckoutOutcome, error) {
	cart, err := s.carts.Get(ctx, userID)
	if err != nil {
		metrics.RecordCheckoutOutcome(metrics.OutcomeInfraError)
		return nil, err
	}
	if cart.IsEmpty() {
		return s.finish(ctx, userID, key, metrics.OutcomeEmptyCart, &CheckoutOutcome{
			Result:     &models.CheckoutResult{Success: false, Error: "cart is empty"},
			StatusCode: http.StatusUnprocessableEntity,
		})
	}

	ownerRef := "checkout_" + userID + "_" + key

	reservations, err := s.inventory.ReserveAll(ctx, ownerRef, cart.Items, s.config.Checkout.ReservationTimeout)
	if err != nil {
		var stockErr *apperrors.InsufficientStockError
		if errors.As(err, &stockErr) {
			metrics.RecordReservation("shortfall")
			return s.finish(ctx, userID, key, metrics.OutcomeInsufficientStock, &CheckoutOutcome{
				Result:     &models.CheckoutResult{Success: false, Error: stockErr.Error()},
				StatusCode: http.StatusConflict,
			})
		}
		metrics.RecordCheckoutOutcome(metrics.OutcomeInfraError)
		return nil, err
	}
	metrics.RecordReservation("reserved")
	s.logger.Info("stock reserved",
		zap.String("owner_ref", ownerRef),
		zap.Int("holds", len(reservations)),
	)

	order := s.buildOrder(userID, cart, req)
	if err := s.orders.Create(ctx, order); err != nil {
		// Nothing is sold yet; give the stock back.
		s.compensateReservations(ctx, ownerRef)
		metrics.RecordCheckoutOutcome(metrics.OutcomeInfraError)
		return nil, err
	}

	if s.config.Features.EnableOrderEvents {
		if err := s.publisher.OrderCreated(ctx, order); err != nil {
			s.logger.Error("failed to publish order created event",
				zap.String("order_id", order.ID),
				zap.Error(err),
			)
		}
	}

	payment := &models.Payment{
		ID:             "pay_" + uuid.NewString(),
		OrderID:        order.ID,
		Amount:         order.Total,
		Method:         models.PaymentMethodCreditCard,
		Status:         models.PaymentStatusPending,
		IdempotencyKey: key,
		CreatedAt:      time.Now(),
		UpdatedAt:      time.Now(),
	}
	if err := s.payments.Create(ctx, payment); err != nil {
		s.compensateReservations(ctx, ownerRef)
		s.cancelOrderRow(ctx, order)
		metrics.RecordCheckoutOutcome(metrics.OutcomeInfraError)
		return nil, err
	}

	start := time.Now()
	auth, err := s.gateway.Authorize(ctx, key, order.Total, req.PaymentDetails)
	if err == nil && auth.Approved {
		var settle *gateway.Result
		settle, err = s.gateway.Capture(ctx, auth.TransactionID)
		if err == nil && !settle.Approved {
			// A refused capture means no money moved. Same as a decline.
			auth = &gateway.Result{
				TransactionID: auth.TransactionID,
				Approved:      false,
				Reason:        settle.Reason,
			}
		}
	}
	metrics.ObservePaymentDuration(time.Since(start))

	if err != nil {
		s.compensateReservations(ctx, ownerRef)
		s.cancelOrderRow(ctx, order)
		metrics.RecordCheckoutOutcome(metrics.OutcomeInfraError)
		return nil, err
	}

	if !auth.Approved {
		declined := &apperrors.PaymentDeclinedError{Reason: auth.Reason}
		s.logger.Info("payment declined",
			zap.String("order_id", order.ID),
			zap.String("reason", auth.Reason),
		)

		if err := s.payments.UpdateStatus(ctx, payment.ID, models.PaymentStatusDeclined, "", auth.Reason); err != nil {
			s.logger.Error("failed to record payment decline",
				zap.String("payment_id", payment.ID),
				zap.Error(err),
			)
		}
		s.compensateReservations(ctx, ownerRef)
		s.cancelOrderRow(ctx, order)

		if s.config.Features.EnableOrderEvents {
			if err := s.publisher.PaymentFailed(ctx, order, auth.Reason); err != nil {
				s.logger.Error("failed to publish payment failed event",
					zap.String("order_id", order.ID),
					zap.Error(err),
				)
			}
		}

		return s.finish(ctx, userID, key, metrics.OutcomePaymentDeclined, &CheckoutOutcome{
			Result: &models.CheckoutResult{
				Success:     false,
				OrderID:     order.ID,
				PaymentID:   payment.ID,
				OrderStatus: models.OrderStatusCancelled,
				Error:       declined.Error(),
			},
			StatusCode: http.StatusPaymentRequired,
		})
	}

	// Commit point. Money has moved; from here the saga only moves forward.
	if err := s.payments.UpdateStatus(ctx, payment.ID, models.PaymentStatusCaptured, auth.TransactionID, ""); err != nil {
		s.logger.Error("failed to record payment capture",
			zap.String("payment_id", payment.ID),
			zap.Error(err),
		)
	}
	payment.Status = models.PaymentStatusCaptured
	payment.TransactionID = auth.TransactionID

	if err := s.inventory.Commit(ctx, ownerRef); err != nil {
		s.logger.Error("failed to commit reservations",
			zap.String("owner_ref", ownerRef),
			zap.Error(err),
		)
	}
	metrics.RecordReservation("committed")

	if _, err := s.orders.UpdateStatusCAS(ctx, order.ID, models.OrderStatusPlaced, models.OrderStatusPaid); err != nil {
		s.logger.Error("failed to mark order paid",
			zap.String("order_id", order.ID),
			zap.Error(err),
		)
	}
	order.Status = models.OrderStatusPaid

	if err := s.orders.SetPaymentID(ctx, order.ID, payment.ID); err != nil {
		s.logger.Error("failed to link payment to order",
			zap.String("order_id", order.ID),
			zap.Error(err),
		)
	}
	order.PaymentID = payment.ID

	invoice, err := s.documents.GenerateInvoice(ctx, order)
	if err != nil {
		s.logger.Error("invoice generation failed after capture",
			zap.String("order_id", order.ID),
			zap.Error(err),
		)
	}
	receipt, err := s.documents.GenerateReceipt(ctx, order, payment)
	if err != nil {
		s.logger.Error("receipt generation failed after capture",
			zap.String("order_id", order.ID),
			zap.Error(err),
		)
	}

	if err := s.carts.Clear(ctx, userID); err != nil {
		s.logger.Error("failed to clear cart",
			zap.String("user_id", userID),
			zap.Error(err),
		)
	}

	if s.config.Features.EnableOrderCaching {
		if err := s.cache.Set(ctx, order); err != nil {
			s.logger.Error("failed to cache order",
				zap.String("order_id", order.ID),
				zap.Error(err),
			)
		}
		s.cache.InvalidateByUserID(ctx, userID)
	}

	if s.config.Features.EnableOrderEvents {
		if err := s.publisher.OrderConfirmed(ctx, order); err != nil {
			s.logger.Error("failed to publish order confirmed event",
				zap.String("order_id", order.ID),
				zap.Error(err),
			)
		}
	}

	s.emitLowStock(ctx, cart)

	result := &models.CheckoutResult{
		Success:     true,
		OrderID:     order.ID,
		PaymentID:   payment.ID,
		OrderStatus: order.Status,
	}
	if invoice != nil {
		result.InvoiceNumber = invoice.InvoiceNumber
	}
	if receipt != nil {
		result.ReceiptNumber = receipt.ReceiptNumber
	}

	s.logger.Info("checkout fulfilled",
		zap.String("order_id", order.ID),
		zap.String("payment_id", payment.ID),
		zap.Int("units", order.ItemCount()),
		zap.Int64("total", order.Total.Amount),
	)

	return s.finish(ctx, userID, key, metrics.OutcomeFulfilled, &CheckoutOutcome{
		Result:     result,
		StatusCode: http.StatusCreated,
	})
}

// finish stores the outcome under the idempotency key and returns it.
func (s *CheckoutService) finish(ctx context.Context, userID, key, outcome string, out *CheckoutOutcome) (*CheckoutOutcome, error) {
	metrics.RecordCheckoutOutcome(outcome)

	body, err := json.Marshal(out.Result)
	if err != nil {
		return nil, err
	}
	if err := s.idempotency.Complete(ctx, key, userID, models.CheckoutEndpoint, out.StatusCode, body); err != nil {
		s.logger.Error("failed to store checkout outcome",
			zap.String("idempotency_key", key),
			zap.Error(err),
		)
	}
	return out, nil
}

func (s *CheckoutService) buildOrder(userID string, cart *models.Cart, req *models.CheckoutRequest) *models.Order {
	items := make([]models.OrderItem, 0, len(cart.Items))
	for _, line := range cart.Items {
		items = append(items, models.OrderItem{
			ID:          "item_" + uuid.NewString(),
			ProductID:   line.ProductID,
			ProductName: line.ProductName,
			Quantity:    line.Quantity,
			UnitPrice:   line.UnitPrice,
		})
	}

	now := time.Now()
	order := &models.Order{
		ID:              "ord_" + uuid.NewString(),
		UserID:          userID,
		Status:          models.OrderStatusPlaced,
		Customer:        req.Customer,
		Items:           items,
		ShippingAddress: req.ShippingAddress,
		BillingAddress:  req.BillingAddress,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	order.CalculateTotal()
	return order
}

func (s *CheckoutService) compensateReservations(ctx context.Context, ownerRef string) {
	if err := s.inventory.Release(ctx, ownerRef); err != nil {
		s.logger.Error("failed to release reservations",
			zap.String("owner_ref", ownerRef),
			zap.Error(err),
		)
		return
	}
	metrics.RecordReservation("released")
}

// cancelOrderRow moves a freshly placed order to CANCELLED. The row is
// retained as the audit trail of the failed attempt.
func (s *CheckoutService) cancelOrderRow(ctx context.Context, order *models.Order) {
	if !order.CanCancel() {
		return
	}
	applied, err := s.orders.UpdateStatusCAS(ctx, order.ID, models.OrderStatusPlaced, models.OrderStatusCancelled)
	if err != nil {
		s.logger.Error("failed to cancel order after payment failure",
			zap.String("order_id", order.ID),
			zap.Error(err),
		)
		return
	}
	if applied {
		order.Status = models.OrderStatusCancelled
	}
}

func (s *CheckoutService) emitLowStock(ctx context.Context, cart *models.Cart) {
	if !s.config.Features.EnableOrderEvents {
		return
	}

	threshold := s.config.Checkout.LowStockThreshold
	for _, line := range cart.Items {
		product, err := s.inventory.GetProduct(ctx, line.ProductID)
		if err != nil {
			continue
		}
		if product.Stock <= threshold {
			if err := s.publisher.LowStock(ctx, product.ID, product.Stock); err != nil {
				s.logger.Error("failed to publish low stock event",
					zap.String("product_id", product.ID),
					zap.Error(err),
				)
			}
		}
	}
}

func hashRequest(req *models.CheckoutRequest) string {
	data, err := json.Marshal(req)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
