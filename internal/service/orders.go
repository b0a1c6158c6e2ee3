package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/apperrors"
	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/config"
	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/events"
	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/gateway"
	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/lifecycle"
	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/models"
	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/repository"
)

// OrderService handles order queries, fulfillment transitions and
// pre-payment mutations.
type OrderService struct {
	orders    repository.OrderRepository
	payments  repository.PaymentRepository
	inventory repository.InventoryRepository
	gateway   gateway.Gateway
	cache     repository.OrderCache
	publisher events.Publisher
	config    *config.Config
	logger    *zap.Logger
}

// NewOrderService creates a new order service.
func NewOrderService(
	orders repository.OrderRepository,
	payments repository.PaymentRepository,
	inventory repository.InventoryRepository,
	gw gateway.Gateway,
	cache repository.OrderCache,
	publisher events.Publisher,
	cfg *config.Config,
	logger *zap.Logger,
) *OrderService {
	return &OrderService{
		orders:    orders,
		payments:  payments,
		inventory: inventory,
		gateway:   gw,
		cache:     cache,
		publisher: publisher,
		config:    cfg,
		logger:    logger,
	}
}

// GetOrder retrieves an order by ID, consulting the cache first.
func (s *OrderService) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	if s.config.Features.EnableOrderCaching {
		if order, err := s.cache.Get(ctx, id); err == nil && order != nil {
			return order, nil
		}
	}

	order, err := s.orders.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if s.config.Features.EnableOrderCaching {
		s.cache.Set(ctx, order)
	}
	return order, nil
}

// ListOrders retrieves orders matching the filter.
func (s *OrderService) ListOrders(ctx context.Context, filter *models.OrderListFilter) ([]*models.Order, int, error) {
	if err := ValidateOrderListFilter(filter); err != nil {
		return nil, 0, err
	}
	if filter.Limit <= 0 {
		filter.Limit = 20
	}
	return s.orders.List(ctx, filter)
}

// GetUserOrders retrieves a user's orders, newest first.
func (s *OrderService) GetUserOrders(ctx context.Context, userID string, limit, offset int) ([]*models.Order, int, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}

	if s.config.Features.EnableOrderCaching && offset == 0 {
		if orders, err := s.cache.GetByUserID(ctx, userID); err == nil && orders != nil {
			return orders, len(orders), nil
		}
	}

	orders, total, err := s.orders.GetByUserID(ctx, userID, limit, offset)
	if err != nil {
		return nil, 0, err
	}

	if s.config.Features.EnableOrderCaching && offset == 0 {
		s.cache.SetByUserID(ctx, userID, orders)
	}
	return orders, total, nil
}

// Dispatch moves a paid order to DISPATCHED.
func (s *OrderService) Dispatch(ctx context.Context, id string) (*models.Order, error) {
	return s.transition(ctx, id, lifecycle.ActionDispatch)
}

// Deliver moves a dispatched order to DELIVERED.
func (s *OrderService) Deliver(ctx context.Context, id string) (*models.Order, error) {
	return s.transition(ctx, id, lifecycle.ActionDeliver)
}

// transition validates the action against the order's current status, then
// applies it with a guarded UPDATE. A guard miss means the order moved
// under us; the fresh status is re-validated to produce the right error.
func (s *OrderService) transition(ctx context.Context, id string, action lifecycle.Action) (*models.Order, error) {
	order, err := s.orders.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	next, err := lifecycle.Apply(order.Status, action)
	if err != nil {
		return nil, err
	}

	applied, err := s.orders.UpdateStatusCAS(ctx, id, order.Status, next)
	if err != nil {
		return nil, err
	}
	if !applied {
		fresh, err := s.orders.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if _, verr := lifecycle.Apply(fresh.Status, action); verr != nil {
			return nil, verr
		}
		return nil, &apperrors.InvalidOrderStateTransitionError{
			CurrentStatus:   string(fresh.Status),
			AttemptedStatus: string(action.Target()),
			Reason:          "order changed concurrently",
		}
	}

	previous := order.Status
	order.Status = next
	now := time.Now()
	switch next {
	case models.OrderStatusDispatched:
		order.DispatchedAt = &now
	case models.OrderStatusDelivered:
		order.DeliveredAt = &now
	}

	s.invalidateCache(ctx, order)

	if s.config.Features.EnableOrderEvents {
		if err := s.publisher.OrderStatusChanged(ctx, order, previous); err != nil {
			s.logger.Error("failed to publish status change event",
				zap.String("order_id", order.ID),
				zap.Error(err),
			)
		}
	}

	s.logger.Info("order transitioned",
		zap.String("order_id", order.ID),
		zap.String("from", string(previous)),
		zap.String("to", string(next)),
	)
	return order, nil
}

// Cancel cancels an order. Cancelling a paid order refunds its payment
// before the status moves.
func (s *OrderService) Cancel(ctx context.Context, id, reason string) (*models.Order, error) {
	if err := ValidateCancellationReason(reason); err != nil {
		return nil, err
	}

	order, err := s.orders.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if _, err := lifecycle.Apply(order.Status, lifecycle.ActionCancel); err != nil {
		return nil, err
	}

	if order.Status == models.OrderStatusPaid && order.PaymentID != "" {
		if err := s.refundPayment(ctx, order); err != nil {
			return nil, err
		}
	}

	applied, err := s.orders.UpdateStatusCAS(ctx, id, order.Status, models.OrderStatusCancelled)
	if err != nil {
		return nil, err
	}
	if !applied {
		fresh, err := s.orders.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if _, verr := lifecycle.Apply(fresh.Status, lifecycle.ActionCancel); verr != nil {
			return nil, verr
		}
		return nil, &apperrors.InvalidOrderStateTransitionError{
			CurrentStatus:   string(fresh.Status),
			AttemptedStatus: string(models.OrderStatusCancelled),
			Reason:          "order changed concurrently",
		}
	}

	previous := order.Status
	order.Status = models.OrderStatusCancelled
	s.invalidateCache(ctx, order)

	if s.config.Features.EnableOrderEvents {
		if err := s.publisher.OrderCancelled(ctx, order, reason); err != nil {
			s.logger.Error("failed to publish order cancelled event",
				zap.String("order_id", order.ID),
				zap.Error(err),
			)
		}
	}

	s.logger.Info("order cancelled",
		zap.String("order_id", order.ID),
		zap.String("previous_status", string(previous)),
		zap.String("reason", reason),
	)
	return order, nil
}

func (s *OrderService) refundPayment(ctx context.Context, order *models.Order) error {
	payment, err := s.payments.GetByID(ctx, order.PaymentID)
	if err != nil {
		return err
	}
	if !payment.CanRefund() {
		return nil
	}

	result, err := s.gateway.Refund(ctx, payment.TransactionID, payment.Amount)
	if err != nil {
		return err
	}
	if !result.Approved {
		s.logger.Error("gateway refused refund",
			zap.String("payment_id", payment.ID),
			zap.String("reason", result.Reason),
		)
		return &apperrors.PaymentDeclinedError{Reason: result.Reason}
	}

	return s.payments.UpdateStatus(ctx, payment.ID, models.PaymentStatusRefunded, "", "")
}

// AddItem appends a line to an order that has not been paid yet.
func (s *OrderService) AddItem(ctx context.Context, orderID, productID string, quantity int) (*models.Order, error) {
	if quantity <= 0 {
		return nil, apperrors.NewValidationError("quantity", "quantity must be positive")
	}

	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if err := guardMutable(order); err != nil {
		return nil, err
	}

	product, err := s.inventory.GetProduct(ctx, productID)
	if err != nil {
		return nil, err
	}

	merged := false
	for i := range order.Items {
		if order.Items[i].ProductID == productID {
			order.Items[i].Quantity += quantity
			merged = true
			break
		}
	}
	if !merged {
		order.Items = append(order.Items, models.OrderItem{
			ID:          "item_" + uuid.NewString(),
			ProductID:   product.ID,
			ProductName: product.Name,
			Quantity:    quantity,
			UnitPrice:   product.Price,
		})
	}

	return s.saveItems(ctx, order)
}

// RemoveItem drops a line from an order that has not been paid yet.
func (s *OrderService) RemoveItem(ctx context.Context, orderID, productID string) (*models.Order, error) {
	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if err := guardMutable(order); err != nil {
		return nil, err
	}

	items := order.Items[:0]
	found := false
	for _, item := range order.Items {
		if item.ProductID == productID {
			found = true
			continue
		}
		items = append(items, item)
	}
	if !found {
		return nil, apperrors.ErrNotFound
	}
	order.Items = items

	return s.saveItems(ctx, order)
}

func (s *OrderService) saveItems(ctx context.Context, order *models.Order) (*models.Order, error) {
	order.CalculateTotal()

	applied, err := s.orders.UpdateItems(ctx, order.ID, order.Items, order.Total)
	if err != nil {
		return nil, err
	}
	if !applied {
		// The order left PLACED between the read and the write.
		fresh, err := s.orders.GetByID(ctx, order.ID)
		if err != nil {
			return nil, err
		}
		if gerr := guardMutable(fresh); gerr != nil {
			return nil, gerr
		}
		return nil, &apperrors.InvalidOrderStateTransitionError{
			CurrentStatus:   string(fresh.Status),
			AttemptedStatus: string(fresh.Status),
			Reason:          "order changed concurrently",
		}
	}

	s.invalidateCache(ctx, order)
	return order, nil
}

// guardMutable rejects line mutations on orders past PLACED.
func guardMutable(order *models.Order) error {
	if order.IsMutable() {
		return nil
	}
	if order.Status == models.OrderStatusCancelled {
		return &apperrors.OrderAlreadyCancelledError{OrderID: order.ID}
	}
	return &apperrors.OrderModificationAfterPaymentError{
		OrderID: order.ID,
		Status:  string(order.Status),
	}
}

func (s *OrderService) invalidateCache(ctx context.Context, order *models.Order) {
	if !s.config.Features.EnableOrderCaching {
		return
	}
	s.cache.Delete(ctx, order.ID)
	s.cache.InvalidateByUserID(ctx, order.UserID)
}
