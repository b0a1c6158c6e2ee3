package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/apperrors"
	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/models"
)

// PostgresOrderRepository implements OrderRepository using PostgreSQL.
type PostgresOrderRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewPostgresOrderRepository creates a new PostgreSQL order repository.
func NewPostgresOrderRepository(db *sql.DB, logger *zap.Logger) *PostgresOrderRepository {
	return &PostgresOrderRepository{
		db:     db,
		logger: logger,
	}
}

const orderColumns = `id, user_id, status, customer, items, shipping_address, billing_address,
	       total_amount, total_currency, payment_id, notes,
	       created_at, updated_at, dispatched_at, delivered_at`

// Create persists a new order with its customer, item and address snapshots.
func (r *PostgresOrderRepository) Create(ctx context.Context, order *models.Order) error {
	r.logger.Debug("creating order",
		zap.String("order_id", order.ID),
		zap.String("user_id", order.UserID),
	)

	customerJSON, err := json.Marshal(order.Customer)
	if err != nil {
		return err
	}
	itemsJSON, err := json.Marshal(order.Items)
	if err != nil {
		return err
	}
	shippingJSON, err := json.Marshal(order.ShippingAddress)
	if err != nil {
		return err
	}
	billingJSON, err := json.Marshal(order.BillingAddress)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO orders (
			id, user_id, status, customer, items, shipping_address, billing_address,
			total_amount, total_currency, notes, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12
		)
	`

	_, err = r.db.ExecContext(ctx, query,
		order.ID,
		order.UserID,
		order.Status,
		customerJSON,
		itemsJSON,
		shippingJSON,
		billingJSON,
		order.Total.Amount,
		order.Total.Currency,
		order.Notes,
		order.CreatedAt,
		order.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("failed to create order",
			zap.String("order_id", order.ID),
			zap.Error(err),
		)
		return err
	}

	r.logger.Info("order created",
		zap.String("order_id", order.ID),
		zap.String("user_id", order.UserID),
		zap.Int64("total", order.Total.Amount),
	)
	return nil
}

// GetByID retrieves an order by its unique identifier.
func (r *PostgresOrderRepository) GetByID(ctx context.Context, id string) (*models.Order, error) {
	query := `
		SELECT ` + orderColumns + `
		FROM orders
		WHERE id = $1
	`

	order, err := scanOrder(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		r.logger.Error("failed to fetch order",
			zap.String("order_id", id),
			zap.Error(err),
		)
		return nil, err
	}
	return order, nil
}

// List retrieves orders based on filter criteria.
func (r *PostgresOrderRepository) List(ctx context.Context, filter *models.OrderListFilter) ([]*models.Order, int, error) {
	baseQuery := `
		FROM orders
		WHERE 1 = 1
	`
	args := make([]interface{}, 0)
	argIdx := 1

	if filter.UserID != "" {
		baseQuery += fmt.Sprintf(" AND user_id = $%d", argIdx)
		args = append(args, filter.UserID)
		argIdx++
	}
	if filter.Status != nil {
		baseQuery += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, *filter.Status)
		argIdx++
	}

	var total int
	countQuery := "SELECT COUNT(*) " + baseQuery
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	selectQuery := "SELECT " + orderColumns + baseQuery +
		fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", argIdx, argIdx+1)
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.db.QueryContext(ctx, selectQuery, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	orders := make([]*models.Order, 0)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, 0, err
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	return orders, total, nil
}

// GetByUserID retrieves orders for a specific user, newest first.
func (r *PostgresOrderRepository) GetByUserID(ctx context.Context, userID string, limit, offset int) ([]*models.Order, int, error) {
	filter := &models.OrderListFilter{
		UserID: userID,
		Limit:  limit,
		Offset: offset,
	}
	return r.List(ctx, filter)
}

// UpdateStatusCAS moves the order to next only while its current status
// still equals expected. Dispatch and delivery also stamp their timestamps.
func (r *PostgresOrderRepository) UpdateStatusCAS(ctx context.Context, id string, expected, next models.OrderStatus) (bool, error) {
	now := time.Now()

	var dispatchedAt, deliveredAt *time.Time
	switch next {
	case models.OrderStatusDispatched:
		dispatchedAt = &now
	case models.OrderStatusDelivered:
		deliveredAt = &now
	}

	query := `
		UPDATE orders
		SET status = $3, updated_at = $4,
		    dispatched_at = COALESCE($5, dispatched_at),
		    delivered_at = COALESCE($6, delivered_at)
		WHERE id = $1 AND status = $2
	`

	result, err := r.db.ExecContext(ctx, query, id, expected, next, now, dispatchedAt, deliveredAt)
	if err != nil {
		r.logger.Error("failed to update order status",
			zap.String("order_id", id),
			zap.String("new_status", string(next)),
			zap.Error(err),
		)
		return false, err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	if rowsAffected == 0 {
		r.logger.Warn("order status guard did not match",
			zap.String("order_id", id),
			zap.String("expected", string(expected)),
			zap.String("new_status", string(next)),
		)
		return false, nil
	}

	r.logger.Info("order status updated",
		zap.String("order_id", id),
		zap.String("from", string(expected)),
		zap.String("to", string(next)),
	)
	return true, nil
}

// UpdateItems replaces an order's lines and total while it is still PLACED.
func (r *PostgresOrderRepository) UpdateItems(ctx context.Context, id string, items []models.OrderItem, total models.Money) (bool, error) {
	itemsJSON, err := json.Marshal(items)
	if err != nil {
		return false, err
	}

	query := `
		UPDATE orders
		SET items = $3, total_amount = $4, total_currency = $5, updated_at = $6
		WHERE id = $1 AND status = $2
	`

	result, err := r.db.ExecContext(ctx, query,
		id, models.OrderStatusPlaced, itemsJSON, total.Amount, total.Currency, time.Now(),
	)
	if err != nil {
		return false, err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rowsAffected == 1, nil
}

// SetPaymentID associates a payment with an order.
func (r *PostgresOrderRepository) SetPaymentID(ctx context.Context, orderID, paymentID string) error {
	query := `
		UPDATE orders
		SET payment_id = $2, updated_at = $3
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query, orderID, paymentID, time.Now())
	if err != nil {
		return err
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return apperrors.ErrNotFound
	}

	r.logger.Debug("payment id set",
		zap.String("order_id", orderID),
		zap.String("payment_id", paymentID),
	)
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanOrder(row rowScanner) (*models.Order, error) {
	var order models.Order
	var customerJSON, itemsJSON, shippingJSON, billingJSON []byte
	var dispatchedAt, deliveredAt sql.NullTime
	var paymentID, notes sql.NullString

	err := row.Scan(
		&order.ID,
		&order.UserID,
		&order.Status,
		&customerJSON,
		&itemsJSON,
		&shippingJSON,
		&billingJSON,
		&order.Total.Amount,
		&order.Total.Currency,
		&paymentID,
		&notes,
		&order.CreatedAt,
		&order.UpdatedAt,
		&dispatchedAt,
		&deliveredAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(customerJSON, &order.Customer); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(itemsJSON, &order.Items); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(shippingJSON, &order.ShippingAddress); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(billingJSON, &order.BillingAddress); err != nil {
		return nil, err
	}

	if paymentID.Valid {
		order.PaymentID = paymentID.String
	}
	if notes.Valid {
		order.Notes = notes.String
	}
	if dispatchedAt.Valid {
		order.DispatchedAt = &dispatchedAt.Time
	}
	if deliveredAt.Valid {
		order.DeliveredAt = &deliveredAt.Time
	}

	return &order, nil
}
