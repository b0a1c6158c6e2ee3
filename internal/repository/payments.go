package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/apperrors"
	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/models"
)

// PostgresPaymentRepository implements PaymentRepository using PostgreSQL.
// The payments table enforces a unique order_id so an order can never carry
// two payment rows.
type PostgresPaymentRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewPostgresPaymentRepository creates a new PostgreSQL payment repository.
func NewPostgresPaymentRepository(db *sql.DB, logger *zap.Logger) *PostgresPaymentRepository {
	return &PostgresPaymentRepository{
		db:     db,
		logger: logger,
	}
}

// Create persists a new payment record.
func (r *PostgresPaymentRepository) Create(ctx context.Context, payment *models.Payment) error {
	query := `
		INSERT INTO payments (
			id, order_id, amount, currency, method, status,
			transaction_id, idempotency_key, error_message, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11
		)
	`

	_, err := r.db.ExecContext(ctx, query,
		payment.ID,
		payment.OrderID,
		payment.Amount.Amount,
		payment.Amount.Currency,
		payment.Method,
		payment.Status,
		nullString(payment.TransactionID),
		payment.IdempotencyKey,
		nullString(payment.ErrorMessage),
		payment.CreatedAt,
		payment.UpdatedAt,
	)
	if err != nil {
		// Unique violation on order_id or idempotency_key means a
		// concurrent attempt already created the payment row.
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return &apperrors.IdempotencyConflictError{Key: payment.IdempotencyKey}
		}
		r.logger.Error("failed to create payment",
			zap.String("payment_id", payment.ID),
			zap.String("order_id", payment.OrderID),
			zap.Error(err),
		)
		return err
	}

	r.logger.Info("payment created",
		zap.String("payment_id", payment.ID),
		zap.String("order_id", payment.OrderID),
		zap.String("status", string(payment.Status)),
	)
	return nil
}

// GetByID retrieves a payment by its identifier.
func (r *PostgresPaymentRepository) GetByID(ctx context.Context, id string) (*models.Payment, error) {
	return r.getOne(ctx, `WHERE id = $1`, id)
}

// GetByOrderID retrieves the payment for an order.
func (r *PostgresPaymentRepository) GetByOrderID(ctx context.Context, orderID string) (*models.Payment, error) {
	return r.getOne(ctx, `WHERE order_id = $1`, orderID)
}

func (r *PostgresPaymentRepository) getOne(ctx context.Context, where string, arg interface{}) (*models.Payment, error) {
	query := `
		SELECT id, order_id, amount, currency, method, status,
		       transaction_id, idempotency_key, error_message, created_at, updated_at
		FROM payments
	` + where

	var payment models.Payment
	var transactionID, errorMessage sql.NullString

	err := r.db.QueryRowContext(ctx, query, arg).Scan(
		&payment.ID,
		&payment.OrderID,
		&payment.Amount.Amount,
		&payment.Amount.Currency,
		&payment.Method,
		&payment.Status,
		&transactionID,
		&payment.IdempotencyKey,
		&errorMessage,
		&payment.CreatedAt,
		&payment.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if transactionID.Valid {
		payment.TransactionID = transactionID.String
	}
	if errorMessage.Valid {
		payment.ErrorMessage = errorMessage.String
	}
	return &payment, nil
}

// UpdateStatus transitions a payment's status and records the gateway outcome.
func (r *PostgresPaymentRepository) UpdateStatus(ctx context.Context, id string, status models.PaymentStatus, transactionID, errorMessage string) error {
	query := `
		UPDATE payments
		SET status = $2,
		    transaction_id = COALESCE($3, transaction_id),
		    error_message = $4,
		    updated_at = $5
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query,
		id, status, nullString(transactionID), nullString(errorMessage), time.Now(),
	)
	if err != nil {
		r.logger.Error("failed to update payment status",
			zap.String("payment_id", id),
			zap.String("status", string(status)),
			zap.Error(err),
		)
		return err
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return apperrors.ErrNotFound
	}

	r.logger.Info("payment status updated",
		zap.String("payment_id", id),
		zap.String("status", string(status)),
	)
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
