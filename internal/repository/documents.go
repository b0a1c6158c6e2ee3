package repository

import (
	"context"
	"database/sql"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/apperrors"
	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/models"
)

// PostgresDocumentRepository implements DocumentRepository using PostgreSQL.
// Invoices and receipts are insert-only; issued documents never change.
type PostgresDocumentRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewPostgresDocumentRepository creates a new PostgreSQL document repository.
func NewPostgresDocumentRepository(db *sql.DB, logger *zap.Logger) *PostgresDocumentRepository {
	return &PostgresDocumentRepository{
		db:     db,
		logger: logger,
	}
}

// CreateInvoice persists a new invoice.
func (r *PostgresDocumentRepository) CreateInvoice(ctx context.Context, invoice *models.Invoice) error {
	billingJSON, err := json.Marshal(invoice.BillingAddress)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO invoices (
			id, order_id, invoice_number, issue_date, due_date,
			total_amount, total_currency, customer_name, customer_email, billing_address
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10
		)
	`

	_, err = r.db.ExecContext(ctx, query,
		invoice.ID,
		invoice.OrderID,
		invoice.InvoiceNumber,
		invoice.IssueDate,
		invoice.DueDate,
		invoice.Total.Amount,
		invoice.Total.Currency,
		invoice.CustomerName,
		invoice.CustomerEmail,
		billingJSON,
	)
	if err != nil {
		r.logger.Error("failed to create invoice",
			zap.String("order_id", invoice.OrderID),
			zap.Error(err),
		)
		return err
	}

	r.logger.Info("invoice created",
		zap.String("invoice_number", invoice.InvoiceNumber),
		zap.String("order_id", invoice.OrderID),
	)
	return nil
}

// GetInvoiceByOrderID retrieves the invoice for an order.
func (r *PostgresDocumentRepository) GetInvoiceByOrderID(ctx context.Context, orderID string) (*models.Invoice, error) {
	query := `
		SELECT id, order_id, invoice_number, issue_date, due_date,
		       total_amount, total_currency, customer_name, customer_email, billing_address
		FROM invoices
		WHERE order_id = $1
	`

	var invoice models.Invoice
	var billingJSON []byte

	err := r.db.QueryRowContext(ctx, query, orderID).Scan(
		&invoice.ID,
		&invoice.OrderID,
		&invoice.InvoiceNumber,
		&invoice.IssueDate,
		&invoice.DueDate,
		&invoice.Total.Amount,
		&invoice.Total.Currency,
		&invoice.CustomerName,
		&invoice.CustomerEmail,
		&billingJSON,
	)
	if err == sql.ErrNoRows {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(billingJSON, &invoice.BillingAddress); err != nil {
		return nil, err
	}
	return &invoice, nil
}

// CreateReceipt persists a new receipt.
func (r *PostgresDocumentRepository) CreateReceipt(ctx context.Context, receipt *models.Receipt) error {
	query := `
		INSERT INTO receipts (
			id, order_id, payment_id, receipt_number, method,
			amount, currency, transaction_id, customer_name, customer_email, issued_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11
		)
	`

	_, err := r.db.ExecContext(ctx, query,
		receipt.ID,
		receipt.OrderID,
		receipt.PaymentID,
		receipt.ReceiptNumber,
		receipt.Method,
		receipt.Amount.Amount,
		receipt.Amount.Currency,
		nullString(receipt.TransactionID),
		receipt.CustomerName,
		receipt.CustomerEmail,
		receipt.IssuedAt,
	)
	if err != nil {
		r.logger.Error("failed to create receipt",
			zap.String("order_id", receipt.OrderID),
			zap.Error(err),
		)
		return err
	}

	r.logger.Info("receipt created",
		zap.String("receipt_number", receipt.ReceiptNumber),
		zap.String("order_id", receipt.OrderID),
	)
	return nil
}

// GetReceiptByOrderID retrieves the receipt for an order.
func (r *PostgresDocumentRepository) GetReceiptByOrderID(ctx context.Context, orderID string) (*models.Receipt, error) {
	query := `
		SELECT id, order_id, payment_id, receipt_number, method,
		       amount, currency, transaction_id, customer_name, customer_email, issued_at
		FROM receipts
		WHERE order_id = $1
	`

	var receipt models.Receipt
	var transactionID sql.NullString

	err := r.db.QueryRowContext(ctx, query, orderID).Scan(
		&receipt.ID,
		&receipt.OrderID,
		&receipt.PaymentID,
		&receipt.ReceiptNumber,
		&receipt.Method,
		&receipt.Amount.Amount,
		&receipt.Amount.Currency,
		&transactionID,
		&receipt.CustomerName,
		&receipt.CustomerEmail,
		&receipt.IssuedAt,
	)
	if err == sql.ErrNoRows {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if transactionID.Valid {
		receipt.TransactionID = transactionID.String
	}
	return &receipt, nil
}
