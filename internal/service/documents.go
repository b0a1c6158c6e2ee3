package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/events"
	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/models"
	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/repository"
)

const invoiceDueDays = 30

// DocumentService issues invoices and receipts. Documents are immutable
// once created; resending re-emits the notification for the existing
// document and never renumbers it.
type DocumentService struct {
	documents repository.DocumentRepository
	publisher events.Publisher
	logger    *zap.Logger
}

// NewDocumentService creates a new document service.
func NewDocumentService(documents repository.DocumentRepository, publisher events.Publisher, logger *zap.Logger) *DocumentService {
	return &DocumentService{
		documents: documents,
		publisher: publisher,
		logger:    logger,
	}
}

// GenerateInvoice issues the invoice for a paid order.
func (s *DocumentService) GenerateInvoice(ctx context.Context, order *models.Order) (*models.Invoice, error) {
	now := time.Now()
	invoice := &models.Invoice{
		ID:             "inv_" + uuid.NewString(),
		OrderID:        order.ID,
		InvoiceNumber:  documentNumber("INV", now),
		IssueDate:      now,
		DueDate:        now.AddDate(0, 0, invoiceDueDays),
		Total:          order.Total,
		CustomerName:   order.Customer.Name,
		CustomerEmail:  order.Customer.Email,
		BillingAddress: order.BillingAddress,
	}

	if err := s.documents.CreateInvoice(ctx, invoice); err != nil {
		return nil, err
	}

	if err := s.publisher.InvoiceGenerated(ctx, invoice); err != nil {
		s.logger.Error("failed to publish invoice generated event",
			zap.String("order_id", order.ID),
			zap.Error(err),
		)
	}

	return invoice, nil
}

// GenerateReceipt issues the receipt for a captured payment.
func (s *DocumentService) GenerateReceipt(ctx context.Context, order *models.Order, payment *models.Payment) (*models.Receipt, error) {
	now := time.Now()
	receipt := &models.Receipt{
		ID:            "rcp_" + uuid.NewString(),
		OrderID:       order.ID,
		PaymentID:     payment.ID,
		ReceiptNumber: documentNumber("RCP", now),
		Method:        payment.Method,
		Amount:        payment.Amount,
		TransactionID: payment.TransactionID,
		CustomerName:  order.Customer.Name,
		CustomerEmail: order.Customer.Email,
		IssuedAt:      now,
	}

	if err := s.documents.CreateReceipt(ctx, receipt); err != nil {
		return nil, err
	}

	if err := s.publisher.ReceiptIssued(ctx, receipt); err != nil {
		s.logger.Error("failed to publish receipt issued event",
			zap.String("order_id", order.ID),
			zap.Error(err),
		)
	}

	return receipt, nil
}

// GetInvoice retrieves the invoice for an order.
func (s *DocumentService) GetInvoice(ctx context.Context, orderID string) (*models.Invoice, error) {
	return s.documents.GetInvoiceByOrderID(ctx, orderID)
}

// GetReceipt retrieves the receipt for an order.
func (s *DocumentService) GetReceipt(ctx context.Context, orderID string) (*models.Receipt, error) {
	return s.documents.GetReceiptByOrderID(ctx, orderID)
}

// ResendInvoice re-emits the notification for an existing invoice.
func (s *DocumentService) ResendInvoice(ctx context.Context, orderID string) (*models.Invoice, error) {
	invoice, err := s.documents.GetInvoiceByOrderID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if err := s.publisher.InvoiceGenerated(ctx, invoice); err != nil {
		s.logger.Error("failed to republish invoice event",
			zap.String("order_id", orderID),
			zap.Error(err),
		)
	}

	s.logger.Info("invoice resent",
		zap.String("order_id", orderID),
		zap.String("invoice_number", invoice.InvoiceNumber),
	)
	return invoice, nil
}

// ResendReceipt re-emits the notification for an existing receipt.
func (s *DocumentService) ResendReceipt(ctx context.Context, orderID string) (*models.Receipt, error) {
	receipt, err := s.documents.GetReceiptByOrderID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if err := s.publisher.ReceiptIssued(ctx, receipt); err != nil {
		s.logger.Error("failed to republish receipt event",
			zap.String("order_id", orderID),
			zap.Error(err),
		)
	}

	s.logger.Info("receipt resent",
		zap.String("order_id", orderID),
		zap.String("receipt_number", receipt.ReceiptNumber),
	)
	return receipt, nil
}

// documentNumber builds a number like INV-20260901-1A2B3C4D: prefix, issue
// date, and a short random suffix keeping numbers unique within a day.
func documentNumber(prefix string, issued time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	return prefix + "-" + issued.Format("20060102") + "-" + suffix
}
