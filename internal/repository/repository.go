package repository

import (
	"context"
	"time"

	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/models"
)

// OrderRepository defines persistence operations for orders.
type OrderRepository interface {
	Create(ctx context.Context, order *models.Order) error
	GetByID(ctx context.Context, id string) (*models.Order, error)
	List(ctx context.Context, filter *models.OrderListFilter) ([]*models.Order, int, error)
	GetByUserID(ctx context.Context, userID string, limit, offset int) ([]*models.Order, int, error)
	// UpdateStatusCAS moves an order to next only if its current status
	// still equals expected. Returns false when the guard did not match.
	UpdateStatusCAS(ctx context.Context, id string, expected, next models.OrderStatus) (bool, error)
	SetPaymentID(ctx context.Context, orderID, paymentID string) error
	// UpdateItems replaces an order's lines and total. The guard only
	// matches orders still in PLACED.
	UpdateItems(ctx context.Context, id string, items []models.OrderItem, total models.Money) (bool, error)
}

// InventoryRepository manages product stock and reservations.
type InventoryRepository interface {
	GetProduct(ctx context.Context, productID string) (*models.Product, error)
	// ReserveAll places holds for every line in one transaction. If any
	// line cannot be satisfied the whole transaction rolls back and no
	// stock moves.
	ReserveAll(ctx context.Context, ownerRef string, lines []models.CartItem, ttl time.Duration) ([]*models.Reservation, error)
	// Commit finalizes reservations for an owner. Only RESERVED and
	// unexpired holds commit.
	Commit(ctx context.Context, ownerRef string) error
	// Release returns held stock to the shelf. Releasing an already
	// released or committed reservation is a no-op.
	Release(ctx context.Context, ownerRef string) error
	// SweepExpired expires overdue RESERVED holds and restores their
	// stock. Returns the number of reservations swept.
	SweepExpired(ctx context.Context) (int, error)
}

// PaymentRepository defines persistence operations for payments.
type PaymentRepository interface {
	Create(ctx context.Context, payment *models.Payment) error
	GetByID(ctx context.Context, id string) (*models.Payment, error)
	GetByOrderID(ctx context.Context, orderID string) (*models.Payment, error)
	UpdateStatus(ctx context.Context, id string, status models.PaymentStatus, transactionID, errorMessage string) error
}

// DocumentRepository defines persistence operations for invoices and receipts.
type DocumentRepository interface {
	CreateInvoice(ctx context.Context, invoice *models.Invoice) error
	GetInvoiceByOrderID(ctx context.Context, orderID string) (*models.Invoice, error)
	CreateReceipt(ctx context.Context, receipt *models.Receipt) error
	GetReceiptByOrderID(ctx context.Context, orderID string) (*models.Receipt, error)
}

// IdempotencyRepository stores keyed request outcomes.
type IdempotencyRepository interface {
	// BeginAttempt claims the key for this request. When the key already
	// exists the stored record is returned with claimed=false.
	BeginAttempt(ctx context.Context, record *models.IdempotencyRecord) (*models.IdempotencyRecord, bool, error)
	Complete(ctx context.Context, key, userID, endpoint string, statusCode int, responseBody []byte) error
	// Abandon drops an IN_PROGRESS record so the key can be retried.
	// Completed records are never touched.
	Abandon(ctx context.Context, key, userID, endpoint string) error
	PurgeExpired(ctx context.Context) (int, error)
}

// CartRepository reads and clears user carts.
type CartRepository interface {
	Get(ctx context.Context, userID string) (*models.Cart, error)
	Clear(ctx context.Context, userID string) error
}

// OrderCache caches orders for read paths. Cache failures are never fatal.
type OrderCache interface {
	Get(ctx context.Context, id string) (*models.Order, error)
	Set(ctx context.Context, order *models.Order) error
	Delete(ctx context.Context, id string) error
	GetByUserID(ctx context.Context, userID string) ([]*models.Order, error)
	SetByUserID(ctx context.Context, userID string, orders []*models.Order) error
	InvalidateByUserID(ctx context.Context, userID string) error
}
