package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/apperrors"
	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/config"
	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/models"
)

// In-memory fakes shared by the service tests. Guarded by mutexes so tests
// can run checkouts concurrently.

type fakeCarts struct {
	mu      sync.Mutex
	carts   map[string]*models.Cart
	cleared []string
}

func newFakeCarts() *fakeCarts {
	return &fakeCarts{carts: make(map[string]*models.Cart)}
}

func (f *fakeCarts) Get(ctx context.Context, userID string) (*models.Cart, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if cart, ok := f.carts[userID]; ok {
		return cart, nil
	}
	return &models.Cart{UserID: userID}, nil
}

func (f *fakeCarts) Clear(ctx context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.carts, userID)
	f.cleared = append(f.cleared, userID)
	return nil
}

type fakeOrders struct {
	mu        sync.Mutex
	orders    map[string]*models.Order
	createErr error
}

func newFakeOrders() *fakeOrders {
	return &fakeOrders{orders: make(map[string]*models.Order)}
}

func (f *fakeOrders) Create(ctx context.Context, order *models.Order) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	cp := *order
	f.orders[order.ID] = &cp
	return nil
}

func (f *fakeOrders) GetByID(ctx context.Context, id string) (*models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	order, ok := f.orders[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	cp := *order
	return &cp, nil
}

func (f *fakeOrders) List(ctx context.Context, filter *models.OrderListFilter) ([]*models.Order, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*models.Order, 0)
	for _, order := range f.orders {
		if filter.UserID != "" && order.UserID != filter.UserID {
			continue
		}
		if filter.Status != nil && order.Status != *filter.Status {
			continue
		}
		cp := *order
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, len(out), nil
}

func (f *fakeOrders) GetByUserID(ctx context.Context, userID string, limit, offset int) ([]*models.Order, int, error) {
	return f.List(ctx, &models.OrderListFilter{UserID: userID, Limit: limit, Offset: offset})
}

func (f *fakeOrders) UpdateStatusCAS(ctx context.Context, id string, expected, next models.OrderStatus) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	order, ok := f.orders[id]
	if !ok || order.Status != expected {
		return false, nil
	}
	order.Status = next
	now := time.Now()
	switch next {
	case models.OrderStatusDispatched:
		order.DispatchedAt = &now
	case models.OrderStatusDelivered:
		order.DeliveredAt = &now
	}
	return true, nil
}

func (f *fakeOrders) SetPaymentID(ctx context.Context, orderID, paymentID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	order, ok := f.orders[orderID]
	if !ok {
		return apperrors.ErrNotFound
	}
	order.PaymentID = paymentID
	return nil
}

func (f *fakeOrders) UpdateItems(ctx context.Context, id string, items []models.OrderItem, total models.Money) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	order, ok := f.orders[id]
	if !ok || order.Status != models.OrderStatusPlaced {
		return false, nil
	}
	order.Items = items
	order.Total = total
	return true, nil
}

type fakeInventory struct {
	mu           sync.Mutex
	products     map[string]*models.Product
	reservations map[string][]*models.Reservation
}

func newFakeInventory(products ...*models.Product) *fakeInventory {
	f := &fakeInventory{
		products:     make(map[string]*models.Product),
		reservations: make(map[string][]*models.Reservation),
	}
	for _, p := range products {
		f.products[p.ID] = p
	}
	return f
}

func (f *fakeInventory) GetProduct(ctx context.Context, productID string) (*models.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	product, ok := f.products[productID]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	cp := *product
	return &cp, nil
}

func (f *fakeInventory) ReserveAll(ctx context.Context, ownerRef string, lines []models.CartItem, ttl time.Duration) ([]*models.Reservation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, line := range lines {
		product, ok := f.products[line.ProductID]
		if !ok {
			return nil, apperrors.ErrNotFound
		}
		if product.Stock < line.Quantity {
			return nil, &apperrors.InsufficientStockError{
				ProductID:   product.ID,
				ProductName: product.Name,
				Requested:   line.Quantity,
				Available:   product.Stock,
			}
		}
	}

	out := make([]*models.Reservation, 0, len(lines))
	for i, line := range lines {
		f.products[line.ProductID].Stock -= line.Quantity
		r := &models.Reservation{
			ID:        ownerRef + "_r" + string(rune('0'+i)),
			ProductID: line.ProductID,
			Quantity:  line.Quantity,
			OwnerRef:  ownerRef,
			Status:    models.ReservationStatusReserved,
			ExpiresAt: time.Now().Add(ttl),
			CreatedAt: time.Now(),
		}
		f.reservations[ownerRef] = append(f.reservations[ownerRef], r)
		out = append(out, r)
	}
	return out, nil
}

func (f *fakeInventory) Commit(ctx context.Context, ownerRef string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.reservations[ownerRef] {
		if r.CanCommit() {
			r.Status = models.ReservationStatusCommitted
		}
	}
	return nil
}

func (f *fakeInventory) Release(ctx context.Context, ownerRef string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.reservations[ownerRef] {
		if r.Status == models.ReservationStatusReserved {
			f.products[r.ProductID].Stock += r.Quantity
			r.Status = models.ReservationStatusReleased
		}
	}
	return nil
}

func (f *fakeInventory) SweepExpired(ctx context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	swept := 0
	for _, holds := range f.reservations {
		for _, r := range holds {
			if r.Status == models.ReservationStatusReserved && r.IsExpired() {
				f.products[r.ProductID].Stock += r.Quantity
				r.Status = models.ReservationStatusExpired
				swept++
			}
		}
	}
	return swept, nil
}

func (f *fakeInventory) statuses(ownerRef string) []models.ReservationStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.ReservationStatus, 0)
	for _, r := range f.reservations[ownerRef] {
		out = append(out, r.Status)
	}
	return out
}

type fakePayments struct {
	mu       sync.Mutex
	payments map[string]*models.Payment
}

func newFakePayments() *fakePayments {
	return &fakePayments{payments: make(map[string]*models.Payment)}
}

func (f *fakePayments) Create(ctx context.Context, payment *models.Payment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *payment
	f.payments[payment.ID] = &cp
	return nil
}

func (f *fakePayments) GetByID(ctx context.Context, id string) (*models.Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	payment, ok := f.payments[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	cp := *payment
	return &cp, nil
}

func (f *fakePayments) GetByOrderID(ctx context.Context, orderID string) (*models.Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, payment := range f.payments {
		if payment.OrderID == orderID {
			cp := *payment
			return &cp, nil
		}
	}
	return nil, apperrors.ErrNotFound
}

func (f *fakePayments) UpdateStatus(ctx context.Context, id string, status models.PaymentStatus, transactionID, errorMessage string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	payment, ok := f.payments[id]
	if !ok {
		return apperrors.ErrNotFound
	}
	payment.Status = status
	if transactionID != "" {
		payment.TransactionID = transactionID
	}
	payment.ErrorMessage = errorMessage
	return nil
}

type fakeIdempotency struct {
	mu      sync.Mutex
	records map[string]*models.IdempotencyRecord
}

func newFakeIdempotency() *fakeIdempotency {
	return &fakeIdempotency{records: make(map[string]*models.IdempotencyRecord)}
}

func idemKey(key, userID, endpoint string) string {
	return key + "|" + userID + "|" + endpoint
}

func (f *fakeIdempotency) BeginAttempt(ctx context.Context, record *models.IdempotencyRecord) (*models.IdempotencyRecord, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	k := idemKey(record.Key, record.UserID, record.Endpoint)
	if existing, ok := f.records[k]; ok && time.Now().Before(existing.ExpiresAt) {
		cp := *existing
		return &cp, false, nil
	}
	cp := *record
	cp.Status = models.IdempotencyStatusInProgress
	f.records[k] = &cp
	claimed := cp
	return &claimed, true, nil
}

func (f *fakeIdempotency) Complete(ctx context.Context, key, userID, endpoint string, statusCode int, responseBody []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	record, ok := f.records[idemKey(key, userID, endpoint)]
	if !ok {
		return apperrors.ErrNotFound
	}
	record.Status = models.IdempotencyStatusCompleted
	record.StatusCode = statusCode
	record.ResponseBody = responseBody
	return nil
}

func (f *fakeIdempotency) Abandon(ctx context.Context, key, userID, endpoint string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	k := idemKey(key, userID, endpoint)
	if record, ok := f.records[k]; ok && record.Status == models.IdempotencyStatusInProgress {
		delete(f.records, k)
	}
	return nil
}

func (f *fakeIdempotency) PurgeExpired(ctx context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	purged := 0
	for k, record := range f.records {
		if time.Now().After(record.ExpiresAt) {
			delete(f.records, k)
			purged++
		}
	}
	return purged, nil
}

type fakeDocuments struct {
	mu       sync.Mutex
	invoices map[string]*models.Invoice
	receipts map[string]*models.Receipt
}

func newFakeDocuments() *fakeDocuments {
	return &fakeDocuments{
		invoices: make(map[string]*models.Invoice),
		receipts: make(map[string]*models.Receipt),
	}
}

func (f *fakeDocuments) CreateInvoice(ctx context.Context, invoice *models.Invoice) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invoices[invoice.OrderID] = invoice
	return nil
}

func (f *fakeDocuments) GetInvoiceByOrderID(ctx context.Context, orderID string) (*models.Invoice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	invoice, ok := f.invoices[orderID]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return invoice, nil
}

func (f *fakeDocuments) CreateReceipt(ctx context.Context, receipt *models.Receipt) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.receipts[receipt.OrderID] = receipt
	return nil
}

func (f *fakeDocuments) GetReceiptByOrderID(ctx context.Context, orderID string) (*models.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	receipt, ok := f.receipts[orderID]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return receipt, nil
}

type noopCache struct{}

func (noopCache) Get(ctx context.Context, id string) (*models.Order, error) { return nil, nil }
func (noopCache) Set(ctx context.Context, order *models.Order) error       { return nil }
func (noopCache) Delete(ctx context.Context, id string) error              { return nil }
func (noopCache) GetByUserID(ctx context.Context, userID string) ([]*models.Order, error) {
	return nil, nil
}
func (noopCache) SetByUserID(ctx context.Context, userID string, orders []*models.Order) error {
	return nil
}
func (noopCache) InvalidateByUserID(ctx context.Context, userID string) error { return nil }

func testConfig() *config.Config {
	return &config.Config{
		Checkout: config.CheckoutConfig{
			ReservationTimeout: 30 * time.Minute,
			SweepInterval:      time.Minute,
			IdempotencyTTL:     7 * 24 * time.Hour,
			LowStockThreshold:  5,
			Currency:           "USD",
		},
		Features: config.FeatureFlags{
			EnableOrderCaching: true,
			EnableOrderEvents:  true,
		},
	}
}
