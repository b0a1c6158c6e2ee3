package service

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/apperrors"
	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/events"
	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/gateway"
	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/models"
)

type checkoutEnv struct {
	service     *CheckoutService
	carts       *fakeCarts
	orders      *fakeOrders
	inventory   *fakeInventory
	payments    *fakePayments
	idempotency *fakeIdempotency
	documents   *fakeDocuments
	publisher   *events.MockPublisher
}

func newCheckoutEnv(products ...*models.Product) *checkoutEnv {
	logger := zap.NewNop()
	carts := newFakeCarts()
	orders := newFakeOrders()
	inventory := newFakeInventory(products...)
	payments := newFakePayments()
	idempotency := newFakeIdempotency()
	documents := newFakeDocuments()
	publisher := events.NewMockPublisher()

	gw := gateway.NewCardGateway(gateway.NewMemoryKeyRegistry(), logger)
	docService := NewDocumentService(documents, publisher, logger)

	service := NewCheckoutService(
		carts, orders, inventory, payments, idempotency,
		gw, docService, publisher, noopCache{}, testConfig(), logger,
	)

	return &checkoutEnv{
		service:     service,
		carts:       carts,
		orders:      orders,
		inventory:   inventory,
		payments:    payments,
		idempotency: idempotency,
		documents:   documents,
		publisher:   publisher,
	}
}

func checkoutRequest() *models.CheckoutRequest {
	address := models.Address{
		Line1:      "123 Test St",
		City:       "Test City",
		State:      "TS",
		PostalCode: "12345",
		Country:    "US",
	}
	return &models.CheckoutRequest{
		Customer: models.Customer{
			Name:  "Ada Lovelace",
			Email: "ada@example.com",
		},
		ShippingAddress: address,
		BillingAddress:  address,
		PaymentDetails: models.PaymentDetails{
			CardNumber:  "4111111111111111",
			ExpiryMonth: 12,
			ExpiryYear:  2030,
			CVV:         "123",
			HolderName:  "Ada Lovelace",
		},
	}
}

func widget(stock int) *models.Product {
	return &models.Product{
		ID:    "prod_widget",
		Name:  "Widget",
		Price: models.Money{Amount: 1999, Currency: "USD"},
		Stock: stock,
	}
}

func fillCart(env *checkoutEnv, userID string, qty int) {
	env.carts.carts[userID] = &models.Cart{
		UserID: userID,
		Items: []models.CartItem{
			{
				ProductID:   "prod_widget",
				ProductName: "Widget",
				Quantity:    qty,
				UnitPrice:   models.Money{Amount: 1999, Currency: "USD"},
			},
		},
	}
}

const testKey = "checkout-key-0001"

func TestCheckout_Fulfilled(t *testing.T) {
	env := newCheckoutEnv(widget(10))
	fillCart(env, "user_1", 2)

	out, err := env.service.Checkout(context.Background(), "user_1", testKey, checkoutRequest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !out.Result.Success {
		t.Fatalf("expected success, got error %q", out.Result.Error)
	}
	if out.StatusCode != http.StatusCreated {
		t.Errorf("expected 201, got %d", out.StatusCode)
	}
	if out.Replayed {
		t.Error("fresh checkout should not be marked replayed")
	}

	order, err := env.orders.GetByID(context.Background(), out.Result.OrderID)
	if err != nil {
		t.Fatalf("order not persisted: %v", err)
	}
	if order.Status != models.OrderStatusPaid {
		t.Errorf("expected order paid, got %s", order.Status)
	}
	if order.Total.Amount != 2*1999 {
		t.Errorf("expected total 3998, got %d", order.Total.Amount)
	}
	if order.PaymentID != out.Result.PaymentID {
		t.Errorf("payment not linked to order")
	}

	payment, err := env.payments.GetByID(context.Background(), out.Result.PaymentID)
	if err != nil {
		t.Fatalf("payment not persisted: %v", err)
	}
	if payment.Status != models.PaymentStatusCaptured {
		t.Errorf("expected payment captured, got %s", payment.Status)
	}
	if payment.TransactionID == "" {
		t.Error("expected gateway transaction id on payment")
	}

	ownerRef := "checkout_user_1_" + testKey
	for _, status := range env.inventory.statuses(ownerRef) {
		if status != models.ReservationStatusCommitted {
			t.Errorf("expected committed reservation, got %s", status)
		}
	}
	if env.inventory.products["prod_widget"].Stock != 8 {
		t.Errorf("expected stock 8 after sale, got %d", env.inventory.products["prod_widget"].Stock)
	}

	if out.Result.InvoiceNumber == "" || out.Result.ReceiptNumber == "" {
		t.Error("expected invoice and receipt numbers in result")
	}
	if _, err := env.documents.GetInvoiceByOrderID(context.Background(), order.ID); err != nil {
		t.Errorf("invoice not persisted: %v", err)
	}
	if _, err := env.documents.GetReceiptByOrderID(context.Background(), order.ID); err != nil {
		t.Errorf("receipt not persisted: %v", err)
	}

	if len(env.carts.cleared) != 1 || env.carts.cleared[0] != "user_1" {
		t.Error("expected cart cleared after fulfillment")
	}

	seen := map[events.EventType]bool{}
	for _, e := range env.publisher.Events {
		seen[e.Type] = true
	}
	for _, want := range []events.EventType{
		events.EventTypeOrderCreated,
		events.EventTypeOrderConfirmed,
		events.EventTypeInvoiceGenerated,
		events.EventTypeReceiptIssued,
	} {
		if !seen[want] {
			t.Errorf("expected %s event", want)
		}
	}
}

func TestCheckout_Replay(t *testing.T) {
	env := newCheckoutEnv(widget(10))
	fillCart(env, "user_1", 2)

	first, err := env.service.Checkout(context.Background(), "user_1", testKey, checkoutRequest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Cart is cleared now; a retry with the same key must replay the
	// stored outcome instead of failing on the empty cart.
	second, err := env.service.Checkout(context.Background(), "user_1", testKey, checkoutRequest())
	if err != nil {
		t.Fatalf("unexpected error on retry: %v", err)
	}
	if !second.Replayed {
		t.Fatal("expected replayed outcome")
	}
	if second.StatusCode != first.StatusCode {
		t.Errorf("replayed status %d differs from original %d", second.StatusCode, first.StatusCode)
	}
	if second.Result.OrderID != first.Result.OrderID {
		t.Errorf("replayed order id %s differs from original %s", second.Result.OrderID, first.Result.OrderID)
	}
	if second.Result.InvoiceNumber != first.Result.InvoiceNumber {
		t.Error("replay must not renumber documents")
	}

	// Exactly one order exists.
	if len(env.orders.orders) != 1 {
		t.Errorf("expected one order, got %d", len(env.orders.orders))
	}
	if env.inventory.products["prod_widget"].Stock != 8 {
		t.Errorf("retry must not move stock again, got %d", env.inventory.products["prod_widget"].Stock)
	}
}

func TestCheckout_EmptyCart(t *testing.T) {
	env := newCheckoutEnv(widget(10))

	out, err := env.service.Checkout(context.Background(), "user_1", testKey, checkoutRequest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Result.Success {
		t.Fatal("expected failure for empty cart")
	}
	if out.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("expected 422, got %d", out.StatusCode)
	}
	if len(env.orders.orders) != 0 {
		t.Error("empty cart must not create an order")
	}

	// The failure is durable: a retry replays it.
	retry, err := env.service.Checkout(context.Background(), "user_1", testKey, checkoutRequest())
	if err != nil {
		t.Fatalf("unexpected error on retry: %v", err)
	}
	if !retry.Replayed {
		t.Error("expected cached empty-cart failure on retry")
	}
}

func TestCheckout_InsufficientStock(t *testing.T) {
	env := newCheckoutEnv(widget(1))
	fillCart(env, "user_1", 5)

	out, err := env.service.Checkout(context.Background(), "user_1", testKey, checkoutRequest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Result.Success {
		t.Fatal("expected failure on stock shortfall")
	}
	if out.StatusCode != http.StatusConflict {
		t.Errorf("expected 409, got %d", out.StatusCode)
	}
	if len(env.orders.orders) != 0 {
		t.Error("shortfall must not create an order")
	}
	if env.inventory.products["prod_widget"].Stock != 1 {
		t.Errorf("shortfall must not move stock, got %d", env.inventory.products["prod_widget"].Stock)
	}
	if out.Result.Error == "" {
		t.Error("expected shortfall detail in result")
	}
}

func TestCheckout_PaymentDeclined(t *testing.T) {
	env := newCheckoutEnv(widget(10))
	fillCart(env, "user_1", 2)

	req := checkoutRequest()
	req.PaymentDetails.CardNumber = "4000000000000002"

	out, err := env.service.Checkout(context.Background(), "user_1", testKey, req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Result.Success {
		t.Fatal("expected failure on declined card")
	}
	if out.StatusCode != http.StatusPaymentRequired {
		t.Errorf("expected 402, got %d", out.StatusCode)
	}

	// The order row is retained as a cancelled audit trail.
	if out.Result.OrderID == "" {
		t.Fatal("expected order id in declined result")
	}
	order, err := env.orders.GetByID(context.Background(), out.Result.OrderID)
	if err != nil {
		t.Fatalf("declined order row missing: %v", err)
	}
	if order.Status != models.OrderStatusCancelled {
		t.Errorf("expected cancelled order, got %s", order.Status)
	}

	payment, err := env.payments.GetByID(context.Background(), out.Result.PaymentID)
	if err != nil {
		t.Fatalf("payment row missing: %v", err)
	}
	if payment.Status != models.PaymentStatusDeclined {
		t.Errorf("expected declined payment, got %s", payment.Status)
	}

	// Stock is fully restored.
	if env.inventory.products["prod_widget"].Stock != 10 {
		t.Errorf("expected stock restored to 10, got %d", env.inventory.products["prod_widget"].Stock)
	}
	ownerRef := "checkout_user_1_" + testKey
	for _, status := range env.inventory.statuses(ownerRef) {
		if status != models.ReservationStatusReleased {
			t.Errorf("expected released reservation, got %s", status)
		}
	}

	seen := map[events.EventType]bool{}
	for _, e := range env.publisher.Events {
		seen[e.Type] = true
	}
	if !seen[events.EventTypePaymentFailed] {
		t.Error("expected payment.failed event")
	}
	if seen[events.EventTypeOrderConfirmed] {
		t.Error("declined checkout must not confirm the order")
	}

	// Cart survives for another attempt.
	if len(env.carts.cleared) != 0 {
		t.Error("declined checkout must not clear the cart")
	}
}

func TestCheckout_InFlightDuplicate(t *testing.T) {
	env := newCheckoutEnv(widget(10))
	fillCart(env, "user_1", 1)

	// Simulate a first attempt that claimed the key and is still running.
	record := &models.IdempotencyRecord{
		Key:       testKey,
		UserID:    "user_1",
		Endpoint:  models.CheckoutEndpoint,
		CreatedAt: time.Now(),
		ExpiresAt: time.Now().Add(time.Hour),
	}
	env.idempotency.BeginAttempt(context.Background(), record)

	_, err := env.service.Checkout(context.Background(), "user_1", testKey, checkoutRequest())

	var conflict *apperrors.IdempotencyConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected IdempotencyConflictError, got %v", err)
	}
	if conflict.Key != testKey {
		t.Errorf("expected conflicting key %s, got %s", testKey, conflict.Key)
	}
}

func TestCheckout_InvalidKey(t *testing.T) {
	env := newCheckoutEnv(widget(10))
	fillCart(env, "user_1", 1)

	_, err := env.service.Checkout(context.Background(), "user_1", "short", checkoutRequest())

	var validation *apperrors.ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if validation.Field != "idempotency_key" {
		t.Errorf("expected idempotency_key field, got %s", validation.Field)
	}
	if len(env.idempotency.records) != 0 {
		t.Error("invalid key must not claim an idempotency record")
	}
}

func TestCheckout_LowStockEvent(t *testing.T) {
	env := newCheckoutEnv(widget(6))
	fillCart(env, "user_1", 2)

	_, err := env.service.Checkout(context.Background(), "user_1", testKey, checkoutRequest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Stock fell to 4, under the threshold of 5.
	seen := false
	for _, e := range env.publisher.Events {
		if e.Type == events.EventTypeLowStock {
			seen = true
		}
	}
	if !seen {
		t.Error("expected low stock event when stock falls under threshold")
	}
}

// refusingCaptureGateway authorizes normally but refuses every capture,
// the way an issuer can still bounce a settlement after authorization.
type refusingCaptureGateway struct {
	inner gateway.Gateway
}

func (g *refusingCaptureGateway) Authorize(ctx context.Context, key string, amount models.Money, details models.PaymentDetails) (*gateway.Result, error) {
	return g.inner.Authorize(ctx, key, amount, details)
}

func (g *refusingCaptureGateway) Capture(ctx context.Context, transactionID string) (*gateway.Result, error) {
	return &gateway.Result{TransactionID: transactionID, Approved: false, Reason: "settlement refused by issuer"}, nil
}

func (g *refusingCaptureGateway) Refund(ctx context.Context, transactionID string, amount models.Money) (*gateway.Result, error) {
	return g.inner.Refund(ctx, transactionID, amount)
}

func TestCheckout_CaptureRefused(t *testing.T) {
	env := newCheckoutEnv(widget(10))
	fillCart(env, "user_1", 2)
	env.service.gateway = &refusingCaptureGateway{inner: env.service.gateway}

	out, err := env.service.Checkout(context.Background(), "user_1", testKey, checkoutRequest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Result.Success {
		t.Fatal("refused capture must not fulfill the order")
	}
	if out.StatusCode != http.StatusPaymentRequired {
		t.Errorf("expected 402, got %d", out.StatusCode)
	}

	order, err := env.orders.GetByID(context.Background(), out.Result.OrderID)
	if err != nil {
		t.Fatalf("order row missing: %v", err)
	}
	if order.Status != models.OrderStatusCancelled {
		t.Errorf("expected cancelled order, got %s", order.Status)
	}

	payment, err := env.payments.GetByID(context.Background(), out.Result.PaymentID)
	if err != nil {
		t.Fatalf("payment row missing: %v", err)
	}
	if payment.Status != models.PaymentStatusDeclined {
		t.Errorf("expected declined payment, got %s", payment.Status)
	}
	if payment.ErrorMessage != "settlement refused by issuer" {
		t.Errorf("expected refusal reason on payment, got %q", payment.ErrorMessage)
	}

	// No money moved, so all stock comes back.
	if env.inventory.products["prod_widget"].Stock != 10 {
		t.Errorf("expected stock restored to 10, got %d", env.inventory.products["prod_widget"].Stock)
	}
	ownerRef := "checkout_user_1_" + testKey
	for _, status := range env.inventory.statuses(ownerRef) {
		if status != models.ReservationStatusReleased {
			t.Errorf("expected released reservation, got %s", status)
		}
	}
}

func TestCheckout_RetryAfterInfraFailure(t *testing.T) {
	env := newCheckoutEnv(widget(10))
	fillCart(env, "user_1", 2)

	env.orders.createErr = errors.New("connection reset by peer")
	if _, err := env.service.Checkout(context.Background(), "user_1", testKey, checkoutRequest()); err == nil {
		t.Fatal("expected error when order insert fails")
	}

	// The failed attempt must not pin the key or the stock.
	if len(env.idempotency.records) != 0 {
		t.Fatal("failed attempt left an in-progress idempotency record")
	}
	if env.inventory.products["prod_widget"].Stock != 10 {
		t.Errorf("expected stock restored after failure, got %d", env.inventory.products["prod_widget"].Stock)
	}

	env.orders.createErr = nil
	out, err := env.service.Checkout(context.Background(), "user_1", testKey, checkoutRequest())
	if err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	if !out.Result.Success {
		t.Fatalf("expected retry to fulfill, got error %q", out.Result.Error)
	}
	if out.Replayed {
		t.Error("retry after a failed attempt must run fresh, not replay")
	}
	if out.StatusCode != http.StatusCreated {
		t.Errorf("expected 201 on retry, got %d", out.StatusCode)
	}
}

func TestCheckout_ConcurrentLastUnit(t *testing.T) {
	env := newCheckoutEnv(widget(1))
	fillCart(env, "user_1", 1)
	fillCart(env, "user_2", 1)

	outcomes := make([]*CheckoutOutcome, 2)
	var wg sync.WaitGroup
	for i, userID := range []string{"user_1", "user_2"} {
		wg.Add(1)
		go func(i int, userID string) {
			defer wg.Done()
			out, err := env.service.Checkout(context.Background(), userID, "key-"+userID, checkoutRequest())
			if err != nil {
				t.Errorf("checkout for %s: %v", userID, err)
				return
			}
			outcomes[i] = out
		}(i, userID)
	}
	wg.Wait()

	fulfilled, conflicts := 0, 0
	for _, out := range outcomes {
		if out == nil {
			t.Fatal("missing checkout outcome")
		}
		switch {
		case out.Result.Success && out.StatusCode == http.StatusCreated:
			fulfilled++
		case !out.Result.Success && out.StatusCode == http.StatusConflict:
			conflicts++
		default:
			t.Errorf("unexpected outcome: success=%v status=%d", out.Result.Success, out.StatusCode)
		}
	}
	if fulfilled != 1 || conflicts != 1 {
		t.Fatalf("expected exactly one sale and one shortfall, got %d and %d", fulfilled, conflicts)
	}
	if env.inventory.products["prod_widget"].Stock != 0 {
		t.Errorf("expected final stock 0, got %d", env.inventory.products["prod_widget"].Stock)
	}

	if len(env.orders.orders) != 1 {
		t.Errorf("expected one order, got %d", len(env.orders.orders))
	}
	for _, order := range env.orders.orders {
		if order.Status != models.OrderStatusPaid {
			t.Errorf("expected winner's order paid, got %s", order.Status)
		}
	}
}
