package gateway

import (
	"context"
	"testing"

	"go.uber.org/zap"

	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/models"
)

func validDetails() models.PaymentDetails {
	return models.PaymentDetails{
		CardNumber:  "4111111111111111",
		ExpiryMonth: 12,
		ExpiryYear:  2030,
		CVV:         "123",
		HolderName:  "Ada Lovelace",
	}
}

func TestAuthorize_ApprovedCard(t *testing.T) {
	g := NewCardGateway(NewMemoryKeyRegistry(), zap.NewNop())

	result, err := g.Authorize(context.Background(), "key-1", models.NewMoney(49.99, "USD"), validDetails())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Approved {
		t.Fatalf("expected approval, got declined: %s", result.Reason)
	}
	if result.TransactionID == "" {
		t.Error("expected a transaction id")
	}
}

func TestAuthorize_DeclinedCard(t *testing.T) {
	g := NewCardGateway(NewMemoryKeyRegistry(), zap.NewNop())

	details := validDetails()
	details.CardNumber = "4000000000000002"

	result, err := g.Authorize(context.Background(), "key-1", models.NewMoney(10, "USD"), details)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Approved {
		t.Fatal("expected decline for unknown card")
	}
	if result.Reason == "" {
		t.Error("expected a decline reason")
	}
}

func TestAuthorize_ExpiredCard(t *testing.T) {
	g := NewCardGateway(NewMemoryKeyRegistry(), zap.NewNop())

	details := validDetails()
	details.ExpiryYear = 2020

	result, err := g.Authorize(context.Background(), "key-1", models.NewMoney(10, "USD"), details)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Approved {
		t.Fatal("expected decline for expired card")
	}
	if result.Reason != "card is expired" {
		t.Errorf("unexpected reason: %s", result.Reason)
	}
}

func TestAuthorize_ZeroAmount(t *testing.T) {
	g := NewCardGateway(NewMemoryKeyRegistry(), zap.NewNop())

	result, err := g.Authorize(context.Background(), "key-1", models.Money{Currency: "USD"}, validDetails())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Approved {
		t.Fatal("expected decline for zero amount")
	}
	if result.Reason != "invalid amount" {
		t.Errorf("unexpected reason: %s", result.Reason)
	}
}

func TestAuthorize_DuplicateKeyDeclined(t *testing.T) {
	g := NewCardGateway(NewMemoryKeyRegistry(), zap.NewNop())

	first, err := g.Authorize(context.Background(), "key-dup", models.NewMoney(25, "USD"), validDetails())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !first.Approved {
		t.Fatalf("expected first authorization to succeed: %s", first.Reason)
	}

	second, err := g.Authorize(context.Background(), "key-dup", models.NewMoney(25, "USD"), validDetails())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if second.Approved {
		t.Fatal("expected duplicate key to be declined")
	}
	if second.TransactionID != "dup_key-dup" {
		t.Errorf("expected duplicate marker transaction id, got %s", second.TransactionID)
	}
	if second.Reason != "duplicate transaction detected" {
		t.Errorf("unexpected reason: %s", second.Reason)
	}

	// The original hold is untouched and still capturable.
	captured, err := g.Capture(context.Background(), first.TransactionID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !captured.Approved {
		t.Errorf("expected original transaction to capture: %s", captured.Reason)
	}
}

func TestCapture(t *testing.T) {
	g := NewCardGateway(NewMemoryKeyRegistry(), zap.NewNop())

	auth, _ := g.Authorize(context.Background(), "key-1", models.NewMoney(10, "USD"), validDetails())

	captured, err := g.Capture(context.Background(), auth.TransactionID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !captured.Approved {
		t.Fatalf("expected capture success: %s", captured.Reason)
	}

	// Capturing again is a no-op.
	again, err := g.Capture(context.Background(), auth.TransactionID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !again.Approved {
		t.Error("expected repeated capture to succeed")
	}
}

func TestCapture_UnknownTransaction(t *testing.T) {
	g := NewCardGateway(NewMemoryKeyRegistry(), zap.NewNop())

	result, err := g.Capture(context.Background(), "txn_missing")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Approved {
		t.Fatal("expected failure for unknown transaction")
	}
}

func TestRefund(t *testing.T) {
	g := NewCardGateway(NewMemoryKeyRegistry(), zap.NewNop())

	auth, _ := g.Authorize(context.Background(), "key-1", models.NewMoney(10, "USD"), validDetails())

	// Refund before capture fails.
	early, err := g.Refund(context.Background(), auth.TransactionID, models.NewMoney(10, "USD"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if early.Approved {
		t.Fatal("expected refund of uncaptured transaction to fail")
	}

	g.Capture(context.Background(), auth.TransactionID)

	refund, err := g.Refund(context.Background(), auth.TransactionID, models.NewMoney(10, "USD"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !refund.Approved {
		t.Fatalf("expected refund success: %s", refund.Reason)
	}

	second, _ := g.Refund(context.Background(), auth.TransactionID, models.NewMoney(10, "USD"))
	if second.Approved {
		t.Error("expected double refund to fail")
	}
}

func TestMemoryKeyRegistry_Claim(t *testing.T) {
	r := NewMemoryKeyRegistry()

	winner, claimed, err := r.Claim(context.Background(), "k", "txn_1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !claimed || winner != "txn_1" {
		t.Fatalf("expected first claim to win, got winner=%s claimed=%v", winner, claimed)
	}

	winner, claimed, err = r.Claim(context.Background(), "k", "txn_2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if claimed {
		t.Error("expected second claim to lose")
	}
	if winner != "txn_1" {
		t.Errorf("expected original winner txn_1, got %s", winner)
	}
}
