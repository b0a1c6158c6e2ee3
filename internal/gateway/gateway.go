package gateway

import (
	"context"

	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/models"
)

// Result is the outcome of a gateway operation.
type Result struct {
	TransactionID string
	Approved      bool
	Reason        string
}

// Gateway authorizes and captures card payments. Authorization keys are
// single-use: repeating a key yields a declined duplicate result and the
// card is never charged again.
type Gateway interface {
	Authorize(ctx context.Context, key string, amount models.Money, details models.PaymentDetails) (*Result, error)
	Capture(ctx context.Context, transactionID string) (*Result, error)
	Refund(ctx context.Context, transactionID string, amount models.Money) (*Result, error)
}

// KeyRegistry claims authorization keys atomically. Claim returns the
// transaction id that won the key, and whether this caller was the winner.
type KeyRegistry interface {
	Claim(ctx context.Context, key, transactionID string) (string, bool, error)
}
