package gateway

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/models"
)

// acceptedCards is the set of card numbers the processor approves.
// All other numbers are declined.
var acceptedCards = map[string]bool{
	"4111111111111111": true,
	"4242424242424242": true,
	"5555555555554444": true,
}

// CardGateway is an in-process card processor. Authorization keys are
// claimed through a KeyRegistry; a key that loses the claim is declined
// as a duplicate, so a retried key charges at most once.
type CardGateway struct {
	registry KeyRegistry
	logger   *zap.Logger

	mu           sync.Mutex
	transactions map[string]*transaction
}

type transaction struct {
	id       string
	amount   models.Money
	captured bool
	refunded bool
}

var _ Gateway = (*CardGateway)(nil)

func NewCardGateway(registry KeyRegistry, logger *zap.Logger) *CardGateway {
	return &CardGateway{
		registry:     registry,
		logger:       logger,
		transactions: make(map[string]*transaction),
	}
}

// Authorize validates card details and places a hold for the amount.
// A key that was already used is declined as a duplicate; the card is
// never charged twice.
func (g *CardGateway) Authorize(ctx context.Context, key string, amount models.Money, details models.PaymentDetails) (*Result, error) {
	if amount.IsZero() || amount.Amount < 0 {
		return &Result{Approved: false, Reason: "invalid amount"}, nil
	}
	if reason := validateCard(details); reason != "" {
		g.logger.Info("authorization declined",
			zap.String("key", key),
			zap.String("reason", reason),
		)
		return &Result{Approved: false, Reason: reason}, nil
	}

	txnID := "txn_" + uuid.NewString()
	winner, claimed, err := g.registry.Claim(ctx, key, txnID)
	if err != nil {
		return nil, err
	}

	if !claimed {
		// A previous attempt already holds this key. Refuse the charge.
		g.logger.Info("authorization refused for duplicate key",
			zap.String("key", key),
			zap.String("original_transaction_id", winner),
		)
		return &Result{
			TransactionID: "dup_" + key,
			Approved:      false,
			Reason:        "duplicate transaction detected",
		}, nil
	}

	g.mu.Lock()
	g.transactions[txnID] = &transaction{id: txnID, amount: amount}
	g.mu.Unlock()

	g.logger.Info("payment authorized",
		zap.String("transaction_id", txnID),
		zap.String("amount", amount.String()),
	)
	return &Result{TransactionID: txnID, Approved: true}, nil
}

// Capture settles a previously authorized transaction. Capturing an
// already captured transaction is a no-op returning success.
func (g *CardGateway) Capture(ctx context.Context, transactionID string) (*Result, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	txn, ok := g.transactions[transactionID]
	if !ok {
		return &Result{Approved: false, Reason: "unknown transaction"}, nil
	}
	txn.captured = true
	return &Result{TransactionID: transactionID, Approved: true}, nil
}

// Refund reverses a captured transaction.
func (g *CardGateway) Refund(ctx context.Context, transactionID string, amount models.Money) (*Result, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	txn, ok := g.transactions[transactionID]
	if !ok {
		return &Result{Approved: false, Reason: "unknown transaction"}, nil
	}
	if !txn.captured {
		return &Result{Approved: false, Reason: "transaction not captured"}, nil
	}
	if txn.refunded {
		return &Result{Approved: false, Reason: "transaction already refunded"}, nil
	}
	txn.refunded = true
	return &Result{TransactionID: transactionID, Approved: true}, nil
}

func validateCard(details models.PaymentDetails) string {
	number := strings.ReplaceAll(details.CardNumber, " ", "")
	if number == "" {
		return "card number is required"
	}
	if details.CVV == "" {
		return "cvv is required"
	}
	if expired(details.ExpiryMonth, details.ExpiryYear) {
		return "card is expired"
	}
	if !acceptedCards[number] {
		return "card declined by issuer"
	}
	return ""
}

func expired(month, year int) bool {
	if month < 1 || month > 12 || year <= 0 {
		return true
	}
	now := time.Now()
	if year < now.Year() {
		return true
	}
	return year == now.Year() && time.Month(month) < now.Month()
}
