// Package apperrors defines the error taxonomy shared by the checkout
// service's layers. Validation and business-rule errors are recoverable and
// carried to the caller; infrastructure errors trigger compensation before
// surfacing.
package apperrors

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ValidationError reports malformed input on a named field.
type ValidationError struct {
	Field   string
	Message string
}

func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Message)
}

// InsufficientStockError reports the first cart line that cannot be
// satisfied from live stock.
type InsufficientStockError struct {
	ProductID   string
	ProductName string
	Requested   int
	Available   int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s: requested %d, available %d",
		e.ProductName, e.Requested, e.Available)
}

// PaymentDeclinedError reports a gateway rejection.
type PaymentDeclinedError struct {
	Reason string
}

func (e *PaymentDeclinedError) Error() string {
	return "payment declined: " + e.Reason
}

// InvalidOrderStateTransitionError reports an illegal order status change.
type InvalidOrderStateTransitionError struct {
	CurrentStatus   string
	AttemptedStatus string
	Reason          string
}

func (e *InvalidOrderStateTransitionError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("cannot transition from %s to %s: %s",
			e.CurrentStatus, e.AttemptedStatus, e.Reason)
	}
	return fmt.Sprintf("cannot transition from %s to %s",
		e.CurrentStatus, e.AttemptedStatus)
}

// OrderAlreadyCancelledError reports a mutation attempt on a cancelled order.
type OrderAlreadyCancelledError struct {
	OrderID string
}

func (e *OrderAlreadyCancelledError) Error() string {
	return fmt.Sprintf("order %s is already cancelled", e.OrderID)
}

// OrderModificationAfterPaymentError reports a mutation attempt on an order
// that has been paid, dispatched or delivered.
type OrderModificationAfterPaymentError struct {
	OrderID string
	Status  string
}

func (e *OrderModificationAfterPaymentError) Error() string {
	return fmt.Sprintf("order %s cannot be modified in status %s", e.OrderID, e.Status)
}

// IdempotencyConflictError reports a duplicate idempotency key whose first
// attempt is still in flight.
type IdempotencyConflictError struct {
	Key string
}

func (e *IdempotencyConflictError) Error() string {
	return fmt.Sprintf("request with idempotency key %s is already in progress", e.Key)
}
