package models

import "time"

// CheckoutEndpoint scopes idempotency records for the checkout operation.
const CheckoutEndpoint = "/api/v1/checkout"

// CheckoutRequest is the payload for placing and paying an order in one call.
// The idempotency key arrives in the Idempotency-Key header, never the body.
type CheckoutRequest struct {
	Customer        Customer       `json:"customer"`
	ShippingAddress Address        `json:"shipping_address"`
	BillingAddress  Address        `json:"billing_address"`
	PaymentDetails  PaymentDetails `json:"payment_details"`
}

// CheckoutResult is the durable outcome of a checkout attempt. Both success
// and failure shapes are cached under the idempotency key so retried
// submissions replay the identical response.
type CheckoutResult struct {
	Success       bool        `json:"success"`
	OrderID       string      `json:"order_id,omitempty"`
	PaymentID     string      `json:"payment_id,omitempty"`
	InvoiceNumber string      `json:"invoice_number,omitempty"`
	ReceiptNumber string      `json:"receipt_number,omitempty"`
	OrderStatus   OrderStatus `json:"order_status,omitempty"`
	Error         string      `json:"error,omitempty"`
}

// IdempotencyStatus tracks the progress of a keyed request.
type IdempotencyStatus string

const (
	IdempotencyStatusInProgress IdempotencyStatus = "IN_PROGRESS"
	IdempotencyStatusCompleted  IdempotencyStatus = "COMPLETED"
)

// IdempotencyRecord is the persisted outcome of a keyed request, unique per
// (key, user, endpoint). A retried request with the same key returns the
// cached response verbatim without re-executing side effects.
type IdempotencyRecord struct {
	Key          string            `json:"key"`
	UserID       string            `json:"user_id"`
	Endpoint     string            `json:"endpoint"`
	RequestHash  string            `json:"request_hash"`
	Status       IdempotencyStatus `json:"status"`
	ResponseBody []byte            `json:"response_body,omitempty"`
	StatusCode   int               `json:"status_code,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	ExpiresAt    time.Time         `json:"expires_at"`
}
