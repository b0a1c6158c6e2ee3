package models

import "time"

// PaymentStatus represents the state of a payment.
type PaymentStatus string

const (
	PaymentStatusPending    PaymentStatus = "pending"
	PaymentStatusAuthorized PaymentStatus = "authorized"
	PaymentStatusCaptured   PaymentStatus = "captured"
	PaymentStatusDeclined   PaymentStatus = "declined"
	PaymentStatusCancelled  PaymentStatus = "cancelled"
	PaymentStatusRefunded   PaymentStatus = "refunded"
)

// PaymentMethod identifies how a payment is made.
type PaymentMethod string

const (
	PaymentMethodCreditCard PaymentMethod = "credit_card"
	PaymentMethodDebitCard  PaymentMethod = "debit_card"
)

// Payment is the persisted payment record for an order. Each order has at
// most one payment row (unique order_id constraint).
type Payment struct {
	ID             string        `json:"id"`
	OrderID        string        `json:"order_id"`
	Amount         Money         `json:"amount"`
	Method         PaymentMethod `json:"method"`
	Status         PaymentStatus `json:"status"`
	TransactionID  string        `json:"transaction_id,omitempty"`
	IdempotencyKey string        `json:"-"`
	ErrorMessage   string        `json:"error_message,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

// CanRefund reports whether the payment can be reversed.
func (p *Payment) CanRefund() bool {
	return p.Status == PaymentStatusCaptured || p.Status == PaymentStatusAuthorized
}

// PaymentDetails carries the card data supplied at checkout. It is passed
// to the gateway and never persisted.
type PaymentDetails struct {
	CardNumber string `json:"card_number"`
	ExpiryMonth int   `json:"expiry_month"`
	ExpiryYear  int   `json:"expiry_year"`
	CVV         string `json:"cvv"`
	HolderName  string `json:"holder_name"`
}
