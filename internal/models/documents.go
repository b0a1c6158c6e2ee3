package models

import "time"

// Invoice is an immutable financial document derived from a paid order.
// It carries its own customer snapshot so later profile edits cannot
// retroactively alter issued documents.
type Invoice struct {
	ID             string    `json:"id"`
	OrderID        string    `json:"order_id"`
	InvoiceNumber  string    `json:"invoice_number"`
	IssueDate      time.Time `json:"issue_date"`
	DueDate        time.Time `json:"due_date"`
	Total          Money     `json:"total"`
	CustomerName   string    `json:"customer_name"`
	CustomerEmail  string    `json:"customer_email"`
	BillingAddress Address   `json:"billing_address"`
}

// Receipt is the immutable proof of payment issued after capture.
type Receipt struct {
	ID            string        `json:"id"`
	OrderID       string        `json:"order_id"`
	PaymentID     string        `json:"payment_id"`
	ReceiptNumber string        `json:"receipt_number"`
	Method        PaymentMethod `json:"method"`
	Amount        Money         `json:"amount"`
	TransactionID string        `json:"transaction_id,omitempty"`
	CustomerName  string        `json:"customer_name"`
	CustomerEmail string        `json:"customer_email"`
	IssuedAt      time.Time     `json:"issued_at"`
}
