package models

import "time"

// OrderStatus represents the lifecycle state of an order.
type OrderStatus string

const (
	OrderStatusPlaced     OrderStatus = "placed"
	OrderStatusPaid       OrderStatus = "paid"
	OrderStatusDispatched OrderStatus = "dispatched"
	OrderStatusDelivered  OrderStatus = "delivered"
	OrderStatusCancelled  OrderStatus = "cancelled"
)

// Address is a postal address snapshot.
type Address struct {
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
}

// Customer is the customer identity snapshot captured at order creation.
// Later profile edits never alter it.
type Customer struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone,omitempty"`
}

// OrderItem is a single order line with its product name and price snapshot.
type OrderItem struct {
	ID          string `json:"id"`
	ProductID   string `json:"product_id"`
	ProductName string `json:"product_name"`
	Quantity    int    `json:"quantity"`
	UnitPrice   Money  `json:"unit_price"`
	Total       Money  `json:"total"`
}

// Order is an order with its immutable customer/address/price snapshots.
type Order struct {
	ID              string      `json:"id"`
	UserID          string      `json:"user_id"`
	Status          OrderStatus `json:"status"`
	Customer        Customer    `json:"customer"`
	Items           []OrderItem `json:"items"`
	ShippingAddress Address     `json:"shipping_address"`
	BillingAddress  Address     `json:"billing_address"`
	Total           Money       `json:"total"`
	PaymentID       string      `json:"payment_id,omitempty"`
	Notes           string      `json:"notes,omitempty"`
	CreatedAt       time.Time   `json:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at"`
	DispatchedAt    *time.Time  `json:"dispatched_at,omitempty"`
	DeliveredAt     *time.Time  `json:"delivered_at,omitempty"`
}

// CalculateTotal recomputes item line totals and the order total from the
// unit price snapshots.
func (o *Order) CalculateTotal() {
	var total Money
	for i := range o.Items {
		o.Items[i].Total = o.Items[i].UnitPrice.Mul(o.Items[i].Quantity)
		total = total.Add(o.Items[i].Total)
	}
	o.Total = total
}

// ItemCount returns the total number of units across all lines.
func (o *Order) ItemCount() int {
	n := 0
	for _, item := range o.Items {
		n += item.Quantity
	}
	return n
}

// CanCancel reports whether the order may still be cancelled.
func (o *Order) CanCancel() bool {
	return o.Status == OrderStatusPlaced || o.Status == OrderStatusPaid
}

// IsMutable reports whether order lines may still be changed.
// Orders are frozen once paid.
func (o *Order) IsMutable() bool {
	return o.Status == OrderStatusPlaced
}

// OrderListFilter describes the criteria for listing orders.
type OrderListFilter struct {
	UserID string
	Status *OrderStatus
	Limit  int
	Offset int
}
