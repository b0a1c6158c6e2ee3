package models

// CartItem is a single cart line. Product name and unit price are resolved
// from the live catalog when the cart is loaded; checkout snapshots them
// into the order.
type CartItem struct {
	ProductID   string `json:"product_id"`
	ProductName string `json:"product_name"`
	Quantity    int    `json:"quantity"`
	UnitPrice   Money  `json:"unit_price"`
}

// Cart is a user's shopping cart.
type Cart struct {
	UserID string     `json:"user_id"`
	Items  []CartItem `json:"items"`
}

// IsEmpty reports whether the cart has no lines.
func (c *Cart) IsEmpty() bool {
	return c == nil || len(c.Items) == 0
}

// Total computes the cart total from its unit prices.
func (c *Cart) Total() Money {
	var total Money
	for _, item := range c.Items {
		total = total.Add(item.UnitPrice.Mul(item.Quantity))
	}
	return total
}
