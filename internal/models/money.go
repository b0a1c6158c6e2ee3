package models

import (
	"fmt"
	"math"
)

// Money represents a monetary amount in minor units (cents) with its currency.
type Money struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

// NewMoney converts a major-unit amount (e.g. 19.99) to Money.
func NewMoney(amount float64, currency string) Money {
	return Money{
		Amount:   int64(math.Round(amount * 100)),
		Currency: currency,
	}
}

// ToFloat returns the amount in major units.
func (m Money) ToFloat() float64 {
	return float64(m.Amount) / 100
}

// Mul returns the amount multiplied by a quantity.
func (m Money) Mul(qty int) Money {
	return Money{Amount: m.Amount * int64(qty), Currency: m.Currency}
}

// Add returns the sum of two amounts. Currencies must match; an empty
// receiver currency adopts the other side's.
func (m Money) Add(other Money) Money {
	currency := m.Currency
	if currency == "" {
		currency = other.Currency
	}
	return Money{Amount: m.Amount + other.Amount, Currency: currency}
}

// IsZero reports whether the amount is zero.
func (m Money) IsZero() bool {
	return m.Amount == 0
}

func (m Money) String() string {
	return fmt.Sprintf("%.2f %s", m.ToFloat(), m.Currency)
}
