package service

import (
	"strings"

	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/apperrors"
	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/models"
)

const (
	minIdempotencyKeyLength = 10
	maxIdempotencyKeyLength = 255
)

// ValidateIdempotencyKey checks the Idempotency-Key header value.
func ValidateIdempotencyKey(key string) error {
	if key == "" {
		return apperrors.NewValidationError("idempotency_key", "idempotency key is required")
	}
	if len(key) < minIdempotencyKeyLength {
		return apperrors.NewValidationError("idempotency_key", "idempotency key must be at least 10 characters")
	}
	if len(key) > maxIdempotencyKeyLength {
		return apperrors.NewValidationError("idempotency_key", "idempotency key must be at most 255 characters")
	}
	return nil
}

// ValidateCheckoutRequest validates a checkout payload.
func ValidateCheckoutRequest(req *models.CheckoutRequest) error {
	if req.Customer.Name == "" {
		return apperrors.NewValidationError("customer.name", "customer name is required")
	}
	if req.Customer.Email == "" {
		return apperrors.NewValidationError("customer.email", "customer email is required")
	}
	if !strings.Contains(req.Customer.Email, "@") {
		return apperrors.NewValidationError("customer.email", "customer email is invalid")
	}

	if err := validateAddress(&req.ShippingAddress, "shipping_address"); err != nil {
		return err
	}
	if err := validateAddress(&req.BillingAddress, "billing_address"); err != nil {
		return err
	}

	return validatePaymentDetails(&req.PaymentDetails)
}

func validateAddress(addr *models.Address, field string) error {
	if addr.Line1 == "" {
		return apperrors.NewValidationError(field, "address line 1 is required")
	}
	if addr.City == "" {
		return apperrors.NewValidationError(field, "city is required")
	}
	if addr.PostalCode == "" {
		return apperrors.NewValidationError(field, "postal code is required")
	}
	if addr.Country == "" {
		return apperrors.NewValidationError(field, "country is required")
	}
	if len(addr.Country) != 2 {
		return apperrors.NewValidationError(field, "country must be a 2-letter ISO code")
	}
	return nil
}

func validatePaymentDetails(details *models.PaymentDetails) error {
	number := strings.ReplaceAll(details.CardNumber, " ", "")
	if number == "" {
		return apperrors.NewValidationError("payment_details.card_number", "card number is required")
	}
	if len(number) < 13 || len(number) > 19 {
		return apperrors.NewValidationError("payment_details.card_number", "invalid card number length")
	}
	if details.ExpiryMonth < 1 || details.ExpiryMonth > 12 {
		return apperrors.NewValidationError("payment_details.expiry_month", "expiry month must be between 1 and 12")
	}
	if details.ExpiryYear <= 0 {
		return apperrors.NewValidationError("payment_details.expiry_year", "expiry year is required")
	}
	if details.CVV == "" {
		return apperrors.NewValidationError("payment_details.cvv", "cvv is required")
	}
	if details.HolderName == "" {
		return apperrors.NewValidationError("payment_details.holder_name", "card holder name is required")
	}
	return nil
}

// ValidateOrderListFilter validates and clamps a list filter.
func ValidateOrderListFilter(filter *models.OrderListFilter) error {
	if filter.Limit < 0 {
		return apperrors.NewValidationError("limit", "limit cannot be negative")
	}
	if filter.Offset < 0 {
		return apperrors.NewValidationError("offset", "offset cannot be negative")
	}
	if filter.Limit > 100 {
		filter.Limit = 100
	}
	return nil
}

// ValidateCancellationReason validates an order cancellation reason.
func ValidateCancellationReason(reason string) error {
	if reason == "" {
		return apperrors.NewValidationError("reason", "cancellation reason is required")
	}
	if len(reason) > 500 {
		return apperrors.NewValidationError("reason", "cancellation reason too long (max 500 characters)")
	}
	return nil
}
