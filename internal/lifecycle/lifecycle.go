// Package lifecycle validates order status transitions. It is a pure
// validator: callers apply the returned status themselves, atomically with
// the validation check (the order repository guards the UPDATE with the
// expected current status).
package lifecycle

import (
	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/apperrors"
	"github.com/tm-acme-shop/acme-shop-checkout-service/internal/models"
)

// Action is an operation attempted on an order.
type Action string

const (
	ActionPay      Action = "pay"
	ActionDispatch Action = "dispatch"
	ActionDeliver  Action = "deliver"
	ActionCancel   Action = "cancel"
)

// Target returns the status an action transitions into when legal.
func (a Action) Target() models.OrderStatus {
	switch a {
	case ActionPay:
		return models.OrderStatusPaid
	case ActionDispatch:
		return models.OrderStatusDispatched
	case ActionDeliver:
		return models.OrderStatusDelivered
	case ActionCancel:
		return models.OrderStatusCancelled
	}
	return ""
}

var validTransitions = map[models.OrderStatus]map[Action]bool{
	models.OrderStatusPlaced: {
		ActionPay:    true,
		ActionCancel: true,
	},
	models.OrderStatusPaid: {
		ActionDispatch: true,
		ActionCancel:   true,
	},
	models.OrderStatusDispatched: {
		ActionDeliver: true,
	},
	models.OrderStatusDelivered: {},
	models.OrderStatusCancelled: {},
}

// Apply validates action against the current status and returns the next
// status, or an InvalidOrderStateTransitionError carrying the current and
// attempted status with a reason.
func Apply(current models.OrderStatus, action Action) (models.OrderStatus, error) {
	allowed, known := validTransitions[current]
	if known && allowed[action] {
		return action.Target(), nil
	}

	return "", &apperrors.InvalidOrderStateTransitionError{
		CurrentStatus:   string(current),
		AttemptedStatus: string(action.Target()),
		Reason:          denialReason(current, action),
	}
}

// IsTerminal reports whether no action can leave the status.
func IsTerminal(status models.OrderStatus) bool {
	return status == models.OrderStatusDelivered || status == models.OrderStatusCancelled
}

func denialReason(current models.OrderStatus, action Action) string {
	if current == models.OrderStatusCancelled {
		return "order is already cancelled"
	}

	switch action {
	case ActionPay:
		if current == models.OrderStatusPlaced {
			return "" // never denied from placed
		}
		return "order is already paid"
	case ActionDispatch:
		switch current {
		case models.OrderStatusPlaced:
			return "cannot dispatch an unpaid order"
		default:
			return "order is already dispatched"
		}
	case ActionDeliver:
		switch current {
		case models.OrderStatusPlaced:
			return "cannot deliver an unpaid order"
		case models.OrderStatusPaid:
			return "cannot deliver an undispatched order"
		case models.OrderStatusDelivered:
			return "order is already delivered"
		}
	case ActionCancel:
		switch current {
		case models.OrderStatusDispatched:
			return "cannot cancel a dispatched order"
		case models.OrderStatusDelivered:
			return "cannot cancel a delivered order"
		}
	}
	return "transition not allowed"
}
