package domain

import "fmt"

// transitions is the legal order-status graph. Statuses only move forward;
// cancellation is possible before shipment, and delivered/cancelled are
// terminal.
var transitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:   {OrderStatusConfirmed, OrderStatusCancelled},
	OrderStatusConfirmed: {OrderStatusShipped, OrderStatusCancelled},
	OrderStatusShipped:   {OrderStatusDelivered},
	OrderStatusDelivered: {},
	OrderStatusCancelled: {},
}

func CanTransition(from, to OrderStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func IsTerminal(status OrderStatus) bool {
	return len(transitions[status]) == 0
}

// ValidateTransition checks the status graph and the tracking-number rule:
// a tracking number is required entering shipped and ignored elsewhere
// (resubmitting it on a later transition is not an error).
func ValidateTransition(from, to OrderStatus, trackingNumber string) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	if to == OrderStatusShipped && trackingNumber == "" {
		return fmt.Errorf("%w: tracking number is required when shipping", ErrInvalidInput)
	}
	return nil
}
