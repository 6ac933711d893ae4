package models

import "fmt"

// OrderStatus is the shared lifecycle ordinal used by both the order store
// and the procurement store. Values are fixed by the upstream schemas.
type OrderStatus int

const (
	OrderStatusCreated    OrderStatus = 1
	OrderStatusSent       OrderStatus = 2
	OrderStatusDelivered  OrderStatus = 3
	OrderStatusFinalized  OrderStatus = 4
	OrderStatusClosed     OrderStatus = 5
	OrderStatusUnreceived OrderStatus = 20
)

func (s OrderStatus) String() string {
	switch s {
	case OrderStatusCreated:
		return "Created"
	case OrderStatusSent:
		return "Sent"
	case OrderStatusDelivered:
		return "Delivered"
	case OrderStatusFinalized:
		return "Finalized"
	case OrderStatusClosed:
		return "Closed"
	case OrderStatusUnreceived:
		return "Unreceived"
	default:
		return fmt.Sprintf("OrderStatus(%d)", int(s))
	}
}

func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusCreated, OrderStatusSent, OrderStatusDelivered,
		OrderStatusFinalized, OrderStatusClosed, OrderStatusUnreceived:
		return true
	}
	return false
}

// allowedTransitions encodes the forward lifecycle. Unreceived branches off
// Sent when the supplier reports a failed delivery; it is terminal here.
var allowedTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusCreated:    {OrderStatusSent},
	OrderStatusSent:       {OrderStatusDelivered, OrderStatusUnreceived},
	OrderStatusDelivered:  {OrderStatusFinalized},
	OrderStatusFinalized:  {OrderStatusClosed},
	OrderStatusClosed:     {},
	OrderStatusUnreceived: {},
}

func (s OrderStatus) CanTransition(to OrderStatus) bool {
	for _, next := range allowedTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// PreDelivery reports whether an order has not yet reached Delivered.
// Such orders are candidates for the stalled-order sweep.
func (s OrderStatus) PreDelivery() bool {
	return s == OrderStatusCreated || s == OrderStatusSent
}

// Settled reports whether an order's quantities can no longer change.
func (s OrderStatus) Settled() bool {
	return s == OrderStatusFinalized || s == OrderStatusClosed
}
