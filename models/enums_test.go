package models

import "testing"

func TestOrderStatusOrdinals(t *testing.T) {
	// Upstream schemas store these as raw ints; the values must never move.
	cases := map[OrderStatus]int{
		OrderStatusCreated:    1,
		OrderStatusSent:       2,
		OrderStatusDelivered:  3,
		OrderStatusFinalized:  4,
		OrderStatusClosed:     5,
		OrderStatusUnreceived: 20,
	}
	for status, want := range cases {
		if int(status) != want {
			t.Errorf("%s = %d, want %d", status, int(status), want)
		}
	}
}

func TestOrderStatusTransitions(t *testing.T) {
	allowed := []struct{ from, to OrderStatus }{
		{OrderStatusCreated, OrderStatusSent},
		{OrderStatusSent, OrderStatusDelivered},
		{OrderStatusSent, OrderStatusUnreceived},
		{OrderStatusDelivered, OrderStatusFinalized},
		{OrderStatusFinalized, OrderStatusClosed},
	}
	for _, c := range allowed {
		if !c.from.CanTransition(c.to) {
			t.Errorf("%s -> %s should be allowed", c.from, c.to)
		}
	}

	denied := []struct{ from, to OrderStatus }{
		{OrderStatusCreated, OrderStatusDelivered},
		{OrderStatusDelivered, OrderStatusSent},
		{OrderStatusFinalized, OrderStatusDelivered},
		{OrderStatusClosed, OrderStatusFinalized},
		{OrderStatusUnreceived, OrderStatusDelivered},
		{OrderStatusCreated, OrderStatusUnreceived},
	}
	for _, c := range denied {
		if c.from.CanTransition(c.to) {
			t.Errorf("%s -> %s should be denied", c.from, c.to)
		}
	}
}

func TestOrderStatusPredicates(t *testing.T) {
	if !OrderStatusCreated.PreDelivery() || !OrderStatusSent.PreDelivery() {
		t.Error("Created/Sent should be pre-delivery")
	}
	if OrderStatusDelivered.PreDelivery() || OrderStatusUnreceived.PreDelivery() {
		t.Error("Delivered/Unreceived should not be pre-delivery")
	}
	if !OrderStatusFinalized.Settled() || !OrderStatusClosed.Settled() {
		t.Error("Finalized/Closed should be settled")
	}
	if OrderStatusDelivered.Settled() {
		t.Error("Delivered should not be settled")
	}
	if OrderStatus(99).Valid() {
		t.Error("99 should be invalid")
	}
	if !OrderStatusUnreceived.Valid() {
		t.Error("Unreceived should be valid")
	}
}
