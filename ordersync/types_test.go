package ordersync

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/aidenhsy/cron-schedules/utils"
)

func TestDecodeDeliveredEvent(t *testing.T) {
	raw := []byte(`{
		"event": "order.delivered",
		"messageId": "msg-1",
		"aggregateId": "ORD-42",
		"payload": {
			"procurement_order_details": [
				{"reference_id": "ITEM-1", "deliver_qty": "3.5"},
				{"reference_id": "ITEM-2", "deliver_qty": "1"}
			]
		}
	}`)
	event, err := DecodeDeliveredEvent(raw)
	if err != nil {
		t.Fatalf("DecodeDeliveredEvent: %v", err)
	}
	if event.AggregateId != "ORD-42" || event.MessageId != "msg-1" {
		t.Errorf("ids = %s/%s", event.AggregateId, event.MessageId)
	}
	if len(event.Payload.ProcurementOrderDetails) != 2 {
		t.Fatalf("lines = %d, want 2", len(event.Payload.ProcurementOrderDetails))
	}
	if !event.Payload.ProcurementOrderDetails[0].DeliverQty.Equal(decimal.NewFromFloat(3.5)) {
		t.Errorf("line 0 qty = %s", event.Payload.ProcurementOrderDetails[0].DeliverQty)
	}
}

func TestDecodeDeliveredEventRejectsInvalid(t *testing.T) {
	cases := map[string][]byte{
		"malformed":     []byte(`{not json`),
		"wrong event":   []byte(`{"event":"order.created","aggregateId":"A","payload":{"procurement_order_details":[{"reference_id":"R"}]}}`),
		"no aggregate":  []byte(`{"event":"order.delivered","payload":{"procurement_order_details":[{"reference_id":"R"}]}}`),
		"no lines":      []byte(`{"event":"order.delivered","aggregateId":"A","payload":{}}`),
		"blank ref id":  []byte(`{"event":"order.delivered","aggregateId":"A","payload":{"procurement_order_details":[{"reference_id":""}]}}`),
	}
	for name, raw := range cases {
		if _, err := DecodeDeliveredEvent(raw); !errors.Is(err, utils.ErrorValidation) {
			t.Errorf("%s: err = %v, want ErrorValidation", name, err)
		}
	}
}

func TestToFinalizeRequest(t *testing.T) {
	event := &DeliveredEvent{
		MessageId:   "msg-9",
		AggregateId: "ORD-9",
		Payload: DeliveredPayload{ProcurementOrderDetails: []DeliveredLine{
			{ReferenceId: "A", DeliverQty: decimal.NewFromInt(2)},
			{ReferenceId: "B", DeliverQty: decimal.NewFromInt(5)},
		}},
	}
	req := event.ToFinalizeRequest()
	if req.ClientOrderId != "ORD-9" || req.MessageId != "msg-9" {
		t.Errorf("request ids = %s/%s", req.ClientOrderId, req.MessageId)
	}
	if len(req.Lines) != 2 || req.Lines[1].ReferenceId != "B" || !req.Lines[1].Qty.Equal(decimal.NewFromInt(5)) {
		t.Errorf("lines = %+v", req.Lines)
	}
}

func TestEnvelopeDataDecodesBase64(t *testing.T) {
	// Push delivery base64-encodes data; json into []byte must round-trip.
	inner := []byte(`{"aggregateId":"X","payload":{"procurement_order_details":[{"reference_id":"R"}]}}`)
	wrapped, _ := json.Marshal(map[string]interface{}{
		"message":      map[string]interface{}{"data": inner, "messageId": "m1"},
		"subscription": "s",
	})

	var envelope PubSubPushEnvelope
	if err := json.Unmarshal(wrapped, &envelope); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}
	if envelope.Message.ID != "m1" {
		t.Errorf("message id = %s", envelope.Message.ID)
	}
	event, err := DecodeDeliveredEvent(envelope.Message.Data)
	if err != nil {
		t.Fatalf("decode inner event: %v", err)
	}
	if event.AggregateId != "X" {
		t.Errorf("aggregate = %s", event.AggregateId)
	}
}
