package ordersync

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/aidenhsy/cron-schedules/utils"
	"github.com/aidenhsy/cron-schedules/workflow"
)

const DeliveredEventName = "order.delivered"

// PubSubPushEnvelope is the push-delivery wrapper Google Pub/Sub posts to
// the endpoint. Data is base64 on the wire; encoding/json decodes []byte
// transparently.
type PubSubPushEnvelope struct {
	Message struct {
		Data       []byte            `json:"data"`
		ID         string            `json:"messageId"`
		Attributes map[string]string `json:"attributes"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}

// DeliveredEvent is the upstream order-management payload announcing that
// the supplier delivered an order.
type DeliveredEvent struct {
	Event       string           `json:"event"`
	MessageId   string           `json:"messageId"`
	AggregateId string           `json:"aggregateId"`
	Payload     DeliveredPayload `json:"payload"`
}

type DeliveredPayload struct {
	ProcurementOrderDetails []DeliveredLine `json:"procurement_order_details"`
}

type DeliveredLine struct {
	ReferenceId string          `json:"reference_id"`
	DeliverQty  decimal.Decimal `json:"deliver_qty"`
}

// ProcessedAck is emitted on the processed-ack routing key once an event has
// been applied (or recognized as a replay).
type ProcessedAck struct {
	MessageId   string `json:"messageId"`
	AggregateId string `json:"aggregateId"`
	ProcessedAt string `json:"processedAt"`
}

// DecodeDeliveredEvent parses and validates an event body. A nil error
// guarantees the event names an aggregate and carries at least one line.
func DecodeDeliveredEvent(raw []byte) (*DeliveredEvent, error) {
	var event DeliveredEvent
	if err := json.Unmarshal(raw, &event); err != nil {
		return nil, fmt.Errorf("%w: malformed event body: %v", utils.ErrorValidation, err)
	}
	if event.Event != "" && event.Event != DeliveredEventName {
		return nil, fmt.Errorf("%w: unexpected event %q", utils.ErrorValidation, event.Event)
	}
	if event.AggregateId == "" {
		return nil, fmt.Errorf("%w: missing aggregateId", utils.ErrorValidation)
	}
	if len(event.Payload.ProcurementOrderDetails) == 0 {
		return nil, fmt.Errorf("%w: event %s has no order lines", utils.ErrorValidation, event.AggregateId)
	}
	for i, line := range event.Payload.ProcurementOrderDetails {
		if line.ReferenceId == "" {
			return nil, fmt.Errorf("%w: event %s line %d missing reference_id", utils.ErrorValidation, event.AggregateId, i)
		}
	}
	return &event, nil
}

// ToFinalizeRequest maps a decoded event onto the completion pipeline input.
func (e *DeliveredEvent) ToFinalizeRequest() workflow.FinalizeRequest {
	req := workflow.FinalizeRequest{
		MessageId:     e.MessageId,
		ClientOrderId: e.AggregateId,
		Lines:         make([]workflow.FinalizeLine, 0, len(e.Payload.ProcurementOrderDetails)),
	}
	for _, line := range e.Payload.ProcurementOrderDetails {
		req.Lines = append(req.Lines, workflow.FinalizeLine{
			ReferenceId: line.ReferenceId,
			Qty:         line.DeliverQty,
		})
	}
	return req
}
