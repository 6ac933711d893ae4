package ordersync

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/aidenhsy/cron-schedules/config"
	"github.com/aidenhsy/cron-schedules/utils"
	"github.com/aidenhsy/cron-schedules/workflow"
)

func ackTopicName() string {
	if v := strings.TrimSpace(os.Getenv("ORDER_PROCESSED_ACK_TOPIC")); v != "" {
		return v
	}
	return "order.delivered.processed.order"
}

func deliveredTopicName() string {
	if v := strings.TrimSpace(os.Getenv("ORDER_DELIVERED_TOPIC")); v != "" {
		return v
	}
	return DeliveredEventName
}

func deliveredSubscriptionName() string {
	if v := strings.TrimSpace(os.Getenv("ORDER_DELIVERED_SUBSCRIPTION")); v != "" {
		return v
	}
	return "order.delivered.cron-schedules"
}

// EnsureTopology creates the delivered topic, its push subscription and the
// ack topic when they do not exist yet. Best effort at boot; missing broker
// permissions only disable the consumer, not the HTTP surface.
func EnsureTopology(ctx context.Context) error {
	client, err := config.GetClient(ctx)
	if err != nil {
		return err
	}
	topic, err := config.CreateTopicIfNotExists(client, deliveredTopicName())
	if err != nil {
		return err
	}
	if _, err := config.CreateSubscriptionIfNotExists(client, deliveredSubscriptionName(), topic); err != nil {
		return err
	}
	_, err = config.CreateTopicIfNotExists(client, ackTopicName())
	return err
}

// PublishProcessedAck tells the upstream order system an event has been
// applied. Ordering key = aggregate id keeps acks per order in sequence;
// the messageId attribute lets consumers dedup across redeliveries.
func PublishProcessedAck(ctx context.Context, messageId, aggregateId string) error {
	ack := ProcessedAck{
		MessageId:   messageId,
		AggregateId: aggregateId,
		ProcessedAt: time.Now().UTC().Format(time.RFC3339),
	}
	_, err := config.PublishOrdered(ctx, ackTopicName(), aggregateId,
		map[string]string{"messageId": messageId}, ack)
	return err
}

// PushHandler is the Pub/Sub push endpoint for order.delivered events.
// 204 acks the message; any 5xx makes the broker redeliver. Malformed
// bodies are acked: they can never succeed and would loop forever.
func PushHandler() gin.HandlerFunc {
	logger := config.GetLogger()

	return func(c *gin.Context) {
		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.Status(204)
			return
		}

		var envelope PubSubPushEnvelope
		if err := json.Unmarshal(body, &envelope); err != nil {
			logger.WithFields(logrus.Fields{"error": err.Error()}).Warn("ordersync.push.bad_envelope")
			c.Status(204)
			return
		}

		event, err := DecodeDeliveredEvent(envelope.Message.Data)
		if err != nil {
			config.LogError(logger, "ordersync", "PushHandler", "poison message acked",
				map[string]interface{}{"pubsub_message_id": envelope.Message.ID}, err)
			c.Status(204)
			return
		}
		if event.MessageId == "" {
			event.MessageId = envelope.Message.ID
		}

		ctx := utils.SetTriggeredByInContext(c.Request.Context(), "pubsub")
		if err := workflow.FinalizeDeliveredOrder(ctx, event.ToFinalizeRequest()); err != nil {
			status := 500
			if errors.Is(err, utils.ErrorCountMismatch) || errors.Is(err, utils.ErrorRecordNotFound) ||
				errors.Is(err, utils.ErrorStatusConflict) {
				// Stores have not converged yet; redelivery retries later.
				status = 503
			}
			config.LogError(logger, "ordersync", "PushHandler", "finalize failed",
				map[string]interface{}{
					"aggregate_id": event.AggregateId,
					"message_id":   event.MessageId,
				}, err)
			c.Status(status)
			return
		}

		// Replay or fresh success, the upstream gets its ack either way.
		if err := PublishProcessedAck(ctx, event.MessageId, event.AggregateId); err != nil {
			config.LogError(logger, "ordersync", "PushHandler", "ack publish failed",
				map[string]interface{}{"aggregate_id": event.AggregateId}, err)
			c.Status(500)
			return
		}
		c.Status(204)
	}
}
