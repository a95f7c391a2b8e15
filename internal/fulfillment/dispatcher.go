// Package fulfillment publishes content-grant and content-revoke events to
// the event bus. Keeping the side effect behind a publish means webhook
// acknowledgments never wait on SMTP; the notifier consumes the topic with
// its own group and retries independently.
package fulfillment

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/example/paypal-checkout/internal/checkout"
	"github.com/example/paypal-checkout/internal/kafka"
)

// KafkaDispatcher implements checkout.Dispatcher on top of a Kafka producer.
type KafkaDispatcher struct {
	producer *kafka.Producer
}

func NewKafkaDispatcher(producer *kafka.Producer) *KafkaDispatcher {
	return &KafkaDispatcher{producer: producer}
}

// GrantAccess publishes an OrderCompleted event keyed by order ID.
func (d *KafkaDispatcher) GrantAccess(ctx context.Context, order *checkout.Order) error {
	return d.publish(ctx, order.ID, checkout.EventOrderCompleted, checkout.OrderCompleted{
		OrderID:     order.ID,
		PayerEmail:  order.PayerEmail,
		ProductName: order.Product.Name,
		Price:       order.Product.Price,
		Currency:    order.Product.Currency,
		CompletedAt: order.CompletedAt,
	})
}

// RevokeAccess publishes an OrderRefunded event keyed by order ID.
func (d *KafkaDispatcher) RevokeAccess(ctx context.Context, order *checkout.Order) error {
	return d.publish(ctx, order.ID, checkout.EventOrderRefunded, checkout.OrderRefunded{
		OrderID:     order.ID,
		PayerEmail:  order.PayerEmail,
		ProductName: order.Product.Name,
		Amount:      order.RefundAmount,
		Currency:    order.RefundCurrency,
		RefundedAt:  order.RefundedAt,
	})
}

func (d *KafkaDispatcher) publish(ctx context.Context, key, eventType string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return d.producer.Publish(ctx, key, checkout.Event{
		ID:         uuid.New().String(),
		Type:       eventType,
		OccurredAt: time.Now(),
		Data:       payload,
	})
}
