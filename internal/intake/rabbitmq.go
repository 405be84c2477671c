package intake

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"restaurant-orders/internal/connections/rabbitmq"
	"restaurant-orders/internal/domain"
)

// RabbitQueue carries intake messages over a quorum queue. The broker enforces the
// delivery limit through x-delivery-limit; Consume enforces it again from x-delivery-count.
type RabbitQueue struct {
	client     *rabbitmq.Client
	prefetch   int
	consumerID string
	lg         *zap.Logger
}

func NewRabbitQueue(client *rabbitmq.Client, maxReceiveCount, prefetch int, lg *zap.Logger) (*RabbitQueue, error) {
	if maxReceiveCount <= 0 {
		maxReceiveCount = DefaultMaxReceiveCount
	}
	if prefetch <= 0 {
		prefetch = 1
	}
	if lg == nil {
		lg = zap.NewNop()
	}

	ch, err := client.Channel()
	if err != nil {
		return nil, err
	}
	defer ch.Close()
	if err := rabbitmq.DeclareIntake(ch, maxReceiveCount); err != nil {
		return nil, err
	}

	return &RabbitQueue{
		client:     client,
		prefetch:   prefetch,
		consumerID: "settlement-" + uuid.NewString()[:8],
		lg:         lg,
	}, nil
}

func (q *RabbitQueue) Enqueue(ctx context.Context, order domain.Order) error {
	body, err := json.Marshal(domain.IntakeMessage{Order: order})
	if err != nil {
		return err
	}
	msg := amqp.Publishing{
		ContentType:   "application/json",
		DeliveryMode:  amqp.Persistent,
		MessageId:     uuid.NewString(),
		CorrelationId: order.OrderID,
		Headers: amqp.Table{
			"x-restaurant-id": order.RestaurantID,
		},
		Body: body,
	}
	if err := q.client.Publish(ctx, rabbitmq.IntakeExchange, rabbitmq.IntakeRoutingKey, msg); err != nil {
		return domain.Transient("enqueue", err)
	}
	return nil
}

// Deliveries stops taking new messages when ctx is done. The channel stays open
// until release so in-flight deliveries can still be acked.
func (q *RabbitQueue) Deliveries(ctx context.Context) (<-chan Delivery, func(), error) {
	ch, err := q.client.Channel()
	if err != nil {
		return nil, nil, err
	}
	if err := ch.Qos(q.prefetch, 0, false); err != nil {
		_ = ch.Close()
		return nil, nil, err
	}
	msgs, err := ch.Consume(rabbitmq.IntakeQueue, q.consumerID, false, false, false, false, nil)
	if err != nil {
		_ = ch.Close()
		return nil, nil, fmt.Errorf("consume %s: %w", rabbitmq.IntakeQueue, err)
	}

	closed := ch.NotifyClose(make(chan *amqp.Error, 1))
	out := make(chan Delivery)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				_ = ch.Cancel(q.consumerID, false)
				return
			case e := <-closed:
				if e != nil {
					q.lg.Error("amqp_channel_closed", zap.Int("code", e.Code), zap.String("reason", e.Reason))
				}
				return
			case d, ok := <-msgs:
				if !ok {
					return
				}
				select {
				case out <- &rabbitDelivery{d: d}:
				case <-ctx.Done():
					_ = d.Nack(false, true)
					_ = ch.Cancel(q.consumerID, false)
					return
				}
			}
		}
	}()

	var once sync.Once
	release := func() {
		once.Do(func() { _ = ch.Close() })
	}
	return out, release, nil
}

type rabbitDelivery struct {
	d amqp.Delivery
}

func (r *rabbitDelivery) Message() (domain.IntakeMessage, error) {
	var msg domain.IntakeMessage
	if err := json.Unmarshal(r.d.Body, &msg); err != nil {
		return msg, fmt.Errorf("decode intake message: %w", err)
	}
	msg.ReceiveCount = deliveryCount(r.d.Headers) + 1
	return msg, nil
}

func (r *rabbitDelivery) Ack() error {
	return r.d.Ack(false)
}

func (r *rabbitDelivery) Nack(requeue bool) error {
	return r.d.Nack(false, requeue)
}

// deliveryCount reads the number of earlier failed deliveries recorded by a quorum queue.
func deliveryCount(h amqp.Table) int {
	switch v := h["x-delivery-count"].(type) {
	case int64:
		return int(v)
	case int32:
		return int(v)
	case int:
		return v
	default:
		return 0
	}
}
