package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"restaurant-orders/internal/connections/rabbitmq"
	"restaurant-orders/internal/domain"
)

// ChangePublisher puts committed order images on the change exchange so every
// order-service replica can fan them out to its own subscribers.
type ChangePublisher struct {
	client *rabbitmq.Client
}

func NewChangePublisher(client *rabbitmq.Client) (*ChangePublisher, error) {
	ch, err := client.Channel()
	if err != nil {
		return nil, err
	}
	defer ch.Close()
	if err := rabbitmq.DeclareChanges(ch); err != nil {
		return nil, err
	}
	return &ChangePublisher{client: client}, nil
}

func (p *ChangePublisher) Publish(ctx context.Context, o domain.Order) error {
	body, err := json.Marshal(o)
	if err != nil {
		return err
	}
	return p.client.Publish(ctx, rabbitmq.ChangesExchange, "", amqp.Publishing{
		ContentType:   "application/json",
		MessageId:     uuid.NewString(),
		CorrelationId: o.OrderID,
		Headers: amqp.Table{
			"x-restaurant-id": o.RestaurantID,
			"x-status":        string(o.Status),
		},
		Body: body,
	})
}

// ConsumeChanges binds a private queue to the change exchange and fans every image
// out until ctx is done. Delivery problems are logged; the change is never redelivered.
func ConsumeChanges(ctx context.Context, client *rabbitmq.Client, fanout FanoutInterface, lg *zap.Logger) error {
	ch, err := client.Channel()
	if err != nil {
		return err
	}
	defer ch.Close()

	if err := rabbitmq.DeclareChanges(ch); err != nil {
		return err
	}
	q, err := ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		return fmt.Errorf("declare change queue: %w", err)
	}
	if err := ch.QueueBind(q.Name, "", rabbitmq.ChangesExchange, false, nil); err != nil {
		return fmt.Errorf("bind change queue: %w", err)
	}
	msgs, err := ch.Consume(q.Name, "", true, true, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume change queue: %w", err)
	}
	lg.Info("change_stream_subscribed", zap.String("queue", q.Name))

	closed := ch.NotifyClose(make(chan *amqp.Error, 1))
	for {
		select {
		case <-ctx.Done():
			return nil
		case e := <-closed:
			if e != nil {
				return fmt.Errorf("change channel closed: %s", e.Reason)
			}
			return nil
		case d, ok := <-msgs:
			if !ok {
				return nil
			}
			HandleChange(ctx, d.Body, fanout, lg)
		}
	}
}

// HandleChange decodes one change message and fans it out.
func HandleChange(ctx context.Context, body []byte, fanout FanoutInterface, lg *zap.Logger) {
	var o domain.Order
	if err := json.Unmarshal(body, &o); err != nil {
		lg.Error("change_message_malformed", zap.Error(err))
		return
	}
	if err := fanout.Publish(ctx, o); err != nil {
		lg.Warn("change_fanout_incomplete", zap.String("order_id", o.OrderID), zap.Error(err))
	}
}
