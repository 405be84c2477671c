package rabbitmq

import (
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	IntakeExchange   = "orders.intake"
	IntakeQueue      = "orders.intake"
	IntakeRoutingKey = "order.submitted"
	DeadExchange     = "orders.dlx"
	DeadQueue        = "orders.intake.dlq"
	ChangesExchange  = "orders.changes"
)

// IntakeQueueArgs builds the quorum-queue arguments that bound redelivery.
func IntakeQueueArgs(maxReceiveCount int) amqp.Table {
	return amqp.Table{
		"x-queue-type":              "quorum",
		"x-delivery-limit":          int32(maxReceiveCount),
		"x-dead-letter-exchange":    DeadExchange,
		"x-dead-letter-routing-key": DeadQueue,
	}
}

// DeclareIntake declares the intake exchange/queue and its dead-letter path. Idempotent.
func DeclareIntake(ch *amqp.Channel, maxReceiveCount int) error {
	if err := ch.ExchangeDeclare(IntakeExchange, "direct", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare %s: %w", IntakeExchange, err)
	}
	if err := ch.ExchangeDeclare(DeadExchange, "direct", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare %s: %w", DeadExchange, err)
	}
	if _, err := ch.QueueDeclare(DeadQueue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare %s: %w", DeadQueue, err)
	}
	if err := ch.QueueBind(DeadQueue, DeadQueue, DeadExchange, false, nil); err != nil {
		return fmt.Errorf("bind %s: %w", DeadQueue, err)
	}
	if _, err := ch.QueueDeclare(IntakeQueue, true, false, false, false, IntakeQueueArgs(maxReceiveCount)); err != nil {
		return fmt.Errorf("declare %s: %w", IntakeQueue, err)
	}
	if err := ch.QueueBind(IntakeQueue, IntakeRoutingKey, IntakeExchange, false, nil); err != nil {
		return fmt.Errorf("bind %s: %w", IntakeQueue, err)
	}
	return nil
}

// DeclareChanges declares the change-stream fanout exchange.
func DeclareChanges(ch *amqp.Channel) error {
	if err := ch.ExchangeDeclare(ChangesExchange, "fanout", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare %s: %w", ChangesExchange, err)
	}
	return nil
}
