// Package intake decouples order admission from settlement with at-least-once delivery
// and a dead-letter path for messages that keep failing.
package intake

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"restaurant-orders/internal/domain"
)

// ErrDeadLetter tells Consume to dead-letter the message now instead of requeueing it.
var ErrDeadLetter = errors.New("dead_letter")

const DefaultMaxReceiveCount = 5

type Delivery interface {
	// Message decodes the payload; ReceiveCount is 1 on first delivery.
	Message() (domain.IntakeMessage, error)
	Ack() error
	// Nack requeues the message, or dead-letters it when requeue is false.
	Nack(requeue bool) error
}

type Queue interface {
	Enqueue(ctx context.Context, order domain.Order) error
	// Deliveries streams messages until ctx is done, then closes the channel.
	// release frees the consumer and must be called once every received delivery
	// has been acked or nacked.
	Deliveries(ctx context.Context) (deliveries <-chan Delivery, release func(), err error)
}

type Handler func(ctx context.Context, msg domain.IntakeMessage) error

type ConsumeOptions struct {
	Concurrency     int
	MaxReceiveCount int
	Logger          *zap.Logger
}

// Consume runs h for every delivery, at most Concurrency at a time, and maps the
// result to ack (nil), dead-letter (ErrDeadLetter, undecodable payloads, or the last
// allowed receive) or requeue (any other error). It returns when ctx is done and
// in-flight handlers have finished.
func Consume(ctx context.Context, q Queue, opts ConsumeOptions, h Handler) error {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if opts.MaxReceiveCount <= 0 {
		opts.MaxReceiveCount = DefaultMaxReceiveCount
	}
	lg := opts.Logger
	if lg == nil {
		lg = zap.NewNop()
	}

	deliveries, release, err := q.Deliveries(ctx)
	if err != nil {
		return err
	}
	defer release()

	g := new(errgroup.Group)
	g.SetLimit(opts.Concurrency)
	for d := range deliveries {
		d := d
		g.Go(func() error {
			handle(ctx, d, opts.MaxReceiveCount, lg, h)
			return nil
		})
	}
	return g.Wait()
}

func handle(ctx context.Context, d Delivery, maxReceive int, lg *zap.Logger, h Handler) {
	msg, err := d.Message()
	if err != nil {
		lg.Error("intake_message_malformed", zap.Error(err))
		_ = d.Nack(false)
		return
	}
	fields := []zap.Field{
		zap.String("order_id", msg.Order.OrderID),
		zap.String("restaurant_id", msg.Order.RestaurantID),
		zap.Int("receive_count", msg.ReceiveCount),
	}
	if msg.ReceiveCount > maxReceive {
		lg.Warn("intake_dead_lettered", append(fields, zap.String("reason", "receive limit exceeded"))...)
		_ = d.Nack(false)
		return
	}

	herr := h(ctx, msg)
	switch {
	case herr == nil:
		if err := d.Ack(); err != nil {
			lg.Error("intake_ack_failed", append(fields, zap.Error(err))...)
		}
	case errors.Is(herr, ErrDeadLetter):
		lg.Warn("intake_dead_lettered", append(fields, zap.Error(herr))...)
		_ = d.Nack(false)
	case msg.ReceiveCount >= maxReceive:
		lg.Warn("intake_dead_lettered", append(fields, zap.String("reason", "receive limit reached"), zap.Error(herr))...)
		_ = d.Nack(false)
	default:
		lg.Info("intake_requeued", append(fields, zap.Error(herr))...)
		_ = d.Nack(true)
	}
}
