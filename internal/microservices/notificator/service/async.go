package service

import (
	"context"

	"go.uber.org/zap"

	"restaurant-orders/internal/domain"
)

// AsyncPublisher decouples the store's mutation path from subscriber writes: Publish
// only queues the image and Run fans images out one at a time, in commit order.
type AsyncPublisher struct {
	next  FanoutInterface
	queue chan domain.Order
	lg    *zap.Logger
}

func NewAsyncPublisher(next FanoutInterface, buffer int, lg *zap.Logger) *AsyncPublisher {
	if buffer <= 0 {
		buffer = 256
	}
	if lg == nil {
		lg = zap.NewNop()
	}
	return &AsyncPublisher{next: next, queue: make(chan domain.Order, buffer), lg: lg}
}

// Publish queues o. It blocks only while the buffer is full.
func (p *AsyncPublisher) Publish(ctx context.Context, o domain.Order) error {
	select {
	case p.queue <- o.Clone():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run delivers queued images until ctx is done.
func (p *AsyncPublisher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case o := <-p.queue:
			if err := p.next.Publish(ctx, o); err != nil {
				p.lg.Warn("change_fanout_incomplete", zap.String("order_id", o.OrderID), zap.Error(err))
			}
		}
	}
}
