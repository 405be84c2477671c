package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"restaurant-orders/internal/domain"
	"restaurant-orders/internal/microservices/notificator/repository"
)

// Transport delivers one encoded message to one live connection. It returns an
// error wrapping domain.ErrStaleSubscriber when the peer is gone for good.
type Transport interface {
	Send(ctx context.Context, connectionID string, msg []byte) error
}

type FanoutInterface interface {
	Publish(ctx context.Context, o domain.Order) error
}

// Fanout pushes order images to every registered connection.
type Fanout struct {
	registry    repository.RegistryInterface
	transport   Transport
	concurrency int
	lg          *zap.Logger
}

func NewFanout(registry repository.RegistryInterface, transport Transport, concurrency int, lg *zap.Logger) *Fanout {
	if concurrency <= 0 {
		concurrency = 32
	}
	if lg == nil {
		lg = zap.NewNop()
	}
	return &Fanout{registry: registry, transport: transport, concurrency: concurrency, lg: lg}
}

// Publish delivers o to all connections in parallel. Stale connections are
// unregistered and never reported; other delivery failures are returned together
// and leave the connection registered.
func (f *Fanout) Publish(ctx context.Context, o domain.Order) error {
	ids, err := f.registry.ListAll(ctx)
	if err != nil {
		return fmt.Errorf("list connections: %w", err)
	}
	if len(ids) == 0 {
		return nil
	}

	body, err := json.Marshal(domain.NewStreamMessage(o))
	if err != nil {
		return err
	}

	var (
		mu   sync.Mutex
		errs error
	)
	g := new(errgroup.Group)
	g.SetLimit(f.concurrency)
	for _, id := range ids {
		id := id
		g.Go(func() error {
			err := f.deliver(ctx, id, body)
			if err != nil {
				mu.Lock()
				errs = multierr.Append(errs, err)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return errs
}

func (f *Fanout) deliver(ctx context.Context, id string, body []byte) error {
	err := f.transport.Send(ctx, id, body)
	if err == nil {
		return nil
	}
	if !errors.Is(err, domain.ErrStaleSubscriber) {
		f.lg.Warn("subscriber_delivery_failed", zap.String("connection_id", id), zap.Error(err))
		return fmt.Errorf("deliver to %s: %w", id, err)
	}

	if uerr := f.registry.Unregister(ctx, id); uerr != nil {
		f.lg.Error("subscriber_prune_failed", zap.String("connection_id", id), zap.Error(uerr))
		return nil
	}
	f.lg.Info("subscriber_pruned", zap.String("connection_id", id))
	return nil
}
