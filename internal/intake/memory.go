package intake

import (
	"context"
	"encoding/json"
	"sync"

	"restaurant-orders/internal/domain"
)

type memoryMessage struct {
	body     []byte
	receives int
}

// MemoryQueue is an in-process Queue with the same redelivery and dead-letter
// behaviour as the broker-backed one.
type MemoryQueue struct {
	mu      sync.Mutex
	pending []*memoryMessage
	dead    []domain.IntakeMessage
	signal  chan struct{}
}

func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{signal: make(chan struct{}, 1)}
}

func (q *MemoryQueue) Enqueue(ctx context.Context, order domain.Order) error {
	if err := ctx.Err(); err != nil {
		return domain.Transient("enqueue", err)
	}
	body, err := json.Marshal(domain.IntakeMessage{Order: order})
	if err != nil {
		return err
	}
	q.push(&memoryMessage{body: body})
	return nil
}

func (q *MemoryQueue) push(m *memoryMessage) {
	q.mu.Lock()
	q.pending = append(q.pending, m)
	q.mu.Unlock()
	select {
	case q.signal <- struct{}{}:
	default:
	}
}

func (q *MemoryQueue) pop() (*memoryMessage, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) == 0 {
		return nil, false
	}
	m := q.pending[0]
	q.pending = q.pending[1:]
	return m, true
}

func (q *MemoryQueue) Deliveries(ctx context.Context) (<-chan Delivery, func(), error) {
	out := make(chan Delivery)
	go func() {
		defer close(out)
		for {
			m, ok := q.pop()
			if !ok {
				select {
				case <-q.signal:
					continue
				case <-ctx.Done():
					return
				}
			}
			m.receives++
			select {
			case out <- &memoryDelivery{q: q, m: m}:
			case <-ctx.Done():
				m.receives--
				q.push(m)
				return
			}
		}
	}()
	return out, func() {}, nil
}

// Len is the number of messages waiting for delivery.
func (q *MemoryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// DeadLetters returns the messages diverted to the dead-letter path.
func (q *MemoryQueue) DeadLetters() []domain.IntakeMessage {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]domain.IntakeMessage, len(q.dead))
	copy(out, q.dead)
	return out
}

type memoryDelivery struct {
	q    *MemoryQueue
	m    *memoryMessage
	once sync.Once
}

func (d *memoryDelivery) Message() (domain.IntakeMessage, error) {
	var msg domain.IntakeMessage
	if err := json.Unmarshal(d.m.body, &msg); err != nil {
		return msg, err
	}
	msg.ReceiveCount = d.m.receives
	return msg, nil
}

func (d *memoryDelivery) Ack() error {
	return nil
}

func (d *memoryDelivery) Nack(requeue bool) error {
	d.once.Do(func() {
		if requeue {
			d.q.push(d.m)
			return
		}
		msg, _ := d.Message()
		d.q.mu.Lock()
		d.q.dead = append(d.q.dead, msg)
		d.q.mu.Unlock()
	})
	return nil
}
