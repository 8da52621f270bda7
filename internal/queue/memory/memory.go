// Package memory provides an in-process implementation of queue.Broker.
//
// It backs single-node deployments that run without RabbitMQ and all queue
// tests. Semantics match the rabbit broker: per-queue FIFO ordering, one
// in-flight task per consumer, delayed publishes via timers.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/maplecivic/hansardflow/internal/queue"
)

// Compile-time assertion that Broker satisfies queue.Broker.
var _ queue.Broker = (*Broker)(nil)

// queueBuffer is the per-queue channel capacity. Polling bursts can enqueue a
// week of sittings at once; 1024 leaves ample headroom.
const queueBuffer = 1024

// Broker is a channel-backed queue.Broker.
type Broker struct {
	mu     sync.Mutex
	queues map[string]chan queue.Task
	timers map[*time.Timer]struct{}
	closed bool
}

// New creates an in-memory broker with all pipeline queues declared.
func New() *Broker {
	b := &Broker{
		queues: make(map[string]chan queue.Task, len(queue.Names)),
		timers: make(map[*time.Timer]struct{}),
	}
	for _, name := range queue.Names {
		b.queues[name] = make(chan queue.Task, queueBuffer)
	}
	return b
}

func (b *Broker) queueChan(name string) (chan queue.Task, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, fmt.Errorf("memory: broker is closed")
	}
	ch, ok := b.queues[name]
	if !ok {
		// Unknown queues are declared on first use, mirroring the lazy
		// QueueDeclare behaviour of the rabbit broker.
		ch = make(chan queue.Task, queueBuffer)
		b.queues[name] = ch
	}
	return ch, nil
}

// Publish implements queue.Broker.
func (b *Broker) Publish(ctx context.Context, queueName string, task queue.Task) error {
	if task.EnqueuedAt.IsZero() {
		task.EnqueuedAt = time.Now().UTC()
	}
	ch, err := b.queueChan(queueName)
	if err != nil {
		return err
	}
	select {
	case ch <- task:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// PublishAfter implements queue.Broker with a timer. The delayed publish is
// dropped if the broker closes first.
func (b *Broker) PublishAfter(ctx context.Context, queueName string, task queue.Task, delay time.Duration) error {
	if delay <= 0 {
		return b.Publish(ctx, queueName, task)
	}
	if _, err := b.queueChan(queueName); err != nil {
		return err
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return fmt.Errorf("memory: broker is closed")
	}
	var timer *time.Timer
	timer = time.AfterFunc(delay, func() {
		b.mu.Lock()
		delete(b.timers, timer)
		closed := b.closed
		b.mu.Unlock()
		if closed {
			return
		}
		// Background context: the caller's ctx typically expired long ago.
		_ = b.Publish(context.Background(), queueName, task)
	})
	b.timers[timer] = struct{}{}
	b.mu.Unlock()
	return nil
}

// Consume implements queue.Broker. Tasks are delivered one at a time until
// ctx is cancelled.
func (b *Broker) Consume(ctx context.Context, queueName string, handler queue.Handler) error {
	ch, err := b.queueChan(queueName)
	if err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case task := <-ch:
			// Handler errors are the dispatcher's concern; the in-memory
			// broker just keeps delivering.
			_ = handler(ctx, task)
		}
	}
}

// Len reports the number of tasks currently waiting on the named queue.
// Intended for tests and the status endpoint.
func (b *Broker) Len(queueName string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ch, ok := b.queues[queueName]; ok {
		return len(ch)
	}
	return 0
}

// Close implements queue.Broker. Pending delayed publishes are cancelled.
func (b *Broker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	for t := range b.timers {
		t.Stop()
	}
	b.timers = nil
	return nil
}
