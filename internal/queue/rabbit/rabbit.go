// Package rabbit provides a RabbitMQ-backed implementation of queue.Broker
// using github.com/rabbitmq/amqp091-go.
//
// Queues are durable and declared on connect. Publishes use confirm mode so a
// dropped connection surfaces as an error rather than silent message loss.
// Delayed publishes (retry backoff) are implemented with a per-message TTL on
// a wait queue whose dead-letter target is the real queue.
package rabbit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/maplecivic/hansardflow/internal/queue"
)

// Compile-time assertion that Broker satisfies queue.Broker.
var _ queue.Broker = (*Broker)(nil)

// publishTimeout bounds how long a confirm-mode publish may wait.
const publishTimeout = 30 * time.Second

// Broker is a RabbitMQ-backed queue.Broker.
type Broker struct {
	url string

	mu         sync.Mutex
	conn       *amqp.Connection
	pubChannel *amqp.Channel
	closed     bool
}

// Dial connects to the RabbitMQ server at url (amqp://...), declares all
// pipeline queues plus their retry wait-queues, and returns a ready Broker.
func Dial(url string) (*Broker, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("rabbit: dial %q: %w", redact(url), err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("rabbit: open publish channel: %w", err)
	}
	if err := ch.Confirm(false); err != nil {
		conn.Close()
		return nil, fmt.Errorf("rabbit: enable confirm mode: %w", err)
	}

	b := &Broker{url: url, conn: conn, pubChannel: ch}
	if err := b.declareQueues(ch); err != nil {
		conn.Close()
		return nil, err
	}
	return b, nil
}

// declareQueues declares each pipeline queue and its dead-letter wait queue.
func (b *Broker) declareQueues(ch *amqp.Channel) error {
	for _, name := range queue.Names {
		if _, err := ch.QueueDeclare(name, true, false, false, false, nil); err != nil {
			return fmt.Errorf("rabbit: declare queue %q: %w", name, err)
		}
		// Messages published here with a TTL dead-letter into the real queue
		// when the TTL expires. This is how PublishAfter delays delivery.
		waitArgs := amqp.Table{
			"x-dead-letter-exchange":    "",
			"x-dead-letter-routing-key": name,
		}
		if _, err := ch.QueueDeclare(waitName(name), true, false, false, false, waitArgs); err != nil {
			return fmt.Errorf("rabbit: declare wait queue %q: %w", waitName(name), err)
		}
	}
	return nil
}

func waitName(queueName string) string {
	return queueName + ".wait"
}

// Publish implements queue.Broker.
func (b *Broker) Publish(ctx context.Context, queueName string, task queue.Task) error {
	return b.publish(ctx, queueName, task, 0)
}

// PublishAfter implements queue.Broker using a TTL'd wait queue.
func (b *Broker) PublishAfter(ctx context.Context, queueName string, task queue.Task, delay time.Duration) error {
	if delay <= 0 {
		return b.publish(ctx, queueName, task, 0)
	}
	return b.publish(ctx, waitName(queueName), task, delay)
}

func (b *Broker) publish(ctx context.Context, routingKey string, task queue.Task, ttl time.Duration) error {
	if task.EnqueuedAt.IsZero() {
		task.EnqueuedAt = time.Now().UTC()
	}
	body, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("rabbit: marshal task: %w", err)
	}

	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
	}
	if ttl > 0 {
		msg.Expiration = strconv.FormatInt(ttl.Milliseconds(), 10)
	}

	b.mu.Lock()
	ch := b.pubChannel
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return fmt.Errorf("rabbit: broker is closed")
	}

	pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	confirm, err := ch.PublishWithDeferredConfirmWithContext(pubCtx, "", routingKey, false, false, msg)
	if err != nil {
		return fmt.Errorf("rabbit: publish to %q: %w", routingKey, err)
	}
	ok, err := confirm.WaitContext(pubCtx)
	if err != nil {
		return fmt.Errorf("rabbit: confirm publish to %q: %w", routingKey, err)
	}
	if !ok {
		return fmt.Errorf("rabbit: publish to %q nacked by broker", routingKey)
	}
	return nil
}

// Consume implements queue.Broker. Each consumer gets its own channel with a
// prefetch of 1 so a worker holds at most one in-flight task. The task is
// acked after the handler returns regardless of handler error: retry
// scheduling belongs to the dispatcher, not broker redelivery.
func (b *Broker) Consume(ctx context.Context, queueName string, handler queue.Handler) error {
	b.mu.Lock()
	conn := b.conn
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return fmt.Errorf("rabbit: broker is closed")
	}

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("rabbit: open consumer channel for %q: %w", queueName, err)
	}
	defer ch.Close()

	if err := ch.Qos(1, 0, false); err != nil {
		return fmt.Errorf("rabbit: set qos on %q: %w", queueName, err)
	}

	deliveries, err := ch.ConsumeWithContext(ctx, queueName, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("rabbit: consume %q: %w", queueName, err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("rabbit: delivery channel for %q closed", queueName)
			}

			var task queue.Task
			if err := json.Unmarshal(d.Body, &task); err != nil {
				slog.Error("rabbit: dropping malformed task", "queue", queueName, "error", err)
				if err := d.Nack(false, false); err != nil {
					slog.Warn("rabbit: nack failed", "queue", queueName, "error", err)
				}
				continue
			}

			handlerErr := handler(ctx, task)
			if err := d.Ack(false); err != nil {
				slog.Warn("rabbit: ack failed", "queue", queueName, "error", err)
			}
			if handlerErr != nil {
				slog.Error("rabbit: task handler failed",
					"queue", queueName, "debate_id", task.DebateID, "stage", task.Stage, "error", handlerErr)
			}
		}
	}
}

// IsClosed reports whether the broker can no longer reach RabbitMQ, either
// because Close was called or the connection dropped. Used by readiness
// probes.
func (b *Broker) IsClosed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return true
	}
	return b.conn == nil || b.conn.IsClosed()
}

// Close implements queue.Broker.
func (b *Broker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	if b.pubChannel != nil {
		b.pubChannel.Close()
	}
	if b.conn != nil {
		return b.conn.Close()
	}
	return nil
}

// redact strips credentials from an AMQP URL for log/error output.
func redact(url string) string {
	at := -1
	scheme := -1
	for i := 0; i+2 < len(url); i++ {
		if url[i] == ':' && url[i+1] == '/' && url[i+2] == '/' {
			scheme = i + 3
			break
		}
	}
	if scheme < 0 {
		return url
	}
	for i := scheme; i < len(url); i++ {
		if url[i] == '@' {
			at = i
		}
		if url[i] == '/' {
			break
		}
	}
	if at < 0 {
		return url
	}
	return url[:scheme] + "***" + url[at:]
}
