// Package queue defines the message broker abstraction that carries debates
// between pipeline stages.
//
// Each stage has a named queue; a message is a [Task] naming the debate and
// the stage to run. Delivery is at-least-once: a consumer acknowledges a task
// only after the stage handler returns, and workers prefetch a single task so
// a long transcription never starves the queue behind it.
package queue

import (
	"context"
	"time"
)

// Queue names, one per worker class. Hansard scraping shares the ingestion
// queue: both are the acquisition step of their respective chains.
const (
	Polling       = "polling"
	Ingestion     = "ingestion"
	Transcription = "transcription"
	Processing    = "processing"
	Summarization = "summarization"
	Publishing    = "publishing"
)

// Names lists every queue a broker must declare, in chain order.
var Names = []string{Polling, Ingestion, Transcription, Processing, Summarization, Publishing}

// Task is one unit of pipeline work.
type Task struct {
	// DebateID names the debate to advance.
	DebateID string `json:"debate_id"`

	// Stage is the pipeline stage to run (e.g. "scrape_hansard", "transcribe").
	Stage string `json:"stage"`

	// Attempt counts deliveries of this task, starting at 0. Incremented by
	// the dispatcher when it re-publishes a failed stage.
	Attempt int `json:"attempt"`

	// EnqueuedAt is when the task was published.
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// Handler processes one task. A nil return acknowledges the task; an error
// leaves retry scheduling to the dispatcher (the task itself is still acked —
// retries are re-published with a delay, not redelivered by the broker).
type Handler func(ctx context.Context, task Task) error

// Broker is the transport between pipeline stages.
//
// Implementations must be safe for concurrent use. Consume blocks until ctx
// is cancelled or the broker closes.
type Broker interface {
	// Publish enqueues the task on the named queue.
	Publish(ctx context.Context, queueName string, task Task) error

	// PublishAfter enqueues the task after the given delay. Used for stage
	// retry backoff.
	PublishAfter(ctx context.Context, queueName string, task Task, delay time.Duration) error

	// Consume delivers tasks from the named queue to handler one at a time
	// (prefetch 1) until ctx is cancelled.
	Consume(ctx context.Context, queueName string, handler Handler) error

	// Close releases broker resources. Pending delayed publishes are dropped.
	Close() error
}
