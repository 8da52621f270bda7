package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"

	"github.com/maplecivic/hansardflow/internal/observe"
	"github.com/maplecivic/hansardflow/internal/queue"
	"github.com/maplecivic/hansardflow/internal/store"
)

// terminalError marks a stage failure that no retry will fix, like a sitting
// with no recording anywhere. The debate parks immediately.
type terminalError struct{ err error }

func (t *terminalError) Error() string { return t.err.Error() }
func (t *terminalError) Unwrap() error { return t.err }

func terminal(err error) error { return &terminalError{err: err} }

func isTerminal(err error) bool {
	var t *terminalError
	return errors.As(err, &t)
}

// Run starts the dispatcher: one consumer per queue plus the poll scheduler.
// It blocks until ctx is cancelled.
func (p *Pipeline) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return p.broker.Consume(ctx, queue.Polling, p.handlePollTask)
	})
	for _, name := range []string{
		queue.Ingestion, queue.Transcription, queue.Processing,
		queue.Summarization, queue.Publishing,
	} {
		name := name
		g.Go(func() error {
			return p.broker.Consume(ctx, name, p.handleStageTask)
		})
	}
	g.Go(func() error {
		return p.runScheduler(ctx)
	})

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// runScheduler publishes a full-poll task on startup and then every poll
// interval. A zero interval disables scheduled polling; the API can still
// trigger polls.
func (p *Pipeline) runScheduler(ctx context.Context) error {
	if p.cfg.PollInterval <= 0 {
		<-ctx.Done()
		return ctx.Err()
	}

	if err := p.enqueuePoll(ctx, ""); err != nil {
		p.log.Error("failed to enqueue startup poll", "error", err)
	}

	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := p.enqueuePoll(ctx, ""); err != nil {
				p.log.Error("failed to enqueue scheduled poll", "error", err)
			}
		}
	}
}

// EnqueuePoll queues a poll of one legislature, or of all sources when code
// is empty.
func (p *Pipeline) EnqueuePoll(ctx context.Context, code string) error {
	return p.enqueuePoll(ctx, code)
}

func (p *Pipeline) enqueuePoll(ctx context.Context, code string) error {
	task := queue.Task{DebateID: code, Stage: "poll", EnqueuedAt: p.now()}
	if err := p.broker.Publish(ctx, queue.Polling, task); err != nil {
		return fmt.Errorf("pipeline: enqueue poll: %w", err)
	}
	return nil
}

// handlePollTask runs a poll. The task's DebateID field carries the
// legislature code, empty meaning all sources.
func (p *Pipeline) handlePollTask(ctx context.Context, task queue.Task) error {
	p.metrics.ActiveJobs.Add(ctx, 1, metric.WithAttributes(observe.Attr("queue", queue.Polling)))
	defer p.metrics.ActiveJobs.Add(ctx, -1, metric.WithAttributes(observe.Attr("queue", queue.Polling)))

	if task.DebateID == "" {
		p.PollAll(ctx)
		return nil
	}
	if _, err := p.PollSource(ctx, task.DebateID); err != nil {
		p.log.Error("poll failed", "legislature", task.DebateID, "error", err)
	}
	return nil
}

// handleStageTask runs one stage of one debate's chain. It always returns
// nil: a stage failure is handled by the retry ladder, never by broker
// redelivery.
func (p *Pipeline) handleStageTask(ctx context.Context, task queue.Task) error {
	def, ok := stageDefs[task.Stage]
	if !ok {
		p.log.Error("unknown stage in task, dropping", "stage", task.Stage, "debate_id", task.DebateID)
		return nil
	}

	p.metrics.ActiveJobs.Add(ctx, 1, metric.WithAttributes(observe.Attr("queue", def.queue)))
	defer p.metrics.ActiveJobs.Add(ctx, -1, metric.WithAttributes(observe.Attr("queue", def.queue)))

	start := p.now()
	err := p.runStage(ctx, task.DebateID, def)
	elapsed := p.now().Sub(start)

	if err == nil {
		p.metrics.RecordStage(ctx, def.name, "ok", elapsed)
		p.advance(ctx, task.DebateID, def)
		return nil
	}

	p.log.Error("stage failed", "stage", def.name, "debate_id", task.DebateID,
		"attempt", task.Attempt, "error", err)

	canRetry, merr := p.store.MarkDebateError(ctx, task.DebateID, err.Error())
	if merr != nil {
		p.log.Error("failed to record stage error", "debate_id", task.DebateID, "error", merr)
		p.metrics.RecordStage(ctx, def.name, "error", elapsed)
		return nil
	}

	if isTerminal(err) {
		if uerr := p.store.UpdateDebateStatus(ctx, task.DebateID, store.StatusError); uerr != nil {
			p.log.Error("failed to park debate", "debate_id", task.DebateID, "error", uerr)
		}
		p.metrics.RecordStage(ctx, def.name, "error", elapsed)
		return nil
	}

	if canRetry && task.Attempt < def.maxRetries {
		p.metrics.RecordStage(ctx, def.name, "retry", elapsed)
		p.metrics.RecordStageRetry(ctx, def.name)
		retry := task
		retry.Attempt++
		retry.EnqueuedAt = p.now()
		if perr := p.broker.PublishAfter(ctx, def.queue, retry, def.backoff); perr != nil {
			p.log.Error("failed to schedule stage retry", "debate_id", task.DebateID, "error", perr)
		}
		return nil
	}

	// The global budget may have room, but this stage's cap is spent.
	if canRetry {
		if uerr := p.store.UpdateDebateStatus(ctx, task.DebateID, store.StatusError); uerr != nil {
			p.log.Error("failed to park debate", "debate_id", task.DebateID, "error", uerr)
		}
	}
	p.metrics.RecordStage(ctx, def.name, "error", elapsed)
	return nil
}

// runStage loads the debate and executes the stage handler.
func (p *Pipeline) runStage(ctx context.Context, debateID string, def stageDef) error {
	debate, err := p.store.DebateByID(ctx, debateID)
	if err != nil {
		return fmt.Errorf("pipeline: load debate: %w", err)
	}
	if err := p.store.UpdateDebateStatus(ctx, debateID, def.status); err != nil {
		return fmt.Errorf("pipeline: enter stage %s: %w", def.name, err)
	}
	debate.Status = def.status

	switch def.name {
	case StageScrapeHansard:
		return p.runScrapeHansard(ctx, debate)
	case StageIngest:
		return p.runIngest(ctx, debate)
	case StageTranscribe:
		return p.runTranscribe(ctx, debate)
	case StageProcess:
		return p.runProcess(ctx, debate)
	case StageSummarize:
		return p.runSummarize(ctx, debate)
	case StagePublish:
		return p.runPublish(ctx, debate)
	}
	return fmt.Errorf("pipeline: stage %q has no handler", def.name)
}

// advance publishes the next stage in the debate's chain.
func (p *Pipeline) advance(ctx context.Context, debateID string, def stageDef) {
	debate, err := p.store.DebateByID(ctx, debateID)
	if err != nil {
		p.log.Error("failed to reload debate for advance", "debate_id", debateID, "error", err)
		return
	}
	next := nextStage(chainFor(debate), def.name)
	if next == "" {
		return
	}
	if err := p.publishStage(ctx, debateID, next, 0); err != nil {
		p.log.Error("failed to publish next stage", "debate_id", debateID, "stage", next, "error", err)
	}
}
