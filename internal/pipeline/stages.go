package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/maplecivic/hansardflow/internal/queue"
	"github.com/maplecivic/hansardflow/internal/store"
)

// Stage names carried in queue tasks.
const (
	StageScrapeHansard = "scrape_hansard"
	StageIngest        = "ingest"
	StageTranscribe    = "transcribe"
	StageProcess       = "process"
	StageSummarize     = "summarize"
	StagePublish       = "publish"
)

// stageDef binds a stage name to its queue, entering status and retry
// policy.
type stageDef struct {
	name    string
	queue   string
	status  store.Status
	backoff time.Duration

	// maxRetries is the per-stage re-publish cap. Transcription gets a
	// smaller budget: a multi-hour recognition run that failed twice is not
	// going to succeed on the third try.
	maxRetries int
}

var stageDefs = map[string]stageDef{
	StageScrapeHansard: {StageScrapeHansard, queue.Ingestion, store.StatusScrapingHansard, 120 * time.Second, 3},
	StageIngest:        {StageIngest, queue.Ingestion, store.StatusIngesting, 60 * time.Second, 3},
	StageTranscribe:    {StageTranscribe, queue.Transcription, store.StatusTranscribing, 120 * time.Second, 2},
	StageProcess:       {StageProcess, queue.Processing, store.StatusProcessing, 60 * time.Second, 3},
	StageSummarize:     {StageSummarize, queue.Summarization, store.StatusSummarizing, 60 * time.Second, 3},
	StagePublish:       {StagePublish, queue.Publishing, store.StatusPublishing, 60 * time.Second, 3},
}

// transcriptFirstChain is the federal chain: the official Hansard is the
// transcript.
var transcriptFirstChain = []string{StageScrapeHansard, StageProcess, StageSummarize, StagePublish}

// audioFirstChain is the provincial chain: transcribe the recording.
var audioFirstChain = []string{StageIngest, StageTranscribe, StageProcess, StageSummarize, StagePublish}

// chainFor picks the acquisition chain for a debate.
func chainFor(d *store.Debate) []string {
	if d.Legislature != nil && d.Legislature.GovernmentLevel == store.LevelFederal {
		return transcriptFirstChain
	}
	return audioFirstChain
}

// statusStage maps a debate status to the stage that re-runs it.
var statusStage = map[store.Status]string{
	store.StatusDetected:        "",
	store.StatusScrapingHansard: StageScrapeHansard,
	store.StatusIngesting:       StageIngest,
	store.StatusTranscribing:    StageTranscribe,
	store.StatusProcessing:      StageProcess,
	store.StatusSummarizing:     StageSummarize,
	store.StatusCategorizing:    StageSummarize,
	store.StatusPublishing:      StagePublish,
}

// stageForStatus returns the stage to enter for a status. The empty stage
// means start of chain. Unknown statuses (scheduled, published, error) also
// restart from the beginning.
func stageForStatus(status store.Status) string {
	return statusStage[status]
}

// nextStage returns the stage following name in the chain, or "" at the end.
func nextStage(chain []string, name string) string {
	for i, s := range chain {
		if s == name && i+1 < len(chain) {
			return chain[i+1]
		}
	}
	return ""
}

// startStage returns the first stage of the chain at or after fromStage.
func startStage(chain []string, fromStage string) string {
	if fromStage == "" {
		return chain[0]
	}
	for _, s := range chain {
		if s == fromStage {
			return s
		}
	}
	return chain[0]
}

// TriggerDebate enters the debate's chain at the stage matching fromStatus
// and lets the dispatcher carry it forward from there.
func (p *Pipeline) TriggerDebate(ctx context.Context, debateID string, fromStatus store.Status) error {
	debate, err := p.store.DebateByID(ctx, debateID)
	if err != nil {
		return fmt.Errorf("pipeline: trigger: %w", err)
	}
	stage := startStage(chainFor(debate), stageForStatus(fromStatus))
	if err := p.publishStage(ctx, debateID, stage, 0); err != nil {
		return err
	}
	p.log.Info("pipeline triggered", "debate_id", debateID, "from_status", fromStatus, "stage", stage)
	return nil
}

// Retrigger resets an errored or stuck debate to the given status and
// re-enters the chain there. The retry counter is not reset; see
// store.ResetDebateForRetrigger.
func (p *Pipeline) Retrigger(ctx context.Context, debateID string, status store.Status) error {
	if err := p.store.ResetDebateForRetrigger(ctx, debateID, status); err != nil {
		return fmt.Errorf("pipeline: retrigger: %w", err)
	}
	return p.TriggerDebate(ctx, debateID, status)
}

func (p *Pipeline) publishStage(ctx context.Context, debateID, stage string, attempt int) error {
	def, ok := stageDefs[stage]
	if !ok {
		return fmt.Errorf("pipeline: unknown stage %q", stage)
	}
	task := queue.Task{
		DebateID:   debateID,
		Stage:      stage,
		Attempt:    attempt,
		EnqueuedAt: p.now(),
	}
	if err := p.broker.Publish(ctx, def.queue, task); err != nil {
		return fmt.Errorf("pipeline: publish stage %s: %w", stage, err)
	}
	return nil
}
