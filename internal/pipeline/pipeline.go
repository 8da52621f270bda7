// Package pipeline orchestrates a debate's journey from detection to forum
// post.
//
// Two stage chains exist, keyed off how the transcript is acquired. Federal
// sittings have a professionally transcribed Hansard, so no audio is touched:
//
//	scrape_hansard → process → summarize → publish
//
// Provincial sittings are transcribed from the chamber recording:
//
//	ingest → transcribe → process → summarize → publish
//
// The dispatcher consumes one queue per worker class; on stage success it
// publishes the next stage, on failure it re-publishes the same stage after a
// backoff until the retry budget runs out and the debate parks in the error
// status.
package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/maplecivic/hansardflow/internal/align"
	"github.com/maplecivic/hansardflow/internal/hansard"
	"github.com/maplecivic/hansardflow/internal/observe"
	"github.com/maplecivic/hansardflow/internal/poller"
	"github.com/maplecivic/hansardflow/internal/publish"
	"github.com/maplecivic/hansardflow/internal/queue"
	"github.com/maplecivic/hansardflow/internal/store"
	"github.com/maplecivic/hansardflow/internal/summarize"
	"github.com/maplecivic/hansardflow/pkg/provider/asr"
)

// Store is the slice of the persistence layer the pipeline drives.
// *store.Store satisfies it; tests substitute a fake.
type Store interface {
	LegislatureByCode(ctx context.Context, code string) (*store.Legislature, error)
	CreateDebate(ctx context.Context, d *store.Debate) error
	DebateByID(ctx context.Context, id string) (*store.Debate, error)
	DebateByExternalID(ctx context.Context, legislatureID, externalID string) (*store.Debate, error)
	UpdateDebateStatus(ctx context.Context, debateID string, status store.Status) error
	MarkDebateError(ctx context.Context, debateID, msg string) (bool, error)
	ResetDebateForRetrigger(ctx context.Context, debateID string, status store.Status) error
	UpdateDebateDetected(ctx context.Context, debateID string, f store.DetectedFields) error
	UpdateDebateDuration(ctx context.Context, debateID string, seconds int) error
	MergeDebateMetadata(ctx context.Context, debateID string, patch map[string]any) error

	UpsertSpeaker(ctx context.Context, sp *store.Speaker) error
	ReplaceContributions(ctx context.Context, contribs []*store.Contribution) error
	ContributionsByDebate(ctx context.Context, debateID string) ([]*store.Contribution, error)
	UpsertTopic(ctx context.Context, t *store.Topic) error
	TopicsByDebate(ctx context.Context, debateID string) ([]*store.Topic, error)
	ReplaceTranscript(ctx context.Context, t *store.Transcript) error
	TranscriptsByDebate(ctx context.Context, debateID string) ([]*store.Transcript, error)
	InsertMediaAsset(ctx context.Context, m *store.MediaAsset) error
	LatestReadyMediaAsset(ctx context.Context, debateID string) (*store.MediaAsset, error)
	ReplaceVotes(ctx context.Context, votes []*store.Vote) error
	VotesByDebate(ctx context.Context, debateID string) ([]*store.Vote, error)

	UpsertSummary(ctx context.Context, sum *store.Summary) error
	SummaryByLanguage(ctx context.Context, debateID, language string) (*store.Summary, error)
	ReplaceCategories(ctx context.Context, debateID string, cats []*store.Category) error
	PrimaryCategory(ctx context.Context, debateID string) (*store.Category, error)
	InsertPost(ctx context.Context, p *store.Post) error
}

// Scraper acquires the federal Hansard for a sitting date.
type Scraper interface {
	ScrapeSitting(ctx context.Context, sittingDate, hansardNumber string) (*hansard.Result, error)
}

// MediaDownloader acquires audio for audio-first debates.
type MediaDownloader interface {
	Download(ctx context.Context, debate *store.Debate, legislatureCode string) (*store.MediaAsset, error)
	Cleanup(debateID string) error
}

// RecordFetcher retrieves and parses a published sitting record for speaker
// alignment.
type RecordFetcher interface {
	Fetch(ctx context.Context, hansardURL, legislatureCode string) (*align.Record, error)
}

// VoteExtractor looks up recorded divisions for a debate.
type VoteExtractor interface {
	Extract(ctx context.Context, debate *store.Debate, legislatureCode string) []store.Vote
}

// Summarizer generates one summary per language.
type Summarizer interface {
	Generate(ctx context.Context, in summarize.Input, language string) (*store.Summary, error)
}

// Categorizer files a debate under forum topics.
type Categorizer interface {
	Categorize(ctx context.Context, in summarize.Input, enSummary *store.Summary) []store.Category
}

// Config tunes the pipeline.
type Config struct {
	// PollInterval is how often a full poll of all sources is scheduled.
	// Zero disables scheduled polling.
	PollInterval time.Duration

	// AutoTriggerWindow is how recent a sitting must be for detection to
	// start its chain automatically. Older debates wait for a manual
	// retrigger. Defaults to 48h.
	AutoTriggerWindow time.Duration

	// BotUserID is the forum user the published posts belong to.
	BotUserID string
}

// Pipeline wires the stages to their dependencies and drives the chains.
type Pipeline struct {
	store    Store
	broker   queue.Broker
	registry *poller.Registry
	scraper  Scraper
	media    MediaDownloader
	asr      asr.Provider
	records  RecordFetcher
	votes    VoteExtractor
	summary  Summarizer
	category Categorizer
	forum    publish.Forum

	cfg     Config
	metrics *observe.Metrics
	log     *slog.Logger
	now     func() time.Time
}

// Deps collects the pipeline's collaborators.
type Deps struct {
	Store    Store
	Broker   queue.Broker
	Registry *poller.Registry
	Scraper  Scraper
	Media    MediaDownloader
	ASR      asr.Provider
	Records  RecordFetcher
	Votes    VoteExtractor
	Summary  Summarizer
	Category Categorizer
	Forum    publish.Forum
	Metrics  *observe.Metrics
	Log      *slog.Logger
}

// New creates a pipeline.
func New(deps Deps, cfg Config) *Pipeline {
	if cfg.AutoTriggerWindow <= 0 {
		cfg.AutoTriggerWindow = 48 * time.Hour
	}
	log := deps.Log
	if log == nil {
		log = slog.Default()
	}
	metrics := deps.Metrics
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	return &Pipeline{
		store:    deps.Store,
		broker:   deps.Broker,
		registry: deps.Registry,
		scraper:  deps.Scraper,
		media:    deps.Media,
		asr:      deps.ASR,
		records:  deps.Records,
		votes:    deps.Votes,
		summary:  deps.Summary,
		category: deps.Category,
		forum:    deps.Forum,
		cfg:      cfg,
		metrics:  metrics,
		log:      log,
		now:      time.Now,
	}
}

// languagesFor returns the transcription languages for a legislature.
// Federal sittings carry both official-language floor feeds.
func languagesFor(code string) []string {
	switch code {
	case "CA":
		return []string{"en", "fr"}
	case "QC":
		return []string{"fr"}
	default:
		return []string{"en"}
	}
}

// legislatureCode returns the debate's legislature code, defaulting to CA.
func legislatureCode(d *store.Debate) string {
	if d.Legislature != nil && d.Legislature.Code != "" {
		return d.Legislature.Code
	}
	return "CA"
}
