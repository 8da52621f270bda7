// Package app wires the HansardFlow subsystems into a running service.
//
// The App struct owns the full lifecycle: New connects the database and the
// broker, builds the providers and the pipeline from config, Run executes the
// dispatcher and the HTTP server, and Shutdown tears everything down in order.
//
// For testing, inject doubles via functional options (WithDB, WithBroker,
// WithASRProvider, ...). When an option is not provided, New creates the real
// implementation from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"

	"github.com/maplecivic/hansardflow/internal/align"
	"github.com/maplecivic/hansardflow/internal/config"
	"github.com/maplecivic/hansardflow/internal/hansard"
	"github.com/maplecivic/hansardflow/internal/health"
	"github.com/maplecivic/hansardflow/internal/httpapi"
	"github.com/maplecivic/hansardflow/internal/media"
	"github.com/maplecivic/hansardflow/internal/observe"
	"github.com/maplecivic/hansardflow/internal/pipeline"
	"github.com/maplecivic/hansardflow/internal/poller"
	"github.com/maplecivic/hansardflow/internal/publish"
	"github.com/maplecivic/hansardflow/internal/queue"
	"github.com/maplecivic/hansardflow/internal/queue/memory"
	"github.com/maplecivic/hansardflow/internal/queue/rabbit"
	"github.com/maplecivic/hansardflow/internal/resilience"
	"github.com/maplecivic/hansardflow/internal/store"
	"github.com/maplecivic/hansardflow/internal/summarize"
	"github.com/maplecivic/hansardflow/internal/votes"
	"github.com/maplecivic/hansardflow/pkg/provider/asr"
	asrmock "github.com/maplecivic/hansardflow/pkg/provider/asr/mock"
	"github.com/maplecivic/hansardflow/pkg/provider/asr/whisper"
	"github.com/maplecivic/hansardflow/pkg/provider/llm"
	"github.com/maplecivic/hansardflow/pkg/provider/llm/anyllm"
	"github.com/maplecivic/hansardflow/pkg/provider/llm/openai"
)

// httpShutdownTimeout bounds the graceful drain of in-flight API requests.
const httpShutdownTimeout = 10 * time.Second

// App owns all subsystem lifetimes and runs the debate pipeline service.
type App struct {
	cfg *config.Config
	log *slog.Logger

	// Subsystems — initialised in New, torn down in Shutdown.
	pool     *pgxpool.Pool
	db       store.DB
	store    *store.Store
	broker   queue.Broker
	registry *poller.Registry
	asrProv  asr.Provider
	llmProv  llm.Provider
	forum    publish.Forum
	metrics  *observe.Metrics
	pipeline *pipeline.Pipeline
	httpSrv  *http.Server

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithDB injects a database handle instead of dialling cfg.Database.DSN.
func WithDB(db store.DB) Option {
	return func(a *App) { a.db = db }
}

// WithBroker injects a broker instead of creating one from config.
func WithBroker(b queue.Broker) Option {
	return func(a *App) { a.broker = b }
}

// WithASRProvider injects a speech recognition provider.
func WithASRProvider(p asr.Provider) Option {
	return func(a *App) { a.asrProv = p }
}

// WithLLMProvider injects a summarisation model provider.
func WithLLMProvider(p llm.Provider) Option {
	return func(a *App) { a.llmProv = p }
}

// WithForum injects a forum client instead of creating an HTTP one.
func WithForum(f publish.Forum) Option {
	return func(a *App) { a.forum = f }
}

// New creates an App by wiring all subsystems together. Initialisation is
// synchronous: database connect + migrate, legislature seeding, broker
// connect, provider construction, and HTTP route registration all happen
// before New returns.
func New(ctx context.Context, cfg *config.Config, log *slog.Logger, opts ...Option) (*App, error) {
	if log == nil {
		log = slog.Default()
	}
	a := &App{cfg: cfg, log: log}
	for _, o := range opts {
		o(a)
	}

	if err := a.initStore(ctx); err != nil {
		return nil, fmt.Errorf("app: init store: %w", err)
	}
	if err := a.initBroker(); err != nil {
		return nil, fmt.Errorf("app: init broker: %w", err)
	}
	if err := a.initProviders(); err != nil {
		return nil, fmt.Errorf("app: init providers: %w", err)
	}
	if err := a.initPipeline(); err != nil {
		return nil, fmt.Errorf("app: init pipeline: %w", err)
	}
	a.initHTTP()

	return a, nil
}

// initStore connects to PostgreSQL, runs the migration, and seeds the
// configured legislatures.
func (a *App) initStore(ctx context.Context) error {
	if a.db == nil {
		pool, err := pgxpool.New(ctx, a.cfg.Database.DSN)
		if err != nil {
			return fmt.Errorf("connect database: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return fmt.Errorf("ping database: %w", err)
		}
		a.pool = pool
		a.db = pool
		a.closers = append(a.closers, func() error {
			pool.Close()
			return nil
		})
	}

	a.store = store.New(a.db, store.WithMaxRetries(a.cfg.Pipeline.MaxRetries))
	if err := a.store.Migrate(ctx); err != nil {
		return err
	}

	for _, lc := range a.cfg.Legislatures {
		leg := &store.Legislature{
			Code:            lc.Code,
			Name:            lc.Name,
			GovernmentLevel: configLevel(lc.GovernmentLevel),
		}
		if _, err := a.store.UpsertLegislature(ctx, leg); err != nil {
			return fmt.Errorf("seed legislature %q: %w", lc.Code, err)
		}
		a.log.Info("legislature registered", "code", lc.Code, "level", leg.GovernmentLevel)
	}
	return nil
}

// initBroker connects to RabbitMQ, or falls back to the in-process broker
// when no AMQP URL is configured.
func (a *App) initBroker() error {
	if a.broker != nil {
		return nil
	}
	if a.cfg.Broker.URL != "" {
		b, err := rabbit.Dial(a.cfg.Broker.URL)
		if err != nil {
			return err
		}
		a.broker = b
	} else {
		a.log.Warn("no broker url configured, using in-process queues")
		a.broker = memory.New()
	}
	a.closers = append(a.closers, a.broker.Close)
	return nil
}

// initProviders builds the ASR and LLM providers and the forum client from
// config, unless they were injected.
func (a *App) initProviders() error {
	if a.asrProv == nil {
		prov, err := a.buildASR()
		if err != nil {
			return err
		}
		a.asrProv = prov
	}

	if a.llmProv == nil {
		primary, err := buildLLM(a.cfg.LLM)
		if err != nil {
			return err
		}
		// Every LLM call goes through a circuit breaker so a provider outage
		// trips fast instead of burning the retry budget of every debate.
		fb := resilience.NewLLMFallback(primary, a.cfg.LLM.Provider, resilience.FallbackConfig{
			CircuitBreaker: resilience.CircuitBreakerConfig{
				MaxFailures:  5,
				ResetTimeout: 2 * time.Minute,
			},
		})
		a.llmProv = fb
	}

	if a.forum == nil {
		a.forum = publish.NewHTTPForum(a.cfg.Forum.BaseURL, a.cfg.Forum.APIKey,
			publish.WithForumLogger(a.log))
	}
	return nil
}

// buildASR constructs the configured speech recognition backend.
func (a *App) buildASR() (asr.Provider, error) {
	switch a.cfg.ASR.Provider {
	case config.ASRWhisperNative:
		var opts []whisper.NativeOption
		if a.cfg.ASR.ModelName != "" {
			opts = append(opts, whisper.WithNativeModelName(a.cfg.ASR.ModelName))
		}
		prov, err := whisper.NewNative(a.cfg.ASR.ModelPath, opts...)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, prov.Close)
		return prov, nil

	case config.ASRWhisperServer:
		var opts []whisper.ServerOption
		if a.cfg.ASR.ModelName != "" {
			opts = append(opts, whisper.WithServerModel(a.cfg.ASR.ModelName))
		}
		return whisper.NewServer(a.cfg.ASR.ServerURL, opts...)

	case config.ASRMock:
		a.log.Warn("using mock ASR provider, transcripts will be empty")
		return &asrmock.Provider{Result: &asr.Result{Model: "mock"}}, nil

	default:
		return nil, fmt.Errorf("unknown asr provider %q", a.cfg.ASR.Provider)
	}
}

// buildLLM constructs the summarisation model client. "openai-direct" uses
// the native OpenAI SDK adapter; everything else goes through any-llm-go.
func buildLLM(cfg config.LLMConfig) (llm.Provider, error) {
	if cfg.Provider == "openai-direct" {
		return openai.New(cfg.APIKey, cfg.Model)
	}
	var opts []anyllmlib.Option
	if cfg.APIKey != "" {
		opts = append(opts, anyllmlib.WithAPIKey(cfg.APIKey))
	}
	return anyllm.New(cfg.Provider, cfg.Model, opts...)
}

// initPipeline assembles the stage pipeline from the providers and config.
func (a *App) initPipeline() error {
	metrics, err := observe.NewMetrics(otel.GetMeterProvider())
	if err != nil {
		return fmt.Errorf("create metrics: %w", err)
	}
	a.metrics = metrics

	a.registry = buildRegistry(a.cfg.Legislatures, a.log)

	downloader := media.NewDownloader(a.cfg.Media.Root,
		media.WithLogger(a.log),
		media.WithBinaries(a.cfg.Media.FFmpegPath, a.cfg.Media.YtDlpPath))
	usage := downloader.StorageUsage()
	a.log.Info("media storage", "root", a.cfg.Media.Root,
		"debates", usage.DebateCount, "bytes", usage.TotalBytes)

	a.pipeline = pipeline.New(pipeline.Deps{
		Store:    a.store,
		Broker:   a.broker,
		Registry: a.registry,
		Scraper:  hansard.NewScraper(hansard.WithLogger(a.log)),
		Media:    downloader,
		ASR:      a.asrProv,
		Records:  align.NewRecordFetcher(),
		Votes:    votes.NewExtractor(votes.WithLogger(a.log)),
		Summary:  summarize.NewSummarizer(a.llmProv, a.log),
		Category: summarize.NewCategorizer(a.llmProv, a.log),
		Forum:    a.forum,
		Metrics:  a.metrics,
		Log:      a.log,
	}, pipeline.Config{
		PollInterval: time.Duration(a.cfg.Pipeline.PollIntervalMinutes) * time.Minute,
		BotUserID:    a.cfg.Forum.BotUserID,
	})
	return nil
}

// buildRegistry registers a poll source per configured legislature. Unknown
// codes are skipped with a warning so one typo doesn't take the service down.
func buildRegistry(legs []config.LegislatureConfig, log *slog.Logger) *poller.Registry {
	r := poller.NewRegistry()
	for _, lc := range legs {
		switch lc.Code {
		case "CA":
			r.Register(poller.NewFederalSource(log))
		case "ON":
			r.Register(poller.NewOntarioSource(log))
		case "QC":
			r.Register(poller.NewQuebecSource(log))
		default:
			log.Warn("no poll source for legislature, skipping", "code", lc.Code)
		}
	}
	return r
}

// initHTTP builds the admin API, health, and metrics routes.
func (a *App) initHTTP() {
	mux := http.NewServeMux()

	api := httpapi.New(a.store, a.pipeline, a.cfg.APIKey, a.log)
	api.Register(mux)

	checks := health.New(
		health.Checker{Name: "database", Check: func(ctx context.Context) error {
			_, err := a.db.Exec(ctx, "SELECT 1")
			return err
		}},
		health.Checker{Name: "broker", Check: func(context.Context) error {
			if c, ok := a.broker.(interface{ IsClosed() bool }); ok && c.IsClosed() {
				return fmt.Errorf("broker connection closed")
			}
			return nil
		}},
		health.Checker{Name: "sources", Check: func(context.Context) error {
			if len(a.registry.Codes()) == 0 {
				return fmt.Errorf("no poll sources registered")
			}
			return nil
		}},
	)
	checks.Register(mux)

	mux.Handle("GET /metrics", promhttp.Handler())

	a.httpSrv = &http.Server{
		Addr:              a.cfg.Server.ListenAddr,
		Handler:           observe.Middleware(a.metrics)(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// Run starts the pipeline dispatcher and the HTTP server and blocks until
// ctx is cancelled or either of them fails.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.pipeline.Run(ctx)
	})
	g.Go(func() error {
		a.log.Info("http server listening", "addr", a.httpSrv.Addr)
		if err := a.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("app: http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), httpShutdownTimeout)
		defer cancel()
		return a.httpSrv.Shutdown(shutCtx)
	})

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Shutdown tears down all subsystems in init order. It respects the context
// deadline: if ctx expires before all closers finish, remaining closers are
// skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		a.log.Info("shutting down", "closers", len(a.closers))

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				a.log.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				a.log.Warn("closer error", "index", i, "error", err)
			}
		}

		a.log.Info("shutdown complete")
	})
	return shutdownErr
}

// configLevel converts a config government level string to the store type.
func configLevel(level string) store.GovernmentLevel {
	if level == "federal" {
		return store.LevelFederal
	}
	return store.LevelProvincial
}
