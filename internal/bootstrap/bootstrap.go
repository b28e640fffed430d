package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"

	httpadapter "github.com/kirillkom/feedback-cascade/internal/adapters/http"
	"github.com/kirillkom/feedback-cascade/internal/config"
	"github.com/kirillkom/feedback-cascade/internal/core/domain"
	"github.com/kirillkom/feedback-cascade/internal/core/usecase"
	embeddingremote "github.com/kirillkom/feedback-cascade/internal/infrastructure/embedding/remote"
	judgeollama "github.com/kirillkom/feedback-cascade/internal/infrastructure/judge/ollama"
	layersremote "github.com/kirillkom/feedback-cascade/internal/infrastructure/layers/remote"
	"github.com/kirillkom/feedback-cascade/internal/infrastructure/queue/nats"
	"github.com/kirillkom/feedback-cascade/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/feedback-cascade/internal/infrastructure/resilience"
	"github.com/kirillkom/feedback-cascade/internal/infrastructure/vector/qdrant"
	"github.com/kirillkom/feedback-cascade/internal/infrastructure/webhook"
	"github.com/kirillkom/feedback-cascade/internal/observability/metrics"
)

// App wires the shared core of both processes: repositories, remote
// clients and the use cases on top of them. The API and worker binaries
// pick the surfaces they need.
type App struct {
	Config config.Config
	Logger *slog.Logger

	DB    *sql.DB
	Queue *nats.Queue

	ClassifyUC *usecase.ClassifyUseCase
	TrainUC    *usecase.TrainUseCase
	ReviewUC   *usecase.ReviewUseCase
	Pipeline   *usecase.CurationPipeline
	Scorer     *usecase.QualityScorer

	categorizers *postgres.CategorizerRepository
	samples      *postgres.SampleRepository
	webhooks     *postgres.WebhookRepository
	vectorIndex  *qdrant.Client

	closeFn func()
}

func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := postgres.EnsureSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	categorizers := postgres.NewCategorizerRepository(db)
	samples := postgres.NewSampleRepository(db)
	classifications := postgres.NewClassificationRepository(db)
	reviews := postgres.NewReviewRepository(db)
	curations := postgres.NewCurationRepository(db)
	webhooks := postgres.NewWebhookRepository(db)

	executor := resilience.NewExecutor(resilience.DefaultConfig())

	layerClient := layersremote.New(cfg.TagsLayerURL, cfg.XGBoostLayerURL, cfg.LLMLayerURL, executor)
	embedder := embeddingremote.New(cfg.EmbeddingsURL, executor)
	judge := judgeollama.New(cfg.OllamaURL, cfg.OllamaJudgeModel, executor)
	vectorIndex := qdrant.New(cfg.QdrantURL, cfg.QdrantCollection)

	queue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
		ResilienceExecutor: executor,
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init event queue: %w", err)
	}

	reviewUC := usecase.NewReviewUseCase(categorizers, reviews, samples, embedder, vectorIndex, queue, logger)
	classifyUC := usecase.NewClassifyUseCase(categorizers, classifications, layerClient, reviewUC, usecase.LayerTimeouts{
		Tags:    cfg.TagsTimeout,
		XGBoost: cfg.XGBoostTimeout,
		LLM:     cfg.LLMTimeout,
		Fastest: cfg.FastestTimeout,
	}, logger)
	trainUC := usecase.NewTrainUseCase(categorizers, samples, layerClient, embedder, vectorIndex, logger)
	pipeline := usecase.NewCurationPipeline(categorizers, samples, curations, domain.CurationConfig{
		MinQualityScore:  cfg.MinQualityScore,
		MaxDatasetSize:   cfg.MaxDatasetSize,
		TriggerThreshold: cfg.CurationTriggerThreshold,
	}, logger)
	scorer := usecase.NewQualityScorer(judge, usecase.ScoreWeights{
		Alignment:       cfg.WeightAlignment,
		Informativeness: cfg.WeightInformativeness,
		Uniqueness:      cfg.WeightUniqueness,
		Density:         cfg.WeightDensity,
	}, cfg.DensityRadius, logger)

	return &App{
		Config: cfg,
		Logger: logger,

		DB:    db,
		Queue: queue,

		ClassifyUC: classifyUC,
		TrainUC:    trainUC,
		ReviewUC:   reviewUC,
		Pipeline:   pipeline,
		Scorer:     scorer,

		categorizers: categorizers,
		samples:      samples,
		webhooks:     webhooks,
		vectorIndex:  vectorIndex,

		closeFn: func() {
			queue.Close()
			_ = db.Close()
		},
	}, nil
}

// APIHandler assembles the full HTTP surface of the api binary.
func (a *App) APIHandler() http.Handler {
	serverMetrics := metrics.NewHTTPServerMetrics("api")
	dispatcher := webhook.NewDispatcher(a.webhooks, a.Config.WebhookDeliveryTimeout, "api", nil, a.Logger)

	router := httpadapter.NewRouter(
		a.ClassifyUC,
		a.TrainUC,
		a.ReviewUC,
		a.Pipeline,
		dispatcher,
		a.webhooks,
		serverMetrics,
		"api",
		httpadapter.TrafficControl{
			RateLimitRPS:   a.Config.APIRateLimitRPS,
			RateLimitBurst: a.Config.APIRateLimitBurst,
			MaxInFlight:    a.Config.APIMaxInFlight,
		},
	)
	return router.Handler()
}

// Worker bundles the background surfaces of the worker binary.
type Worker struct {
	Scheduler  *usecase.Scheduler
	Dispatcher *webhook.Dispatcher
	Metrics    *metrics.WorkerMetrics
}

func (a *App) Worker() *Worker {
	workerMetrics := metrics.NewWorkerMetrics("worker")
	dispatcher := webhook.NewDispatcher(a.webhooks, a.Config.WebhookDeliveryTimeout, "worker", workerMetrics, a.Logger)
	scheduler := usecase.NewScheduler(
		a.categorizers,
		a.samples,
		a.Scorer,
		a.Pipeline,
		a.vectorIndex,
		workerMetrics,
		usecase.SchedulerOptions{
			Interval:  a.Config.ScoringInterval,
			BatchSize: a.Config.ScoringBatchSize,
			PeerLimit: a.Config.PeerContextLimit,
			Service:   "worker",
		},
		a.Logger,
	)
	return &Worker{
		Scheduler:  scheduler,
		Dispatcher: dispatcher,
		Metrics:    workerMetrics,
	}
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}
