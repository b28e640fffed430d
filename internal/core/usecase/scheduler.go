package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kirillkom/feedback-cascade/internal/core/domain"
	"github.com/kirillkom/feedback-cascade/internal/core/ports"
)

// ScoringMetrics receives scoring and curation outcomes from the worker
// loop.
type ScoringMetrics interface {
	SampleScored(service string, duration time.Duration, err error)
	CurationRun(service string, archivedLowQuality, archivedExcess int, err error)
}

type noopScoringMetrics struct{}

func (noopScoringMetrics) SampleScored(string, time.Duration, error) {}
func (noopScoringMetrics) CurationRun(string, int, int, error)       {}

// SchedulerOptions tune the worker loop.
type SchedulerOptions struct {
	Interval  time.Duration
	BatchSize int
	PeerLimit int
	Service   string
}

// Scheduler is the background quality loop: every tick it scores a batch
// of unscored samples per categorizer and kicks off curation once enough
// unscored work has accumulated.
type Scheduler struct {
	categorizers ports.CategorizerRepository
	samples      ports.SampleRepository
	scorer       *QualityScorer
	pipeline     *CurationPipeline
	vectorIndex  ports.SampleVectorIndex
	metrics      ScoringMetrics
	logger       *slog.Logger

	interval  time.Duration
	batchSize int
	peerLimit int
	service   string
}

func NewScheduler(
	categorizers ports.CategorizerRepository,
	samples ports.SampleRepository,
	scorer *QualityScorer,
	pipeline *CurationPipeline,
	vectorIndex ports.SampleVectorIndex,
	metrics ScoringMetrics,
	opts SchedulerOptions,
	logger *slog.Logger,
) *Scheduler {
	if opts.Interval <= 0 {
		opts.Interval = 30 * time.Second
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 20
	}
	if opts.PeerLimit <= 0 {
		opts.PeerLimit = maxPeerContext
	}
	if opts.Service == "" {
		opts.Service = "worker"
	}
	if metrics == nil {
		metrics = noopScoringMetrics{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		categorizers: categorizers,
		samples:      samples,
		scorer:       scorer,
		pipeline:     pipeline,
		vectorIndex:  vectorIndex,
		metrics:      metrics,
		logger:       logger,
		interval:     opts.Interval,
		batchSize:    opts.BatchSize,
		peerLimit:    opts.PeerLimit,
		service:      opts.Service,
	}
}

// Run blocks until the context is cancelled. The first pass starts
// immediately; later passes follow the configured interval.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.pass(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.pass(ctx)
		}
	}
}

// pass processes every categorizer, isolating failures so one broken
// dataset never starves the others.
func (s *Scheduler) pass(ctx context.Context) {
	categorizers, err := s.categorizers.List(ctx)
	if err != nil {
		s.logger.Error("scheduler_list_categorizers_failed", "error", err)
		return
	}

	for _, categorizer := range categorizers {
		if ctx.Err() != nil {
			return
		}
		if err := s.processCategorizer(ctx, categorizer.ID, categorizer.Slug); err != nil {
			s.logger.Error("scheduler_categorizer_failed", "categorizer", categorizer.Slug, "error", err)
		}
	}
}

func (s *Scheduler) processCategorizer(ctx context.Context, categorizerID, slug string) error {
	batch, err := s.samples.ListUnscored(ctx, categorizerID, s.batchSize)
	if err != nil {
		return fmt.Errorf("list unscored: %w", err)
	}

	scoredCount := 0
	for _, sample := range batch {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := s.scoreSample(ctx, sample); err != nil {
			s.logger.Warn("sample_score_failed", "sample_id", sample.ID, "categorizer", slug, "error", err)
			continue
		}
		scoredCount++
	}
	if scoredCount > 0 {
		s.logger.Info("scoring_batch_completed", "categorizer", slug, "scored", scoredCount, "batch", len(batch))
	}

	return s.maybeCurate(ctx, categorizerID, slug)
}

func (s *Scheduler) scoreSample(ctx context.Context, sample domain.TrainingSample) error {
	started := time.Now()

	peers, err := s.peersFor(ctx, sample)
	if err != nil {
		s.metrics.SampleScored(s.service, time.Since(started), err)
		return err
	}

	score, reasoning, metrics, err := s.scorer.Score(ctx, sample, peers)
	if err != nil {
		s.metrics.SampleScored(s.service, time.Since(started), err)
		return fmt.Errorf("score sample: %w", err)
	}

	if err := s.samples.SaveQuality(ctx, sample.ID, score, reasoning, metrics, time.Now().UTC()); err != nil {
		s.metrics.SampleScored(s.service, time.Since(started), err)
		return fmt.Errorf("save quality: %w", err)
	}

	s.metrics.SampleScored(s.service, time.Since(started), nil)
	return nil
}

// peersFor prefers the vector index for peer context and falls back to
// the most recent active samples when the index is down or empty.
func (s *Scheduler) peersFor(ctx context.Context, sample domain.TrainingSample) ([]domain.TrainingSample, error) {
	if s.vectorIndex != nil && len(sample.Embedding) > 0 {
		peers, err := s.vectorIndex.NearestPeers(ctx, sample.CategorizerID, sample.Embedding, s.peerLimit)
		if err != nil {
			s.logger.Warn("peer_search_failed", "sample_id", sample.ID, "error", err)
		} else if len(peers) > 0 {
			return peers, nil
		}
	}
	peers, err := s.samples.ListActivePeers(ctx, sample.CategorizerID, s.peerLimit)
	if err != nil {
		return nil, fmt.Errorf("list peers: %w", err)
	}
	return peers, nil
}

// maybeCurate runs the pipeline when the unscored backlog reaches the
// trigger threshold.
func (s *Scheduler) maybeCurate(ctx context.Context, categorizerID, slug string) error {
	unscored, err := s.samples.CountUnscored(ctx, categorizerID)
	if err != nil {
		return fmt.Errorf("count unscored: %w", err)
	}
	if unscored < s.pipeline.Config().TriggerThreshold {
		return nil
	}

	run, err := s.pipeline.Run(ctx, categorizerID, TriggerReasonThreshold)
	if err != nil {
		s.metrics.CurationRun(s.service, 0, 0, err)
		return fmt.Errorf("curation run: %w", err)
	}
	s.metrics.CurationRun(s.service, run.ArchivedLowQuality, run.ArchivedExcess, nil)
	s.logger.Info("curation_triggered", "categorizer", slug, "iteration", run.Iteration)
	return nil
}
