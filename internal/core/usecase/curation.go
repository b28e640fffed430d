package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/feedback-cascade/internal/core/domain"
	"github.com/kirillkom/feedback-cascade/internal/core/ports"
)

// DefaultCurationConfig mirrors the pipeline's production thresholds.
var DefaultCurationConfig = domain.CurationConfig{
	MinQualityScore:  0.1,
	MaxDatasetSize:   800,
	TriggerThreshold: 50,
}

// TriggerReasonThreshold marks runs started automatically by the scorer.
const TriggerReasonThreshold = "threshold_met"

// CurationPipeline archives low-quality and excess samples. Archival is
// soft: samples keep their rows and history, only the active flag flips.
type CurationPipeline struct {
	categorizers ports.CategorizerRepository
	samples      ports.SampleRepository
	runs         ports.CurationRepository
	cfg          domain.CurationConfig
	logger       *slog.Logger
}

func NewCurationPipeline(
	categorizers ports.CategorizerRepository,
	samples ports.SampleRepository,
	runs ports.CurationRepository,
	cfg domain.CurationConfig,
	logger *slog.Logger,
) *CurationPipeline {
	if cfg.MaxDatasetSize <= 0 {
		cfg = DefaultCurationConfig
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CurationPipeline{
		categorizers: categorizers,
		samples:      samples,
		runs:         runs,
		cfg:          cfg,
		logger:       logger,
	}
}

func (p *CurationPipeline) Config() domain.CurationConfig { return p.cfg }

// RunByRef resolves a categorizer reference and runs the pipeline with a
// manual trigger reason.
func (p *CurationPipeline) RunByRef(ctx context.Context, ref, triggerReason string) (*domain.CurationRun, error) {
	categorizer, err := p.categorizers.GetByRef(ctx, ref)
	if err != nil {
		return nil, err
	}
	if triggerReason == "" {
		triggerReason = "manual"
	}
	return p.Run(ctx, categorizer.ID, triggerReason)
}

// Run executes one curation pass: archive actively-scored samples below
// the quality floor, then archive the lowest-quality tail beyond the
// dataset size cap.
func (p *CurationPipeline) Run(ctx context.Context, categorizerID, triggerReason string) (*domain.CurationRun, error) {
	started := time.Now()
	runAt := started.UTC()

	totalBefore, err := p.samples.CountActive(ctx, categorizerID)
	if err != nil {
		return nil, fmt.Errorf("count active before: %w", err)
	}
	avgBefore, _, err := p.samples.AvgQuality(ctx, categorizerID)
	if err != nil {
		return nil, fmt.Errorf("avg quality before: %w", err)
	}

	scored, err := p.samples.ListActiveScored(ctx, categorizerID)
	if err != nil {
		return nil, fmt.Errorf("list scored samples: %w", err)
	}

	archivedLowQuality, remaining, err := p.archiveLowQuality(ctx, scored, runAt)
	if err != nil {
		return nil, err
	}
	archivedExcess, err := p.archiveExcess(ctx, remaining, runAt)
	if err != nil {
		return nil, err
	}

	totalAfter, err := p.samples.CountActive(ctx, categorizerID)
	if err != nil {
		return nil, fmt.Errorf("count active after: %w", err)
	}
	avgAfter, _, err := p.samples.AvgQuality(ctx, categorizerID)
	if err != nil {
		return nil, fmt.Errorf("avg quality after: %w", err)
	}

	iteration, err := p.runs.NextIteration(ctx, categorizerID)
	if err != nil {
		return nil, fmt.Errorf("next iteration: %w", err)
	}

	run := &domain.CurationRun{
		ID:                 uuid.NewString(),
		CategorizerID:      categorizerID,
		RunAt:              runAt,
		TriggerReason:      triggerReason,
		Iteration:          iteration,
		TotalBefore:        totalBefore,
		TotalAfter:         totalAfter,
		ArchivedLowQuality: archivedLowQuality,
		ArchivedExcess:     archivedExcess,
		AvgQualityBefore:   avgBefore,
		AvgQualityAfter:    avgAfter,
		Config:             p.cfg,
		ProcessingTimeMS:   time.Since(started).Milliseconds(),
	}
	if err := p.runs.Create(ctx, run); err != nil {
		return nil, fmt.Errorf("record curation run: %w", err)
	}

	p.logger.Info("curation_run_completed",
		"categorizer_id", categorizerID,
		"iteration", iteration,
		"trigger", triggerReason,
		"archived_low_quality", archivedLowQuality,
		"archived_excess", archivedExcess,
		"total_before", totalBefore,
		"total_after", totalAfter,
	)
	return run, nil
}

// archiveLowQuality removes samples scoring below the quality floor and
// returns the survivors, still ordered best quality first.
func (p *CurationPipeline) archiveLowQuality(ctx context.Context, scored []domain.TrainingSample, at time.Time) (int, []domain.TrainingSample, error) {
	archived := 0
	remaining := make([]domain.TrainingSample, 0, len(scored))
	for _, sample := range scored {
		if sample.QualityScore == nil {
			continue
		}
		if *sample.QualityScore >= p.cfg.MinQualityScore {
			remaining = append(remaining, sample)
			continue
		}
		reason := fmt.Sprintf("%s%.3f", domain.ArchiveReasonLowQualityPrefix, *sample.QualityScore)
		if err := p.samples.Archive(ctx, sample.ID, reason, at); err != nil {
			return 0, nil, fmt.Errorf("archive low quality sample %s: %w", sample.ID, err)
		}
		archived++
	}
	return archived, remaining, nil
}

// archiveExcess keeps the best MaxDatasetSize samples and archives the
// rest of the quality-ordered tail.
func (p *CurationPipeline) archiveExcess(ctx context.Context, remaining []domain.TrainingSample, at time.Time) (int, error) {
	if len(remaining) <= p.cfg.MaxDatasetSize {
		return 0, nil
	}
	archived := 0
	for _, sample := range remaining[p.cfg.MaxDatasetSize:] {
		if err := p.samples.Archive(ctx, sample.ID, domain.ArchiveReasonExcess, at); err != nil {
			return 0, fmt.Errorf("archive excess sample %s: %w", sample.ID, err)
		}
		archived++
	}
	return archived, nil
}

// Status reports how close a categorizer's dataset is to its next
// curation pass.
func (p *CurationPipeline) Status(ctx context.Context, ref string) (*domain.CurationStatus, error) {
	categorizer, err := p.categorizers.GetByRef(ctx, ref)
	if err != nil {
		return nil, err
	}

	unscored, err := p.samples.CountUnscored(ctx, categorizer.ID)
	if err != nil {
		return nil, fmt.Errorf("count unscored: %w", err)
	}
	totalActive, err := p.samples.CountActive(ctx, categorizer.ID)
	if err != nil {
		return nil, fmt.Errorf("count active: %w", err)
	}

	status := &domain.CurationStatus{
		CategorizerSlug: categorizer.Slug,
		UnscoredCount:   unscored,
		NeedsCuration:   unscored >= p.cfg.TriggerThreshold,
		TotalActive:     totalActive,
	}

	avg, ok, err := p.samples.AvgQuality(ctx, categorizer.ID)
	if err != nil {
		return nil, fmt.Errorf("avg quality: %w", err)
	}
	if ok {
		status.AvgQualityScore = &avg
	}
	return status, nil
}
