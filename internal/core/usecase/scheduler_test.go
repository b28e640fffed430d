package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/kirillkom/feedback-cascade/internal/core/domain"
)

type scoringMetricsFake struct {
	mu       sync.Mutex
	scored   []error
	curation []error
}

func (f *scoringMetricsFake) SampleScored(_ string, _ time.Duration, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scored = append(f.scored, err)
}

func (f *scoringMetricsFake) CurationRun(_ string, _, _ int, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.curation = append(f.curation, err)
}

func unscoredSample(id, categorizerID string) *domain.TrainingSample {
	return &domain.TrainingSample{
		ID:            id,
		CategorizerID: categorizerID,
		Text:          "sample " + id + " with enough words to score",
		Category:      "bug",
		Embedding:     []float32{0.3, 0.7},
		Source:        domain.SourceManual,
		Active:        true,
		CreatedAt:     time.Now().UTC(),
	}
}

func newTestScheduler(categorizer *domain.Categorizer, samples *sampleRepoFake, cfg domain.CurationConfig, opts SchedulerOptions) (*Scheduler, *curationRepoFake, *scoringMetricsFake) {
	categorizers := newCategorizerRepoFake(categorizer)
	runs := &curationRepoFake{}
	scorer := NewQualityScorer(&judgeFake{score: 0.8, reasoning: "fine"}, DefaultScoreWeights(), 0.3, nil)
	pipeline := NewCurationPipeline(categorizers, samples, runs, cfg, nil)
	metrics := &scoringMetricsFake{}
	scheduler := NewScheduler(categorizers, samples, scorer, pipeline, &vectorIndexFake{}, metrics, opts, nil)
	return scheduler, runs, metrics
}

func TestSchedulerScoresUnscoredSamples(t *testing.T) {
	categorizer := testCategorizer()
	samples := newSampleRepoFake(
		unscoredSample("u1", categorizer.ID),
		unscoredSample("u2", categorizer.ID),
	)
	scheduler, _, metrics := newTestScheduler(categorizer, samples, DefaultCurationConfig, SchedulerOptions{BatchSize: 10})

	scheduler.pass(context.Background())

	remaining, err := samples.CountUnscored(context.Background(), categorizer.ID)
	if err != nil {
		t.Fatalf("CountUnscored() error = %v", err)
	}
	if remaining != 0 {
		t.Fatalf("expected all samples scored, %d left", remaining)
	}
	for _, s := range samples.samples {
		if s.QualityScore == nil || s.QualityScoredAt == nil {
			t.Fatalf("sample %s should carry a score", s.ID)
		}
		if *s.QualityScore < 0 || *s.QualityScore > 1 {
			t.Fatalf("score out of range: %v", *s.QualityScore)
		}
	}
	if len(metrics.scored) != 2 {
		t.Fatalf("expected 2 scoring observations, got %d", len(metrics.scored))
	}
}

func TestSchedulerIsolatesSampleFailures(t *testing.T) {
	categorizer := testCategorizer()
	samples := newSampleRepoFake(
		unscoredSample("u1", categorizer.ID),
		unscoredSample("u2", categorizer.ID),
	)
	samples.saveQualityErr["u1"] = errors.New("disk full")
	scheduler, _, metrics := newTestScheduler(categorizer, samples, DefaultCurationConfig, SchedulerOptions{BatchSize: 10})

	scheduler.pass(context.Background())

	var u2 *domain.TrainingSample
	for _, s := range samples.samples {
		if s.ID == "u2" {
			u2 = s
		}
	}
	if u2 == nil || u2.QualityScore == nil {
		t.Fatalf("u2 should still be scored after u1 fails")
	}

	failures := 0
	for _, err := range metrics.scored {
		if err != nil {
			failures++
		}
	}
	if failures != 1 {
		t.Fatalf("expected exactly 1 failed observation, got %d", failures)
	}
}

func TestSchedulerTriggersCurationAtThreshold(t *testing.T) {
	categorizer := testCategorizer()
	samples := newSampleRepoFake(
		unscoredSample("u1", categorizer.ID),
		unscoredSample("u2", categorizer.ID),
	)
	cfg := domain.CurationConfig{MinQualityScore: 0.1, MaxDatasetSize: 800, TriggerThreshold: 1}
	// Batch size 1 leaves one unscored sample behind, hitting the trigger.
	scheduler, runs, metrics := newTestScheduler(categorizer, samples, cfg, SchedulerOptions{BatchSize: 1})

	scheduler.pass(context.Background())

	if len(runs.runs) != 1 {
		t.Fatalf("expected 1 curation run, got %d", len(runs.runs))
	}
	if runs.runs[0].TriggerReason != TriggerReasonThreshold {
		t.Fatalf("expected threshold trigger, got %s", runs.runs[0].TriggerReason)
	}
	if len(metrics.curation) != 1 || metrics.curation[0] != nil {
		t.Fatalf("expected 1 successful curation observation, got %v", metrics.curation)
	}
}

func TestSchedulerSkipsCurationBelowThreshold(t *testing.T) {
	categorizer := testCategorizer()
	samples := newSampleRepoFake(unscoredSample("u1", categorizer.ID))
	scheduler, runs, _ := newTestScheduler(categorizer, samples, DefaultCurationConfig, SchedulerOptions{BatchSize: 10})

	scheduler.pass(context.Background())

	if len(runs.runs) != 0 {
		t.Fatalf("curation should not run below the trigger threshold")
	}
}

func TestSchedulerRunStopsOnContextCancel(t *testing.T) {
	categorizer := testCategorizer()
	scheduler, _, _ := newTestScheduler(categorizer, newSampleRepoFake(), DefaultCurationConfig, SchedulerOptions{Interval: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- scheduler.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run() should return nil on cancel, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Run() did not stop after cancel")
	}
}
