package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/kirillkom/feedback-cascade/internal/core/domain"
	"github.com/kirillkom/feedback-cascade/internal/core/ports"
)

// ScoreWeights balance the four programmatic metrics. They are normalized
// before use, so only their ratios matter.
type ScoreWeights struct {
	Alignment       float64
	Informativeness float64
	Uniqueness      float64
	Density         float64
}

func DefaultScoreWeights() ScoreWeights {
	return ScoreWeights{Alignment: 0.25, Informativeness: 0.25, Uniqueness: 0.25, Density: 0.25}
}

const (
	// uniquenessNeighborCount bounds how many peers feed the uniqueness
	// metric.
	uniquenessNeighborCount = 6

	// maxPeerContext caps the peer set regardless of what the caller
	// fetched.
	maxPeerContext = 50

	neutralJudgeScore = 0.5
)

// QualityScorer computes the hybrid quality score of one training sample:
// 70% weighted programmatic metrics, 30% LLM judge. A judge outage
// degrades to a neutral judge score instead of failing the sample.
type QualityScorer struct {
	judge         ports.QualityJudge
	weights       ScoreWeights
	densityRadius float64
	logger        *slog.Logger
}

func NewQualityScorer(judge ports.QualityJudge, weights ScoreWeights, densityRadius float64, logger *slog.Logger) *QualityScorer {
	if densityRadius <= 0 {
		densityRadius = 0.3
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &QualityScorer{
		judge:         judge,
		weights:       weights,
		densityRadius: densityRadius,
		logger:        logger,
	}
}

func (s *QualityScorer) Score(ctx context.Context, sample domain.TrainingSample, peers []domain.TrainingSample) (float64, string, domain.QualityMetrics, error) {
	if err := ctx.Err(); err != nil {
		return 0, "", domain.QualityMetrics{}, err
	}

	peers = filterPeers(sample, peers)
	if len(peers) > maxPeerContext {
		peers = peers[:maxPeerContext]
	}

	categoryPeers := make([]domain.TrainingSample, 0, len(peers))
	for _, p := range peers {
		if p.Category == sample.Category {
			categoryPeers = append(categoryPeers, p)
		}
	}

	neighborCount := uniquenessNeighborCount
	if neighborCount > len(peers) {
		neighborCount = len(peers)
	}

	metrics := domain.QualityMetrics{
		Alignment:       alignmentScore(sample.Embedding, categoryPeers),
		Informativeness: informativenessScore(sample.Text),
		Uniqueness:      uniquenessScore(sample.Embedding, peers[:neighborCount]),
		Density:         densityScore(sample.Embedding, peers, s.densityRadius),
	}

	judgeScore, judgeReasoning, err := s.judge.Judge(ctx, sample.Text, sample.Category)
	if err != nil {
		s.logger.Warn("quality_judge_unavailable", "sample_id", sample.ID, "error", err)
		judgeScore = neutralJudgeScore
		judgeReasoning = "judge unavailable, neutral score applied"
	}

	programmatic := s.weightedMetrics(metrics)
	final := 0.7*programmatic + 0.3*judgeScore

	reasoning := fmt.Sprintf("LLM: %s | Metrics: A=%.2f I=%.2f U=%.2f D=%.2f",
		judgeReasoning, metrics.Alignment, metrics.Informativeness, metrics.Uniqueness, metrics.Density)

	return final, reasoning, metrics, nil
}

func (s *QualityScorer) weightedMetrics(m domain.QualityMetrics) float64 {
	total := s.weights.Alignment + s.weights.Informativeness + s.weights.Uniqueness + s.weights.Density
	if total <= 0 {
		def := DefaultScoreWeights()
		return def.Alignment*m.Alignment + def.Informativeness*m.Informativeness +
			def.Uniqueness*m.Uniqueness + def.Density*m.Density
	}
	return (s.weights.Alignment*m.Alignment +
		s.weights.Informativeness*m.Informativeness +
		s.weights.Uniqueness*m.Uniqueness +
		s.weights.Density*m.Density) / total
}

func filterPeers(sample domain.TrainingSample, peers []domain.TrainingSample) []domain.TrainingSample {
	out := make([]domain.TrainingSample, 0, len(peers))
	for _, p := range peers {
		if p.ID == sample.ID || len(p.Embedding) == 0 {
			continue
		}
		out = append(out, p)
	}
	return out
}

// alignmentScore is the cosine similarity of the sample to its category
// centroid, remapped from [-1,1] to [0,1].
func alignmentScore(embedding []float32, categoryPeers []domain.TrainingSample) float64 {
	if len(embedding) == 0 || len(categoryPeers) == 0 {
		return 0.5
	}

	centroid := make([]float64, len(embedding))
	counted := 0
	for _, p := range categoryPeers {
		if len(p.Embedding) != len(embedding) {
			continue
		}
		for i, v := range p.Embedding {
			centroid[i] += float64(v)
		}
		counted++
	}
	if counted == 0 {
		return 0.5
	}
	for i := range centroid {
		centroid[i] /= float64(counted)
	}

	sim := cosineSimilarityMixed(embedding, centroid)
	return (sim + 1) / 2
}

// informativenessScore rewards length (saturating at 200 words) and word
// diversity.
func informativenessScore(text string) float64 {
	words := strings.Fields(text)
	wordCount := len(words)
	if wordCount == 0 {
		return 0
	}

	unique := make(map[string]struct{}, wordCount)
	for _, w := range words {
		unique[w] = struct{}{}
	}

	lengthFactor := math.Min(float64(wordCount)/200.0, 1.0)
	diversityFactor := float64(len(unique)) / float64(wordCount)
	return 0.7*lengthFactor + 0.3*diversityFactor
}

// uniquenessScore inverts the average similarity to the nearest peers:
// crowded samples score low, novel ones high.
func uniquenessScore(embedding []float32, neighbors []domain.TrainingSample) float64 {
	if len(embedding) == 0 || len(neighbors) == 0 {
		return 0.8
	}

	var sum float64
	counted := 0
	for _, n := range neighbors {
		if len(n.Embedding) != len(embedding) {
			continue
		}
		sum += cosineSimilarity(embedding, n.Embedding)
		counted++
	}
	if counted == 0 {
		return 0.8
	}

	avg := sum / float64(counted)
	uniqueness := 1.0 - (avg+1)/2
	return math.Max(0, uniqueness)
}

// densityScore is the fraction of peers within the cosine-distance radius.
func densityScore(embedding []float32, peers []domain.TrainingSample, radius float64) float64 {
	if len(embedding) == 0 || len(peers) < 2 {
		return 0.5
	}

	inRadius := 0
	for _, p := range peers {
		if len(p.Embedding) != len(embedding) {
			continue
		}
		distance := 1.0 - cosineSimilarity(embedding, p.Embedding)
		if distance < radius {
			inRadius++
		}
	}

	density := float64(inRadius) / float64(len(peers))
	return math.Min(density, 1.0)
}

func cosineSimilarity(a, b []float32) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

func cosineSimilarityMixed(a []float32, b []float64) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * b[i]
		normA += float64(a[i]) * float64(a[i])
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
