package usecase

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/kirillkom/feedback-cascade/internal/core/domain"
)

type categorizerRepoFake struct {
	mu           sync.Mutex
	categorizers []*domain.Categorizer
	nameTaken    map[string]bool
	slugTaken    map[string]bool
	listErr      error
}

func newCategorizerRepoFake(categorizers ...*domain.Categorizer) *categorizerRepoFake {
	return &categorizerRepoFake{
		categorizers: categorizers,
		nameTaken:    map[string]bool{},
		slugTaken:    map[string]bool{},
	}
}

func (f *categorizerRepoFake) Create(_ context.Context, c *domain.Categorizer) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.categorizers = append(f.categorizers, c)
	return nil
}

func (f *categorizerRepoFake) GetByRef(_ context.Context, ref string) (*domain.Categorizer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.categorizers {
		if c.ID == ref || c.Slug == ref || c.Name == ref {
			return c, nil
		}
	}
	return nil, domain.WrapError(domain.ErrNotFound, "categorizer", errNotFoundFake)
}

func (f *categorizerRepoFake) SlugExists(_ context.Context, slug string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.slugTaken[slug] {
		return true, nil
	}
	for _, c := range f.categorizers {
		if c.Slug == slug {
			return true, nil
		}
	}
	return false, nil
}

func (f *categorizerRepoFake) NameExists(_ context.Context, name string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.nameTaken[name] {
		return true, nil
	}
	for _, c := range f.categorizers {
		if c.Name == name {
			return true, nil
		}
	}
	return false, nil
}

func (f *categorizerRepoFake) List(context.Context) ([]domain.Categorizer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]domain.Categorizer, 0, len(f.categorizers))
	for _, c := range f.categorizers {
		out = append(out, *c)
	}
	return out, nil
}

func (f *categorizerRepoFake) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, c := range f.categorizers {
		if c.ID == id {
			f.categorizers = append(f.categorizers[:i], f.categorizers[i+1:]...)
			return nil
		}
	}
	return domain.WrapError(domain.ErrNotFound, "categorizer_delete", errNotFoundFake)
}

type sampleRepoFake struct {
	mu      sync.Mutex
	samples []*domain.TrainingSample

	saveQualityErr map[string]error
	bySourceCount  map[domain.SampleSource]int
}

func newSampleRepoFake(samples ...*domain.TrainingSample) *sampleRepoFake {
	return &sampleRepoFake{samples: samples, saveQualityErr: map[string]error{}}
}

func (f *sampleRepoFake) CreateBatch(_ context.Context, samples []domain.TrainingSample) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range samples {
		s := samples[i]
		f.samples = append(f.samples, &s)
	}
	return nil
}

func (f *sampleRepoFake) Create(_ context.Context, sample *domain.TrainingSample) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := *sample
	f.samples = append(f.samples, &s)
	return nil
}

func (f *sampleRepoFake) ListUnscored(_ context.Context, categorizerID string, limit int) ([]domain.TrainingSample, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.TrainingSample, 0, limit)
	for _, s := range f.samples {
		if s.CategorizerID != categorizerID || !s.Active || s.QualityScore != nil || len(s.Embedding) == 0 {
			continue
		}
		out = append(out, *s)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *sampleRepoFake) CountUnscored(_ context.Context, categorizerID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, s := range f.samples {
		if s.CategorizerID == categorizerID && s.Active && s.QualityScore == nil && len(s.Embedding) > 0 {
			count++
		}
	}
	return count, nil
}

func (f *sampleRepoFake) ListActivePeers(_ context.Context, categorizerID string, limit int) ([]domain.TrainingSample, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.TrainingSample, 0, limit)
	for _, s := range f.samples {
		if s.CategorizerID != categorizerID || !s.Active || len(s.Embedding) == 0 {
			continue
		}
		out = append(out, *s)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *sampleRepoFake) ListActiveScored(_ context.Context, categorizerID string) ([]domain.TrainingSample, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.TrainingSample, 0, len(f.samples))
	for _, s := range f.samples {
		if s.CategorizerID == categorizerID && s.Active && s.QualityScore != nil {
			out = append(out, *s)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return *out[i].QualityScore > *out[j].QualityScore
	})
	return out, nil
}

func (f *sampleRepoFake) SaveQuality(_ context.Context, sampleID string, score float64, reasoning string, metrics domain.QualityMetrics, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.saveQualityErr[sampleID]; err != nil {
		return err
	}
	for _, s := range f.samples {
		if s.ID == sampleID {
			sc := score
			m := metrics
			t := at
			s.QualityScore = &sc
			s.QualityReasoning = reasoning
			s.QualityMetrics = &m
			s.QualityScoredAt = &t
			return nil
		}
	}
	return domain.WrapError(domain.ErrNotFound, "sample_quality", errNotFoundFake)
}

func (f *sampleRepoFake) Archive(_ context.Context, sampleID, reason string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.samples {
		if s.ID == sampleID && s.Active {
			t := at
			s.Active = false
			s.ArchiveReason = reason
			s.ArchivedAt = &t
			return nil
		}
	}
	return domain.WrapError(domain.ErrNotFound, "sample_archive", errNotFoundFake)
}

func (f *sampleRepoFake) CountActive(_ context.Context, categorizerID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, s := range f.samples {
		if s.CategorizerID == categorizerID && s.Active {
			count++
		}
	}
	return count, nil
}

func (f *sampleRepoFake) CountBySource(_ context.Context, categorizerID string, source domain.SampleSource) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.bySourceCount != nil {
		return f.bySourceCount[source], nil
	}
	count := 0
	for _, s := range f.samples {
		if s.CategorizerID == categorizerID && s.Source == source {
			count++
		}
	}
	return count, nil
}

func (f *sampleRepoFake) AvgQuality(_ context.Context, categorizerID string) (float64, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var sum float64
	count := 0
	for _, s := range f.samples {
		if s.CategorizerID == categorizerID && s.Active && s.QualityScore != nil {
			sum += *s.QualityScore
			count++
		}
	}
	if count == 0 {
		return 0, false, nil
	}
	return sum / float64(count), true, nil
}

func (f *sampleRepoFake) bySource(source domain.SampleSource) []domain.TrainingSample {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.TrainingSample, 0)
	for _, s := range f.samples {
		if s.Source == source {
			out = append(out, *s)
		}
	}
	return out
}

type classificationRepoFake struct {
	mu      sync.Mutex
	records []*domain.ClassificationRecord
	err     error
}

func (f *classificationRepoFake) Create(_ context.Context, rec *domain.ClassificationRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.records = append(f.records, rec)
	return nil
}

func (f *classificationRepoFake) CountByCategorizer(context.Context, string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.records), nil
}

type reviewRepoFake struct {
	mu      sync.Mutex
	reviews []*domain.ReviewRequest
}

func (f *reviewRepoFake) Create(_ context.Context, review *domain.ReviewRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r := *review
	f.reviews = append(f.reviews, &r)
	return nil
}

func (f *reviewRepoFake) GetByID(_ context.Context, id string) (*domain.ReviewRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.reviews {
		if r.ID == id {
			copied := *r
			return &copied, nil
		}
	}
	return nil, domain.WrapError(domain.ErrNotFound, "review", errNotFoundFake)
}

func (f *reviewRepoFake) MarkReviewed(_ context.Context, id, humanCategory, notes, reviewer string, at time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.reviews {
		if r.ID != id {
			continue
		}
		if r.Status != domain.ReviewPending {
			return false, nil
		}
		t := at
		r.Status = domain.ReviewReviewed
		r.HumanCategory = humanCategory
		r.HumanNotes = notes
		r.ReviewedBy = reviewer
		r.ReviewedAt = &t
		return true, nil
	}
	return false, nil
}

func (f *reviewRepoFake) CountPendingUpTo(_ context.Context, categorizerID string, createdAt time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, r := range f.reviews {
		if r.CategorizerID == categorizerID && r.Status == domain.ReviewPending && !r.CreatedAt.After(createdAt) {
			count++
		}
	}
	return count, nil
}

func (f *reviewRepoFake) ListPending(_ context.Context, categorizerID string, limit int) ([]domain.ReviewRequest, error) {
	return f.listByStatus(categorizerID, domain.ReviewPending, limit), nil
}

func (f *reviewRepoFake) ListReviewed(_ context.Context, categorizerID string, limit int) ([]domain.ReviewRequest, error) {
	return f.listByStatus(categorizerID, domain.ReviewReviewed, limit), nil
}

func (f *reviewRepoFake) listByStatus(categorizerID string, status domain.ReviewStatus, limit int) []domain.ReviewRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.ReviewRequest, 0)
	for _, r := range f.reviews {
		if r.Status != status {
			continue
		}
		if categorizerID != "" && r.CategorizerID != categorizerID {
			continue
		}
		out = append(out, *r)
		if len(out) == limit {
			break
		}
	}
	return out
}

func (f *reviewRepoFake) CountByStatus(_ context.Context, categorizerID string, status domain.ReviewStatus) (int, error) {
	return len(f.listByStatus(categorizerID, status, 0)), nil
}

type curationRepoFake struct {
	mu   sync.Mutex
	runs []*domain.CurationRun
	err  error
}

func (f *curationRepoFake) Create(_ context.Context, run *domain.CurationRun) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.runs = append(f.runs, run)
	return nil
}

func (f *curationRepoFake) NextIteration(context.Context, string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.runs) + 1, nil
}

type layerClientFake struct {
	mu       sync.Mutex
	results  map[string]domain.LayerResult
	errs     map[string]error
	calls    []string
	trainErr map[string]error
	trained  []string
}

func (f *layerClientFake) Classify(_ context.Context, layer, _, _ string) (domain.LayerResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, layer)
	if err := f.errs[layer]; err != nil {
		return domain.LayerResult{}, err
	}
	return f.results[layer], nil
}

func (f *layerClientFake) Train(_ context.Context, layer, _ string, _ []string, _ []domain.LabeledText) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.trained = append(f.trained, layer)
	return f.trainErr[layer]
}

type embedderFake struct {
	mu     sync.Mutex
	vector []float32
	err    error
	texts  [][]string
}

func (f *embedderFake) Embed(_ context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = append(f.texts, texts)
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = f.vector
	}
	return out, nil
}

type judgeFake struct {
	score     float64
	reasoning string
	err       error
}

func (f *judgeFake) Judge(context.Context, string, string) (float64, string, error) {
	if f.err != nil {
		return 0, "", f.err
	}
	return f.score, f.reasoning, nil
}

type vectorIndexFake struct {
	mu       sync.Mutex
	indexed  [][]domain.TrainingSample
	peers    []domain.TrainingSample
	peersErr error
}

func (f *vectorIndexFake) IndexSamples(_ context.Context, samples []domain.TrainingSample) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.indexed = append(f.indexed, samples)
	return nil
}

func (f *vectorIndexFake) NearestPeers(context.Context, string, []float32, int) ([]domain.TrainingSample, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.peersErr != nil {
		return nil, f.peersErr
	}
	return f.peers, nil
}

type queueFake struct {
	mu     sync.Mutex
	events []domain.ReviewPendingEvent
	err    error
}

func (f *queueFake) PublishReviewPending(_ context.Context, event domain.ReviewPendingEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, event)
	return nil
}

func (f *queueFake) SubscribeReviewPending(context.Context, func(context.Context, domain.ReviewPendingEvent) error) error {
	return nil
}

type escalatorFake struct {
	review *domain.ReviewRequest
	pos    int
	err    error
	inputs []domain.EscalationInput
}

func (f *escalatorFake) Escalate(_ context.Context, in domain.EscalationInput) (*domain.ReviewRequest, int, error) {
	f.inputs = append(f.inputs, in)
	if f.err != nil {
		return nil, 0, f.err
	}
	return f.review, f.pos, nil
}

var errNotFoundFake = &fakeErr{"not found"}

type fakeErr struct{ msg string }

func (e *fakeErr) Error() string { return e.msg }

func strPtr(s string) *string { return &s }

func testCategorizer(layers ...string) *domain.Categorizer {
	if len(layers) == 0 {
		layers = []string{domain.LayerTags, domain.LayerXGBoost, domain.LayerLLM}
	}
	thresholds := make(map[string]float64, len(layers))
	for _, l := range layers {
		thresholds[l] = domain.DefaultThresholds[l]
	}
	return &domain.Categorizer{
		ID:         "cat-1",
		Slug:       "support-feedback",
		Name:       "Support Feedback",
		Categories: []string{"bug", "feature", "praise"},
		Layers:     layers,
		Thresholds: thresholds,
		HILEnabled: true,
		CreatedAt:  time.Now().UTC(),
		UpdatedAt:  time.Now().UTC(),
	}
}

func containsLayer(calls []string, layer string) bool {
	for _, c := range calls {
		if strings.EqualFold(c, layer) {
			return true
		}
	}
	return false
}
