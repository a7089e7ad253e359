package training

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/shelfvision/shelfvision-go/internal/conf"
	"github.com/shelfvision/shelfvision-go/internal/dataset"
	"github.com/shelfvision/shelfvision-go/internal/datastore"
	"github.com/shelfvision/shelfvision-go/internal/errors"
	"github.com/shelfvision/shelfvision-go/internal/featurecache"
	"github.com/shelfvision/shelfvision-go/internal/imageutil"
	"github.com/shelfvision/shelfvision-go/internal/logging"
	"github.com/shelfvision/shelfvision-go/internal/vision"
)

// trainingSource tags datastore rows produced by pipeline runs so a new
// run can replace them without touching feedback rows.
const trainingSource = "training"

// stateFileName stores the accuracy of the last promoted run.
const stateFileName = "training-state.json"

// Pipeline runs offline training: snapshot the dataset, embed every image
// with the frozen feature extractor, aggregate per-product references and
// promote them only if held-out accuracy does not regress.
type Pipeline struct {
	settings  *conf.TrainingSettings
	ds        datastore.Interface
	embedder  vision.Embedder
	rebuilder *featurecache.Rebuilder
	log       *slog.Logger
}

// Report summarizes one pipeline run.
type Report struct {
	Fingerprint      string
	Products         int
	TrainedVectors   int
	EvalSamples      int
	BaselineAccuracy float64
	Accuracy         float64
	Promoted         bool
	Duration         time.Duration
}

// trainSample pairs one embedding with the color descriptor of the image
// variant that produced it.
type trainSample struct {
	vector []float32
	color  []float32
}

// state is the persisted baseline between runs.
type state struct {
	Fingerprint string    `json:"fingerprint"`
	Accuracy    float64   `json:"accuracy"`
	PromotedAt  time.Time `json:"promoted_at"`
}

// New creates a training pipeline.
func New(settings *conf.TrainingSettings, ds datastore.Interface, embedder vision.Embedder, rebuilder *featurecache.Rebuilder) *Pipeline {
	return &Pipeline{
		settings:  settings,
		ds:        ds,
		embedder:  embedder,
		rebuilder: rebuilder,
		log:       logging.ForService("training"),
	}
}

// Run executes one full training pass. The dataset layout is one
// directory per product id, image files inside. Nothing live changes
// unless the promotion gate passes.
func (p *Pipeline) Run(ctx context.Context) (*Report, error) {
	if p.embedder == nil {
		return nil, errors.Newf("training requires a loaded classifier model").
			Component("training").
			Category(errors.CategoryModelInit).
			Build()
	}

	start := time.Now()
	snap, err := dataset.TakeSnapshot(p.settings.DatasetPath, p.settings.SnapshotPath)
	if err != nil {
		return nil, err
	}
	p.log.Info("dataset snapshot taken",
		"fingerprint", snap.Fingerprint,
		"files", snap.FileCount)

	trainSamples, evalSamples, err := p.embedDataset(ctx, snap)
	if err != nil {
		return nil, err
	}
	if len(trainSamples) == 0 {
		return nil, errors.Newf("dataset produced no trainable embeddings").
			Component("training").
			Category(errors.CategoryTraining).
			Build()
	}

	candidate, trained := p.aggregateCandidates(trainSamples)
	accuracy := EvaluateTop1(candidate, evalSamples)

	baseline := p.loadState()
	report := &Report{
		Fingerprint:      snap.Fingerprint,
		Products:         len(candidate.Entries),
		TrainedVectors:   trained,
		EvalSamples:      len(evalSamples),
		BaselineAccuracy: baseline.Accuracy,
		Accuracy:         accuracy,
		Promoted:         ShouldPromote(baseline.Accuracy, accuracy, p.settings.MinAccuracyDelta),
	}

	if !report.Promoted {
		report.Duration = time.Since(start)
		p.log.Warn("promotion blocked, accuracy regressed past the allowed delta",
			"baseline", baseline.Accuracy,
			"candidate", accuracy,
			"min_delta", p.settings.MinAccuracyDelta)
		return report, nil
	}

	if err := p.promote(ctx, trainSamples); err != nil {
		return nil, err
	}
	p.saveState(state{
		Fingerprint: snap.Fingerprint,
		Accuracy:    accuracy,
		PromotedAt:  time.Now().UTC(),
	})

	report.Duration = time.Since(start)
	p.log.Info("training run promoted",
		"fingerprint", snap.Fingerprint,
		"products", report.Products,
		"vectors", report.TrainedVectors,
		"accuracy", accuracy,
		"duration_ms", report.Duration.Milliseconds())
	return report, nil
}

// embedDataset decodes and embeds every dataset file. The train/eval
// split is frozen by content hash: the same file always lands on the same
// side regardless of when it was added.
func (p *Pipeline) embedDataset(ctx context.Context, snap *dataset.Snapshot) (map[string][]trainSample, []EvalSample, error) {
	concurrency := p.settings.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}

	var (
		mu           sync.Mutex
		trainSamples = make(map[string][]trainSample)
		evalSamples  []EvalSample
	)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for _, file := range snap.Files {
		productID := productIDFromPath(file.Path)
		if productID == "" {
			p.log.Warn("skipping dataset file outside a product directory", "path", file.Path)
			continue
		}
		g.Go(func() error {
			samples, err := p.embedFile(ctx, filepath.Join(snap.Root, filepath.FromSlash(file.Path)), isEvalFile(file.Hash))
			if err != nil {
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			if isEvalFile(file.Hash) {
				for _, s := range samples {
					evalSamples = append(evalSamples, EvalSample{ProductID: productID, Embedding: s.vector})
				}
			} else {
				trainSamples[productID] = append(trainSamples[productID], samples...)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	// Concurrent appends shuffle the per-product order; aggregation is
	// order-sensitive at the bit level, so restore a canonical order.
	for _, samples := range trainSamples {
		sortSamples(samples)
	}
	sort.Slice(evalSamples, func(i, j int) bool {
		return evalSamples[i].ProductID < evalSamples[j].ProductID
	})
	return trainSamples, evalSamples, nil
}

// embedFile embeds one source image, plus augmented variants for training
// files. Eval files are never augmented.
func (p *Pipeline) embedFile(ctx context.Context, path string, eval bool) ([]trainSample, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.New(err).
			Component("training").
			Category(errors.CategoryFileIO).
			Context("path", path).
			Build()
	}
	img, err := imageutil.Decode(data)
	if err != nil {
		p.log.Warn("skipping undecodable dataset image", "path", path, "error", err)
		return nil, nil
	}

	embedding, err := p.embedder.Embed(ctx, img)
	if err != nil {
		return nil, err
	}
	samples := []trainSample{{vector: embedding, color: imageutil.ColorDescriptor(img)}}
	if eval {
		return samples, nil
	}

	for _, variant := range Augment(img, p.settings.AugmentationsPerImage) {
		embedding, err := p.embedder.Embed(ctx, variant)
		if err != nil {
			return nil, err
		}
		samples = append(samples, trainSample{vector: embedding, color: imageutil.ColorDescriptor(variant)})
	}
	return samples, nil
}

// aggregateCandidates builds the candidate reference vectors in memory.
// Degenerate products are dropped with a warning; they would be
// unmatched anyway.
func (p *Pipeline) aggregateCandidates(trainSamples map[string][]trainSample) (*featurecache.Snapshot, int) {
	productIDs := make([]string, 0, len(trainSamples))
	for pid := range trainSamples {
		productIDs = append(productIDs, pid)
	}
	sort.Strings(productIDs)

	snap := &featurecache.Snapshot{LoadedAt: time.Now()}
	trained := 0
	for _, pid := range productIDs {
		vectors := make([][]float32, 0, len(trainSamples[pid]))
		for _, s := range trainSamples[pid] {
			vectors = append(vectors, s.vector)
		}
		agg, err := featurecache.Aggregate(vectors)
		if err != nil || agg.Degenerate {
			p.log.Warn("product excluded from candidate references",
				"product_id", pid, "error", err, "degenerate", err == nil)
			continue
		}
		snap.Entries = append(snap.Entries, featurecache.Entry{
			ProductID:  pid,
			Vector:     agg.Vector,
			ImageCount: agg.InlierCount,
		})
		trained += len(vectors)
	}
	return snap, trained
}

// promote replaces the previous training rows and rebuilds every product
// cache from the stored vectors.
func (p *Pipeline) promote(ctx context.Context, trainSamples map[string][]trainSample) error {
	if err := p.ds.DeleteTrainingImagesBySource(trainingSource); err != nil {
		return err
	}

	productIDs := make([]string, 0, len(trainSamples))
	for pid := range trainSamples {
		productIDs = append(productIDs, pid)
	}
	sort.Strings(productIDs)
	for _, pid := range productIDs {
		for _, s := range trainSamples[pid] {
			img := &datastore.TrainingImage{
				ProductID:       pid,
				Vector:          datastore.EncodeVector(s.vector),
				ColorDescriptor: datastore.EncodeVector(s.color),
				Verified:        true,
				Source:          trainingSource,
			}
			if err := p.ds.SaveTrainingImage(img); err != nil {
				return err
			}
		}
	}
	return p.rebuilder.RebuildAll(ctx, p.settings.Concurrency)
}

// loadState reads the promoted baseline; a missing or unreadable state
// file simply means no baseline.
func (p *Pipeline) loadState() state {
	var s state
	data, err := os.ReadFile(filepath.Join(p.settings.SnapshotPath, stateFileName))
	if err != nil {
		return s
	}
	if err := json.Unmarshal(data, &s); err != nil {
		p.log.Warn("training state file unreadable, treating as no baseline", "error", err)
		return state{}
	}
	return s
}

func (p *Pipeline) saveState(s state) {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return
	}
	if err := os.MkdirAll(p.settings.SnapshotPath, 0o755); err != nil {
		p.log.Error("cannot create snapshot directory for state", "error", err)
		return
	}
	path := filepath.Join(p.settings.SnapshotPath, stateFileName)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		p.log.Error("cannot persist training state", "path", path, "error", err)
	}
}

// productIDFromPath extracts the product directory from a dataset-relative
// path like "prod-1/shelf/a.jpg".
func productIDFromPath(relPath string) string {
	parts := strings.SplitN(relPath, "/", 2)
	if len(parts) < 2 || parts[0] == "" {
		return ""
	}
	return parts[0]
}

// isEvalFile sends roughly a quarter of files to the held-out side based
// on the first hex digit of the content hash.
func isEvalFile(hash string) bool {
	if hash == "" {
		return false
	}
	switch hash[0] {
	case '0', '1', '2', '3':
		return true
	default:
		return false
	}
}

// sortSamples orders samples by their embedding so aggregation input
// order is canonical.
func sortSamples(samples []trainSample) {
	sort.Slice(samples, func(i, j int) bool {
		return featurecache.CompareVectors(samples[i].vector, samples[j].vector) < 0
	})
}
