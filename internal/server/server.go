// Package server assembles the recognition service and runs the HTTP API.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"

	api "github.com/shelfvision/shelfvision-go/internal/api/v2"
	"github.com/shelfvision/shelfvision-go/internal/conf"
	"github.com/shelfvision/shelfvision-go/internal/datastore"
	"github.com/shelfvision/shelfvision-go/internal/errors"
	"github.com/shelfvision/shelfvision-go/internal/featurecache"
	"github.com/shelfvision/shelfvision-go/internal/learning"
	"github.com/shelfvision/shelfvision-go/internal/logging"
	"github.com/shelfvision/shelfvision-go/internal/observability"
	"github.com/shelfvision/shelfvision-go/internal/ocr"
	"github.com/shelfvision/shelfvision-go/internal/pipeline"
	"github.com/shelfvision/shelfvision-go/internal/vision"
)

// defaultTextMatchMinScore drops fuzzy dictionary matches below this
// similarity before they enter fusion.
const defaultTextMatchMinScore = 0.6

// shutdownTimeout bounds graceful HTTP shutdown.
const shutdownTimeout = 10 * time.Second

// Deps holds the assembled service graph.
type Deps struct {
	DS        datastore.Interface
	Metrics   *observability.Metrics
	Detector  *vision.Detector
	Embedder  vision.Embedder
	OCREngine ocr.Engine
	Matcher   *ocr.Matcher
	Learning  *learning.Service
	Rebuilder *featurecache.Rebuilder
	Pipeline  *pipeline.Service
}

// Build wires every component from settings. The Stage-2 classifier is
// allowed to be absent; recognition then returns 503 until a model is
// provided, but feedback and cache management still work.
func Build(settings *conf.Settings) (*Deps, error) {
	log := logging.ForService("server")

	ds := datastore.New(settings)
	if ds == nil {
		return nil, errors.Newf("no database output enabled").
			Component("server").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if err := ds.Open(); err != nil {
		return nil, err
	}

	metrics, err := observability.NewMetrics()
	if err != nil {
		return nil, err
	}

	deps := &Deps{DS: ds, Metrics: metrics}
	deps.Detector = vision.NewDetector(&settings.Vision.Detector, metrics.Vision)
	if embedder, err := vision.NewEmbedder(&settings.Vision.Classifier, metrics.Vision); err != nil {
		log.Warn("classifier model unavailable, recognition disabled until one is provided", "error", err)
	} else {
		deps.Embedder = embedder
	}

	if settings.OCR.Enabled {
		deps.OCREngine, deps.Matcher = buildOCR(settings, log)
	}

	deps.Rebuilder = featurecache.NewRebuilder(ds, settings.Vision.Classifier.EmbeddingSize, metrics.Cache)
	sessions := learning.NewSessionStore(&settings.Learning)
	deps.Learning = learning.NewService(sessions, ds, deps.Rebuilder)
	deps.Pipeline = pipeline.New(settings, deps.Detector, deps.Embedder,
		deps.OCREngine, deps.Matcher, deps.Learning, metrics)

	snap, err := featurecache.LoadSnapshot(ds, settings.Vision.Classifier.EmbeddingSize)
	if err != nil {
		return nil, err
	}
	deps.Pipeline.SetSnapshot(snap)
	metrics.Cache.SetCachedProducts(len(snap.Entries))
	log.Info("service assembled",
		"cached_products", len(snap.Entries),
		"detector_loaded", deps.Detector.Available(),
		"classifier_loaded", deps.Embedder != nil,
		"ocr_enabled", settings.OCR.Enabled)
	return deps, nil
}

// buildOCR creates the tesseract engine and dictionary matcher. OCR is
// assistive; any failure here disables it with a warning instead of
// failing startup.
func buildOCR(settings *conf.Settings, log *slog.Logger) (ocr.Engine, *ocr.Matcher) {
	engine, err := ocr.NewTesseractEngine(settings.OCR.Language)
	if err != nil {
		log.Warn("ocr engine unavailable, text assist disabled", "error", err)
		return nil, nil
	}
	dict, err := ocr.LoadDictionary(settings.OCR.DictionaryPath)
	if err != nil {
		log.Warn("catalog dictionary unavailable, text assist disabled",
			"path", settings.OCR.DictionaryPath, "error", err)
		_ = engine.Close()
		return nil, nil
	}
	return engine, ocr.NewMatcher(dict, defaultTextMatchMinScore)
}

// Close releases models, the OCR engine and the database.
func (d *Deps) Close() {
	if d.Detector != nil {
		d.Detector.Close()
	}
	if d.Embedder != nil {
		_ = d.Embedder.Close()
	}
	if d.OCREngine != nil {
		_ = d.OCREngine.Close()
	}
	if d.DS != nil {
		_ = d.DS.Close()
	}
}

// Run builds the service and serves the API until SIGINT or SIGTERM.
func Run(settings *conf.Settings) error {
	log := logging.ForService("server")

	deps, err := Build(settings)
	if err != nil {
		return err
	}
	defer deps.Close()

	e := echo.New()
	e.HideBanner = true
	e.Debug = settings.WebServer.Debug
	api.New(e, settings, deps.DS, deps.Pipeline, deps.Learning, deps.Rebuilder, deps.Embedder, deps.Metrics)

	errCh := make(chan error, 1)
	go func() {
		port := settings.WebServer.Port
		if port == "" {
			port = "8080"
		}
		log.Info("http server starting", "port", port)
		if err := e.Start(":" + port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return err
	case sig := <-quit:
		log.Info("shutting down", "signal", sig.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return e.Shutdown(ctx)
}
