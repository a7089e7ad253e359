// internal/api/v2/api.go
package api

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/shelfvision/shelfvision-go/internal/conf"
	"github.com/shelfvision/shelfvision-go/internal/datastore"
	"github.com/shelfvision/shelfvision-go/internal/errors"
	"github.com/shelfvision/shelfvision-go/internal/featurecache"
	"github.com/shelfvision/shelfvision-go/internal/learning"
	"github.com/shelfvision/shelfvision-go/internal/logging"
	"github.com/shelfvision/shelfvision-go/internal/observability"
	"github.com/shelfvision/shelfvision-go/internal/pipeline"
	"github.com/shelfvision/shelfvision-go/internal/vision"
)

// Controller manages the API routes and handlers.
type Controller struct {
	Echo      *echo.Echo
	Group     *echo.Group
	DS        datastore.Interface
	Settings  *conf.Settings
	Pipeline  *pipeline.Service
	Learning  *learning.Service
	Rebuilder *featurecache.Rebuilder
	Embedder  vision.Embedder

	metrics   *observability.Metrics
	apiLogger *slog.Logger
}

// New creates the API controller and registers all routes.
func New(e *echo.Echo, settings *conf.Settings, ds datastore.Interface,
	pipelineSvc *pipeline.Service, learningSvc *learning.Service,
	rebuilder *featurecache.Rebuilder, embedder vision.Embedder,
	metrics *observability.Metrics) *Controller {

	c := &Controller{
		Echo:      e,
		DS:        ds,
		Settings:  settings,
		Pipeline:  pipelineSvc,
		Learning:  learningSvc,
		Rebuilder: rebuilder,
		Embedder:  embedder,
		metrics:   metrics,
		apiLogger: logging.ForService("api"),
	}

	e.Use(middleware.Recover())
	c.Group = e.Group("/api/v2")
	c.initRoutes()
	return c
}

func (c *Controller) initRoutes() {
	c.Echo.GET("/healthz", c.HealthCheck)
	if c.metrics != nil {
		c.Echo.GET("/metrics", echo.WrapHandler(c.metrics.Handler()))
	}

	c.Group.POST("/recognize", c.Recognize)
	c.Group.POST("/sessions/:sessionId/detections/:detectionId/confirm", c.ConfirmDetection)
	c.Group.POST("/sessions/:sessionId/detections/:detectionId/correct", c.CorrectDetection)
	c.Group.GET("/sessions/:sessionId/detections/:detectionId/crop", c.GetDetectionCrop)

	c.Group.GET("/products/:productId/cache", c.GetFeatureCache)
	c.Group.POST("/products/:productId/cache/rebuild", c.RebuildProduct)
	c.Group.POST("/cache/rebuild", c.RebuildAll)

	c.Group.GET("/products/:productId/images", c.ListTrainingImages)
	c.Group.POST("/products/:productId/images", c.UploadTrainingImage)
	c.Group.POST("/images/:imageId/verify", c.VerifyTrainingImage)
	c.Group.DELETE("/images/:imageId", c.DeleteTrainingImage)
}

// refreshSnapshot reloads the pipeline's reference snapshot after anything
// changed the feature cache. A failed reload keeps the old snapshot; the
// pipeline must never run against a half-loaded one.
func (c *Controller) refreshSnapshot() {
	snap, err := featurecache.LoadSnapshot(c.DS, c.Settings.Vision.Classifier.EmbeddingSize)
	if err != nil {
		c.apiLogger.Error("snapshot reload failed, keeping previous", "error", err)
		return
	}
	c.Pipeline.SetSnapshot(snap)
}

// errorResponse is the uniform error body.
type errorResponse struct {
	Error string `json:"error"`
}

// HandleError maps categorized errors onto HTTP status codes.
func (c *Controller) HandleError(ctx echo.Context, err error) error {
	status := http.StatusInternalServerError
	switch {
	case errors.IsNotFound(err):
		status = http.StatusNotFound
	case errors.IsCategory(err, errors.CategoryValidation),
		errors.IsCategory(err, errors.CategoryImageDecode):
		status = http.StatusBadRequest
	case errors.IsCategory(err, errors.CategoryConflict):
		status = http.StatusConflict
	case errors.IsModelUnavailable(err):
		status = http.StatusServiceUnavailable
	}
	if status == http.StatusInternalServerError {
		c.apiLogger.Error("request failed", "path", ctx.Path(), "error", err)
	}
	return ctx.JSON(status, errorResponse{Error: err.Error()})
}
