// internal/api/v2/cache.go
package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/shelfvision/shelfvision-go/internal/errors"
)

type featureCacheResponse struct {
	ProductID  string    `json:"product_id"`
	Dimension  int       `json:"dimension"`
	ImageCount int       `json:"image_count"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type trainingImageResponse struct {
	ID         uint      `json:"id"`
	ProductID  string    `json:"product_id"`
	Confidence float64   `json:"confidence"`
	Verified   bool      `json:"verified"`
	Source     string    `json:"source"`
	CreatedBy  string    `json:"created_by,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

type rebuildResponse struct {
	Status string `json:"status"`
}

// GetFeatureCache handles GET /api/v2/products/:productId/cache.
func (c *Controller) GetFeatureCache(ctx echo.Context) error {
	row, err := c.DS.GetFeatureCache(ctx.Param("productId"))
	if err != nil {
		return c.HandleError(ctx, err)
	}
	return ctx.JSON(http.StatusOK, featureCacheResponse{
		ProductID:  row.ProductID,
		Dimension:  c.Settings.Vision.Classifier.EmbeddingSize,
		ImageCount: row.ImageCount,
		UpdatedAt:  row.UpdatedAt,
	})
}

// RebuildProduct handles POST /api/v2/products/:productId/cache/rebuild.
func (c *Controller) RebuildProduct(ctx echo.Context) error {
	if err := c.Rebuilder.Rebuild(ctx.Request().Context(), ctx.Param("productId")); err != nil {
		return c.HandleError(ctx, err)
	}
	c.refreshSnapshot()
	return ctx.JSON(http.StatusOK, rebuildResponse{Status: "rebuilt"})
}

// RebuildAll handles POST /api/v2/cache/rebuild.
func (c *Controller) RebuildAll(ctx echo.Context) error {
	concurrency := c.Settings.Rebuild.Concurrency
	if err := c.Rebuilder.RebuildAll(ctx.Request().Context(), concurrency); err != nil {
		return c.HandleError(ctx, err)
	}
	c.refreshSnapshot()
	return ctx.JSON(http.StatusOK, rebuildResponse{Status: "rebuilt"})
}

// ListTrainingImages handles GET /api/v2/products/:productId/images.
func (c *Controller) ListTrainingImages(ctx echo.Context) error {
	imgs, err := c.DS.GetTrainingImagesByProduct(ctx.Param("productId"))
	if err != nil {
		return c.HandleError(ctx, err)
	}
	out := make([]trainingImageResponse, 0, len(imgs))
	for i := range imgs {
		out = append(out, trainingImageResponse{
			ID:         imgs[i].ID,
			ProductID:  imgs[i].ProductID,
			Confidence: imgs[i].Confidence,
			Verified:   imgs[i].Verified,
			Source:     imgs[i].Source,
			CreatedBy:  imgs[i].CreatedBy,
			CreatedAt:  imgs[i].CreatedAt,
		})
	}
	return ctx.JSON(http.StatusOK, out)
}

// DeleteTrainingImage handles DELETE /api/v2/images/:imageId. The owning
// product's cache is rebuilt so the removed vector stops contributing.
func (c *Controller) DeleteTrainingImage(ctx echo.Context) error {
	id, err := strconv.ParseUint(ctx.Param("imageId"), 10, 32)
	if err != nil {
		return c.HandleError(ctx, errors.Newf("invalid image id %q", ctx.Param("imageId")).
			Component("api").
			Category(errors.CategoryValidation).
			Build())
	}

	img, err := c.DS.GetTrainingImage(uint(id))
	if err != nil {
		return c.HandleError(ctx, err)
	}
	if err := c.DS.DeleteTrainingImage(uint(id)); err != nil {
		return c.HandleError(ctx, err)
	}
	if err := c.Rebuilder.Rebuild(ctx.Request().Context(), img.ProductID); err != nil {
		c.apiLogger.Error("rebuild after image delete failed",
			"product_id", img.ProductID, "error", err)
	}
	c.refreshSnapshot()
	return ctx.NoContent(http.StatusNoContent)
}
