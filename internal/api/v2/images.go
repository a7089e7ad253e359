// internal/api/v2/images.go
package api

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/shelfvision/shelfvision-go/internal/datastore"
	"github.com/shelfvision/shelfvision-go/internal/errors"
	"github.com/shelfvision/shelfvision-go/internal/imageutil"
)

// UploadTrainingImage handles POST /api/v2/products/:productId/images. The
// multipart "image" file is embedded with the live classifier and stored
// as an unverified training image; the product's cache is rebuilt so the
// new vector contributes immediately. An optional "created_by" form field
// records who uploaded it.
func (c *Controller) UploadTrainingImage(ctx echo.Context) error {
	if c.Embedder == nil {
		return c.HandleError(ctx, errors.Newf("no classifier model loaded, uploads unavailable").
			Component("api").
			Category(errors.CategoryModelInit).
			Build())
	}

	productID := ctx.Param("productId")
	imageBytes, err := c.readImageFile(ctx)
	if err != nil {
		return c.HandleError(ctx, err)
	}
	img, err := imageutil.Decode(imageBytes)
	if err != nil {
		return c.HandleError(ctx, err)
	}

	embedding, err := c.Embedder.Embed(ctx.Request().Context(), img)
	if err != nil {
		return c.HandleError(ctx, err)
	}

	row := &datastore.TrainingImage{
		ProductID:       productID,
		Vector:          datastore.EncodeVector(embedding),
		ColorDescriptor: datastore.EncodeVector(imageutil.ColorDescriptor(img)),
		Source:          "upload",
		CreatedBy:       ctx.FormValue("created_by"),
	}
	if err := c.DS.SaveTrainingImage(row); err != nil {
		return c.HandleError(ctx, err)
	}

	if err := c.Rebuilder.Rebuild(ctx.Request().Context(), productID); err != nil {
		c.apiLogger.Error("rebuild after image upload failed",
			"product_id", productID, "error", err)
	}
	c.refreshSnapshot()

	return ctx.JSON(http.StatusCreated, trainingImageResponse{
		ID:         row.ID,
		ProductID:  row.ProductID,
		Confidence: row.Confidence,
		Verified:   row.Verified,
		Source:     row.Source,
		CreatedBy:  row.CreatedBy,
		CreatedAt:  row.CreatedAt,
	})
}

// VerifyTrainingImage handles POST /api/v2/images/:imageId/verify. It
// marks an uploaded image as reviewed and rebuilds the owning product's
// cache.
func (c *Controller) VerifyTrainingImage(ctx echo.Context) error {
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
	if err := c.DS.SetTrainingImageVerified(uint(id), true); err != nil {
		return c.HandleError(ctx, err)
	}
	if err := c.Rebuilder.Rebuild(ctx.Request().Context(), img.ProductID); err != nil {
		c.apiLogger.Error("rebuild after image verification failed",
			"product_id", img.ProductID, "error", err)
	}
	c.refreshSnapshot()

	return ctx.JSON(http.StatusOK, trainingImageResponse{
		ID:         img.ID,
		ProductID:  img.ProductID,
		Confidence: img.Confidence,
		Verified:   true,
		Source:     img.Source,
		CreatedBy:  img.CreatedBy,
		CreatedAt:  img.CreatedAt,
	})
}
