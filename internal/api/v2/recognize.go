// internal/api/v2/recognize.go
package api

import (
	"io"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/shelfvision/shelfvision-go/internal/errors"
	"github.com/shelfvision/shelfvision-go/internal/pipeline"
)

// maxImageBytes caps uploaded images at 16 MiB.
const maxImageBytes = 16 << 20

// readImageFile reads the "image" multipart field, enforcing the size cap.
func (c *Controller) readImageFile(ctx echo.Context) ([]byte, error) {
	fileHeader, err := ctx.FormFile("image")
	if err != nil {
		return nil, errors.Newf("multipart field %q is required", "image").
			Component("api").
			Category(errors.CategoryValidation).
			Build()
	}
	if fileHeader.Size > maxImageBytes {
		return nil, errors.Newf("image exceeds the %d byte limit", maxImageBytes).
			Component("api").
			Category(errors.CategoryValidation).
			Build()
	}

	f, err := fileHeader.Open()
	if err != nil {
		return nil, errors.New(err).
			Component("api").
			Category(errors.CategoryFileIO).
			Build()
	}
	defer f.Close()

	imageBytes, err := io.ReadAll(io.LimitReader(f, maxImageBytes+1))
	if err != nil {
		return nil, errors.New(err).
			Component("api").
			Category(errors.CategoryFileIO).
			Build()
	}
	return imageBytes, nil
}

// Recognize handles POST /api/v2/recognize. It accepts a multipart form
// with an "image" file and returns per-detection results plus the session
// id the feedback endpoints operate on. Optional form fields:
// "store_crops" keeps per-detection crops on the session for later
// review, "count_session_id" tags the run with an external stock-count
// session.
func (c *Controller) Recognize(ctx echo.Context) error {
	imageBytes, err := c.readImageFile(ctx)
	if err != nil {
		return c.HandleError(ctx, err)
	}

	opts := pipeline.RecognizeOptions{
		CountSessionID: ctx.FormValue("count_session_id"),
	}
	if raw := ctx.FormValue("store_crops"); raw != "" {
		storeCrops, err := strconv.ParseBool(raw)
		if err != nil {
			return c.HandleError(ctx, errors.Newf("invalid store_crops value %q", raw).
				Component("api").
				Category(errors.CategoryValidation).
				Build())
		}
		opts.StoreCrops = storeCrops
	}

	result, err := c.Pipeline.Recognize(ctx.Request().Context(), imageBytes, opts)
	if err != nil {
		return c.HandleError(ctx, err)
	}
	return ctx.JSON(http.StatusOK, result)
}

// GetDetectionCrop handles GET
// /api/v2/sessions/:sessionId/detections/:detectionId/crop. It serves the
// stored crop of one detection; crops exist only for runs that asked for
// them via store_crops.
func (c *Controller) GetDetectionCrop(ctx echo.Context) error {
	sess, err := c.Learning.Sessions().Get(ctx.Param("sessionId"))
	if err != nil {
		return c.HandleError(ctx, err)
	}
	cand, ok := sess.Candidates[ctx.Param("detectionId")]
	if !ok {
		return c.HandleError(ctx, errors.Newf("detection %s not in session %s",
			ctx.Param("detectionId"), ctx.Param("sessionId")).
			Component("api").
			Category(errors.CategoryNotFound).
			Build())
	}
	if len(cand.CropJPEG) == 0 {
		return c.HandleError(ctx, errors.Newf("no crop stored for detection %s", cand.DetectionID).
			Component("api").
			Category(errors.CategoryNotFound).
			Build())
	}
	return ctx.Blob(http.StatusOK, "image/jpeg", cand.CropJPEG)
}
