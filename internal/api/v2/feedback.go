// internal/api/v2/feedback.go
package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/shelfvision/shelfvision-go/internal/errors"
	"github.com/shelfvision/shelfvision-go/internal/learning"
)

type feedbackRequest struct {
	ProductID string `json:"product_id"` // corrections only
	Reviewer  string `json:"reviewer"`
}

type feedbackResponse struct {
	DetectionID string `json:"detection_id"`
	ProductID   string `json:"product_id"`
	State       string `json:"state"`
}

// ConfirmDetection handles POST
// /api/v2/sessions/:sessionId/detections/:detectionId/confirm.
func (c *Controller) ConfirmDetection(ctx echo.Context) error {
	var req feedbackRequest
	if err := ctx.Bind(&req); err != nil {
		return c.HandleError(ctx, errors.New(err).
			Component("api").
			Category(errors.CategoryValidation).
			Build())
	}

	cand, err := c.Learning.Confirm(ctx.Request().Context(),
		ctx.Param("sessionId"), ctx.Param("detectionId"), req.Reviewer)
	if err != nil {
		return c.HandleError(ctx, err)
	}

	c.refreshSnapshot()
	return ctx.JSON(http.StatusOK, candidateResponse(cand))
}

// CorrectDetection handles POST
// /api/v2/sessions/:sessionId/detections/:detectionId/correct.
func (c *Controller) CorrectDetection(ctx echo.Context) error {
	var req feedbackRequest
	if err := ctx.Bind(&req); err != nil {
		return c.HandleError(ctx, errors.New(err).
			Component("api").
			Category(errors.CategoryValidation).
			Build())
	}

	cand, err := c.Learning.Correct(ctx.Request().Context(),
		ctx.Param("sessionId"), ctx.Param("detectionId"), req.ProductID, req.Reviewer)
	if err != nil {
		return c.HandleError(ctx, err)
	}

	c.refreshSnapshot()
	return ctx.JSON(http.StatusOK, candidateResponse(cand))
}

func candidateResponse(cand *learning.Candidate) feedbackResponse {
	return feedbackResponse{
		DetectionID: cand.DetectionID,
		ProductID:   cand.ProductID,
		State:       cand.State,
	}
}
