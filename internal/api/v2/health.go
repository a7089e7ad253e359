// internal/api/v2/health.go
package api

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

type healthResponse struct {
	Status       string    `json:"status"`
	Products     int       `json:"cached_products"`
	SnapshotTime time.Time `json:"snapshot_loaded_at"`
}

// HealthCheck handles GET /healthz.
func (c *Controller) HealthCheck(ctx echo.Context) error {
	snap := c.Pipeline.Snapshot()
	return ctx.JSON(http.StatusOK, healthResponse{
		Status:       "ok",
		Products:     len(snap.Entries),
		SnapshotTime: snap.LoadedAt,
	})
}
