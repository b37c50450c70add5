package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ayush-jaipuriar/accountability-agent-sub002/internal/response"
)

// asOf lets the scheduler (and tests) pin the scan instant; defaults to now.
func asOf(c *gin.Context, a *App) (time.Time, bool) {
	raw := c.Query("as_of")
	if raw == "" {
		return a.Engine.Now(), true
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, response.BadRequest("as_of must be RFC3339"))
		return time.Time{}, false
	}
	return t, true
}

func RunPatternScan(a *App) gin.HandlerFunc {
	return func(c *gin.Context) {
		at, ok := asOf(c, a)
		if !ok {
			return
		}
		events, err := a.Detector.RunScan(c.Request.Context(), at)
		if err != nil {
			HandleError(c, a.Logger, err, "pattern scan failed")
			return
		}
		HandleSuccess(c, a.Logger, events, map[string]any{"emitted": len(events)})
	}
}

func RunGhostingScan(a *App) gin.HandlerFunc {
	return func(c *gin.Context) {
		at, ok := asOf(c, a)
		if !ok {
			return
		}
		events, err := a.Detector.RunGhostingScan(c.Request.Context(), at)
		if err != nil {
			HandleError(c, a.Logger, err, "ghosting scan failed")
			return
		}
		HandleSuccess(c, a.Logger, events, map[string]any{"emitted": len(events)})
	}
}
