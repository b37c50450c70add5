package api

import (
	"github.com/gin-gonic/gin"

	"github.com/ayush-jaipuriar/accountability-agent-sub002/internal"
	"github.com/ayush-jaipuriar/accountability-agent-sub002/internal/auth"
	"github.com/ayush-jaipuriar/accountability-agent-sub002/internal/config"
	"github.com/ayush-jaipuriar/accountability-agent-sub002/internal/feedback"
	"github.com/ayush-jaipuriar/accountability-agent-sub002/internal/service"
	"github.com/ayush-jaipuriar/accountability-agent-sub002/internal/storage"
)

// App bundles the constructed services the handlers close over.
type App struct {
	Sessions *service.SessionManager
	Engine   *service.Engine
	Detector *service.Detector
	Store    storage.Store
	Feedback *feedback.Dispatcher
	Logger   internal.Logger
}

// Routes registers the transport surface. /internal endpoints are the
// scheduler collaborator's entrypoints and sit behind the same auth.
func (a *App) Routes(r *gin.Engine, provider auth.Provider, cfg *config.Config) {
	r.Use(RequestIDMiddleware())
	r.Use(RateLimitMiddleware(cfg.RateLimitPerMinute))
	r.Use(auth.AuthMiddleware(provider, cfg))

	r.POST("/checkin/start", StartCheckIn(a))
	r.POST("/checkin/answer", SubmitAnswer(a))
	r.POST("/checkin/undo", UndoLast(a))
	r.POST("/checkin/cancel", CancelCheckIn(a))
	r.POST("/checkin/finalize", FinalizeCheckIn(a))
	r.POST("/checkin/correct", CorrectCheckIn(a))
	r.POST("/shield/use", UseShield(a))
	r.GET("/status", GetStatus(a))

	r.POST("/internal/scan/patterns", RunPatternScan(a))
	r.POST("/internal/scan/ghosting", RunGhostingScan(a))
}
