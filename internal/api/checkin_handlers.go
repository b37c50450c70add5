package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ayush-jaipuriar/accountability-agent-sub002/internal"
	"github.com/ayush-jaipuriar/accountability-agent-sub002/internal/feedback"
	"github.com/ayush-jaipuriar/accountability-agent-sub002/internal/response"
	"github.com/ayush-jaipuriar/accountability-agent-sub002/internal/service"
)

// --- Request structs ---

type StartRequest struct {
	Mode string `json:"mode"`
}

type FinalizeRequest struct {
	Metadata map[string]float64 `json:"metadata,omitempty"`
}

type CorrectRequest struct {
	Toggles []string `json:"toggles"`
}

// --- Handlers ---

func StartCheckIn(a *App) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := currentUserID(c)

		var body StartRequest
		if err := c.ShouldBindJSON(&body); err != nil && c.Request.ContentLength > 0 {
			c.JSON(http.StatusBadRequest, response.BadRequest("Invalid JSON: "+err.Error()))
			return
		}
		mode := service.SessionMode(body.Mode)
		if mode == "" {
			mode = service.ModeFull
		}

		res, err := a.Sessions.Start(c.Request.Context(), userID, mode)
		if errors.Is(err, internal.ErrAlreadyCheckedIn) {
			// Surface the existing record so the transport can offer the
			// correction flow when it is still open.
			c.JSON(http.StatusConflict, response.Success(res, map[string]any{
				"reason": "already_checked_in",
			}))
			return
		}
		if err != nil {
			HandleError(c, a.Logger, err, "failed to start check-in")
			return
		}
		HandleSuccess(c, a.Logger, res, nil)
	}
}

func SubmitAnswer(a *App) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := currentUserID(c)

		var body service.AnswerInput
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, response.BadRequest("Invalid JSON: "+err.Error()))
			return
		}

		prompt, err := a.Sessions.SubmitAnswer(c.Request.Context(), userID, body)
		if err != nil {
			HandleError(c, a.Logger, err, "failed to record answer")
			return
		}
		HandleSuccess(c, a.Logger, prompt, nil)
	}
}

func UndoLast(a *App) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := currentUserID(c)
		prompt, err := a.Sessions.UndoLast(c.Request.Context(), userID)
		if err != nil {
			HandleError(c, a.Logger, err, "failed to undo")
			return
		}
		HandleSuccess(c, a.Logger, prompt, nil)
	}
}

func CancelCheckIn(a *App) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := currentUserID(c)
		if err := a.Sessions.Cancel(c.Request.Context(), userID); err != nil {
			HandleError(c, a.Logger, err, "failed to cancel")
			return
		}
		HandleSuccess(c, a.Logger, gin.H{"cancelled": true}, nil)
	}
}

func FinalizeCheckIn(a *App) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := currentUserID(c)

		var body FinalizeRequest
		if err := c.ShouldBindJSON(&body); err != nil && c.Request.ContentLength > 0 {
			c.JSON(http.StatusBadRequest, response.BadRequest("Invalid JSON: "+err.Error()))
			return
		}

		result, err := a.Sessions.Finalize(c.Request.Context(), userID, body.Metadata)
		if err != nil {
			HandleError(c, a.Logger, err, "failed to finalize check-in")
			return
		}

		a.Feedback.Dispatch(feedback.Summary{
			UserID:        userID,
			DayKey:        string(result.Record.DayKey),
			Score:         result.Record.ComplianceScore,
			CurrentStreak: result.Streak.Current,
			WasReset:      result.WasReset,
			NewBadges:     result.NewBadges,
		})

		c.JSON(http.StatusCreated, response.Success(result, nil))
	}
}

func CorrectCheckIn(a *App) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := currentUserID(c)

		var body CorrectRequest
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, response.BadRequest("Invalid JSON: toggles required"))
			return
		}

		st, err := a.Engine.State(c.Request.Context(), userID)
		if err != nil {
			HandleError(c, a.Logger, err, "failed to load state")
			return
		}
		day := a.Engine.LogicalDay(st, a.Engine.Now())

		record, err := a.Engine.ApplyCorrection(c.Request.Context(), userID, day, body.Toggles)
		if err != nil {
			HandleError(c, a.Logger, err, "failed to correct check-in")
			return
		}
		HandleSuccess(c, a.Logger, record, nil)
	}
}

func UseShield(a *App) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := currentUserID(c)
		st, err := a.Engine.UseShield(c.Request.Context(), userID)
		if err != nil {
			HandleError(c, a.Logger, err, "failed to use shield")
			return
		}
		HandleSuccess(c, a.Logger, gin.H{
			"shields_available": st.Shields.Available(),
			"last_checkin_day":  st.Streak.LastCheckInDay,
		}, nil)
	}
}

func GetStatus(a *App) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := currentUserID(c)
		ctx := c.Request.Context()

		st, err := a.Engine.State(ctx, userID)
		if err != nil {
			HandleError(c, a.Logger, err, "failed to load state")
			return
		}
		today := a.Engine.LogicalDay(st, a.Engine.Now())
		record, err := a.Store.GetRecord(ctx, userID, today)
		if err != nil {
			HandleError(c, a.Logger, err, "failed to load today's record")
			return
		}
		open, err := a.Store.ListOpenEvents(ctx, userID)
		if err != nil {
			HandleError(c, a.Logger, err, "failed to load open patterns")
			return
		}

		HandleSuccess(c, a.Logger, gin.H{
			"streak":            st.Streak,
			"shields_available": st.Shields.Available(),
			"achievements":      st.Achievements,
			"checked_in_today":  record != nil,
			"today":             today,
			"open_patterns":     open,
		}, nil)
	}
}
