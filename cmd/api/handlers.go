package main

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/toop9472-lang/Sgr2040-sub001/internal/callback"
	"github.com/toop9472-lang/Sgr2040-sub001/internal/database"
	"github.com/toop9472-lang/Sgr2040-sub001/internal/mediation"
	"github.com/toop9472-lang/Sgr2040-sub001/internal/middleware"
	"github.com/toop9472-lang/Sgr2040-sub001/internal/session"
	"github.com/toop9472-lang/Sgr2040-sub001/pkg/models"
)

// Request the next rewarded ad for the authenticated user
func (api *API) nextAd(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}

	offer, err := api.selector.RequestNextAd(c.Request.Context(), userID)
	if err != nil {
		if denied := mediation.Denied(err); denied != nil {
			c.JSON(denialStatus(denied.Reason), gin.H{
				"error":               denied.Reason,
				"retry_after_seconds": int(denied.RetryAfter.Seconds()),
			})
			return
		}
		api.log.ErrorWithErr("Failed to serve next ad", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to serve ad"})
		return
	}

	c.JSON(http.StatusOK, offer)
}

// Record that playback started for a session
func (api *API) startSession(c *gin.Context) {
	userID, _ := middleware.GetUserID(c)
	sessionID := c.Param("id")

	s, err := api.sessions.Start(c.Request.Context(), sessionID, userID)
	if err != nil {
		if errors.Is(err, session.ErrForeignSession) {
			api.log.LogSuspiciousCompletion(userID, sessionID, "start for unknown session")
			c.JSON(http.StatusNotFound, gin.H{"error": "Session not found"})
			return
		}
		api.log.ErrorWithErr("Failed to start session", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to start session"})
		return
	}

	c.JSON(http.StatusOK, s)
}

// Report playback finished and settle the session
func (api *API) completeSession(c *gin.Context) {
	userID, _ := middleware.GetUserID(c)
	sessionID := c.Param("id")

	var req models.CompleteAdRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	report := session.Report{
		Completed:     req.Completed,
		WatchDuration: req.WatchDuration,
	}

	result, err := api.sessions.Complete(c.Request.Context(), sessionID, userID, report)
	if err != nil {
		if errors.Is(err, session.ErrForeignSession) {
			api.log.LogSuspiciousCompletion(userID, sessionID, "completion for unknown session")
			c.JSON(http.StatusNotFound, gin.H{"error": "Session not found"})
			return
		}
		api.log.ErrorWithErr("Failed to complete session", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to complete session"})
		return
	}

	c.JSON(http.StatusOK, result)
}

// Fetch a session, e.g. to resume after a conflict
func (api *API) getSession(c *gin.Context) {
	userID, _ := middleware.GetUserID(c)
	sessionID := c.Param("id")

	s, err := api.sessions.Get(c.Request.Context(), sessionID, userID)
	if err != nil {
		if errors.Is(err, session.ErrForeignSession) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Session not found"})
			return
		}
		api.log.ErrorWithErr("Failed to get session", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get session"})
		return
	}

	c.JSON(http.StatusOK, s)
}

// Rewarded-ads stats for the authenticated user
func (api *API) getStats(c *gin.Context) {
	userID, _ := middleware.GetUserID(c)
	ctx := c.Request.Context()

	profile, err := api.repo.GetProfile(ctx, userID)
	if errors.Is(err, database.ErrNotFound) {
		profile = &models.RewardProfile{UserID: userID}
	} else if err != nil {
		api.log.ErrorWithErr("Failed to get profile", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get stats"})
		return
	}

	stats, err := api.repo.GetUserStats(ctx, userID, models.DayStart(time.Now().UTC()))
	if err != nil {
		api.log.ErrorWithErr("Failed to get stats", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get stats"})
		return
	}

	settings := api.settings.Current()
	remaining := 0
	if settings.DailyLimit > 0 {
		remaining = settings.DailyLimit - stats.TodayViews
		if remaining < 0 {
			remaining = 0
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"points_balance":  profile.PointsBalance,
		"today_views":     stats.TodayViews,
		"today_points":    stats.TodayPoints,
		"total_views":     stats.TotalViews,
		"total_points":    stats.TotalPoints,
		"daily_limit":     settings.DailyLimit,
		"remaining_today": remaining,
	})
}

// Weekly top earners
func (api *API) getLeaderboard(c *gin.Context) {
	entries, err := api.cache.TopEarners(c.Request.Context(), time.Now().UTC(), 10)
	if err != nil {
		api.log.ErrorWithErr("Failed to read leaderboard", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read leaderboard"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"leaderboard": entries})
}

// Unity server-to-server completion callback
func (api *API) unityCallback(c *gin.Context) {
	params := make(map[string]string)
	for key, values := range c.Request.URL.Query() {
		if len(values) > 0 {
			params[key] = values[0]
		}
	}

	result, err := api.unity.Process(c.Request.Context(), params)
	if err != nil {
		switch {
		case errors.Is(err, callback.ErrBadSignature):
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid signature"})
		case errors.Is(err, callback.ErrMissingSession):
			c.JSON(http.StatusBadRequest, gin.H{"error": "Missing session id"})
		case errors.Is(err, session.ErrForeignSession):
			c.JSON(http.StatusNotFound, gin.H{"error": "Session not found"})
		default:
			api.log.ErrorWithErr("Failed to process unity callback", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Callback processing failed"})
		}
		return
	}

	// Unity retries anything but 200.
	c.JSON(http.StatusOK, gin.H{"status": "ok", "state": result.State})
}
