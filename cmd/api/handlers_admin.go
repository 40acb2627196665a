package main

import (
	"fmt"
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/toop9472-lang/Sgr2040-sub001/internal/settings"
	"github.com/toop9472-lang/Sgr2040-sub001/pkg/models"
)

// Read the live rewarded-ads settings, credentials masked
func (api *API) getAdSettings(c *gin.Context) {
	c.JSON(http.StatusOK, settings.Masked(api.settings.Current()))
}

// Update the rewarded-ads settings. Masked credential values are kept
// as stored, so an admin can round-trip the GET response unchanged.
func (api *API) updateAdSettings(c *gin.Context) {
	var req models.AdSettings
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if req.RewardPoints < 0 || req.DailyLimit < 0 || req.CooldownSeconds < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Settings values must not be negative"})
		return
	}

	updated, err := api.settings.Update(c.Request.Context(), &req)
	if err != nil {
		api.log.ErrorWithErr("Failed to update ad settings", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update settings"})
		return
	}

	api.log.Info("Rewarded-ads settings updated")
	c.JSON(http.StatusOK, settings.Masked(updated))
}

// Upload an advertiser creative and register it for the personal
// provider rotation
func (api *API) uploadPersonalAd(c *gin.Context) {
	file, err := c.FormFile("video")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No video file provided"})
		return
	}

	title := c.PostForm("title")
	advertiser := c.PostForm("advertiser_name")
	if title == "" || advertiser == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "title and advertiser_name are required"})
		return
	}

	duration := 0
	if v := c.PostForm("duration"); v != "" {
		duration, err = strconv.Atoi(v)
		if err != nil || duration <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "duration must be a positive number of seconds"})
			return
		}
	}

	adID := uuid.New().String()
	videoKey := fmt.Sprintf("ads/%s/%s", adID, filepath.Base(file.Filename))

	src, err := file.Open()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read upload"})
		return
	}
	defer src.Close()

	if err := api.storage.Upload(c.Request.Context(), videoKey, src, file.Size, file.Header.Get("Content-Type")); err != nil {
		api.log.ErrorWithErr("Failed to store creative", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to store creative"})
		return
	}

	ad := &models.PersonalAd{
		ID:             adID,
		Title:          title,
		AdvertiserName: advertiser,
		WebsiteURL:     c.PostForm("website_url"),
		VideoKey:       videoKey,
		Duration:       duration,
		Status:         models.AdStatusActive,
	}

	if err := api.repo.CreatePersonalAd(c.Request.Context(), ad); err != nil {
		api.log.ErrorWithErr("Failed to create personal ad", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create ad"})
		return
	}

	c.JSON(http.StatusCreated, ad)
}

// Reward-pipeline health snapshot for operators
func (api *API) pipelineHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  api.monitor.GetSystemHealth(),
		"metrics": api.monitor.GetMetrics(),
		"alerts":  api.monitor.GetAlerts(),
	})
}

// List advertiser creatives with view counters
func (api *API) listPersonalAds(c *gin.Context) {
	limit := 20
	offset := 0
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 100 {
			limit = n
		}
	}
	if v := c.Query("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}

	ads, err := api.repo.ListPersonalAds(c.Request.Context(), limit, offset)
	if err != nil {
		api.log.ErrorWithErr("Failed to list personal ads", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list ads"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"ads":    ads,
		"limit":  limit,
		"offset": offset,
	})
}
