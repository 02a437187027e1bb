package handlers

import (
	"strconv"

	"github.com/coursepulse/coursepulse/internal/models"
	"github.com/coursepulse/coursepulse/internal/services"
	"github.com/coursepulse/coursepulse/pkg/response"
	"github.com/gin-gonic/gin"
)

type SettingsHandler struct {
	settings *services.SettingsService
}

func NewSettingsHandler(settings *services.SettingsService) *SettingsHandler {
	return &SettingsHandler{settings: settings}
}

// GetPrioritySubjects returns the urgent-priority subject list
// GET /api/settings/priority-subjects
func (h *SettingsHandler) GetPrioritySubjects(c *gin.Context) {
	response.Success(c, gin.H{"subjects": h.settings.PrioritySubjects()})
}

type prioritySubjectsRequest struct {
	Subjects []string `json:"subjects" binding:"required"`
}

// SetPrioritySubjects replaces the urgent-priority subject list
// PUT /api/settings/priority-subjects
func (h *SettingsHandler) SetPrioritySubjects(c *gin.Context) {
	var req prioritySubjectsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	if err := h.settings.SetPrioritySubjects(req.Subjects); err != nil {
		response.ServerError(c, err.Error())
		return
	}

	response.Success(c, gin.H{"subjects": h.settings.PrioritySubjects()})
}

// GetIntervals returns the scheduler settings rows
// GET /api/settings/intervals
func (h *SettingsHandler) GetIntervals(c *gin.Context) {
	configs, err := h.settings.GetByGroup("scheduler")
	if err != nil {
		response.ServerError(c, err.Error())
		return
	}
	response.Success(c, configs)
}

type intervalsRequest struct {
	MinSpacingMinutes *int    `json:"min_spacing_minutes"`
	FullRefreshCron   *string `json:"full_refresh_cron"`
}

// SetIntervals updates the editable refresh settings
// PUT /api/settings/intervals
func (h *SettingsHandler) SetIntervals(c *gin.Context) {
	var req intervalsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	if req.MinSpacingMinutes != nil {
		if *req.MinSpacingMinutes < 0 {
			response.BadRequest(c, "min_spacing_minutes must be non-negative")
			return
		}
		if err := h.settings.Set(models.ConfigKeyMinSpacingMin, strconv.Itoa(*req.MinSpacingMinutes)); err != nil {
			response.ServerError(c, err.Error())
			return
		}
	}
	if req.FullRefreshCron != nil {
		if err := h.settings.Set(models.ConfigKeyFullRefreshCron, *req.FullRefreshCron); err != nil {
			response.ServerError(c, err.Error())
			return
		}
	}

	configs, err := h.settings.GetByGroup("scheduler")
	if err != nil {
		response.ServerError(c, err.Error())
		return
	}
	response.Success(c, configs)
}
