package handlers

import (
	"github.com/coursepulse/coursepulse/internal/models"
	"github.com/coursepulse/coursepulse/pkg/response"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// HistoryHandler serves scrape results and audit entries for the
// dashboard and notification consumers.
type HistoryHandler struct {
	db *gorm.DB
}

func NewHistoryHandler(db *gorm.DB) *HistoryHandler {
	return &HistoryHandler{db: db}
}

type historyListRequest struct {
	Subject  string `form:"subject"`
	Term     string `form:"term"`
	CRN      string `form:"crn"`
	Success  *bool  `form:"success"`
	Page     int    `form:"page"`
	PageSize int    `form:"page_size"`
}

func (r *historyListRequest) normalize() {
	if r.Page < 1 {
		r.Page = 1
	}
	if r.PageSize < 1 || r.PageSize > 200 {
		r.PageSize = 50
	}
}

// ListResults returns scrape outcome history
// GET /api/results
func (h *HistoryHandler) ListResults(c *gin.Context) {
	var req historyListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	req.normalize()

	query := h.db.Model(&models.ScrapeResult{})
	if req.Subject != "" {
		query = query.Where("subject = ?", req.Subject)
	}
	if req.Term != "" {
		query = query.Where("term = ?", req.Term)
	}
	if req.Success != nil {
		query = query.Where("success = ?", *req.Success)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		response.ServerError(c, err.Error())
		return
	}

	var results []models.ScrapeResult
	err := query.
		Order("completed_at DESC").
		Offset((req.Page - 1) * req.PageSize).
		Limit(req.PageSize).
		Find(&results).Error
	if err != nil {
		response.ServerError(c, err.Error())
		return
	}

	response.Success(c, gin.H{"total": total, "results": results})
}

// ListAudits returns field-level change history
// GET /api/audits
func (h *HistoryHandler) ListAudits(c *gin.Context) {
	var req historyListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	req.normalize()

	query := h.db.Model(&models.AuditEntry{})
	if req.Subject != "" {
		query = query.Where("subject = ?", req.Subject)
	}
	if req.Term != "" {
		query = query.Where("term = ?", req.Term)
	}
	if req.CRN != "" {
		query = query.Where("crn = ?", req.CRN)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		response.ServerError(c, err.Error())
		return
	}

	var audits []models.AuditEntry
	err := query.
		Order("created_at DESC").
		Offset((req.Page - 1) * req.PageSize).
		Limit(req.PageSize).
		Find(&audits).Error
	if err != nil {
		response.ServerError(c, err.Error())
		return
	}

	response.Success(c, gin.H{"total": total, "audits": audits})
}
