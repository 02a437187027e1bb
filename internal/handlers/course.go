package handlers

import (
	"github.com/coursepulse/coursepulse/internal/models"
	"github.com/coursepulse/coursepulse/pkg/response"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// CourseHandler serves read access to the mirrored catalog.
type CourseHandler struct {
	db *gorm.DB
}

func NewCourseHandler(db *gorm.DB) *CourseHandler {
	return &CourseHandler{db: db}
}

type courseListRequest struct {
	Subject  string `form:"subject"`
	Term     string `form:"term"`
	CRN      string `form:"crn"`
	Open     *bool  `form:"open"`
	Page     int    `form:"page"`
	PageSize int    `form:"page_size"`
}

// List returns mirrored course sections
// GET /api/courses
func (h *CourseHandler) List(c *gin.Context) {
	var req courseListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	if req.Page < 1 {
		req.Page = 1
	}
	if req.PageSize < 1 || req.PageSize > 200 {
		req.PageSize = 50
	}

	query := h.db.Model(&models.Course{})
	if req.Subject != "" {
		query = query.Where("subject = ?", req.Subject)
	}
	if req.Term != "" {
		query = query.Where("term = ?", req.Term)
	}
	if req.CRN != "" {
		query = query.Where("crn = ?", req.CRN)
	}
	if req.Open != nil {
		query = query.Where("open = ?", *req.Open)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		response.ServerError(c, err.Error())
		return
	}

	var courses []models.Course
	err := query.
		Order("subject ASC, course_number ASC, crn ASC").
		Offset((req.Page - 1) * req.PageSize).
		Limit(req.PageSize).
		Find(&courses).Error
	if err != nil {
		response.ServerError(c, err.Error())
		return
	}

	response.Success(c, gin.H{"total": total, "courses": courses})
}
