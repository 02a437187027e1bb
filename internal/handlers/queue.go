package handlers

import (
	"github.com/coursepulse/coursepulse/internal/services"
	"github.com/coursepulse/coursepulse/pkg/response"
	"github.com/gin-gonic/gin"
)

type QueueHandler struct {
	queue *services.JobQueue
}

func NewQueueHandler(queue *services.JobQueue) *QueueHandler {
	return &QueueHandler{queue: queue}
}

// ListJobs returns paginated queue contents
// GET /api/queue/jobs
func (h *QueueHandler) ListJobs(c *gin.Context) {
	var req services.JobListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	resp, err := h.queue.List(&req)
	if err != nil {
		response.ServerError(c, err.Error())
		return
	}

	response.Success(c, resp)
}

// Stats returns queue depth by status
// GET /api/queue/stats
func (h *QueueHandler) Stats(c *gin.Context) {
	stats, err := h.queue.Stats()
	if err != nil {
		response.ServerError(c, err.Error())
		return
	}

	response.Success(c, stats)
}
