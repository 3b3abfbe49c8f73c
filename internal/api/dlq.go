package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/jonesrussell/crawlctl/internal/dlq"
)

// DLQHandler exposes the dead-letter queue operator surface.
type DLQHandler struct {
	mgr *dlq.Manager
}

// NewDLQHandler creates a DLQ handler.
func NewDLQHandler(mgr *dlq.Manager) *DLQHandler {
	return &DLQHandler{mgr: mgr}
}

// RetryDLQRequest is the POST /api/v1/dlq/:id/retry body.
type RetryDLQRequest struct {
	Success *bool `json:"success"`
}

// ResolveDLQRequest is the POST /api/v1/dlq/:id/resolve body.
type ResolveDLQRequest struct {
	Notes string `json:"notes"`
}

// List handles GET /api/v1/dlq.
func (h *DLQHandler) List(c *gin.Context) {
	limit, offset := pageParams(c)
	unresolvedOnly := c.DefaultQuery("unresolved_only", "true") == "true"

	entries, err := h.mgr.List(c.Request.Context(), unresolvedOnly, limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list dlq entries"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

// Get handles GET /api/v1/dlq/job/:job_id, the active entry for a job.
func (h *DLQHandler) Get(c *gin.Context) {
	entry, err := h.mgr.Get(c.Request.Context(), c.Param("job_id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, entry)
}

// Retry handles POST /api/v1/dlq/:id/retry, recording a manual operator
// retry attempt.
func (h *DLQHandler) Retry(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid dlq entry id"})
		return
	}
	var req RetryDLQRequest
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}
	if err := h.mgr.RecordManualRetry(c.Request.Context(), id, req.Success); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "retry recorded"})
}

// Resolve handles POST /api/v1/dlq/:id/resolve.
func (h *DLQHandler) Resolve(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid dlq entry id"})
		return
	}
	var req ResolveDLQRequest
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}
	if err := h.mgr.Resolve(c.Request.Context(), id, req.Notes); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "resolved"})
}
