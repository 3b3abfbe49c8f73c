package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jonesrussell/crawlctl/internal/cancel"
	"github.com/jonesrussell/crawlctl/internal/domain"
	"github.com/jonesrussell/crawlctl/internal/job"
	"github.com/jonesrussell/crawlctl/internal/store"
)

// JobsHandler handles job submission, lookup, and cancellation.
type JobsHandler struct {
	submission *job.Service
	jobs       *store.JobRepository
	coord      *cancel.Coordinator
}

// NewJobsHandler wires a jobs handler over Submission, the job store, and
// the cancellation coordinator.
func NewJobsHandler(submission *job.Service, jobs *store.JobRepository, coord *cancel.Coordinator) *JobsHandler {
	return &JobsHandler{submission: submission, jobs: jobs, coord: coord}
}

// SubmitTemplateJobRequest is the POST /api/v1/jobs body for a
// template-based submission.
type SubmitTemplateJobRequest struct {
	WebsiteRef string         `json:"website_ref" binding:"required"`
	SeedURL    string         `json:"seed_url" binding:"required"`
	Variables  domain.JSONMap `json:"variables"`
	Priority   int            `json:"priority"`
}

// SubmitInlineJobRequest is the POST /api/v1/jobs/inline body.
type SubmitInlineJobRequest struct {
	SeedURL      string              `json:"seed_url" binding:"required"`
	Steps        []domain.InlineStep `json:"steps" binding:"required"`
	GlobalConfig domain.JSONMap      `json:"global_config"`
	Variables    domain.JSONMap      `json:"variables"`
	Priority     int                 `json:"priority"`
}

// CancelJobRequest is the POST /api/v1/jobs/:id/cancel body.
type CancelJobRequest struct {
	CancelledBy string `json:"cancelled_by" binding:"required"`
	Reason      string `json:"reason"`
}

// List handles GET /api/v1/jobs.
func (h *JobsHandler) List(c *gin.Context) {
	limit, offset := pageParams(c)
	params := store.ListParams{
		Status:     c.Query("status"),
		WebsiteRef: c.Query("website_ref"),
		Limit:      limit,
		Offset:     offset,
	}

	jobs, err := h.jobs.List(c.Request.Context(), params)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list jobs"})
		return
	}
	total, err := h.jobs.Count(c.Request.Context(), params)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to count jobs"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"jobs": jobs, "total": total})
}

// Get handles GET /api/v1/jobs/:id.
func (h *JobsHandler) Get(c *gin.Context) {
	j, err := h.jobs.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, j)
}

// SubmitTemplate handles POST /api/v1/jobs.
func (h *JobsHandler) SubmitTemplate(c *gin.Context) {
	var req SubmitTemplateJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	j, err := h.submission.CreateTemplateJob(c.Request.Context(), job.CreateTemplateJobParams{
		WebsiteRef: req.WebsiteRef,
		SeedURL:    req.SeedURL,
		Variables:  req.Variables,
		Priority:   req.Priority,
	})
	if err != nil {
		respondSubmissionError(c, err)
		return
	}
	c.JSON(http.StatusCreated, j)
}

// SubmitInline handles POST /api/v1/jobs/inline.
func (h *JobsHandler) SubmitInline(c *gin.Context) {
	var req SubmitInlineJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	j, err := h.submission.CreateInlineJob(c.Request.Context(), job.CreateInlineJobParams{
		SeedURL:      req.SeedURL,
		Steps:        req.Steps,
		GlobalConfig: req.GlobalConfig,
		Variables:    req.Variables,
		Priority:     req.Priority,
	})
	if err != nil {
		respondSubmissionError(c, err)
		return
	}
	c.JSON(http.StatusCreated, j)
}

// Cancel handles POST /api/v1/jobs/:id/cancel.
func (h *JobsHandler) Cancel(c *gin.Context) {
	var req CancelJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	result, err := h.coord.Cancel(c.Request.Context(), c.Param("id"), req.CancelledBy, req.Reason)
	if err != nil {
		if errors.Is(err, job.ErrAlreadyTerminal) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to cancel job"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"job_id":          result.JobID,
		"cleanup_started": result.CleanupStarted,
		"cleanup_ended":   result.CleanupEnded,
		"duration_ms":     result.Duration().Milliseconds(),
		"resources":       result.Resources,
	})
}

func respondSubmissionError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, job.ErrWebsiteNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, job.ErrWebsiteInactive), errors.Is(err, job.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
