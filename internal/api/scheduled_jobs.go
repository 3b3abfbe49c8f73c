package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jonesrussell/crawlctl/internal/domain"
	"github.com/jonesrussell/crawlctl/internal/store"
)

// ScheduledJobsHandler handles recurring cron trigger CRUD.
type ScheduledJobsHandler struct {
	repo *store.ScheduledJobRepository
}

// NewScheduledJobsHandler creates a scheduled jobs handler.
func NewScheduledJobsHandler(repo *store.ScheduledJobRepository) *ScheduledJobsHandler {
	return &ScheduledJobsHandler{repo: repo}
}

// CreateScheduledJobRequest is the POST /api/v1/scheduled-jobs body.
type CreateScheduledJobRequest struct {
	WebsiteRef   string         `json:"website_ref" binding:"required"`
	CronSchedule string         `json:"cron_schedule" binding:"required"`
	Timezone     string         `json:"timezone" binding:"required"`
	JobConfig    domain.JSONMap `json:"job_config"`
}

// SetActiveRequest is the PUT /api/v1/scheduled-jobs/:id/active body.
type SetActiveRequest struct {
	Active bool `json:"active"`
}

// List handles GET /api/v1/scheduled-jobs.
func (h *ScheduledJobsHandler) List(c *gin.Context) {
	limit, offset := pageParams(c)
	rows, err := h.repo.List(c.Request.Context(), limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list scheduled jobs"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"scheduled_jobs": rows})
}

// Get handles GET /api/v1/scheduled-jobs/:id.
func (h *ScheduledJobsHandler) Get(c *gin.Context) {
	sj, err := h.repo.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, sj)
}

// Create handles POST /api/v1/scheduled-jobs. next_run_time starts at now,
// so the Scheduler materializes a first Job on its next tick and then
// advances next_run_time to the following cron occurrence.
func (h *ScheduledJobsHandler) Create(c *gin.Context) {
	var req CreateScheduledJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}
	if _, err := time.LoadLocation(req.Timezone); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid timezone: " + err.Error()})
		return
	}

	sj := &domain.ScheduledJob{
		WebsiteRef:   req.WebsiteRef,
		CronSchedule: req.CronSchedule,
		Timezone:     req.Timezone,
		NextRunTime:  time.Now().UTC(),
		IsActive:     true,
		JobConfig:    req.JobConfig,
	}
	if err := h.repo.Create(c.Request.Context(), sj); err != nil {
		respondStoreError(c, err)
		return
	}
	c.JSON(http.StatusCreated, sj)
}

// SetActive handles PUT /api/v1/scheduled-jobs/:id/active.
func (h *ScheduledJobsHandler) SetActive(c *gin.Context) {
	var req SetActiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}
	if err := h.repo.SetActive(c.Request.Context(), c.Param("id"), req.Active); err != nil {
		respondStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "updated"})
}

// Delete handles DELETE /api/v1/scheduled-jobs/:id.
func (h *ScheduledJobsHandler) Delete(c *gin.Context) {
	if err := h.repo.Delete(c.Request.Context(), c.Param("id")); err != nil {
		respondStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "deleted"})
}
