package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/jonesrussell/crawlctl/internal/domain"
	"github.com/jonesrussell/crawlctl/internal/store"
)

// WebsitesHandler handles website template CRUD.
type WebsitesHandler struct {
	repo *store.WebsiteRepository
}

// NewWebsitesHandler creates a websites handler.
func NewWebsitesHandler(repo *store.WebsiteRepository) *WebsitesHandler {
	return &WebsitesHandler{repo: repo}
}

// CreateWebsiteRequest is the POST /api/v1/websites body.
type CreateWebsiteRequest struct {
	Name        string         `json:"name" binding:"required"`
	BaseURL     string         `json:"base_url" binding:"required"`
	Config      domain.JSONMap `json:"config"`
	DefaultCron *string        `json:"default_cron"`
}

// UpdateWebsiteRequest is the PUT /api/v1/websites/:id body.
type UpdateWebsiteRequest struct {
	Name        string         `json:"name" binding:"required"`
	BaseURL     string         `json:"base_url" binding:"required"`
	Status      string         `json:"status" binding:"required"`
	Config      domain.JSONMap `json:"config"`
	DefaultCron *string        `json:"default_cron"`
}

// List handles GET /api/v1/websites.
func (h *WebsitesHandler) List(c *gin.Context) {
	limit, offset := pageParams(c)
	sites, err := h.repo.List(c.Request.Context(), limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list websites"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"websites": sites})
}

// Get handles GET /api/v1/websites/:id.
func (h *WebsitesHandler) Get(c *gin.Context) {
	site, err := h.repo.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, site)
}

// Create handles POST /api/v1/websites.
func (h *WebsitesHandler) Create(c *gin.Context) {
	var req CreateWebsiteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	site := &domain.Website{
		Name:        req.Name,
		BaseURL:     req.BaseURL,
		Status:      domain.WebsiteStatusActive,
		Config:      req.Config,
		DefaultCron: req.DefaultCron,
	}
	if err := h.repo.Create(c.Request.Context(), site); err != nil {
		respondStoreError(c, err)
		return
	}
	c.JSON(http.StatusCreated, site)
}

// Update handles PUT /api/v1/websites/:id.
func (h *WebsitesHandler) Update(c *gin.Context) {
	var req UpdateWebsiteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	site := &domain.Website{
		ID:          c.Param("id"),
		Name:        req.Name,
		BaseURL:     req.BaseURL,
		Status:      req.Status,
		Config:      req.Config,
		DefaultCron: req.DefaultCron,
	}
	if err := h.repo.Update(c.Request.Context(), site); err != nil {
		respondStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, site)
}

// Delete handles DELETE /api/v1/websites/:id.
func (h *WebsitesHandler) Delete(c *gin.Context) {
	if err := h.repo.Delete(c.Request.Context(), c.Param("id")); err != nil {
		respondStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "website deleted"})
}

func pageParams(c *gin.Context) (limit, offset int) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultLimit)))
	if err != nil || limit <= 0 {
		limit = defaultLimit
	}
	offset, err = strconv.Atoi(c.DefaultQuery("offset", strconv.Itoa(defaultOffset)))
	if err != nil || offset < 0 {
		offset = defaultOffset
	}
	return limit, offset
}

// respondStoreError maps store sentinel errors to HTTP status codes.
func respondStoreError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, store.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
