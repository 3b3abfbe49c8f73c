// Package api implements the HTTP surface of the control plane: websites,
// jobs, scheduled jobs, the dead-letter queue, and the log stream endpoint.
package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jonesrussell/crawlctl/internal/logger"
	"github.com/jonesrussell/crawlctl/internal/streamapi"
)

const (
	defaultLimit      = 50
	defaultOffset     = 0
	readHeaderTimeout = 10 * time.Second
)

// Handlers aggregates every route group's handler, nil-checked at setup so
// a caller can stand up a partial router (e.g. for tests).
type Handlers struct {
	Websites      *WebsitesHandler
	Jobs          *JobsHandler
	ScheduledJobs *ScheduledJobsHandler
	DLQ           *DLQHandler
	Stream        *streamapi.Endpoint
}

// SetupRouter builds the Gin engine and wires every route group.
func SetupRouter(log logger.Interface, h Handlers) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(loggingMiddleware(log))
	router.Use(corsMiddleware())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})

	v1 := router.Group("/api/v1")
	setupWebsiteRoutes(v1, h.Websites)
	setupJobRoutes(v1, h.Jobs)
	setupScheduledJobRoutes(v1, h.ScheduledJobs)
	setupDLQRoutes(v1, h.DLQ)
	setupStreamRoutes(v1, h.Stream)

	return router
}

func setupWebsiteRoutes(v1 *gin.RouterGroup, h *WebsitesHandler) {
	if h == nil {
		return
	}
	v1.GET("/websites", h.List)
	v1.POST("/websites", h.Create)
	v1.GET("/websites/:id", h.Get)
	v1.PUT("/websites/:id", h.Update)
	v1.DELETE("/websites/:id", h.Delete)
}

func setupJobRoutes(v1 *gin.RouterGroup, h *JobsHandler) {
	if h == nil {
		return
	}
	v1.GET("/jobs", h.List)
	v1.GET("/jobs/:id", h.Get)
	v1.POST("/jobs", h.SubmitTemplate)
	v1.POST("/jobs/inline", h.SubmitInline)
	v1.POST("/jobs/:id/cancel", h.Cancel)
}

func setupScheduledJobRoutes(v1 *gin.RouterGroup, h *ScheduledJobsHandler) {
	if h == nil {
		return
	}
	v1.GET("/scheduled-jobs", h.List)
	v1.POST("/scheduled-jobs", h.Create)
	v1.GET("/scheduled-jobs/:id", h.Get)
	v1.PUT("/scheduled-jobs/:id/active", h.SetActive)
	v1.DELETE("/scheduled-jobs/:id", h.Delete)
}

func setupDLQRoutes(v1 *gin.RouterGroup, h *DLQHandler) {
	if h == nil {
		return
	}
	v1.GET("/dlq", h.List)
	v1.GET("/dlq/job/:job_id", h.Get)
	v1.POST("/dlq/:id/retry", h.Retry)
	v1.POST("/dlq/:id/resolve", h.Resolve)
}

func setupStreamRoutes(v1 *gin.RouterGroup, h *streamapi.Endpoint) {
	if h == nil {
		return
	}
	v1.POST("/jobs/:id/stream-token", h.IssueToken)
	v1.GET("/jobs/:id/stream", h.Stream)
}

func loggingMiddleware(log logger.Interface) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		log.Info("http request",
			"method", c.Request.Method,
			"path", path,
			"query", query,
			"status", c.Writer.Status(),
			"latency", time.Since(start),
		)
	}
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Headers",
			"Content-Type, Authorization, Accept, Origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// StartHTTPServer builds the http.Server wrapping the router, with
// header-timeout hardening against slowloris-style clients.
func StartHTTPServer(addr string, router *gin.Engine) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: readHeaderTimeout,
	}
}
