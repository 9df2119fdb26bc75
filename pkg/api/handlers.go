package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/athulya-anil/axon-orchestrator/pkg/coordinator"
	"github.com/athulya-anil/axon-orchestrator/pkg/ledger"
	"github.com/athulya-anil/axon-orchestrator/pkg/models"
)

// ServiceName is reported by the root endpoint.
const ServiceName = "Axon Orchestrator"

// Version is reported by the root endpoint.
const Version = "1.0.0"

// Service is the set of coordinator operations exposed over HTTP.
type Service interface {
	SubmitJob(ctx context.Context, payload json.RawMessage) string
	ClaimJob(ctx context.Context, workerID string) (models.Job, bool)
	CompleteJob(ctx context.Context, jobID string, result json.RawMessage) error
	Heartbeat(ctx context.Context, workerID string) time.Time
	GetJob(jobID string) (models.Job, error)
	ListJobs(status models.JobStatus) []models.Job
	ListWorkers() []coordinator.WorkerView
	Status() coordinator.Status
}

// API wraps the coordinator and provides HTTP handlers
type API struct {
	svc Service
}

// NewAPI creates a new API instance
func NewAPI(svc Service) *API {
	return &API{svc: svc}
}

// SetupRoutes configures all API routes
func (a *API) SetupRoutes(router gin.IRouter) {
	router.GET("/", a.root)
	router.GET("/health", a.healthCheck)

	// Worker protocol
	router.POST("/submit", a.submitJob)
	router.GET("/claim", a.claimJob)
	router.POST("/complete", a.completeJob)
	router.POST("/heartbeat", a.heartbeat)

	// Read-only views
	router.GET("/jobs", a.listJobs)
	router.GET("/jobs/:id", a.getJob)
	router.GET("/workers", a.listWorkers)
	router.GET("/status", a.getStatus)
}

// SubmitRequest is the body of POST /submit
type SubmitRequest struct {
	Payload json.RawMessage `json:"payload"`
}

// SubmitResponse is returned by POST /submit
type SubmitResponse struct {
	JobID  string           `json:"job_id"`
	Status models.JobStatus `json:"status"`
}

// ClaimResponse is returned by GET /claim. JobID is null when no job is queued.
type ClaimResponse struct {
	JobID   *string         `json:"job_id"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// CompleteRequest is the body of POST /complete
type CompleteRequest struct {
	JobID  string          `json:"job_id" binding:"required"`
	Result json.RawMessage `json:"result"`
}

// root handles GET /
func (a *API) root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service": ServiceName,
		"status":  "running",
		"version": Version,
	})
}

// healthCheck handles GET /health
func (a *API) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// submitJob handles POST /submit
func (a *API) submitJob(c *gin.Context) {
	var req SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !isObject(req.Payload) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "payload must be a JSON object"})
		return
	}

	id := a.svc.SubmitJob(c.Request.Context(), req.Payload)

	c.JSON(http.StatusOK, SubmitResponse{JobID: id, Status: models.StatusQueued})
}

// claimJob handles GET /claim?worker_id=
func (a *API) claimJob(c *gin.Context) {
	workerID, ok := requireWorkerID(c)
	if !ok {
		return
	}

	j, found := a.svc.ClaimJob(c.Request.Context(), workerID)
	if !found {
		c.JSON(http.StatusOK, ClaimResponse{})
		return
	}

	c.JSON(http.StatusOK, ClaimResponse{JobID: &j.ID, Payload: j.Payload})
}

// completeJob handles POST /complete
func (a *API) completeJob(c *gin.Context) {
	var req CompleteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !isObject(req.Result) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "result must be a JSON object"})
		return
	}

	if err := a.svc.CompleteJob(c.Request.Context(), req.JobID, req.Result); err != nil {
		if errors.Is(err, ledger.ErrJobNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "invalid job_id"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "stored"})
}

// heartbeat handles POST /heartbeat?worker_id=
func (a *API) heartbeat(c *gin.Context) {
	workerID, ok := requireWorkerID(c)
	if !ok {
		return
	}

	seen := a.svc.Heartbeat(c.Request.Context(), workerID)

	c.JSON(http.StatusOK, gin.H{
		"status":    "alive",
		"last_seen": seen,
	})
}

// listJobs handles GET /jobs?status=
func (a *API) listJobs(c *gin.Context) {
	status := models.JobStatus(c.Query("status"))
	if status != "" && !status.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown status " + string(status)})
		return
	}

	jobs := a.svc.ListJobs(status)

	c.JSON(http.StatusOK, gin.H{
		"count": len(jobs),
		"jobs":  jobs,
	})
}

// getJob handles GET /jobs/:id
func (a *API) getJob(c *gin.Context) {
	j, err := a.svc.GetJob(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		return
	}

	c.JSON(http.StatusOK, j)
}

// listWorkers handles GET /workers
func (a *API) listWorkers(c *gin.Context) {
	workers := a.svc.ListWorkers()

	c.JSON(http.StatusOK, gin.H{
		"count":   len(workers),
		"workers": workers,
	})
}

// getStatus handles GET /status
func (a *API) getStatus(c *gin.Context) {
	c.JSON(http.StatusOK, a.svc.Status())
}

func requireWorkerID(c *gin.Context) (string, bool) {
	workerID := c.Query("worker_id")
	if workerID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "worker_id is required"})
		return "", false
	}
	return workerID, true
}

// isObject reports whether raw holds a JSON object.
func isObject(raw json.RawMessage) bool {
	var obj map[string]json.RawMessage
	if len(raw) == 0 || json.Unmarshal(raw, &obj) != nil {
		return false
	}
	return obj != nil
}
