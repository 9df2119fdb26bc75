// Package dashboard streams live orchestrator state over Server-Sent Events.
package dashboard

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/athulya-anil/axon-orchestrator/pkg/coordinator"
	"github.com/athulya-anil/axon-orchestrator/pkg/models"
)

// DefaultInterval is how often each stream pushes a fresh snapshot.
const DefaultInterval = 2 * time.Second

// Source is the read-only view the dashboard renders.
type Source interface {
	ListJobs(status models.JobStatus) []models.Job
	ListWorkers() []coordinator.WorkerView
	Status() coordinator.Status
}

// Dashboard provides the SSE handlers
type Dashboard struct {
	src      Source
	interval time.Duration
}

// NewDashboard creates a dashboard that refreshes every interval.
// A non-positive interval falls back to DefaultInterval.
func NewDashboard(src Source, interval time.Duration) *Dashboard {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Dashboard{src: src, interval: interval}
}

// SetupRoutes configures dashboard routes
func (d *Dashboard) SetupRoutes(router gin.IRouter) {
	router.GET("/events/status", d.statusSSE)
	router.GET("/events/jobs", d.jobsSSE)
	router.GET("/events/workers", d.workersSSE)
}
