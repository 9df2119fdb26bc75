package dashboard

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/athulya-anil/axon-orchestrator/pkg/models"
)

// statusSSE streams status summaries
func (d *Dashboard) statusSSE(c *gin.Context) {
	d.stream(c, "status", func() any { return d.src.Status() })
}

// jobsSSE streams the job list, optionally filtered by ?status=
func (d *Dashboard) jobsSSE(c *gin.Context) {
	status := models.JobStatus(c.Query("status"))
	if status != "" && !status.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown status " + string(status)})
		return
	}
	d.stream(c, "jobs", func() any { return d.src.ListJobs(status) })
}

// workersSSE streams worker liveness
func (d *Dashboard) workersSSE(c *gin.Context) {
	d.stream(c, "workers", func() any { return d.src.ListWorkers() })
}

// stream writes one event immediately and then one per tick until the
// client goes away.
func (d *Dashboard) stream(c *gin.Context, event string, snapshot func() any) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("Access-Control-Allow-Origin", "*")

	clientGone := c.Request.Context().Done()

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		data, err := json.Marshal(snapshot())
		if err == nil {
			fmt.Fprintf(c.Writer, "event: %s\n", event)
			fmt.Fprintf(c.Writer, "data: %s\n\n", data)
			c.Writer.Flush()
		}

		select {
		case <-clientGone:
			return
		case <-ticker.C:
		}
	}
}
