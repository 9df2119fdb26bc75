package worker

import (
	"context"
	"time"
)

// heartbeatLoop sends one heartbeat immediately and then one per interval.
// Failures are logged; the coordinator treats liveness as advisory.
func (w *Worker) heartbeatLoop(ctx context.Context) error {
	w.sendHeartbeat(ctx)

	ticker := time.NewTicker(w.heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			w.sendHeartbeat(ctx)
		}
	}
}

func (w *Worker) sendHeartbeat(ctx context.Context) {
	hbCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	if err := w.coord.Heartbeat(hbCtx, w.ID); err != nil {
		if ctx.Err() == nil {
			w.logger.Warn("heartbeat failed", "error", err)
		}
		return
	}
	w.logger.Debug("heartbeat sent", "active_job", w.ActiveJob())
}
