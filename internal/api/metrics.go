package api

import (
	"log"
	"net/http"
	"time"

	"github.com/emberfall/stoker/internal/metrics"
	"github.com/emberfall/stoker/internal/supervisor"
)

type MetricsHandler struct {
	sup       *supervisor.Supervisor
	collector *metrics.Collector
}

func NewMetricsHandler(sup *supervisor.Supervisor, collector *metrics.Collector) *MetricsHandler {
	return &MetricsHandler{sup: sup, collector: collector}
}

// Snapshot samples the child process right now.
func (h *MetricsHandler) Snapshot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.sup.GetPerformanceMetrics())
}

// Latest returns the most recent collector sample.
func (h *MetricsHandler) Latest(w http.ResponseWriter, r *http.Request) {
	latest := h.collector.Latest()
	if latest == nil {
		writeError(w, http.StatusNotFound, "no metrics available")
		return
	}
	writeJSON(w, http.StatusOK, latest)
}

// History returns samples for a time range.
func (h *MetricsHandler) History(w http.ResponseWriter, r *http.Request) {
	period := r.URL.Query().Get("period")
	if period == "" {
		period = "1h"
	}
	duration, err := time.ParseDuration(period)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid period: use format like 1h, 6h, 24h")
		return
	}

	samples, err := h.collector.History(duration)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to query metrics")
		return
	}
	writeJSON(w, http.StatusOK, samples)
}

// Live pushes samples via WebSocket as the collector produces them.
func (h *MetricsHandler) Live(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("metrics websocket upgrade error: %v", err)
		return
	}
	defer conn.Close()

	ch := h.collector.Subscribe()
	defer h.collector.Unsubscribe(ch)

	// Send latest immediately if available
	if latest := h.collector.Latest(); latest != nil {
		if err := conn.WriteJSON(latest); err != nil {
			return
		}
	}

	// Read from client to detect disconnect
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case s, ok := <-ch:
			if !ok {
				return
			}
			if err := conn.WriteJSON(s); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}
