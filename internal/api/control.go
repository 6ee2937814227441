package api

import (
	"net/http"
	"time"

	"github.com/emberfall/stoker/internal/events"
	"github.com/emberfall/stoker/internal/players"
	"github.com/emberfall/stoker/internal/queue"
	"github.com/emberfall/stoker/internal/supervisor"
)

// ControlHandler exposes the supervisor's lifecycle and command surface.
type ControlHandler struct {
	sup    *supervisor.Supervisor
	bus    *events.Bus
	q      *queue.Queue
	roster *players.Roster
}

func NewControlHandler(sup *supervisor.Supervisor, bus *events.Bus, q *queue.Queue, roster *players.Roster) *ControlHandler {
	return &ControlHandler{sup: sup, bus: bus, q: q, roster: roster}
}

func (h *ControlHandler) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"state":    h.sup.State().String(),
		"is_alive": h.sup.IsAlive(),
		"pid":      h.sup.PID(),
		"uptime":   h.sup.Uptime().Seconds(),
		"players":  h.roster.Count(),
	})
}

func (h *ControlHandler) Start(w http.ResponseWriter, r *http.Request) {
	if !h.sup.Start() {
		writeError(w, http.StatusConflict, "failed to start (state "+h.sup.State().String()+")")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"state": h.sup.State().String()})
}

func (h *ControlHandler) Stop(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Force   bool    `json:"force"`
		Timeout float64 `json:"timeout_seconds"`
	}
	decodeJSON(r, &req) // empty body means graceful stop with the default
	timeout := 30 * time.Second
	if req.Timeout > 0 {
		timeout = time.Duration(req.Timeout * float64(time.Second))
	}
	if !h.sup.Stop(req.Force, timeout) {
		writeError(w, http.StatusConflict, "failed to stop (state "+h.sup.State().String()+")")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"state": h.sup.State().String()})
}

func (h *ControlHandler) Restart(w http.ResponseWriter, r *http.Request) {
	if !h.sup.Restart() {
		writeError(w, http.StatusConflict, "failed to restart (state "+h.sup.State().String()+")")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"state": h.sup.State().String()})
}

// Command fires a command at the server without waiting for output.
func (h *ControlHandler) Command(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Command string `json:"command"`
	}
	if err := decodeJSON(r, &req); err != nil || req.Command == "" {
		writeError(w, http.StatusBadRequest, "command required")
		return
	}
	if !h.sup.SendCommand(req.Command) {
		writeError(w, http.StatusConflict, "server not running")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "sent"})
}

// CommandWithOutput rides the queue + capture path and returns whatever the
// server printed during the capture window.
func (h *ControlHandler) CommandWithOutput(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Command string  `json:"command"`
		Timeout float64 `json:"timeout_seconds"`
	}
	if err := decodeJSON(r, &req); err != nil || req.Command == "" {
		writeError(w, http.StatusBadRequest, "command required")
		return
	}
	timeout := 30 * time.Second
	if req.Timeout > 0 {
		timeout = time.Duration(req.Timeout * float64(time.Second))
	}

	res, ok := h.sup.SendCommandViaQueue(r.Context(), req.Command, timeout)
	writeJSON(w, http.StatusOK, map[string]any{
		"success": ok,
		"status":  res.Status,
		"output":  res.Output,
		"error":   res.Error,
	})
}

func (h *ControlHandler) Players(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.roster.Online())
}

// EventStats exposes the bus's per-kind fire counters.
func (h *ControlHandler) EventStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.bus.Stats())
}

// Commands lists recent queue records for inspection.
func (h *ControlHandler) Commands(w http.ResponseWriter, r *http.Request) {
	pending, err := h.q.Pending()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to query queue")
		return
	}
	writeJSON(w, http.StatusOK, pending)
}
