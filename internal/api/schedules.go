package api

import (
	"database/sql"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/emberfall/stoker/internal/scheduler"
)

type ScheduleHandler struct {
	db *sql.DB
}

func NewScheduleHandler(db *sql.DB) *ScheduleHandler {
	return &ScheduleHandler{db: db}
}

// List returns all schedules.
func (h *ScheduleHandler) List(w http.ResponseWriter, r *http.Request) {
	rows, err := h.db.Query(
		`SELECT id, name, cron_expr, action, payload, enabled, COALESCE(last_run, ''), created_at
		FROM schedules ORDER BY created_at DESC`,
	)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list schedules")
		return
	}
	defer rows.Close()

	schedules := []scheduler.Schedule{}
	for rows.Next() {
		var s scheduler.Schedule
		var enabled int
		if err := rows.Scan(&s.ID, &s.Name, &s.CronExpr, &s.Action, &s.Payload, &enabled, &s.LastRun, &s.CreatedAt); err != nil {
			continue
		}
		s.Enabled = enabled == 1
		schedules = append(schedules, s)
	}

	writeJSON(w, http.StatusOK, schedules)
}

// Create adds a new schedule.
func (h *ScheduleHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name     string `json:"name"`
		CronExpr string `json:"cron_expr"`
		Action   string `json:"action"`
		Payload  string `json:"payload"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Name == "" || req.CronExpr == "" || req.Action == "" {
		writeError(w, http.StatusBadRequest, "name, cron_expr, and action required")
		return
	}

	// Validate cron expression
	if _, err := scheduler.ParseCron(req.CronExpr); err != nil {
		writeError(w, http.StatusBadRequest, "invalid cron expression: "+err.Error())
		return
	}

	switch req.Action {
	case "start", "stop", "restart", "backup":
		// valid
	case "command":
		if req.Payload == "" {
			writeError(w, http.StatusBadRequest, "command action requires a payload")
			return
		}
	default:
		writeError(w, http.StatusBadRequest, "action must be one of: start, stop, restart, backup, command")
		return
	}

	id := uuid.New().String()[:8]

	_, err := h.db.Exec(
		`INSERT INTO schedules (id, name, cron_expr, action, payload) VALUES (?, ?, ?, ?, ?)`,
		id, req.Name, req.CronExpr, req.Action, req.Payload,
	)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create schedule")
		return
	}

	var s scheduler.Schedule
	var enabled int
	h.db.QueryRow(
		`SELECT id, name, cron_expr, action, payload, enabled, COALESCE(last_run, ''), created_at FROM schedules WHERE id = ?`, id,
	).Scan(&s.ID, &s.Name, &s.CronExpr, &s.Action, &s.Payload, &enabled, &s.LastRun, &s.CreatedAt)
	s.Enabled = enabled == 1

	writeJSON(w, http.StatusCreated, s)
}

// Update toggles or edits a schedule.
func (h *ScheduleHandler) Update(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "scheduleId")

	var req struct {
		Name     *string `json:"name"`
		CronExpr *string `json:"cron_expr"`
		Enabled  *bool   `json:"enabled"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.CronExpr != nil {
		if _, err := scheduler.ParseCron(*req.CronExpr); err != nil {
			writeError(w, http.StatusBadRequest, "invalid cron expression: "+err.Error())
			return
		}
		h.db.Exec("UPDATE schedules SET cron_expr = ? WHERE id = ?", *req.CronExpr, id)
	}
	if req.Name != nil {
		h.db.Exec("UPDATE schedules SET name = ? WHERE id = ?", *req.Name, id)
	}
	if req.Enabled != nil {
		enabled := 0
		if *req.Enabled {
			enabled = 1
		}
		h.db.Exec("UPDATE schedules SET enabled = ? WHERE id = ?", enabled, id)
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "schedule updated"})
}

// Delete removes a schedule.
func (h *ScheduleHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "scheduleId")
	_, err := h.db.Exec("DELETE FROM schedules WHERE id = ?", id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to delete schedule")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "schedule deleted"})
}
