package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/emberfall/stoker/internal/backup"
	"github.com/emberfall/stoker/internal/supervisor"
)

type BackupHandler struct {
	backup *backup.Service
	sup    *supervisor.Supervisor
}

func NewBackupHandler(backupSvc *backup.Service, sup *supervisor.Supervisor) *BackupHandler {
	return &BackupHandler{backup: backupSvc, sup: sup}
}

func (h *BackupHandler) List(w http.ResponseWriter, r *http.Request) {
	backups, err := h.backup.List()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list backups")
		return
	}
	writeJSON(w, http.StatusOK, backups)
}

func (h *BackupHandler) Create(w http.ResponseWriter, r *http.Request) {
	// Flush the world to disk first when the server is up.
	if h.sup.State() == supervisor.StateRunning {
		h.sup.SendCommand("save-all")
	}
	b, err := h.backup.Create()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create backup: "+err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, b)
}

func (h *BackupHandler) Download(w http.ResponseWriter, r *http.Request) {
	backupID := chi.URLParam(r, "backupId")
	path, err := h.backup.FilePath(backupID)
	if err != nil {
		writeError(w, http.StatusNotFound, "backup not found")
		return
	}
	w.Header().Set("Content-Type", "application/gzip")
	http.ServeFile(w, r, path)
}

func (h *BackupHandler) Delete(w http.ResponseWriter, r *http.Request) {
	backupID := chi.URLParam(r, "backupId")
	if err := h.backup.Delete(backupID); err != nil {
		writeError(w, http.StatusNotFound, "backup not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "backup deleted"})
}

// Restore extracts a backup over the server directory. Refused while the
// server is up.
func (h *BackupHandler) Restore(w http.ResponseWriter, r *http.Request) {
	if h.sup.IsAlive() {
		writeError(w, http.StatusConflict, "stop the server before restoring")
		return
	}
	backupID := chi.URLParam(r, "backupId")
	if err := h.backup.Restore(backupID); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to restore: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "backup restored"})
}
