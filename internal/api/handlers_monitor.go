package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/spullara/ComfyUI-Gallery/internal/filesystem"
	"github.com/spullara/ComfyUI-Gallery/internal/monitor"
)

// handleMonitorStart begins watching a directory, replacing any active
// watch. The static mount is repointed at the new directory as part of the
// lifecycle transition.
// POST /Gallery/monitor/start {"relative_path": ..., "disable_logs": ..., "use_polling_observer": ...}
func (r *Router) handleMonitorStart(w http.ResponseWriter, req *http.Request) {
	var body struct {
		RelativePath       string `json:"relative_path"`
		DisableLogs        bool   `json:"disable_logs"`
		UsePollingObserver bool   `json:"use_polling_observer"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if body.RelativePath == "" {
		body.RelativePath = "."
	}

	full := filepath.Join(r.galleryRoot, body.RelativePath)
	if !filesystem.WithinRoot(r.allowedRoot, full) {
		writeError(w, http.StatusForbidden, "access denied: path outside of allowed directory")
		return
	}
	info, err := os.Stat(full)
	if err != nil || !info.IsDir() {
		writeError(w, http.StatusBadRequest,
			fmt.Sprintf("invalid relative_path: %s, path not found", body.RelativePath))
		return
	}

	m, err := r.supervisor.Start(full, monitor.Options{
		Debounce:   r.debounce,
		UsePolling: body.UsePollingObserver || r.usePolling,
		Quiet:      body.DisableLogs,
	})
	if err != nil {
		r.logger.Error("starting gallery monitor", "path", full, "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "monitoring",
		"id":      m.ID(),
		"root":    m.Root(),
		"polling": m.Polling(),
	})
}

// handleMonitorStop stops the active watch and reverts the static mount to
// the placeholder directory. Stopping with no active watch succeeds.
// POST /Gallery/monitor/stop
func (r *Router) handleMonitorStop(w http.ResponseWriter, req *http.Request) {
	r.supervisor.Stop()
	writeJSON(w, http.StatusOK, map[string]string{"status": "stopped"})
}

// handleMonitorStatus reports the active watch, if any.
// GET /Gallery/monitor/status
func (r *Router) handleMonitorStatus(w http.ResponseWriter, req *http.Request) {
	m := r.supervisor.Active()
	if m == nil {
		writeJSON(w, http.StatusOK, map[string]any{"status": "idle"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "monitoring",
		"id":       m.ID(),
		"root":     m.Root(),
		"polling":  m.Polling(),
		"folders":  len(m.Snapshot()),
		"reported": time.Now().UTC().Format(time.RFC3339),
	})
}
