package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/spullara/ComfyUI-Gallery/internal/filesystem"
	"github.com/spullara/ComfyUI-Gallery/internal/gallery"
)

// handleImages scans the requested directory synchronously and returns the
// snapshot. Concurrent on-demand scans serialize on a shared lock so two
// requests never walk the tree at once.
// GET /Gallery/images?relative_path=...
func (r *Router) handleImages(w http.ResponseWriter, req *http.Request) {
	rel := req.URL.Query().Get("relative_path")
	if rel == "" {
		rel = "."
	}
	full := filepath.Join(r.galleryRoot, rel)

	if !filesystem.WithinRoot(r.allowedRoot, full) {
		writeError(w, http.StatusForbidden, "access denied: path outside of allowed directory")
		return
	}
	info, err := os.Stat(full)
	if err != nil || !info.IsDir() {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid relative_path: %s, path not found", rel))
		return
	}

	r.scanMu.Lock()
	snap, err := scanGuarded(r.scanner, full)
	r.scanMu.Unlock()
	if err != nil {
		r.logger.Error("on-demand scan failed", "path", full, "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"folders": snap.Payload()})
}

// scanGuarded runs one scan with panic containment so a crashing walk
// surfaces as a 500 instead of killing the request goroutine.
func scanGuarded(s interface {
	Scan(root, label string, recursive bool) gallery.Snapshot
}, full string) (snap gallery.Snapshot, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("scan panicked: %v", r)
		}
	}()
	label := filepath.Base(filepath.Clean(full))
	return s.Scan(full, label, true), nil
}

// handleDelete removes one gallery file identified by its serving URL.
// POST /Gallery/delete {"image_path": "/static_gallery/..."}
func (r *Router) handleDelete(w http.ResponseWriter, req *http.Request) {
	var body struct {
		ImagePath string `json:"image_path"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil || body.ImagePath == "" {
		writeError(w, http.StatusBadRequest, "image_path is required")
		return
	}

	rel, ok := strings.CutPrefix(body.ImagePath, gallery.URLPrefix)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid image_path format")
		return
	}

	mountDir := r.mount.Dir()
	full := filepath.Join(mountDir, rel)

	if !filesystem.WithinRoot(mountDir, full) {
		writeError(w, http.StatusForbidden, "access denied: file outside of gallery directory")
		return
	}
	if _, err := os.Stat(full); err != nil {
		writeError(w, http.StatusNotFound, fmt.Sprintf("file not found: %s", body.ImagePath))
		return
	}

	if err := os.Remove(full); err != nil {
		r.logger.Error("deleting gallery file", "path", full, "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	r.logger.Info("gallery file deleted", "path", full)
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted", "image_path": body.ImagePath})
}

// handleMove relocates a gallery file. Both endpoints must resolve inside
// the mounted directory and inside the broader allowed root; target parent
// directories are created as needed.
// POST /Gallery/move {"source_path": ..., "target_path": ...}
func (r *Router) handleMove(w http.ResponseWriter, req *http.Request) {
	var body struct {
		SourcePath string `json:"source_path"`
		TargetPath string `json:"target_path"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil || body.SourcePath == "" || body.TargetPath == "" {
		writeError(w, http.StatusBadRequest, "source_path and target_path are required")
		return
	}

	mountDir := r.mount.Dir()
	source := filepath.Join(mountDir, strings.TrimPrefix(body.SourcePath, gallery.URLPrefix))
	target := filepath.Join(mountDir, strings.TrimPrefix(body.TargetPath, gallery.URLPrefix))

	if _, err := os.Stat(source); err != nil {
		writeError(w, http.StatusNotFound, fmt.Sprintf("source file not found: %s", body.SourcePath))
		return
	}

	// Moving into an existing directory keeps the source filename.
	if info, err := os.Stat(target); err == nil && info.IsDir() {
		target = filepath.Join(target, filepath.Base(source))
	}

	for _, p := range []string{source, target} {
		if !filesystem.WithinRoot(mountDir, p) || !filesystem.WithinRoot(r.allowedRoot, p) {
			writeError(w, http.StatusForbidden, "access denied: file outside of allowed directory")
			return
		}
	}

	if err := filesystem.MoveFile(source, target); err != nil {
		r.logger.Error("moving gallery file", "source", source, "target", target, "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	r.logger.Info("gallery file moved", "source", source, "target", target)
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "moved",
		"source": body.SourcePath,
		"target": body.TargetPath,
	})
}
