package monitor

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spullara/ComfyUI-Gallery/internal/gallery"
)

// pollSignature walks the tree and records the mtime of every media file,
// following symlinked directories the same way the scanner does. It is a
// cheap change detector for roots where native watching is unavailable;
// the full scanner still produces the authoritative snapshot.
func (m *Monitor) pollSignature() map[string]time.Time {
	sig := make(map[string]time.Time)
	visited := make(map[string]struct{})
	if real, err := filepath.EvalSymlinks(m.root); err == nil {
		visited[real] = struct{}{}
	}
	m.pollDir(m.root, sig, visited)
	return sig
}

func (m *Monitor) pollDir(dirPath string, sig map[string]time.Time, visited map[string]struct{}) {
	entries, err := os.ReadDir(dirPath)
	if err != nil {
		return
	}
	for _, entry := range entries {
		name := entry.Name()
		full := filepath.Join(dirPath, name)
		info, err := os.Stat(full)
		if err != nil {
			continue
		}
		if info.IsDir() {
			if strings.HasPrefix(name, ".") {
				continue
			}
			if real, err := filepath.EvalSymlinks(full); err == nil {
				if _, seen := visited[real]; seen {
					continue
				}
				visited[real] = struct{}{}
			}
			m.pollDir(full, sig, visited)
			continue
		}
		if _, ok := gallery.KindForName(name); !ok {
			continue
		}
		sig[full] = info.ModTime()
	}
}

// pollChanged takes a fresh signature and reports whether it differs from
// the previous one, replacing it either way.
func (m *Monitor) pollChanged() bool {
	next := m.pollSignature()
	prev := m.pollSig
	m.pollSig = next

	if len(next) != len(prev) {
		return true
	}
	for path, mtime := range next {
		if old, ok := prev[path]; !ok || !old.Equal(mtime) {
			return true
		}
	}
	return false
}
