package api

import (
	"net/http"
	"sync"
)

// MountPoint serves gallery files under a fixed URL prefix from a
// directory that can be swapped at runtime. When no monitor is active it
// points at the placeholder directory.
type MountPoint struct {
	mu  sync.RWMutex
	dir string
}

// NewMountPoint creates a mount point serving from dir.
func NewMountPoint(dir string) *MountPoint {
	return &MountPoint{dir: dir}
}

// Remount swaps the backing directory. In-flight requests keep the
// directory they resolved; new requests see the new one.
func (mp *MountPoint) Remount(dir string) {
	mp.mu.Lock()
	mp.dir = dir
	mp.mu.Unlock()
}

// Dir returns the current backing directory.
func (mp *MountPoint) Dir() string {
	mp.mu.RLock()
	defer mp.mu.RUnlock()
	return mp.dir
}

// Handler serves files from the current backing directory, stripping
// basePath plus the mount prefix. http.Dir follows symlinks, matching the
// scanner's view of the tree.
func (mp *MountPoint) Handler(prefix string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		dir := mp.Dir()
		http.StripPrefix(prefix, http.FileServer(http.Dir(dir))).ServeHTTP(w, r)
	})
}
