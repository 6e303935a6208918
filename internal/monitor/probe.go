package monitor

import (
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ProbeFSNotify tests whether fsnotify actually delivers events for the
// given directory. Some filesystems (network mounts, FUSE overlays) accept
// the watch but never report changes; probing catches those so the monitor
// can fall back to polling. It creates a throwaway file under path, waits
// for its Create event, and cleans up.
func ProbeFSNotify(path string, timeout time.Duration) bool {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return false
	}
	defer w.Close() //nolint:errcheck

	if err := w.Add(path); err != nil {
		return false
	}

	probeName := fmt.Sprintf(".gallery_probe_%d.tmp", rand.Int63()) //nolint:gosec // G404: not security-sensitive
	probePath := filepath.Join(path, probeName)

	f, err := os.Create(probePath) //nolint:gosec // G304: path is the validated watch root
	if err != nil {
		return false
	}
	_ = f.Close()
	defer os.Remove(probePath) //nolint:errcheck

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case ev, ok := <-w.Events:
			if !ok {
				return false
			}
			if ev.Has(fsnotify.Create) && filepath.Base(ev.Name) == probeName {
				return true
			}
		case <-w.Errors:
			return false
		case <-timer.C:
			return false
		}
	}
}
