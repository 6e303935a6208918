package monitor

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/spullara/ComfyUI-Gallery/internal/event"
)

// Remounter swaps the directory behind the gallery's static mount point.
type Remounter interface {
	Remount(dir string)
}

// Supervisor owns the process's single active monitor. Starting a watch
// while one is running stops the old one completely (timer cancelled, OS
// watch handles released, in-flight scan joined) before the new one's
// initial scan begins. The mount point is remounted under the same lock
// that guards these lifecycle transitions.
type Supervisor struct {
	scanner     TreeScanner
	bus         *event.Bus
	logger      *slog.Logger
	mount       Remounter
	placeholder string

	mu     sync.Mutex
	active *Monitor
}

// NewSupervisor creates a supervisor. mount may be nil when no static
// mount point is attached (tests); placeholder is the directory the mount
// reverts to when no watch is active.
func NewSupervisor(scanner TreeScanner, bus *event.Bus, mount Remounter, placeholder string, logger *slog.Logger) *Supervisor {
	return &Supervisor{
		scanner:     scanner,
		bus:         bus,
		logger:      logger.With("component", "supervisor"),
		mount:       mount,
		placeholder: placeholder,
	}
}

// Start begins watching root, replacing any active monitor. The returned
// monitor is already running and its snapshot is seeded.
func (s *Supervisor) Start(root string, opts Options) (*Monitor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active != nil {
		s.logger.Info("replacing active monitor", "old_root", s.active.Root())
		s.active.Stop()
		s.active = nil
	}

	label := labelFor(root)
	m, err := newMonitor(root, label, s.scanner, s.bus, s.logger, opts)
	if err != nil {
		if s.mount != nil {
			s.mount.Remount(s.placeholder)
		}
		return nil, fmt.Errorf("starting monitor: %w", err)
	}

	if s.mount != nil {
		s.mount.Remount(m.Root())
	}
	m.start()
	s.active = m

	s.bus.Publish(event.Event{
		Type: event.MonitorStarted,
		Data: map[string]any{"id": m.ID(), "root": m.Root(), "polling": m.Polling()},
	})
	return m, nil
}

// Stop shuts down the active monitor if any and reverts the mount point to
// the placeholder directory. Stopping with no active watch is a no-op.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active == nil {
		return
	}
	id, root := s.active.ID(), s.active.Root()
	s.active.Stop()
	s.active = nil

	if s.mount != nil {
		s.mount.Remount(s.placeholder)
	}
	s.bus.Publish(event.Event{
		Type: event.MonitorStopped,
		Data: map[string]any{"id": id, "root": root},
	})
}

// Active returns the running monitor, or nil.
func (s *Supervisor) Active() *Monitor {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// labelFor names the root folder of a watch the way clients expect:
// by the directory's base name.
func labelFor(root string) string {
	return filepath.Base(filepath.Clean(root))
}
