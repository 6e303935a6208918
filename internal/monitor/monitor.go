package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
	"github.com/spullara/ComfyUI-Gallery/internal/event"
	"github.com/spullara/ComfyUI-Gallery/internal/gallery"
)

// Defaults for monitor timing knobs.
const (
	DefaultDebounce     = 500 * time.Millisecond
	DefaultPollInterval = 2 * time.Second
)

// tempSuffixes are editor scratch-file endings that never trigger a rescan.
var tempSuffixes = []string{".swp", ".tmp", "~"}

// TreeScanner builds a snapshot of a directory tree.
type TreeScanner interface {
	Scan(rootPath, label string, recursive bool) gallery.Snapshot
}

// Options configure one monitor instance.
type Options struct {
	Debounce     time.Duration // 0 means DefaultDebounce
	UsePolling   bool          // force the polling observer
	PollInterval time.Duration // 0 means DefaultPollInterval
	DisableProbe bool          // skip the fsnotify capability probe
	Quiet        bool          // suppress per-event logging
}

// Monitor watches one directory tree, coalesces filesystem events into
// single rescans, and publishes non-empty diffs on the event bus. At most
// one scan runs at a time; events arriving mid-scan imply one follow-up
// rescan after it finishes.
type Monitor struct {
	id       string
	root     string
	label    string
	scanner  TreeScanner
	bus      *event.Bus
	logger   *slog.Logger
	debounce time.Duration
	polling  bool
	pollGap  time.Duration
	quiet    bool

	mu             sync.Mutex
	snapshot       gallery.Snapshot
	timer          *time.Timer
	scanInProgress bool
	rescanQueued   bool
	recent         map[eventKey]time.Time
	watchedDirs    map[string]bool
	stopped        bool

	watcher  *fsnotify.Watcher
	pollSig  map[string]time.Time
	cancel   context.CancelFunc
	done     chan struct{}
	scans    sync.WaitGroup
	stopOnce sync.Once
}

// eventKey identifies an event for duplicate suppression within the
// debounce window: operation plus resolved real path.
type eventKey struct {
	op   string
	path string
}

// newMonitor builds a monitor, performs the initial synchronous scan to
// seed the snapshot, and registers filesystem watches (native mode only).
// The watch loop does not run until start is called.
func newMonitor(root, label string, scanner TreeScanner, bus *event.Bus, logger *slog.Logger, opts Options) (*Monitor, error) {
	real, err := filepath.EvalSymlinks(root)
	if err == nil {
		root = real
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("stat watch root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("watch root %s is not a directory", root)
	}

	m := &Monitor{
		id:          uuid.New().String(),
		root:        root,
		label:       label,
		scanner:     scanner,
		bus:         bus,
		logger:      logger.With("component", "monitor", "root", root),
		debounce:    opts.Debounce,
		polling:     opts.UsePolling,
		pollGap:     opts.PollInterval,
		quiet:       opts.Quiet,
		recent:      make(map[eventKey]time.Time),
		watchedDirs: make(map[string]bool),
		done:        make(chan struct{}),
	}
	if m.debounce <= 0 {
		m.debounce = DefaultDebounce
	}
	if m.pollGap <= 0 {
		m.pollGap = DefaultPollInterval
	}

	// Seed the snapshot before watching so the first published diff
	// reflects real change rather than everything appearing created.
	m.snapshot = scanner.Scan(root, label, true)

	if !m.polling && !opts.DisableProbe {
		if !ProbeFSNotify(root, time.Second) {
			m.logger.Warn("native watch undeliverable for root, falling back to polling")
			m.polling = true
		}
	}

	if m.polling {
		m.pollSig = m.pollSignature()
		return m, nil
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		m.logger.Warn("fsnotify unavailable, falling back to polling", "error", err)
		m.polling = true
		m.pollSig = m.pollSignature()
		return m, nil
	}
	m.watcher = w
	m.addWatches(root)
	return m, nil
}

// start launches the watch loop.
func (m *Monitor) start() {
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	go m.run(ctx)
	if !m.quiet {
		m.logger.Info("monitor started", "id", m.id, "polling", m.polling, "debounce", m.debounce)
	}
}

// Stop tears the monitor down: cancels the watch loop, releases OS watch
// handles, and waits for the loop and any in-flight scan to finish. Safe
// to call more than once.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() {
		m.mu.Lock()
		m.stopped = true
		if m.timer != nil {
			m.timer.Stop()
			m.timer = nil
		}
		m.mu.Unlock()

		if m.cancel != nil {
			m.cancel()
		}
		if m.watcher != nil {
			m.watcher.Close() //nolint:errcheck
		}
		if m.cancel != nil {
			<-m.done
		}
		m.scans.Wait()
		if !m.quiet {
			m.logger.Info("monitor stopped", "id", m.id)
		}
	})
}

// ID returns the monitor's unique identifier.
func (m *Monitor) ID() string { return m.id }

// Root returns the resolved watch root.
func (m *Monitor) Root() string { return m.root }

// Polling reports whether the monitor runs the polling observer.
func (m *Monitor) Polling() bool { return m.polling }

// Snapshot returns the last-known-good snapshot. The returned map must be
// treated as read-only; rescans replace it wholesale rather than mutating.
func (m *Monitor) Snapshot() gallery.Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshot
}

// run is the event-dispatch loop. It owns the fsnotify channels (or the
// poll ticker) and never blocks on scans, which run on their own workers.
func (m *Monitor) run(ctx context.Context) {
	defer close(m.done)

	var events <-chan fsnotify.Event
	var errs <-chan error
	if m.watcher != nil {
		events = m.watcher.Events
		errs = m.watcher.Errors
	}

	var pollC <-chan time.Time
	if m.polling {
		ticker := time.NewTicker(m.pollGap)
		defer ticker.Stop()
		pollC = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			m.handleEvent(ev)
		case err, ok := <-errs:
			if !ok {
				return
			}
			m.logger.Error("watch error", "error", err)
		case <-pollC:
			if m.pollChanged() {
				m.armDebounce()
			}
		}
	}
}

// handleEvent filters one raw fsnotify event and restarts the debounce
// timer when it is relevant to the gallery.
func (m *Monitor) handleEvent(ev fsnotify.Event) {
	if ev.Op == fsnotify.Chmod {
		return
	}
	name := ev.Name
	for _, suffix := range tempSuffixes {
		if strings.HasSuffix(name, suffix) {
			return
		}
	}

	if ev.Has(fsnotify.Create) {
		if info, err := os.Stat(name); err == nil && info.IsDir() {
			// A new subtree may arrive populated; watch it and rescan
			// since its files can predate the watch registration.
			if !strings.HasPrefix(filepath.Base(name), ".") {
				m.addWatches(name)
				m.armDebounce()
			}
			return
		}
	}

	if ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename) {
		// A vanished watched directory takes its files with it without
		// per-file events, so it must trigger a rescan itself.
		m.mu.Lock()
		wasDir := m.watchedDirs[name]
		if wasDir {
			delete(m.watchedDirs, name)
		}
		m.mu.Unlock()
		if wasDir {
			m.armDebounce()
			return
		}
	}

	if _, ok := gallery.KindForName(name); !ok {
		return
	}

	if m.duplicate(ev.Op.String(), name) {
		return
	}

	if !m.quiet {
		m.logger.Debug("filesystem event", "op", ev.Op.String(), "path", name)
	}
	m.armDebounce()
}

// duplicate suppresses identical (op, real path) pairs within the debounce
// window. The map is pruned on every hit so it stays bounded by the window.
func (m *Monitor) duplicate(op, name string) bool {
	path := name
	if real, err := filepath.EvalSymlinks(name); err == nil {
		path = real
	}
	key := eventKey{op: op, path: path}
	now := time.Now()

	m.mu.Lock()
	defer m.mu.Unlock()
	if last, seen := m.recent[key]; seen && now.Sub(last) < m.debounce {
		return true
	}
	for k, t := range m.recent {
		if now.Sub(t) >= m.debounce {
			delete(m.recent, k)
		}
	}
	m.recent[key] = now
	return false
}

// armDebounce restarts the debounce timer. Cancel-then-reschedule happens
// under the mutex so concurrent event delivery cannot race the timer.
func (m *Monitor) armDebounce() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped {
		return
	}
	if m.timer != nil {
		m.timer.Stop()
	}
	m.timer = time.AfterFunc(m.debounce, m.debounceElapsed)
}

// debounceElapsed fires once the event burst has gone quiet. If a scan is
// already in flight the request coalesces into a single follow-up rescan.
func (m *Monitor) debounceElapsed() {
	m.mu.Lock()
	m.timer = nil
	if m.stopped {
		m.mu.Unlock()
		return
	}
	if m.scanInProgress {
		m.rescanQueued = true
		m.mu.Unlock()
		return
	}
	m.scanInProgress = true
	m.scans.Add(1)
	m.mu.Unlock()

	go m.rescan()
}

type scanResult struct {
	snap gallery.Snapshot
	err  error
}

// rescan runs one scan-and-diff cycle on its own worker. The walk itself
// runs in a child goroutine whose result (or panic) is delivered over a
// single-slot channel, so a crashing scan surfaces as an error instead of
// a hung monitor.
func (m *Monitor) rescan() {
	defer m.scans.Done()
	defer m.finishScan()

	resCh := make(chan scanResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				resCh <- scanResult{err: fmt.Errorf("scan worker panicked: %v", r)}
			}
		}()
		resCh <- scanResult{snap: m.scanner.Scan(m.root, m.label, true)}
	}()
	res := <-resCh

	if res.err != nil {
		// Keep the last-known-good snapshot; the monitor returns to idle.
		m.logger.Error("rescan failed", "error", res.err)
		return
	}

	m.mu.Lock()
	old := m.snapshot
	m.mu.Unlock()

	diff := gallery.Detect(old, res.snap)

	m.mu.Lock()
	m.snapshot = res.snap
	m.mu.Unlock()

	if diff.Empty() {
		if !m.quiet {
			m.logger.Debug("rescan found no gallery changes")
		}
		return
	}

	if !m.quiet {
		m.logger.Info("gallery changed", "folders", len(diff))
	}
	m.bus.Publish(event.Event{Type: event.FileChange, Data: diff.Payload()})
}

// finishScan clears the in-progress flag and re-arms the debounce timer if
// events arrived while the scan ran. Runs even when the scan errored.
func (m *Monitor) finishScan() {
	m.mu.Lock()
	m.scanInProgress = false
	queued := m.rescanQueued
	m.rescanQueued = false
	stopped := m.stopped
	m.mu.Unlock()

	if queued && !stopped {
		m.armDebounce()
	}
}

// addWatches registers dirPath and every subdirectory (following symlinked
// directories, skipping dot-prefixed ones) with the native watcher.
// Failures are logged and skipped; a partially watched tree still works,
// the unwatched parts are just invisible until the next full event.
func (m *Monitor) addWatches(dirPath string) {
	if m.watcher == nil {
		return
	}
	visited := make(map[string]struct{})
	m.addWatchDir(dirPath, visited)
}

func (m *Monitor) addWatchDir(dirPath string, visited map[string]struct{}) {
	if real, err := filepath.EvalSymlinks(dirPath); err == nil {
		if _, seen := visited[real]; seen {
			return
		}
		visited[real] = struct{}{}
	}

	if err := m.watcher.Add(dirPath); err != nil {
		m.logger.Warn("failed to watch directory", "path", dirPath, "error", err)
		return
	}
	m.mu.Lock()
	m.watchedDirs[dirPath] = true
	m.mu.Unlock()

	entries, err := os.ReadDir(dirPath)
	if err != nil {
		m.logger.Warn("failed to enumerate watch directory", "path", dirPath, "error", err)
		return
	}
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}
		full := filepath.Join(dirPath, name)
		info, err := os.Stat(full)
		if err != nil || !info.IsDir() {
			continue
		}
		m.addWatchDir(full, visited)
	}
}
