package api

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/spullara/ComfyUI-Gallery/internal/api/middleware"
	"github.com/spullara/ComfyUI-Gallery/internal/gallery"
	"github.com/spullara/ComfyUI-Gallery/internal/monitor"
)

// RouterDeps bundles all dependencies needed by the HTTP router.
type RouterDeps struct {
	Scanner     *gallery.Scanner
	Supervisor  *monitor.Supervisor
	Mount       *MountPoint
	Hub         *Hub
	Logger      *slog.Logger
	BasePath    string
	GalleryRoot string
	AllowedRoot string
	Debounce    time.Duration
	UsePolling  bool
}

// Router sets up all HTTP routes for the application.
type Router struct {
	scanner     *gallery.Scanner
	supervisor  *monitor.Supervisor
	mount       *MountPoint
	hub         *Hub
	logger      *slog.Logger
	basePath    string
	galleryRoot string
	allowedRoot string
	debounce    time.Duration
	usePolling  bool

	// scanMu serializes on-demand scans triggered by the images endpoint.
	scanMu sync.Mutex
}

// NewRouter creates a new Router with all routes configured.
func NewRouter(deps RouterDeps) *Router {
	return &Router{
		scanner:     deps.Scanner,
		supervisor:  deps.Supervisor,
		mount:       deps.Mount,
		hub:         deps.Hub,
		logger:      deps.Logger,
		basePath:    deps.BasePath,
		galleryRoot: deps.GalleryRoot,
		allowedRoot: deps.AllowedRoot,
		debounce:    deps.Debounce,
		usePolling:  deps.UsePolling,
	}
}

// Handler returns the fully configured HTTP handler with middleware applied.
func (r *Router) Handler() http.Handler {
	mutationMw := middleware.NewMutationRateLimiter(5, 10).Middleware
	mux := http.NewServeMux()
	bp := r.basePath

	mux.HandleFunc("GET "+bp+"/Gallery/health", r.handleHealth)
	mux.HandleFunc("GET "+bp+"/Gallery/images", r.handleImages)
	mux.HandleFunc("POST "+bp+"/Gallery/monitor/start", r.handleMonitorStart)
	mux.HandleFunc("POST "+bp+"/Gallery/monitor/stop", r.handleMonitorStop)
	mux.HandleFunc("GET "+bp+"/Gallery/monitor/status", r.handleMonitorStatus)
	mux.HandleFunc("PATCH "+bp+"/Gallery/updateImages", r.handleUpdateImages)
	mux.HandleFunc("GET "+bp+"/Gallery/ws", r.hub.HandleWS)

	// Destructive endpoints are rate-limited per client IP.
	mux.Handle("POST "+bp+"/Gallery/delete", mutationMw(http.HandlerFunc(r.handleDelete)))
	mux.Handle("POST "+bp+"/Gallery/move", mutationMw(http.HandlerFunc(r.handleMove)))

	// The static mount re-resolves its directory per request so a monitor
	// switch repoints serving without restarting the server.
	mux.Handle("GET "+bp+gallery.URLPrefix, r.mount.Handler(bp+gallery.URLPrefix))

	return middleware.Logging(r.logger)(mux)
}
