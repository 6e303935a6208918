package api

import (
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spullara/ComfyUI-Gallery/internal/event"
)

func TestRouterServesStaticFromMount(t *testing.T) {
	env := newTestEnv(t)
	env.writeMedia(t, "served.png")
	env.router.mount.Remount(env.galleryRoot)

	srv := httptest.NewServer(env.router.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/static_gallery/served.png")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close() //nolint:errcheck
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}

func TestRouterStaticFollowsRemount(t *testing.T) {
	env := newTestEnv(t)
	env.writeMedia(t, "only-here.png")

	srv := httptest.NewServer(env.router.Handler())
	defer srv.Close()

	// Mounted on the placeholder: the file is invisible.
	resp, err := http.Get(srv.URL + "/static_gallery/only-here.png")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close() //nolint:errcheck
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("pre-remount status = %d, want 404", resp.StatusCode)
	}

	env.router.mount.Remount(env.galleryRoot)

	resp, err = http.Get(srv.URL + "/static_gallery/only-here.png")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close() //nolint:errcheck
	if resp.StatusCode != http.StatusOK {
		t.Errorf("post-remount status = %d, want 200", resp.StatusCode)
	}
}

func TestRouterRoutesRegistered(t *testing.T) {
	env := newTestEnv(t)
	srv := httptest.NewServer(env.router.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/Gallery/health")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close() //nolint:errcheck
	if resp.StatusCode != http.StatusOK {
		t.Errorf("health status = %d", resp.StatusCode)
	}

	// Wrong method on a registered pattern is rejected by the mux.
	resp, err = http.Get(srv.URL + "/Gallery/monitor/start")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close() //nolint:errcheck
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("GET on POST route status = %d, want 405", resp.StatusCode)
	}
}

func TestRouterBasePath(t *testing.T) {
	env := newTestEnv(t)
	env.router.basePath = "/comfy"
	srv := httptest.NewServer(env.router.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/comfy/Gallery/health")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close() //nolint:errcheck
	if resp.StatusCode != http.StatusOK {
		t.Errorf("prefixed health status = %d", resp.StatusCode)
	}
}

func TestWebSocketReceivesFileChangePush(t *testing.T) {
	env := newTestEnv(t)
	env.router.hub.SubscribeBus(env.bus, event.FileChange)

	srv := httptest.NewServer(env.router.Handler())
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/Gallery/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close() //nolint:errcheck

	// Wait for the hub to register the client before publishing.
	deadline := time.Now().Add(time.Second)
	for env.router.hub.ClientCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	env.bus.Publish(event.Event{
		Type: event.FileChange,
		Data: map[string]any{"folders": map[string]any{"output": map[string]any{}}},
	})

	if err := conn.SetReadDeadline(time.Now().Add(2 * time.Second)); err != nil {
		t.Fatal(err)
	}
	var msg struct {
		Type string         `json:"type"`
		Data map[string]any `json:"data"`
	}
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatal(err)
	}
	if msg.Type != string(event.FileChange) {
		t.Errorf("message type = %q, want %q", msg.Type, event.FileChange)
	}
	if _, ok := msg.Data["folders"]; !ok {
		t.Errorf("message data missing folders: %v", msg.Data)
	}
}

func TestDeleteEndpointThroughRouter(t *testing.T) {
	env := newTestEnv(t)
	path := env.writeMedia(t, "via-router.png")
	env.router.mount.Remount(env.galleryRoot)

	srv := httptest.NewServer(env.router.Handler())
	defer srv.Close()

	body := strings.NewReader(`{"image_path": "/static_gallery/via-router.png"}`)
	resp, err := http.Post(srv.URL+"/Gallery/delete", "application/json", body)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close() //nolint:errcheck
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("file survived delete through router")
	}
}
