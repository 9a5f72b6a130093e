package server

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"
)

func TestHealthzReportsOK(t *testing.T) {
	app := newTestApp(t, t.TempDir())

	resp, err := app.Test(httptest.NewRequest("GET", "/-/healthz", nil))
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200 status, got %d", resp.StatusCode)
	}
	var payload map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if payload["status"] != "ok" {
		t.Fatalf("unexpected payload %v", payload)
	}
	if reqID := resp.Header.Get("X-Request-ID"); reqID == "" {
		t.Fatalf("expected X-Request-ID header to be set")
	}
}

func TestMountSiteServesStaticFiles(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "index.html"), "<h1>mapa</h1>")
	writeFile(t, filepath.Join(root, "assets", "data", "features.geojson"), `{"type":"FeatureCollection"}`)

	app := newTestApp(t, root)

	resp, err := app.Test(httptest.NewRequest("GET", "/assets/data/features.geojson", nil))
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != fiber.StatusOK || !bytes.Contains(body, []byte("FeatureCollection")) {
		t.Fatalf("unexpected response %d: %s", resp.StatusCode, body)
	}

	resp, err = app.Test(httptest.NewRequest("GET", "/", nil))
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	body, _ = io.ReadAll(resp.Body)
	if !bytes.Contains(body, []byte("mapa")) {
		t.Fatalf("index.html should be served for /, got %d: %s", resp.StatusCode, body)
	}
}

func TestMountSiteMissingFileReturns404(t *testing.T) {
	app := newTestApp(t, t.TempDir())

	resp, err := app.Test(httptest.NewRequest("GET", "/nope.html", nil))
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusNotFound {
		t.Fatalf("expected 404 status, got %d", resp.StatusCode)
	}
}

func TestNewAppValidatesOptions(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	if _, err := NewApp(AppOptions{SiteRoot: t.TempDir(), ListenPort: 4000}); err == nil {
		t.Fatalf("missing logger should fail")
	}
	if _, err := NewApp(AppOptions{Logger: logger, SiteRoot: t.TempDir(), ListenPort: 0}); err == nil {
		t.Fatalf("invalid port should fail")
	}
	if _, err := NewApp(AppOptions{Logger: logger, SiteRoot: filepath.Join(t.TempDir(), "missing"), ListenPort: 4000}); err == nil {
		t.Fatalf("missing site root should fail")
	}
}

func newTestApp(t *testing.T, root string) *fiber.App {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	app, err := NewApp(AppOptions{Logger: logger, SiteRoot: root, ListenPort: 4000})
	if err != nil {
		t.Fatalf("failed to create app: %v", err)
	}
	MountSite(app, root)
	return app
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
}
