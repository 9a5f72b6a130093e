package main

import (
	"encoding/json"
	"io"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/mapsite/mapsite/internal/config"
)

func TestPreviewAppRoutesDiagnosticsBeforeStatic(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "index.html"), []byte("<p>mapa</p>"), 0o644); err != nil {
		t.Fatalf("write index: %v", err)
	}
	cfg := &config.Config{
		Global: config.GlobalConfig{
			SiteRoot:   root,
			ImagesDir:  "assets/data/images",
			ListenPort: 4000,
		},
		Source: config.SourceConfig{Type: "kml", MapID: "abc"},
	}
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	app, err := newPreviewApp(cfg, logger)
	if err != nil {
		t.Fatalf("new preview app: %v", err)
	}

	resp, err := app.Test(httptest.NewRequest("GET", "/-/images", nil))
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	var payload struct {
		Count int `json:"count"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("/-/images 应返回 JSON: %v", err)
	}
	if payload.Count != 0 {
		t.Fatalf("expected empty image dir, got %d", payload.Count)
	}

	resp, err = app.Test(httptest.NewRequest("GET", "/index.html", nil))
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("static file should be served, got %d", resp.StatusCode)
	}
}
