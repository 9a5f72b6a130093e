package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mapsite/mapsite/internal/cache"
)

func TestBuildCSVSiteEndToEnd(t *testing.T) {
	upstream := newSiteUpstream(t)
	root := t.TempDir()
	configPath := writeConfigFile(t, fmt.Sprintf(`
LogLevel = "warn"
SiteRoot = "%s"
PagesDir = "_points"
Concurrency = 2

[Source]
Type = "csv"
CSVURL = "%s/points.csv"
CSVSeparator = ";"
PropertyNames = ["nome"]
ImagePropertyNames = ["foto"]
SlugColumn = "slug"
LatitudeColumn = "lat"
LongitudeColumn = "lng"
`, root, upstream.URL))

	useBufferWriters(t)
	code := execute([]string{"build", "--config", configPath})
	if code != 0 {
		t.Fatalf("期望退出码 0，得到 %d (stderr=%s)", code, stdErrString())
	}
	if !strings.Contains(stdOutString(), "features=2 images=1/2 pages=2") {
		t.Fatalf("unexpected summary: %s", stdOutString())
	}

	raw, err := os.ReadFile(filepath.Join(root, "assets", "data", "features.geojson"))
	if err != nil {
		t.Fatalf("read geojson: %v", err)
	}
	var doc struct {
		Features []struct {
			Properties map[string]any `json:"properties"`
		} `json:"features"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		t.Fatalf("decode geojson: %v", err)
	}
	images, _ := doc.Features[0].Properties["imagens"].([]any)
	if len(images) != 1 || !strings.HasPrefix(images[0].(string), "/assets/data/images/") {
		t.Fatalf("unexpected images %v", doc.Features[0].Properties["imagens"])
	}
	if _, err := os.Stat(filepath.Join(root, "_points", "praca.md")); err != nil {
		t.Fatalf("page missing: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "tmp", "mapsite.lock")); err != nil {
		t.Fatalf("lock file should live in the work dir: %v", err)
	}
}

func TestImagesCommandRendersTableAndJSON(t *testing.T) {
	root := t.TempDir()
	configPath := writeConfigFile(t, fmt.Sprintf(`
SiteRoot = "%s"

[Source]
Type = "kml"
MapID = "abc"
`, root))

	store, err := cache.NewStore(filepath.Join(root, "assets", "data", "images"))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	if _, err := store.PutOnce(t.Context(), "0cc175b9c.jpg", bytes.NewReader(make([]byte, 2048))); err != nil {
		t.Fatalf("seed error: %v", err)
	}

	useBufferWriters(t)
	if code := execute([]string{"images", "-c", configPath}); code != 0 {
		t.Fatalf("期望退出码 0，得到 %d (stderr=%s)", code, stdErrString())
	}
	out := stdOutString()
	for _, want := range []string{"0cc175b9c.jpg", "/assets/data/images/0cc175b9c.jpg", "2.0 kB", "1 images"} {
		if !strings.Contains(out, want) {
			t.Fatalf("table missing %q:\n%s", want, out)
		}
	}

	useBufferWriters(t)
	if code := execute([]string{"images", "--json", "-c", configPath}); code != 0 {
		t.Fatalf("期望退出码 0，得到 %d", code)
	}
	var entries []cache.Entry
	if err := json.Unmarshal([]byte(stdOutString()), &entries); err != nil {
		t.Fatalf("decode json: %v\n%s", err, stdOutString())
	}
	if len(entries) != 1 || entries[0].SizeBytes != 2048 {
		t.Fatalf("unexpected entries %+v", entries)
	}
}

func TestBuildFailsOnInvalidConfig(t *testing.T) {
	useBufferWriters(t)
	if code := execute([]string{"build", "--config", configFixture(t, "missing.toml")}); code != 1 {
		t.Fatalf("无效配置应返回 1，得到 %d", code)
	}
}

// newSiteUpstream 提供 CSV 与一张 PNG，/missing.jpg 返回 404。
func newSiteUpstream(t *testing.T) *httptest.Server {
	t.Helper()
	var img bytes.Buffer
	if err := png.Encode(&img, image.NewGray(image.Rect(0, 0, 16, 16))); err != nil {
		t.Fatalf("encode png: %v", err)
	}

	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/points.csv":
			fmt.Fprintf(w, "slug;nome;foto;lat;lng\npraca;Praça;%s/p.png;41.1;-8.6\nrua;Rua;%s/missing.jpg;41.2;-8.5\n", srv.URL, srv.URL)
		case "/p.png":
			w.Header().Set("Content-Type", "image/png")
			_, _ = w.Write(img.Bytes())
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}
