package app

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/jengzang/fwa-watersheds-go/internal/config"
	"github.com/jengzang/fwa-watersheds-go/internal/repository"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load("")
	if err != nil {
		t.Fatal(err)
	}
	cfg.Database.Path = filepath.Join(t.TempDir(), "fwa.db")
	cfg.Workers = 2
	return cfg
}

func quiet() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func TestOpenWireServe(t *testing.T) {
	ctx := context.Background()
	a, err := Open(ctx, testConfig(t), quiet())
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := a.Basins.(*repository.BasinRepository); !ok {
		t.Errorf("basins = %T, want sqlite repository without graph.uri", a.Basins)
	}
	if err := a.Wire(); err != nil {
		t.Fatal(err)
	}

	w := httptest.NewRecorder()
	a.Router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusOK {
		t.Errorf("health = %d", w.Code)
	}

	if err := a.Close(ctx); err != nil {
		t.Fatal(err)
	}
}

func TestWireBordersFile(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)

	cfg.CrossBorder.BordersFile = filepath.Join(t.TempDir(), "absent.yaml")
	a, err := Open(ctx, cfg, quiet())
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close(ctx)
	if err := a.Wire(); err == nil {
		t.Error("missing borders file accepted")
	}

	path := filepath.Join(t.TempDir(), "borders.yaml")
	doc := `
crossings:
  - border: USA
    wscode: 920-076175-450000
    localcode: 920-076175-450000-100000
    hierarchy: wbd
    basin_unit_id: "0101"
`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}
	a.Config.CrossBorder.BordersFile = path
	if err := a.Wire(); err != nil {
		t.Fatal(err)
	}
	if a.Pipeline == nil || a.Service == nil {
		t.Error("pipeline not wired")
	}
}
