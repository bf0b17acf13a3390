package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/jengzang/fwa-watersheds-go/internal/config"
	"github.com/jengzang/fwa-watersheds-go/internal/database"
	"github.com/jengzang/fwa-watersheds-go/internal/handler"
	"github.com/jengzang/fwa-watersheds-go/internal/middleware"
	"github.com/jengzang/fwa-watersheds-go/internal/repository"
	"github.com/jengzang/fwa-watersheds-go/internal/service"
	"github.com/jengzang/fwa-watersheds-go/internal/watershed"
)

const testSecret = "router-test-secret"

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestRouter(t *testing.T) (*gin.Engine, *service.WatershedService) {
	t.Helper()
	ctx := context.Background()
	log := logrus.New()
	log.SetOutput(io.Discard)

	db, err := database.Open(ctx, database.Config{Path: filepath.Join(t.TempDir(), "fwa.db")})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	if err := database.NewMigrationManager(db, log).RunMigrations(ctx); err != nil {
		t.Fatal(err)
	}

	streams := repository.NewStreamRepository(db)
	watersheds := repository.NewWatershedRepository(db)
	f, err := os.Open(filepath.Join("..", "repository", "testdata", "network.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	fx, err := repository.ReadFixture(f)
	if err != nil {
		t.Fatal(err)
	}
	if err := fx.Load(ctx, repository.FixtureStores{Streams: streams, Watersheds: watersheds, Basins: repository.NewBasinRepository(db)}); err != nil {
		t.Fatal(err)
	}

	runs := repository.NewRunRepository(db)
	fragments := repository.NewFragmentRepository(db)
	events := repository.NewEventRepository(db)
	p := watershed.NewPipeline(watershed.Deps{
		Streams:    streams,
		Watersheds: watersheds,
		Events:     events,
		Fragments:  fragments,
		Runs:       runs,
		Cut:        watershed.NewCutRefiner(log),
	}, watershed.Options{Workers: 1, Thresholds: watershed.DefaultThresholds}, log)
	svc := service.NewWatershedService(streams, runs, fragments, events, p, log)

	cfg := &config.Config{Server: config.ServerConfig{JWTSecret: testSecret}}
	return SetupRouter(cfg, handler.NewWatershedHandler(svc), nil, log), svc
}

func do(t *testing.T, r http.Handler, method, path string, body interface{}, token string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		rd = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("bad body %s: %v", w.Body.String(), err)
	}
}

func TestHealth(t *testing.T) {
	r, _ := newTestRouter(t)
	if w := do(t, r, http.MethodGet, "/health", nil, ""); w.Code != http.StatusOK {
		t.Errorf("status = %d", w.Code)
	}
}

func TestRunLifecycle(t *testing.T) {
	r, svc := newTestRouter(t)
	body := map[string]interface{}{
		"points": []map[string]interface{}{{"id": "river", "x": 5, "y": 5200}},
	}

	if w := do(t, r, http.MethodPost, "/api/v1/runs", body, ""); w.Code != http.StatusUnauthorized {
		t.Fatalf("unauthenticated submit status = %d", w.Code)
	}

	token, err := middleware.IssueToken(testSecret, "tester", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	w := do(t, r, http.MethodPost, "/api/v1/runs", body, token)
	if w.Code != http.StatusAccepted {
		t.Fatalf("submit status = %d: %s", w.Code, w.Body.String())
	}
	var env envelope
	decode(t, w, &env)
	var run struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(env.Data, &run); err != nil || run.ID == "" {
		t.Fatalf("run = %s", env.Data)
	}
	svc.Wait()

	w = do(t, r, http.MethodGet, "/api/v1/runs/"+run.ID, nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("get run status = %d", w.Code)
	}
	decode(t, w, &env)
	var detail struct {
		Status   string `json:"status"`
		Outcomes []struct {
			PointID string `json:"point_id"`
			Method  string `json:"method"`
		} `json:"outcomes"`
	}
	if err := json.Unmarshal(env.Data, &detail); err != nil {
		t.Fatal(err)
	}
	if detail.Status != "completed" || len(detail.Outcomes) != 1 || detail.Outcomes[0].Method != "CUT" {
		t.Errorf("detail = %+v", detail)
	}

	cancelPath := "/api/v1/runs/" + run.ID + "/cancel"
	if w := do(t, r, http.MethodPost, cancelPath, nil, ""); w.Code != http.StatusUnauthorized {
		t.Errorf("unauthenticated cancel status = %d", w.Code)
	}
	if w := do(t, r, http.MethodPost, cancelPath, nil, token); w.Code != http.StatusConflict {
		t.Errorf("cancel finished run status = %d: %s", w.Code, w.Body.String())
	}

	w = do(t, r, http.MethodGet, "/api/v1/watersheds/river?dissolve=true", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("watershed status = %d", w.Code)
	}
	var fc struct {
		Type     string `json:"type"`
		Features []struct {
			Geometry struct {
				Type string `json:"type"`
			} `json:"geometry"`
		} `json:"features"`
	}
	decode(t, w, &fc)
	if fc.Type != "FeatureCollection" || len(fc.Features) != 1 || fc.Features[0].Geometry.Type != "Polygon" {
		t.Errorf("feature collection = %+v", fc)
	}
}

func TestErrors(t *testing.T) {
	r, _ := newTestRouter(t)
	token, err := middleware.IssueToken(testSecret, "tester", time.Hour)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		method string
		path   string
		body   interface{}
		want   int
	}{
		{"unknown run", http.MethodGet, "/api/v1/runs/nope", nil, http.StatusNotFound},
		{"cancel unknown run", http.MethodPost, "/api/v1/runs/nope/cancel", nil, http.StatusNotFound},
		{"unknown point", http.MethodGet, "/api/v1/watersheds/nope", nil, http.StatusNotFound},
		{"bad dissolve", http.MethodGet, "/api/v1/watersheds/x?dissolve=maybe", nil, http.StatusBadRequest},
		{"no points", http.MethodPost, "/api/v1/runs", map[string]interface{}{"points": []interface{}{}}, http.StatusBadRequest},
		{"bad blue line", http.MethodGet, "/api/v1/codes/local?blue_line_key=x&measure=1", nil, http.StatusBadRequest},
		{"negative measure", http.MethodGet, "/api/v1/codes/local?blue_line_key=354155107&measure=-1", nil, http.StatusBadRequest},
		{"unknown blue line", http.MethodGet, "/api/v1/codes/local?blue_line_key=1&measure=0", nil, http.StatusNotFound},
		{"bad code", http.MethodGet, "/api/v1/codes/upstream?point_ws=abc&point_local=920&ws=920", nil, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if w := do(t, r, tt.method, tt.path, tt.body, token); w.Code != tt.want {
				t.Errorf("status = %d, want %d: %s", w.Code, tt.want, w.Body.String())
			}
		})
	}
}

func TestCodesUpstream(t *testing.T) {
	r, _ := newTestRouter(t)
	w := do(t, r, http.MethodGet,
		"/api/v1/codes/upstream?point_ws=920-076175&point_local=920-076175-303123&ws=920-076175-450000-100000", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var env envelope
	decode(t, w, &env)
	if string(env.Data) != `{"upstream":true}` {
		t.Errorf("data = %s", env.Data)
	}
}

func TestCodesLocal(t *testing.T) {
	r, _ := newTestRouter(t)
	w := do(t, r, http.MethodGet, "/api/v1/codes/local?blue_line_key=354155107&measure=3400", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	var env envelope
	decode(t, w, &env)
	var got struct {
		LocalCode string `json:"localcode"`
	}
	if err := json.Unmarshal(env.Data, &got); err != nil {
		t.Fatal(err)
	}
	if got.LocalCode != "920-076175-303123" {
		t.Errorf("localcode = %q", got.LocalCode)
	}
}
