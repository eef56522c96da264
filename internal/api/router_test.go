package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jengzang/forestwatch-backend-go/internal/config"
	"github.com/jengzang/forestwatch-backend-go/internal/database"
	"github.com/jengzang/forestwatch-backend-go/internal/editor"
	"github.com/jengzang/forestwatch-backend-go/internal/grid"
	"github.com/jengzang/forestwatch-backend-go/internal/middleware"
	"github.com/jengzang/forestwatch-backend-go/internal/models"
	"github.com/jengzang/forestwatch-backend-go/internal/repository"
	"github.com/jengzang/forestwatch-backend-go/internal/service"
	"github.com/jengzang/forestwatch-backend-go/internal/spatial"
	"github.com/jengzang/forestwatch-backend-go/internal/tiles"
	"github.com/jengzang/forestwatch-backend-go/internal/upstream"
)

const testSecret = "s3cret"

// reportServer answers cell, children and polygon requests with empty but
// well formed records
type reportServer struct {
	mu   sync.Mutex
	puts []string
}

func (s *reportServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	switch {
	case r.Method == http.MethodPut:
		s.mu.Lock()
		s.puts = append(s.puts, r.URL.Path)
		s.mu.Unlock()
		fmt.Fprint(w, `{}`)
	case strings.HasSuffix(r.URL.Path, "/children"), strings.HasSuffix(r.URL.Path, "/polygon"):
		fmt.Fprint(w, `[]`)
	case strings.Contains(r.URL.Path, "/cell/"):
		var z, x, y int
		if _, err := fmt.Sscanf(path.Base(r.URL.Path), "%d_%d_%d", &z, &x, &y); err != nil {
			http.Error(w, "bad cell", http.StatusBadRequest)
			return
		}
		fmt.Fprintf(w, `{"z":%d,"x":%d,"y":%d,"ndfi_change_value":0.4}`, z, x, y)
	default:
		http.NotFound(w, r)
	}
}

func (s *reportServer) putCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.puts)
}

func newTestRouter(t *testing.T) (*gin.Engine, *reportServer) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	upstreamSrv := &reportServer{}
	ts := httptest.NewServer(upstreamSrv)
	t.Cleanup(ts.Close)

	db, err := database.Open(filepath.Join(t.TempDir(), "api.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := database.NewMigrationManager(db).RunMigrations(); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	ws, err := service.NewWorkspace(service.WorkspaceOptions{
		ReportID:  "r1",
		Operation: models.OperationSAD,
		AddedBy:   "ana",
		Remote:    upstream.NewClient(ts.URL, 5*time.Second),
		Cells:     repository.NewCellRepository(db),
		Polygons:  repository.NewPolygonRepository(db),
		Profiles:  repository.NewThresholdRepository(db),
		Fetcher:   tiles.NewFetcher(nil, "http://127.0.0.1:1", false),
		Editor:    editor.Options{Retry: editor.RetryStrategy{Intervals: []time.Duration{}}},
	})
	if err != nil {
		t.Fatalf("NewWorkspace: %v", err)
	}
	t.Cleanup(ws.Close)

	limiter := middleware.NewRateLimiter(100, time.Minute)
	t.Cleanup(limiter.Stop)

	cfg := &config.Config{JWTSecret: testSecret}
	return SetupRouter(cfg, ws, service.NewSyncService(ws), limiter), upstreamSrv
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

func call(t *testing.T, r http.Handler, method, target string, body any, token string) (int, envelope) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var env envelope
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
			t.Fatalf("%s %s: bad body %q: %v", method, target, w.Body.String(), err)
		}
	}
	return w.Code, env
}

func sessionMode(t *testing.T, env envelope) string {
	t.Helper()
	var s struct {
		Navigation struct {
			Mode string `json:"mode"`
		} `json:"navigation"`
	}
	if err := json.Unmarshal(env.Data, &s); err != nil {
		t.Fatalf("session: %v", err)
	}
	return s.Navigation.Mode
}

func issue(t *testing.T) string {
	t.Helper()
	token, err := middleware.IssueToken(testSecret, "ana")
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	return token
}

func TestHealthAndSession(t *testing.T) {
	r, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("health status = %d", w.Code)
	}

	code, env := call(t, r, http.MethodGet, "/api/v1/session", nil, "")
	if code != http.StatusOK || env.Code != 0 {
		t.Fatalf("session = %d %+v", code, env)
	}
	if mode := sessionMode(t, env); mode != "idle" {
		t.Fatalf("mode = %q, want idle", mode)
	}
}

func TestMutationsRequireToken(t *testing.T) {
	r, _ := newTestRouter(t)

	if code, _ := call(t, r, http.MethodPost, "/api/v1/navigation/enter", map[string]int{"z": 0}, ""); code != http.StatusUnauthorized {
		t.Fatalf("without token = %d, want 401", code)
	}
	if code, _ := call(t, r, http.MethodPost, "/api/v1/navigation/enter", map[string]int{"z": 0}, "garbage"); code != http.StatusUnauthorized {
		t.Fatalf("bad token = %d, want 401", code)
	}
	if code, env := call(t, r, http.MethodPost, "/api/v1/navigation/enter", map[string]int{"z": 0}, issue(t)); code != http.StatusOK {
		t.Fatalf("with token = %d %+v", code, env)
	}
}

func TestWorkCellFlow(t *testing.T) {
	r, report := newTestRouter(t)
	token := issue(t)

	code, env := call(t, r, http.MethodPost, "/api/v1/navigation/enter", map[string]int{"z": 2, "x": 12, "y": 17}, token)
	if code != http.StatusOK {
		t.Fatalf("enter = %d %+v", code, env)
	}
	if mode := sessionMode(t, env); mode != "work" {
		t.Fatalf("mode after enter = %q", mode)
	}

	code, env = call(t, r, http.MethodGet, "/api/v1/cells", nil, "")
	if code != http.StatusOK {
		t.Fatalf("list cells = %d %+v", code, env)
	}
	var listed struct {
		Count int `json:"count"`
	}
	if err := json.Unmarshal(env.Data, &listed); err != nil || listed.Count != 1 {
		t.Fatalf("cached cells = %s, %v", env.Data, err)
	}

	code, env = call(t, r, http.MethodPost, "/api/v1/cells/current/done", nil, token)
	if code != http.StatusOK {
		t.Fatalf("done = %d %+v", code, env)
	}
	if mode := sessionMode(t, env); mode != "overview" {
		t.Fatalf("mode after done = %q, want overview of the parent", mode)
	}
	if n := report.putCount(); n != 1 {
		t.Fatalf("server saw %d cell saves, want 1", n)
	}
}

func TestErrorStatuses(t *testing.T) {
	r, _ := newTestRouter(t)
	token := issue(t)

	tests := []struct {
		name   string
		method string
		target string
		body   any
		want   int
	}{
		{"done outside work mode", http.MethodPost, "/api/v1/cells/current/done", nil, http.StatusConflict},
		{"malformed cell id", http.MethodGet, "/api/v1/cells/9_9", nil, http.StatusBadRequest},
		{"unknown editing state", http.MethodPut, "/api/v1/editor/state", map[string]string{"state": "fly"}, http.StatusBadRequest},
		{"tile not loaded", http.MethodGet, "/api/v1/tiles/2/1/1.png", nil, http.StatusNotFound},
		{"sub-cell out of range", http.MethodPost, "/api/v1/navigation/sub", map[string]int{"i": 7, "j": 0}, http.StatusBadRequest},
		{"unknown polygon", http.MethodDelete, "/api/v1/polygons/nope", nil, http.StatusNotFound},
		{"bad compare view", http.MethodPut, "/api/v1/cells/current/compare", map[string]string{"view": "three"}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if code, env := call(t, r, tt.method, tt.target, tt.body, token); code != tt.want {
				t.Fatalf("status = %d, want %d (%+v)", code, tt.want, env)
			}
		})
	}
}

func TestGridLookups(t *testing.T) {
	r, _ := newTestRouter(t)
	token := issue(t)

	w := grid.DefaultWorldBounds
	target := fmt.Sprintf("/api/v1/grid/visible?z=1&south=%f&west=%f&north=%f&east=%f", w.SW.Lat, w.SW.Lon, w.NE.Lat, w.NE.Lon)
	code, env := call(t, r, http.MethodGet, target, nil, token)
	if code != http.StatusOK {
		t.Fatalf("visible: %d %+v", code, env)
	}
	var visible struct {
		Count int `json:"count"`
		Data  []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.Unmarshal(env.Data, &visible); err != nil {
		t.Fatalf("visible body: %v", err)
	}
	if visible.Count != 25 || len(visible.Data) != 25 || visible.Data[0].ID != "1_0_0" {
		t.Fatalf("visible = %+v, want the 25 level-1 cells", visible)
	}

	center := grid.NewIndex(grid.DefaultWorldBounds, spatial.WebMercator{Zoom: 12}).CellBounds(12, 17, 2).Center()
	code, env = call(t, r, http.MethodGet, fmt.Sprintf("/api/v1/grid/at?lat=%f&lng=%f&z=2", center.Lat, center.Lon), nil, token)
	if code != http.StatusOK {
		t.Fatalf("at: %d %+v", code, env)
	}
	var at struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(env.Data, &at); err != nil || at.ID != "2_12_17" {
		t.Fatalf("at = %+v (%v), want 2_12_17", at, err)
	}

	if code, _ := call(t, r, http.MethodGet, "/api/v1/grid/at?lat=40&lng=10&z=2", nil, token); code != http.StatusNotFound {
		t.Fatalf("point outside the grid: %d, want 404", code)
	}
	if code, _ := call(t, r, http.MethodGet, "/api/v1/grid/visible?z=1&south=-1", nil, token); code != http.StatusBadRequest {
		t.Fatalf("incomplete viewport: %d, want 400", code)
	}
}
