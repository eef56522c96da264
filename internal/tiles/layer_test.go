package tiles

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jengzang/forestwatch-backend-go/internal/classify"
	"github.com/jengzang/forestwatch-backend-go/internal/models"
	"github.com/jengzang/forestwatch-backend-go/internal/spatial"
	"github.com/jengzang/forestwatch-backend-go/internal/upstream"
)

func encodeTile(t *testing.T, value uint8) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, spatial.TileSize, spatial.TileSize))
	for y := 0; y < spatial.TileSize; y++ {
		for x := 0; x < spatial.TileSize; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: value, G: value, B: value, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

// tileServer serves a uniform tile per mapid; the first path segment after
// /map/ selects the value
type tileServer struct {
	*httptest.Server
	hits  atomic.Int32
	gate  chan struct{}
	tiles map[string][]byte
}

func newTileServer(t *testing.T, values map[string]uint8) *tileServer {
	t.Helper()
	ts := &tileServer{tiles: map[string][]byte{}}
	for id, v := range values {
		ts.tiles[id] = encodeTile(t, v)
	}
	ts.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ts.hits.Add(1)
		if ts.gate != nil {
			<-ts.gate
		}
		parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/map/"), "/")
		body, ok := ts.tiles[parts[0]]
		if !ok {
			http.Error(w, "no such map", http.StatusNotFound)
			return
		}
		if r.URL.Query().Get("token") != "tok" {
			http.Error(w, "bad token", http.StatusForbidden)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Write(body)
	}))
	t.Cleanup(ts.Close)
	return ts
}

func newTestLayer(t *testing.T, srv *tileServer, op models.Operation, watchdog time.Duration) *Layer {
	t.Helper()
	strategy, err := classify.GetStrategy(op)
	if err != nil {
		t.Fatal(err)
	}
	layer, err := NewLayer(NewFetcher(srv.Client(), srv.URL, false), strategy, Options{Watchdog: watchdog, CacheSize: 8})
	if err != nil {
		t.Fatal(err)
	}
	return layer
}

func rgbAt(img *image.NRGBA, x, y int) classify.Color {
	c := img.NRGBAAt(x, y)
	return classify.Color{R: c.R, G: c.G, B: c.B}
}

func TestSetupBeforeAuthorize(t *testing.T) {
	srv := newTileServer(t, map[string]uint8{"m": 100})
	layer := newTestLayer(t, srv, models.OperationBaseline, time.Second)
	if _, err := layer.Setup(context.Background(), Coord{X: 1, Y: 1, Z: 2}); !errors.Is(err, ErrNotReady) {
		t.Fatalf("Setup before Authorize = %v, want ErrNotReady", err)
	}
}

func TestSetupClassifiesAndCaches(t *testing.T) {
	srv := newTileServer(t, map[string]uint8{"m": 100})
	layer := newTestLayer(t, srv, models.OperationBaseline, time.Second)
	if err := layer.Authorize(models.MapAuth{MapID: "m", Token: "tok"}, nil); err != nil {
		t.Fatal(err)
	}

	c := Coord{X: 3, Y: 4, Z: 5}
	img, err := layer.Setup(context.Background(), c)
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	if got := rgbAt(img, 10, 10); got != classify.BaselineTable.Deforestation {
		t.Fatalf("pixel = %v, want deforestation color", got)
	}
	if layer.Loading() != 0 {
		t.Fatalf("Loading = %d after setup", layer.Loading())
	}
	if _, ok := layer.Composed(c); !ok {
		t.Fatal("tile not cached")
	}

	// 100 is above a low threshold of 90 and below a high of 150
	if err := layer.FilterTiles(classify.Thresholds{Low: 90, High: 150}); err != nil {
		t.Fatal(err)
	}
	img, _ = layer.Composed(c)
	if got := rgbAt(img, 10, 10); got != classify.BaselineTable.Degradation {
		t.Fatalf("pixel after filter = %v, want degradation color", got)
	}
	if hits := srv.hits.Load(); hits != 1 {
		t.Fatalf("server hits = %d, FilterTiles must not fetch", hits)
	}
}

func TestVisibilityHidesClass(t *testing.T) {
	srv := newTileServer(t, map[string]uint8{"m": 10})
	layer := newTestLayer(t, srv, models.OperationSAD, time.Second)
	layer.Authorize(models.MapAuth{MapID: "m", Token: "tok"}, nil)
	c := Coord{X: 0, Y: 0, Z: 1}
	if _, err := layer.Setup(context.Background(), c); err != nil {
		t.Fatal(err)
	}
	vis := classify.DefaultVisibility()
	vis.Set("deforestation", false)
	if err := layer.SetVisibility(vis); err != nil {
		t.Fatal(err)
	}
	img, _ := layer.Composed(c)
	if a := img.NRGBAAt(0, 0).A; a != 0 {
		t.Fatalf("alpha = %d, want 0 for hidden class", a)
	}
}

func TestWatchdogReleasesLoading(t *testing.T) {
	srv := newTileServer(t, map[string]uint8{"m": 100})
	srv.gate = make(chan struct{})
	layer := newTestLayer(t, srv, models.OperationBaseline, 20*time.Millisecond)
	layer.Authorize(models.MapAuth{MapID: "m", Token: "tok"}, nil)

	done := make(chan error, 1)
	go func() {
		_, err := layer.Setup(context.Background(), Coord{X: 0, Y: 0, Z: 1})
		done <- err
	}()

	deadline := time.Now().Add(2 * time.Second)
	for layer.Loading() != 0 || srv.hits.Load() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("watchdog did not release the loading indicator")
		}
		time.Sleep(5 * time.Millisecond)
	}

	// the request itself is still running and completes normally
	close(srv.gate)
	if err := <-done; err != nil {
		t.Fatalf("Setup: %v", err)
	}
	if layer.Loading() != 0 {
		t.Fatalf("Loading = %d, released twice or not at all", layer.Loading())
	}
}

func TestReauthorizeDiscardsStaleTile(t *testing.T) {
	srv := newTileServer(t, map[string]uint8{"a": 100, "b": 100})
	srv.gate = make(chan struct{})
	layer := newTestLayer(t, srv, models.OperationBaseline, time.Second)
	layer.Authorize(models.MapAuth{MapID: "a", Token: "tok"}, nil)

	c := Coord{X: 0, Y: 0, Z: 1}
	done := make(chan error, 1)
	go func() {
		_, err := layer.Setup(context.Background(), c)
		done <- err
	}()
	for srv.hits.Load() == 0 {
		time.Sleep(time.Millisecond)
	}
	if err := layer.Authorize(models.MapAuth{MapID: "b", Token: "tok"}, nil); err != nil {
		t.Fatal(err)
	}
	close(srv.gate)

	if err := <-done; !errors.Is(err, ErrSuperseded) {
		t.Fatalf("Setup = %v, want ErrSuperseded", err)
	}
	if _, ok := layer.Composed(c); ok {
		t.Fatal("stale tile was cached")
	}
}

func TestFetchErrors(t *testing.T) {
	srv := newTileServer(t, map[string]uint8{"m": 100})
	srv.tiles["broken"] = []byte("not a png")
	layer := newTestLayer(t, srv, models.OperationBaseline, time.Second)

	tests := []struct {
		mapID  string
		kind   upstream.Kind
		status int
	}{
		{"missing", upstream.KindHTTP, http.StatusNotFound},
		{"broken", upstream.KindDecode, 0},
	}
	for _, tt := range tests {
		layer.Authorize(models.MapAuth{MapID: tt.mapID, Token: "tok"}, nil)
		_, err := layer.Setup(context.Background(), Coord{X: 0, Y: 0, Z: 1})
		var fe *upstream.FetchError
		if !errors.As(err, &fe) {
			t.Fatalf("%s: error %v is not a FetchError", tt.mapID, err)
		}
		if fe.Kind != tt.kind || fe.Status != tt.status {
			t.Fatalf("%s: got kind=%s status=%d, want %s/%d", tt.mapID, fe.Kind, fe.Status, tt.kind, tt.status)
		}
		if layer.Loading() != 0 {
			t.Fatalf("%s: loading indicator not released", tt.mapID)
		}
	}
}

func TestTimeSeriesFetchesAuxRasters(t *testing.T) {
	values := map[string]uint8{"primary": 190}
	aux := map[string]models.MapAuth{}
	for _, name := range classify.NewTimeSeries().Rasters() {
		values[name] = 0
		aux[name] = models.MapAuth{MapID: name, Token: "tok"}
	}
	values[classify.RasterCloudRegion] = 1
	values[classify.RasterCloud] = 50
	srv := newTileServer(t, values)
	layer := newTestLayer(t, srv, models.OperationTimeSeries, time.Second)

	if err := layer.Authorize(models.MapAuth{MapID: "primary", Token: "tok"}, nil); err == nil {
		t.Fatal("expected error when aux rasters are missing")
	}
	if err := layer.Authorize(models.MapAuth{MapID: "primary", Token: "tok"}, aux); err != nil {
		t.Fatal(err)
	}
	img, err := layer.Setup(context.Background(), Coord{X: 0, Y: 0, Z: 1})
	if err != nil {
		t.Fatal(err)
	}
	if got := rgbAt(img, 0, 0); got != classify.TimeSeriesTable.Cloud {
		t.Fatalf("pixel = %v, want cloud color", got)
	}
	if hits := srv.hits.Load(); hits != 7 {
		t.Fatalf("server hits = %d, want primary + 6 aux", hits)
	}
}

func TestTileURL(t *testing.T) {
	auth := models.MapAuth{MapID: "abc", Token: "t0"}
	c := Coord{X: 1, Y: 2, Z: 3}
	if got := NewFetcher(nil, "https://ee.example/", false).URL(auth, c); got != "https://ee.example/map/abc/3/1/2?token=t0" {
		t.Fatalf("URL = %s", got)
	}
	if got := NewFetcher(nil, "http://localhost:8080", true).URL(auth, c); got != "http://localhost:8080/ee/tiles/abc/3/1/2?token=t0" {
		t.Fatalf("proxy URL = %s", got)
	}
}

func TestTilesFor(t *testing.T) {
	b := spatial.Bounds{
		SW: spatial.Point{Lat: -10, Lon: -60},
		NE: spatial.Point{Lat: -9, Lon: -59},
	}
	got := TilesFor(b, 2)
	if len(got) != 1 || got[0] != (Coord{X: 1, Y: 2, Z: 2}) {
		t.Fatalf("TilesFor = %v", got)
	}
	if n := len(TilesFor(b, 8)); n < 2 {
		t.Fatalf("TilesFor at zoom 8 = %d tiles, want several", n)
	}
}

func TestTileAt(t *testing.T) {
	c, off := TileAt(spatial.Point{Lat: 0, Lon: 0}, 1)
	if c != (Coord{X: 1, Y: 1, Z: 1}) || off != image.Pt(0, 0) {
		t.Fatalf("TileAt = %v %v", c, off)
	}
}

func TestTilePointInvertsTileAt(t *testing.T) {
	want := spatial.Point{Lat: -9.5, Lon: -61.25}
	c, off := TileAt(want, 12)
	got := TilePoint(c, off)
	// one pixel at zoom 12 is about 0.0003 degrees
	if math.Abs(got.Lat-want.Lat) > 0.001 || math.Abs(got.Lon-want.Lon) > 0.001 {
		t.Fatalf("TilePoint = %+v, want %+v", got, want)
	}
}
