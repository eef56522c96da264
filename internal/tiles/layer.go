package tiles

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
	"golang.org/x/image/draw"
	"golang.org/x/sync/errgroup"

	"github.com/jengzang/forestwatch-backend-go/internal/classify"
	"github.com/jengzang/forestwatch-backend-go/internal/models"
	"github.com/jengzang/forestwatch-backend-go/internal/spatial"
)

var (
	// ErrNotReady is returned before the layer has been authorized
	ErrNotReady = errors.New("tile layer not authorized")
	// ErrSuperseded is returned when the layer was re-authorized while a
	// tile was loading; the result is discarded
	ErrSuperseded = errors.New("tile result superseded")
)

const (
	DefaultWatchdog  = 20 * time.Second
	DefaultCacheSize = 512
)

// Options configures a Layer
type Options struct {
	Watchdog  time.Duration
	CacheSize int
}

type entry struct {
	coord    Coord
	bounds   image.Rectangle
	raw      []byte
	masks    classify.Masks
	rendered *image.NRGBA
}

// Layer is the classification overlay. It downloads raw tiles, keeps a
// bounded cache of the raw pixels and renders them with the current
// thresholds and visibility.
type Layer struct {
	fetcher  *Fetcher
	strategy classify.Strategy
	watchdog time.Duration

	mu         sync.RWMutex
	auth       *models.MapAuth
	aux        map[string]models.MapAuth
	epoch      uint64
	thresholds classify.Thresholds
	visibility classify.LayerVisibility
	cache      *lru.Cache[string, *entry]
	loading    int
}

// NewLayer creates an unauthorized layer for strategy
func NewLayer(fetcher *Fetcher, strategy classify.Strategy, opts Options) (*Layer, error) {
	if opts.Watchdog <= 0 {
		opts.Watchdog = DefaultWatchdog
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = DefaultCacheSize
	}
	cache, err := lru.New[string, *entry](opts.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("create tile cache: %w", err)
	}
	return &Layer{
		fetcher:    fetcher,
		strategy:   strategy,
		watchdog:   opts.Watchdog,
		thresholds: classify.DefaultThresholds(strategy.Operation()),
		visibility: classify.DefaultVisibility(),
		cache:      cache,
	}, nil
}

// Strategy returns the classification strategy of the layer
func (l *Layer) Strategy() classify.Strategy { return l.strategy }

// Authorize sets the map credentials. aux must hold one entry per raster the
// strategy requires. Any previous authorization is superseded and the raw
// cache is purged.
func (l *Layer) Authorize(primary models.MapAuth, aux map[string]models.MapAuth) error {
	if primary.MapID == "" {
		return fmt.Errorf("authorize: empty mapid")
	}
	for _, name := range l.strategy.Rasters() {
		if a, ok := aux[name]; !ok || a.MapID == "" {
			return fmt.Errorf("authorize: missing %s raster", name)
		}
	}

	copied := make(map[string]models.MapAuth, len(aux))
	for k, v := range aux {
		copied[k] = v
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.auth = &primary
	l.aux = copied
	l.epoch++
	l.cache.Purge()
	log.Printf("[Tiles] authorized map %s (epoch %d)", primary.MapID, l.epoch)
	return nil
}

// Ready reports whether the layer has been authorized
func (l *Layer) Ready() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.auth != nil
}

// Loading returns the number of tiles whose loading indicator is still shown
func (l *Layer) Loading() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.loading
}

// Thresholds returns the current thresholds
func (l *Layer) Thresholds() classify.Thresholds {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.thresholds
}

// Visibility returns the current class visibility
func (l *Layer) Visibility() classify.LayerVisibility {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.visibility
}

// Setup loads, caches and renders one tile
func (l *Layer) Setup(ctx context.Context, c Coord) (*image.NRGBA, error) {
	l.mu.Lock()
	if l.auth == nil {
		l.mu.Unlock()
		return nil, ErrNotReady
	}
	epoch := l.epoch
	primaryURL := l.fetcher.URL(*l.auth, c)
	auxURLs := make(map[string]string, len(l.strategy.Rasters()))
	for _, name := range l.strategy.Rasters() {
		auxURLs[name] = l.fetcher.URL(l.aux[name], c)
	}
	l.loading++
	l.mu.Unlock()

	var once sync.Once
	release := func() {
		once.Do(func() {
			l.mu.Lock()
			l.loading--
			l.mu.Unlock()
		})
	}
	defer release()
	watchdog := time.AfterFunc(l.watchdog, func() {
		log.Printf("[Tiles] tile %s still loading after %s", c.Key(), l.watchdog)
		release()
	})
	defer watchdog.Stop()

	primary, masks, err := l.download(ctx, primaryURL, auxURLs)
	if err != nil {
		log.Printf("[Tiles] tile %s failed: %v", c.Key(), err)
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.epoch != epoch {
		return nil, ErrSuperseded
	}
	e := &entry{coord: c, bounds: primary.Bounds(), raw: primary.Pix, masks: masks}
	rendered, err := l.render(e)
	if err != nil {
		return nil, err
	}
	e.rendered = rendered
	l.cache.Add(c.Key(), e)
	return rendered, nil
}

// download fetches the primary raster and, concurrently, any auxiliary ones
func (l *Layer) download(ctx context.Context, primaryURL string, auxURLs map[string]string) (*image.NRGBA, classify.Masks, error) {
	var (
		primary *image.NRGBA
		mu      sync.Mutex
		masks   = classify.Masks{}
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		img, err := l.fetcher.Fetch(gctx, primaryURL)
		if err != nil {
			return err
		}
		primary = img
		return nil
	})
	for name, u := range auxURLs {
		g.Go(func() error {
			img, err := l.fetcher.Fetch(gctx, u)
			if err != nil {
				return fmt.Errorf("%s raster: %w", name, err)
			}
			mu.Lock()
			masks[name] = img.Pix
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	for name, m := range masks {
		if len(m) != len(primary.Pix) {
			return nil, nil, fmt.Errorf("%s raster size differs from primary tile", name)
		}
	}
	return primary, masks, nil
}

// render classifies a copy of the raw pixels; the caller holds l.mu
func (l *Layer) render(e *entry) (*image.NRGBA, error) {
	out := image.NewNRGBA(e.bounds)
	copy(out.Pix, e.raw)
	if err := l.strategy.Classify(out.Pix, l.thresholds, l.visibility, e.masks); err != nil {
		return nil, fmt.Errorf("classify tile %s: %w", e.coord.Key(), err)
	}
	return out, nil
}

// FilterTiles stores new thresholds and re-renders every cached tile from its
// raw pixels without fetching
func (l *Layer) FilterTiles(th classify.Thresholds) error {
	if err := th.Validate(); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.thresholds = th
	return l.rerender()
}

// SetVisibility stores new class visibility and re-renders cached tiles
func (l *Layer) SetVisibility(vis classify.LayerVisibility) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.visibility = vis
	return l.rerender()
}

func (l *Layer) rerender() error {
	for _, key := range l.cache.Keys() {
		e, ok := l.cache.Peek(key)
		if !ok {
			continue
		}
		rendered, err := l.render(e)
		if err != nil {
			return err
		}
		e.rendered = rendered
	}
	return nil
}

// Composed returns the rendered canvas of a cached tile
func (l *Layer) Composed(c Coord) (*image.NRGBA, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	e, ok := l.cache.Peek(c.Key())
	if !ok {
		return nil, false
	}
	return e.rendered, true
}

// Mosaic stitches the rendered tiles around center (radius tiles in every
// direction) into one canvas. Missing tiles stay transparent. The returned
// origin is the world-pixel position of the canvas top-left corner at the
// tile zoom.
func (l *Layer) Mosaic(center Coord, radius int) (*image.NRGBA, spatial.Pixel) {
	n := 2*radius + 1
	canvas := image.NewNRGBA(image.Rect(0, 0, n*spatial.TileSize, n*spatial.TileSize))
	minX, minY := center.X-radius, center.Y-radius

	l.mu.RLock()
	defer l.mu.RUnlock()
	for dx := 0; dx < n; dx++ {
		for dy := 0; dy < n; dy++ {
			e, ok := l.cache.Peek(Coord{X: minX + dx, Y: minY + dy, Z: center.Z}.Key())
			if !ok {
				continue
			}
			at := image.Pt(dx*spatial.TileSize, dy*spatial.TileSize)
			draw.Draw(canvas, e.rendered.Bounds().Add(at), e.rendered, image.Point{}, draw.Src)
		}
	}
	origin := spatial.Pixel{X: float64(minX * spatial.TileSize), Y: float64(minY * spatial.TileSize)}
	return canvas, origin
}

// TilesFor lists the tile coordinates covering bounds at zoom
func TilesFor(bounds spatial.Bounds, zoom int) []Coord {
	z := maptile.Zoom(zoom)
	sw := maptile.At(orb.Point{bounds.SW.Lon, bounds.SW.Lat}, z)
	ne := maptile.At(orb.Point{bounds.NE.Lon, bounds.NE.Lat}, z)

	minX, maxX := sw.X, ne.X
	if minX > maxX {
		minX, maxX = maxX, minX
	}
	minY, maxY := ne.Y, sw.Y
	if minY > maxY {
		minY, maxY = maxY, minY
	}

	var out []Coord
	for x := minX; x <= maxX; x++ {
		for y := minY; y <= maxY; y++ {
			out = append(out, Coord{X: int(x), Y: int(y), Z: zoom})
		}
	}
	return out
}

// TileAt returns the tile containing p at zoom together with the pixel
// offset of p inside it
func TileAt(p spatial.Point, zoom int) (Coord, image.Point) {
	px := spatial.WebMercator{Zoom: zoom}.LatLngToPixel(p)
	tx, ty := int(px.X)/spatial.TileSize, int(px.Y)/spatial.TileSize
	return Coord{X: tx, Y: ty, Z: zoom}, image.Pt(int(px.X)-tx*spatial.TileSize, int(px.Y)-ty*spatial.TileSize)
}

// TilePoint returns the geographic position of a pixel offset inside tile c
func TilePoint(c Coord, offset image.Point) spatial.Point {
	px := spatial.Pixel{
		X: float64(c.X*spatial.TileSize + offset.X),
		Y: float64(c.Y*spatial.TileSize + offset.Y),
	}
	return spatial.WebMercator{Zoom: c.Z}.PixelToLatLng(px)
}
