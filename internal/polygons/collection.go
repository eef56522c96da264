package polygons

import (
	"sort"
	"sync"

	"github.com/dhconnelly/rtreego"

	"github.com/jengzang/forestwatch-backend-go/internal/event"
	"github.com/jengzang/forestwatch-backend-go/internal/models"
	"github.com/jengzang/forestwatch-backend-go/internal/spatial"
)

// Collection events
const (
	EventAdd            = "add"
	EventRemove         = "remove"
	EventUpdate         = "update"
	EventClickOnPolygon = "click_on_polygon"
	EventMouseOver      = "mouseover"
	EventMouseOut       = "mouseout"
)

// Event is published on the collection bus. Polygon is a copy.
type Event struct {
	Polygon *models.Polygon
	Point   spatial.Point
}

// indexed wraps a polygon for the R-tree
type indexed struct {
	poly *models.Polygon
	seq  int
}

// Bounds implements rtreego.Spatial
func (it *indexed) Bounds() rtreego.Rect {
	return rect(bbox(it.poly))
}

func bbox(p *models.Polygon) spatial.Bounds {
	var pts []spatial.Point
	if len(p.Paths) > 0 {
		pts = toPoints(p.Paths[0])
	}
	return spatial.BoundingBox(pts)
}

func rect(b spatial.Bounds) rtreego.Rect {
	// rtreego needs non-zero lengths
	const epsilon = 1e-9
	lon := b.NE.Lon - b.SW.Lon
	lat := b.NE.Lat - b.SW.Lat
	if lon < epsilon {
		lon = epsilon
	}
	if lat < epsilon {
		lat = epsilon
	}
	r, _ := rtreego.NewRect(rtreego.Point{b.SW.Lon, b.SW.Lat}, []float64{lon, lat})
	return r
}

// Collection holds the polygons of the current work cell, indexed for
// hit testing
type Collection struct {
	mu     sync.RWMutex
	byID   map[string]*indexed
	tree   *rtreego.Rtree
	seq    int
	hover  string
	events *event.Bus[Event]
}

// NewCollection creates an empty collection
func NewCollection() *Collection {
	return &Collection{
		byID:   make(map[string]*indexed),
		tree:   rtreego.NewTree(2, 25, 50),
		events: event.NewBus[Event](),
	}
}

// Events returns the collection bus
func (c *Collection) Events() *event.Bus[Event] {
	return c.events
}

// Add inserts p, replacing any polygon with the same id
func (c *Collection) Add(p *models.Polygon) {
	c.mu.Lock()
	if old, ok := c.byID[p.ID]; ok {
		c.tree.Delete(old)
	}
	c.seq++
	it := &indexed{poly: p.Clone(), seq: c.seq}
	c.byID[p.ID] = it
	c.tree.Insert(it)
	c.mu.Unlock()

	c.events.Emit(EventAdd, Event{Polygon: p.Clone()})
}

// Update replaces the stored copy of an existing polygon, keeping its
// stacking position. It reports false when the id is unknown.
func (c *Collection) Update(p *models.Polygon) bool {
	c.mu.Lock()
	old, ok := c.byID[p.ID]
	if !ok {
		c.mu.Unlock()
		return false
	}
	c.tree.Delete(old)
	it := &indexed{poly: p.Clone(), seq: old.seq}
	c.byID[p.ID] = it
	c.tree.Insert(it)
	c.mu.Unlock()

	c.events.Emit(EventUpdate, Event{Polygon: p.Clone()})
	return true
}

// Mutate applies fn to the stored polygon; geometry changes are re-indexed
func (c *Collection) Mutate(id string, fn func(p *models.Polygon)) (*models.Polygon, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	it, ok := c.byID[id]
	if !ok {
		return nil, false
	}
	c.tree.Delete(it)
	fn(it.poly)
	c.tree.Insert(it)
	return it.poly.Clone(), true
}

// Remove deletes the polygon with id
func (c *Collection) Remove(id string) (*models.Polygon, bool) {
	c.mu.Lock()
	it, ok := c.byID[id]
	if !ok {
		c.mu.Unlock()
		return nil, false
	}
	c.tree.Delete(it)
	delete(c.byID, id)
	if c.hover == id {
		c.hover = ""
	}
	c.mu.Unlock()

	p := it.poly.Clone()
	c.events.Emit(EventRemove, Event{Polygon: p})
	return p, true
}

// Get returns a copy of the polygon with id
func (c *Collection) Get(id string) (*models.Polygon, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	it, ok := c.byID[id]
	if !ok {
		return nil, false
	}
	return it.poly.Clone(), true
}

// Len returns the number of polygons
func (c *Collection) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.byID)
}

// List returns copies of the polygons matching filter in insertion order
func (c *Collection) List(filter models.PolygonFilter) []*models.Polygon {
	c.mu.RLock()
	items := make([]*indexed, 0, len(c.byID))
	for _, it := range c.byID {
		if !matches(it.poly, filter) {
			continue
		}
		items = append(items, it)
	}
	c.mu.RUnlock()

	sort.Slice(items, func(i, j int) bool { return items[i].seq < items[j].seq })
	out := make([]*models.Polygon, len(items))
	for i, it := range items {
		out[i] = it.poly.Clone()
	}
	return out
}

func matches(p *models.Polygon, f models.PolygonFilter) bool {
	if f.CellID != "" && p.CellID != f.CellID {
		return false
	}
	if f.Type != nil && int(p.Type) != *f.Type {
		return false
	}
	if f.SyncState != "" && p.SyncState != f.SyncState {
		return false
	}
	return true
}

// Clear removes every polygon without publishing events
func (c *Collection) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byID = make(map[string]*indexed)
	c.tree = rtreego.NewTree(2, 25, 50)
	c.hover = ""
}

// HitTest returns the topmost polygon containing pt
func (c *Collection) HitTest(pt spatial.Point) (*models.Polygon, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	it := c.hitLocked(pt)
	if it == nil {
		return nil, false
	}
	return it.poly.Clone(), true
}

func (c *Collection) hitLocked(pt spatial.Point) *indexed {
	q := rect(spatial.Bounds{SW: pt, NE: pt})
	var best *indexed
	for _, s := range c.tree.SearchIntersect(q) {
		it := s.(*indexed)
		if best != nil && it.seq < best.seq {
			continue
		}
		if spatial.PointInPaths(pt, pathsOf(it.poly)) {
			best = it
		}
	}
	return best
}

// Click publishes click_on_polygon for the polygon under pt
func (c *Collection) Click(pt spatial.Point) (*models.Polygon, bool) {
	p, ok := c.HitTest(pt)
	if !ok {
		return nil, false
	}
	c.events.Emit(EventClickOnPolygon, Event{Polygon: p, Point: pt})
	return p, true
}

// Hover tracks the pointer and publishes mouseout/mouseover when the polygon
// under it changes
func (c *Collection) Hover(pt spatial.Point) {
	c.mu.Lock()
	var prev, cur *models.Polygon
	if it, ok := c.byID[c.hover]; ok {
		prev = it.poly.Clone()
	}
	hit := c.hitLocked(pt)
	id := ""
	if hit != nil {
		id = hit.poly.ID
		cur = hit.poly.Clone()
	}
	changed := id != c.hover
	c.hover = id
	c.mu.Unlock()

	if !changed {
		return
	}
	if prev != nil {
		c.events.Emit(EventMouseOut, Event{Polygon: prev, Point: pt})
	}
	if cur != nil {
		c.events.Emit(EventMouseOver, Event{Polygon: cur, Point: pt})
	}
}

func toPoints(ring []models.LatLng) []spatial.Point {
	out := make([]spatial.Point, len(ring))
	for i, p := range ring {
		out[i] = spatial.Point{Lat: p.Lat, Lon: p.Lng}
	}
	return out
}

func pathsOf(p *models.Polygon) [][]spatial.Point {
	out := make([][]spatial.Point, len(p.Paths))
	for i, ring := range p.Paths {
		out[i] = toPoints(ring)
	}
	return out
}
