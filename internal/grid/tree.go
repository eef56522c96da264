package grid

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/jengzang/forestwatch-backend-go/internal/models"
)

// CellSource fetches and saves cell records on the server
type CellSource interface {
	Cell(ctx context.Context, reportID string, op models.Operation, id string) (*models.Cell, error)
	Children(ctx context.Context, reportID string, op models.Operation, id string) ([]models.Cell, error)
	SaveCell(ctx context.Context, cell *models.Cell) error
}

// CellStore keeps a local copy of fetched records
type CellStore interface {
	UpsertCell(cell *models.Cell) error
}

// Tree caches the cell records of one report and operation
type Tree struct {
	reportID string
	op       models.Operation
	source   CellSource
	store    CellStore

	mu    sync.RWMutex
	cells map[Address]*models.Cell
}

// NewTree creates a cell cache. store may be nil.
func NewTree(reportID string, op models.Operation, source CellSource, store CellStore) *Tree {
	return &Tree{
		reportID: reportID,
		op:       op,
		source:   source,
		store:    store,
		cells:    make(map[Address]*models.Cell),
	}
}

// ReportID returns the report the tree belongs to
func (t *Tree) ReportID() string { return t.reportID }

// Operation returns the operation the tree belongs to
func (t *Tree) Operation() models.Operation { return t.op }

// URL returns the server path of a cell record
func (t *Tree) URL(a Address) string {
	return fmt.Sprintf("/api/v0/report/%s/operation/%s/cell/%s", t.reportID, t.op, a.ID())
}

// ChildrenURL returns the server path of a cell's children collection
func (t *Tree) ChildrenURL(a Address) string {
	return t.URL(a) + "/children"
}

// Get returns a copy of the cached record, creating a placeholder if the
// address has not been seen yet
func (t *Tree) Get(a Address) models.Cell {
	t.mu.Lock()
	defer t.mu.Unlock()
	return *t.getLocked(a)
}

func (t *Tree) getLocked(a Address) *models.Cell {
	if c, ok := t.cells[a]; ok {
		return c
	}
	c := models.NewPlaceholderCell(t.reportID, t.op, a.Z, a.X, a.Y)
	t.cells[a] = c
	return c
}

// Lookup returns a copy of the cached record if present
func (t *Tree) Lookup(a Address) (models.Cell, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	c, ok := t.cells[a]
	if !ok {
		return models.Cell{}, false
	}
	return *c, true
}

// Fetch returns the record for a, loading it from the server unless already
// loaded
func (t *Tree) Fetch(ctx context.Context, a Address) (*models.Cell, error) {
	t.mu.RLock()
	c, ok := t.cells[a]
	var snapshot models.Cell
	if ok {
		snapshot = *c
	}
	t.mu.RUnlock()
	if ok && snapshot.Loaded {
		return &snapshot, nil
	}
	return t.Refresh(ctx, a)
}

// Refresh always reloads the record from the server
func (t *Tree) Refresh(ctx context.Context, a Address) (*models.Cell, error) {
	if !a.Valid() {
		return nil, fmt.Errorf("invalid cell address %s", a.ID())
	}

	fetched, err := t.source.Cell(ctx, t.reportID, t.op, a.ID())
	if err != nil {
		return nil, fmt.Errorf("failed to fetch cell %s: %w", a.ID(), err)
	}

	t.mu.Lock()
	snapshot := *t.merge(a, fetched)
	t.mu.Unlock()

	t.persist(&snapshot)
	return &snapshot, nil
}

// FetchChildren loads the 25 sub-cells of a and caches each of them
func (t *Tree) FetchChildren(ctx context.Context, a Address) ([]*models.Cell, error) {
	if a.Z >= WorkingZoom {
		return nil, fmt.Errorf("cell %s has no children", a.ID())
	}

	fetched, err := t.source.Children(ctx, t.reportID, t.op, a.ID())
	if err != nil {
		return nil, fmt.Errorf("failed to fetch children of %s: %w", a.ID(), err)
	}

	byAddr := make(map[Address]*models.Cell, len(fetched))
	for i := range fetched {
		f := fetched[i]
		byAddr[Address{Z: f.Z, X: f.X, Y: f.Y}] = &f
	}

	t.mu.Lock()
	out := make([]*models.Cell, 0, Splits*Splits)
	for _, ca := range a.Children() {
		var c models.Cell
		if f, ok := byAddr[ca]; ok {
			c = *t.merge(ca, f)
		} else {
			c = *t.getLocked(ca)
		}
		out = append(out, &c)
	}
	t.mu.Unlock()

	for _, c := range out {
		if c.Loaded {
			t.persist(c)
		}
	}
	return out, nil
}

// merge stores a fetched record in place so existing pointers see the update
func (t *Tree) merge(a Address, fetched *models.Cell) *models.Cell {
	c := t.getLocked(a)
	*c = *fetched
	c.Z, c.X, c.Y = a.Z, a.X, a.Y
	if c.ReportID == "" {
		c.ReportID = t.reportID
	}
	if c.Operation == "" {
		c.Operation = t.op
	}
	if c.AddedBy == "" {
		c.AddedBy = models.NobodySentinel
	}
	c.FillLayerDefaults()
	if models.BlockedCells[c.ID()] {
		c.Blocked = true
	}
	c.Loaded = true
	c.UpdatedAt = time.Now()
	return c
}

// Update applies fn to a copy of the record, saves it on the server and only
// then writes it back to the cache
func (t *Tree) Update(ctx context.Context, a Address, fn func(c *models.Cell)) (*models.Cell, error) {
	t.mu.Lock()
	updated := *t.getLocked(a)
	t.mu.Unlock()
	fn(&updated)

	if err := t.source.SaveCell(ctx, &updated); err != nil {
		return nil, fmt.Errorf("failed to save cell %s: %w", a.ID(), err)
	}

	t.mu.Lock()
	*t.getLocked(a) = updated
	t.mu.Unlock()
	t.persist(&updated)
	return &updated, nil
}

func (t *Tree) persist(c *models.Cell) {
	if t.store == nil {
		return
	}
	if err := t.store.UpsertCell(c); err != nil {
		log.Printf("[Grid] failed to cache cell %s: %v", c.ID(), err)
	}
}
