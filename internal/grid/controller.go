package grid

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/jengzang/forestwatch-backend-go/internal/event"
	"github.com/jengzang/forestwatch-backend-go/internal/models"
	"github.com/jengzang/forestwatch-backend-go/internal/spatial"
)

// Mode is the navigation mode of the controller
type Mode string

const (
	ModeIdle     Mode = "idle"
	ModeOverview Mode = "overview"
	ModeWork     Mode = "work"
	ModeSelect   Mode = "select"
	ModeError    Mode = "error"
)

// Navigation event names
const (
	EventViewportFit     = "viewport_fit"
	EventSelectMode      = "select_mode"
	EventWorkMode        = "work_mode"
	EventLeaveWork       = "leave_work"
	EventNavigationError = "navigation_error"
	EventCellUpdated     = "cell_updated"
)

var (
	ErrNoParent  = errors.New("cell has no parent")
	ErrBlocked   = errors.New("cell is blocked")
	ErrNotInWork = errors.New("no cell is open for work")
	ErrNoRetry   = errors.New("no failed navigation to retry")
	ErrNotInGrid = errors.New("no overview grid is shown")
)

// Navigation is the payload of every navigation event
type Navigation struct {
	Address  Address        `json:"address"`
	Bounds   spatial.Bounds `json:"bounds"`
	MapZoom  int            `json:"map_zoom"`
	Cell     *models.Cell   `json:"cell,omitempty"`
	Children []*models.Cell `json:"children,omitempty"`
	Err      error          `json:"-"`
}

// State is a snapshot of the controller
type State struct {
	Mode     Mode           `json:"mode"`
	Address  *Address       `json:"address,omitempty"`
	Cell     *models.Cell   `json:"cell,omitempty"`
	Children []*models.Cell `json:"children,omitempty"`
	Pending  *Address       `json:"pending,omitempty"`
	Error    string         `json:"error,omitempty"`
}

// Controller drives navigation through the cell tree. Navigation calls are
// serialized; event handlers run on the navigating goroutine and must not
// navigate themselves.
type Controller struct {
	index *Index
	tree  *Tree
	bus   *event.Bus[Navigation]

	nav sync.Mutex

	mu       sync.RWMutex
	mode     Mode
	current  *Address
	cell     *models.Cell
	children []*models.Cell
	pending  *Address
	lastErr  error
}

// NewController creates a controller in idle mode
func NewController(index *Index, tree *Tree) *Controller {
	return &Controller{
		index: index,
		tree:  tree,
		bus:   event.NewBus[Navigation](),
		mode:  ModeIdle,
	}
}

// Events returns the navigation event bus
func (c *Controller) Events() *event.Bus[Navigation] {
	return c.bus
}

// Tree returns the cell cache
func (c *Controller) Tree() *Tree {
	return c.tree
}

// Index returns the spatial index
func (c *Controller) Index() *Index {
	return c.index
}

// State returns a snapshot of the current navigation state
func (c *Controller) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := State{Mode: c.mode, Cell: c.cell, Children: c.children}
	if c.current != nil {
		a := *c.current
		s.Address = &a
	}
	if c.pending != nil {
		p := *c.pending
		s.Pending = &p
	}
	if c.lastErr != nil {
		s.Error = c.lastErr.Error()
	}
	return s
}

// EnterCell navigates to a cell. Levels above WorkingZoom show the overview
// grid of children; WorkingZoom opens the cell for work.
func (c *Controller) EnterCell(ctx context.Context, a Address) error {
	c.nav.Lock()
	defer c.nav.Unlock()
	return c.enter(ctx, a)
}

// EnterSubCell enters child (i, j) of the cell shown in overview
func (c *Controller) EnterSubCell(ctx context.Context, i, j int) error {
	if i < 0 || j < 0 || i >= Splits || j >= Splits {
		return fmt.Errorf("sub-cell (%d, %d) out of range", i, j)
	}

	c.nav.Lock()
	defer c.nav.Unlock()

	c.mu.RLock()
	mode, cur := c.mode, c.current
	c.mu.RUnlock()
	if mode != ModeOverview || cur == nil {
		return ErrNotInGrid
	}
	return c.enter(ctx, cur.Child(i, j))
}

// GoBack re-enters the parent of the current cell
func (c *Controller) GoBack(ctx context.Context) error {
	c.nav.Lock()
	defer c.nav.Unlock()

	c.mu.RLock()
	mode := c.mode
	from := c.current
	if mode == ModeError && c.pending != nil {
		from = c.pending
	}
	c.mu.RUnlock()

	if from == nil {
		return ErrNoParent
	}
	parent, ok := from.Parent()
	if !ok {
		return ErrNoParent
	}

	if mode == ModeWork {
		c.setMode(ModeSelect)
		c.bus.Emit(EventLeaveWork, Navigation{Address: *from, MapZoom: MapZoom(from.Z)})
	}
	return c.enter(ctx, parent)
}

// Retry repeats the navigation that failed
func (c *Controller) Retry(ctx context.Context) error {
	c.nav.Lock()
	defer c.nav.Unlock()

	c.mu.RLock()
	mode, pending := c.mode, c.pending
	c.mu.RUnlock()
	if mode != ModeError || pending == nil {
		return ErrNoRetry
	}
	return c.enter(ctx, *pending)
}

// UpdateCurrent applies fn to the cell open for work and saves it
func (c *Controller) UpdateCurrent(ctx context.Context, fn func(cell *models.Cell)) (*models.Cell, error) {
	c.nav.Lock()
	defer c.nav.Unlock()
	return c.updateCurrent(ctx, fn)
}

func (c *Controller) updateCurrent(ctx context.Context, fn func(cell *models.Cell)) (*models.Cell, error) {
	c.mu.RLock()
	mode, cur := c.mode, c.current
	c.mu.RUnlock()
	if mode != ModeWork || cur == nil {
		return nil, ErrNotInWork
	}

	updated, err := c.tree.Update(ctx, *cur, fn)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.cell = updated
	c.mu.Unlock()

	c.bus.Emit(EventCellUpdated, Navigation{Address: *cur, Cell: updated, MapZoom: MapZoom(cur.Z)})
	return updated, nil
}

// CellDone marks the current work cell as done, saves it and goes back to
// the parent grid
func (c *Controller) CellDone(ctx context.Context, done bool) error {
	c.nav.Lock()
	defer c.nav.Unlock()

	if _, err := c.updateCurrent(ctx, func(cell *models.Cell) { cell.Done = done }); err != nil {
		return err
	}

	c.mu.RLock()
	from := *c.current
	c.mu.RUnlock()

	parent, _ := from.Parent()
	c.setMode(ModeSelect)
	c.bus.Emit(EventLeaveWork, Navigation{Address: from, MapZoom: MapZoom(from.Z)})
	return c.enter(ctx, parent)
}

func (c *Controller) enter(ctx context.Context, a Address) error {
	if !a.Valid() {
		return fmt.Errorf("invalid cell address %s", a.ID())
	}
	if cached, ok := c.tree.Lookup(a); (ok && cached.Blocked) || models.BlockedCells[a.ID()] {
		return fmt.Errorf("%w: %s", ErrBlocked, a.ID())
	}

	bounds := c.index.CellBounds(a.X, a.Y, a.Z)
	nav := Navigation{Address: a, Bounds: bounds, MapZoom: MapZoom(a.Z)}
	c.bus.Emit(EventViewportFit, nav)

	if a.Z < WorkingZoom {
		children, err := c.tree.FetchChildren(ctx, a)
		if err != nil {
			return c.fail(a, err)
		}
		cell := c.tree.Get(a)

		c.mu.Lock()
		c.mode = ModeOverview
		c.current = &a
		c.cell = &cell
		c.children = children
		c.pending = nil
		c.lastErr = nil
		c.mu.Unlock()

		nav.Cell = &cell
		nav.Children = children
		log.Printf("[Grid] overview of cell %s", a.ID())
		c.bus.Emit(EventSelectMode, nav)
		return nil
	}

	// Work mode waits for the cell record
	cell, err := c.tree.Fetch(ctx, a)
	if err != nil {
		return c.fail(a, err)
	}

	c.mu.Lock()
	c.mode = ModeWork
	c.current = &a
	c.cell = cell
	c.children = nil
	c.pending = nil
	c.lastErr = nil
	c.mu.Unlock()

	nav.Cell = cell
	log.Printf("[Grid] work mode on cell %s", a.ID())
	c.bus.Emit(EventWorkMode, nav)
	return nil
}

func (c *Controller) fail(a Address, err error) error {
	c.mu.Lock()
	c.mode = ModeError
	c.pending = &a
	c.lastErr = err
	c.mu.Unlock()

	log.Printf("[Grid] navigation to %s failed: %v", a.ID(), err)
	c.bus.Emit(EventNavigationError, Navigation{Address: a, MapZoom: MapZoom(a.Z), Err: err})
	return err
}

func (c *Controller) setMode(m Mode) {
	c.mu.Lock()
	c.mode = m
	c.mu.Unlock()
}
