package editor

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/jengzang/forestwatch-backend-go/internal/contour"
	"github.com/jengzang/forestwatch-backend-go/internal/event"
	"github.com/jengzang/forestwatch-backend-go/internal/models"
	"github.com/jengzang/forestwatch-backend-go/internal/polygons"
	"github.com/jengzang/forestwatch-backend-go/internal/spatial"
)

// State is an editing mode of the work cell
type State string

const (
	StateMove   State = "move"
	StateEdit   State = "edit"
	StateRemove State = "remove"
	StateDraw   State = "draw"
	StateAuto   State = "auto"
)

// ParseState validates a state name
func ParseState(s string) (State, error) {
	switch st := State(s); st {
	case StateMove, StateEdit, StateRemove, StateDraw, StateAuto:
		return st, nil
	}
	return "", fmt.Errorf("unknown editing state %q", s)
}

// Cursor is the map cursor image and its hotspot
type Cursor struct {
	Image string `json:"image,omitempty"`
	X     int    `json:"x"`
	Y     int    `json:"y"`
}

func (c Cursor) String() string {
	if c.Image == "" {
		return "default"
	}
	return fmt.Sprintf("%s %d %d", c.Image, c.X, c.Y)
}

var cursors = map[State]Cursor{
	StateEdit:   {Image: "edit.png", X: 4, Y: 4},
	StateAuto:   {Image: "auto.png", X: 7, Y: 7},
	StateRemove: {Image: "remove.png", X: 6, Y: 6},
	StateDraw:   {Image: "draw.png", X: 4, Y: 16},
}

// Editor events
const (
	EventStateChanged = "state_changed"
	EventSaving       = "saving"
	EventSaved        = "saved"
	EventSaveFailed   = "save_failed"
	EventDeclined     = "declined"
)

var (
	ErrNoTarget = errors.New("no work cell selected")
	ErrNoAction = errors.New("click has no effect in this state")

	ErrInvalidGeometry = errors.New("invalid polygon geometry")
)

// Event is published on the editor bus
type Event struct {
	State   State
	Polygon *models.Polygon
	Outcome *contour.Outcome
	Saving  int
	Err     error
}

// Target identifies the work cell new polygons belong to
type Target struct {
	ReportID  string
	Operation models.Operation
	CellID    string
	AddedBy   string
	Zoom      int
}

// Saver persists polygons upstream
type Saver interface {
	CreatePolygon(ctx context.Context, p *models.Polygon) (string, error)
	UpdatePolygon(ctx context.Context, p *models.Polygon) error
	DeletePolygon(ctx context.Context, p *models.Polygon) error
}

// Store keeps the local copy of polygons and their sync state
type Store interface {
	SavePolygon(p *models.Polygon) error
	DeletePolygon(id string) error
}

// RetryStrategy defines the delays between save attempts after a failure
type RetryStrategy struct {
	Intervals []time.Duration
}

// DefaultRetryStrategy retries after 2s, 5s, 15s and 60s, then leaves the
// polygon flagged as unsynced
func DefaultRetryStrategy() RetryStrategy {
	return RetryStrategy{Intervals: []time.Duration{
		2 * time.Second,
		5 * time.Second,
		15 * time.Second,
		60 * time.Second,
	}}
}

// Options configures an Editor
type Options struct {
	Retry       RetryStrategy
	SaveTimeout time.Duration
}

// Editor is the polygon editing state machine of the work cell
type Editor struct {
	collection *polygons.Collection
	draw       *DrawTool
	picker     *Picker
	saver      Saver
	store      Store
	opts       Options
	events     *event.Bus[Event]

	mu       sync.Mutex
	state    State
	unbind   []func()
	target   *Target
	polytype models.PolygonType
	cursor   Cursor
	hover    string
	saving   int
	inflight map[string]bool
	again    map[string]bool

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

// New creates an editor in the move state. store may be nil.
func New(collection *polygons.Collection, draw *DrawTool, picker *Picker, saver Saver, store Store, opts Options) *Editor {
	if opts.Retry.Intervals == nil {
		opts.Retry = DefaultRetryStrategy()
	}
	if opts.SaveTimeout <= 0 {
		opts.SaveTimeout = 30 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Editor{
		collection: collection,
		draw:       draw,
		picker:     picker,
		saver:      saver,
		store:      store,
		opts:       opts,
		events:     event.NewBus[Event](),
		state:      StateMove,
		polytype:   models.PolygonDeforestation,
		inflight:   make(map[string]bool),
		again:      make(map[string]bool),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Events returns the editor bus
func (e *Editor) Events() *event.Bus[Event] { return e.events }

// Collection returns the polygons of the work cell
func (e *Editor) Collection() *polygons.Collection { return e.collection }

// State returns the active state
func (e *Editor) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Cursor returns the cursor of the active state
func (e *Editor) Cursor() Cursor {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cursor
}

// Hovered returns the id of the polygon under the pointer in edit or remove
func (e *Editor) Hovered() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.hover
}

// Saving returns the number of saves in progress
func (e *Editor) Saving() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.saving
}

// Target returns the current work cell, if any
func (e *Editor) Target() (Target, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.target == nil {
		return Target{}, false
	}
	return *e.target, true
}

// SetTarget opens a work cell for editing. A nil target closes it and
// returns to move.
func (e *Editor) SetTarget(t *Target) {
	e.mu.Lock()
	if t == nil {
		e.target = nil
		changed := e.enterLocked(StateMove)
		e.mu.Unlock()
		if changed {
			e.events.Emit(EventStateChanged, Event{State: StateMove})
		}
		return
	}
	copied := *t
	e.target = &copied
	e.picker.SetZoom(t.Zoom)
	e.mu.Unlock()
}

// SetPolytype sets the type of hand drawn polygons
func (e *Editor) SetPolytype(t models.PolygonType) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.polytype = t
	e.draw.SetPolytype(t)
}

// SetState switches the editing state. Re-entering the active state does
// nothing.
func (e *Editor) SetState(s State) error {
	e.mu.Lock()
	if s != StateMove && e.target == nil {
		e.mu.Unlock()
		return ErrNoTarget
	}
	changed := e.enterLocked(s)
	e.mu.Unlock()

	if changed {
		e.events.Emit(EventStateChanged, Event{State: s})
	}
	return nil
}

// enterLocked runs reset and binds the handlers of s; it reports whether the
// state changed
func (e *Editor) enterLocked(s State) bool {
	if s == e.state {
		return false
	}
	e.resetLocked()
	e.state = s
	e.cursor = cursors[s]

	switch s {
	case StateDraw:
		e.polytype = models.PolygonDeforestation
		e.draw.Start(e.polytype)
		e.bind(e.draw.Events().On(EventPolygon, e.save))
	case StateAuto:
		e.picker.SetEditing(true)
		e.bind(e.picker.Events().On(EventPolygon, e.save))
	case StateEdit:
		e.bind(e.collection.Events().On(polygons.EventClickOnPolygon, func(ev polygons.Event) {
			e.draw.Edit(ev.Polygon)
		}))
		e.bind(e.draw.Events().On(EventEdited, e.update))
		e.bindHover()
	case StateRemove:
		e.bind(e.collection.Events().On(polygons.EventClickOnPolygon, func(ev polygons.Event) {
			e.remove(ev.Polygon.ID)
		}))
		e.bindHover()
	}
	log.Printf("[Editor] state %s", s)
	return true
}

// resetLocked releases every binding of the active state and returns the
// tools to idle. It is safe to call repeatedly.
func (e *Editor) resetLocked() {
	for _, off := range e.unbind {
		off()
	}
	e.unbind = nil
	e.draw.Stop()
	e.picker.SetEditing(false)
	e.cursor = Cursor{}
	e.hover = ""
}

func (e *Editor) bind(off func()) {
	e.unbind = append(e.unbind, off)
}

func (e *Editor) bindHover() {
	e.bind(e.collection.Events().On(polygons.EventMouseOver, func(ev polygons.Event) {
		e.mu.Lock()
		e.hover = ev.Polygon.ID
		e.mu.Unlock()
	}))
	e.bind(e.collection.Events().On(polygons.EventMouseOut, func(ev polygons.Event) {
		e.mu.Lock()
		if e.hover == ev.Polygon.ID {
			e.hover = ""
		}
		e.mu.Unlock()
	}))
}

// ClickResult describes what a map click did
type ClickResult struct {
	State   State            `json:"state"`
	Outcome *contour.Outcome `json:"outcome,omitempty"`
	Polygon *models.Polygon  `json:"polygon,omitempty"`
}

// Click dispatches a map click according to the active state
func (e *Editor) Click(pt spatial.Point) (ClickResult, error) {
	state := e.State()
	res := ClickResult{State: state}
	switch state {
	case StateAuto:
		out := e.picker.Pick(pt)
		res.Outcome = &out
		if out.Declined {
			e.events.Emit(EventDeclined, Event{State: state, Outcome: &out})
		}
		return res, nil
	case StateEdit, StateRemove:
		p, ok := e.collection.Click(pt)
		if !ok {
			return res, ErrNoAction
		}
		res.Polygon = p
		return res, nil
	}
	return res, ErrNoAction
}

// Hover forwards a pointer position to the collection
func (e *Editor) Hover(pt spatial.Point) {
	e.collection.Hover(pt)
}

// CompleteDraw finishes a hand drawn polygon, or the open edit in edit state
func (e *Editor) CompleteDraw(paths [][]models.LatLng, polytype *models.PolygonType) error {
	if polytype != nil && e.State() == StateDraw {
		e.SetPolytype(*polytype)
	}
	if p, ok := e.draw.Editing(); ok {
		p.Paths = paths
		if err := p.Validate(); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidGeometry, err)
		}
	}
	return e.draw.Complete(paths)
}

// Wait blocks until every pending save, update, delete and scheduled retry
// has finished
func (e *Editor) Wait() {
	e.wg.Wait()
}

// Close cancels scheduled retries and waits for in-flight requests
func (e *Editor) Close() {
	e.cancel()
	e.wg.Wait()
}
