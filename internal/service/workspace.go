package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jengzang/forestwatch-backend-go/internal/classify"
	"github.com/jengzang/forestwatch-backend-go/internal/editor"
	"github.com/jengzang/forestwatch-backend-go/internal/grid"
	"github.com/jengzang/forestwatch-backend-go/internal/layerstatus"
	"github.com/jengzang/forestwatch-backend-go/internal/models"
	"github.com/jengzang/forestwatch-backend-go/internal/polygons"
	"github.com/jengzang/forestwatch-backend-go/internal/spatial"
	"github.com/jengzang/forestwatch-backend-go/internal/telemetry"
	"github.com/jengzang/forestwatch-backend-go/internal/tiles"
)

// tileWorkers bounds concurrent tile loads of a work cell
const tileWorkers = 4

// ErrInvalid marks rejected input values
var ErrInvalid = errors.New("invalid input")

// Remote is the report server as seen by the workspace
type Remote interface {
	grid.CellSource
	editor.Saver
	ListPolygons(ctx context.Context, reportID string, op models.Operation, cellID string) ([]*models.Polygon, error)
	MapAuth(ctx context.Context, reportID, sensor string) (models.MapAuth, error)
	RGBAuth(ctx context.Context, reportID string, op models.Operation, cellID string, r, g, b int, sensor string) (models.MapAuth, error)
	Landsat(ctx context.Context, reportID string, op models.Operation, cellID string) (json.RawMessage, error)
	AddNote(ctx context.Context, reportID, cellID, msg string) (*models.Note, error)
}

// PolygonStore is the local polygon table
type PolygonStore interface {
	editor.Store
	ListByCell(reportID string, op models.Operation, filter models.PolygonFilter) ([]*models.Polygon, error)
	ListUnsynced() ([]*models.Polygon, error)
}

// CellCache is the local cell table
type CellCache interface {
	grid.CellStore
	ListCells(reportID string, op models.Operation, filter models.CellFilter) ([]*models.Cell, error)
}

// ProfileStore keeps the last thresholds applied per operation
type ProfileStore interface {
	Save(p *models.ThresholdProfile) error
	Get(reportID string, op models.Operation) (*models.ThresholdProfile, error)
}

// WorkspaceOptions configures a Workspace. Cells, Polygons, Profiles and
// Tracker may be nil.
type WorkspaceOptions struct {
	ReportID  string
	Operation models.Operation
	AddedBy   string

	Remote   Remote
	Cells    CellCache
	Polygons PolygonStore
	Profiles ProfileStore
	Fetcher  *tiles.Fetcher
	Tracker  *telemetry.Tracker

	Tiles         tiles.Options
	Editor        editor.Options
	RemoteTimeout time.Duration
}

// Workspace ties navigation, the classification overlay and polygon editing
// of one report and operation together
type Workspace struct {
	reportID string
	op       models.Operation
	addedBy  string
	timeout  time.Duration

	remote   Remote
	cells    CellCache
	polys    PolygonStore
	profiles ProfileStore
	tracker  *telemetry.Tracker

	controller *grid.Controller
	layer      *tiles.Layer
	editor     *editor.Editor

	mu          sync.Mutex
	tilesCancel context.CancelFunc

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

// NewWorkspace builds the components of a workspace and binds their events
func NewWorkspace(opts WorkspaceOptions) (*Workspace, error) {
	if opts.Remote == nil || opts.Fetcher == nil {
		return nil, errors.New("workspace needs a remote and a tile fetcher")
	}
	op := opts.Operation
	if op == "" || op == models.OperationNone {
		op = models.OperationSAD
	}
	strategy, err := classify.GetStrategy(op)
	if err != nil {
		return nil, err
	}
	layer, err := tiles.NewLayer(opts.Fetcher, strategy, opts.Tiles)
	if err != nil {
		return nil, err
	}
	if opts.RemoteTimeout <= 0 {
		opts.RemoteTimeout = 30 * time.Second
	}
	tracker := opts.Tracker
	if tracker == nil {
		tracker = telemetry.New("", "")
	}

	index := grid.NewIndex(grid.DefaultWorldBounds, spatial.WebMercator{Zoom: grid.MapZoom(grid.WorkingZoom)})
	var cellStore grid.CellStore
	if opts.Cells != nil {
		cellStore = opts.Cells
	}
	tree := grid.NewTree(opts.ReportID, op, opts.Remote, cellStore)

	var store editor.Store
	if opts.Polygons != nil {
		store = opts.Polygons
	}
	ed := editor.New(polygons.NewCollection(), editor.NewDrawTool(), editor.NewPicker(layer), opts.Remote, store, opts.Editor)

	ctx, cancel := context.WithCancel(context.Background())
	w := &Workspace{
		reportID:   opts.ReportID,
		op:         op,
		addedBy:    opts.AddedBy,
		timeout:    opts.RemoteTimeout,
		remote:     opts.Remote,
		cells:      opts.Cells,
		polys:      opts.Polygons,
		profiles:   opts.Profiles,
		tracker:    tracker,
		controller: grid.NewController(index, tree),
		layer:      layer,
		editor:     ed,
		ctx:        ctx,
		cancel:     cancel,
	}
	w.restoreProfile()
	w.bind()
	return w, nil
}

// Controller returns the navigation controller
func (w *Workspace) Controller() *grid.Controller { return w.controller }

// Layer returns the classification overlay
func (w *Workspace) Layer() *tiles.Layer { return w.layer }

// Editor returns the polygon editor
func (w *Workspace) Editor() *editor.Editor { return w.editor }

// ReportID returns the report being reviewed
func (w *Workspace) ReportID() string { return w.reportID }

// Operation returns the operation driving the overlay
func (w *Workspace) Operation() models.Operation { return w.op }

func (w *Workspace) bind() {
	nav := w.controller.Events()
	nav.On(grid.EventWorkMode, w.onWorkMode)
	nav.On(grid.EventLeaveWork, func(n grid.Navigation) {
		w.stopTiles()
		w.editor.SetTarget(nil)
	})
	nav.On(grid.EventNavigationError, func(n grid.Navigation) {
		w.tracker.TrackError("grid", n.Err, map[string]interface{}{"cell": n.Address.ID()})
	})

	ev := w.editor.Events()
	ev.On(editor.EventSaveFailed, func(e editor.Event) {
		props := map[string]interface{}{}
		if e.Polygon != nil {
			props["polygon"] = e.Polygon.ID
			props["attempts"] = e.Polygon.Attempts
		}
		w.tracker.TrackError("editor", e.Err, props)
	})
	ev.On(editor.EventSaved, func(e editor.Event) {
		w.tracker.Track("polygon_saved", map[string]interface{}{"cell": e.Polygon.CellID, "type": e.Polygon.Type.String()})
	})
	ev.On(editor.EventDeclined, func(e editor.Event) {
		w.tracker.Track("pick_declined", map[string]interface{}{"reason": e.Outcome.Reason})
	})
}

func (w *Workspace) onWorkMode(n grid.Navigation) {
	id := n.Address.ID()
	if t, ok := w.editor.Target(); ok && t.CellID != id {
		// jumped between work cells without going back
		w.editor.SetTarget(nil)
	}
	w.editor.SetTarget(&editor.Target{
		ReportID:  w.reportID,
		Operation: w.op,
		CellID:    id,
		AddedBy:   w.addedBy,
		Zoom:      n.MapZoom,
	})
	w.editor.Load(w.cellPolygons(id))
	w.startTiles(n.Bounds, n.MapZoom)
	w.tracker.Track("work_mode", map[string]interface{}{"cell": id, "operation": string(w.op)})
}

// cellPolygons merges the server polygons of a cell with local ones the
// server has not confirmed yet
func (w *Workspace) cellPolygons(cellID string) []*models.Polygon {
	ctx, cancel := context.WithTimeout(w.ctx, w.timeout)
	defer cancel()

	remote, err := w.remote.ListPolygons(ctx, w.reportID, w.op, cellID)
	if err != nil {
		log.Printf("[Editor] failed to list polygons of %s: %v", cellID, err)
		w.tracker.TrackError("upstream", err, map[string]interface{}{"cell": cellID})
	}
	if w.polys == nil {
		return remote
	}

	local, lerr := w.polys.ListByCell(w.reportID, w.op, models.PolygonFilter{CellID: cellID})
	if lerr != nil {
		log.Printf("[Editor] failed to read local polygons of %s: %v", cellID, lerr)
		return remote
	}
	if err != nil {
		// server unreachable: show everything known locally
		return local
	}

	byServer := make(map[string]int, len(remote))
	for i, p := range remote {
		byServer[p.ServerID] = i
	}
	out := remote
	for _, p := range local {
		if i, ok := byServer[p.ServerID]; ok && p.ServerID != "" {
			if p.SyncState != models.SyncSynced {
				// an edit the server has not confirmed yet
				out[i] = p
				continue
			}
			// keep the local id so edits update the same row
			out[i].ID = p.ID
			continue
		}
		if p.SyncState != models.SyncSynced {
			out = append(out, p)
		}
	}
	return out
}

func (w *Workspace) startTiles(bounds spatial.Bounds, zoom int) {
	w.stopTiles()
	if !w.layer.Ready() {
		log.Printf("[Tiles] overlay not authorized, skipping tile load")
		return
	}

	ctx, cancel := context.WithCancel(w.ctx)
	w.mu.Lock()
	w.tilesCancel = cancel
	w.mu.Unlock()

	coords := tiles.TilesFor(bounds, zoom)
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.loadTiles(ctx, coords)
	}()
}

func (w *Workspace) stopTiles() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.tilesCancel != nil {
		w.tilesCancel()
		w.tilesCancel = nil
	}
}

func (w *Workspace) loadTiles(ctx context.Context, coords []tiles.Coord) {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(tileWorkers)
	for _, c := range coords {
		c := c
		g.Go(func() error {
			if _, err := w.layer.Setup(ctx, c); err != nil {
				if ctx.Err() == nil && !errors.Is(err, tiles.ErrSuperseded) {
					log.Printf("[Tiles] tile %s failed: %v", c.Key(), err)
					w.tracker.TrackError("tiles", err, map[string]interface{}{"tile": c.Key()})
				}
			}
			return nil
		})
	}
	g.Wait()
	log.Printf("[Tiles] loaded %d tiles", len(coords))
}

// LoadTile loads one tile and returns its rendered canvas
func (w *Workspace) LoadTile(ctx context.Context, c tiles.Coord) (*image.NRGBA, error) {
	img, err := w.layer.Setup(ctx, c)
	if err != nil && !errors.Is(err, tiles.ErrSuperseded) && !errors.Is(err, tiles.ErrNotReady) {
		w.tracker.TrackError("tiles", err, map[string]interface{}{"tile": c.Key()})
	}
	return img, err
}

// Authorize sets the overlay credentials and reloads the tiles of the open
// work cell
func (w *Workspace) Authorize(primary models.MapAuth, aux map[string]models.MapAuth) error {
	if err := w.layer.Authorize(primary, aux); err != nil {
		return err
	}
	w.reloadTiles()
	return nil
}

// AuthorizeSensors asks the report server for the credentials of sensor and
// of every auxiliary raster the operation needs. Rasters missing from aux are
// requested under their own name.
func (w *Workspace) AuthorizeSensors(ctx context.Context, sensor string, aux map[string]string) error {
	primary, err := w.remote.MapAuth(ctx, w.reportID, sensor)
	if err != nil {
		return fmt.Errorf("failed to get %s map: %w", sensor, err)
	}

	auths := make(map[string]models.MapAuth)
	for _, raster := range w.layer.Strategy().Rasters() {
		name := raster
		if s, ok := aux[raster]; ok && s != "" {
			name = s
		}
		a, err := w.remote.MapAuth(ctx, w.reportID, name)
		if err != nil {
			return fmt.Errorf("failed to get %s map: %w", name, err)
		}
		auths[raster] = a
	}
	return w.Authorize(primary, auths)
}

func (w *Workspace) reloadTiles() {
	st := w.controller.State()
	if st.Mode != grid.ModeWork || st.Address == nil {
		return
	}
	a := *st.Address
	w.startTiles(w.controller.Index().CellBounds(a.X, a.Y, a.Z), grid.MapZoom(a.Z))
}

// SetThresholds re-renders the overlay and remembers the thresholds
func (w *Workspace) SetThresholds(th classify.Thresholds) error {
	if err := th.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if err := w.layer.FilterTiles(th); err != nil {
		return err
	}
	w.saveProfile()
	return nil
}

// SetVisibility re-renders the overlay with new class visibility
func (w *Workspace) SetVisibility(vis classify.LayerVisibility) error {
	if err := w.layer.SetVisibility(vis); err != nil {
		return err
	}
	w.saveProfile()
	return nil
}

func (w *Workspace) saveProfile() {
	if w.profiles == nil {
		return
	}
	params, _ := json.Marshal(w.layer.Thresholds())
	vis, _ := json.Marshal(w.layer.Visibility())
	p := &models.ThresholdProfile{
		ReportID:       w.reportID,
		Operation:      w.op,
		ParamsJSON:     string(params),
		VisibilityJSON: string(vis),
	}
	if err := w.profiles.Save(p); err != nil {
		log.Printf("[Tiles] failed to save threshold profile: %v", err)
	}
}

func (w *Workspace) restoreProfile() {
	if w.profiles == nil {
		return
	}
	p, err := w.profiles.Get(w.reportID, w.op)
	if err != nil || p == nil {
		if err != nil {
			log.Printf("[Tiles] failed to read threshold profile: %v", err)
		}
		return
	}
	th := w.layer.Thresholds()
	if err := json.Unmarshal([]byte(p.ParamsJSON), &th); err == nil {
		if err := w.layer.FilterTiles(th); err != nil {
			log.Printf("[Tiles] ignoring stored thresholds: %v", err)
		}
	}
	vis := w.layer.Visibility()
	if err := json.Unmarshal([]byte(p.VisibilityJSON), &vis); err == nil {
		w.layer.SetVisibility(vis)
	}
}

// SetLayerStatus stores the layer list of a map pane on the work cell
func (w *Workspace) SetLayerStatus(ctx context.Context, pane int, status string) (*models.Cell, error) {
	st, err := layerstatus.Parse(status)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if pane < 1 || pane > 4 {
		return nil, fmt.Errorf("%w: map pane %d", ErrInvalid, pane)
	}
	serialized := st.String()
	return w.controller.UpdateCurrent(ctx, func(c *models.Cell) {
		c.SetLayerStatus(pane, serialized)
	})
}

// SetCompareView stores the pane layout of the work cell
func (w *Workspace) SetCompareView(ctx context.Context, view string) (*models.Cell, error) {
	switch view {
	case models.CompareViewOne, models.CompareViewTwo, models.CompareViewFour:
	default:
		return nil, fmt.Errorf("%w: compare view %q", ErrInvalid, view)
	}
	return w.controller.UpdateCurrent(ctx, func(c *models.Cell) {
		c.CompareView = view
	})
}

// SetNDFIRange stores the NDFI slider range of the work cell
func (w *Workspace) SetNDFIRange(ctx context.Context, low, high float64) (*models.Cell, error) {
	if low < 0 || high > 1 || low > high {
		return nil, fmt.Errorf("%w: ndfi range [%g, %g]", ErrInvalid, low, high)
	}
	return w.controller.UpdateCurrent(ctx, func(c *models.Cell) {
		c.NDFILow = low
		c.NDFIHigh = high
	})
}

func (w *Workspace) workCell() (grid.Address, error) {
	st := w.controller.State()
	if st.Mode != grid.ModeWork || st.Address == nil {
		return grid.Address{}, grid.ErrNotInWork
	}
	return *st.Address, nil
}

// AddNote attaches a note to the work cell
func (w *Workspace) AddNote(ctx context.Context, msg string) (*models.Note, error) {
	a, err := w.workCell()
	if err != nil {
		return nil, err
	}
	if msg == "" {
		return nil, fmt.Errorf("%w: empty note", ErrInvalid)
	}
	return w.remote.AddNote(ctx, w.reportID, a.ID(), msg)
}

// Landsat returns the scene information of the work cell
func (w *Workspace) Landsat(ctx context.Context) (json.RawMessage, error) {
	a, err := w.workCell()
	if err != nil {
		return nil, err
	}
	return w.remote.Landsat(ctx, w.reportID, w.op, a.ID())
}

// RGBAuth returns the credentials of a band composite of the work cell
func (w *Workspace) RGBAuth(ctx context.Context, r, g, b int, sensor string) (models.MapAuth, error) {
	a, err := w.workCell()
	if err != nil {
		return models.MapAuth{}, err
	}
	return w.remote.RGBAuth(ctx, w.reportID, w.op, a.ID(), r, g, b, sensor)
}

// Session is a snapshot of the workspace for clients
type Session struct {
	ReportID   string                   `json:"report_id"`
	Operation  models.Operation         `json:"operation"`
	Navigation grid.State               `json:"navigation"`
	Editor     editor.State             `json:"editor"`
	Cursor     string                   `json:"cursor"`
	Saving     int                      `json:"saving"`
	Loading    int                      `json:"loading"`
	Authorized bool                     `json:"authorized"`
	Thresholds classify.Thresholds      `json:"thresholds"`
	Visibility classify.LayerVisibility `json:"visibility"`
	Polygons   int                      `json:"polygons"`
}

// Session returns the current snapshot
func (w *Workspace) Session() Session {
	return Session{
		ReportID:   w.reportID,
		Operation:  w.op,
		Navigation: w.controller.State(),
		Editor:     w.editor.State(),
		Cursor:     w.editor.Cursor().String(),
		Saving:     w.editor.Saving(),
		Loading:    w.layer.Loading(),
		Authorized: w.layer.Ready(),
		Thresholds: w.layer.Thresholds(),
		Visibility: w.layer.Visibility(),
		Polygons:   w.editor.Collection().Len(),
	}
}

// CachedCells lists the records stored locally while browsing
func (w *Workspace) CachedCells(filter models.CellFilter) ([]*models.Cell, error) {
	if w.cells == nil {
		return nil, nil
	}
	return w.cells.ListCells(w.reportID, w.op, filter)
}

// StoredPolygons lists polygons from the local table. With no store
// configured it falls back to the open work cell.
func (w *Workspace) StoredPolygons(filter models.PolygonFilter) ([]*models.Polygon, error) {
	if w.polys == nil {
		return w.editor.Collection().List(filter), nil
	}
	return w.polys.ListByCell(w.reportID, w.op, filter)
}

// Wait blocks until background tile loads and polygon saves finish
func (w *Workspace) Wait() {
	w.wg.Wait()
	w.editor.Wait()
}

// Close stops background work
func (w *Workspace) Close() {
	w.cancel()
	w.wg.Wait()
	w.editor.Close()
}
