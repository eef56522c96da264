package grid

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/jengzang/forestwatch-backend-go/internal/models"
)

type fakeSource struct {
	mu       sync.Mutex
	fail     bool
	cellHits int
	saved    []models.Cell
}

func (f *fakeSource) Cell(ctx context.Context, reportID string, op models.Operation, id string) (*models.Cell, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cellHits++
	if f.fail {
		return nil, errors.New("upstream down")
	}
	a, err := ParseID(id)
	if err != nil {
		return nil, err
	}
	return &models.Cell{Z: a.Z, X: a.X, Y: a.Y, ReportID: reportID, Operation: op, AddedBy: "ana", LatestChange: 10}, nil
}

func (f *fakeSource) Children(ctx context.Context, reportID string, op models.Operation, id string) ([]models.Cell, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return nil, errors.New("upstream down")
	}
	a, err := ParseID(id)
	if err != nil {
		return nil, err
	}
	var out []models.Cell
	for _, c := range a.Children() {
		cell := models.Cell{Z: c.Z, X: c.X, Y: c.Y}
		for _, s := range f.saved {
			if s.ID() == cell.ID() {
				cell = s
			}
		}
		out = append(out, cell)
	}
	return out, nil
}

func (f *fakeSource) SaveCell(ctx context.Context, cell *models.Cell) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("upstream down")
	}
	f.saved = append(f.saved, *cell)
	return nil
}

type recorder struct {
	names []string
	addrs []Address
}

func (r *recorder) bind(c *Controller) {
	for _, name := range []string{EventViewportFit, EventSelectMode, EventWorkMode, EventLeaveWork, EventNavigationError, EventCellUpdated} {
		name := name
		c.Events().On(name, func(n Navigation) {
			r.names = append(r.names, name)
			r.addrs = append(r.addrs, n.Address)
		})
	}
}

func newTestController() (*Controller, *fakeSource, *recorder) {
	src := &fakeSource{}
	c := NewController(newTestIndex(12), NewTree("r1", models.OperationSAD, src, nil))
	rec := &recorder{}
	rec.bind(c)
	return c, src, rec
}

func assertEvents(t *testing.T, rec *recorder, want ...string) {
	t.Helper()
	if len(rec.names) != len(want) {
		t.Fatalf("events = %v, want %v", rec.names, want)
	}
	for i := range want {
		if rec.names[i] != want[i] {
			t.Fatalf("events = %v, want %v", rec.names, want)
		}
	}
}

func TestEnterOverview(t *testing.T) {
	c, _, rec := newTestController()
	if err := c.EnterCell(context.Background(), Address{Z: 0}); err != nil {
		t.Fatal(err)
	}

	assertEvents(t, rec, EventViewportFit, EventSelectMode)
	s := c.State()
	if s.Mode != ModeOverview || len(s.Children) != 25 {
		t.Fatalf("unexpected state %+v", s)
	}
}

func TestDescendToWorkMode(t *testing.T) {
	c, _, rec := newTestController()
	ctx := context.Background()

	if err := c.EnterCell(ctx, Address{Z: 1, X: 2, Y: 3}); err != nil {
		t.Fatal(err)
	}
	rec.names, rec.addrs = nil, nil

	if err := c.EnterSubCell(ctx, 2, 2); err != nil {
		t.Fatal(err)
	}

	assertEvents(t, rec, EventViewportFit, EventWorkMode)
	want := Address{Z: 2, X: 12, Y: 17}
	if rec.addrs[1] != want {
		t.Fatalf("work mode address = %v, want %v", rec.addrs[1], want)
	}
	if s := c.State(); s.Mode != ModeWork || *s.Address != want {
		t.Fatalf("unexpected state %+v", s)
	}
}

func TestWorkModeWaitsForCellRecord(t *testing.T) {
	c, src, _ := newTestController()
	ctx := context.Background()
	a := Address{Z: 2, X: 12, Y: 17}

	if err := c.EnterCell(ctx, a); err != nil {
		t.Fatal(err)
	}
	s := c.State()
	if s.Mode != ModeWork || s.Cell == nil || !s.Cell.HasChanges() {
		t.Fatalf("unexpected state %+v", s)
	}
	if src.cellHits != 1 {
		t.Fatalf("expected one cell fetch, got %d", src.cellHits)
	}

	// A second visit uses the cached record
	if err := c.EnterCell(ctx, a); err != nil {
		t.Fatal(err)
	}
	if src.cellHits != 1 {
		t.Fatalf("expected cached record, got %d fetches", src.cellHits)
	}
}

func TestGoBackFromWorkCell(t *testing.T) {
	c, _, rec := newTestController()
	ctx := context.Background()

	if err := c.EnterCell(ctx, Address{Z: 2, X: 12, Y: 17}); err != nil {
		t.Fatal(err)
	}
	rec.names, rec.addrs = nil, nil

	if err := c.GoBack(ctx); err != nil {
		t.Fatal(err)
	}

	assertEvents(t, rec, EventLeaveWork, EventViewportFit, EventSelectMode)
	s := c.State()
	if s.Mode != ModeOverview || *s.Address != (Address{Z: 1, X: 2, Y: 3}) {
		t.Fatalf("unexpected state after go back: %+v", s)
	}
}

func TestGoBackFromRoot(t *testing.T) {
	c, _, _ := newTestController()
	ctx := context.Background()

	if err := c.GoBack(ctx); !errors.Is(err, ErrNoParent) {
		t.Fatalf("expected ErrNoParent before navigation, got %v", err)
	}
	if err := c.EnterCell(ctx, Address{}); err != nil {
		t.Fatal(err)
	}
	if err := c.GoBack(ctx); !errors.Is(err, ErrNoParent) {
		t.Fatalf("expected ErrNoParent at root, got %v", err)
	}
}

func TestFetchFailureEntersErrorMode(t *testing.T) {
	c, src, rec := newTestController()
	ctx := context.Background()

	src.fail = true
	if err := c.EnterCell(ctx, Address{Z: 2, X: 12, Y: 17}); err == nil {
		t.Fatal("expected error")
	}
	assertEvents(t, rec, EventViewportFit, EventNavigationError)

	s := c.State()
	if s.Mode != ModeError || s.Pending == nil || s.Error == "" {
		t.Fatalf("unexpected state %+v", s)
	}

	src.fail = false
	if err := c.Retry(ctx); err != nil {
		t.Fatal(err)
	}
	if s := c.State(); s.Mode != ModeWork || s.Pending != nil {
		t.Fatalf("retry did not recover: %+v", s)
	}
	if err := c.Retry(ctx); !errors.Is(err, ErrNoRetry) {
		t.Fatalf("expected ErrNoRetry, got %v", err)
	}
}

func TestCellDoneSavesAndGoesBack(t *testing.T) {
	c, src, _ := newTestController()
	ctx := context.Background()

	if err := c.EnterCell(ctx, Address{Z: 2, X: 12, Y: 17}); err != nil {
		t.Fatal(err)
	}
	if err := c.CellDone(ctx, true); err != nil {
		t.Fatal(err)
	}

	if len(src.saved) != 1 || !src.saved[0].Done {
		t.Fatalf("expected saved done cell, got %+v", src.saved)
	}
	if s := c.State(); s.Mode != ModeOverview || s.Address.Z != 1 {
		t.Fatalf("expected overview of parent, got %+v", s)
	}
	if cell, _ := c.Tree().Lookup(Address{Z: 2, X: 12, Y: 17}); !cell.Done {
		t.Fatal("cache not updated")
	}
}

func TestBlockedCellRefused(t *testing.T) {
	c, _, _ := newTestController()
	if err := c.EnterCell(context.Background(), Address{Z: 1, X: 4, Y: 0}); !errors.Is(err, ErrBlocked) {
		t.Fatalf("expected ErrBlocked, got %v", err)
	}
}

func TestUpdateCurrentRequiresWork(t *testing.T) {
	c, _, _ := newTestController()
	_, err := c.UpdateCurrent(context.Background(), func(cell *models.Cell) { cell.CompareView = models.CompareViewOne })
	if !errors.Is(err, ErrNotInWork) {
		t.Fatalf("expected ErrNotInWork, got %v", err)
	}
}

func TestCellDoneSaveFailureKeepsCache(t *testing.T) {
	c, src, _ := newTestController()
	ctx := context.Background()
	a := Address{Z: 2, X: 12, Y: 17}

	if err := c.EnterCell(ctx, a); err != nil {
		t.Fatal(err)
	}
	src.mu.Lock()
	src.fail = true
	src.mu.Unlock()

	if err := c.CellDone(ctx, true); err == nil {
		t.Fatal("expected save error")
	}
	if cell, _ := c.Tree().Lookup(a); cell.Done {
		t.Fatal("failed save left done=true in the cache")
	}
	if s := c.State(); s.Mode != ModeWork || s.Address == nil || *s.Address != a {
		t.Fatalf("expected to stay in work on %s, got %+v", a.ID(), s)
	}
	if len(src.saved) != 0 {
		t.Fatalf("saved = %+v, want none", src.saved)
	}
}
