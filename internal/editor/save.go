package editor

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/jengzang/forestwatch-backend-go/internal/models"
)

// save builds a polygon from a finished drawing, shows it at once and
// persists it in the background
func (e *Editor) save(d Drawn) {
	e.mu.Lock()
	target := e.target
	e.mu.Unlock()
	if target == nil {
		log.Printf("[Editor] dropping polygon drawn without a work cell")
		return
	}

	p := &models.Polygon{
		ID:        uuid.NewString(),
		Paths:     d.Paths,
		Type:      d.Type,
		ReportID:  target.ReportID,
		Operation: target.Operation,
		CellID:    target.CellID,
		SyncState: models.SyncPending,
		AddedBy:   target.AddedBy,
		AddedOn:   time.Now().UTC(),
	}
	if err := p.Validate(); err != nil {
		log.Printf("[Editor] rejected polygon: %v", err)
		e.events.Emit(EventSaveFailed, Event{Polygon: p, Err: err})
		return
	}

	e.collection.Add(p)
	e.storeLocal(p)
	e.submit(p.ID, 0)
}

// update applies an edited geometry and sends it upstream. An edit made
// while a create is in flight is picked up by that push once the create
// returns.
func (e *Editor) update(d Drawn) {
	cur, ok := e.collection.Get(d.ID)
	if !ok {
		return
	}
	cur.Paths = d.Paths
	if err := cur.Validate(); err != nil {
		log.Printf("[Editor] rejected edit of polygon %s: %v", d.ID, err)
		e.events.Emit(EventSaveFailed, Event{Polygon: cur, Err: err})
		return
	}

	p, ok := e.collection.Mutate(d.ID, func(p *models.Polygon) {
		p.Paths = d.Paths
		p.SyncState = models.SyncPending
	})
	if !ok {
		return
	}
	e.storeLocal(p)
	e.submit(p.ID, 0)
}

// remove deletes a polygon locally and upstream
func (e *Editor) remove(id string) {
	p, ok := e.collection.Remove(id)
	if !ok {
		return
	}
	if e.store != nil {
		if err := e.store.DeletePolygon(id); err != nil {
			log.Printf("[Editor] failed to delete local polygon %s: %v", id, err)
		}
	}
	if p.ServerID == "" {
		return
	}
	e.background(func(ctx context.Context) {
		if err := e.saver.DeletePolygon(ctx, p); err != nil {
			log.Printf("[Editor] delete polygon %s failed: %v", p.ID, err)
		}
	})
}

// Remove deletes a polygon by id regardless of the active state
func (e *Editor) Remove(id string) bool {
	if _, ok := e.collection.Get(id); !ok {
		return false
	}
	e.remove(id)
	return true
}

// SyncUnsynced immediately resubmits every polygon flagged unsynced and
// returns how many were submitted
func (e *Editor) SyncUnsynced() int {
	n := 0
	for _, p := range e.collection.List(models.PolygonFilter{SyncState: models.SyncUnsynced}) {
		if e.submit(p.ID, 0) {
			n++
		}
	}
	return n
}

// submit starts a push unless one is already running for id
func (e *Editor) submit(id string, attempt int) bool {
	e.mu.Lock()
	if e.inflight[id] {
		e.again[id] = true
		e.mu.Unlock()
		return false
	}
	e.inflight[id] = true
	e.saving++
	saving := e.saving
	e.mu.Unlock()
	e.events.Emit(EventSaving, Event{Saving: saving})

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.push(id, attempt)
	}()
	return true
}

// push creates the polygon upstream, or updates it once it has a server id,
// and repeats while the geometry changed during the request
func (e *Editor) push(id string, attempt int) {
	for {
		p, ok := e.collection.Get(id)
		if !ok || p.SyncState == models.SyncSynced {
			e.finish(id)
			return
		}

		sent := p.Paths
		ctx, cancel := context.WithTimeout(e.ctx, e.opts.SaveTimeout)
		serverID := p.ServerID
		var err error
		if serverID != "" {
			err = e.saver.UpdatePolygon(ctx, p)
		} else {
			serverID, err = e.saver.CreatePolygon(ctx, p)
		}
		cancel()

		if err != nil {
			e.finish(id)
			log.Printf("[Editor] save polygon %s failed (attempt %d): %v", id, attempt+1, err)
			e.markUnsynced(id, err)
			e.scheduleRetry(id, attempt)
			return
		}

		stale := false
		saved, ok := e.collection.Mutate(id, func(p *models.Polygon) {
			p.ServerID = serverID
			p.LastError = ""
			if !samePaths(p.Paths, sent) {
				stale = true
				p.SyncState = models.SyncPending
				return
			}
			p.SyncState = models.SyncSynced
		})
		if !ok {
			e.finish(id)
			// removed while the request was in flight
			p.ServerID = serverID
			e.background(func(ctx context.Context) {
				if err := e.saver.DeletePolygon(ctx, p); err != nil {
					log.Printf("[Editor] delete polygon %s failed: %v", id, err)
				}
			})
			return
		}
		e.storeLocal(saved)
		if stale {
			log.Printf("[Editor] polygon %s edited during save, sending update", id)
			continue
		}
		if !e.settle(id) {
			continue
		}
		e.events.Emit(EventSaved, Event{Polygon: saved})
		return
	}
}

func samePaths(a, b [][]models.LatLng) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if len(a[i]) != len(b[i]) {
			return false
		}
		for j := range a[i] {
			if a[i][j] != b[i][j] {
				return false
			}
		}
	}
	return true
}

// settle ends a successful push unless the polygon was submitted again while
// it ran, in which case it reports false and the push continues
func (e *Editor) settle(id string) bool {
	e.mu.Lock()
	if e.again[id] {
		delete(e.again, id)
		e.mu.Unlock()
		return false
	}
	e.mu.Unlock()
	e.finish(id)
	return true
}

// finish hides the saving indicator for one request
func (e *Editor) finish(id string) {
	e.mu.Lock()
	delete(e.inflight, id)
	delete(e.again, id)
	e.saving--
	saving := e.saving
	e.mu.Unlock()
	e.events.Emit(EventSaving, Event{Saving: saving})
}

func (e *Editor) markUnsynced(id string, cause error) {
	p, ok := e.collection.Mutate(id, func(p *models.Polygon) {
		p.SyncState = models.SyncUnsynced
		p.Attempts++
		p.LastError = cause.Error()
	})
	if !ok {
		return
	}
	e.storeLocal(p)
	e.events.Emit(EventSaveFailed, Event{Polygon: p, Err: cause})
}

func (e *Editor) scheduleRetry(id string, attempt int) {
	if attempt >= len(e.opts.Retry.Intervals) {
		log.Printf("[Editor] polygon %s left unsynced after %d attempts", id, attempt+1)
		return
	}
	delay := e.opts.Retry.Intervals[attempt]
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		select {
		case <-time.After(delay):
			e.submit(id, attempt+1)
		case <-e.ctx.Done():
		}
	}()
}

func (e *Editor) background(fn func(ctx context.Context)) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		ctx, cancel := context.WithTimeout(e.ctx, e.opts.SaveTimeout)
		defer cancel()
		fn(ctx)
	}()
}

func (e *Editor) storeLocal(p *models.Polygon) {
	if e.store == nil {
		return
	}
	if err := e.store.SavePolygon(p); err != nil {
		log.Printf("[Editor] failed to cache polygon %s: %v", p.ID, err)
	}
}

// Load replaces the collection with polygons already known for the cell
func (e *Editor) Load(polys []*models.Polygon) {
	e.collection.Clear()
	for _, p := range polys {
		e.collection.Add(p)
	}
}
