package service

import (
	"context"
	"log"
	"time"

	"github.com/jengzang/forestwatch-backend-go/internal/models"
)

// staleAfter is how long a pending polygon may sit in the store before a
// sync pass treats its create request as lost
const staleAfter = 2 * time.Minute

// SyncReport summarizes one sync pass
type SyncReport struct {
	Resubmitted int `json:"resubmitted"` // handed back to the editor
	Synced      int `json:"synced"`
	Failed      int `json:"failed"`
}

// SyncService pushes polygons the server has not confirmed. Polygons of the
// open work cell are retried through the editor; the rest are sent directly
// from the local store.
type SyncService struct {
	ws  *Workspace
	now func() time.Time
}

// NewSyncService creates a sync service for ws
func NewSyncService(ws *Workspace) *SyncService {
	return &SyncService{ws: ws, now: time.Now}
}

// SyncNow runs one sync pass
func (s *SyncService) SyncNow(ctx context.Context) (SyncReport, error) {
	var report SyncReport
	report.Resubmitted = s.ws.editor.SyncUnsynced()

	if s.ws.polys == nil {
		return report, nil
	}
	queued, err := s.ws.polys.ListUnsynced()
	if err != nil {
		return report, err
	}

	for _, p := range queued {
		if _, open := s.ws.editor.Collection().Get(p.ID); open {
			continue
		}
		if p.SyncState == models.SyncPending && s.now().Sub(p.AddedOn) < staleAfter {
			continue
		}
		if err := s.push(ctx, p); err != nil {
			log.Printf("[Sync] polygon %s failed: %v", p.ID, err)
			report.Failed++
			p.SyncState = models.SyncUnsynced
			p.Attempts++
			p.LastError = err.Error()
		} else {
			report.Synced++
			p.SyncState = models.SyncSynced
			p.LastError = ""
		}
		if err := s.ws.polys.SavePolygon(p); err != nil {
			log.Printf("[Sync] failed to store polygon %s: %v", p.ID, err)
		}
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
	}

	if report.Synced+report.Failed+report.Resubmitted > 0 {
		log.Printf("[Sync] resubmitted %d, synced %d, failed %d", report.Resubmitted, report.Synced, report.Failed)
	}
	return report, nil
}

func (s *SyncService) push(ctx context.Context, p *models.Polygon) error {
	ctx, cancel := context.WithTimeout(ctx, s.ws.timeout)
	defer cancel()

	if p.ServerID != "" {
		return s.ws.remote.UpdatePolygon(ctx, p)
	}
	id, err := s.ws.remote.CreatePolygon(ctx, p)
	if err != nil {
		return err
	}
	p.ServerID = id
	return nil
}

// Run syncs every interval until ctx is cancelled. A non-positive interval
// disables periodic syncing.
func (s *SyncService) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.SyncNow(ctx); err != nil && ctx.Err() == nil {
				log.Printf("[Sync] pass failed: %v", err)
				s.ws.tracker.TrackError("sync", err, nil)
			}
		}
	}
}
