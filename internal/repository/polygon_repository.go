package repository

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jengzang/forestwatch-backend-go/internal/models"
)

const polygonColumns = `id, server_id, paths, type, report_id, operation, cell_id,
	sync_state, attempts, last_error, added_by, added_on`

// PolygonRepository keeps local polygons and their sync state
type PolygonRepository struct {
	db *sql.DB
}

// NewPolygonRepository creates a new polygon repository
func NewPolygonRepository(db *sql.DB) *PolygonRepository {
	return &PolygonRepository{db: db}
}

// SavePolygon inserts or replaces a polygon
func (r *PolygonRepository) SavePolygon(p *models.Polygon) error {
	paths, err := json.Marshal(p.Paths)
	if err != nil {
		return fmt.Errorf("failed to encode paths: %w", err)
	}

	query := `INSERT INTO polygons (` + polygonColumns + `, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(id) DO UPDATE SET
			server_id = excluded.server_id,
			paths = excluded.paths,
			type = excluded.type,
			sync_state = excluded.sync_state,
			attempts = excluded.attempts,
			last_error = excluded.last_error,
			updated_at = CURRENT_TIMESTAMP`

	var addedOn int64
	if !p.AddedOn.IsZero() {
		addedOn = p.AddedOn.UnixMilli()
	}
	_, err = r.db.Exec(query,
		p.ID, p.ServerID, string(paths), int(p.Type), p.ReportID, string(p.Operation), p.CellID,
		p.SyncState, p.Attempts, p.LastError, p.AddedBy, addedOn,
	)
	if err != nil {
		return fmt.Errorf("failed to save polygon %s: %w", p.ID, err)
	}
	return nil
}

// DeletePolygon removes a polygon by local id
func (r *PolygonRepository) DeletePolygon(id string) error {
	if _, err := r.db.Exec("DELETE FROM polygons WHERE id = ?", id); err != nil {
		return fmt.Errorf("failed to delete polygon %s: %w", id, err)
	}
	return nil
}

// GetPolygon retrieves a polygon by local id, or nil when absent
func (r *PolygonRepository) GetPolygon(id string) (*models.Polygon, error) {
	p, err := scanPolygon(r.db.QueryRow(`SELECT `+polygonColumns+` FROM polygons WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get polygon: %w", err)
	}
	return p, nil
}

// ListByCell returns the polygons of a cell in creation order, filtered by
// type and sync state when set
func (r *PolygonRepository) ListByCell(reportID string, op models.Operation, filter models.PolygonFilter) ([]*models.Polygon, error) {
	conditions := []string{"report_id = ?", "operation = ?"}
	args := []interface{}{reportID, string(op)}

	if filter.CellID != "" {
		conditions = append(conditions, "cell_id = ?")
		args = append(args, filter.CellID)
	}
	if filter.Type != nil {
		conditions = append(conditions, "type = ?")
		args = append(args, *filter.Type)
	}
	if filter.SyncState != "" {
		conditions = append(conditions, "sync_state = ?")
		args = append(args, filter.SyncState)
	}

	query := `SELECT ` + polygonColumns + ` FROM polygons WHERE ` +
		strings.Join(conditions, " AND ") + ` ORDER BY added_on, rowid`
	return r.query(query, args...)
}

// ListUnsynced returns every polygon not yet confirmed by the server
func (r *PolygonRepository) ListUnsynced() ([]*models.Polygon, error) {
	query := `SELECT ` + polygonColumns + ` FROM polygons
		WHERE sync_state <> ? ORDER BY added_on, rowid`
	return r.query(query, models.SyncSynced)
}

func (r *PolygonRepository) query(query string, args ...interface{}) ([]*models.Polygon, error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query polygons: %w", err)
	}
	defer rows.Close()

	var out []*models.Polygon
	for rows.Next() {
		p, err := scanPolygon(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan polygon: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func scanPolygon(row rowScanner) (*models.Polygon, error) {
	var p models.Polygon
	var paths, op string
	var typ int
	var addedOn int64
	err := row.Scan(
		&p.ID, &p.ServerID, &paths, &typ, &p.ReportID, &op, &p.CellID,
		&p.SyncState, &p.Attempts, &p.LastError, &p.AddedBy, &addedOn,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(paths), &p.Paths); err != nil {
		return nil, fmt.Errorf("invalid paths of polygon %s: %w", p.ID, err)
	}
	p.Type = models.PolygonType(typ)
	p.Operation = models.Operation(op)
	if addedOn > 0 {
		p.AddedOn = time.UnixMilli(addedOn).UTC()
	}
	return &p, nil
}
