package repository

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/jengzang/forestwatch-backend-go/internal/models"
)

const cellColumns = `report_id, operation, z, x, y, done, blocked, latest_change, added_by,
	ndfi_change_value, ndfi_low, ndfi_high, compare_view,
	map_one_layer_status, map_two_layer_status, map_three_layer_status, map_four_layer_status,
	note_count, polygon_count, children_done`

// CellRepository keeps the local copy of cell records
type CellRepository struct {
	db *sql.DB
}

// NewCellRepository creates a new cell repository
func NewCellRepository(db *sql.DB) *CellRepository {
	return &CellRepository{db: db}
}

// UpsertCell inserts or replaces a cell record
func (r *CellRepository) UpsertCell(c *models.Cell) error {
	query := `INSERT INTO cells (` + cellColumns + `, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(report_id, operation, z, x, y) DO UPDATE SET
			done = excluded.done,
			blocked = excluded.blocked,
			latest_change = excluded.latest_change,
			added_by = excluded.added_by,
			ndfi_change_value = excluded.ndfi_change_value,
			ndfi_low = excluded.ndfi_low,
			ndfi_high = excluded.ndfi_high,
			compare_view = excluded.compare_view,
			map_one_layer_status = excluded.map_one_layer_status,
			map_two_layer_status = excluded.map_two_layer_status,
			map_three_layer_status = excluded.map_three_layer_status,
			map_four_layer_status = excluded.map_four_layer_status,
			note_count = excluded.note_count,
			polygon_count = excluded.polygon_count,
			children_done = excluded.children_done,
			updated_at = CURRENT_TIMESTAMP`

	row := *c
	row.FillLayerDefaults()
	_, err := r.db.Exec(query,
		row.ReportID, string(row.Operation), row.Z, row.X, row.Y,
		row.Done, row.Blocked, row.LatestChange, row.AddedBy,
		row.NDFIChange, row.NDFILow, row.NDFIHigh, row.CompareView,
		row.MapOneLayerStatus, row.MapTwoLayerStatus, row.MapThreeLayerStatus, row.MapFourLayerStatus,
		row.NoteCount, row.PolygonCount, row.ChildrenDone,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert cell %s: %w", c.ID(), err)
	}
	return nil
}

// GetCell retrieves a cached cell, or nil when it has never been stored
func (r *CellRepository) GetCell(reportID string, op models.Operation, z, x, y int) (*models.Cell, error) {
	query := `SELECT ` + cellColumns + ` FROM cells
		WHERE report_id = ? AND operation = ? AND z = ? AND x = ? AND y = ?`

	c, err := scanCell(r.db.QueryRow(query, reportID, string(op), z, x, y))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cell: %w", err)
	}
	return c, nil
}

// ListCells returns cached cells of a report ordered by zoom and position
func (r *CellRepository) ListCells(reportID string, op models.Operation, filter models.CellFilter) ([]*models.Cell, error) {
	query := `SELECT ` + cellColumns + ` FROM cells`

	conditions := []string{"report_id = ?", "operation = ?"}
	args := []interface{}{reportID, string(op)}

	if filter.Z != nil {
		conditions = append(conditions, "z = ?")
		args = append(args, *filter.Z)
	}
	if filter.Done != nil {
		conditions = append(conditions, "done = ?")
		args = append(args, *filter.Done)
	}
	if filter.Changed {
		conditions = append(conditions, "latest_change > 0", "added_by <> ?")
		args = append(args, models.NobodySentinel)
	}

	query += " WHERE " + strings.Join(conditions, " AND ")
	query += " ORDER BY z, x, y"

	pageSize := filter.PageSize
	if pageSize <= 0 || pageSize > 1000 {
		pageSize = 1000
	}
	query += " LIMIT ?"
	args = append(args, pageSize)

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query cells: %w", err)
	}
	defer rows.Close()

	var cells []*models.Cell
	for rows.Next() {
		c, err := scanCell(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan cell: %w", err)
		}
		cells = append(cells, c)
	}
	return cells, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCell(row rowScanner) (*models.Cell, error) {
	var c models.Cell
	var op string
	err := row.Scan(
		&c.ReportID, &op, &c.Z, &c.X, &c.Y,
		&c.Done, &c.Blocked, &c.LatestChange, &c.AddedBy,
		&c.NDFIChange, &c.NDFILow, &c.NDFIHigh, &c.CompareView,
		&c.MapOneLayerStatus, &c.MapTwoLayerStatus, &c.MapThreeLayerStatus, &c.MapFourLayerStatus,
		&c.NoteCount, &c.PolygonCount, &c.ChildrenDone,
	)
	if err != nil {
		return nil, err
	}
	c.Operation = models.Operation(op)
	c.Loaded = true
	return &c, nil
}
