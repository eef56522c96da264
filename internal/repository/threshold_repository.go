package repository

import (
	"database/sql"
	"fmt"

	"github.com/jengzang/forestwatch-backend-go/internal/models"
)

// ThresholdRepository stores the last threshold set applied per operation
type ThresholdRepository struct {
	db *sql.DB
}

// NewThresholdRepository creates a new threshold repository
func NewThresholdRepository(db *sql.DB) *ThresholdRepository {
	return &ThresholdRepository{db: db}
}

// Save inserts or replaces a profile
func (r *ThresholdRepository) Save(p *models.ThresholdProfile) error {
	query := `INSERT INTO threshold_profiles (report_id, operation, params_json, visibility_json, updated_at)
		VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(report_id, operation) DO UPDATE SET
			params_json = excluded.params_json,
			visibility_json = excluded.visibility_json,
			updated_at = CURRENT_TIMESTAMP`

	if _, err := r.db.Exec(query, p.ReportID, string(p.Operation), p.ParamsJSON, p.VisibilityJSON); err != nil {
		return fmt.Errorf("failed to save threshold profile: %w", err)
	}
	return nil
}

// Get retrieves the profile of an operation, or nil when none was saved
func (r *ThresholdRepository) Get(reportID string, op models.Operation) (*models.ThresholdProfile, error) {
	query := `SELECT report_id, operation, params_json, visibility_json
		FROM threshold_profiles WHERE report_id = ? AND operation = ?`

	var p models.ThresholdProfile
	var opName string
	err := r.db.QueryRow(query, reportID, string(op)).Scan(&p.ReportID, &opName, &p.ParamsJSON, &p.VisibilityJSON)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get threshold profile: %w", err)
	}
	p.Operation = models.Operation(opName)
	return &p, nil
}
