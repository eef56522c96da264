package models

import "time"

// ThresholdProfile is the last threshold set an analyst applied to an operation
type ThresholdProfile struct {
	ReportID  string    `json:"report_id" db:"report_id"`
	Operation Operation `json:"operation" db:"operation"`

	// Parameters (JSON)
	ParamsJSON     string `json:"params_json" db:"params_json"`         // classify.Thresholds
	VisibilityJSON string `json:"visibility_json" db:"visibility_json"` // classify.LayerVisibility

	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}
