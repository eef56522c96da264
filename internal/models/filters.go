package models

// PolygonFilter represents filter parameters for listing polygons
type PolygonFilter struct {
	CellID    string `form:"cell"`      // "{z}_{x}_{y}"
	Type      *int   `form:"type"`      // 0 degradation, 1 deforestation
	SyncState string `form:"syncState"` // pending, synced, unsynced
}

// CellFilter represents filter parameters for listing cached cells
type CellFilter struct {
	Z        *int  `form:"z"`
	Done     *bool `form:"done"`
	Changed  bool  `form:"changed"` // Only cells with analyst edits
	PageSize int   `form:"pageSize"`
}
