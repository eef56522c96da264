package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// PolygonType is the annotation class; values match the persisted integers
type PolygonType int

const (
	PolygonDegradation   PolygonType = 0
	PolygonDeforestation PolygonType = 1
)

func (t PolygonType) String() string {
	switch t {
	case PolygonDegradation:
		return "DEGRADATION"
	case PolygonDeforestation:
		return "DEFORESTATION"
	}
	return fmt.Sprintf("PolygonType(%d)", int(t))
}

// ParsePolytype maps the draw toolbar selector value ("def" / "deg") to a type
func ParsePolytype(s string) (PolygonType, error) {
	switch s {
	case "def", "DEFORESTATION", "1":
		return PolygonDeforestation, nil
	case "deg", "DEGRADATION", "0":
		return PolygonDegradation, nil
	}
	return 0, fmt.Errorf("unknown polygon type %q", s)
}

// Sync states of a locally created polygon
const (
	SyncPending  = "pending"
	SyncSynced   = "synced"
	SyncUnsynced = "unsynced"
)

// LatLng is a geographic coordinate, serialized as [lat, lng]
type LatLng struct {
	Lat float64
	Lng float64
}

// MarshalJSON encodes the point as a two element array
func (p LatLng) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]float64{p.Lat, p.Lng})
}

// UnmarshalJSON decodes a [lat, lng] array
func (p *LatLng) UnmarshalJSON(data []byte) error {
	var pair []float64
	if err := json.Unmarshal(data, &pair); err != nil {
		return err
	}
	if len(pair) != 2 {
		return fmt.Errorf("expected [lat, lng], got %d values", len(pair))
	}
	p.Lat, p.Lng = pair[0], pair[1]
	return nil
}

// Polygon is a user annotation. Paths[0] is the outer ring, the rest are holes.
type Polygon struct {
	ID       string      `json:"id" db:"id"`               // Local id
	ServerID string      `json:"server_id,omitempty" db:"server_id"`
	Paths    [][]LatLng  `json:"paths" db:"paths"`
	Type     PolygonType `json:"type" db:"type"`

	// Persistence routing
	ReportID  string    `json:"report_id" db:"report_id"`
	Operation Operation `json:"operation" db:"operation"`
	CellID    string    `json:"cell" db:"cell_id"`

	SyncState string    `json:"sync_state" db:"sync_state"`
	Attempts  int       `json:"attempts" db:"attempts"`
	LastError string    `json:"last_error,omitempty" db:"last_error"`
	AddedBy   string    `json:"added_by,omitempty" db:"added_by"`
	AddedOn   time.Time `json:"added_on" db:"added_on"`
}

// Validate checks the ring invariants of a polygon
func (p *Polygon) Validate() error {
	if len(p.Paths) == 0 {
		return fmt.Errorf("polygon has no rings")
	}
	for i, ring := range p.Paths {
		if len(ring) < 3 {
			return fmt.Errorf("ring %d has %d points, need at least 3", i, len(ring))
		}
	}
	if p.Type != PolygonDeforestation && p.Type != PolygonDegradation {
		return fmt.Errorf("invalid polygon type %d", int(p.Type))
	}
	return nil
}

// Clone returns a deep copy
func (p *Polygon) Clone() *Polygon {
	c := *p
	c.Paths = make([][]LatLng, len(p.Paths))
	for i, ring := range p.Paths {
		c.Paths[i] = append([]LatLng(nil), ring...)
	}
	return &c
}
