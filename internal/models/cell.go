package models

import (
	"fmt"
	"math"
	"time"
)

// NobodySentinel is the added_by value of cells no analyst has touched
const NobodySentinel = "Nobody"

// Compare view layouts of the work-mode map panes
const (
	CompareViewOne  = "one"
	CompareViewTwo  = "two"
	CompareViewFour = "four"
)

// Default per-pane layer status strings used for cells that have never been saved
const (
	DefaultMapOneLayerStatus = `"Brazil Legal Amazon","false","Brazil Municipalities Public","false","Brazil States Public","false",` +
		`"Brazil Federal Conservation Unit Public","false","Brazil State Conservation Unit Public","false",` +
		`"LANDSAT/LE7_L1T","false","LANDSAT/LC8_L1T","false","SMA","false","RGB","false","NDFI T0","false",` +
		`"NDFI T1","false","NDFI T0 (LANDSAT5)","false","NDFI T1 (LANDSAT5)","false","NDFI analysis","false",` +
		`"NDFI (LANDSAT5) analysis","true","True color RGB141","false","False color RGB421","false",` +
		`"F color infrared RGB214","false","Validated polygons","true",*`

	DefaultMapTwoLayerStatus = `"Brazil Legal Amazon","false","Brazil Municipalities Public","false","Brazil States Public","false",` +
		`"Brazil Federal Conservation Unit Public","false","Brazil State Conservation Unit Public","false",` +
		`"LANDSAT/LE7_L1T","false","LANDSAT/LC8_L1T","false","SMA","false","RGB","false","NDFI T0","false",` +
		`"NDFI T1","false","NDFI T0 (LANDSAT5)","true","NDFI T1 (LANDSAT5)","false","NDFI analysis","false",` +
		`"NDFI (LANDSAT5) analysis","true","True color RGB141","false","False color RGB421","false",` +
		`"F color infrared RGB214","false","Validated polygons","true",*`

	DefaultMapThreeLayerStatus = `"Brazil Legal Amazon","false","Brazil Municipalities Public","false","Brazil States Public","false",` +
		`"Brazil Federal Conservation Unit Public","false","Brazil State Conservation Unit Public","false",` +
		`"LANDSAT/LE7_L1T","false","LANDSAT/LC8_L1T","false","SMA","false","RGB","false","NDFI T0","false",` +
		`"NDFI T1","false","NDFI T0 (LANDSAT5)","false","NDFI T1 (LANDSAT5)","true","NDFI analysis","false",` +
		`"NDFI (LANDSAT5) analysis","true","True color RGB141","false","False color RGB421","false",` +
		`"F color infrared RGB214","false","Validated polygons","true",*`

	DefaultMapFourLayerStatus = `"Brazil Legal Amazon","false","Brazil Municipalities Public","false","Brazil States Public","false",` +
		`"Brazil Federal Conservation Unit Public","false","Brazil State Conservation Unit Public","false",` +
		`"Terrain","true","Satellite","false","Hybrid","false","Roadmap","false","LANDSAT/LE7_L1T","false",` +
		`"LANDSAT/LC8_L1T","true","NDFI T0","false","True color RGB141","false","False color RGB421","false",` +
		`"F color infrared RGB214","false",*`
)

// BlockedCells lists the level-1 cells that fall outside the monitored region
var BlockedCells = map[string]bool{
	"1_4_0": true,
	"1_0_4": true,
	"1_1_4": true,
	"1_4_4": true,
}

// Cell is one quadrant of the monitoring grid
type Cell struct {
	Z         int       `json:"z" db:"z"`
	X         int       `json:"x" db:"x"`
	Y         int       `json:"y" db:"y"`
	ReportID  string    `json:"report_id" db:"report_id"`
	Operation Operation `json:"operation" db:"operation"`

	Done    bool `json:"done" db:"done"`
	Blocked bool `json:"blocked" db:"blocked"`

	// Last human edit
	LatestChange int64  `json:"latest_change" db:"latest_change"` // Unix ms, 0 if never
	AddedBy      string `json:"added_by" db:"added_by"`

	// NDFI monitoring metrics
	NDFIChange float64 `json:"ndfi_change_value" db:"ndfi_change_value"`
	NDFILow    float64 `json:"ndfi_low" db:"ndfi_low"`
	NDFIHigh   float64 `json:"ndfi_high" db:"ndfi_high"`

	CompareView string `json:"compare_view" db:"compare_view"`

	// Serialized layer visibility per map pane
	MapOneLayerStatus   string `json:"map_one_layer_status" db:"map_one_layer_status"`
	MapTwoLayerStatus   string `json:"map_two_layer_status" db:"map_two_layer_status"`
	MapThreeLayerStatus string `json:"map_three_layer_status" db:"map_three_layer_status"`
	MapFourLayerStatus  string `json:"map_four_layer_status" db:"map_four_layer_status"`

	NoteCount    int `json:"note_count" db:"note_count"`
	PolygonCount int `json:"polygon_count" db:"polygon_count"`
	ChildrenDone int `json:"children_done" db:"children_done"`

	// Loaded is false for placeholders created before the record was fetched
	Loaded    bool      `json:"-" db:"loaded"`
	UpdatedAt time.Time `json:"-" db:"updated_at"`
}

// NewPlaceholderCell returns the record used before the server copy is known
func NewPlaceholderCell(reportID string, op Operation, z, x, y int) *Cell {
	c := &Cell{
		Z:                   z,
		X:                   x,
		Y:                   y,
		ReportID:            reportID,
		Operation:           op,
		AddedBy:             NobodySentinel,
		NDFILow:             0.2,
		NDFIHigh:            0.3,
		CompareView:         CompareViewFour,
		MapOneLayerStatus:   DefaultMapOneLayerStatus,
		MapTwoLayerStatus:   DefaultMapTwoLayerStatus,
		MapThreeLayerStatus: DefaultMapThreeLayerStatus,
		MapFourLayerStatus:  DefaultMapFourLayerStatus,
	}
	c.Blocked = BlockedCells[c.ID()]
	return c
}

// ID returns the external cell id "{z}_{x}_{y}"
func (c *Cell) ID() string {
	return fmt.Sprintf("%d_%d_%d", c.Z, c.X, c.Y)
}

// HasChanges reports whether an analyst has edited the cell
func (c *Cell) HasChanges() bool {
	return c.LatestChange > 0 && c.AddedBy != NobodySentinel
}

// FillLayerDefaults replaces empty layer statuses with the pane defaults
func (c *Cell) FillLayerDefaults() {
	if c.MapOneLayerStatus == "" {
		c.MapOneLayerStatus = DefaultMapOneLayerStatus
	}
	if c.MapTwoLayerStatus == "" {
		c.MapTwoLayerStatus = DefaultMapTwoLayerStatus
	}
	if c.MapThreeLayerStatus == "" {
		c.MapThreeLayerStatus = DefaultMapThreeLayerStatus
	}
	if c.MapFourLayerStatus == "" {
		c.MapFourLayerStatus = DefaultMapFourLayerStatus
	}
}

// LayerStatus returns the serialized layer status of a map pane (1..4)
func (c *Cell) LayerStatus(pane int) (string, error) {
	switch pane {
	case 1:
		return c.MapOneLayerStatus, nil
	case 2:
		return c.MapTwoLayerStatus, nil
	case 3:
		return c.MapThreeLayerStatus, nil
	case 4:
		return c.MapFourLayerStatus, nil
	}
	return "", fmt.Errorf("invalid map pane %d", pane)
}

// SetLayerStatus stores the serialized layer status of a map pane (1..4)
func (c *Cell) SetLayerStatus(pane int, status string) error {
	switch pane {
	case 1:
		c.MapOneLayerStatus = status
	case 2:
		c.MapTwoLayerStatus = status
	case 3:
		c.MapThreeLayerStatus = status
	case 4:
		c.MapFourLayerStatus = status
	default:
		return fmt.Errorf("invalid map pane %d", pane)
	}
	return nil
}

// RGBA is a display color with alpha in 0..1
type RGBA struct {
	R, G, B int
	A       float64
}

// DisplayColor returns the overview fill for a cell based on its NDFI change.
// Blocked cells are painted black.
func (c *Cell) DisplayColor() RGBA {
	if c.Blocked {
		return RGBA{A: 0.8}
	}
	t := 1 - math.Min(1, c.NDFIChange)
	lerp := func(a, b float64) int {
		return int(a + t*(b-a))
	}
	return RGBA{R: lerp(225, 150), G: lerp(125, 150), B: lerp(40, 150), A: 0.8}
}
