package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/jengzang/forestwatch-backend-go/internal/grid"
	"github.com/jengzang/forestwatch-backend-go/internal/models"
	"github.com/jengzang/forestwatch-backend-go/internal/service"
	"github.com/jengzang/forestwatch-backend-go/internal/spatial"
	"github.com/jengzang/forestwatch-backend-go/internal/stats"
	"github.com/jengzang/forestwatch-backend-go/pkg/response"
)

// CellHandler handles HTTP requests for cell records and the work cell
type CellHandler struct {
	ws *service.Workspace
}

// NewCellHandler creates a new cell handler
func NewCellHandler(ws *service.Workspace) *CellHandler {
	return &CellHandler{ws: ws}
}

type doneRequest struct {
	Done *bool `json:"done"`
}

type layerStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

type compareRequest struct {
	View string `json:"view" binding:"required"`
}

type ndfiRequest struct {
	Low  float64 `json:"low"`
	High float64 `json:"high"`
}

type viewportQuery struct {
	Z     int      `form:"z" binding:"min=0,max=2"`
	South *float64 `form:"south" binding:"required"`
	West  *float64 `form:"west" binding:"required"`
	North *float64 `form:"north" binding:"required"`
	East  *float64 `form:"east" binding:"required"`
}

type pointQuery struct {
	Lat *float64 `form:"lat" binding:"required"`
	Lng *float64 `form:"lng" binding:"required"`
	Z   int      `form:"z" binding:"min=0,max=2"`
}

type noteRequest struct {
	Msg string `json:"msg" binding:"required"`
}

func parseAddress(c *gin.Context) (grid.Address, bool) {
	a, err := grid.ParseID(c.Param("id"))
	if err != nil || !a.Valid() {
		response.BadRequest(c, "Invalid cell id", err)
		return grid.Address{}, false
	}
	return a, true
}

// ListCached handles GET /api/v1/cells
// Lists the records cached locally, filtered by zoom, done and changed
func (h *CellHandler) ListCached(c *gin.Context) {
	var filter models.CellFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		response.BadRequest(c, "Invalid query parameters", err)
		return
	}
	cells, err := h.ws.CachedCells(filter)
	if err != nil {
		response.InternalError(c, "Failed to list cells", err)
		return
	}
	response.Success(c, gin.H{
		"data":  cells,
		"count": len(cells),
	})
}

// Summary handles GET /api/v1/cells/summary
// Aggregates review progress over the cached cells
func (h *CellHandler) Summary(c *gin.Context) {
	var filter models.CellFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		response.BadRequest(c, "Invalid query parameters", err)
		return
	}
	cells, err := h.ws.CachedCells(filter)
	if err != nil {
		response.InternalError(c, "Failed to summarize cells", err)
		return
	}
	response.Success(c, stats.Summarize(cells))
}

// GetCell handles GET /api/v1/cells/:id
func (h *CellHandler) GetCell(c *gin.Context) {
	a, ok := parseAddress(c)
	if !ok {
		return
	}
	cell, err := h.ws.Controller().Tree().Fetch(c.Request.Context(), a)
	if err != nil {
		fail(c, "Failed to get cell", err)
		return
	}
	response.Success(c, gin.H{
		"cell":   cell,
		"color":  cell.DisplayColor(),
		"bounds": h.ws.Controller().Index().CellBounds(a.X, a.Y, a.Z),
	})
}

// GetChildren handles GET /api/v1/cells/:id/children
func (h *CellHandler) GetChildren(c *gin.Context) {
	a, ok := parseAddress(c)
	if !ok {
		return
	}
	if a.Z >= grid.WorkingZoom {
		response.BadRequest(c, "Work cells have no children", nil)
		return
	}
	children, err := h.ws.Controller().Tree().FetchChildren(c.Request.Context(), a)
	if err != nil {
		fail(c, "Failed to get children", err)
		return
	}
	response.Success(c, gin.H{
		"data":  children,
		"count": len(children),
	})
}

// Done handles POST /api/v1/cells/current/done
func (h *CellHandler) Done(c *gin.Context) {
	var req doneRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, "Invalid request body", err)
			return
		}
	}
	done := true
	if req.Done != nil {
		done = *req.Done
	}
	if err := h.ws.Controller().CellDone(c.Request.Context(), done); err != nil {
		fail(c, "Failed to mark cell done", err)
		return
	}
	response.Success(c, h.ws.Session())
}

// SetLayers handles PUT /api/v1/cells/current/layers/:pane
func (h *CellHandler) SetLayers(c *gin.Context) {
	pane, err := strconv.Atoi(c.Param("pane"))
	if err != nil {
		response.BadRequest(c, "Invalid map pane", err)
		return
	}
	var req layerStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request body", err)
		return
	}
	cell, err := h.ws.SetLayerStatus(c.Request.Context(), pane, req.Status)
	if err != nil {
		fail(c, "Failed to save layer status", err)
		return
	}
	response.Success(c, cell)
}

// SetCompare handles PUT /api/v1/cells/current/compare
func (h *CellHandler) SetCompare(c *gin.Context) {
	var req compareRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request body", err)
		return
	}
	cell, err := h.ws.SetCompareView(c.Request.Context(), req.View)
	if err != nil {
		fail(c, "Failed to save compare view", err)
		return
	}
	response.Success(c, cell)
}

// SetNDFI handles PUT /api/v1/cells/current/ndfi
func (h *CellHandler) SetNDFI(c *gin.Context) {
	var req ndfiRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request body", err)
		return
	}
	cell, err := h.ws.SetNDFIRange(c.Request.Context(), req.Low, req.High)
	if err != nil {
		fail(c, "Failed to save ndfi range", err)
		return
	}
	response.Success(c, cell)
}

// AddNote handles POST /api/v1/cells/current/notes
func (h *CellHandler) AddNote(c *gin.Context) {
	var req noteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request body", err)
		return
	}
	note, err := h.ws.AddNote(c.Request.Context(), req.Msg)
	if err != nil {
		fail(c, "Failed to add note", err)
		return
	}
	response.Success(c, note)
}

// Landsat handles GET /api/v1/cells/current/landsat
func (h *CellHandler) Landsat(c *gin.Context) {
	info, err := h.ws.Landsat(c.Request.Context())
	if err != nil {
		fail(c, "Failed to get landsat info", err)
		return
	}
	response.Success(c, info)
}

// RGB handles GET /api/v1/cells/current/rgb/:r/:g/:b/sensor/:sensor
func (h *CellHandler) RGB(c *gin.Context) {
	var bands [3]int
	for i, name := range []string{"r", "g", "b"} {
		v, err := strconv.Atoi(c.Param(name))
		if err != nil || v < 0 {
			response.BadRequest(c, "Invalid band "+name, err)
			return
		}
		bands[i] = v
	}
	auth, err := h.ws.RGBAuth(c.Request.Context(), bands[0], bands[1], bands[2], c.Param("sensor"))
	if err != nil {
		fail(c, "Failed to get rgb map", err)
		return
	}
	response.Success(c, auth)
}

// GetPosition handles GET /api/v1/grid/position/:id
func (h *CellHandler) GetPosition(c *gin.Context) {
	a, ok := parseAddress(c)
	if !ok {
		return
	}
	response.Success(c, h.ws.Controller().Index().CellPosition(a.X, a.Y, a.Z))
}

// GetBounds handles GET /api/v1/grid/bounds/:id
func (h *CellHandler) GetBounds(c *gin.Context) {
	a, ok := parseAddress(c)
	if !ok {
		return
	}
	bounds := h.ws.Controller().Index().CellBounds(a.X, a.Y, a.Z)
	response.Success(c, gin.H{
		"bounds":       bounds,
		"visible_zone": grid.VisibleZone(bounds),
		"map_zoom":     grid.MapZoom(a.Z),
	})
}

// Visible handles GET /api/v1/grid/visible
// Lists the level-z cells intersecting a map viewport, with the color of
// those already loaded
func (h *CellHandler) Visible(c *gin.Context) {
	var q viewportQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.BadRequest(c, "Invalid viewport", err)
		return
	}
	viewport := spatial.Bounds{
		SW: spatial.Point{Lat: *q.South, Lon: *q.West},
		NE: spatial.Point{Lat: *q.North, Lon: *q.East},
	}
	index := h.ws.Controller().Index()
	tree := h.ws.Controller().Tree()

	addrs := index.VisibleCellsIn(viewport, q.Z)
	cells := make([]gin.H, 0, len(addrs))
	for _, a := range addrs {
		item := gin.H{
			"id":       a.ID(),
			"address":  a,
			"position": index.CellPosition(a.X, a.Y, a.Z),
		}
		if cached, ok := tree.Lookup(a); ok && cached.Loaded {
			item["color"] = cached.DisplayColor()
		}
		cells = append(cells, item)
	}
	response.Success(c, gin.H{
		"data":  cells,
		"count": len(cells),
	})
}

// At handles GET /api/v1/grid/at
// Resolves the level-z cell under a map click
func (h *CellHandler) At(c *gin.Context) {
	var q pointQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.BadRequest(c, "Invalid point", err)
		return
	}
	index := h.ws.Controller().Index()
	a, ok := index.CellAt(spatial.Point{Lat: *q.Lat, Lon: *q.Lng}, q.Z)
	if !ok {
		response.NotFound(c, "Point is outside the grid")
		return
	}
	response.Success(c, gin.H{
		"id":      a.ID(),
		"address": a,
		"bounds":  index.CellBounds(a.X, a.Y, a.Z),
	})
}
