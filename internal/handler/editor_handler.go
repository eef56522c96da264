package handler

import (
	"image"

	"github.com/gin-gonic/gin"

	"github.com/jengzang/forestwatch-backend-go/internal/editor"
	"github.com/jengzang/forestwatch-backend-go/internal/models"
	"github.com/jengzang/forestwatch-backend-go/internal/service"
	"github.com/jengzang/forestwatch-backend-go/internal/spatial"
	"github.com/jengzang/forestwatch-backend-go/internal/tiles"
	"github.com/jengzang/forestwatch-backend-go/pkg/response"
)

// EditorHandler handles HTTP requests driving the polygon editor
type EditorHandler struct {
	ws *service.Workspace
}

// NewEditorHandler creates a new editor handler
func NewEditorHandler(ws *service.Workspace) *EditorHandler {
	return &EditorHandler{ws: ws}
}

type stateRequest struct {
	State    string `json:"state" binding:"required"`
	Polytype string `json:"polytype"`
}

// pointRequest locates the pointer either geographically or as a pixel
// inside a tile
type pointRequest struct {
	Lat  *float64     `json:"lat"`
	Lng  *float64     `json:"lng"`
	PX   int          `json:"px"`
	PY   int          `json:"py"`
	Tile *tileRequest `json:"tile"`
}

func (r pointRequest) point() (spatial.Point, bool) {
	if r.Lat != nil && r.Lng != nil {
		return spatial.Point{Lat: *r.Lat, Lon: *r.Lng}, true
	}
	if r.Tile != nil {
		c := tiles.Coord{X: r.Tile.X, Y: r.Tile.Y, Z: r.Tile.Z}
		return tiles.TilePoint(c, image.Pt(r.PX, r.PY)), true
	}
	return spatial.Point{}, false
}

type drawRequest struct {
	Paths    [][]models.LatLng `json:"paths" binding:"required"`
	Polytype string            `json:"polytype"`
}

type editorState struct {
	State   editor.State  `json:"state"`
	Cursor  editor.Cursor `json:"cursor"`
	Hovered string        `json:"hovered,omitempty"`
	Saving  int           `json:"saving"`
}

func (h *EditorHandler) current() editorState {
	ed := h.ws.Editor()
	return editorState{
		State:   ed.State(),
		Cursor:  ed.Cursor(),
		Hovered: ed.Hovered(),
		Saving:  ed.Saving(),
	}
}

// GetState handles GET /api/v1/editor
func (h *EditorHandler) GetState(c *gin.Context) {
	response.Success(c, h.current())
}

// SetState handles PUT /api/v1/editor/state
func (h *EditorHandler) SetState(c *gin.Context) {
	var req stateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request body", err)
		return
	}
	state, err := editor.ParseState(req.State)
	if err != nil {
		response.BadRequest(c, "Invalid state", err)
		return
	}
	if req.Polytype != "" {
		t, err := models.ParsePolytype(req.Polytype)
		if err != nil {
			response.BadRequest(c, "Invalid polytype", err)
			return
		}
		h.ws.Editor().SetPolytype(t)
	}
	if err := h.ws.Editor().SetState(state); err != nil {
		fail(c, "Failed to change editing state", err)
		return
	}
	response.Success(c, h.current())
}

// Click handles POST /api/v1/editor/click
func (h *EditorHandler) Click(c *gin.Context) {
	var req pointRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request body", err)
		return
	}
	pt, ok := req.point()
	if !ok {
		response.BadRequest(c, "lat/lng or tile pixel is required", nil)
		return
	}
	res, err := h.ws.Editor().Click(pt)
	if err != nil {
		fail(c, "Click ignored", err)
		return
	}
	response.Success(c, res)
}

// Hover handles POST /api/v1/editor/hover
func (h *EditorHandler) Hover(c *gin.Context) {
	var req pointRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request body", err)
		return
	}
	pt, ok := req.point()
	if !ok {
		response.BadRequest(c, "lat/lng or tile pixel is required", nil)
		return
	}
	h.ws.Editor().Hover(pt)
	response.Success(c, h.current())
}

// Draw handles POST /api/v1/editor/draw
func (h *EditorHandler) Draw(c *gin.Context) {
	var req drawRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request body", err)
		return
	}
	var polytype *models.PolygonType
	if req.Polytype != "" {
		t, err := models.ParsePolytype(req.Polytype)
		if err != nil {
			response.BadRequest(c, "Invalid polytype", err)
			return
		}
		polytype = &t
	}
	if err := h.ws.Editor().CompleteDraw(req.Paths, polytype); err != nil {
		fail(c, "Failed to complete drawing", err)
		return
	}
	response.Accepted(c, h.current())
}
