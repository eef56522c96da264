package handler

import (
	"bytes"
	"errors"
	"image/png"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/jengzang/forestwatch-backend-go/internal/models"
	"github.com/jengzang/forestwatch-backend-go/internal/service"
	"github.com/jengzang/forestwatch-backend-go/internal/tiles"
	"github.com/jengzang/forestwatch-backend-go/pkg/response"
)

// TileHandler handles HTTP requests for the classification overlay
type TileHandler struct {
	ws *service.Workspace
}

// NewTileHandler creates a new tile handler
func NewTileHandler(ws *service.Workspace) *TileHandler {
	return &TileHandler{ws: ws}
}

// authorizeRequest carries either explicit credentials or sensor names to
// resolve through the report server
type authorizeRequest struct {
	MapID      string                    `json:"mapid"`
	Token      string                    `json:"token"`
	Aux        map[string]models.MapAuth `json:"aux"`
	Sensor     string                    `json:"sensor"`
	AuxSensors map[string]string         `json:"aux_sensors"`
}

type tileRequest struct {
	X int `json:"x"`
	Y int `json:"y"`
	Z int `json:"z"`
}

// Authorize handles POST /api/v1/tiles/authorize
func (h *TileHandler) Authorize(c *gin.Context) {
	var req authorizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request body", err)
		return
	}

	var err error
	switch {
	case req.MapID != "":
		err = h.ws.Authorize(models.MapAuth{MapID: req.MapID, Token: req.Token}, req.Aux)
		if err != nil {
			response.BadRequest(c, "Invalid credentials", err)
			return
		}
	case req.Sensor != "":
		err = h.ws.AuthorizeSensors(c.Request.Context(), req.Sensor, req.AuxSensors)
		if err != nil {
			fail(c, "Failed to authorize overlay", err)
			return
		}
	default:
		response.BadRequest(c, "mapid or sensor is required", nil)
		return
	}
	response.Success(c, h.ws.Session())
}

// Load handles POST /api/v1/tiles/load
func (h *TileHandler) Load(c *gin.Context) {
	var req tileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request body", err)
		return
	}
	coord := tiles.Coord{X: req.X, Y: req.Y, Z: req.Z}
	if _, err := h.ws.LoadTile(c.Request.Context(), coord); err != nil {
		fail(c, "Failed to load tile", err)
		return
	}
	response.Success(c, gin.H{
		"tile":    coord.Key(),
		"loading": h.ws.Layer().Loading(),
	})
}

// GetTile handles GET /api/v1/tiles/:z/:x/:y.png
func (h *TileHandler) GetTile(c *gin.Context) {
	z, errZ := strconv.Atoi(c.Param("z"))
	x, errX := strconv.Atoi(c.Param("x"))
	y, errY := strconv.Atoi(strings.TrimSuffix(c.Param("y"), ".png"))
	if err := errors.Join(errZ, errX, errY); err != nil {
		response.BadRequest(c, "Invalid tile coordinates", err)
		return
	}

	img, ok := h.ws.Layer().Composed(tiles.Coord{X: x, Y: y, Z: z})
	if !ok {
		response.NotFound(c, "Tile not loaded")
		return
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		response.InternalError(c, "Failed to encode tile", err)
		return
	}
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, "image/png", buf.Bytes())
}

// SetThresholds handles PUT /api/v1/tiles/thresholds. Omitted fields keep
// their current value.
func (h *TileHandler) SetThresholds(c *gin.Context) {
	th := h.ws.Layer().Thresholds()
	if err := c.ShouldBindJSON(&th); err != nil {
		response.BadRequest(c, "Invalid request body", err)
		return
	}
	if err := h.ws.SetThresholds(th); err != nil {
		fail(c, "Failed to apply thresholds", err)
		return
	}
	response.Success(c, h.ws.Layer().Thresholds())
}

// SetVisibility handles PUT /api/v1/tiles/visibility with a body such as
// {"forest": false}
func (h *TileHandler) SetVisibility(c *gin.Context) {
	var req map[string]bool
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request body", err)
		return
	}
	vis := h.ws.Layer().Visibility()
	for class, on := range req {
		if err := vis.Set(class, on); err != nil {
			response.BadRequest(c, "Invalid class", err)
			return
		}
	}
	if err := h.ws.SetVisibility(vis); err != nil {
		fail(c, "Failed to apply visibility", err)
		return
	}
	response.Success(c, vis)
}
