package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jengzang/forestwatch-backend-go/internal/models"
	"github.com/jengzang/forestwatch-backend-go/internal/polygons"
	"github.com/jengzang/forestwatch-backend-go/internal/service"
	"github.com/jengzang/forestwatch-backend-go/pkg/response"
)

// PolygonHandler handles HTTP requests for annotated polygons
type PolygonHandler struct {
	ws   *service.Workspace
	sync *service.SyncService
}

// NewPolygonHandler creates a new polygon handler
func NewPolygonHandler(ws *service.Workspace, sync *service.SyncService) *PolygonHandler {
	return &PolygonHandler{ws: ws, sync: sync}
}

type polygonView struct {
	*models.Polygon
	AreaHa float64 `json:"area_ha"`
}

func views(polys []*models.Polygon) []polygonView {
	out := make([]polygonView, 0, len(polys))
	for _, p := range polys {
		out = append(out, polygonView{Polygon: p, AreaHa: polygons.AreaHa(p)})
	}
	return out
}

// ListPolygons handles GET /api/v1/polygons
// Lists the polygons of the open work cell
func (h *PolygonHandler) ListPolygons(c *gin.Context) {
	var filter models.PolygonFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		response.BadRequest(c, "Invalid query parameters", err)
		return
	}
	response.Success(c, views(h.ws.Editor().Collection().List(filter)))
}

// ListStored handles GET /api/v1/polygons/stored
// Lists polygons from the local table, including cells no longer open
func (h *PolygonHandler) ListStored(c *gin.Context) {
	var filter models.PolygonFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		response.BadRequest(c, "Invalid query parameters", err)
		return
	}
	polys, err := h.ws.StoredPolygons(filter)
	if err != nil {
		response.InternalError(c, "Failed to list polygons", err)
		return
	}
	response.Success(c, views(polys))
}

// GeoJSON handles GET /api/v1/polygons/geojson
func (h *PolygonHandler) GeoJSON(c *gin.Context) {
	var filter models.PolygonFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		response.BadRequest(c, "Invalid query parameters", err)
		return
	}
	fc := polygons.FeatureCollection(h.ws.Editor().Collection().List(filter))
	c.JSON(http.StatusOK, fc)
}

// GetPolygon handles GET /api/v1/polygons/:id
func (h *PolygonHandler) GetPolygon(c *gin.Context) {
	p, ok := h.ws.Editor().Collection().Get(c.Param("id"))
	if !ok {
		response.NotFound(c, "Polygon not found")
		return
	}
	response.Success(c, polygonView{Polygon: p, AreaHa: polygons.AreaHa(p)})
}

// DeletePolygon handles DELETE /api/v1/polygons/:id
func (h *PolygonHandler) DeletePolygon(c *gin.Context) {
	if !h.ws.Editor().Remove(c.Param("id")) {
		response.NotFound(c, "Polygon not found")
		return
	}
	response.Accepted(c, gin.H{"id": c.Param("id")})
}

// Sync handles POST /api/v1/polygons/sync
func (h *PolygonHandler) Sync(c *gin.Context) {
	report, err := h.sync.SyncNow(c.Request.Context())
	if err != nil {
		response.InternalError(c, "Sync failed", err)
		return
	}
	response.Success(c, report)
}
