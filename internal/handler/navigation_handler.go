package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/jengzang/forestwatch-backend-go/internal/grid"
	"github.com/jengzang/forestwatch-backend-go/internal/service"
	"github.com/jengzang/forestwatch-backend-go/pkg/response"
)

// NavigationHandler handles HTTP requests that move through the cell grid
type NavigationHandler struct {
	ws *service.Workspace
}

// NewNavigationHandler creates a new navigation handler
func NewNavigationHandler(ws *service.Workspace) *NavigationHandler {
	return &NavigationHandler{ws: ws}
}

type enterRequest struct {
	Z int `json:"z"`
	X int `json:"x"`
	Y int `json:"y"`
}

type subCellRequest struct {
	I int `json:"i"`
	J int `json:"j"`
}

// GetSession handles GET /api/v1/session
func (h *NavigationHandler) GetSession(c *gin.Context) {
	response.Success(c, h.ws.Session())
}

// Enter handles POST /api/v1/navigation/enter
func (h *NavigationHandler) Enter(c *gin.Context) {
	var req enterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request body", err)
		return
	}
	a := grid.Address{Z: req.Z, X: req.X, Y: req.Y}
	if !a.Valid() {
		response.BadRequest(c, "Invalid cell address", nil)
		return
	}
	if err := h.ws.Controller().EnterCell(c.Request.Context(), a); err != nil {
		fail(c, "Failed to enter cell", err)
		return
	}
	response.Success(c, h.ws.Session())
}

// EnterSub handles POST /api/v1/navigation/sub
func (h *NavigationHandler) EnterSub(c *gin.Context) {
	var req subCellRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request body", err)
		return
	}
	if req.I < 0 || req.J < 0 || req.I >= grid.Splits || req.J >= grid.Splits {
		response.BadRequest(c, "Sub-cell out of range", nil)
		return
	}
	if err := h.ws.Controller().EnterSubCell(c.Request.Context(), req.I, req.J); err != nil {
		fail(c, "Failed to enter sub-cell", err)
		return
	}
	response.Success(c, h.ws.Session())
}

// Back handles POST /api/v1/navigation/back
func (h *NavigationHandler) Back(c *gin.Context) {
	if err := h.ws.Controller().GoBack(c.Request.Context()); err != nil {
		fail(c, "Failed to go back", err)
		return
	}
	response.Success(c, h.ws.Session())
}

// Retry handles POST /api/v1/navigation/retry
func (h *NavigationHandler) Retry(c *gin.Context) {
	if err := h.ws.Controller().Retry(c.Request.Context()); err != nil {
		fail(c, "Retry failed", err)
		return
	}
	response.Success(c, h.ws.Session())
}
