package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jengzang/forestwatch-backend-go/internal/config"
	"github.com/jengzang/forestwatch-backend-go/internal/handler"
	"github.com/jengzang/forestwatch-backend-go/internal/middleware"
	"github.com/jengzang/forestwatch-backend-go/internal/service"
)

// SetupRouter builds the HTTP API around a workspace. Read routes are open;
// mutating routes require a token when cfg.JWTSecret is set and go through
// limiter.
func SetupRouter(cfg *config.Config, ws *service.Workspace, syncer *service.SyncService, limiter *middleware.RateLimiter) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), middleware.Logger())

	// CORS
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	})

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "ok",
			"message":   "Forest watch backend is running",
			"report":    ws.ReportID(),
			"operation": ws.Operation(),
		})
	})

	navHandler := handler.NewNavigationHandler(ws)
	cellHandler := handler.NewCellHandler(ws)
	tileHandler := handler.NewTileHandler(ws)
	editorHandler := handler.NewEditorHandler(ws)
	polygonHandler := handler.NewPolygonHandler(ws, syncer)

	api := r.Group("/api/v1")

	// Read only
	{
		api.GET("/session", navHandler.GetSession)
		api.GET("/cells", cellHandler.ListCached)
		api.GET("/cells/summary", cellHandler.Summary)
		api.GET("/cells/current/landsat", cellHandler.Landsat)
		api.GET("/cells/current/rgb/:r/:g/:b/sensor/:sensor", cellHandler.RGB)
		api.GET("/cells/:id", cellHandler.GetCell)
		api.GET("/cells/:id/children", cellHandler.GetChildren)
		api.GET("/grid/position/:id", cellHandler.GetPosition)
		api.GET("/grid/bounds/:id", cellHandler.GetBounds)
		api.GET("/grid/visible", cellHandler.Visible)
		api.GET("/grid/at", cellHandler.At)
		api.GET("/tiles/:z/:x/:y", tileHandler.GetTile)
		api.GET("/editor", editorHandler.GetState)
		api.GET("/polygons", polygonHandler.ListPolygons)
		api.GET("/polygons/stored", polygonHandler.ListStored)
		api.GET("/polygons/geojson", polygonHandler.GeoJSON)
		api.GET("/polygons/:id", polygonHandler.GetPolygon)
	}

	write := api.Group("")
	write.Use(middleware.Auth(cfg.JWTSecret))
	if limiter != nil {
		write.Use(middleware.RateLimit(limiter))
	}
	{
		nav := write.Group("/navigation")
		{
			nav.POST("/enter", navHandler.Enter)
			nav.POST("/sub", navHandler.EnterSub)
			nav.POST("/back", navHandler.Back)
			nav.POST("/retry", navHandler.Retry)
		}

		current := write.Group("/cells/current")
		{
			current.POST("/done", cellHandler.Done)
			current.PUT("/layers/:pane", cellHandler.SetLayers)
			current.PUT("/compare", cellHandler.SetCompare)
			current.PUT("/ndfi", cellHandler.SetNDFI)
			current.POST("/notes", cellHandler.AddNote)
		}

		tiles := write.Group("/tiles")
		{
			tiles.POST("/authorize", tileHandler.Authorize)
			tiles.POST("/load", tileHandler.Load)
			tiles.PUT("/thresholds", tileHandler.SetThresholds)
			tiles.PUT("/visibility", tileHandler.SetVisibility)
		}

		ed := write.Group("/editor")
		{
			ed.PUT("/state", editorHandler.SetState)
			ed.POST("/click", editorHandler.Click)
			ed.POST("/hover", editorHandler.Hover)
			ed.POST("/draw", editorHandler.Draw)
		}

		write.DELETE("/polygons/:id", polygonHandler.DeletePolygon)
		write.POST("/polygons/sync", polygonHandler.Sync)
	}

	return r
}
