package server

import (
	"github.com/labstack/echo/v4"

	"github.com/OFFIS-RIT/netunion/internal/server/middleware"
	"github.com/OFFIS-RIT/netunion/internal/server/routes"
)

func RegisterRoutes(e *echo.Echo) {
	// Health check route
	e.GET("/health", func(c echo.Context) error {
		return c.String(200, "OK")
	})

	apiRoutes := e.Group("/api", middleware.AuthMiddleware)

	// Run routes
	apiRoutes.POST("/runs", routes.CreateRunHandler, middleware.RequirePermission(middleware.PermRunCreate))
	apiRoutes.GET("/runs", routes.GetRunsHandler, middleware.RequirePermission(middleware.PermRunView))
	apiRoutes.GET("/runs/:id", routes.GetRunHandler, middleware.RequirePermission(middleware.PermRunView))
	apiRoutes.GET("/runs/:id/ranked", routes.GetRankedNodesHandler, middleware.RequirePermission(middleware.PermRunView))
	apiRoutes.GET("/runs/:id/artifacts", routes.GetRunArtifactsHandler, middleware.RequirePermission(middleware.PermRunView))
	apiRoutes.DELETE("/runs/:id", routes.DeleteRunHandler, middleware.RequirePermission(middleware.PermRunDelete))

	apiRoutes.GET("/schema/summary", routes.GetSummarySchemaHandler)
}
