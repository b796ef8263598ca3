package routes

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/OFFIS-RIT/netunion/pkg/export"
)

func GetSummarySchemaHandler(c echo.Context) error {
	return c.JSON(http.StatusOK, export.SummarySchema())
}
