package ingest

import (
	"github.com/labstack/echo/v4"
)

func RegisterRoutes(e *echo.Echo, gate *Gate) {
	h := &handler{gate: gate}

	e.POST("/volumes/upload", h.upload)
	e.GET("/volumes/:id/processing", h.processingStatus)
}
