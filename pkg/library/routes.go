package library

import (
	"github.com/labstack/echo/v4"
)

func RegisterRoutes(e *echo.Echo, svc *Service) {
	h := &handler{libraryService: svc}

	manga := e.Group("/manga")
	manga.GET("", h.listManga)
	manga.POST("", h.createManga)
	manga.GET("/:id", h.retrieveManga)
	manga.PATCH("/:id", h.updateManga)
	manga.DELETE("/:id", h.deleteManga)
	manga.GET("/:id/volumes", h.mangaVolumes)

	volumes := e.Group("/volumes")
	volumes.GET("/:id", h.retrieveVolume)
	volumes.PATCH("/:id", h.updateVolume)
	volumes.DELETE("/:id", h.deleteVolume)
	volumes.POST("/:id/move", h.moveVolume)
	volumes.GET("/:id/pages", h.volumePages)

	e.POST("/pages/:id/read", h.markPageRead)
}
