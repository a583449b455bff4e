package structure

import (
	"github.com/labstack/echo/v4"
)

func RegisterRoutes(e *echo.Echo, structureService *Service) {
	h := &handler{
		structureService: structureService,
	}

	e.GET("/library/folders", h.list)
	e.POST("/library/folders", h.addFolder)
	e.DELETE("/library/folders", h.removeFolder)
	e.POST("/library/folders/name", h.renameFolder)
	e.POST("/library/folders/paths", h.addPath)
	e.POST("/library/folders/paths/update", h.updatePath)
	e.DELETE("/library/folders/paths", h.removePath)
	e.POST("/library/folders/options", h.updateOptions)
}
