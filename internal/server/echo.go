package server

import (
	"github.com/labstack/echo/v4"

	"github.com/ormanaq/tmate/internal/controller"
)

// RegisterEcho mounts the daemon API on an existing echo application under
// basePath, for embedders that already run echo rather than gin.
func RegisterEcho(e *echo.Echo, ctrl *controller.Controller, basePath string) {
	bp := sanitizeBase(basePath)
	h := echo.WrapHandler(NewRouter(ctrl, bp).Handler())
	if bp == "" {
		e.Any("/*", h)
		return
	}
	e.Any(bp, h)
	e.Any(bp+"/*", h)
}
