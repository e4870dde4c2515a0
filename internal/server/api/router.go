package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// SetupRouter creates and configures the echo router.
// Every method on / goes through the pipeline so its method gate can
// answer non-POST requests with 404 instead of echo's 405.
func SetupRouter(handler *Handler) *echo.Echo {
	e := echo.New()
	e.HideBanner = true

	e.Use(middleware.Recover())
	e.Use(RequestLogger())

	e.Any("/", handler.HandleUpload)
	e.Any("/*", func(c echo.Context) error {
		return c.NoContent(http.StatusNotFound)
	})

	return e
}
