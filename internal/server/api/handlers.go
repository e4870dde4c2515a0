package api

import (
	"nulldrop/internal/server/pipeline"

	"github.com/labstack/echo/v4"
)

// Handler binds the upload pipeline to the HTTP boundary.
type Handler struct {
	pipe *pipeline.Pipeline
}

// NewHandler creates a new handler around the given pipeline.
func NewHandler(pipe *pipeline.Pipeline) *Handler {
	return &Handler{pipe: pipe}
}

// HandleUpload handles POST /. The pipeline owns validation, storage and
// response selection; every response is plain text.
func (h *Handler) HandleUpload(c echo.Context) error {
	res := h.pipe.Run(c.Request())
	return c.String(res.Status(), res.Body())
}
