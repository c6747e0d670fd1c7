package handler

import (
	"net/http"

	"github.com/erp/invoicing/internal/interfaces/http/dto"
	"github.com/erp/invoicing/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// BaseHandler provides common handler utilities. Handlers never render error
// bodies: failures are attached with HandleError and rendered by the
// FailureTranslator.
type BaseHandler struct{}

// Success sends a success response
func (h *BaseHandler) Success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, dto.NewSuccessResponse(data))
}

// Page sends a 200 with a paged list body built by dto.NewPageResponse
func (h *BaseHandler) Page(c *gin.Context, resp dto.Response) {
	c.JSON(http.StatusOK, resp)
}

// Created sends a 201 created response
func (h *BaseHandler) Created(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, dto.NewSuccessResponse(data))
}

// NoContent sends a 204 no content response
func (h *BaseHandler) NoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

// HandleError attaches err to the request and stops the chain
func (h *BaseHandler) HandleError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

// HandleBindingError attaches a request binding failure
func (h *BaseHandler) HandleBindingError(c *gin.Context, err error) {
	h.HandleError(c, middleware.BindingError(err))
}

// bindID binds and parses the :id path parameter. On failure the error is
// already attached and ok is false.
func (h *BaseHandler) bindID(c *gin.Context) (uuid.UUID, bool) {
	var req dto.IDRequest
	if err := c.ShouldBindUri(&req); err != nil {
		h.HandleBindingError(c, err)
		return uuid.Nil, false
	}
	id, err := uuid.Parse(req.ID)
	if err != nil {
		h.HandleBindingError(c, err)
		return uuid.Nil, false
	}
	return id, true
}
