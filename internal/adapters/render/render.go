// Package render writes the JSON error body shared by the HTTP surfaces.
package render

import (
	"errors"
	"net/http"

	"github.com/dkeye/Chat/internal/domain"
	"github.com/gin-gonic/gin"
)

type ErrorBody struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// StatusOf maps the error taxonomy onto HTTP status codes.
func StatusOf(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidInput), errors.Is(err, domain.ErrProtocol):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// Error aborts the request with the error body for err.
func Error(c *gin.Context, err error) {
	_ = c.Error(err)
	c.AbortWithStatusJSON(StatusOf(err), ErrorBody{
		Type:    "error",
		Code:    domain.CodeOf(err),
		Message: domain.MessageOf(err),
	})
}
