// Package httpkit provides HTTP response helpers and middleware infrastructure.
// This is part of the platform layer and contains no business logic.
package httpkit

import (
	"errors"
	"net/http"

	"acquisition_backend/platform/apperr"

	"github.com/gin-gonic/gin"
)

// ErrorResponse is the standard error payload shape.
type ErrorResponse struct {
	Error   string      `json:"error"`
	Details interface{} `json:"details,omitempty"`
}

// OK writes a 200 response with the given payload.
func OK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, data)
}

// Created writes a 201 response with the given payload.
func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, data)
}

// NoContent writes a 204 response.
func NoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

// Error writes an error response with the given status and message.
func Error(c *gin.Context, status int, message string, details interface{}) {
	c.JSON(status, ErrorResponse{Error: message, Details: details})
}

// HandleError maps a domain error to an HTTP response and reports whether
// there was one. Typed errors carry their own status; anything else is a
// 500 with a generic message so internals never leak to callers.
//
//	if httpkit.HandleError(c, err) {
//		return
//	}
func HandleError(c *gin.Context, err error) bool {
	if err == nil {
		return false
	}

	var appError *apperr.Error
	if errors.As(err, &appError) {
		c.JSON(appError.HTTPStatus(), ErrorResponse{
			Error:   appError.Message,
			Details: appError.Details,
		})
		return true
	}

	c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
	return true
}
