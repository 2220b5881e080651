package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/atlascaucasus/service-booking/internal/common/domain"
)

// ErrorBody is the client-facing error shape. It never carries internal detail.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type envelope struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *ErrorBody  `json:"error,omitempty"`
	Meta    *Meta       `json:"meta,omitempty"`
}

// Meta carries pagination metadata.
type Meta struct {
	Total      int64 `json:"total"`
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	TotalPages int   `json:"total_pages"`
}

// Success writes a 200 with data.
func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, envelope{Success: true, Data: data})
}

// Created writes a 201 with data.
func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, envelope{Success: true, Data: data})
}

// Paginated writes a 200 with a page of items.
func Paginated(c *gin.Context, items interface{}, total int64, page, limit int) {
	totalPages := 0
	if limit > 0 {
		totalPages = int((total + int64(limit) - 1) / int64(limit))
	}
	c.JSON(http.StatusOK, envelope{
		Success: true,
		Data:    items,
		Meta:    &Meta{Total: total, Page: page, Limit: limit, TotalPages: totalPages},
	})
}

// Fail aborts the request with the given status, code and message.
func Fail(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, envelope{
		Success: false,
		Error:   &ErrorBody{Code: code, Message: message},
	})
}

// BadRequest aborts with a 400 validation error.
func BadRequest(c *gin.Context, message string) {
	Fail(c, http.StatusBadRequest, string(domain.CodeValidation), message)
}

// Unauthorized aborts with a 401.
func Unauthorized(c *gin.Context, message string) {
	Fail(c, http.StatusUnauthorized, "UNAUTHORIZED", message)
}

// Forbidden aborts with a 403.
func Forbidden(c *gin.Context, code, message string) {
	Fail(c, http.StatusForbidden, code, message)
}

// Error maps err onto an HTTP status and a safe body. Non-domain errors are reported as a
// generic internal error; their text is never sent to the client.
func Error(c *gin.Context, err error) {
	var de *domain.Error
	if !errors.As(err, &de) {
		_ = c.Error(err)
		Fail(c, http.StatusInternalServerError, string(domain.CodeInternal), "an unexpected error occurred")
		return
	}
	_ = c.Error(err).SetType(gin.ErrorTypePublic)
	Fail(c, StatusFor(de.Code), string(de.Code), de.Message)
}

// StatusFor returns the HTTP status for a domain code.
func StatusFor(code domain.Code) int {
	switch code {
	case domain.CodeNotFound:
		return http.StatusNotFound
	case domain.CodeNotAuthorized:
		return http.StatusForbidden
	case domain.CodeInvalidTransition, domain.CodeConflict:
		return http.StatusConflict
	case domain.CodeMissingRequiredField:
		return http.StatusUnprocessableEntity
	case domain.CodeValidation:
		return http.StatusBadRequest
	case domain.CodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
