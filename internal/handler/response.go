package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"todaride/internal/domain"
	"todaride/internal/middleware"
	"todaride/internal/service"
)

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Code  string `json:"code"`
	Error string `json:"error"`
}

// respondError sends an error response with the appropriate HTTP status code.
// Errors without a domain code are reported as INTERNAL and never leak
// their message.
func respondError(c *gin.Context, err error) {
	_ = c.Error(err)

	var de *domain.Error
	if !errors.As(err, &de) || de.Kind == domain.KindInternal {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Code: service.ErrInternal.Code, Error: service.ErrInternal.Message})
		return
	}
	c.JSON(mapErrorToHTTPStatus(de.Kind), ErrorResponse{Code: de.Code, Error: de.Message})
}

// respondJSON sends a JSON response with the given status code.
func respondJSON(c *gin.Context, code int, data any) {
	c.JSON(code, data)
}

// badRequest rejects a malformed request body.
func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Code: service.ErrValidation.Code, Error: msg})
}

// mapErrorToHTTPStatus maps error kinds to HTTP status codes.
func mapErrorToHTTPStatus(kind domain.ErrorKind) int {
	switch kind {
	case domain.KindValidation:
		return http.StatusBadRequest
	case domain.KindUnauthenticated:
		return http.StatusUnauthorized
	case domain.KindAuthorization:
		return http.StatusForbidden
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindConflict:
		return http.StatusConflict
	case domain.KindUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// currentActor returns the authenticated actor or writes a 401.
func currentActor(c *gin.Context) (domain.Actor, bool) {
	actor, ok := middleware.ActorFrom(c)
	if !ok {
		respondError(c, service.ErrUnauthenticated)
		return domain.Actor{}, false
	}
	return actor, true
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
