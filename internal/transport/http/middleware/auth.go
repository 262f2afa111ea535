package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/bshelton-songtrust/publishing-platform/internal/core/domain"
	"github.com/bshelton-songtrust/publishing-platform/internal/usecase"
)

// PublisherIDHeader selects the active tenant for the request. Tokens bound
// to a publisher may omit it.
const PublisherIDHeader = "X-Publisher-ID"

// ErrorResponse matches the handlers.ErrorResponse structure
type ErrorResponse struct {
	Error   string `json:"error"`
	TraceID string `json:"trace_id,omitempty"`
}

// newErrorResponse creates an error response with trace ID
func newErrorResponse(c *gin.Context, errorMsg string) ErrorResponse {
	return ErrorResponse{
		Error:   errorMsg,
		TraceID: GetTraceID(c),
	}
}

// RequireSecurityContext authenticates the bearer credential, resolves
// permissions, and stores the frozen SecurityContext for the request. The
// context is torn down when the handler chain returns.
func RequireSecurityContext(manager *usecase.SecurityContextManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		bearer, ok := extractBearer(c)
		if !ok {
			return
		}

		sc, err := manager.Establish(c.Request.Context(), usecase.EstablishInput{
			Bearer:      bearer,
			PublisherID: strings.TrimSpace(c.GetHeader(PublisherIDHeader)),
			ClientIP:    c.ClientIP(),
			UserAgent:   c.Request.UserAgent(),
		})
		if err != nil {
			abortEstablishError(c, err)
			return
		}

		c.Set(SecurityContextKey, sc)
		defer manager.Teardown(sc)

		c.Next()
	}
}

// RequirePermission gates the handler on one permission in the established
// security context.
func RequirePermission(manager *usecase.SecurityContextManager, permission string) gin.HandlerFunc {
	return func(c *gin.Context) {
		sc, ok := GetSecurityContext(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				newErrorResponse(c, "authentication required"))
			return
		}

		if err := manager.Require(c.Request.Context(), sc, permission); err != nil {
			c.AbortWithStatusJSON(http.StatusForbidden,
				newErrorResponse(c, "insufficient permissions"))
			return
		}

		c.Next()
	}
}

// GetSecurityContext retrieves the request's security context (helper for handlers).
func GetSecurityContext(c *gin.Context) (*domain.SecurityContext, bool) {
	value, exists := c.Get(SecurityContextKey)
	if !exists {
		return nil, false
	}

	sc, ok := value.(*domain.SecurityContext)
	if !ok || sc == nil {
		return nil, false
	}

	return sc, true
}

func extractBearer(c *gin.Context) (string, bool) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized,
			newErrorResponse(c, "missing authorization header"))
		return "", false
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 {
		c.AbortWithStatusJSON(http.StatusUnauthorized,
			newErrorResponse(c, "invalid authorization format: expected 'Bearer <token>'"))
		return "", false
	}

	if !strings.EqualFold(parts[0], "Bearer") {
		c.AbortWithStatusJSON(http.StatusUnauthorized,
			newErrorResponse(c, "invalid authorization format: must start with 'Bearer'"))
		return "", false
	}

	token := strings.TrimSpace(parts[1])
	if token == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized,
			newErrorResponse(c, "missing credential"))
		return "", false
	}

	return token, true
}

func abortEstablishError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, usecase.ErrMalformedCredential):
		c.AbortWithStatusJSON(http.StatusUnauthorized, newErrorResponse(c, "malformed credential"))
	case errors.Is(err, usecase.ErrSignatureInvalid):
		c.AbortWithStatusJSON(http.StatusUnauthorized, newErrorResponse(c, "invalid credential"))
	case errors.Is(err, usecase.ErrTokenExpired):
		c.AbortWithStatusJSON(http.StatusUnauthorized, newErrorResponse(c, "credential expired"))
	case errors.Is(err, usecase.ErrTokenRevoked):
		c.AbortWithStatusJSON(http.StatusUnauthorized, newErrorResponse(c, "credential revoked"))
	case errors.Is(err, usecase.ErrPrincipalInactive):
		c.AbortWithStatusJSON(http.StatusForbidden, newErrorResponse(c, "principal inactive"))
	case errors.Is(err, usecase.ErrNoMembership):
		c.AbortWithStatusJSON(http.StatusForbidden, newErrorResponse(c, "no membership in publisher"))
	case errors.Is(err, usecase.ErrMembershipSuspended):
		c.AbortWithStatusJSON(http.StatusForbidden, newErrorResponse(c, "membership suspended"))
	case errors.Is(err, usecase.ErrPublisherInaccessible):
		c.AbortWithStatusJSON(http.StatusForbidden, newErrorResponse(c, "publisher inaccessible"))
	case errors.Is(err, usecase.ErrRateLimitExceeded):
		c.AbortWithStatusJSON(http.StatusTooManyRequests, newErrorResponse(c, "rate limit exceeded"))
	case errors.Is(err, usecase.ErrStoreUnavailable):
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, newErrorResponse(c, "authentication temporarily unavailable"))
	default:
		c.AbortWithStatusJSON(http.StatusInternalServerError, newErrorResponse(c, "authentication failed"))
	}
}
