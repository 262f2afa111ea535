package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/bshelton-songtrust/publishing-platform/internal/transport/http/middleware"
	"github.com/bshelton-songtrust/publishing-platform/internal/usecase"
)

// AuthHandler exposes interactive login and logout endpoints.
type AuthHandler struct {
	auth            *usecase.AuthService
	sessionTokenTTL int
	contextGate     gin.HandlerFunc
}

// NewAuthHandler constructs AuthHandler. sessionTokenTTLSeconds is echoed in
// login responses as expires_in. contextGate protects the logout endpoint.
func NewAuthHandler(auth *usecase.AuthService, sessionTokenTTLSeconds int, contextGate gin.HandlerFunc) *AuthHandler {
	return &AuthHandler{
		auth:            auth,
		sessionTokenTTL: sessionTokenTTLSeconds,
		contextGate:     contextGate,
	}
}

// RegisterRoutes binds authentication routes.
func (h *AuthHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/login", h.login)
	r.POST("/logout", h.contextGate, h.logout)
}

func (h *AuthHandler) login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid login payload"))
		return
	}

	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" || req.Password == "" {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "email and password are required"))
		return
	}

	ip := c.ClientIP()
	ua := c.Request.UserAgent()

	input := usecase.LoginInput{
		Email:       req.Email,
		Password:    req.Password,
		PublisherID: strings.TrimSpace(req.PublisherID),
	}
	if ip != "" {
		input.IP = &ip
	}
	if ua != "" {
		input.UserAgent = &ua
	}

	result, err := h.auth.Login(c.Request.Context(), input)
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrInvalidCredentials, Status: http.StatusUnauthorized, Message: "invalid email or password"},
			{Err: usecase.ErrPrincipalInactive, Status: http.StatusForbidden, Message: "account is not active"},
			{Err: usecase.ErrNoMembership, Status: http.StatusForbidden, Message: "no membership in publisher"},
			{Err: usecase.ErrMembershipSuspended, Status: http.StatusForbidden, Message: "membership suspended"},
			{Err: usecase.ErrPublisherInaccessible, Status: http.StatusForbidden, Message: "publisher inaccessible"},
			{Err: usecase.ErrSessionLimitExceeded, Status: http.StatusConflict, Message: "active session limit reached"},
		}, http.StatusInternalServerError, "login failed")
		return
	}

	c.JSON(http.StatusOK, LoginResponse{
		Token:     result.Token,
		TokenType: "Bearer",
		ExpiresIn: h.sessionTokenTTL,
		User: UserSummary{
			ID:          result.User.ID,
			Email:       result.User.Email,
			DisplayName: result.User.DisplayName,
			Status:      result.User.Status,
		},
		Session: newSessionSummary(result.Session),
	})
}

func (h *AuthHandler) logout(c *gin.Context) {
	sc, ok := middleware.GetSecurityContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	sessionID := sc.SessionID()
	if sessionID == "" {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "logout requires a session credential"))
		return
	}

	if err := h.auth.Logout(c.Request.Context(), sessionID); err != nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to terminate session"))
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "logged out"})
}
