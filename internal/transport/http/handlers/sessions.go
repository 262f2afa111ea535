package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/bshelton-songtrust/publishing-platform/internal/transport/http/middleware"
	"github.com/bshelton-songtrust/publishing-platform/internal/usecase"
)

// SessionHandler exposes session inspection and termination endpoints.
type SessionHandler struct {
	sessions *usecase.SessionRegistry
}

// NewSessionHandler constructs SessionHandler.
func NewSessionHandler(sessions *usecase.SessionRegistry) *SessionHandler {
	return &SessionHandler{sessions: sessions}
}

// RegisterRoutes binds session routes. The group must already be gated by
// the security-context middleware.
func (h *SessionHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("", h.list)
	r.DELETE("/:id", h.terminate)
	r.DELETE("", h.terminateAll)
}

func (h *SessionHandler) list(c *gin.Context) {
	sc, ok := middleware.GetSecurityContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	sessions, err := h.sessions.ListActive(c.Request.Context(), sc.Principal().ID())
	if err != nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to list sessions"))
		return
	}

	summaries := make([]SessionSummary, 0, len(sessions))
	for _, session := range sessions {
		summaries = append(summaries, newSessionSummary(session))
	}

	c.JSON(http.StatusOK, gin.H{"sessions": summaries})
}

func (h *SessionHandler) terminate(c *gin.Context) {
	sessionID := strings.TrimSpace(c.Param("id"))
	if sessionID == "" {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "session id is required"))
		return
	}

	err := h.sessions.Terminate(c.Request.Context(), sessionID, "terminated by owner")
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrSessionInactive, Status: http.StatusNotFound, Message: "session not found"},
		}, http.StatusInternalServerError, "failed to terminate session")
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "session terminated"})
}

func (h *SessionHandler) terminateAll(c *gin.Context) {
	sc, ok := middleware.GetSecurityContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	count, err := h.sessions.TerminateAllForUser(c.Request.Context(), sc.Principal().ID(), "terminated by owner")
	if err != nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to terminate sessions"))
		return
	}

	c.JSON(http.StatusOK, gin.H{"terminated": count})
}
