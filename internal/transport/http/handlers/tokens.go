package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/bshelton-songtrust/publishing-platform/internal/core/domain"
	"github.com/bshelton-songtrust/publishing-platform/internal/repository"
	"github.com/bshelton-songtrust/publishing-platform/internal/transport/http/middleware"
	"github.com/bshelton-songtrust/publishing-platform/internal/usecase"
)

// TokenHandler exposes opaque token lifecycle endpoints.
type TokenHandler struct {
	tokens *usecase.TokenStore
}

// NewTokenHandler constructs TokenHandler.
func NewTokenHandler(tokens *usecase.TokenStore) *TokenHandler {
	return &TokenHandler{tokens: tokens}
}

// RegisterRoutes binds token lifecycle routes. The group must already be
// gated by the security-context middleware; permission gates are applied
// per route by the caller.
func (h *TokenHandler) RegisterRoutes(r *gin.RouterGroup, issueGate, manageGate gin.HandlerFunc) {
	r.POST("/service", issueGate, h.issueServiceToken)
	r.POST("/personal", h.issuePAT)
	r.GET("", h.list)
	r.POST("/:id/rotate", manageGate, h.rotate)
	r.DELETE("/:id", manageGate, h.revoke)
}

func (h *TokenHandler) issueServiceToken(c *gin.Context) {
	var req IssueTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid token payload"))
		return
	}

	if strings.TrimSpace(req.ServiceAccountID) == "" {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "service_account_id is required"))
		return
	}

	issued, err := h.tokens.IssueServiceToken(c.Request.Context(), buildIssueInput(req, ""))
	if err != nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to issue token"))
		return
	}

	c.JSON(http.StatusCreated, IssuedTokenResponse{
		Token:  issued.Raw,
		Record: newTokenSummary(issued.Record),
	})
}

func (h *TokenHandler) issuePAT(c *gin.Context) {
	sc, ok := middleware.GetSecurityContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	if sc.Principal().Kind != domain.PrincipalKindUser {
		c.JSON(http.StatusForbidden, NewErrorResponse(c, "personal tokens can only be issued by users"))
		return
	}

	var req IssueTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid token payload"))
		return
	}

	issued, err := h.tokens.IssuePAT(c.Request.Context(), buildIssueInput(req, sc.Principal().ID()))
	if err != nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to issue token"))
		return
	}

	c.JSON(http.StatusCreated, IssuedTokenResponse{
		Token:  issued.Raw,
		Record: newTokenSummary(issued.Record),
	})
}

func (h *TokenHandler) list(c *gin.Context) {
	sc, ok := middleware.GetSecurityContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	records, err := h.tokens.ListByUser(c.Request.Context(), sc.Principal().ID())
	if err != nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to list tokens"))
		return
	}

	summaries := make([]TokenSummary, 0, len(records))
	for _, record := range records {
		summaries = append(summaries, newTokenSummary(record))
	}

	c.JSON(http.StatusOK, gin.H{"tokens": summaries})
}

func (h *TokenHandler) rotate(c *gin.Context) {
	sc, ok := middleware.GetSecurityContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	tokenID := strings.TrimSpace(c.Param("id"))
	if tokenID == "" {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "token id is required"))
		return
	}

	issued, err := h.tokens.Rotate(c.Request.Context(), tokenID, sc.Principal().ID())
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: repository.ErrNotFound, Status: http.StatusNotFound, Message: "token not found"},
			{Err: usecase.ErrTokenRevoked, Status: http.StatusConflict, Message: "token is revoked"},
			{Err: usecase.ErrStoreUnavailable, Status: http.StatusServiceUnavailable, Message: "token store unavailable"},
		}, http.StatusInternalServerError, "failed to rotate token")
		return
	}

	c.JSON(http.StatusOK, IssuedTokenResponse{
		Token:  issued.Raw,
		Record: newTokenSummary(issued.Record),
	})
}

func (h *TokenHandler) revoke(c *gin.Context) {
	sc, ok := middleware.GetSecurityContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	tokenID := strings.TrimSpace(c.Param("id"))
	if tokenID == "" {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "token id is required"))
		return
	}

	var req RevokeTokenRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid revoke payload"))
			return
		}
	}

	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		reason = "revoked by owner"
	}

	if err := h.tokens.Revoke(c.Request.Context(), tokenID, sc.Principal().ID(), reason); err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: repository.ErrNotFound, Status: http.StatusNotFound, Message: "token not found"},
			{Err: usecase.ErrStoreUnavailable, Status: http.StatusServiceUnavailable, Message: "token store unavailable"},
		}, http.StatusInternalServerError, "failed to revoke token")
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "token revoked"})
}

func buildIssueInput(req IssueTokenRequest, userID string) usecase.IssueTokenInput {
	input := usecase.IssueTokenInput{
		Name:             strings.TrimSpace(req.Name),
		UserID:           userID,
		ServiceAccountID: strings.TrimSpace(req.ServiceAccountID),
		PublisherID:      strings.TrimSpace(req.PublisherID),
		Scopes:           req.Scopes,
		AllowedIPs:       req.AllowedIPs,
	}

	if req.TTLSeconds > 0 {
		input.TTL = time.Duration(req.TTLSeconds) * time.Second
	}
	if req.RateLimitMax > 0 && req.RateLimitWindow > 0 {
		input.RateLimit = &domain.RateLimitPolicy{
			MaxPerWindow: req.RateLimitMax,
			Window:       time.Duration(req.RateLimitWindow) * time.Second,
		}
	}

	return input
}
