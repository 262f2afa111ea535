package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/bshelton-songtrust/publishing-platform/internal/core/domain"
	"github.com/bshelton-songtrust/publishing-platform/internal/usecase"
)

// MembershipHandler exposes membership administration endpoints. Every
// mutation invalidates the resolver cache for the affected principal before
// the response is returned.
type MembershipHandler struct {
	memberships *usecase.MembershipAdminService
}

// NewMembershipHandler constructs MembershipHandler.
func NewMembershipHandler(memberships *usecase.MembershipAdminService) *MembershipHandler {
	return &MembershipHandler{memberships: memberships}
}

// RegisterRoutes binds membership administration routes.
func (h *MembershipHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/users/:user_id", h.listForUser)
	r.GET("/users/:user_id/publishers/:publisher_id", h.get)
	r.PUT("/users/:user_id/publishers/:publisher_id/grants", h.updateGrants)
	r.PUT("/users/:user_id/publishers/:publisher_id/role", h.updateRole)
	r.PUT("/users/:user_id/publishers/:publisher_id/status", h.setStatus)
}

func (h *MembershipHandler) listForUser(c *gin.Context) {
	userID := strings.TrimSpace(c.Param("user_id"))
	if userID == "" {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "user id is required"))
		return
	}

	memberships, err := h.memberships.ListForUser(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to list memberships"))
		return
	}

	summaries := make([]MembershipSummary, 0, len(memberships))
	for _, membership := range memberships {
		summaries = append(summaries, newMembershipSummary(membership))
	}

	c.JSON(http.StatusOK, gin.H{"memberships": summaries})
}

func (h *MembershipHandler) get(c *gin.Context) {
	userID, publisherID, ok := membershipParams(c)
	if !ok {
		return
	}

	membership, err := h.memberships.Get(c.Request.Context(), userID, publisherID)
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrNoMembership, Status: http.StatusNotFound, Message: "membership not found"},
		}, http.StatusInternalServerError, "failed to load membership")
		return
	}

	c.JSON(http.StatusOK, newMembershipSummary(*membership))
}

func (h *MembershipHandler) updateGrants(c *gin.Context) {
	userID, publisherID, ok := membershipParams(c)
	if !ok {
		return
	}

	var req UpdateGrantsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid grants payload"))
		return
	}

	version, err := h.memberships.UpdateGrants(c.Request.Context(), userID, publisherID, req.Grants, req.Denials)
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrNoMembership, Status: http.StatusNotFound, Message: "membership not found"},
		}, http.StatusInternalServerError, "failed to update grants")
		return
	}

	c.JSON(http.StatusOK, MembershipVersionResponse{Version: version})
}

func (h *MembershipHandler) updateRole(c *gin.Context) {
	userID, publisherID, ok := membershipParams(c)
	if !ok {
		return
	}

	var req UpdateRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid role payload"))
		return
	}

	version, err := h.memberships.UpdateRole(c.Request.Context(), userID, publisherID, strings.TrimSpace(req.RoleName))
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrNoMembership, Status: http.StatusNotFound, Message: "membership not found"},
			{Err: usecase.ErrUnknownRole, Status: http.StatusBadRequest, Message: "unknown role"},
		}, http.StatusInternalServerError, "failed to update role")
		return
	}

	c.JSON(http.StatusOK, MembershipVersionResponse{Version: version})
}

func (h *MembershipHandler) setStatus(c *gin.Context) {
	userID, publisherID, ok := membershipParams(c)
	if !ok {
		return
	}

	var req UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid status payload"))
		return
	}

	status := domain.MembershipStatus(strings.TrimSpace(req.Status))
	switch status {
	case domain.MembershipStatusActive, domain.MembershipStatusInvited,
		domain.MembershipStatusSuspended, domain.MembershipStatusRemoved:
	default:
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid membership status"))
		return
	}

	version, err := h.memberships.SetStatus(c.Request.Context(), userID, publisherID, status)
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrNoMembership, Status: http.StatusNotFound, Message: "membership not found"},
		}, http.StatusInternalServerError, "failed to update status")
		return
	}

	c.JSON(http.StatusOK, MembershipVersionResponse{Version: version})
}

func membershipParams(c *gin.Context) (string, string, bool) {
	userID := strings.TrimSpace(c.Param("user_id"))
	publisherID := strings.TrimSpace(c.Param("publisher_id"))

	if userID == "" || publisherID == "" {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "user id and publisher id are required"))
		return "", "", false
	}

	return userID, publisherID, true
}
