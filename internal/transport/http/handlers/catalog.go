package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/bshelton-songtrust/publishing-platform/internal/transport/http/middleware"
	"github.com/bshelton-songtrust/publishing-platform/internal/usecase"
)

// CatalogHandler exposes read-only access to the permission catalog.
type CatalogHandler struct {
	catalog *usecase.PermissionCatalog
}

// NewCatalogHandler constructs CatalogHandler.
func NewCatalogHandler(catalog *usecase.PermissionCatalog) *CatalogHandler {
	return &CatalogHandler{catalog: catalog}
}

// RegisterRoutes binds catalog routes. The group must already be gated by
// the security-context middleware.
func (h *CatalogHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/roles", h.listRoles)
	r.GET("/roles/:name/permissions", h.resolveRole)
	r.GET("/permissions", h.listPermissions)
}

func (h *CatalogHandler) listRoles(c *gin.Context) {
	sc, ok := middleware.GetSecurityContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	roles, err := h.catalog.ListRoles(c.Request.Context(), sc.PublisherID())
	if err != nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to list roles"))
		return
	}

	summaries := make([]RoleSummary, 0, len(roles))
	for _, role := range roles {
		summaries = append(summaries, RoleSummary{
			Name:        role.Name,
			PublisherID: role.PublisherID,
			ParentName:  role.ParentName,
			Permissions: role.Permissions,
			System:      role.IsSystem(),
		})
	}

	c.JSON(http.StatusOK, gin.H{"roles": summaries})
}

func (h *CatalogHandler) resolveRole(c *gin.Context) {
	sc, ok := middleware.GetSecurityContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	roleName := strings.TrimSpace(c.Param("name"))
	if roleName == "" {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "role name is required"))
		return
	}

	permissions, err := h.catalog.ResolveRole(c.Request.Context(), roleName, sc.PublisherID())
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrUnknownRole, Status: http.StatusNotFound, Message: "unknown role"},
			{Err: usecase.ErrRoleCycleDetected, Status: http.StatusConflict, Message: "role inheritance cycle"},
		}, http.StatusInternalServerError, "failed to resolve role")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"role":        roleName,
		"permissions": permissions.Names(),
	})
}

func (h *CatalogHandler) listPermissions(c *gin.Context) {
	includeDeprecated := c.Query("include_deprecated") == "true"

	permissions, err := h.catalog.ListPermissions(c.Request.Context(), includeDeprecated)
	if err != nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to list permissions"))
		return
	}

	summaries := make([]PermissionSummary, 0, len(permissions))
	for _, permission := range permissions {
		summaries = append(summaries, PermissionSummary{
			Name:        permission.Name(),
			Resource:    permission.Resource,
			Action:      permission.Action,
			Description: permission.Description,
			Deprecated:  permission.Deprecated,
		})
	}

	c.JSON(http.StatusOK, gin.H{"permissions": summaries})
}
