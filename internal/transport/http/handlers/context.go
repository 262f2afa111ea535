package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/bshelton-songtrust/publishing-platform/internal/transport/http/middleware"
)

// ContextHandler exposes introspection over the established security context.
type ContextHandler struct{}

// NewContextHandler constructs ContextHandler.
func NewContextHandler() *ContextHandler {
	return &ContextHandler{}
}

// RegisterRoutes binds context introspection routes. The caller is expected
// to mount the group behind the security-context middleware.
func (h *ContextHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/whoami", h.whoAmI)
}

func (h *ContextHandler) whoAmI(c *gin.Context) {
	sc, ok := middleware.GetSecurityContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	_, restrictions := sc.TenantScope()

	c.JSON(http.StatusOK, WhoAmIResponse{
		PrincipalID:   sc.Principal().ID(),
		PrincipalKind: string(sc.Principal().Kind),
		PublisherID:   sc.PublisherID(),
		Credential:    string(sc.CredentialKind()),
		Permissions:   sc.Permissions().Names(),
		Restrictions:  restrictions,
	})
}
