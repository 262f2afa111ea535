package routes

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/bshelton-songtrust/publishing-platform/internal/infra/config"
	"github.com/bshelton-songtrust/publishing-platform/internal/transport/http/handlers"
	"github.com/bshelton-songtrust/publishing-platform/internal/transport/http/middleware"
	"github.com/bshelton-songtrust/publishing-platform/internal/usecase"
)

// Permission names gating administrative routes.
const (
	PermissionTokensIssue   = "tokens:issue"
	PermissionTokensManage  = "tokens:manage"
	PermissionMembersRead   = "members:read"
	PermissionMembersManage = "members:manage"
)

// ServiceSet groups the services the HTTP layer depends on.
type ServiceSet struct {
	Auth           *usecase.AuthService
	Tokens         *usecase.TokenStore
	Sessions       *usecase.SessionRegistry
	Memberships    *usecase.MembershipAdminService
	Catalog        *usecase.PermissionCatalog
	ContextManager *usecase.SecurityContextManager
}

// Dependencies encapsulates the objects required to register routes.
type Dependencies struct {
	Config   *config.AppConfig
	Logger   *zap.Logger
	Services ServiceSet
	Metrics  *middleware.HTTPMetrics
	Database DatabaseChecker
	Cache    CacheChecker
}

// DatabaseChecker exposes readiness behaviour for database connections.
type DatabaseChecker interface {
	Ping(ctx context.Context) error
}

// CacheChecker exposes readiness behaviour for cache backends.
type CacheChecker interface {
	HealthCheck(ctx context.Context) error
}

// Register configures the Gin engine with routes and middleware.
func Register(deps Dependencies) *gin.Engine {
	if deps.Config.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.EnrichContext())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(deps.Logger))
	r.Use(middleware.CORS(deps.Config.App.AllowedOrigins))

	if deps.Metrics != nil {
		r.Use(deps.Metrics.Handler())
	}

	contextGate := middleware.RequireSecurityContext(deps.Services.ContextManager)

	healthOptions := make([]handlers.HealthOption, 0, 2)

	if deps.Database != nil {
		healthOptions = append(healthOptions, handlers.WithReadinessCheck("database", deps.Database.Ping))
	}

	if deps.Cache != nil {
		healthOptions = append(healthOptions, handlers.WithReadinessCheck("redis", deps.Cache.HealthCheck))
	}

	healthHandler := handlers.NewHealthHandler(healthOptions...)

	r.GET("/healthz", healthHandler.Status)
	r.GET("/readyz", healthHandler.Readiness)

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api/v1")
	{
		sessionTokenTTL := int(deps.Config.JWT.SessionTokenTTL.Seconds())

		authGroup := api.Group("/auth")
		authHandler := handlers.NewAuthHandler(deps.Services.Auth, sessionTokenTTL, contextGate)
		authHandler.RegisterRoutes(authGroup)

		contextGroup := api.Group("/context")
		contextGroup.Use(contextGate)
		contextHandler := handlers.NewContextHandler()
		contextHandler.RegisterRoutes(contextGroup)

		tokenGroup := api.Group("/tokens")
		tokenGroup.Use(contextGate)
		tokenHandler := handlers.NewTokenHandler(deps.Services.Tokens)
		tokenHandler.RegisterRoutes(tokenGroup,
			middleware.RequirePermission(deps.Services.ContextManager, PermissionTokensIssue),
			middleware.RequirePermission(deps.Services.ContextManager, PermissionTokensManage),
		)

		sessionGroup := api.Group("/sessions")
		sessionGroup.Use(contextGate)
		sessionHandler := handlers.NewSessionHandler(deps.Services.Sessions)
		sessionHandler.RegisterRoutes(sessionGroup)

		membershipGroup := api.Group("/memberships")
		membershipGroup.Use(contextGate)
		membershipGroup.Use(middleware.RequirePermission(deps.Services.ContextManager, PermissionMembersManage))
		membershipHandler := handlers.NewMembershipHandler(deps.Services.Memberships)
		membershipHandler.RegisterRoutes(membershipGroup)

		catalogGroup := api.Group("/catalog")
		catalogGroup.Use(contextGate)
		catalogHandler := handlers.NewCatalogHandler(deps.Services.Catalog)
		catalogHandler.RegisterRoutes(catalogGroup)
	}

	return r
}
