package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/campushq/campus-api/internal/handler"
	"github.com/campushq/campus-api/internal/middleware"
	"github.com/campushq/campus-api/internal/models"
	"github.com/campushq/campus-api/internal/repository"
	"github.com/campushq/campus-api/internal/service"
	"github.com/campushq/campus-api/pkg/config"
	"github.com/campushq/campus-api/pkg/logger"
	corsmiddleware "github.com/campushq/campus-api/pkg/middleware/cors"
	reqidmiddleware "github.com/campushq/campus-api/pkg/middleware/requestid"

	"go.uber.org/zap"
)

// Handlers bundles every HTTP handler the router mounts.
type Handlers struct {
	Auth         *handler.AuthHandler
	School       *handler.SchoolHandler
	Role         *handler.RoleHandler
	Workflow     *handler.InvitationJoinHandler
	Grade        *handler.GradeHandler
	Subject      *handler.SubjectHandler
	Notification *handler.NotificationHandler
	User         *handler.UserHandler
	Metrics      *handler.MetricsHandler
}

// New assembles the gin engine with middleware and all API routes.
func New(cfg *config.Config, logr *zap.Logger, authService *service.AuthService, metricsService *service.MetricsService, auditRepo *repository.UserRepository, h Handlers) *gin.Engine {
	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsService))

	r.GET("/health", h.Metrics.Health)
	r.GET("/ready", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", h.Metrics.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	{
		auth.POST("/signup", h.Auth.Signup)
		auth.POST("/login", h.Auth.Login)
		auth.POST("/refresh", h.Auth.Refresh)
		auth.POST("/logout", middleware.JWT(authService), h.Auth.Logout)
	}

	protected := api.Group("")
	protected.Use(middleware.JWT(authService))
	{
		protected.GET("/users/me", h.User.Me)

		protected.POST("/schools", h.School.Create)
		protected.GET("/schools/:short_name", h.School.Get)

		adminOnly := middleware.RequireRoles(models.RoleAdmin, models.RoleCoAdmin)
		protected.GET("/schools/:short_name/members", adminOnly,
			middleware.Audit(auditRepo, models.AuditActionMembersViewed, "school_members"), h.School.Members)
		if cfg.Export.Enabled {
			protected.GET("/schools/:short_name/members/export", adminOnly, h.School.ExportMembers)
		}

		protected.PUT("/schools/:short_name/co-admins", middleware.RequireRoles(models.RoleAdmin), h.Role.AssignCoAdmin)
		protected.DELETE("/schools/:short_name/co-admins/:user_id", middleware.RequireRoles(models.RoleAdmin), h.Role.RemoveCoAdmin)

		protected.GET("/schools/:short_name/invitations", adminOnly, h.Workflow.ListInvitations)
		protected.GET("/schools/:short_name/join-requests", adminOnly, h.Workflow.ListJoinRequests)

		protected.POST("/schools/:short_name/grades", adminOnly, h.Grade.Create)
		protected.GET("/schools/:short_name/grades", h.Grade.List)
		protected.POST("/schools/:short_name/grades/:standard/sections", adminOnly, h.Grade.CreateSection)

		protected.POST("/schools/:short_name/subjects", adminOnly, h.Subject.Create)
		protected.GET("/schools/:short_name/subjects", h.Subject.List)

		protected.POST("/invitations", adminOnly, h.Workflow.Invite)
		protected.POST("/join-requests", h.Workflow.RequestJoin)
		protected.GET("/invitation-joins/received", h.Workflow.ListReceived)
		protected.GET("/invitation-joins/sent", h.Workflow.ListSent)
		protected.POST("/invitation-joins/:id/complete", h.Workflow.Complete)
		protected.POST("/invitation-joins/:id/cancel", h.Workflow.Cancel)

		protected.GET("/notifications", h.Notification.List)
		protected.POST("/notifications/:id/read", h.Notification.MarkRead)
	}

	return r
}
