package main

import (
	"context"
	"fmt"
	"log"

	"github.com/go-playground/validator/v10"

	_ "github.com/campushq/campus-api/api/swagger"
	"github.com/campushq/campus-api/internal/handler"
	"github.com/campushq/campus-api/internal/models"
	"github.com/campushq/campus-api/internal/repository"
	"github.com/campushq/campus-api/internal/router"
	"github.com/campushq/campus-api/internal/service"
	"github.com/campushq/campus-api/pkg/cache"
	"github.com/campushq/campus-api/pkg/config"
	"github.com/campushq/campus-api/pkg/database"
	"github.com/campushq/campus-api/pkg/logger"
)

// @title CampusHQ API
// @version 1.0.0
// @description Multi-tenant school management backend
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to redis", "error", err)
	}
	defer redisClient.Close()

	validate := validator.New()

	userRepo := repository.NewUserRepository(db)
	schoolRepo := repository.NewSchoolRepository(db)
	workflowRepo := repository.NewInvitationJoinRepository(db)
	gradeRepo := repository.NewGradeRepository(db)
	subjectRepo := repository.NewSubjectRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	metricsService := service.NewMetricsService()
	cacheService := service.NewCacheService(cacheRepo, metricsService, cfg.School.ProfileCacheTTL, logr, cfg.School.CacheEnabled)

	authService := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             "campus-api",
		Audience:           []string{"campus-api"},
	})

	notificationService := service.NewNotificationService(notificationRepo, service.NotificationServiceConfig{
		Enabled:    cfg.Notifications.Enabled,
		Workers:    cfg.Notifications.Workers,
		QueueSize:  cfg.Notifications.QueueSize,
		MaxRetries: cfg.Notifications.WorkerRetries,
	}, logr)
	notificationService.Start(context.Background())
	defer notificationService.Stop()

	schoolService := service.NewSchoolService(schoolRepo, userRepo, cacheService, userRepo, validate, logr, cfg.Export.MaxRows)
	roleService := service.NewRoleService(schoolRepo, userRepo, schoolService, notificationService, userRepo, models.UserRole(cfg.School.FallbackRole), validate, logr)
	workflowService := service.NewInvitationJoinService(workflowRepo, userRepo, schoolRepo, schoolService, notificationService, userRepo, validate, logr)
	gradeService := service.NewGradeService(gradeRepo, schoolRepo, userRepo, validate, logr)
	subjectService := service.NewSubjectService(subjectRepo, schoolRepo, userRepo, validate, logr)
	userService := service.NewUserService(userRepo, schoolRepo, logr)

	engine := router.New(cfg, logr, authService, metricsService, userRepo, router.Handlers{
		Auth:         handler.NewAuthHandler(authService),
		School:       handler.NewSchoolHandler(schoolService),
		Role:         handler.NewRoleHandler(roleService),
		Workflow:     handler.NewInvitationJoinHandler(workflowService),
		Grade:        handler.NewGradeHandler(gradeService),
		Subject:      handler.NewSubjectHandler(subjectService),
		Notification: handler.NewNotificationHandler(notificationService),
		User:         handler.NewUserHandler(userService),
		Metrics:      handler.NewMetricsHandler(metricsService),
	})

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
	if err := engine.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}
