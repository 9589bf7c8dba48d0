package api

import (
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"khedma/internal/api/middleware"
	"khedma/internal/applications"
	"khedma/internal/auth"
	"khedma/internal/config"
	"khedma/internal/storage"
)

// RegisterRoutes 注册 /v1 下的全部 API 路由。
func RegisterRoutes(
	router *gin.Engine,
	cfg *config.Config,
	db *gorm.DB,
	asynqClient *asynq.Client,
	authService *auth.AuthService,
	redisClient redis.UniversalClient,
	logger *slog.Logger,
	storageClient *storage.Client,
) {
	manager := applications.NewManager(
		applications.NewGormStore(db),
		NewAsynqNotifier(asynqClient, logger),
		logger,
		cfg.App.AllowRedecision,
	)

	authHandler := NewAuthHandler(db, authService, redisClient, logger,
		cfg.Auth.LoginRateLimitPerHour, cfg.Auth.LoginLockThreshold, cfg.Auth.LoginLockTTL,
		cfg.API.CookieDomain)
	profileHandler := NewProfileHandler(db, asynqClient, logger)
	jobHandler := NewJobHandler(db, asynqClient, logger)
	applicationHandler := NewApplicationHandler(manager)
	notificationHandler := NewNotificationHandler(db)
	assetHandler := NewAssetHandler(db, storageClient, redisClient, logger,
		cfg.API.ClamdAddr, cfg.App.MaxUploadBytes, cfg.App.MaxAssetsPerUser, cfg.App.MaxUploadsPerDay)
	wsHandler := NewWsHandler(redisClient, authService, logger, cfg.API.AllowedOrigins)
	authMiddleware := middleware.AuthMiddleware(authService)

	v1 := router.Group("/v1")
	{
		v1.GET("/ws", wsHandler.HandleConnection)

		authGroup := v1.Group("/auth")
		{
			authGroup.POST("/register", authHandler.Register)
			authGroup.POST("/login", authHandler.Login)
			authGroup.POST("/refresh", authHandler.Refresh)
			authGroup.POST("/logout", authHandler.Logout)
		}

		meGroup := v1.Group("/me")
		meGroup.Use(authMiddleware)
		{
			meGroup.GET("", profileHandler.GetMe)
			meGroup.PUT("", profileHandler.UpdateMe)
		}

		jobGroup := v1.Group("/jobs")
		jobGroup.Use(authMiddleware)
		{
			jobGroup.POST("", jobHandler.CreateJob)
			jobGroup.GET("", jobHandler.ListJobs)
			jobGroup.GET("/nearby", jobHandler.NearbyJobs)
			jobGroup.GET("/:id", jobHandler.GetJob)
			jobGroup.PUT("/:id", jobHandler.UpdateJob)
			jobGroup.DELETE("/:id", jobHandler.DeleteJob)
			jobGroup.GET("/:id/applications", applicationHandler.ListForJob)
		}

		applicationGroup := v1.Group("/applications")
		applicationGroup.Use(authMiddleware)
		{
			applicationGroup.POST("", applicationHandler.Submit)
			applicationGroup.GET("/mine", applicationHandler.ListMine)
			applicationGroup.PATCH("/:id/status", applicationHandler.Decide)
		}

		notificationGroup := v1.Group("/notifications")
		notificationGroup.Use(authMiddleware)
		{
			notificationGroup.GET("", notificationHandler.List)
			notificationGroup.POST("/:id/read", notificationHandler.MarkRead)
		}

		assetGroup := v1.Group("/assets")
		assetGroup.Use(authMiddleware)
		{
			assetGroup.POST("/upload", assetHandler.UploadAsset)
			assetGroup.GET("", assetHandler.ListAssets)
			assetGroup.GET("/view", assetHandler.GetAssetURL)
			assetGroup.DELETE("/:id", assetHandler.DeleteAsset)
		}
	}
}
