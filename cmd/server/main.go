// Package main runs the organization settings HTTP server with WebSocket
// fanout and graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/orbit-saas/settings-backend/config"
	"github.com/orbit-saas/settings-backend/internal/assignments"
	"github.com/orbit-saas/settings-backend/internal/auth"
	"github.com/orbit-saas/settings-backend/internal/customizations"
	"github.com/orbit-saas/settings-backend/internal/history"
	"github.com/orbit-saas/settings-backend/internal/middleware"
	"github.com/orbit-saas/settings-backend/internal/organizations"
	"github.com/orbit-saas/settings-backend/internal/realtime"
	"github.com/orbit-saas/settings-backend/internal/registry"
	"github.com/orbit-saas/settings-backend/pkg/database"
	"github.com/orbit-saas/settings-backend/pkg/queue"
	"github.com/orbit-saas/settings-backend/pkg/redis"
	"github.com/orbit-saas/settings-backend/pkg/response"
	"github.com/orbit-saas/settings-backend/pkg/storage"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	if err := database.Migrate(ctx, pool); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	reg, err := registry.Load()
	if err != nil {
		logger.Fatal("registry", zap.Error(err))
	}

	var s3Client *storage.S3
	if cfg.AWS.Region != "" {
		s3Cfg := storage.S3Config{
			Region:               cfg.AWS.Region,
			AccessKeyID:          cfg.AWS.AccessKeyID,
			SecretAccessKey:      cfg.AWS.SecretAccessKey,
			AssetsBucket:         cfg.AWS.AssetsBucket,
			PresignExpireMinutes: cfg.AWS.PresignExpireMinutes,
		}
		s3Client, err = storage.NewS3(ctx, s3Cfg, logger)
		if err != nil {
			logger.Warn("s3 disabled", zap.Error(err))
		}
	}

	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours)
	redisPubSub := realtime.NewRedisPubSub(rdb.Client, logger)
	hub := realtime.NewHub(logger, redisPubSub, redisPubSub)

	// Auth
	authRepo := auth.NewRepository(pool)
	authHandler := auth.NewHandler(authRepo, jwtService, logger)

	// Organizations
	orgRepo := organizations.NewRepository(pool)
	orgHandler := organizations.NewHandler(orgRepo)

	// Customizations: drafts, save protocol, branding
	drafts := customizations.NewDraftStore(rdb.Client, time.Duration(cfg.Draft.TTLHours)*time.Hour, logger)
	customRepo := customizations.NewRepository(pool)
	customSvc := customizations.NewService(customRepo, drafts, reg, logger)
	customHandler := customizations.NewHandler(customSvc, s3Client, hub, logger)

	// History, rollback, retention
	jobQueue := queue.NewQueue(rdb.Client, logger)
	historyRepo := history.NewRepository(pool)
	policy := history.RetentionPolicy{KeepRecent: cfg.Retention.KeepRecent, KeepDays: cfg.Retention.KeepDays}
	historySvc := history.NewService(historyRepo, customSvc, policy, logger)
	historyHandler := history.NewHandler(historySvc, orgRepo, jobQueue)

	// Department section assignments: per-session reconcilers
	assignmentRepo := assignments.NewRepository(pool)
	manager := assignments.NewManager(assignmentRepo, hub, reg, logger)
	assignmentHandler := assignments.NewHandler(manager, reg, customSvc)

	// Changes saved by one session reload every sibling session's reconciler.
	hub.SetForeignChangeHandler(func(orgID uuid.UUID, verticalID string, originSession uuid.UUID) {
		manager.OnForeignChange(context.Background(), orgID, verticalID, originSession)
	})

	jwtValidate := func(token string) (string, error) {
		claims, err := jwtService.Validate(token)
		if err != nil {
			return "", err
		}
		return claims.UserID.String(), nil
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))

	// Health
	router.GET("/health", func(c *gin.Context) { response.OK(c, gin.H{"status": "ok"}) })

	// Auth (public)
	authGroup := router.Group("/auth")
	{
		authGroup.POST("/login", authHandler.Login)
		authGroup.POST("/register", authHandler.Register)
	}

	// Protected API (JWT required)
	api := router.Group("")
	api.Use(middleware.JWT(jwtService))
	{
		api.GET("/auth/me", authHandler.Me)

		// Organizations
		api.GET("/organizations", orgHandler.ListMyOrganizations)
		api.POST("/organizations", orgHandler.CreateOrganization)
		api.POST("/organizations/join", orgHandler.JoinOrganization)
		api.GET("/organizations/:id/members", orgHandler.ListMembers)

		// Settings surface, scoped to one organization and vertical. Reads
		// need membership; mutations need the owner or admin role. Every
		// route carries the caller's editing session (X-Session-ID).
		verticals := api.Group("/organizations/:id/verticals/:vertical",
			middleware.Session())

		read := verticals.Group("", organizations.RequireMember(orgRepo))
		{
			read.GET("/customization", customHandler.GetEffective)
			read.GET("/departments", assignmentHandler.List)
			read.GET("/history", historyHandler.List)
			read.GET("/history/:a/diff/:b", historyHandler.Diff)
		}

		edit := verticals.Group("", organizations.RequireSettingsEditor(orgRepo))
		{
			edit.GET("/draft", customHandler.GetDraft)
			edit.PATCH("/draft", customHandler.PatchDraft)
			edit.DELETE("/draft", customHandler.DiscardDraft)
			edit.POST("/customization/save", customHandler.Save)
			edit.POST("/customization/reset", customHandler.Reset)
			edit.POST("/logo", customHandler.UploadLogo)
			edit.DELETE("/logo", customHandler.DeleteLogo)

			edit.POST("/departments/reload", assignmentHandler.Reload)
			edit.POST("/departments/drag", assignmentHandler.BeginDrag)
			edit.POST("/departments/drop", assignmentHandler.Drop)
			edit.POST("/departments/cancel", assignmentHandler.CancelDrag)
			edit.POST("/departments/undo", assignmentHandler.Undo)
			edit.POST("/departments/reset", assignmentHandler.Reset)
			edit.POST("/departments/check-again", assignmentHandler.CheckAgain)
			edit.PATCH("/departments/:dept/visibility", assignmentHandler.SetVisibility)
		}

		// History snapshots are addressed by ID alone; the handler resolves
		// the owning organization and checks access.
		api.POST("/history/:id/milestone", historyHandler.MarkMilestone)
		api.POST("/history/:id/rollback", historyHandler.Rollback)

		// Retention
		retention := api.Group("/organizations/:id/retention",
			organizations.RequireSettingsEditor(orgRepo))
		{
			retention.GET("/summary", historyHandler.RetentionSummary)
			retention.POST("/cleanup", historyHandler.RetentionCleanup)
		}
	}

	// WebSocket (token in query; no Authorization header required)
	router.GET("/ws", realtime.ServeWs(hub, logger, jwtValidate))

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	// Session sweeper: expire idle reconcilers
	sweepCtx, sweepCancel := context.WithCancel(context.Background())
	defer sweepCancel()
	go manager.RunSweeper(sweepCtx, 15*time.Minute)

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	sweepCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
