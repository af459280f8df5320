package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/university-records-api/api/swagger"
	"github.com/noah-isme/university-records-api/internal/handler"
	"github.com/noah-isme/university-records-api/internal/middleware"
	"github.com/noah-isme/university-records-api/internal/models"
	"github.com/noah-isme/university-records-api/internal/repository"
	"github.com/noah-isme/university-records-api/internal/service"
	"github.com/noah-isme/university-records-api/pkg/cache"
	"github.com/noah-isme/university-records-api/pkg/config"
	"github.com/noah-isme/university-records-api/pkg/database"
	"github.com/noah-isme/university-records-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/university-records-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/university-records-api/pkg/middleware/requestid"
	"github.com/noah-isme/university-records-api/pkg/storage"
)

// @title University Records API
// @version 1.0.0
// @description Enrollment admission control and grade computation engine
// @BasePath /api/v1
// @schemes http

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
		logr.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer db.Close() //nolint:errcheck

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Warn("redis unavailable, gpa caching disabled", zap.Error(err))
		redisClient = nil
	}
	if redisClient != nil {
		defer redisClient.Close() //nolint:errcheck
	}

	store, err := storage.NewLocalStorage(cfg.Transcripts.StorageDir)
	if err != nil {
		logr.Fatal("failed to prepare transcript storage", zap.Error(err))
	}
	signer := storage.NewSignedURLSigner(cfg.Transcripts.SignedURLSecret, cfg.Transcripts.SignedURLTTL)

	// Repositories.
	userRepo := repository.NewUserRepository(db)
	courseRepo := repository.NewCourseRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	gradeRepo := repository.NewGradeRepository(db)
	scaleRepo := repository.NewGradeScaleRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	// Services.
	metricsSvc := service.NewMetricsService()
	notificationSvc := service.NewNotificationService(notificationRepo, cfg.Notify, logr)
	authSvc := service.NewAuthService(userRepo, cfg.JWT, nil, logr)
	userSvc := service.NewUserService(userRepo, nil, logr)
	scaleSvc := service.NewGradeScaleService(scaleRepo, cfg.Grading, nil, logr)
	gpaSvc := service.NewGpaService(gradeRepo, userRepo, scaleSvc, cacheRepo, metricsSvc, cfg.Gpa, logr)
	courseSvc := service.NewCourseService(courseRepo, userRepo, scaleRepo, gpaSvc, nil, logr)
	enrollmentSvc := service.NewEnrollmentService(enrollmentRepo, userRepo, courseRepo, notificationSvc, gpaSvc, cfg.Enrollment, nil, logr)
	gradeSvc := service.NewGradeService(gradeRepo, enrollmentRepo, courseRepo, scaleSvc, notificationSvc, gpaSvc, nil, logr)
	transcriptSvc := service.NewTranscriptService(userRepo, enrollmentRepo, gradeRepo, courseRepo, scaleSvc, gpaSvc, store, signer, cfg.Transcripts, logr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	notificationSvc.Start(ctx)
	defer notificationSvc.Stop()
	transcriptSvc.StartRetention(ctx)

	// Handlers.
	authHandler := handler.NewAuthHandler(authSvc)
	userHandler := handler.NewUserHandler(userSvc, enrollmentSvc, notificationSvc)
	courseHandler := handler.NewCourseHandler(courseSvc, gradeSvc)
	enrollmentHandler := handler.NewEnrollmentHandler(enrollmentSvc, metricsSvc)
	gradeHandler := handler.NewGradeHandler(gradeSvc, metricsSvc)
	scaleHandler := handler.NewGradeScaleHandler(scaleSvc)
	transcriptHandler := handler.NewTranscriptHandler(gpaSvc, transcriptSvc)

	tokenValidator := middleware.NewTokenValidator(cfg.JWT)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", gin.WrapH(metricsSvc.Handler()))

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	r.POST(cfg.APIPrefix+"/auth/login", authHandler.Login)

	api := r.Group(cfg.APIPrefix)
	api.Use(middleware.JWT(tokenValidator))
	api.GET("/auth/me", authHandler.Me)

	admin := string(models.RoleAdmin)
	professor := string(models.RoleProfessor)
	student := string(models.RoleStudent)

	users := api.Group("/users")
	{
		users.GET("", middleware.RBAC(admin, professor), userHandler.List)
		users.POST("", middleware.RBAC(admin), middleware.Audit(auditRepo, "create", "user"), userHandler.Create)
		users.GET("/:id", middleware.RBAC(admin, professor, middleware.SelfRole), userHandler.Get)
		users.PUT("/:id", middleware.RBAC(admin, middleware.SelfRole), middleware.Audit(auditRepo, "update", "user"), userHandler.Update)
		users.GET("/:id/enrollments", middleware.RBAC(admin, professor, middleware.SelfRole), userHandler.Enrollments)
		users.GET("/:id/notifications", middleware.RBAC(admin, middleware.SelfRole), userHandler.Notifications)
		users.GET("/:id/gpa", middleware.RBAC(admin, professor, middleware.SelfRole), transcriptHandler.Gpa)
		users.GET("/:id/transcript", middleware.RBAC(admin, professor, middleware.SelfRole), transcriptHandler.Transcript)
		users.POST("/:id/transcript/export", middleware.RBAC(admin, professor, middleware.SelfRole), middleware.Audit(auditRepo, "export", "transcript"), transcriptHandler.Export)
	}

	courses := api.Group("/courses")
	{
		courses.GET("", courseHandler.List)
		courses.GET("/:id", courseHandler.Get)
		courses.POST("", middleware.RBAC(admin), middleware.Audit(auditRepo, "create", "course"), courseHandler.Create)
		courses.PUT("/:id", middleware.RBAC(admin), middleware.Audit(auditRepo, "update", "course"), courseHandler.Update)
		courses.PUT("/:id/active", middleware.RBAC(admin), middleware.Audit(auditRepo, "update", "course"), courseHandler.SetActive)
		courses.GET("/:id/average", middleware.RBAC(admin, professor), courseHandler.Average)
	}

	enrollments := api.Group("/enrollments")
	{
		enrollments.GET("", middleware.RBAC(admin, professor), enrollmentHandler.List)
		enrollments.GET("/:id", middleware.RBAC(admin, professor), enrollmentHandler.Get)
		enrollments.POST("", middleware.RBAC(admin, student), middleware.Audit(auditRepo, "create", "enrollment"), enrollmentHandler.Create)
		enrollments.DELETE("/:id", middleware.RBAC(admin, student), middleware.Audit(auditRepo, "drop", "enrollment"), enrollmentHandler.Drop)
		enrollments.PUT("/:id/status", middleware.RBAC(admin, professor), middleware.Audit(auditRepo, "transition", "enrollment"), enrollmentHandler.SetStatus)
		enrollments.GET("/:id/average", middleware.RBAC(admin, professor), gradeHandler.EnrollmentAverage)
	}

	grades := api.Group("/grades")
	{
		grades.GET("", middleware.RBAC(admin, professor), gradeHandler.List)
		grades.GET("/:id", middleware.RBAC(admin, professor), gradeHandler.Get)
		grades.POST("", middleware.RBAC(admin, professor), middleware.Audit(auditRepo, "create", "grade"), gradeHandler.Create)
		grades.PUT("/:id", middleware.RBAC(admin, professor), middleware.Audit(auditRepo, "update", "grade"), gradeHandler.Update)
	}

	scales := api.Group("/grade-scales")
	{
		scales.GET("", scaleHandler.List)
		scales.GET("/:id", scaleHandler.Get)
		scales.POST("", middleware.RBAC(admin), middleware.Audit(auditRepo, "create", "grade_scale"), scaleHandler.Create)
	}

	// Download tokens carry their own authorization.
	r.GET(cfg.APIPrefix+"/transcripts/downloads/:token", transcriptHandler.Download)

	addr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{Addr: addr, Handler: r}

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
	}
}
