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
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/atlasedu/academy-api/api/swagger"
	"github.com/atlasedu/academy-api/internal/handler"
	"github.com/atlasedu/academy-api/internal/middleware"
	"github.com/atlasedu/academy-api/internal/models"
	"github.com/atlasedu/academy-api/internal/repository"
	"github.com/atlasedu/academy-api/internal/service"
	"github.com/atlasedu/academy-api/pkg/cache"
	"github.com/atlasedu/academy-api/pkg/config"
	"github.com/atlasedu/academy-api/pkg/database"
	"github.com/atlasedu/academy-api/pkg/export"
	"github.com/atlasedu/academy-api/pkg/logger"
	corsmiddleware "github.com/atlasedu/academy-api/pkg/middleware/cors"
	reqidmiddleware "github.com/atlasedu/academy-api/pkg/middleware/requestid"
)

// @title AtlasEdu Academy API
// @version 1.0.0
// @description Multi-branch course enrollment service with seat-capacity accounting
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
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Warn("redis unavailable, cache disabled", zap.Error(err))
		redisClient = nil
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	validate := validator.New()

	enrollmentRepo := repository.NewEnrollmentRepository(db)
	courseRepo := repository.NewCourseRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	instructorRepo := repository.NewInstructorRepository(db)
	branchRepo := repository.NewBranchRepository(db)
	userRepo := repository.NewUserRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	metricsSvc := service.NewMetricsService()
	cacheSvc := service.NewCacheService(cacheRepo, cfg.Cache, metricsSvc, logr)
	authSvc := service.NewAuthService(userRepo, branchRepo, cfg.JWT, validate, logr)
	userSvc := service.NewUserService(userRepo, branchRepo, validate, logr)
	branchSvc := service.NewBranchService(branchRepo, validate, logr)
	studentSvc := service.NewStudentService(studentRepo, instructorRepo, branchRepo, enrollmentRepo, validate, logr)
	instructorSvc := service.NewInstructorService(instructorRepo, studentRepo, branchRepo, validate, logr)
	courseSvc := service.NewCourseService(courseRepo, instructorRepo, branchRepo, enrollmentRepo, cacheSvc, validate, logr)
	enrollmentSvc := service.NewEnrollmentService(enrollmentRepo, courseRepo, studentRepo, cacheSvc, metricsSvc, validate, logr)

	authHandler := handler.NewAuthHandler(authSvc)
	userHandler := handler.NewUserHandler(userSvc)
	branchHandler := handler.NewBranchHandler(branchSvc)
	studentHandler := handler.NewStudentHandler(studentSvc)
	instructorHandler := handler.NewInstructorHandler(instructorSvc)
	courseHandler := handler.NewCourseHandler(courseSvc, enrollmentSvc, export.NewCSVExporter(), export.NewPDFExporter(), cfg.Exports.Enabled)
	enrollmentHandler := handler.NewEnrollmentHandler(enrollmentSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc, db)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)
	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	{
		auth.POST("/login", authHandler.Login)
		auth.POST("/signup", authHandler.SignUp)
		auth.POST("/refresh", authHandler.Refresh)
		auth.POST("/logout", authHandler.Logout)
		auth.GET("/me", middleware.JWT(authSvc), authHandler.Me)
		auth.POST("/password", middleware.JWT(authSvc), authHandler.ChangePassword)
	}

	protected := api.Group("")
	protected.Use(middleware.JWT(authSvc))

	staff := middleware.RequireRoles(models.RoleSuperAdmin, models.RoleAdmin)
	superadmin := middleware.RequireRoles(models.RoleSuperAdmin)

	enroll := protected.Group("/enroll")
	{
		enroll.GET("", enrollmentHandler.List)
		enroll.POST("", staff, enrollmentHandler.Enroll)
		enroll.POST("/complete", staff, enrollmentHandler.Complete)
		enroll.POST("/unenroll", staff, enrollmentHandler.Unenroll)
		enroll.GET("/:id", enrollmentHandler.Get)
		enroll.PATCH("/:id", superadmin, enrollmentHandler.Update)
		enroll.DELETE("/:id", staff, enrollmentHandler.Delete)
		enroll.GET("/:id/events", staff, enrollmentHandler.Events)
	}
	protected.GET("/enrollments/active", enrollmentHandler.ListActive)

	courses := protected.Group("/courses")
	{
		courses.GET("", courseHandler.List)
		courses.GET("/:id", courseHandler.Get)
		courses.POST("", staff, courseHandler.Create)
		courses.PATCH("/:id", staff, courseHandler.Update)
		courses.DELETE("/:id", staff, courseHandler.Delete)
		courses.GET("/:id/roster", courseHandler.Roster)
		courses.GET("/:id/roster/export", staff, courseHandler.ExportRoster)
	}

	students := protected.Group("/students")
	{
		students.GET("", studentHandler.List)
		students.GET("/:id", studentHandler.Get)
		students.POST("", staff, studentHandler.Create)
		students.PATCH("/:id", staff, studentHandler.Update)
		students.DELETE("/:id", staff, studentHandler.Delete)
		students.GET("/:id/profile", studentHandler.Profile)
		students.GET("/:id/history", enrollmentHandler.History)
	}

	instructors := protected.Group("/instructors")
	{
		instructors.GET("", instructorHandler.List)
		instructors.GET("/:id", instructorHandler.Get)
		instructors.POST("", staff, instructorHandler.Create)
		instructors.PATCH("/:id", staff, instructorHandler.Update)
		instructors.DELETE("/:id", staff, instructorHandler.Delete)
	}

	branches := protected.Group("/branches")
	{
		branches.GET("", branchHandler.List)
		branches.GET("/:id", branchHandler.Get)
		branches.POST("", superadmin, branchHandler.Create)
		branches.PATCH("/:id", superadmin, branchHandler.Update)
		branches.DELETE("/:id", superadmin, branchHandler.Delete)
	}

	users := protected.Group("/users")
	{
		users.GET("", staff, userHandler.List)
		users.GET("/:id", middleware.RBAC(string(models.RoleSuperAdmin), string(models.RoleAdmin), middleware.SelfRole), userHandler.Get)
		users.POST("", staff, userHandler.Create)
		users.PATCH("/:id", superadmin, userHandler.Update)
		users.DELETE("/:id", superadmin, userHandler.Delete)
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Info("server starting", zap.String("addr", addr), zap.String("env", cfg.Env))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logr.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logr.Error("forced shutdown", zap.Error(err))
	}
}
