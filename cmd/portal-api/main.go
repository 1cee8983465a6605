package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"groupware/approval-portal/approval-portal-backend/internal/approval"
	"groupware/approval-portal/approval-portal-backend/internal/auth"
	"groupware/approval-portal/approval-portal-backend/internal/config"
	"groupware/approval-portal/approval-portal-backend/internal/directory"
	"groupware/approval-portal/approval-portal-backend/internal/notifications"
	"groupware/approval-portal/approval-portal-backend/internal/notifications/websocket"
)

func main() {
	// .env is optional; real deployments set the environment directly
	_ = godotenv.Load()

	logger, _ := zap.NewProduction()
	if os.Getenv("APP_ENV") == "development" {
		logger, _ = zap.NewDevelopment()
	}
	defer logger.Sync()

	cfg, err := config.LoadConfig("config.json")
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}
	if cfg.Security.JWTSecret == "" {
		logger.Fatal("JWT_SECRET must be set")
	}

	// Connect to database. TranslateError turns unique violations into
	// gorm.ErrDuplicatedKey, which the repository maps to a retryable
	// concurrency error.
	db, err := gorm.Open(postgres.Open(cfg.Database.GetDatabaseURL()), &gorm.Config{TranslateError: true})
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	sqlDB, err := db.DB()
	if err != nil {
		logger.Fatal("Failed to get database handle", zap.Error(err))
	}
	defer sqlDB.Close()
	if cfg.Database.MaxConnections > 0 {
		sqlDB.SetMaxOpenConns(cfg.Database.MaxConnections)
	}
	if cfg.Database.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	}

	if err := db.AutoMigrate(
		&directory.Employee{},
		&approval.Document{},
		&approval.ApprovalStep{},
		&notifications.InAppNotification{},
	); err != nil {
		logger.Fatal("Failed to migrate database", zap.Error(err))
	}

	// Directory and auth
	directoryRepo := directory.NewRepository(db)
	directoryService := directory.NewService(directoryRepo, logger)
	tokens := auth.NewTokenManager(cfg.Security.JWTSecret, cfg.Security.TokenTTL)
	authHandler := auth.NewHandler(directoryService, tokens, logger)
	directoryHandler := directory.NewHandler(directoryService, logger)

	// Notifications: SES email is optional
	var emailSender *notifications.EmailSender
	if cfg.Email.FromAddress != "" {
		awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
			awsconfig.WithRegion(cfg.Email.Region))
		if err != nil {
			logger.Warn("Failed to load AWS config, email channel disabled", zap.Error(err))
		} else {
			emailSender = notifications.NewEmailSender(sesv2.NewFromConfig(awsCfg), cfg.Email.FromAddress)
		}
	}
	wsManager := websocket.NewManager(logger)
	notificationService := notifications.NewService(db, wsManager, emailSender, directoryService, logger)
	defer notificationService.Close()
	notificationHandler := notifications.NewHandler(notificationService, wsManager, logger)

	// Approval engine
	approvalRepo := approval.NewRepository(db)
	approvalService := approval.NewService(approvalRepo, directoryService, notificationService, logger)
	approvalHandler := approval.NewHandler(approvalService, approval.NewInboxExporter(), logger)

	// Setup Router
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	// CORS Middleware
	router.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	// Register Routes
	api := router.Group("/api/v1")
	protected := router.Group("/api/v1")
	protected.Use(auth.Middleware(tokens))
	{
		authHandler.RegisterRoutes(api, protected)
		directoryHandler.RegisterRoutes(protected)
		approvalHandler.RegisterRoutes(protected)
		notificationHandler.RegisterRoutes(protected)
	}

	// Health Check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":                "healthy",
			"websocket_connections": wsManager.ConnectionCount(),
			"timestamp":             time.Now(),
		})
	})

	// Start Server
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("listen failed", zap.Error(err))
		}
	}()

	logger.Info("Server started", zap.Int("port", cfg.Server.Port))

	// Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exiting")
}
