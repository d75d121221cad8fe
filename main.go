package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Gestion-inmobiliaria/gi-firmas/config"
	"github.com/Gestion-inmobiliaria/gi-firmas/handler"
	"github.com/Gestion-inmobiliaria/gi-firmas/middleware"
	"github.com/Gestion-inmobiliaria/gi-firmas/pkg/logger"
	"github.com/Gestion-inmobiliaria/gi-firmas/service"
	"github.com/gin-gonic/gin"
)

func main() {
	// Load configuration
	cfg, err := config.Load("config.yaml")
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Initialize logger
	logger.Init(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})

	slog.Info("configuration loaded successfully")

	// Select the contract store: postgres when configured, in-memory otherwise
	var store service.Store
	if cfg.Database.Host != "" {
		gormStore, err := service.NewGormStore(cfg.Database.DSN())
		if err != nil {
			slog.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		store = gormStore
		slog.Info("using postgres store", "host", cfg.Database.Host, "database", cfg.Database.Name)
	} else {
		store = service.NewMemoryStore(0)
		slog.Warn("no database configured, using in-memory store")
	}

	// Document and signature archival is optional
	var archive *service.MinioService
	if cfg.Minio.Enabled {
		archive, err = service.NewMinioService(&cfg.Minio)
		if err != nil {
			slog.Error("failed to initialize MINIO service", "error", err)
			os.Exit(1)
		}
		if err := archive.EnsureBucket(context.Background()); err != nil {
			slog.Error("failed to ensure MINIO bucket", "error", err)
			os.Exit(1)
		}
	}

	// Invitation delivery is optional; without it tokens are only returned
	// through the API
	var mailer service.Mailer
	if cfg.Mail.Enabled {
		mailer = service.NewSMTPMailer(&cfg.Mail)
	} else {
		slog.Warn("mail disabled, signing invitations will not be sent")
	}

	generator := service.NewGenerator()
	signatureSvc := service.NewSignatureService(store, mailer, archive, &cfg.Signature)

	// Initialize handlers
	authHandler := handler.NewAuthHandler(cfg)
	contractHandler := handler.NewContractHandler(store, signatureSvc, generator, archive)
	signatureHandler := handler.NewSignatureHandler(signatureSvc)

	// Setup Gin router
	gin.SetMode(gin.ReleaseMode)
	router := gin.New() // Use New() instead of Default() to avoid default middleware

	// Add custom middleware
	router.Use(middleware.RequestID())                 // Request ID for tracing
	router.Use(middleware.Recovery())                  // Panic recovery
	router.Use(middleware.RequestLogger())             // Access logging
	router.Use(corsMiddleware())                       // CORS
	router.Use(middleware.RateLimit(100, time.Minute)) // Rate limiting: 100 requests per minute

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "ok",
			"timestamp": time.Now().Format(time.RFC3339),
		})
	})

	// Public routes: login plus the signer-facing endpoints reached
	// through emailed links
	api := router.Group("/api")
	{
		api.POST("/auth/login", authHandler.Login)
		api.GET("/signature/verify/:token", signatureHandler.Verify)
		api.POST("/signature/sign", signatureHandler.Sign)
	}

	// Protected routes
	protected := api.Group("/")
	protected.Use(middleware.AuthMiddleware(&cfg.Auth))
	{
		protected.GET("/auth/me", authHandler.GetCurrentUser)
		protected.POST("/contracts", contractHandler.Create)
		protected.GET("/contracts", contractHandler.List)
		protected.GET("/contracts/signature-statistics", contractHandler.SignatureStatistics)
		protected.GET("/contracts/:id", contractHandler.Get)
		protected.DELETE("/contracts/:id", contractHandler.Delete)
		protected.GET("/contracts/:id/document-url", contractHandler.DocumentURL)
		protected.POST("/contracts/:id/initiate-signatures", contractHandler.InitiateSignatures)
		protected.GET("/contracts/:id/signature-status", contractHandler.SignatureStatus)
		protected.POST("/contracts/:id/resend-invitation/:signerType", contractHandler.ResendInvitation)
	}

	// Create server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Start server in goroutine
	go func() {
		slog.Info("server starting", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("failed to start server", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("server exited gracefully")
}

// corsMiddleware handles CORS headers
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With, X-Request-ID")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")
		c.Writer.Header().Set("Access-Control-Expose-Headers", "X-Request-ID")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}
