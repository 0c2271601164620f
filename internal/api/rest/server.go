package rest

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/KevinKickass/OpenTestBench/internal/api/websocket"
	"github.com/KevinKickass/OpenTestBench/internal/auth"
	"github.com/KevinKickass/OpenTestBench/internal/config"
	"github.com/KevinKickass/OpenTestBench/internal/interfaces"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type Server struct {
	router      *gin.Engine
	lm          interfaces.LifecycleManager
	logger      *zap.Logger
	server      *http.Server
	wsHub       *websocket.Hub
	authService *auth.AuthService
}

func NewServer(cfg *config.Config, lm interfaces.LifecycleManager, logger *zap.Logger, wsHub *websocket.Hub, authService *auth.AuthService) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		router:      gin.New(),
		lm:          lm,
		logger:      logger,
		wsHub:       wsHub,
		authService: authService,
	}

	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

func (s *Server) Start() error {
	s.logger.Info("Starting REST API server", zap.String("address", s.server.Addr))
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Fatal("REST server failed", zap.Error(err))
		}
	}()
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down REST API server")
	return s.server.Shutdown(ctx)
}

func (s *Server) setupRoutes() {
	// Middleware
	s.router.Use(gin.Recovery())
	s.router.Use(LoggerMiddleware(s.logger))
	s.router.Use(CORSMiddleware())

	// Public routes (no auth required)
	s.router.GET("/health", s.healthCheck)

	// API v1
	v1 := s.router.Group("/api/v1")
	{
		// ==================== AUTH ====================
		authPublic := v1.Group("/auth")
		{
			authPublic.POST("/login", s.login)
		}

		authProtected := v1.Group("/auth")
		authProtected.Use(s.authService.AuthMiddleware())
		{
			authProtected.GET("/me", s.getCurrentOperator)
		}

		// ==================== OPERATORS (ADMIN ONLY) ====================
		operators := v1.Group("/operators")
		operators.Use(s.authService.AuthMiddleware())
		operators.Use(auth.RequirePermission(auth.PermAdmin))
		{
			operators.POST("", s.createOperator)
		}

		// ==================== DEFINITIONS (OPERATOR+) ====================
		definitions := v1.Group("/definitions")
		definitions.Use(s.authService.AuthMiddleware())
		definitions.Use(auth.RequirePermission(auth.PermOperator))
		{
			definitions.POST("/import", s.importDefinitions)
			definitions.GET("", s.listDefinitions)
			definitions.POST("/allocate", s.allocate)
		}

		// ==================== BATCHES (OPERATOR+) ====================
		batches := v1.Group("/batches")
		batches.Use(s.authService.AuthMiddleware())
		{
			batches.GET("", auth.RequirePermission(auth.PermOperator), s.listBatches)
			batches.GET("/:id", auth.RequirePermission(auth.PermOperator), s.getBatch)
			batches.GET("/:id/channels", auth.RequirePermission(auth.PermOperator), s.getBatchChannels)
			batches.GET("/:id/records", auth.RequirePermission(auth.PermOperator), s.getBatchRecords)
			batches.POST("/:id/confirm-wiring", auth.RequirePermission(auth.PermOperator), s.confirmWiring)
			batches.POST("/:id/start", auth.RequirePermission(auth.PermOperator), s.startBatch)
			batches.POST("/:id/stop", auth.RequirePermission(auth.PermOperator), s.stopBatch)
			batches.POST("/:id/pause", auth.RequirePermission(auth.PermOperator), s.pauseBatch)
			batches.POST("/:id/resume", auth.RequirePermission(auth.PermOperator), s.resumeBatch)

			// Wiping results needs admin
			batches.DELETE("/:id", auth.RequirePermission(auth.PermAdmin), s.deleteBatch)
		}

		// ==================== INSTANCES (OPERATOR+) ====================
		instances := v1.Group("/instances")
		instances.Use(s.authService.AuthMiddleware())
		instances.Use(auth.RequirePermission(auth.PermOperator))
		{
			instances.GET("/:id", s.getInstance)
			instances.POST("/:id/retest", s.retestChannel)
			instances.POST("/:id/retest/stop", s.stopRetest)
		}

		// ==================== CHANNEL HISTORY ====================
		channels := v1.Group("/channels")
		channels.Use(s.authService.AuthMiddleware())
		{
			channels.GET("/tags", auth.RequirePermission(auth.PermOperator), s.listTags)
			channels.GET("/tags/:tag/records", auth.RequirePermission(auth.PermOperator), s.getRecordsByTag)
			channels.DELETE("/tags/:tag/records", auth.RequirePermission(auth.PermAdmin), s.deleteRecordsByTag)
		}

		// ==================== SYSTEM (OPERATOR+) ====================
		system := v1.Group("/system")
		system.Use(s.authService.AuthMiddleware())
		system.Use(auth.RequirePermission(auth.PermOperator))
		{
			system.GET("/status", s.getSystemStatus)
		}

		// ==================== WEBSOCKET (PUBLIC - Auth via first message) ====================
		ws := v1.Group("/ws")
		{
			ws.GET("/live", s.wsLiveConnection)
			ws.GET("/status", s.authService.AuthMiddleware(), auth.RequirePermission(auth.PermOperator), s.wsStatus)
		}
	}
}

// WebSocket handlers
func (s *Server) wsLiveConnection(c *gin.Context) {
	websocket.ServeWs(s.wsHub, c.Writer, c.Request)
}

func (s *Server) wsStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"connected_clients": s.wsHub.GetClientCount(),
	})
}

// Health check (public)
func (s *Server) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"timestamp": time.Now().Unix(),
	})
}
