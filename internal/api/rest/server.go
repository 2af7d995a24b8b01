package rest

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/KevinKickass/OpenAlpacaCore/internal/alpaca"
	"github.com/KevinKickass/OpenAlpacaCore/internal/api/websocket"
	"github.com/KevinKickass/OpenAlpacaCore/internal/config"
	"github.com/KevinKickass/OpenAlpacaCore/internal/interfaces"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type Server struct {
	router    *gin.Engine
	alpaca    *alpaca.ServerContext
	lm        interfaces.LifecycleManager
	logger    *zap.Logger
	server    *http.Server
	wsHub     *websocket.Hub
	setupFile string
	listener  net.Listener
}

// NewServer builds the HTTP surface. lm and wsHub may be nil.
func NewServer(cfg *config.Config, sc *alpaca.ServerContext, lm interfaces.LifecycleManager, logger *zap.Logger, wsHub *websocket.Hub) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		router:    gin.New(),
		alpaca:    sc,
		lm:        lm,
		logger:    logger,
		wsHub:     wsHub,
		setupFile: cfg.SetupFile,
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

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start binds the listen address and serves in the background.
func (s *Server) Start() error {
	lis, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.server.Addr, err)
	}
	s.listener = lis

	s.logger.Info("Starting REST API server", zap.String("address", lis.Addr().String()))
	go func() {
		if err := s.server.Serve(lis); err != nil && err != http.ErrServerClosed {
			s.logger.Error("REST server failed", zap.Error(err))
		}
	}()
	return nil
}

// Addr returns the bound address once started.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down REST API server")
	return s.server.Shutdown(ctx)
}

func (s *Server) setupRoutes() {
	s.router.Use(gin.Recovery())
	s.router.Use(LoggerMiddleware(s.logger))
	s.router.Use(CORSMiddleware())

	s.router.GET("/health", s.healthCheck)
	s.router.GET("/system/status", s.getSystemStatus)

	// Alpaca device API
	api := s.router.Group("/api/v1")
	{
		api.GET("/:type/:number/:method", s.deviceCall)
		api.PUT("/:type/:number/:method", s.deviceCall)
	}

	// Alpaca management API
	mgmt := s.router.Group("/management")
	{
		mgmt.GET("/apiversions", s.apiVersions)
		mgmt.GET("/v1/description", s.description)
		mgmt.GET("/v1/configureddevices", s.configuredDevices)
	}

	// Setup
	s.router.GET("/", s.index)
	s.router.GET("/setup", s.getSetup)
	s.router.POST("/setup", s.postSetup)
	s.router.GET("/setup/v1/:type/:number/setup", s.deviceSetup)
	s.router.PUT("/setup/v1/:type/:number/setup", s.deviceSetup)

	// Live events
	if s.wsHub != nil {
		events := s.router.Group("/events")
		{
			events.GET("/ws", s.wsLiveConnection)
			events.GET("/status", s.wsStatus)
		}
	}
}

func (s *Server) wsLiveConnection(c *gin.Context) {
	websocket.ServeWs(s.wsHub, c.Writer, c.Request)
}

func (s *Server) wsStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"connected_clients": s.wsHub.GetClientCount(),
	})
}

// Health check
func (s *Server) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"timestamp": time.Now().Unix(),
	})
}
