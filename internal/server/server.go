package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"situation-room/config"
	"situation-room/internal/handler"
	"situation-room/internal/middleware"
	"situation-room/internal/transport/httpdto"
	"situation-room/pkg/logger"

	"github.com/gin-gonic/gin"
)

type Server struct {
	httpServer *http.Server
	engine     *gin.Engine
	config     *config.Config
	logger     *logger.Logger
}

var (
	ReleaseMode = "release"
	DebugMode   = "debug"
	TestMode    = "test"
)

type Handlers struct {
	Rooms       *handler.RoomHandler
	Attachments *handler.AttachmentHandler
	Chat        *handler.ChatHandler
}

// HealthFunc reports whether a dependency is reachable.
type HealthFunc func(ctx context.Context) error

func New(cfg *config.Config, l *logger.Logger) *Server {
	if cfg.AppMode == ReleaseMode {
		gin.SetMode(gin.ReleaseMode)
	} else if cfg.AppMode == TestMode {
		gin.SetMode(gin.TestMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.MaxMultipartMemory = cfg.Attachments.MaxSizeBytes + 1<<20

	return &Server{
		httpServer: &http.Server{
			Addr:    fmt.Sprintf(":%s", cfg.AppPort),
			Handler: engine,
		},
		engine: engine,
		config: cfg,
		logger: logger.OrGlobal(l),
	}
}

// Engine exposes the router, mainly for tests.
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) SetupRoutes(handlers *Handlers, auth middleware.TokenParser, health map[string]HealthFunc) {
	s.engine.Use(middleware.RequestIDMiddleware())
	s.engine.Use(middleware.CORSMiddleware())
	s.engine.Use(middleware.LoggingMiddleware(s.logger))
	s.engine.Use(middleware.ErrorHandler(s.logger))

	s.engine.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, httpdto.NewSuccessResponse(gin.H{"message": "pong"}))
	})

	s.engine.GET("/health", func(c *gin.Context) {
		for name, check := range health {
			if err := check(c.Request.Context()); err != nil {
				c.JSON(http.StatusServiceUnavailable, httpdto.NewErrorResponse(name+": "+err.Error(), "UNHEALTHY"))
				return
			}
		}
		c.JSON(http.StatusOK, httpdto.NewSuccessResponse(gin.H{"status": "healthy"}))
	})

	chat := s.engine.Group("/chat", middleware.AuthMiddleware(auth))
	{
		chat.GET("/token", handlers.Chat.Token)
		chat.Any("/passthrough/*path", handlers.Chat.Passthrough)
		chat.POST("/posts", handlers.Rooms.Post)

		channels := chat.Group("/channels")
		channels.GET("", handlers.Rooms.List)
		channels.POST("", handlers.Rooms.Create)
		channels.GET("/search", handlers.Rooms.Search)
		channels.GET("/unReadCount", handlers.Rooms.UnreadCount)
		channels.PUT("/readResolved", handlers.Rooms.ReadResolved)
		channels.DELETE("/:channel_id", handlers.Rooms.Delete)
		channels.GET("/:channel_id/context", handlers.Rooms.Context)
		channels.POST("/:channel_id/members", handlers.Rooms.Invite)
		channels.POST("/:channel_id/members/:user_id/delete", handlers.Rooms.RemoveMember)
		channels.PUT("/:channel_id/join", handlers.Rooms.Join)
		channels.POST("/:channel_id/resolve", handlers.Rooms.Resolve)
		channels.POST("/:channel_id/attachments", handlers.Attachments.Upload)
		channels.GET("/:channel_id/attachments/:attachment_id", handlers.Attachments.Get)
		channels.DELETE("/:channel_id/attachments/:attachment_id", handlers.Attachments.Delete)
	}
}

func (s *Server) Start() error {
	go func() {
		s.logger.Infof("Starting the server on port %s...", s.config.AppPort)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Errorf("Error in starting the server: %s", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT)

	s.logger.Infof("Server is running on :%s", s.config.AppPort)

	<-quit

	s.logger.Infof("Quitting signal received.. Shutting down after 5 seconds")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Infof("Error in the graceful shutdown of the server: %s", err)
		return err
	}

	s.logger.Infof("Server stopped gracefully")
	return nil
}
