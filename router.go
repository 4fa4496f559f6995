package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/choraleia/daydigest/pkg/event"
	"github.com/choraleia/daydigest/pkg/handler"
	"github.com/choraleia/daydigest/pkg/models"
	"github.com/choraleia/daydigest/pkg/utils"
	"github.com/gin-gonic/gin"
)

type Server struct {
	ginEngine *gin.Engine
	app       *App
	logger    *slog.Logger
	host      string
	port      int
}

func NewServer(app *App) *Server {
	ginEngine := gin.New()
	ginEngine.Use(gin.Recovery())
	ginEngine.Use(corsMiddleware())

	server := &Server{
		ginEngine: ginEngine,
		app:       app,
		logger:    utils.GetLogger(),
		host:      app.Config.Host(),
		port:      0,
	}

	server.SetupRoutes()

	return server
}

// corsMiddleware allows browser requests from localhost origins only. Editor
// extensions post from a local origin or send no Origin at all.
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")

		// If there's no Origin header, it's not a browser CORS request.
		if origin != "" {
			if !allowedOrigin(origin) {
				c.AbortWithStatus(http.StatusForbidden)
				return
			}
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Vary", "Origin")
			c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept")
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

func allowedOrigin(origin string) bool {
	for _, prefix := range []string{
		"http://localhost", "http://127.0.0.1",
		"https://localhost", "https://127.0.0.1",
		"vscode-webview://", "vscode-file://",
	} {
		if strings.HasPrefix(origin, prefix) {
			return true
		}
	}
	return false
}

// Start binds the listener and serves in the background. It returns an error
// only when the port cannot be bound. Cancelling ctx shuts the server down.
func (s *Server) Start(ctx context.Context) error {
	addr := net.JoinHostPort(s.host, fmt.Sprint(s.app.Config.Port()))
	srv := &http.Server{Addr: addr, Handler: s.ginEngine}

	// Attempt to listen on port first; if occupied return error immediately
	ln, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		return err
	}

	// Record the actual port (useful when configured as 0).
	if tcpAddr, ok := ln.Addr().(*net.TCPAddr); ok {
		s.port = tcpAddr.Port
	} else {
		s.port = s.app.Config.Port()
	}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("HTTP server stopped", "error", err)
		}
	}()

	// Listen for context cancellation for graceful shutdown
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info("HTTP server listening", "addr", ln.Addr().String())
	return nil
}

func (s *Server) SetupRoutes() {
	dialogueHandler := handler.NewDialogueHandler(s.app.Dialogues, s.logger)
	summaryHandler := handler.NewSummaryHandler(s.app.Summaries, s.app.Analyzer, s.app.History, s.logger)
	wsHandler := event.NewWSHandler(s.app.Emitter, s.logger)

	// API group
	// /api
	apiGroup := s.ginEngine.Group("/api")

	// Runtime info for clients discovering base URLs and the next scheduled run
	apiGroup.GET("/runtime", s.runtimeInfo)

	// Dialogue routes
	// /api/dialogues
	dialoguesGroup := apiGroup.Group("/dialogues")
	{
		dialoguesGroup.GET("", dialogueHandler.List)
		dialoguesGroup.POST("", dialogueHandler.Create)
		dialoguesGroup.GET(":date", dialogueHandler.ListByDate)
		dialoguesGroup.GET("conversation/:id", dialogueHandler.ListByConversation)
		dialoguesGroup.GET("repository/:name", dialogueHandler.ListByRepository)
	}
	apiGroup.GET("/stats", dialogueHandler.Stats)
	apiGroup.GET("/conversations", dialogueHandler.Conversations)
	apiGroup.GET("/repositories", dialogueHandler.Repositories)

	// Summary routes
	// /api/summaries
	apiGroup.GET("/summaries", summaryHandler.List)
	apiGroup.GET("/summaries/:date", summaryHandler.Get)
	apiGroup.POST("/analyze/:date", summaryHandler.Analyze)
	apiGroup.POST("/analyze-with-cursor/:date", summaryHandler.AnalyzeWithCursor)
	apiGroup.GET("/analysis-runs", summaryHandler.Runs)

	// Event notifications
	// /api/events/ws
	apiGroup.GET("/events/ws", wsHandler.Handle)
}

func (s *Server) runtimeInfo(c *gin.Context) {
	host := s.host
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	port := s.port
	if port == 0 {
		port = s.app.Config.Port()
	}
	hostPort := net.JoinHostPort(host, fmt.Sprint(port))
	next := s.app.Analyzer.NextRun()
	c.JSON(http.StatusOK, models.OK(models.RuntimeInfo{
		HTTPBaseURL:     "http://" + hostPort,
		WSBaseURL:       "ws://" + hostPort,
		Port:            port,
		SummarizerMode:  s.app.Engine.Backend().Mode(),
		NextScheduledAt: &next,
	}))
}
