// Package server exposes the HTTP API: conversation and persona management,
// document upload and search, model selection, and the SSE chat stream.
package server

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/jlwestsr/nebulus-gantry/backend/internal/chat"
	"github.com/jlwestsr/nebulus-gantry/backend/internal/documents"
	"github.com/jlwestsr/nebulus-gantry/backend/internal/store"
	gerrors "github.com/jlwestsr/nebulus-gantry/backend/pkg/errors"
	"github.com/jlwestsr/nebulus-gantry/backend/pkg/logger"
)

// TurnRunner drives chat turns; satisfied by chat.Orchestrator
type TurnRunner interface {
	RunTurn(ctx context.Context, conversationID, userID int64, content, requestedModel string) (<-chan chat.Fragment, error)
}

// ModelService exposes generation model selection; satisfied by llm.Client
type ModelService interface {
	ActiveModel() string
	SetModel(model string)
	ListModels(ctx context.Context) ([]string, error)
}

// Prober reports whether the vector engine answers; satisfied by vectordb.Client
type Prober interface {
	Heartbeat(ctx context.Context) error
}

// Server holds the API's dependencies
type Server struct {
	store  *store.Store
	docs   *documents.Index
	turns  TurnRunner
	models ModelService
	vector Prober

	registry *prometheus.Registry
	logger   *zap.Logger
}

// New assembles a server. registry may be nil to disable /metrics.
func New(st *store.Store, docs *documents.Index, turns TurnRunner, models ModelService, vector Prober, registry *prometheus.Registry) *Server {
	return &Server{
		store:    st,
		docs:     docs,
		turns:    turns,
		models:   models,
		vector:   vector,
		registry: registry,
		logger:   logger.Get(),
	}
}

// Router builds the gin engine with all routes and middleware
func (s *Server) Router(production bool) *gin.Engine {
	if production {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(ginLogger(s.logger))
	router.Use(gin.Recovery())

	// CORS middleware
	router.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With, X-User-ID")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	router.GET("/health", s.handleHealth)
	if s.registry != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})))
	}

	api := router.Group("/api")
	{
		chatAPI := api.Group("/chat")
		{
			chatAPI.POST("/conversations", s.handleCreateConversation)
			chatAPI.GET("/conversations", s.handleListConversations)
			chatAPI.GET("/conversations/:id", s.handleGetConversation)
			chatAPI.DELETE("/conversations/:id", s.handleDeleteConversation)
			chatAPI.PUT("/conversations/:id/persona", s.handleSetConversationPersona)
			chatAPI.PUT("/conversations/:id/scope", s.handleSetConversationScope)
			chatAPI.GET("/conversations/:id/messages", s.handleListMessages)
			chatAPI.POST("/conversations/:id/messages", s.handleSendMessage)
		}

		api.POST("/documents", s.handleUploadDocument)
		api.GET("/documents", s.handleListDocuments)
		api.DELETE("/documents/:id", s.handleDeleteDocument)
		api.POST("/documents/search", s.handleSearchDocuments)

		api.POST("/collections", s.handleCreateCollection)
		api.GET("/collections", s.handleListCollections)
		api.PUT("/collections/:id", s.handleUpdateCollection)
		api.DELETE("/collections/:id", s.handleDeleteCollection)

		api.POST("/personas", s.handleCreatePersona)
		api.GET("/personas", s.handleListPersonas)
		api.PUT("/personas/:id", s.handleUpdatePersona)
		api.DELETE("/personas/:id", s.handleDeletePersona)

		api.GET("/models", s.handleListModels)
		api.PUT("/models/active", s.handleSetActiveModel)
	}

	return router
}

func (s *Server) handleHealth(c *gin.Context) {
	vectorOK := true
	if s.vector != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		vectorOK = s.vector.Heartbeat(ctx) == nil
	}

	c.JSON(http.StatusOK, gin.H{
		"status":        "ok",
		"vector_engine": vectorOK,
	})
}

// currentUser reads the caller's identity from the X-User-ID header. Aborts
// with 400 when missing or malformed.
func currentUser(c *gin.Context) (int64, bool) {
	raw := c.GetHeader("X-User-ID")
	if raw == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "X-User-ID header required"})
		return 0, false
	}
	userID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || userID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid X-User-ID header"})
		return 0, false
	}
	return userID, true
}

func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return id, true
}

// writeError maps typed errors onto HTTP statuses: bad references are 404,
// everything else is a 500 with a generic message
func (s *Server) writeError(c *gin.Context, err error) {
	if gerrors.IsValidation(err) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	s.logger.Error("Request failed",
		zap.String("path", c.Request.URL.Path),
		zap.Error(err),
	)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}

// ginLogger is a custom logger middleware for Gin
func ginLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		raw := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		if raw != "" {
			path = path + "?" + raw
		}

		log.Info("HTTP Request",
			zap.Int("status", status),
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Duration("latency", latency),
			zap.String("ip", c.ClientIP()),
		)
	}
}
