package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/jlwestsr/nebulus-gantry/backend/internal/chat"
	"github.com/jlwestsr/nebulus-gantry/backend/internal/documents"
	"github.com/jlwestsr/nebulus-gantry/backend/internal/knowledge"
	"github.com/jlwestsr/nebulus-gantry/backend/internal/llm"
	"github.com/jlwestsr/nebulus-gantry/backend/internal/server"
	"github.com/jlwestsr/nebulus-gantry/backend/internal/store"
	"github.com/jlwestsr/nebulus-gantry/backend/internal/vectordb"
	"github.com/jlwestsr/nebulus-gantry/backend/pkg/config"
	"github.com/jlwestsr/nebulus-gantry/backend/pkg/logger"
	"github.com/jlwestsr/nebulus-gantry/backend/pkg/metrics"
)

func main() {
	// Load configuration first so the logger knows the environment
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load configuration: %v", err))
	}

	if err := logger.Init(cfg.Env); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	log := logger.Get()
	log.Info("Starting HTTP API server...")

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		log.Fatal("Failed to create data directory", zap.Error(err))
	}
	if err := os.MkdirAll(filepath.Dir(cfg.DatabasePath), 0o755); err != nil {
		log.Fatal("Failed to create database directory", zap.Error(err))
	}

	db, err := store.Open(cfg.DatabasePath)
	if err != nil {
		log.Fatal("Failed to open database", zap.Error(err))
	}
	defer db.Close()

	// The vector engine is optional at startup: memory and document search
	// degrade gracefully when it is unreachable
	vector := vectordb.NewClient(cfg.ChromaHost)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	if err := vector.Heartbeat(ctx); err != nil {
		log.Warn("Vector engine unreachable at startup; memory features degraded",
			zap.String("host", cfg.ChromaHost),
			zap.Error(err),
		)
	}
	cancel()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	recorder := metrics.NewRecorder(registry)

	graphs := knowledge.NewStore(cfg.DataDir)
	docIndex := documents.NewIndex(vector, db, cfg.ChunkSize, cfg.ChunkOverlap)
	docIndex.SetMetrics(recorder)
	llmClient := llm.NewClient(cfg.LLMURL, cfg.LLMAPIKey, cfg.ModelID)
	orchestrator := chat.NewOrchestrator(db, graphs, vector, docIndex, llmClient, recorder)

	api := server.New(db, docIndex, orchestrator, llmClient, vector, registry)
	router := api.Router(cfg.IsProduction())

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	// Graceful shutdown
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	log.Info("Server started", zap.String("port", cfg.Port))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}

	log.Info("Server exited")
}
