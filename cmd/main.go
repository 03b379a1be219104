package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"github.com/Byeongcheol-Kim/graphchat/internal/config"
	"github.com/Byeongcheol-Kim/graphchat/internal/graph"
	"github.com/Byeongcheol-Kim/graphchat/internal/handlers"
	"github.com/Byeongcheol-Kim/graphchat/internal/middleware"
	"github.com/Byeongcheol-Kim/graphchat/internal/platform/gemini"
	"github.com/Byeongcheol-Kim/graphchat/internal/platform/graphdb"
	"github.com/Byeongcheol-Kim/graphchat/internal/platform/logger"
	"github.com/Byeongcheol-Kim/graphchat/internal/realtime"
	"github.com/Byeongcheol-Kim/graphchat/internal/repos"
	"github.com/Byeongcheol-Kim/graphchat/internal/server"
	"github.com/Byeongcheol-Kim/graphchat/internal/services"
)

const shutdownGrace = 10 * time.Second

func main() {
	// Logger
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// Config
	log.Info("Loading configuration from main...")
	cfg, err := config.Load()
	if err != nil {
		log.Error("Could not load configuration", "error", err)
		os.Exit(1)
	}

	// Graph database
	log.Info("Connecting to graph database from main...")
	graphClient, err := graphdb.NewFromEnv(log)
	if err != nil {
		log.Error("Could not connect to graph database", "error", err)
		os.Exit(1)
	}
	defer graphClient.Close(context.Background())

	store := graph.NewStore(graphClient, log)
	schemaCtx, schemaCancel := context.WithTimeout(context.Background(), 30*time.Second)
	store.EnsureSchema(schemaCtx)
	schemaCancel()

	// Repos
	log.Info("Setting up repos from main...")
	sessionRepo := repos.NewSessionRepo(store, log)
	nodeRepo := repos.NewNodeRepo(store, log)
	messageRepo := repos.NewMessageRepo(store, log)
	recommendationRepo := repos.NewRecommendationRepo(store, log)

	// LLM client
	log.Info("Setting up LLM client from main...")
	llmClient, err := gemini.NewFromEnv(log)
	if err != nil {
		log.Error("Could not init LLM client", "error", err)
		os.Exit(1)
	}

	// Hub
	hub := realtime.NewHub(log)

	// Services
	log.Info("Setting up services from main...")
	historyService := services.NewHistoryService(nodeRepo, messageRepo, log)
	summaryService := services.NewSummaryService(nodeRepo, messageRepo, llmClient, hub, log)
	branchService := services.NewBranchService(nodeRepo, recommendationRepo, llmClient, log)
	chatService := services.NewChatService(nodeRepo, messageRepo, historyService, branchService, summaryService, llmClient, hub, log)

	// Handlers
	log.Info("Setting up handlers from main...")
	sessionHandler := handlers.NewSessionHandler(log, sessionRepo, nodeRepo)
	nodeHandler := handlers.NewNodeHandler(log, nodeRepo, messageRepo, summaryService, chatService, hub)
	messageHandler := handlers.NewMessageHandler(log, messageRepo, branchService, chatService)
	recommendationHandler := handlers.NewRecommendationHandler(log, recommendationRepo, branchService, hub)
	wsHandler := handlers.NewWebSocketHandler(log, hub, sessionRepo, nodeRepo, chatService)

	// Middleware
	authMiddleware := middleware.NewAuthMiddleware(log, cfg.JWTSecret)

	// Router
	log.Info("Setting up router from main...")
	gin.SetMode(cfg.GinMode())
	router := server.NewRouter(server.RouterConfig{
		CORSOrigins:           cfg.CORSOrigins,
		AuthMiddleware:        authMiddleware,
		SessionHandler:        sessionHandler,
		NodeHandler:           nodeHandler,
		MessageHandler:        messageHandler,
		RecommendationHandler: recommendationHandler,
		WebSocketHandler:      wsHandler,
	})

	httpServer := &http.Server{
		Addr:    cfg.Addr(),
		Handler: router,
	}

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(rootCtx)
	group.Go(func() error {
		log.Info("Server listening", "addr", cfg.Addr())
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		log.Info("Shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return err
		}

		// Let in-flight summary fills land before the driver closes.
		summaryService.Wait()
		return nil
	})

	if err := group.Wait(); err != nil {
		log.Error("Server exited with error", "error", err)
		os.Exit(1)
	}
	log.Info("Server stopped")
}
