package server

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/Byeongcheol-Kim/graphchat/internal/handlers"
	"github.com/Byeongcheol-Kim/graphchat/internal/middleware"
)

type RouterConfig struct {
	CORSOrigins           []string
	AuthMiddleware        *middleware.AuthMiddleware
	SessionHandler        *handlers.SessionHandler
	NodeHandler           *handlers.NodeHandler
	MessageHandler        *handlers.MessageHandler
	RecommendationHandler *handlers.RecommendationHandler
	WebSocketHandler      *handlers.WebSocketHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.Default()

	// Cors
	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORSOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With"},
		AllowCredentials: true,
	}))

	router.GET("/healthcheck", handlers.HealthCheck)

	// WebSocket takes its token from the query string, auth runs inside the
	// same middleware.
	router.GET("/ws/session/:session_id", cfg.AuthMiddleware.RequireAuth(), cfg.WebSocketHandler.Handle)

	api := router.Group("/api/v1")
	api.Use(cfg.AuthMiddleware.RequireAuth())

	sessions := api.Group("/sessions")
	{
		sessions.POST("", cfg.SessionHandler.Create)
		sessions.GET("", cfg.SessionHandler.List)
		sessions.GET("/:id", cfg.SessionHandler.Get)
		sessions.GET("/:id/with-nodes", cfg.SessionHandler.GetWithNodes)
		sessions.PATCH("/:id", cfg.SessionHandler.Update)
		sessions.PUT("/:id", cfg.SessionHandler.Update)
		sessions.DELETE("/:id", cfg.SessionHandler.Delete)
		sessions.GET("/:id/nodes", cfg.SessionHandler.ListNodes)
		sessions.POST("/:id/nodes", cfg.SessionHandler.CreateNode)
	}

	nodes := api.Group("/nodes")
	{
		nodes.POST("", cfg.NodeHandler.Create)
		nodes.POST("/branch", cfg.NodeHandler.CreateBranches)
		nodes.POST("/summary", cfg.NodeHandler.CreateSummary)
		nodes.POST("/reference", cfg.NodeHandler.CreateReference)
		nodes.POST("/tokens", cfg.NodeHandler.TotalTokens)
		nodes.POST("/delete-multiple", cfg.NodeHandler.DeleteMultiple(false))
		nodes.POST("/delete-multiple/cascade", cfg.NodeHandler.DeleteMultiple(true))
		nodes.GET("/:id", cfg.NodeHandler.Get)
		nodes.PATCH("/:id", cfg.NodeHandler.Update)
		nodes.DELETE("/:id", cfg.NodeHandler.Delete(false))
		nodes.DELETE("/:id/cascade", cfg.NodeHandler.Delete(true))
		nodes.GET("/:id/tree", cfg.NodeHandler.GetTree)
		nodes.GET("/:id/descendants", cfg.NodeHandler.GetDescendants)
		nodes.GET("/:id/descendants/depth/:depth", cfg.NodeHandler.GetDescendants)
		nodes.GET("/:id/ancestors", cfg.NodeHandler.GetAncestors)
		nodes.GET("/:id/path", cfg.NodeHandler.GetPath)
		nodes.GET("/:id/relations", cfg.NodeHandler.GetRelations)
		nodes.GET("/:id/with-messages", cfg.NodeHandler.GetWithMessages)
	}

	messages := api.Group("/messages")
	{
		messages.POST("", cfg.MessageHandler.Create)
		messages.POST("/chat", cfg.MessageHandler.Chat)
		messages.POST("/create-branches", cfg.MessageHandler.CreateBranches)
		messages.GET("/:id", cfg.MessageHandler.Get)
		messages.DELETE("/:id", cfg.MessageHandler.Delete)
		messages.GET("/node/:node_id", cfg.MessageHandler.ListByNode)
		messages.GET("/node/:node_id/all", cfg.MessageHandler.ListByNode)
		messages.GET("/node/:node_id/paginated", cfg.MessageHandler.ListByNodePaginated)
	}

	recommendations := api.Group("/recommendations")
	{
		recommendations.POST("", cfg.RecommendationHandler.Create)
		recommendations.POST("/batch", cfg.RecommendationHandler.CreateBatch)
		recommendations.GET("/:id", cfg.RecommendationHandler.Get)
		recommendations.PATCH("/:id", cfg.RecommendationHandler.Update)
		recommendations.POST("/:id/create-branch", cfg.RecommendationHandler.CreateBranch)
		recommendations.POST("/:id/dismiss", cfg.RecommendationHandler.Dismiss)
		recommendations.GET("/message/:message_id", cfg.RecommendationHandler.ListByMessage)
		recommendations.GET("/node/:node_id", cfg.RecommendationHandler.ListByNode)
		recommendations.GET("/session/:session_id", cfg.RecommendationHandler.ListActiveBySession)
	}

	return router
}
