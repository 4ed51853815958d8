package server

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/yungbote/docuchat-backend/internal/handlers"
)

type RouterConfig struct {
	IngestHandler  *handlers.IngestHandler
	ChatHandler    *handlers.ChatHandler
	MessageHandler *handlers.MessageHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.Default()

	// Cors
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{
			"http://localhost:80",
			"http://localhost:3000",
		},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With"},
		AllowCredentials: true,
	}))

	router.GET("/healthcheck", handlers.HealthCheck)

	router.POST("/ingest", cfg.IngestHandler.Ingest)
	router.GET("/chat/:id", cfg.ChatHandler.GetChat)
	router.GET("/chats", cfg.ChatHandler.ListChats)
	router.POST("/message", cfg.MessageHandler.Send)

	return router
}
