package main

import (
	"log"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"chat-sync/internal/auth"
	"chat-sync/internal/chat"
	"chat-sync/internal/config"
	"chat-sync/internal/handlers"
	"chat-sync/internal/middleware"
	"chat-sync/internal/observability"
	"chat-sync/internal/presence"
	"chat-sync/internal/roster"
	"chat-sync/internal/search"
	"chat-sync/internal/store/pgstore"
	"chat-sync/internal/stream"
	"chat-sync/internal/upload"
	"chat-sync/internal/ws"
)

func main() {
	cfg := config.Load()

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer logger.Sync()

	st, err := pgstore.Connect(cfg.DatabaseDSN, logger)
	if err != nil {
		logger.Fatal("connect database", zap.Error(err))
	}
	defer st.Close()

	publisher := observability.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange, logger)
	defer publisher.Close()
	observability.SetPublisher(publisher)

	authManager := auth.NewManager(st, []byte(cfg.JWTSecret), cfg.TokenTTL, logger)
	tracker := presence.NewTracker(st, authManager.CurrentIdentity, logger)
	rosterSync := roster.New(st, logger)
	msgStream := stream.New(st, logger)
	mutator := chat.NewMutator(st, logger)
	peerSearch := search.New(st)
	uploader := upload.NewHTTPUploader(cfg.UploadEndpoint, logger)

	authHandler := handlers.NewAuthHandler(authManager)
	profileHandler := handlers.NewProfileHandler(st, tracker)
	chatHandler := handlers.NewChatHandler(st, mutator, rosterSync)
	searchHandler := handlers.NewSearchHandler(st, peerSearch)
	uploadHandler := handlers.NewUploadHandler(uploader)
	threadWS := ws.NewThreadWebSocketHandler(msgStream, st, authManager, logger)
	rosterWS := ws.NewRosterWebSocketHandler(rosterSync, authManager, logger)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(observability.HTTPMetricsMiddleware())

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	router.POST("/auth/signup", authHandler.Signup)
	router.POST("/auth/login", authHandler.Login)
	router.POST("/auth/reset-password", authHandler.ResetPassword)

	authed := router.Group("/", middleware.AuthMiddleware(authManager))
	{
		authed.GET("/me", profileHandler.Me)
		authed.PATCH("/me", profileHandler.UpdateMe)
		authed.POST("/me/heartbeat", profileHandler.Heartbeat)
		authed.GET("/users/:user_id", profileHandler.GetUser)
		authed.GET("/search", searchHandler.Search)
		authed.GET("/roster", chatHandler.ListRoster)
		authed.POST("/threads", chatHandler.StartThread)
		authed.GET("/threads/:thread_id/messages", chatHandler.GetMessages)
		authed.POST("/threads/:thread_id/messages", chatHandler.PostMessage)
		authed.POST("/threads/:thread_id/seen", chatHandler.MarkSeen)
		authed.POST("/uploads", uploadHandler.Upload)
	}

	router.GET("/ws/roster", rosterWS.Handle)
	router.GET("/ws/threads/:thread_id", threadWS.Handle)

	logger.Info("chat-sync gateway listening", zap.String("port", cfg.Port))
	if err := router.Run(":" + cfg.Port); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}
