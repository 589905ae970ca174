package main

import (
	"context"
	"log"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"messaging-service/internal/cache"
	"messaging-service/internal/conversations"
	"messaging-service/internal/db"
	"messaging-service/internal/directory"
	"messaging-service/internal/fanout"
	"messaging-service/internal/handlers"
	"messaging-service/internal/middleware"
	"messaging-service/internal/notifications"
	"messaging-service/internal/observability"
	"messaging-service/internal/rabbitmq"
	"messaging-service/internal/repositories"
	"messaging-service/internal/telemetry"
	"messaging-service/internal/ws"
)

const serviceName = "messaging-service"

func main() {
	ctx := context.Background()

	database, err := db.Connect()
	if err != nil {
		log.Fatalf("failed to connect to db: %v", err)
	}

	shutdownTracing, err := observability.InitTracing(ctx, serviceName, getEnv("OTLP_ENDPOINT", ""))
	if err != nil {
		log.Fatalf("failed to init tracing: %v", err)
	}
	defer shutdownTracing(ctx)

	amqpURL := getEnv("AMQP_URL", "")
	publisher := rabbitmq.NewPublisher(amqpURL, getEnv("FANOUT_EXCHANGE", "messaging_events"))
	defer publisher.Close()
	if mode := rabbitmq.PublisherMode(publisher); mode == "noop" {
		log.Printf("fanout publisher mode=%s reason=%q", mode, rabbitmq.PublisherNoopReason(publisher))
	} else {
		log.Printf("fanout publisher mode=%s", mode)
	}

	if eventsPublisher, err := observability.NewAMQPPublisher(amqpURL, getEnv("EVENTS_EXCHANGE", "ws_events")); err == nil {
		observability.SetPublisher(eventsPublisher)
		defer eventsPublisher.Close()
	} else {
		log.Printf("observability events disabled: %v", err)
	}

	var redisClient = func() *cache.UnreadCache {
		addr := getEnv("REDIS_ADDR", "")
		if addr == "" {
			log.Printf("unread cache disabled: empty redis addr")
			return cache.NewUnreadCache(nil)
		}
		client, err := cache.NewRedisClient(addr, getEnv("REDIS_PASSWORD", ""), 0)
		if err != nil {
			log.Printf("unread cache disabled: %v", err)
			return cache.NewUnreadCache(nil)
		}
		return cache.NewUnreadCache(client)
	}()

	directoryClient := directory.NewClient(getEnv("DIRECTORY_URL", "http://localhost:8080"))

	messageRepo := repositories.NewMessageRepo(database)
	notificationRepo := repositories.NewNotificationRepo(database)
	aggregator := conversations.NewAggregator(messageRepo)
	engine := notifications.NewEngine(notificationRepo, directoryClient)

	hub := ws.NewHub()

	var dispatcher *fanout.Dispatcher
	if rabbitmq.PublisherMode(publisher) == "amqp" {
		hostname, _ := os.Hostname()
		consumer, err := fanout.NewConsumer(amqpURL, getEnv("FANOUT_EXCHANGE", "messaging_events"), "messaging_fanout."+hostname, hub)
		if err != nil {
			log.Printf("fanout consumer unavailable, delivering locally: %v", err)
			dispatcher = fanout.NewDispatcher(nil, hub)
		} else {
			defer consumer.Close()
			go func() {
				if err := consumer.Run(ctx); err != nil {
					log.Printf("fanout consumer stopped: %v", err)
				}
			}()
			dispatcher = fanout.NewDispatcher(publisher, hub)
		}
	} else {
		dispatcher = fanout.NewDispatcher(nil, hub)
	}

	audit := telemetry.NewAuditEmitter(publisher, getEnv("AUDIT_ROUTING_KEY", "audit.messaging"), serviceName, getEnv("ENVIRONMENT", "dev"))

	messageHandler := handlers.NewMessageHandler(messageRepo, aggregator, directoryClient, dispatcher, redisClient)
	notificationHandler := handlers.NewNotificationHandler(notificationRepo, directoryClient, directoryClient, redisClient, audit)
	eventHandler := handlers.NewEventHandler(engine, directoryClient, redisClient)
	presenceWS := ws.NewPresenceHandler(hub, directoryClient)

	router := gin.Default()

	// middlewares
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(serviceName))
	router.Use(observability.HTTPMetricsMiddleware())

	authMiddleware := middleware.AuthMiddleware(directoryClient)
	serviceAuth := middleware.ServiceAuthMiddleware(getEnv("SERVICE_TOKEN", ""))

	router.POST("/messages", authMiddleware, messageHandler.SendMessage)
	router.GET("/messages", authMiddleware, messageHandler.ListConversations)
	router.GET("/messages/unread-count", authMiddleware, messageHandler.UnreadCount)
	router.GET("/messages/users-with-unread", authMiddleware, messageHandler.UsersWithUnread)
	router.GET("/messages/last-unread", authMiddleware, messageHandler.LastUnread)
	router.GET("/messages/:user_id", authMiddleware, messageHandler.GetConversation)

	router.GET("/notifications", authMiddleware, notificationHandler.List)
	router.GET("/notifications/unread-count", authMiddleware, notificationHandler.UnreadCount)
	router.PUT("/notifications/:id/read", authMiddleware, notificationHandler.MarkRead)

	router.POST("/internal/events", serviceAuth, eventHandler.Ingest)

	router.GET("/ws", presenceWS.Handle)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	handlers.RegisterDebugRoutes(router, audit, getEnv("DEBUG_ROUTES", "") == "true")

	port := getEnv("PORT", "8086")
	if err := router.Run(":" + port); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}
