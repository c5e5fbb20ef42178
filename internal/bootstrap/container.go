package bootstrap

import (
	"context"
	"fmt"
	"log"
	"time"

	"gardener-chat-be/internal/config"
	"gardener-chat-be/internal/handler"
	"gardener-chat-be/internal/pkg/logger"
	"gardener-chat-be/internal/repository/implementation"
	"gardener-chat-be/internal/repository/memory"
	"gardener-chat-be/internal/service"
	"gardener-chat-be/internal/websocket"
	"gardener-chat-be/pkg/auth"
	"gardener-chat-be/pkg/events"
	"gardener-chat-be/pkg/llm"
	"gardener-chat-be/pkg/llm/factory"
	pktNats "gardener-chat-be/pkg/nats"
	"gardener-chat-be/pkg/worker"

	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

const eventTopic = "chat_events"

type Container struct {
	// Handlers
	ChatHandler *handler.ChatHandler

	// Background Services (Exposed for main.go to run)
	ConsumerService service.IConsumerService
	Reaper          *service.ReaperService

	ChatService  service.IChatService
	Sessions     *memory.SessionRepository
	WebSocketHub *websocket.Hub
	Verifier     auth.AuthVerifier
	Logger       logger.ILogger

	pubSub   *gochannel.GoChannel
	natsPub  *pktNats.Publisher
	rdb      *redis.Client
	pool     *worker.Pool
	loggers  []logger.ILogger
	shutdown bool
}

// NewContainer wires the chat stack. db may be nil, which disables the transcript archive.
func NewContainer(ctx context.Context, db *gorm.DB, cfg *config.Config) (*Container, error) {
	// 1. Loggers
	isProd := cfg.App.Environment == "production"
	sysLogger := logger.NewZapLogger(cfg.App.LogFilePath, isProd)
	chatLogger := logger.NewIsolatedLogger(cfg.App.ChatLogFilePath)

	// 2. Event Bus
	pubSub := events.NewGoChannel()
	bus := events.NewGoChannelPublisher(pubSub, eventTopic)

	var natsPub *pktNats.Publisher
	if cfg.App.NatsURL != "" {
		p, err := pktNats.NewPublisher(cfg.App.NatsURL)
		if err != nil {
			sysLogger.Warn("Bootstrap", "Failed to connect to NATS Publisher, events stay in-process", map[string]interface{}{"error": err.Error()})
		} else {
			natsPub = p
		}
	}
	var relay events.Publisher
	if natsPub != nil {
		relay = natsPub
	}
	consumer := service.NewConsumerService(bus, relay, sysLogger)

	// 3. Redis (optional, cross-instance delivery)
	var rdb *redis.Client
	if cfg.App.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.App.RedisURL)
		if err != nil {
			log.Printf("[WARN] Failed to parse Redis URL: %v. Using direct Addr", err)
			opt = &redis.Options{Addr: cfg.App.RedisURL}
		}
		rdb = redis.NewClient(opt)
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		if _, err := rdb.Ping(pingCtx).Result(); err != nil {
			sysLogger.Warn("Bootstrap", "Failed to connect to Redis, running single-instance", map[string]interface{}{"error": err.Error()})
			rdb.Close()
			rdb = nil
		}
		cancel()
	}

	// 4. AI
	provider, err := factory.NewLLMProvider(ctx, cfg.Ai.LLMProvider, cfg.Ai.LLMModel, cfg.Ai.OllamaBaseURL, cfg.Ai.GeminiAPIKey)
	if err != nil {
		return nil, fmt.Errorf("init llm provider: %w", err)
	}
	responder := llm.NewResponder(provider, cfg.Ai.Timeout, llm.WithTemperature(0.7), llm.WithMaxTokens(1024))
	sysLogger.Info("Bootstrap", "Using LLM Provider", map[string]interface{}{"provider": cfg.Ai.LLMProvider, "model": cfg.Ai.LLMModel})

	// 5. Sessions, transport and workers
	heartbeats := memory.NewHeartbeatRepository()
	sessions := memory.NewSessionRepository(heartbeats)

	wsHub := websocket.NewHub(rdb, chatLogger)
	go wsHub.Run()

	pool, err := worker.NewPool(cfg.Chat.WorkerPoolSize, cfg.Chat.TaskQueueSize, func(v interface{}, stack []byte) {
		chatLogger.Error("WorkerPool", "Recovered panic in chat task", map[string]interface{}{"panic": fmt.Sprint(v), "stack": string(stack)})
	})
	if err != nil {
		return nil, err
	}

	opts := service.ChatServiceOptions{Publisher: bus, Closer: wsHub}
	var archive *implementation.ChatMessageRepositoryImpl
	if db != nil {
		archive = implementation.NewChatMessageRepository(db)
		opts.Archive = archive
	}
	chatService, err := service.NewChatService(sessions, responder, wsHub, pool, chatLogger, opts)
	if err != nil {
		return nil, err
	}

	reaper := service.NewReaperService(sessions, heartbeats, chatLogger, service.ReaperOptions{
		Interval:  cfg.Chat.ReapInterval,
		Timeout:   cfg.Chat.HeartbeatTimeout,
		Publisher: bus,
		Closer:    wsHub,
	})

	// 6. Handlers
	verifier := auth.NewJWTVerifier(cfg.Auth.JWTSecret)
	chatHandler := handler.NewChatHandler(sessions, chatService, wsHub, verifier, bus, chatLogger, cfg.Chat.SendBufferSize)
	if archive != nil {
		chatHandler.WithArchive(archive)
	}

	return &Container{
		ChatHandler:     chatHandler,
		ConsumerService: consumer,
		Reaper:          reaper,
		ChatService:     chatService,
		Sessions:        sessions,
		WebSocketHub:    wsHub,
		Verifier:        verifier,
		Logger:          sysLogger,
		pubSub:          pubSub,
		natsPub:         natsPub,
		rdb:             rdb,
		pool:            pool,
		loggers:         []logger.ILogger{chatLogger, sysLogger},
	}, nil
}

// Shutdown stops intake, drains in-flight chat work and releases connections.
func (c *Container) Shutdown(ctx context.Context) {
	if c.shutdown {
		return
	}
	c.shutdown = true

	c.Reaper.Stop()

	drained := make(chan struct{})
	go func() {
		c.ChatService.Close()
		close(drained)
	}()
	select {
	case <-drained:
	case <-ctx.Done():
		c.Logger.Warn("Bootstrap", "Shutdown deadline hit, cancelling chat tasks", nil)
		c.pool.Stop()
	}

	c.WebSocketHub.Close()
	c.Sessions.Clear()

	if err := c.pubSub.Close(); err != nil {
		c.Logger.Warn("Bootstrap", "Failed to close event bus", map[string]interface{}{"error": err.Error()})
	}
	if c.natsPub != nil {
		c.natsPub.Close()
	}
	if c.rdb != nil {
		c.rdb.Close()
	}
	for _, l := range c.loggers {
		_ = l.Sync()
	}
}
