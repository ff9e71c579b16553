package bootstrap

import (
	"context"
	"fmt"
	"log"

	"ai-docchat-be/internal/config"
	"ai-docchat-be/internal/controller"
	"ai-docchat-be/internal/handler"
	"ai-docchat-be/internal/metrics"
	"ai-docchat-be/internal/pkg/logger"
	"ai-docchat-be/internal/repository/implementation"
	"ai-docchat-be/internal/repository/memory"
	"ai-docchat-be/internal/repository/unitofwork"
	"ai-docchat-be/internal/service"
	"ai-docchat-be/internal/websocket"
	"ai-docchat-be/pkg/checkpoint"
	"ai-docchat-be/pkg/embedding"
	"ai-docchat-be/pkg/llm/factory"
	"ai-docchat-be/pkg/rag/graph"
	"ai-docchat-be/pkg/rag/prompt"
	"ai-docchat-be/pkg/retrieval"

	pktNats "ai-docchat-be/pkg/nats"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

const ingestTopic = "docchat.ingest.documents"

type Container struct {
	// Controllers
	ChatController         controller.IChatController
	IngestController       controller.IIngestController
	ConversationController controller.IConversationController
	HealthController       controller.IHealthController

	// WebSockets
	ThreadEventHandler *handler.ThreadEventHandler
	WebSocketHub       *websocket.Hub

	// Background Services (Exposed for main.go to run)
	ConsumerService     service.IConsumerService
	ChatService         service.IChatService
	ConversationService service.IConversationService

	Logger logger.ILogger

	natsPub *pktNats.Publisher
	natsSub *pktNats.Subscriber
	rdb     *redis.Client
	closers []func() error
}

func NewContainer(db *gorm.DB, cfg *config.Config) *Container {
	// 1. Core Facades
	uowFactory := unitofwork.NewRepositoryFactory(db)
	sysLogger := logger.NewZapLogger(cfg.App.LogFilePath, cfg.IsProduction())
	instanceID := uuid.NewString()

	c := &Container{Logger: sysLogger}

	// 2. Event Bus (in-process ingest queue)
	watermillLogger := watermill.NewStdLogger(false, false)
	pubSub := gochannel.NewGoChannel(
		gochannel.Config{OutputChannelBuffer: 64},
		watermillLogger,
	)

	// 3. Infrastructure
	// NATS is optional; without it lifecycle events only reach local watchers.
	var eventPublisher service.EventPublisher
	if cfg.App.NatsURL != "" {
		natsPub, err := pktNats.NewPublisher(cfg.App.NatsURL)
		if err != nil {
			log.Printf("[WARN] Failed to connect to NATS Publisher: %v", err)
		} else {
			c.natsPub = natsPub
			eventPublisher = natsPub
		}
		natsSub, err := pktNats.NewSubscriber(cfg.App.NatsURL)
		if err != nil {
			log.Printf("[WARN] Failed to connect to NATS Subscriber: %v", err)
		} else {
			c.natsSub = natsSub
		}
	}

	// Redis is optional too; it fans out cancels and thread events across instances.
	if cfg.App.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.App.RedisURL)
		if err != nil {
			log.Printf("[WARN] Failed to parse Redis URL: %v. Using direct Addr", err)
			opt = &redis.Options{Addr: cfg.App.RedisURL}
		}
		rdb := redis.NewClient(opt)
		if _, err := rdb.Ping(context.Background()).Result(); err != nil {
			log.Printf("[WARN] Failed to connect to Redis: %v", err)
			_ = rdb.Close()
		} else {
			c.rdb = rdb
		}
	}

	// 4. Providers
	var embeddingProvider embedding.EmbeddingProvider
	if cfg.Ai.EmbeddingProvider == "openai" {
		embeddingProvider = embedding.NewOpenAIProvider(cfg.Keys.OpenAI, cfg.Ai.EmbeddingModel, cfg.Ai.EmbeddingDimensions)
		log.Printf("[INFO] Using Embedding Provider: OPENAI (%s)", cfg.Ai.EmbeddingModel)
	} else {
		embeddingProvider = embedding.NewOllamaProvider(cfg.Ai.OllamaBaseURL, cfg.Ai.EmbeddingModel)
		log.Printf("[INFO] Using Embedding Provider: OLLAMA (%s)", cfg.Ai.EmbeddingModel)
	}
	if cfg.Ai.EmbeddingCacheTTL > 0 {
		embeddingProvider = embedding.NewCachedProvider(embeddingProvider, cfg.Ai.EmbeddingCacheTTL)
	}

	defaultProvider, defaultModel := cfg.Ai.LLMProvider, cfg.Ai.LLMModel
	if cfg.Ai.QueryModel != "" {
		p, m, err := factory.ParseModelName(cfg.Ai.QueryModel)
		if err != nil {
			log.Fatalf("[FATAL] Invalid QUERY_MODEL: %v", err)
		}
		defaultProvider, defaultModel = p, m
	}
	if _, err := newGraph(cfg, defaultProvider, defaultModel, sysLogger); err != nil {
		log.Fatalf("[FATAL] Failed to initialize LLM Provider: %v", err)
	}
	log.Printf("[INFO] Using LLM Provider: %s (%s)", defaultProvider, defaultModel)

	graphs := func(provider string) (*graph.Graph, error) {
		return newGraph(cfg, provider, defaultModel, sysLogger)
	}

	vectorRetriever := retrieval.NewVectorRetriever(
		embeddingProvider,
		implementation.NewDocumentChunkRepository(db),
		retrieval.WithThreshold(cfg.Rag.SimilarityThreshold),
	)
	retrievers := func(threadID string, filter map[string]interface{}) retrieval.Retriever {
		return vectorRetriever.ForThread(threadID).WithFilter(filter)
	}

	checkpoints, err := c.newCheckpointStore(cfg, db)
	if err != nil {
		log.Fatalf("[FATAL] Failed to initialize checkpoint store: %v", err)
	}
	log.Printf("[INFO] Using checkpoint driver: %s", cfg.Checkpoint.Driver)

	// WebSocket Hub
	wsLogger := logger.NewIsolatedLogger(cfg.App.WsLogFilePath)
	wsHub := websocket.NewHub(c.rdb, instanceID, wsLogger)

	// 5. Services
	conversationService := service.NewConversationService(uowFactory, checkpoints, eventPublisher, sysLogger)
	chatService := service.NewChatService(
		service.ChatServiceConfig{
			InstanceID:      instanceID,
			DefaultProvider: defaultProvider,
		},
		service.ChatDeps{
			Checkpoints: checkpoints,
			Graphs:      graphs,
			Retrievers:  retrievers,
			Publisher:   eventPublisher,
			Notifier:    wsHub,
			Activity:    conversationService,
			Redis:       c.rdb,
			Logger:      sysLogger,
		},
	)

	wsHub.SetCanceller(chatService.Cancel)

	publisherService := service.NewPublisherService(ingestTopic, pubSub)
	consumerService := service.NewConsumerService(
		pubSub,
		ingestTopic,
		uowFactory,
		embeddingProvider,
		eventPublisher,
		service.ChunkingConfig{ChunkSize: cfg.Rag.ChunkSize, ChunkOverlap: cfg.Rag.ChunkOverlap},
		sysLogger,
	)
	ingestService := service.NewIngestService(publisherService, uowFactory, conversationService, cfg.Upload.MaxBytes, sysLogger)

	// 6. Controllers
	c.ChatController = controller.NewChatController(chatService, sysLogger)
	c.IngestController = controller.NewIngestController(ingestService)
	c.ConversationController = controller.NewConversationController(conversationService)
	c.HealthController = controller.NewHealthController(cfg.App.Version)
	c.ThreadEventHandler = handler.NewThreadEventHandler(wsHub, cfg.App.AuthEnabled, cfg.Keys.JwtSecret, wsLogger)
	c.WebSocketHub = wsHub
	c.ConsumerService = consumerService
	c.ChatService = chatService
	c.ConversationService = conversationService
	c.closers = append(c.closers, pubSub.Close, sysLogger.Sync, wsLogger.Sync)

	return c
}

// Start runs the background workers until ctx is cancelled.
func (c *Container) Start(ctx context.Context) {
	go c.WebSocketHub.Run(ctx)
	go c.ChatService.ListenForCancels(ctx)

	go func() {
		if err := c.ConsumerService.Consume(ctx); err != nil {
			c.Logger.Error("BOOTSTRAP", "Ingest consumer stopped", map[string]interface{}{"error": err.Error()})
		}
	}()

	if c.natsSub != nil {
		if err := c.ConversationService.ConsumeActivity(ctx, c.natsSub); err != nil {
			c.Logger.Error("BOOTSTRAP", "Failed to subscribe to turn activity", map[string]interface{}{"error": err.Error()})
		}
	}
}

// Close releases connections in reverse order of creation.
func (c *Container) Close() {
	if c.natsSub != nil {
		c.natsSub.Close()
	}
	if c.natsPub != nil {
		c.natsPub.Close()
	}
	if c.rdb != nil {
		_ = c.rdb.Close()
	}
	for i := len(c.closers) - 1; i >= 0; i-- {
		_ = c.closers[i]()
	}
}

func (c *Container) newCheckpointStore(cfg *config.Config, db *gorm.DB) (checkpoint.Store, error) {
	switch cfg.Checkpoint.Driver {
	case "", "memory":
		return memory.NewCheckpointRepository(cfg.Checkpoint.TTL), nil
	case "postgres":
		return implementation.NewCheckpointRepository(db), nil
	case "redis":
		if c.rdb == nil {
			return nil, fmt.Errorf("checkpoint driver redis needs a reachable REDIS_URL")
		}
		return checkpoint.NewRedisStore(c.rdb, cfg.Checkpoint.TTL), nil
	case "sqlite":
		store, err := checkpoint.OpenSQLite(cfg.Checkpoint.SQLitePath)
		if err != nil {
			return nil, err
		}
		c.closers = append(c.closers, store.Close)
		return store, nil
	default:
		return nil, fmt.Errorf("unknown checkpoint driver %q", cfg.Checkpoint.Driver)
	}
}

func newGraph(cfg *config.Config, provider, model string, log logger.ILogger) (*graph.Graph, error) {
	baseURL, apiKey := cfg.Ai.OllamaBaseURL, ""
	if provider == "openai" {
		baseURL, apiKey = cfg.Ai.OpenAIBaseURL, cfg.Keys.OpenAI
	}
	completion, err := factory.NewLLMProvider(provider, model, baseURL, apiKey)
	if err != nil {
		return nil, err
	}
	return graph.New(
		graph.Config{
			TopK:                   cfg.Rag.TopK,
			RefuseWithoutDocuments: cfg.Rag.RefuseWithoutDocuments,
			ResetDocumentsPerTurn:  cfg.Rag.ResetDocumentsPerTurn,
		},
		graph.Deps{
			Completion: completion,
			Prompts:    prompt.NewBuilder(cfg.Rag.HistoryWindow),
			Logger:     log,
			Observer:   metrics.Observer{},
		},
	), nil
}
