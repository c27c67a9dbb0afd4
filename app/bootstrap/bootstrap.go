package bootstrap

import (
	"context"
	"log"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/aihub/search-go/internal/config"
	"github.com/aihub/search-go/internal/database"
	"github.com/aihub/search-go/internal/kafka"
	"github.com/aihub/search-go/internal/knowledge"
	"github.com/aihub/search-go/internal/logger"
	"github.com/aihub/search-go/internal/services"
	"github.com/aihub/search-go/internal/storage"
)

const snapshotInterval = 10 * time.Minute

// App encapsulates lifecycle resources that need to be cleaned up on shutdown.
type App struct {
	RAGService          *services.RAGService
	DocumentService     *services.DocumentService
	ConversationService *services.ConversationService

	cleanupTasks []func() error
	stopSnapshot chan struct{}
}

// Init bootstraps configuration, logger, database connections and the
// retrieval pipeline required by the Beego application.
func Init() (*App, error) {
	// Load environment variables from .env if present (non-fatal if missing).
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	// Initialize structured logger.
	if err := logger.InitLogger(); err != nil {
		return nil, err
	}

	// Load dynamic configuration.
	if err := config.LoadConfig(); err != nil {
		return nil, err
	}
	cfg := config.AppConfig

	app := &App{stopSnapshot: make(chan struct{})}

	// Initialize database.
	if _, err := database.InitDB(); err != nil {
		return nil, err
	}
	app.cleanupTasks = append(app.cleanupTasks, func() error {
		return database.CloseDB()
	})

	// Initialize Redis (optional). Failure shouldn't block the app.
	if _, err := database.InitRedis(); err != nil {
		logger.Warn("Failed to initialize Redis", zap.Error(err))
	} else {
		app.cleanupTasks = append(app.cleanupTasks, func() error {
			return database.CloseRedis()
		})
	}

	// Initialize MinIO (optional). 快照持久化缺失时索引从数据库重建。
	var blobStore *storage.BlobStore
	if cfg.Knowledge.Storage.Endpoint != "" {
		store, err := storage.NewBlobStore()
		if err != nil {
			logger.Warn("Failed to initialize MinIO", zap.Error(err))
		} else {
			blobStore = store
		}
	}

	// Initialize Kafka producer (optional).
	if cfg.Kafka.Enabled {
		if err := kafka.InitProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic); err != nil {
			logger.Warn("Failed to initialize Kafka producer", zap.Error(err))
		} else {
			app.cleanupTasks = append(app.cleanupTasks, func() error {
				return kafka.GetProducer().Close()
			})
		}
	}

	// 组装检索生成管线
	chunker, err := knowledge.NewChunker(cfg.Knowledge.ChunkSize, cfg.Knowledge.ChunkOverlap)
	if err != nil {
		return nil, err
	}

	embedder := knowledge.NewLazyEmbedder(func() knowledge.Embedder {
		if cfg.Knowledge.Embedding.Provider == "openai" && cfg.AI.OpenAIAPIKey != "" {
			return knowledge.NewOpenAIEmbedder(cfg.AI.OpenAIAPIKey, cfg.AI.EmbeddingModel)
		}
		return knowledge.NewHashEmbedder(cfg.Knowledge.Embedding.HashDim)
	})

	var vectorStore knowledge.VectorStore
	var memoryIndex *knowledge.MemoryVectorIndex
	if cfg.Knowledge.VectorStore.Provider == "milvus" {
		milvusCfg := cfg.Knowledge.VectorStore.Milvus
		store, err := knowledge.NewMilvusVectorStore(knowledge.MilvusOptions{
			Address:    milvusCfg.Address,
			Username:   milvusCfg.Username,
			Password:   milvusCfg.Password,
			Collection: milvusCfg.Collection,
			Database:   milvusCfg.Database,
			UseTLS:     milvusCfg.TLS,
			VectorSize: embedder.Dimensions(),
		})
		if err != nil {
			return nil, err
		}
		vectorStore = store
	} else {
		memoryIndex = knowledge.NewMemoryVectorIndex(0)
		vectorStore = memoryIndex
	}

	var indexer knowledge.FulltextIndexer = &knowledge.NoopFulltextIndexer{}
	if cfg.Knowledge.Search.Provider == "elasticsearch" {
		esCfg := cfg.Knowledge.Search.Elasticsearch
		esIndexer, err := knowledge.NewElasticsearchIndexer(
			esCfg.Addresses, esCfg.Username, esCfg.Password, esCfg.APIKey, esCfg.IndexPrefix)
		if err != nil {
			logger.Warn("Failed to initialize Elasticsearch indexer", zap.Error(err))
		} else {
			indexer = esIndexer
		}
	}

	webClient := knowledge.NewTavilyClient(cfg.WebSearch.TavilyAPIKey, cfg.WebSearch.MaxResults, cfg.WebSearch.Depth)
	generator := knowledge.NewOpenAIGenerator(cfg.AI.OpenAIAPIKey, cfg.AI.ChatModel, cfg.AI.MaxTokens, cfg.AI.Temperature)
	promptBuilder := knowledge.NewPromptBuilder(cfg.Knowledge.PromptBudget, cfg.Knowledge.HistoryTurns)

	app.DocumentService = services.NewDocumentService()
	app.ConversationService = services.NewConversationService()
	metrics := services.NewMetricsService()

	app.RAGService = services.NewRAGService(services.RAGServiceOptions{
		Chunker:       chunker,
		Embedder:      embedder,
		VectorStore:   vectorStore,
		MemoryIndex:   memoryIndex,
		WebClient:     webClient,
		PromptBuilder: promptBuilder,
		Generator:     generator,
		Indexer:       indexer,
		Documents:     app.DocumentService,
		Conversations: app.ConversationService,
		ChunkCache:    services.NewRedisChunkStore(),
		BlobStore:     blobStore,
		Metrics:       metrics,
		HistoryTurns:  cfg.Knowledge.HistoryTurns,
	})

	// 启动时恢复内存索引：快照优先，缺失或损坏时从权威分块存储重建
	if memoryIndex != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		if err := app.RAGService.RestoreIndex(ctx); err != nil {
			logger.Warn("索引恢复失败，以空索引启动", zap.Error(err))
		}
		cancel()

		if blobStore != nil {
			go app.snapshotLoop()
		}
	}

	return app, nil
}

// snapshotLoop 周期性保存索引快照
func (a *App) snapshotLoop() {
	ticker := time.NewTicker(snapshotInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			if err := a.RAGService.SaveSnapshot(ctx); err != nil {
				logger.Warn("索引快照保存失败", zap.Error(err))
			}
			cancel()
		case <-a.stopSnapshot:
			return
		}
	}
}

// Shutdown 释放资源，保存最终快照
func (a *App) Shutdown() {
	close(a.stopSnapshot)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := a.RAGService.SaveSnapshot(ctx); err != nil {
		logger.Warn("关闭前索引快照保存失败", zap.Error(err))
	}
	cancel()

	for i := len(a.cleanupTasks) - 1; i >= 0; i-- {
		if err := a.cleanupTasks[i](); err != nil {
			logger.Warn("资源清理失败", zap.Error(err))
		}
	}
	logger.Sync()
}
