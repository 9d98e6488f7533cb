package bootstrap

import (
	"context"
	"fmt"
	"log"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"documind/internal/ai"
	"documind/internal/app"
	"documind/internal/cache"
	"documind/internal/config"
	"documind/internal/index"
	"documind/internal/model"
	mysqlClient "documind/internal/platform/mysql"
	rabbitmqClient "documind/internal/platform/rabbitmq"
	redisClient "documind/internal/platform/redis"
	"documind/internal/repository"
	"documind/internal/worker"
)

type App struct {
	Config *config.Config
	MySQL  *gorm.DB
	Redis  *redis.Client
	MQConn *amqp.Connection

	Indexer        *index.Indexer
	PipelineWorker *worker.PipelineWorker

	AuthService       *app.AuthService
	DocumentService   *app.DocumentService
	PipelineService   *app.PipelineService
	RAGService        *app.RAGService
	ValidationService *app.ValidationService

	StartedAt time.Time
}

func New(ctx context.Context) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config failed: %w", err)
	}

	mysqlDB, err := mysqlClient.New(ctx, cfg.MySQLDSN())
	if err != nil {
		return nil, err
	}
	if err := mysqlDB.AutoMigrate(
		&model.Tenant{},
		&model.User{},
		&model.Document{},
		&model.Chunk{},
		&model.Answer{},
		&model.Citation{},
		&model.ValidationTask{},
	); err != nil {
		return nil, fmt.Errorf("auto migrate tables failed: %w", err)
	}

	redisCli, err := redisClient.New(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		return nil, err
	}

	mqConn, err := rabbitmqClient.New(ctx, cfg.RabbitMQ.URL)
	if err != nil {
		return nil, err
	}

	userRepo := repository.NewUserRepository(mysqlDB)
	tenantRepo := repository.NewTenantRepository(mysqlDB)
	docRepo := repository.NewDocumentRepository(mysqlDB)
	chunkRepo := repository.NewChunkRepository(mysqlDB)
	answerRepo := repository.NewAnswerRepository(mysqlDB)
	validationRepo := repository.NewValidationRepository(mysqlDB)

	indexer := index.NewIndexer()
	if err := warmIndexes(indexer, docRepo, chunkRepo); err != nil {
		return nil, err
	}

	aiClient := ai.NewClient()
	embedder := ai.NewBatchEmbedder(aiClient, ai.EmbeddingConfig{
		BaseURL: cfg.LLM.BaseURL,
		APIKey:  cfg.LLM.APIKey,
		Model:   cfg.LLM.EmbeddingModel,
	}, ai.EmbedderOptions{
		BatchSize:   cfg.RAG.EmbedBatchSize,
		Concurrency: cfg.RAG.EmbedConcurrency,
		MaxRetries:  cfg.RAG.EmbedMaxRetries,
		RatePerSec:  cfg.RAG.EmbedRatePerSec,
	})
	chatCfg := ai.ChatConfig{
		BaseURL: cfg.LLM.BaseURL,
		APIKey:  cfg.LLM.APIKey,
		Model:   cfg.LLM.Model,
	}

	answerCache := cache.NewAnswerCache(redisCli, time.Duration(cfg.Redis.AnswerTTLSeconds)*time.Second)
	lockTTL := time.Duration(cfg.Redis.DocLockTTLSeconds) * time.Second
	docLock := cache.NewDocLock(redisCli, lockTTL)
	publisher := rabbitmqClient.NewJobPublisher(mqConn, cfg.RabbitMQ.PipelineQueue)

	authService := app.NewAuthService(
		userRepo,
		tenantRepo,
		cfg.Auth.JWTSecret,
		time.Duration(cfg.Auth.JWTExpireMinute)*time.Minute,
	)
	pipelineService := app.NewPipelineService(docRepo, chunkRepo, embedder, indexer, docLock, answerCache, cfg.RAG, lockTTL)
	documentService := app.NewDocumentService(docRepo, chunkRepo, indexer, publisher, answerCache, lockTTL)
	ragService := app.NewRAGService(
		chunkRepo, docRepo, answerRepo, validationRepo,
		indexer, embedder, aiClient,
		chatCfg, cfg.RAG, answerCache,
	)
	validationService := app.NewValidationService(validationRepo)

	pipelineWorker := worker.NewPipelineWorker(mqConn, pipelineService, cfg.RabbitMQ.PipelineQueue, cfg.RabbitMQ.WorkerConcurrency)
	if err := pipelineWorker.Start(ctx); err != nil {
		return nil, fmt.Errorf("start pipeline worker failed: %w", err)
	}

	return &App{
		Config:            cfg,
		MySQL:             mysqlDB,
		Redis:             redisCli,
		MQConn:            mqConn,
		Indexer:           indexer,
		PipelineWorker:    pipelineWorker,
		AuthService:       authService,
		DocumentService:   documentService,
		PipelineService:   pipelineService,
		RAGService:        ragService,
		ValidationService: validationService,
		StartedAt:         time.Now(),
	}, nil
}

// warmIndexes rebuilds the in-memory retrieval views from the active chunk
// generations of every indexed document. Durability is the database's job;
// the views are a pure derivation of it.
func warmIndexes(indexer *index.Indexer, docRepo *repository.DocumentRepository, chunkRepo *repository.ChunkRepository) error {
	docs, err := docRepo.ListByStatus(model.DocStatusIndexed)
	if err != nil {
		return fmt.Errorf("list indexed documents failed: %w", err)
	}

	total := 0
	for _, doc := range docs {
		chunks, err := chunkRepo.ListActiveByDocumentID(doc.ID)
		if err != nil {
			return fmt.Errorf("load chunks for document %d failed: %w", doc.ID, err)
		}
		entries := make([]index.Entry, 0, len(chunks))
		for i := range chunks {
			entries = append(entries, index.Entry{
				ChunkID:        chunks[i].ID,
				DocumentID:     doc.ID,
				Ordinal:        chunks[i].Ordinal,
				Content:        chunks[i].Content,
				Vector:         chunks[i].EmbeddingVector(),
				EmbeddingModel: chunks[i].EmbeddingModel,
				DocCreatedAt:   doc.CreatedAt,
			})
		}
		if err := indexer.Index(doc.TenantID, entries); err != nil {
			return fmt.Errorf("index document %d failed: %w", doc.ID, err)
		}
		total += len(entries)
	}
	if total > 0 {
		log.Printf("warmed retrieval indexes: %d chunks across %d documents", total, len(docs))
	}
	return nil
}

func (a *App) Close() error {
	var closeErr error
	if a.PipelineWorker != nil {
		a.PipelineWorker.Close()
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			closeErr = err
		}
	}
	if a.MQConn != nil {
		if err := a.MQConn.Close(); err != nil {
			closeErr = err
		}
	}
	if a.MySQL != nil {
		sqlDB, err := a.MySQL.DB()
		if err == nil {
			if err := sqlDB.Close(); err != nil {
				closeErr = err
			}
		}
	}
	return closeErr
}
