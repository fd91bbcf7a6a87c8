package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"docchat/internal/ai"
	"docchat/internal/app"
	"docchat/internal/apperr"
	"docchat/internal/cache"
	"docchat/internal/chunker"
	"docchat/internal/config"
	"docchat/internal/conversation"
	"docchat/internal/extract"
	"docchat/internal/model"
	mysqlClient "docchat/internal/platform/mysql"
	rabbitmqClient "docchat/internal/platform/rabbitmq"
	redisClient "docchat/internal/platform/redis"
	sqliteClient "docchat/internal/platform/sqlite"
	"docchat/internal/repository"
	"docchat/internal/retrieval"
	"docchat/internal/summarizer"
	"docchat/internal/worker"
)

type App struct {
	Config *config.Config
	DB     *gorm.DB
	// Redis and MQConn are nil when their address is not configured.
	Redis        *redis.Client
	MQConn       *amqp.Connection
	LLM          *ai.OpenAICompatibleClient
	Service      *app.Service
	IngestWorker *worker.IngestWorker

	StartedAt time.Time
}

func New(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{Config: cfg, StartedAt: time.Now()}
	if err := a.init(ctx); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) init(ctx context.Context) error {
	cfg := a.Config

	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	a.DB = db
	if err := model.AutoMigrate(db); err != nil {
		return fmt.Errorf("auto migrate tables failed: %w", err)
	}

	if cfg.Redis.Addr != "" {
		if a.Redis, err = redisClient.New(ctx, redisClient.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		}); err != nil {
			return err
		}
	}
	if cfg.RabbitMQ.URL != "" {
		if a.MQConn, err = rabbitmqClient.New(ctx, cfg.RabbitMQ.URL); err != nil {
			return err
		}
	}

	sessions := repository.NewSessionRepository(db)
	documents := repository.NewDocumentRepository(db)
	turns := repository.NewTurnRepository(db)

	reset, err := sessions.ResetStates(ctx)
	if err != nil {
		return err
	}
	if reset > 0 {
		log.Printf("returned %d interrupted sessions to idle", reset)
	}

	a.LLM = ai.NewOpenAICompatibleClient(ai.Config{
		BaseURL:           cfg.LLM.BaseURL,
		APIKey:            cfg.LLM.APIKey,
		Model:             cfg.LLM.Model,
		EmbeddingModel:    cfg.LLM.EmbeddingModel,
		Timeout:           cfg.LLM.Timeout(),
		RequestsPerSecond: cfg.LLM.RequestsPerSecond,
		Retry: ai.RetryPolicy{
			MaxAttempts: cfg.LLM.MaxAttempts,
			MinInterval: time.Duration(cfg.LLM.RetryMinIntervalMS) * time.Millisecond,
			MaxInterval: time.Duration(cfg.LLM.RetryMaxIntervalMS) * time.Millisecond,
		},
	})

	chunks, err := chunker.New(cfg.Pipeline.ChunkMaxChars, cfg.Pipeline.ChunkOverlapChars)
	if err != nil {
		return err
	}

	var ranker retrieval.Ranker = retrieval.NewTFIDFRanker()
	if a.LLM.EmbeddingsEnabled() {
		ranker = retrieval.NewEmbeddingRanker(a.LLM, ranker)
	}
	engine := conversation.NewEngine(sessions, documents, turns, retrieval.NewAssembler(ranker), a.LLM, conversation.Options{
		ContextBudgetTokens: cfg.Chat.ContextBudgetTokens,
		HistoryBudgetTokens: cfg.Chat.HistoryBudgetTokens,
		MaxHistoryPairs:     cfg.Chat.MaxHistoryPairs,
		KeepRecentPairs:     cfg.Chat.KeepRecentPairs,
		AnswerMaxTokens:     cfg.Chat.AnswerMaxTokens,
		AnswerTimeout:       cfg.Chat.AnswerTimeout(),
		MaxQuestionTokens:   cfg.Chat.MaxQuestionTokens,
	})

	deps := app.Deps{
		Sessions:  sessions,
		Documents: documents,
		Turns:     turns,
		Extractor: extract.NewAdapter(extract.Options{
			FetchTimeout: cfg.Extract.FetchTimeout(),
			MaxPDFBytes:  cfg.Extract.MaxPDFBytes,
			MaxBodyBytes: cfg.Extract.MaxBodyBytes,
			UserAgent:    cfg.Extract.UserAgent,
		}),
		Chunker: chunks,
		Summarizer: summarizer.New(a.LLM, summarizer.Options{
			Concurrency:        cfg.Pipeline.SummaryConcurrency,
			ChunkMaxTokens:     cfg.Pipeline.ChunkSummaryMaxTokens,
			DocumentMaxTokens:  cfg.Pipeline.DocumentSummaryMaxTokens,
			ReduceBudgetTokens: cfg.Pipeline.ReduceBudgetTokens,
			MaxDepth:           cfg.Pipeline.MaxReduceDepth,
		}),
		Engine:   engine,
		Embedder: a.LLM,
	}
	if a.Redis != nil {
		deps.HistoryCache = cache.NewHistoryCache(
			a.Redis,
			time.Duration(cfg.Redis.HistoryTTLSeconds)*time.Second,
			time.Duration(cfg.Redis.HistoryDirtyTTLSeconds)*time.Second,
		)
	}
	if a.MQConn != nil {
		deps.Publisher = rabbitmqClient.NewIngestPublisher(a.MQConn, cfg.RabbitMQ.IngestQueue)
	}

	a.Service = app.NewService(deps, app.Options{
		IngestTimeout:      cfg.Pipeline.IngestTimeout(),
		SessionListLimit:   cfg.Chat.SessionListLimit,
		EmbeddingBatchSize: cfg.LLM.EmbeddingBatchSize,
	})
	return nil
}

// StartWorker consumes background ingestion jobs. It is a no-op without
// rabbitmq.
func (a *App) StartWorker(ctx context.Context) error {
	if a.MQConn == nil || a.IngestWorker != nil {
		return nil
	}
	w := worker.NewIngestWorker(a.MQConn, a.Service, a.Config.RabbitMQ.IngestQueue, a.Config.RabbitMQ.WorkerConcurrency)
	if err := w.Start(ctx); err != nil {
		return fmt.Errorf("start ingest worker failed: %w", err)
	}
	a.IngestWorker = w
	return nil
}

func (a *App) Close() error {
	var errs []error
	if a.IngestWorker != nil {
		a.IngestWorker.Close()
	}
	if a.Redis != nil {
		errs = append(errs, a.Redis.Close())
	}
	if a.MQConn != nil && !a.MQConn.IsClosed() {
		errs = append(errs, a.MQConn.Close())
	}
	if a.DB != nil {
		if sqlDB, err := a.DB.DB(); err == nil {
			errs = append(errs, sqlDB.Close())
		}
	}
	return errors.Join(errs...)
}

func openDatabase(ctx context.Context, cfg *config.Config) (*gorm.DB, error) {
	switch cfg.Database.Driver {
	case "sqlite":
		return sqliteClient.New(ctx, sqliteClient.FileDSN(cfg.Database.SQLitePath))
	case "mysql":
		return mysqlClient.New(ctx, mysqlClient.Options{
			DSN:             cfg.MySQLDSN(),
			MaxOpenConns:    cfg.Database.MaxOpenConns,
			MaxIdleConns:    cfg.Database.MaxIdleConns,
			ConnMaxLifetime: cfg.Database.ConnMaxLifetime(),
		})
	}
	return nil, fmt.Errorf("%w: unknown database driver %q", apperr.ErrInvalidConfiguration, cfg.Database.Driver)
}
