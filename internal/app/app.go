package app

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/verifai-labs/verifai/internal/config"
	db "github.com/verifai-labs/verifai/internal/core/database"
	"github.com/verifai-labs/verifai/internal/core/extraction"
	"github.com/verifai-labs/verifai/internal/core/llm"
	objectclient "github.com/verifai-labs/verifai/internal/core/object-client"
	"github.com/verifai-labs/verifai/internal/core/workflow"
	"github.com/verifai-labs/verifai/internal/services"
)

type App struct {
	DBClient *db.DatabaseClient
	Server   *Server

	closers []func() error
}

func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	appCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	dbClient, err := db.NewDatabaseClient(appCtx, cfg)
	if err != nil {
		return nil, err
	}
	log.Println("Database initialized and ready.")

	objClient, err := objectclient.NewS3Client(appCtx, cfg)
	if err != nil {
		return nil, err
	}
	log.Println("Object client initialized and ready.")

	embedder, err := llm.NewGeminiEmbedder(appCtx, cfg.AIAPIKey, cfg.EmbedModel)
	if err != nil {
		return nil, fmt.Errorf("couldn't initialize the embedder, %w", err)
	}

	llmProvider, err := llm.NewGeminiLLM(appCtx, cfg.AIAPIKey, cfg.GenModel)
	if err != nil {
		return nil, fmt.Errorf("couldn't initialize the llm provider, %w", err)
	}

	visionProvider, err := llm.NewGeminiVision(appCtx, cfg.AIAPIKey, cfg.VisionModel)
	if err != nil {
		return nil, fmt.Errorf("couldn't initialize the vision provider, %w", err)
	}

	extractor := extraction.NewExtractor(visionProvider, llmProvider)

	engine := workflow.NewEngine(dbClient, dbClient, embedder, extractor, workflow.Timeouts{
		Extraction: cfg.ExtractionTimeout,
		Embed:      cfg.EmbedTimeout,
		Query:      cfg.QueryTimeout,
	})

	verificationSvc := services.NewVerificationService(dbClient, objClient, engine)
	chatSvc := services.NewChatService(dbClient, dbClient, embedder, llmProvider, services.ChatTimeouts{
		Embed:    cfg.EmbedTimeout,
		Query:    cfg.QueryTimeout,
		Generate: cfg.GenerateTimeout,
	})
	patternSvc := services.NewPatternService(dbClient, dbClient, embedder)

	// Make the seeded fraud patterns matchable. Best-effort: without the
	// embedder the workflow degrades per step instead.
	if err := patternSvc.EnsureEmbeddings(appCtx); err != nil {
		log.Printf("WARN: fraud pattern embeddings not ready: %v", err)
	}

	server := NewServer(cfg, dbClient, verificationSvc, chatSvc, patternSvc)

	app := &App{DBClient: dbClient, Server: server}
	app.closers = append(app.closers, dbClient.Close, embedder.Close, llmProvider.Close, visionProvider.Close)
	return app, nil
}

func (a *App) Close() {
	for _, c := range a.closers {
		_ = c()
	}
}
