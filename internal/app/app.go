// internal/app/app.go
package app

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/generative-ai-go/genai"

	"github.com/markdave123-py/Excerpta/internal/config"
	db "github.com/markdave123-py/Excerpta/internal/core/database"
	"github.com/markdave123-py/Excerpta/internal/core/ingestion_engine"
	"github.com/markdave123-py/Excerpta/internal/core/llm"
	objectclient "github.com/markdave123-py/Excerpta/internal/core/object-client"
	"github.com/markdave123-py/Excerpta/internal/core/pagetext"
	"github.com/markdave123-py/Excerpta/internal/core/selection"
	"github.com/markdave123-py/Excerpta/internal/services"
)

type App struct {
	cfg          *config.Config
	DBClient     *db.DatabaseClient
	ObjectClient *objectclient.S3Client
	DocProcessor *ingestion_engine.DocumentIngestor
	Viewers      *services.ViewerService
	Server       *Server
	ai           *genai.Client
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
		_ = dbClient.Close()
		return nil, err
	}
	log.Println("Object client initialized and ready.")

	aiClient, err := llm.NewGeminiClient(appCtx, cfg.AIAPIKey)
	if err != nil {
		_ = dbClient.Close()
		return nil, fmt.Errorf("couldn't initialize the gemini client: %w", err)
	}
	embedder := llm.NewGeminiEmbedder(aiClient, cfg.EmbedModel)
	generator := llm.NewGeminiLLM(aiClient, cfg.GenModel)

	pages := pagetext.NewSource(objClient, cfg.TmpDir)

	ingCfg := ingestion_engine.DefaultIngestConfig
	docIngestor := ingestion_engine.NewDocumentIngestor(dbClient, pages, embedder, &ingCfg)

	docs := services.NewDocumentService(dbClient, objClient, pages, docIngestor, cfg.BucketName)
	contexts := services.NewContextService(dbClient)
	viewers := services.NewViewerService(docs, pages, contexts, services.ViewerConfig{
		Policy: selection.Policy{
			MinChars:    cfg.SelectionMinChars,
			MaxChars:    cfg.SelectionMaxChars,
			AreaPerChar: cfg.SelectionAreaPerChar,
		},
		MinDrag:        cfg.SelectionMinDrag,
		ExtractTimeout: cfg.ExtractTimeout,
		IdleTimeout:    cfg.ViewerIdleTimeout,
	})
	agents := services.DefaultAgentCatalog()
	if cfg.AgentsFile != "" {
		if agents, err = services.LoadAgentCatalog(cfg.AgentsFile); err != nil {
			_ = dbClient.Close()
			_ = aiClient.Close()
			return nil, err
		}
		log.Printf("loaded %d agents from %s", len(agents.List()), cfg.AgentsFile)
	}
	chat := services.NewChatService(agents, dbClient, docs, contexts, embedder, generator)

	server := NewServer(cfg, Handlers{
		Documents: docs,
		Contexts:  contexts,
		Viewers:   viewers,
		Chat:      chat,
	})

	return &App{
		cfg:          cfg,
		DBClient:     dbClient,
		ObjectClient: objClient,
		DocProcessor: docIngestor,
		Viewers:      viewers,
		Server:       server,
		ai:           aiClient,
	}, nil
}

// Run starts the ingestion workers, idle viewer eviction and the HTTP server,
// and shuts them down once ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	a.DocProcessor.Start(ctx, a.cfg.IngestWorkers)
	go a.Viewers.Run(ctx)

	errCh := make(chan error, 1)
	go func() { errCh <- a.Server.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := a.Server.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP shutdown: %v", err)
	}
	a.Viewers.Shutdown()
	a.DocProcessor.Wait()
	return nil
}

func (a *App) Close() {
	if a.ai != nil {
		_ = a.ai.Close()
	}
	if a.DBClient != nil {
		_ = a.DBClient.Close()
	}
}
