package app

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/markdave123-py/Homedex/internal/api/handlers"
	"github.com/markdave123-py/Homedex/internal/config"
	db "github.com/markdave123-py/Homedex/internal/core/database"
	"github.com/markdave123-py/Homedex/internal/core/ingestion_engine"
	"github.com/markdave123-py/Homedex/internal/core/llm"
	objectclient "github.com/markdave123-py/Homedex/internal/core/object-client"
	"github.com/markdave123-py/Homedex/internal/jobs"
	"github.com/markdave123-py/Homedex/internal/langsection"
	"github.com/markdave123-py/Homedex/internal/ocr"
	"github.com/markdave123-py/Homedex/internal/pdfdoc"
	"github.com/markdave123-py/Homedex/internal/reference"
	"github.com/markdave123-py/Homedex/internal/services"
	"github.com/markdave123-py/Homedex/internal/translation"
	"github.com/markdave123-py/Homedex/internal/uploads"
)

const initTimeout = 2 * time.Minute

type App struct {
	DBClient  *db.DatabaseClient
	Providers *llm.Providers
	Processor *jobs.Processor
	Ingestor  *ingestion_engine.ManualIngestor
	Devices   *services.DeviceService
	Server    *Server
}

// NewApp connects to the database and the models, wires the services and
// starts the background workers. Workers stop when ctx ends.
func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	if cfg.AuthEnabled() && cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required when ADMIN_PASSWORD_HASH is set")
	}
	for _, dir := range []string{cfg.UploadsDir, cfg.ManualsDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create %s: %w", dir, err)
		}
	}

	a, err := NewCore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	var archive services.Archive
	if cfg.ArchiveEnabled() {
		initCtx, cancel := context.WithTimeout(ctx, initTimeout)
		s3Client, err := objectclient.NewS3Client(initCtx, cfg)
		cancel()
		if err != nil {
			a.Close()
			return nil, err
		}
		archive = objectclient.NewArchiver(s3Client, cfg.BucketName)
		log.Info().Str("bucket", cfg.BucketName).Msg("object archive initialized and ready")
	}

	detector := langsection.NewDetector(langsection.NewLinguaClassifier(), pdfdoc.Open)
	translator := translation.NewTranslator(a.Providers.Translation, a.Providers.Chat)
	store := uploads.NewStore(cfg.UploadsDir)

	registry := jobs.NewRegistry(cfg.StatusTTL)
	a.Processor = jobs.NewProcessor(registry, jobs.Deps{
		Sections:  detector,
		Pages:     ocr.NewExtractor(a.Providers.Vision, ocr.WithRateLimit(cfg.OCRRateLimit)),
		Language:  translator,
		Reference: reference.NewGenerator(translator),
		Meta:      store,
	}, cfg.ProcessingQueue, cfg.LanguageSampleInterval)
	a.Processor.Start(ctx, cfg.ProcessingWorkers)
	go sweepLoop(ctx, registry, cfg.StatusTTL)

	a.Ingestor.Start(ctx, cfg.IngestWorkers)

	manuals := services.NewManualService(services.ManualDeps{
		Uploads:    store,
		DB:         a.DBClient,
		LLM:        a.Providers.Chat,
		Ingestor:   a.Ingestor,
		Archive:    archive,
		English:    detector,
		ManualsDir: cfg.ManualsDir,
	})
	a.Devices = services.NewDeviceService(a.DBClient, a.Ingestor, a.Ingestor, archive, cfg.ManualsDir)
	chat := services.NewChatService(a.DBClient, a.Providers.Embedder, a.Providers.Chat, cfg.TopK, cfg.RelevanceThreshold)

	a.Server = NewServer(cfg, Handlers{
		Auth:   handlers.NewAuthHandler(cfg.AdminEmail, cfg.AdminPasswordHash, cfg.JWTSecret),
		Manual: handlers.NewManualHandler(store, manuals, a.Processor, registry, cfg.MaxUploadMB),
		Device: handlers.NewDeviceHandler(a.Devices),
		Chat:   handlers.NewChatHandler(chat),
	})
	return a, nil
}

// NewCore opens the database, the model providers and the ingestor. The CLI
// uses it without the HTTP side.
func NewCore(ctx context.Context, cfg *config.Config) (*App, error) {
	initCtx, cancel := context.WithTimeout(ctx, initTimeout)
	defer cancel()

	dbClient, err := db.NewDatabaseClient(initCtx, cfg)
	if err != nil {
		return nil, err
	}
	log.Info().Msg("database initialized and ready")

	providers, err := llm.NewProviders(initCtx, cfg)
	if err != nil {
		_ = dbClient.Close()
		return nil, fmt.Errorf("couldn't initialize the model providers: %w", err)
	}
	log.Info().Str("provider", cfg.LLMProvider).Msg("model providers ready")

	ingestor := ingestion_engine.NewManualIngestor(dbClient, providers.Embedder, ingestion_engine.NewManualExtractor(), cfg.ManualsDir, &ingestion_engine.IngestConfig{
		ChunkSize:    cfg.ChunkSize,
		ChunkOverlap: cfg.ChunkOverlap,
	})

	return &App{DBClient: dbClient, Providers: providers, Ingestor: ingestor}, nil
}

func (a *App) Close() {
	if a.Providers != nil {
		_ = a.Providers.Close()
	}
	if a.DBClient != nil {
		_ = a.DBClient.Close()
	}
}

// sweepLoop evicts expired job records even when nobody polls.
func sweepLoop(ctx context.Context, registry *jobs.Registry, ttl time.Duration) {
	if ttl <= 0 {
		ttl = jobs.DefaultTTL
	}
	ticker := time.NewTicker(ttl / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			registry.Sweep()
		}
	}
}
