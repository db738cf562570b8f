package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kirillkom/archivist/internal/config"
	"github.com/kirillkom/archivist/internal/core/ports"
	"github.com/kirillkom/archivist/internal/core/usecase"
	"github.com/kirillkom/archivist/internal/infrastructure/authz"
	"github.com/kirillkom/archivist/internal/infrastructure/classifier/rules"
	"github.com/kirillkom/archivist/internal/infrastructure/contentstore"
	neo4jgraph "github.com/kirillkom/archivist/internal/infrastructure/graph/neo4j"
	pgindex "github.com/kirillkom/archivist/internal/infrastructure/index/postgres"
	"github.com/kirillkom/archivist/internal/infrastructure/keyring"
	"github.com/kirillkom/archivist/internal/infrastructure/ocr"
	"github.com/kirillkom/archivist/internal/infrastructure/ocr/engine"
	"github.com/kirillkom/archivist/internal/infrastructure/queue/nats"
	"github.com/kirillkom/archivist/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/archivist/internal/infrastructure/resilience"
)

type App struct {
	Config config.Config

	Queue *nats.Queue
	Repo  *postgres.DocumentRepository
	Store *contentstore.Store

	IngestUC    ports.DocumentIngestor
	VersionUC   *usecase.VersionManager
	AccessUC    *usecase.AccessUseCase
	RelationsUC *usecase.RelationsUseCase
	ProcessUC   ports.VersionProcessor

	StageRetrier *resilience.StageRetrier

	closeFn func()
}

func New(ctx context.Context, cfg config.Config) (*App, error) {
	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := postgres.EnsureSchema(ctx, db); err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	repo := postgres.NewDocumentRepository(db)
	blobs := postgres.NewBlobRepository(db)
	audit := postgres.NewAuditRepository(db)

	keys, err := loadKeyring(cfg.EncryptionKeys)
	if err != nil {
		return nil, fmt.Errorf("load encryption keys: %w", err)
	}

	grace := time.Duration(cfg.BlobRetentionDays) * 24 * time.Hour
	store, err := contentstore.New(cfg.BlobStorePath, keys, blobs, grace)
	if err != nil {
		return nil, fmt.Errorf("init content store: %w", err)
	}

	executor := resilience.NewExecutor(resilience.DefaultConfig())
	queue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
		ResilienceExecutor: executor,
	})
	if err != nil {
		return nil, fmt.Errorf("init stage queue: %w", err)
	}

	relations, err := neo4jgraph.New(ctx, cfg.Neo4jURI, cfg.Neo4jUser, cfg.Neo4jPassword)
	if err != nil {
		return nil, fmt.Errorf("init relationship store: %w", err)
	}

	index := pgindex.New(db)
	if err := index.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure search schema: %w", err)
	}

	ruleset, err := rules.LoadFile(cfg.RulesPath)
	if err != nil {
		return nil, fmt.Errorf("load classification rules: %w", err)
	}
	classifier, err := rules.New(ruleset)
	if err != nil {
		return nil, fmt.Errorf("compile classification rules: %w", err)
	}

	var recognizer ocr.ImageRecognizer
	if cfg.OCREngineURL != "" {
		recognizer = engine.New(cfg.OCREngineURL, cfg.OCRLanguage, engine.Preprocess{
			Deskew:   cfg.OCRDeskew,
			Binarize: cfg.OCRBinarize,
			Denoise:  cfg.OCRDenoise,
		})
	}
	extractor := ocr.NewExtractor(store, recognizer)

	perm := authz.NewLevelChecker()
	locks := usecase.NewDocumentLocks()
	retrier := resilience.NewStageRetrier(executor)
	timeouts := usecase.StageTimeouts{
		Ocr:      time.Duration(cfg.OCRTimeoutSeconds) * time.Second,
		Classify: time.Duration(cfg.ClassifyTimeoutSeconds) * time.Second,
		Index:    time.Duration(cfg.IndexTimeoutSeconds) * time.Second,
	}

	ingestUC := usecase.NewIngestUseCase(repo, store, queue, audit)
	versionUC := usecase.NewVersionManager(repo, store, queue, audit, locks)
	accessUC := usecase.NewAccessUseCase(repo, store, index, perm, audit)
	relationsUC := usecase.NewRelationsUseCase(repo, relations, perm, audit)
	processUC := usecase.NewProcessUseCase(repo, extractor, classifier, index, locks, retrier, timeouts)

	return &App{
		Config: cfg,
		Queue:  queue,
		Repo:   repo,
		Store:  store,

		IngestUC:    ingestUC,
		VersionUC:   versionUC,
		AccessUC:    accessUC,
		RelationsUC: relationsUC,
		ProcessUC:   processUC,

		StageRetrier: retrier,

		closeFn: func() {
			queue.Close()
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := relations.Close(closeCtx); err != nil {
				slog.Warn("close_neo4j_failed", "error", err)
			}
			_ = db.Close()
		},
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}

func loadKeyring(spec string) (*keyring.Static, error) {
	if spec == "" {
		slog.Warn("no encryption keys configured, using an ephemeral key; blobs will be unreadable after restart")
		return keyring.NewEphemeral()
	}
	return keyring.Parse(spec)
}
