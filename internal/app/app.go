package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/nsqio/go-nsq"

	"voyagemate/apps/backend/features/failure"
	"voyagemate/apps/backend/features/indexing"
	"voyagemate/apps/backend/features/mcp"
	"voyagemate/apps/backend/features/query"
	"voyagemate/apps/backend/features/source"
	"voyagemate/apps/backend/features/stats"
	"voyagemate/apps/backend/internal/config"
	"voyagemate/apps/backend/internal/entity"
	"voyagemate/apps/backend/internal/middleware"
	"voyagemate/apps/backend/internal/pipeline"
	"voyagemate/apps/backend/internal/retrieval"
	"voyagemate/apps/backend/internal/worker"
)

// VectorStore is what the server needs from the vector database.
type VectorStore interface {
	pipeline.Store
	indexing.VectorSearcher
}

type App struct {
	Handler  http.Handler
	Engine   *retrieval.Engine
	Consumer *worker.IndexConsumer
	Failures *failure.Service
	port     int
}

// Runners builds single-entity runners on demand; failures go to the ledger.
type Runners struct {
	deps entity.Deps
}

func NewRunners(d entity.Deps) *Runners {
	return &Runners{deps: d}
}

func (r *Runners) Runner(name string) (pipeline.Runner, error) {
	return entity.Build(name, r.deps)
}

func New(
	ctx context.Context,
	cfg *config.Config,
	db *sql.DB,
	vecStore VectorStore,
	pub worker.Publisher,
	embedder pipeline.Embedder,
	generator retrieval.Generator,
	logger *slog.Logger,
) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}

	sourceRepo := source.NewPostgresRepo(db)

	failureRepo := failure.NewPostgresRepo(db)
	failureService := failure.NewService(failureRepo, pub, logger)
	failureHandler := failure.NewHandler(failureService)

	runners := NewRunners(entity.Deps{
		Source:   sourceRepo,
		Embedder: embedder,
		Store:    vecStore,
		Logger:   logger,
		Options: pipeline.Options{
			BatchTimeout: cfg.BatchTimeout(),
			Sink:         failureService,
		},
	})
	consumer := worker.NewIndexConsumer(runners, 0)

	indexingService := indexing.NewService(pub, embedder, vecStore)
	indexingHandler := indexing.NewHandler(indexingService)

	queryLogger, err := retrieval.NewFileQueryLogger(cfg.QueryLogPath)
	if err != nil {
		slog.Warn("failed to create query logger, falling back to stdout", "error", err)
		queryLogger = retrieval.NewQueryLogger(os.Stdout)
	}
	engine := retrieval.Open(ctx, cfg.KBDir, cfg.KBName, embedder, generator, queryLogger, logger, retrieval.Options{
		EmbedTimeout:    cfg.EmbedTimeout(),
		GenerateTimeout: cfg.GenerateTimeout(),
	})
	queryHandler := query.NewHandler(engine, embedder)

	statsHandler := stats.NewHandler(entity.Collections(), failureRepo, vecStore, engine)
	mcpHandler := mcp.NewHandler(engine, indexingService)

	cors := middleware.CORS(cfg.CORSOrigin)
	route := func(h http.HandlerFunc) http.Handler {
		return middleware.CorrelationID(cors(h))
	}

	mux := http.NewServeMux()

	mux.Handle("GET /search", route(queryHandler.Search))
	mux.Handle("GET /ask", route(queryHandler.Ask))
	mux.Handle("GET /health", route(queryHandler.Health))
	mux.Handle("POST /embed", route(queryHandler.Embed))

	mux.Handle("GET /entities/{entity}/search", route(indexingHandler.Search))
	mux.Handle("POST /entities/{entity}/{id}/index", route(indexingHandler.Index))
	mux.Handle("DELETE /entities/{entity}/{id}/index", route(indexingHandler.Index))

	mux.Handle("GET /failures", route(failureHandler.List))
	mux.Handle("POST /failures/{id}/retry", route(failureHandler.Retry))

	mux.Handle("GET /stats", route(statsHandler.GetStats))

	mux.Handle("/mcp", middleware.CorrelationID(mcpHandler))
	mux.Handle("GET /mcp/sse", route(mcpHandler.HandleSSE))
	mux.Handle("POST /mcp/messages", route(mcpHandler.HandleMessage))

	return &App{
		Handler:  mux,
		Engine:   engine,
		Consumer: consumer,
		Failures: failureService,
		port:     cfg.ServerPort,
	}, nil
}

// StartWorker connects the index consumer to NSQ. Stop the returned consumer on shutdown.
func (a *App) StartWorker(cfg *config.Config) (*nsq.Consumer, error) {
	consumer, err := nsq.NewConsumer(config.TopicIndexEntity, config.ChannelIndexer, nsq.NewConfig())
	if err != nil {
		return nil, fmt.Errorf("nsq consumer error: %w", err)
	}
	consumer.AddHandler(a.Consumer)
	if err := consumer.ConnectToNSQLookupd(cfg.NSQLookupd); err != nil {
		consumer.Stop()
		return nil, fmt.Errorf("connect to nsqlookupd: %w", err)
	}
	slog.Info("index consumer connected", "topic", config.TopicIndexEntity, "channel", config.ChannelIndexer)
	return consumer, nil
}

func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.port),
		Handler:           a.Handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown failed", "error", err)
		}
	}()

	slog.Info("server starting", "port", a.port, "knowledge_base_loaded", a.Engine.Loaded())
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
