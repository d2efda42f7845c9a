package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"casecounsel-backend/auth"
	"casecounsel-backend/caselaw"
	"casecounsel-backend/config"
	"casecounsel-backend/extract"
	"casecounsel-backend/handlers"
	"casecounsel-backend/metrics"
	"casecounsel-backend/repository"
	"casecounsel-backend/service"
	"casecounsel-backend/storage"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const (
	shutdownTimeout = 30 * time.Second
	extractMaxChars = 200000
)

// backend is the persistence chosen by STORE_TYPE
type backend struct {
	cases    repository.CaseStore
	files    repository.FileStore
	verifier auth.Verifier
	jobs     *repository.SummaryJobRepository
	close    func()
}

func main() {
	envLoaded := config.LoadDotEnv()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()
	if !envLoaded {
		sugar.Warnf("Warning: No .env file found, using environment variables")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	be, err := initBackend(ctx, cfg, sugar)
	if err != nil {
		sugar.Fatalf("Failed to initialize %s store: %v", cfg.StoreType, err)
	}
	defer be.close()

	// Initialize storage
	fileStorage, err := storage.NewStorage(cfg.Storage)
	if err != nil {
		sugar.Fatalf("Failed to initialize storage: %v", err)
	}
	sugar.Infof("Storage initialized (%s)", cfg.Storage.Type)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)
	shared := []service.Option{service.WithLogger(sugar), service.WithMetrics(m)}

	// Initialize model gateway
	gateway, err := service.NewModelGateway(ctx, modelTable(cfg),
		service.GatewayWithTimeout(cfg.ModelTimeout),
		service.GatewayWith(shared...),
	)
	if err != nil {
		sugar.Fatalf("Failed to initialize model gateway: %v", err)
	}
	defer gateway.Close()

	var caselawOpts []caselaw.ClientOption
	if cfg.CaselawBaseURL != "" {
		caselawOpts = append(caselawOpts, caselaw.WithBaseURL(cfg.CaselawBaseURL))
	}
	caselawClient := caselaw.NewClient(cfg.CaselawToken, caselawOpts...)
	if !caselawClient.Configured() {
		sugar.Warnf("Warning: CASELAW_API_TOKEN not set, grounding will use model knowledge only")
	}

	// Initialize services
	var jobs service.SummaryJobRecorder
	var jobReader handlers.SummaryJobReader
	if be.jobs != nil {
		jobs = be.jobs
		jobReader = be.jobs
	}
	summarizer := service.NewSummarizer(be.cases, gateway, jobs, shared...)
	queue := service.NewSummaryQueue(summarizer,
		service.QueueWithDelay(cfg.SummaryDelay),
		service.QueueWith(shared...),
	)
	aggregator := service.NewContextAggregator(be.cases, queue, shared...)
	verifier := service.NewVerificationAgent(gateway, shared...)
	orchestrator := service.NewOrchestrator(
		service.OrchestratorWithCaseStore(be.cases),
		service.OrchestratorWithAggregator(aggregator),
		service.OrchestratorWithGatekeeper(service.NewGatekeeper(gateway, shared...)),
		service.OrchestratorWithGrounding(service.NewGroundingAgent(gateway, caselawClient, verifier, shared...)),
		service.OrchestratorWithGateway(gateway),
		service.OrchestratorWith(shared...),
	)
	caseService := service.NewCaseService(be.cases, shared...)

	// Setup Gin router
	if !cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery(), handlers.RequestLogger(sugar))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
		})
	})
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	handlers.Routes{
		Cases: handlers.NewCaseHandler(caseService, aggregator, queue, jobReader),
		Chat:  handlers.NewChatHandler(orchestrator),
		Files: handlers.NewFileHandler(be.files, caseService, fileStorage, extract.NewBasicExtractor(extractMaxChars), sugar),
	}.Register(r, be.verifier)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		sugar.Infof("Server starting on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			sugar.Fatalf("Failed to start server: %v", err)
		}
	}()

	<-ctx.Done()
	sugar.Infof("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		sugar.Errorf("HTTP shutdown: %v", err)
	}
	if err := queue.Shutdown(shutdownCtx); err != nil {
		sugar.Errorf("Summary queue shutdown: %v", err)
	}
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	if cfg.IsDevelopment() {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func modelTable(cfg *config.Config) map[service.ModelKey]service.ModelConfig {
	row := func(m config.ModelSettings) service.ModelConfig {
		return service.ModelConfig{
			Provider: m.Provider,
			Endpoint: m.Endpoint,
			ModelID:  m.ModelID,
			APIKey:   m.APIKey,
		}
	}
	return map[service.ModelKey]service.ModelConfig{
		service.ModelReasoning: row(cfg.Reasoning),
		service.ModelResearch:  row(cfg.Research),
	}
}

func initBackend(ctx context.Context, cfg *config.Config, logger *zap.SugaredLogger) (*backend, error) {
	if cfg.StoreType == config.StoreTypeMemory {
		if len(cfg.DevAPITokens) == 0 {
			logger.Warnf("Warning: DEV_API_TOKENS is empty, every request will be rejected")
		}
		logger.Infof("Using in-memory case store")
		return &backend{
			cases:    repository.NewMemoryCaseStore(),
			files:    repository.NewMemoryFileStore(),
			verifier: auth.NewStaticVerifier(cfg.DevAPITokens),
			close:    func() {},
		}, nil
	}

	db, err := initPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	logger.Infof("Postgres connection established")
	return &backend{
		cases:    repository.NewCaseRepository(db),
		files:    repository.NewFileRepository(db),
		verifier: auth.NewAPITokenVerifier(repository.NewUserRepository(db)),
		jobs:     repository.NewSummaryJobRepository(db),
		close:    db.Close,
	}, nil
}

func initPostgres(ctx context.Context, connString string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}
