package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"github.com/Tarpelite/xiaoyi-sub000/internal/anomalyzone"
	"github.com/Tarpelite/xiaoyi-sub000/internal/archive"
	"github.com/Tarpelite/xiaoyi-sub000/internal/collectors"
	"github.com/Tarpelite/xiaoyi-sub000/internal/commandbus"
	"github.com/Tarpelite/xiaoyi-sub000/internal/config"
	"github.com/Tarpelite/xiaoyi-sub000/internal/entity"
	"github.com/Tarpelite/xiaoyi-sub000/internal/eventfabric"
	"github.com/Tarpelite/xiaoyi-sub000/internal/forecast"
	"github.com/Tarpelite/xiaoyi-sub000/internal/httpapi"
	"github.com/Tarpelite/xiaoyi-sub000/internal/httpauth"
	"github.com/Tarpelite/xiaoyi-sub000/internal/intent"
	"github.com/Tarpelite/xiaoyi-sub000/internal/llm"
	"github.com/Tarpelite/xiaoyi-sub000/internal/llm/anthropic"
	"github.com/Tarpelite/xiaoyi-sub000/internal/llm/openai"
	"github.com/Tarpelite/xiaoyi-sub000/internal/modelselect"
	"github.com/Tarpelite/xiaoyi-sub000/internal/observability"
	"github.com/Tarpelite/xiaoyi-sub000/internal/orchestrator"
	"github.com/Tarpelite/xiaoyi-sub000/internal/sentiment"
	"github.com/Tarpelite/xiaoyi-sub000/internal/state"
	"github.com/Tarpelite/xiaoyi-sub000/internal/tradingcal"

	redis "github.com/redis/go-redis/v9"
)

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("orchestratord")
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	observability.InitLogger(cfg.LogPath, cfg.LogLevel)

	baseCtx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	shutdownTracing, err := observability.InitTracing(baseCtx, observability.TracingConfig{
		OTLPEndpoint:   cfg.OTLPEndpoint,
		ServiceName:    cfg.ServiceName,
		ServiceVersion: cfg.ServiceVersion,
	})
	if err != nil {
		log.Warn().Err(err).Msg("orchestratord: tracing init failed, continuing without it")
		shutdownTracing = func(context.Context) error { return nil }
	}
	defer func() { _ = shutdownTracing(context.Background()) }()

	store, err := state.NewRedisStore(cfg.Redis)
	if err != nil {
		return fmt.Errorf("init state store: %w", err)
	}

	fabric, err := eventfabric.NewRedisFabric(cfg.Redis)
	if err != nil {
		return fmt.Errorf("init event fabric: %w", err)
	}
	defer func() { _ = fabric.Close() }()

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
	defer func() { _ = redisClient.Close() }()

	httpClient := observability.NewHTTPClient(nil)

	var provider llm.Provider
	switch cfg.LLM.Provider {
	case "openai":
		provider = openai.New(cfg.LLM.APIKey, cfg.LLM.BaseURL, cfg.LLM.Model)
	default:
		provider = anthropic.New(cfg.LLM.APIKey, cfg.LLM.BaseURL, cfg.LLM.Model)
	}

	embedder := &entity.HTTPEmbedder{Client: httpClient, BaseURL: cfg.LLM.BaseURL, APIKey: cfg.LLM.APIKey, Model: cfg.LLM.Model}
	index, err := entity.NewQdrantIndex(cfg.QdrantDSN, cfg.QdrantCollection, embedder.Embed)
	if err != nil {
		return fmt.Errorf("init entity index: %w", err)
	}
	defer func() { _ = index.Close() }()
	resolver := entity.New(index)

	classifier := &intent.Classifier{Provider: provider, Model: cfg.LLM.Model}

	backends := make([]forecast.Forecaster, 0, len(cfg.ForecastBackends)+1)
	for _, b := range cfg.ForecastBackends {
		backends = append(backends, forecast.NewHTTPBackend(httpClient, b.URL, b.Name))
	}
	backends = append(backends, forecast.SeasonalNaive{})
	runner := forecast.NewRunner(backends...)
	selector := modelselect.NewSelector(runner)
	selector.BaselinePenalty = cfg.BaselinePenalty

	priceFetcher := &collectors.HTTPPriceFetcher{Client: httpClient, BaseURL: cfg.PriceAPIURL}
	newsFetcher := &collectors.NewsFetcher{
		Sources: []collectors.NewsSource{
			collectors.NewHTTPNewsSource(httpClient, cfg.NewsAPIURL, cfg.NewsSearchAPIKey, "web_search", "web"),
			collectors.NewHTTPNewsSource(httpClient, cfg.DomainNewsAPIURL, cfg.NewsSearchAPIKey, "domain_news", "domain"),
		},
	}
	researchFetcher := &collectors.ResearchFetcher{Client: httpClient, BaseURL: cfg.RAGServiceURL}

	anomalyCache := anomalyzone.NewCache(redisClient)

	o := &orchestrator.Orchestrator{
		Store:             store,
		Fabric:            fabric,
		Classifier:        classifier,
		EntityResolver:    resolver,
		PriceFetcher:      priceFetcher,
		NewsFetcher:       newsFetcher,
		ResearchFetcher:   researchFetcher,
		ForecastRunner:    runner,
		Selector:          selector,
		Scorer:            &sentiment.Scorer{Provider: provider, Model: cfg.LLM.Model},
		Recommender:       &sentiment.Recommender{Provider: provider, Model: cfg.LLM.Model},
		Calendar:          tradingcal.WeekdayCalendar{},
		AnomalyCache:      anomalyCache,
		NarrationProvider: provider,
		NarrationModel:    cfg.LLM.Model,
		CandidateModels:   backendNames(cfg.ForecastBackends),
		DefaultModel:      cfg.DefaultForecastModel,
		IdleTimeout:       cfg.OrchestratorIdleTimeout,
	}

	if cfg.ArchiveEnabled {
		archiver, err := archive.New(baseCtx, archive.Config{
			Bucket:    cfg.ArchiveBucket,
			Prefix:    cfg.ArchivePrefix,
			Region:    cfg.ArchiveRegion,
			Endpoint:  cfg.ArchiveEndpoint,
			AccessKey: cfg.ArchiveAccessKey,
			SecretKey: cfg.ArchiveSecretKey,
		})
		if err != nil {
			log.Warn().Err(err).Msg("orchestratord: archive init failed, continuing without archival")
		} else {
			o.Archiver = archiver
		}
	}

	server := &httpapi.Server{Store: store, Fabric: fabric, Orchestrator: o}
	if cfg.OIDCIssuer != "" {
		verifier, err := httpauth.NewVerifier(baseCtx, cfg.OIDCIssuer, cfg.OIDCAudience)
		if err != nil {
			return fmt.Errorf("init oidc verifier: %w", err)
		}
		server.Verifier = verifier
	}

	httpServer := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: server.NewRouter(),
	}

	errs := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("orchestratord: listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errs <- err
		}
	}()

	if cfg.KafkaEnabled {
		if err := startCommandBus(baseCtx, cfg, server, redisClient); err != nil {
			log.Error().Err(err).Msg("orchestratord: command bus init failed, continuing HTTP-only")
		}
	}

	select {
	case <-baseCtx.Done():
		log.Info().Msg("orchestratord: shutdown signal received")
	case err := <-errs:
		return fmt.Errorf("http server: %w", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	return httpServer.Shutdown(shutdownCtx)
}

func backendNames(backends []config.ForecastBackend) []string {
	names := make([]string, 0, len(backends))
	for _, b := range backends {
		names = append(names, b.Name)
	}
	return names
}

func startCommandBus(ctx context.Context, cfg config.Config, server *httpapi.Server, redisClient *redis.Client) error {
	dedupe := commandbus.NewRedisDedupeStore(redisClient)
	producer := &kafka.Writer{
		Addr:     kafka.TCP(cfg.KafkaBrokers...),
		Balancer: &kafka.LeastBytes{},
	}
	submitter := server.NewCommandBusSubmitter()
	go func() {
		if err := commandbus.StartConsumer(ctx, cfg.KafkaBrokers, cfg.KafkaGroupID, cfg.KafkaTopic, producer, submitter, dedupe, 4, cfg.KafkaReplyTopic); err != nil {
			log.Error().Err(err).Msg("orchestratord: command bus consumer stopped")
		}
	}()
	return nil
}
