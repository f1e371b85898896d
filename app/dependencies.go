package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/upb/rag-query-service/cognito"
	"github.com/upb/rag-query-service/config"
	"github.com/upb/rag-query-service/handlers"
	"github.com/upb/rag-query-service/middleware"
	"github.com/upb/rag-query-service/repositories"
	"github.com/upb/rag-query-service/repositories/postgres"
	"github.com/upb/rag-query-service/services/embedding"
	"github.com/upb/rag-query-service/services/generation"
	"github.com/upb/rag-query-service/services/metering"
	"github.com/upb/rag-query-service/services/providers"
	"github.com/upb/rag-query-service/services/providers/openai"
	"github.com/upb/rag-query-service/services/rag"
	"github.com/upb/rag-query-service/services/retrieval"
	"github.com/upb/rag-query-service/services/tenant"
	"go.uber.org/zap"
)

const trackerStopTimeout = 10 * time.Second

// Dependencies holds all application dependencies.
// This is the central wiring point for dependency injection.
type Dependencies struct {
	// Infrastructure
	Config *config.Config
	DB     *postgres.DB
	Redis  *redis.Client
	Logger *zap.Logger

	// Repository Factory
	RepoFactory *postgres.RepositoryFactory

	// Repositories
	TenantConfigs repositories.TenantConfigRepository
	UsageEvents   repositories.UsageEventRepository

	// Usage metering
	Recorder   *metering.Recorder
	Tracker    *metering.AsyncTracker
	Aggregator *metering.Aggregator

	// Query pipeline
	Models    providers.ModelClient
	Resolver  *tenant.Resolver
	Embedder  *embedding.Client
	Retriever *retrieval.Retriever
	Generator *generation.Generator
	RAG       *rag.Service

	// Auth
	verifier       *cognito.CognitoValidator
	AuthMiddleware *middleware.AuthMiddleware

	// Handlers
	HealthHandler    *handlers.HealthHandler
	ChatHandler      *handlers.ChatHandler
	DashboardHandler *handlers.DashboardHandler
}

// NewDependencies creates and wires up all application dependencies.
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config: cfg,
		Logger: logger,
	}

	// Initialize PostgreSQL
	if err := deps.initDatabase(ctx, cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	// Initialize repositories
	deps.initRepositories()

	// Initialize the optional tenant config cache
	if err := deps.initCache(ctx, cfg); err != nil {
		_ = deps.Close(ctx)
		return nil, fmt.Errorf("failed to initialize cache: %w", err)
	}

	// Initialize usage metering
	if err := deps.initMetering(cfg); err != nil {
		_ = deps.Close(ctx)
		return nil, fmt.Errorf("failed to initialize metering: %w", err)
	}

	// Initialize the query pipeline
	deps.initPipeline(cfg)

	// Initialize auth (Cognito JWT verification)
	if err := deps.initAuth(cfg); err != nil {
		_ = deps.Close(ctx)
		return nil, fmt.Errorf("failed to initialize auth: %w", err)
	}

	deps.initHandlers()

	logger.Info("all dependencies initialized successfully")
	return deps, nil
}

// initDatabase initializes the PostgreSQL database connection and factory
func (d *Dependencies) initDatabase(ctx context.Context, cfg *config.Config) error {
	factory, err := postgres.NewRepositoryFactory(cfg, d.Logger)
	if err != nil {
		return fmt.Errorf("failed to create repository factory: %w", err)
	}

	d.RepoFactory = factory
	d.DB = factory.GetDB()

	if cfg.Database.InitSchema {
		if err := factory.InitSchema(ctx); err != nil {
			_ = factory.Close()
			return fmt.Errorf("failed to initialize schema: %w", err)
		}
		d.Logger.Info("database schema initialized")
	}

	return nil
}

// initRepositories initializes all repository instances
func (d *Dependencies) initRepositories() {
	repos := d.RepoFactory.NewRepositories()

	d.TenantConfigs = repos.TenantConfigs
	d.UsageEvents = repos.UsageEvents

	d.Logger.Info("repositories initialized")
}

func (d *Dependencies) initCache(ctx context.Context, cfg *config.Config) error {
	if !cfg.Cache.TenantCacheEnabled {
		d.Resolver = tenant.NewResolver(d.TenantConfigs, nil, d.Logger)
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Cache.RedisAddr,
		Password: cfg.Cache.RedisPassword,
		DB:       cfg.Cache.RedisDB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return fmt.Errorf("redis ping failed: %w", err)
	}

	d.Redis = client
	cache := tenant.NewRedisCache(client, cfg.Cache.TenantCacheTTL, d.Logger)
	d.Resolver = tenant.NewResolver(d.TenantConfigs, cache, d.Logger)

	d.Logger.Info("tenant config cache enabled",
		zap.String("redis_addr", cfg.Cache.RedisAddr),
		zap.Duration("ttl", cfg.Cache.TenantCacheTTL))
	return nil
}

func (d *Dependencies) initMetering(cfg *config.Config) error {
	var overrides *config.Pricing
	if cfg.Models.PricingFile != "" {
		p, err := config.LoadPricing(cfg.Models.PricingFile)
		if err != nil {
			return err
		}
		overrides = p
	}

	metrics, err := metering.NewMetrics()
	if err != nil {
		return err
	}

	d.Recorder = metering.NewRecorder(d.UsageEvents, metering.NewPriceTable(overrides), metrics, d.Logger)
	d.Tracker = metering.NewAsyncTracker(d.Recorder, d.Logger, metering.AsyncConfig{
		BufferSize:   cfg.Metering.BufferSize,
		WorkerCount:  cfg.Metering.Workers,
		WriteTimeout: cfg.Metering.WriteTimeout,
	})
	if err := d.Tracker.Start(); err != nil {
		return err
	}

	d.Aggregator = metering.NewAggregator(d.UsageEvents, metering.AggregatorConfig{
		PageSize: cfg.Metering.ScanPageSize,
		MaxPages: cfg.Metering.ScanMaxPages,
	}, d.Logger)
	return nil
}

func (d *Dependencies) initPipeline(cfg *config.Config) {
	d.Models = openai.NewOpenAIAdapter(providers.ProviderConfig{
		APIKey:         cfg.Models.APIKey,
		BaseURL:        cfg.Models.BaseURL,
		ConnectTimeout: cfg.Models.ConnectTimeout,
		ReadTimeout:    cfg.Models.ReadTimeout,
		Logger:         d.Logger,
	})

	d.Embedder = embedding.NewClient(d.Models, cfg.Models.EmbeddingModelID, d.Tracker, d.Logger)
	d.Retriever = retrieval.NewRetriever(retrieval.Config{
		Scheme:         cfg.VectorStore.Scheme,
		DefaultLimit:   cfg.VectorStore.DefaultLimit,
		SnippetLength:  cfg.VectorStore.SnippetLength,
		ConnectTimeout: cfg.VectorStore.ConnectTimeout,
		ReadTimeout:    cfg.VectorStore.ReadTimeout,
	}, d.Logger)
	d.Generator = generation.NewGenerator(d.Models, generation.Config{
		ModelID:     cfg.Models.ChatModelID,
		Temperature: cfg.Models.Temperature,
		TopP:        cfg.Models.TopP,
		MaxTokens:   cfg.Models.MaxTokens,
	}, d.Tracker, d.Logger)

	d.RAG = rag.NewService(d.Resolver, d.Embedder, d.Retriever, d.Generator, cfg.VectorStore.DefaultLimit, d.Logger)

	d.Logger.Info("query pipeline initialized",
		zap.String("chat_model", cfg.Models.ChatModelID),
		zap.String("embedding_model", cfg.Models.EmbeddingModelID))
}

func (d *Dependencies) initAuth(cfg *config.Config) error {
	if cfg.Cognito.UserPoolID == "" || cfg.Cognito.ClientID == "" {
		d.Logger.Warn("cognito not configured, protected routes will reject every request")
		d.AuthMiddleware = middleware.NewAuthMiddleware(RejectAllValidator{}, d.Logger)
		return nil
	}

	verifier, err := cognito.NewCognitoValidator(cognito.Config{
		Region:         cfg.Cognito.Region,
		UserPoolID:     cfg.Cognito.UserPoolID,
		ClientID:       cfg.Cognito.ClientID,
		CacheTTL:       cfg.Cognito.JWKSCacheTTL,
		ConnectTimeout: cfg.Cognito.ConnectTimeout,
		HTTPTimeout:    cfg.Cognito.JWKSTimeout,
	})
	if err != nil {
		return err
	}

	d.verifier = verifier
	d.AuthMiddleware = middleware.NewAuthMiddleware(NewCognitoTokenValidator(verifier), d.Logger)
	d.Logger.Info("token verification initialized", zap.String("issuer", cfg.Cognito.Issuer()))
	return nil
}

func (d *Dependencies) initHandlers() {
	checks := map[string]handlers.HealthCheckFunc{
		"database": d.DB.HealthCheck,
	}
	if d.Redis != nil {
		checks["cache"] = func(ctx context.Context) error {
			return d.Redis.Ping(ctx).Err()
		}
	}

	d.HealthHandler = handlers.NewHealthHandler(checks, d.Logger)
	d.ChatHandler = handlers.NewChatHandler(d.RAG, d.Logger)
	d.DashboardHandler = handlers.NewDashboardHandler(d.Aggregator, d.Logger)
}

// IdentityVerifier verifies a bearer credential and returns the caller identity
type IdentityVerifier interface {
	ValidateToken(ctx context.Context, token string) (*cognito.Identity, error)
}

// CognitoTokenValidator adapts a Cognito verifier to middleware.TokenValidator
type CognitoTokenValidator struct {
	verifier IdentityVerifier
}

// NewCognitoTokenValidator creates a new CognitoTokenValidator
func NewCognitoTokenValidator(verifier IdentityVerifier) *CognitoTokenValidator {
	return &CognitoTokenValidator{verifier: verifier}
}

// ValidateToken converts a verified cognito.Identity into middleware.Claims
func (a *CognitoTokenValidator) ValidateToken(ctx context.Context, token string) (*middleware.Claims, error) {
	identity, err := a.verifier.ValidateToken(ctx, token)
	if err != nil {
		return nil, err
	}
	return &middleware.Claims{
		Subject:   identity.Subject,
		TenantID:  identity.TenantID,
		ClientID:  identity.ClientID,
		Email:     identity.Email,
		Username:  identity.Username,
		ExpiresAt: identity.ExpiresAt,
	}, nil
}

// RejectAllValidator rejects all tokens (used when Cognito is not configured)
type RejectAllValidator struct{}

// ValidateToken always fails
func (RejectAllValidator) ValidateToken(context.Context, string) (*middleware.Claims, error) {
	return nil, errors.New("authentication not configured")
}

// Close gracefully shuts down all dependencies. Pending usage events are
// flushed before the database is closed. Close is safe to call twice.
func (d *Dependencies) Close(ctx context.Context) error {
	d.Logger.Info("shutting down dependencies")

	var errs []error

	if d.Tracker != nil {
		if err := d.Tracker.Stop(trackerStopTimeout); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop usage tracker: %w", err))
		}
		d.Tracker = nil
	}

	if d.verifier != nil {
		d.verifier.Close()
		d.verifier = nil
	}

	if d.Redis != nil {
		if err := d.Redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close redis: %w", err))
		}
		d.Redis = nil
	}

	// Close database connection
	if d.RepoFactory != nil {
		if err := d.RepoFactory.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close database: %w", err))
		} else {
			d.Logger.Info("database connection closed")
		}
		d.RepoFactory = nil
	}

	// Sync logger
	if d.Logger != nil {
		_ = d.Logger.Sync()
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors during shutdown: %v", errs)
	}

	return nil
}
