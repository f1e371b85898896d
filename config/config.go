package config

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DefaultChatModelID      = "anthropic.claude-3-5-sonnet-20241022-v2:0"
	DefaultEmbeddingModelID = "amazon.titan-embed-text-v2:0"
)

// Config represents the complete application configuration
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Cognito       CognitoConfig
	Models        ModelsConfig
	VectorStore   VectorStoreConfig
	Metering      MeteringConfig
	Cache         CacheConfig
	Observability ObservabilityConfig
	Environment   string
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	RequestTimeout  time.Duration
	AllowedOrigins  []string
	TLS             struct {
		Enabled  bool
		CertFile string
		KeyFile  string
	}
}

// DatabaseConfig holds PostgreSQL database configuration.
// When ConnectionString (from DATABASE_URL) is set, it takes precedence over individual fields.
type DatabaseConfig struct {
	ConnectionString string // From DATABASE_URL when set
	Host             string
	Port             int
	User             string
	Password         string
	Database         string
	SSLMode          string
	MaxOpenConns     int
	MaxIdleConns     int
	ConnMaxLifetime  time.Duration
	InitSchema       bool
}

// CognitoConfig holds AWS Cognito token verification configuration
type CognitoConfig struct {
	Region         string
	UserPoolID     string
	ClientID       string
	JWKSCacheTTL   time.Duration // 0 disables caching; the key set is fetched per token
	JWKSTimeout    time.Duration
	ConnectTimeout time.Duration
}

// ModelsConfig holds the model endpoint and the inference parameters sent with every chat call.
type ModelsConfig struct {
	BaseURL          string
	APIKey           string
	ChatModelID      string
	EmbeddingModelID string
	Temperature      float64
	TopP             float64
	MaxTokens        int
	ConnectTimeout   time.Duration
	ReadTimeout      time.Duration
	PricingFile      string
}

// VectorStoreConfig holds settings for the tenant vector index search.
type VectorStoreConfig struct {
	Scheme         string
	DefaultLimit   int
	SnippetLength  int
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
}

// MeteringConfig controls usage event persistence and aggregation.
type MeteringConfig struct {
	Workers      int
	BufferSize   int
	WriteTimeout time.Duration
	ScanPageSize int
	ScanMaxPages int
}

// CacheConfig holds the optional Redis read-through cache for tenant configs.
type CacheConfig struct {
	TenantCacheEnabled bool
	TenantCacheTTL     time.Duration
	RedisAddr          string
	RedisPassword      string
	RedisDB            int
}

// ObservabilityConfig holds monitoring and logging configuration
type ObservabilityConfig struct {
	ServiceName     string
	LogLevel        string
	LogFormat       string // json or console
	TracingEnabled  bool
	TracingExporter string // otlp or stdout
	TracingEndpoint string // OTLP gRPC endpoint, shared by traces and metrics
	MetricsEnabled  bool
	MetricsInterval time.Duration
}

// New creates a new Config instance by loading environment variables
func New(ctx context.Context) (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load(".env")

	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getPort(),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 90*time.Second),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
			RequestTimeout:  getEnvAsDuration("SERVER_REQUEST_TIMEOUT", 75*time.Second),
			AllowedOrigins:  getEnvAsList("CORS_ALLOWED_ORIGINS", []string{"*"}),
			TLS: struct {
				Enabled  bool
				CertFile string
				KeyFile  string
			}{
				Enabled:  getEnvAsBool("TLS_ENABLED", false),
				CertFile: getEnv("TLS_CERT_FILE", "certs/cert.pem"),
				KeyFile:  getEnv("TLS_KEY_FILE", "certs/key.pem"),
			},
		},
		Database: loadDatabaseConfig(),
		Cognito: CognitoConfig{
			Region:         getEnv("COGNITO_REGION", "us-east-1"),
			UserPoolID:     getEnv("COGNITO_USER_POOL_ID", ""),
			ClientID:       getEnv("COGNITO_CLIENT_ID", ""),
			JWKSCacheTTL:   getEnvAsDuration("COGNITO_JWKS_CACHE_TTL", time.Hour),
			JWKSTimeout:    getEnvAsDuration("COGNITO_JWKS_TIMEOUT", 10*time.Second),
			ConnectTimeout: getEnvAsDuration("COGNITO_CONNECT_TIMEOUT", 3*time.Second),
		},
		Models: ModelsConfig{
			BaseURL:          getEnv("MODEL_BASE_URL", "http://localhost:8000/api/v1"),
			APIKey:           getEnv("MODEL_API_KEY", ""),
			ChatModelID:      getEnv("CHAT_MODEL_ID", DefaultChatModelID),
			EmbeddingModelID: getEnv("EMBEDDING_MODEL_ID", DefaultEmbeddingModelID),
			Temperature:      getEnvAsFloat("MODEL_TEMPERATURE", 1.0),
			TopP:             getEnvAsFloat("MODEL_TOP_P", 1.0),
			MaxTokens:        getEnvAsInt("MODEL_MAX_TOKENS", 1024),
			ConnectTimeout:   getEnvAsDuration("MODEL_CONNECT_TIMEOUT", 3050*time.Millisecond),
			ReadTimeout:      getEnvAsDuration("MODEL_READ_TIMEOUT", 27*time.Second),
			PricingFile:      getEnv("MODEL_PRICING_FILE", ""),
		},
		VectorStore: VectorStoreConfig{
			Scheme:         getEnv("VECTOR_STORE_SCHEME", "https"),
			DefaultLimit:   getEnvAsInt("VECTOR_SEARCH_DEFAULT_LIMIT", 5),
			SnippetLength:  getEnvAsInt("VECTOR_SNIPPET_LENGTH", 200),
			ConnectTimeout: getEnvAsDuration("VECTOR_STORE_CONNECT_TIMEOUT", 3050*time.Millisecond),
			ReadTimeout:    getEnvAsDuration("VECTOR_STORE_READ_TIMEOUT", 27*time.Second),
		},
		Metering: MeteringConfig{
			Workers:      getEnvAsInt("USAGE_WORKERS", 2),
			BufferSize:   getEnvAsInt("USAGE_BUFFER_SIZE", 256),
			WriteTimeout: getEnvAsDuration("USAGE_WRITE_TIMEOUT", 5*time.Second),
			ScanPageSize: getEnvAsInt("USAGE_SCAN_PAGE_SIZE", 500),
			ScanMaxPages: getEnvAsInt("USAGE_SCAN_MAX_PAGES", 100),
		},
		Cache: CacheConfig{
			TenantCacheEnabled: getEnvAsBool("TENANT_CACHE_ENABLED", false),
			TenantCacheTTL:     getEnvAsDuration("TENANT_CACHE_TTL", 5*time.Minute),
			RedisAddr:          getEnv("REDIS_ADDR", "localhost:6379"),
			RedisPassword:      getEnv("REDIS_PASSWORD", ""),
			RedisDB:            getEnvAsInt("REDIS_DB", 0),
		},
		Observability: ObservabilityConfig{
			ServiceName:     getEnv("SERVICE_NAME", "rag-query-service"),
			LogLevel:        getEnv("LOG_LEVEL", "info"),
			LogFormat:       getEnv("LOG_FORMAT", "json"),
			TracingEnabled:  getEnvAsBool("TRACING_ENABLED", false),
			TracingExporter: getEnv("OTEL_EXPORTER", "stdout"),
			TracingEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			MetricsEnabled:  getEnvAsBool("METRICS_ENABLED", false),
			MetricsInterval: getEnvAsDuration("METRICS_EXPORT_INTERVAL", 30*time.Second),
		},
	}

	// Validate the configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if all required configuration fields are set
func (c *Config) Validate() error {
	// Database validation (DATABASE_URL or DB_* vars)
	if c.Database.ConnectionString == "" && c.Database.Host == "" {
		return fmt.Errorf("database configuration required: set DATABASE_URL or DB_HOST")
	}
	if c.Database.ConnectionString == "" {
		if c.Database.User == "" {
			return fmt.Errorf("database user is required")
		}
		if c.Database.Database == "" {
			return fmt.Errorf("database name is required")
		}
	}

	// Cognito validation (required in production)
	if c.IsProduction() {
		if c.Cognito.UserPoolID == "" {
			return fmt.Errorf("cognito user pool ID is required in production")
		}
		if c.Cognito.ClientID == "" {
			return fmt.Errorf("cognito client ID is required in production")
		}
	}
	if c.Cognito.JWKSCacheTTL < 0 {
		return fmt.Errorf("jwks cache ttl must not be negative")
	}

	if c.Models.BaseURL == "" {
		return fmt.Errorf("model base URL is required")
	}
	if c.Models.ChatModelID == "" || c.Models.EmbeddingModelID == "" {
		return fmt.Errorf("chat and embedding model IDs are required")
	}
	if c.Models.Temperature < 0 || c.Models.Temperature > 1 {
		return fmt.Errorf("model temperature must be between 0 and 1")
	}
	if c.Models.TopP < 0 || c.Models.TopP > 1 {
		return fmt.Errorf("model top_p must be between 0 and 1")
	}
	if c.Models.MaxTokens <= 0 {
		return fmt.Errorf("model max tokens must be positive")
	}
	if c.Models.ConnectTimeout <= 0 || c.Models.ReadTimeout <= 0 {
		return fmt.Errorf("model timeouts must be positive")
	}

	if c.VectorStore.Scheme != "http" && c.VectorStore.Scheme != "https" {
		return fmt.Errorf("vector store scheme must be http or https")
	}
	if c.VectorStore.DefaultLimit <= 0 {
		return fmt.Errorf("vector search default limit must be positive")
	}
	if c.VectorStore.ConnectTimeout <= 0 || c.VectorStore.ReadTimeout <= 0 {
		return fmt.Errorf("vector store timeouts must be positive")
	}

	if c.Metering.Workers <= 0 || c.Metering.BufferSize <= 0 {
		return fmt.Errorf("usage workers and buffer size must be positive")
	}
	if c.Metering.ScanPageSize <= 0 || c.Metering.ScanMaxPages <= 0 {
		return fmt.Errorf("usage scan page size and max pages must be positive")
	}

	if c.Cache.TenantCacheEnabled && c.Cache.RedisAddr == "" {
		return fmt.Errorf("redis address is required when tenant cache is enabled")
	}

	// Observability validation
	if c.Observability.LogLevel == "" {
		return fmt.Errorf("log level is required")
	}
	if c.Observability.TracingEnabled &&
		c.Observability.TracingExporter != "otlp" && c.Observability.TracingExporter != "stdout" {
		return fmt.Errorf("tracing exporter must be otlp or stdout")
	}
	if c.Observability.MetricsEnabled && c.Observability.MetricsInterval <= 0 {
		return fmt.Errorf("metrics export interval must be positive")
	}

	return nil
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.Environment == "production" || c.Environment == "prod"
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development" || c.Environment == "dev"
}

// DSN returns the PostgreSQL connection string.
// Uses ConnectionString (from DATABASE_URL) when set; otherwise builds from individual fields.
func (c *DatabaseConfig) DSN() string {
	if c.ConnectionString != "" {
		return c.ConnectionString
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// LogString returns a safe string for logging (no password). Parses ConnectionString when set.
func (c *DatabaseConfig) LogString() string {
	if c.ConnectionString != "" {
		u, err := url.Parse(c.ConnectionString)
		if err == nil {
			host := u.Hostname()
			port := u.Port()
			if port == "" {
				port = "5432"
			}
			db := strings.TrimPrefix(u.Path, "/")
			return fmt.Sprintf("host=%s port=%s database=%s", host, port, db)
		}
		return "host=<from DATABASE_URL>"
	}
	return fmt.Sprintf("host=%s port=%d database=%s", c.Host, c.Port, c.Database)
}

// loadDatabaseConfig loads database config from DATABASE_URL or DB_* env vars
func loadDatabaseConfig() DatabaseConfig {
	dbURL := getEnv("DATABASE_URL", "")
	if dbURL != "" {
		return DatabaseConfig{
			ConnectionString: dbURL,
			MaxOpenConns:     getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:     getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime:  getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
			InitSchema:       getEnvAsBool("DB_INIT_SCHEMA", false),
		}
	}
	return DatabaseConfig{
		Host:            getEnv("DB_HOST", "localhost"),
		Port:            getEnvAsInt("DB_PORT", 5432),
		User:            getEnv("DB_USER", "dev"),
		Password:        getEnv("DB_PASSWORD", ""),
		Database:        getEnv("DB_NAME", "rag"),
		SSLMode:         getEnv("DB_SSLMODE", "disable"),
		MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
		MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
		ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		InitSchema:      getEnvAsBool("DB_INIT_SCHEMA", false),
	}
}

// Address returns the HTTP server address
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// JWKSURL returns the well-known signing key endpoint of the user pool.
func (c *CognitoConfig) JWKSURL() string {
	return fmt.Sprintf("%s/.well-known/jwks.json", c.Issuer())
}

// Issuer returns the expected iss claim for tokens minted by the user pool.
func (c *CognitoConfig) Issuer() string {
	return fmt.Sprintf("https://cognito-idp.%s.amazonaws.com/%s", c.Region, c.UserPoolID)
}

// Helper functions

// getPort returns the server port from PORT or SERVER_PORT env vars (default: 8080)
func getPort() int {
	if value := os.Getenv("PORT"); value != "" {
		if p, err := strconv.Atoi(value); err == nil {
			return p
		}
	}
	if value := os.Getenv("SERVER_PORT"); value != "" {
		if p, err := strconv.Atoi(value); err == nil {
			return p
		}
	}
	return 8080
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
