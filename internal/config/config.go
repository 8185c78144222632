package config

import (
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"
)

type LookupFunc func(string) (string, bool)

type Profile string

const (
	ProfileDev  Profile = "dev"
	ProfileTest Profile = "test"
	ProfileProd Profile = "prod"
)

const (
	BackendLlamaCPP = "llamacpp"
	BackendOpenAI   = "openai"
	BackendGemini   = "gemini"
)

type Config struct {
	Profile       Profile
	Service       ServiceConfig
	HTTP          HTTPConfig
	Database      DatabaseConfig
	Model         ModelConfig
	ModelStore    ModelStoreConfig
	Query         QueryConfig
	Observability ObservabilityConfig
}

type ServiceConfig struct {
	Name string
}

type HTTPConfig struct {
	Address      string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type DatabaseConfig struct {
	Dialect         string
	DSN             string
	ReadOnly        bool
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxIdleTime time.Duration
	ConnMaxLifetime time.Duration
	PingTimeout     time.Duration
}

type ModelConfig struct {
	Backend         string
	Path            string
	Name            string
	ContextWindow   int
	Threads         int
	GPULayers       int
	ServerBinary    string
	ServerAddr      string
	BaseURL         string
	APIKey          string
	MaxTokens       int
	Temperature     float64
	GenerateTimeout time.Duration
	StartupTimeout  time.Duration
	RetryInterval   time.Duration
	CacheDir        string
	EagerInit       bool
}

type ModelStoreConfig struct {
	Endpoint        string
	Region          string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
	UseSSL          bool
	Prefix          string
}

type QueryConfig struct {
	RowLimit int
}

type ObservabilityConfig struct {
	LogLevel slog.Level
	LogJSON  bool
}

func LoadFromEnv(serviceName string) (Config, error) {
	return Load(serviceName, os.LookupEnv)
}

func Load(serviceName string, lookup LookupFunc) (Config, error) {
	if lookup == nil {
		return Config{}, fmt.Errorf("lookup function is required")
	}

	profile := ProfileDev
	if raw, ok := lookup("SHOPSQL_PROFILE"); ok {
		profile = Profile(strings.ToLower(strings.TrimSpace(raw)))
	}
	if !isValidProfile(profile) {
		return Config{}, fmt.Errorf("invalid SHOPSQL_PROFILE: %q", profile)
	}

	cfg := defaultsForProfile(profile)
	if serviceName != "" {
		cfg.Service.Name = serviceName
	}

	appliers := []func() error{
		func() error { return applyString(lookup, "SHOPSQL_SERVICE_NAME", &cfg.Service.Name) },
		func() error { return applyString(lookup, "SHOPSQL_HTTP_ADDR", &cfg.HTTP.Address) },
		func() error { return applyDuration(lookup, "SHOPSQL_HTTP_READ_TIMEOUT", &cfg.HTTP.ReadTimeout) },
		func() error { return applyDuration(lookup, "SHOPSQL_HTTP_WRITE_TIMEOUT", &cfg.HTTP.WriteTimeout) },
		func() error { return applyDuration(lookup, "SHOPSQL_HTTP_IDLE_TIMEOUT", &cfg.HTTP.IdleTimeout) },
		func() error { return applyString(lookup, "SHOPSQL_DB_DIALECT", &cfg.Database.Dialect) },
		func() error { return applyString(lookup, "SHOPSQL_DB_DSN", &cfg.Database.DSN) },
		func() error { return applyBool(lookup, "SHOPSQL_DB_READ_ONLY", &cfg.Database.ReadOnly) },
		func() error { return applyInt(lookup, "SHOPSQL_DB_MAX_OPEN_CONNS", &cfg.Database.MaxOpenConns) },
		func() error { return applyInt(lookup, "SHOPSQL_DB_MAX_IDLE_CONNS", &cfg.Database.MaxIdleConns) },
		func() error {
			return applyDuration(lookup, "SHOPSQL_DB_CONN_MAX_IDLE_TIME", &cfg.Database.ConnMaxIdleTime)
		},
		func() error {
			return applyDuration(lookup, "SHOPSQL_DB_CONN_MAX_LIFETIME", &cfg.Database.ConnMaxLifetime)
		},
		func() error { return applyDuration(lookup, "SHOPSQL_DB_PING_TIMEOUT", &cfg.Database.PingTimeout) },
		func() error { return applyString(lookup, "SHOPSQL_MODEL_BACKEND", &cfg.Model.Backend) },
		func() error { return applyString(lookup, "SHOPSQL_MODEL_PATH", &cfg.Model.Path) },
		func() error { return applyString(lookup, "SHOPSQL_MODEL_NAME", &cfg.Model.Name) },
		func() error { return applyInt(lookup, "SHOPSQL_MODEL_CONTEXT_WINDOW", &cfg.Model.ContextWindow) },
		func() error { return applyInt(lookup, "SHOPSQL_MODEL_THREADS", &cfg.Model.Threads) },
		func() error { return applyInt(lookup, "SHOPSQL_MODEL_GPU_LAYERS", &cfg.Model.GPULayers) },
		func() error { return applyString(lookup, "SHOPSQL_MODEL_SERVER_BINARY", &cfg.Model.ServerBinary) },
		func() error { return applyString(lookup, "SHOPSQL_MODEL_SERVER_ADDR", &cfg.Model.ServerAddr) },
		func() error { return applyString(lookup, "SHOPSQL_MODEL_BASE_URL", &cfg.Model.BaseURL) },
		func() error { return applyString(lookup, "SHOPSQL_MODEL_API_KEY", &cfg.Model.APIKey) },
		func() error { return applyInt(lookup, "SHOPSQL_MODEL_MAX_TOKENS", &cfg.Model.MaxTokens) },
		func() error { return applyFloat(lookup, "SHOPSQL_MODEL_TEMPERATURE", &cfg.Model.Temperature) },
		func() error {
			return applyDuration(lookup, "SHOPSQL_MODEL_GENERATE_TIMEOUT", &cfg.Model.GenerateTimeout)
		},
		func() error {
			return applyDuration(lookup, "SHOPSQL_MODEL_STARTUP_TIMEOUT", &cfg.Model.StartupTimeout)
		},
		func() error {
			return applyDuration(lookup, "SHOPSQL_MODEL_RETRY_INTERVAL", &cfg.Model.RetryInterval)
		},
		func() error { return applyString(lookup, "SHOPSQL_MODEL_CACHE_DIR", &cfg.Model.CacheDir) },
		func() error { return applyBool(lookup, "SHOPSQL_MODEL_EAGER_INIT", &cfg.Model.EagerInit) },
		func() error { return applyString(lookup, "SHOPSQL_MODELSTORE_ENDPOINT", &cfg.ModelStore.Endpoint) },
		func() error { return applyString(lookup, "SHOPSQL_MODELSTORE_REGION", &cfg.ModelStore.Region) },
		func() error { return applyString(lookup, "SHOPSQL_MODELSTORE_BUCKET", &cfg.ModelStore.Bucket) },
		func() error { return applyString(lookup, "SHOPSQL_MODELSTORE_ACCESS_KEY", &cfg.ModelStore.AccessKeyID) },
		func() error {
			return applyString(lookup, "SHOPSQL_MODELSTORE_SECRET_KEY", &cfg.ModelStore.SecretAccessKey)
		},
		func() error { return applyBool(lookup, "SHOPSQL_MODELSTORE_USE_SSL", &cfg.ModelStore.UseSSL) },
		func() error { return applyString(lookup, "SHOPSQL_MODELSTORE_PREFIX", &cfg.ModelStore.Prefix) },
		func() error { return applyInt(lookup, "SHOPSQL_QUERY_ROW_LIMIT", &cfg.Query.RowLimit) },
		func() error { return applyBool(lookup, "SHOPSQL_LOG_JSON", &cfg.Observability.LogJSON) },
		func() error { return applyLogLevel(lookup, "SHOPSQL_LOG_LEVEL", &cfg.Observability.LogLevel) },
	}
	for _, apply := range appliers {
		if err := apply(); err != nil {
			return Config{}, err
		}
	}

	cfg.Database.Dialect = strings.ToLower(cfg.Database.Dialect)
	cfg.Model.Backend = strings.ToLower(cfg.Model.Backend)

	if cfg.Service.Name == "" {
		return Config{}, fmt.Errorf("service name is required")
	}
	if cfg.HTTP.Address == "" {
		return Config{}, fmt.Errorf("http address is required")
	}
	if cfg.Database.DSN == "" {
		return Config{}, fmt.Errorf("database dsn is required")
	}
	if !isValidBackend(cfg.Model.Backend) {
		return Config{}, fmt.Errorf("invalid SHOPSQL_MODEL_BACKEND: %q", cfg.Model.Backend)
	}
	if cfg.Model.ContextWindow <= 0 {
		return Config{}, fmt.Errorf("invalid SHOPSQL_MODEL_CONTEXT_WINDOW: must be > 0")
	}
	if cfg.Model.Threads <= 0 {
		return Config{}, fmt.Errorf("invalid SHOPSQL_MODEL_THREADS: must be > 0")
	}
	if cfg.Model.GPULayers < 0 {
		return Config{}, fmt.Errorf("invalid SHOPSQL_MODEL_GPU_LAYERS: must be >= 0")
	}
	return cfg, nil
}

func defaultsForProfile(profile Profile) Config {
	cfg := Config{
		Profile: profile,
		Service: ServiceConfig{Name: "shopsql-api"},
		HTTP: HTTPConfig{
			Address:      ":8000",
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 60 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Database: DatabaseConfig{
			Dialect:         "sqlite",
			DSN:             "database/ecommerce.db",
			ReadOnly:        true,
			MaxOpenConns:    8,
			MaxIdleConns:    8,
			ConnMaxIdleTime: 5 * time.Minute,
			ConnMaxLifetime: 30 * time.Minute,
			PingTimeout:     5 * time.Second,
		},
		Model: ModelConfig{
			Backend:         BackendLlamaCPP,
			Path:            "models/mistral-7b-openorca.Q4_K_M.gguf",
			ContextWindow:   2048,
			Threads:         8,
			GPULayers:       defaultGPULayers(runtime.GOOS),
			ServerBinary:    "llama-server",
			ServerAddr:      "127.0.0.1:8081",
			BaseURL:         "https://api.openai.com/v1",
			MaxTokens:       256,
			Temperature:     0.1,
			GenerateTimeout: 30 * time.Second,
			StartupTimeout:  2 * time.Minute,
			RetryInterval:   30 * time.Second,
			CacheDir:        "models/cache",
			EagerInit:       true,
		},
		ModelStore: ModelStoreConfig{
			Region: "us-east-1",
			UseSSL: false,
		},
		Query: QueryConfig{
			RowLimit: 0,
		},
		Observability: ObservabilityConfig{
			LogLevel: slog.LevelDebug,
			LogJSON:  true,
		},
	}

	switch profile {
	case ProfileTest:
		cfg.HTTP.Address = ":18000"
		cfg.Observability.LogLevel = slog.LevelWarn
		cfg.Model.EagerInit = false
	case ProfileProd:
		cfg.Observability.LogLevel = slog.LevelInfo
		cfg.ModelStore.UseSSL = true
		cfg.Query.RowLimit = 10000
	}

	return cfg
}

// defaultGPULayers offloads one layer on Apple silicon hosts and none elsewhere.
func defaultGPULayers(goos string) int {
	if goos == "darwin" {
		return 1
	}
	return 0
}

func isValidProfile(profile Profile) bool {
	switch profile {
	case ProfileDev, ProfileTest, ProfileProd:
		return true
	default:
		return false
	}
}

func isValidBackend(backend string) bool {
	switch backend {
	case BackendLlamaCPP, BackendOpenAI, BackendGemini:
		return true
	default:
		return false
	}
}

func applyString(lookup LookupFunc, key string, dst *string) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	*dst = strings.TrimSpace(raw)
	return nil
}

func applyDuration(lookup LookupFunc, key string, dst *time.Duration) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyBool(lookup LookupFunc, key string, dst *bool) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyInt(lookup LookupFunc, key string, dst *int) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyFloat(lookup LookupFunc, key string, dst *float64) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyLogLevel(lookup LookupFunc, key string, dst *slog.Level) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	level := strings.ToLower(strings.TrimSpace(raw))
	switch level {
	case "debug":
		*dst = slog.LevelDebug
	case "info":
		*dst = slog.LevelInfo
	case "warn", "warning":
		*dst = slog.LevelWarn
	case "error":
		*dst = slog.LevelError
	default:
		return fmt.Errorf("invalid %s: %q", key, raw)
	}
	return nil
}
