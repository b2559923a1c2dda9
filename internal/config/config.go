package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Server    ServerConfig
	Log       LogConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig
	Cache     CacheConfig
	Handle    HandleConfig
	Extractor ExtractorConfig
	Proxy     ProxyConfig
	Download  DownloadConfig
	Worker    WorkerConfig
	Redis     RedisConfig
	Database  DatabaseConfig
	MinIO     MinIOConfig
	RabbitMQ  RabbitMQConfig
	Tracing   TracingConfig
}

type ServerConfig struct {
	Port            int           `envconfig:"API_PORT" default:"8080"`
	PublicBaseURL   string        `envconfig:"PUBLIC_BASE_URL" default:"http://localhost:8080"`
	ReadTimeout     time.Duration `envconfig:"API_READ_TIMEOUT" default:"10s"`
	IdleTimeout     time.Duration `envconfig:"API_IDLE_TIMEOUT" default:"120s"`
	ShutdownTimeout time.Duration `envconfig:"API_SHUTDOWN_TIMEOUT" default:"10s"`
	// TrustProxyHeaders enables chi's RealIP so limiter identities come
	// from X-Forwarded-For / X-Real-IP.
	TrustProxyHeaders bool `envconfig:"TRUST_PROXY_HEADERS" default:"false"`
}

type LogConfig struct {
	Level string `envconfig:"LOG_LEVEL" default:"info"`
}

// SlogLevel parses Level, falling back to info.
func (c LogConfig) SlogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(c.Level))); err != nil {
		return slog.LevelInfo
	}
	return level
}

type AuthConfig struct {
	// APIKeys is a comma-separated list of accepted keys.
	APIKeys     []string      `envconfig:"API_KEYS"`
	UseDatabase bool          `envconfig:"AUTH_USE_DATABASE" default:"false"`
	KeyCacheTTL time.Duration `envconfig:"AUTH_KEY_CACHE_TTL" default:"1m"`
}

// Keys returns the configured keys without blanks.
func (c AuthConfig) Keys() []string {
	keys := make([]string, 0, len(c.APIKeys))
	for _, k := range c.APIKeys {
		if k = strings.TrimSpace(k); k != "" {
			keys = append(keys, k)
		}
	}
	return keys
}

type RateLimitConfig struct {
	Requests int           `envconfig:"RATE_LIMIT_REQUESTS" default:"60"`
	Window   time.Duration `envconfig:"RATE_LIMIT_WINDOW" default:"1m"`
	// Backend is memory or redis.
	Backend string `envconfig:"RATE_LIMIT_BACKEND" default:"memory"`
}

type CacheConfig struct {
	// Backend is memory or redis.
	Backend       string        `envconfig:"CACHE_BACKEND" default:"memory"`
	ResultTTL     time.Duration `envconfig:"RESULT_CACHE_TTL" default:"6h"`
	SweepInterval time.Duration `envconfig:"CACHE_SWEEP_INTERVAL" default:"1m"`
	Enabled       bool          `envconfig:"RESULT_CACHE_ENABLED" default:"true"`
}

type HandleConfig struct {
	TTL time.Duration `envconfig:"HANDLE_TTL" default:"30m"`
	// ExpiredRetention keeps expired handles recognizable (410) this long.
	ExpiredRetention time.Duration `envconfig:"HANDLE_EXPIRED_RETENTION" default:"1h"`
}

type ExtractorConfig struct {
	// Backend is ytdlp or native.
	Backend       string        `envconfig:"EXTRACTOR_BACKEND" default:"ytdlp"`
	SearchBackend string        `envconfig:"SEARCH_BACKEND" default:"ytsearch"`
	YtDlpPath     string        `envconfig:"YTDLP_PATH" default:"yt-dlp"`
	YtDlpArgs     []string      `envconfig:"YTDLP_EXTRA_ARGS"`
	Timeout       time.Duration `envconfig:"EXTRACTOR_TIMEOUT" default:"60s"`
	Workers       int           `envconfig:"EXTRACTOR_WORKERS" default:"8"`
	QueueSize     int           `envconfig:"EXTRACTOR_QUEUE_SIZE" default:"64"`
}

type ProxyConfig struct {
	BufferSize    int           `envconfig:"PROXY_BUFFER_SIZE" default:"131072"`
	HeaderTimeout time.Duration `envconfig:"PROXY_HEADER_TIMEOUT" default:"15s"`
	DialTimeout   time.Duration `envconfig:"PROXY_DIAL_TIMEOUT" default:"10s"`
}

type DownloadConfig struct {
	// Mode is local or queue.
	Mode          string        `envconfig:"DOWNLOAD_MODE" default:"local"`
	Dir           string        `envconfig:"DOWNLOAD_DIR" default:"/tmp/mediagate"`
	Timeout       time.Duration `envconfig:"DOWNLOAD_TIMEOUT" default:"10m"`
	UploadToMinIO bool          `envconfig:"DOWNLOAD_UPLOAD" default:"false"`
	PresignExpiry time.Duration `envconfig:"DOWNLOAD_PRESIGN_EXPIRY" default:"1h"`
	ObjectPrefix  string        `envconfig:"DOWNLOAD_OBJECT_PREFIX" default:"downloads"`
}

type WorkerConfig struct {
	MaxRetries      int           `envconfig:"WORKER_MAX_RETRIES" default:"3"`
	ShutdownTimeout time.Duration `envconfig:"WORKER_SHUTDOWN_TIMEOUT" default:"30s"`
	MetricsPort     int           `envconfig:"WORKER_METRICS_PORT" default:"9091"`
}

type RedisConfig struct {
	Host     string `envconfig:"REDIS_HOST" default:"localhost"`
	Port     int    `envconfig:"REDIS_PORT" default:"6379"`
	Password string `envconfig:"REDIS_PASSWORD" default:""`
	DB       int    `envconfig:"REDIS_DB" default:"0"`
	Prefix   string `envconfig:"REDIS_KEY_PREFIX" default:"mediagate:"`
}

func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type DatabaseConfig struct {
	Host     string `envconfig:"POSTGRES_HOST" default:"localhost"`
	Port     int    `envconfig:"POSTGRES_PORT" default:"5432"`
	User     string `envconfig:"POSTGRES_USER" default:"mediagate"`
	Password string `envconfig:"POSTGRES_PASSWORD" default:"mediagate"`
	DBName   string `envconfig:"POSTGRES_DB" default:"mediagate"`
	SSLMode  string `envconfig:"POSTGRES_SSLMODE" default:"disable"`
}

func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode,
	)
}

type MinIOConfig struct {
	Endpoint string `envconfig:"MINIO_ENDPOINT" default:"localhost:9000"`
	// PublicEndpoint signs presigned URLs for clients outside the network.
	PublicEndpoint string `envconfig:"MINIO_PUBLIC_ENDPOINT" default:""`
	AccessKey      string `envconfig:"MINIO_ACCESS_KEY" default:"minioadmin"`
	SecretKey      string `envconfig:"MINIO_SECRET_KEY" default:"minioadmin"`
	Bucket         string `envconfig:"MINIO_BUCKET" default:"downloads"`
	UseSSL         bool   `envconfig:"MINIO_USE_SSL" default:"false"`
}

type RabbitMQConfig struct {
	Host     string `envconfig:"RABBITMQ_HOST" default:"localhost"`
	Port     int    `envconfig:"RABBITMQ_PORT" default:"5672"`
	User     string `envconfig:"RABBITMQ_USER" default:"mediagate"`
	Password string `envconfig:"RABBITMQ_PASSWORD" default:"mediagate"`
	VHost    string `envconfig:"RABBITMQ_VHOST" default:"/"`
}

func (c RabbitMQConfig) URL() string {
	return fmt.Sprintf(
		"amqp://%s:%s@%s:%d%s",
		c.User, c.Password, c.Host, c.Port, c.VHost,
	)
}

type TracingConfig struct {
	Enabled     bool    `envconfig:"OTEL_ENABLED" default:"false"`
	Endpoint    string  `envconfig:"OTEL_EXPORTER_OTLP_ENDPOINT" default:"localhost:4317"`
	ServiceName string  `envconfig:"OTEL_SERVICE_NAME" default:"mediagate"`
	Insecure    bool    `envconfig:"OTEL_EXPORTER_OTLP_INSECURE" default:"true"`
	SampleRatio float64 `envconfig:"OTEL_SAMPLE_RATIO" default:"1"`
}

// Load reads an optional .env file, then the environment. Variables
// already set in the environment win over .env entries.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to read .env: %w", err)
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings that cannot be wired.
func (c *Config) Validate() error {
	var errs []error

	if !slices.Contains([]string{"memory", "redis"}, c.RateLimit.Backend) {
		errs = append(errs, fmt.Errorf("RATE_LIMIT_BACKEND must be memory or redis, got %q", c.RateLimit.Backend))
	}
	if c.RateLimit.Requests <= 0 || c.RateLimit.Window <= 0 {
		errs = append(errs, errors.New("RATE_LIMIT_REQUESTS and RATE_LIMIT_WINDOW must be positive"))
	}
	if !slices.Contains([]string{"memory", "redis"}, c.Cache.Backend) {
		errs = append(errs, fmt.Errorf("CACHE_BACKEND must be memory or redis, got %q", c.Cache.Backend))
	}
	if c.Handle.TTL <= 0 {
		errs = append(errs, errors.New("HANDLE_TTL must be positive"))
	}
	if !slices.Contains([]string{"ytdlp", "native"}, c.Extractor.Backend) {
		errs = append(errs, fmt.Errorf("EXTRACTOR_BACKEND must be ytdlp or native, got %q", c.Extractor.Backend))
	}
	if !slices.Contains([]string{"ytsearch", "ytdlp"}, c.Extractor.SearchBackend) {
		errs = append(errs, fmt.Errorf("SEARCH_BACKEND must be ytsearch or ytdlp, got %q", c.Extractor.SearchBackend))
	}
	if c.Extractor.Workers <= 0 {
		errs = append(errs, errors.New("EXTRACTOR_WORKERS must be positive"))
	}
	if !slices.Contains([]string{"local", "queue"}, c.Download.Mode) {
		errs = append(errs, fmt.Errorf("DOWNLOAD_MODE must be local or queue, got %q", c.Download.Mode))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// ValidateAPI adds the checks only the HTTP gateway needs.
func (c *Config) ValidateAPI() error {
	if len(c.Auth.Keys()) == 0 && !c.Auth.UseDatabase {
		return errors.New("invalid config: API_KEYS is empty and AUTH_USE_DATABASE is off, so no key could ever be accepted")
	}
	return nil
}

// NeedsRedis reports whether any component is configured to use Redis.
func (c *Config) NeedsRedis() bool {
	return c.Cache.Backend == "redis" || c.RateLimit.Backend == "redis"
}
