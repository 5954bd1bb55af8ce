package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration loaded from environment variables.
type Config struct {
	Env               string
	HTTPPort          int
	ShutdownTimeout   time.Duration
	ReadHeaderTimeout time.Duration
	LogFile           string

	DataBackend string

	DatabaseDriver    string
	DatabaseURL       string
	DBMaxOpenConns    int
	DBMaxIdleConns    int
	DBConnMaxLifetime time.Duration
	DBConnMaxIdleTime time.Duration

	RedisURL string

	QueueBackend      string
	AMQPURL           string
	QueueName         string
	WorkerConcurrency int

	JWTSecret           string
	JWTExpiry           time.Duration
	TenantSignupEnabled bool

	RateLimitTenantPerMin int
	RateLimitUserPerMin   int

	WebhookHMACSecret string
	WebhookTimeout    time.Duration
	WebhookMaxRetries int

	ArtifactsBackend string
	ArtifactsDir     string
	PublicBaseURL    string
	S3Bucket         string
	S3Region         string
	S3Endpoint       string
	S3PublicBaseURL  string

	SofficeBin      string
	GhostscriptBin  string
	ConvertTimeout  time.Duration
	FetchUserAgent  string
	FetchTimeout    time.Duration
	PreflightStrict bool
}

const (
	defaultEnv               = "development"
	defaultHTTPPort          = 8080
	defaultShutdownTimeout   = 10 * time.Second
	defaultReadHeaderTimeout = 5 * time.Second

	defaultDataBackend = "memory"

	defaultDatabaseDriver    = "pgx"
	defaultDBMaxOpenConns    = 10
	defaultDBMaxIdleConns    = 5
	defaultDBConnMaxLifetime = time.Hour
	defaultDBConnMaxIdleTime = 30 * time.Minute

	defaultQueueBackend      = "memory"
	defaultQueueName         = "agentic.tasks"
	defaultWorkerConcurrency = 4

	defaultJWTExpiry = 24 * time.Hour

	defaultRateLimitTenantPerMin = 600
	defaultRateLimitUserPerMin   = 60

	defaultWebhookHMACSecret = "change-me"
	defaultWebhookTimeout    = 20 * time.Second
	defaultWebhookMaxRetries = 6

	defaultArtifactsBackend = "local"
	defaultArtifactsDir     = "/data/artifacts"
	defaultPublicBaseURL    = "http://localhost:8080"

	defaultSofficeBin     = "soffice"
	defaultGhostscriptBin = "gs"
	defaultConvertTimeout = 120 * time.Second
	defaultFetchTimeout   = 60 * time.Second
	defaultFetchUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) " +
		"AppleWebKit/537.36 (KHTML, like Gecko) " +
		"Chrome/125.0.0.0 Safari/537.36"
)

// fileAliases maps dotenv keys onto the config keys they stand for.
var fileAliases = map[string]string{
	"port": "http_port",
	"env":  "app_env",
}

// Load reads configuration values from the environment (and an optional .env
// file), applying defaults where necessary.
func Load() (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.AutomaticEnv()
	// PORT wins over HTTP_PORT so container platforms can override it at run time.
	_ = v.BindEnv("http_port", "PORT", "HTTP_PORT")
	_ = v.BindEnv("app_env", "APP_ENV", "ENV")

	if path := envFile(); path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("env")
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file %s: %w", path, err)
		}
		// BindEnv aliases only cover the process environment; a dotenv file
		// stores PORT and ENV under their own keys.
		for alias, key := range fileAliases {
			if v.InConfig(alias) && !v.InConfig(key) {
				v.SetDefault(key, v.Get(alias))
			}
		}
	}

	cfg := Config{
		Env:               v.GetString("app_env"),
		HTTPPort:          v.GetInt("http_port"),
		ShutdownTimeout:   v.GetDuration("shutdown_timeout"),
		ReadHeaderTimeout: v.GetDuration("read_header_timeout"),
		LogFile:           v.GetString("log_file"),

		DataBackend: strings.ToLower(v.GetString("data_backend")),

		DatabaseDriver:    v.GetString("database_driver"),
		DatabaseURL:       v.GetString("database_url"),
		DBMaxOpenConns:    v.GetInt("db_max_open_conns"),
		DBMaxIdleConns:    v.GetInt("db_max_idle_conns"),
		DBConnMaxLifetime: v.GetDuration("db_conn_max_lifetime"),
		DBConnMaxIdleTime: v.GetDuration("db_conn_max_idle_time"),

		RedisURL: v.GetString("redis_url"),

		QueueBackend:      strings.ToLower(v.GetString("queue_backend")),
		AMQPURL:           v.GetString("amqp_url"),
		QueueName:         v.GetString("queue_name"),
		WorkerConcurrency: v.GetInt("worker_concurrency"),

		JWTSecret:           v.GetString("jwt_secret"),
		JWTExpiry:           v.GetDuration("jwt_expiry"),
		TenantSignupEnabled: v.GetBool("tenant_signup_enabled"),

		RateLimitTenantPerMin: v.GetInt("rate_limit_tenant_per_min"),
		RateLimitUserPerMin:   v.GetInt("rate_limit_user_per_min"),

		WebhookHMACSecret: v.GetString("webhook_hmac_secret"),
		WebhookTimeout:    v.GetDuration("webhook_timeout"),
		WebhookMaxRetries: v.GetInt("webhook_max_retries"),

		ArtifactsBackend: strings.ToLower(v.GetString("artifacts_backend")),
		ArtifactsDir:     v.GetString("artifacts_dir"),
		PublicBaseURL:    v.GetString("public_base_url"),
		S3Bucket:         v.GetString("s3_bucket"),
		S3Region:         v.GetString("s3_region"),
		S3Endpoint:       v.GetString("s3_endpoint"),
		S3PublicBaseURL:  v.GetString("s3_public_base_url"),

		SofficeBin:      v.GetString("soffice_bin"),
		GhostscriptBin:  v.GetString("ghostscript_bin"),
		ConvertTimeout:  v.GetDuration("convert_timeout"),
		FetchUserAgent:  v.GetString("fetch_user_agent"),
		FetchTimeout:    v.GetDuration("fetch_timeout"),
		PreflightStrict: v.GetBool("preflight_strict"),
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app_env", defaultEnv)
	v.SetDefault("http_port", defaultHTTPPort)
	v.SetDefault("shutdown_timeout", defaultShutdownTimeout)
	v.SetDefault("read_header_timeout", defaultReadHeaderTimeout)

	v.SetDefault("data_backend", defaultDataBackend)

	v.SetDefault("database_driver", defaultDatabaseDriver)
	v.SetDefault("db_max_open_conns", defaultDBMaxOpenConns)
	v.SetDefault("db_max_idle_conns", defaultDBMaxIdleConns)
	v.SetDefault("db_conn_max_lifetime", defaultDBConnMaxLifetime)
	v.SetDefault("db_conn_max_idle_time", defaultDBConnMaxIdleTime)

	v.SetDefault("queue_backend", defaultQueueBackend)
	v.SetDefault("queue_name", defaultQueueName)
	v.SetDefault("worker_concurrency", defaultWorkerConcurrency)

	v.SetDefault("jwt_expiry", defaultJWTExpiry)
	v.SetDefault("tenant_signup_enabled", true)

	v.SetDefault("rate_limit_tenant_per_min", defaultRateLimitTenantPerMin)
	v.SetDefault("rate_limit_user_per_min", defaultRateLimitUserPerMin)

	v.SetDefault("webhook_hmac_secret", defaultWebhookHMACSecret)
	v.SetDefault("webhook_timeout", defaultWebhookTimeout)
	v.SetDefault("webhook_max_retries", defaultWebhookMaxRetries)

	v.SetDefault("artifacts_backend", defaultArtifactsBackend)
	v.SetDefault("artifacts_dir", defaultArtifactsDir)
	v.SetDefault("public_base_url", defaultPublicBaseURL)

	v.SetDefault("soffice_bin", defaultSofficeBin)
	v.SetDefault("ghostscript_bin", defaultGhostscriptBin)
	v.SetDefault("convert_timeout", defaultConvertTimeout)
	v.SetDefault("fetch_user_agent", defaultFetchUserAgent)
	v.SetDefault("fetch_timeout", defaultFetchTimeout)
	v.SetDefault("preflight_strict", false)
}

func (cfg Config) validate() error {
	if cfg.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if cfg.HTTPPort <= 0 || cfg.HTTPPort > 65535 {
		return fmt.Errorf("invalid PORT value: %d", cfg.HTTPPort)
	}

	switch cfg.DataBackend {
	case "memory":
		// no-op
	case "postgres":
		if cfg.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when DATA_BACKEND=postgres")
		}
	default:
		return fmt.Errorf("unknown DATA_BACKEND value: %s", cfg.DataBackend)
	}

	switch cfg.QueueBackend {
	case "memory":
	case "amqp":
		if cfg.AMQPURL == "" {
			return fmt.Errorf("AMQP_URL is required when QUEUE_BACKEND=amqp")
		}
	default:
		return fmt.Errorf("unknown QUEUE_BACKEND value: %s", cfg.QueueBackend)
	}

	switch cfg.ArtifactsBackend {
	case "local":
	case "s3":
		if cfg.S3Bucket == "" {
			return fmt.Errorf("S3_BUCKET is required when ARTIFACTS_BACKEND=s3")
		}
	default:
		return fmt.Errorf("unknown ARTIFACTS_BACKEND value: %s", cfg.ArtifactsBackend)
	}

	if cfg.WorkerConcurrency <= 0 {
		return fmt.Errorf("WORKER_CONCURRENCY must be positive")
	}
	return nil
}

// envFile returns the dotenv file to merge, if any. CONFIG_FILE takes
// precedence over a .env in the working directory.
func envFile() string {
	if p := os.Getenv("CONFIG_FILE"); p != "" {
		return p
	}
	if _, err := os.Stat(".env"); err == nil {
		return ".env"
	}
	return ""
}
