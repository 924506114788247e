package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"

	pkgerrors "github.com/angelmondragon/symmetri/pkg/errors"
)

const (
	EnvPrefix = "SYMMETRI"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv    = "SYMMETRI_APP_ENV"
	EnvPort      = "SYMMETRI_APP_PORT"
	EnvDBDSN     = "SYMMETRI_DB_DSN"
	EnvDBHost    = "SYMMETRI_DB_HOST"
	EnvDBUser    = "SYMMETRI_DB_USER"
	EnvDBName    = "SYMMETRI_DB_NAME"
	EnvJWTSecret = "SYMMETRI_JWT_SECRET"
	EnvJWTIssuer = "SYMMETRI_JWT_ISSUER"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

type Config struct {
	App       AppConfig
	DB        DBConfig
	Redis     RedisConfig
	JWT       JWTConfig
	GCP       GCPConfig
	GCS       GCSConfig
	PubSub    PubSubConfig
	BigQuery  BigQueryConfig
	LLM       LLMConfig
	Generator GeneratorConfig
	Analyzer  AnalyzerConfig
	Metrics   MetricsConfig
	API       APIConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeConfig, err, "parse environment")
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"SYMMETRI_APP_ENV" required:"true"`
	Port         string `envconfig:"SYMMETRI_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"SYMMETRI_LOG_LEVEL" default:"info"`
	LogFormat    string `envconfig:"SYMMETRI_LOG_FORMAT" default:"json"`
	LogWarnStack bool   `envconfig:"SYMMETRI_LOG_WARN_STACK" default:"false"`
	AutoMigrate  bool   `envconfig:"SYMMETRI_AUTO_MIGRATE" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"SYMMETRI_DB_DSN"`
	Schema string `envconfig:"SYMMETRI_DB_SCHEMA" default:"public"`

	LegacyHost     string `envconfig:"SYMMETRI_DB_HOST"`
	LegacyPort     int    `envconfig:"SYMMETRI_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"SYMMETRI_DB_USER"`
	LegacyPassword string `envconfig:"SYMMETRI_DB_PASSWORD"`
	LegacyName     string `envconfig:"SYMMETRI_DB_NAME"`
	LegacySSLMode  string `envconfig:"SYMMETRI_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"SYMMETRI_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"SYMMETRI_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"SYMMETRI_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"SYMMETRI_DB_CONN_MAX_IDLE_TIME" default:"10m"`

	SlowQueryThreshold time.Duration `envconfig:"SYMMETRI_DB_SLOW_QUERY_THRESHOLD" default:"500ms"`
}

// Configured reports whether a DSN is available after legacy resolution.
func (db DBConfig) Configured() bool {
	return db.DSN != ""
}

type RedisConfig struct {
	URL          string        `envconfig:"SYMMETRI_REDIS_URL"`
	Address      string        `envconfig:"SYMMETRI_REDIS_ADDR"`
	Password     string        `envconfig:"SYMMETRI_REDIS_PASSWORD"`
	DB           int           `envconfig:"SYMMETRI_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"SYMMETRI_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"SYMMETRI_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"SYMMETRI_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"SYMMETRI_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"SYMMETRI_REDIS_WRITE_TIMEOUT" default:"5s"`
}

func (r RedisConfig) Configured() bool {
	return r.URL != "" || r.Address != ""
}

type JWTConfig struct {
	Secret            string `envconfig:"SYMMETRI_JWT_SECRET"`
	Issuer            string `envconfig:"SYMMETRI_JWT_ISSUER" default:"symmetri"`
	ExpirationMinutes int    `envconfig:"SYMMETRI_JWT_EXPIRATION_MINUTES" default:"60"`
}

// Expiration returns the access token lifetime.
func (j JWTConfig) Expiration() time.Duration {
	if j.ExpirationMinutes <= 0 {
		return time.Hour
	}
	return time.Duration(j.ExpirationMinutes) * time.Minute
}

type GCPConfig struct {
	ProjectID              string `envconfig:"SYMMETRI_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"SYMMETRI_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"SYMMETRI_GOOGLE_APPLICATION_CREDENTIALS"`
}

type GCSConfig struct {
	BucketName   string `envconfig:"SYMMETRI_GCS_BUCKET_NAME"`
	ExportPrefix string `envconfig:"SYMMETRI_GCS_EXPORT_PREFIX" default:"exports"`
}

type PubSubConfig struct {
	DatasetTopic string `envconfig:"SYMMETRI_PUBSUB_DATASET_TOPIC"`
}

type BigQueryConfig struct {
	Dataset  string `envconfig:"SYMMETRI_BIGQUERY_DATASET" default:"symmetri"`
	Location string `envconfig:"SYMMETRI_BIGQUERY_LOCATION" default:"US"`
}

type LLMConfig struct {
	OpenAIAPIKey    string        `envconfig:"SYMMETRI_OPENAI_API_KEY"`
	OpenAIBaseURL   string        `envconfig:"SYMMETRI_OPENAI_BASE_URL" default:"https://api.openai.com/v1"`
	AnthropicAPIKey string        `envconfig:"SYMMETRI_ANTHROPIC_API_KEY"`
	AnthropicURL    string        `envconfig:"SYMMETRI_ANTHROPIC_BASE_URL" default:"https://api.anthropic.com/v1"`
	VoyageAPIKey    string        `envconfig:"SYMMETRI_VOYAGE_API_KEY"`
	VoyageBaseURL   string        `envconfig:"SYMMETRI_VOYAGE_BASE_URL" default:"https://api.voyageai.com/v1"`
	GeminiAPIKey    string        `envconfig:"SYMMETRI_GEMINI_API_KEY"`
	Timeout         time.Duration `envconfig:"SYMMETRI_LLM_TIMEOUT" default:"120s"`
}

type GeneratorConfig struct {
	ConfigDir   string `envconfig:"SYMMETRI_GENERATOR_CONFIG_DIR" default:"./config"`
	OutputDir   string `envconfig:"SYMMETRI_GENERATOR_OUTPUT_DIR" default:"./output"`
	Seed        uint64 `envconfig:"SYMMETRI_GENERATOR_SEED" default:"42"`
	Warehouse   string `envconfig:"SYMMETRI_GENERATOR_WAREHOUSE" default:"none"`
	Parallelism int    `envconfig:"SYMMETRI_GENERATOR_PARALLELISM" default:"4"`
	LoadBatch   int    `envconfig:"SYMMETRI_GENERATOR_LOAD_BATCH" default:"5000"`
}

type AnalyzerConfig struct {
	Catalog  string        `envconfig:"SYMMETRI_ANALYZER_CATALOG" default:"bigquery"`
	CacheTTL time.Duration `envconfig:"SYMMETRI_ANALYZER_CACHE_TTL" default:"24h"`
}

type APIConfig struct {
	CORSOrigins     []string      `envconfig:"SYMMETRI_API_CORS_ORIGINS" default:"http://localhost:3000"`
	RateLimit       int           `envconfig:"SYMMETRI_API_RATE_LIMIT" default:"120"`
	RateLimitWindow time.Duration `envconfig:"SYMMETRI_API_RATE_LIMIT_WINDOW" default:"1m"`
}

type MetricsConfig struct {
	PushgatewayURL string `envconfig:"SYMMETRI_METRICS_PUSHGATEWAY_URL"`
	Job            string `envconfig:"SYMMETRI_METRICS_JOB" default:"symmetri"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	missing := []string{}
	provided := 0
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
			continue
		}
		provided++
	}

	if provided == 0 {
		return nil
	}
	if len(missing) > 0 {
		return pkgerrors.Newf(pkgerrors.CodeConfig, "either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
