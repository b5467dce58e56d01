package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	Shopify      ShopifyConfig
	Sync         SyncConfig
	Insights     InsightsConfig
	Frontend     FrontendConfig
	FeatureFlags FeatureFlagsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"SHOPLYTICS_APP_ENV" required:"true"`
	Port         string `envconfig:"SHOPLYTICS_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"SHOPLYTICS_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"SHOPLYTICS_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"SHOPLYTICS_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"SHOPLYTICS_DB_DSN"`
	Driver string `envconfig:"SHOPLYTICS_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"SHOPLYTICS_DB_HOST"`
	LegacyPort     int    `envconfig:"SHOPLYTICS_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"SHOPLYTICS_DB_USER"`
	LegacyPassword string `envconfig:"SHOPLYTICS_DB_PASSWORD"`
	LegacyName     string `envconfig:"SHOPLYTICS_DB_NAME"`
	LegacySSLMode  string `envconfig:"SHOPLYTICS_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"SHOPLYTICS_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"SHOPLYTICS_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"SHOPLYTICS_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"SHOPLYTICS_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"SHOPLYTICS_REDIS_URL" required:"true"`
	Address      string        `envconfig:"SHOPLYTICS_REDIS_ADDR"`
	Password     string        `envconfig:"SHOPLYTICS_REDIS_PASSWORD"`
	DB           int           `envconfig:"SHOPLYTICS_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"SHOPLYTICS_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"SHOPLYTICS_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"SHOPLYTICS_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"SHOPLYTICS_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"SHOPLYTICS_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// ShopifyConfig holds the Shopify app credentials. None of the fields are
// required at startup: a partially configured deployment must still serve the
// routes that never touch Shopify, so validation happens lazily per call.
type ShopifyConfig struct {
	APIKey      string `envconfig:"SHOPIFY_API_KEY"`
	APISecret   string `envconfig:"SHOPIFY_API_SECRET"`
	Scopes      string `envconfig:"SHOPIFY_SCOPES"`
	RedirectURI string `envconfig:"SHOPIFY_REDIRECT_URI"`
	WebhookURI  string `envconfig:"SHOPIFY_WEBHOOK_URI"`
	APIVersion  string `envconfig:"SHOPIFY_API_VERSION" default:"2024-10"`

	// BaseURL overrides the https://<shop> scheme+host, used by tests to
	// point the client at a local mock server. Empty in production.
	BaseURL string `envconfig:"SHOPIFY_BASE_URL"`
}

type SyncConfig struct {
	Interval      time.Duration `envconfig:"SHOPLYTICS_SYNC_INTERVAL" default:"15m"`
	CallDelay     time.Duration `envconfig:"SHOPLYTICS_SYNC_CALL_DELAY" default:"500ms"`
	MaxAttempts   int           `envconfig:"SHOPLYTICS_SYNC_MAX_ATTEMPTS" default:"5"`
	PageSize      int           `envconfig:"SHOPLYTICS_SYNC_PAGE_SIZE" default:"250"`
	LockTTL       time.Duration `envconfig:"SHOPLYTICS_SYNC_LOCK_TTL" default:"30m"`
	BackoffBase   time.Duration `envconfig:"SHOPLYTICS_SYNC_BACKOFF_BASE" default:"500ms"`
	BackoffCeiling time.Duration `envconfig:"SHOPLYTICS_SYNC_BACKOFF_CEILING" default:"16s"`
}

type InsightsConfig struct {
	CacheTTL time.Duration `envconfig:"SHOPLYTICS_INSIGHTS_CACHE_TTL" default:"5m"`
}

type FrontendConfig struct {
	SuccessURL string `envconfig:"FRONTEND_SUCCESS_URL" default:"/"`
	Origins    string `envconfig:"SHOPLYTICS_CORS_ORIGINS"`
}

// OriginList splits the configured CORS origins.
func (f FrontendConfig) OriginList() []string {
	if strings.TrimSpace(f.Origins) == "" {
		return nil
	}
	parts := strings.Split(f.Origins, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"SHOPLYTICS_AUTO_MIGRATE" default:"false"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
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
