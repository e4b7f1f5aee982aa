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
	JWT          JWTConfig
	FeatureFlags FeatureFlagsConfig
	HTTP         HTTPConfig
	Drawer       DrawerConfig
	Eventing     EventingConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	BigQuery     BigQueryConfig
	Outbox       OutboxConfig
	Audit        AuditConfig
	Cron         CronConfig
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
	Env          string `envconfig:"TILLSTOCK_APP_ENV" required:"true"`
	Port         string `envconfig:"TILLSTOCK_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"TILLSTOCK_LOG_LEVEL" default:"info"`
	LogFormat    string `envconfig:"TILLSTOCK_LOG_FORMAT" default:"json"`
	LogWarnStack bool   `envconfig:"TILLSTOCK_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd) || strings.EqualFold(a.Env, "production")
}

type ServiceConfig struct {
	Kind string `envconfig:"TILLSTOCK_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"TILLSTOCK_DB_DSN"`
	Driver string `envconfig:"TILLSTOCK_DB_DRIVER" default:"postgres"`

	Host     string `envconfig:"TILLSTOCK_DB_HOST"`
	Port     int    `envconfig:"TILLSTOCK_DB_PORT" default:"5432"`
	User     string `envconfig:"TILLSTOCK_DB_USER"`
	Password string `envconfig:"TILLSTOCK_DB_PASSWORD"`
	Name     string `envconfig:"TILLSTOCK_DB_NAME"`
	SSLMode  string `envconfig:"TILLSTOCK_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"TILLSTOCK_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"TILLSTOCK_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"TILLSTOCK_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"TILLSTOCK_DB_CONN_MAX_IDLE_TIME" default:"10m"`
	// LockTimeout bounds how long a transaction waits on a locked balance or register row.
	LockTimeout time.Duration `envconfig:"TILLSTOCK_DB_LOCK_TIMEOUT" default:"5s"`
}

// IsSQLite reports whether the configured driver is the embedded sqlite engine.
func (db DBConfig) IsSQLite() bool {
	return strings.EqualFold(strings.TrimSpace(db.Driver), DriverSQLite)
}

type RedisConfig struct {
	URL          string        `envconfig:"TILLSTOCK_REDIS_URL"`
	Address      string        `envconfig:"TILLSTOCK_REDIS_ADDR"`
	Password     string        `envconfig:"TILLSTOCK_REDIS_PASSWORD"`
	DB           int           `envconfig:"TILLSTOCK_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"TILLSTOCK_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"TILLSTOCK_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"TILLSTOCK_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"TILLSTOCK_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"TILLSTOCK_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"TILLSTOCK_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"TILLSTOCK_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"TILLSTOCK_JWT_EXPIRATION_MINUTES" default:"720"`
}

// AccessTokenTTL returns the configured access token lifetime.
func (j JWTConfig) AccessTokenTTL() time.Duration {
	if j.ExpirationMinutes <= 0 {
		return 0
	}
	return time.Duration(j.ExpirationMinutes) * time.Minute
}

type FeatureFlagsConfig struct {
	AutoMigrate  bool `envconfig:"TILLSTOCK_AUTO_MIGRATE" default:"false"`
	CheckSession bool `envconfig:"TILLSTOCK_CHECK_SESSION" default:"true"`
}

type HTTPConfig struct {
	AllowedOrigins  []string      `envconfig:"TILLSTOCK_HTTP_ALLOWED_ORIGINS" default:"http://localhost:3000"`
	WriteRateWindow time.Duration `envconfig:"TILLSTOCK_HTTP_WRITE_RATE_WINDOW" default:"1m"`
	WriteRateLimit  int           `envconfig:"TILLSTOCK_HTTP_WRITE_RATE_LIMIT" default:"120"`
	ShutdownTimeout time.Duration `envconfig:"TILLSTOCK_HTTP_SHUTDOWN_TIMEOUT" default:"15s"`
}

type DrawerConfig struct {
	// VarianceTolerance is the absolute difference under which a close is reported as balanced.
	VarianceTolerance float64 `envconfig:"TILLSTOCK_DRAWER_VARIANCE_TOLERANCE" default:"0"`
}

type EventingConfig struct {
	OutboxIdempotencyTTL time.Duration `envconfig:"TILLSTOCK_EVENTING_IDEMPOTENCY_TTL" default:"720h"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"TILLSTOCK_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"TILLSTOCK_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"TILLSTOCK_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	InventoryTopic        string `envconfig:"TILLSTOCK_PUBSUB_INVENTORY_TOPIC" default:"ts-inventory-events"`
	SalesTopic            string `envconfig:"TILLSTOCK_PUBSUB_SALES_TOPIC" default:"ts-sales-events"`
	DrawerTopic           string `envconfig:"TILLSTOCK_PUBSUB_DRAWER_TOPIC" default:"ts-drawer-events"`
	AnalyticsTopic        string `envconfig:"TILLSTOCK_PUBSUB_ANALYTICS_TOPIC" default:"ts-analytics-events"`
	AnalyticsSubscription string `envconfig:"TILLSTOCK_PUBSUB_ANALYTICS_SUBSCRIPTION" default:"ts-analytics-sub"`
}

type BigQueryConfig struct {
	Dataset         string `envconfig:"TILLSTOCK_BIGQUERY_DATASET" default:"tillstock"`
	SalesTable      string `envconfig:"TILLSTOCK_BIGQUERY_SALES_TABLE" default:"sale_facts"`
	DrawerTable     string `envconfig:"TILLSTOCK_BIGQUERY_DRAWER_TABLE" default:"drawer_closures"`
	InsertBatchSize int    `envconfig:"TILLSTOCK_BIGQUERY_INSERT_BATCH_SIZE" default:"1"`
	CreateTables    bool   `envconfig:"TILLSTOCK_BIGQUERY_CREATE_TABLES" default:"false"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"TILLSTOCK_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"TILLSTOCK_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"TILLSTOCK_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

type CronConfig struct {
	Interval            time.Duration `envconfig:"TILLSTOCK_CRON_INTERVAL" default:"1h"`
	OutboxRetentionDays int           `envconfig:"TILLSTOCK_CRON_OUTBOX_RETENTION_DAYS" default:"30"`
	StaleRegisterAfter  time.Duration `envconfig:"TILLSTOCK_CRON_STALE_REGISTER_AFTER" default:"16h"`
}

type AuditConfig struct {
	// DSN overrides DB.DSN for the ledger audit so it can point at a read replica.
	DSN string `envconfig:"TILLSTOCK_AUDIT_DSN"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}
	if db.IsSQLite() {
		return fmt.Errorf("%s is required when %s=%s", EnvDBDSN, EnvDBDriver, DriverSQLite)
	}

	missing := []string{}
	values := map[string]string{
		EnvDBHost: db.Host,
		EnvDBUser: db.User,
		EnvDBName: db.Name,
	}
	for _, env := range discreteDBEnvVars {
		if values[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.User)
	if db.Password != "" {
		userInfo = url.UserPassword(db.User, db.Password)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.Host, db.Port),
		Path:   db.Name,
	}

	if db.SSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.SSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
