package config

// EnvPrefix is passed to envconfig; every field carries its full variable name.
const EnvPrefix = "TILLSTOCK"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

const (
	EnvAppEnv   = "TILLSTOCK_APP_ENV"
	EnvPort     = "TILLSTOCK_APP_PORT"
	EnvLogLevel = "TILLSTOCK_LOG_LEVEL"

	EnvDBDSN    = "TILLSTOCK_DB_DSN"
	EnvDBDriver = "TILLSTOCK_DB_DRIVER"
	EnvDBHost   = "TILLSTOCK_DB_HOST"
	EnvDBUser   = "TILLSTOCK_DB_USER"
	EnvDBName   = "TILLSTOCK_DB_NAME"
	EnvDBPass   = "TILLSTOCK_DB_PASSWORD"

	EnvRedisURL = "TILLSTOCK_REDIS_URL"

	EnvJWTSecret  = "TILLSTOCK_JWT_SECRET"
	EnvJWTIssuer  = "TILLSTOCK_JWT_ISSUER"
	EnvJWTExpMins = "TILLSTOCK_JWT_EXPIRATION_MINUTES"

	EnvAutoMigrate = "TILLSTOCK_AUTO_MIGRATE"

	EnvGCPProjectID = "TILLSTOCK_GCP_PROJECT_ID"

	EnvPubSubSalesTopic = "TILLSTOCK_PUBSUB_SALES_TOPIC"
	EnvPubSubAnalytics  = "TILLSTOCK_PUBSUB_ANALYTICS_SUBSCRIPTION"

	EnvDrawerVarianceTolerance = "TILLSTOCK_DRAWER_VARIANCE_TOLERANCE"
	EnvHTTPAllowedOrigins      = "TILLSTOCK_HTTP_ALLOWED_ORIGINS"
	EnvAuditDSN                = "TILLSTOCK_AUDIT_DSN"
)

var discreteDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
