package config

const (
	EnvPrefix = "WHOLESALE"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

const (
	EnvAppEnv   = "WHOLESALE_APP_ENV"
	EnvPort     = "WHOLESALE_APP_PORT"
	EnvLogLevel = "WHOLESALE_LOG_LEVEL"

	EnvDBDSN    = "WHOLESALE_DB_DSN"
	EnvDBDriver = "WHOLESALE_DB_DRIVER"
	EnvDBHost   = "WHOLESALE_DB_HOST"
	EnvDBUser   = "WHOLESALE_DB_USER"
	EnvDBName   = "WHOLESALE_DB_NAME"

	EnvRedisURL = "WHOLESALE_REDIS_URL"

	EnvJWTSecret = "WHOLESALE_JWT_SECRET"
	EnvJWTIssuer = "WHOLESALE_JWT_ISSUER"

	EnvUseSQLite = "WHOLESALE_USE_SQLITE"

	EnvTossSecretKey = "TOSS_SECRET_KEY"
	EnvTossBaseURL   = "WHOLESALE_TOSS_API_BASE_URL"

	EnvSettlementFeeRate      = "WHOLESALE_SETTLEMENT_PLATFORM_FEE_RATE"
	EnvSettlementPayoutOffset = "WHOLESALE_SETTLEMENT_PAYOUT_OFFSET"

	EnvPubSubPaymentsTopic = "WHOLESALE_PUBSUB_PAYMENTS_TOPIC"
)

var dbPartEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
