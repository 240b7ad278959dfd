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
	Eventing     EventingConfig
	Toss         TossConfig
	Settlement   SettlementConfig
	MarketPrice  MarketPriceConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
	Cron         CronConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(cfg.FeatureFlags.UseSQLite); err != nil {
		return nil, err
	}
	if err := cfg.Settlement.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"WHOLESALE_APP_ENV" required:"true"`
	Port         string `envconfig:"WHOLESALE_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"WHOLESALE_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"WHOLESALE_LOG_WARN_STACK" default:"false"`
	// MetricsPort is where the background workers serve /metrics; empty disables it.
	MetricsPort string `envconfig:"WHOLESALE_METRICS_PORT"`

	CORSOrigins []string `envconfig:"WHOLESALE_CORS_ORIGINS" default:"http://localhost:3000"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"WHOLESALE_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"WHOLESALE_DB_DSN"`
	Driver string `envconfig:"WHOLESALE_DB_DRIVER" default:"postgres"`

	Host     string `envconfig:"WHOLESALE_DB_HOST"`
	Port     int    `envconfig:"WHOLESALE_DB_PORT" default:"5432"`
	User     string `envconfig:"WHOLESALE_DB_USER"`
	Password string `envconfig:"WHOLESALE_DB_PASSWORD"`
	Name     string `envconfig:"WHOLESALE_DB_NAME"`
	SSLMode  string `envconfig:"WHOLESALE_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"WHOLESALE_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"WHOLESALE_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"WHOLESALE_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"WHOLESALE_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"WHOLESALE_REDIS_URL" required:"true"`
	Address      string        `envconfig:"WHOLESALE_REDIS_ADDR"`
	Password     string        `envconfig:"WHOLESALE_REDIS_PASSWORD"`
	DB           int           `envconfig:"WHOLESALE_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"WHOLESALE_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"WHOLESALE_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"WHOLESALE_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"WHOLESALE_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"WHOLESALE_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// JWTConfig verifies access tokens minted by the managed auth provider.
type JWTConfig struct {
	Secret string `envconfig:"WHOLESALE_JWT_SECRET" required:"true"`
	Issuer string `envconfig:"WHOLESALE_JWT_ISSUER" required:"true"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"WHOLESALE_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"WHOLESALE_AUTO_MIGRATE" default:"false"`
}

type EventingConfig struct {
	IdempotencyTTL time.Duration `envconfig:"WHOLESALE_EVENTING_IDEMPOTENCY_TTL" default:"720h"`
}

// TossConfig holds the payment gateway credentials. The secret key keeps the
// gateway's conventional variable name so existing deployments need no rename.
type TossConfig struct {
	SecretKey string        `envconfig:"TOSS_SECRET_KEY"`
	BaseURL   string        `envconfig:"WHOLESALE_TOSS_API_BASE_URL" default:"https://api.tosspayments.com"`
	Timeout   time.Duration `envconfig:"WHOLESALE_TOSS_TIMEOUT" default:"10s"`
}

// Configured reports whether a secret key is present.
func (t TossConfig) Configured() bool {
	return strings.TrimSpace(t.SecretKey) != ""
}

type SettlementConfig struct {
	PlatformFeeRate float64       `envconfig:"WHOLESALE_SETTLEMENT_PLATFORM_FEE_RATE" default:"0.05"`
	PayoutOffset    time.Duration `envconfig:"WHOLESALE_SETTLEMENT_PAYOUT_OFFSET" default:"168h"`
	DefaultMethod   string        `envconfig:"WHOLESALE_SETTLEMENT_DEFAULT_METHOD" default:"card"`
}

func (s SettlementConfig) validate() error {
	if s.PlatformFeeRate < 0 || s.PlatformFeeRate > 1 {
		return fmt.Errorf("%s must be within [0,1], got %v", EnvSettlementFeeRate, s.PlatformFeeRate)
	}
	if s.PayoutOffset < 0 {
		return fmt.Errorf("%s must not be negative", EnvSettlementPayoutOffset)
	}
	return nil
}

type MarketPriceConfig struct {
	BaseURL  string        `envconfig:"WHOLESALE_MARKET_PRICE_BASE_URL" default:"https://www.kamis.or.kr"`
	CertKey  string        `envconfig:"WHOLESALE_MARKET_PRICE_CERT_KEY"`
	CertID   string        `envconfig:"WHOLESALE_MARKET_PRICE_CERT_ID"`
	CacheTTL time.Duration `envconfig:"WHOLESALE_MARKET_PRICE_CACHE_TTL" default:"1h"`
	Timeout  time.Duration `envconfig:"WHOLESALE_MARKET_PRICE_TIMEOUT" default:"10s"`
}

// Configured reports whether both service credentials are present.
func (m MarketPriceConfig) Configured() bool {
	return strings.TrimSpace(m.CertKey) != "" && strings.TrimSpace(m.CertID) != ""
}

type GCPConfig struct {
	ProjectID              string `envconfig:"WHOLESALE_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"WHOLESALE_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"WHOLESALE_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	PaymentsTopic string `envconfig:"WHOLESALE_PUBSUB_PAYMENTS_TOPIC" default:"wholesale-payment-events"`
	OrdersTopic   string `envconfig:"WHOLESALE_PUBSUB_ORDERS_TOPIC" default:"wholesale-order-events"`
}

type OutboxConfig struct {
	BatchSize      int           `envconfig:"WHOLESALE_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int           `envconfig:"WHOLESALE_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int           `envconfig:"WHOLESALE_OUTBOX_MAX_ATTEMPTS" default:"10"`
	Retention      time.Duration `envconfig:"WHOLESALE_OUTBOX_RETENTION" default:"720h"`
}

type CronConfig struct {
	Interval time.Duration `envconfig:"WHOLESALE_CRON_INTERVAL" default:"1h"`
	LockKey  string        `envconfig:"WHOLESALE_CRON_LOCK_KEY" default:"wholesale:cron:lock"`
	LockTTL  time.Duration `envconfig:"WHOLESALE_CRON_LOCK_TTL" default:"10m"`
}

func (db *DBConfig) ensureDSN(sqlite bool) error {
	if db.DSN != "" {
		return nil
	}
	if sqlite || strings.EqualFold(db.Driver, DriverSQLite) {
		db.DSN = "file:wholesale.db?cache=shared"
		return nil
	}

	missing := []string{}
	values := map[string]string{
		EnvDBHost: db.Host,
		EnvDBUser: db.User,
		EnvDBName: db.Name,
	}
	for _, env := range dbPartEnvVars {
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
