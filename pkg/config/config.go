package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	EnvPrefix = "ADDISMART"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvDBDSN  = "ADDISMART_DB_DSN"
	EnvDBHost = "ADDISMART_DB_HOST"
	EnvDBUser = "ADDISMART_DB_USER"
	EnvDBName = "ADDISMART_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
	Orders       OrdersConfig
	Telebirr     TelebirrConfig
	Stripe       StripeConfig
	Cron         CronConfig
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
	Env          string `envconfig:"ADDISMART_APP_ENV" required:"true"`
	Port         string `envconfig:"ADDISMART_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"ADDISMART_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"ADDISMART_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"ADDISMART_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"ADDISMART_DB_DSN"`
	Driver string `envconfig:"ADDISMART_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"ADDISMART_DB_HOST"`
	LegacyPort     int    `envconfig:"ADDISMART_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"ADDISMART_DB_USER"`
	LegacyPassword string `envconfig:"ADDISMART_DB_PASSWORD"`
	LegacyName     string `envconfig:"ADDISMART_DB_NAME"`
	LegacySSLMode  string `envconfig:"ADDISMART_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"ADDISMART_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"ADDISMART_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"ADDISMART_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"ADDISMART_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"ADDISMART_REDIS_URL" required:"true"`
	Address      string        `envconfig:"ADDISMART_REDIS_ADDR"`
	Password     string        `envconfig:"ADDISMART_REDIS_PASSWORD"`
	DB           int           `envconfig:"ADDISMART_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"ADDISMART_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"ADDISMART_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"ADDISMART_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"ADDISMART_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"ADDISMART_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret string `envconfig:"ADDISMART_JWT_SECRET" required:"true"`
	Issuer string `envconfig:"ADDISMART_JWT_ISSUER" required:"true"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"ADDISMART_GCP_PROJECT_ID" required:"true"`
	CredentialsJSON        string `envconfig:"ADDISMART_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"ADDISMART_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	NotificationTopic        string `envconfig:"ADDISMART_PUBSUB_NOTIFICATION_TOPIC" default:"am-notification-events"`
	NotificationSubscription string `envconfig:"ADDISMART_PUBSUB_NOTIFICATION_SUBSCRIPTION"`
}

type OutboxConfig struct {
	BatchSize      int           `envconfig:"ADDISMART_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int           `envconfig:"ADDISMART_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int           `envconfig:"ADDISMART_OUTBOX_MAX_ATTEMPTS" default:"10"`
	Retention      time.Duration `envconfig:"ADDISMART_OUTBOX_RETENTION" default:"720h"`
}

type OrdersConfig struct {
	PendingTTL       time.Duration `envconfig:"ADDISMART_ORDERS_PENDING_TTL" default:"24h"`
	ConfirmationCode ConfirmationCodeConfig
}

type ConfirmationCodeConfig struct {
	Length int `envconfig:"ADDISMART_ORDERS_CONFIRMATION_CODE_LENGTH" default:"8"`
}

type TelebirrConfig struct {
	BaseURL    string        `envconfig:"ADDISMART_TELEBIRR_BASE_URL"`
	AppID      string        `envconfig:"ADDISMART_TELEBIRR_APP_ID"`
	AppSecret  string        `envconfig:"ADDISMART_TELEBIRR_APP_SECRET"`
	NotifyURL  string        `envconfig:"ADDISMART_TELEBIRR_NOTIFY_URL"`
	ReturnURL  string        `envconfig:"ADDISMART_TELEBIRR_RETURN_URL"`
	HTTPTimout time.Duration `envconfig:"ADDISMART_TELEBIRR_HTTP_TIMEOUT" default:"15s"`
}

type StripeConfig struct {
	APIKey        string `envconfig:"ADDISMART_STRIPE_API_KEY"`
	WebhookSecret string `envconfig:"ADDISMART_STRIPE_WEBHOOK_SECRET"`
	Env           string `envconfig:"ADDISMART_STRIPE_ENV" default:"test"`
}

// Environment returns the normalized Stripe environment (test/live).
func (s StripeConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "test"
	}
	return env
}

type CronConfig struct {
	TickInterval time.Duration `envconfig:"ADDISMART_CRON_TICK_INTERVAL" default:"1m"`
	LockTTL      time.Duration `envconfig:"ADDISMART_CRON_LOCK_TTL" default:"5m"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"ADDISMART_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"ADDISMART_AUTO_MIGRATE" default:"false"`
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
