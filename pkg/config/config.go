package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App           AppConfig
	Service       ServiceConfig
	DB            DBConfig
	Redis         RedisConfig
	JWT           JWTConfig
	Orders        OrdersConfig
	FeatureFlags  FeatureFlagsConfig
	Eventing      EventingConfig
	GCP           GCPConfig
	PubSub        PubSubConfig
	Kafka         KafkaConfig
	PaymentEvents PaymentEventsConfig
	Outbox        OutboxConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if cfg.FeatureFlags.UseSQLite {
		cfg.DB.Driver = DBDriverSQLite
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.PaymentEvents.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string   `envconfig:"ORDERCORE_APP_ENV" required:"true"`
	Port         string   `envconfig:"ORDERCORE_APP_PORT" required:"true"`
	MetricsPort  string   `envconfig:"ORDERCORE_METRICS_PORT" default:"9090"`
	LogLevel     string   `envconfig:"ORDERCORE_LOG_LEVEL" default:"info"`
	LogWarnStack bool     `envconfig:"ORDERCORE_LOG_WARN_STACK" default:"false"`
	CORSOrigins  []string `envconfig:"ORDERCORE_CORS_ORIGINS" default:"http://localhost:3000"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd) || strings.EqualFold(a.Env, "production")
}

type ServiceConfig struct {
	Kind string `envconfig:"ORDERCORE_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"ORDERCORE_DB_DSN"`
	Driver string `envconfig:"ORDERCORE_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"ORDERCORE_DB_HOST"`
	LegacyPort     int    `envconfig:"ORDERCORE_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"ORDERCORE_DB_USER"`
	LegacyPassword string `envconfig:"ORDERCORE_DB_PASSWORD"`
	LegacyName     string `envconfig:"ORDERCORE_DB_NAME"`
	LegacySSLMode  string `envconfig:"ORDERCORE_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"ORDERCORE_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"ORDERCORE_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"ORDERCORE_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"ORDERCORE_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

// IsSQLite reports whether the embedded driver was selected.
func (db DBConfig) IsSQLite() bool {
	return strings.EqualFold(db.Driver, DBDriverSQLite)
}

type RedisConfig struct {
	URL          string        `envconfig:"ORDERCORE_REDIS_URL" required:"true"`
	Address      string        `envconfig:"ORDERCORE_REDIS_ADDR"`
	Password     string        `envconfig:"ORDERCORE_REDIS_PASSWORD"`
	DB           int           `envconfig:"ORDERCORE_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"ORDERCORE_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"ORDERCORE_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"ORDERCORE_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"ORDERCORE_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"ORDERCORE_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret string `envconfig:"ORDERCORE_JWT_SECRET" required:"true"`
	Issuer string `envconfig:"ORDERCORE_JWT_ISSUER" required:"true"`
}

// OrdersConfig holds the business knobs of the order lifecycle.
type OrdersConfig struct {
	ReturnWindowDays int    `envconfig:"ORDERCORE_ORDERS_RETURN_WINDOW_DAYS" default:"30"`
	NumberPrefix     string `envconfig:"ORDERCORE_ORDERS_NUMBER_PREFIX" default:"ORD"`
	BulkMax          int    `envconfig:"ORDERCORE_ORDERS_BULK_MAX" default:"200"`
}

// ReturnWindow converts the configured day count to a duration.
func (o OrdersConfig) ReturnWindow() time.Duration {
	days := o.ReturnWindowDays
	if days <= 0 {
		days = DefaultReturnWindowDays
	}
	return time.Duration(days) * 24 * time.Hour
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"ORDERCORE_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"ORDERCORE_AUTO_MIGRATE" default:"false"`
}

type EventingConfig struct {
	OutboxIdempotencyTTL time.Duration `envconfig:"ORDERCORE_EVENTING_IDEMPOTENCY_TTL" default:"720h"`
}

type GCPConfig struct {
	ProjectID       string `envconfig:"ORDERCORE_GCP_PROJECT_ID"`
	CredentialsJSON string `envconfig:"ORDERCORE_GCP_CREDENTIALS_JSON"`
}

type PubSubConfig struct {
	DomainTopic         string `envconfig:"ORDERCORE_PUBSUB_DOMAIN_TOPIC" default:"order-domain-events"`
	PaymentSubscription string `envconfig:"ORDERCORE_PUBSUB_PAYMENT_SUBSCRIPTION"`
}

type KafkaConfig struct {
	Brokers      []string `envconfig:"ORDERCORE_KAFKA_BROKERS"`
	PaymentTopic string   `envconfig:"ORDERCORE_KAFKA_PAYMENT_TOPIC" default:"payment-events"`
	GroupID      string   `envconfig:"ORDERCORE_KAFKA_GROUP_ID" default:"ordercore-payments"`
}

// PaymentEventsConfig selects where payment outcomes are read from.
type PaymentEventsConfig struct {
	Transport string `envconfig:"ORDERCORE_PAYMENT_EVENTS_TRANSPORT" default:"pubsub"`
}

func (p PaymentEventsConfig) validate() error {
	switch strings.ToLower(strings.TrimSpace(p.Transport)) {
	case TransportPubSub, TransportKafka:
		return nil
	default:
		return fmt.Errorf("%s must be %q or %q, got %q", EnvPaymentTransport, TransportPubSub, TransportKafka, p.Transport)
	}
}

// UsesKafka reports whether payment events arrive over Kafka.
func (p PaymentEventsConfig) UsesKafka() bool {
	return strings.EqualFold(strings.TrimSpace(p.Transport), TransportKafka)
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"ORDERCORE_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"ORDERCORE_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"ORDERCORE_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}
	if db.IsSQLite() {
		db.DSN = DefaultSQLiteDSN
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
