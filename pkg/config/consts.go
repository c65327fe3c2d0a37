package config

// EnvPrefix is handed to envconfig; every field carries its full variable name.
const EnvPrefix = "ORDERCORE"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	DBDriverPostgres = "postgres"
	DBDriverSQLite   = "sqlite"
	DefaultSQLiteDSN = "file:ordercore.db?cache=shared"

	TransportPubSub = "pubsub"
	TransportKafka  = "kafka"

	DefaultReturnWindowDays = 30
)

const (
	EnvAppEnv   = "ORDERCORE_APP_ENV"
	EnvPort     = "ORDERCORE_APP_PORT"
	EnvLogLevel = "ORDERCORE_LOG_LEVEL"

	EnvDBDSN    = "ORDERCORE_DB_DSN"
	EnvDBDriver = "ORDERCORE_DB_DRIVER"
	EnvDBHost   = "ORDERCORE_DB_HOST"
	EnvDBUser   = "ORDERCORE_DB_USER"
	EnvDBName   = "ORDERCORE_DB_NAME"

	EnvRedisURL  = "ORDERCORE_REDIS_URL"
	EnvJWTSecret = "ORDERCORE_JWT_SECRET"
	EnvJWTIssuer = "ORDERCORE_JWT_ISSUER"

	EnvReturnWindowDays = "ORDERCORE_ORDERS_RETURN_WINDOW_DAYS"
	EnvUseSQLite        = "ORDERCORE_USE_SQLITE"

	EnvGCPProjectID      = "ORDERCORE_GCP_PROJECT_ID"
	EnvPubSubDomainTopic = "ORDERCORE_PUBSUB_DOMAIN_TOPIC"
	EnvPubSubPaymentSub  = "ORDERCORE_PUBSUB_PAYMENT_SUBSCRIPTION"
	EnvKafkaBrokers      = "ORDERCORE_KAFKA_BROKERS"
	EnvPaymentTransport  = "ORDERCORE_PAYMENT_EVENTS_TRANSPORT"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
