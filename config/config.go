package config

import "time"

type Config struct {
	AppName                       string   `env:"APP_NAME" env-default:"clover-api"`
	Port                          int      `env:"PORT" env-default:"3004"`
	LogLevel                      string   `env:"LOG_LEVEL" env-default:"info"`
	PrettyLogs                    bool     `env:"PRETTY_LOGS" env-default:"false"`
	HttpServerWriteTimeoutSeconds int      `env:"HTTP_SERVER_WRITE_TIMEOUT_SECONDS" env-default:"10"`
	HttpServerReadTimeoutSeconds  int      `env:"HTTP_SERVER_READ_TIMEOUT_SECONDS" env-default:"10"`
	HttpServerIdleTimeoutSeconds  int      `env:"HTTP_SERVER_IDLE_TIMEOUT_SECONDS" env-default:"10"`
	AllowOrigins                  []string `env:"HTTP_SERVER_ALLOW_ORIGINS" env-default:"*"`
	AllowMethods                  []string `env:"HTTP_SERVER_ALLOW_METHODS" env-default:"GET,POST,PUT,DELETE"`
	StartupMaxAttempts            int      `env:"STARTUP_MAX_ATTEMPTS" env-default:"5"`

	// Tracing
	TraceExporter     string `env:"TRACE_EXPORTER" env-default:""`
	TraceOTLPEndpoint string `env:"TRACE_OTLP_ENDPOINT" env-default:"localhost:4317"`
	TraceOTLPProtocol string `env:"TRACE_OTLP_PROTOCOL" env-default:"grpc"`
	TraceInsecure     bool   `env:"TRACE_INSECURE" env-default:"true"`

	// PostgreSQL
	DatabaseHost                  string        `env:"DB_HOST" env-default:""`
	DatabasePort                  int           `env:"DB_PORT" env-default:"5432"`
	DatabaseUserName              string        `env:"DB_USER_NAME" env-default:""`
	DatabasePassword              string        `env:"DB_PASSWORD" env-default:""`
	DatabaseName                  string        `env:"DB_NAME" env-default:"clover"`
	DatabaseSSLMode               string        `env:"DB_SQL_MODE" env-default:"disable"`
	DatabaseMaxOpenConns          int           `env:"DB_MAX_OPEN_CONNS" env-default:"25"`
	DatabaseMaxIdleConns          int           `env:"DB_MAX_IDLE_CONNS" env-default:"10"`
	DatabaseConnMaxLifetime       time.Duration `env:"DB_CONN_MAX_LIFETIME" env-default:"10s"`
	DatabaseMigrationFolderPath   string        `env:"DB_MIGRATION_FOLDER_PATH" env-default:"db/pg"`
	DatabaseMigrationVersion      int           `env:"DB_MIGRATION_VERSION" env-default:"0"`
	DatabaseMigrationAutoRollback bool          `env:"DB_MIGRATION_AUTO_ROLLBACK" env-default:"true"`

	// Redis (resolution and merge locks)
	RedisHost     string `env:"REDIS_HOST" env-default:"localhost"`
	RedisPort     int    `env:"REDIS_PORT" env-default:"6379"`
	RedisPassword string `env:"REDIS_PASSWORD" env-default:""`
	RedisDB       int    `env:"REDIS_DB" env-default:"0"`

	// Kafka Consumer (candidate record ingestion)
	KafkaBrokers         []string `env:"KAFKA_BROKERS" env-default:"localhost:9092"`
	KafkaInputTopic      string   `env:"KAFKA_INPUT_TOPIC" env-default:"candidate-records"`
	KafkaConsumerGroup   string   `env:"KAFKA_CONSUMER_GROUP" env-default:"clover-consumer"`
	KafkaConsumerEnabled bool     `env:"KAFKA_CONSUMER_ENABLED" env-default:"true"`

	// Kafka Producer (identity events)
	KafkaOutputTopic  string        `env:"KAFKA_OUTPUT_TOPIC" env-default:"identity-events"`
	KafkaBatchSize    int           `env:"KAFKA_BATCH_SIZE" env-default:"100"`
	KafkaBatchTimeout time.Duration `env:"KAFKA_BATCH_TIMEOUT" env-default:"100ms"`
	KafkaRequiredAcks int           `env:"KAFKA_REQUIRED_ACKS" env-default:"1"`
	KafkaCompression  string        `env:"KAFKA_COMPRESSION" env-default:"snappy"`

	// Gate
	OrgEmailDomains           []string `env:"ORG_EMAIL_DOMAINS" env-default:""`
	BlacklistMinDistinctNames int      `env:"BLACKLIST_MIN_DISTINCT_NAMES" env-default:"5"`

	// Scoring
	EmailExactScore        float64 `env:"SCORE_EMAIL_EXACT" env-default:"0.98"`
	PhoneExactScore        float64 `env:"SCORE_PHONE_EXACT" env-default:"0.95"`
	PhoneConflictScore     float64 `env:"SCORE_PHONE_CONFLICT" env-default:"0.60"`
	AddressExactScore      float64 `env:"SCORE_ADDRESS_EXACT" env-default:"0.75"`
	AddressNameScore       float64 `env:"SCORE_ADDRESS_NAME" env-default:"0.65"`
	NameFuzzyThreshold     float64 `env:"SCORE_NAME_FUZZY_THRESHOLD" env-default:"0.82"`
	NameConflictCeiling    float64 `env:"SCORE_NAME_CONFLICT_CEILING" env-default:"0.60"`
	SoftBlacklistCap       float64 `env:"SCORE_SOFT_BLACKLIST_CAP" env-default:"0.60"`
	ExtraRuleBonus         float64 `env:"SCORE_EXTRA_RULE_BONUS" env-default:"0.02"`
	MaxPersistedCandidates int     `env:"SCORE_MAX_PERSISTED_CANDIDATES" env-default:"5"`

	// Decision thresholds
	AutoMatchThreshold   float64       `env:"AUTO_MATCH_THRESHOLD" env-default:"0.90"`
	ReviewThreshold      float64       `env:"REVIEW_THRESHOLD" env-default:"0.50"`
	HouseholdNameCeiling float64       `env:"HOUSEHOLD_NAME_CEILING" env-default:"0.60"`
	ThresholdVersion     string        `env:"THRESHOLD_VERSION" env-default:"v2"`
	ResolveLockTTL       time.Duration `env:"RESOLVE_LOCK_TTL" env-default:"15s"`
	MergeLockTTL         time.Duration `env:"MERGE_LOCK_TTL" env-default:"30s"`
	LockWaitTimeout      time.Duration `env:"LOCK_WAIT_TIMEOUT" env-default:"5s"`
}
