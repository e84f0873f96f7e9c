package config

import "time"

type Config struct {
	AppName                       string   `env:"APP_NAME" env-default:"firethorn-api"`
	Port                          int      `env:"PORT" env-default:"3004"`
	LogLevel                      string   `env:"LOG_LEVEL" env-default:"info"`
	PrettyLogs                    bool     `env:"PRETTY_LOGS" env-default:"false"`
	HttpServerWriteTimeoutSeconds int      `env:"HTTP_SERVER_WRITE_TIMEOUT_SECONDS" env-default:"10"`
	HttpServerReadTimeoutSeconds  int      `env:"HTTP_SERVER_READ_TIMEOUT_SECONDS" env-default:"10"`
	HttpServerIdleTimeoutSeconds  int      `env:"HTTP_SERVER_IDLE_TIMEOUT_SECONDS" env-default:"10"`
	AllowOrigins                  []string `env:"HTTP_SERVER_ALLOW_ORIGINS" env-default:"*"`

	// PostgreSQL
	DatabaseDriver                string        `env:"DB_DRIVER" env-default:"postgres"`
	DatabaseHost                  string        `env:"DB_HOST" env-default:""`
	DatabasePort                  string        `env:"DB_PORT" env-default:"5432"`
	DatabaseUserName              string        `env:"DB_USER_NAME" env-default:""`
	DatabasePassword              string        `env:"DB_PASSWORD" env-default:""`
	DatabaseName                  string        `env:"DB_NAME" env-default:"firethorn"`
	DatabaseSSLMode               string        `env:"DB_SSL_MODE" env-default:"disable"`
	DatabaseMaxOpenConns          int           `env:"DB_MAX_OPEN_CONNS" env-default:"25"`
	DatabaseMaxIdleConns          int           `env:"DB_MAX_IDLE_CONNS" env-default:"10"`
	DatabaseConnMaxLifetime       time.Duration `env:"DB_CONN_MAX_LIFETIME" env-default:"10s"`
	DatabaseMigrationFolderPath   string        `env:"DB_MIGRATION_FOLDER_PATH" env-default:"db/pg"`
	DatabaseMigrationVersion      int           `env:"DB_MIGRATION_VERSION" env-default:"0"`
	DatabaseMigrationForce        int           `env:"DB_MIGRATION_FORCE" env-default:"0"`
	DatabaseMigrationAutoRollback bool          `env:"DB_MIGRATION_AUTO_ROLLBACK" env-default:"true"`

	// Redis (job queue + locks)
	RedisHost     string `env:"REDIS_HOST" env-default:"localhost"`
	RedisPort     int    `env:"REDIS_PORT" env-default:"6379"`
	RedisPassword string `env:"REDIS_PASSWORD" env-default:""`
	RedisDB       int    `env:"REDIS_DB" env-default:"0"`

	// Kafka Producer (lifecycle events)
	KafkaBrokers      []string `env:"KAFKA_BROKERS" env-default:"localhost:9092"`
	KafkaOutputTopic  string   `env:"KAFKA_OUTPUT_TOPIC" env-default:"fire-events"`
	KafkaBatchSize    int      `env:"KAFKA_BATCH_SIZE" env-default:"100"`
	KafkaBatchTimeout int      `env:"KAFKA_BATCH_TIMEOUT_MS" env-default:"100"`
	KafkaRequiredAcks int      `env:"KAFKA_REQUIRED_ACKS" env-default:"1"`
	KafkaCompression  string   `env:"KAFKA_COMPRESSION" env-default:"snappy"`
	KafkaEnabled      bool     `env:"KAFKA_ENABLED" env-default:"true"`

	// NASA FIRMS feed
	FirmsBaseURL string `env:"FIRMS_BASE_URL" env-default:"https://firms.modaps.eosdis.nasa.gov"`
	FirmsMapKey  string `env:"FIRMS_MAP_KEY" env-default:""`
	FirmsSource  string `env:"FIRMS_SOURCE" env-default:"VIIRS_SNPP_NRT"`
	FirmsArea    string `env:"FIRMS_AREA" env-default:"world"`
	FirmsDayRange int   `env:"FIRMS_DAY_RANGE" env-default:"1"`

	// Clustering
	ClusterRadiusMeters float64 `env:"CLUSTER_RADIUS_METERS" env-default:"5000"`
	ClusterExpiryHours  float64 `env:"CLUSTER_EXPIRY_HOURS" env-default:"24"`
	ClusterBatchSize    int     `env:"CLUSTER_BATCH_SIZE" env-default:"500"`

	// Incident lifecycle
	IncidentInactivityHours    float64 `env:"INCIDENT_INACTIVITY_HOURS" env-default:"24"`
	IncidentRetentionDays      float64 `env:"INCIDENT_RETENTION_DAYS" env-default:"3"`
	DetectionRetentionDays     float64 `env:"DETECTION_RETENTION_DAYS" env-default:"14"`
	AssignmentTimeoutSeconds   int     `env:"ASSIGNMENT_TIMEOUT_SECONDS" env-default:"30"`

	// Job queue
	JobStream        string `env:"JOB_STREAM" env-default:"firethorn:jobs"`
	JobConsumerGroup string `env:"JOB_CONSUMER_GROUP" env-default:"firethorn-workers"`
	JobWorkerCount   int    `env:"JOB_WORKER_COUNT" env-default:"1"`
	JobMaxRetries    int    `env:"JOB_MAX_RETRIES" env-default:"3"`

	// Scheduler intervals
	FetchIntervalMinutes   int `env:"FETCH_INTERVAL_MINUTES" env-default:"10"`
	ClusterIntervalMinutes int `env:"CLUSTER_INTERVAL_MINUTES" env-default:"5"`
	CleanupIntervalMinutes int `env:"CLEANUP_INTERVAL_MINUTES" env-default:"60"`

	// Tracing
	TracingEnabled  bool   `env:"TRACING_ENABLED" env-default:"false"`
	TracingEndpoint string `env:"TRACING_ENDPOINT" env-default:"localhost:4317"`
}
