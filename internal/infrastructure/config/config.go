package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
	"github.com/waterbill/backend/internal/domain/billing"
	"github.com/waterbill/backend/internal/domain/shared/valueobject"
)

// Config holds all application configuration
type Config struct {
	App       AppConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Log       LogConfig
	Billing   BillingConfig
	Scheduler SchedulerConfig
	Kafka     KafkaConfig
	HTTP      HTTPConfig
	Storage   StorageConfig
	Telemetry TelemetryConfig
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level      string // debug, info, warn, error
	Format     string // json, console
	Output     string // stdout, stderr, or file path
	MaxSizeMB  int    // rotate file output after this size
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// AppConfig holds application-specific settings
type AppConfig struct {
	Name string
	Env  string
	Port string
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Driver          string // postgres or sqlite
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	SQLitePath      string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime int // in minutes
	ConnMaxIdleTime int // in minutes
}

// RedisConfig holds Redis connection settings used for distributed locking
type RedisConfig struct {
	Enabled   bool
	Host      string
	Port      int
	Password  string
	DB        int
	LockTTL   time.Duration
	LockRetry time.Duration
}

// TierConfig is one tariff tier as written in config. Ceiling 0 means unbounded.
type TierConfig struct {
	Ceiling uint64 `mapstructure:"ceiling"`
	Rate    string `mapstructure:"rate"`
}

// BillingConfig holds tariff and due date settings
type BillingConfig struct {
	Currency         string
	BaseCharge       string
	DueDateGraceDays int
	Tiers            []TierConfig
}

// SchedulerConfig holds overdue sweep scheduling configuration
type SchedulerConfig struct {
	OverdueSweepEnabled  bool
	OverdueSweepSchedule string // standard 5-field cron spec
	SweepTimeout         time.Duration
}

// KafkaConfig holds billing event publishing configuration
type KafkaConfig struct {
	Enabled            bool
	Brokers            []string
	Topic              string
	ClientID           string
	RequiredAcks       string // none, local, all
	Compression        string // none, gzip, snappy, lz4, zstd
	RetryMax           int
	BreakerMaxFailures uint32
	BreakerTimeout     time.Duration

	// Inbound command consumer
	ConsumerEnabled      bool
	ConsumerGroup        string
	CommandsTopic        string
	InitialOffset        string // newest, oldest
	ConsumerMaxAttempts  int
	ConsumerRetryBackoff time.Duration
	// DedupTTL is how long applied command IDs are remembered
	DedupTTL time.Duration
}

// StorageConfig holds the S3-compatible bucket that archives uploaded reading files
type StorageConfig struct {
	Enabled           bool
	Endpoint          string
	Region            string
	Bucket            string
	AccessKey         string
	SecretKey         string
	UseSSL            bool
	UsePathStyle      bool // required by MinIO and RustFS
	PresignExpiration time.Duration
}

// HTTPConfig holds ops HTTP server configuration
type HTTPConfig struct {
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	MaxHeaderBytes int
}

// TelemetryConfig holds OpenTelemetry configuration
type TelemetryConfig struct {
	Enabled           bool    // Whether to enable OpenTelemetry
	CollectorEndpoint string  // OTEL Collector endpoint (e.g., "localhost:4317")
	SamplingRatio     float64 // Sampling ratio (0.0-1.0, 1.0 = 100%)
	ServiceName       string  // Service name for traces
	Insecure          bool    // Use insecure (non-TLS) connection (development only)
	MetricsEnabled    bool
	MetricsInterval   time.Duration // OTLP metric export interval
	LogsEnabled       bool          // mirror zap output to the collector
	DBTracing         bool          // span per SQL statement
}

// Load loads configuration from TOML file and environment variables
// Priority (highest to lowest):
// 1. Environment variables with WATERBILL_ prefix (e.g., WATERBILL_DATABASE_PASSWORD)
// 2. config.toml
// 3. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	// Set config file settings
	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/waterbill")
	v.AddConfigPath("/app")

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, we'll use defaults and env vars
	}

	return load(v)
}

// LoadFile loads configuration from an explicit file path plus environment variables
func LoadFile(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}
	return load(v)
}

func load(v *viper.Viper) (*Config, error) {
	// Enable environment variable override
	v.SetEnvPrefix("WATERBILL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var tiers []TierConfig
	if err := v.UnmarshalKey("billing.tiers", &tiers); err != nil {
		return nil, fmt.Errorf("invalid billing.tiers: %w", err)
	}

	// Build config struct
	cfg := &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
			Port: v.GetString("app.port"),
		},
		Database: DatabaseConfig{
			Driver:          v.GetString("database.driver"),
			Host:            v.GetString("database.host"),
			Port:            v.GetInt("database.port"),
			User:            v.GetString("database.user"),
			Password:        v.GetString("database.password"),
			DBName:          v.GetString("database.dbname"),
			SSLMode:         v.GetString("database.sslmode"),
			SQLitePath:      v.GetString("database.sqlite_path"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: v.GetInt("database.conn_max_lifetime"),
			ConnMaxIdleTime: v.GetInt("database.conn_max_idle_time"),
		},
		Redis: RedisConfig{
			Enabled:   v.GetBool("redis.enabled"),
			Host:      v.GetString("redis.host"),
			Port:      v.GetInt("redis.port"),
			Password:  v.GetString("redis.password"),
			DB:        v.GetInt("redis.db"),
			LockTTL:   v.GetDuration("redis.lock_ttl"),
			LockRetry: v.GetDuration("redis.lock_retry"),
		},
		Log: LogConfig{
			Level:      v.GetString("log.level"),
			Format:     v.GetString("log.format"),
			Output:     v.GetString("log.output"),
			MaxSizeMB:  v.GetInt("log.max_size_mb"),
			MaxBackups: v.GetInt("log.max_backups"),
			MaxAgeDays: v.GetInt("log.max_age_days"),
			Compress:   v.GetBool("log.compress"),
		},
		Billing: BillingConfig{
			Currency:         v.GetString("billing.currency"),
			BaseCharge:       v.GetString("billing.base_charge"),
			DueDateGraceDays: v.GetInt("billing.due_date_grace_days"),
			Tiers:            tiers,
		},
		Scheduler: SchedulerConfig{
			OverdueSweepEnabled:  v.GetBool("scheduler.overdue_sweep_enabled"),
			OverdueSweepSchedule: v.GetString("scheduler.overdue_sweep_schedule"),
			SweepTimeout:         v.GetDuration("scheduler.sweep_timeout"),
		},
		Kafka: KafkaConfig{
			Enabled:            v.GetBool("kafka.enabled"),
			Brokers:            v.GetStringSlice("kafka.brokers"),
			Topic:              v.GetString("kafka.topic"),
			ClientID:           v.GetString("kafka.client_id"),
			RequiredAcks:       v.GetString("kafka.required_acks"),
			Compression:        v.GetString("kafka.compression"),
			RetryMax:           v.GetInt("kafka.retry_max"),
			BreakerMaxFailures: v.GetUint32("kafka.breaker_max_failures"),
			BreakerTimeout:     v.GetDuration("kafka.breaker_timeout"),

			ConsumerEnabled:      v.GetBool("kafka.consumer_enabled"),
			ConsumerGroup:        v.GetString("kafka.consumer_group"),
			CommandsTopic:        v.GetString("kafka.commands_topic"),
			InitialOffset:        v.GetString("kafka.initial_offset"),
			ConsumerMaxAttempts:  v.GetInt("kafka.consumer_max_attempts"),
			ConsumerRetryBackoff: v.GetDuration("kafka.consumer_retry_backoff"),
			DedupTTL:             v.GetDuration("kafka.dedup_ttl"),
		},
		HTTP: HTTPConfig{
			ReadTimeout:    v.GetDuration("http.read_timeout"),
			WriteTimeout:   v.GetDuration("http.write_timeout"),
			IdleTimeout:    v.GetDuration("http.idle_timeout"),
			MaxHeaderBytes: v.GetInt("http.max_header_bytes"),
		},
		Storage: StorageConfig{
			Enabled:           v.GetBool("storage.enabled"),
			Endpoint:          v.GetString("storage.endpoint"),
			Region:            v.GetString("storage.region"),
			Bucket:            v.GetString("storage.bucket"),
			AccessKey:         v.GetString("storage.access_key"),
			SecretKey:         v.GetString("storage.secret_key"),
			UseSSL:            v.GetBool("storage.use_ssl"),
			UsePathStyle:      v.GetBool("storage.use_path_style"),
			PresignExpiration: v.GetDuration("storage.presign_expiration"),
		},
		Telemetry: TelemetryConfig{
			Enabled:           v.GetBool("telemetry.enabled"),
			CollectorEndpoint: v.GetString("telemetry.collector_endpoint"),
			SamplingRatio:     v.GetFloat64("telemetry.sampling_ratio"),
			ServiceName:       v.GetString("telemetry.service_name"),
			Insecure:          v.GetBool("telemetry.insecure"),
			MetricsEnabled:    v.GetBool("telemetry.metrics_enabled"),
			MetricsInterval:   v.GetDuration("telemetry.metrics_interval"),
			LogsEnabled:       v.GetBool("telemetry.logs_enabled"),
			DBTracing:         v.GetBool("telemetry.db_tracing"),
		},
	}

	// Apply defaults for empty values
	applyDefaults(cfg)

	// Validate configuration
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyDefaults sets default values for any empty config fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "waterbill"
	}
	if cfg.App.Env == "" {
		cfg.App.Env = "development"
	}
	if cfg.App.Port == "" {
		cfg.App.Port = "8080"
	}
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "postgres"
	}
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.User == "" {
		cfg.Database.User = "postgres"
	}
	if cfg.Database.DBName == "" {
		cfg.Database.DBName = "waterbill"
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.SQLitePath == "" {
		cfg.Database.SQLitePath = "waterbill.db"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 60
	}
	if cfg.Database.ConnMaxIdleTime == 0 {
		cfg.Database.ConnMaxIdleTime = 30
	}
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.Redis.LockTTL == 0 {
		cfg.Redis.LockTTL = 30 * time.Second
	}
	if cfg.Redis.LockRetry == 0 {
		cfg.Redis.LockRetry = 50 * time.Millisecond
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = "stdout"
	}
	if cfg.Log.MaxSizeMB == 0 {
		cfg.Log.MaxSizeMB = 100
	}
	if cfg.Log.MaxBackups == 0 {
		cfg.Log.MaxBackups = 5
	}
	if cfg.Log.MaxAgeDays == 0 {
		cfg.Log.MaxAgeDays = 30
	}
	// Billing defaults reproduce the standard residential tariff
	if cfg.Billing.Currency == "" {
		cfg.Billing.Currency = string(valueobject.DefaultCurrency)
	}
	if cfg.Billing.BaseCharge == "" {
		cfg.Billing.BaseCharge = "5"
	}
	if cfg.Billing.DueDateGraceDays == 0 {
		cfg.Billing.DueDateGraceDays = 30
	}
	if len(cfg.Billing.Tiers) == 0 {
		cfg.Billing.Tiers = []TierConfig{
			{Ceiling: 10, Rate: "2"},
			{Ceiling: 50, Rate: "3"},
			{Ceiling: 0, Rate: "4"},
		}
	}
	if cfg.Scheduler.OverdueSweepSchedule == "" {
		cfg.Scheduler.OverdueSweepSchedule = "0 */6 * * *"
	}
	if cfg.Scheduler.SweepTimeout == 0 {
		cfg.Scheduler.SweepTimeout = 10 * time.Minute
	}
	if len(cfg.Kafka.Brokers) == 0 {
		cfg.Kafka.Brokers = []string{"localhost:9092"}
	}
	if cfg.Kafka.Topic == "" {
		cfg.Kafka.Topic = "waterbill.billing-events"
	}
	if cfg.Kafka.ClientID == "" {
		cfg.Kafka.ClientID = cfg.App.Name
	}
	if cfg.Kafka.RequiredAcks == "" {
		cfg.Kafka.RequiredAcks = "all"
	}
	if cfg.Kafka.Compression == "" {
		cfg.Kafka.Compression = "snappy"
	}
	if cfg.Kafka.RetryMax == 0 {
		cfg.Kafka.RetryMax = 3
	}
	if cfg.Kafka.BreakerMaxFailures == 0 {
		cfg.Kafka.BreakerMaxFailures = 3
	}
	if cfg.Kafka.BreakerTimeout == 0 {
		cfg.Kafka.BreakerTimeout = 30 * time.Second
	}
	if cfg.Kafka.ConsumerGroup == "" {
		cfg.Kafka.ConsumerGroup = cfg.App.Name + "-commands"
	}
	if cfg.Kafka.CommandsTopic == "" {
		cfg.Kafka.CommandsTopic = "waterbill.billing-commands"
	}
	if cfg.Kafka.InitialOffset == "" {
		cfg.Kafka.InitialOffset = "newest"
	}
	if cfg.Kafka.ConsumerMaxAttempts == 0 {
		cfg.Kafka.ConsumerMaxAttempts = 3
	}
	if cfg.Kafka.ConsumerRetryBackoff == 0 {
		cfg.Kafka.ConsumerRetryBackoff = time.Second
	}
	if cfg.Kafka.DedupTTL == 0 {
		cfg.Kafka.DedupTTL = 24 * time.Hour
	}

	if cfg.Storage.Region == "" {
		cfg.Storage.Region = "us-east-1"
	}
	if cfg.Storage.Bucket == "" {
		cfg.Storage.Bucket = "waterbill-imports"
	}
	if cfg.Storage.PresignExpiration == 0 {
		cfg.Storage.PresignExpiration = 15 * time.Minute
	}
	if cfg.HTTP.ReadTimeout == 0 {
		cfg.HTTP.ReadTimeout = 15 * time.Second
	}
	if cfg.HTTP.WriteTimeout == 0 {
		cfg.HTTP.WriteTimeout = 15 * time.Second
	}
	if cfg.HTTP.IdleTimeout == 0 {
		cfg.HTTP.IdleTimeout = 60 * time.Second
	}
	if cfg.HTTP.MaxHeaderBytes == 0 {
		cfg.HTTP.MaxHeaderBytes = 1 << 20 // 1MB
	}
	// Telemetry defaults
	if cfg.Telemetry.CollectorEndpoint == "" {
		cfg.Telemetry.CollectorEndpoint = "localhost:4317" // Default gRPC endpoint
	}
	if cfg.Telemetry.SamplingRatio == 0 {
		cfg.Telemetry.SamplingRatio = 1.0 // 100% in development
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = cfg.App.Name
	}
	if cfg.Telemetry.MetricsInterval == 0 {
		cfg.Telemetry.MetricsInterval = 60 * time.Second
	}
	// Note: Insecure defaults to false for safety (TLS enabled by default)
}

// validate performs validation on the configuration
func (c *Config) validate() error {
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("database.driver must be postgres or sqlite, got %q", c.Database.Driver)
	}

	// Validate connection pool settings
	if c.Database.MaxOpenConns <= 0 {
		return fmt.Errorf("database.max_open_conns must be positive")
	}
	if c.Database.MaxIdleConns < 0 {
		return fmt.Errorf("database.max_idle_conns cannot be negative")
	}
	if c.Database.MaxIdleConns > c.Database.MaxOpenConns {
		return fmt.Errorf("database.max_idle_conns (%d) cannot exceed database.max_open_conns (%d)",
			c.Database.MaxIdleConns, c.Database.MaxOpenConns)
	}

	if c.Billing.DueDateGraceDays < 0 {
		return fmt.Errorf("billing.due_date_grace_days cannot be negative")
	}
	if _, err := valueobject.ParseCurrency(c.Billing.Currency); err != nil {
		return fmt.Errorf("billing.currency: %w", err)
	}
	if _, err := c.Billing.Tariff(); err != nil {
		return fmt.Errorf("billing tariff: %w", err)
	}

	if c.Scheduler.OverdueSweepEnabled {
		if _, err := cron.ParseStandard(c.Scheduler.OverdueSweepSchedule); err != nil {
			return fmt.Errorf("scheduler.overdue_sweep_schedule: %w", err)
		}
	}

	if c.Kafka.Enabled && c.Kafka.Topic == "" {
		return fmt.Errorf("kafka.topic is required when kafka is enabled")
	}
	if c.Kafka.ConsumerEnabled {
		switch c.Kafka.InitialOffset {
		case "newest", "oldest":
		default:
			return fmt.Errorf("kafka.initial_offset must be newest or oldest, got %q", c.Kafka.InitialOffset)
		}
		if c.Kafka.ConsumerMaxAttempts < 1 {
			return fmt.Errorf("kafka.consumer_max_attempts must be at least 1")
		}
	}

	if c.Storage.Enabled && (c.Storage.AccessKey == "" || c.Storage.SecretKey == "") {
		return fmt.Errorf("storage.access_key and storage.secret_key are required when storage is enabled")
	}

	// Production-specific validations
	if c.App.Env == "production" && c.Database.Driver == "postgres" {
		if c.Database.Password == "" {
			return fmt.Errorf("database.password is required in production")
		}
		if c.Database.SSLMode == "disable" {
			return fmt.Errorf("database.sslmode cannot be 'disable' in production")
		}
	}

	// Validate telemetry configuration (all environments)
	if c.Telemetry.SamplingRatio < 0.0 || c.Telemetry.SamplingRatio > 1.0 {
		return fmt.Errorf("telemetry.sampling_ratio must be between 0.0 and 1.0, got %f", c.Telemetry.SamplingRatio)
	}

	return nil
}

// Tariff builds the domain tariff from the configured tiers and base charge
func (b *BillingConfig) Tariff() (billing.Tariff, error) {
	baseCharge, err := decimal.NewFromString(b.BaseCharge)
	if err != nil {
		return billing.Tariff{}, fmt.Errorf("invalid base_charge %q: %w", b.BaseCharge, err)
	}

	tiers := make([]billing.Tier, 0, len(b.Tiers))
	for i, t := range b.Tiers {
		rate, err := decimal.NewFromString(t.Rate)
		if err != nil {
			return billing.Tariff{}, fmt.Errorf("invalid rate %q for tier %d: %w", t.Rate, i+1, err)
		}
		ceiling := t.Ceiling
		if ceiling == 0 {
			ceiling = billing.Unbounded
		}
		tiers = append(tiers, billing.Tier{Ceiling: ceiling, Rate: rate})
	}

	return billing.NewTariff(tiers, baseCharge)
}

// CurrencyCode returns the configured billing currency
func (b *BillingConfig) CurrencyCode() valueobject.Currency {
	c, err := valueobject.ParseCurrency(b.Currency)
	if err != nil {
		return valueobject.DefaultCurrency
	}
	return c
}

// DSN returns the database connection string with properly escaped values
func (d *DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:   d.DBName,
	}
	q := u.Query()
	q.Set("sslmode", d.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}
