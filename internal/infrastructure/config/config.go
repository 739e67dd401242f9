package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. PAYORDER_DATABASE_PASSWORD
const EnvPrefix = "PAYORDER"

// Config holds all application configuration
type Config struct {
	App        AppConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	Log        LogConfig
	HTTP       HTTPConfig
	Auth       AuthConfig
	Scheduler  SchedulerConfig
	PayOrder   PayOrderConfig
	Providers  ProvidersConfig
	Chains     []ChainConfig
	Currencies []CurrencyConfig
	Kafka      KafkaConfig
	Outbox     OutboxConfig
	Metrics    MetricsConfig
	Tracing    TracingConfig
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
	// ExportOTLP mirrors log entries to the tracing collector
	ExportOTLP bool
}

// AppConfig holds application-specific settings
type AppConfig struct {
	Name string
	Env  string
	Port string
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime int // in minutes
	ConnMaxIdleTime int // in minutes
	AutoMigrate     bool
}

// RedisConfig holds Redis connection settings.
// An empty Host selects the in-process claim store.
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// Addr returns host:port for the Redis client
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	MaxHeaderBytes  int
	MaxBodySize     int64
	TrustedProxies  []string
}

// AuthConfig holds API authentication settings
type AuthConfig struct {
	// SignatureWindow is how far a signed request timestamp may drift from server time
	SignatureWindow time.Duration
}

// SchedulerConfig holds background job configuration
type SchedulerConfig struct {
	Enabled                bool
	MaxConcurrentJobs      int
	JobTimeout             time.Duration
	RetryAttempts          int
	RetryDelay             time.Duration
	SweepInterval          time.Duration
	SweepBatchSize         int
	SettlementPollInterval time.Duration
}

// PayOrderConfig holds lifecycle tuning
type PayOrderConfig struct {
	OrderTTL            time.Duration
	PaymentWindow       time.Duration
	QuoteTTL            time.Duration
	MismatchRetryBudget int
	AmountTolerance     float64
	FeeRate             float64
	RouteClaimTTL       time.Duration
	ConfirmationTimeout time.Duration
}

// RetryConfig holds provider retry settings
type RetryConfig struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// ProviderEndpoint is the base URL and credential of one external provider
type ProviderEndpoint struct {
	BaseURL string
	APIKey  string
}

// ProvidersConfig holds external provider settings
type ProvidersConfig struct {
	Timeout   time.Duration
	Retry     RetryConfig
	CoinGecko ProviderEndpoint
	ChangeNow ProviderEndpoint
}

// ChainConfig describes one chain the verifier reads from
type ChainConfig struct {
	ID               string `mapstructure:"id"`
	Family           string `mapstructure:"family"`
	RPCURL           string `mapstructure:"rpc_url"`
	MinConfirmations uint64 `mapstructure:"min_confirmations"`
}

// CurrencyConfig describes one supported currency
type CurrencyConfig struct {
	ID             string  `mapstructure:"id"`
	Ticker         string  `mapstructure:"ticker"`
	Chain          string  `mapstructure:"chain"`
	Family         string  `mapstructure:"family"`
	Token          string  `mapstructure:"token"`
	Decimals       int32   `mapstructure:"decimals"`
	PricingID      string  `mapstructure:"pricing_id"`
	RoutingTicker  string  `mapstructure:"routing_ticker"`
	RoutingNetwork string  `mapstructure:"routing_network"`
	FeeRate        float64 `mapstructure:"fee_rate"`
}

// KafkaConfig holds domain event publishing settings
type KafkaConfig struct {
	Enabled bool
	Brokers []string
	Topic   string
}

// OutboxConfig holds transactional outbox settings.
// When enabled, domain events are stored with their aggregate and relayed
// by a background processor instead of being published after commit.
type OutboxConfig struct {
	Enabled         bool
	PollInterval    time.Duration
	BatchSize       int
	Retention       time.Duration
	CleanupInterval time.Duration
}

// TracingConfig holds OpenTelemetry export settings
type TracingConfig struct {
	Enabled           bool
	CollectorEndpoint string
	SamplingRatio     float64
	Insecure          bool
}

// MetricsConfig holds the Prometheus endpoint settings
type MetricsConfig struct {
	Enabled bool
	Path    string
}

// Load loads configuration from a .env file, config.toml and environment variables.
// Priority (highest to lowest):
// 1. Environment variables with PAYORDER_ prefix (e.g., PAYORDER_DATABASE_PASSWORD)
// 2. .env (only for variables not already set)
// 3. config.toml
// 4. Built-in defaults
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("error reading .env file: %w", err)
	}

	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("/app")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	return loadFrom(v)
}

// loadFrom builds the config from an already prepared viper instance
func loadFrom(v *viper.Viper) (*Config, error) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	cfg := &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
			Port: v.GetString("app.port"),
		},
		Database: DatabaseConfig{
			Host:            v.GetString("database.host"),
			Port:            v.GetInt("database.port"),
			User:            v.GetString("database.user"),
			Password:        v.GetString("database.password"),
			DBName:          v.GetString("database.dbname"),
			SSLMode:         v.GetString("database.sslmode"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: v.GetInt("database.conn_max_lifetime"),
			ConnMaxIdleTime: v.GetInt("database.conn_max_idle_time"),
			AutoMigrate:     v.GetBool("database.auto_migrate"),
		},
		Redis: RedisConfig{
			Host:     v.GetString("redis.host"),
			Port:     v.GetInt("redis.port"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		Log: LogConfig{
			Level:      v.GetString("log.level"),
			Format:     v.GetString("log.format"),
			Output:     v.GetString("log.output"),
			ExportOTLP: v.GetBool("log.export_otlp"),
		},
		HTTP: HTTPConfig{
			ReadTimeout:     v.GetDuration("http.read_timeout"),
			WriteTimeout:    v.GetDuration("http.write_timeout"),
			IdleTimeout:     v.GetDuration("http.idle_timeout"),
			ShutdownTimeout: v.GetDuration("http.shutdown_timeout"),
			MaxHeaderBytes:  v.GetInt("http.max_header_bytes"),
			MaxBodySize:     v.GetInt64("http.max_body_size"),
			TrustedProxies:  v.GetStringSlice("http.trusted_proxies"),
		},
		Auth: AuthConfig{
			SignatureWindow: v.GetDuration("auth.signature_window"),
		},
		Scheduler: SchedulerConfig{
			Enabled:                v.GetBool("scheduler.enabled"),
			MaxConcurrentJobs:      v.GetInt("scheduler.max_concurrent_jobs"),
			JobTimeout:             v.GetDuration("scheduler.job_timeout"),
			RetryAttempts:          v.GetInt("scheduler.retry_attempts"),
			RetryDelay:             v.GetDuration("scheduler.retry_delay"),
			SweepInterval:          v.GetDuration("scheduler.sweep_interval"),
			SweepBatchSize:         v.GetInt("scheduler.sweep_batch_size"),
			SettlementPollInterval: v.GetDuration("scheduler.settlement_poll_interval"),
		},
		PayOrder: PayOrderConfig{
			OrderTTL:            v.GetDuration("payorder.order_ttl"),
			PaymentWindow:       v.GetDuration("payorder.payment_window"),
			QuoteTTL:            v.GetDuration("payorder.quote_ttl"),
			MismatchRetryBudget: v.GetInt("payorder.mismatch_retry_budget"),
			AmountTolerance:     v.GetFloat64("payorder.amount_tolerance"),
			FeeRate:             v.GetFloat64("payorder.fee_rate"),
			RouteClaimTTL:       v.GetDuration("payorder.route_claim_ttl"),
			ConfirmationTimeout: v.GetDuration("payorder.confirmation_timeout"),
		},
		Providers: ProvidersConfig{
			Timeout: v.GetDuration("providers.timeout"),
			Retry: RetryConfig{
				MaxAttempts:     v.GetInt("providers.retry.max_attempts"),
				InitialInterval: v.GetDuration("providers.retry.initial_interval"),
				MaxInterval:     v.GetDuration("providers.retry.max_interval"),
			},
			CoinGecko: ProviderEndpoint{
				BaseURL: v.GetString("providers.coingecko.base_url"),
				APIKey:  v.GetString("providers.coingecko.api_key"),
			},
			ChangeNow: ProviderEndpoint{
				BaseURL: v.GetString("providers.changenow.base_url"),
				APIKey:  v.GetString("providers.changenow.api_key"),
			},
		},
		Kafka: KafkaConfig{
			Enabled: v.GetBool("kafka.enabled"),
			Brokers: v.GetStringSlice("kafka.brokers"),
			Topic:   v.GetString("kafka.topic"),
		},
		Outbox: OutboxConfig{
			Enabled:         v.GetBool("outbox.enabled"),
			PollInterval:    v.GetDuration("outbox.poll_interval"),
			BatchSize:       v.GetInt("outbox.batch_size"),
			Retention:       v.GetDuration("outbox.retention"),
			CleanupInterval: v.GetDuration("outbox.cleanup_interval"),
		},
		Metrics: MetricsConfig{
			Enabled: v.GetBool("metrics.enabled"),
			Path:    v.GetString("metrics.path"),
		},
		Tracing: TracingConfig{
			Enabled:           v.GetBool("tracing.enabled"),
			CollectorEndpoint: v.GetString("tracing.collector_endpoint"),
			SamplingRatio:     v.GetFloat64("tracing.sampling_ratio"),
			Insecure:          v.GetBool("tracing.insecure"),
		},
	}

	if err := v.UnmarshalKey("chains", &cfg.Chains); err != nil {
		return nil, fmt.Errorf("error decoding chains: %w", err)
	}
	if err := v.UnmarshalKey("currencies", &cfg.Currencies); err != nil {
		return nil, fmt.Errorf("error decoding currencies: %w", err)
	}

	applyDefaults(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// setDefaults registers defaults that viper reports for unset keys
func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "payorder-service")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("database.auto_migrate", true)
	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("kafka.topic", "payorder.events")
	v.SetDefault("tracing.collector_endpoint", "localhost:4317")
	v.SetDefault("tracing.sampling_ratio", 1.0)
}

// applyDefaults sets default values for any empty config fields
func applyDefaults(cfg *Config) {
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
		cfg.Database.DBName = "payorders"
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
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
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
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
	if cfg.HTTP.ReadTimeout == 0 {
		cfg.HTTP.ReadTimeout = 15 * time.Second
	}
	if cfg.HTTP.WriteTimeout == 0 {
		cfg.HTTP.WriteTimeout = 30 * time.Second
	}
	if cfg.HTTP.IdleTimeout == 0 {
		cfg.HTTP.IdleTimeout = 60 * time.Second
	}
	if cfg.HTTP.ShutdownTimeout == 0 {
		cfg.HTTP.ShutdownTimeout = 10 * time.Second
	}
	if cfg.HTTP.MaxHeaderBytes == 0 {
		cfg.HTTP.MaxHeaderBytes = 1 << 20 // 1MB
	}
	if cfg.HTTP.MaxBodySize == 0 {
		cfg.HTTP.MaxBodySize = 1 << 20
	}
	if cfg.Auth.SignatureWindow == 0 {
		cfg.Auth.SignatureWindow = 300 * time.Second
	}
	if cfg.Scheduler.MaxConcurrentJobs == 0 {
		cfg.Scheduler.MaxConcurrentJobs = 2
	}
	if cfg.Scheduler.JobTimeout == 0 {
		cfg.Scheduler.JobTimeout = 5 * time.Minute
	}
	if cfg.Scheduler.RetryAttempts == 0 {
		cfg.Scheduler.RetryAttempts = 3
	}
	if cfg.Scheduler.RetryDelay == 0 {
		cfg.Scheduler.RetryDelay = 10 * time.Second
	}
	if cfg.Scheduler.SweepInterval == 0 {
		cfg.Scheduler.SweepInterval = 30 * time.Second
	}
	if cfg.Scheduler.SweepBatchSize == 0 {
		cfg.Scheduler.SweepBatchSize = 100
	}
	if cfg.Scheduler.SettlementPollInterval == 0 {
		cfg.Scheduler.SettlementPollInterval = time.Minute
	}
	if cfg.PayOrder.OrderTTL == 0 {
		cfg.PayOrder.OrderTTL = 15 * time.Minute
	}
	if cfg.PayOrder.PaymentWindow == 0 {
		cfg.PayOrder.PaymentWindow = 15 * time.Minute
	}
	if cfg.PayOrder.QuoteTTL == 0 {
		cfg.PayOrder.QuoteTTL = 5 * time.Minute
	}
	if cfg.PayOrder.MismatchRetryBudget == 0 {
		cfg.PayOrder.MismatchRetryBudget = 3
	}
	if cfg.PayOrder.AmountTolerance == 0 {
		cfg.PayOrder.AmountTolerance = 0.005
	}
	if cfg.PayOrder.FeeRate == 0 {
		cfg.PayOrder.FeeRate = 0.01
	}
	if cfg.PayOrder.RouteClaimTTL == 0 {
		cfg.PayOrder.RouteClaimTTL = time.Minute
	}
	if cfg.PayOrder.ConfirmationTimeout == 0 {
		cfg.PayOrder.ConfirmationTimeout = time.Hour
	}
	if cfg.Providers.Timeout == 0 {
		cfg.Providers.Timeout = 10 * time.Second
	}
	if cfg.Providers.Retry.MaxAttempts == 0 {
		cfg.Providers.Retry.MaxAttempts = 3
	}
	if cfg.Providers.Retry.InitialInterval == 0 {
		cfg.Providers.Retry.InitialInterval = 200 * time.Millisecond
	}
	if cfg.Providers.Retry.MaxInterval == 0 {
		cfg.Providers.Retry.MaxInterval = 5 * time.Second
	}
	if cfg.Providers.CoinGecko.BaseURL == "" {
		cfg.Providers.CoinGecko.BaseURL = "https://api.coingecko.com/api/v3"
	}
	if cfg.Providers.ChangeNow.BaseURL == "" {
		cfg.Providers.ChangeNow.BaseURL = "https://api.changenow.io/v2"
	}
	if len(cfg.Currencies) == 0 {
		cfg.Currencies = DefaultCurrencies()
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}
	if cfg.Outbox.PollInterval == 0 {
		cfg.Outbox.PollInterval = 2 * time.Second
	}
	if cfg.Outbox.BatchSize == 0 {
		cfg.Outbox.BatchSize = 100
	}
	if cfg.Outbox.Retention == 0 {
		cfg.Outbox.Retention = 7 * 24 * time.Hour
	}
	if cfg.Outbox.CleanupInterval == 0 {
		cfg.Outbox.CleanupInterval = time.Hour
	}
}

// validate performs validation on the configuration
func (c *Config) validate() error {
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

	if c.PayOrder.MismatchRetryBudget < 1 {
		return fmt.Errorf("payorder.mismatch_retry_budget must be at least 1")
	}
	if c.PayOrder.AmountTolerance < 0 || c.PayOrder.AmountTolerance >= 1 {
		return fmt.Errorf("payorder.amount_tolerance must be in [0, 1), got %f", c.PayOrder.AmountTolerance)
	}
	if c.PayOrder.FeeRate < 0 || c.PayOrder.FeeRate >= 1 {
		return fmt.Errorf("payorder.fee_rate must be in [0, 1), got %f", c.PayOrder.FeeRate)
	}
	if c.PayOrder.ConfirmationTimeout < 0 {
		return fmt.Errorf("payorder.confirmation_timeout must be positive, got %s", c.PayOrder.ConfirmationTimeout)
	}
	if c.Providers.Retry.MaxInterval < c.Providers.Retry.InitialInterval {
		return fmt.Errorf("providers.retry.max_interval cannot be shorter than providers.retry.initial_interval")
	}

	chains := make(map[string]struct{}, len(c.Chains))
	for i, ch := range c.Chains {
		if ch.ID == "" {
			return fmt.Errorf("chains[%d].id is required", i)
		}
		if _, dup := chains[ch.ID]; dup {
			return fmt.Errorf("chains[%d].id %q is listed more than once", i, ch.ID)
		}
		switch strings.ToUpper(ch.Family) {
		case "EVM", "SOLANA", "SUI":
		default:
			return fmt.Errorf("chains[%d].family %q is not one of EVM, SOLANA, SUI", i, ch.Family)
		}
		if ch.RPCURL == "" {
			return fmt.Errorf("chains[%d].rpc_url is required", i)
		}
		chains[ch.ID] = struct{}{}
	}

	if c.Tracing.SamplingRatio < 0 || c.Tracing.SamplingRatio > 1 {
		return fmt.Errorf("tracing.sampling_ratio must be in [0, 1], got %f", c.Tracing.SamplingRatio)
	}

	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers is required when kafka is enabled")
	}
	if c.Outbox.BatchSize < 0 {
		return fmt.Errorf("outbox.batch_size cannot be negative")
	}

	if c.App.Env == "production" {
		if c.Database.Password == "" || c.Database.Password == "postgres" {
			return fmt.Errorf("database.password must be set to a non-default value in production")
		}
		if c.Database.SSLMode == "disable" {
			return fmt.Errorf("database.sslmode cannot be 'disable' in production")
		}
		if c.Providers.ChangeNow.APIKey == "" {
			return fmt.Errorf("providers.changenow.api_key is required in production")
		}
		if len(c.Chains) == 0 {
			return fmt.Errorf("at least one chain must be configured in production")
		}
	}

	return nil
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
