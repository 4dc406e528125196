// Package config loads service configuration from config.yml and the
// environment. Secrets are only read from SALON_* variables.
package config

import (
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
	"golang.org/x/time/rate"

	"github.com/jwalitptl/salon-api/internal/email"
	"github.com/jwalitptl/salon-api/internal/gateway/stripe"
	"github.com/jwalitptl/salon-api/internal/model"
	"github.com/jwalitptl/salon-api/internal/repository/postgres"
	"github.com/jwalitptl/salon-api/internal/service/availability"
	"github.com/jwalitptl/salon-api/internal/service/booking"
	"github.com/jwalitptl/salon-api/internal/service/catalog"
	"github.com/jwalitptl/salon-api/internal/service/payment"
	"github.com/jwalitptl/salon-api/internal/service/pricing"
	"github.com/jwalitptl/salon-api/internal/sms"
	"github.com/jwalitptl/salon-api/internal/worker"
	"github.com/jwalitptl/salon-api/pkg/logger"
	"github.com/jwalitptl/salon-api/pkg/messaging/redis"
	pkgworker "github.com/jwalitptl/salon-api/pkg/worker"
)

const envPrefix = "salon"

type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Log          LogConfig          `mapstructure:"log"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Redis        RedisConfig        `mapstructure:"redis"`
	JWT          JWTConfig          `mapstructure:"jwt"`
	Stripe       StripeConfig       `mapstructure:"stripe"`
	Booking      BookingConfig      `mapstructure:"booking"`
	Commission   CommissionConfig   `mapstructure:"commission"`
	Outbox       OutboxConfig       `mapstructure:"outbox"`
	Audit        AuditConfig        `mapstructure:"audit"`
	Notification NotificationConfig `mapstructure:"notification"`
	RateLimit    RateLimitConfig    `mapstructure:"rate_limit"`
}

type ServerConfig struct {
	Port           int           `mapstructure:"port"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	MaxBodyBytes   int64         `mapstructure:"max_body_bytes"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
	// WebhookWorkers apply verified gateway webhooks off the request path
	WebhookWorkers   int `mapstructure:"webhook_workers"`
	WebhookQueueSize int `mapstructure:"webhook_queue_size"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
	JSON  bool   `mapstructure:"json"`
}

type DatabaseConfig struct {
	// Driver is postgres or memory
	Driver          string        `mapstructure:"driver"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

type RedisConfig struct {
	// URL empty selects the in-process broker
	URL          string        `mapstructure:"url"`
	MaxRetries   int           `mapstructure:"max_retries"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
}

type JWTConfig struct {
	Secret string        `mapstructure:"secret"`
	Issuer string        `mapstructure:"issuer"`
	TTL    time.Duration `mapstructure:"ttl"`
}

type StripeConfig struct {
	// Mode is live or fake
	Mode             string        `mapstructure:"mode"`
	SecretKey        string        `mapstructure:"secret_key"`
	WebhookSecret    string        `mapstructure:"webhook_secret"`
	WebhookTolerance time.Duration `mapstructure:"webhook_tolerance"`
	BreakerTimeout   time.Duration `mapstructure:"breaker_timeout"`
	GatewayTimeout   time.Duration `mapstructure:"gateway_timeout"`
	Currency         string        `mapstructure:"currency"`
}

type BookingConfig struct {
	Timezone     string        `mapstructure:"timezone"`
	Granularity  time.Duration `mapstructure:"granularity"`
	MinNotice    time.Duration `mapstructure:"min_notice"`
	CancelWindow time.Duration `mapstructure:"cancel_window"`
	DefaultOpen  string        `mapstructure:"default_open"`
	DefaultClose string        `mapstructure:"default_close"`
	CatalogTTL   time.Duration `mapstructure:"catalog_ttl"`
}

type CommissionConfig struct {
	Platform float64 `mapstructure:"platform"`
	Salon    float64 `mapstructure:"salon"`
	Tax      float64 `mapstructure:"tax"`
}

type OutboxConfig struct {
	BatchSize     int           `mapstructure:"batch_size"`
	PollInterval  time.Duration `mapstructure:"poll_interval"`
	RetryAttempts int           `mapstructure:"retry_attempts"`
	RetryDelay    time.Duration `mapstructure:"retry_delay"`
	MaxRetries    int           `mapstructure:"max_retries"`
	StaleAfter    time.Duration `mapstructure:"stale_after"`
}

type AuditConfig struct {
	CleanupSchedule string        `mapstructure:"cleanup_schedule"`
	RetentionDays   int           `mapstructure:"retention_days"`
	OutboxSchedule  string        `mapstructure:"outbox_schedule"`
	OutboxRetention time.Duration `mapstructure:"outbox_retention"`
}

type NotificationConfig struct {
	SMTP   SMTPConfig   `mapstructure:"smtp"`
	Twilio TwilioConfig `mapstructure:"twilio"`
}

type SMTPConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
}

type TwilioConfig struct {
	AccountSID   string `mapstructure:"account_sid"`
	AuthToken    string `mapstructure:"auth_token"`
	From         string `mapstructure:"from"`
	WhatsAppFrom string `mapstructure:"whatsapp_from"`
}

type RateLimitConfig struct {
	Enabled           bool    `mapstructure:"enabled"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

// secrets are overlaid from SALON_* variables after the file is read
type secrets struct {
	JWTSecret           string `envconfig:"JWT_SECRET"`
	DatabasePassword    string `envconfig:"DB_PASSWORD"`
	StripeSecretKey     string `envconfig:"STRIPE_SECRET"`
	StripeWebhookSecret string `envconfig:"STRIPE_WEBHOOK_SECRET"`
	SMTPPassword        string `envconfig:"SMTP_PASSWORD"`
	TwilioAuthToken     string `envconfig:"TWILIO_AUTH_TOKEN"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.request_timeout", "30s")
	v.SetDefault("server.max_body_bytes", 1<<20)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.webhook_workers", 2)
	v.SetDefault("server.webhook_queue_size", 256)

	v.SetDefault("log.level", "info")

	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "salon")
	v.SetDefault("database.name", "salon")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "5m")

	v.SetDefault("redis.max_retries", 3)
	v.SetDefault("redis.retry_backoff", "100ms")
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.min_idle_conns", 2)

	v.SetDefault("jwt.issuer", "salon-api")
	v.SetDefault("jwt.ttl", "24h")

	v.SetDefault("stripe.mode", "live")
	v.SetDefault("stripe.webhook_tolerance", "5m")
	v.SetDefault("stripe.breaker_timeout", "30s")
	v.SetDefault("stripe.gateway_timeout", "15s")
	v.SetDefault("stripe.currency", "usd")

	v.SetDefault("booking.timezone", "America/Costa_Rica")
	v.SetDefault("booking.granularity", "30m")
	v.SetDefault("booking.min_notice", "0s")
	v.SetDefault("booking.cancel_window", "24h")
	v.SetDefault("booking.default_open", "09:00")
	v.SetDefault("booking.default_close", "18:00")
	v.SetDefault("booking.catalog_ttl", "1m")

	v.SetDefault("commission.platform", 0.10)
	v.SetDefault("commission.salon", 0.40)
	v.SetDefault("commission.tax", 0.13)

	v.SetDefault("outbox.batch_size", 100)
	v.SetDefault("outbox.poll_interval", "1s")
	v.SetDefault("outbox.retry_attempts", 3)
	v.SetDefault("outbox.retry_delay", "200ms")
	v.SetDefault("outbox.max_retries", 5)
	v.SetDefault("outbox.stale_after", "5m")

	v.SetDefault("audit.cleanup_schedule", "0 3 * * *")
	v.SetDefault("audit.retention_days", 365)
	v.SetDefault("audit.outbox_schedule", "30 3 * * *")
	v.SetDefault("audit.outbox_retention", "168h")

	v.SetDefault("notification.smtp.port", 587)

	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.requests_per_second", 20)
	v.SetDefault("rate_limit.burst", 40)
}

// Default returns the built-in settings without reading a file or the
// environment
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("config: invalid defaults: %v", err))
	}
	return &cfg
}

// Load reads path, or config.yml from . and ./config when path is empty.
// A missing default file is not an error; defaults and the environment
// still apply.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !stderrors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	var s secrets
	if err := envconfig.Process(envPrefix, &s); err != nil {
		return nil, fmt.Errorf("failed to read secrets: %w", err)
	}
	cfg.applySecrets(s)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applySecrets(s secrets) {
	overlay := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	overlay(&c.JWT.Secret, s.JWTSecret)
	overlay(&c.Database.Password, s.DatabasePassword)
	overlay(&c.Stripe.SecretKey, s.StripeSecretKey)
	overlay(&c.Stripe.WebhookSecret, s.StripeWebhookSecret)
	overlay(&c.Notification.SMTP.Password, s.SMTPPassword)
	overlay(&c.Notification.Twilio.AuthToken, s.TwilioAuthToken)
}

// Validate reports the first setting the services cannot start with
func (c *Config) Validate() error {
	if c.JWT.Secret == "" {
		return fmt.Errorf("jwt secret is required (SALON_JWT_SECRET)")
	}
	switch c.Database.Driver {
	case "postgres", "memory":
	default:
		return fmt.Errorf("unknown database driver %q", c.Database.Driver)
	}
	switch c.Stripe.Mode {
	case "live":
		if c.Stripe.SecretKey == "" || c.Stripe.WebhookSecret == "" {
			return fmt.Errorf("stripe secret key and webhook secret are required in live mode")
		}
	case "fake":
	default:
		return fmt.Errorf("unknown stripe mode %q", c.Stripe.Mode)
	}
	if _, err := model.ParseClockTime(c.Booking.DefaultOpen); err != nil {
		return fmt.Errorf("booking.default_open: %w", err)
	}
	if _, err := model.ParseClockTime(c.Booking.DefaultClose); err != nil {
		return fmt.Errorf("booking.default_close: %w", err)
	}
	if _, err := time.LoadLocation(c.Booking.Timezone); err != nil {
		return fmt.Errorf("booking.timezone: %w", err)
	}
	return nil
}

func (c *Config) Rates() pricing.Rates {
	return pricing.Rates{
		Platform: decimal.NewFromFloat(c.Commission.Platform),
		Salon:    decimal.NewFromFloat(c.Commission.Salon),
		Tax:      decimal.NewFromFloat(c.Commission.Tax),
	}
}

func (c *Config) ToLogger() *logger.Config {
	return &logger.Config{
		Level:      logger.ParseLevel(c.Log.Level),
		TimeFormat: time.RFC3339,
		JSON:       c.Log.JSON,
	}
}

func (c *Config) ToPostgres() postgres.Config {
	return postgres.Config{
		Host:            c.Database.Host,
		Port:            c.Database.Port,
		User:            c.Database.User,
		Password:        c.Database.Password,
		Name:            c.Database.Name,
		SSLMode:         c.Database.SSLMode,
		MaxOpenConns:    c.Database.MaxOpenConns,
		MaxIdleConns:    c.Database.MaxIdleConns,
		ConnMaxLifetime: c.Database.ConnMaxLifetime,
	}
}

func (c *Config) ToBroker() redis.Config {
	return redis.Config{
		URL:          c.Redis.URL,
		MaxRetries:   c.Redis.MaxRetries,
		RetryBackoff: c.Redis.RetryBackoff,
		PoolSize:     c.Redis.PoolSize,
		MinIdleConns: c.Redis.MinIdleConns,
	}
}

func (c *Config) ToStripe() stripe.Config {
	return stripe.Config{
		SecretKey:        c.Stripe.SecretKey,
		WebhookSecret:    c.Stripe.WebhookSecret,
		WebhookTolerance: c.Stripe.WebhookTolerance,
		BreakerTimeout:   c.Stripe.BreakerTimeout,
	}
}

func (c *Config) ToCatalog() catalog.Config {
	return catalog.Config{
		DefaultTimezone: c.Booking.Timezone,
		CacheTTL:        c.Booking.CatalogTTL,
	}
}

// ToAvailability assumes Validate has passed
func (c *Config) ToAvailability() availability.Config {
	open, _ := model.ParseClockTime(c.Booking.DefaultOpen)
	closing, _ := model.ParseClockTime(c.Booking.DefaultClose)
	return availability.Config{
		Granularity:  c.Booking.Granularity,
		MinNotice:    c.Booking.MinNotice,
		DefaultOpen:  open,
		DefaultClose: closing,
	}
}

func (c *Config) ToBooking() booking.Config {
	return booking.Config{
		Rates:          c.Rates(),
		Currency:       c.Stripe.Currency,
		CancelWindow:   c.Booking.CancelWindow,
		GatewayTimeout: c.Stripe.GatewayTimeout,
	}
}

func (c *Config) ToPayment() payment.Config {
	return payment.Config{
		Rates:          c.Rates(),
		Currency:       c.Stripe.Currency,
		GatewayTimeout: c.Stripe.GatewayTimeout,
	}
}

func (c *Config) ToOutbox() pkgworker.OutboxProcessorConfig {
	return pkgworker.OutboxProcessorConfig{
		BatchSize:     c.Outbox.BatchSize,
		PollInterval:  c.Outbox.PollInterval,
		RetryAttempts: c.Outbox.RetryAttempts,
		RetryDelay:    c.Outbox.RetryDelay,
		MaxRetries:    c.Outbox.MaxRetries,
		StaleAfter:    c.Outbox.StaleAfter,
	}
}

func (c *Config) ToCleanup() worker.CleanupConfig {
	return worker.CleanupConfig{
		AuditSchedule:      c.Audit.CleanupSchedule,
		AuditRetentionDays: c.Audit.RetentionDays,
		OutboxSchedule:     c.Audit.OutboxSchedule,
		OutboxRetention:    c.Audit.OutboxRetention,
	}
}

// ToEmail reports false when SMTP is not configured
func (c *Config) ToEmail() (email.Config, bool) {
	s := c.Notification.SMTP
	return email.Config{
		Host:     s.Host,
		Port:     s.Port,
		Username: s.Username,
		Password: s.Password,
		From:     s.From,
	}, s.Host != "" && s.From != ""
}

// ToSMS reports false when Twilio is not configured
func (c *Config) ToSMS() (sms.Config, bool) {
	t := c.Notification.Twilio
	return sms.Config{
		AccountSID:   t.AccountSID,
		AuthToken:    t.AuthToken,
		From:         t.From,
		WhatsAppFrom: t.WhatsAppFrom,
	}, t.AccountSID != "" && t.AuthToken != ""
}

func (c *Config) RequestRate() rate.Limit {
	return rate.Limit(c.RateLimit.RequestsPerSecond)
}
