package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
	_ "time/tzdata" // booking time zones must resolve without system tzdata

	"courtbook/internal/models"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App            AppConfig              `yaml:"app"`
	Database       DatabaseConfig         `yaml:"database"`
	Redis          RedisConfig            `yaml:"redis"`
	Backup         BackupConfig           `yaml:"backup"`
	Monitoring     MonitoringConfig       `yaml:"monitoring"`
	Logging        LoggingConfig          `yaml:"logging"`
	API            APIConfig              `yaml:"api"`
	Booking        BookingConfig          `yaml:"booking"`
	Payments       PaymentsConfig         `yaml:"payments"`
	Notifications  NotificationsConfig    `yaml:"notifications"`
	Google         GoogleConfig           `yaml:"google"`
	Kafka          KafkaConfig            `yaml:"kafka"`
	Exports        ExportConfig           `yaml:"exports"`
	Courts         []models.Resource      `yaml:"courts"`
	PaymentMethods []models.PaymentMethod `yaml:"payment_methods"`
}

type APIConfig struct {
	HTTP      APIHTTPConfig      `yaml:"http"`
	GRPC      APIGRPCConfig      `yaml:"grpc"`
	Auth      APIAuthConfig      `yaml:"auth"`
	RateLimit APIRateLimitConfig `yaml:"rate_limit"`
}

type APIHTTPConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

type APIGRPCConfig struct {
	Enabled    bool         `yaml:"enabled"`
	Port       int          `yaml:"port"`
	Reflection bool         `yaml:"reflection"`
	TLS        APITLSConfig `yaml:"tls"`
}

type APITLSConfig struct {
	Enabled           bool   `yaml:"enabled"`
	CertFile          string `yaml:"cert_file"`
	KeyFile           string `yaml:"key_file"`
	ClientCAFile      string `yaml:"client_ca_file"`
	RequireClientCert bool   `yaml:"require_client_cert"`
}

type APIAuthConfig struct {
	// JWTSecret verifies HS256 bearer tokens issued by the identity provider.
	JWTSecret    string         `yaml:"jwt_secret"`
	JWTIssuer    string         `yaml:"jwt_issuer"`
	HeaderAPIKey string         `yaml:"header_api_key"`
	HeaderExtra  string         `yaml:"header_extra"`
	APIKeys      []APIClientKey `yaml:"api_keys"`
}

type APIClientKey struct {
	Key         string   `yaml:"key"`
	Extra       string   `yaml:"extra"`
	Name        string   `yaml:"name"`
	Permissions []string `yaml:"permissions"`
}

type APIRateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
	// BookingsPerMinute caps reservation attempts per user; 0 disables.
	BookingsPerMinute int `yaml:"bookings_per_minute"`
}

type ExportConfig struct {
	Path string `yaml:"path"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
	BaseURL     string `yaml:"base_url"`
}

type DatabaseConfig struct {
	Driver   string         `yaml:"driver"` // sqlite3 or postgres
	Path     string         `yaml:"path"`
	Postgres PostgresConfig `yaml:"postgres"`
}

type PostgresConfig struct {
	Host           string `yaml:"host"`
	Port           int    `yaml:"port"`
	User           string `yaml:"user"`
	Password       string `yaml:"password"`
	DBName         string `yaml:"dbname"`
	SSLMode        string `yaml:"sslmode"`
	MaxConnections int    `yaml:"max_connections"`
}

// DSN builds a lib/pq connection string.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.DBName, p.SSLMode)
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

type BackupConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Schedule      string `yaml:"schedule"`
	RetentionDays int    `yaml:"retention_days"`
	StoragePath   string `yaml:"storage_path"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
	PrometheusPort    int  `yaml:"prometheus_port"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

type BookingConfig struct {
	Timezone  string `yaml:"timezone"`
	OpenHour  int    `yaml:"open_hour"`
	CloseHour int    `yaml:"close_hour"`
	MinHours  int    `yaml:"min_hours"`
	MaxHours  int    `yaml:"max_hours"`
}

// Location resolves the booking time zone, falling back to UTC.
func (b BookingConfig) Location() *time.Location {
	if b.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(b.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

type PaymentsConfig struct {
	Provider    string        `yaml:"provider"` // sandbox or stripe
	Currency    string        `yaml:"currency"`
	CheckoutTTL time.Duration `yaml:"checkout_ttl"`
	Sandbox     SandboxConfig `yaml:"sandbox"`
	Stripe      StripeConfig  `yaml:"stripe"`
}

type SandboxConfig struct {
	AlwaysSucceed bool   `yaml:"always_succeed"`
	WebhookSecret string `yaml:"webhook_secret"`
}

type StripeConfig struct {
	APIKey        string `yaml:"api_key"`
	WebhookSecret string `yaml:"webhook_secret"`
	SuccessURL    string `yaml:"success_url"`
	CancelURL     string `yaml:"cancel_url"`
}

type NotificationsConfig struct {
	Mode     string         `yaml:"mode"` // simulated or smtp
	SMTP     SMTPConfig     `yaml:"smtp"`
	Telegram TelegramConfig `yaml:"telegram"`
}

type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
}

type TelegramConfig struct {
	BotToken string  `yaml:"bot_token"`
	ChatIDs  []int64 `yaml:"chat_ids"`
}

type GoogleConfig struct {
	CredentialsFile           string `yaml:"credentials_file"`
	ReservationsSpreadsheetID string `yaml:"reservations_spreadsheet_id"`
}

type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

func Load(configPath string) (*Config, error) {
	// .env is optional
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	expandedData := []byte(os.ExpandEnv(string(data)))

	var config Config
	if err := yaml.Unmarshal(expandedData, &config); err != nil {
		return nil, err
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite3":
		if c.Database.Path == "" {
			return errors.New("database path is required")
		}
	case "postgres":
		if c.Database.Postgres.Host == "" || c.Database.Postgres.DBName == "" {
			return errors.New("postgres host and dbname are required")
		}
	default:
		return fmt.Errorf("unsupported database driver: %s", c.Database.Driver)
	}

	if c.Booking.OpenHour < 0 || c.Booking.CloseHour > 24 || c.Booking.OpenHour >= c.Booking.CloseHour {
		return fmt.Errorf("invalid business hours %d-%d", c.Booking.OpenHour, c.Booking.CloseHour)
	}
	if c.Booking.MinHours < 1 || c.Booking.MaxHours < c.Booking.MinHours {
		return fmt.Errorf("invalid booking duration range %d-%d", c.Booking.MinHours, c.Booking.MaxHours)
	}
	if c.Booking.Timezone != "" {
		if _, err := time.LoadLocation(c.Booking.Timezone); err != nil {
			return fmt.Errorf("invalid booking timezone: %w", err)
		}
	}

	if c.API.HTTP.Enabled && c.API.Auth.JWTSecret == "" {
		return errors.New("api.auth.jwt_secret is required when http api is enabled")
	}

	if err := c.Payments.Validate(); err != nil {
		return err
	}

	if err := ValidateCourts(c.Courts); err != nil {
		return err
	}
	return ValidatePaymentMethods(c.PaymentMethods)
}

func (p PaymentsConfig) Validate() error {
	switch p.Provider {
	case "sandbox":
		return nil
	case "stripe":
		key := strings.TrimSpace(p.Stripe.APIKey)
		if key == "" {
			return errors.New("payments.stripe.api_key is required for the stripe provider")
		}
		if !strings.HasPrefix(key, "sk_") && !strings.HasPrefix(key, "rk_") {
			return errors.New("payments.stripe.api_key must be a secret (sk_) or restricted (rk_) key")
		}
		if p.Stripe.WebhookSecret == "" {
			return errors.New("payments.stripe.webhook_secret is required for the stripe provider")
		}
		return nil
	default:
		return fmt.Errorf("unsupported payments provider: %s", p.Provider)
	}
}

func ValidateCourts(courts []models.Resource) error {
	ids := make(map[int64]bool)
	for _, court := range courts {
		if court.ID == 0 {
			return fmt.Errorf("court '%s' has invalid ID 0", court.Name)
		}
		if ids[court.ID] {
			return fmt.Errorf("duplicate court ID found: %d", court.ID)
		}
		if court.HourlyRate < 0 {
			return fmt.Errorf("court %d has negative hourly rate", court.ID)
		}
		ids[court.ID] = true
	}
	return nil
}

func ValidatePaymentMethods(methods []models.PaymentMethod) error {
	ids := make(map[int64]bool)
	for _, m := range methods {
		if m.ID == 0 || m.Type == "" {
			return fmt.Errorf("payment method '%s' needs an id and a type", m.Name)
		}
		if ids[m.ID] {
			return fmt.Errorf("duplicate payment method ID found: %d", m.ID)
		}
		ids[m.ID] = true
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "courtbook"
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite3"
	}
	if c.Database.Postgres.Port == 0 {
		c.Database.Postgres.Port = 5432
	}
	if c.Database.Postgres.SSLMode == "" {
		c.Database.Postgres.SSLMode = "disable"
	}
	if c.API.GRPC.Port == 0 {
		c.API.GRPC.Port = 8081
	}
	if c.API.HTTP.Port == 0 {
		c.API.HTTP.Port = 8080
	}
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}
	if c.API.Auth.HeaderAPIKey == "" {
		c.API.Auth.HeaderAPIKey = "x-api-key"
	}
	if c.API.Auth.HeaderExtra == "" {
		c.API.Auth.HeaderExtra = "x-api-extra"
	}

	if c.Booking.OpenHour == 0 && c.Booking.CloseHour == 0 {
		c.Booking.OpenHour = models.DefaultOpenHour
		c.Booking.CloseHour = models.DefaultCloseHour
	}
	if c.Booking.MinHours == 0 {
		c.Booking.MinHours = models.DefaultMinBookingHours
	}
	if c.Booking.MaxHours == 0 {
		c.Booking.MaxHours = models.DefaultMaxBookingHours
	}

	if c.Payments.Provider == "" {
		c.Payments.Provider = "sandbox"
	}
	if c.Payments.Currency == "" {
		c.Payments.Currency = models.DefaultCurrency
	}
	if c.Payments.CheckoutTTL == 0 {
		c.Payments.CheckoutTTL = models.DefaultCheckoutTTL * time.Second
	}
	if c.Notifications.Mode == "" {
		c.Notifications.Mode = "simulated"
	}
	if c.Notifications.SMTP.Port == 0 {
		c.Notifications.SMTP.Port = 587
	}
	if c.Kafka.Topic == "" {
		c.Kafka.Topic = "courtbook.events"
	}
	if c.Exports.Path == "" {
		c.Exports.Path = "exports"
	}
}
