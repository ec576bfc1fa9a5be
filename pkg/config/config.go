package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/Abraxas-365/facilitydir/pkg/logx"
	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Config is the full application configuration.
// Precedence: built-in defaults, then the YAML file, then environment variables.
type Config struct {
	Server     ServerConfig     `yaml:"server" envPrefix:"SERVER_"`
	Database   DatabaseConfig   `yaml:"database" envPrefix:"DATABASE_"`
	Redis      RedisConfig      `yaml:"redis" envPrefix:"REDIS_"`
	Identity   IdentityConfig   `yaml:"identity" envPrefix:"IDENTITY_"`
	Onboarding OnboardingConfig `yaml:"onboarding" envPrefix:"ONBOARDING_"`
	Jobs       JobsConfig       `yaml:"jobs" envPrefix:"JOBS_"`
	Jobx       JobxConfig       `yaml:"jobx" envPrefix:"JOBX_"`
	Notifx     NotifxConfig     `yaml:"notifx" envPrefix:"NOTIFX_"`
	Log        LogConfig        `yaml:"log" envPrefix:"LOG_"`
}

type ServerConfig struct {
	Port            string        `yaml:"port" env:"PORT"`
	CORSOrigins     string        `yaml:"cors_origins" env:"CORS_ORIGINS"`
	RequestTimeout  time.Duration `yaml:"request_timeout" env:"REQUEST_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
	// Debug adds underlying causes to error responses.
	Debug bool `yaml:"debug" env:"DEBUG"`
	// SecureCookies marks session cookies Secure.
	SecureCookies bool `yaml:"secure_cookies" env:"SECURE_COOKIES"`
}

type DatabaseConfig struct {
	// Driver is "postgres" or "sqlite".
	Driver   string `yaml:"driver" env:"DRIVER"`
	Host     string `yaml:"host" env:"HOST"`
	Port     int    `yaml:"port" env:"PORT"`
	User     string `yaml:"user" env:"USER"`
	Password string `yaml:"password" env:"PASSWORD"`
	Name     string `yaml:"name" env:"NAME"`
	SSLMode  string `yaml:"ssl_mode" env:"SSL_MODE"`
	// Path is the sqlite database file.
	Path            string        `yaml:"path" env:"PATH"`
	MaxOpenConns    int           `yaml:"max_open_conns" env:"MAX_OPEN_CONNS"`
	MaxIdleConns    int           `yaml:"max_idle_conns" env:"MAX_IDLE_CONNS"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" env:"CONN_MAX_LIFETIME"`
	// Migrate applies the embedded schema at startup.
	Migrate bool `yaml:"migrate" env:"MIGRATE"`
}

// DSN returns the lib/pq connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

type RedisConfig struct {
	Host     string `yaml:"host" env:"HOST"`
	Port     int    `yaml:"port" env:"PORT"`
	Password string `yaml:"password" env:"PASSWORD"`
	DB       int    `yaml:"db" env:"DB"`
}

func (r RedisConfig) Address() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

type IdentityConfig struct {
	// Provider is "http" for the external identity provider or "memory" for the in-process one.
	Provider string `yaml:"provider" env:"PROVIDER"`
	BaseURL  string `yaml:"base_url" env:"BASE_URL"`
	// APIKey is the public key sent with every provider request.
	APIKey string `yaml:"api_key" env:"API_KEY"`
	// ServiceKey authorizes admin operations. Without it those operations are unavailable.
	ServiceKey string `yaml:"service_key" env:"SERVICE_KEY"`
	// JWTSecret verifies access tokens issued by the provider.
	JWTSecret     string        `yaml:"jwt_secret" env:"JWT_SECRET"`
	JWTIssuer     string        `yaml:"jwt_issuer" env:"JWT_ISSUER"`
	Timeout       time.Duration `yaml:"timeout" env:"TIMEOUT"`
	RetryAttempts int           `yaml:"retry_attempts" env:"RETRY_ATTEMPTS"`
	RetryBackoff  time.Duration `yaml:"retry_backoff" env:"RETRY_BACKOFF"`
	AccessTTL     time.Duration `yaml:"access_ttl" env:"ACCESS_TTL"`
}

type OnboardingConfig struct {
	InvitationTTL time.Duration `yaml:"invitation_ttl" env:"INVITATION_TTL"`
	// SiteURL prefixes the routes below when building redirect links.
	SiteURL      string `yaml:"site_url" env:"SITE_URL"`
	CallbackPath string `yaml:"callback_path" env:"CALLBACK_PATH"`
	SetupPath    string `yaml:"setup_path" env:"SETUP_PATH"`
	ResetPath    string `yaml:"reset_path" env:"RESET_PATH"`
	LoginPath    string `yaml:"login_path" env:"LOGIN_PATH"`
}

// InviteRedirectURL is where the identity provider sends invited users.
func (o OnboardingConfig) InviteRedirectURL() string {
	return o.SiteURL + o.CallbackPath
}

type JobsConfig struct {
	Enabled       bool   `yaml:"enabled" env:"ENABLED"`
	PurgeSchedule string `yaml:"purge_schedule" env:"PURGE_SCHEDULE"`
}

// JobxConfig configures the background job queue.
type JobxConfig struct {
	// Backend is "redis" or "memory". The memory queue does not survive restarts.
	Backend           string        `yaml:"backend" env:"BACKEND"`
	Prefix            string        `yaml:"prefix" env:"PREFIX"`
	Concurrency       int           `yaml:"concurrency" env:"CONCURRENCY"`
	Queues            []string      `yaml:"queues" env:"QUEUES"`
	PollInterval      time.Duration `yaml:"poll_interval" env:"POLL_INTERVAL"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
	DequeueTimeout    time.Duration `yaml:"dequeue_timeout" env:"DEQUEUE_TIMEOUT"`
	DefaultRetryDelay time.Duration `yaml:"default_retry_delay" env:"DEFAULT_RETRY_DELAY"`
}

// NotifxConfig configures outbound email.
type NotifxConfig struct {
	// Provider is "console", "ses" or "sendgrid".
	Provider       string `yaml:"provider" env:"PROVIDER"`
	FromAddress    string `yaml:"from_address" env:"FROM_ADDRESS"`
	FromName       string `yaml:"from_name" env:"FROM_NAME"`
	AWSRegion      string `yaml:"aws_region" env:"AWS_REGION"`
	SendGridAPIKey string `yaml:"sendgrid_api_key" env:"SENDGRID_API_KEY"`
}

type LogConfig struct {
	Level      string `yaml:"level" env:"LEVEL"`
	Format     string `yaml:"format" env:"FORMAT"`
	Color      bool   `yaml:"color" env:"COLOR"`
	Caller     bool   `yaml:"caller" env:"CALLER"`
	TimeFormat string `yaml:"time_format" env:"TIME_FORMAT"`
}

// LoggerConfig builds the logx configuration.
func (l LogConfig) LoggerConfig() *logx.Config {
	cfg := logx.DefaultConfig()
	cfg.Level = logx.ParseLevel(l.Level)
	cfg.Format = logx.ParseFormat(l.Format)
	cfg.EnableColors = l.Color
	cfg.EnableCaller = l.Caller
	cfg.TimeFormat = logx.ParseTimeFormat(l.TimeFormat)
	return cfg
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Port:            "8080",
			CORSOrigins:     "*",
			RequestTimeout:  15 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			Driver:          "postgres",
			Host:            "localhost",
			Port:            5432,
			User:            "postgres",
			Name:            "facilitydir",
			SSLMode:         "disable",
			Path:            "facilitydir.db",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Redis: RedisConfig{
			Host: "localhost",
			Port: 6379,
		},
		Identity: IdentityConfig{
			Provider:      "http",
			JWTIssuer:     "facilitydir",
			Timeout:       10 * time.Second,
			RetryAttempts: 3,
			RetryBackoff:  200 * time.Millisecond,
			AccessTTL:     time.Hour,
		},
		Onboarding: OnboardingConfig{
			InvitationTTL: 7 * 24 * time.Hour,
			SiteURL:       "http://localhost:8080",
			CallbackPath:  "/auth/callback",
			SetupPath:     "/setup",
			ResetPath:     "/reset-password",
			LoginPath:     "/login",
		},
		Jobs: JobsConfig{
			Enabled:       true,
			PurgeSchedule: "0 0 * * * *",
		},
		Jobx: JobxConfig{
			Backend:           "redis",
			Prefix:            "facilitydir",
			Concurrency:       4,
			Queues:            []string{"default"},
			PollInterval:      time.Second,
			ShutdownTimeout:   30 * time.Second,
			DequeueTimeout:    5 * time.Second,
			DefaultRetryDelay: 30 * time.Second,
		},
		Notifx: NotifxConfig{
			Provider:    "console",
			FromAddress: "noreply@facilitydir.local",
			FromName:    "Facility Directory",
			AWSRegion:   "us-east-1",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
			Color:  true,
		},
	}
}

// Load builds the configuration. path may be empty; a missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("parse config file %s: %w", path, err)
			}
		case errors.Is(err, os.ErrNotExist):
		default:
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
	}

	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects configurations the container cannot wire.
func (c *Config) Validate() error {
	var errs []error

	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		errs = append(errs, fmt.Errorf("database.driver: unknown driver %q", c.Database.Driver))
	}

	switch c.Identity.Provider {
	case "http":
		if c.Identity.BaseURL == "" {
			errs = append(errs, errors.New("identity.base_url is required for the http provider"))
		}
	case "memory":
	default:
		errs = append(errs, fmt.Errorf("identity.provider: unknown provider %q", c.Identity.Provider))
	}
	if c.Identity.JWTSecret == "" {
		errs = append(errs, errors.New("identity.jwt_secret is required"))
	}

	switch c.Notifx.Provider {
	case "console", "ses":
	case "sendgrid":
		if c.Notifx.SendGridAPIKey == "" {
			errs = append(errs, errors.New("notifx.sendgrid_api_key is required for the sendgrid provider"))
		}
	default:
		errs = append(errs, fmt.Errorf("notifx.provider: unknown provider %q", c.Notifx.Provider))
	}

	switch c.Jobx.Backend {
	case "redis", "memory":
	default:
		errs = append(errs, fmt.Errorf("jobx.backend: unknown backend %q", c.Jobx.Backend))
	}

	if c.Onboarding.InvitationTTL <= 0 {
		errs = append(errs, errors.New("onboarding.invitation_ttl must be positive"))
	}

	return errors.Join(errs...)
}
