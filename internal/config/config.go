package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Log           LogConfig
	Dashboard     DashboardConfig
	Alerts        AlertsConfig
	Notifications NotificationsConfig
	Jobs          JobsConfig
}

type ServerConfig struct {
	Port           int
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	JWTSecret      string   `mapstructure:"jwt_secret"`
}

type DatabaseConfig struct {
	Path string
}

type LogConfig struct {
	Level  string
	Format string
}

type DashboardConfig struct {
	BaseURL string `mapstructure:"base_url"`
}

type AlertsConfig struct {
	DedupWindow            time.Duration `mapstructure:"dedup_window"`
	RetentionDays          int           `mapstructure:"retention_days"`
	DefaultCooldownMinutes int           `mapstructure:"default_cooldown_minutes"`
}

type NotificationsConfig struct {
	MaxAttempts       int           `mapstructure:"max_attempts"`
	FailureThreshold  int           `mapstructure:"failure_threshold"`
	BatchSize         int           `mapstructure:"batch_size"`
	ImmediateDispatch bool          `mapstructure:"immediate_dispatch"`
	HTTPTimeout       time.Duration `mapstructure:"http_timeout"`
	Email             EmailConfig
}

type EmailConfig struct {
	Provider     string // smtp or resend
	SMTPHost     string `mapstructure:"smtp_host"`
	SMTPPort     int    `mapstructure:"smtp_port"`
	SMTPUsername string `mapstructure:"smtp_username"`
	SMTPPassword string `mapstructure:"smtp_password"`
	From         string
	FromName     string `mapstructure:"from_name"`
	ResendAPIKey string `mapstructure:"resend_api_key"`
}

type JobsConfig struct {
	AutoStart             bool          `mapstructure:"auto_start"`
	EvaluationInterval    time.Duration `mapstructure:"evaluation_interval"`
	DeliveryInterval      time.Duration `mapstructure:"delivery_interval"`
	CleanupInterval       time.Duration `mapstructure:"cleanup_interval"`
	HeuristicInterval     time.Duration `mapstructure:"heuristic_interval"`
	EvaluationConcurrency int           `mapstructure:"evaluation_concurrency"`
	Lock                  string        // local or database
	LockTTL               time.Duration `mapstructure:"lock_ttl"`
	InstanceID            string        `mapstructure:"instance_id"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.jwt_secret", "")

	v.SetDefault("database.path", "data/nexus.db")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("dashboard.base_url", "http://localhost:3000")

	v.SetDefault("alerts.dedup_window", 24*time.Hour)
	v.SetDefault("alerts.retention_days", 30)
	v.SetDefault("alerts.default_cooldown_minutes", 60)

	v.SetDefault("notifications.max_attempts", 3)
	v.SetDefault("notifications.failure_threshold", 5)
	v.SetDefault("notifications.batch_size", 100)
	v.SetDefault("notifications.immediate_dispatch", true)
	v.SetDefault("notifications.http_timeout", 10*time.Second)
	v.SetDefault("notifications.email.provider", "smtp")
	v.SetDefault("notifications.email.smtp_port", 587)
	v.SetDefault("notifications.email.from", "alerts@localhost")
	v.SetDefault("notifications.email.from_name", "Nexus Alerts")

	v.SetDefault("jobs.auto_start", true)
	v.SetDefault("jobs.evaluation_interval", time.Minute)
	v.SetDefault("jobs.delivery_interval", 2*time.Minute)
	v.SetDefault("jobs.cleanup_interval", 24*time.Hour)
	v.SetDefault("jobs.heuristic_interval", 15*time.Minute)
	v.SetDefault("jobs.evaluation_concurrency", 4)
	v.SetDefault("jobs.lock", "local")
	v.SetDefault("jobs.lock_ttl", 10*time.Minute)
}

// LoadConfig loads the configuration from config.yaml (in . or ./config) and
// NEXUS_* environment variables. A missing file is not an error.
func LoadConfig(configFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("NEXUS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || configFile != "" {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// MaxDeliveryAttempts bounds notifications.max_attempts.
const MaxDeliveryAttempts = 10

func (c *Config) Validate() error {
	if c.Notifications.MaxAttempts < 1 || c.Notifications.MaxAttempts > MaxDeliveryAttempts {
		return fmt.Errorf("notifications.max_attempts must be between 1 and %d", MaxDeliveryAttempts)
	}
	if c.Notifications.FailureThreshold < 1 {
		return fmt.Errorf("notifications.failure_threshold must be at least 1")
	}
	if c.Notifications.BatchSize < 1 {
		return fmt.Errorf("notifications.batch_size must be at least 1")
	}
	switch c.Notifications.Email.Provider {
	case "smtp", "resend":
	default:
		return fmt.Errorf("unknown email provider %q", c.Notifications.Email.Provider)
	}
	switch c.Jobs.Lock {
	case "local", "database":
	default:
		return fmt.Errorf("unknown job lock %q", c.Jobs.Lock)
	}
	if c.Alerts.RetentionDays < 1 {
		return fmt.Errorf("alerts.retention_days must be at least 1")
	}
	return nil
}
