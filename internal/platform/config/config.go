package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config is read from the environment. When CONFIG_FILE points at a YAML file its
// values are loaded first and environment variables override them.
type Config struct {
	Addr               string        `yaml:"addr" env:"APP_ADDR" env-default:":8080"`
	Environment        string        `yaml:"env" env:"APP_ENV" env-default:"development"`
	DatabaseURL        string        `yaml:"database_url" env:"DATABASE_URL"`
	JWTSecret          string        `yaml:"-" env:"JWT_SECRET"`
	RedisAddr          string        `yaml:"redis_addr" env:"REDIS_ADDR"`
	RedisPassword      string        `yaml:"-" env:"REDIS_PASSWORD"`
	BusyTTL            time.Duration `yaml:"busy_ttl" env:"BUSY_TTL" env-default:"30s"`
	EmailFrom          string        `yaml:"email_from" env:"EMAIL_FROM" env-default:"no-reply@example.com"`
	EmailEnabled       bool          `yaml:"email_enabled" env:"EMAIL_ENABLED" env-default:"false"`
	SMTPHost           string        `yaml:"smtp_host" env:"SMTP_HOST"`
	SMTPPort           int           `yaml:"smtp_port" env:"SMTP_PORT" env-default:"587"`
	SMTPUser           string        `yaml:"smtp_user" env:"SMTP_USER"`
	SMTPPassword       string        `yaml:"-" env:"SMTP_PASSWORD"`
	SMTPUseTLS         bool          `yaml:"smtp_use_tls" env:"SMTP_USE_TLS" env-default:"true"`
	RunMigrations      bool          `yaml:"run_migrations" env:"RUN_MIGRATIONS" env-default:"true"`
	MigrationsDir      string        `yaml:"migrations_dir" env:"MIGRATIONS_DIR" env-default:"migrations"`
	RunSeed            bool          `yaml:"run_seed" env:"RUN_SEED" env-default:"true"`
	SeedFile           string        `yaml:"seed_file" env:"SEED_FILE" env-default:"config/annual_targets.yaml"`
	MaxBodyBytes       int64         `yaml:"max_body_bytes" env:"MAX_BODY_BYTES" env-default:"1048576"`
	RateLimitPerMinute int           `yaml:"rate_limit_per_minute" env:"RATE_LIMIT_PER_MINUTE" env-default:"60"`
	MetricsEnabled     bool          `yaml:"metrics_enabled" env:"METRICS_ENABLED" env-default:"true"`
}

func Load() (Config, error) {
	var cfg Config
	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return Config{}, fmt.Errorf("read %s: %w", path, err)
		}
		return cfg, nil
	}
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return Config{}, fmt.Errorf("read environment: %w", err)
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.DatabaseURL) == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.Environment == "production" && strings.TrimSpace(c.JWTSecret) == "" {
		return fmt.Errorf("JWT_SECRET must be set to a strong value in production")
	}
	if c.MaxBodyBytes < 1024 {
		return fmt.Errorf("MAX_BODY_BYTES must be at least 1024")
	}
	if c.RateLimitPerMinute <= 0 {
		return fmt.Errorf("RATE_LIMIT_PER_MINUTE must be positive")
	}
	if c.BusyTTL <= 0 {
		return fmt.Errorf("BUSY_TTL must be positive")
	}
	if c.EmailEnabled && c.SMTPHost == "" {
		return fmt.Errorf("SMTP_HOST must be set when EMAIL_ENABLED is true")
	}
	return nil
}
