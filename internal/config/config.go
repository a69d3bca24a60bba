package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds every setting the server reads from the environment.
type Config struct {
	AppEnv         string        `env:"APP_ENV" envDefault:"development"`
	HTTPAddr       string        `env:"HTTP_ADDR" envDefault:":8080"`
	BaseURL        string        `env:"BASE_URL" envDefault:"http://localhost:8080"`
	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT" envDefault:"15s"`
	TrustedProxies []string      `env:"TRUSTED_PROXIES" envSeparator:","`

	DB DBConfig

	AuthSecret    string        `env:"AUTH_SECRET,required"`
	SessionTTL    time.Duration `env:"SESSION_TTL" envDefault:"720h"`
	SecureCookies bool          `env:"SECURE_COOKIES" envDefault:"false"`
	RedisURL      string        `env:"REDIS_URL"`

	StripeSecretKey     string `env:"STRIPE_SECRET_KEY"`
	StripeWebhookSecret string `env:"STRIPE_WEBHOOK_SECRET"`

	SMTP SMTPConfig
}

type DBConfig struct {
	User     string `env:"DB_USER" envDefault:"root"`
	Password string `env:"DB_PASSWORD"`
	Host     string `env:"DB_HOST" envDefault:"127.0.0.1"`
	Port     string `env:"DB_PORT" envDefault:"3306"`
	Name     string `env:"DB_NAME" envDefault:"saasbase"`
}

type SMTPConfig struct {
	Host     string `env:"EMAIL_SERVER_HOST"`
	Port     int    `env:"EMAIL_SERVER_PORT" envDefault:"587"`
	User     string `env:"EMAIL_SERVER_USER"`
	Password string `env:"EMAIL_SERVER_PASSWORD"`
	From     string `env:"EMAIL_FROM" envDefault:"no-reply@localhost"`
}

// Enabled reports whether outgoing mail can be delivered over SMTP.
func (c SMTPConfig) Enabled() bool {
	return c.Host != ""
}

func (c Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// Load reads an optional .env file and then parses the process environment.
func Load(files ...string) (Config, error) {
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load env file: %w", err)
	}
	return Parse()
}

// Parse builds a Config from the current process environment only.
func Parse() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if len(cfg.AuthSecret) < 32 {
		return Config{}, errors.New("AUTH_SECRET must be at least 32 characters")
	}
	return cfg, nil
}
