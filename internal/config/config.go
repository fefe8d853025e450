package config

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"
)

const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Config holds every setting read at startup. It is passed by value.
type Config struct {
	AppHost    string `env:"APP_HOST,default=127.0.0.1"`
	AppPort    int    `env:"APP_PORT,default=8000"`
	InstanceID string `env:"INSTANCE_ID,default=alerts-1"`
	LogLevel   string `env:"LOG_LEVEL,default=info"`
	LogFormat  string `env:"LOG_FORMAT,default=json"`

	StoreDriver       string        `env:"STORE_DRIVER,default=postgres"`
	DBHost            string        `env:"POSTGRES_HOST,default=localhost"`
	DBPort            int           `env:"POSTGRES_PORT,default=5432"`
	DBUser            string        `env:"POSTGRES_USER"`
	DBPassword        string        `env:"POSTGRES_PASSWORD"`
	DBName            string        `env:"POSTGRES_DB"`
	DBSSLMode         string        `env:"POSTGRES_SSLMODE,default=disable"`
	DBMaxOpenConns    int           `env:"DB_MAX_OPEN_CONNS,default=25"`
	DBMaxIdleConns    int           `env:"DB_MAX_IDLE_CONNS,default=5"`
	DBConnMaxLifetime time.Duration `env:"DB_CONN_MAX_LIFETIME,default=5m"`
	DBAutoMigrate     bool          `env:"DB_AUTO_MIGRATE,default=true"`

	SMTPHost     string `env:"SMTP_HOST"`
	SMTPPort     int    `env:"SMTP_PORT,default=587"`
	SMTPUsername string `env:"SMTP_USERNAME"`
	SMTPPassword string `env:"SMTP_PASSWORD"`
	SMTPFrom     string `env:"SMTP_FROM"`

	OKXBaseURL    string        `env:"OKX_BASE_URL,default=https://www.okx.com"`
	OKXTimeout    time.Duration `env:"OKX_TIMEOUT,default=10s"`
	OKXInstSuffix string        `env:"OKX_INST_SUFFIX,default=-USD-SWAP"`

	PollInterval    time.Duration `env:"POLL_INTERVAL,default=2s"`
	PollTickTimeout time.Duration `env:"POLL_TICK_TIMEOUT,default=1m"`
	PollWorkers     int           `env:"POLL_WORKERS,default=8"`

	RedisAddr          string `env:"REDIS_ADDR"`
	RedisPassword      string `env:"REDIS_PASSWORD"`
	RedisDB            int    `env:"REDIS_DB,default=0"`
	RateLimitPerMinute int    `env:"RATE_LIMIT_PER_MINUTE,default=120"`

	KafkaBrokers    string `env:"KAFKA_BROKERS"`
	KafkaPriceTopic string `env:"KAFKA_PRICE_TOPIC,default=price.updates"`
	KafkaAlertTopic string `env:"KAFKA_ALERT_TOPIC,default=price.alerts"`
	KafkaGroupID    string `env:"KAFKA_GROUP_ID,default=pricealerts-tail"`

	OTLPEndpoint string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	ServiceName  string `env:"OTEL_SERVICE_NAME,default=pricealerts"`
}

// Load reads an optional .env file and then the process environment.
// Variables already present in the environment win over the file.
func Load(ctx context.Context) (Config, error) {
	_ = godotenv.Load()
	return LoadWith(ctx, envconfig.OsLookuper())
}

// LoadWith reads the configuration from lookuper and validates it.
func LoadWith(ctx context.Context, lookuper envconfig.Lookuper) (Config, error) {
	var cfg Config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   &cfg,
		Lookuper: lookuper,
	}); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks rules spanning several fields.
func (c Config) Validate() error {
	var errs []error
	switch c.StoreDriver {
	case DriverPostgres:
		if c.DBUser == "" || c.DBName == "" {
			errs = append(errs, errors.New("POSTGRES_USER and POSTGRES_DB are required for the postgres store"))
		}
	case DriverMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver))
	}
	if c.PollInterval <= 0 {
		errs = append(errs, errors.New("POLL_INTERVAL must be positive"))
	}
	if c.PollWorkers <= 0 {
		errs = append(errs, errors.New("POLL_WORKERS must be positive"))
	}
	if c.AppPort <= 0 || c.AppPort > 65535 {
		errs = append(errs, fmt.Errorf("APP_PORT %d out of range", c.AppPort))
	}
	return errors.Join(errs...)
}

func (c Config) ListenAddr() string {
	return net.JoinHostPort(c.AppHost, strconv.Itoa(c.AppPort))
}

func (c Config) PostgresDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DBHost,
		c.DBPort,
		c.DBUser,
		c.DBPassword,
		c.DBName,
		c.DBSSLMode,
	)
}

func (c Config) SMTPEnabled() bool {
	return c.SMTPHost != ""
}

func (c Config) RedisEnabled() bool {
	return c.RedisAddr != ""
}

func (c Config) KafkaEnabled() bool {
	return strings.TrimSpace(c.KafkaBrokers) != ""
}

func (c Config) TracingEnabled() bool {
	return c.OTLPEndpoint != ""
}
