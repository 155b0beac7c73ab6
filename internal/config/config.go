package config

import (
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
	EnvTest        = "test"
)

// Store drivers
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreScylla   = "scylla"
)

// Delivery modes
const (
	DeliveryInline = "inline"
	DeliveryKafka  = "kafka"
	DeliveryRedis  = "redis"
)

// SMS providers
const (
	SMSProviderLog = "log"
	SMSProviderSNS = "sns"
)

// Audit drivers
const (
	AuditNone       = "none"
	AuditClickhouse = "clickhouse"
)

const developmentJWTSecret = "development-only-secret-change-me-in-production"

type Config struct {
	Environment string `env:"APP_ENV" envDefault:"development"`

	Server     ServerConfig
	Logging    LoggingConfig
	Store      StoreConfig
	Postgres   PostgresConfig
	Scylla     ScyllaConfig
	Bucketing  BucketingConfig
	JWT        JWTConfig
	Hashing    HashingConfig
	SMS        SMSConfig
	Delivery   DeliveryConfig
	Kafka      KafkaConfig
	Redis      RedisConfig
	Audit      AuditConfig
	Clickhouse ClickhouseConfig

	devSecret bool
}

type ServerConfig struct {
	Port           int           `env:"PORT" envDefault:"3030"`
	TLSPort        int           `env:"TLS_PORT" envDefault:"443"`
	EnableTLS      bool          `env:"TLS_ENABLED" envDefault:"false"`
	AutoCert       bool          `env:"TLS_AUTOCERT" envDefault:"false"`
	Domain         string        `env:"TLS_DOMAIN"`
	Email          string        `env:"TLS_EMAIL"`
	CertFile       string        `env:"TLS_CERT_FILE"`
	KeyFile        string        `env:"TLS_KEY_FILE"`
	AutoCertDir    string        `env:"TLS_AUTOCERT_DIR" envDefault:"./certs"`
	ReadTimeout    time.Duration `env:"SERVER_READ_TIMEOUT" envDefault:"15s"`
	WriteTimeout   time.Duration `env:"SERVER_WRITE_TIMEOUT" envDefault:"15s"`
	IdleTimeout    time.Duration `env:"SERVER_IDLE_TIMEOUT" envDefault:"60s"`
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" envDefault:"60s"`
	AllowedOrigins []string      `env:"CORS_ALLOWED_ORIGINS" envDefault:"*"`
}

type LoggingConfig struct {
	Level  string `env:"LOG_LEVEL" envDefault:"info"`
	Format string `env:"LOG_FORMAT" envDefault:"json"`
}

type StoreConfig struct {
	Driver string `env:"STORE_DRIVER" envDefault:"memory"`
}

type PostgresConfig struct {
	URI          string `env:"DATABASE_URI"`
	Migrate      bool   `env:"DATABASE_MIGRATE" envDefault:"true"`
	MaxOpenConns int    `env:"DATABASE_MAX_OPEN_CONNS" envDefault:"20"`
}

type ScyllaConfig struct {
	Nodes    []string `env:"SCYLLA_NODES" envDefault:"127.0.0.1"`
	Keyspace string   `env:"SCYLLA_KEYSPACE" envDefault:"chat_auth"`
	Username string   `env:"SCYLLA_USERNAME"`
	Password string   `env:"SCYLLA_PASSWORD"`
	CAPath   string   `env:"SCYLLA_CA_PATH"`
}

type BucketingConfig struct {
	UserBuckets int `env:"BUCKETING_USER_BUCKETS" envDefault:"64"`
}

// JWTConfig is read once at startup and handed to the token service.
type JWTConfig struct {
	Secret    string        `env:"JWT_SECRET"`
	ExpiresIn time.Duration `env:"JWT_EXPIRES_IN" envDefault:"30d"`
	Issuer    string        `env:"JWT_ISSUER" envDefault:"chat-auth-service"`
}

type HashingConfig struct {
	Pepper            string `env:"HASH_PEPPER"`
	Argon2MemoryCost  int    `env:"ARGON2_MEMORY_KB" envDefault:"19456"`
	Argon2TimeCost    int    `env:"ARGON2_TIME_COST" envDefault:"2"`
	Argon2Parallelism int    `env:"ARGON2_PARALLELISM" envDefault:"1"`
}

type SMSConfig struct {
	Provider string `env:"SMS_PROVIDER" envDefault:"log"`
	Region   string `env:"AWS_REGION"`
	SenderID string `env:"SMS_SENDER_ID"`
}

type DeliveryConfig struct {
	Mode           string        `env:"DELIVERY_MODE" envDefault:"inline"`
	Workers        int           `env:"DELIVERY_WORKERS" envDefault:"4"`
	MaxRetries     int           `env:"DELIVERY_MAX_RETRIES" envDefault:"3"`
	AttemptTimeout time.Duration `env:"DELIVERY_ATTEMPT_TIMEOUT" envDefault:"10s"`
}

type KafkaConfig struct {
	Brokers       []string `env:"KAFKA_BROKERS" envDefault:"localhost:9092"`
	DeliveryTopic string   `env:"KAFKA_DELIVERY_TOPIC" envDefault:"otp-delivery"`
	GroupID       string   `env:"KAFKA_GROUP_ID" envDefault:"chat-auth-delivery"`
}

type RedisConfig struct {
	URL         string `env:"REDIS_URL" envDefault:"redis://localhost:6379/0"`
	Password    string `env:"REDIS_PASSWORD"`
	DB          int    `env:"REDIS_DB" envDefault:"0"`
	PoolSize    int    `env:"REDIS_POOL_SIZE" envDefault:"20"`
	DeliveryKey string `env:"REDIS_DELIVERY_KEY" envDefault:"otp:delivery"`
}

type AuditConfig struct {
	Driver string `env:"AUDIT_DRIVER" envDefault:"none"`
}

type ClickhouseConfig struct {
	URL      string `env:"CLICKHOUSE_URL" envDefault:"localhost:9000"`
	Username string `env:"CLICKHOUSE_USERNAME" envDefault:"default"`
	Password string `env:"CLICKHOUSE_PASSWORD"`
	Database string `env:"CLICKHOUSE_DATABASE" envDefault:"default"`
}

// LoadConfig reads an optional .env file and then the process environment.
func LoadConfig() (*Config, error) {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()
	return Parse()
}

// Parse builds a Config from the process environment and validates it.
func Parse() (*Config, error) {
	cfg := &Config{}
	opts := env.Options{
		FuncMap: map[reflect.Type]env.ParserFunc{
			reflect.TypeOf(time.Duration(0)): func(v string) (interface{}, error) {
				return ParseDuration(v)
			},
		},
	}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) normalize() {
	c.Environment = strings.ToLower(strings.TrimSpace(c.Environment))
	c.Store.Driver = strings.ToLower(c.Store.Driver)
	c.Delivery.Mode = strings.ToLower(c.Delivery.Mode)
	c.SMS.Provider = strings.ToLower(c.SMS.Provider)
	c.Audit.Driver = strings.ToLower(c.Audit.Driver)

	if c.JWT.Secret == "" && !c.IsProduction() {
		c.JWT.Secret = developmentJWTSecret
		c.devSecret = true
	}
}

// Validate fails fast on settings the service cannot start with.
func (c *Config) Validate() error {
	var errs []error

	if c.IsProduction() {
		if c.JWT.Secret == "" {
			errs = append(errs, errors.New("JWT_SECRET is required in production"))
		} else if len(c.JWT.Secret) < 32 {
			errs = append(errs, errors.New("JWT_SECRET must be at least 32 bytes in production"))
		}
		if c.Hashing.Pepper == "" {
			errs = append(errs, errors.New("HASH_PEPPER is required in production"))
		}
	}
	if c.JWT.ExpiresIn <= 0 {
		errs = append(errs, errors.New("JWT_EXPIRES_IN must be positive"))
	}

	switch c.Store.Driver {
	case StoreMemory:
		if c.IsProduction() {
			errs = append(errs, errors.New("STORE_DRIVER=memory is not allowed in production"))
		}
	case StorePostgres:
		if c.Postgres.URI == "" {
			errs = append(errs, errors.New("DATABASE_URI is required for the postgres store"))
		}
	case StoreScylla:
		if len(c.Scylla.Nodes) == 0 {
			errs = append(errs, errors.New("SCYLLA_NODES is required for the scylla store"))
		}
		if c.Bucketing.UserBuckets <= 0 {
			errs = append(errs, errors.New("BUCKETING_USER_BUCKETS must be positive"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown STORE_DRIVER %q", c.Store.Driver))
	}

	switch c.SMS.Provider {
	case SMSProviderLog:
		if c.IsProduction() {
			errs = append(errs, errors.New("SMS_PROVIDER=log is not allowed in production"))
		}
	case SMSProviderSNS:
	default:
		errs = append(errs, fmt.Errorf("unknown SMS_PROVIDER %q", c.SMS.Provider))
	}

	switch c.Delivery.Mode {
	case DeliveryInline:
	case DeliveryKafka:
		if len(c.Kafka.Brokers) == 0 || c.Kafka.DeliveryTopic == "" {
			errs = append(errs, errors.New("KAFKA_BROKERS and KAFKA_DELIVERY_TOPIC are required for kafka delivery"))
		}
	case DeliveryRedis:
		if c.Redis.URL == "" || c.Redis.DeliveryKey == "" {
			errs = append(errs, errors.New("REDIS_URL and REDIS_DELIVERY_KEY are required for redis delivery"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown DELIVERY_MODE %q", c.Delivery.Mode))
	}
	if c.Delivery.Mode != DeliveryInline && c.Delivery.Workers <= 0 {
		errs = append(errs, errors.New("DELIVERY_WORKERS must be positive"))
	}
	if c.Delivery.MaxRetries < 0 {
		errs = append(errs, errors.New("DELIVERY_MAX_RETRIES must not be negative"))
	}

	switch c.Audit.Driver {
	case AuditNone, AuditClickhouse:
	default:
		errs = append(errs, fmt.Errorf("unknown AUDIT_DRIVER %q", c.Audit.Driver))
	}

	if c.Server.EnableTLS {
		if c.Server.AutoCert && c.Server.Domain == "" {
			errs = append(errs, errors.New("TLS_DOMAIN is required when TLS_AUTOCERT is enabled"))
		}
		if !c.Server.AutoCert && (c.Server.CertFile == "" || c.Server.KeyFile == "") && c.IsProduction() {
			errs = append(errs, errors.New("TLS_CERT_FILE and TLS_KEY_FILE are required when TLS is enabled without autocert"))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}

func (c *Config) IsProduction() bool {
	return c.Environment == EnvProduction
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == EnvDevelopment || c.Environment == EnvTest
}

// UsesDevelopmentSecret reports whether JWT_SECRET fell back to the built-in development value.
func (c *Config) UsesDevelopmentSecret() bool {
	return c.devSecret
}

func (c *Config) GetServerAddress() string {
	return fmt.Sprintf(":%d", c.Server.Port)
}

// ParseDuration accepts Go durations, a day suffix ("30d") and bare seconds ("3600").
func ParseDuration(v string) (time.Duration, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0, errors.New("empty duration")
	}

	if days, ok := strings.CutSuffix(v, "d"); ok {
		n, err := strconv.Atoi(days)
		if err != nil {
			return 0, fmt.Errorf("invalid day duration %q: %w", v, err)
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}

	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second, nil
	}

	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", v, err)
	}
	return d, nil
}
