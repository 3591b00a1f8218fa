// config предоставляет структуру конфигурации сервиса и функции
// загрузки из файла/переменных окружения с предсказуемым приоритетом.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Драйверы хранилища учётных записей.
const (
	StorageMongo    = "mongo"
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

// Драйверы брокера событий присутствия.
const (
	BrokerNone  = "none"
	BrokerNATS  = "nats"
	BrokerKafka = "kafka"
)

// Config: корневая конфигурация сервиса.
// Источники значений (по убыванию приоритета):
//  1. явный путь через флаг --config;
//  2. путь в переменной окружения CONFIG_PATH;
//  3. файл local.yaml из рабочей директории;
//  4. переменные окружения (cleanenv).
type Config struct {
	Env      string         `yaml:"env" env:"ENV" env-default:"local"`
	HTTP     HTTPConfig     `yaml:"http"`
	Ops      OpsConfig      `yaml:"ops"`
	Auth     AuthConfig     `yaml:"auth"`
	MFA      MFAConfig      `yaml:"mfa"`
	Storage  StorageConfig  `yaml:"storage"`
	Mongo    MongoConfig    `yaml:"mongo"`
	Postgres PostgresConfig `yaml:"postgres"`
	Redis    RedisConfig    `yaml:"redis"`
	Broker   BrokerConfig   `yaml:"broker"`
	Cookie   CookieConfig   `yaml:"cookie"`
	CORS     CORSConfig     `yaml:"cors"`
	Timeouts TimeoutConfig  `yaml:"timeouts"`
}

// TimeoutConfig: таймауты сервиса.
type TimeoutConfig struct {
	// Service: общий дедлайн обработки HTTP-запроса.
	Service time.Duration `yaml:"service" env:"SERVICE_TIMEOUT" env-default:"5s"`
	// Presence: дедлайн фонового обновления статуса online/offline.
	Presence time.Duration `yaml:"presence" env:"PRESENCE_TIMEOUT" env-default:"3s"`
	// Shutdown: время на graceful остановку серверов.
	Shutdown time.Duration `yaml:"shutdown" env:"SHUTDOWN_TIMEOUT" env-default:"10s"`
}

// HTTPConfig: сетевые настройки публичного HTTP API.
type HTTPConfig struct {
	Host     string `yaml:"host" env:"HTTP_HOST" env-default:"0.0.0.0"`
	Port     string `yaml:"port" env:"HTTP_PORT" env-default:"5001"`
	BasePath string `yaml:"base_path" env:"HTTP_BASE_PATH" env-default:"/api"`
}

// OpsConfig: служебный HTTP (livez/healthz/metrics).
type OpsConfig struct {
	Host string `yaml:"host" env:"OPS_HOST" env-default:"0.0.0.0"`
	Port string `yaml:"port" env:"OPS_PORT" env-default:"50081"`
}

// Addr возвращает адрес в формате host:port.
func (h HTTPConfig) Addr() string {
	return net.JoinHostPort(h.Host, h.Port)
}

// Addr возвращает адрес в формате host:port.
func (o OpsConfig) Addr() string {
	return net.JoinHostPort(o.Host, o.Port)
}

// AuthConfig содержит параметры выпуска и валидации токенов.
type AuthConfig struct {
	AccessSecret         string        `yaml:"access_secret" env:"JWT_ACCESS_SECRET" env-required:"true"`
	RefreshSecret        string        `yaml:"refresh_secret" env:"JWT_REFRESH_SECRET" env-required:"true"`
	AccessTokenTTL       time.Duration `yaml:"access_token_ttl" env:"ACCESS_TOKEN_TTL" env-default:"15m"`
	RefreshTokenTTL      time.Duration `yaml:"refresh_token_ttl" env:"REFRESH_TOKEN_TTL" env-default:"168h"`
	MFAPendingTTL        time.Duration `yaml:"mfa_pending_ttl" env:"MFA_PENDING_TTL" env-default:"5m"`
	Issuer               string        `yaml:"issuer" env:"JWT_ISSUER" env-default:"bytebot-auth"`
	BcryptCost           int           `yaml:"bcrypt_cost" env:"BCRYPT_COST" env-default:"10"`
	RefreshJanitorPeriod time.Duration `yaml:"refresh_janitor_period" env:"REFRESH_JANITOR_PERIOD" env-default:"30m"`
}

// MFAConfig: параметры TOTP.
type MFAConfig struct {
	// Issuer отображается в приложении-аутентификаторе.
	Issuer string `yaml:"issuer" env:"MFA_ISSUER" env-default:"ByteBot"`
	// Skew: допустимое отклонение в шагах по 30 секунд в каждую сторону.
	Skew uint `yaml:"skew" env:"MFA_SKEW" env-default:"1"`
	// QRSize: сторона PNG с QR-кодом в пикселях.
	QRSize int `yaml:"qr_size" env:"MFA_QR_SIZE" env-default:"200"`
}

// StorageConfig выбирает реализацию хранилища учётных записей.
type StorageConfig struct {
	Driver string `yaml:"driver" env:"STORAGE_DRIVER" env-default:"mongo"`
}

// MongoConfig: настройки подключения к MongoDB.
type MongoConfig struct {
	URL string `yaml:"url" env:"MONGO_URL"`
}

// PostgresConfig: настройки подключения к PostgreSQL.
type PostgresConfig struct {
	URL string `yaml:"url" env:"DATABASE_URL"`
}

// RedisConfig: реестр отзыва токенов и кэш профилей.
type RedisConfig struct {
	URL        string        `yaml:"url" env:"REDIS_URL" env-required:"true"`
	ProfileTTL time.Duration `yaml:"profile_ttl" env:"PROFILE_CACHE_TTL" env-default:"1h"`
}

// BrokerConfig: публикация событий присутствия.
type BrokerConfig struct {
	Driver       string   `yaml:"driver" env:"BROKER_DRIVER" env-default:"none"`
	NATSURL      string   `yaml:"nats_url" env:"NATS_URL" env-default:"nats://localhost:4222"`
	KafkaBrokers []string `yaml:"kafka_brokers" env:"KAFKA_BROKERS" env-separator:","`
	KafkaTopic   string   `yaml:"kafka_topic" env:"KAFKA_TOPIC" env-default:"user-presence"`
}

// CookieConfig: атрибуты cookie с refresh-токеном.
type CookieConfig struct {
	Name   string `yaml:"name" env:"COOKIE_NAME" env-default:"refreshToken"`
	Path   string `yaml:"path" env:"COOKIE_PATH" env-default:"/"`
	Domain string `yaml:"domain" env:"COOKIE_DOMAIN"`
}

// CORSConfig: разрешённые источники фронтенда.
type CORSConfig struct {
	Origins []string `yaml:"origins" env:"CORS_ORIGINS" env-separator:"," env-default:"http://localhost:5173"`
}

// Validate проверяет согласованность значений, которые cleanenv проверить не может.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case StorageMongo:
		if c.Mongo.URL == "" {
			return errors.New("mongo.url is required for storage driver mongo")
		}
	case StoragePostgres:
		if c.Postgres.URL == "" {
			return errors.New("postgres.url is required for storage driver postgres")
		}
	case StorageMemory:
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}

	switch c.Broker.Driver {
	case BrokerNone, BrokerNATS:
	case BrokerKafka:
		if len(c.Broker.KafkaBrokers) == 0 {
			return errors.New("broker.kafka_brokers is required for broker driver kafka")
		}
	default:
		return fmt.Errorf("unknown broker driver %q", c.Broker.Driver)
	}

	if c.Auth.AccessSecret == c.Auth.RefreshSecret {
		return errors.New("auth.access_secret and auth.refresh_secret must differ")
	}

	if c.Auth.AccessTokenTTL <= 0 || c.Auth.RefreshTokenTTL <= 0 || c.Auth.MFAPendingTTL <= 0 {
		return errors.New("token ttl values must be positive")
	}

	return nil
}

// MustLoad: обёртка над Load с panic при ошибке.
func MustLoad(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		panic(err)
	}

	return cfg
}

// Load загружает конфигурацию по приоритету:
// 1) явный путь; 2) CONFIG_PATH; 3) ./local.yaml; 4) ENV.
// После чтения файла ENV-переменные накладываются поверх значений из YAML.
func Load(path string) (*Config, error) {
	var cfg Config

	tryRead := func(p string) (*Config, error) {
		if _, err := os.Stat(p); err != nil {
			return nil, fmt.Errorf("config file does not exist: %s: %w", p, err)
		}

		if err := cleanenv.ReadConfig(p, &cfg); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}

		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return nil, fmt.Errorf("failed to overlay env: %w", err)
		}

		return &cfg, nil
	}

	// 1) Явный путь.
	if path != "" {
		return tryRead(path)
	}

	// 2) CONFIG_PATH.
	if envPath := os.Getenv("CONFIG_PATH"); envPath != "" {
		return tryRead(envPath)
	}

	// 3) ./local.yaml.
	if _, err := os.Stat("local.yaml"); err == nil {
		return tryRead("local.yaml")
	}

	// 4) Только ENV.
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("config not found: provide --config, CONFIG_PATH, local.yaml or env vars: %w", err)
	}

	return &cfg, nil
}
