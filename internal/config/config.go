// Package config предоставляет структуры и функции для загрузки конфигурации
// из YAML-файла с переопределением через переменные окружения.
package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

// Режимы доставки напоминаний планировщиком.
const (
	DispatchQueue  = "queue"
	DispatchDirect = "direct"
)

// Config общая структура для хранения настроек
type Config struct {
	Env                     string `yaml:"env" env:"ENV" env-default:"local"`
	StorageConnectionString string `yaml:"storage_connection_string" env:"STORAGE_CONNECTION_STRING" env-required:"true"`
	MigrationsPath          string `yaml:"migrations_path" env:"MIGRATIONS_PATH" env-default:"./migrations"`
	RedisConnection         `yaml:"redis_connection"`
	HTTPServer              `yaml:"http_server"`
	JWTToken                `yaml:"jwttoken"`
	RabbitMQ                `yaml:"rabbitmq"`
	SMTP                    `yaml:"smtp"`
	WebPush                 `yaml:"webpush"`
	Scheduler               `yaml:"scheduler"`
}

// HTTPServer структура для настройки сервера
type HTTPServer struct {
	AddressHTTP string        `yaml:"addresshttp" env:"HTTP_ADDRESS" env-default:":8080"`
	TimeoutHTTP time.Duration `yaml:"timeouthttp" env-default:"10s"`
	IdleTimeout time.Duration `yaml:"idle_timeout" env-default:"60s"`
}

// RedisConnection структура для настройки подключения к redis
type RedisConnection struct {
	AddressRedis string        `yaml:"addressredis" env:"REDIS_ADDRESS"`
	Password     string        `yaml:"password" env:"REDIS_PASSWORD"`
	User         string        `yaml:"user"`
	DB           int           `yaml:"db"`
	MaxRetries   int           `yaml:"max_retries"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	TimeoutRedis time.Duration `yaml:"timeoutredis"`
}

// JWTToken структура для работы с jwt-токеном
type JWTToken struct {
	JWTSecretKey string        `yaml:"jwt_secret_key" env:"JWT_SECRET_KEY"`
	TokenTTL     time.Duration `yaml:"token_ttl" env-default:"720h"`
}

// RabbitMQ настройки подключения к брокеру сообщений.
type RabbitMQ struct {
	RabbitMQURL        string        `yaml:"url" env:"RABBITMQ_URL"`
	RabbitMQMaxRetries int           `yaml:"max_retries" env-default:"10"`
	RabbitMQRetryDelay time.Duration `yaml:"retry_delay" env-default:"3s"`
}

// SMTP настройки почтового сервера для отправки напоминаний.
type SMTP struct {
	SMTPHost string `yaml:"host" env:"SMTP_HOST"`
	SMTPPort string `yaml:"port" env:"SMTP_PORT" env-default:"587"`
	SMTPUser string `yaml:"user" env:"SMTP_USER"`
	SMTPPass string `yaml:"pass" env:"SMTP_PASS"`
}

// WebPush настройки VAPID для отправки push-уведомлений.
type WebPush struct {
	VAPIDPublicKey  string        `yaml:"vapid_public_key" env:"VAPID_PUBLIC_KEY"`
	VAPIDPrivateKey string        `yaml:"vapid_private_key" env:"VAPID_PRIVATE_KEY"`
	VAPIDSubscriber string        `yaml:"subscriber" env:"VAPID_SUBSCRIBER" env-default:"mailto:admin@example.com"`
	PushTTL         int           `yaml:"ttl" env-default:"3600"`
	PushTimeout     time.Duration `yaml:"timeout" env-default:"10s"`
	PushConcurrency int           `yaml:"concurrency" env-default:"8"`
}

// Scheduler настройки фонового планировщика напоминаний.
type Scheduler struct {
	CronSpec       string `yaml:"spec" env:"SCHEDULER_SPEC" env-default:"* * * * *"`
	Timezone       string `yaml:"timezone" env:"SCHEDULER_TIMEZONE" env-default:"Local"`
	DispatchMode   string `yaml:"dispatch_mode" env:"SCHEDULER_DISPATCH_MODE" env-default:"queue"`
	MetricsAddress string `yaml:"metrics_address" env:"METRICS_ADDRESS" env-default:":9090"`
}

// Location возвращает часовой пояс, в котором сравнивается время напоминаний.
func (s Scheduler) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return nil, fmt.Errorf("config.Location: %w", err)
	}
	return loc, nil
}

// Load читает конфиг из файла path и переменных окружения.
func Load(path string) (*Config, error) {
	const op = "config.Load"
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	var cfg Config
	if err := cleanenv.ReadConfig(path, &cfg); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.DispatchMode {
	case DispatchQueue, DispatchDirect:
	default:
		return fmt.Errorf("unknown dispatch_mode %q", c.DispatchMode)
	}
	if c.PushConcurrency < 1 {
		return errors.New("webpush concurrency must be positive")
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

// MustLoad загружает .env (если он есть) и конфиг по пути из CONFIG_PATH.
// При ошибке завершает процесс.
func MustLoad() *Config {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("cannot read .env file: %s", err)
	}

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		log.Fatal("CONFIG_PATH is not set")
	}
	cfg, err := Load(configPath)
	if err != nil {
		log.Fatalf("cannot read config: %s", err)
	}
	return cfg
}
