// Package config loads service settings from an optional YAML file and the environment.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Env             string        `mapstructure:"env"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`

	Log       LogConfig       `mapstructure:"log"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Store     StoreConfig     `mapstructure:"store"`
	Gateway   GatewayConfig   `mapstructure:"gateway"`
	Broker    BrokerConfig    `mapstructure:"broker"`
	Kitchen   KitchenConfig   `mapstructure:"kitchen"`
	Webhook   WebhookConfig   `mapstructure:"webhook"`
	Lock      LockConfig      `mapstructure:"lock"`
	SNS       SNSConfig       `mapstructure:"sns"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

type HTTPConfig struct {
	Port string `mapstructure:"port"`
}

type StoreConfig struct {
	Driver        string `mapstructure:"driver"`
	DSN           string `mapstructure:"dsn"`
	DynamoDBTable string `mapstructure:"dynamodb_table"`
}

type GatewayConfig struct {
	Driver       string        `mapstructure:"driver"`
	BaseURL      string        `mapstructure:"base_url"`
	SecretKey    string        `mapstructure:"secret_key"`
	Timeout      time.Duration `mapstructure:"timeout"`
	PixExpiresIn time.Duration `mapstructure:"pix_expires_in"`
}

type BrokerConfig struct {
	URL        string        `mapstructure:"url"`
	Prefetch   int           `mapstructure:"prefetch"`
	AckWait    time.Duration `mapstructure:"ack_wait"`
	MaxDeliver int           `mapstructure:"max_deliver"`
	FetchWait  time.Duration `mapstructure:"fetch_wait"`
}

type KitchenConfig struct {
	Delivery       string        `mapstructure:"delivery"`
	OutboxInterval time.Duration `mapstructure:"outbox_interval"`
	OutboxBatch    int           `mapstructure:"outbox_batch"`
}

type WebhookConfig struct {
	Secret string `mapstructure:"secret"`
}

type LockConfig struct {
	RedisAddr string        `mapstructure:"redis_addr"`
	TTL       time.Duration `mapstructure:"ttl"`
}

type SNSConfig struct {
	TopicARN string `mapstructure:"topic_arn"`
}

type TelemetryConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Endpoint    string `mapstructure:"endpoint"`
	ServiceName string `mapstructure:"service_name"`
}

const (
	StoreDriverPostgres = "postgres"
	StoreDriverSQLite   = "sqlite"
	StoreDriverDynamoDB = "dynamodb"

	GatewayDriverPagarme = "pagarme"
	GatewayDriverSandbox = "sandbox"

	DeliveryDirect = "direct"
	DeliveryOutbox = "outbox"
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("env", "production")
	v.SetDefault("shutdown_timeout", 30*time.Second)
	v.SetDefault("log.level", "info")
	v.SetDefault("http.port", "8080")

	v.SetDefault("store.driver", StoreDriverPostgres)
	v.SetDefault("store.dsn", "host=localhost user=postgres password=postgres dbname=restaurante_acme_pagamentos port=5432 sslmode=disable TimeZone=UTC")
	v.SetDefault("store.dynamodb_table", "Pagamentos")

	v.SetDefault("gateway.driver", GatewayDriverSandbox)
	v.SetDefault("gateway.base_url", "https://api.pagar.me")
	v.SetDefault("gateway.secret_key", "")
	v.SetDefault("gateway.timeout", 10*time.Second)
	v.SetDefault("gateway.pix_expires_in", 24*time.Hour)

	v.SetDefault("broker.url", "nats://localhost:4222")
	v.SetDefault("broker.prefetch", 1)
	v.SetDefault("broker.ack_wait", 30*time.Second)
	v.SetDefault("broker.max_deliver", -1)
	v.SetDefault("broker.fetch_wait", 5*time.Second)

	v.SetDefault("kitchen.delivery", DeliveryDirect)
	v.SetDefault("kitchen.outbox_interval", 2*time.Second)
	v.SetDefault("kitchen.outbox_batch", 50)

	v.SetDefault("webhook.secret", "")
	v.SetDefault("lock.redis_addr", "")
	v.SetDefault("lock.ttl", 30*time.Second)
	v.SetDefault("sns.topic_arn", "")

	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.endpoint", "localhost:4318")
	v.SetDefault("telemetry.service_name", "checkout-pagamentos")
}

// Load reads path (when non-empty) and overlays environment variables such as
// STORE_DRIVER or BROKER_URL.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("http.port", "HTTP_PORT", "PORT"); err != nil {
		return nil, err
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.Store.Driver {
	case StoreDriverPostgres, StoreDriverSQLite, StoreDriverDynamoDB:
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}

	switch c.Gateway.Driver {
	case GatewayDriverPagarme, GatewayDriverSandbox:
	default:
		return fmt.Errorf("unknown gateway driver %q", c.Gateway.Driver)
	}

	switch c.Kitchen.Delivery {
	case DeliveryDirect:
	case DeliveryOutbox:
		if c.Store.Driver == StoreDriverDynamoDB {
			return fmt.Errorf("kitchen outbox delivery needs a relational store, got %q", c.Store.Driver)
		}
	default:
		return fmt.Errorf("unknown kitchen delivery %q", c.Kitchen.Delivery)
	}

	if c.Broker.Prefetch < 1 {
		return fmt.Errorf("broker prefetch must be at least 1, got %d", c.Broker.Prefetch)
	}
	if c.Gateway.Driver == GatewayDriverPagarme && c.Gateway.SecretKey == "" {
		return fmt.Errorf("gateway secret key is required for %s", GatewayDriverPagarme)
	}
	return nil
}
