package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go-simpler.org/env"
)

type Config struct {
	AppEnv    string `env:"APP_ENV" default:"development"`
	HTTPPort  string `env:"HTTP_PORT" default:"3000"`
	WSPort    string `env:"WS_PORT" default:"8080"`
	Timezone  string `env:"TIMEZONE" default:"UTC"`
	LogLevel  string `env:"LOG_LEVEL" default:"info"`
	LogFormat string `env:"LOG_FORMAT" default:"text"`

	RedisURL      string `env:"REDIS_URL"`
	RabbitMQURL   string `env:"RABBITMQ_URL"`
	RabbitMQQueue string `env:"RABBITMQ_QUEUE" default:"broadcasts"`

	// Comma-separated list; empty allows every origin.
	AllowedOrigins string `env:"ALLOWED_ORIGINS"`

	MaxWebSocketConnections int     `env:"MAX_WEBSOCKET_CONNECTIONS" default:"10000"`
	MaxConnectionsPerIP     int     `env:"MAX_CONNECTIONS_PER_IP" default:"100"`
	ConnectionRatePerSecond float64 `env:"CONNECTION_RATE_PER_SECOND" default:"10"`
	ConnectionRateBurst     int     `env:"CONNECTION_RATE_BURST" default:"20"`
	SubmitRatePerSecond     float64 `env:"SUBMIT_RATE_PER_SECOND" default:"50"`
	SubmitRateBurst         int     `env:"SUBMIT_RATE_BURST" default:"100"`
	SendBufferSize          int     `env:"SEND_BUFFER_SIZE" default:"16"`

	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" default:"10s"`
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	var cfg Config
	if err := env.Load(&cfg, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// SharedListener reports whether HTTP and WebSocket traffic use one port.
func (c *Config) SharedListener() bool {
	return c.HTTPPort == c.WSPort
}

// Origins returns the parsed ALLOWED_ORIGINS list.
func (c *Config) Origins() []string {
	var origins []string
	for _, o := range strings.Split(c.AllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

func validate(cfg *Config) error {
	ports := map[string]string{
		"HTTP_PORT": cfg.HTTPPort,
		"WS_PORT":   cfg.WSPort,
	}
	for name, value := range ports {
		port, err := strconv.Atoi(value)
		if err != nil || port < 1 || port > 65535 {
			return fmt.Errorf("%s must be a port number between 1 and 65535, got %q", name, value)
		}
	}

	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("LOG_LEVEL must be one of debug, info, warn, error, got %q", cfg.LogLevel)
	}

	switch cfg.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("LOG_FORMAT must be text or json, got %q", cfg.LogFormat)
	}

	if cfg.RabbitMQURL != "" && strings.TrimSpace(cfg.RabbitMQQueue) == "" {
		return errors.New("RABBITMQ_QUEUE is required when RABBITMQ_URL is set")
	}

	positive := map[string]float64{
		"MAX_WEBSOCKET_CONNECTIONS":  float64(cfg.MaxWebSocketConnections),
		"MAX_CONNECTIONS_PER_IP":     float64(cfg.MaxConnectionsPerIP),
		"CONNECTION_RATE_PER_SECOND": cfg.ConnectionRatePerSecond,
		"CONNECTION_RATE_BURST":      float64(cfg.ConnectionRateBurst),
		"SUBMIT_RATE_PER_SECOND":     cfg.SubmitRatePerSecond,
		"SUBMIT_RATE_BURST":          float64(cfg.SubmitRateBurst),
		"SEND_BUFFER_SIZE":           float64(cfg.SendBufferSize),
		"SHUTDOWN_TIMEOUT":           float64(cfg.ShutdownTimeout),
	}
	for name, value := range positive {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}

	return nil
}
