package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/routerws/internal/adapter/amqp"
	"github.com/pscheid92/routerws/internal/adapter/httpserver"
	"github.com/pscheid92/routerws/internal/adapter/metrics"
	"github.com/pscheid92/routerws/internal/adapter/redis"
	"github.com/pscheid92/routerws/internal/adapter/websocket"
	"github.com/pscheid92/routerws/internal/broadcast"
	"github.com/pscheid92/routerws/internal/domain"
	"github.com/pscheid92/routerws/internal/platform/config"
	"github.com/pscheid92/routerws/internal/platform/logging"
	"github.com/pscheid92/routerws/internal/platform/version"
	"github.com/pscheid92/routerws/internal/registry"
	"github.com/pscheid92/routerws/internal/status"
	"github.com/pscheid92/routerws/internal/timestamp"
	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

const shutdownReason = "Server shutting down"

func setupConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

func setupRedis(ctx context.Context, cfg *config.Config, m *metrics.Metrics) *goredis.Client {
	client, err := redis.NewClient(ctx, cfg.RedisURL, redis.NewCircuitBreakerHook(0, m.Fanout.BreakerState))
	if err != nil {
		slog.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	return client
}

func main() {
	clock := clockwork.NewRealClock()
	start := clock.Now()

	cfg := setupConfig()

	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)
	slog.Info("Application starting",
		"env", cfg.AppEnv,
		"version", version.Version,
		"http_port", cfg.HTTPPort,
		"ws_port", cfg.WSPort,
		"timezone", cfg.Timezone,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	provider := timestamp.NewProvider(clock, cfg.Timezone)
	if ts := provider.Snapshot(); ts.Error != "" {
		slog.Warn("Timezone could not be resolved, timestamps fall back to UTC", "timezone", cfg.Timezone)
	}

	m := metrics.New()
	connections := registry.New()

	var healthChecks []httpserver.HealthCheck

	// Keep fanout as an interface so a disabled fan-out stays a true nil.
	var fanout domain.Fanout
	var redisFanout *redis.Fanout
	if cfg.RedisURL != "" {
		redisClient := setupRedis(ctx, cfg, m)
		defer func() { _ = redisClient.Close() }()

		redisFanout = redis.NewFanout(redisClient, redis.DefaultChannel, uuid.NewString(), m.Fanout)
		fanout = redisFanout
		healthChecks = append(healthChecks, httpserver.HealthCheck{
			Name:  "redis",
			Check: func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
		})
	}

	engine := broadcast.NewEngine(connections, provider, fanout, m.Broadcast)
	reporter := status.NewReporter(start, provider, connections, domain.Ports{HTTP: cfg.HTTPPort, WebSocket: cfg.WSPort})

	var consumer *amqp.Consumer
	if cfg.RabbitMQURL != "" {
		consumer = amqp.NewConsumer(clock, cfg.RabbitMQURL, cfg.RabbitMQQueue, engine, m.Fanout)
		healthChecks = append(healthChecks, httpserver.HealthCheck{Name: "rabbitmq", Check: consumer.Healthy})
	}

	limits := websocket.NewConnectionLimits(clock,
		int64(cfg.MaxWebSocketConnections),
		cfg.MaxConnectionsPerIP,
		cfg.ConnectionRatePerSecond,
		cfg.ConnectionRateBurst,
	)
	wsHandler := websocket.NewHandler(connections, provider, clock, limits, m.WebSocket, websocket.Config{
		AllowedOrigins: cfg.Origins(),
		IsDevelopment:  cfg.AppEnv == "development",
		Connection:     registry.Options{SendBufferSize: cfg.SendBufferSize},
	})

	var mounted http.Handler
	var wsServer *httpserver.WebSocketServer
	if cfg.SharedListener() {
		mounted = wsHandler
	} else {
		wsServer = httpserver.NewWebSocketServer(cfg.WSPort, wsHandler)
	}

	srv := httpserver.NewServer(httpserver.Config{
		Port:                cfg.HTTPPort,
		AllowedOrigins:      cfg.Origins(),
		SubmitRatePerSecond: cfg.SubmitRatePerSecond,
		SubmitRateBurst:     cfg.SubmitRateBurst,
	}, engine, reporter, provider, m, mounted, healthChecks)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(srv.Start)

	if wsServer != nil {
		g.Go(wsServer.Start)
	}

	// Fan-out and queue ingress degrade to local-only operation on failure.
	if redisFanout != nil {
		g.Go(func() error {
			if err := redisFanout.Run(gctx, engine); err != nil {
				slog.Error("Fan-out subscriber stopped", "error", err)
			}
			return nil
		})
	}
	if consumer != nil {
		g.Go(func() error {
			if err := consumer.Run(gctx); err != nil {
				slog.Error("Queue consumer stopped", "error", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("Shutdown signal received, cleaning up...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()

		wsHandler.Drain()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}
		if wsServer != nil {
			if err := wsServer.Shutdown(shutdownCtx); err != nil {
				slog.Error("WebSocket server shutdown error", "error", err)
			}
		}

		closed := connections.CloseAll(shutdownReason)
		slog.Info("Closed client connections", "count", closed)
		return nil
	})

	if err := g.Wait(); err != nil {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}
	slog.Info("Server stopped", "uptime", reporter.Current().Uptime.Human)
}
