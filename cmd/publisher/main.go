package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/smswithoutborders/publisher/internal/cache"
	"github.com/smswithoutborders/publisher/internal/config"
	httptransport "github.com/smswithoutborders/publisher/internal/http"
	"github.com/smswithoutborders/publisher/internal/http/handler"
	httpmiddleware "github.com/smswithoutborders/publisher/internal/http/middleware"
	"github.com/smswithoutborders/publisher/internal/oauth"
	"github.com/smswithoutborders/publisher/internal/platform"
	"github.com/smswithoutborders/publisher/internal/server"
	"github.com/smswithoutborders/publisher/internal/service/publisher"
	"github.com/smswithoutborders/publisher/internal/telemetry"
	"github.com/smswithoutborders/publisher/internal/vault"
)

func main() {
	app := fx.New(
		fx.Provide(
			newConfig,
			newLogger,
			newTelemetry,
			newSnowflake,
			newRedisClient,
			newStateStore,
			newVaultClient,
			newPlatformRegistry,
			newProviderClients,
			newPublisherService,
			newRateLimiter,
			handler.NewPublisherHandler,
			httptransport.NewRouter,
			server.NewHTTPServer,
		),
		fx.Invoke(useTelemetry, startHTTPServer),
	)

	app.Run()
}

func newConfig() (config.Config, error) {
	return config.Load()
}

func newLogger(cfg config.Config) (*zap.Logger, error) {
	var (
		logger *zap.Logger
		err    error
	)
	if cfg.Environment == "development" {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return nil, err
	}
	zap.ReplaceGlobals(logger)
	return logger, nil
}

func newTelemetry(lc fx.Lifecycle, cfg config.Config, logger *zap.Logger) (*telemetry.Provider, error) {
	provider, err := telemetry.New(context.Background(), cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("telemetry init: %w", err)
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			return provider.Shutdown(stopCtx)
		},
	})

	return provider, nil
}

func newSnowflake() (*snowflake.Node, error) {
	node, err := snowflake.NewNode(1)
	return node, err
}

func newRedisClient(lc fx.Lifecycle, cfg config.Config) (redis.UniversalClient, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return client.Close()
		},
	})
	return client, nil
}

func newStateStore(client redis.UniversalClient) publisher.StateStore {
	return cache.NewRedisStateStore(client)
}

func newVaultClient(cfg config.Config) vault.Client {
	return vault.NewHTTPClient(cfg.VaultBaseURL, &http.Client{Timeout: cfg.VaultTimeout})
}

func newPlatformRegistry() *platform.Registry {
	return platform.Default()
}

func newProviderClients(cfg config.Config) map[string]publisher.ProviderClient {
	gmail := oauth.NewClient(oauth.Config{
		Platform:     "gmail",
		ClientID:     cfg.Gmail.ClientID,
		ClientSecret: cfg.Gmail.ClientSecret,
		RedirectURI:  cfg.Gmail.RedirectURI,
		Scopes: []string{
			"openid",
			"email",
			"profile",
			"https://www.googleapis.com/auth/gmail.send",
		},
		Endpoints: oauth.GmailEndpoints(),
	}, nil)

	return map[string]publisher.ProviderClient{
		"gmail": gmail,
	}
}

func newPublisherService(
	registry *platform.Registry,
	vaultClient vault.Client,
	providers map[string]publisher.ProviderClient,
	states publisher.StateStore,
	node *snowflake.Node,
	cfg config.Config,
	logger *zap.Logger,
) *publisher.Service {
	return publisher.NewService(registry, vaultClient, providers, states, node, cfg.EncryptProviderResponse, logger)
}

func newRateLimiter(cfg config.Config) *httpmiddleware.RateLimiter {
	return httpmiddleware.NewRateLimiter(cfg.RateLimitRPM)
}

func startHTTPServer(lc fx.Lifecycle, srv *server.HTTPServer, cfg config.Config, logger *zap.Logger) {
	addr := ":" + cfg.HTTPPort
	var (
		cancel context.CancelFunc
		done   chan struct{}
	)

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			runCtx, stop := context.WithCancel(context.Background())
			cancel = stop
			done = make(chan struct{})

			go func() {
				if err := srv.Run(runCtx, addr); err != nil {
					logger.Error("http server stopped", zap.Error(err))
				}
				close(done)
			}()

			return nil
		},
		OnStop: func(ctx context.Context) error {
			if cancel != nil {
				cancel()
			}
			if done == nil {
				return nil
			}
			select {
			case <-done:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
	})
}

func useTelemetry(*telemetry.Provider) {}
