package main

import (
	"context"
	"fmt"
	"time"

	"github.com/Sternrassler/entity-connector/pkg/client"
	"github.com/Sternrassler/entity-connector/pkg/config"
	"github.com/Sternrassler/entity-connector/pkg/connector"
	"github.com/Sternrassler/entity-connector/pkg/logging"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// app holds the wired components for one CLI invocation.
type app struct {
	file      *config.File
	redis     *redis.Client
	client    *client.Client
	connector *connector.Connector
	logger    zerolog.Logger
}

// bootstrap loads the config file and wires Redis, the vendor client and the
// connector. logLevel, when set, overrides the file.
func bootstrap(ctx context.Context, path, logLevel string) (*app, error) {
	file, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	logCfg := file.LoggingOptions()
	if logLevel != "" {
		level, err := logging.ParseLevel(logLevel)
		if err != nil {
			return nil, err
		}
		logCfg.Level = level
	}
	logging.Setup(logCfg)
	logger := logging.NewLogger("proxy")

	a := &app{file: file, logger: logger}

	opts, err := file.RedisOptions()
	if err != nil {
		return nil, err
	}
	if opts != nil {
		a.redis = redis.NewClient(opts)

		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := a.redis.Ping(pingCtx).Err(); err != nil {
			a.redis.Close()
			return nil, fmt.Errorf("connect to redis at %s: %w", opts.Addr, err)
		}
		logger.Info().Str("addr", opts.Addr).Msg("Connected to Redis")
	}

	a.client, err = client.New(file.ClientOptions(a.redis))
	if err != nil {
		a.close()
		return nil, fmt.Errorf("create vendor client: %w", err)
	}

	cat, err := file.Catalog()
	if err != nil {
		a.close()
		return nil, err
	}

	a.connector, err = connector.New(file.ConnectorOptions(), cat, a.client)
	if err != nil {
		a.close()
		return nil, err
	}

	logger.Debug().
		Str("base_url", file.Client.BaseURL).
		Int("entities", cat.Len()).
		Bool("cache", a.redis != nil).
		Msg("Connector ready")

	return a, nil
}

func (a *app) close() {
	if a.client != nil {
		a.client.Close()
	}
	if a.redis != nil {
		a.redis.Close()
	}
}
