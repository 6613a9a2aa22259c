package store

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/ppiankov/mergertracker/internal/logging"
	"github.com/ppiankov/mergertracker/internal/model"
)

// Open builds the store and event bus selected by cfg
func Open(ctx context.Context, cfg model.StoreConfig, logger logging.Logger) (Store, error) {
	if logger == nil {
		logger = logging.NewNop()
	}

	bus, err := openBus(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	switch cfg.Driver {
	case "", "memory":
		return NewMemoryStore(bus, logger), nil
	case "sqlite3", "postgres":
		s, openErr := OpenSQL(ctx, cfg.Driver, cfg.DSN, bus, logger)
		if openErr != nil {
			bus.Close()
			return nil, openErr
		}
		logger.Info("Store opened",
			logging.String("driver", cfg.Driver),
			logging.String("events", cfg.Events),
		)
		return s, nil
	default:
		bus.Close()
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, cfg.Driver)
	}
}

func openBus(ctx context.Context, cfg model.StoreConfig, logger logging.Logger) (Bus, error) {
	switch cfg.Events {
	case "", "local":
		return NewLocalBus(), nil
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("connect to redis at %s: %w", cfg.RedisAddr, err)
		}
		return NewRedisBus(client, RedisBusOptions{
			Stream:      cfg.RedisStream,
			Logger:      logger,
			CloseClient: true,
		}), nil
	default:
		return nil, fmt.Errorf("unknown event bus %q", cfg.Events)
	}
}
