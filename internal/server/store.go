package server

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/iudanet/authgate/internal/config"
	"github.com/iudanet/authgate/internal/server/storage"
	"github.com/iudanet/authgate/internal/server/storage/memory"
	"github.com/iudanet/authgate/internal/server/storage/postgres"
	"github.com/iudanet/authgate/internal/server/storage/sqlite"
)

// Store хранилище учетных данных вместе с проверкой доступности и закрытием
type Store interface {
	storage.UserStorage
	Ping(ctx context.Context) error
	Close() error
}

// OpenStore открывает хранилище, выбранное в конфигурации, и применяет миграции
func OpenStore(ctx context.Context, logger *slog.Logger, cfg *config.Config) (Store, error) {
	switch cfg.StoreDriver {
	case config.DriverSQLite:
		logger.InfoContext(ctx, "opening sqlite store", slog.String("path", cfg.SQLitePath))
		store, err := sqlite.New(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return store, nil
	case config.DriverPostgres:
		// DSN содержит пароль, не логируем
		logger.InfoContext(ctx, "opening postgres store")
		store, err := postgres.New(ctx, cfg.DatabaseDSN)
		if err != nil {
			return nil, err
		}
		return store, nil
	case config.DriverMemory:
		logger.WarnContext(ctx, "using in-memory store, data is lost on restart")
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}
