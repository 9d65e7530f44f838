package main

import (
	"fmt"

	"github.com/tovian/tovian/internal/config"
	"github.com/tovian/tovian/internal/database"
	"github.com/tovian/tovian/internal/storage"
	"github.com/tovian/tovian/internal/storage/memory"
	pgstorage "github.com/tovian/tovian/internal/storage/postgres"
	sqlitestorage "github.com/tovian/tovian/internal/storage/sqlite"
)

func postgresConfig() database.PostgresConfig {
	db := config.GetDBConfig()
	return database.PostgresConfig{
		Host:     db.Host,
		Port:     db.Port,
		Username: db.Username,
		Password: db.Password,
		Database: db.Database,
	}
}

// openStorage creates and initializes the configured backend.
func openStorage() (storage.Backend, error) {
	storageCfg := config.GetStorageConfig()

	backend, err := createStorageBackend(storageCfg)
	if err != nil {
		Logger.Error("Failed to create storage backend", "error", err)
		return nil, err
	}
	if err := backend.Init(); err != nil {
		Logger.Error("Failed to initialize storage backend", "error", err, "type", storageCfg.Type)
		_ = backend.Close()
		return nil, err
	}
	return backend, nil
}

func createStorageBackend(storageCfg config.StorageConfig) (storage.Backend, error) {
	switch storageCfg.Type {
	case "postgres":
		Logger.Debug("Postgres storage backend selected")
		return pgstorage.New(pgstorage.Dependencies{
			Config: postgresConfig(),
			Logger: Logger,
		}), nil

	case "sqlite":
		backend, err := sqlitestorage.New(sqlitestorage.Config{
			DSN:          storageCfg.SQLite.Path,
			DumpInterval: storageCfg.SQLite.DumpInterval,
			DumpPath:     storageCfg.SQLite.DumpPath,
		}, Logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create SQLite backend: %w", err)
		}
		Logger.Debug("SQLite storage backend selected", "path", storageCfg.SQLite.Path)
		return backend, nil

	case "memory":
		Logger.Debug("Memory storage backend selected")
		return memory.New(), nil

	default:
		return nil, fmt.Errorf("unknown storage type %q", storageCfg.Type)
	}
}
