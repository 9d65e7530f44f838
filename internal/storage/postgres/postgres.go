// Package postgres implements the storage.Backend interface on PostgreSQL.
// Queries and the queued journal writer come from the embedded GORM backend;
// this package owns the connection.
package postgres

import (
	"fmt"
	"log/slog"

	"github.com/tovian/tovian/internal/database"
	gormstorage "github.com/tovian/tovian/internal/storage/gorm"

	"gorm.io/gorm"
)

const maxOpenConns = 10

// Dependencies holds all dependencies for the PostgreSQL storage backend.
type Dependencies struct {
	Config database.PostgresConfig
	// DB, when set, is used instead of dialing Config.
	DB     *gorm.DB
	Logger *slog.Logger
}

// Backend implements storage.Backend using GORM/PostgreSQL.
type Backend struct {
	*gormstorage.Backend
	deps Dependencies
	log  *slog.Logger
}

// New creates a new PostgreSQL storage backend. No connection is made until Init.
func New(deps Dependencies) *Backend {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Backend{
		deps: deps,
		log:  deps.Logger.With("component", "storage.postgres"),
	}
}

// Init connects when no DB was injected, then migrates the schema and
// starts the journal writer.
func (b *Backend) Init() error {
	db := b.deps.DB
	if db == nil {
		var err error
		db, err = b.connect()
		if err != nil {
			return err
		}
	}

	b.Backend = gormstorage.New(gormstorage.Dependencies{DB: db, Logger: b.deps.Logger})
	if err := b.Backend.Init(); err != nil {
		return err
	}
	b.log.Info("Database setup complete", "dialect", db.Dialector.Name())
	return nil
}

func (b *Backend) connect() (*gorm.DB, error) {
	b.log.Debug("Connecting to Postgres DB", "host", b.deps.Config.Host, "database", b.deps.Config.Database)
	db, err := database.GetPostgresDB(b.deps.Config)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to access sql interface: %w", err)
	}
	if err = sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to validate connection: %w", err)
	}
	sqlDB.SetMaxOpenConns(maxOpenConns)
	return db, nil
}

// Close stops the journal writer after a final flush.
func (b *Backend) Close() error {
	if b.Backend == nil {
		return nil
	}
	return b.Backend.Close()
}
