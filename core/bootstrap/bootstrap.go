// Package bootstrap initializes shared infrastructure in order: logger,
// database connection, migrations, conversation store.
package bootstrap

import (
	"fmt"

	"github.com/jmoiron/sqlx"

	coreconfig "github.com/m3rciful/dialogbot/core/config"
	"github.com/m3rciful/dialogbot/core/conversation"
	coredatabase "github.com/m3rciful/dialogbot/core/database"
	"github.com/m3rciful/dialogbot/core/logger"
)

// Options control the bootstrap pipeline. Nil hooks fall back to the real
// implementations; tests substitute them.
type Options struct {
	Config   *coreconfig.Config
	Database coredatabase.Config

	LoggerInit func(*coreconfig.Config) error
	Connect    func(coredatabase.Config) (*sqlx.DB, error)
	Migrate    func(coredatabase.Config) error
}

// Result exposes infrastructure initialized by the pipeline.
type Result struct {
	DB    *sqlx.DB
	Store conversation.Store
}

// Run initializes the logger, connects to the database, applies migrations
// and builds the conversation store.
func Run(opts Options) (*Result, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("bootstrap: nil config provided")
	}

	loggerInit := opts.LoggerInit
	if loggerInit == nil {
		loggerInit = logger.InitLogger
	}
	if err := loggerInit(opts.Config); err != nil {
		return nil, fmt.Errorf("bootstrap: logger init failed: %w", err)
	}

	connect := opts.Connect
	if connect == nil {
		connect = coredatabase.Connect
	}
	db, err := connect(opts.Database)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: database initialization failed: %w", err)
	}

	migrate := opts.Migrate
	if migrate == nil {
		migrate = coredatabase.RunMigrations
	}
	if err := migrate(opts.Database); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("bootstrap: migrations failed: %w", err)
	}

	return &Result{
		DB:    db,
		Store: conversation.NewPostgresStore(db),
	}, nil
}
