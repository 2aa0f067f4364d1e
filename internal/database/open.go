package database

import (
	"context"
	"log/slog"

	"github.com/pkg/errors"
)

// Storage backends accepted by Open
const (
	BackendClickHouse = "clickhouse"
	BackendSQLite     = "sqlite"
)

// OpenOptions selects and configures a gateway
type OpenOptions struct {
	Backend    string
	ClickHouse ClickHouseOptions
	SQLitePath string
}

// Open connects the configured backend and prepares its schema
func Open(ctx context.Context, opts OpenOptions, logger *slog.Logger) (Gateway, error) {
	if logger == nil {
		logger = slog.Default()
	}

	switch opts.Backend {
	case BackendClickHouse, "":
		return NewClickHouseGateway(ctx, opts.ClickHouse, logger)
	case BackendSQLite:
		g := NewSQLiteGateway(opts.SQLitePath)
		if err := g.Initialize(); err != nil {
			return nil, err
		}
		logger.Info("using SQLite gateway", "component", "sqlite", "path", opts.SQLitePath)
		return g, nil
	default:
		return nil, errors.Errorf("unknown storage backend %q", opts.Backend)
	}
}
