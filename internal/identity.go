package internal

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/DukeRupert/uplink/internal/authform"
	"github.com/DukeRupert/uplink/internal/identity/gotrue"
	"github.com/DukeRupert/uplink/internal/identity/memory"
	"github.com/DukeRupert/uplink/internal/identity/postgres"
)

// NewIdentity builds the identity backend selected by cfg. The returned
// close function releases any connections and is never nil.
func NewIdentity(ctx context.Context, cfg *Config, logger *slog.Logger) (authform.Identity, func(), error) {
	noop := func() {}

	switch cfg.IdentityProvider {
	case ProviderMemory:
		logger.Warn("Using in-memory identity backend; accounts are lost on exit")
		return memory.New(logger), noop, nil

	case ProviderPostgres:
		pool, err := pgxpool.New(ctx, cfg.DatabaseUrl)
		if err != nil {
			return nil, noop, fmt.Errorf("database connection failed: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, noop, fmt.Errorf("database ping failed: %w", err)
		}
		if err := RunMigrations(ctx, pool, logger); err != nil {
			pool.Close()
			return nil, noop, fmt.Errorf("migration failed: %w", err)
		}
		logger.Info("Database ready")
		return postgres.New(pool, logger), pool.Close, nil

	case ProviderGoTrue:
		client, err := gotrue.New(gotrue.Config{
			BaseURL:       cfg.GoTrueURL,
			AnonKey:       cfg.GoTrueAnonKey,
			ServiceKey:    cfg.GoTrueServiceKey,
			ProfilesTable: cfg.GoTrueProfilesTable,
			Timeout:       cfg.IdentityTimeout,
		}, logger)
		if err != nil {
			return nil, noop, fmt.Errorf("identity client initialization failed: %w", err)
		}
		logger.Info("Identity service configured", "url", cfg.GoTrueURL)
		return client, noop, nil

	default:
		return nil, noop, fmt.Errorf("unknown identity provider %q", cfg.IdentityProvider)
	}
}
