package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/mentor-sync/internal/config"
	"github.com/sells-group/mentor-sync/internal/store"
)

func initStore(ctx context.Context, c *config.Config) (store.Store, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	switch c.Store.Driver {
	case "sqlite":
		return store.NewSQLite(c.Store.SQLitePath)
	case "postgres":
		return store.NewPostgres(ctx, c.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: c.Store.MaxConns,
			MinConns: c.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", c.Store.Driver)
	}
}

// openStore connects and applies migrations. Callers own Close.
func openStore(ctx context.Context, c *config.Config) (store.Store, error) {
	st, err := initStore(ctx, c)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close() //nolint:errcheck
		return nil, eris.Wrap(err, "migrate")
	}
	return st, nil
}
