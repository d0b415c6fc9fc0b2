package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/activity-cli/internal/apply"
	"github.com/sells-group/activity-cli/internal/events"
	"github.com/sells-group/activity-cli/internal/merge"
	"github.com/sells-group/activity-cli/internal/oracle"
	"github.com/sells-group/activity-cli/internal/parse"
	"github.com/sells-group/activity-cli/internal/store"
)

// appEnv holds the store and services the commands share.
type appEnv struct {
	Store     store.Store
	Service   *apply.Service
	Publisher events.Publisher
}

// Close releases resources held by the environment.
func (e *appEnv) Close() {
	if e.Publisher != nil {
		_ = e.Publisher.Close()
	}
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		return store.NewSQLite(cfg.Store.SQLitePath)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// newParser builds the deterministic parser with the configured fallback.
func newParser() *parse.Parser {
	return parse.NewParser(oracle.New(cfg.Anthropic, nil))
}

// initEnv validates config for mode, opens and migrates the store, and wires
// the parse, merge and publish stages. Callers should defer env.Close().
func initEnv(ctx context.Context, mode string) (*appEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	pub := events.New(cfg.Events)
	engine := merge.NewEngine(st, cfg.Merge)
	svc := apply.NewService(newParser(), engine, st, pub)

	return &appEnv{Store: st, Service: svc, Publisher: pub}, nil
}
