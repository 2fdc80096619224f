package twinfleet

import (
	"context"
	"fmt"

	_ "github.com/lib/pq"
	_ "github.com/marcboeker/go-duckdb"

	"github.com/ghalamif/twinfleet/internal/adapters/store"
	"github.com/ghalamif/twinfleet/internal/app/config"
)

// OpenStore builds the backend named by cfg.Backend. SQL backends are pinged
// with retries and get their schema created on first use.
func OpenStore(ctx context.Context, cfg StoreConfig) (Store, error) {
	switch cfg.Backend {
	case "", config.BackendMemory:
		return store.NewMemoryStore(), nil
	case config.BackendJournal:
		return store.OpenJournalStore(cfg.Dir, cfg.Fsync)
	case config.BackendPostgres, config.BackendDuckDB:
		db, err := store.OpenSQL(ctx, cfg.Backend, cfg.DSN, cfg.ConnectRetries)
		if err != nil {
			return nil, err
		}
		s := store.NewSQLStore(db, store.Dialect(cfg.Backend), cfg.Timeout)
		if err := s.EnsureSchema(ctx); err != nil {
			_ = s.Close()
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unsupported store backend %q", cfg.Backend)
	}
}
