// Package store escolhe o backend de persistência do vault a partir da configuração.
package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/radieske/coinflip-vault/internal/shared/config"
	"github.com/radieske/coinflip-vault/internal/shared/db"
	"github.com/radieske/coinflip-vault/internal/store/leveldb"
	"github.com/radieske/coinflip-vault/internal/store/memory"
	"github.com/radieske/coinflip-vault/internal/store/postgres"
	"github.com/radieske/coinflip-vault/internal/vault"
)

// Backend é o que os serviços precisam de um store: transações e o outbox
type Backend interface {
	vault.Store
	vault.Outbox
}

// Handle junta o backend aberto com o health check e o fechamento
type Handle struct {
	Backend
	Kind   string
	Health func(ctx context.Context) error
	close  func() error
}

func (h *Handle) Close() error {
	if h.close == nil {
		return nil
	}
	return h.close()
}

// Open abre o backend indicado por STORE_BACKEND
func Open(ctx context.Context, cfg config.Config) (*Handle, error) {
	switch cfg.StoreBackend {
	case config.StorePostgres:
		pg, err := db.ConnectPostgres(cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		st := postgres.New(pg)
		if err := st.Migrate(ctx); err != nil {
			_ = pg.Close()
			return nil, err
		}
		return &Handle{Backend: st, Kind: cfg.StoreBackend, Health: pingDB(pg), close: pg.Close}, nil
	case config.StoreLevelDB:
		st, err := leveldb.Open(cfg.LevelDBPath)
		if err != nil {
			return nil, err
		}
		return &Handle{Backend: st, Kind: cfg.StoreBackend, Health: noop, close: st.Close}, nil
	case config.StoreMemory:
		return &Handle{Backend: memory.New(), Kind: cfg.StoreBackend, Health: noop}, nil
	default:
		return nil, fmt.Errorf("unknown STORE_BACKEND %q", cfg.StoreBackend)
	}
}

func pingDB(pg *sql.DB) func(ctx context.Context) error {
	return pg.PingContext
}

func noop(context.Context) error { return nil }
