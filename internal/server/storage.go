package server

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/gatekeeper/internal/dbx"
	"github.com/dmitrijs2005/gatekeeper/internal/logging"
	"github.com/dmitrijs2005/gatekeeper/internal/server/repositories/memory"
	"github.com/dmitrijs2005/gatekeeper/internal/server/repositories/repomanager"
)

// MemoryDSN selects the in-process store. Nothing survives a restart.
const MemoryDSN = "memory://"

// Storage bundles the transactor and repository manager for one backend.
type Storage struct {
	Tx    dbx.Transactor
	Repos repomanager.RepositoryManager
	DB    *sql.DB
}

// OpenStorage connects to dsn and migrates the schema. A MemoryDSN gives
// an in-memory store instead.
func OpenStorage(ctx context.Context, dsn string, logger logging.Logger) (*Storage, error) {
	if strings.HasPrefix(dsn, MemoryDSN) {
		logger.Warn(ctx, "using in-memory storage, data will be lost on exit")
		m := memory.NewManager()
		return &Storage{Tx: m, Repos: m}, nil
	}

	db, err := repomanager.OpenPostgres(ctx, dsn)
	if err != nil {
		return nil, err
	}

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrations error: %w", err)
	}

	return &Storage{Tx: dbx.NewSQLTransactor(db, nil), Repos: rm, DB: db}, nil
}

// Ping checks the database; the memory store is always up.
func (s *Storage) Ping(ctx context.Context) error {
	if s.DB == nil {
		return nil
	}
	return s.DB.PingContext(ctx)
}

func (s *Storage) Close() error {
	if s.DB == nil {
		return nil
	}
	return s.DB.Close()
}
