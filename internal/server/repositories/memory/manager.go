// Package memory holds in-process implementations of the repositories. They
// keep the same uniqueness and compare-and-swap guarantees as the PostgreSQL
// ones and back "memory://" deployments and the service tests.
package memory

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/gatekeeper/internal/dbx"
	"github.com/dmitrijs2005/gatekeeper/internal/server/repositories/auditlogs"
	"github.com/dmitrijs2005/gatekeeper/internal/server/repositories/users"
)

// Manager is a RepositoryManager and a dbx.Transactor over one shared store.
// The DBTX arguments are ignored and WithTx does not roll back.
type Manager struct {
	users *UserStore
	audit *AuditStore
}

func NewManager() *Manager {
	u := NewUserStore()
	return &Manager{users: u, audit: NewAuditStore(u)}
}

func (m *Manager) RunMigrations(context.Context, *sql.DB) error { return nil }

func (m *Manager) Users(dbx.DBTX) users.Repository { return m.users }

func (m *Manager) AuditLogs(dbx.DBTX) auditlogs.Repository { return m.audit }

func (m *Manager) Conn() dbx.DBTX { return nil }

func (m *Manager) WithTx(ctx context.Context, fn dbx.TxFunc) error {
	return fn(ctx, nil)
}

func (m *Manager) UserStore() *UserStore { return m.users }

func (m *Manager) AuditStore() *AuditStore { return m.audit }
