package services

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/gatekeeper/internal/dbx"
	"github.com/dmitrijs2005/gatekeeper/internal/logging"
	"github.com/dmitrijs2005/gatekeeper/internal/server/auth"
	"github.com/dmitrijs2005/gatekeeper/internal/server/models"
	"github.com/dmitrijs2005/gatekeeper/internal/server/repositories/auditlogs"
	"github.com/dmitrijs2005/gatekeeper/internal/server/repositories/memory"
	usersrepo "github.com/dmitrijs2005/gatekeeper/internal/server/repositories/users"
	"golang.org/x/crypto/bcrypt"
)

var errBoom = errors.New("boom")

type fixture struct {
	store  *memory.Manager
	hasher *auth.PasswordHasher
	tokens *auth.TokenManager
	log    *recordingLogger
	auth   *AuthService
	users  *UserService
	audit  *AuditService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:  memory.NewManager(),
		hasher: auth.NewPasswordHasher(bcrypt.MinCost),
		tokens: auth.NewTokenManager([]byte("access"), []byte("refresh"), 15*time.Minute, time.Hour),
		log:    &recordingLogger{},
	}
	f.auth = NewAuthService(f.store, f.store, f.hasher, f.tokens, f.log)
	f.users = NewUserService(f.store, f.store, f.hasher, f.log)
	f.audit = NewAuditService(f.store, f.store, f.log, time.Second)
	return f
}

func (f *fixture) register(t *testing.T, email string, role models.Role) *AuthResult {
	t.Helper()
	res, err := f.auth.Register(context.Background(), RegisterInput{Email: email, Name: "Test User", Password: "Secret123", Role: role})
	if err != nil {
		t.Fatalf("register %s: %v", email, err)
	}
	return res
}

type logEntry struct {
	level string
	msg   string
}

type recordingLogger struct {
	mu      sync.Mutex
	entries []logEntry
}

func (l *recordingLogger) add(level, msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, logEntry{level: level, msg: msg})
}

func (l *recordingLogger) count(level string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, e := range l.entries {
		if e.level == level {
			n++
		}
	}
	return n
}

func (l *recordingLogger) Debug(_ context.Context, msg string, _ ...any) { l.add("debug", msg) }
func (l *recordingLogger) Info(_ context.Context, msg string, _ ...any)  { l.add("info", msg) }
func (l *recordingLogger) Warn(_ context.Context, msg string, _ ...any)  { l.add("warn", msg) }
func (l *recordingLogger) Error(_ context.Context, msg string, _ ...any) { l.add("error", msg) }
func (l *recordingLogger) With(...any) logging.Logger                    { return l }

// fakeRepoManager hands out fixed repositories, for error paths the memory
// store cannot produce.
type fakeRepoManager struct {
	u usersrepo.Repository
	a auditlogs.Repository
}

func (m *fakeRepoManager) RunMigrations(context.Context, *sql.DB) error { return nil }
func (m *fakeRepoManager) Users(dbx.DBTX) usersrepo.Repository          { return m.u }
func (m *fakeRepoManager) AuditLogs(dbx.DBTX) auditlogs.Repository      { return m.a }

// failingUsers fails every call with err.
type failingUsers struct{ err error }

func (f failingUsers) Create(context.Context, *models.User) (*models.User, error) { return nil, f.err }
func (f failingUsers) FindByEmail(context.Context, string, bool) (*models.User, error) {
	return nil, f.err
}
func (f failingUsers) FindByID(context.Context, string, bool) (*models.User, error) {
	return nil, f.err
}
func (f failingUsers) UpdateProfile(context.Context, string, models.ProfileUpdate) (*models.User, error) {
	return nil, f.err
}
func (f failingUsers) UpdatePassword(context.Context, string, string) error  { return f.err }
func (f failingUsers) SetRefreshToken(context.Context, string, string) error { return f.err }
func (f failingUsers) SoftDelete(context.Context, string) error              { return f.err }
func (f failingUsers) HardDelete(context.Context, string) error              { return f.err }
func (f failingUsers) SwapRefreshToken(context.Context, string, string, string) (bool, error) {
	return false, f.err
}
func (f failingUsers) List(context.Context, models.UserFilter) ([]models.User, int, error) {
	return nil, 0, f.err
}

type failingAudit struct {
	err   error
	panic bool
}

func (f failingAudit) Create(context.Context, *models.AuditLog) error {
	if f.panic {
		panic("audit store exploded")
	}
	return f.err
}
func (f failingAudit) FindByID(context.Context, string) (*models.AuditLog, error) { return nil, f.err }
func (f failingAudit) List(context.Context, models.AuditLogFilter) ([]models.AuditLog, int, error) {
	return nil, 0, f.err
}
