package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/gatekeeper/internal/logging"
	"github.com/dmitrijs2005/gatekeeper/internal/server/auth"
	"github.com/dmitrijs2005/gatekeeper/internal/server/models"
	"github.com/dmitrijs2005/gatekeeper/internal/server/repositories/memory"
	"github.com/dmitrijs2005/gatekeeper/internal/server/services"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const testPassword = "Secret123"

type testEnv struct {
	store  *memory.Manager
	tokens *auth.TokenManager
	auth   *services.AuthService
	users  *services.UserService
	audit  *services.AuditService
	log    *recordingLogger
	srv    *Server
}

func newTestEnv(t *testing.T, ping Pinger) *testEnv {
	t.Helper()
	return newTestEnvWith(t, ping, Options{APIPrefix: "/api/v1", Environment: "test"})
}

func newTestEnvWith(t *testing.T, ping Pinger, opts Options) *testEnv {
	t.Helper()
	e := &testEnv{
		store:  memory.NewManager(),
		tokens: auth.NewTokenManager([]byte("access"), []byte("refresh"), 15*time.Minute, time.Hour),
		log:    &recordingLogger{},
	}
	hasher := auth.NewPasswordHasher(bcrypt.MinCost)
	e.auth = services.NewAuthService(e.store, e.store, hasher, e.tokens, nil)
	e.users = services.NewUserService(e.store, e.store, hasher, nil)
	e.audit = services.NewAuditService(e.store, e.store, nil, time.Second)
	e.srv = NewServer(opts, Deps{
		Auth:   e.auth,
		Users:  e.users,
		Audit:  e.audit,
		Tokens: e.tokens,
		Guard:  auth.NewGuard(e.log),
		Ping:   ping,
		Logger: e.log,
	})
	return e
}

// user creates a user directly and logs it in.
func (e *testEnv) user(t *testing.T, email string, role models.Role) (token, id string) {
	t.Helper()
	ctx := context.Background()
	_, err := e.users.CreateUser(ctx, services.CreateUserInput{Email: email, Name: "Test User", Password: testPassword, Role: role})
	require.NoError(t, err)
	res, err := e.auth.Login(ctx, email, testPassword)
	require.NoError(t, err)
	return res.AccessToken, res.User.ID
}

type apiResponse struct {
	code    int
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Errors  []FieldError    `json:"errors"`
}

func (r apiResponse) decode(t *testing.T, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(r.Data, v))
}

func (e *testEnv) do(t *testing.T, method, path string, body any, header map[string]string) apiResponse {
	t.Helper()

	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = bytes.NewBufferString(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}

	resp, err := e.srv.App().Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	out := apiResponse{code: resp.StatusCode}
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, &out), "body: %s", raw)
	return out
}

func bearer(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

type recordingLogger struct {
	mu    sync.Mutex
	warns []string
}

func (l *recordingLogger) Debug(context.Context, string, ...any) {}
func (l *recordingLogger) Info(context.Context, string, ...any)  {}
func (l *recordingLogger) Error(context.Context, string, ...any) {}
func (l *recordingLogger) Warn(_ context.Context, msg string, _ ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.warns = append(l.warns, msg)
}
func (l *recordingLogger) With(...any) logging.Logger { return l }

func (l *recordingLogger) warnings() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.warns...)
}
