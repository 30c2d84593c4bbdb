package auth

import (
	"context"
	"sync"
	"testing"

	"github.com/dmitrijs2005/gatekeeper/internal/logging"
	"github.com/dmitrijs2005/gatekeeper/internal/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type logEntry struct {
	level string
	msg   string
	args  []any
}

type recordingLogger struct {
	mu      sync.Mutex
	entries []logEntry
}

func (l *recordingLogger) add(level, msg string, args []any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, logEntry{level: level, msg: msg, args: args})
}

func (l *recordingLogger) Debug(_ context.Context, msg string, args ...any) {
	l.add("debug", msg, args)
}

func (l *recordingLogger) Info(_ context.Context, msg string, args ...any) {
	l.add("info", msg, args)
}

func (l *recordingLogger) Warn(_ context.Context, msg string, args ...any) {
	l.add("warn", msg, args)
}

func (l *recordingLogger) Error(_ context.Context, msg string, args ...any) {
	l.add("error", msg, args)
}

func (l *recordingLogger) With(args ...any) logging.Logger {
	return l
}

func argsMap(args []any) map[string]any {
	m := map[string]any{}
	for i := 0; i+1 < len(args); i += 2 {
		m[args[i].(string)] = args[i+1]
	}
	return m
}

func TestGuard_Authorize(t *testing.T) {
	admin := &Identity{UserID: "a1", Role: models.RoleAdmin}
	user := &Identity{UserID: "u1", Role: models.RoleUser}

	tests := []struct {
		name     string
		identity *Identity
		required RoleSet
		want     Decision
	}{
		{"anonymous", nil, AnyUser, Decision{Reason: ReasonUnauthenticated}},
		{"user on admin route", user, AdminOnly, Decision{Reason: ReasonForbidden}},
		{"admin on admin route", admin, AdminOnly, Decision{Allowed: true}},
		{"user on any-user route", user, AnyUser, Decision{Allowed: true}},
		{"admin on any-user route", admin, AnyUser, Decision{Allowed: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewGuard(nil)
			assert.Equal(t, tt.want, g.Authorize(context.Background(), tt.identity, tt.required))
		})
	}
}

func TestGuard_ForbiddenIsLogged(t *testing.T) {
	log := &recordingLogger{}
	g := NewGuard(log)

	d := g.Authorize(context.Background(), &Identity{UserID: "u1", Role: models.RoleUser}, AdminOnly,
		"endpoint", "/api/v1/users", "method", "GET")
	require.False(t, d.Allowed)

	require.Len(t, log.entries, 1)
	e := log.entries[0]
	assert.Equal(t, "warn", e.level)
	args := argsMap(e.args)
	assert.Equal(t, "u1", args["user_id"])
	assert.Equal(t, "USER", args["role"])
	assert.Equal(t, []string{"ADMIN"}, args["required_roles"])
	assert.Equal(t, "/api/v1/users", args["endpoint"])
	assert.Equal(t, "GET", args["method"])
}

func TestGuard_AllowedIsNotLogged(t *testing.T) {
	log := &recordingLogger{}
	g := NewGuard(log)

	g.Authorize(context.Background(), &Identity{UserID: "a1", Role: models.RoleAdmin}, AdminOnly)
	g.Authorize(context.Background(), nil, AdminOnly)
	assert.Empty(t, log.entries)
}
