package memory

import (
	"context"
	"testing"
	"time"

	"github.com/dmitrijs2005/gatekeeper/internal/common"
	"github.com/dmitrijs2005/gatekeeper/internal/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuditStore_CreateFindList(t *testing.T) {
	ctx := context.Background()
	m := NewManager()

	u, err := m.UserStore().Create(ctx, &models.User{Email: "a@x.io", Name: "Alice"})
	require.NoError(t, err)

	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	entries := []models.AuditLog{
		{UserID: &u.ID, Endpoint: "/api/v1/users", Method: "POST", ResponseStatus: 201, Timestamp: t0},
		{Endpoint: "/api/v1/auth/login", Method: "POST", ResponseStatus: 401, Timestamp: t0.Add(time.Minute)},
		{UserID: &u.ID, Endpoint: "/api/v1/users/1", Method: "GET", ResponseStatus: 200, Timestamp: t0.Add(2 * time.Minute)},
	}
	for i := range entries {
		require.NoError(t, m.AuditStore().Create(ctx, &entries[i]))
	}
	assert.Equal(t, 3, m.AuditStore().Len())

	got, err := m.AuditStore().FindByID(ctx, entries[0].ID)
	require.NoError(t, err)
	require.NotNil(t, got.UserName)
	assert.Equal(t, "Alice", *got.UserName)

	_, err = m.AuditStore().FindByID(ctx, "missing")
	assert.ErrorIs(t, err, common.ErrorNotFound)

	logs, total, err := m.AuditStore().List(ctx, models.AuditLogFilter{UserID: u.ID})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Equal(t, "/api/v1/users/1", logs[0].Endpoint, "newest first")

	start := t0.Add(30 * time.Second)
	logs, total, _ = m.AuditStore().List(ctx, models.AuditLogFilter{Method: "post", StartDate: &start})
	assert.Equal(t, 1, total)
	assert.Equal(t, 401, logs[0].ResponseStatus)

	logs, _, _ = m.AuditStore().List(ctx, models.AuditLogFilter{SortBy: "responseStatus", SortOrder: models.SortAsc})
	assert.Equal(t, 200, logs[0].ResponseStatus)
}
