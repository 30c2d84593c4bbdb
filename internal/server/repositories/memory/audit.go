package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/gatekeeper/internal/common"
	"github.com/dmitrijs2005/gatekeeper/internal/server/models"
	"github.com/google/uuid"
)

type AuditStore struct {
	mu    sync.RWMutex
	rows  []models.AuditLog
	users *UserStore
}

func NewAuditStore(users *UserStore) *AuditStore {
	return &AuditStore{users: users}
}

func (s *AuditStore) Create(_ context.Context, entry *models.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
	s.rows = append(s.rows, *entry)
	return nil
}

// Len is the number of stored entries.
func (s *AuditStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rows)
}

// All returns a copy of every stored entry in insertion order.
func (s *AuditStore) All() []models.AuditLog {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.AuditLog(nil), s.rows...)
}

func (s *AuditStore) withUser(e models.AuditLog) models.AuditLog {
	e.UserName, e.UserEmail = nil, nil
	if e.UserID == nil || s.users == nil {
		return e
	}
	s.users.mu.RLock()
	defer s.users.mu.RUnlock()
	if u, ok := s.users.rows[*e.UserID]; ok {
		name, email := u.Name, u.Email
		e.UserName, e.UserEmail = &name, &email
	}
	return e
}

func (s *AuditStore) FindByID(_ context.Context, id string) (*models.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, e := range s.rows {
		if e.ID == id {
			e = s.withUser(e)
			return &e, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (s *AuditStore) List(_ context.Context, filter models.AuditLogFilter) ([]models.AuditLog, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	page := filter.Page.Normalize()
	endpoint := strings.ToLower(filter.Endpoint)
	method := strings.ToUpper(filter.Method)

	matched := make([]models.AuditLog, 0, len(s.rows))
	for _, e := range s.rows {
		switch {
		case filter.UserID != "" && (e.UserID == nil || *e.UserID != filter.UserID):
			continue
		case endpoint != "" && !strings.Contains(strings.ToLower(e.Endpoint), endpoint):
			continue
		case method != "" && e.Method != method:
			continue
		case filter.ResponseStatus != 0 && e.ResponseStatus != filter.ResponseStatus:
			continue
		case filter.StartDate != nil && e.Timestamp.Before(*filter.StartDate):
			continue
		case filter.EndDate != nil && e.Timestamp.After(*filter.EndDate):
			continue
		}
		matched = append(matched, e)
	}

	less := auditLess(filter.SortBy)
	desc := filter.SortOrder != models.SortAsc
	sort.SliceStable(matched, func(i, j int) bool {
		a, b := &matched[i], &matched[j]
		if desc {
			a, b = b, a
		}
		if less(a, b) {
			return true
		}
		if less(b, a) {
			return false
		}
		return a.ID < b.ID
	})

	total := len(matched)
	start := min(page.Offset(), total)
	end := min(start+page.Limit, total)

	out := make([]models.AuditLog, 0, end-start)
	for _, e := range matched[start:end] {
		out = append(out, s.withUser(e))
	}
	return out, total, nil
}

func auditLess(sortBy string) func(a, b *models.AuditLog) bool {
	switch sortBy {
	case "endpoint":
		return func(a, b *models.AuditLog) bool { return a.Endpoint < b.Endpoint }
	case "method":
		return func(a, b *models.AuditLog) bool { return a.Method < b.Method }
	case "responseStatus":
		return func(a, b *models.AuditLog) bool { return a.ResponseStatus < b.ResponseStatus }
	default:
		return func(a, b *models.AuditLog) bool { return a.Timestamp.Before(b.Timestamp) }
	}
}
