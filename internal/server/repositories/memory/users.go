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

type UserStore struct {
	mu    sync.RWMutex
	rows  map[string]*models.User
	order []string
	now   func() time.Time
}

func NewUserStore() *UserStore {
	return &UserStore{rows: map[string]*models.User{}, now: time.Now}
}

func clone(u *models.User) *models.User {
	c := *u
	if u.DeletedAt != nil {
		t := *u.DeletedAt
		c.DeletedAt = &t
	}
	return &c
}

func (s *UserStore) Create(_ context.Context, user *models.User) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	email := common.NormalizeEmail(user.Email)
	for _, u := range s.rows {
		if !u.Deleted && u.Email == email {
			return nil, common.ErrorAlreadyExists
		}
	}

	c := clone(user)
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.Role == "" {
		c.Role = models.RoleUser
	}
	c.Email = email
	c.RefreshToken = ""
	c.Deleted = false
	c.DeletedAt = nil
	now := s.now()
	c.CreatedAt, c.UpdatedAt = now, now

	s.rows[c.ID] = c
	s.order = append(s.order, c.ID)
	return clone(c), nil
}

func (s *UserStore) FindByEmail(_ context.Context, email string, includeDeleted bool) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	email = common.NormalizeEmail(email)
	var best *models.User
	for _, u := range s.rows {
		if u.Email != email || (u.Deleted && !includeDeleted) {
			continue
		}
		if best == nil || newerMatch(u, best) {
			best = u
		}
	}
	if best == nil {
		return nil, common.ErrorNotFound
	}
	return clone(best), nil
}

// newerMatch orders non-deleted rows first, then the latest created.
func newerMatch(a, b *models.User) bool {
	if a.Deleted != b.Deleted {
		return !a.Deleted
	}
	return a.CreatedAt.After(b.CreatedAt)
}

func (s *UserStore) FindByID(_ context.Context, id string, includeDeleted bool) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.visible(id, includeDeleted)
	if !ok {
		return nil, common.ErrorNotFound
	}
	return clone(u), nil
}

func (s *UserStore) visible(id string, includeDeleted bool) (*models.User, bool) {
	u, ok := s.rows[id]
	if !ok || (u.Deleted && !includeDeleted) {
		return nil, false
	}
	return u, true
}

func (s *UserStore) UpdateProfile(_ context.Context, id string, update models.ProfileUpdate) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.visible(id, false)
	if !ok {
		return nil, common.ErrorNotFound
	}
	if update.Empty() {
		return clone(u), nil
	}
	if update.Name != nil {
		u.Name = *update.Name
	}
	if update.Role != nil {
		u.Role = *update.Role
	}
	u.UpdatedAt = s.now()
	return clone(u), nil
}

func (s *UserStore) UpdatePassword(_ context.Context, id string, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.visible(id, false)
	if !ok {
		return common.ErrorNotFound
	}
	u.PasswordHash = passwordHash
	u.UpdatedAt = s.now()
	return nil
}

func (s *UserStore) SetRefreshToken(_ context.Context, id string, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.rows[id]
	if !ok {
		return common.ErrorNotFound
	}
	u.RefreshToken = token
	return nil
}

func (s *UserStore) SwapRefreshToken(_ context.Context, id string, expected string, next string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.visible(id, false)
	if !ok || expected == "" || u.RefreshToken != expected {
		return false, nil
	}
	u.RefreshToken = next
	return true, nil
}

func (s *UserStore) SoftDelete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.visible(id, false)
	if !ok {
		return common.ErrorNotFound
	}
	now := s.now()
	u.Deleted = true
	u.DeletedAt = &now
	u.RefreshToken = ""
	u.UpdatedAt = now
	return nil
}

func (s *UserStore) HardDelete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.rows[id]; !ok {
		return common.ErrorNotFound
	}
	delete(s.rows, id)
	for i, v := range s.order {
		if v == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

func (s *UserStore) List(_ context.Context, filter models.UserFilter) ([]models.User, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	page := filter.Page.Normalize()
	needle := strings.ToLower(strings.TrimSpace(filter.Email))

	matched := make([]*models.User, 0, len(s.order))
	for _, id := range s.order {
		u := s.rows[id]
		if u.Deleted && !filter.IncludeDeleted {
			continue
		}
		if filter.Role != nil && u.Role != *filter.Role {
			continue
		}
		if needle != "" && !strings.Contains(u.Email, needle) {
			continue
		}
		matched = append(matched, u)
	}

	less := userLess(filter.SortBy)
	desc := filter.SortOrder != models.SortAsc
	sort.SliceStable(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
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

	out := make([]models.User, 0, end-start)
	for _, u := range matched[start:end] {
		out = append(out, *clone(u))
	}
	return out, total, nil
}

func userLess(sortBy string) func(a, b *models.User) bool {
	switch sortBy {
	case "name":
		return func(a, b *models.User) bool { return a.Name < b.Name }
	case "email":
		return func(a, b *models.User) bool { return a.Email < b.Email }
	case "role":
		return func(a, b *models.User) bool { return a.Role < b.Role }
	default:
		return func(a, b *models.User) bool { return a.CreatedAt.Before(b.CreatedAt) }
	}
}
