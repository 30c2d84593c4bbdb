package services

import (
	"context"

	"github.com/dmitrijs2005/gatekeeper/internal/common"
	"github.com/dmitrijs2005/gatekeeper/internal/dbx"
	"github.com/dmitrijs2005/gatekeeper/internal/logging"
	"github.com/dmitrijs2005/gatekeeper/internal/server/auth"
	"github.com/dmitrijs2005/gatekeeper/internal/server/models"
	"github.com/dmitrijs2005/gatekeeper/internal/server/repositories/repomanager"
	"github.com/google/uuid"
)

type CreateUserInput struct {
	Email    string
	Name     string
	Password string
	Role     models.Role
}

// UserService manages the user directory on behalf of authenticated actors.
type UserService struct {
	tx          dbx.Transactor
	repomanager repomanager.RepositoryManager
	hasher      *auth.PasswordHasher
	logger      logging.Logger
}

func NewUserService(tx dbx.Transactor, m repomanager.RepositoryManager, hasher *auth.PasswordHasher, logger logging.Logger) *UserService {
	if logger == nil {
		logger = logging.NopLogger{}
	}
	return &UserService{tx: tx, repomanager: m, hasher: hasher, logger: logger.With("module", "users")}
}

// canModify reports whether actor may change the user with the given id.
func canModify(actor *auth.Identity, id string) bool {
	return actor != nil && (actor.Role == models.RoleAdmin || actor.UserID == id)
}

func (s *UserService) CreateUser(ctx context.Context, in CreateUserInput) (*models.User, error) {
	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, internalError(ctx, s.logger, "password hash", err)
	}

	role := in.Role
	if role == "" {
		role = models.RoleUser
	}

	user, err := s.repomanager.Users(s.tx.Conn()).Create(ctx, &models.User{
		ID:           uuid.NewString(),
		Email:        common.NormalizeEmail(in.Email),
		Name:         in.Name,
		PasswordHash: hash,
		Role:         role,
	})
	if err != nil {
		return nil, internalError(ctx, s.logger, "create user", err)
	}
	return user, nil
}

func (s *UserService) GetUser(ctx context.Context, id string) (*models.User, error) {
	user, err := s.repomanager.Users(s.tx.Conn()).FindByID(ctx, id, false)
	if err != nil {
		return nil, internalError(ctx, s.logger, "get user", err)
	}
	return user, nil
}

// UpdateUser changes a profile. Only admins or the user themself may do
// it, and a role change from a non-admin is dropped.
func (s *UserService) UpdateUser(ctx context.Context, actor *auth.Identity, id string, update models.ProfileUpdate) (*models.User, error) {
	if !canModify(actor, id) {
		return nil, common.ErrorForbidden
	}
	if actor.Role != models.RoleAdmin {
		update.Role = nil
	}

	user, err := s.repomanager.Users(s.tx.Conn()).UpdateProfile(ctx, id, update)
	if err != nil {
		return nil, internalError(ctx, s.logger, "update user", err)
	}
	return user, nil
}

// ChangePassword replaces the password after checking the current one.
func (s *UserService) ChangePassword(ctx context.Context, actor *auth.Identity, id, currentPassword, newPassword string) error {
	if !canModify(actor, id) {
		return common.ErrorForbidden
	}

	repo := s.repomanager.Users(s.tx.Conn())
	user, err := repo.FindByID(ctx, id, false)
	if err != nil {
		return internalError(ctx, s.logger, "change password lookup", err)
	}

	if !s.hasher.Verify(currentPassword, user.PasswordHash) {
		return common.ErrorInvalidPassword
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return internalError(ctx, s.logger, "password hash", err)
	}
	if err := repo.UpdatePassword(ctx, id, hash); err != nil {
		return internalError(ctx, s.logger, "update password", err)
	}
	return nil
}

func (s *UserService) SoftDeleteUser(ctx context.Context, id string) error {
	if err := s.repomanager.Users(s.tx.Conn()).SoftDelete(ctx, id); err != nil {
		return internalError(ctx, s.logger, "soft delete", err)
	}
	s.logger.Info(ctx, "user soft-deleted", "user_id", id)
	return nil
}

// HardDeleteUser removes the record for good, soft-deleted or not.
func (s *UserService) HardDeleteUser(ctx context.Context, id string) error {
	repo := s.repomanager.Users(s.tx.Conn())
	if _, err := repo.FindByID(ctx, id, true); err != nil {
		return internalError(ctx, s.logger, "hard delete lookup", err)
	}
	if err := repo.HardDelete(ctx, id); err != nil {
		return internalError(ctx, s.logger, "hard delete", err)
	}
	s.logger.Info(ctx, "user permanently deleted", "user_id", id)
	return nil
}

func (s *UserService) ListUsers(ctx context.Context, filter models.UserFilter) (*models.UserPage, error) {
	filter.Page = filter.Page.Normalize()

	users, total, err := s.repomanager.Users(s.tx.Conn()).List(ctx, filter)
	if err != nil {
		return nil, internalError(ctx, s.logger, "list users", err)
	}

	out := make([]models.PublicUser, len(users))
	for i := range users {
		out[i] = users[i].Public()
	}
	return &models.UserPage{Users: out, PageInfo: models.NewPageInfo(filter.Page, total)}, nil
}
