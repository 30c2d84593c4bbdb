package services

import (
	"context"
	"crypto/subtle"
	"errors"
	"sync"

	"github.com/dmitrijs2005/gatekeeper/internal/common"
	"github.com/dmitrijs2005/gatekeeper/internal/dbx"
	"github.com/dmitrijs2005/gatekeeper/internal/logging"
	"github.com/dmitrijs2005/gatekeeper/internal/server/auth"
	"github.com/dmitrijs2005/gatekeeper/internal/server/models"
	"github.com/dmitrijs2005/gatekeeper/internal/server/repositories/repomanager"
	"github.com/google/uuid"
)

// AuthResult is returned by Register, Login and Refresh. User is nil for
// Refresh.
type AuthResult struct {
	auth.TokenPair
	User *models.UserSummary `json:"user,omitempty"`
}

type RegisterInput struct {
	Email    string
	Name     string
	Password string
	Role     models.Role
}

// AuthService runs the session workflow: register, login, refresh, logout.
// Each user has a single refresh-token slot, so a new login invalidates the
// previous session's refresh token.
type AuthService struct {
	tx          dbx.Transactor
	repomanager repomanager.RepositoryManager
	hasher      *auth.PasswordHasher
	tokens      *auth.TokenManager
	logger      logging.Logger

	dummyOnce sync.Once
	dummyHash string
}

func NewAuthService(tx dbx.Transactor, m repomanager.RepositoryManager, hasher *auth.PasswordHasher, tokens *auth.TokenManager, logger logging.Logger) *AuthService {
	if logger == nil {
		logger = logging.NopLogger{}
	}
	return &AuthService{
		tx:          tx,
		repomanager: m,
		hasher:      hasher,
		tokens:      tokens,
		logger:      logger.With("module", "auth"),
	}
}

// Register creates a user and opens its first session. The email pre-check
// gives the common case a clean Conflict; the unique index settles races.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*AuthResult, error) {
	email := common.NormalizeEmail(in.Email)
	role := in.Role
	if role == "" {
		role = models.RoleUser
	}

	repo := s.repomanager.Users(s.tx.Conn())
	if _, err := repo.FindByEmail(ctx, email, false); err == nil {
		return nil, common.ErrorAlreadyExists
	} else if !errors.Is(err, common.ErrorNotFound) {
		return nil, internalError(ctx, s.logger, "register lookup", err)
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, internalError(ctx, s.logger, "password hash", err)
	}

	var result *AuthResult
	err = s.tx.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		users := s.repomanager.Users(tx)
		user, err := users.Create(ctx, &models.User{
			ID:           uuid.NewString(),
			Email:        email,
			Name:         in.Name,
			PasswordHash: hash,
			Role:         role,
		})
		if err != nil {
			return err
		}

		pair, err := s.tokens.IssuePair(identityOf(user))
		if err != nil {
			return err
		}
		if err := users.SetRefreshToken(ctx, user.ID, pair.RefreshToken); err != nil {
			return err
		}

		summary := user.Summary()
		result = &AuthResult{TokenPair: pair, User: &summary}
		return nil
	})
	if err != nil {
		return nil, internalError(ctx, s.logger, "register", err)
	}

	s.logger.Info(ctx, "user registered", "user_id", result.User.ID, "role", string(role))
	return result, nil
}

// Login returns ErrorInvalidCredentials for an unknown email, a deleted
// user or a wrong password alike. Unknown emails still pay for one bcrypt
// comparison.
func (s *AuthService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	repo := s.repomanager.Users(s.tx.Conn())

	user, err := repo.FindByEmail(ctx, email, false)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			s.hasher.Verify(password, s.dummyDigest())
			return nil, common.ErrorInvalidCredentials
		}
		return nil, internalError(ctx, s.logger, "login lookup", err)
	}

	if !s.hasher.Verify(password, user.PasswordHash) {
		return nil, common.ErrorInvalidCredentials
	}

	pair, err := s.tokens.IssuePair(identityOf(user))
	if err != nil {
		return nil, internalError(ctx, s.logger, "issue tokens", err)
	}
	if err := repo.SetRefreshToken(ctx, user.ID, pair.RefreshToken); err != nil {
		return nil, internalError(ctx, s.logger, "store refresh token", err)
	}

	summary := user.Summary()
	return &AuthResult{TokenPair: pair, User: &summary}, nil
}

// Refresh rotates the session. The presented token must verify and still
// occupy the user's slot; the swap is conditional on it, so replaying a
// superseded token fails even under concurrency.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*AuthResult, error) {
	claims, ok := s.tokens.VerifyRefresh(refreshToken)
	if !ok {
		return nil, common.ErrorInvalidRefreshToken
	}

	repo := s.repomanager.Users(s.tx.Conn())
	user, err := repo.FindByID(ctx, claims.UserID, false)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrorInvalidRefreshToken
		}
		return nil, internalError(ctx, s.logger, "refresh lookup", err)
	}

	if subtle.ConstantTimeCompare([]byte(user.RefreshToken), []byte(refreshToken)) != 1 {
		s.logger.Warn(ctx, "refresh token mismatch", "user_id", user.ID)
		return nil, common.ErrorInvalidRefreshToken
	}

	pair, err := s.tokens.IssuePair(identityOf(user))
	if err != nil {
		return nil, internalError(ctx, s.logger, "issue tokens", err)
	}

	swapped, err := repo.SwapRefreshToken(ctx, user.ID, refreshToken, pair.RefreshToken)
	if err != nil {
		return nil, internalError(ctx, s.logger, "rotate refresh token", err)
	}
	if !swapped {
		s.logger.Warn(ctx, "refresh token already rotated", "user_id", user.ID)
		return nil, common.ErrorInvalidRefreshToken
	}

	return &AuthResult{TokenPair: pair}, nil
}

// Logout clears the refresh-token slot. Unknown users are not an error.
func (s *AuthService) Logout(ctx context.Context, userID string) error {
	err := s.repomanager.Users(s.tx.Conn()).SetRefreshToken(ctx, userID, "")
	if err != nil && !errors.Is(err, common.ErrorNotFound) {
		return internalError(ctx, s.logger, "logout", err)
	}
	return nil
}

// Me returns the caller's visible user record.
func (s *AuthService) Me(ctx context.Context, userID string) (*models.User, error) {
	user, err := s.repomanager.Users(s.tx.Conn()).FindByID(ctx, userID, false)
	if err != nil {
		return nil, internalError(ctx, s.logger, "me", err)
	}
	return user, nil
}

func (s *AuthService) dummyDigest() string {
	s.dummyOnce.Do(func() {
		h, err := s.hasher.Hash(uuid.NewString())
		if err == nil {
			s.dummyHash = h
		}
	})
	return s.dummyHash
}

func identityOf(u *models.User) auth.Identity {
	return auth.Identity{UserID: u.ID, Email: u.Email, Role: u.Role}
}
