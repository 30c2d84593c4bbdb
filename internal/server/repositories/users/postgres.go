package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/gatekeeper/internal/common"
	"github.com/dmitrijs2005/gatekeeper/internal/dbx"
	"github.com/dmitrijs2005/gatekeeper/internal/server/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

const uniqueViolation = "23505"

const userColumns = `id, email, name, password_hash, role, refresh_token, deleted, deleted_at, created_at, updated_at`

// sortColumns maps API sort keys to columns. Anything else sorts by created_at.
var sortColumns = map[string]string{
	"name":      "name",
	"email":     "email",
	"role":      "role",
	"createdAt": "created_at",
}

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*models.User, error) {
	u := &models.User{}
	var role string
	var deletedAt sql.NullTime

	err := row.Scan(&u.ID, &u.Email, &u.Name, &u.PasswordHash, &role, &u.RefreshToken,
		&u.Deleted, &deletedAt, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}

	u.Role = models.Role(role)
	if deletedAt.Valid {
		t := deletedAt.Time
		u.DeletedAt = &t
	}
	return u, nil
}

func wrapNoRows(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return common.ErrorNotFound
	}
	return fmt.Errorf("db error: %w", err)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// validID filters out ids postgres would reject as uuid input.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func (r *PostgresRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	if user.Role == "" {
		user.Role = models.RoleUser
	}
	user.Email = common.NormalizeEmail(user.Email)

	query :=
		`INSERT INTO users (id, email, name, password_hash, role)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING ` + userColumns

	created, err := scanUser(r.db.QueryRowContext(ctx, query,
		user.ID, user.Email, user.Name, user.PasswordHash, string(user.Role)))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, common.ErrorAlreadyExists
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return created, nil
}

func (r *PostgresRepository) FindByEmail(ctx context.Context, email string, includeDeleted bool) (*models.User, error) {
	query :=
		`SELECT ` + userColumns + ` FROM users
		 WHERE lower(email) = $1 AND ($2 OR NOT deleted)
		 ORDER BY deleted ASC, created_at DESC
		 LIMIT 1`

	u, err := scanUser(r.db.QueryRowContext(ctx, query, common.NormalizeEmail(email), includeDeleted))
	if err != nil {
		return nil, wrapNoRows(err)
	}
	return u, nil
}

func (r *PostgresRepository) FindByID(ctx context.Context, id string, includeDeleted bool) (*models.User, error) {
	if !validID(id) {
		return nil, common.ErrorNotFound
	}

	query :=
		`SELECT ` + userColumns + ` FROM users
		 WHERE id = $1 AND ($2 OR NOT deleted)`

	u, err := scanUser(r.db.QueryRowContext(ctx, query, id, includeDeleted))
	if err != nil {
		return nil, wrapNoRows(err)
	}
	return u, nil
}

func (r *PostgresRepository) UpdateProfile(ctx context.Context, id string, update models.ProfileUpdate) (*models.User, error) {
	if update.Empty() {
		return r.FindByID(ctx, id, false)
	}
	if !validID(id) {
		return nil, common.ErrorNotFound
	}

	var sets []string
	var args []any
	if update.Name != nil {
		args = append(args, *update.Name)
		sets = append(sets, fmt.Sprintf("name = $%d", len(args)))
	}
	if update.Role != nil {
		args = append(args, string(*update.Role))
		sets = append(sets, fmt.Sprintf("role = $%d", len(args)))
	}
	args = append(args, id)

	query := fmt.Sprintf(
		`UPDATE users SET %s, updated_at = now()
		 WHERE id = $%d AND NOT deleted
		 RETURNING %s`, strings.Join(sets, ", "), len(args), userColumns)

	u, err := scanUser(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		return nil, wrapNoRows(err)
	}
	return u, nil
}

func (r *PostgresRepository) UpdatePassword(ctx context.Context, id string, passwordHash string) error {
	query :=
		`UPDATE users SET password_hash = $2, updated_at = now()
		 WHERE id = $1 AND NOT deleted`

	return r.execOne(ctx, id, query, id, passwordHash)
}

// SetRefreshToken overwrites the refresh-token slot. An empty token clears it.
func (r *PostgresRepository) SetRefreshToken(ctx context.Context, id string, token string) error {
	query := `UPDATE users SET refresh_token = $2 WHERE id = $1`

	return r.execOne(ctx, id, query, id, token)
}

// SwapRefreshToken replaces the slot only while it still holds expected.
// Of two concurrent swaps with the same expected value at most one wins.
func (r *PostgresRepository) SwapRefreshToken(ctx context.Context, id string, expected string, next string) (bool, error) {
	if expected == "" || !validID(id) {
		return false, nil
	}

	query :=
		`UPDATE users SET refresh_token = $3
		 WHERE id = $1 AND refresh_token = $2 AND NOT deleted`

	res, err := r.db.ExecContext(ctx, query, id, expected, next)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return n == 1, nil
}

// SoftDelete hides the user and drops its session.
func (r *PostgresRepository) SoftDelete(ctx context.Context, id string) error {
	query :=
		`UPDATE users SET deleted = TRUE, deleted_at = now(), refresh_token = '', updated_at = now()
		 WHERE id = $1 AND NOT deleted`

	return r.execOne(ctx, id, query, id)
}

func (r *PostgresRepository) HardDelete(ctx context.Context, id string) error {
	query := `DELETE FROM users WHERE id = $1`

	return r.execOne(ctx, id, query, id)
}

func (r *PostgresRepository) execOne(ctx context.Context, id string, query string, args ...any) error {
	if !validID(id) {
		return common.ErrorNotFound
	}

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

func (r *PostgresRepository) List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error) {
	page := filter.Page.Normalize()

	var where []string
	var args []any
	if !filter.IncludeDeleted {
		where = append(where, "NOT deleted")
	}
	if filter.Role != nil {
		args = append(args, string(*filter.Role))
		where = append(where, fmt.Sprintf("role = $%d", len(args)))
	}
	if filter.Email != "" {
		args = append(args, common.EscapeLike(strings.TrimSpace(filter.Email)))
		where = append(where, fmt.Sprintf(`email ILIKE '%%' || $%d || '%%' ESCAPE '\'`, len(args)))
	}

	whereSQL := ""
	if len(where) > 0 {
		whereSQL = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`+whereSQL, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("db error: %w", err)
	}

	column, ok := sortColumns[filter.SortBy]
	if !ok {
		column = "created_at"
	}
	direction := "DESC"
	if filter.SortOrder == models.SortAsc {
		direction = "ASC"
	}

	args = append(args, page.Limit, page.Offset())
	query := fmt.Sprintf(`SELECT %s FROM users%s ORDER BY %s %s, id %s LIMIT $%d OFFSET $%d`,
		userColumns, whereSQL, column, direction, direction, len(args)-1, len(args))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	result := make([]models.User, 0, page.Limit)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("db error: %w", err)
		}
		result = append(result, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("db error: %w", err)
	}

	return result, total, nil
}
