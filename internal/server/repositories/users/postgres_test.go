package users

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/gatekeeper/internal/common"
	"github.com/dmitrijs2005/gatekeeper/internal/server/models"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testID = "5b0e8a58-3d0c-4c44-9a3e-0f2a8c1e7d11"

var columns = []string{"id", "email", "name", "password_hash", "role", "refresh_token", "deleted", "deleted_at", "created_at", "updated_at"}

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return NewPostgresRepository(db), mock, db
}

func userRow(id, email string, deleted bool) *sqlmock.Rows {
	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	var deletedAt any
	if deleted {
		deletedAt = now
	}
	return sqlmock.NewRows(columns).
		AddRow(id, email, "Alice", "$2a$10$hash", "USER", "", deleted, deletedAt, now, now)
}

func TestCreate_Success(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `(?s)^INSERT\s+INTO\s+users\s*\(id,\s*email,\s*name,\s*password_hash,\s*role\)\s*VALUES\s*\(\$1,\s*\$2,\s*\$3,\s*\$4,\s*\$5\)\s*RETURNING\s+id,`

	mock.ExpectQuery(q).
		WithArgs(sqlmock.AnyArg(), "alice@example.com", "Alice", "$2a$10$hash", "USER").
		WillReturnRows(userRow(testID, "alice@example.com", false))

	got, err := repo.Create(context.Background(), &models.User{Email: "  Alice@Example.com ", Name: "Alice", PasswordHash: "$2a$10$hash"})
	require.NoError(t, err)
	assert.Equal(t, testID, got.ID)
	assert.Equal(t, models.RoleUser, got.Role)
	assert.Nil(t, got.DeletedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreate_UniqueViolation(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`(?s)^INSERT\s+INTO\s+users`).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "users_email_active_uniq"})

	_, err := repo.Create(context.Background(), &models.User{Email: "a@b.c", Name: "A", PasswordHash: "h"})
	assert.ErrorIs(t, err, common.ErrorAlreadyExists)
}

func TestCreate_DBError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`(?s)^INSERT\s+INTO\s+users`).WillReturnError(errors.New("db down"))

	_, err := repo.Create(context.Background(), &models.User{Email: "a@b.c"})
	if err == nil || !regexp.MustCompile(`db error: .*db down`).MatchString(err.Error()) {
		t.Fatalf("expected wrapped db error, got %v", err)
	}
}

func TestFindByEmail(t *testing.T) {
	q := `(?s)^SELECT\s+id,.*FROM\s+users\s+WHERE\s+lower\(email\)\s*=\s*\$1\s+AND\s+\(\$2\s+OR\s+NOT\s+deleted\)\s+ORDER\s+BY\s+deleted\s+ASC,\s*created_at\s+DESC\s+LIMIT\s+1$`

	t.Run("found", func(t *testing.T) {
		repo, mock, db := newRepoWithMock(t)
		defer db.Close()

		mock.ExpectQuery(q).WithArgs("alice@example.com", false).
			WillReturnRows(userRow(testID, "alice@example.com", false))

		got, err := repo.FindByEmail(context.Background(), "ALICE@example.com", false)
		require.NoError(t, err)
		assert.Equal(t, "alice@example.com", got.Email)
	})

	t.Run("deleted visible with flag", func(t *testing.T) {
		repo, mock, db := newRepoWithMock(t)
		defer db.Close()

		mock.ExpectQuery(q).WithArgs("alice@example.com", true).
			WillReturnRows(userRow(testID, "alice@example.com", true))

		got, err := repo.FindByEmail(context.Background(), "alice@example.com", true)
		require.NoError(t, err)
		assert.True(t, got.Deleted)
		require.NotNil(t, got.DeletedAt)
	})

	t.Run("not found", func(t *testing.T) {
		repo, mock, db := newRepoWithMock(t)
		defer db.Close()

		mock.ExpectQuery(q).WithArgs("ghost@example.com", false).WillReturnError(sql.ErrNoRows)

		_, err := repo.FindByEmail(context.Background(), "ghost@example.com", false)
		assert.ErrorIs(t, err, common.ErrorNotFound)
	})
}

func TestFindByID(t *testing.T) {
	q := `(?s)^SELECT\s+id,.*FROM\s+users\s+WHERE\s+id\s*=\s*\$1\s+AND\s+\(\$2\s+OR\s+NOT\s+deleted\)$`

	t.Run("found", func(t *testing.T) {
		repo, mock, db := newRepoWithMock(t)
		defer db.Close()

		mock.ExpectQuery(q).WithArgs(testID, false).WillReturnRows(userRow(testID, "a@b.c", false))

		got, err := repo.FindByID(context.Background(), testID, false)
		require.NoError(t, err)
		assert.Equal(t, testID, got.ID)
	})

	t.Run("malformed id never hits the db", func(t *testing.T) {
		repo, mock, db := newRepoWithMock(t)
		defer db.Close()

		_, err := repo.FindByID(context.Background(), "not-a-uuid", false)
		assert.ErrorIs(t, err, common.ErrorNotFound)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("db error", func(t *testing.T) {
		repo, mock, db := newRepoWithMock(t)
		defer db.Close()

		mock.ExpectQuery(q).WithArgs(testID, true).WillReturnError(errors.New("db err"))

		_, err := repo.FindByID(context.Background(), testID, true)
		if err == nil || !regexp.MustCompile(`db error: .*db err`).MatchString(err.Error()) {
			t.Fatalf("expected wrapped db error, got %v", err)
		}
	})
}

func TestUpdateProfile(t *testing.T) {
	t.Run("name and role", func(t *testing.T) {
		repo, mock, db := newRepoWithMock(t)
		defer db.Close()

		q := `(?s)^UPDATE\s+users\s+SET\s+name\s*=\s*\$1,\s*role\s*=\s*\$2,\s*updated_at\s*=\s*now\(\)\s+WHERE\s+id\s*=\s*\$3\s+AND\s+NOT\s+deleted\s+RETURNING\s+id,`
		mock.ExpectQuery(q).WithArgs("Bob", "ADMIN", testID).WillReturnRows(userRow(testID, "a@b.c", false))

		name := "Bob"
		role := models.RoleAdmin
		_, err := repo.UpdateProfile(context.Background(), testID, models.ProfileUpdate{Name: &name, Role: &role})
		require.NoError(t, err)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("hidden user", func(t *testing.T) {
		repo, mock, db := newRepoWithMock(t)
		defer db.Close()

		mock.ExpectQuery(`(?s)^UPDATE\s+users\s+SET\s+name`).WillReturnError(sql.ErrNoRows)

		name := "Bob"
		_, err := repo.UpdateProfile(context.Background(), testID, models.ProfileUpdate{Name: &name})
		assert.ErrorIs(t, err, common.ErrorNotFound)
	})

	t.Run("empty update reads the user", func(t *testing.T) {
		repo, mock, db := newRepoWithMock(t)
		defer db.Close()

		mock.ExpectQuery(`(?s)^SELECT\s+id,`).WithArgs(testID, false).WillReturnRows(userRow(testID, "a@b.c", false))

		_, err := repo.UpdateProfile(context.Background(), testID, models.ProfileUpdate{})
		require.NoError(t, err)
	})
}

func TestUpdatePassword(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `(?s)^UPDATE\s+users\s+SET\s+password_hash\s*=\s*\$2,\s*updated_at\s*=\s*now\(\)\s+WHERE\s+id\s*=\s*\$1\s+AND\s+NOT\s+deleted$`
	mock.ExpectExec(q).WithArgs(testID, "newhash").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q).WithArgs(testID, "newhash").WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.UpdatePassword(context.Background(), testID, "newhash"))
	assert.ErrorIs(t, repo.UpdatePassword(context.Background(), testID, "newhash"), common.ErrorNotFound)
}

func TestSetRefreshToken(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `(?s)^UPDATE\s+users\s+SET\s+refresh_token\s*=\s*\$2\s+WHERE\s+id\s*=\s*\$1$`
	mock.ExpectExec(q).WithArgs(testID, "tok").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q).WithArgs(testID, "").WillReturnError(errors.New("db err"))

	require.NoError(t, repo.SetRefreshToken(context.Background(), testID, "tok"))

	err := repo.SetRefreshToken(context.Background(), testID, "")
	if err == nil || !regexp.MustCompile(`db error: .*db err`).MatchString(err.Error()) {
		t.Fatalf("expected wrapped db error, got %v", err)
	}
}

func TestSwapRefreshToken(t *testing.T) {
	q := `(?s)^UPDATE\s+users\s+SET\s+refresh_token\s*=\s*\$3\s+WHERE\s+id\s*=\s*\$1\s+AND\s+refresh_token\s*=\s*\$2\s+AND\s+NOT\s+deleted$`

	t.Run("winner and loser", func(t *testing.T) {
		repo, mock, db := newRepoWithMock(t)
		defer db.Close()

		mock.ExpectExec(q).WithArgs(testID, "old", "new1").WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(q).WithArgs(testID, "old", "new2").WillReturnResult(sqlmock.NewResult(0, 0))

		ok, err := repo.SwapRefreshToken(context.Background(), testID, "old", "new1")
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = repo.SwapRefreshToken(context.Background(), testID, "old", "new2")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("empty expected never swaps", func(t *testing.T) {
		repo, mock, db := newRepoWithMock(t)
		defer db.Close()

		ok, err := repo.SwapRefreshToken(context.Background(), testID, "", "new")
		require.NoError(t, err)
		assert.False(t, ok)
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestSoftDelete(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `(?s)^UPDATE\s+users\s+SET\s+deleted\s*=\s*TRUE,\s*deleted_at\s*=\s*now\(\),\s*refresh_token\s*=\s*'',\s*updated_at\s*=\s*now\(\)\s+WHERE\s+id\s*=\s*\$1\s+AND\s+NOT\s+deleted$`
	mock.ExpectExec(q).WithArgs(testID).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q).WithArgs(testID).WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.SoftDelete(context.Background(), testID))
	assert.ErrorIs(t, repo.SoftDelete(context.Background(), testID), common.ErrorNotFound)
}

func TestHardDelete(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `(?s)^DELETE\s+FROM\s+users\s+WHERE\s+id\s*=\s*\$1$`
	mock.ExpectExec(q).WithArgs(testID).WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.HardDelete(context.Background(), testID))
	assert.ErrorIs(t, repo.HardDelete(context.Background(), "nope"), common.ErrorNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestList_Defaults(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`(?s)^SELECT\s+COUNT\(\*\)\s+FROM\s+users\s+WHERE\s+NOT\s+deleted$`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(25))
	mock.ExpectQuery(`(?s)^SELECT\s+id,.*FROM\s+users\s+WHERE\s+NOT\s+deleted\s+ORDER\s+BY\s+created_at\s+DESC,\s*id\s+DESC\s+LIMIT\s+\$1\s+OFFSET\s+\$2$`).
		WithArgs(10, 10).
		WillReturnRows(userRow(testID, "a@b.c", false))

	got, total, err := repo.List(context.Background(), models.UserFilter{Page: models.Page{Page: 2}})
	require.NoError(t, err)
	assert.Equal(t, 25, total)
	assert.Len(t, got, 1)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestList_FiltersAndSort(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	where := `WHERE\s+role\s*=\s*\$1\s+AND\s+email\s+ILIKE\s+'%'\s*\|\|\s*\$2\s*\|\|\s*'%'\s+ESCAPE\s+'\\'`
	mock.ExpectQuery(`(?s)^SELECT\s+COUNT\(\*\)\s+FROM\s+users\s+` + where + `$`).
		WithArgs("ADMIN", `a\_b`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery(`(?s)^SELECT\s+id,.*FROM\s+users\s+` + where + `\s+ORDER\s+BY\s+email\s+ASC,\s*id\s+ASC\s+LIMIT\s+\$3\s+OFFSET\s+\$4$`).
		WithArgs("ADMIN", `a\_b`, 100, 0).
		WillReturnRows(userRow(testID, "a_b@c.d", false))

	role := models.RoleAdmin
	_, total, err := repo.List(context.Background(), models.UserFilter{
		Page:           models.Page{Page: 1, Limit: 1000},
		Role:           &role,
		Email:          "a_b",
		SortBy:         "email",
		SortOrder:      models.SortAsc,
		IncludeDeleted: true,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestList_UnknownSortFallsBack(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`(?s)^SELECT\s+COUNT`).WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectQuery(`(?s)ORDER\s+BY\s+created_at\s+DESC`).WillReturnRows(sqlmock.NewRows(columns))

	got, _, err := repo.List(context.Background(), models.UserFilter{SortBy: "password_hash; DROP TABLE users"})
	require.NoError(t, err)
	assert.Empty(t, got)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestList_CountError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`(?s)^SELECT\s+COUNT`).WillReturnError(errors.New("db err"))

	_, _, err := repo.List(context.Background(), models.UserFilter{})
	if err == nil || !regexp.MustCompile(`db error: .*db err`).MatchString(err.Error()) {
		t.Fatalf("expected wrapped db error, got %v", err)
	}
}
