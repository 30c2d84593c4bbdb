package auditlogs

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
)

const selectColumns = `a.id, a.user_id, u.name, u.email, a.endpoint, a.method, a.request_body,
		a.response_status, a.ip_address, a.user_agent, a."timestamp"`

var sortColumns = map[string]string{
	"timestamp":      `a."timestamp"`,
	"endpoint":       "a.endpoint",
	"method":         "a.method",
	"responseStatus": "a.response_status",
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

func scanEntry(row rowScanner) (*models.AuditLog, error) {
	e := &models.AuditLog{}
	var userID, userName, userEmail, ip, agent sql.NullString
	var body []byte

	err := row.Scan(&e.ID, &userID, &userName, &userEmail, &e.Endpoint, &e.Method, &body,
		&e.ResponseStatus, &ip, &agent, &e.Timestamp)
	if err != nil {
		return nil, err
	}

	e.UserID = nullable(userID)
	e.UserName = nullable(userName)
	e.UserEmail = nullable(userEmail)
	e.IPAddress = nullable(ip)
	e.UserAgent = nullable(agent)
	if len(body) > 0 {
		e.RequestBody = body
	}
	return e, nil
}

func nullable(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	return &s.String
}

// Create inserts entry, assigning an id and, when zero, the database
// timestamp.
func (r *PostgresRepository) Create(ctx context.Context, entry *models.AuditLog) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}

	var body any
	if len(entry.RequestBody) > 0 {
		body = []byte(entry.RequestBody)
	}
	var ts any
	if !entry.Timestamp.IsZero() {
		ts = entry.Timestamp
	}

	query :=
		`INSERT INTO audit_logs (id, user_id, endpoint, method, request_body, response_status, ip_address, user_agent, "timestamp")
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, COALESCE($9, now()))
		 RETURNING "timestamp"`

	err := r.db.QueryRowContext(ctx, query,
		entry.ID, entry.UserID, entry.Endpoint, entry.Method, body,
		entry.ResponseStatus, entry.IPAddress, entry.UserAgent, ts).Scan(&entry.Timestamp)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) FindByID(ctx context.Context, id string) (*models.AuditLog, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, common.ErrorNotFound
	}

	query :=
		`SELECT ` + selectColumns + `
		 FROM audit_logs a LEFT JOIN users u ON u.id = a.user_id
		 WHERE a.id = $1`

	e, err := scanEntry(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return e, nil
}

func (r *PostgresRepository) List(ctx context.Context, filter models.AuditLogFilter) ([]models.AuditLog, int, error) {
	page := filter.Page.Normalize()

	var where []string
	var args []any
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}

	if filter.UserID != "" {
		if _, err := uuid.Parse(filter.UserID); err != nil {
			return []models.AuditLog{}, 0, nil
		}
		add("a.user_id = $%d", filter.UserID)
	}
	if filter.Endpoint != "" {
		add(`a.endpoint ILIKE '%%' || $%d || '%%' ESCAPE '\'`, common.EscapeLike(filter.Endpoint))
	}
	if filter.Method != "" {
		add("a.method = $%d", strings.ToUpper(filter.Method))
	}
	if filter.ResponseStatus != 0 {
		add("a.response_status = $%d", filter.ResponseStatus)
	}
	if filter.StartDate != nil {
		add(`a."timestamp" >= $%d`, *filter.StartDate)
	}
	if filter.EndDate != nil {
		add(`a."timestamp" <= $%d`, *filter.EndDate)
	}

	whereSQL := ""
	if len(where) > 0 {
		whereSQL = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM audit_logs a`+whereSQL, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("db error: %w", err)
	}

	column, ok := sortColumns[filter.SortBy]
	if !ok {
		column = sortColumns["timestamp"]
	}
	direction := "DESC"
	if filter.SortOrder == models.SortAsc {
		direction = "ASC"
	}

	args = append(args, page.Limit, page.Offset())
	query := fmt.Sprintf(`SELECT %s FROM audit_logs a LEFT JOIN users u ON u.id = a.user_id%s ORDER BY %s %s, a.id %s LIMIT $%d OFFSET $%d`,
		selectColumns, whereSQL, column, direction, direction, len(args)-1, len(args))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	result := make([]models.AuditLog, 0, page.Limit)
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("db error: %w", err)
		}
		result = append(result, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("db error: %w", err)
	}

	return result, total, nil
}
