package http

import (
	"errors"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/dmitrijs2005/gatekeeper/internal/server/models"
	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/gofiber/fiber/v2"
)

const (
	msgEmail         = "Please provide a valid email address"
	msgNameLength    = "Name must be between 2 and 100 characters long"
	msgRole          = "Role must be either ADMIN or USER"
	msgPage          = "Page must be a positive integer"
	msgLimit         = "Limit must be a positive integer between 1 and 100"
	msgSortOrder     = "Sort order must be either asc or desc"
	msgPasswordRules = "must contain at least one uppercase letter, one lowercase letter, and one number"
)

var roles = []interface{}{string(models.RoleAdmin), string(models.RoleUser)}

// decodeBody parses a JSON body into v and validates it. An empty body
// decodes to the zero value, so required-field rules report it.
func decodeBody(c *fiber.Ctx, v validation.Validatable) error {
	if len(c.Body()) > 0 {
		if err := c.BodyParser(v); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
		}
	}
	return validate(v)
}

// validate runs v's rules and turns field failures into a ValidationError.
func validate(v validation.Validatable) error {
	err := v.Validate()
	if err == nil {
		return nil
	}

	var errs validation.Errors
	if !errors.As(err, &errs) {
		return err
	}

	fields := make([]FieldError, 0, len(errs))
	for field, fieldErr := range errs {
		fields = append(fields, FieldError{Field: field, Message: fieldErr.Error()})
	}
	sort.Slice(fields, func(i, j int) bool { return fields[i].Field < fields[j].Field })
	return &ValidationError{Fields: fields}
}

// strongPassword requires an upper-case letter, a lower-case letter and a digit.
func strongPassword(message string) validation.Rule {
	return validation.By(func(value interface{}) error {
		s, _ := value.(string)
		if s == "" {
			return nil
		}
		var upper, lower, digit bool
		for _, r := range s {
			switch {
			case unicode.IsUpper(r):
				upper = true
			case unicode.IsLower(r):
				lower = true
			case unicode.IsDigit(r):
				digit = true
			}
		}
		if !upper || !lower || !digit {
			return errors.New(message)
		}
		return nil
	})
}

// intBetween accepts an empty string or an integer in [min, max]; max 0
// means unbounded.
func intBetween(min, max int, message string) validation.Rule {
	return validation.By(func(value interface{}) error {
		s, _ := value.(string)
		if s == "" {
			return nil
		}
		n, err := strconv.Atoi(s)
		if err != nil || n < min || (max > 0 && n > max) {
			return errors.New(message)
		}
		return nil
	})
}

func isoDate(message string) validation.Rule {
	return validation.By(func(value interface{}) error {
		s, _ := value.(string)
		if s == "" {
			return nil
		}
		if _, ok := parseTime(s); !ok {
			return errors.New(message)
		}
		return nil
	})
}

func parseTime(s string) (time.Time, bool) {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// passwordRules are the rules for a new password; label names the field
// in messages.
// normalizeRole upper-cases a role name; unknown names are left for
// validation.In to reject.
func normalizeRole(s string) string {
	r, _ := models.ParseRole(s)
	return string(r)
}

func passwordRules(label string) []validation.Rule {
	return []validation.Rule{
		validation.Required.Error(label + " is required"),
		validation.RuneLength(8, 0).Error(label + " must be at least 8 characters long"),
		strongPassword(label + " " + msgPasswordRules),
	}
}

type registerRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

func (r *registerRequest) Validate() error {
	r.Name = strings.TrimSpace(r.Name)
	r.Role = normalizeRole(r.Role)
	return validation.ValidateStruct(r,
		validation.Field(&r.Email, validation.Required.Error(msgEmail), is.Email.Error(msgEmail)),
		validation.Field(&r.Name, validation.Required.Error("Name is required"), validation.RuneLength(2, 100).Error(msgNameLength)),
		validation.Field(&r.Password, passwordRules("Password")...),
		validation.Field(&r.Role, validation.In(roles...).Error(msgRole)),
	)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (r *loginRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Email, validation.Required.Error(msgEmail), is.Email.Error(msgEmail)),
		validation.Field(&r.Password, validation.Required.Error("Password is required")),
	)
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

func (r *refreshRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.RefreshToken, validation.Required.Error("Refresh token is required")),
	)
}

type updateUserRequest struct {
	Name *string `json:"name"`
	Role *string `json:"role"`
}

func (r *updateUserRequest) Validate() error {
	if r.Name != nil {
		name := strings.TrimSpace(*r.Name)
		r.Name = &name
	}
	if r.Role != nil {
		role := normalizeRole(*r.Role)
		r.Role = &role
	}
	return validation.ValidateStruct(r,
		validation.Field(&r.Name, validation.NilOrNotEmpty.Error("Name cannot be empty if provided"), validation.RuneLength(2, 100).Error(msgNameLength)),
		validation.Field(&r.Role, validation.In(roles...).Error(msgRole)),
	)
}

func (r *updateUserRequest) update() models.ProfileUpdate {
	var u models.ProfileUpdate
	u.Name = r.Name
	if r.Role != nil {
		role := models.Role(*r.Role)
		u.Role = &role
	}
	return u
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

func (r *changePasswordRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.CurrentPassword, validation.Required.Error("Current password is required")),
		validation.Field(&r.NewPassword, passwordRules("New password")...),
	)
}

type userListQuery struct {
	Page           string `json:"page"`
	Limit          string `json:"limit"`
	Role           string `json:"role"`
	Email          string `json:"email"`
	SortBy         string `json:"sortBy"`
	SortOrder      string `json:"sortOrder"`
	IncludeDeleted string `json:"includeDeleted"`
}

func newUserListQuery(c *fiber.Ctx) *userListQuery {
	return &userListQuery{
		Page:           c.Query("page"),
		Limit:          c.Query("limit"),
		Role:           normalizeRole(c.Query("role")),
		Email:          c.Query("email"),
		SortBy:         c.Query("sortBy"),
		SortOrder:      strings.ToLower(c.Query("sortOrder")),
		IncludeDeleted: c.Query("includeDeleted"),
	}
}

func (q *userListQuery) Validate() error {
	return validation.ValidateStruct(q,
		validation.Field(&q.Page, intBetween(1, 0, msgPage)),
		validation.Field(&q.Limit, intBetween(1, models.MaxPageLimit, msgLimit)),
		validation.Field(&q.Role, validation.In(roles...).Error(msgRole)),
		validation.Field(&q.SortBy, validation.In("name", "email", "role", "createdAt").Error("Sort by must be one of: name, email, role, createdAt")),
		validation.Field(&q.SortOrder, validation.In("asc", "desc").Error(msgSortOrder)),
	)
}

func (q *userListQuery) filter() models.UserFilter {
	f := models.UserFilter{
		Email:          q.Email,
		SortBy:         q.SortBy,
		SortOrder:      models.SortOrder(q.SortOrder),
		IncludeDeleted: q.IncludeDeleted == "true",
	}
	f.Page.Page, _ = strconv.Atoi(q.Page)
	f.Page.Limit, _ = strconv.Atoi(q.Limit)
	if q.Role != "" {
		role := models.Role(q.Role)
		f.Role = &role
	}
	return f
}

type auditListQuery struct {
	Page           string `json:"page"`
	Limit          string `json:"limit"`
	UserID         string `json:"userId"`
	Endpoint       string `json:"endpoint"`
	Method         string `json:"method"`
	ResponseStatus string `json:"responseStatus"`
	StartDate      string `json:"startDate"`
	EndDate        string `json:"endDate"`
	SortBy         string `json:"sortBy"`
	SortOrder      string `json:"sortOrder"`
}

func newAuditListQuery(c *fiber.Ctx) *auditListQuery {
	return &auditListQuery{
		Page:           c.Query("page"),
		Limit:          c.Query("limit"),
		UserID:         c.Query("userId"),
		Endpoint:       c.Query("endpoint"),
		Method:         strings.ToUpper(c.Query("method")),
		ResponseStatus: c.Query("responseStatus"),
		StartDate:      c.Query("startDate"),
		EndDate:        c.Query("endDate"),
		SortBy:         c.Query("sortBy"),
		SortOrder:      strings.ToLower(c.Query("sortOrder")),
	}
}

func (q *auditListQuery) Validate() error {
	return validation.ValidateStruct(q,
		validation.Field(&q.Page, intBetween(1, 0, msgPage)),
		validation.Field(&q.Limit, intBetween(1, models.MaxPageLimit, msgLimit)),
		validation.Field(&q.UserID, is.UUID.Error("User ID must be a valid UUID")),
		validation.Field(&q.Method, validation.In("GET", "POST", "PUT", "PATCH", "DELETE").Error("Method must be a valid HTTP method")),
		validation.Field(&q.ResponseStatus, intBetween(0, 0, "Response status must be an integer")),
		validation.Field(&q.StartDate, isoDate("Start date must be a valid ISO 8601 date")),
		validation.Field(&q.EndDate, isoDate("End date must be a valid ISO 8601 date")),
		validation.Field(&q.SortBy, validation.In("timestamp", "endpoint", "method", "responseStatus").Error("Invalid sort field")),
		validation.Field(&q.SortOrder, validation.In("asc", "desc").Error(msgSortOrder)),
	)
}

func (q *auditListQuery) filter() models.AuditLogFilter {
	f := models.AuditLogFilter{
		UserID:    q.UserID,
		Endpoint:  q.Endpoint,
		Method:    q.Method,
		SortBy:    q.SortBy,
		SortOrder: models.SortOrder(q.SortOrder),
	}
	f.Page.Page, _ = strconv.Atoi(q.Page)
	f.Page.Limit, _ = strconv.Atoi(q.Limit)
	f.ResponseStatus, _ = strconv.Atoi(q.ResponseStatus)
	if t, ok := parseTime(q.StartDate); ok {
		f.StartDate = &t
	}
	if t, ok := parseTime(q.EndDate); ok {
		f.EndDate = &t
	}
	return f
}
