package http

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/dmitrijs2005/gatekeeper/internal/common"
	"github.com/dmitrijs2005/gatekeeper/internal/server/auth"
	"github.com/dmitrijs2005/gatekeeper/internal/server/models"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"
)

const (
	localIdentity  = "identity"
	localRequestID = "requestid"

	redacted = "[REDACTED]"
)

var sensitiveFields = map[string]struct{}{
	"password":        {},
	"currentPassword": {},
	"newPassword":     {},
	"refreshToken":    {},
}

var (
	errMissingHeader = fiber.NewError(fiber.StatusUnauthorized, "Authorization header is missing")
	errBadScheme     = fiber.NewError(fiber.StatusUnauthorized, "Invalid authorization format")
	errBadToken      = fiber.NewError(fiber.StatusUnauthorized, "Invalid or expired token")
)

// identityFrom returns the identity attached by authenticate, or nil.
func identityFrom(c *fiber.Ctx) *auth.Identity {
	id, _ := c.Locals(localIdentity).(*auth.Identity)
	return id
}

// bearer extracts and verifies the access token of the request.
func (s *Server) bearer(c *fiber.Ctx) (*auth.Identity, error) {
	header := c.Get(fiber.HeaderAuthorization)
	if header == "" {
		return nil, errMissingHeader
	}

	scheme, token, ok := strings.Cut(header, " ")
	if !ok || scheme != "Bearer" || token == "" || strings.Contains(token, " ") {
		return nil, errBadScheme
	}

	claims, ok := s.tokens.VerifyAccess(token)
	if !ok {
		return nil, errBadToken
	}
	return claims.Identity(), nil
}

// authenticate requires a valid access token and attaches its identity.
func (s *Server) authenticate(c *fiber.Ctx) error {
	id, err := s.bearer(c)
	if err != nil {
		return err
	}
	c.Locals(localIdentity, id)
	return c.Next()
}

// requireRoles lets the request through only for identities holding one
// of roles.
func (s *Server) requireRoles(roles auth.RoleSet) fiber.Handler {
	return func(c *fiber.Ctx) error {
		d := s.guard.Authorize(c.UserContext(), identityFrom(c), roles,
			"endpoint", c.OriginalURL(), "method", c.Method())
		switch d.Reason {
		case auth.ReasonUnauthenticated:
			return fiber.NewError(fiber.StatusUnauthorized, "Authentication required")
		case auth.ReasonForbidden:
			return fiber.NewError(fiber.StatusForbidden, "You do not have permission to access this resource")
		}
		return c.Next()
	}
}

// audit wraps the whole chain. It snapshots the request before handlers
// run, settles the response status (running the error handler itself when
// the chain failed), then logs the access line and schedules one audit
// entry unless the path is excluded.
func (s *Server) audit(c *fiber.Ctx) error {
	start := time.Now()
	path := utils.CopyString(c.Path())
	method := utils.CopyString(c.Method())

	var body json.RawMessage
	if method != fiber.MethodGet {
		body = snapshotBody(c.Body())
	}

	if err := c.Next(); err != nil {
		if herr := c.App().ErrorHandler(c, err); herr != nil {
			_ = c.SendStatus(fiber.StatusInternalServerError)
		}
	}
	status := c.Response().StatusCode()

	ctx := c.UserContext()
	args := []any{"method", method, "path", path, "status", status, "latency", time.Since(start).String()}
	if rid, ok := c.Locals(localRequestID).(string); ok {
		args = append(args, "request_id", rid)
	}
	s.logger.Info(ctx, "request", args...)

	if !s.policy.Records(path) {
		return nil
	}

	entry := models.AuditLog{
		Endpoint:       utils.CopyString(c.OriginalURL()),
		Method:         method,
		RequestBody:    body,
		ResponseStatus: status,
		IPAddress:      common.StringPtr(utils.CopyString(c.IP())),
		UserAgent:      common.StringPtr(utils.CopyString(c.Get(fiber.HeaderUserAgent))),
	}
	if id := identityFrom(c); id != nil {
		userID := id.UserID
		entry.UserID = &userID
	}
	s.recorder.Capture(ctx, entry)
	return nil
}

// snapshotBody copies raw into a JSON document with sensitive fields
// masked. Empty bodies yield nil; bodies that are not JSON are stored as a
// JSON string.
func snapshotBody(raw []byte) json.RawMessage {
	if len(raw) == 0 {
		return nil
	}

	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		out, _ := json.Marshal(string(raw))
		return out
	}

	out, err := json.Marshal(redact(doc))
	if err != nil {
		return nil
	}
	return out
}

func redact(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, val := range t {
			if _, ok := sensitiveFields[k]; ok {
				t[k] = redacted
				continue
			}
			t[k] = redact(val)
		}
		return t
	case []any:
		for i := range t {
			t[i] = redact(t[i])
		}
		return t
	default:
		return v
	}
}
