// Package http exposes the user management API over fiber.
package http

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrijs2005/gatekeeper/internal/logging"
	"github.com/dmitrijs2005/gatekeeper/internal/server/auth"
	"github.com/dmitrijs2005/gatekeeper/internal/server/services"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
)

// Pinger checks that the database answers.
type Pinger func(ctx context.Context) error

// Options configures the HTTP server. A nil AuditExclude means the docs
// prefix; the health route is excluded in every case.
type Options struct {
	Address         string
	APIPrefix       string
	Environment     string
	AuditExclude    []string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

type Deps struct {
	Auth   *services.AuthService
	Users  *services.UserService
	Audit  *services.AuditService
	Tokens *auth.TokenManager
	Guard  *auth.Guard
	Ping   Pinger
	Logger logging.Logger
}

type Server struct {
	app      *fiber.App
	opts     Options
	auth     *services.AuthService
	users    *services.UserService
	recorder *services.AuditService
	tokens   *auth.TokenManager
	guard    *auth.Guard
	policy   services.AuditPolicy
	ping     Pinger
	logger   logging.Logger
	started  time.Time
}

func NewServer(o Options, d Deps) *Server {
	logger := d.Logger
	if logger == nil {
		logger = logging.NopLogger{}
	}
	if o.ShutdownTimeout <= 0 {
		o.ShutdownTimeout = 10 * time.Second
	}
	// health is never audited, whatever the configured list says
	exclude := o.AuditExclude
	if exclude == nil {
		exclude = []string{o.APIPrefix + "/docs"}
	}
	exclude = append([]string{o.APIPrefix + "/health"}, exclude...)

	ping := d.Ping
	if ping == nil {
		ping = func(context.Context) error { return nil }
	}

	s := &Server{
		opts:     o,
		auth:     d.Auth,
		users:    d.Users,
		recorder: d.Audit,
		tokens:   d.Tokens,
		guard:    d.Guard,
		policy:   services.AuditPolicy{Exclude: exclude},
		ping:     ping,
		logger:   logger.With("module", "http_server"),
		started:  time.Now(),
	}

	s.app = fiber.New(fiber.Config{
		AppName:               "gatekeeper",
		DisableStartupMessage: true,
		ReadTimeout:           o.ReadTimeout,
		WriteTimeout:          o.WriteTimeout,
		ErrorHandler:          errorHandler(s.logger),
	})
	s.routes()
	return s
}

// App returns the underlying fiber app.
func (s *Server) App() *fiber.App {
	return s.app
}

func (s *Server) routes() {
	s.app.Use(s.audit)
	s.app.Use(recover.New())
	s.app.Use(requestid.New())
	s.app.Use(helmet.New())
	s.app.Use(cors.New())

	api := s.app.Group(s.opts.APIPrefix)

	authn := api.Group("/auth")
	authn.Post("/register", s.register)
	authn.Post("/login", s.login)
	authn.Post("/refresh", s.refresh)
	authn.Post("/logout", s.authenticate, s.requireRoles(auth.AnyUser), s.logout)
	authn.Get("/me", s.authenticate, s.requireRoles(auth.AnyUser), s.me)

	admin := s.requireRoles(auth.AdminOnly)
	anyUser := s.requireRoles(auth.AnyUser)

	users := api.Group("/users", s.authenticate)
	users.Post("/", admin, s.createUser)
	users.Get("/", admin, s.listUsers)
	users.Get("/:id", anyUser, s.getUser)
	users.Put("/:id", anyUser, s.updateUser)
	users.Patch("/:id/change-password", anyUser, s.changePassword)
	users.Delete("/:id", admin, s.deleteUser)
	users.Delete("/:id/permanent", admin, s.hardDeleteUser)

	logs := api.Group("/audit-logs", s.authenticate, admin)
	logs.Get("/", s.listAuditLogs)
	logs.Get("/:id", s.getAuditLog)

	api.Get("/health", s.health)

	s.app.Use(func(c *fiber.Ctx) error {
		s.logger.Warn(c.UserContext(), "route not found", "method", c.Method(), "url", c.OriginalURL())
		return fiber.NewError(fiber.StatusNotFound, fmt.Sprintf("Route %s %s not found", c.Method(), c.OriginalURL()))
	})
}

// Run serves until ctx is cancelled, then shuts down gracefully within
// ShutdownTimeout.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info(ctx, "Starting HTTP server", "address", s.opts.Address)
		errCh <- s.app.Listen(s.opts.Address)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info(ctx, "Stopping HTTP server...")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.ShutdownTimeout)
	defer cancel()
	return s.app.ShutdownWithContext(shutdownCtx)
}
