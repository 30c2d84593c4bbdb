package http

import (
	"github.com/dmitrijs2005/gatekeeper/internal/server/models"
	"github.com/dmitrijs2005/gatekeeper/internal/server/services"
	"github.com/gofiber/fiber/v2"
)

// register is public. Asking for the ADMIN role additionally needs an
// admin's bearer token.
func (s *Server) register(c *fiber.Ctx) error {
	var req registerRequest
	if err := decodeBody(c, &req); err != nil {
		return err
	}

	role := models.Role(req.Role)
	if role == models.RoleAdmin {
		caller, err := s.bearer(c)
		if err != nil || caller.Role != models.RoleAdmin {
			return fiber.NewError(fiber.StatusForbidden, "Only administrators can register admin users")
		}
		c.Locals(localIdentity, caller)
	}

	res, err := s.auth.Register(c.UserContext(), services.RegisterInput{
		Email:    req.Email,
		Name:     req.Name,
		Password: req.Password,
		Role:     role,
	})
	if err != nil {
		return err
	}
	return respond(c, fiber.StatusCreated, "User registered successfully", res)
}

func (s *Server) login(c *fiber.Ctx) error {
	var req loginRequest
	if err := decodeBody(c, &req); err != nil {
		return err
	}

	res, err := s.auth.Login(c.UserContext(), req.Email, req.Password)
	if err != nil {
		return err
	}
	return respond(c, fiber.StatusOK, "Login successful", res)
}

func (s *Server) refresh(c *fiber.Ctx) error {
	var req refreshRequest
	if err := decodeBody(c, &req); err != nil {
		return err
	}

	res, err := s.auth.Refresh(c.UserContext(), req.RefreshToken)
	if err != nil {
		return err
	}
	return respond(c, fiber.StatusOK, "Token refreshed successfully", res.TokenPair)
}

func (s *Server) logout(c *fiber.Ctx) error {
	if err := s.auth.Logout(c.UserContext(), identityFrom(c).UserID); err != nil {
		return err
	}
	return respond(c, fiber.StatusOK, "Logout successful", nil)
}

func (s *Server) me(c *fiber.Ctx) error {
	user, err := s.auth.Me(c.UserContext(), identityFrom(c).UserID)
	if err != nil {
		return notFound(err, "User not found")
	}
	return respond(c, fiber.StatusOK, "Current user retrieved", user.Summary())
}
