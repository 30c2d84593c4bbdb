package http

import (
	"github.com/dmitrijs2005/gatekeeper/internal/server/models"
	"github.com/dmitrijs2005/gatekeeper/internal/server/services"
	"github.com/gofiber/fiber/v2"
)

const msgUserNotFound = "User not found"

func (s *Server) createUser(c *fiber.Ctx) error {
	var req registerRequest
	if err := decodeBody(c, &req); err != nil {
		return err
	}

	user, err := s.users.CreateUser(c.UserContext(), services.CreateUserInput{
		Email:    req.Email,
		Name:     req.Name,
		Password: req.Password,
		Role:     models.Role(req.Role),
	})
	if err != nil {
		return err
	}
	return respond(c, fiber.StatusCreated, "User created successfully", user.Public())
}

func (s *Server) listUsers(c *fiber.Ctx) error {
	q := newUserListQuery(c)
	if err := validate(q); err != nil {
		return err
	}

	page, err := s.users.ListUsers(c.UserContext(), q.filter())
	if err != nil {
		return err
	}
	return respond(c, fiber.StatusOK, "Users retrieved successfully", page)
}

func (s *Server) getUser(c *fiber.Ctx) error {
	user, err := s.users.GetUser(c.UserContext(), c.Params("id"))
	if err != nil {
		return notFound(err, msgUserNotFound)
	}
	return respond(c, fiber.StatusOK, "User retrieved successfully", user.Public())
}

func (s *Server) updateUser(c *fiber.Ctx) error {
	var req updateUserRequest
	if err := decodeBody(c, &req); err != nil {
		return err
	}

	user, err := s.users.UpdateUser(c.UserContext(), identityFrom(c), c.Params("id"), req.update())
	if err != nil {
		return forbidden(notFound(err, msgUserNotFound), "You are not authorized to update this user")
	}
	return respond(c, fiber.StatusOK, "User updated successfully", user.Public())
}

func (s *Server) changePassword(c *fiber.Ctx) error {
	var req changePasswordRequest
	if err := decodeBody(c, &req); err != nil {
		return err
	}

	err := s.users.ChangePassword(c.UserContext(), identityFrom(c), c.Params("id"), req.CurrentPassword, req.NewPassword)
	if err != nil {
		return forbidden(notFound(err, msgUserNotFound), "You are not authorized to change this user's password")
	}
	return respond(c, fiber.StatusOK, "Password changed successfully", nil)
}

func (s *Server) deleteUser(c *fiber.Ctx) error {
	if err := s.users.SoftDeleteUser(c.UserContext(), c.Params("id")); err != nil {
		return notFound(err, msgUserNotFound)
	}
	return respond(c, fiber.StatusOK, "User deleted successfully", nil)
}

func (s *Server) hardDeleteUser(c *fiber.Ctx) error {
	if err := s.users.HardDeleteUser(c.UserContext(), c.Params("id")); err != nil {
		return notFound(err, msgUserNotFound)
	}
	return respond(c, fiber.StatusOK, "User permanently deleted", nil)
}
