package http

import "github.com/gofiber/fiber/v2"

func (s *Server) listAuditLogs(c *fiber.Ctx) error {
	q := newAuditListQuery(c)
	if err := validate(q); err != nil {
		return err
	}

	page, err := s.recorder.ListAuditLogs(c.UserContext(), q.filter())
	if err != nil {
		return err
	}
	return respond(c, fiber.StatusOK, "Audit logs retrieved successfully", page)
}

func (s *Server) getAuditLog(c *fiber.Ctx) error {
	entry, err := s.recorder.GetAuditLog(c.UserContext(), c.Params("id"))
	if err != nil {
		return notFound(err, "Audit log not found")
	}
	return respond(c, fiber.StatusOK, "Audit log retrieved successfully", entry)
}
