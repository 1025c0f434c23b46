package api

import (
	"github.com/gofiber/fiber/v2"

	"github.com/viniciusxv27/enviomkt/internal/media"
)

// --- Debug Handlers ---

func (s *Server) handleDebugStatus(c *fiber.Ctx) error {
	report, err := s.services.Account.DebugStatus(c.Context(), c.Params("instance"))
	if err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(fiber.Map{"success": true, "debug": report})
}

func (s *Server) handleDebugQR(c *fiber.Ctx) error {
	instance := c.Params("instance")
	qr, err := s.services.Account.DebugQR(c.Context(), instance)
	if err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(fiber.Map{"success": true, "instance": instance, "qr_code": qr})
}

func (s *Server) handleDebugStorage(c *fiber.Ctx) error {
	if s.storage == nil {
		return s.respondError(c, media.ErrNoStorage)
	}
	diag := s.storage.Diagnostics(c.Context())
	if diag.Error != "" {
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"success": false, "error": diag.Error, "storage": diag})
	}
	return c.JSON(fiber.Map{"success": true, "storage": diag})
}
