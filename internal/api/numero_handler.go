package api

import (
	"github.com/gofiber/fiber/v2"

	"github.com/viniciusxv27/enviomkt/internal/service"
)

// --- Numero (sending account) Handlers ---

func (s *Server) handleListNumeros(c *fiber.Ctx) error {
	accounts, err := s.services.Account.List(c.Context())
	if err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(fiber.Map{"success": true, "numeros": accounts})
}

func (s *Server) handleCreateNumero(c *fiber.Ctx) error {
	var req service.AccountInput
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "error": "Requisição inválida"})
	}
	account, err := s.services.Account.Create(c.Context(), req)
	if err != nil {
		return s.respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true, "numero": account})
}

func (s *Server) handleGetNumero(c *fiber.Ctx) error {
	id, err := paramID(c)
	if err != nil {
		return s.respondError(c, err)
	}
	account, err := s.services.Account.Get(c.Context(), id)
	if err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(fiber.Map{"success": true, "numero": account})
}

func (s *Server) handleUpdateNumero(c *fiber.Ctx) error {
	id, err := paramID(c)
	if err != nil {
		return s.respondError(c, err)
	}
	var req service.AccountInput
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "error": "Requisição inválida"})
	}
	account, err := s.services.Account.Update(c.Context(), id, req)
	if err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(fiber.Map{"success": true, "numero": account})
}

func (s *Server) handleDeleteNumero(c *fiber.Ctx) error {
	id, err := paramID(c)
	if err != nil {
		return s.respondError(c, err)
	}
	if err := s.services.Account.Delete(c.Context(), id, c.QueryBool("delete_instance", false)); err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(fiber.Map{"success": true})
}

func (s *Server) handleNumeroStatus(c *fiber.Ctx) error {
	id, err := paramID(c)
	if err != nil {
		return s.respondError(c, err)
	}
	account, status, err := s.services.Account.Status(c.Context(), id)
	if err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"success":   true,
		"id":        account.ID,
		"instancia": account.Instancia,
		"status":    status.Status,
		"connected": status.Connected,
		"qr_code":   status.QRCode,
	})
}

func (s *Server) handleRestartNumero(c *fiber.Ctx) error {
	id, err := paramID(c)
	if err != nil {
		return s.respondError(c, err)
	}
	if err := s.services.Account.Restart(c.Context(), id); err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(fiber.Map{"success": true})
}

func (s *Server) handleLogoutNumero(c *fiber.Ctx) error {
	id, err := paramID(c)
	if err != nil {
		return s.respondError(c, err)
	}
	if err := s.services.Account.Logout(c.Context(), id); err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(fiber.Map{"success": true})
}
