package api

import (
	"net/url"

	"github.com/gofiber/fiber/v2"
)

func (s *Server) handleGetContacts(c *fiber.Ctx) error {
	id, err := paramID(c)
	if err != nil {
		return s.respondError(c, err)
	}
	list, err := s.services.Chat.Contacts(c.Context(), id)
	if err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"success":  true,
		"numero":   list.Account,
		"contacts": list.Contacts,
		"source":   list.Source,
	})
}

func (s *Server) handleGetMessages(c *fiber.Ctx) error {
	id, err := paramID(c)
	if err != nil {
		return s.respondError(c, err)
	}
	jid, err := url.PathUnescape(c.Params("jid"))
	if err != nil || jid == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "error": "Contato inválido"})
	}

	list, err := s.services.Chat.Messages(c.Context(), id, jid, c.QueryInt("limit", 0))
	if err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"success":    true,
		"numero":     list.Account,
		"remote_jid": list.RemoteJID,
		"messages":   list.Messages,
		"source":     list.Source,
	})
}
