package api

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/viniciusxv27/enviomkt/internal/service"
	"github.com/viniciusxv27/enviomkt/internal/ws"
	"github.com/viniciusxv27/enviomkt/pkg/log"
)

// --- Auth Handlers ---

func (s *Server) handleLogin(c *fiber.Ctx) error {
	var req struct {
		Username string `json:"username" form:"username"`
		Password string `json:"password" form:"password"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "error": "Requisição inválida"})
	}

	token, err := s.services.Auth.Login(req.Username, req.Password)
	if err != nil {
		log.Print(c).Warn("login rejected")
		return s.respondError(c, err)
	}

	c.Cookie(&fiber.Cookie{
		Name:     authCookie,
		Value:    token,
		Expires:  time.Now().Add(24 * 7 * time.Hour),
		HTTPOnly: true,
		Secure:   s.cfg.IsProduction(),
		SameSite: "Lax",
	})

	return c.JSON(fiber.Map{
		"success":  true,
		"token":    token,
		"username": req.Username,
	})
}

func (s *Server) handleLogout(c *fiber.Ctx) error {
	c.Cookie(&fiber.Cookie{
		Name:    authCookie,
		Value:   "",
		Expires: time.Now().Add(-time.Hour),
	})
	return c.JSON(fiber.Map{"success": true})
}

func (s *Server) handleGetMe(c *fiber.Ctx) error {
	claims := c.Locals("claims").(*service.JWTClaims)
	return c.JSON(fiber.Map{
		"success":  true,
		"username": claims.Username,
	})
}

// --- WebSocket Handler ---

func (s *Server) handleWebSocket(c *websocket.Conn) {
	if s.hub == nil {
		c.Close()
		return
	}
	claims := c.Locals("claims").(*service.JWTClaims)

	client := ws.NewClient(s.hub, c, claims.Username)
	s.hub.Register(client)

	go client.WritePump()
	client.ReadPump()
}
