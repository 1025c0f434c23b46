package api

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"

	"github.com/viniciusxv27/enviomkt/internal/dispatch"
	"github.com/viniciusxv27/enviomkt/internal/domain"
	"github.com/viniciusxv27/enviomkt/internal/media"
	"github.com/viniciusxv27/enviomkt/internal/service"
	"github.com/viniciusxv27/enviomkt/internal/storage"
	"github.com/viniciusxv27/enviomkt/internal/ws"
	"github.com/viniciusxv27/enviomkt/pkg/config"
	"github.com/viniciusxv27/enviomkt/pkg/log"
)

const authCookie = "auth-token"

// StorageInspector reports on the video object store.
type StorageInspector interface {
	Diagnostics(ctx context.Context) storage.Diagnostics
}

// Pinger is a dependency checked by /health.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Server struct {
	app      *fiber.App
	cfg      *config.Config
	services *service.Services
	hub      *ws.Hub
	storage  StorageInspector
	checks   map[string]Pinger
}

// Options carries the optional collaborators of the server.
type Options struct {
	Hub     *ws.Hub
	Storage StorageInspector
	Checks  map[string]Pinger
}

func NewServer(cfg *config.Config, services *service.Services, opts Options) *Server {
	app := fiber.New(fiber.Config{
		AppName:               "enviomkt",
		BodyLimit:             160 * 1024 * 1024, // spreadsheet + image + a video just over the 100MB limit
		DisableStartupMessage: !cfg.IsDevelopment(),
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"success": false,
				"error":   err.Error(),
			})
		},
	})

	// Middleware
	app.Use(recover.New())
	app.Use(logger.New(logger.Config{
		Format:     "${time} | ${status} | ${latency} | ${method} ${path}\n",
		TimeFormat: "15:04:05",
	}))

	app.Use(helmet.New(helmet.Config{
		XSSProtection:             "1; mode=block",
		ContentTypeNosniff:        "nosniff",
		XFrameOptions:             "DENY",
		ReferrerPolicy:            "strict-origin-when-cross-origin",
		CrossOriginEmbedderPolicy: "require-corp",
		CrossOriginOpenerPolicy:   "same-origin",
		CrossOriginResourcePolicy: "same-origin",
		PermissionPolicy:          "geolocation=(), microphone=(), camera=()",
	}))

	// Rate Limiting - 500 requests per minute per IP
	app.Use(limiter.New(limiter.Config{
		Max:        500,
		Expiration: 1 * time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"success": false,
				"error":   "Muitas requisições, aguarde um momento",
			})
		},
		Next: func(c *fiber.Ctx) bool {
			return strings.HasPrefix(c.Path(), "/ws")
		},
	}))

	corsOrigins := "http://localhost:3000"
	if len(cfg.CORSOrigins) > 0 {
		corsOrigins = strings.Join(cfg.CORSOrigins, ",")
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:     corsOrigins,
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders:     "Origin,Content-Type,Accept,Authorization,Upgrade,Connection",
		AllowCredentials: true,
	}))

	server := &Server{
		app:      app,
		cfg:      cfg,
		services: services,
		hub:      opts.Hub,
		storage:  opts.Storage,
		checks:   opts.Checks,
	}

	server.setupRoutes()
	return server
}

// App exposes the fiber app, mainly for app.Test in tests.
func (s *Server) App() *fiber.App {
	return s.app
}

func (s *Server) setupRoutes() {
	s.app.Get("/health", s.handleHealth)

	api := s.app.Group("/api")

	// Auth routes (no auth required)
	api.Post("/auth/login", s.handleLogin)

	// Protected routes
	protected := api.Group("", s.authMiddleware)
	protected.Get("/me", s.handleGetMe)
	protected.Post("/auth/logout", s.handleLogout)

	protected.Post("/dispatch", s.handleDispatch)

	numeros := protected.Group("/numeros")
	numeros.Get("/", s.handleListNumeros)
	numeros.Post("/", s.handleCreateNumero)
	numeros.Get("/:id", s.handleGetNumero)
	numeros.Put("/:id", s.handleUpdateNumero)
	numeros.Delete("/:id", s.handleDeleteNumero)
	numeros.Get("/:id/status", s.handleNumeroStatus)
	numeros.Post("/:id/restart", s.handleRestartNumero)
	numeros.Post("/:id/logout", s.handleLogoutNumero)

	chats := protected.Group("/chats")
	chats.Get("/:id/contacts", s.handleGetContacts)
	chats.Get("/:id/messages/:jid", s.handleGetMessages)

	debug := protected.Group("/debug")
	debug.Get("/status/:instance", s.handleDebugStatus)
	debug.Get("/qr/:instance", s.handleDebugQR)
	debug.Get("/storage", s.handleDebugStorage)

	// WebSocket route
	s.app.Use("/ws", s.wsUpgrade)
	s.app.Get("/ws", websocket.New(s.handleWebSocket))
}

// Auth middleware
func (s *Server) authMiddleware(c *fiber.Ctx) error {
	authHeader := c.Get("Authorization")
	if authHeader == "" {
		// Try cookie
		authHeader = c.Cookies(authCookie)
	}

	token := strings.TrimPrefix(authHeader, "Bearer ")
	if token == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"success": false,
			"error":   "Não autenticado",
		})
	}

	claims, err := s.services.Auth.ValidateToken(token)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"success": false,
			"error":   "Sessão inválida",
		})
	}

	c.Locals("claims", claims)
	return c.Next()
}

// WebSocket upgrade middleware
func (s *Server) wsUpgrade(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		token := c.Query("token")
		if token == "" {
			token = c.Cookies(authCookie)
		}
		if token == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"success": false, "error": "Não autenticado"})
		}

		claims, err := s.services.Auth.ValidateToken(token)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"success": false, "error": "Sessão inválida"})
		}

		c.Locals("claims", claims)
		return c.Next()
	}
	return fiber.ErrUpgradeRequired
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	status := "ok"
	checks := fiber.Map{}
	for name, p := range s.checks {
		if err := p.Ping(ctx); err != nil {
			checks[name] = err.Error()
			status = "degraded"
			continue
		}
		checks[name] = "ok"
	}
	return c.JSON(fiber.Map{
		"status": status,
		"time":   time.Now(),
		"checks": checks,
	})
}

// respondError maps service errors onto the JSON error envelope.
func (s *Server) respondError(c *fiber.Ctx, err error) error {
	var validation *domain.ValidationError
	var upstream *domain.UpstreamError

	code := fiber.StatusInternalServerError
	message := "Erro interno"
	switch {
	case errors.As(err, &validation):
		code, message = fiber.StatusBadRequest, validation.Message
	case errors.Is(err, service.ErrInvalidCredentials):
		code, message = fiber.StatusUnauthorized, err.Error()
	case errors.Is(err, service.ErrNotFound), errors.Is(err, service.ErrQRUnavailable):
		code, message = fiber.StatusNotFound, err.Error()
	case errors.Is(err, media.ErrNoStorage), errors.Is(err, service.ErrWebhookUnset):
		code, message = fiber.StatusServiceUnavailable, err.Error()
	case errors.Is(err, dispatch.ErrTimeout):
		code, message = fiber.StatusGatewayTimeout, dispatch.ErrTimeout.Error()
	case errors.Is(err, dispatch.ErrTransport), errors.Is(err, service.ErrGateway):
		code, message = fiber.StatusBadGateway, err.Error()
	case errors.As(err, &upstream):
		code, message = fiber.StatusBadGateway, upstream.Message
	}

	if code >= fiber.StatusInternalServerError {
		log.Print(c).Errorf("request failed: %v", err)
	}
	return c.Status(code).JSON(fiber.Map{"success": false, "error": message})
}

func paramID(c *fiber.Ctx) (int64, error) {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return 0, domain.NewValidationError("ID inválido")
	}
	return int64(id), nil
}

func (s *Server) Listen(addr string) error {
	return s.app.Listen(addr)
}

func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}
