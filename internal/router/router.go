package router

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/template/html/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/latestcomment/round-feedback/internal/handlers"
	"github.com/latestcomment/round-feedback/static"
)

type Config struct {
	AllowedOrigin string
	AccessLog     bool
}

// New builds the Fiber app with every route of the service.
func New(cfg Config, h *handlers.Handler, ws *handlers.WebSocketHandler) *fiber.App {
	engine := html.NewFileSystem(http.FS(static.Views), ".html")
	app := fiber.New(fiber.Config{
		Views:                 engine,
		ErrorHandler:          errorHandler,
		DisableStartupMessage: true,
	})
	app.Use(recover.New())
	if cfg.AccessLog {
		app.Use(fiberlogger.New())
	}

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	api := app.Group("/api", cors.New(corsConfig(cfg.AllowedOrigin)))
	api.Post("/feedback", h.SubmitFeedback)
	api.Get("/feedback_status", h.FeedbackStatus)

	app.Get("/admin", h.LoginPage)
	app.Post("/admin", h.Login)
	app.Post("/admin/logout", h.Logout)
	app.Get("/admin/panel", h.Panel)
	app.Get("/admin/pending", h.PendingRounds)
	app.Post("/admin/choose", h.ChooseOption)
	app.Get("/admin/ws", ws.WebSocketMiddleware, websocket.New(ws.HandleWebSocket))

	return app
}

// Fiber refuses credentials together with a wildcard origin.
func corsConfig(origin string) cors.Config {
	return cors.Config{
		AllowOrigins:     origin,
		AllowMethods:     "GET,POST,OPTIONS",
		AllowHeaders:     "Content-Type",
		AllowCredentials: origin != "*",
	}
}

func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	}

	msg := err.Error()
	if code >= fiber.StatusInternalServerError {
		slog.ErrorContext(c.UserContext(), "request failed",
			"method", c.Method(),
			"path", c.Path(),
			"error", err)
		msg = "internal error"
	}
	return c.Status(code).JSON(fiber.Map{"error": msg})
}
