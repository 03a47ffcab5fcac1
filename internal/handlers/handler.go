package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/latestcomment/round-feedback/internal/logger"
	"github.com/latestcomment/round-feedback/internal/models"
	"github.com/latestcomment/round-feedback/internal/services"
)

type Handler struct {
	Rounds   *services.RoundService
	Sessions *services.SupervisorSessions
	now      func() time.Time
}

func NewHandler(rounds *services.RoundService, sessions *services.SupervisorSessions) *Handler {
	return &Handler{Rounds: rounds, Sessions: sessions, now: time.Now}
}

func (h *Handler) LoginPage(c *fiber.Ctx) error {
	if h.Sessions.Authorized(c) {
		return c.Redirect("/admin/panel")
	}
	return c.Render("login", fiber.Map{})
}

func (h *Handler) Login(c *fiber.Ctx) error {
	err := h.Sessions.Login(c, c.FormValue("password"))
	if errors.Is(err, services.ErrWrongPassword) {
		slog.WarnContext(c.UserContext(), "supervisor login rejected", "remote", c.IP())
		return c.Render("login", fiber.Map{
			"Error": "Falsches Passwort.",
		})
	}
	if err != nil {
		return err
	}

	slog.InfoContext(c.UserContext(), "supervisor logged in", "remote", c.IP())
	return c.Redirect("/admin/panel")
}

func (h *Handler) Logout(c *fiber.Ctx) error {
	if err := h.Sessions.Logout(c); err != nil {
		return err
	}
	return c.Redirect("/admin")
}

func (h *Handler) Panel(c *fiber.Ctx) error {
	if !h.Sessions.Authorized(c) {
		return c.Redirect("/admin")
	}
	return c.Render("panel", fiber.Map{})
}

// PendingRounds answers an empty list to unauthorized callers so the queue's
// existence is not disclosed.
func (h *Handler) PendingRounds(c *fiber.Ctx) error {
	if !h.Sessions.Authorized(c) {
		return c.Status(fiber.StatusUnauthorized).JSON([]models.PendingItem{})
	}
	return c.JSON(models.NewPendingItems(h.Rounds.Pending(), h.now()))
}

func (h *Handler) ChooseOption(c *fiber.Ctx) error {
	if !h.Sessions.Authorized(c) {
		return c.Status(fiber.StatusUnauthorized).JSON(models.ErrorResponse{Error: "unauth"})
	}

	var req models.ChooseRequest
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(models.ErrorResponse{Error: "bad request"})
	}

	key := models.RoundKey{Participant: req.Participant, Round: int(req.Round)}
	ctx := logger.WithLogFields(c.UserContext(), logger.LogFields{Component: "admin.choose"})

	_, err := h.Rounds.Resolve(ctx, key, int(req.Option))
	switch {
	case errors.Is(err, services.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(models.ErrorResponse{Error: "not_found"})
	case errors.Is(err, services.ErrBadOption):
		return c.Status(fiber.StatusBadRequest).JSON(models.ErrorResponse{Error: "bad_option"})
	case err != nil:
		return err
	}
	return c.JSON(fiber.Map{"ok": true})
}
