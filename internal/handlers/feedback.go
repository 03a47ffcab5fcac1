package handlers

import (
	"encoding/json"
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/latestcomment/round-feedback/internal/logger"
	"github.com/latestcomment/round-feedback/internal/models"
	"github.com/latestcomment/round-feedback/internal/services"
)

// SubmitFeedback decodes the body as JSON whatever the Content-Type, since
// survey tools often post text/plain to avoid a CORS preflight.
func (h *Handler) SubmitFeedback(c *fiber.Ctx) error {
	var req models.FeedbackRequest
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(models.ErrorResponse{Error: "bad request"})
	}

	channel, _ := models.ParseSource(req.Source)
	ctx := logger.WithLogFields(c.UserContext(), logger.LogFields{
		Participant: logger.Ptr(req.Participant),
		Round:       logger.Ptr(int(req.Round)),
		Component:   "feedback.submit",
	})

	rec, err := h.Rounds.Submit(ctx, services.Submission{
		Participant: req.Participant,
		Round:       int(req.Round),
		Channel:     channel,
		Answers:     string(req.Answers),
	})
	if errors.Is(err, services.ErrInvalidSubmission) {
		return c.Status(fiber.StatusBadRequest).JSON(models.ErrorResponse{Error: "bad request"})
	}
	if err != nil {
		return err
	}

	switch rec.Status {
	case models.StatusReady:
		return c.JSON(fiber.Map{"feedback": rec.Feedback, "option": rec.Option})
	case models.StatusPending:
		return c.JSON(fiber.Map{"feedback": nil, "status": string(models.StatusPending)})
	default:
		return c.JSON(fiber.Map{"feedback": ""})
	}
}

func (h *Handler) FeedbackStatus(c *fiber.Ctx) error {
	key := models.RoundKey{
		Participant: c.Query("participant"),
		Round:       c.QueryInt("round", 0),
	}

	rec, ok := h.Rounds.Status(key)
	if !ok {
		return c.JSON(fiber.Map{"status": "not_found"})
	}

	switch rec.Status {
	case models.StatusReady:
		return c.JSON(fiber.Map{"status": string(models.StatusReady), "feedback": rec.Feedback})
	case models.StatusNone:
		return c.JSON(fiber.Map{"status": string(models.StatusNone), "feedback": ""})
	default:
		return c.JSON(fiber.Map{"status": string(models.StatusPending), "feedback": nil})
	}
}
