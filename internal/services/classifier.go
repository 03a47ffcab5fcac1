package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"strconv"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/latestcomment/round-feedback/internal/catalog"
	"github.com/latestcomment/round-feedback/internal/config"
	"github.com/latestcomment/round-feedback/internal/logger"
)

var (
	ErrNotConfigured = errors.New("classifier not configured")
	ErrServiceCall   = errors.New("text generation call failed")
	ErrEmptyResponse = errors.New("empty response")
	ErrUnparseable   = errors.New("response is not a digit")
	ErrOutOfRange    = errors.New("option out of range")
)

const (
	systemPrompt = "Du bist ein sachliches Feedbacksystem. " +
		"Wähle GENAU EINE Zahl (1,2 oder 3) als beste Option – ohne weitere Worte."
	emptyContext = "(kein Kontext)"
)

// Completer sends one system/user exchange to a text-generation service and
// returns the raw reply.
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

type openAICompleter struct {
	client openai.Client
	model  string
}

// NewOpenAICompleter returns a Completer backed by the chat completions API.
// SDK retries are disabled: one attempt per call.
func NewOpenAICompleter(cfg config.ClassifierConfig) (Completer, error) {
	if cfg.APIKey == "" {
		return nil, ErrNotConfigured
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	model := cfg.Model
	if model == "" {
		model = "gpt-4o-mini"
	}

	return &openAICompleter{
		client: openai.NewClient(opts...),
		model:  model,
	}, nil
}

func (c *openAICompleter) Complete(ctx context.Context, system, user string) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model: c.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(user),
		},
		Temperature: openai.Float(0),
		MaxTokens:   openai.Int(3),
	}

	start := time.Now()
	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("openai chat: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("no choices in response")
	}

	slog.DebugContext(ctx, "classifier chat completed",
		"model", c.model,
		"duration_ms", time.Since(start).Milliseconds(),
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens)

	return resp.Choices[0].Message.Content, nil
}

// Classifier picks the automated feedback option that best fits a
// participant's answers.
type Classifier struct {
	completer Completer
	options   []string
	timeout   time.Duration
	intn      func(n int) int
}

// NewClassifier builds a Classifier over the given option wording. A nil
// completer leaves the classifier unconfigured, so every choice is random.
func NewClassifier(completer Completer, options []string, timeout time.Duration) *Classifier {
	return &Classifier{
		completer: completer,
		options:   options,
		timeout:   timeout,
		intn:      rand.Intn,
	}
}

// Attempt asks the text-generation service once and reports why no option
// could be taken from it.
func (c *Classifier) Attempt(ctx context.Context, text string) (int, error) {
	if c.completer == nil {
		return 0, ErrNotConfigured
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	raw, err := c.completer.Complete(ctx, systemPrompt, buildUserPrompt(c.options, text))
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrServiceCall, err)
	}
	return parseOption(raw)
}

// ChooseOption always returns an option in 1..catalog.Size. Every failure of
// Attempt falls back to a uniform random pick.
func (c *Classifier) ChooseOption(ctx context.Context, text string) int {
	ctx = logger.WithLogFields(ctx, logger.LogFields{Component: "classifier"})

	opt, err := c.Attempt(ctx, text)
	if err == nil {
		slog.DebugContext(ctx, "classifier chose option", "option", opt)
		return opt
	}

	opt = c.randomOption()
	switch {
	case errors.Is(err, ErrNotConfigured):
		slog.DebugContext(ctx, "classifier not configured, random option", "option", opt)
	case errors.Is(err, ErrServiceCall):
		slog.WarnContext(ctx, "classifier call failed, random option", "option", opt, "error", err)
	case errors.Is(err, ErrEmptyResponse), errors.Is(err, ErrUnparseable), errors.Is(err, ErrOutOfRange):
		slog.WarnContext(ctx, "classifier reply unusable, random option", "option", opt, "error", err)
	default:
		slog.WarnContext(ctx, "classifier failed, random option", "option", opt, "error", err)
	}
	return opt
}

func (c *Classifier) randomOption() int {
	return c.intn(catalog.Size) + 1
}

func buildUserPrompt(options []string, text string) string {
	if text == "" {
		text = emptyContext
	}

	var b strings.Builder
	b.WriteString("Du hast drei vorgegebene Feedback-Optionen:\n")
	for i, opt := range options {
		fmt.Fprintf(&b, "%d) %s\n", i+1, opt)
	}
	b.WriteString("\nKontext (Antworten/Leistungsauszug):\n")
	b.WriteString(text)
	b.WriteString("\n\nGib NUR die Ziffer der passenden Option zurück (1 oder 2 oder 3).")
	return b.String()
}

// parseOption reads the first character of the reply as the option number.
func parseOption(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, ErrEmptyResponse
	}
	n, err := strconv.Atoi(raw[:1])
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrUnparseable, logger.Truncate(raw, 20))
	}
	if !catalog.ValidOption(n) {
		return 0, fmt.Errorf("%w: %d", ErrOutOfRange, n)
	}
	return n, nil
}
