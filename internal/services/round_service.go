package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/latestcomment/round-feedback/internal/catalog"
	"github.com/latestcomment/round-feedback/internal/logger"
	"github.com/latestcomment/round-feedback/internal/models"
)

var (
	ErrInvalidSubmission = errors.New("invalid submission")
	ErrNotFound          = errors.New("not found")
	ErrBadOption         = errors.New("bad option")
)

// OptionChooser picks an automated feedback option for the given answers.
type OptionChooser interface {
	ChooseOption(ctx context.Context, text string) int
}

// Notifier is told after every store mutation.
type Notifier interface {
	Notify()
}

type Submission struct {
	Participant string
	Round       int
	Channel     models.Channel
	Answers     string
}

func (s Submission) validate() error {
	switch {
	case s.Participant == "":
		return fmt.Errorf("%w: participant is required", ErrInvalidSubmission)
	case s.Round <= 0:
		return fmt.Errorf("%w: round must be positive", ErrInvalidSubmission)
	case !s.Channel.Valid():
		return fmt.Errorf("%w: unknown channel %q", ErrInvalidSubmission, s.Channel)
	}
	return nil
}

type RoundService struct {
	store    *models.RoundStore
	catalog  catalog.Catalog
	chooser  OptionChooser
	notifier Notifier
	now      func() time.Time
}

// NewRoundService wires the round store to the classifier and catalog.
// notifier may be nil.
func NewRoundService(store *models.RoundStore, cat catalog.Catalog, chooser OptionChooser, notifier Notifier) *RoundService {
	return &RoundService{
		store:    store,
		catalog:  cat,
		chooser:  chooser,
		notifier: notifier,
		now:      time.Now,
	}
}

// Submit records a participant's round and resolves the automated and none
// channels immediately. Human rounds are stored as pending. An existing
// record for the same key is replaced.
func (s *RoundService) Submit(ctx context.Context, sub Submission) (models.Record, error) {
	if err := sub.validate(); err != nil {
		return models.Record{}, err
	}

	now := s.now()
	rec := models.Record{
		Key:         models.RoundKey{Participant: sub.Participant, Round: sub.Round},
		Source:      sub.Channel,
		Answers:     sub.Answers,
		SubmittedAt: now,
		UpdatedAt:   now,
	}

	switch sub.Channel {
	case models.ChannelNone:
		rec.Status = models.StatusNone
	case models.ChannelHuman:
		rec.Status = models.StatusPending
	case models.ChannelAutomated:
		opt := s.chooser.ChooseOption(ctx, sub.Answers)
		text, err := s.catalog.Text(models.ChannelAutomated, opt)
		if err != nil {
			return models.Record{}, fmt.Errorf("automated feedback: %w", err)
		}
		rec.Status = models.StatusReady
		rec.Option = opt
		rec.Feedback = text
	}

	s.store.Put(rec)
	s.notify()

	slog.InfoContext(ctx, "round submitted",
		"source", sub.Channel.Source(),
		"status", rec.Status,
		"option", rec.Option)

	return rec, nil
}

// Status looks up the record for key.
func (s *RoundService) Status(key models.RoundKey) (models.Record, bool) {
	return s.store.Get(key)
}

// Pending lists human rounds awaiting a supervisor decision.
func (s *RoundService) Pending() []models.Record {
	return s.store.Pending()
}

// Resolve sets the human feedback for a supervised round. Calling it again
// overwrites the earlier choice.
func (s *RoundService) Resolve(ctx context.Context, key models.RoundKey, option int) (models.Record, error) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		Participant: logger.Ptr(key.Participant),
		Round:       logger.Ptr(key.Round),
	})

	rec, err := s.store.Update(key, func(rec *models.Record) error {
		if rec.Source != models.ChannelHuman {
			return fmt.Errorf("%w: round is not supervised", ErrNotFound)
		}
		text, err := s.catalog.Text(models.ChannelHuman, option)
		if err != nil {
			return fmt.Errorf("%w: %d", ErrBadOption, option)
		}
		rec.Status = models.StatusReady
		rec.Option = option
		rec.Feedback = text
		rec.UpdatedAt = s.now()
		return nil
	})
	if errors.Is(err, models.ErrRecordNotFound) {
		return models.Record{}, fmt.Errorf("%w: %s/%d", ErrNotFound, key.Participant, key.Round)
	}
	if err != nil {
		return models.Record{}, err
	}

	s.notify()
	slog.InfoContext(ctx, "round resolved by supervisor", "option", option)
	return rec, nil
}

func (s *RoundService) notify() {
	if s.notifier != nil {
		s.notifier.Notify()
	}
}
