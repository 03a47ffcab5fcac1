package models

import (
	"errors"
	"sort"
	"sync"
	"time"
)

// Channel is the feedback-delivery mode of a round.
type Channel string

const (
	ChannelAutomated Channel = "automated"
	ChannelHuman     Channel = "human"
	ChannelNone      Channel = "none"
)

// Wire tags used by the participant client for each channel.
const (
	SourceAI         = "ai"
	SourceSupervisor = "supervisor"
	SourceControl    = "control"
)

// ParseSource maps a wire source tag to its channel.
func ParseSource(tag string) (Channel, bool) {
	switch tag {
	case SourceAI:
		return ChannelAutomated, true
	case SourceSupervisor:
		return ChannelHuman, true
	case SourceControl:
		return ChannelNone, true
	}
	return "", false
}

func (c Channel) Valid() bool {
	switch c {
	case ChannelAutomated, ChannelHuman, ChannelNone:
		return true
	}
	return false
}

// Source returns the wire tag for the channel.
func (c Channel) Source() string {
	switch c {
	case ChannelAutomated:
		return SourceAI
	case ChannelHuman:
		return SourceSupervisor
	case ChannelNone:
		return SourceControl
	}
	return ""
}

type Status string

const (
	StatusNone    Status = "none"
	StatusPending Status = "pending"
	StatusReady   Status = "ready"
)

type RoundKey struct {
	Participant string
	Round       int
}

// Record is the stored state of one (participant, round) pair.
type Record struct {
	Key         RoundKey
	Source      Channel
	Answers     string
	Status      Status
	Feedback    string // empty unless Status is ready
	Option      int    // 1-based catalog index, 0 unless Status is ready
	SubmittedAt time.Time
	UpdatedAt   time.Time
}

var ErrRecordNotFound = errors.New("record not found")

// RoundStore holds every round record for the lifetime of the process.
type RoundStore struct {
	mu      sync.RWMutex
	records map[RoundKey]Record
}

func NewRoundStore() *RoundStore {
	return &RoundStore{records: make(map[RoundKey]Record)}
}

// Put stores rec under its key, replacing any previous record.
func (s *RoundStore) Put(rec Record) {
	s.mu.Lock()
	s.records[rec.Key] = rec
	s.mu.Unlock()
}

func (s *RoundStore) Get(key RoundKey) (Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[key]
	return rec, ok
}

// Update applies fn to a copy of the record stored under key and writes the
// copy back only when fn succeeds. The whole sequence runs under the store
// lock.
func (s *RoundStore) Update(key RoundKey, fn func(rec *Record) error) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[key]
	if !ok {
		return Record{}, ErrRecordNotFound
	}
	if err := fn(&rec); err != nil {
		return Record{}, err
	}
	s.records[key] = rec
	return rec, nil
}

// Pending returns human-channel records still awaiting a decision, ordered by
// participant and then round.
func (s *RoundStore) Pending() []Record {
	s.mu.RLock()
	out := make([]Record, 0)
	for _, rec := range s.records {
		if rec.Source == ChannelHuman && rec.Status == StatusPending {
			out = append(out, rec)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Key.Participant != out[j].Key.Participant {
			return out[i].Key.Participant < out[j].Key.Participant
		}
		return out[i].Key.Round < out[j].Key.Round
	})
	return out
}

func (s *RoundStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}
