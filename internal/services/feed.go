package services

import (
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/latestcomment/round-feedback/internal/models"
)

// feedBuffer is how many queue snapshots may wait for a slow subscriber
// before it is dropped.
const feedBuffer = 8

var errSubscriberBehind = errors.New("subscriber fell behind")

// Subscriber receives pending-list snapshots. Subscribers that also implement
// io.Closer are closed when the feed drops them.
type Subscriber interface {
	WriteJSON(v any) error
}

// PendingLister is the read side of the round store used by the feed.
type PendingLister interface {
	Pending() []models.Record
}

type subscription struct {
	id     uuid.UUID
	sub    Subscriber
	frames chan []models.PendingItem
	done   chan struct{}
}

// PendingFeed pushes the supervisor queue to connected dashboards. Every
// subscriber has its own writer goroutine, so Notify never waits on a
// subscriber's connection.
type PendingFeed struct {
	source      PendingLister
	mu          sync.Mutex
	subscribers map[uuid.UUID]*subscription
	now         func() time.Time
}

func NewPendingFeed(source PendingLister) *PendingFeed {
	return &PendingFeed{
		source:      source,
		subscribers: make(map[uuid.UUID]*subscription),
		now:         time.Now,
	}
}

// Subscribe sends sub the current queue and registers it for updates.
func (f *PendingFeed) Subscribe(sub Subscriber) (uuid.UUID, error) {
	s := &subscription{
		id:     uuid.New(),
		sub:    sub,
		frames: make(chan []models.PendingItem, feedBuffer),
		done:   make(chan struct{}),
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if err := sub.WriteJSON(f.snapshot()); err != nil {
		return uuid.Nil, err
	}
	f.subscribers[s.id] = s
	go f.run(s)

	slog.Debug("dashboard subscribed", "subscriber", s.id, "subscribers", len(f.subscribers))
	return s.id, nil
}

func (f *PendingFeed) Unsubscribe(id uuid.UUID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.subscribers[id]; ok {
		delete(f.subscribers, id)
		close(s.done)
	}
}

// Notify queues the current list for every subscriber without blocking.
// A subscriber whose queue is full is dropped. Snapshots are taken under the
// feed lock so frames reach each subscriber in mutation order.
func (f *PendingFeed) Notify() {
	f.mu.Lock()
	defer f.mu.Unlock()
	snapshot := f.snapshot()
	for id, s := range f.subscribers {
		select {
		case s.frames <- snapshot:
		default:
			f.dropLocked(id, errSubscriberBehind)
		}
	}
}

func (f *PendingFeed) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subscribers)
}

func (f *PendingFeed) run(s *subscription) {
	defer func() {
		if c, ok := s.sub.(io.Closer); ok {
			_ = c.Close()
		}
	}()

	for {
		select {
		case <-s.done:
			return
		case frame := <-s.frames:
			if err := s.sub.WriteJSON(frame); err != nil {
				f.mu.Lock()
				f.dropLocked(s.id, err)
				f.mu.Unlock()
				return
			}
		}
	}
}

func (f *PendingFeed) dropLocked(id uuid.UUID, reason error) {
	s, ok := f.subscribers[id]
	if !ok {
		return
	}
	delete(f.subscribers, id)
	close(s.done)
	slog.Debug("dropping dashboard subscriber", "subscriber", id, "error", reason)
}

func (f *PendingFeed) snapshot() []models.PendingItem {
	return models.NewPendingItems(f.source.Pending(), f.now())
}
