package progress

import (
	"errors"
	"sync"

	"github.com/rs/zerolog/log"
)

var ErrHubClosed = errors.New("progress hub closed")

type subscription struct {
	mu     sync.Mutex
	ch     chan Event
	filter string
	closed bool
}

// offer queues ev without blocking. It reports false when the buffer is full,
// in which case the subscription is closed and must be detached.
func (s *subscription) offer(ev Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return true
	}
	select {
	case s.ch <- ev:
		return true
	default:
		s.closed = true
		close(s.ch)
		return false
	}
}

func (s *subscription) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}

// Hub broadcasts events to subscribers. Emit never waits on a subscriber: a
// subscriber whose buffer is full is dropped and its channel closed, so one
// stalled reader cannot hold up transfers or other subscribers. While a
// subscriber keeps up it sees one transfer's events in emission order.
type Hub struct {
	mu     sync.RWMutex
	subs   map[*subscription]struct{}
	closed bool
}

func NewHub() *Hub {
	return &Hub{subs: make(map[*subscription]struct{})}
}

// Subscribe registers a listener. An empty filter receives every event,
// otherwise only events whose id equals filter. The channel is closed when
// the listener is detached, falls behind by more than buffer events, or the
// hub closes. The returned func detaches the listener.
func (h *Hub) Subscribe(filter string, buffer int) (<-chan Event, func()) {
	if buffer < 1 {
		buffer = 1
	}
	sub := &subscription{
		ch:     make(chan Event, buffer),
		filter: filter,
	}
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		sub.close()
		return sub.ch, func() {}
	}
	h.subs[sub] = struct{}{}
	h.mu.Unlock()

	return sub.ch, func() { h.detach(sub) }
}

func (h *Hub) detach(sub *subscription) {
	sub.close()
	h.mu.Lock()
	delete(h.subs, sub)
	h.mu.Unlock()
}

func (h *Hub) Emit(event string, p Progress) error {
	h.mu.RLock()
	if h.closed {
		h.mu.RUnlock()
		return ErrHubClosed
	}
	targets := make([]*subscription, 0, len(h.subs))
	for sub := range h.subs {
		if sub.filter == "" || sub.filter == event {
			targets = append(targets, sub)
		}
	}
	h.mu.RUnlock()

	ev := Event{ID: event, Progress: p}
	for _, sub := range targets {
		if !sub.offer(ev) {
			log.Warn().Str("op", "progress/hub").Str("event", event).Msg("dropping subscriber that fell behind")
			h.detach(sub)
		}
	}
	return nil
}

func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Close detaches every subscriber; later emissions return ErrHubClosed.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for sub := range h.subs {
		sub.close()
		delete(h.subs, sub)
	}
}
