package progress

import (
	"sync"

	"github.com/google/uuid"
)

// Event is one progress update for a story. Fraction is 0..1 and never moves
// backward for a given story.
type Event struct {
	StoryID  uuid.UUID `json:"story_id"`
	Phase    string    `json:"phase"`
	Fraction float64   `json:"fraction"`
	Message  string    `json:"message,omitempty"`
}

// Hub fans progress events out to per-story subscribers. Slow subscribers
// drop events rather than block the publisher.
type Hub struct {
	mu          sync.Mutex
	subscribers map[uuid.UUID]map[chan Event]struct{}
	highWater   map[uuid.UUID]float64
}

func NewHub() *Hub {
	return &Hub{
		subscribers: make(map[uuid.UUID]map[chan Event]struct{}),
		highWater:   make(map[uuid.UUID]float64),
	}
}

// Subscribe registers for a story's events. The returned cancel func must be
// called when the subscriber goes away.
func (h *Hub) Subscribe(storyID uuid.UUID) (<-chan Event, func()) {
	ch := make(chan Event, 16)

	h.mu.Lock()
	if h.subscribers[storyID] == nil {
		h.subscribers[storyID] = make(map[chan Event]struct{})
	}
	h.subscribers[storyID][ch] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		if subs, ok := h.subscribers[storyID]; ok {
			delete(subs, ch)
			if len(subs) == 0 {
				delete(h.subscribers, storyID)
			}
		}
		h.mu.Unlock()
	}

	return ch, cancel
}

// Publish sends an event to the story's subscribers. The fraction is clamped
// so it never regresses below the story's high-water mark even when phases
// report out of order. Delivery happens under the lock so concurrent
// publishers cannot interleave a lower fraction after a higher one; the sends
// never block, so holding the lock is safe.
func (h *Hub) Publish(event Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if event.Fraction < 0 {
		event.Fraction = 0
	}
	if event.Fraction > 1 {
		event.Fraction = 1
	}
	if event.Fraction < h.highWater[event.StoryID] {
		event.Fraction = h.highWater[event.StoryID]
	} else {
		h.highWater[event.StoryID] = event.Fraction
	}

	for ch := range h.subscribers[event.StoryID] {
		select {
		case ch <- event:
		default:
			// subscriber is backed up, drop the event
		}
	}
}

// Forget clears a story's high-water mark once it reaches a terminal state.
func (h *Hub) Forget(storyID uuid.UUID) {
	h.mu.Lock()
	delete(h.highWater, storyID)
	h.mu.Unlock()
}
