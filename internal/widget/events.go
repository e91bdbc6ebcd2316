package widget

import (
	"sync"

	"nesturechat/internal/models"
)

type EventType string

const (
	EventMessage        EventType = "message"
	EventMessageUpdated EventType = "message_updated"
	EventState          EventType = "state"
	EventTyping         EventType = "typing"
	EventNotification   EventType = "notification"
	EventCleared        EventType = "cleared"
)

type Notification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// Event is pushed to subscribers whenever visible state changes.
type Event struct {
	Type         EventType       `json:"type"`
	Message      *models.Message `json:"message,omitempty"`
	Notification *Notification   `json:"notification,omitempty"`
	State        *State          `json:"state,omitempty"`
	Typing       bool            `json:"typing,omitempty"`
}

// State is the small view-level part of a snapshot.
type State struct {
	View      View `json:"view"`
	Unread    int  `json:"unread"`
	Typing    bool `json:"typing"`
	Listening bool `json:"listening"`
}

const subscriberBuffer = 32

type hub struct {
	mu     sync.Mutex
	next   int
	subs   map[int]chan Event
	closed bool
}

func newHub() *hub {
	return &hub{subs: make(map[int]chan Event)}
}

func (h *hub) subscribe() (<-chan Event, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	ch := make(chan Event, subscriberBuffer)
	if h.closed {
		close(ch)
		return ch, func() {}
	}
	h.next++
	id := h.next
	h.subs[id] = ch
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if sub, ok := h.subs[id]; ok {
				delete(h.subs, id)
				close(sub)
			}
		})
	}
}

// publish never blocks; a subscriber that falls behind misses events and
// should resynchronise from a snapshot.
func (h *hub) publish(ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

func (h *hub) close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for id, ch := range h.subs {
		close(ch)
		delete(h.subs, id)
	}
}
