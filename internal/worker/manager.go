package worker

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"nesturechat/internal/widget"
)

const DefaultIdleTimeout = 30 * time.Minute

var ErrStopped = errors.New("manager stopped")

// Session is one mounted widget together with the relays the page completes.
type Session struct {
	VisitorID  string
	Controller *widget.Controller
	Speech     *widget.SpeechRelay
	Notifier   *widget.NotificationRelay

	mu       sync.Mutex
	lastUsed time.Time
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastUsed = now
	s.mu.Unlock()
}

func (s *Session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastUsed
}

type Options struct {
	// Base is copied for every visitor; VisitorID, Speech, Notifier and
	// OnPersist are filled in per session.
	Base                 widget.Options
	SpeechEnabled        bool
	NotificationsEnabled bool
	IdleTimeout          time.Duration
	// Invalidator is optional; without it instances do not hear about each other.
	Invalidator *Invalidator
	Now         func() time.Time
}

// Manager mounts one controller per visitor on first use and tears idle ones down.
type Manager struct {
	opts       Options
	instanceID string

	mu       sync.Mutex
	sessions map[string]*Session
	stopped  bool
}

func NewManager(opts Options) *Manager {
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = DefaultIdleTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Manager{
		opts:       opts,
		instanceID: uuid.NewString(),
		sessions:   make(map[string]*Session),
	}
}

// Start begins listening for invalidations from other instances.
func (m *Manager) Start(ctx context.Context) {
	if m.opts.Invalidator == nil {
		return
	}
	m.opts.Invalidator.startListener(ctx, m.handleInvalidation)
}

// Acquire returns the visitor's mounted session, mounting it if needed.
func (m *Manager) Acquire(ctx context.Context, visitorID string) (*Session, error) {
	if visitorID == "" {
		return nil, errors.New("visitor id required")
	}
	now := m.opts.Now()
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return nil, ErrStopped
	}
	if s, ok := m.sessions[visitorID]; ok {
		m.mu.Unlock()
		s.touch(now)
		return s, nil
	}
	m.mu.Unlock()

	// mount outside the lock; the store read may be slow
	s := m.mount(ctx, visitorID)
	s.touch(now)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped {
		s.Controller.Unmount()
		return nil, ErrStopped
	}
	if existing, ok := m.sessions[visitorID]; ok {
		s.Controller.Unmount()
		existing.touch(now)
		return existing, nil
	}
	m.sessions[visitorID] = s
	debugLog("worker: mounted widget for visitor %s", visitorID)
	return s, nil
}

func (m *Manager) mount(ctx context.Context, visitorID string) *Session {
	opts := m.opts.Base
	opts.VisitorID = visitorID
	s := &Session{VisitorID: visitorID}
	if m.opts.SpeechEnabled {
		s.Speech = widget.NewSpeechRelay()
		opts.Speech = s.Speech
	}
	if m.opts.NotificationsEnabled {
		s.Notifier = widget.NewNotificationRelay()
		opts.Notifier = s.Notifier
	}
	base := m.opts.Base.OnPersist
	opts.OnPersist = func(key string) {
		if base != nil {
			base(key)
		}
		m.persisted(visitorID, key)
	}
	s.Controller = widget.New(ctx, opts)
	return s
}

// Lookup returns the session if it is currently mounted.
func (m *Manager) Lookup(visitorID string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[visitorID]
	return s, ok
}

// Release unmounts the visitor's widget. Persisted state is untouched.
func (m *Manager) Release(visitorID string) {
	m.mu.Lock()
	s, ok := m.sessions[visitorID]
	if ok {
		delete(m.sessions, visitorID)
	}
	m.mu.Unlock()
	if ok {
		s.Controller.Unmount()
		debugLog("worker: released widget for visitor %s", visitorID)
	}
}

// Len reports how many widgets are mounted.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// EvictIdle unmounts every session unused for longer than the idle timeout.
func (m *Manager) EvictIdle() int {
	cutoff := m.opts.Now().Add(-m.opts.IdleTimeout)
	m.mu.Lock()
	var idle []*Session
	for id, s := range m.sessions {
		if s.idleSince().Before(cutoff) {
			idle = append(idle, s)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()
	for _, s := range idle {
		s.Controller.Unmount()
	}
	if len(idle) > 0 {
		log.Printf("worker: evicted %d idle widget(s)", len(idle))
	}
	return len(idle)
}

// StartJanitor evicts idle sessions every interval until ctx is done.
func (m *Manager) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.EvictIdle()
			}
		}
	}()
}

// Stop unmounts everything; later Acquire calls fail.
func (m *Manager) Stop() {
	m.mu.Lock()
	m.stopped = true
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()
	for _, s := range sessions {
		s.Controller.Unmount()
	}
}

func (m *Manager) persisted(visitorID, key string) {
	if m.opts.Invalidator == nil {
		return
	}
	msg := invalidateMessage{VisitorID: visitorID, Key: key, Origin: m.instanceID}
	go m.opts.Invalidator.publish(msg)
}

// handleInvalidation reloads a mounted widget that another instance wrote.
func (m *Manager) handleInvalidation(msg invalidateMessage) {
	if msg.Origin == m.instanceID {
		return
	}
	s, ok := m.Lookup(msg.VisitorID)
	if !ok {
		return
	}
	debugLog("worker: reload visitor %s after remote write to %s", msg.VisitorID, msg.Key)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.Controller.Reload(ctx)
}
