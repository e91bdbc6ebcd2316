package widget

import (
	"context"
	"io"
	"sort"
	"sync"
	"testing"
	"time"

	"nesturechat/internal/models"
	"nesturechat/internal/storage"
)

type manualTimer struct {
	at      time.Duration
	seq     int
	f       func()
	stopped bool
	fired   bool
}

// manualScheduler fires timers only when the test advances its clock.
type manualScheduler struct {
	mu     sync.Mutex
	now    time.Duration
	seq    int
	timers []*manualTimer
}

func (s *manualScheduler) AfterFunc(d time.Duration, f func()) func() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	t := &manualTimer{at: s.now + d, seq: s.seq, f: f}
	s.timers = append(s.timers, t)
	return func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		if t.fired || t.stopped {
			return false
		}
		t.stopped = true
		return true
	}
}

func (s *manualScheduler) Advance(d time.Duration) {
	s.mu.Lock()
	s.now += d
	s.mu.Unlock()
	for {
		s.mu.Lock()
		var due []*manualTimer
		for _, t := range s.timers {
			if !t.fired && !t.stopped && t.at <= s.now {
				due = append(due, t)
			}
		}
		sort.Slice(due, func(i, j int) bool {
			if due[i].at == due[j].at {
				return due[i].seq < due[j].seq
			}
			return due[i].at < due[j].at
		})
		for _, t := range due {
			t.fired = true
		}
		s.mu.Unlock()
		if len(due) == 0 {
			return
		}
		for _, t := range due {
			t.f()
		}
	}
}

func (s *manualScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, t := range s.timers {
		if !t.fired && !t.stopped {
			n++
		}
	}
	return n
}

type trackedEvent struct {
	name   string
	params map[string]any
}

type recordingTracker struct {
	mu     sync.Mutex
	events []trackedEvent
}

func (r *recordingTracker) Track(name string, params map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, trackedEvent{name: name, params: params})
}

func (r *recordingTracker) Named(name string) []trackedEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []trackedEvent
	for _, ev := range r.events {
		if ev.name == name {
			out = append(out, ev)
		}
	}
	return out
}

// recordingStore logs every write so tests can check persistence order.
type recordingStore struct {
	storage.Store
	mu  sync.Mutex
	ops []string
}

func (s *recordingStore) Set(ctx context.Context, key string, value []byte) error {
	s.mu.Lock()
	s.ops = append(s.ops, "set "+key)
	s.mu.Unlock()
	return s.Store.Set(ctx, key, value)
}

func (s *recordingStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	s.ops = append(s.ops, "delete "+key)
	s.mu.Unlock()
	return s.Store.Delete(ctx, key)
}

func (s *recordingStore) Ops() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.ops...)
}

type recordingUploader struct {
	mu    sync.Mutex
	names []string
}

func (u *recordingUploader) Upload(_ context.Context, owner string, att models.Attachment, body io.Reader) (string, error) {
	if body != nil {
		_, _ = io.Copy(io.Discard, body)
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	u.names = append(u.names, att.Name)
	return owner + "/" + att.Name, nil
}

type fakeClipboard struct {
	text string
	err  error
}

func (c *fakeClipboard) WriteText(_ context.Context, text string) error {
	if c.err != nil {
		return c.err
	}
	c.text = text
	return nil
}

var fixedNow = time.Date(2026, 3, 14, 9, 26, 0, 0, time.UTC)

type harness struct {
	ctrl    *Controller
	sched   *manualScheduler
	store   *recordingStore
	tracker *recordingTracker
}

func newHarness(t *testing.T, mutate func(*Options)) *harness {
	t.Helper()
	h := &harness{
		sched:   &manualScheduler{},
		store:   &recordingStore{Store: storage.NewMemoryStore()},
		tracker: &recordingTracker{},
	}
	opts := Options{
		VisitorID: "visitor-1",
		Store:     h.store,
		Tracker:   h.tracker,
		Scheduler: h.sched,
		Rand:      func() float64 { return 0.5 },
		Now:       func() time.Time { return fixedNow },
	}
	if mutate != nil {
		mutate(&opts)
	}
	h.ctrl = New(context.Background(), opts)
	t.Cleanup(h.ctrl.Unmount)
	return h
}

// disableTyping makes bot replies synchronous.
func (h *harness) disableTyping(t *testing.T) {
	t.Helper()
	s := h.ctrl.Settings()
	s.TypingIndicator = false
	if err := h.ctrl.UpdateSettings(context.Background(), s); err != nil {
		t.Fatalf("update settings: %v", err)
	}
}
