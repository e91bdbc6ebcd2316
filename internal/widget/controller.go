package widget

import (
	"context"
	"log"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"nesturechat/internal/analytics"
	"nesturechat/internal/chatbot"
	"nesturechat/internal/links"
	"nesturechat/internal/models"
	"nesturechat/internal/storage"
	"nesturechat/internal/upload"
)

const (
	DefaultMaxMessages        = 100
	DefaultGreetingDelay      = 800 * time.Millisecond
	DefaultTypingMin          = 600 * time.Millisecond
	DefaultTypingJitter       = 900 * time.Millisecond
	DefaultMaxAttachmentBytes = 5 << 20
	DefaultCompanyName        = "Nesture Labs"
)

// Options wires a controller to its collaborators. Only Store is required.
type Options struct {
	VisitorID string
	Store     storage.Store
	Responder *chatbot.Responder
	Tracker   analytics.Tracker
	Speech    SpeechRecognizer
	Notifier  Notifier
	Clipboard Clipboard
	Uploader  Uploader
	Scheduler Scheduler
	Links     links.Links

	// Rand returns a value in [0, 1) for the simulated typing delay.
	Rand func() float64
	Now  func() time.Time
	// DarkMode reports the platform preference used when the theme is auto.
	DarkMode func() bool

	MaxMessages        int
	GreetingDelay      time.Duration
	TypingMin          time.Duration
	TypingJitter       time.Duration
	MaxAttachmentBytes int64

	// OnPersist runs after a key was written or deleted.
	OnPersist func(key string)
}

// Controller owns one visitor's conversation state and applies every
// behavioral rule of the widget. All methods are safe for concurrent use.
type Controller struct {
	opts Options

	mu           sync.Mutex
	messages     []models.Message
	settings     models.ChatSettings
	open         bool
	minimized    bool
	settingsOpen bool
	unread       int
	input        string
	listening    bool
	voiceSession uint64
	greeted      bool
	unmounted    bool

	pendingReplies int
	nextTimer      uint64
	timers         map[uint64]func() bool

	hub *hub
}

// New mounts a controller, reading the persisted transcript and settings once.
func New(ctx context.Context, opts Options) *Controller {
	opts = withDefaults(opts)
	c := &Controller{
		opts:   opts,
		timers: make(map[uint64]func() bool),
		hub:    newHub(),
	}
	c.messages = c.loadMessages(ctx)
	c.settings = c.loadSettings(ctx)
	c.restorePermission(ctx)
	return c
}

func withDefaults(opts Options) Options {
	if opts.Store == nil {
		opts.Store = storage.NewMemoryStore()
	}
	if opts.Responder == nil {
		opts.Responder = chatbot.NewResponder(chatbot.DefaultCompany(DefaultCompanyName), nil)
	}
	if opts.Tracker == nil {
		opts.Tracker = analytics.Noop{}
	}
	if opts.Uploader == nil {
		opts.Uploader = upload.Noop{}
	}
	if opts.Scheduler == nil {
		opts.Scheduler = realScheduler{}
	}
	if opts.Rand == nil {
		opts.Rand = rand.Float64
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.MaxMessages <= 0 {
		opts.MaxMessages = DefaultMaxMessages
	}
	if opts.GreetingDelay <= 0 {
		opts.GreetingDelay = DefaultGreetingDelay
	}
	if opts.TypingMin <= 0 {
		opts.TypingMin = DefaultTypingMin
	}
	if opts.TypingJitter < 0 {
		opts.TypingJitter = 0
	}
	if opts.MaxAttachmentBytes <= 0 {
		opts.MaxAttachmentBytes = DefaultMaxAttachmentBytes
	}
	return opts
}

func (c *Controller) VisitorID() string {
	return c.opts.VisitorID
}

// Open shows the widget. Opening resets the unread count and, on the first
// open of an empty transcript, schedules the greeting.
func (c *Controller) Open(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.unmounted || c.open {
		return
	}
	c.open = true
	c.minimized = false
	c.settingsOpen = false
	c.unread = 0
	c.opts.Tracker.Track("chat_widget_open", map[string]any{"timestamp": c.opts.Now().UTC().Format(time.RFC3339)})

	if c.settings.ReadReceipts && c.markAllReadLocked() {
		c.saveMessagesLocked(ctx)
	}
	if !c.greeted && len(c.messages) == 0 {
		c.greeted = true
		c.pendingReplies++
		c.scheduleLocked(c.opts.GreetingDelay, func() {
			c.pendingReplies--
			c.appendLocked(context.Background(), c.newMessage(c.opts.Responder.Welcome(), models.SenderBot, models.TypeText))
		})
	}
	c.emitStateLocked()
}

// Close hides the widget and resets both sub-views.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.unmounted || !c.open {
		return
	}
	c.open = false
	c.minimized = false
	c.settingsOpen = false
	c.emitStateLocked()
}

// Toggle flips visibility.
func (c *Controller) Toggle(ctx context.Context) {
	c.mu.Lock()
	open := c.open
	c.mu.Unlock()
	if open {
		c.Close()
		return
	}
	c.Open(ctx)
}

// Minimize collapses or restores the body of an open widget.
func (c *Controller) Minimize() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.open && !c.unmounted {
		c.minimized = !c.minimized
		c.settingsOpen = false
		c.emitStateLocked()
	}
	return c.viewLocked()
}

// ToggleSettingsPanel swaps the transcript for the preferences panel.
func (c *Controller) ToggleSettingsPanel() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.open && !c.unmounted {
		c.settingsOpen = !c.settingsOpen
		c.minimized = false
		c.emitStateLocked()
	}
	return c.viewLocked()
}

// SetInput stores the draft text of the input bar.
func (c *Controller) SetInput(text string) {
	c.mu.Lock()
	c.input = text
	c.mu.Unlock()
}

// Settings returns the current preferences.
func (c *Controller) Settings() models.ChatSettings {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.settings
}

// UpdateSettings validates and persists a full settings object.
func (c *Controller) UpdateSettings(ctx context.Context, s models.ChatSettings) error {
	if err := s.Validate(); err != nil {
		return wrapInvalid(err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.unmounted {
		return ErrUnmounted
	}
	c.settings = s
	c.saveSettingsLocked(ctx)
	c.emitStateLocked()
	return nil
}

// Messages returns a copy of the transcript.
func (c *Controller) Messages() []models.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return cloneMessages(c.messages)
}

// Reload re-reads both keys from the store, replacing in-memory state.
func (c *Controller) Reload(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.unmounted {
		return
	}
	c.messages = c.loadMessages(ctx)
	c.settings = c.loadSettings(ctx)
	c.restorePermission(ctx)
	c.emitStateLocked()
}

// Unmount cancels every pending deferred update and closes subscriptions.
// Deferred work never runs after Unmount returns.
func (c *Controller) Unmount() {
	c.mu.Lock()
	if c.unmounted {
		c.mu.Unlock()
		return
	}
	c.unmounted = true
	c.cancelTimersLocked()
	listening := c.listening
	c.listening = false
	c.voiceSession++
	c.mu.Unlock()

	if listening && c.opts.Speech != nil {
		c.opts.Speech.Abort()
	}
	c.hub.close()
}

// Subscribe returns a channel of widget events and a function to stop receiving them.
func (c *Controller) Subscribe() (<-chan Event, func()) {
	return c.hub.subscribe()
}

func (c *Controller) newMessage(content string, sender models.Sender, typ models.MessageType) models.Message {
	return models.Message{
		ID:        uuid.NewString(),
		Content:   content,
		Sender:    sender,
		Timestamp: c.opts.Now(),
		Type:      typ,
	}
}

func (c *Controller) systemMessageLocked(ctx context.Context, content string) {
	c.appendLocked(ctx, c.newMessage(content, models.SenderSystem, models.TypeSystem))
}

// appendLocked adds a message, enforces the cap, tracks unread and
// notifications, persists, and publishes the event.
func (c *Controller) appendLocked(ctx context.Context, msg models.Message) {
	if c.open && c.settings.ReadReceipts {
		msg.EnsureMetadata().IsRead = true
	}
	c.messages = append(c.messages, msg)
	if over := len(c.messages) - c.opts.MaxMessages; over > 0 {
		c.messages = append([]models.Message(nil), c.messages[over:]...)
	}
	if msg.Sender == models.SenderBot && !c.open {
		c.unread++
		c.notifyLocked(ctx, msg)
	}
	c.saveMessagesLocked(ctx)
	clone := msg.Clone()
	c.hub.publish(Event{Type: EventMessage, Message: &clone})
	c.emitStateLocked()
}

func (c *Controller) notifyLocked(ctx context.Context, msg models.Message) {
	if !c.settings.EnableNotifications || c.opts.Notifier == nil {
		return
	}
	if c.opts.Notifier.Permission() != PermissionGranted {
		return
	}
	title := c.opts.Responder.CompanyName()
	body := notificationBody(msg.Content)
	if err := c.opts.Notifier.Notify(ctx, title, body); err != nil {
		log.Printf("widget %s: notify: %v", c.opts.VisitorID, err)
		return
	}
	c.hub.publish(Event{Type: EventNotification, Notification: &Notification{Title: title, Body: body}})
}

func notificationBody(content string) string {
	plain := []rune(models.StripMarkup(content))
	if len(plain) > 100 {
		return string(plain[:100]) + "..."
	}
	return string(plain)
}

func (c *Controller) markAllReadLocked() bool {
	changed := false
	for i := range c.messages {
		md := c.messages[i].EnsureMetadata()
		if !md.IsRead {
			md.IsRead = true
			changed = true
		}
	}
	return changed
}

func (c *Controller) findLocked(id string) int {
	for i := range c.messages {
		if c.messages[i].ID == id {
			return i
		}
	}
	return -1
}

// scheduleLocked defers fn under the controller mutex. A cancelled or
// unmounted timer body never runs even if the timer already fired.
func (c *Controller) scheduleLocked(d time.Duration, fn func()) {
	c.nextTimer++
	id := c.nextTimer
	c.timers[id] = c.opts.Scheduler.AfterFunc(d, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.unmounted {
			return
		}
		if _, ok := c.timers[id]; !ok {
			return
		}
		delete(c.timers, id)
		fn()
	})
}

func (c *Controller) cancelTimersLocked() {
	for id, stop := range c.timers {
		stop()
		delete(c.timers, id)
	}
	if c.pendingReplies != 0 {
		c.pendingReplies = 0
		c.hub.publish(Event{Type: EventTyping, Typing: false})
	}
}

func (c *Controller) typingLocked() bool {
	return c.pendingReplies > 0
}

func (c *Controller) typingDelay() time.Duration {
	return c.opts.TypingMin + time.Duration(c.opts.Rand()*float64(c.opts.TypingJitter))
}

func cloneMessages(in []models.Message) []models.Message {
	out := make([]models.Message, len(in))
	for i, m := range in {
		out[i] = m.Clone()
	}
	return out
}
