package widget

import "nesturechat/internal/models"

type View string

const (
	ViewClosed     View = "closed"
	ViewTranscript View = "transcript"
	ViewMinimized  View = "minimized"
	ViewSettings   View = "settings"
)

type Capabilities struct {
	Voice         bool       `json:"voice"`
	Notifications bool       `json:"notifications"`
	Permission    Permission `json:"permission,omitempty"`
	Clipboard     bool       `json:"clipboard"`
}

// Snapshot is the read model the page renders from.
type Snapshot struct {
	VisitorID        string              `json:"visitorId"`
	View             View                `json:"view"`
	Unread           int                 `json:"unread"`
	Typing           bool                `json:"typing"`
	Listening        bool                `json:"listening"`
	Input            string              `json:"input"`
	Settings         models.ChatSettings `json:"settings"`
	Theme            models.Theme        `json:"theme"`
	Messages         []models.Message    `json:"messages"`
	ShowQuickReplies bool                `json:"showQuickReplies"`
	QuickReplies     []models.QuickReply `json:"quickReplies,omitempty"`
	CompanyName      string              `json:"companyName"`
	Capabilities     Capabilities        `json:"capabilities"`
}

func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	snap := Snapshot{
		VisitorID:        c.opts.VisitorID,
		View:             c.viewLocked(),
		Unread:           c.unread,
		Typing:           c.typingLocked(),
		Listening:        c.listening,
		Input:            c.input,
		Settings:         c.settings,
		Theme:            c.effectiveThemeLocked(),
		Messages:         cloneMessages(c.messages),
		ShowQuickReplies: c.showQuickRepliesLocked(),
		CompanyName:      c.opts.Responder.CompanyName(),
		Capabilities: Capabilities{
			Voice:         c.opts.Speech != nil,
			Notifications: c.opts.Notifier != nil,
			Clipboard:     c.opts.Clipboard != nil,
		},
	}
	if snap.ShowQuickReplies {
		snap.QuickReplies = c.opts.Responder.QuickReplies()
	}
	if c.opts.Notifier != nil {
		snap.Capabilities.Permission = c.opts.Notifier.Permission()
	}
	return snap
}

// QuickReplies returns the full catalog regardless of visibility.
func (c *Controller) QuickReplies() []models.QuickReply {
	return c.opts.Responder.QuickReplies()
}

func (c *Controller) viewLocked() View {
	switch {
	case !c.open:
		return ViewClosed
	case c.minimized:
		return ViewMinimized
	case c.settingsOpen:
		return ViewSettings
	default:
		return ViewTranscript
	}
}

func (c *Controller) showQuickRepliesLocked() bool {
	return len(c.messages) <= 2 && !c.typingLocked() && c.settings.AutoExpandReplies
}

func (c *Controller) effectiveThemeLocked() models.Theme {
	if c.settings.Theme != models.ThemeAuto {
		return c.settings.Theme
	}
	if c.opts.DarkMode != nil && c.opts.DarkMode() {
		return models.ThemeDark
	}
	return models.ThemeLight
}

func (c *Controller) stateLocked() State {
	return State{
		View:      c.viewLocked(),
		Unread:    c.unread,
		Typing:    c.typingLocked(),
		Listening: c.listening,
	}
}

func (c *Controller) emitStateLocked() {
	st := c.stateLocked()
	c.hub.publish(Event{Type: EventState, State: &st})
}
