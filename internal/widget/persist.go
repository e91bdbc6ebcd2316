package widget

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"nesturechat/internal/models"
	"nesturechat/internal/storage"
)

const (
	messagesKeyPrefix = "nesturelabs_chat_messages"
	settingsKeyPrefix = "nesturelabs_chat_settings"
	permissionPrefix  = "nesturelabs_chat_notifications"
)

// MessagesKey is the storage key of a visitor's transcript.
func MessagesKey(visitorID string) string {
	return keyFor(messagesKeyPrefix, visitorID)
}

// SettingsKey is the storage key of a visitor's preferences.
func SettingsKey(visitorID string) string {
	return keyFor(settingsKeyPrefix, visitorID)
}

// PermissionKey is the storage key of the visitor's answer to the
// notification prompt. The platform remembers that answer across visits.
func PermissionKey(visitorID string) string {
	return keyFor(permissionPrefix, visitorID)
}

func keyFor(prefix, visitorID string) string {
	if visitorID == "" {
		return prefix
	}
	return prefix + ":" + visitorID
}

func (c *Controller) loadMessages(ctx context.Context) []models.Message {
	key := MessagesKey(c.opts.VisitorID)
	raw, err := c.opts.Store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			log.Printf("widget %s: load messages: %v", c.opts.VisitorID, err)
		}
		return nil
	}
	var msgs []models.Message
	if err := json.Unmarshal(raw, &msgs); err != nil {
		log.Printf("widget %s: discard corrupt transcript: %v", c.opts.VisitorID, err)
		return nil
	}
	if over := len(msgs) - c.opts.MaxMessages; over > 0 {
		msgs = msgs[over:]
	}
	return msgs
}

func (c *Controller) loadSettings(ctx context.Context) models.ChatSettings {
	key := SettingsKey(c.opts.VisitorID)
	raw, err := c.opts.Store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			log.Printf("widget %s: load settings: %v", c.opts.VisitorID, err)
		}
		return models.DefaultChatSettings()
	}
	settings := models.DefaultChatSettings()
	if err := json.Unmarshal(raw, &settings); err != nil {
		log.Printf("widget %s: discard corrupt settings: %v", c.opts.VisitorID, err)
		return models.DefaultChatSettings()
	}
	if err := settings.Validate(); err != nil {
		log.Printf("widget %s: discard invalid settings: %v", c.opts.VisitorID, err)
		return models.DefaultChatSettings()
	}
	return settings
}

func (c *Controller) loadPermission(ctx context.Context) Permission {
	raw, err := c.opts.Store.Get(ctx, PermissionKey(c.opts.VisitorID))
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			log.Printf("widget %s: load notification permission: %v", c.opts.VisitorID, err)
		}
		return PermissionDefault
	}
	var p Permission
	if err := json.Unmarshal(raw, &p); err != nil {
		log.Printf("widget %s: discard corrupt notification permission: %v", c.opts.VisitorID, err)
		return PermissionDefault
	}
	switch p {
	case PermissionGranted, PermissionDenied:
		return p
	}
	return PermissionDefault
}

// restorePermission seeds the notifier with the persisted answer.
func (c *Controller) restorePermission(ctx context.Context) {
	restorer, ok := c.opts.Notifier.(permissionRestorer)
	if !ok {
		return
	}
	if p := c.loadPermission(ctx); p != PermissionDefault {
		restorer.RestorePermission(p)
	}
}

func (c *Controller) savePermissionLocked(ctx context.Context, p Permission) {
	c.writeLocked(ctx, PermissionKey(c.opts.VisitorID), p)
}

func (c *Controller) saveMessagesLocked(ctx context.Context) {
	msgs := c.messages
	if msgs == nil {
		msgs = []models.Message{}
	}
	c.writeLocked(ctx, MessagesKey(c.opts.VisitorID), msgs)
}

func (c *Controller) saveSettingsLocked(ctx context.Context) {
	c.writeLocked(ctx, SettingsKey(c.opts.VisitorID), c.settings)
}

func (c *Controller) writeLocked(ctx context.Context, key string, v any) {
	raw, err := json.Marshal(v)
	if err != nil {
		log.Printf("widget %s: encode %s: %v", c.opts.VisitorID, key, err)
		return
	}
	if err := c.opts.Store.Set(ctx, key, raw); err != nil {
		log.Printf("widget %s: persist %s: %v", c.opts.VisitorID, key, err)
		return
	}
	if c.opts.OnPersist != nil {
		c.opts.OnPersist(key)
	}
}

func (c *Controller) deleteLocked(ctx context.Context, key string) {
	if err := c.opts.Store.Delete(ctx, key); err != nil {
		log.Printf("widget %s: delete %s: %v", c.opts.VisitorID, key, err)
		return
	}
	if c.opts.OnPersist != nil {
		c.opts.OnPersist(key)
	}
}

func wrapInvalid(err error) error {
	return fmt.Errorf("%w: %v", ErrInvalidSettings, err)
}
