package widget

import (
	"context"
	"fmt"
	"log"
	"strings"

	"nesturechat/internal/chatbot"
	"nesturechat/internal/models"
)

const (
	msgOpeningSettings = "Opening settings panel..."
	msgCopied          = "Message copied to clipboard!"
	msgCopyFailed      = "Copy failed. Please select the text and copy it manually."
)

// SendUserMessage appends the visitor's text and resolves a bot reply.
func (c *Controller) SendUserMessage(ctx context.Context, text string) error {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return ErrEmptyMessage
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.unmounted {
		return ErrUnmounted
	}
	c.sendLocked(ctx, trimmed)
	return nil
}

func (c *Controller) sendLocked(ctx context.Context, text string) {
	c.input = ""
	c.appendLocked(ctx, c.newMessage(text, models.SenderUser, models.TypeText))

	reply := c.opts.Responder.Resolve(text)
	switch reply.Intent {
	case chatbot.IntentClear:
		c.clearLocked(ctx)
	case chatbot.IntentSettings:
		if c.open {
			c.settingsOpen = true
			c.minimized = false
		}
		c.systemMessageLocked(ctx, msgOpeningSettings)
	default:
		c.deliverReplyLocked(reply.Content)
	}
}

// DispatchQuickReply behaves as if the reply's label had been typed, but
// answers with the canned response of its action directly.
func (c *Controller) DispatchQuickReply(ctx context.Context, id string) error {
	reply, ok := c.opts.Responder.QuickReply(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownQuickReply, id)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.unmounted {
		return ErrUnmounted
	}
	c.appendLocked(ctx, c.newMessage(reply.Text, models.SenderUser, models.TypeQuickReply))
	c.opts.Tracker.Track("quick_reply_used", map[string]any{
		"action":   reply.Action,
		"category": reply.Category,
		"text":     reply.Text,
	})
	c.deliverReplyLocked(c.opts.Responder.Response(reply.Action))
	return nil
}

// deliverReplyLocked appends a bot reply, after a simulated typing delay
// when the typing indicator is enabled.
func (c *Controller) deliverReplyLocked(content string) {
	if !c.settings.TypingIndicator {
		c.appendLocked(context.Background(), c.newMessage(content, models.SenderBot, models.TypeText))
		return
	}
	c.pendingReplies++
	c.hub.publish(Event{Type: EventTyping, Typing: true})
	c.scheduleLocked(c.typingDelay(), func() {
		c.pendingReplies--
		if c.pendingReplies == 0 {
			c.hub.publish(Event{Type: EventTyping, Typing: false})
		}
		c.appendLocked(context.Background(), c.newMessage(content, models.SenderBot, models.TypeText))
	})
}

// ClearHistory empties the transcript and leaves a single confirmation.
func (c *Controller) ClearHistory(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.unmounted {
		return ErrUnmounted
	}
	c.clearLocked(ctx)
	return nil
}

func (c *Controller) clearLocked(ctx context.Context) {
	count := len(c.messages)
	c.cancelTimersLocked()
	c.messages = nil
	c.deleteLocked(ctx, MessagesKey(c.opts.VisitorID))
	c.hub.publish(Event{Type: EventCleared})
	c.opts.Tracker.Track("chat_cleared", map[string]any{"message_count": count})
	c.appendLocked(ctx, c.newMessage(c.opts.Responder.ClearConfirmation(), models.SenderBot, models.TypeText))
}

// PinMessage toggles the pinned flag.
func (c *Controller) PinMessage(ctx context.Context, id string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	i := c.findLocked(id)
	if i < 0 {
		return false, fmt.Errorf("%w: %s", ErrMessageNotFound, id)
	}
	md := c.messages[i].EnsureMetadata()
	md.IsPinned = !md.IsPinned
	c.saveMessagesLocked(ctx)
	c.publishUpdatedLocked(i)
	return md.IsPinned, nil
}

// ReactToMessage sets the reaction; an empty reaction clears it.
func (c *Controller) ReactToMessage(ctx context.Context, id, reaction string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	i := c.findLocked(id)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrMessageNotFound, id)
	}
	c.messages[i].EnsureMetadata().Reaction = strings.TrimSpace(reaction)
	c.saveMessagesLocked(ctx)
	c.publishUpdatedLocked(i)
	return nil
}

// CopyMessage writes the plain text of a message to the clipboard, when
// one is available, and returns that text either way.
func (c *Controller) CopyMessage(ctx context.Context, id string) (string, error) {
	c.mu.Lock()
	i := c.findLocked(id)
	if i < 0 {
		c.mu.Unlock()
		return "", fmt.Errorf("%w: %s", ErrMessageNotFound, id)
	}
	text := models.StripMarkup(c.messages[i].Content)
	c.mu.Unlock()

	if c.opts.Clipboard == nil {
		return text, nil
	}
	err := c.opts.Clipboard.WriteText(ctx, text)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.unmounted {
		return text, err
	}
	if err != nil {
		log.Printf("widget %s: clipboard: %v", c.opts.VisitorID, err)
		c.systemMessageLocked(ctx, msgCopyFailed)
		return text, err
	}
	c.systemMessageLocked(ctx, msgCopied)
	return text, nil
}

func (c *Controller) publishUpdatedLocked(i int) {
	msg := c.messages[i].Clone()
	c.hub.publish(Event{Type: EventMessageUpdated, Message: &msg})
}
