package widget

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"nesturechat/internal/models"
)

type exportDocument struct {
	ExportDate   time.Time        `json:"exportDate"`
	MessageCount int              `json:"messageCount"`
	Messages     []models.Message `json:"messages"`
}

// ExportHistory renders the transcript as a JSON document with a suggested filename.
func (c *Controller) ExportHistory() ([]byte, string, error) {
	c.mu.Lock()
	msgs := cloneMessages(c.messages)
	c.mu.Unlock()

	now := c.opts.Now()
	doc := exportDocument{ExportDate: now.UTC(), MessageCount: len(msgs), Messages: msgs}
	raw, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, "", fmt.Errorf("encode export: %w", err)
	}
	return raw, fmt.Sprintf("nesturelabs_chat_export_%s.json", now.Format("2006-01-02")), nil
}

// DownloadHistory renders the transcript as plain text with a suggested filename.
func (c *Controller) DownloadHistory() ([]byte, string) {
	c.mu.Lock()
	msgs := cloneMessages(c.messages)
	c.mu.Unlock()

	separator := strings.Repeat("-", 50)
	entries := make([]string, 0, len(msgs))
	for _, m := range msgs {
		entries = append(entries, fmt.Sprintf("%s [%s]:\n%s\n%s",
			strings.ToUpper(string(m.Sender)), m.Timestamp.Format("15:04"), m.Content, separator))
	}
	name := fmt.Sprintf("nesturelabs_chat_%s.txt", c.opts.Now().Format("2006-01-02"))
	return []byte(strings.Join(entries, "\n\n")), name
}

// ImportHistory replaces the transcript with the messages of an export
// document. Ids are regenerated; everything else is preserved.
func (c *Controller) ImportHistory(ctx context.Context, data []byte) (int, error) {
	var doc exportDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidExport, err)
	}
	if doc.Messages == nil {
		return 0, fmt.Errorf("%w: no messages", ErrInvalidExport)
	}
	msgs := make([]models.Message, 0, len(doc.Messages))
	for i, m := range doc.Messages {
		switch m.Sender {
		case models.SenderUser, models.SenderBot, models.SenderSystem:
		default:
			return 0, fmt.Errorf("%w: message %d has sender %q", ErrInvalidExport, i, m.Sender)
		}
		if m.Type == "" {
			m.Type = models.TypeText
		}
		m.ID = uuid.NewString()
		msgs = append(msgs, m.Clone())
	}
	if over := len(msgs) - c.opts.MaxMessages; over > 0 {
		msgs = msgs[over:]
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.unmounted {
		return 0, ErrUnmounted
	}
	c.cancelTimersLocked()
	c.messages = msgs
	c.saveMessagesLocked(ctx)
	c.emitStateLocked()
	return len(msgs), nil
}
