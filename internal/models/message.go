package models

import (
	"strings"
	"time"
)

// Sender identifies who produced a message in the transcript.
type Sender string

const (
	SenderUser   Sender = "user"
	SenderBot    Sender = "bot"
	SenderSystem Sender = "system"
)

// MessageType only drives rendering on the page.
type MessageType string

const (
	TypeText       MessageType = "text"
	TypeQuickReply MessageType = "quick-reply"
	TypeAction     MessageType = "action"
	TypeSystem     MessageType = "system"
)

// MessageMetadata carries cosmetic flags; nothing couples them to other fields.
type MessageMetadata struct {
	IsPinned    bool     `json:"isPinned,omitempty"`
	IsRead      bool     `json:"isRead,omitempty"`
	Reaction    string   `json:"reaction,omitempty"`
	Attachments []string `json:"attachments,omitempty"`
}

// Message is one transcript entry. Content may contain **bold** markup.
type Message struct {
	ID        string           `json:"id"`
	Content   string           `json:"content"`
	Sender    Sender           `json:"sender"`
	Timestamp time.Time        `json:"timestamp"`
	Type      MessageType      `json:"type"`
	Metadata  *MessageMetadata `json:"metadata,omitempty"`
}

// Clone returns a deep copy so callers can't mutate controller state.
func (m Message) Clone() Message {
	if m.Metadata != nil {
		md := *m.Metadata
		if len(md.Attachments) > 0 {
			md.Attachments = append([]string(nil), md.Attachments...)
		}
		m.Metadata = &md
	}
	return m
}

// EnsureMetadata returns the metadata block, allocating it when absent.
func (m *Message) EnsureMetadata() *MessageMetadata {
	if m.Metadata == nil {
		m.Metadata = &MessageMetadata{}
	}
	return m.Metadata
}

// StripMarkup removes the ** bold markers for plain-text consumers.
func StripMarkup(content string) string {
	return strings.ReplaceAll(content, "**", "")
}
