package models

import "time"

// Attachment describes a file the visitor attached to the conversation.
type Attachment struct {
	Name       string    `json:"name"`
	MimeType   string    `json:"mime_type"`
	Size       int64     `json:"size"`
	Location   string    `json:"location,omitempty"`
	AcceptedAt time.Time `json:"accepted_at"`
}
