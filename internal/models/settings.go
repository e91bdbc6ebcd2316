package models

import "fmt"

type FontSize string

const (
	FontSmall  FontSize = "small"
	FontMedium FontSize = "medium"
	FontLarge  FontSize = "large"
)

type Theme string

const (
	ThemeAuto  Theme = "auto"
	ThemeLight Theme = "light"
	ThemeDark  Theme = "dark"
)

// ChatSettings holds the visitor's widget preferences.
type ChatSettings struct {
	EnableVoice         bool     `json:"enableVoice"`
	EnableNotifications bool     `json:"enableNotifications"`
	AutoExpandReplies   bool     `json:"autoExpandReplies"`
	ReadReceipts        bool     `json:"readReceipts"`
	TypingIndicator     bool     `json:"typingIndicator"`
	Theme               Theme    `json:"theme"`
	FontSize            FontSize `json:"fontSize"`
	Language            string   `json:"language"`
}

// DefaultChatSettings returns the settings used before the visitor changes anything.
func DefaultChatSettings() ChatSettings {
	return ChatSettings{
		EnableVoice:         true,
		EnableNotifications: true,
		AutoExpandReplies:   true,
		ReadReceipts:        true,
		TypingIndicator:     true,
		Theme:               ThemeAuto,
		FontSize:            FontMedium,
		Language:            "en",
	}
}

// Validate checks the enumerated fields.
func (s ChatSettings) Validate() error {
	switch s.FontSize {
	case FontSmall, FontMedium, FontLarge:
	default:
		return fmt.Errorf("invalid font size %q", s.FontSize)
	}
	switch s.Theme {
	case ThemeAuto, ThemeLight, ThemeDark:
	default:
		return fmt.Errorf("invalid theme %q", s.Theme)
	}
	if s.Language == "" {
		return fmt.Errorf("language is required")
	}
	return nil
}
