package models

// QuickReply is a predefined menu button that behaves as if its label were typed.
type QuickReply struct {
	ID       string `json:"id"`
	Text     string `json:"text"`
	Action   string `json:"action"`
	Category string `json:"category"`
}
