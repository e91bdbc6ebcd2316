// Package links builds the outbound targets opened from the widget.
package links

import (
	"net/url"
	"strings"
)

// Links holds the messaging and scheduling targets.
type Links struct {
	WhatsAppNumber   string
	WhatsAppGreeting string
	SchedulingURL    string
}

// Messaging returns the WhatsApp deep link pre-filled with the greeting.
func (l Links) Messaging() string {
	number := strings.TrimPrefix(strings.TrimSpace(l.WhatsAppNumber), "+")
	u := url.URL{Scheme: "https", Host: "wa.me", Path: "/" + number}
	if l.WhatsAppGreeting != "" {
		u.RawQuery = "text=" + url.QueryEscape(l.WhatsAppGreeting)
	}
	return u.String()
}

// Scheduling returns the booking page.
func (l Links) Scheduling() string {
	return l.SchedulingURL
}
