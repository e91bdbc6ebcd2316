package links

import (
	"net/url"
	"testing"
)

func TestMessagingLink(t *testing.T) {
	l := Links{WhatsAppNumber: "+94779753202", WhatsAppGreeting: "Hello Nesture Labs! I'm interested."}
	raw := l.Messaging()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse %s: %v", raw, err)
	}
	if u.Host != "wa.me" || u.Path != "/94779753202" {
		t.Fatalf("unexpected link %s", raw)
	}
	if got := u.Query().Get("text"); got != l.WhatsAppGreeting {
		t.Fatalf("greeting not round-tripped: %q", got)
	}
}

func TestSchedulingLink(t *testing.T) {
	l := Links{SchedulingURL: "https://calendly.com/nesturelabs/45min"}
	if l.Scheduling() != "https://calendly.com/nesturelabs/45min" {
		t.Fatalf("unexpected scheduling link %s", l.Scheduling())
	}
}
