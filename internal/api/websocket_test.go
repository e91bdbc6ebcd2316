package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestWidgetSocketRoundTrip(t *testing.T) {
	router := newTestServer(t)
	v := newVisitor(t, router)
	srv := httptest.NewServer(router)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/widget/ws"
	header := http.Header{}
	header.Set("Authorization", "Bearer "+v.AuthToken)
	conn, resp, err := websocket.DefaultDialer.Dial(url, header)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	if resp.StatusCode != http.StatusSwitchingProtocols {
		t.Fatalf("unexpected handshake status %d", resp.StatusCode)
	}

	var msg socketOutbound
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read snapshot: %v", err)
	}
	if msg.Type != "snapshot" {
		t.Fatalf("expected snapshot first, got %s", msg.Type)
	}

	if err := conn.WriteJSON(map[string]any{"type": "send", "data": map[string]string{"content": "team"}}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if !readUntil(t, conn, "message") {
		t.Fatalf("no message event after send")
	}

	if err := conn.WriteJSON(map[string]any{"type": "teleport"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if !readUntil(t, conn, "error") {
		t.Fatalf("no error reply for unknown action")
	}
}

func TestWidgetSocketRequiresToken(t *testing.T) {
	router := newTestServer(t)
	srv := httptest.NewServer(router)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/widget/ws"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatalf("expected handshake to fail without a token")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 handshake response, got %+v", resp)
	}
}

func TestWidgetSocketChecksOrigin(t *testing.T) {
	router := newTestServer(t)
	v := newVisitor(t, router)
	srv := httptest.NewServer(router)
	defer srv.Close()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/widget/ws"

	cases := []struct {
		origin string
		status int
	}{
		{"https://evil.example", http.StatusForbidden},
		{"https://www.nesturelabs.com", http.StatusSwitchingProtocols},
		{srv.URL, http.StatusSwitchingProtocols},
	}
	for _, tc := range cases {
		header := http.Header{}
		header.Set("Authorization", "Bearer "+v.AuthToken)
		header.Set("Origin", tc.origin)
		conn, resp, err := websocket.DefaultDialer.Dial(url, header)
		if resp == nil {
			t.Fatalf("origin %s: no handshake response: %v", tc.origin, err)
		}
		if resp.StatusCode != tc.status {
			t.Fatalf("origin %s: want status %d got %d", tc.origin, tc.status, resp.StatusCode)
		}
		if conn != nil {
			conn.Close()
		}
	}
}

func readUntil(t *testing.T, conn *websocket.Conn, typ string) bool {
	t.Helper()
	for i := 0; i < 32; i++ {
		var msg socketOutbound
		conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("read: %v", err)
		}
		if msg.Type == typ {
			return true
		}
	}
	return false
}
