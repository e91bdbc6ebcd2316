package api

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"nesturechat/internal/widget"
	"nesturechat/internal/worker"
)

const (
	socketReadTimeout  = 60 * time.Second
	socketPingInterval = 54 * time.Second
)

func (h *Handler) upgrader() *websocket.Upgrader {
	return &websocket.Upgrader{
		CheckOrigin:     h.checkOrigin,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
	}
}

// checkOrigin accepts same-host pages, configured origins, and clients that
// send no Origin at all (non-browser callers authenticate by bearer token).
func (h *Handler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	if strings.EqualFold(u.Host, r.Host) {
		return true
	}
	for _, allowed := range h.allowedOrigins {
		if strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return false
}

type socketInbound struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type socketOutbound struct {
	Type      string `json:"type"`
	Data      any    `json:"data,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

func outbound(typ string, data any) socketOutbound {
	return socketOutbound{Type: typ, Data: data, Timestamp: time.Now().Unix()}
}

// widgetSocket is the bidirectional alternative to the SSE stream: widget
// events go out, visitor actions come in on the same connection.
func (h *Handler) widgetSocket(c *gin.Context) {
	session := sessionFromContext(c)
	conn, err := h.upgrader().Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("[websocket] upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	events, stop := session.Controller.Subscribe()
	defer stop()
	out := make(chan socketOutbound, 16)
	out <- outbound("snapshot", session.Controller.Snapshot())
	go socketWriter(ctx, conn, events, out)

	conn.SetReadDeadline(time.Now().Add(socketReadTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(socketReadTimeout))
		return nil
	})

	for {
		var msg socketInbound
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("[websocket] read error for visitor %s: %v", session.VisitorID, err)
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(socketReadTimeout))

		if reply, ok := handleSocketMessage(ctx, session, msg); ok {
			select {
			case out <- reply:
			case <-ctx.Done():
				return
			}
		}
	}
}

// socketWriter owns every write to conn.
func socketWriter(ctx context.Context, conn *websocket.Conn, events <-chan widget.Event, out <-chan socketOutbound) {
	ticker := time.NewTicker(socketPingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case msg := <-out:
			if err := conn.WriteJSON(msg); err != nil {
				log.Printf("[websocket] write failed: %v", err)
				return
			}
		case ev, ok := <-events:
			if !ok {
				_ = conn.WriteJSON(outbound("closed", gin.H{"reason": "widget unmounted"}))
				// unblocks the reader
				conn.Close()
				return
			}
			if err := conn.WriteJSON(outbound(string(ev.Type), ev)); err != nil {
				log.Printf("[websocket] write event failed: %v", err)
				return
			}
		}
	}
}

// handleSocketMessage applies one inbound action. Results reach the client
// as widget events; only failures produce a direct reply.
func handleSocketMessage(ctx context.Context, session *worker.Session, msg socketInbound) (socketOutbound, bool) {
	ctrl := session.Controller
	var payload struct {
		Content    string `json:"content"`
		Text       string `json:"text"`
		ID         string `json:"id"`
		Transcript string `json:"transcript"`
		Error      string `json:"error"`
	}
	if len(msg.Data) > 0 {
		if err := json.Unmarshal(msg.Data, &payload); err != nil {
			return socketError("invalid payload"), true
		}
	}

	var err error
	switch msg.Type {
	case "open":
		ctrl.Open(ctx)
	case "close":
		ctrl.Close()
	case "toggle":
		ctrl.Toggle(ctx)
	case "input":
		ctrl.SetInput(payload.Text)
	case "send":
		err = ctrl.SendUserMessage(ctx, payload.Content)
	case "quick_reply":
		err = ctrl.DispatchQuickReply(ctx, payload.ID)
	case "voice_start":
		err = ctrl.StartVoiceCapture(ctx)
	case "voice_result", "voice_error":
		if session.Speech == nil {
			return socketError("voice input unavailable"), true
		}
		if msg.Type == "voice_error" {
			err = session.Speech.Fail(payload.Error)
		} else {
			err = session.Speech.Deliver(payload.Transcript)
		}
	case "snapshot":
		return outbound("snapshot", ctrl.Snapshot()), true
	default:
		return socketError("unsupported message type: " + msg.Type), true
	}
	if err != nil {
		return socketError(err.Error()), true
	}
	return socketOutbound{}, false
}

func socketError(message string) socketOutbound {
	return outbound("error", gin.H{"message": message})
}
