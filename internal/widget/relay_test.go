package widget

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"nesturechat/internal/models"
	"nesturechat/internal/storage"
)

type failingRecognizer struct{}

func (failingRecognizer) Start(string, func(string), func(string)) error {
	return errors.New("not-allowed")
}

func (failingRecognizer) Abort() {}

func lastMessage(t *testing.T, c *Controller) models.Message {
	t.Helper()
	msgs := c.Messages()
	if len(msgs) == 0 {
		t.Fatalf("transcript is empty")
	}
	return msgs[len(msgs)-1]
}

func TestVoiceCaptureDeliversTranscript(t *testing.T) {
	relay := NewSpeechRelay()
	h := newHarness(t, func(o *Options) { o.Speech = relay })
	h.disableTyping(t)
	ctx := context.Background()

	if err := h.ctrl.StartVoiceCapture(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if !h.ctrl.Snapshot().Listening {
		t.Fatalf("expected listening state")
	}
	if got := lastMessage(t, h.ctrl).Content; got != "🎤 Listening... Speak now." {
		t.Fatalf("unexpected prompt %q", got)
	}
	if active, lang := relay.Active(); !active || lang != "en" {
		t.Fatalf("relay not started: active=%v lang=%q", active, lang)
	}

	if err := h.ctrl.StartVoiceCapture(ctx); !errors.Is(err, ErrVoiceBusy) {
		t.Fatalf("expected ErrVoiceBusy, got %v", err)
	}

	if err := relay.Deliver("I want to book a meeting"); err != nil {
		t.Fatalf("deliver: %v", err)
	}
	snap := h.ctrl.Snapshot()
	if snap.Listening {
		t.Fatalf("listening should end after a transcript")
	}
	requireLen(t, snap.Messages, 3)
	if snap.Messages[1].Content != "I want to book a meeting" || snap.Messages[1].Sender != models.SenderUser {
		t.Fatalf("transcript not sent as user message: %+v", snap.Messages[1])
	}
	if snap.Messages[2].Sender != models.SenderBot {
		t.Fatalf("expected a bot reply")
	}

	if err := relay.Deliver("again"); !errors.Is(err, ErrNoVoiceSession) {
		t.Fatalf("expected ErrNoVoiceSession, got %v", err)
	}
}

func TestVoiceCaptureFailure(t *testing.T) {
	relay := NewSpeechRelay()
	h := newHarness(t, func(o *Options) { o.Speech = relay })
	ctx := context.Background()

	if err := h.ctrl.StartVoiceCapture(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := relay.Fail("no-speech"); err != nil {
		t.Fatalf("fail: %v", err)
	}
	if h.ctrl.Snapshot().Listening {
		t.Fatalf("listening should end after a failure")
	}
	if got := lastMessage(t, h.ctrl).Content; got != "Voice input failed: no-speech. Please try typing instead." {
		t.Fatalf("unexpected failure message %q", got)
	}

	// a new session may start after a failure
	if err := h.ctrl.StartVoiceCapture(ctx); err != nil {
		t.Fatalf("restart: %v", err)
	}
}

func TestVoiceCaptureUnavailable(t *testing.T) {
	ctx := context.Background()

	h := newHarness(t, nil)
	if err := h.ctrl.StartVoiceCapture(ctx); !errors.Is(err, ErrCapabilityUnavailable) {
		t.Fatalf("expected ErrCapabilityUnavailable, got %v", err)
	}
	if lastMessage(t, h.ctrl).Sender != models.SenderSystem {
		t.Fatalf("expected a system message")
	}

	h2 := newHarness(t, func(o *Options) { o.Speech = NewSpeechRelay() })
	s := h2.ctrl.Settings()
	s.EnableVoice = false
	if err := h2.ctrl.UpdateSettings(ctx, s); err != nil {
		t.Fatalf("update settings: %v", err)
	}
	if err := h2.ctrl.StartVoiceCapture(ctx); !errors.Is(err, ErrVoiceDisabled) {
		t.Fatalf("expected ErrVoiceDisabled, got %v", err)
	}
	if got := lastMessage(t, h2.ctrl).Content; got != "Voice input is disabled. Enable it in settings." {
		t.Fatalf("unexpected message %q", got)
	}

	h3 := newHarness(t, func(o *Options) { o.Speech = failingRecognizer{} })
	if err := h3.ctrl.StartVoiceCapture(ctx); err == nil {
		t.Fatalf("expected recognizer error")
	}
	if h3.ctrl.Snapshot().Listening {
		t.Fatalf("listening must be reset when the recognizer fails to start")
	}
	if got := lastMessage(t, h3.ctrl).Content; !strings.HasPrefix(got, "Voice input failed: not-allowed") {
		t.Fatalf("unexpected message %q", got)
	}
}

func TestNotificationPermissionFlow(t *testing.T) {
	relay := NewNotificationRelay()
	h := newHarness(t, func(o *Options) { o.Notifier = relay })
	ctx := context.Background()

	relay.Answer(PermissionDenied)
	perm, err := h.ctrl.RequestNotificationPermission(ctx)
	if err != nil || perm != PermissionDenied {
		t.Fatalf("deny: perm=%s err=%v", perm, err)
	}
	if lastMessage(t, h.ctrl).Sender != models.SenderSystem {
		t.Fatalf("expected a system message after a denial")
	}

	relay.Answer(PermissionGranted)
	perm, err = h.ctrl.RequestNotificationPermission(ctx)
	if err != nil || perm != PermissionGranted {
		t.Fatalf("grant: perm=%s err=%v", perm, err)
	}
	if got := lastMessage(t, h.ctrl).Content; got != "🔔 Notifications enabled!" {
		t.Fatalf("unexpected message %q", got)
	}
	if !h.ctrl.Settings().EnableNotifications {
		t.Fatalf("grant should enable notifications")
	}
	if got := h.ctrl.Snapshot().Capabilities.Permission; got != PermissionGranted {
		t.Fatalf("snapshot permission %q", got)
	}

	before := len(h.ctrl.Messages())
	perm, err = h.ctrl.RequestNotificationPermission(ctx)
	if err != nil || perm != PermissionGranted {
		t.Fatalf("repeat: perm=%s err=%v", perm, err)
	}
	requireLen(t, h.ctrl.Messages(), before)
}

func TestNotificationPermissionRestoredOnMount(t *testing.T) {
	store := storage.NewMemoryStore()
	ctx := context.Background()

	first := NewNotificationRelay()
	h := newHarness(t, func(o *Options) { o.Store = store; o.Notifier = first })
	first.Answer(PermissionGranted)
	if _, err := h.ctrl.RequestNotificationPermission(ctx); err != nil {
		t.Fatalf("grant: %v", err)
	}
	h.ctrl.Unmount()

	second := NewNotificationRelay()
	again := newHarness(t, func(o *Options) { o.Store = store; o.Notifier = second })
	if got := second.Permission(); got != PermissionGranted {
		t.Fatalf("expected restored grant, got %q", got)
	}
	if got := again.ctrl.Snapshot().Capabilities.Permission; got != PermissionGranted {
		t.Fatalf("snapshot permission %q", got)
	}

	// a corrupt record falls back to the platform default
	_ = store.Set(ctx, PermissionKey("visitor-1"), []byte("{"))
	third := NewNotificationRelay()
	newHarness(t, func(o *Options) { o.Store = store; o.Notifier = third })
	if got := third.Permission(); got != PermissionDefault {
		t.Fatalf("expected default permission, got %q", got)
	}
}

func TestNotificationRaisedForBotMessageWhileClosed(t *testing.T) {
	relay := NewNotificationRelay()
	h := newHarness(t, func(o *Options) { o.Notifier = relay })
	ctx := context.Background()
	relay.Answer(PermissionGranted)
	if _, err := h.ctrl.RequestNotificationPermission(ctx); err != nil {
		t.Fatalf("grant: %v", err)
	}

	events, stop := h.ctrl.Subscribe()
	defer stop()

	mustSend(t, h.ctrl, "tell me about the company")
	h.sched.Advance(replyDelay)

	deadline := time.After(time.Second)
	for {
		select {
		case ev := <-events:
			if ev.Type != EventNotification {
				continue
			}
			n := ev.Notification
			if n.Title != DefaultCompanyName {
				t.Fatalf("unexpected title %q", n.Title)
			}
			if strings.Contains(n.Body, "**") || len([]rune(n.Body)) > 103 {
				t.Fatalf("body should be stripped and truncated: %q", n.Body)
			}
			return
		case <-deadline:
			t.Fatalf("no notification event")
		}
	}
}

func TestNotificationUnavailable(t *testing.T) {
	h := newHarness(t, nil)
	if _, err := h.ctrl.RequestNotificationPermission(context.Background()); !errors.Is(err, ErrCapabilityUnavailable) {
		t.Fatalf("expected ErrCapabilityUnavailable, got %v", err)
	}
}

func TestNotificationBodyTruncates(t *testing.T) {
	if got := notificationBody("**" + strings.Repeat("a", 150) + "**"); got != strings.Repeat("a", 100)+"..." {
		t.Fatalf("unexpected body %q", got)
	}
	if got := notificationBody("**short**"); got != "short" {
		t.Fatalf("unexpected body %q", got)
	}
}

func TestNotificationRelayRequiresGrant(t *testing.T) {
	relay := NewNotificationRelay()
	if err := relay.Notify(context.Background(), "t", "b"); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("expected ErrPermissionDenied, got %v", err)
	}
	relay.Answer("bogus")
	perm, err := relay.RequestPermission(context.Background())
	if err != nil || perm != PermissionDefault {
		t.Fatalf("bogus answer: perm=%s err=%v", perm, err)
	}
	relay.RestorePermission("bogus")
	if got := relay.Permission(); got != PermissionDefault {
		t.Fatalf("invalid restore changed permission to %q", got)
	}
}
