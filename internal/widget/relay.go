package widget

import (
	"context"
	"sync"
)

// SpeechRelay is a SpeechRecognizer whose sessions are completed by the page:
// the browser runs recognition and posts back a transcript or an error code.
type SpeechRelay struct {
	mu       sync.Mutex
	active   bool
	lang     string
	onResult func(string)
	onError  func(string)
}

func NewSpeechRelay() *SpeechRelay {
	return &SpeechRelay{}
}

func (r *SpeechRelay) Start(lang string, onResult func(string), onError func(string)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active {
		return ErrVoiceBusy
	}
	r.active = true
	r.lang = lang
	r.onResult = onResult
	r.onError = onError
	return nil
}

func (r *SpeechRelay) Abort() {
	r.mu.Lock()
	r.reset()
	r.mu.Unlock()
}

// Active reports whether a session awaits completion, and its language.
func (r *SpeechRelay) Active() (bool, string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active, r.lang
}

// Deliver completes the session with a transcript.
func (r *SpeechRelay) Deliver(transcript string) error {
	r.mu.Lock()
	if !r.active {
		r.mu.Unlock()
		return ErrNoVoiceSession
	}
	cb := r.onResult
	r.reset()
	r.mu.Unlock()
	if cb != nil {
		cb(transcript)
	}
	return nil
}

// Fail completes the session with a platform error code.
func (r *SpeechRelay) Fail(code string) error {
	r.mu.Lock()
	if !r.active {
		r.mu.Unlock()
		return ErrNoVoiceSession
	}
	cb := r.onError
	r.reset()
	r.mu.Unlock()
	if cb != nil {
		cb(code)
	}
	return nil
}

func (r *SpeechRelay) reset() {
	r.active = false
	r.onResult = nil
	r.onError = nil
}

// NotificationRelay is a Notifier for a browser page. The page prompts the
// visitor itself and reports the decision through Answer; notifications are
// delivered to the page as widget events.
type NotificationRelay struct {
	mu         sync.Mutex
	permission Permission
	answer     Permission
}

func NewNotificationRelay() *NotificationRelay {
	return &NotificationRelay{permission: PermissionDefault, answer: PermissionDefault}
}

// Answer records the visitor's response to the platform prompt.
func (r *NotificationRelay) Answer(p Permission) {
	switch p {
	case PermissionGranted, PermissionDenied:
	default:
		p = PermissionDefault
	}
	r.mu.Lock()
	r.answer = p
	r.mu.Unlock()
}

// RestorePermission seeds a decision the visitor made in an earlier mount.
func (r *NotificationRelay) RestorePermission(p Permission) {
	switch p {
	case PermissionGranted, PermissionDenied:
	default:
		return
	}
	r.mu.Lock()
	r.permission = p
	r.answer = p
	r.mu.Unlock()
}

func (r *NotificationRelay) Permission() Permission {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.permission
}

func (r *NotificationRelay) RequestPermission(ctx context.Context) (Permission, error) {
	if err := ctx.Err(); err != nil {
		return PermissionDefault, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.permission = r.answer
	return r.permission, nil
}

func (r *NotificationRelay) Notify(_ context.Context, _, _ string) error {
	if r.Permission() != PermissionGranted {
		return ErrPermissionDenied
	}
	return nil
}
