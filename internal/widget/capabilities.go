package widget

import (
	"context"
	"errors"
	"io"
	"time"

	"nesturechat/internal/models"
)

var (
	ErrEmptyMessage          = errors.New("message is empty")
	ErrCapabilityUnavailable = errors.New("capability unavailable")
	ErrVoiceDisabled         = errors.New("voice input disabled")
	ErrVoiceBusy             = errors.New("voice capture already in progress")
	ErrNoVoiceSession        = errors.New("no voice capture in progress")
	ErrPermissionDenied      = errors.New("notification permission not granted")
	ErrInvalidAttachment     = errors.New("unsupported attachment type")
	ErrAttachmentTooLarge    = errors.New("attachment too large")
	ErrMessageNotFound       = errors.New("message not found")
	ErrUnknownQuickReply     = errors.New("unknown quick reply")
	ErrInvalidExport         = errors.New("invalid chat export")
	ErrInvalidSettings       = errors.New("invalid settings")
	ErrUnmounted             = errors.New("widget unmounted")
)

// SpeechRecognizer runs one non-continuous recognition session at a time.
// Exactly one of onResult or onError is invoked per started session.
type SpeechRecognizer interface {
	Start(lang string, onResult func(transcript string), onError func(code string)) error
	Abort()
}

type Permission string

const (
	PermissionDefault Permission = "default"
	PermissionGranted Permission = "granted"
	PermissionDenied  Permission = "denied"
)

// Notifier raises platform notifications once permission is granted.
type Notifier interface {
	Permission() Permission
	RequestPermission(ctx context.Context) (Permission, error)
	Notify(ctx context.Context, title, body string) error
}

// permissionRestorer is a Notifier whose decision can be seeded from a
// previously persisted answer.
type permissionRestorer interface {
	RestorePermission(p Permission)
}

// Clipboard receives copied message text.
type Clipboard interface {
	WriteText(ctx context.Context, text string) error
}

// Uploader transmits accepted attachments and returns where they went.
type Uploader interface {
	Upload(ctx context.Context, owner string, att models.Attachment, body io.Reader) (string, error)
}

// Scheduler defers f by d. The returned stop reports whether f was prevented from running.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) (stop func() bool)
}

type realScheduler struct{}

func (realScheduler) AfterFunc(d time.Duration, f func()) func() bool {
	return time.AfterFunc(d, f).Stop
}
