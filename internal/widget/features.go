package widget

import (
	"context"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"nesturechat/internal/models"
)

const (
	msgVoiceDisabled     = "Voice input is disabled. Enable it in settings."
	msgVoiceUnsupported  = "Voice recognition not supported in this browser. Please try typing instead."
	msgListening         = "🎤 Listening... Speak now."
	msgVoiceFailedFormat = "Voice input failed: %s. Please try typing instead."
	msgNotifyEnabled     = "🔔 Notifications enabled!"
	msgNotifyDeclined    = "🔕 Notifications were not enabled. You can allow them any time from settings."
	msgNotifyUnsupported = "Notifications are not supported in this browser."
	msgInvalidFileType   = "❌ Please upload images, text files, or PDFs only."
	msgFileTooLargeFmt   = "❌ File size must be less than %dMB."
	msgFileUploadedFmt   = "📎 File \"%s\" uploaded successfully!"
	msgFileFailedFmt     = "❌ Upload of \"%s\" failed. Please try again."
)

var acceptedMIMEPrefixes = []string{"image/", "text/", "application/pdf"}

// StartVoiceCapture begins one recognition session. The transcript is sent
// as a user message once the recognizer reports it.
func (c *Controller) StartVoiceCapture(ctx context.Context) error {
	c.mu.Lock()
	if c.unmounted {
		c.mu.Unlock()
		return ErrUnmounted
	}
	if !c.settings.EnableVoice {
		c.systemMessageLocked(ctx, msgVoiceDisabled)
		c.mu.Unlock()
		return ErrVoiceDisabled
	}
	if c.opts.Speech == nil {
		c.systemMessageLocked(ctx, msgVoiceUnsupported)
		c.mu.Unlock()
		return ErrCapabilityUnavailable
	}
	if c.listening {
		c.mu.Unlock()
		return ErrVoiceBusy
	}
	c.listening = true
	c.voiceSession++
	session := c.voiceSession
	lang := c.settings.Language
	c.systemMessageLocked(ctx, msgListening)
	c.mu.Unlock()

	err := c.opts.Speech.Start(lang,
		func(transcript string) { c.voiceResult(session, transcript) },
		func(code string) { c.voiceError(session, code) },
	)
	if err == nil {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.voiceSession == session && c.listening {
		c.listening = false
		c.systemMessageLocked(ctx, fmt.Sprintf(msgVoiceFailedFormat, err.Error()))
	}
	return fmt.Errorf("start voice capture: %w", err)
}

func (c *Controller) voiceResult(session uint64, transcript string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.unmounted || c.voiceSession != session || !c.listening {
		return
	}
	c.listening = false
	c.input = transcript
	trimmed := strings.TrimSpace(transcript)
	if trimmed == "" {
		c.emitStateLocked()
		return
	}
	c.sendLocked(context.Background(), trimmed)
}

func (c *Controller) voiceError(session uint64, code string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.unmounted || c.voiceSession != session || !c.listening {
		return
	}
	c.listening = false
	c.systemMessageLocked(context.Background(), fmt.Sprintf(msgVoiceFailedFormat, code))
}

// RequestNotificationPermission prompts through the platform. Permission
// already granted returns immediately.
func (c *Controller) RequestNotificationPermission(ctx context.Context) (Permission, error) {
	c.mu.Lock()
	if c.unmounted {
		c.mu.Unlock()
		return PermissionDefault, ErrUnmounted
	}
	if c.opts.Notifier == nil {
		c.systemMessageLocked(ctx, msgNotifyUnsupported)
		c.mu.Unlock()
		return PermissionDefault, ErrCapabilityUnavailable
	}
	c.mu.Unlock()

	notifier := c.opts.Notifier
	if notifier.Permission() == PermissionGranted {
		return PermissionGranted, nil
	}
	perm, err := notifier.RequestPermission(ctx)
	if err != nil {
		return PermissionDefault, fmt.Errorf("request notification permission: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.unmounted {
		return perm, nil
	}
	if perm != PermissionDefault {
		c.savePermissionLocked(ctx, perm)
	}
	if perm == PermissionGranted {
		c.settings.EnableNotifications = true
		c.saveSettingsLocked(ctx)
		c.systemMessageLocked(ctx, msgNotifyEnabled)
	} else {
		c.systemMessageLocked(ctx, msgNotifyDeclined)
	}
	return perm, nil
}

// FileUpload is a file the visitor picked, before validation.
type FileUpload struct {
	Name     string
	MimeType string
	Size     int64
	Body     io.Reader
}

// AttachFile validates a file, hands accepted files to the uploader and
// acknowledges them in the transcript.
func (c *Controller) AttachFile(ctx context.Context, f FileUpload) (models.Attachment, error) {
	c.mu.Lock()
	if c.unmounted {
		c.mu.Unlock()
		return models.Attachment{}, ErrUnmounted
	}
	if !acceptedType(f.MimeType) {
		c.systemMessageLocked(ctx, msgInvalidFileType)
		c.mu.Unlock()
		return models.Attachment{}, fmt.Errorf("%w: %s", ErrInvalidAttachment, f.MimeType)
	}
	if f.Size > c.opts.MaxAttachmentBytes {
		err := c.rejectOversizeLocked(ctx, f.Size)
		c.mu.Unlock()
		return models.Attachment{}, err
	}
	c.mu.Unlock()

	att := models.Attachment{
		Name:       f.Name,
		MimeType:   f.MimeType,
		Size:       f.Size,
		AcceptedAt: c.opts.Now().UTC(),
	}
	location, err := c.opts.Uploader.Upload(ctx, c.opts.VisitorID, att, f.Body)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.unmounted {
		return att, ErrUnmounted
	}
	if err != nil {
		log.Printf("widget %s: upload %s: %v", c.opts.VisitorID, f.Name, err)
		c.systemMessageLocked(ctx, fmt.Sprintf(msgFileFailedFmt, f.Name))
		return att, fmt.Errorf("upload attachment: %w", err)
	}
	att.Location = location
	msg := c.newMessage(fmt.Sprintf(msgFileUploadedFmt, f.Name), models.SenderSystem, models.TypeSystem)
	msg.EnsureMetadata().Attachments = []string{f.Name}
	c.appendLocked(ctx, msg)
	return att, nil
}

// RejectOversizeAttachment posts the size rejection for a file the transport
// refused before it was fully read. size may be -1 when unknown.
func (c *Controller) RejectOversizeAttachment(ctx context.Context, size int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.unmounted {
		return ErrUnmounted
	}
	return c.rejectOversizeLocked(ctx, size)
}

func (c *Controller) rejectOversizeLocked(ctx context.Context, size int64) error {
	c.systemMessageLocked(ctx, fmt.Sprintf(msgFileTooLargeFmt, c.opts.MaxAttachmentBytes>>20))
	return fmt.Errorf("%w: %d bytes", ErrAttachmentTooLarge, size)
}

func acceptedType(mime string) bool {
	mime = strings.ToLower(strings.TrimSpace(mime))
	for _, prefix := range acceptedMIMEPrefixes {
		if strings.HasPrefix(mime, prefix) {
			return true
		}
	}
	return false
}

// OpenMessaging returns the messaging deep link and records the click.
func (c *Controller) OpenMessaging() string {
	c.opts.Tracker.Track("whatsapp_click", map[string]any{
		"source":    "floating_phone_button",
		"timestamp": c.opts.Now().UTC().Format(time.RFC3339),
	})
	return c.opts.Links.Messaging()
}

// OpenScheduling returns the scheduling link and records the click.
func (c *Controller) OpenScheduling() string {
	c.opts.Tracker.Track("schedule_call_click", map[string]any{
		"source":    "chat_widget",
		"timestamp": c.opts.Now().UTC().Format(time.RFC3339),
	})
	return c.opts.Links.Scheduling()
}
