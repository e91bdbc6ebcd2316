package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"nesturechat/internal/auth"
	"nesturechat/internal/models"
	"nesturechat/internal/widget"
	"nesturechat/internal/worker"
)

const (
	sessionContextKey = "widget_session"
	maxImportBytes    = 4 << 20
	heartbeatInterval = 25 * time.Second
)

// SessionProvider hands out the mounted widget of a visitor.
type SessionProvider interface {
	Acquire(ctx context.Context, visitorID string) (*worker.Session, error)
	Release(visitorID string)
}

// Handler wires HTTP routes to per-visitor widget controllers.
type Handler struct {
	auth           *auth.Service
	sessions       SessionProvider
	maxUploadBytes int64
	metrics        http.Handler
	// allowedOrigins lists cross-site pages that may open the widget socket.
	allowedOrigins []string
}

// NewHandler constructs a Handler instance. metrics may be nil.
func NewHandler(authService *auth.Service, sessions SessionProvider, maxUploadBytes int64, metrics http.Handler) *Handler {
	if maxUploadBytes <= 0 {
		maxUploadBytes = widget.DefaultMaxAttachmentBytes
	}
	return &Handler{
		auth:           authService,
		sessions:       sessions,
		maxUploadBytes: maxUploadBytes,
		metrics:        metrics,
	}
}

// AllowOrigins permits WebSocket upgrades from pages served by other hosts,
// e.g. "https://www.nesturelabs.com".
func (h *Handler) AllowOrigins(origins ...string) {
	for _, o := range origins {
		if o = strings.TrimRight(strings.TrimSpace(o), "/"); o != "" {
			h.allowedOrigins = append(h.allowedOrigins, o)
		}
	}
}

// RegisterRoutes attaches all HTTP routes to the router.
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if h.metrics != nil {
		router.GET("/metrics", gin.WrapH(h.metrics))
	}

	api := router.Group("/api")
	api.POST("/visitors", h.createVisitor)

	w := api.Group("/widget")
	w.Use(h.auth.Middleware(), h.auth.CSRFMiddleware(), h.requireSession())
	w.GET("", h.snapshot)
	w.DELETE("", h.endVisit)
	w.POST("/open", h.openWidget)
	w.POST("/close", h.closeWidget)
	w.POST("/toggle", h.toggle)
	w.POST("/minimize", h.minimize)
	w.POST("/settings-panel", h.toggleSettingsPanel)
	w.GET("/settings", h.getSettings)
	w.PUT("/settings", h.updateSettings)
	w.PUT("/input", h.setInput)
	w.GET("/messages", h.listMessages)
	w.POST("/messages", h.sendMessage)
	w.DELETE("/messages", h.clearHistory)
	w.POST("/messages/:message_id/pin", h.pinMessage)
	w.PUT("/messages/:message_id/reaction", h.reactToMessage)
	w.POST("/messages/:message_id/copy", h.copyMessage)
	w.GET("/quick-replies", h.listQuickReplies)
	w.POST("/quick-replies/:reply_id", h.dispatchQuickReply)
	w.GET("/export", h.exportHistory)
	w.GET("/download", h.downloadHistory)
	w.POST("/import", h.importHistory)
	w.POST("/voice/start", h.startVoice)
	w.POST("/voice/result", h.voiceResult)
	w.POST("/notifications/permission", h.requestNotificationPermission)
	w.POST("/attachments", h.attachFile)
	w.GET("/links/messaging", h.messagingLink)
	w.GET("/links/scheduling", h.schedulingLink)
	w.GET("/events", h.streamEvents)
	w.GET("/ws", h.widgetSocket)
}

// requireSession mounts (or reuses) the widget of the authenticated visitor.
func (h *Handler) requireSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		visitorID, ok := auth.VisitorIDFromContext(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "visitor token required"})
			return
		}
		session, err := h.sessions.Acquire(c.Request.Context(), visitorID)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
			return
		}
		c.Set(sessionContextKey, session)
		c.Next()
	}
}

func sessionFromContext(c *gin.Context) *worker.Session {
	val, ok := c.Get(sessionContextKey)
	if !ok {
		return nil
	}
	session, _ := val.(*worker.Session)
	return session
}

func controller(c *gin.Context) *widget.Controller {
	return sessionFromContext(c).Controller
}

// writeError maps widget errors onto HTTP statuses.
func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, widget.ErrEmptyMessage),
		errors.Is(err, widget.ErrInvalidSettings),
		errors.Is(err, widget.ErrInvalidExport),
		errors.Is(err, widget.ErrInvalidAttachment):
		status = http.StatusBadRequest
	case errors.Is(err, widget.ErrMessageNotFound),
		errors.Is(err, widget.ErrUnknownQuickReply):
		status = http.StatusNotFound
	case errors.Is(err, widget.ErrVoiceBusy),
		errors.Is(err, widget.ErrVoiceDisabled),
		errors.Is(err, widget.ErrNoVoiceSession):
		status = http.StatusConflict
	case errors.Is(err, widget.ErrAttachmentTooLarge):
		status = http.StatusRequestEntityTooLarge
	case errors.Is(err, widget.ErrCapabilityUnavailable):
		status = http.StatusNotImplemented
	case errors.Is(err, widget.ErrUnmounted):
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

// Visitor lifecycle

func (h *Handler) createVisitor(c *gin.Context) {
	visitorID, authToken, err := h.auth.NewVisitor(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "issue token failed"})
		return
	}
	csrfToken, err := h.auth.NewCSRFToken()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "issue token failed"})
		return
	}
	h.setAuthCookies(c, authToken, csrfToken)
	c.JSON(http.StatusCreated, gin.H{
		"visitor_id": visitorID,
		"auth_token": authToken,
		"csrf_token": csrfToken,
	})
}

func (h *Handler) endVisit(c *gin.Context) {
	session := sessionFromContext(c)
	h.sessions.Release(session.VisitorID)
	if authToken, ok := auth.AuthTokenFromContext(c); ok {
		_ = h.auth.RevokeToken(c.Request.Context(), authToken)
	}
	h.clearAuthCookies(c)
	c.Status(http.StatusNoContent)
}

// View state

func (h *Handler) snapshot(c *gin.Context) {
	c.JSON(http.StatusOK, controller(c).Snapshot())
}

func (h *Handler) openWidget(c *gin.Context) {
	ctrl := controller(c)
	ctrl.Open(c.Request.Context())
	c.JSON(http.StatusOK, ctrl.Snapshot())
}

func (h *Handler) closeWidget(c *gin.Context) {
	ctrl := controller(c)
	ctrl.Close()
	c.JSON(http.StatusOK, ctrl.Snapshot())
}

func (h *Handler) toggle(c *gin.Context) {
	ctrl := controller(c)
	ctrl.Toggle(c.Request.Context())
	c.JSON(http.StatusOK, ctrl.Snapshot())
}

func (h *Handler) minimize(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"view": controller(c).Minimize()})
}

func (h *Handler) toggleSettingsPanel(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"view": controller(c).ToggleSettingsPanel()})
}

func (h *Handler) getSettings(c *gin.Context) {
	c.JSON(http.StatusOK, controller(c).Settings())
}

func (h *Handler) updateSettings(c *gin.Context) {
	var req models.ChatSettings
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	ctrl := controller(c)
	if err := ctrl.UpdateSettings(c.Request.Context(), req); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, ctrl.Settings())
}

func (h *Handler) setInput(c *gin.Context) {
	var req struct {
		Text string `json:"text"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	controller(c).SetInput(req.Text)
	c.Status(http.StatusNoContent)
}

// Transcript

func (h *Handler) listMessages(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"messages": controller(c).Messages()})
}

func (h *Handler) sendMessage(c *gin.Context) {
	var req struct {
		Content string `json:"content"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	ctrl := controller(c)
	if err := ctrl.SendUserMessage(c.Request.Context(), req.Content); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, ctrl.Snapshot())
}

func (h *Handler) clearHistory(c *gin.Context) {
	ctrl := controller(c)
	if err := ctrl.ClearHistory(c.Request.Context()); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": ctrl.Messages()})
}

func (h *Handler) pinMessage(c *gin.Context) {
	pinned, err := controller(c).PinMessage(c.Request.Context(), c.Param("message_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"pinned": pinned})
}

func (h *Handler) reactToMessage(c *gin.Context) {
	var req struct {
		Reaction string `json:"reaction"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if err := controller(c).ReactToMessage(c.Request.Context(), c.Param("message_id"), req.Reaction); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// copyMessage returns the plain text; the page owns the clipboard.
func (h *Handler) copyMessage(c *gin.Context) {
	text, err := controller(c).CopyMessage(c.Request.Context(), c.Param("message_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"text": text})
}

func (h *Handler) listQuickReplies(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"quick_replies": controller(c).QuickReplies()})
}

func (h *Handler) dispatchQuickReply(c *gin.Context) {
	ctrl := controller(c)
	if err := ctrl.DispatchQuickReply(c.Request.Context(), c.Param("reply_id")); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, ctrl.Snapshot())
}

// Export

func (h *Handler) exportHistory(c *gin.Context) {
	data, filename, err := controller(c).ExportHistory()
	if err != nil {
		writeError(c, err)
		return
	}
	attachment(c, filename, "application/json", data)
}

func (h *Handler) downloadHistory(c *gin.Context) {
	data, filename := controller(c).DownloadHistory()
	attachment(c, filename, "text/plain; charset=utf-8", data)
}

func attachment(c *gin.Context, filename, contentType string, data []byte) {
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, contentType, data)
}

func (h *Handler) importHistory(c *gin.Context) {
	data, err := io.ReadAll(io.LimitReader(c.Request.Body, maxImportBytes+1))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "read body failed"})
		return
	}
	if len(data) > maxImportBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "export too large"})
		return
	}
	count, err := controller(c).ImportHistory(c.Request.Context(), data)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"imported": count})
}

// Capabilities

func (h *Handler) startVoice(c *gin.Context) {
	session := sessionFromContext(c)
	if err := session.Controller.StartVoiceCapture(c.Request.Context()); err != nil {
		writeError(c, err)
		return
	}
	_, lang := session.Speech.Active()
	c.JSON(http.StatusAccepted, gin.H{"listening": true, "language": lang})
}

func (h *Handler) voiceResult(c *gin.Context) {
	session := sessionFromContext(c)
	if session.Speech == nil {
		writeError(c, widget.ErrCapabilityUnavailable)
		return
	}
	var req struct {
		Transcript string `json:"transcript"`
		Error      string `json:"error"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	var err error
	if req.Error != "" {
		err = session.Speech.Fail(req.Error)
	} else {
		err = session.Speech.Deliver(req.Transcript)
	}
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, session.Controller.Snapshot())
}

// requestNotificationPermission receives the visitor's answer to the
// browser prompt and applies it.
func (h *Handler) requestNotificationPermission(c *gin.Context) {
	session := sessionFromContext(c)
	var req struct {
		Permission string `json:"permission"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if session.Notifier != nil {
		session.Notifier.Answer(widget.Permission(req.Permission))
	}
	perm, err := session.Controller.RequestNotificationPermission(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"permission": perm})
}

func (h *Handler) attachFile(c *gin.Context) {
	// leave room so oversize files still reach the controller's size check
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, 2*h.maxUploadBytes+(1<<20))
	file, err := c.FormFile("file")
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(c, controller(c).RejectOversizeAttachment(c.Request.Context(), c.Request.ContentLength))
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}
	f, err := file.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "open file failed"})
		return
	}
	defer f.Close()

	contentType := file.Header.Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		buf := make([]byte, 512)
		n, _ := f.Read(buf)
		contentType = http.DetectContentType(buf[:n])
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "read file failed"})
			return
		}
	}

	att, err := controller(c).AttachFile(c.Request.Context(), widget.FileUpload{
		Name:     filepath.Base(file.Filename),
		MimeType: contentType,
		Size:     file.Size,
		Body:     f,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, att)
}

func (h *Handler) messagingLink(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"url": controller(c).OpenMessaging()})
}

func (h *Handler) schedulingLink(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"url": controller(c).OpenScheduling()})
}

// streamEvents pushes widget events over SSE until the client goes away
// or the widget is unmounted.
func (h *Handler) streamEvents(c *gin.Context) {
	ctrl := controller(c)
	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "streaming not supported"})
		return
	}
	events, stop := ctrl.Subscribe()
	defer stop()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	sendEvent := func(event string, payload interface{}) error {
		var data []byte
		switch v := payload.(type) {
		case string:
			data = []byte(v)
		default:
			var err error
			data, err = json.Marshal(v)
			if err != nil {
				return err
			}
		}
		if event != "" {
			if _, err := fmt.Fprintf(c.Writer, "event: %s\n", event); err != nil {
				return err
			}
		}
		if _, err := fmt.Fprintf(c.Writer, "data: %s\n\n", data); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	}

	if err := sendEvent("snapshot", ctrl.Snapshot()); err != nil {
		return
	}
	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()
	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			if _, err := fmt.Fprint(c.Writer, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case ev, ok := <-events:
			if !ok {
				_ = sendEvent("closed", gin.H{"reason": "widget unmounted"})
				return
			}
			if err := sendEvent(string(ev.Type), ev); err != nil {
				log.Printf("sse write for visitor %s failed: %v", ctrl.VisitorID(), err)
				return
			}
		}
	}
}

func (h *Handler) setAuthCookies(c *gin.Context, authToken, csrfToken string) {
	ttl := int(h.auth.TokenTTL().Seconds())
	if ttl <= 0 {
		ttl = 3600
	}
	secure := gin.Mode() == gin.ReleaseMode
	setCookie(c, &http.Cookie{
		Name:     h.auth.AuthCookieName(),
		Value:    authToken,
		MaxAge:   ttl,
		Path:     "/",
		Secure:   secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	setCookie(c, &http.Cookie{
		Name:     h.auth.CSRFCookieName(),
		Value:    csrfToken,
		MaxAge:   ttl,
		Path:     "/",
		Secure:   secure,
		HttpOnly: false,
		SameSite: http.SameSiteStrictMode,
	})
}

func (h *Handler) clearAuthCookies(c *gin.Context) {
	for _, name := range []string{h.auth.AuthCookieName(), h.auth.CSRFCookieName()} {
		setCookie(c, &http.Cookie{
			Name:     name,
			Value:    "",
			MaxAge:   -1,
			Path:     "/",
			Secure:   gin.Mode() == gin.ReleaseMode,
			HttpOnly: name == h.auth.AuthCookieName(),
			SameSite: http.SameSiteStrictMode,
		})
	}
}

func setCookie(c *gin.Context, ck *http.Cookie) {
	if ck == nil {
		return
	}
	http.SetCookie(c.Writer, ck)
}
