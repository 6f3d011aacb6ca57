package webhook

import (
	"context"
	"crypto/subtle"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"opomelilla_bot/internal/logging"
	"opomelilla_bot/internal/update"
)

const (
	// Path is where Telegram delivers updates.
	Path = "/webhook"
	// SecretHeader carries the secret token registered with setWebhook.
	SecretHeader = "X-Telegram-Bot-Api-Secret-Token"
	// RequestIDHeader echoes the per-request correlation id.
	RequestIDHeader = "X-Request-ID"

	statusMessage = "Telegram webhook endpoint is working!"
)

// UpdateRouter routes a decoded update.
type UpdateRouter interface {
	Route(ctx context.Context, in update.Inbound) (Response, error)
}

// Handler exposes the webhook endpoint over HTTP.
type Handler struct {
	router UpdateRouter
	secret string
	logger *logrus.Entry
	now    func() time.Time
	newID  func() string
}

// NewHandler constructs a Handler. An empty secret disables the header check.
func NewHandler(router UpdateRouter, secret string, logger *logrus.Entry) *Handler {
	return &Handler{
		router: router,
		secret: secret,
		logger: logging.OrDefault(logger),
		now:    time.Now,
		newID:  uuid.NewString,
	}
}

// Register mounts the webhook routes.
func (h *Handler) Register(r gin.IRouter) {
	r.GET(Path, h.status)
	r.POST(Path, h.receive)
}

func (h *Handler) status(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"message":   statusMessage,
		"timestamp": h.now().UTC().Format(time.RFC3339Nano),
	})
}

func (h *Handler) receive(c *gin.Context) {
	requestID := h.newID()
	c.Header(RequestIDHeader, requestID)
	logger := h.logger.WithField("request_id", requestID)

	defer func() {
		if recovered := recover(); recovered != nil {
			logger.WithFields(logging.Fields{
				"event": "webhook_panic",
				"panic": fmt.Sprint(recovered),
			}).Error("webhook handler panicked")
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"ok": false, "error": "internal server error"})
		}
	}()

	if h.secret != "" && subtle.ConstantTimeCompare([]byte(c.GetHeader(SecretHeader)), []byte(h.secret)) != 1 {
		logger.WithField("event", "webhook_unauthorized").Warn("rejected update with invalid secret token")
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"ok": false, "error": "unauthorized"})
		return
	}

	body, err := c.GetRawData()
	if err != nil {
		logger.WithError(err).WithField("event", "webhook_read_failed").Warn("failed to read update body")
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"ok": false, "error": "invalid update"})
		return
	}

	in, err := update.Decode(body)
	if err != nil {
		logger.WithError(err).WithField("event", "webhook_invalid_update").Warn("failed to decode update")
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"ok": false, "error": "invalid update"})
		return
	}

	ctx := logging.ContextWithRequestID(c.Request.Context(), requestID)
	resp, err := h.router.Route(ctx, in)
	if err != nil {
		meta := update.Describe(in)
		logger.WithFields(logging.Fields{
			"event":       "webhook_route_failed",
			"update_id":   meta.UpdateID,
			"update_type": meta.UpdateType,
			"user_id":     meta.UserID,
		}).WithError(err).Error("failed to route update")
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"ok": false, "error": "internal server error"})
		return
	}

	if resp.Type != update.KindHealthCheck.String() {
		logger.WithFields(logging.Fields{
			"event":     "webhook_update_handled",
			"update_id": in.UpdateID,
			"type":      resp.Type,
		}).Debug("update handled")
	}

	c.JSON(http.StatusOK, resp)
}
