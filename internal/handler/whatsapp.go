package handler

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"autoasesor/internal/messaging"
	"autoasesor/internal/model"
	"autoasesor/internal/service"
)

const msgWhatsAppAck = ""

const msgProcessingError = "Lo siento, ocurrió un error al procesar tu mensaje. Por favor intenta de nuevo."

// WhatsAppHandler handles the inbound Twilio webhook. The sync response
// is always a 200 TwiML document so the transport never retry-storms;
// the actual processing runs in the background.
type WhatsAppHandler struct {
	agent  *service.Agent
	sender *messaging.TwilioClient
	runner *service.Runner
	logger *zap.Logger
}

// NewWhatsAppHandler creates a new webhook handler
func NewWhatsAppHandler(agent *service.Agent, sender *messaging.TwilioClient, runner *service.Runner, logger *zap.Logger) *WhatsAppHandler {
	return &WhatsAppHandler{
		agent:  agent,
		sender: sender,
		runner: runner,
		logger: logger,
	}
}

// Webhook handles POST /api/v1/whatsapp/webhook
func (h *WhatsAppHandler) Webhook(c *gin.Context) {
	var event model.WhatsAppWebhookEvent
	if err := c.ShouldBind(&event); err != nil {
		h.logger.Warn("malformed webhook payload", zap.Error(err))
		h.replyTwiML(c, msgWhatsAppAck)
		return
	}

	h.logger.Info("whatsapp message received",
		zap.String("from", event.From),
		zap.String("profile", event.ProfileName),
		zap.Int("chars", len(event.Body)))

	if event.Body != "" {
		from := event.From
		userID := event.UserID()
		body := event.Body

		h.runner.Go("whatsapp-process", func(ctx context.Context) error {
			result := h.agent.ProcessQuery(ctx, body, userID)

			if err := h.sender.SendWhatsApp(ctx, from, result.Response); err != nil {
				// Best-effort apology; its own failure is only logged
				if notifyErr := h.sender.SendWhatsApp(ctx, from, msgProcessingError); notifyErr != nil {
					h.logger.Error("failed to notify user of send failure",
						zap.String("to", from),
						zap.Error(notifyErr))
				}
				return fmt.Errorf("outbound send failed: %w", err)
			}
			return nil
		})
	}

	h.replyTwiML(c, msgWhatsAppAck)
}

// replyTwiML always acknowledges with 200, even on internal failure
func (h *WhatsAppHandler) replyTwiML(c *gin.Context, message string) {
	body, err := messaging.EncodeTwiML(message)
	if err != nil {
		h.logger.Error("failed to encode twiml ack", zap.Error(err))
		c.Data(http.StatusOK, "application/xml", []byte(xmlFallbackAck))
		return
	}
	c.Data(http.StatusOK, "application/xml", body)
}

const xmlFallbackAck = `<?xml version="1.0" encoding="UTF-8"?><Response></Response>`
