package handlers

import (
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/troikatech/voice-orchestrator/internal/orchestrator"
	"github.com/troikatech/voice-orchestrator/internal/store"
	"github.com/troikatech/voice-orchestrator/pkg/errors"
	"github.com/troikatech/voice-orchestrator/pkg/logger"
	"github.com/troikatech/voice-orchestrator/pkg/webhook"
)

// VoiceWebhookPayload is the superset of fields the provider posts across
// callback types. Unknown extra fields are ignored.
type VoiceWebhookPayload struct {
	UUID         string `json:"uuid" form:"uuid"`
	From         string `json:"from" form:"from"`
	To           string `json:"to" form:"to"`
	Direction    string `json:"direction" form:"direction"`
	Status       string `json:"status" form:"status"`
	Detail       string `json:"detail" form:"detail"`
	SpeechText   string `json:"speech_text" form:"speech_text"`
	Dtmf         string `json:"dtmf" form:"dtmf"`
	Attempt      int    `json:"attempt" form:"attempt"`
	RecordingURL string `json:"recording_url" form:"recording_url"`
	Cost         string `json:"cost" form:"cost"`
	Timestamp    string `json:"timestamp" form:"timestamp"`
}

// verifyWebhook checks the HMAC signature on form-encoded deliveries.
// JSON deliveries from the provider are unsigned and pass through.
func (h *Handler) verifyWebhook(c *gin.Context) bool {
	if h.cfg.VoiceWebhookSecret == "" {
		return true
	}
	if !strings.Contains(c.ContentType(), "form") {
		return true
	}
	if err := c.Request.ParseForm(); err != nil {
		return false
	}
	sig := c.GetHeader("X-Voice-Signature")
	if err := webhook.VerifySignature(h.cfg.VoiceWebhookSecret, c.Request.PostForm, sig); err != nil {
		h.logger.Warn("webhook signature rejected",
			zap.String("path", c.FullPath()), zap.Error(err))
		return false
	}
	return true
}

// AnswerWebhook handles the answer callback for both directions. Outbound
// calls carry their call_id in the query; inbound calls are keyed by the
// provider leg id. The response body is the initial instruction flow.
func (h *Handler) AnswerWebhook(c *gin.Context) {
	if !h.verifyWebhook(c) {
		errors.Unauthorized(c, "invalid webhook signature")
		return
	}

	var payload VoiceWebhookPayload
	if err := c.ShouldBind(&payload); err != nil {
		h.logger.Warn("unparseable answer payload, serving fallback", zap.Error(err))
		c.JSON(http.StatusOK, h.adapter.Goodbye("We're unable to take your call right now. Please try again later."))
		return
	}

	callID := c.Query("call_id")
	direction := store.DirectionOutbound
	if callID == "" {
		if payload.UUID == "" {
			h.logger.Warn("answer callback without call identifier, serving fallback")
			c.JSON(http.StatusOK, h.adapter.Goodbye("We're unable to take your call right now. Please try again later."))
			return
		}
		callID = payload.UUID
		direction = store.DirectionInbound
	}
	if payload.Direction != "" {
		direction = payload.Direction
	}

	ins, err := h.orchestrator.OnAnswer(c.Request.Context(), orchestrator.StartParams{
		CallID:        callID,
		CorrelationID: payload.UUID,
		From:          payload.From,
		To:            payload.To,
		Direction:     direction,
	})
	if err != nil {
		// Never fail the provider: a broken answer flow still gets a
		// spoken apology instead of dead air.
		h.logger.Error("answer flow failed, serving fallback",
			zap.String("call_id", callID), zap.Error(err))
		c.JSON(http.StatusOK, h.adapter.Goodbye("We're unable to take your call right now. Please try again later."))
		return
	}

	c.JSON(http.StatusOK, ins)
}

// InputWebhook handles recognized speech, DTMF, or a silence timeout.
func (h *Handler) InputWebhook(c *gin.Context) {
	if !h.verifyWebhook(c) {
		errors.Unauthorized(c, "invalid webhook signature")
		return
	}

	callID := c.Param("call_id")
	attempt := 1
	if qa, err := strconv.Atoi(c.Query("attempt")); err == nil && qa > attempt {
		attempt = qa
	}

	var payload VoiceWebhookPayload
	if err := c.ShouldBind(&payload); err != nil {
		// A stalled webhook response hangs the live call; re-prompt
		// instead of bouncing the delivery.
		h.logger.Warn("unparseable input payload, re-prompting",
			zap.String("call_id", callID), zap.Error(err))
		c.JSON(http.StatusOK, h.adapter.RePrompt(callID, attempt))
		return
	}
	if payload.Attempt > attempt {
		attempt = payload.Attempt
	}

	ins := h.orchestrator.OnInput(c.Request.Context(), callID, payload.SpeechText, payload.Dtmf, attempt)
	c.JSON(http.StatusOK, ins)
}

// EventWebhook folds asynchronous status callbacks into the session.
// Always answers 200: the provider retries on anything else and the event
// trail tolerates gaps better than it tolerates storms.
func (h *Handler) EventWebhook(c *gin.Context) {
	if !h.verifyWebhook(c) {
		errors.Unauthorized(c, "invalid webhook signature")
		return
	}

	callID := c.Param("call_id")
	var payload VoiceWebhookPayload
	if err := c.ShouldBind(&payload); err != nil {
		h.logger.Warn("unparseable event webhook", zap.String("call_id", callID))
		c.JSON(http.StatusOK, gin.H{"message": "ignored"})
		return
	}

	dedupeKey := callID + ":" + payload.Status + ":" + payload.Timestamp
	if !h.deduper.FirstDelivery(c, dedupeKey) {
		c.JSON(http.StatusOK, gin.H{"message": "duplicate"})
		return
	}

	h.orchestrator.OnProviderEvent(c.Request.Context(), callID, payload.Status, payload.Detail, parseCostCents(payload.Cost))
	c.JSON(http.StatusOK, gin.H{"message": "processed"})
}

// parseCostCents converts the provider's decimal cost string ("0.0150")
// to whole cents, rounding half up. Unparseable values are zero.
func parseCostCents(cost string) int {
	if cost == "" {
		return 0
	}
	f, err := strconv.ParseFloat(cost, 64)
	if err != nil || f <= 0 {
		return 0
	}
	return int(math.Round(f * 100))
}

// RecordingWebhook stores the call recording location.
func (h *Handler) RecordingWebhook(c *gin.Context) {
	if !h.verifyWebhook(c) {
		errors.Unauthorized(c, "invalid webhook signature")
		return
	}

	callID := c.Param("call_id")
	var payload VoiceWebhookPayload
	if err := c.ShouldBind(&payload); err != nil {
		c.JSON(http.StatusOK, gin.H{"message": "ignored"})
		return
	}

	h.orchestrator.OnRecording(c.Request.Context(), callID, payload.RecordingURL)
	c.JSON(http.StatusOK, gin.H{"message": "processed"})
}

// VoicemailWebhook lands the voicemail recording and closes the call.
func (h *Handler) VoicemailWebhook(c *gin.Context) {
	if !h.verifyWebhook(c) {
		errors.Unauthorized(c, "invalid webhook signature")
		return
	}

	callID := c.Param("call_id")
	var payload VoiceWebhookPayload
	if err := c.ShouldBind(&payload); err != nil {
		c.JSON(http.StatusOK, gin.H{"message": "ignored"})
		return
	}

	h.orchestrator.OnVoicemailRecording(c.Request.Context(), callID, payload.RecordingURL)
	c.JSON(http.StatusOK, gin.H{"message": "processed"})
}

// TransferWebhook reports the outcome of a connect leg.
func (h *Handler) TransferWebhook(c *gin.Context) {
	if !h.verifyWebhook(c) {
		errors.Unauthorized(c, "invalid webhook signature")
		return
	}

	callID := c.Param("call_id")
	var payload VoiceWebhookPayload
	if err := c.ShouldBind(&payload); err != nil {
		c.JSON(http.StatusOK, gin.H{"message": "ignored"})
		return
	}

	dedupeKey := callID + ":transfer:" + payload.UUID + ":" + payload.Status
	if !h.deduper.FirstDelivery(c, dedupeKey) {
		c.JSON(http.StatusOK, gin.H{"message": "duplicate"})
		return
	}

	h.logger.Info("transfer result",
		zap.String("call_id", callID),
		zap.String("outcome", payload.Status),
		logger.MaskPhoneIfPresent("to", payload.To))
	h.orchestrator.OnTransferResult(c.Request.Context(), callID, payload.Status, payload.UUID)
	c.JSON(http.StatusOK, gin.H{"message": "processed"})
}

// MachineWebhook handles answering-machine detection on outbound calls.
// A machine result replaces the flow with a short missed-you message; a
// human result falls through to the normal greeting flow.
func (h *Handler) MachineWebhook(c *gin.Context) {
	if !h.verifyWebhook(c) {
		errors.Unauthorized(c, "invalid webhook signature")
		return
	}

	callID := c.Param("call_id")
	var payload VoiceWebhookPayload
	if err := c.ShouldBind(&payload); err != nil {
		h.logger.Warn("unparseable machine-detection payload",
			zap.String("call_id", callID), zap.Error(err))
	}

	if payload.Status == "human" {
		ins, err := h.orchestrator.OnAnswer(c.Request.Context(), orchestrator.StartParams{
			CallID:        callID,
			CorrelationID: payload.UUID,
			From:          payload.From,
			To:            payload.To,
			Direction:     store.DirectionOutbound,
		})
		if err != nil {
			h.logger.Error("greeting flow failed after human detection",
				zap.String("call_id", callID), zap.Error(err))
			c.JSON(http.StatusOK, h.adapter.Goodbye(""))
			return
		}
		c.JSON(http.StatusOK, ins)
		return
	}

	ins := h.orchestrator.OnMachine(c.Request.Context(), callID)
	c.JSON(http.StatusOK, ins)
}
