package telephony

import (
	"net/http"
	"time"

	"dialer-platform/pkg/logger"

	"github.com/gin-gonic/gin"
)

// TwilioWebhookHandler converts Twilio voice webhooks to internal callback
// types, delegates outcome decisions to the sink, and writes TwiML back.
//
// No business logic here.

type TwilioWebhookHandler struct {
	Sink CallbackSink

	Now func() time.Time
}

// HandleAnswer is hit when the callee picks up: Twilio asks what to play.
func (h TwilioWebhookHandler) HandleAnswer(c *gin.Context) {
	log := logger.FromGin(c)
	now := h.now()

	if h.Sink == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "callback sink not configured"})
		return
	}

	form, err := ParseTwilioVoiceForm(c.Request)
	if err != nil {
		log.Warn("twilio answer webhook parse failed", "err", err)
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid form"})
		return
	}

	rep, err := h.Sink.HandleAnswer(c.Request.Context(), form.ToAnswerCallback(now))
	if err != nil {
		log.Error("answer handling failed", "provider_call_id", form.CallSid, "err", err)
		h.writeHangup(c)
		return
	}
	h.writeReply(c, rep)
}

// HandleGather is hit when the callee presses a DTMF digit.
func (h TwilioWebhookHandler) HandleGather(c *gin.Context) {
	log := logger.FromGin(c)
	now := h.now()

	if h.Sink == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "callback sink not configured"})
		return
	}

	form, err := ParseTwilioVoiceForm(c.Request)
	if err != nil {
		log.Warn("twilio gather webhook parse failed", "err", err)
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid form"})
		return
	}

	rep, err := h.Sink.HandleGather(c.Request.Context(), form.ToGatherCallback(now))
	if err != nil {
		log.Error("gather handling failed", "provider_call_id", form.CallSid, "digits", form.Digits, "err", err)
		h.writeHangup(c)
		return
	}
	h.writeReply(c, rep)
}

// HandleStatus is hit on call lifecycle transitions (terminal ones included).
func (h TwilioWebhookHandler) HandleStatus(c *gin.Context) {
	log := logger.FromGin(c)
	now := h.now()

	if h.Sink == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "callback sink not configured"})
		return
	}

	form, err := ParseTwilioVoiceForm(c.Request)
	if err != nil {
		log.Warn("twilio status webhook parse failed", "err", err)
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid form"})
		return
	}

	if err := h.Sink.HandleStatus(c.Request.Context(), form.ToStatusCallback(now)); err != nil {
		// Twilio retries on 5xx; outcome application is idempotent so a retry is safe.
		log.Error("status handling failed", "provider_call_id", form.CallSid, "status", form.CallStatus, "err", err)
		c.Status(http.StatusInternalServerError)
		return
	}
	c.Status(http.StatusNoContent)
}

// HandleAgentOutcome is hit by the conversational voice agent when it
// resolves a call. Unlike the Twilio endpoints the agent posts JSON.
func (h TwilioWebhookHandler) HandleAgentOutcome(c *gin.Context) {
	log := logger.FromGin(c)

	if h.Sink == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "callback sink not configured"})
		return
	}

	var cb AgentOutcomeCallback
	if err := c.ShouldBindJSON(&cb); err != nil {
		log.Warn("agent outcome parse failed", "err", err)
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}
	if cb.OccurredAt.IsZero() {
		cb.OccurredAt = h.now()
	}

	if err := h.Sink.HandleAgentOutcome(c.Request.Context(), cb); err != nil {
		// Outcome application is idempotent, so the agent may retry.
		log.Error("agent outcome handling failed", "provider_call_id", cb.ProviderCallID, "outcome", cb.Outcome, "err", err)
		c.Status(http.StatusInternalServerError)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h TwilioWebhookHandler) writeReply(c *gin.Context, rep Reply) {
	xml, err := RenderReplyTwiML(rep)
	if err != nil {
		logger.FromGin(c).Error("twiml render failed", "err", err)
		h.writeHangup(c)
		return
	}
	c.Data(http.StatusOK, "application/xml", []byte(xml))
}

func (h TwilioWebhookHandler) writeHangup(c *gin.Context) {
	xml, err := RenderReplyTwiML(Reply{Hangup: true})
	if err != nil {
		c.Status(http.StatusInternalServerError)
		return
	}
	c.Data(http.StatusOK, "application/xml", []byte(xml))
}

func (h TwilioWebhookHandler) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}
