package main

import (
	"dialer-platform/internal/httpapi"
	"dialer-platform/internal/ivr"
	"dialer-platform/internal/rbac"
	"dialer-platform/internal/telephony"

	"github.com/gin-gonic/gin"
)

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic.
func registerRoutes(r *gin.Engine, h httpapi.Handlers, sink *ivr.Handler, authMW gin.HandlerFunc) {
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	// Provider webhooks stay public: Twilio cannot send bearer tokens.
	// NOTE: protect with Twilio signature validation in production.
	wh := telephony.TwilioWebhookHandler{Sink: sink}
	r.POST("/webhooks/twilio/answer", wh.HandleAnswer)
	r.POST("/webhooks/twilio/gather", wh.HandleGather)
	r.POST("/webhooks/twilio/status", wh.HandleStatus)
	r.POST("/webhooks/agent/outcome", wh.HandleAgentOutcome)

	r.POST("/v1/auth/login", h.Login)

	v1 := r.Group("/v1")
	v1.Use(authMW, rbac.RequireWorkspace())
	{
		dialing := v1.Group("")
		dialing.Use(rbac.RequireAnyRole(rbac.Dialing()...))
		{
			dialing.POST("/broadcasts", h.CreateBroadcast)
			dialing.PUT("/broadcasts/:id", h.UpdateBroadcast)
			dialing.DELETE("/broadcasts/:id", h.DeleteBroadcast)
			dialing.POST("/broadcasts/:id/audio", h.GenerateAudio)
			dialing.POST("/broadcasts/:id/leads", h.EnqueueLeads)

			dialing.POST("/broadcasts/:id/start", h.StartBroadcast)
			dialing.POST("/broadcasts/:id/stop", h.StopBroadcast)
			dialing.POST("/broadcasts/:id/emergency-stop", h.EmergencyStopBroadcast)
			dialing.POST("/broadcasts/:id/test-batch", h.TestBatch)
			dialing.POST("/broadcasts/:id/retry-failed", h.RetryFailed)
			dialing.POST("/broadcasts/:id/reset", h.ResetQueue)

			dialing.POST("/numbers", h.UpsertNumber)
		}

		reading := v1.Group("")
		reading.Use(rbac.RequireAnyRole(rbac.Reading()...))
		{
			reading.GET("/broadcasts", h.ListBroadcasts)
			reading.GET("/broadcasts/:id", h.GetBroadcast)
			reading.GET("/broadcasts/:id/stats", h.GetStats)
			reading.GET("/broadcasts/:id/readiness", h.GetReadiness)
			reading.GET("/broadcasts/:id/inspect", h.Inspect)
			reading.GET("/broadcasts/:id/summary", h.GetSummary)
			reading.GET("/overview", h.GetOverview)
			reading.GET("/numbers", h.ListNumbers)
			reading.GET("/events", h.StreamEvents)
		}
	}
}
