// Package httpapi holds the Gin handlers for the operator API.
// Keep these thin: parse/validate input, call internal services, return JSON.
package httpapi

import (
	"errors"
	"net/http"
	"time"

	"dialer-platform/internal/auth"
	"dialer-platform/internal/broadcast"
	"dialer-platform/internal/callerid"
	"dialer-platform/internal/control"
	"dialer-platform/internal/events"
	"dialer-platform/internal/monitor"
	"dialer-platform/internal/queue"
	"dialer-platform/internal/reporting"
	"dialer-platform/internal/speech"

	"github.com/gin-gonic/gin"
)

// Handlers groups HTTP handlers for dependency injection.
type Handlers struct {
	Auth       *auth.Manager
	Broadcasts *broadcast.Service
	Queue      *queue.Service
	Control    *control.Service
	Reports    *reporting.Service
	Numbers    callerid.Directory
	Synth      speech.Synthesizer
	Bus        *events.Bus
}

// --- Auth ---

type loginRequest struct {
	UserID      string `json:"user_id"`
	WorkspaceID string `json:"workspace_id"`
	Role        string `json:"role"`
}

// Login issues a JWT token pair.
//
// NOTE: skeleton endpoint; production deployments must validate
// credentials against a user store first.
func (h Handlers) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.UserID == "" || req.WorkspaceID == "" || req.Role == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "user_id, workspace_id, role required"})
		return
	}
	pair, err := h.Auth.IssuePair(time.Now(), req.UserID, req.WorkspaceID, req.Role)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "token issuance failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"access_token": pair.AccessToken, "refresh_token": pair.RefreshToken})
}

// identity pulls the authenticated caller, aborting with 401 when the
// auth middleware did not run.
func identity(c *gin.Context) (auth.Identity, bool) {
	id, ok := auth.FromContext(c.Request.Context())
	if !ok || id.WorkspaceID == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "workspace_id required"})
		return auth.Identity{}, false
	}
	return id, true
}

func actorOf(id auth.Identity) control.Actor {
	return control.Actor{UserID: id.UserID, Role: id.Role}
}

// writeError maps service errors onto HTTP statuses. Typed control
// errors keep their structure so the UI can render remediation.
func writeError(c *gin.Context, err error) {
	var notReady *control.NotReadyError
	var confirm *control.ConfirmationRequiredError
	var partial *control.PartialFailureError
	var validation *broadcast.ValidationError

	switch {
	case errors.As(err, &notReady):
		c.AbortWithStatusJSON(http.StatusUnprocessableEntity, gin.H{
			"error":  "broadcast not ready",
			"checks": notReady.Checks,
		})
	case errors.As(err, &confirm):
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{
			"error":          "confirmation required",
			"pending_leads":  confirm.PendingLeads,
			"usable_numbers": confirm.UsableNumbers,
		})
	case errors.As(err, &partial):
		c.AbortWithStatusJSON(http.StatusBadGateway, gin.H{
			"error":     partial.Error(),
			"succeeded": partial.Succeeded,
			"failed":    partial.Failed,
			"problems":  partial.Problems,
		})
	case errors.As(err, &validation):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
			"error":    "validation failed",
			"problems": validation.Problems,
		})
	case errors.Is(err, broadcast.ErrNotFound), errors.Is(err, queue.ErrNotFound), errors.Is(err, callerid.ErrNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, broadcast.ErrBadTransition):
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, broadcast.ErrInvalidArgument), errors.Is(err, queue.ErrInvalidInput), errors.Is(err, speech.ErrEmptyText), errors.Is(err, reporting.ErrInvalidRequest):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

// Inspect reconciles stuck items against the provider without mutating
// anything.
func (h Handlers) Inspect(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}
	rows, err := h.Control.Inspect(c.Request.Context(), id.WorkspaceID, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	if rows == nil {
		rows = []monitor.Mismatch{}
	}
	c.JSON(http.StatusOK, gin.H{"mismatches": rows})
}
