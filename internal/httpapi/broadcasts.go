package httpapi

import (
	"net/http"

	"dialer-platform/internal/broadcast"
	"dialer-platform/internal/callerid"
	"dialer-platform/internal/queue"
	"dialer-platform/pkg/logger"

	"github.com/gin-gonic/gin"
)

type broadcastRequest struct {
	Name           string                   `json:"name"`
	MessageText    string                   `json:"message_text"`
	IVRMode        broadcast.IVRMode        `json:"ivr_mode"`
	DTMFActions    []broadcast.DTMFAction   `json:"dtmf_actions"`
	CallsPerMinute int                      `json:"calls_per_minute"`
	MaxAttempts    int                      `json:"max_attempts"`
	CallingHours   broadcast.CallingHours   `json:"calling_hours"`
	CallerID       broadcast.CallerIDPolicy `json:"caller_id"`
	AMD            broadcast.AMDPolicy      `json:"amd"`
	Route          broadcast.RoutePolicy    `json:"route"`
	Transfer       broadcast.TransferTarget `json:"transfer"`
}

func (r broadcastRequest) toCreateRequest(workspaceID string) broadcast.CreateRequest {
	return broadcast.CreateRequest{
		WorkspaceID:    workspaceID,
		Name:           r.Name,
		MessageText:    r.MessageText,
		IVRMode:        r.IVRMode,
		DTMFActions:    r.DTMFActions,
		CallsPerMinute: r.CallsPerMinute,
		MaxAttempts:    r.MaxAttempts,
		CallingHours:   r.CallingHours,
		CallerID:       r.CallerID,
		AMD:            r.AMD,
		Route:          r.Route,
		Transfer:       r.Transfer,
	}
}

func (h Handlers) CreateBroadcast(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}
	var req broadcastRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	b, err := h.Broadcasts.Create(c.Request.Context(), req.toCreateRequest(id.WorkspaceID))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, b)
}

func (h Handlers) ListBroadcasts(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}
	bs, err := h.Broadcasts.List(c.Request.Context(), id.WorkspaceID)
	if err != nil {
		writeError(c, err)
		return
	}
	if bs == nil {
		bs = []broadcast.Broadcast{}
	}
	c.JSON(http.StatusOK, gin.H{"broadcasts": bs})
}

func (h Handlers) GetBroadcast(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}
	b, err := h.Broadcasts.Get(c.Request.Context(), id.WorkspaceID, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

func (h Handlers) UpdateBroadcast(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}
	var req broadcastRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	b, err := h.Broadcasts.UpdateSettings(c.Request.Context(), id.WorkspaceID, c.Param("id"), req.toCreateRequest(id.WorkspaceID))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

func (h Handlers) DeleteBroadcast(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}
	if err := h.Broadcasts.SoftDelete(c.Request.Context(), id.WorkspaceID, c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// GenerateAudio synthesizes the broadcast message text and stores the
// resulting audio URL on the broadcast.
func (h Handlers) GenerateAudio(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}
	var req struct {
		VoiceID string `json:"voice_id"`
	}
	_ = c.ShouldBindJSON(&req)

	b, err := h.Broadcasts.Get(c.Request.Context(), id.WorkspaceID, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	audioURL, err := h.Synth.Synthesize(c.Request.Context(), b.MessageText, req.VoiceID)
	if err != nil {
		writeError(c, err)
		return
	}
	b, err = h.Broadcasts.SetAudio(c.Request.Context(), id.WorkspaceID, b.ID, audioURL)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"audio_url": b.AudioURL})
}

type enqueueRequest struct {
	Leads []queue.LeadRef `json:"leads"`
}

// EnqueueLeads bulk-inserts leads; duplicates of live items are
// silently skipped.
func (h Handlers) EnqueueLeads(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}
	var req enqueueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	inserted, err := h.Queue.Enqueue(c.Request.Context(), id.WorkspaceID, c.Param("id"), req.Leads)
	if err != nil {
		writeError(c, err)
		return
	}
	if inserted > 0 {
		if err := h.Broadcasts.ApplyCounterDelta(c.Request.Context(), id.WorkspaceID, c.Param("id"), broadcast.CounterDelta{LeadsTotal: inserted}); err != nil {
			logger.From(c.Request.Context()).Warn("leads counter update failed", "broadcast_id", c.Param("id"), "err", err)
		}
	}
	c.JSON(http.StatusOK, gin.H{"inserted": inserted, "skipped": len(req.Leads) - inserted})
}

type numberRequest struct {
	Number      string `json:"number"`
	Healthy     *bool  `json:"healthy"`
	Reserved    bool   `json:"reserved"`
	TrunkMember bool   `json:"trunk_member"`
	// RotationEligible defaults to true; most pool numbers rotate.
	RotationEligible *bool `json:"rotation_eligible"`
}

// UpsertNumber adds or updates a caller id pool entry.
func (h Handlers) UpsertNumber(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}
	var req numberRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Number == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "number required"})
		return
	}
	healthy := true
	if req.Healthy != nil {
		healthy = *req.Healthy
	}
	rotate := true
	if req.RotationEligible != nil {
		rotate = *req.RotationEligible
	}
	entry := callerid.PoolEntry{
		WorkspaceID:      id.WorkspaceID,
		Number:           req.Number,
		Healthy:          healthy,
		Reserved:         req.Reserved,
		TrunkMember:      req.TrunkMember,
		RotationEligible: rotate,
	}
	if err := h.Numbers.Upsert(c.Request.Context(), entry); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h Handlers) ListNumbers(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}
	entries, err := h.Numbers.List(c.Request.Context(), id.WorkspaceID)
	if err != nil {
		writeError(c, err)
		return
	}
	if entries == nil {
		entries = []callerid.PoolEntry{}
	}
	c.JSON(http.StatusOK, gin.H{"numbers": entries})
}
