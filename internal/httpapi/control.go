package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type startRequest struct {
	// Confirmed acknowledges the high-volume warning.
	Confirmed bool `json:"confirmed"`
}

func (h Handlers) StartBroadcast(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}
	var req startRequest
	_ = c.ShouldBindJSON(&req)

	if err := h.Control.Start(c.Request.Context(), id.WorkspaceID, c.Param("id"), actorOf(id), req.Confirmed); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "active"})
}

func (h Handlers) StopBroadcast(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}
	if err := h.Control.Stop(c.Request.Context(), id.WorkspaceID, c.Param("id"), actorOf(id)); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "paused"})
}

func (h Handlers) EmergencyStopBroadcast(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}
	res, err := h.Control.EmergencyStop(c.Request.Context(), id.WorkspaceID, c.Param("id"), actorOf(id))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

type testBatchRequest struct {
	Size int `json:"size"`
}

func (h Handlers) TestBatch(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}
	var req testBatchRequest
	_ = c.ShouldBindJSON(&req)

	dispatched, err := h.Control.TestBatch(c.Request.Context(), id.WorkspaceID, c.Param("id"), actorOf(id), req.Size)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"dispatched": dispatched})
}

func (h Handlers) RetryFailed(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}
	n, err := h.Control.RetryFailed(c.Request.Context(), id.WorkspaceID, c.Param("id"), actorOf(id))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"requeued": n})
}

func (h Handlers) ResetQueue(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}
	n, err := h.Control.Reset(c.Request.Context(), id.WorkspaceID, c.Param("id"), actorOf(id))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"reset": n})
}

func (h Handlers) GetStats(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}
	stats, err := h.Control.GetStats(c.Request.Context(), id.WorkspaceID, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h Handlers) GetReadiness(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}
	res, err := h.Control.Readiness(c.Request.Context(), id.WorkspaceID, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ready": res.IsReady(), "checks": res.Checks})
}

func (h Handlers) GetSummary(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}
	sum, err := h.Reports.BroadcastSummary(c.Request.Context(), id.WorkspaceID, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sum)
}

func (h Handlers) GetOverview(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}
	ov, err := h.Reports.Overview(c.Request.Context(), id.WorkspaceID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, ov)
}
