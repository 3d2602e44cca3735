package httpapi

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
)

// StreamEvents pushes dialer events to the caller over SSE, filtered to
// the caller's workspace. The stream ends when the client disconnects.
func (h Handlers) StreamEvents(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Writer.WriteHeader(http.StatusOK)
	c.Writer.Flush()

	ch := h.Bus.Subscribe(c.Request.Context())
	c.Stream(func(w io.Writer) bool {
		ev, open := <-ch
		if !open {
			return false
		}
		if ev.WorkspaceID != id.WorkspaceID {
			return true
		}
		payload, err := json.Marshal(ev)
		if err != nil {
			return true
		}
		c.SSEvent(string(ev.Type), string(payload))
		return true
	})
}
