package http

import (
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/formbt/ndi-gateway/channel"
	"github.com/formbt/ndi-gateway/core"
)

// heartbeatInterval keeps proxies from reaping an otherwise silent stream.
const heartbeatInterval = 30 * time.Second

// SSEHandler relays hub events for one thread to a browser event stream.
type SSEHandler struct {
	hub *channel.Hub
}

// NewSSEHandler creates the event stream handler.
func NewSSEHandler(hub *channel.Hub) *SSEHandler {
	return &SSEHandler{hub: hub}
}

// Events streams verification events for the requested thread. The stream
// opens with a connected event, carries a heartbeat every 30 seconds, and
// forwards ndi-verification events as they arrive. Disconnecting tears the
// subscription down without touching other listeners on the same thread.
func (h *SSEHandler) Events(c *gin.Context) {
	threadID := c.Query("threadId")
	if threadID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "threadId is required"})
		return
	}

	sub, err := h.hub.Subscribe(threadID)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"success": false, "message": "Event channel unavailable"})
		return
	}
	defer sub.Close()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.WriteHeader(http.StatusOK)

	if err := writeEvent(c.Writer, string(core.EventConnected), fmt.Sprintf(`{"threadId":%q}`, threadID)); err != nil {
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
			if err := writeEvent(c.Writer, string(core.EventHeartbeat), fmt.Sprintf(`{"ts":%d}`, time.Now().Unix())); err != nil {
				log.Printf("sse: ending stream for thread %s: %v", threadID, err)
				return
			}
		case ev, ok := <-sub.Events():
			if !ok {
				return
			}
			switch ev.Kind {
			case core.EventVerification:
				if err := writeEvent(c.Writer, string(core.EventVerification), string(ev.Payload)); err != nil {
					log.Printf("sse: ending stream for thread %s: %v", threadID, err)
					return
				}
			case core.EventError:
				log.Printf("sse: closing stream for thread %s: %v", threadID, ev.Err)
				_ = writeEvent(c.Writer, "error", `{"message":"event channel closed"}`)
				return
			}
		}
	}
}

// eventWriter is the slice of gin.ResponseWriter the relay needs.
type eventWriter interface {
	io.Writer
	Flush()
}

// writeEvent emits one server-sent event and flushes it to the client. A
// write error means the client is gone and the stream should end.
func writeEvent(w eventWriter, event, data string) error {
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data); err != nil {
		return err
	}
	w.Flush()
	return nil
}
