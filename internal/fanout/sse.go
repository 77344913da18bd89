package fanout

import (
	"encoding/json"
	"time"

	"github.com/gin-gonic/gin"
)

const (
	sseBuffer    = 32
	sseKeepAlive = 25 * time.Second
)

// SSEHandler streams events to a dashboard as Server-Sent Events.
func (h *Hub) SSEHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Content-Type", "text/event-stream")
		c.Writer.Header().Set("Cache-Control", "no-cache")
		c.Writer.Header().Set("Connection", "keep-alive")
		c.Writer.Header().Set("X-Accel-Buffering", "no")

		obs := newChannelObserver(sseBuffer)
		h.Attach(obs)
		defer h.Detach(obs)

		c.SSEvent("connected", gin.H{"observers": h.Count()})
		c.Writer.Flush()
		h.log.Info("sse observer connected", "client_ip", c.ClientIP())

		ticker := time.NewTicker(sseKeepAlive)
		defer ticker.Stop()

		clientGone := c.Request.Context().Done()
		for {
			select {
			case <-clientGone:
				h.log.Info("sse observer disconnected", "client_ip", c.ClientIP())
				return
			case <-obs.closed:
				return
			case <-ticker.C:
				c.SSEvent("ping", "")
				c.Writer.Flush()
			case event := <-obs.events:
				data, err := json.Marshal(event)
				if err != nil {
					continue
				}
				c.SSEvent(event.Type, string(data))
				c.Writer.Flush()
			}
		}
	}
}
