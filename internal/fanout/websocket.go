package fanout

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	wsBuffer     = 32
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = (wsPongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Dashboards are served from other origins; CORS is handled by the router.
	CheckOrigin: func(*http.Request) bool { return true },
}

// WebsocketHandler upgrades the request and pushes every event as a JSON frame.
func (h *Hub) WebsocketHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			h.log.Warn("websocket upgrade failed", "error", err)
			return
		}
		defer conn.Close()

		obs := newChannelObserver(wsBuffer)
		h.Attach(obs)
		defer h.Detach(obs)
		h.log.Info("websocket observer connected", "client_ip", c.ClientIP())

		go readUntilClosed(conn, obs)

		ticker := time.NewTicker(wsPingPeriod)
		defer ticker.Stop()

		for {
			select {
			case <-obs.closed:
				_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(wsWriteWait))
				return
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
					return
				}
			case event := <-obs.events:
				_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
				if err := conn.WriteJSON(event); err != nil {
					h.log.Info("websocket observer disconnected", "error", err)
					return
				}
			}
		}
	}
}

// readUntilClosed drains client frames so pongs and close frames are handled,
// and closes the observer once the peer goes away.
func readUntilClosed(conn *websocket.Conn, obs *channelObserver) {
	defer obs.Close()
	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
