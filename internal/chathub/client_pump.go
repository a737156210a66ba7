package chathub

import (
	"context"
	"time"

	"skillswap/backend/internal/config"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// readPump reads frames from the WebSocket and hands them to the handler.
func (c *WebSocketClient) readPump() {
	ctx, cancel := context.WithCancel(context.Background())
	defer func() {
		cancel()
		c.Handler.HandleClosed(c)
		c.Close()
		_ = c.Conn.Close()
	}()

	c.Conn.SetReadLimit(config.MaxInboundEnvelope)
	_ = c.Conn.SetReadDeadline(time.Now().Add(config.PongWait))
	c.Conn.SetPongHandler(func(string) error {
		return c.Conn.SetReadDeadline(time.Now().Add(config.PongWait))
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				c.Log.Warn("websocket read failed", zap.Error(err))
			}
			return
		}
		c.Handler.HandleInbound(ctx, c, message)
	}
}

// writePump writes queued events to the WebSocket, one frame per event, and
// keeps the connection alive with pings.
func (c *WebSocketClient) writePump() {
	ticker := time.NewTicker(config.PingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.Conn.Close()
	}()

	for {
		select {
		case ev, ok := <-c.send:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(config.WriteWait))
			if !ok {
				// Closed by the hub or the handler.
				_ = c.Conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}

			frame, err := ev.Frame(c.UserID)
			if err != nil {
				c.Log.Error("encode event failed", zap.String("type", string(ev.Type)), zap.Error(err))
				continue
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.Log.Debug("websocket write failed", zap.Error(err))
				return
			}

		case <-ticker.C:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(config.WriteWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
