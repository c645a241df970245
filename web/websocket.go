package web

import (
	"net/http"
	"time"

	"github.com/farhan-ahmed1/taskdesk/internal/logger"
	"github.com/farhan-ahmed1/taskdesk/internal/store"
	"github.com/gin-gonic/gin"
	ws "github.com/gorilla/websocket"
)

const (
	writeTimeout   = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxMessageSize = 512
)

var upgrader = ws.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The console is served to local browsers only
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleWebSocket streams store change events to one client. Each event only
// tells the client to re-read; the gateway never pushes anything itself.
func (s *Server) handleWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn("WebSocket upgrade failed", logger.Fields{
			"error": err.Error(),
		})
		return
	}
	defer conn.Close()

	events, unsubscribe := s.store.Subscribe()
	defer unsubscribe()

	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	// Clients send nothing; reading only surfaces close frames and dead peers
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	s.logger.Debug("WebSocket client connected", logger.Fields{
		"remote": c.Request.RemoteAddr,
	})

	hello := store.Event{Kind: store.EventListed, Count: s.store.Len(), At: time.Now()}
	if err := s.writeEvent(conn, hello); err != nil {
		return
	}

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-closed:
			return
		case <-s.done:
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			conn.WriteMessage(ws.CloseMessage, ws.FormatCloseMessage(ws.CloseGoingAway, "server shutting down"))
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			if err := s.writeEvent(conn, e); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(ws.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *Server) writeEvent(conn *ws.Conn, e store.Event) error {
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteJSON(e); err != nil {
		s.logger.Debug("WebSocket write failed", logger.Fields{
			"error": err.Error(),
		})
		return err
	}
	return nil
}
