package server

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/rcliao/agent-convo/internal/model"
)

// WSConfig holds WebSocket timing settings.
type WSConfig struct {
	SendBuffer   int
	WriteTimeout time.Duration
	ReadTimeout  time.Duration
	PingInterval time.Duration
}

// DefaultWSConfig returns the default WebSocket settings.
func DefaultWSConfig() WSConfig {
	return WSConfig{
		SendBuffer:   64,
		WriteTimeout: 10 * time.Second,
		ReadTimeout:  60 * time.Second,
		PingInterval: 30 * time.Second,
	}
}

// watcher streams snapshots of one conversation to one socket.
type watcher struct {
	id     string
	convID string
	conn   *websocket.Conn
	send   chan []byte
	done   chan struct{}
	once   sync.Once
}

func (w *watcher) close() {
	w.once.Do(func() { close(w.done) })
}

// enqueue never blocks: subscriber callbacks run on the mutating goroutine.
// A watcher that falls behind is disconnected.
func (w *watcher) enqueue(data []byte) bool {
	select {
	case <-w.done:
		return false
	default:
	}
	select {
	case w.send <- data:
		return true
	default:
		w.close()
		return false
	}
}

// GET /v1/conversations/:id/ws
//
// Streams every snapshot of the conversation as a JSON text frame, starting
// with its current state. Pending replies are cancelled when the last
// watcher disconnects.
func (s *Server) handleWatch(c echo.Context) error {
	convID := c.Param("id")
	if _, err := s.store.GetConversation(c.Request().Context(), convID); err != nil {
		return s.writeError(c, err)
	}

	ws, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		s.log.Warn("ws_upgrade_failed", "conversation", convID, "error", err)
		return nil
	}

	w := &watcher{
		id:     "ws_" + uuid.New().String()[:8],
		convID: convID,
		conn:   ws,
		send:   make(chan []byte, s.ws.SendBuffer),
		done:   make(chan struct{}),
	}
	s.log.Info("ws_connected", "conn", w.id, "conversation", convID)

	unsub := s.store.Subscribe(convID, func(snap model.Conversation) {
		data, err := json.Marshal(snap)
		if err != nil {
			s.log.Error("ws_encode_failed", "conn", w.id, "error", err)
			return
		}
		if !w.enqueue(data) {
			s.log.Warn("ws_send_dropped", "conn", w.id, "conversation", convID)
		}
	})

	go s.writePump(w)
	s.readPump(w)

	unsub()
	w.close()
	ws.Close()
	if s.store.Subscribers(convID) == 0 {
		s.store.CancelPending(c.Request().Context(), convID)
	}
	s.log.Info("ws_disconnected", "conn", w.id, "conversation", convID)
	return nil
}

// readPump discards client frames and returns when the socket closes.
func (s *Server) readPump(w *watcher) {
	w.conn.SetReadLimit(4096)
	w.conn.SetReadDeadline(time.Now().Add(s.ws.ReadTimeout))
	w.conn.SetPongHandler(func(string) error {
		w.conn.SetReadDeadline(time.Now().Add(s.ws.ReadTimeout))
		return nil
	})
	for {
		if _, _, err := w.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Debug("ws_read_error", "conn", w.id, "error", err)
			}
			return
		}
		select {
		case <-w.done:
			return
		default:
		}
	}
}

func (s *Server) writePump(w *watcher) {
	ticker := time.NewTicker(s.ws.PingInterval)
	defer func() {
		ticker.Stop()
		w.conn.Close()
	}()

	for {
		select {
		case data := <-w.send:
			w.conn.SetWriteDeadline(time.Now().Add(s.ws.WriteTimeout))
			if err := w.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				s.log.Debug("ws_write_failed", "conn", w.id, "error", err)
				w.close()
				return
			}
		case <-ticker.C:
			w.conn.SetWriteDeadline(time.Now().Add(s.ws.WriteTimeout))
			if err := w.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				w.close()
				return
			}
		case <-w.done:
			w.conn.SetWriteDeadline(time.Now().Add(s.ws.WriteTimeout))
			w.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}
