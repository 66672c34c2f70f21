package push

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pingPeriod     = 54 * time.Second
	sendBufferSize = 32
)

// Conn is the subset of *websocket.Conn the registry writes through.
// Narrowed to an interface so sessions can be exercised without a network.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// Session is one authenticated live connection. A user may hold many
// sessions at once (tabs, devices); each gets its own write pump so a slow
// client never blocks delivery to the rest.
type Session struct {
	UserID      string
	ConnectedAt time.Time

	conn Conn
	send chan []byte
	stop chan struct{}
	once sync.Once
}

func newSession(userID string, conn Conn) *Session {
	return &Session{
		UserID:      userID,
		ConnectedAt: time.Now(),
		conn:        conn,
		send:        make(chan []byte, sendBufferSize),
		stop:        make(chan struct{}),
	}
}

// enqueue hands a frame to the write pump without blocking. A full buffer
// means the client has stopped draining; the caller removes the session.
func (s *Session) enqueue(data []byte) bool {
	select {
	case <-s.stop:
		return false
	default:
	}

	select {
	case s.send <- data:
		return true
	default:
		return false
	}
}

// close shuts the pump down and closes the underlying connection. Safe to
// call from any goroutine, any number of times.
func (s *Session) close() {
	s.once.Do(func() {
		close(s.stop)
		_ = s.conn.Close()
	})
}

// writePump is the session's single writer. Gorilla connections allow one
// concurrent writer, so every outbound frame and ping funnels through here.
func (s *Session) writePump(m *Manager) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		m.Remove(s)
	}()

	for {
		select {
		case <-s.stop:
			return

		case data := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				m.logger.Debug("ws write failed",
					zap.String("user_id", s.UserID),
					zap.Error(err))
				return
			}

		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
