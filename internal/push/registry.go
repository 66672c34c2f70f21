// Package push owns the in-process mapping from user identity to live
// websocket sessions and the best-effort fan-out over it. The registry is
// the only shared mutable structure in the service; all access is
// internally synchronized. Nothing here is durable: a user with no live
// session simply misses the push and recovers from the notification table.
package push

import (
	"encoding/json"
	"sync"

	"go.uber.org/zap"
)

// Manager maps userID -> set of live sessions and fans frames out to them.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]map[*Session]struct{}
	logger   *zap.Logger
}

func NewManager(logger *zap.Logger) *Manager {
	return &Manager{
		sessions: make(map[string]map[*Session]struct{}),
		logger:   logger,
	}
}

// Add registers a connection for a user and starts its write pump. The
// caller must have authenticated the user before calling.
func (m *Manager) Add(userID string, conn Conn) *Session {
	s := newSession(userID, conn)

	m.mu.Lock()
	if _, ok := m.sessions[userID]; !ok {
		m.sessions[userID] = make(map[*Session]struct{})
	}
	m.sessions[userID][s] = struct{}{}
	total := len(m.sessions[userID])
	m.mu.Unlock()

	go s.writePump(m)

	m.logger.Info("ws connected",
		zap.String("user_id", userID),
		zap.Int("sessions", total))
	return s
}

// Remove deregisters a session and closes its connection. Idempotent:
// the read loop, a failed write and a forced close may all race here.
func (m *Manager) Remove(s *Session) {
	m.mu.Lock()
	removed := false
	if conns, ok := m.sessions[s.UserID]; ok {
		if _, ok := conns[s]; ok {
			delete(conns, s)
			removed = true
		}
		if len(conns) == 0 {
			delete(m.sessions, s.UserID)
		}
	}
	m.mu.Unlock()

	s.close()

	if removed {
		m.logger.Info("ws disconnected", zap.String("user_id", s.UserID))
	}
}

// SessionCount reports the number of live sessions for a user.
func (m *Manager) SessionCount(userID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions[userID])
}

// PushToUser delivers a payload to every live session of one user and
// returns how many sessions accepted it. A user with no sessions is a
// silent no-op. A session that cannot accept the frame is removed.
func (m *Manager) PushToUser(userID string, payload any) int {
	data, err := json.Marshal(payload)
	if err != nil {
		m.logger.Error("push marshal failed", zap.Error(err))
		return 0
	}
	return m.pushRaw(userID, data)
}

// PushToUsers delivers a payload to every live session of each user.
// Deliveries are independent per user; an unreachable user never blocks
// the rest.
func (m *Manager) PushToUsers(userIDs []string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		m.logger.Error("push marshal failed", zap.Error(err))
		return
	}
	for _, userID := range userIDs {
		m.pushRaw(userID, data)
	}
}

// Broadcast delivers a payload to every live session of every user.
func (m *Manager) Broadcast(payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		m.logger.Error("broadcast marshal failed", zap.Error(err))
		return
	}

	m.mu.RLock()
	users := make([]string, 0, len(m.sessions))
	for userID := range m.sessions {
		users = append(users, userID)
	}
	m.mu.RUnlock()

	for _, userID := range users {
		m.pushRaw(userID, data)
	}
}

func (m *Manager) pushRaw(userID string, data []byte) int {
	m.mu.RLock()
	targets := make([]*Session, 0, len(m.sessions[userID]))
	for s := range m.sessions[userID] {
		targets = append(targets, s)
	}
	m.mu.RUnlock()

	delivered := 0
	for _, s := range targets {
		if s.enqueue(data) {
			delivered++
			continue
		}
		// Dead or drowning session: drop it so it cannot stall fan-out.
		m.logger.Warn("ws send buffer full, dropping session",
			zap.String("user_id", userID))
		m.Remove(s)
	}
	return delivered
}
