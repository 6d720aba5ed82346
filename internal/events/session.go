// Package events implements the event router: the typed-envelope
// dispatch pipeline (rate limit -> admin gate -> validate -> handler)
// that the teacher's signal.handleSignal switch statement does for a
// much smaller voice-chat vocabulary, generalized here to the full
// Sync-Player command set (spec §4.5).
package events

import (
	"sync"

	"github.com/sync-player/server/internal/domain"
	"github.com/sync-player/server/internal/rooms"
)

// Session is the per-connection state the dispatcher threads through
// the pipeline: which room (if any) this connection belongs to, and
// the fingerprint it announced.
type Session struct {
	ConnID      domain.ConnID
	RemoteAddr  string
	Conn        rooms.Connection

	mu          sync.RWMutex
	room        *rooms.Room
	fingerprint string
}

// NewSession returns a freshly created, room-less session.
func NewSession(id domain.ConnID, remoteAddr string, conn rooms.Connection) *Session {
	return &Session{ConnID: id, RemoteAddr: remoteAddr, Conn: conn}
}

func (s *Session) Room() *rooms.Room {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.room
}

func (s *Session) SetRoom(r *rooms.Room) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.room = r
}

func (s *Session) Fingerprint() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fingerprint
}

func (s *Session) SetFingerprint(fp string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fingerprint = fp
}

// Send marshals and delivers v directly to this connection only.
func (s *Session) Send(v any) {
	payload, err := marshal(v)
	if err != nil {
		return
	}
	_ = s.Conn.TrySend(payload)
}
