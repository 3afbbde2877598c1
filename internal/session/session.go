package session

import (
	"sync"
	"time"
)

// Sender delivers one outbound message to a client. The transport owns the
// underlying connection; sessions only write through it and never close it.
type Sender interface {
	Send(v any) error
}

// Session is one connected client: its id, transport handle, outstanding
// requests and access state. Created on connect, destroyed on disconnect.
type Session struct {
	ID        string
	Table     *RequestTable
	Policy    *AccessPolicy
	CreatedAt time.Time

	mu     sync.Mutex
	sender Sender
}

// Send writes one message to the client. After Detach it is a no-op so late
// notifications against a torn-down session never touch a dead transport.
func (s *Session) Send(v any) error {
	s.mu.Lock()
	sender := s.sender
	s.mu.Unlock()
	if sender == nil {
		return nil
	}
	return sender.Send(v)
}

// Detach severs the transport handle.
func (s *Session) Detach() {
	s.mu.Lock()
	s.sender = nil
	s.mu.Unlock()
}
