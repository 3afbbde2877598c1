package session

import (
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"visgw/internal/constants"
	"visgw/internal/protocol"
)

// Registry owns every live session. Session ids are process-unique UUIDs and
// never reused. A background janitor expires requests that never saw a
// matching sample or data source response.
type Registry struct {
	mu         sync.RWMutex
	sessions   map[string]*Session
	restricted []string
	pendingTTL time.Duration

	// OnDestroy, when set, runs after a session is removed; used to purge
	// correlation state tied to the dead session id.
	OnDestroy func(sessionID string)

	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewRegistry starts the registry and its cleanup loop. restricted seeds
// each new session's AccessPolicy; pendingTTL bounds how long a one-shot
// request may stay unanswered (0 disables expiry).
func NewRegistry(restricted []string, pendingTTL time.Duration) *Registry {
	r := &Registry{
		sessions:   make(map[string]*Session),
		restricted: restricted,
		pendingTTL: pendingTTL,
		done:       make(chan struct{}),
	}
	if pendingTTL > 0 {
		r.wg.Add(1)
		go r.cleanupLoop()
	}
	return r
}

// Create allocates a fresh session bound to the transport handle.
func (r *Registry) Create(sender Sender) *Session {
	s := &Session{
		ID:        uuid.New().String(),
		Table:     NewRequestTable(),
		Policy:    NewAccessPolicy(r.restricted),
		CreatedAt: time.Now(),
		sender:    sender,
	}

	r.mu.Lock()
	r.sessions[s.ID] = s
	r.mu.Unlock()

	log.Printf("🔌 Session created: %s", s.ID)
	return s
}

// Get returns the live session for the id.
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Destroy tears the session down: cancels every subscription resource,
// stops the grant timer, severs the transport and removes the entry.
// Destroying an unknown or already-destroyed id is a no-op.
func (r *Registry) Destroy(id string) {
	r.mu.Lock()
	s, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
	}
	r.mu.Unlock()

	if !ok {
		return
	}

	s.Detach()
	s.Table.Clear()
	s.Policy.Close()

	if r.OnDestroy != nil {
		r.OnDestroy(id)
	}
	log.Printf("🗑 Session destroyed: %s", id)
}

// Range calls fn for each live session until fn returns false.
func (r *Registry) Range(fn func(*Session) bool) {
	r.mu.RLock()
	snapshot := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		snapshot = append(snapshot, s)
	}
	r.mu.RUnlock()

	for _, s := range snapshot {
		if !fn(s) {
			return
		}
	}
}

// Count reports the number of live sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Close stops the janitor and destroys every session.
func (r *Registry) Close() {
	r.stopOnce.Do(func() { close(r.done) })
	r.wg.Wait()

	r.mu.Lock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	r.mu.Unlock()

	for _, id := range ids {
		r.Destroy(id)
	}
}

func (r *Registry) cleanupLoop() {
	defer r.wg.Done()
	ticker := time.NewTicker(constants.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.done:
			return
		case <-ticker.C:
			r.expirePending()
		}
	}
}

// expirePending answers and removes one-shot requests that outlived the
// pending TTL. Subscriptions persist until unsubscribed or disconnect.
func (r *Registry) expirePending() {
	cutoff := time.Now().Add(-r.pendingTTL)

	r.Range(func(s *Session) bool {
		for _, req := range s.Table.Snapshot() {
			if req.Action == protocol.ActionSubscribe || req.CreatedAt.After(cutoff) {
				continue
			}
			if err := s.Table.Unregister(req.ID); err != nil {
				continue
			}

			ts := protocol.Timestamp()
			var resp protocol.Response
			switch req.Action {
			case protocol.ActionGet:
				resp = protocol.GetErrorResponse(req.ID, constants.ErrRequestTimeout, ts)
			case protocol.ActionSet:
				resp = protocol.SetErrorResponse(req.ID, constants.ErrRequestTimeout, ts)
			case protocol.ActionGetVSS:
				resp = protocol.VSSErrorResponse(req.ID, constants.ErrRequestTimeout)
			default:
				continue
			}
			if err := s.Send(resp); err != nil {
				log.Printf("⚠️  Failed to send expiry for request %s: %v", req.ID, err)
			}
			log.Printf("🗑 Expired pending %s request: session=%s reqId=%s", req.Action, s.ID, req.ID)
		}
		return true
	})
}
