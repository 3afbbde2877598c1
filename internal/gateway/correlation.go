package gateway

import (
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"visgw/internal/constants"
)

type correlationEntry struct {
	sessionID string
	requestID string
	createdAt time.Time
}

// CorrelationMap links a forwarded data source request to the (session,
// request) that originated it. Resolve is a consuming read: each id answers
// exactly once, so a replayed data source response falls on the floor.
type CorrelationMap struct {
	mu      sync.Mutex
	entries map[string]correlationEntry
	maxAge  time.Duration

	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewCorrelationMap starts the map and a sweeper that drops entries older
// than maxAge (0 disables sweeping).
func NewCorrelationMap(maxAge time.Duration) *CorrelationMap {
	m := &CorrelationMap{
		entries: make(map[string]correlationEntry),
		maxAge:  maxAge,
		done:    make(chan struct{}),
	}
	if maxAge > 0 {
		m.wg.Add(1)
		go m.cleanupLoop()
	}
	return m
}

// Create stores the mapping and returns a fresh correlation id.
func (m *CorrelationMap) Create(sessionID, requestID string) string {
	id := "datasrcreqid-" + uuid.New().String()
	m.mu.Lock()
	m.entries[id] = correlationEntry{
		sessionID: sessionID,
		requestID: requestID,
		createdAt: time.Now(),
	}
	m.mu.Unlock()
	return id
}

// Resolve consumes the entry for the id. The second resolve of the same id
// reports not found.
func (m *CorrelationMap) Resolve(id string) (sessionID, requestID string, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.entries[id]
	if !ok {
		return "", "", false
	}
	delete(m.entries, id)
	return entry.sessionID, entry.requestID, true
}

// Drop discards the entry without resolving it.
func (m *CorrelationMap) Drop(id string) {
	m.mu.Lock()
	delete(m.entries, id)
	m.mu.Unlock()
}

// DropSession discards every entry belonging to the session. Called at
// teardown so a later response against the dead session id cannot match a
// reused id.
func (m *CorrelationMap) DropSession(sessionID string) {
	m.mu.Lock()
	for id, entry := range m.entries {
		if entry.sessionID == sessionID {
			delete(m.entries, id)
		}
	}
	m.mu.Unlock()
}

// Len reports the number of outstanding entries.
func (m *CorrelationMap) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// Close stops the sweeper.
func (m *CorrelationMap) Close() {
	m.stopOnce.Do(func() { close(m.done) })
	m.wg.Wait()
}

func (m *CorrelationMap) cleanupLoop() {
	defer m.wg.Done()
	ticker := time.NewTicker(constants.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			m.sweep()
		}
	}
}

func (m *CorrelationMap) sweep() {
	cutoff := time.Now().Add(-m.maxAge)
	m.mu.Lock()
	for id, entry := range m.entries {
		if entry.createdAt.Before(cutoff) {
			delete(m.entries, id)
			log.Printf("🗑 Expired correlation entry: %s (session %s)", id, entry.sessionID)
		}
	}
	m.mu.Unlock()
}
