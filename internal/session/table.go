package session

import (
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	"visgw/internal/protocol"
)

var (
	ErrDuplicateRequestID = errors.New("requestId already in use")
	ErrRequestNotFound    = errors.New("request not found")
)

// Request is one outstanding client action. A live request id is unique
// within its session; a subscribe request additionally owns a subscription
// id slot. Release, when set, frees the external resource backing the
// request (e.g. a mock interval timer) and is invoked exactly once, on
// unregister or table clear.
type Request struct {
	ID             string
	Action         protocol.Action
	Path           string
	Value          json.RawMessage
	SubscriptionID string
	CreatedAt      time.Time
	Release        func() error
}

// RequestTable indexes a session's outstanding requests both by request id
// and, for subscriptions, by subscription id.
type RequestTable struct {
	mu       sync.Mutex
	requests map[string]*Request
	subIDs   map[string]string // subscription id -> request id
}

func NewRequestTable() *RequestTable {
	return &RequestTable{
		requests: make(map[string]*Request),
		subIDs:   make(map[string]string),
	}
}

// Register adds the request. A request id that is still live is rejected
// with ErrDuplicateRequestID and the original entry is left untouched.
func (t *RequestTable) Register(req *Request) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.requests[req.ID]; ok {
		return ErrDuplicateRequestID
	}
	if req.CreatedAt.IsZero() {
		req.CreatedAt = time.Now()
	}

	t.requests[req.ID] = req

	if req.Action == protocol.ActionSubscribe && req.SubscriptionID != "" {
		if _, taken := t.subIDs[req.SubscriptionID]; !taken {
			t.subIDs[req.SubscriptionID] = req.ID
		}
	}
	return nil
}

// Unregister removes the request and its subscription id mapping, releasing
// any backing resource. Safe to call while iterating a Snapshot.
func (t *RequestTable) Unregister(reqID string) error {
	t.mu.Lock()
	req, ok := t.requests[reqID]
	if !ok {
		t.mu.Unlock()
		return ErrRequestNotFound
	}
	delete(t.requests, reqID)
	if req.SubscriptionID != "" {
		delete(t.subIDs, req.SubscriptionID)
	}
	t.mu.Unlock()

	releaseRequest(req)
	return nil
}

// Lookup returns the live request for the id.
func (t *RequestTable) Lookup(reqID string) (*Request, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	req, ok := t.requests[reqID]
	return req, ok
}

// SubscriptionIDFor returns the subscription id owned by the request, if any.
func (t *RequestTable) SubscriptionIDFor(reqID string) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	req, ok := t.requests[reqID]
	if !ok || req.SubscriptionID == "" {
		return "", false
	}
	return req.SubscriptionID, true
}

// RequestIDFor resolves a subscription id back to the request that created it.
func (t *RequestTable) RequestIDFor(subID string) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	reqID, ok := t.subIDs[subID]
	return reqID, ok
}

// Snapshot returns a copy of the live requests so callers can match and
// unregister entries without corrupting their own iteration.
func (t *RequestTable) Snapshot() []*Request {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*Request, 0, len(t.requests))
	for _, req := range t.requests {
		out = append(out, req)
	}
	return out
}

// RemoveAllSubscriptions drops every subscription entry and returns how many
// were removed. Non-subscription requests are untouched.
func (t *RequestTable) RemoveAllSubscriptions() int {
	t.mu.Lock()
	removed := make([]*Request, 0, len(t.subIDs))
	for subID, reqID := range t.subIDs {
		if req, ok := t.requests[reqID]; ok {
			removed = append(removed, req)
			delete(t.requests, reqID)
		}
		delete(t.subIDs, subID)
	}
	t.mu.Unlock()

	for _, req := range removed {
		releaseRequest(req)
	}
	return len(removed)
}

// Clear releases every entry and empties the table. A failing release never
// blocks cleanup of the remaining entries.
func (t *RequestTable) Clear() {
	t.mu.Lock()
	removed := make([]*Request, 0, len(t.requests))
	for _, req := range t.requests {
		removed = append(removed, req)
	}
	t.requests = make(map[string]*Request)
	t.subIDs = make(map[string]string)
	t.mu.Unlock()

	for _, req := range removed {
		releaseRequest(req)
	}
}

// Len reports the number of live requests.
func (t *RequestTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.requests)
}

func releaseRequest(req *Request) {
	if req.Release == nil {
		return
	}
	if err := req.Release(); err != nil {
		log.Printf("⚠️  Release failed for request %s: %v", req.ID, err)
	}
}
