package session

import (
	"sync"
	"time"

	"visgw/internal/protocol"
)

type pathFlags struct {
	get       bool
	set       bool
	subscribe bool
}

// AccessPolicy is a session's view of the restricted path set. A path absent
// from the policy is unrestricted for every action; a tracked path allows an
// action only while a grant window is open. Grants are per session and never
// leak to other sessions.
type AccessPolicy struct {
	mu    sync.Mutex
	paths map[string]*pathFlags
	timer *time.Timer
	gen   uint64
}

// NewAccessPolicy tracks the given paths, all denied.
func NewAccessPolicy(restricted []string) *AccessPolicy {
	p := &AccessPolicy{paths: make(map[string]*pathFlags, len(restricted))}
	for _, path := range restricted {
		p.paths[path] = &pathFlags{}
	}
	return p
}

// Check reports whether the action is allowed on the path. Unknown actions
// on a tracked path are denied (fail-closed).
func (p *AccessPolicy) Check(path string, action protocol.Action) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	flags, tracked := p.paths[path]
	if !tracked {
		return true
	}
	switch action {
	case protocol.ActionGet:
		return flags.get
	case protocol.ActionSet:
		return flags.set
	case protocol.ActionSubscribe:
		return flags.subscribe
	default:
		return false
	}
}

// GrantAll opens every tracked path for all actions until ttl elapses. A
// re-grant supersedes the pending expiry; only the newest grant's TTL
// governs the window.
func (p *AccessPolicy) GrantAll(ttl time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, flags := range p.paths {
		flags.get = true
		flags.set = true
		flags.subscribe = true
	}

	p.gen++
	gen := p.gen
	if p.timer != nil {
		p.timer.Stop()
	}
	p.timer = time.AfterFunc(ttl, func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		// A fired timer from a superseded grant must not revoke the
		// newer window.
		if p.gen != gen {
			return
		}
		p.revokeLocked()
	})
}

// RevokeAll closes every tracked path immediately. Idempotent; also cancels
// any pending expiry.
func (p *AccessPolicy) RevokeAll() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.gen++
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
	p.revokeLocked()
}

// Close stops the expiry timer at session teardown.
func (p *AccessPolicy) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.gen++
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
}

func (p *AccessPolicy) revokeLocked() {
	for _, flags := range p.paths {
		flags.get = false
		flags.set = false
		flags.subscribe = false
	}
}
