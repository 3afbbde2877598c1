package signalcache

import (
	"sort"
	"sync"

	"visgw/internal/protocol"
)

// MemoryStore is the default in-process cache.
type MemoryStore struct {
	mu      sync.RWMutex
	signals map[string]protocol.SignalSample
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{signals: make(map[string]protocol.SignalSample)}
}

func (st *MemoryStore) Update(samples []protocol.SignalSample) {
	st.mu.Lock()
	for _, sample := range samples {
		st.signals[sample.Path] = sample
	}
	st.mu.Unlock()
}

// Latest returns the cached samples ordered by path.
func (st *MemoryStore) Latest() []protocol.SignalSample {
	st.mu.RLock()
	out := make([]protocol.SignalSample, 0, len(st.signals))
	for _, sample := range st.signals {
		out = append(out, sample)
	}
	st.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

func (st *MemoryStore) Close() error {
	return nil
}
