package gateway

import (
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"visgw/internal/constants"
	"visgw/internal/protocol"
	"visgw/internal/session"
	"visgw/internal/signalcache"
)

type engineFixture struct {
	engine   *Engine
	registry *session.Registry
	corr     *CorrelationMap
	cache    signalcache.Store
	sender   *fakeSender
	sess     *session.Session
}

func newEngineFixture(t *testing.T) *engineFixture {
	t.Helper()

	registry := session.NewRegistry(nil, 0)
	t.Cleanup(registry.Close)
	corr := NewCorrelationMap(0)
	t.Cleanup(corr.Close)
	registry.OnDestroy = corr.DropSession

	cache := signalcache.NewMemoryStore()
	sender := &fakeSender{}

	return &engineFixture{
		engine:   NewEngine(registry, corr, cache),
		registry: registry,
		corr:     corr,
		cache:    cache,
		sender:   sender,
		sess:     registry.Create(sender),
	}
}

func batchJSON(t *testing.T, samples ...protocol.SignalSample) []byte {
	t.Helper()
	raw, err := json.Marshal(protocol.DataSourceMessage{Data: samples})
	require.NoError(t, err)
	return raw
}

func TestGetAnsweredExactlyOnce(t *testing.T) {
	fx := newEngineFixture(t)
	require.NoError(t, fx.sess.Table.Register(&session.Request{
		ID: "req-1", Action: protocol.ActionGet, Path: "Signal.A",
	}))

	batch := batchJSON(t, protocol.SignalSample{Path: "Signal.A", Value: json.RawMessage("42"), Timestamp: "1700000000000"})
	fx.engine.HandleDataSourceMessage(batch)
	fx.engine.HandleDataSourceMessage(batch)

	require.Len(t, fx.sender.sent, 1, "a matched get answers once and is removed")
	resp := fx.sender.sent[0]
	assert.Equal(t, "get", resp.Action)
	assert.Equal(t, "req-1", resp.RequestID)
	assert.Equal(t, json.RawMessage("42"), resp.Value)
	assert.Equal(t, "1700000000000", resp.Timestamp)

	assert.Equal(t, 0, fx.sess.Table.Len())
}

func TestGetWaitsForExactPathMatch(t *testing.T) {
	fx := newEngineFixture(t)
	require.NoError(t, fx.sess.Table.Register(&session.Request{
		ID: "req-1", Action: protocol.ActionGet, Path: "Signal.A",
	}))

	// Prefixes and unrelated paths never match.
	fx.engine.HandleDataSourceMessage(batchJSON(t,
		protocol.SignalSample{Path: "Signal.A.Sub", Value: json.RawMessage("1"), Timestamp: "1"},
		protocol.SignalSample{Path: "Signal", Value: json.RawMessage("2"), Timestamp: "1"},
	))

	assert.Empty(t, fx.sender.sent)
	assert.Equal(t, 1, fx.sess.Table.Len())
}

func TestSubscriptionNotifiesOnEveryBatch(t *testing.T) {
	fx := newEngineFixture(t)
	require.NoError(t, fx.sess.Table.Register(&session.Request{
		ID: "req-1", Action: protocol.ActionSubscribe, Path: "Signal.A", SubscriptionID: "subid-1",
	}))

	for i := 0; i < 3; i++ {
		fx.engine.HandleDataSourceMessage(batchJSON(t, protocol.SignalSample{
			Path: "Signal.A", Value: json.RawMessage(fmt.Sprint(i)), Timestamp: fmt.Sprint(1000 + i),
		}))
	}

	require.Len(t, fx.sender.sent, 3)
	for i, note := range fx.sender.sent {
		assert.Empty(t, note.Action, "notifications carry no action field")
		assert.Equal(t, "subid-1", note.SubscriptionID)
		assert.Equal(t, "Signal.A", note.Path)
		assert.Equal(t, json.RawMessage(fmt.Sprint(i)), note.Value)
	}

	// The subscription persists.
	assert.Equal(t, 1, fx.sess.Table.Len())
}

func TestBatchFansOutToEverySession(t *testing.T) {
	fx := newEngineFixture(t)
	other := &fakeSender{}
	sess2 := fx.registry.Create(other)

	require.NoError(t, fx.sess.Table.Register(&session.Request{
		ID: "req-1", Action: protocol.ActionSubscribe, Path: "Signal.A", SubscriptionID: "subid-1",
	}))
	require.NoError(t, sess2.Table.Register(&session.Request{
		ID: "req-1", Action: protocol.ActionGet, Path: "Signal.A",
	}))

	fx.engine.HandleDataSourceMessage(batchJSON(t, protocol.SignalSample{
		Path: "Signal.A", Value: json.RawMessage("7"), Timestamp: "1",
	}))

	require.Len(t, fx.sender.sent, 1)
	require.Len(t, other.sent, 1)
	assert.Equal(t, "subid-1", fx.sender.sent[0].SubscriptionID)
	assert.Equal(t, "get", other.sent[0].Action)
}

func TestBatchUpdatesSignalCache(t *testing.T) {
	fx := newEngineFixture(t)

	fx.engine.HandleDataSourceMessage(batchJSON(t,
		protocol.SignalSample{Path: "Signal.B", Value: json.RawMessage("2"), Timestamp: "1"},
		protocol.SignalSample{Path: "Signal.A", Value: json.RawMessage("1"), Timestamp: "1"},
	))

	latest := fx.cache.Latest()
	require.Len(t, latest, 2)
	assert.Equal(t, "Signal.A", latest[0].Path)
	assert.Equal(t, "Signal.B", latest[1].Path)
}

func TestCorrelatedSetAnswersOriginSession(t *testing.T) {
	fx := newEngineFixture(t)
	require.NoError(t, fx.sess.Table.Register(&session.Request{
		ID: "req-1", Action: protocol.ActionSet, Path: "Signal.A",
	}))
	corrID := fx.corr.Create(fx.sess.ID, "req-1")

	raw, _ := json.Marshal(protocol.DataSourceMessage{Set: &protocol.DataSourceResult{
		DataSrcRequestID: corrID, Timestamp: "1700000000000",
	}})
	fx.engine.HandleDataSourceMessage(raw)

	require.Len(t, fx.sender.sent, 1)
	resp := fx.sender.sent[0]
	assert.Equal(t, "set", resp.Action)
	assert.Equal(t, "req-1", resp.RequestID)
	assert.Empty(t, resp.Error)
	assert.Equal(t, "1700000000000", resp.Timestamp)

	// Round trip complete: both the pending request and the entry are gone.
	assert.Equal(t, 0, fx.sess.Table.Len())
	assert.Equal(t, 0, fx.corr.Len())
}

func TestCorrelatedSetErrorPassesThrough(t *testing.T) {
	fx := newEngineFixture(t)
	require.NoError(t, fx.sess.Table.Register(&session.Request{
		ID: "req-1", Action: protocol.ActionSet, Path: "Signal.A",
	}))
	corrID := fx.corr.Create(fx.sess.ID, "req-1")

	raw, _ := json.Marshal(protocol.DataSourceMessage{Set: &protocol.DataSourceResult{
		DataSrcRequestID: corrID, Error: "read only",
	}})
	fx.engine.HandleDataSourceMessage(raw)

	require.Len(t, fx.sender.sent, 1)
	assert.Equal(t, "read only", fx.sender.sent[0].Error)
	assert.NotEmpty(t, fx.sender.sent[0].Timestamp, "missing timestamp is filled in")
}

func TestCorrelatedVSSAnswersWithTree(t *testing.T) {
	fx := newEngineFixture(t)
	require.NoError(t, fx.sess.Table.Register(&session.Request{
		ID: "req-1", Action: protocol.ActionGetVSS,
	}))
	corrID := fx.corr.Create(fx.sess.ID, "req-1")

	tree := json.RawMessage(`{"Signal":{"A":1}}`)
	raw, _ := json.Marshal(protocol.DataSourceMessage{VSS: &protocol.DataSourceResult{
		DataSrcRequestID: corrID, VSS: tree,
	}})
	fx.engine.HandleDataSourceMessage(raw)

	require.Len(t, fx.sender.sent, 1)
	resp := fx.sender.sent[0]
	assert.Equal(t, "getVSS", resp.Action)
	assert.JSONEq(t, string(tree), string(resp.VSS))
}

func TestStaleCorrelationIDDroppedSilently(t *testing.T) {
	fx := newEngineFixture(t)

	raw, _ := json.Marshal(protocol.DataSourceMessage{Set: &protocol.DataSourceResult{
		DataSrcRequestID: "datasrcreqid-unknown",
	}})
	fx.engine.HandleDataSourceMessage(raw)

	assert.Empty(t, fx.sender.sent)
}

func TestDestroyedSessionGetsNothing(t *testing.T) {
	fx := newEngineFixture(t)
	require.NoError(t, fx.sess.Table.Register(&session.Request{
		ID: "req-1", Action: protocol.ActionSubscribe, Path: "Signal.A", SubscriptionID: "subid-1",
	}))
	corrID := fx.corr.Create(fx.sess.ID, "req-1")

	fx.registry.Destroy(fx.sess.ID)

	fx.engine.HandleDataSourceMessage(batchJSON(t, protocol.SignalSample{
		Path: "Signal.A", Value: json.RawMessage("1"), Timestamp: "1",
	}))
	raw, _ := json.Marshal(protocol.DataSourceMessage{Set: &protocol.DataSourceResult{
		DataSrcRequestID: corrID,
	}})
	fx.engine.HandleDataSourceMessage(raw)

	assert.Empty(t, fx.sender.sent)
}

type countingSender struct {
	mu     sync.Mutex
	counts map[string]int
}

func (c *countingSender) Send(v any) error {
	resp, ok := v.(protocol.Response)
	if !ok {
		return nil
	}
	c.mu.Lock()
	c.counts[resp.RequestID]++
	c.mu.Unlock()
	return nil
}

// A matching batch and the registry janitor can race for the same one-shot
// request; whichever unregisters it first owns the answer.
func TestOneShotGetAnsweredOnceDespiteExpiry(t *testing.T) {
	registry := session.NewRegistry(nil, 0)
	t.Cleanup(registry.Close)
	corr := NewCorrelationMap(0)
	t.Cleanup(corr.Close)

	sender := &countingSender{counts: make(map[string]int)}
	sess := registry.Create(sender)
	engine := NewEngine(registry, corr, signalcache.NewMemoryStore())

	batch := batchJSON(t, protocol.SignalSample{
		Path: "Signal.A", Value: json.RawMessage("1"), Timestamp: "1",
	})

	const rounds = 2000
	for i := 0; i < rounds; i++ {
		reqID := fmt.Sprintf("req-%d", i)
		require.NoError(t, sess.Table.Register(&session.Request{
			ID: reqID, Action: protocol.ActionGet, Path: "Signal.A",
		}))

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			engine.HandleDataSourceMessage(batch)
		}()
		go func() {
			defer wg.Done()
			// The janitor's expiry sequence: snapshot, claim, answer.
			for _, req := range sess.Table.Snapshot() {
				if req.Action == protocol.ActionSubscribe {
					continue
				}
				if err := sess.Table.Unregister(req.ID); err == nil {
					sess.Send(protocol.GetErrorResponse(req.ID, constants.ErrRequestTimeout, protocol.Timestamp()))
				}
			}
		}()
		wg.Wait()
	}

	sender.mu.Lock()
	defer sender.mu.Unlock()
	require.Len(t, sender.counts, rounds, "every request gets an answer")
	for reqID, n := range sender.counts {
		assert.Equal(t, 1, n, "request %s must be answered exactly once", reqID)
	}
}

func TestMalformedDataSourceMessageIgnored(t *testing.T) {
	fx := newEngineFixture(t)
	fx.engine.HandleDataSourceMessage([]byte("{broken"))
	assert.Empty(t, fx.sender.sent)
}
