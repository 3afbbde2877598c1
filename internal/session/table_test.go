package session

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"visgw/internal/protocol"
)

func TestRegisterRejectsDuplicateRequestID(t *testing.T) {
	table := NewRequestTable()

	err := table.Register(&Request{ID: "req-1", Action: protocol.ActionGet, Path: "Signal.A"})
	require.NoError(t, err)

	err = table.Register(&Request{ID: "req-1", Action: protocol.ActionGet, Path: "Signal.B"})
	assert.ErrorIs(t, err, ErrDuplicateRequestID)

	// The original entry survives the rejected register.
	req, ok := table.Lookup("req-1")
	require.True(t, ok)
	assert.Equal(t, "Signal.A", req.Path)
	assert.Equal(t, 1, table.Len())
}

func TestRequestIDFreedAfterUnregister(t *testing.T) {
	table := NewRequestTable()

	require.NoError(t, table.Register(&Request{ID: "req-1", Action: protocol.ActionGet}))
	require.NoError(t, table.Unregister("req-1"))

	_, ok := table.Lookup("req-1")
	assert.False(t, ok)

	// The id is reusable once the first request completed.
	assert.NoError(t, table.Register(&Request{ID: "req-1", Action: protocol.ActionSet}))
}

func TestUnregisterUnknownRequest(t *testing.T) {
	table := NewRequestTable()
	assert.ErrorIs(t, table.Unregister("nope"), ErrRequestNotFound)
}

func TestSubscriptionIndexBothDirections(t *testing.T) {
	table := NewRequestTable()

	require.NoError(t, table.Register(&Request{
		ID:             "req-1",
		Action:         protocol.ActionSubscribe,
		Path:           "Signal.A",
		SubscriptionID: "sub-1",
	}))

	subID, ok := table.SubscriptionIDFor("req-1")
	require.True(t, ok)
	assert.Equal(t, "sub-1", subID)

	reqID, ok := table.RequestIDFor("sub-1")
	require.True(t, ok)
	assert.Equal(t, "req-1", reqID)

	require.NoError(t, table.Unregister("req-1"))
	_, ok = table.RequestIDFor("sub-1")
	assert.False(t, ok)
}

func TestSubscriptionIDForNonSubscription(t *testing.T) {
	table := NewRequestTable()
	require.NoError(t, table.Register(&Request{ID: "req-1", Action: protocol.ActionGet}))

	_, ok := table.SubscriptionIDFor("req-1")
	assert.False(t, ok)
}

func TestRemoveAllSubscriptionsLeavesOneShots(t *testing.T) {
	table := NewRequestTable()

	released := 0
	require.NoError(t, table.Register(&Request{ID: "get-1", Action: protocol.ActionGet, Path: "Signal.A"}))
	require.NoError(t, table.Register(&Request{
		ID: "sub-req-1", Action: protocol.ActionSubscribe, SubscriptionID: "sub-1",
		Release: func() error { released++; return nil },
	}))
	require.NoError(t, table.Register(&Request{
		ID: "sub-req-2", Action: protocol.ActionSubscribe, SubscriptionID: "sub-2",
		Release: func() error { released++; return nil },
	}))

	n := table.RemoveAllSubscriptions()
	assert.Equal(t, 2, n)
	assert.Equal(t, 2, released)

	// The pending get is untouched.
	_, ok := table.Lookup("get-1")
	assert.True(t, ok)
	assert.Equal(t, 1, table.Len())

	// Nothing left to remove.
	assert.Equal(t, 0, table.RemoveAllSubscriptions())
}

func TestClearReleasesEverythingDespiteFailures(t *testing.T) {
	table := NewRequestTable()

	released := 0
	require.NoError(t, table.Register(&Request{
		ID: "req-1", Action: protocol.ActionSubscribe, SubscriptionID: "sub-1",
		Release: func() error { return errors.New("release blew up") },
	}))
	require.NoError(t, table.Register(&Request{
		ID: "req-2", Action: protocol.ActionSubscribe, SubscriptionID: "sub-2",
		Release: func() error { released++; return nil },
	}))

	table.Clear()

	assert.Equal(t, 0, table.Len())
	assert.Equal(t, 1, released, "a failing release must not block the rest")

	_, ok := table.RequestIDFor("sub-2")
	assert.False(t, ok)
}

func TestSnapshotIsSafeToMutateAgainst(t *testing.T) {
	table := NewRequestTable()
	require.NoError(t, table.Register(&Request{ID: "req-1", Action: protocol.ActionGet}))
	require.NoError(t, table.Register(&Request{ID: "req-2", Action: protocol.ActionGet}))

	for _, req := range table.Snapshot() {
		require.NoError(t, table.Unregister(req.ID))
	}
	assert.Equal(t, 0, table.Len())
}
