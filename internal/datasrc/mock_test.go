package datasrc

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"visgw/internal/protocol"
)

func sampleValue(t *testing.T, batch protocol.DataSourceMessage, path string) int {
	t.Helper()
	for _, s := range batch.Data {
		if s.Path == path {
			var v int
			require.NoError(t, json.Unmarshal(s.Value, &v))
			return v
		}
	}
	t.Fatalf("path %s not in batch", path)
	return 0
}

func TestNextBatchRampsAndWraps(t *testing.T) {
	src := NewMockSource()

	first := src.NextBatch()
	require.Len(t, first.Data, 3)
	assert.Equal(t, 65, sampleValue(t, first, PathSpeed))
	assert.Equal(t, 1510, sampleValue(t, first, PathRPM))
	assert.Equal(t, -55, sampleValue(t, first, PathSteer))

	// All samples in a batch share one timestamp.
	for _, s := range first.Data {
		assert.Equal(t, first.Data[0].Timestamp, s.Timestamp)
	}

	// Speed climbs to 120 then wraps back to the bottom of the ramp.
	var speed int
	for i := 0; i < 11; i++ {
		speed = sampleValue(t, src.NextBatch(), PathSpeed)
	}
	assert.Equal(t, 120, speed)
	assert.Equal(t, 60, sampleValue(t, src.NextBatch(), PathSpeed))
}

func TestHandleRequestSet(t *testing.T) {
	src := NewMockSource()

	raw, _ := json.Marshal(protocol.DataSourceRequest{
		Action: "set", Path: PathSpeed, Value: json.RawMessage("99"),
		DataSrcRequestID: "datasrcreqid-1",
	})
	reply, ok := src.HandleRequest(raw)
	require.True(t, ok)
	require.NotNil(t, reply.Set)
	assert.Equal(t, "datasrcreqid-1", reply.Set.DataSrcRequestID)
	assert.Empty(t, reply.Set.Error)
	assert.NotEmpty(t, reply.Set.Timestamp)
}

func TestHandleRequestGetVSSReflectsOverrides(t *testing.T) {
	src := NewMockSource()

	raw, _ := json.Marshal(protocol.DataSourceRequest{
		Action: "set", Path: PathSpeed, Value: json.RawMessage("99"),
		DataSrcRequestID: "datasrcreqid-1",
	})
	_, ok := src.HandleRequest(raw)
	require.True(t, ok)

	raw, _ = json.Marshal(protocol.DataSourceRequest{
		Action: "set", Path: "VIN", Value: json.RawMessage(`"WVW000"`),
		DataSrcRequestID: "datasrcreqid-vin",
	})
	_, ok = src.HandleRequest(raw)
	require.True(t, ok)

	raw, _ = json.Marshal(protocol.DataSourceRequest{
		Action: "getVSS", DataSrcRequestID: "datasrcreqid-2",
	})
	reply, ok := src.HandleRequest(raw)
	require.True(t, ok)
	require.NotNil(t, reply.VSS)
	assert.Equal(t, "datasrcreqid-2", reply.VSS.DataSrcRequestID)

	var tree map[string]any
	require.NoError(t, json.Unmarshal(reply.VSS.VSS, &tree))

	signal, ok := tree["Signal"].(map[string]any)
	require.True(t, ok)
	drivetrain, ok := signal["Drivetrain"].(map[string]any)
	require.True(t, ok)
	transmission, ok := drivetrain["Transmission"].(map[string]any)
	require.True(t, ok)
	assert.EqualValues(t, 99, transmission["Speed"])

	// A single-segment path lands at the tree root.
	assert.Equal(t, "WVW000", tree["VIN"])
}

func TestHandleRequestRejectsUnknown(t *testing.T) {
	src := NewMockSource()

	_, ok := src.HandleRequest([]byte(`{"action":"reboot","dataSrcRequestId":"x"}`))
	assert.False(t, ok)

	_, ok = src.HandleRequest([]byte("{broken"))
	assert.False(t, ok)
}
