package datasrc

import (
	"encoding/json"
	"strconv"
	"strings"
	"sync"

	"visgw/internal/protocol"
)

// Signal paths served by the mock source.
const (
	PathSpeed = "Signal.Drivetrain.Transmission.Speed"
	PathRPM   = "Signal.Drivetrain.InternalCombustionEngine.RPM"
	PathSteer = "Signal.Chassis.SteeringWheel.Angle"
)

// MockSource generates a ramping speed/RPM/steering feed and answers
// forwarded set/getVSS requests. It backs both the in-process feed and the
// standalone mock server in cmd/datasrc.
type MockSource struct {
	mu        sync.Mutex
	speed     int
	rpm       int
	steer     int
	overrides map[string]json.RawMessage
}

func NewMockSource() *MockSource {
	return &MockSource{
		speed:     60,
		rpm:       1500,
		steer:     -60,
		overrides: make(map[string]json.RawMessage),
	}
}

// NextBatch advances the ramps and returns one sample batch sharing a
// single timestamp.
func (m *MockSource) NextBatch() protocol.DataSourceMessage {
	m.mu.Lock()
	m.speed += 5
	if m.speed > 120 {
		m.speed = 60
	}
	m.rpm += 10
	if m.rpm > 2000 {
		m.rpm = 1500
	}
	m.steer += 5
	if m.steer > 60 {
		m.steer = -60
	}
	speed, rpm, steer := m.speed, m.rpm, m.steer
	m.mu.Unlock()

	ts := protocol.Timestamp()
	return protocol.DataSourceMessage{
		Data: []protocol.SignalSample{
			{Path: PathSpeed, Value: rawInt(speed), Timestamp: ts},
			{Path: PathRPM, Value: rawInt(rpm), Timestamp: ts},
			{Path: PathSteer, Value: rawInt(steer), Timestamp: ts},
		},
	}
}

// HandleRequest answers one forwarded request. The second return is false
// for anything the mock does not understand.
func (m *MockSource) HandleRequest(raw []byte) (protocol.DataSourceMessage, bool) {
	var req protocol.DataSourceRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return protocol.DataSourceMessage{}, false
	}

	switch req.Action {
	case "set":
		m.mu.Lock()
		m.overrides[req.Path] = req.Value
		m.mu.Unlock()
		return protocol.DataSourceMessage{
			Set: &protocol.DataSourceResult{
				DataSrcRequestID: req.DataSrcRequestID,
				Timestamp:        protocol.Timestamp(),
			},
		}, true
	case "getVSS":
		return protocol.DataSourceMessage{
			VSS: &protocol.DataSourceResult{
				DataSrcRequestID: req.DataSrcRequestID,
				VSS:              m.Snapshot(),
			},
		}, true
	default:
		return protocol.DataSourceMessage{}, false
	}
}

// Snapshot renders the current values, including set overrides, as a nested
// signal tree keyed by path segment.
func (m *MockSource) Snapshot() json.RawMessage {
	m.mu.Lock()
	values := map[string]json.RawMessage{
		PathSpeed: rawInt(m.speed),
		PathRPM:   rawInt(m.rpm),
		PathSteer: rawInt(m.steer),
	}
	for path, value := range m.overrides {
		values[path] = value
	}
	m.mu.Unlock()

	tree := make(map[string]any)
	for path, value := range values {
		insertPath(tree, path, value)
	}
	data, _ := json.Marshal(tree)
	return data
}

func insertPath(tree map[string]any, path string, value json.RawMessage) {
	node := tree
	segs := strings.Split(path, ".")
	for i, seg := range segs {
		if i == len(segs)-1 {
			node[seg] = value
			return
		}
		child, ok := node[seg].(map[string]any)
		if !ok {
			child = make(map[string]any)
			node[seg] = child
		}
		node = child
	}
}

func rawInt(v int) json.RawMessage {
	return json.RawMessage(strconv.Itoa(v))
}
