package datasrc

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"visgw/internal/protocol"
)

// MockFeed drives a MockSource in process, for running the gateway with no
// external data source. It satisfies the same Forwarder contract as Client
// by synthesizing correlated replies through the receive callback.
type MockFeed struct {
	src      *MockSource
	receive  func([]byte)
	interval time.Duration

	done     chan struct{}
	stopOnce sync.Once
}

func NewMockFeed(receive func([]byte), interval time.Duration) *MockFeed {
	return &MockFeed{
		src:      NewMockSource(),
		receive:  receive,
		interval: interval,
		done:     make(chan struct{}),
	}
}

// Run pushes one batch per interval until Close.
func (f *MockFeed) Run() {
	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	for {
		select {
		case <-f.done:
			return
		case <-ticker.C:
			data, err := json.Marshal(f.src.NextBatch())
			if err != nil {
				log.Printf("⚠️  Failed to marshal mock batch: %v", err)
				continue
			}
			f.receive(data)
		}
	}
}

func (f *MockFeed) ForwardSet(path string, value json.RawMessage, correlationID string) error {
	return f.reply(protocol.DataSourceRequest{
		Action:           "set",
		Path:             path,
		Value:            value,
		DataSrcRequestID: correlationID,
	})
}

func (f *MockFeed) ForwardVSS(correlationID string) error {
	return f.reply(protocol.DataSourceRequest{
		Action:           "getVSS",
		DataSrcRequestID: correlationID,
	})
}

func (f *MockFeed) reply(req protocol.DataSourceRequest) error {
	raw, err := json.Marshal(req)
	if err != nil {
		return err
	}
	resp, ok := f.src.HandleRequest(raw)
	if !ok {
		return ErrNotConnected
	}
	data, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	// Deliver asynchronously so the round trip looks like the real one.
	go f.receive(data)
	return nil
}

func (f *MockFeed) Close() error {
	f.stopOnce.Do(func() { close(f.done) })
	return nil
}
