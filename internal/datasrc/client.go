package datasrc

import (
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"visgw/internal/constants"
	"visgw/internal/protocol"
)

var ErrNotConnected = errors.New("data source not connected")

// Client maintains the WebSocket connection to the external data source:
// forwarding set/getVSS requests out, and handing every inbound message to
// the receive callback. It reconnects on failure until closed.
type Client struct {
	url     string
	receive func([]byte)

	mu   sync.Mutex
	conn *websocket.Conn

	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewClient(url string, receive func([]byte)) *Client {
	return &Client{
		url:     url,
		receive: receive,
		done:    make(chan struct{}),
	}
}

// Run dials the data source and pumps inbound messages until Close. Dial
// failures and dropped connections retry after a fixed interval.
func (c *Client) Run() {
	c.wg.Add(1)
	defer c.wg.Done()

	dialer := &websocket.Dialer{
		ReadBufferSize:   constants.WSBufferSize,
		WriteBufferSize:  constants.WSBufferSize,
		HandshakeTimeout: constants.WSHandshakeTimeout,
	}

	for {
		select {
		case <-c.done:
			return
		default:
		}

		conn, _, err := dialer.Dial(c.url, nil)
		if err != nil {
			log.Printf("⚠️  Data source dial failed: %v (retrying in %s)", err, constants.DialRetryInterval)
			if !c.sleep(constants.DialRetryInterval) {
				return
			}
			continue
		}
		conn.SetReadLimit(int64(constants.MaxWSMessageSize))

		c.mu.Lock()
		c.conn = conn
		c.mu.Unlock()
		log.Printf("🔌 Connected to data source: %s", c.url)

		c.readLoop(conn)

		c.mu.Lock()
		c.conn = nil
		c.mu.Unlock()

		select {
		case <-c.done:
			return
		default:
			log.Printf("🔌 Data source connection lost, reconnecting in %s", constants.DialRetryInterval)
			if !c.sleep(constants.DialRetryInterval) {
				return
			}
		}
	}
}

func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("⚠️  Data source read error: %v", err)
			}
			conn.Close()
			return
		}
		c.receive(data)
	}
}

// ForwardSet sends a set request for the path, tagged with the correlation id.
func (c *Client) ForwardSet(path string, value json.RawMessage, correlationID string) error {
	return c.write(protocol.DataSourceRequest{
		Action:           "set",
		Path:             path,
		Value:            value,
		DataSrcRequestID: correlationID,
	})
}

// ForwardVSS requests the full signal tree snapshot.
func (c *Client) ForwardVSS(correlationID string) error {
	return c.write(protocol.DataSourceRequest{
		Action:           "getVSS",
		DataSrcRequestID: correlationID,
	})
}

func (c *Client) write(req protocol.DataSourceRequest) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return ErrNotConnected
	}
	c.conn.SetWriteDeadline(time.Now().Add(constants.WriteTimeout))
	return c.conn.WriteJSON(req)
}

// Close stops the reconnect loop and drops the connection.
func (c *Client) Close() error {
	c.stopOnce.Do(func() { close(c.done) })

	c.mu.Lock()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.mu.Unlock()

	c.wg.Wait()
	return nil
}

func (c *Client) sleep(d time.Duration) bool {
	select {
	case <-c.done:
		return false
	case <-time.After(d):
		return true
	}
}
