package main

import (
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"visgw/internal/constants"
	"visgw/internal/datasrc"
	"visgw/internal/utils"
)

// Standalone mock vehicle data source. Serves the same WebSocket feed
// the gateway's built-in mock produces, so a gateway pointed at
// VISGW_DATASRC_URL=ws://localhost:3001 behaves identically.

var upgrader = websocket.Upgrader{
	ReadBufferSize:  constants.WSBufferSize,
	WriteBufferSize: constants.WSBufferSize,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type feedConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (f *feedConn) writeJSON(v any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.conn.SetWriteDeadline(time.Now().Add(constants.WriteTimeout))
	return f.conn.WriteJSON(v)
}

func handleFeed(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("❌ WebSocket upgrade error: %v", err)
		return
	}
	defer conn.Close()
	conn.SetReadLimit(int64(constants.MaxWSMessageSize))

	log.Printf("🔌 Gateway connected: %s", conn.RemoteAddr())

	src := datasrc.NewMockSource()
	fc := &feedConn{conn: conn}
	done := make(chan struct{})

	go func() {
		ticker := time.NewTicker(constants.MockFeedInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := fc.writeJSON(src.NextBatch()); err != nil {
					return
				}
			}
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			break
		}

		reply, ok := src.HandleRequest(data)
		if !ok {
			log.Printf("⚠️  Unhandled request: %s", string(data))
			continue
		}
		if err := fc.writeJSON(reply); err != nil {
			break
		}
	}

	close(done)
	log.Printf("🔌 Gateway disconnected: %s", conn.RemoteAddr())
}

func main() {
	addr := utils.GetEnv("VISGW_DATASRC_ADDR", ":3001")

	mux := http.NewServeMux()
	mux.HandleFunc("/", handleFeed)

	log.Printf("🚗 Mock data source listening on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Fatalf("Data source server error: %v", err)
	}
}
