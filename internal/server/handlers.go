package server

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"visgw/internal/constants"
	"visgw/internal/logger"
	"visgw/internal/protocol"
	"visgw/internal/security"
)

// wsSender serializes writes to a client WebSocket. The read loop and
// the data source goroutine both send responses, so writes take a lock.
type wsSender struct {
	mu   sync.Mutex
	conn *websocket.Conn
	wlog *logger.Logger
}

func (ws *wsSender) Send(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}

	ws.mu.Lock()
	defer ws.mu.Unlock()

	ws.conn.SetWriteDeadline(time.Now().Add(constants.WriteTimeout))
	if err := ws.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		if ws.wlog != nil {
			ws.wlog.LogError("server->client", err, ws.conn.RemoteAddr().String())
		}
		return err
	}

	if ws.wlog != nil {
		ws.wlog.LogData("server->client", data, ws.conn.RemoteAddr().String())
	}
	return nil
}

func (s *Server) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	clientIP := security.GetClientIP(r)

	if !s.ConnLimiter.TryConnect(clientIP) {
		http.Error(w, "Connection limit exceeded", http.StatusTooManyRequests)
		return
	}
	defer s.ConnLimiter.Disconnect(clientIP)

	log.Printf("🔌 WebSocket request received from %s", clientIP)

	upgrader := websocket.Upgrader{
		ReadBufferSize:  constants.WSBufferSize,
		WriteBufferSize: constants.WSBufferSize,
		Subprotocols:    []string{constants.SubProtocol},
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("❌ WebSocket upgrade error: %v", err)
		return
	}
	defer conn.Close()
	conn.SetReadLimit(int64(constants.MaxWSMessageSize))

	sender := &wsSender{conn: conn}
	sess := s.Registry.Create(sender)

	wlog, err := logger.NewLogger(sess.ID)
	if err != nil {
		log.Printf("⚠️  Wire logger unavailable for %s: %v", sess.ID, err)
	} else {
		sender.wlog = wlog
		wlog.LogEvent("session opened from " + clientIP)
		defer wlog.Close()
	}

	log.Printf("🚙 Client connected: %s (%s)", sess.ID, clientIP)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("Client read error: %v", err)
			}
			break
		}

		if wlog != nil {
			wlog.LogData("client->server", data, clientIP)
		}
		s.Dispatcher.HandleMessage(sess.ID, data)
	}

	s.Dispatcher.HandleDisconnect(sess.ID)
	log.Printf("🔌 Client disconnected: %s", sess.ID)
}

type statusResponse struct {
	Status   string                  `json:"status"`
	Version  string                  `json:"version"`
	Sessions int                     `json:"sessions"`
	Pending  int                     `json:"pendingForwards"`
	Signals  []protocol.SignalSample `json:"signals"`
}

func (s *Server) HandleStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{
		Status:   "ok",
		Version:  constants.Version,
		Sessions: s.Registry.Count(),
		Pending:  s.Corr.Len(),
		Signals:  s.Cache.Latest(),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}
