package web

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sweeney/coop-controller/internal/status"
)

const (
	wsWriteWait    = 10 * time.Second
	wsPongWait     = 60 * time.Second
	wsPingInterval = wsPongWait * 9 / 10
	wsMaxMessage   = 512
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		// LAN display
		return true
	},
}

// handleWebSocket streams a status document to the client on connect and
// after every state change. Client messages are read and discarded.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Error("websocket upgrade failed", "error", err)
		return
	}
	s.log.Debug("websocket client connected", "remote", r.RemoteAddr)

	closed := make(chan struct{})
	go s.wsReadPump(conn, closed)
	s.wsWritePump(conn, closed)
}

func (s *Server) wsReadPump(conn *websocket.Conn, closed chan<- struct{}) {
	defer close(closed)

	conn.SetReadLimit(wsMaxMessage)
	conn.SetReadDeadline(time.Now().Add(wsPongWait)) //nolint:errcheck // best-effort
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Warn("websocket read error", "error", err)
			}
			return
		}
	}
}

func (s *Server) wsWritePump(conn *websocket.Conn, closed <-chan struct{}) {
	ticker := time.NewTicker(wsPingInterval)
	defer func() {
		ticker.Stop()
		conn.Close()
		s.log.Debug("websocket client disconnected")
	}()

	var lastSeq uint64
	sent := false
	for {
		changed := s.state.Changed()
		snap := s.state.Snapshot()
		if !sent || snap.Seq != lastSeq {
			if err := writeSnapshot(conn, snap); err != nil {
				s.log.Debug("websocket write failed", "error", err)
				return
			}
			lastSeq = snap.Seq
			sent = true
		}

		select {
		case <-closed:
			return
		case <-changed:
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait)) //nolint:errcheck // best-effort
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func writeSnapshot(conn *websocket.Conn, snap status.Snapshot) error {
	data, err := json.Marshal(status.Build(snap))
	if err != nil {
		return err
	}
	conn.SetWriteDeadline(time.Now().Add(wsWriteWait)) //nolint:errcheck // best-effort
	return conn.WriteMessage(websocket.TextMessage, data)
}
