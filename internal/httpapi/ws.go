package httpapi

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"memecoin-radar/internal/eventbus"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsPongTimeout  = 60 * time.Second
	wsPingInterval = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// The dashboard is served from another origin during development.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleWS upgrades the connection, sends the initial snapshot, then
// relays bus events until the client goes away.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Printf("[httpapi] ws upgrade: %v", err)
		return
	}
	defer conn.Close()

	sub := s.opts.Bus.Subscribe()
	defer s.opts.Bus.Unsubscribe(sub)

	posts, err := s.opts.Posts.Load()
	if err != nil {
		s.logger.Printf("[httpapi] ws snapshot: %v", err)
		posts = nil
	}
	conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	if err := conn.WriteJSON(eventbus.InitialSnapshot(posts)); err != nil {
		return
	}

	// Reader goroutine: clients may send messages; they carry no command
	// semantics yet and are only logged.
	done := make(chan struct{})
	go func() {
		defer close(done)
		conn.SetReadDeadline(time.Now().Add(wsPongTimeout))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(wsPongTimeout))
		})
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			s.logger.Printf("[httpapi] ws client message: %s", msg)
		}
	}()

	ping := time.NewTicker(wsPingInterval)
	defer ping.Stop()

	for {
		select {
		case <-done:
			return
		case ev, ok := <-sub.C():
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		case <-ping.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
