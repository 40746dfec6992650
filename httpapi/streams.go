package httpapi

import (
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"pkt.systems/pslog"
	"pkt.systems/termsync/internal/logx"
	"pkt.systems/termsync/schema"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleRosterStream sends the terminal list on connect and then on every
// roster interval until the client goes away.
func (s *Server) handleRosterStream(w http.ResponseWriter, r *http.Request) {
	log := logx.WithStream(logx.Ctx(r.Context()), string(schema.StreamRoster), r.URL.Path)
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn("roster stream upgrade failed", "err", err)
		return
	}
	defer conn.Close()
	gone := readUntilClosed(conn, log)
	log.Info("roster stream connected")

	ticker := time.NewTicker(s.cfg.RosterInterval)
	defer ticker.Stop()
	for {
		if err := s.sendRoster(conn); err != nil {
			log.Debug("roster stream write failed", "err", err)
			return
		}
		select {
		case <-ticker.C:
		case <-gone:
			log.Info("roster stream disconnected")
			return
		case <-r.Context().Done():
			closeNormally(conn)
			return
		}
	}
}

func (s *Server) sendRoster(conn *websocket.Conn) error {
	terminals, err := s.registry.List()
	if errors.Is(err, errNotConnected) {
		return nil
	}
	if err != nil {
		return err
	}
	msg, err := rosterMessage(terminals)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteJSON(msg)
}

// handleTerminalStream forwards output updates for one terminal. Unknown ids
// are accepted and simply never receive frames.
func (s *Server) handleTerminalStream(w http.ResponseWriter, r *http.Request) {
	id := schema.TerminalID(r.PathValue("id"))
	log := logx.WithStream(logx.WithTerminalCtx(r.Context(), id), string(schema.StreamTerminal), r.URL.Path)
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn("terminal stream upgrade failed", "err", err)
		return
	}
	defer conn.Close()
	updates, cancel := s.hub.Subscribe(id)
	defer cancel()
	gone := readUntilClosed(conn, log)
	log.Info("terminal stream connected")

	for {
		select {
		case frame, ok := <-updates:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				log.Debug("terminal stream write failed", "err", err)
				return
			}
		case <-gone:
			log.Info("terminal stream disconnected")
			return
		case <-r.Context().Done():
			closeNormally(conn)
			return
		}
	}
}

// readUntilClosed drains client frames and closes the returned channel once
// the client goes away.
func readUntilClosed(conn *websocket.Conn, log pslog.Logger) <-chan struct{} {
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) &&
					!errors.Is(err, net.ErrClosed) {
					log.Trace("stream read ended", "err", err)
				}
				return
			}
		}
	}()
	return gone
}

func closeNormally(conn *websocket.Conn) {
	_ = conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
		time.Now().Add(writeTimeout),
	)
}
