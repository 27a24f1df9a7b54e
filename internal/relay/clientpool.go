package relay

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/cdprelay/relay/internal/events"
	"github.com/cdprelay/relay/internal/logging"
)

// HandleCdpWS upgrades a CDP client peer (§4.1, §4.3). If no extension is
// connected the upgrade is rejected with HTTP 503, so clients never end up
// in a half-working session.
func (s *Server) HandleCdpWS(w http.ResponseWriter, r *http.Request) {
	if !requireLoopback(w, r) {
		return
	}
	if !requireExtensionOrigin(w, r) {
		return
	}
	if !s.ExtensionConnected() {
		http.Error(w, "no extension connected", http.StatusServiceUnavailable)
		return
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Debugf("relay: cdp client upgrade failed: %v", err)
		return
	}

	clientID := uuid.NewString()
	peer := &cdpPeer{id: clientID, ws: ws}

	sub := events.Subscribe(s.cdpEvents, events.CDPClientTopic(clientID),
		func(_ context.Context, msg any) error {
			peer.mu.Lock()
			defer peer.mu.Unlock()
			if logging.Tracing() {
				if data, err := json.Marshal(msg); err == nil {
					logging.Tracef("-> cdp client %s: %s", clientID[:8], truncate(string(data), 300))
				}
			}
			return peer.ws.WriteJSON(msg)
		})
	peer.sub = sub

	s.mu.Lock()
	s.cdpClients[clientID] = peer
	s.mu.Unlock()

	logging.Infof("relay: cdp client connected: %s", clientID)

	for {
		_, message, err := ws.ReadMessage()
		if err != nil {
			logging.Debugf("relay: cdp client %s read error: %v", clientID[:8], err)
			break
		}

		var cmd cdpCommand
		if err := json.Unmarshal(message, &cmd); err != nil {
			// parse-error: dropped, socket stays open (§7).
			continue
		}
		if cmd.Method == "" {
			continue
		}

		logging.Tracef("<- cdp client %s: id=%d method=%s sessionId=%q", clientID[:8], cmd.ID, cmd.Method, cmd.SessionID)
		s.handleCdpCommand(peer, &cmd)
	}

	s.mu.Lock()
	delete(s.cdpClients, clientID)
	s.mu.Unlock()
	sub.Unsubscribe()
	logging.Infof("relay: cdp client disconnected: %s", clientID)
}

// broadcast fans an event out to every connected CDP client (§4.3, §5:
// snapshot-then-iterate to avoid holding the peer-set lock during fan-out).
func (s *Server) broadcast(evt *cdpEvent) {
	s.mu.RLock()
	ids := make([]string, 0, len(s.cdpClients))
	for id := range s.cdpClients {
		ids = append(ids, id)
	}
	s.mu.RUnlock()

	for _, id := range ids {
		if err := events.Emit[any](s.cdpEvents, events.CDPClientTopic(id), evt); err != nil {
			logging.Debugf("relay: broadcast to %s dropped: %v", id, err)
		}
	}
}

// emitTo delivers a frame (response or addressed event) to exactly one
// client's topic.
func (s *Server) emitTo(clientID string, msg any) {
	if err := events.Emit[any](s.cdpEvents, events.CDPClientTopic(clientID), msg); err != nil {
		logging.Debugf("relay: emit to %s dropped: %v", clientID, err)
	}
}
