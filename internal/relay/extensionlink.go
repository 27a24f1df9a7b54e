package relay

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/cdprelay/relay/internal/lifecycle"
	"github.com/cdprelay/relay/internal/logging"
)

const extensionPingInterval = 5 * time.Second

// HandleExtensionWS upgrades the single authoritative extension link
// (§4.1, §4.2). A second concurrent connection attempt is rejected with
// HTTP 409; non-loopback remotes are rejected with 403 before upgrade.
func (s *Server) HandleExtensionWS(w http.ResponseWriter, r *http.Request) {
	if !requireLoopback(w, r) {
		return
	}
	if !requireExtensionOrigin(w, r) {
		return
	}

	s.mu.Lock()
	if s.extensionWS != nil {
		s.mu.Unlock()
		logging.Debugf("relay: rejecting extension connection, one already linked")
		http.Error(w, "extension already connected", http.StatusConflict)
		return
	}
	s.mu.Unlock()

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Debugf("relay: extension upgrade failed: %v", err)
		return
	}

	s.mu.Lock()
	s.extensionWS = ws
	s.lastDisconnectReason = ""
	s.mu.Unlock()

	logging.Infof("relay: extension connected from %s", r.RemoteAddr)
	lifecycle.Emit(lifecycle.EventExtensionConnected, nil)

	stopPing := make(chan struct{})
	go s.pingExtensionLoop(stopPing)

	for {
		_, message, err := ws.ReadMessage()
		if err != nil {
			logging.Debugf("relay: extension link closed: %v", err)
			break
		}
		s.handleExtensionMessage(message)
	}

	close(stopPing)
	s.handleExtensionDisconnect("extension disconnected")
}

func (s *Server) pingExtensionLoop(stop <-chan struct{}) {
	ticker := time.NewTicker(extensionPingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.mu.RLock()
			ws := s.extensionWS
			s.mu.RUnlock()
			if ws == nil {
				return
			}
			s.writeMu.Lock()
			err := ws.WriteJSON(map[string]string{"method": "ping"})
			s.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

// handleExtensionDisconnect implements §4.2's link-loss fan-out: every
// pending call fails with extension-disconnected, every CDP peer is closed
// with the service-restart close code (1012), and the registry is cleared.
func (s *Server) handleExtensionDisconnect(reason string) {
	logging.Infof("relay: extension disconnected (%s)", reason)

	s.mu.Lock()
	s.extensionWS = nil
	s.lastDisconnectReason = reason
	s.failAllPendingLocked(newRouterError(extensionDisconnected, "extension disconnected"))
	for id, peer := range s.cdpClients {
		s.closePeerLocked(peer, websocket.CloseServiceRestart, "extension disconnected")
		delete(s.cdpClients, id)
	}
	s.registry.clear()
	s.mu.Unlock()

	lifecycle.Emit(lifecycle.EventExtensionDisconnected, reason)
}

// sendToExtension sends a relay->extension request and blocks until the
// matching response arrives, the per-call deadline elapses, or the
// extension link drops. This is the PendingExtensionCall lifecycle of §3.
func (s *Server) sendToExtension(cmd *extensionCommand, timeout time.Duration) (any, error) {
	s.mu.RLock()
	ws := s.extensionWS
	s.mu.RUnlock()

	if ws == nil {
		return nil, newRouterError(ErrNoExtension, "extension not connected")
	}

	resolve := make(chan any, 1)
	reject := make(chan error, 1)
	timer := time.AfterFunc(timeout, func() {
		s.mu.Lock()
		delete(s.pending, cmd.ID)
		s.mu.Unlock()
		reject <- newRouterError(ErrUpstreamTimeout, "extension request timed out")
	})

	s.mu.Lock()
	s.pending[cmd.ID] = &pendingCall{resolve: resolve, reject: reject, timer: timer}
	s.mu.Unlock()

	logging.Tracef("-> extension: id=%d method=%s", cmd.ID, cmd.Method)
	s.writeMu.Lock()
	err := ws.WriteJSON(cmd)
	s.writeMu.Unlock()

	if err != nil {
		s.mu.Lock()
		delete(s.pending, cmd.ID)
		s.mu.Unlock()
		timer.Stop()
		return nil, newRouterError(ErrNoExtension, "failed to write to extension: %v", err)
	}

	select {
	case result := <-resolve:
		return result, nil
	case err := <-reject:
		return nil, err
	}
}

// handleExtensionMessage demultiplexes an inbound extension frame into a
// response, an event, or a pong, per §4.2's four frame shapes.
func (s *Server) handleExtensionMessage(data []byte) {
	logging.Tracef("<- extension: %s", truncate(string(data), 300))

	var resp extensionResponse
	if err := json.Unmarshal(data, &resp); err == nil && resp.ID > 0 {
		s.resolvePending(resp)
		return
	}

	var evt extensionEvent
	if err := json.Unmarshal(data, &evt); err != nil {
		// malformed-frame: dropped silently, socket stays open (§7).
		return
	}
	if evt.Method == "" || evt.Method == "pong" {
		return
	}
	if evt.Method != "forwardCDPEvent" || evt.Params == nil {
		return
	}
	s.handleForwardedEvent(evt.Params)
}

func (s *Server) resolvePending(resp extensionResponse) {
	s.mu.Lock()
	pending, ok := s.pending[resp.ID]
	if ok {
		delete(s.pending, resp.ID)
	}
	s.mu.Unlock()

	if !ok {
		// No outstanding call with this id: dropped silently (§4.2
		// invariant — a response id must match exactly one pending call).
		return
	}
	pending.timer.Stop()
	if resp.Error != "" {
		pending.reject <- newRouterError(ErrUpstreamError, "%s", resp.Error)
		return
	}
	pending.resolve <- resp.Result
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
