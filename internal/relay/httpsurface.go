package relay

import (
	"encoding/json"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/cdprelay/relay/internal/logging"
)

// Handler returns the relay's full HTTP surface (§4.6), mounting both the
// discovery/status endpoints and the WebSocket upgrade paths on one
// loopback-only chi router, the way the teacher's ExtensionRelay.Handler
// does.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Get("/", s.handleRoot)
	r.Head("/", s.handleRoot)
	r.Get("/status", s.handleStatus)
	r.Get("/extension/status", s.handleExtensionStatus)
	r.Get("/json/version", s.handleJSONVersion)
	r.Get("/json/version/", s.handleJSONVersion)
	r.Get("/json", s.handleJSONList)
	r.Get("/json/", s.handleJSONList)
	r.Get("/json/list", s.handleJSONList)
	r.Get("/json/list/", s.handleJSONList)
	r.Get("/json/activate/{targetId}", s.handleJSONActivate)
	r.Get("/json/close/{targetId}", s.handleJSONClose)
	r.Post("/open-url", s.handleOpenURL)
	r.Get("/screenshots/{file}", s.handleScreenshot)
	r.HandleFunc("/extension", s.HandleExtensionWS)
	r.HandleFunc("/cdp", s.HandleCdpWS)
	return r
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodGet {
		w.Write([]byte("OK"))
	}
}

// handleStatus answers GET /status with the {connected, extensionConnected,
// targets, activeTargetId} snapshot of §4.6. connected is always true:
// the relay itself is "connected" to its own listener by definition once
// this handler runs; extensionConnected reports the extension link.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	targets := s.registry.list()
	infos := make([]*TargetInfo, 0, len(targets))
	var activeTargetID string
	for _, t := range targets {
		infos = append(infos, t.TargetInfo)
		if activeTargetID == "" {
			activeTargetID = t.TargetID
		}
	}

	s.mu.RLock()
	lastDisconnect := s.lastDisconnectReason
	s.mu.RUnlock()

	writeJSON(w, map[string]any{
		"connected":            true,
		"extensionConnected":   s.ExtensionConnected(),
		"targets":              infos,
		"activeTargetId":       activeTargetID,
		"lastDisconnectReason": lastDisconnect,
	})
}

func (s *Server) handleExtensionStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{"connected": s.ExtensionConnected()})
}

func (s *Server) handleJSONVersion(w http.ResponseWriter, r *http.Request) {
	if !s.checkDiscoveryAuth(r.Header.Get(DiscoveryAuthHeader)) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	payload := map[string]any{
		"Browser":         "CDPRelay/1.0",
		"Protocol-Version": "1.3",
	}
	if s.ExtensionConnected() {
		payload["webSocketDebuggerUrl"] = s.cdpWebSocketURL(r)
	}
	writeJSON(w, payload)
}

// handleJSONList answers GET /json, /json/list (and their trailing-slash
// forms) with one discovery entry per registry target, each carrying a
// webSocketDebuggerUrl pointing at /cdp, per §4.6's byte-compatibility
// requirement with CDP auto-discovery clients.
func (s *Server) handleJSONList(w http.ResponseWriter, r *http.Request) {
	if !s.checkDiscoveryAuth(r.Header.Get(DiscoveryAuthHeader)) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	targets := s.registry.list()
	wsURL := s.cdpWebSocketURL(r)

	entries := make([]map[string]string, 0, len(targets))
	for _, t := range targets {
		entries = append(entries, map[string]string{
			"id":                   t.TargetID,
			"type":                 t.TargetInfo.Type,
			"title":                t.TargetInfo.Title,
			"url":                  t.TargetInfo.URL,
			"webSocketDebuggerUrl": wsURL,
		})
	}
	writeJSON(w, entries)
}

func (s *Server) handleJSONActivate(w http.ResponseWriter, r *http.Request) {
	if !s.checkDiscoveryAuth(r.Header.Get(DiscoveryAuthHeader)) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	targetID := chi.URLParam(r, "targetId")
	if targetID == "" {
		http.Error(w, "targetId required", http.StatusBadRequest)
		return
	}
	go func() {
		_, _ = s.sendToExtension(&extensionCommand{
			ID:     s.nextID(),
			Method: "forwardCDPCommand",
			Params: &extensionCommandParams{
				Method: "Target.activateTarget",
				Params: map[string]string{"targetId": targetID},
			},
		}, s.cfg.ForwardTimeout)
	}()
	w.Write([]byte("OK"))
}

func (s *Server) handleJSONClose(w http.ResponseWriter, r *http.Request) {
	if !s.checkDiscoveryAuth(r.Header.Get(DiscoveryAuthHeader)) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	targetID := chi.URLParam(r, "targetId")
	if targetID == "" {
		http.Error(w, "targetId required", http.StatusBadRequest)
		return
	}
	go func() {
		_, _ = s.sendToExtension(&extensionCommand{
			ID:     s.nextID(),
			Method: "forwardCDPCommand",
			Params: &extensionCommandParams{
				Method: "Target.closeTarget",
				Params: map[string]string{"targetId": targetID},
			},
		}, s.cfg.ForwardTimeout)
	}()
	w.Write([]byte("OK"))
}

// openURLRequest is the POST /open-url body (§3 OpenAndAttachRequest).
type openURLRequest struct {
	URL      string `json:"url"`
	Activate bool   `json:"activate"`
}

// handleOpenURL executes the openAndAttach flow (§4.7) by forwarding an
// openAndAttach frame to the extension link and relaying its result or
// error back as JSON.
func (s *Server) handleOpenURL(w http.ResponseWriter, r *http.Request) {
	var req openURLRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONStatus(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.URL == "" {
		writeJSONStatus(w, http.StatusBadRequest, map[string]string{"error": "url is required"})
		return
	}
	if !strings.HasPrefix(req.URL, "http://") && !strings.HasPrefix(req.URL, "https://") {
		writeJSONStatus(w, http.StatusBadRequest, map[string]string{"error": "Only http and https URLs are allowed"})
		return
	}
	if !s.ExtensionConnected() {
		writeJSONStatus(w, http.StatusServiceUnavailable, map[string]string{"error": "extension not connected"})
		return
	}

	result, err := s.sendToExtension(&extensionCommand{
		ID:     s.nextID(),
		Method: "openAndAttach",
		Params: &extensionCommandParams{URL: req.URL, Activate: req.Activate},
	}, s.cfg.OpenAndAttachTimeout)
	if err != nil {
		writeJSONStatus(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, result)
}

// handleScreenshot serves a previously-written image from the relay's
// private screenshot directory (§4.6). Filenames containing "/" or ".."
// are rejected outright, since the orchestrator — not the relay — chooses
// filenames and nothing should let a request path escape the directory.
func (s *Server) handleScreenshot(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "file")
	if name == "" || strings.Contains(name, "/") || strings.Contains(name, "..") {
		http.NotFound(w, r)
		return
	}
	if s.cfg.ScreenshotDir == "" {
		http.NotFound(w, r)
		return
	}

	path := filepath.Join(s.cfg.ScreenshotDir, name)
	w.Header().Set("Cache-Control", "public, max-age=3600")
	http.ServeFile(w, r, path)
}

func (s *Server) cdpWebSocketURL(r *http.Request) string {
	host := s.cfg.Host
	if host == "" || host == "0.0.0.0" {
		host = "127.0.0.1"
	}
	return fmt.Sprintf("ws://%s:%d/cdp", host, s.cfg.Port)
}

func writeJSON(w http.ResponseWriter, v any) {
	writeJSONStatus(w, http.StatusOK, v)
}

func writeJSONStatus(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Debugf("relay: failed writing json response: %v", err)
	}
}
