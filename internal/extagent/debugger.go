package extagent

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/cdprelay/relay/internal/logging"
)

// debuggerCommand/debuggerResponse/debuggerEvent are the agent's own
// JSON-RPC framing for the downstream link to the real browser's debugger
// endpoint, mirroring the shape relay/frames.go uses for the upstream
// extension link. Params for well-known methods are built from
// github.com/chromedp/cdproto's typed structs where convenient; arbitrary
// forwarded methods pass json.RawMessage straight through.
type debuggerCommand struct {
	ID        int64  `json:"id"`
	Method    string `json:"method"`
	Params    any    `json:"params,omitempty"`
	SessionID string `json:"sessionId,omitempty"`
}

type debuggerResponse struct {
	ID        int64           `json:"id"`
	Result    json.RawMessage `json:"result,omitempty"`
	Error     *debuggerError  `json:"error,omitempty"`
	SessionID string          `json:"sessionId,omitempty"`
}

type debuggerError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *debuggerError) Error() string { return e.Message }

type debuggerEvent struct {
	Method    string          `json:"method"`
	Params    json.RawMessage `json:"params"`
	SessionID string          `json:"sessionId,omitempty"`
}

type debuggerPending struct {
	resolve chan json.RawMessage
	reject  chan error
	timer   *time.Timer
}

// debuggerLink is the agent's single websocket to the real browser's
// debugger endpoint. Commands are multiplexed across tabs using CDP's flat
// sessionId addressing: one transport, every command and event carries its
// own sessionId rather than each tab getting a dedicated socket.
type debuggerLink struct {
	ws      *websocket.Conn
	writeMu sync.Mutex

	mu      sync.Mutex
	pending map[int64]*debuggerPending
	nextID  int64

	onEvent func(*debuggerEvent)
}

// discoverDebuggerURL resolves a browser's top-level debugger websocket
// from its HTTP control port, grounded on the teacher's
// browser.GetChromeWebSocketURL — adapted here to fetch the endpoint this
// agent dials rather than one a locally-launched Chrome process exposes
// (launching and managing Chrome's lifecycle remains out of scope).
func discoverDebuggerURL(ctx context.Context, baseURL string, timeout time.Duration) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	versionURL := strings.TrimSuffix(baseURL, "/") + "/json/version"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, versionURL, nil)
	if err != nil {
		return "", err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("extagent: query %s: %w", versionURL, err)
	}
	defer resp.Body.Close()

	var payload struct {
		WebSocketDebuggerURL string `json:"webSocketDebuggerUrl"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("extagent: decode %s: %w", versionURL, err)
	}
	if payload.WebSocketDebuggerURL == "" {
		return "", fmt.Errorf("extagent: %s reported no webSocketDebuggerUrl", versionURL)
	}
	return payload.WebSocketDebuggerURL, nil
}

func dialDebugger(ctx context.Context, wsURL string, onEvent func(*debuggerEvent)) (*debuggerLink, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	ws, _, err := dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("extagent: dial debugger %s: %w", wsURL, err)
	}
	link := &debuggerLink{
		ws:      ws,
		pending: make(map[int64]*debuggerPending),
		onEvent: onEvent,
	}
	go link.readLoop()
	return link, nil
}

func (l *debuggerLink) call(ctx context.Context, method, sessionID string, params any, timeout time.Duration) (json.RawMessage, error) {
	l.mu.Lock()
	l.nextID++
	id := l.nextID
	pending := &debuggerPending{
		resolve: make(chan json.RawMessage, 1),
		reject:  make(chan error, 1),
	}
	pending.timer = time.AfterFunc(timeout, func() {
		l.mu.Lock()
		p, ok := l.pending[id]
		if ok {
			delete(l.pending, id)
		}
		l.mu.Unlock()
		if ok {
			p.reject <- fmt.Errorf("extagent: debugger call %s timed out after %s", method, timeout)
		}
	})
	l.pending[id] = pending
	l.mu.Unlock()

	cmd := debuggerCommand{ID: id, Method: method, Params: params, SessionID: sessionID}
	l.writeMu.Lock()
	err := l.ws.WriteJSON(cmd)
	l.writeMu.Unlock()
	if err != nil {
		l.mu.Lock()
		delete(l.pending, id)
		l.mu.Unlock()
		pending.timer.Stop()
		return nil, fmt.Errorf("extagent: write debugger command %s: %w", method, err)
	}

	logging.Tracef("-> debugger: id=%d method=%s sessionId=%q", id, method, sessionID)

	select {
	case res := <-pending.resolve:
		return res, nil
	case err := <-pending.reject:
		return nil, err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (l *debuggerLink) readLoop() {
	for {
		_, data, err := l.ws.ReadMessage()
		if err != nil {
			l.failAll(fmt.Errorf("extagent: debugger link closed: %w", err))
			return
		}

		var resp debuggerResponse
		if err := json.Unmarshal(data, &resp); err == nil && resp.ID != 0 {
			l.resolve(resp)
			continue
		}

		var evt debuggerEvent
		if err := json.Unmarshal(data, &evt); err != nil || evt.Method == "" {
			continue
		}
		logging.Tracef("<- debugger: method=%s sessionId=%q", evt.Method, evt.SessionID)
		if l.onEvent != nil {
			l.onEvent(&evt)
		}
	}
}

func (l *debuggerLink) resolve(resp debuggerResponse) {
	l.mu.Lock()
	p, ok := l.pending[resp.ID]
	if ok {
		delete(l.pending, resp.ID)
	}
	l.mu.Unlock()
	if !ok {
		return
	}
	p.timer.Stop()
	if resp.Error != nil {
		p.reject <- resp.Error
		return
	}
	p.resolve <- resp.Result
}

func (l *debuggerLink) failAll(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for id, p := range l.pending {
		p.timer.Stop()
		p.reject <- err
		delete(l.pending, id)
	}
}

func (l *debuggerLink) Close() error {
	return l.ws.Close()
}
