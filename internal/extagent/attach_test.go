package extagent

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

var testUpgrader = websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}

// newFakeDebuggerServer stands in for a real browser's debugger endpoint.
// handle is invoked once per received command and returns the JSON it
// should reply with verbatim (already shaped like a debuggerResponse minus
// the id, which the server fills in).
func newFakeDebuggerServer(t *testing.T, handle func(method string, params json.RawMessage) (json.RawMessage, *debuggerError)) (*httptest.Server, string) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()
		for {
			var cmd debuggerCommand
			if err := ws.ReadJSON(&cmd); err != nil {
				return
			}
			raw, _ := json.Marshal(cmd.Params)
			result, cdpErr := handle(cmd.Method, raw)
			resp := debuggerResponse{ID: cmd.ID, Result: result, Error: cdpErr}
			if err := ws.WriteJSON(resp); err != nil {
				return
			}
		}
	}))
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	return srv, wsURL
}

// newFakeUpstreamServer stands in for the relay's /extension endpoint,
// capturing every frame the agent emits so tests can assert on them.
func newFakeUpstreamServer(t *testing.T) (*httptest.Server, string, <-chan map[string]any) {
	t.Helper()
	frames := make(chan map[string]any, 16)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		go func() {
			defer ws.Close()
			for {
				var frame map[string]any
				if err := ws.ReadJSON(&frame); err != nil {
					return
				}
				frames <- frame
			}
		}()
	}))
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	return srv, wsURL, frames
}

func dialUpstream(t *testing.T, wsURL string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial fake upstream: %v", err)
	}
	return conn
}

func attachHandler(targetID string) func(string, json.RawMessage) (json.RawMessage, *debuggerError) {
	return func(method string, params json.RawMessage) (json.RawMessage, *debuggerError) {
		switch method {
		case "Target.attachToTarget":
			return json.RawMessage(`{"sessionId":"browser-session-1"}`), nil
		case "Page.enable":
			return json.RawMessage(`{}`), nil
		case "Target.getTargetInfo":
			info, _ := json.Marshal(map[string]any{
				"targetInfo": map[string]any{
					"targetId": targetID,
					"type":     "page",
					"title":    "Example",
					"url":      "https://example.com",
					"attached": true,
				},
			})
			return info, nil
		case "Target.detachFromTarget":
			return json.RawMessage(`{}`), nil
		default:
			return json.RawMessage(`{}`), nil
		}
	}
}

func newAttachedTestAgent(t *testing.T) (*Agent, <-chan map[string]any, func()) {
	t.Helper()
	dbgSrv, dbgURL := newFakeDebuggerServer(t, attachHandler("target-1"))
	upSrv, upURL, frames := newFakeUpstreamServer(t)

	a := New(DefaultConfig())
	link, err := dialDebugger(context.Background(), dbgURL, a.handleDebuggerEvent)
	if err != nil {
		t.Fatalf("dial fake debugger: %v", err)
	}
	a.debugger = link
	a.upstream = dialUpstream(t, upURL)

	cleanup := func() {
		a.Close()
		dbgSrv.Close()
		upSrv.Close()
	}
	return a, frames, cleanup
}

func TestAttachTargetMintsBindingAndEmitsAttachedEvent(t *testing.T) {
	a, frames, cleanup := newAttachedTestAgent(t)
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	binding, err := a.attachTarget(ctx, "target-1", false)
	if err != nil {
		t.Fatalf("attachTarget: %v", err)
	}
	if binding.TargetID != "target-1" {
		t.Fatalf("TargetID = %q, want target-1", binding.TargetID)
	}
	if binding.DebuggerSessionID != "browser-session-1" {
		t.Fatalf("DebuggerSessionID = %q, want browser-session-1", binding.DebuggerSessionID)
	}
	if binding.State != tabConnected {
		t.Fatalf("State = %v, want tabConnected", binding.State)
	}
	if got, ok := a.sessions.ByTargetID("target-1"); !ok || got.SessionID != binding.SessionID {
		t.Fatal("attached binding not retrievable by target id")
	}

	select {
	case frame := <-frames:
		if frame["method"] != "forwardCDPEvent" {
			t.Fatalf("frame method = %v, want forwardCDPEvent", frame["method"])
		}
		params, _ := frame["params"].(map[string]any)
		if params["method"] != "Target.attachedToTarget" {
			t.Fatalf("inner method = %v, want Target.attachedToTarget", params["method"])
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no attachedToTarget frame emitted upstream")
	}
}

func TestAttachTargetRejectsDoubleAttach(t *testing.T) {
	a, _, cleanup := newAttachedTestAgent(t)
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if _, err := a.attachTarget(ctx, "target-1", true); err != nil {
		t.Fatalf("first attach: %v", err)
	}
	if _, err := a.attachTarget(ctx, "target-1", true); err == nil {
		t.Fatal("expected an error attaching an already-attached target")
	}
}

func TestDetachTabEmitsDetachedEventAndClearsSession(t *testing.T) {
	a, frames, cleanup := newAttachedTestAgent(t)
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	binding, err := a.attachTarget(ctx, "target-1", true)
	if err != nil {
		t.Fatalf("attachTarget: %v", err)
	}

	a.detachTab(binding.TabID, "test")

	if _, ok := a.sessions.ByTargetID("target-1"); ok {
		t.Fatal("target still present in session index after detach")
	}

	select {
	case frame := <-frames:
		if frame["method"] != "forwardCDPEvent" {
			t.Fatalf("frame method = %v, want forwardCDPEvent", frame["method"])
		}
		params, _ := frame["params"].(map[string]any)
		if params["method"] != "Target.detachedFromTarget" {
			t.Fatalf("inner method = %v, want Target.detachedFromTarget", params["method"])
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no detachedFromTarget frame emitted upstream")
	}
}
