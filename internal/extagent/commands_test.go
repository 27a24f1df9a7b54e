package extagent

import (
	"encoding/json"
	"testing"
)

func newTestAgent() *Agent {
	return &Agent{sessions: NewSessionIndex(), connecting: map[string]bool{}, pendingOpen: map[string]bool{}}
}

func TestResolveDebuggerSessionByRelaySessionID(t *testing.T) {
	a := newTestAgent()
	a.sessions.Put(&TabBinding{TabID: 1, TargetID: "target-1", SessionID: "cb-tab-1", DebuggerSessionID: "real-1"})

	got, err := a.resolveDebuggerSession("cb-tab-1", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "real-1" {
		t.Fatalf("got %q, want real-1", got)
	}
}

func TestResolveDebuggerSessionByChildSessionPassesThroughVerbatim(t *testing.T) {
	a := newTestAgent()
	a.sessions.Put(&TabBinding{TabID: 1, TargetID: "target-1", SessionID: "cb-tab-1", DebuggerSessionID: "real-1"})
	a.sessions.AddChild("child-real-session", 1)

	got, err := a.resolveDebuggerSession("child-real-session", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "child-real-session" {
		t.Fatalf("got %q, want the child session id unmodified", got)
	}
}

func TestResolveDebuggerSessionByExplicitTargetID(t *testing.T) {
	a := newTestAgent()
	a.sessions.Put(&TabBinding{TabID: 1, TargetID: "target-1", SessionID: "cb-tab-1", DebuggerSessionID: "real-1"})

	params, _ := json.Marshal(map[string]any{"targetId": "target-1"})
	got, err := a.resolveDebuggerSession("", params)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "real-1" {
		t.Fatalf("got %q, want real-1", got)
	}
}

func TestResolveDebuggerSessionUnknownTargetIDErrors(t *testing.T) {
	a := newTestAgent()
	params, _ := json.Marshal(map[string]any{"targetId": "missing"})
	if _, err := a.resolveDebuggerSession("", params); err == nil {
		t.Fatal("expected an error for an unknown explicit targetId")
	}
}

func TestResolveDebuggerSessionFallsBackToFirstAttached(t *testing.T) {
	a := newTestAgent()
	a.sessions.Put(&TabBinding{TabID: 1, TargetID: "target-1", SessionID: "cb-tab-1", DebuggerSessionID: "real-1"})

	got, err := a.resolveDebuggerSession("", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "real-1" {
		t.Fatalf("got %q, want real-1", got)
	}
}

func TestResolveDebuggerSessionNoAttachedTabErrors(t *testing.T) {
	a := newTestAgent()
	if _, err := a.resolveDebuggerSession("", nil); err == nil {
		t.Fatal("expected no-attached-tab error with nothing attached")
	}
}

func TestExtractParamString(t *testing.T) {
	params, _ := json.Marshal(map[string]any{"targetId": "abc", "count": 3})
	if v, ok := extractParamString(params, "targetId"); !ok || v != "abc" {
		t.Fatalf("extractParamString(targetId) = %q, %v", v, ok)
	}
	if _, ok := extractParamString(params, "missing"); ok {
		t.Fatal("extractParamString found a key that isn't present")
	}
	if _, ok := extractParamString(params, "count"); ok {
		t.Fatal("extractParamString should reject a non-string value")
	}
	if _, ok := extractParamString(nil, "targetId"); ok {
		t.Fatal("extractParamString on empty params must report not-found")
	}
}

func TestDecodeResultAndRawOrNil(t *testing.T) {
	if got := decodeResult(nil); len(got.(map[string]any)) != 0 {
		t.Fatalf("decodeResult(nil) = %#v, want empty map", got)
	}
	raw := json.RawMessage(`{"value":42}`)
	got, ok := decodeResult(raw).(map[string]any)
	if !ok || got["value"] != float64(42) {
		t.Fatalf("decodeResult(raw) = %#v", got)
	}

	if rawOrNil(nil) != nil {
		t.Fatal("rawOrNil(nil) must be nil")
	}
	if rawOrNil(raw) == nil {
		t.Fatal("rawOrNil(raw) must not be nil")
	}
}
