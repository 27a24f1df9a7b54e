package extagent

import (
	"encoding/json"

	"github.com/cdprelay/relay/internal/logging"
)

// handleDebuggerEvent routes one event off the downstream debugger link.
// Target.attachedToTarget/detachedFromTarget maintain the child-session
// index and are re-announced upstream under the parent's relay-session-id
// rather than forwarded verbatim (§4.7 "child session tracking").
// Target.targetCreated feeds the whitelist policy only;
// Target.targetDestroyed detaches the matching tab, if one is attached.
// Neither is forwarded.
// targetInfoChanged both feeds the whitelist and falls through to the
// generic forward, mirroring relay/registry_events.go's own fallthrough
// for the same method.
func (a *Agent) handleDebuggerEvent(evt *debuggerEvent) {
	switch evt.Method {
	case "Target.attachedToTarget":
		a.handleChildAttached(evt)
		return
	case "Target.detachedFromTarget":
		a.handleChildDetached(evt)
		return
	case "Target.targetCreated":
		a.handleTargetDiscovered(evt)
		return
	case "Target.targetDestroyed":
		a.handleTargetDestroyed(evt)
		return
	case "Target.targetInfoChanged":
		a.handleTargetInfoChanged(evt)
	}
	a.forwardDebuggerEvent(evt)
}

// forwardDebuggerEvent passes an arbitrary debugger event upstream,
// translating the browser's own primary session id to the relay-minted
// one. Child-session ids pass through unchanged: they were never minted,
// only ever observed.
func (a *Agent) forwardDebuggerEvent(evt *debuggerEvent) {
	var params any
	if len(evt.Params) > 0 {
		var v any
		if err := json.Unmarshal(evt.Params, &v); err == nil {
			params = v
		}
	}
	sessionID := evt.SessionID
	if b, ok := a.sessions.ByDebuggerSession(evt.SessionID); ok {
		sessionID = b.SessionID
	}
	a.emitEvent(evt.Method, sessionID, params)
}

func (a *Agent) handleChildAttached(evt *debuggerEvent) {
	var p struct {
		SessionID  string          `json:"sessionId"`
		TargetInfo *targetInfoWire `json:"targetInfo"`
	}
	if err := json.Unmarshal(evt.Params, &p); err != nil || p.SessionID == "" {
		return
	}
	binding, ok := a.sessions.ByDebuggerSession(evt.SessionID)
	if !ok {
		return
	}
	a.sessions.AddChild(p.SessionID, binding.TabID)
	logging.Debugf("extagent: child session %s attached under tab %d", p.SessionID, binding.TabID)
	a.emitEvent("Target.attachedToTarget", binding.SessionID, map[string]any{
		"sessionId":          p.SessionID,
		"targetInfo":         p.TargetInfo.toMap(),
		"waitingForDebugger": false,
	})
}

func (a *Agent) handleChildDetached(evt *debuggerEvent) {
	var p struct {
		SessionID string `json:"sessionId"`
	}
	if err := json.Unmarshal(evt.Params, &p); err != nil || p.SessionID == "" {
		return
	}
	binding, ok := a.sessions.ByChildSession(p.SessionID)
	a.sessions.RemoveChild(p.SessionID)
	if !ok {
		return
	}
	a.emitEvent("Target.detachedFromTarget", binding.SessionID, map[string]any{
		"sessionId": p.SessionID,
	})
}

func (a *Agent) handleTargetInfoChanged(evt *debuggerEvent) {
	var p struct {
		TargetInfo *targetInfoWire `json:"targetInfo"`
	}
	if err := json.Unmarshal(evt.Params, &p); err != nil || p.TargetInfo == nil {
		return
	}
	a.maybeAutoAttach(p.TargetInfo.TargetID, p.TargetInfo.URL, p.TargetInfo.Type)
}

func (a *Agent) handleTargetDiscovered(evt *debuggerEvent) {
	var p struct {
		TargetInfo *targetInfoWire `json:"targetInfo"`
	}
	if err := json.Unmarshal(evt.Params, &p); err != nil || p.TargetInfo == nil {
		return
	}
	a.maybeAutoAttach(p.TargetInfo.TargetID, p.TargetInfo.URL, p.TargetInfo.Type)
}

func (a *Agent) handleTargetDestroyed(evt *debuggerEvent) {
	var p struct {
		TargetID string `json:"targetId"`
	}
	if err := json.Unmarshal(evt.Params, &p); err != nil || p.TargetID == "" {
		return
	}
	if b, ok := a.sessions.ByTargetID(p.TargetID); ok {
		a.detachTab(b.TabID, "target destroyed")
	}
}
