package extagent

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/cdproto/target"

	"github.com/cdprelay/relay/internal/logging"
)

// runtimeDisableEnableGap is the open-question-1 floor: a bare sleep
// between Runtime.disable and Runtime.enable is unreliable as a fixed
// delay across browser versions, so it is treated as a minimum bound
// rather than an exact wait (see DESIGN.md).
const runtimeDisableEnableGap = 50 * time.Millisecond

// dispatchCommand implements §4.7's "command forwarding" contract: three
// methods get special handling against the browser's tab/target API
// rather than a plain debugger passthrough, everything else is forwarded
// to the resolved tab's debugger session.
func (a *Agent) dispatchCommand(ctx context.Context, method, sessionID string, params json.RawMessage) (any, error) {
	switch method {
	case "Target.createTarget":
		return a.createTarget(ctx, params)
	case "Target.closeTarget":
		return a.closeTargetCmd(ctx, params)
	case "Target.activateTarget":
		return a.activateTargetCmd(ctx, params)
	case "Runtime.enable":
		return a.enableRuntime(ctx, sessionID, params)
	default:
		return a.forwardToDebugger(ctx, method, sessionID, params)
	}
}

// resolveDebuggerSession implements the tab-selection order of §4.7:
// relay-session-id, then child-session-id, then explicit targetId, then
// the first attached tab.
func (a *Agent) resolveDebuggerSession(sessionID string, params json.RawMessage) (string, error) {
	if sessionID != "" {
		if b, ok := a.sessions.BySessionID(sessionID); ok {
			return b.DebuggerSessionID, nil
		}
		if _, ok := a.sessions.ByChildSession(sessionID); ok {
			return sessionID, nil
		}
	}
	if targetID, ok := extractParamString(params, "targetId"); ok && targetID != "" {
		if b, ok := a.sessions.ByTargetID(targetID); ok {
			return b.DebuggerSessionID, nil
		}
		return "", fmt.Errorf("no-attached-tab: unknown target %s", targetID)
	}
	if b, ok := a.sessions.First(); ok {
		return b.DebuggerSessionID, nil
	}
	return "", fmt.Errorf("no-attached-tab")
}

func (a *Agent) forwardToDebugger(ctx context.Context, method, sessionID string, params json.RawMessage) (any, error) {
	debuggerSessionID, err := a.resolveDebuggerSession(sessionID, params)
	if err != nil {
		return nil, err
	}
	raw, err := a.debugger.call(ctx, method, debuggerSessionID, rawOrNil(params), a.cfg.ForwardTimeout)
	if err != nil {
		return nil, err
	}
	return decodeResult(raw), nil
}

// enableRuntime special-cases Runtime.enable: disable first, sleep the
// bounded gap, then enable with the caller's original params. This
// papers over a quirk where a raw enable on top of an already-enabled
// Runtime domain misses install-time console/exception bindings.
func (a *Agent) enableRuntime(ctx context.Context, sessionID string, params json.RawMessage) (any, error) {
	debuggerSessionID, err := a.resolveDebuggerSession(sessionID, params)
	if err != nil {
		return nil, err
	}
	if _, err := a.debugger.call(ctx, "Runtime.disable", debuggerSessionID, runtime.Disable(), a.cfg.ForwardTimeout); err != nil {
		logging.Debugf("extagent: Runtime.disable before re-enable failed: %v", err)
	}
	time.Sleep(runtimeDisableEnableGap)
	raw, err := a.debugger.call(ctx, "Runtime.enable", debuggerSessionID, rawOrNil(params), a.cfg.ForwardTimeout)
	if err != nil {
		return nil, err
	}
	return decodeResult(raw), nil
}

func (a *Agent) createTarget(ctx context.Context, params json.RawMessage) (any, error) {
	var p struct {
		URL string `json:"url"`
	}
	_ = json.Unmarshal(params, &p)
	if p.URL == "" {
		p.URL = "about:blank"
	}

	raw, err := a.debugger.call(ctx, "Target.createTarget", "", target.CreateTarget(p.URL), a.cfg.ForwardTimeout)
	if err != nil {
		return nil, err
	}
	var created target.CreateTargetReturns
	if err := json.Unmarshal(raw, &created); err != nil || created.TargetID == "" {
		return nil, fmt.Errorf("extagent: Target.createTarget returned no targetId")
	}

	time.Sleep(100 * time.Millisecond)
	if _, err := a.attachTarget(ctx, string(created.TargetID), false); err != nil {
		return nil, err
	}
	return map[string]string{"targetId": string(created.TargetID)}, nil
}

func (a *Agent) closeTargetCmd(ctx context.Context, params json.RawMessage) (any, error) {
	targetID, ok := extractParamString(params, "targetId")
	if !ok || targetID == "" {
		return nil, fmt.Errorf("invalid-params: targetId required")
	}
	raw, err := a.debugger.call(ctx, "Target.closeTarget", "", target.CloseTarget(target.ID(targetID)), a.cfg.ForwardTimeout)
	if err != nil {
		return nil, err
	}
	if b, ok := a.sessions.ByTargetID(targetID); ok {
		a.detachTab(b.TabID, "target closed")
	}
	var closed target.CloseTargetReturns
	_ = json.Unmarshal(raw, &closed)
	return map[string]bool{"success": true}, nil
}

func (a *Agent) activateTargetCmd(ctx context.Context, params json.RawMessage) (any, error) {
	targetID, ok := extractParamString(params, "targetId")
	if !ok || targetID == "" {
		return nil, fmt.Errorf("invalid-params: targetId required")
	}
	if _, err := a.debugger.call(ctx, "Target.activateTarget", "", target.ActivateTarget(target.ID(targetID)), a.cfg.ForwardTimeout); err != nil {
		return nil, err
	}
	return map[string]any{}, nil
}

func extractParamString(params json.RawMessage, key string) (string, bool) {
	if len(params) == 0 {
		return "", false
	}
	var m map[string]any
	if err := json.Unmarshal(params, &m); err != nil {
		return "", false
	}
	v, ok := m[key].(string)
	return v, ok
}

func decodeResult(raw json.RawMessage) any {
	if len(raw) == 0 {
		return map[string]any{}
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return map[string]any{}
	}
	return v
}

func rawOrNil(params json.RawMessage) any {
	if len(params) == 0 {
		return nil
	}
	return params
}
