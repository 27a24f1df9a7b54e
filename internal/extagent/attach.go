package extagent

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/target"

	"github.com/cdprelay/relay/internal/logging"
)

// attachTarget runs the §4.7 attach procedure against a target already
// known to the browser: attach the debugger, best-effort enable Page,
// confirm the target still exists, mint the relay-facing session id, and
// (unless suppressed) announce the attachment upstream. connecting is
// keyed by target id so two racing callers — an explicit relay request and
// a whitelist match, say — never double-attach the same target.
func (a *Agent) attachTarget(ctx context.Context, targetID string, skipAttachedEvent bool) (*TabBinding, error) {
	a.mu.Lock()
	if a.connecting[targetID] {
		a.mu.Unlock()
		return nil, fmt.Errorf("attach already in flight for target %s", targetID)
	}
	if _, ok := a.sessions.ByTargetID(targetID); ok {
		a.mu.Unlock()
		return nil, fmt.Errorf("target %s already attached", targetID)
	}
	a.connecting[targetID] = true
	a.mu.Unlock()
	defer func() {
		a.mu.Lock()
		delete(a.connecting, targetID)
		a.mu.Unlock()
	}()

	attachParams := target.AttachToTarget(target.ID(targetID)).WithFlatten(true)
	raw, err := a.debugger.call(ctx, "Target.attachToTarget", "", attachParams, a.cfg.ForwardTimeout)
	if err != nil {
		return nil, fmt.Errorf("attach target %s: %w", targetID, err)
	}
	var attached target.AttachToTargetReturns
	if err := json.Unmarshal(raw, &attached); err != nil || attached.SessionID == "" {
		return nil, fmt.Errorf("attach target %s: no sessionId returned", targetID)
	}
	debuggerSessionID := string(attached.SessionID)

	if _, err := a.debugger.call(ctx, "Page.enable", debuggerSessionID, page.Enable(), a.cfg.ForwardTimeout); err != nil {
		logging.Debugf("extagent: Page.enable on %s failed (ignored): %v", targetID, err)
	}

	infoRaw, err := a.debugger.call(ctx, "Target.getTargetInfo", "",
		target.GetTargetInfo().WithTargetID(target.ID(targetID)), a.cfg.ForwardTimeout)
	if err != nil {
		return nil, fmt.Errorf("no-target-id: %w", err)
	}
	var infoResp struct {
		TargetInfo *targetInfoWire `json:"targetInfo"`
	}
	if err := json.Unmarshal(infoRaw, &infoResp); err != nil || infoResp.TargetInfo == nil || infoResp.TargetInfo.TargetID == "" {
		return nil, fmt.Errorf("no-target-id")
	}

	relaySessionID := a.sessions.MintSessionID()
	binding := &TabBinding{
		TabID:             a.sessions.MintTabID(),
		TargetID:          targetID,
		SessionID:         relaySessionID,
		DebuggerSessionID: debuggerSessionID,
		State:             tabConnected,
		AttachedAt:        time.Now(),
	}
	a.sessions.Put(binding)
	logging.Infof("extagent: attached target %s as %s", targetID, relaySessionID)

	if !skipAttachedEvent {
		a.emitAttachedToTarget(binding, infoResp.TargetInfo.toMap())
	}
	return binding, nil
}

// detachTab implements the §4.7 detach procedure: drop the session-index
// entries (so a second, racing call for the same tab finds nothing and
// returns), then announce the detach upstream, then best-effort detach the
// browser debugger (a missing session there is not an error — the browser
// may have torn it down already).
func (a *Agent) detachTab(tabID int, reason string) {
	binding, ok := a.sessions.RemoveTab(tabID)
	if !ok {
		return
	}
	a.emitEvent("Target.detachedFromTarget", "", map[string]any{
		"sessionId": binding.SessionID,
		"targetId":  binding.TargetID,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	detachParams := target.DetachFromTarget().WithSessionID(target.SessionID(binding.DebuggerSessionID))
	if _, err := a.debugger.call(ctx, "Target.detachFromTarget", "", detachParams, 5*time.Second); err != nil {
		logging.Debugf("extagent: detach %s ignored: %v", binding.TargetID, err)
	}
	logging.Infof("extagent: detached tab %d (%s): %s", tabID, binding.TargetID, reason)
}

// targetInfoWire decodes a Target.TargetInfo payload independently of
// cdproto's own target.Info struct, since the fields actually needed here
// (for re-announcing a target upstream) are a small, stable subset of the
// protocol's TargetInfo type.
type targetInfoWire struct {
	TargetID         string `json:"targetId"`
	Type             string `json:"type"`
	Title            string `json:"title"`
	URL              string `json:"url"`
	Attached         bool   `json:"attached"`
	BrowserContextID string `json:"browserContextId,omitempty"`
}

func (info *targetInfoWire) toMap() map[string]any {
	if info == nil {
		return map[string]any{}
	}
	m := map[string]any{
		"targetId": info.TargetID,
		"type":     info.Type,
		"title":    info.Title,
		"url":      info.URL,
		"attached": info.Attached,
	}
	if info.BrowserContextID != "" {
		m["browserContextId"] = info.BrowserContextID
	}
	return m
}
