package extagent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/cdproto/target"

	"github.com/cdprelay/relay/internal/logging"
)

const tabLoadPollInterval = 100 * time.Millisecond

// openAndAttach implements the §4.7 openAndAttach(url, activate) flow:
// validate, create the target, mark it pending-open so a racing whitelist
// match doesn't double-attach it, poll for load completion, then run the
// normal attach procedure.
func (a *Agent) openAndAttach(ctx context.Context, rawURL string, activate bool) (map[string]any, error) {
	if !strings.HasPrefix(rawURL, "http://") && !strings.HasPrefix(rawURL, "https://") {
		return nil, fmt.Errorf("invalid-params: url must be http or https")
	}

	raw, err := a.debugger.call(ctx, "Target.createTarget", "", target.CreateTarget(rawURL), a.cfg.ForwardTimeout)
	if err != nil {
		return nil, fmt.Errorf("open-failed: %w", err)
	}
	var created target.CreateTargetReturns
	if err := json.Unmarshal(raw, &created); err != nil || created.TargetID == "" {
		return nil, fmt.Errorf("open-failed: no targetId returned")
	}
	targetID := string(created.TargetID)

	a.mu.Lock()
	a.pendingOpen[targetID] = true
	a.mu.Unlock()
	defer func() {
		a.mu.Lock()
		delete(a.pendingOpen, targetID)
		a.mu.Unlock()
	}()

	if activate {
		if _, err := a.debugger.call(ctx, "Target.activateTarget", "", target.ActivateTarget(created.TargetID), a.cfg.ForwardTimeout); err != nil {
			logging.Debugf("extagent: activate on open failed (ignored): %v", err)
		}
	}

	if err := a.waitForTabLoad(ctx, targetID); err != nil {
		return nil, err
	}

	binding, err := a.attachTarget(ctx, targetID, false)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"tabId":     binding.TabID,
		"sessionId": binding.SessionID,
		"targetId":  binding.TargetID,
		"url":       rawURL,
	}, nil
}

// waitForTabLoad polls document.readyState on a short-lived debugger
// session attached to the created target, standing in for the
// chrome.tabs status field ("loading"/"complete") this agent has no
// access to without a browser-extension host — see DESIGN.md.
func (a *Agent) waitForTabLoad(ctx context.Context, targetID string) error {
	if a.cfg.TabLoadTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.cfg.TabLoadTimeout)
		defer cancel()
	}
	raw, err := a.debugger.call(ctx, "Target.attachToTarget", "",
		target.AttachToTarget(target.ID(targetID)).WithFlatten(true), a.cfg.ForwardTimeout)
	if err != nil {
		return fmt.Errorf("waitForTabLoad: attach failed: %w", err)
	}
	var attached target.AttachToTargetReturns
	if err := json.Unmarshal(raw, &attached); err != nil || attached.SessionID == "" {
		return fmt.Errorf("waitForTabLoad: no sessionId")
	}
	defer func() {
		dctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		detachParams := target.DetachFromTarget().WithSessionID(attached.SessionID)
		_, _ = a.debugger.call(dctx, "Target.detachFromTarget", "", detachParams, 2*time.Second)
	}()

	ticker := time.NewTicker(tabLoadPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("waitForTabLoad: timed out waiting for %s to finish loading", targetID)
		case <-ticker.C:
			raw, err := a.debugger.call(ctx, "Runtime.evaluate", string(attached.SessionID),
				map[string]any{"expression": "document.readyState"}, a.cfg.ForwardTimeout)
			if err != nil {
				continue
			}
			var res struct {
				Result struct {
					Value string `json:"value"`
				} `json:"result"`
			}
			if err := json.Unmarshal(raw, &res); err == nil && res.Result.Value == "complete" {
				return nil
			}
		}
	}
}
