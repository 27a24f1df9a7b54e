package extagent

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cdprelay/relay/internal/logging"
)

// readUpstreamLoop consumes frames from the relay's /extension link. Each
// command is dispatched on its own goroutine: a forwarded command can take
// up to ForwardTimeout (or OpenAndAttachTimeout), and the relay — like any
// CDP peer — expects the link to keep accepting frames for unrelated
// sessions while one call is outstanding.
func (a *Agent) readUpstreamLoop(ctx context.Context) error {
	for {
		_, data, err := a.upstream.ReadMessage()
		if err != nil {
			return fmt.Errorf("extagent: upstream link closed: %w", err)
		}

		var cmd upstreamCommand
		if err := json.Unmarshal(data, &cmd); err != nil {
			continue
		}
		switch cmd.Method {
		case "", "ping":
			continue
		case "forwardCDPCommand":
			go a.handleForwardCommand(ctx, cmd)
		case "openAndAttach":
			go a.handleOpenAndAttach(ctx, cmd)
		default:
			a.replyError(cmd.ID, fmt.Sprintf("unsupported method %q", cmd.Method))
		}
	}
}

func (a *Agent) handleForwardCommand(ctx context.Context, cmd upstreamCommand) {
	var p forwardCDPCommandParams
	if err := json.Unmarshal(cmd.Params, &p); err != nil {
		a.replyError(cmd.ID, "parse-error")
		return
	}
	callCtx, cancel := context.WithTimeout(ctx, a.cfg.ForwardTimeout)
	defer cancel()

	logging.Tracef("extagent: forward id=%d method=%s sessionId=%q", cmd.ID, p.Method, p.SessionID)
	result, err := a.dispatchCommand(callCtx, p.Method, p.SessionID, p.Params)
	if err != nil {
		a.replyError(cmd.ID, err.Error())
		return
	}
	a.replyResult(cmd.ID, result)
}

func (a *Agent) handleOpenAndAttach(ctx context.Context, cmd upstreamCommand) {
	var p openAndAttachParams
	if err := json.Unmarshal(cmd.Params, &p); err != nil {
		a.replyError(cmd.ID, "parse-error")
		return
	}
	callCtx, cancel := context.WithTimeout(ctx, a.cfg.OpenAndAttachTimeout)
	defer cancel()

	result, err := a.openAndAttach(callCtx, p.URL, p.Activate)
	if err != nil {
		a.replyError(cmd.ID, err.Error())
		return
	}
	a.replyResult(cmd.ID, result)
}

func (a *Agent) writeUpstream(v any) error {
	a.upstreamMu.Lock()
	defer a.upstreamMu.Unlock()
	return a.upstream.WriteJSON(v)
}

func (a *Agent) replyResult(id int, result any) {
	if err := a.writeUpstream(upstreamResponse{ID: id, Result: result}); err != nil {
		logging.Debugf("extagent: reply to %d failed: %v", id, err)
	}
}

func (a *Agent) replyError(id int, msg string) {
	if err := a.writeUpstream(upstreamResponse{ID: id, Error: msg}); err != nil {
		logging.Debugf("extagent: error reply to %d failed: %v", id, err)
	}
}

func (a *Agent) emitEvent(method, sessionID string, params any) {
	evt := upstreamEvent{
		Method: "forwardCDPEvent",
		Params: forwardedEventParams{Method: method, Params: params, SessionID: sessionID},
	}
	if err := a.writeUpstream(evt); err != nil {
		logging.Debugf("extagent: emit %s failed: %v", method, err)
	}
}

func (a *Agent) emitAttachedToTarget(b *TabBinding, targetInfo map[string]any) {
	if targetInfo == nil {
		targetInfo = map[string]any{}
	}
	targetInfo["targetId"] = b.TargetID
	a.emitEvent("Target.attachedToTarget", "", map[string]any{
		"sessionId":          b.SessionID,
		"targetInfo":         targetInfo,
		"waitingForDebugger": false,
	})
}
