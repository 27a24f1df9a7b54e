package relay

import "github.com/cdprelay/relay/internal/logging"

// handleForwardedEvent processes a forwardCDPEvent frame from the
// extension: Target.attachedToTarget / Target.detachedFromTarget /
// Target.targetInfoChanged update the registry (§4.4); every event,
// including the ones the registry itself consumes, is also broadcast to
// CDP clients.
func (s *Server) handleForwardedEvent(p *extensionEventParams) {
	switch p.Method {
	case "Target.attachedToTarget":
		s.handleTargetAttached(p.Params)
		return
	case "Target.detachedFromTarget":
		s.handleTargetDetached(p.Params)
		return
	case "Target.targetInfoChanged":
		s.handleTargetInfoChanged(p.Params)
		// fall through: still broadcast the raw event below
	}

	s.broadcast(&cdpEvent{Method: p.Method, Params: p.Params, SessionID: p.SessionID})
}

func (s *Server) handleTargetAttached(params any) {
	m, ok := params.(map[string]any)
	if !ok {
		return
	}
	sessionID, _ := m["sessionId"].(string)
	infoRaw, _ := m["targetInfo"].(map[string]any)
	if sessionID == "" || infoRaw == nil {
		return
	}

	targetType, _ := infoRaw["type"].(string)
	if targetType != "" && targetType != "page" {
		return
	}
	if targetType == "" {
		targetType = "page"
	}

	targetID, _ := infoRaw["targetId"].(string)
	title, _ := infoRaw["title"].(string)
	url, _ := infoRaw["url"].(string)
	browserContextID, _ := infoRaw["browserContextId"].(string)

	target := &ConnectedTarget{
		SessionID: sessionID,
		TargetID:  targetID,
		TargetInfo: &TargetInfo{
			TargetID:         targetID,
			Type:             targetType,
			Title:            title,
			URL:              url,
			Attached:         true,
			BrowserContextID: browserContextID,
		},
	}

	staleTargetID, hadPrior := s.registry.attach(target)
	if hadPrior {
		// Navigation across origins swapped the underlying target while
		// keeping the debugger session: emit a synthetic detach for the
		// stale target-id before the new attach, per §4.4/scenario 3.
		logging.Debugf("relay: session %s target swap %s -> %s", sessionID, staleTargetID, targetID)
		s.broadcast(&cdpEvent{
			Method: "Target.detachedFromTarget",
			Params: map[string]any{
				"sessionId": sessionID,
				"targetId":  staleTargetID,
			},
		})
	}

	s.broadcast(&cdpEvent{
		Method: "Target.attachedToTarget",
		Params: attachedToTargetParams(target),
	})
}

func (s *Server) handleTargetDetached(params any) {
	m, ok := params.(map[string]any)
	if !ok {
		return
	}
	sessionID, _ := m["sessionId"].(string)
	if sessionID == "" {
		return
	}
	s.registry.detach(sessionID)
	s.broadcast(&cdpEvent{Method: "Target.detachedFromTarget", Params: params})
}

func (s *Server) handleTargetInfoChanged(params any) {
	m, ok := params.(map[string]any)
	if !ok {
		return
	}
	infoRaw, _ := m["targetInfo"].(map[string]any)
	if infoRaw == nil {
		return
	}
	targetID, _ := infoRaw["targetId"].(string)
	if targetID == "" {
		return
	}
	title, hasTitle := infoRaw["title"].(string)
	url, hasURL := infoRaw["url"].(string)
	s.registry.updateInfo(targetID, title, url, hasTitle, hasURL)
}

func attachedToTargetParams(t *ConnectedTarget) map[string]any {
	return map[string]any{
		"sessionId":          t.SessionID,
		"targetInfo":         t.TargetInfo,
		"waitingForDebugger": false,
	}
}
