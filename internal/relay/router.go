package relay

// handleCdpCommand classifies and dispatches one inbound CDP command
// (§4.5). The response is always emitted before any post-response events,
// because CDP clients (Playwright among them) expect their command's
// response to precede any event it triggers.
func (s *Server) handleCdpCommand(peer *cdpPeer, cmd *cdpCommand) {
	var result any
	var err error
	var postEvents []*cdpEvent

	switch cmd.Method {
	case "Browser.getVersion":
		result = map[string]string{
			"protocolVersion": "1.3",
			"product":         "CDPRelay/1.0",
			"revision":        "0",
			"userAgent":       "CDPRelay",
			"jsVersion":       "V8",
		}

	case "Browser.setDownloadBehavior":
		result = map[string]any{}

	case "Target.setAutoAttach":
		result = map[string]any{}
		if cmd.SessionID == "" {
			peer.mu.Lock()
			peer.subscription = subscriptionAutoAttach
			peer.mu.Unlock()
			postEvents = s.replayAttached()
		}

	case "Target.setDiscoverTargets":
		result = map[string]any{}
		if discover, _ := paramBool(cmd.Params, "discover"); discover {
			peer.mu.Lock()
			peer.subscription = subscriptionDiscover
			peer.mu.Unlock()
			postEvents = s.replayCreated()
		}

	case "Target.getTargets":
		result = s.getTargets()

	case "Target.getTargetInfo":
		result, err = s.getTargetInfo(cmd)

	case "Target.attachToTarget":
		var attached *ConnectedTarget
		result, attached, err = s.attachToTarget(cmd)
		if err == nil && attached != nil {
			postEvents = append(postEvents, &cdpEvent{
				Method: "Target.attachedToTarget",
				Params: attachedToTargetParams(attached),
			})
		}

	default:
		result, err = s.forwardToExtension(cmd)
	}

	resp := &cdpResponse{ID: cmd.ID, SessionID: cmd.SessionID}
	if err != nil {
		resp.Error = &cdpError{Message: err.Error()}
	} else {
		resp.Result = result
	}
	s.emitTo(peer.id, resp)

	for _, evt := range postEvents {
		s.emitTo(peer.id, evt)
	}
}

// forwardToExtension implements the "everything else" branch of §4.5: the
// method, session-id, and params are preserved and handed to the extension
// link unchanged.
func (s *Server) forwardToExtension(cmd *cdpCommand) (any, error) {
	extCmd := &extensionCommand{
		ID:     s.nextID(),
		Method: "forwardCDPCommand",
		Params: &extensionCommandParams{
			Method:    cmd.Method,
			Params:    cmd.Params,
			SessionID: cmd.SessionID,
		},
	}
	return s.sendToExtension(extCmd, s.cfg.ForwardTimeout)
}

func (s *Server) getTargets() map[string]any {
	targets := s.registry.list()
	infos := make([]map[string]any, 0, len(targets))
	for _, t := range targets {
		info := map[string]any{
			"targetId": t.TargetID,
			"type":     t.TargetInfo.Type,
			"title":    t.TargetInfo.Title,
			"url":      t.TargetInfo.URL,
			"attached": true,
		}
		if t.TargetInfo.BrowserContextID != "" {
			info["browserContextId"] = t.TargetInfo.BrowserContextID
		}
		infos = append(infos, info)
	}
	return map[string]any{"targetInfos": infos}
}

// getTargetInfo resolves by explicit targetId, then by the command's
// sessionId, then by "first registry entry" — kept per spec.md §9's open
// question rather than turned into an error; see DESIGN.md §Open Question 2.
func (s *Server) getTargetInfo(cmd *cdpCommand) (map[string]any, error) {
	if targetID, _ := paramString(cmd.Params, "targetId"); targetID != "" {
		if t, ok := s.registry.byTargetID(targetID); ok {
			return map[string]any{"targetInfo": t.TargetInfo}, nil
		}
		return nil, newRouterError(ErrUnknownTarget, "no target with id %q", targetID)
	}

	if cmd.SessionID != "" {
		if t, ok := s.registry.bySessionID(cmd.SessionID); ok {
			return map[string]any{"targetInfo": t.TargetInfo}, nil
		}
	}

	if t, ok := s.registry.first(); ok {
		return map[string]any{"targetInfo": t.TargetInfo}, nil
	}
	return map[string]any{"targetInfo": nil}, nil
}

// attachToTarget resolves an already-attached target locally instead of
// forwarding, per §4.5.
func (s *Server) attachToTarget(cmd *cdpCommand) (map[string]any, *ConnectedTarget, error) {
	targetID, _ := paramString(cmd.Params, "targetId")
	if targetID == "" {
		return nil, nil, newRouterError(ErrInvalidParams, "targetId required")
	}
	t, ok := s.registry.byTargetID(targetID)
	if !ok {
		return nil, nil, newRouterError(ErrUnknownTarget, "target not found")
	}
	return map[string]any{"sessionId": t.SessionID}, t, nil
}

// replayAttached builds the Target.attachedToTarget replay for a client
// that just called Target.setAutoAttach(sessionId=null) (§4.5 ordering and
// replay policy).
func (s *Server) replayAttached() []*cdpEvent {
	targets := s.registry.list()
	evts := make([]*cdpEvent, 0, len(targets))
	for _, t := range targets {
		evts = append(evts, &cdpEvent{
			Method: "Target.attachedToTarget",
			Params: attachedToTargetParams(t),
		})
	}
	return evts
}

// replayCreated builds the Target.targetCreated replay for a client that
// just called Target.setDiscoverTargets({discover:true}).
func (s *Server) replayCreated() []*cdpEvent {
	targets := s.registry.list()
	evts := make([]*cdpEvent, 0, len(targets))
	for _, t := range targets {
		evts = append(evts, &cdpEvent{
			Method: "Target.targetCreated",
			Params: map[string]any{"targetInfo": t.TargetInfo},
		})
	}
	return evts
}

func paramString(params any, key string) (string, bool) {
	m, ok := params.(map[string]any)
	if !ok {
		return "", false
	}
	v, ok := m[key].(string)
	return v, ok
}

func paramBool(params any, key string) (bool, bool) {
	m, ok := params.(map[string]any)
	if !ok {
		return false, false
	}
	v, ok := m[key].(bool)
	return v, ok
}
