package relay

// Wire types for the CDP-client-facing side of the relay (§4.3, §6).

// cdpCommand is an inbound frame from a CDP client.
type cdpCommand struct {
	ID        int    `json:"id"`
	Method    string `json:"method"`
	Params    any    `json:"params,omitempty"`
	SessionID string `json:"sessionId,omitempty"`
}

// cdpResponse is the reply to exactly one cdpCommand.
type cdpResponse struct {
	ID        int       `json:"id"`
	Result    any       `json:"result,omitempty"`
	Error     *cdpError `json:"error,omitempty"`
	SessionID string    `json:"sessionId,omitempty"`
}

type cdpError struct {
	Message string `json:"message"`
}

// cdpEvent is a broadcast or addressed event delivered to CDP clients.
type cdpEvent struct {
	Method    string `json:"method"`
	Params    any    `json:"params,omitempty"`
	SessionID string `json:"sessionId,omitempty"`
}

// Wire types for the extension link (§4.2).

// extensionCommand is a relay -> extension request frame.
type extensionCommand struct {
	ID     int                     `json:"id"`
	Method string                  `json:"method"`
	Params *extensionCommandParams `json:"params,omitempty"`
}

type extensionCommandParams struct {
	Method    string `json:"method,omitempty"`
	Params    any    `json:"params,omitempty"`
	SessionID string `json:"sessionId,omitempty"`
	URL       string `json:"url,omitempty"`
	Activate  bool   `json:"activate,omitempty"`
}

// extensionResponse is the extension's reply to an extensionCommand.
// A non-empty Error takes precedence over Result per §4.2.
type extensionResponse struct {
	ID     int    `json:"id"`
	Result any    `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

// extensionEvent is an unsolicited extension -> relay frame: forwardCDPEvent
// or pong.
type extensionEvent struct {
	Method string                `json:"method"`
	Params *extensionEventParams `json:"params,omitempty"`
}

type extensionEventParams struct {
	Method    string `json:"method"`
	Params    any    `json:"params,omitempty"`
	SessionID string `json:"sessionId,omitempty"`
}

// TargetInfo mirrors a CDP TargetInfo for page targets tracked by the
// registry.
type TargetInfo struct {
	TargetID         string `json:"targetId"`
	Type             string `json:"type"`
	Title            string `json:"title"`
	URL              string `json:"url"`
	Attached         bool   `json:"attached"`
	BrowserContextID string `json:"browserContextId,omitempty"`
}

// ConnectedTarget is a page target currently attached via the extension's
// debugger (§3 ConnectedTarget).
type ConnectedTarget struct {
	SessionID  string      `json:"sessionId"`
	TargetID   string      `json:"targetId"`
	TargetInfo *TargetInfo `json:"targetInfo"`
}
