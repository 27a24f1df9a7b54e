package extagent

import "encoding/json"

// upstreamCommand/upstreamResponse/upstreamEvent are the agent's view of
// relay/frames.go's extensionCommand/extensionResponse/extensionEvent:
// the two sides of the /extension link agree on wire shape without
// sharing Go types across package boundaries.
type upstreamCommand struct {
	ID     int             `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

type forwardCDPCommandParams struct {
	Method    string          `json:"method"`
	Params    json.RawMessage `json:"params,omitempty"`
	SessionID string          `json:"sessionId,omitempty"`
}

type openAndAttachParams struct {
	URL      string `json:"url"`
	Activate bool   `json:"activate"`
}

type upstreamResponse struct {
	ID     int    `json:"id"`
	Result any    `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

type upstreamEvent struct {
	Method string               `json:"method"`
	Params forwardedEventParams `json:"params"`
}

type forwardedEventParams struct {
	Method    string `json:"method"`
	Params    any    `json:"params"`
	SessionID string `json:"sessionId,omitempty"`
}
