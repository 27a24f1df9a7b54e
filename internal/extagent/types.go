package extagent

import "time"

// tabState is the per-tab attach state machine of §4.7: unattached ->
// connecting -> connected, with connecting existing purely to suppress a
// second attach on the same target while the first is in flight.
type tabState int

const (
	tabUnattached tabState = iota
	tabConnecting
	tabConnected
)

// TabBinding owns one browser-debugger attachment.
//
// TabID is a synthetic, agent-local counter standing in for
// chrome.tabs.Tab.id. This agent dials the browser's debugger endpoint
// directly and has no browser-extension tabs API to source a real tab id
// from, so the target id is the natural addressable unit (the
// one-attach-in-flight guard is keyed by it); TabID gives each binding a
// stable integer key for the session index, child sessions, detachTab and
// the tabId that openAndAttach reports.
type TabBinding struct {
	TabID             int
	TargetID          string
	SessionID         string // minted cb-tab-<N> id, exposed to the relay
	DebuggerSessionID string // real session id assigned by the browser; never leaves this process
	State             tabState
	AttachedAt        time.Time
}
