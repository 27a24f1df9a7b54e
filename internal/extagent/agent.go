// Package extagent is the Go-native rendering of the relay's
// extension-side agent (§4.7): a standalone process that plays the role a
// browser extension's background script would, holding one link upstream
// to the relay's /extension endpoint and one downstream to a real
// Chromium debugger endpoint, translating between the relay's minted
// session ids and the browser's own.
package extagent

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/target"
	"github.com/gorilla/websocket"

	"github.com/cdprelay/relay/internal/logging"
)

// Config configures one agent process.
type Config struct {
	RelayURL      string // e.g. ws://127.0.0.1:18792/extension
	BrowserCDPURL string // e.g. http://127.0.0.1:9222

	Whitelist []string

	ForwardTimeout       time.Duration
	OpenAndAttachTimeout time.Duration
	TabLoadTimeout       time.Duration
	PreflightTimeout     time.Duration
}

func DefaultConfig() Config {
	return Config{
		ForwardTimeout:       30 * time.Second,
		OpenAndAttachTimeout: 60 * time.Second,
		TabLoadTimeout:       30 * time.Second,
		PreflightTimeout:     2 * time.Second,
	}
}

// Agent owns the browser's debugger API on behalf of every attached tab.
// It is single-threaded cooperative with respect to the browser's
// debugger events in the sense that attach/detach never reenters for the
// same target (see connecting); command execution itself is concurrent
// across tabs.
type Agent struct {
	cfg Config

	upstream   *websocket.Conn
	upstreamMu sync.Mutex

	debugger *debuggerLink
	sessions *SessionIndex

	mu          sync.Mutex
	connecting  map[string]bool // target id -> attach in flight
	pendingOpen map[string]bool // target id -> created by openAndAttach, not yet attached

	whitelist []string
}

func New(cfg Config) *Agent {
	return &Agent{
		cfg:         cfg,
		sessions:    NewSessionIndex(),
		connecting:  make(map[string]bool),
		pendingOpen: make(map[string]bool),
		whitelist:   cfg.Whitelist,
	}
}

// Run connects both legs and blocks until the upstream link drops or ctx
// is cancelled. It performs the 2s preflight the spec describes — a
// cheap HEAD against the relay's root before committing to the WebSocket
// upgrade — so a relay that isn't actually up yet fails fast.
func (a *Agent) Run(ctx context.Context) error {
	if err := a.preflight(ctx); err != nil {
		return err
	}

	wsURL, err := discoverDebuggerURL(ctx, a.cfg.BrowserCDPURL, a.cfg.PreflightTimeout)
	if err != nil {
		return fmt.Errorf("extagent: discover browser debugger: %w", err)
	}

	a.debugger, err = dialDebugger(ctx, wsURL, a.handleDebuggerEvent)
	if err != nil {
		return err
	}
	defer a.debugger.Close()

	if _, err := a.debugger.call(ctx, "Target.setDiscoverTargets", "",
		target.SetDiscoverTargets(true), 10*time.Second); err != nil {
		logging.Warnf("extagent: Target.setDiscoverTargets failed: %v", err)
	}

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, a.cfg.RelayURL, nil)
	if err != nil {
		return fmt.Errorf("extagent: dial relay %s: %w", a.cfg.RelayURL, err)
	}
	a.upstream = conn
	defer conn.Close()

	logging.Infof("extagent: connected relay=%s browser=%s", a.cfg.RelayURL, wsURL)
	return a.readUpstreamLoop(ctx)
}

// preflight is the §5/§4.7 "extension-side pre-flight HEAD used to detect
// whether the relay is up", implemented here against the relay's plain
// HTTP root rather than a WebSocket upgrade attempt, since a failed HTTP
// round-trip is cheaper to interpret than a failed upgrade handshake.
func (a *Agent) preflight(ctx context.Context) error {
	httpURL, err := wsURLToHTTP(a.cfg.RelayURL)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, a.cfg.PreflightTimeout)
	defer cancel()
	return headOK(ctx, httpURL)
}

// Close tears down both links, best-effort.
func (a *Agent) Close() error {
	var err error
	if a.debugger != nil {
		if e := a.debugger.Close(); e != nil {
			err = e
		}
	}
	a.upstreamMu.Lock()
	if a.upstream != nil {
		if e := a.upstream.Close(); e != nil {
			err = e
		}
	}
	a.upstreamMu.Unlock()
	return err
}

// AttachedCount reports the number of currently attached tabs, used by
// the CLI's status output and tests.
func (a *Agent) AttachedCount() int {
	return a.sessions.Size()
}
