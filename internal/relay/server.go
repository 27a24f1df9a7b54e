// Package relay implements the loopback CDP relay described by spec.md:
// a dual-endpoint server with one peer socket for a browser extension and
// many peer sockets for CDP clients, a target registry, and a router that
// decides what to answer locally versus forward upstream.
package relay

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/cdprelay/relay/internal/config"
	"github.com/cdprelay/relay/internal/events"
	"github.com/cdprelay/relay/internal/lifecycle"
	"github.com/cdprelay/relay/internal/logging"
)

// subscriptionMode is the Target subscription state a CDP client has
// engaged, per §3 CdpClientSubscription.
type subscriptionMode int

const (
	subscriptionNone subscriptionMode = iota
	subscriptionAutoAttach
	subscriptionDiscover
)

// pendingCall correlates a numeric extension request id to a one-shot
// completion, per §3 PendingExtensionCall.
type pendingCall struct {
	resolve chan any
	reject  chan error
	timer   *time.Timer
}

// cdpPeer tracks one connected CDP client's WebSocket and subscription
// state. Frames reach ws through the events Subject's synchronous
// delivery; mu is held around each write and around closing the socket,
// and also guards subscription.
type cdpPeer struct {
	id           string
	ws           *websocket.Conn
	sub          events.Subscription
	mu           sync.Mutex
	subscription subscriptionMode
}

// Server is the loopback CDP relay (§2, §4).
type Server struct {
	cfg config.Config

	mu      sync.RWMutex
	writeMu sync.Mutex // serializes writes to extensionWS (§5 shared-resource policy)

	httpServer  *http.Server
	listener    net.Listener
	upgrader    websocket.Upgrader
	extensionWS *websocket.Conn

	lastDisconnectReason string

	cdpClients map[string]*cdpPeer
	cdpEvents  *events.Subject

	registry *registry

	pending   map[int]*pendingCall
	nextReqID int

	// discoveryToken gates the /json* endpoints when cfg.RequireDiscoveryToken
	// is set; empty (the default) means no extra check beyond loopback/origin
	// gating, per spec.md's Non-goal of not authenticating individual CDP
	// clients.
	discoveryToken string

	stopped bool
}

// New creates a Server bound to the given configuration. It does not start
// listening; call ListenAndServe for that.
func New(cfg config.Config) *Server {
	logging.SetTrace(cfg.Trace)
	s := &Server{
		cfg:        cfg,
		cdpClients: make(map[string]*cdpPeer),
		cdpEvents:  events.NewSubject(events.WithSyncDelivery(), events.WithBufferSize(256)),
		registry:   newRegistry(),
		pending:    make(map[int]*pendingCall),
		nextReqID:  1,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     checkOrigin,
		},
	}
	if cfg.RequireDiscoveryToken {
		s.discoveryToken = generateToken()
	}
	return s
}

// DiscoveryToken returns the bearer token discovery endpoints require when
// config.RequireDiscoveryToken is set, or "" when that defense-in-depth
// posture is disabled (the default).
func (s *Server) DiscoveryToken() string {
	return s.discoveryToken
}

// ListenAndServe binds the loopback listener and serves until ctx is
// cancelled or an unrecoverable error occurs. It returns nil on a clean,
// context-driven shutdown.
func (s *Server) ListenAndServe(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("relay: listen on %s: %w", addr, err)
	}
	s.listener = listener
	s.httpServer = &http.Server{Handler: s.Handler()}

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	lifecycle.Emit(lifecycle.EventServerStarted, addr)
	logging.Infof("relay: listening on %s", addr)

	select {
	case <-ctx.Done():
		return s.Shutdown()
	case err := <-errCh:
		return err
	}
}

// Shutdown performs a clean shutdown: the extension link is closed with a
// normal-closure code, every CDP peer is closed with a going-away code, and
// the HTTP listener is stopped (§6 CLI/exit codes).
func (s *Server) Shutdown() error {
	lifecycle.Emit(lifecycle.EventShutdownStarted, nil)

	s.mu.Lock()
	s.stopped = true
	if s.extensionWS != nil {
		s.writeMu.Lock()
		s.extensionWS.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "relay shutting down"),
			time.Now().Add(time.Second))
		s.writeMu.Unlock()
		s.extensionWS.Close()
		s.extensionWS = nil
	}
	for id, peer := range s.cdpClients {
		s.closePeerLocked(peer, websocket.CloseGoingAway, "relay shutting down")
		delete(s.cdpClients, id)
	}
	s.failAllPendingLocked(fmt.Errorf("relay stopped"))
	s.registry.clear()
	s.mu.Unlock()

	events.Complete(s.cdpEvents)

	var err error
	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err = s.httpServer.Shutdown(ctx)
	}
	lifecycle.Emit(lifecycle.EventShutdownComplete, nil)
	return err
}

// ExtensionConnected reports whether an extension link currently exists.
func (s *Server) ExtensionConnected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.extensionWS != nil
}

func (s *Server) closePeerLocked(peer *cdpPeer, code int, reason string) {
	peer.sub.Unsubscribe()
	peer.mu.Lock()
	peer.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason), time.Now().Add(time.Second))
	peer.ws.Close()
	peer.mu.Unlock()
}

func (s *Server) failAllPendingLocked(err error) {
	for id, p := range s.pending {
		p.timer.Stop()
		p.reject <- err
		delete(s.pending, id)
	}
}

func (s *Server) nextID() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextReqID
	s.nextReqID++
	return id
}

func checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	return isExtensionOrigin(origin)
}
