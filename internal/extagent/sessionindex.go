package extagent

import (
	"fmt"
	"sync"
)

// SessionIndex holds the two mappings §3 describes for the extension-side
// agent: a primary mapping from relay-facing session id to tab binding,
// and a child-session mapping (iframes, workers, surfaced via nested
// Target.attachedToTarget events) to the owning tab. A third mapping, by
// the browser's own debugger session id, lets event and command handling
// translate between the relay's minted id and the real one without
// leaking the latter upstream.
type SessionIndex struct {
	mu sync.RWMutex

	byTabID    map[int]*TabBinding
	bySession  map[string]*TabBinding
	byTarget   map[string]*TabBinding
	byDebugger map[string]*TabBinding
	childTab   map[string]int

	nextTabID     int
	nextSessionID int
}

func NewSessionIndex() *SessionIndex {
	return &SessionIndex{
		byTabID:    make(map[int]*TabBinding),
		bySession:  make(map[string]*TabBinding),
		byTarget:   make(map[string]*TabBinding),
		byDebugger: make(map[string]*TabBinding),
		childTab:   make(map[string]int),
	}
}

func (s *SessionIndex) MintTabID() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextTabID++
	return s.nextTabID
}

// MintSessionID mints a cb-tab-<N> id, N strictly increasing for the
// agent's lifetime, per §4.7 step 4 of the attach procedure.
func (s *SessionIndex) MintSessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextSessionID++
	return fmt.Sprintf("cb-tab-%d", s.nextSessionID)
}

func (s *SessionIndex) Put(b *TabBinding) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byTabID[b.TabID] = b
	s.bySession[b.SessionID] = b
	s.byTarget[b.TargetID] = b
	s.byDebugger[b.DebuggerSessionID] = b
}

// RemoveTab drops the primary entry and every child-session entry parented
// to it, per §4.7's detach procedure step 2.
func (s *SessionIndex) RemoveTab(tabID int) (*TabBinding, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.byTabID[tabID]
	if !ok {
		return nil, false
	}
	delete(s.byTabID, tabID)
	delete(s.bySession, b.SessionID)
	delete(s.byTarget, b.TargetID)
	delete(s.byDebugger, b.DebuggerSessionID)
	for child, tab := range s.childTab {
		if tab == tabID {
			delete(s.childTab, child)
		}
	}
	return b, true
}

func (s *SessionIndex) ByTabID(tabID int) (*TabBinding, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.byTabID[tabID]
	return b, ok
}

func (s *SessionIndex) BySessionID(id string) (*TabBinding, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.bySession[id]
	return b, ok
}

func (s *SessionIndex) ByTargetID(id string) (*TabBinding, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.byTarget[id]
	return b, ok
}

func (s *SessionIndex) ByDebuggerSession(id string) (*TabBinding, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.byDebugger[id]
	return b, ok
}

func (s *SessionIndex) ByChildSession(id string) (*TabBinding, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tabID, ok := s.childTab[id]
	if !ok {
		return nil, false
	}
	b, ok := s.byTabID[tabID]
	return b, ok
}

func (s *SessionIndex) AddChild(childSessionID string, tabID int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.childTab[childSessionID] = tabID
}

func (s *SessionIndex) RemoveChild(childSessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.childTab, childSessionID)
}

// First returns an arbitrary attached binding, used for the "no session-id,
// no explicit target" command-routing fallback.
func (s *SessionIndex) First() (*TabBinding, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, b := range s.byTabID {
		return b, true
	}
	return nil, false
}

func (s *SessionIndex) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byTabID)
}

func (s *SessionIndex) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byTabID = make(map[int]*TabBinding)
	s.bySession = make(map[string]*TabBinding)
	s.byTarget = make(map[string]*TabBinding)
	s.byDebugger = make(map[string]*TabBinding)
	s.childTab = make(map[string]int)
}
