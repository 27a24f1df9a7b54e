package extagent

import "testing"

func TestSessionIndexMintingIsMonotonic(t *testing.T) {
	idx := NewSessionIndex()
	if got := idx.MintTabID(); got != 1 {
		t.Fatalf("first MintTabID = %d, want 1", got)
	}
	if got := idx.MintTabID(); got != 2 {
		t.Fatalf("second MintTabID = %d, want 2", got)
	}
	if got := idx.MintSessionID(); got != "cb-tab-1" {
		t.Fatalf("first MintSessionID = %q, want cb-tab-1", got)
	}
	if got := idx.MintSessionID(); got != "cb-tab-2" {
		t.Fatalf("second MintSessionID = %q, want cb-tab-2", got)
	}
}

func TestSessionIndexPutAndLookups(t *testing.T) {
	idx := NewSessionIndex()
	b := &TabBinding{TabID: 1, TargetID: "target-1", SessionID: "cb-tab-1", DebuggerSessionID: "real-session-1"}
	idx.Put(b)

	if got, ok := idx.ByTabID(1); !ok || got != b {
		t.Fatalf("ByTabID(1) = %v, %v", got, ok)
	}
	if got, ok := idx.BySessionID("cb-tab-1"); !ok || got != b {
		t.Fatalf("BySessionID = %v, %v", got, ok)
	}
	if got, ok := idx.ByTargetID("target-1"); !ok || got != b {
		t.Fatalf("ByTargetID = %v, %v", got, ok)
	}
	if got, ok := idx.ByDebuggerSession("real-session-1"); !ok || got != b {
		t.Fatalf("ByDebuggerSession = %v, %v", got, ok)
	}
	if idx.Size() != 1 {
		t.Fatalf("Size = %d, want 1", idx.Size())
	}
}

func TestSessionIndexRemoveTabCascadesChildren(t *testing.T) {
	idx := NewSessionIndex()
	b := &TabBinding{TabID: 1, TargetID: "target-1", SessionID: "cb-tab-1", DebuggerSessionID: "real-1"}
	idx.Put(b)
	idx.AddChild("child-session-1", 1)
	idx.AddChild("child-session-2", 1)

	if _, ok := idx.ByChildSession("child-session-1"); !ok {
		t.Fatal("child session not registered")
	}

	removed, ok := idx.RemoveTab(1)
	if !ok || removed != b {
		t.Fatalf("RemoveTab = %v, %v", removed, ok)
	}

	for _, child := range []string{"child-session-1", "child-session-2"} {
		if _, ok := idx.ByChildSession(child); ok {
			t.Errorf("child session %s survived RemoveTab", child)
		}
	}
	if _, ok := idx.ByTabID(1); ok {
		t.Fatal("primary binding survived RemoveTab")
	}
	if idx.Size() != 0 {
		t.Fatalf("Size after RemoveTab = %d, want 0", idx.Size())
	}
}

func TestSessionIndexFirstAndClear(t *testing.T) {
	idx := NewSessionIndex()
	if _, ok := idx.First(); ok {
		t.Fatal("First() on empty index reported an entry")
	}

	idx.Put(&TabBinding{TabID: 1, TargetID: "t1", SessionID: "cb-tab-1", DebuggerSessionID: "r1"})
	if _, ok := idx.First(); !ok {
		t.Fatal("First() found nothing after Put")
	}

	idx.Clear()
	if idx.Size() != 0 {
		t.Fatalf("Size after Clear = %d, want 0", idx.Size())
	}
	if _, ok := idx.First(); ok {
		t.Fatal("First() after Clear still reports an entry")
	}
}
