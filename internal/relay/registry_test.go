package relay

import "testing"

func TestRegistryAttachDetach(t *testing.T) {
	r := newRegistry()

	target := &ConnectedTarget{
		SessionID:  "s1",
		TargetID:   "t1",
		TargetInfo: &TargetInfo{TargetID: "t1", Type: "page", URL: "https://a.example"},
	}

	if stale, had := r.attach(target); had || stale != "" {
		t.Fatalf("first attach reported a stale target: %q", stale)
	}
	if r.size() != 1 {
		t.Fatalf("size = %d, want 1", r.size())
	}

	got, ok := r.bySessionID("s1")
	if !ok || got.TargetID != "t1" {
		t.Fatalf("bySessionID(s1) = %+v, %v", got, ok)
	}

	removed, ok := r.detach("s1")
	if !ok || removed.TargetID != "t1" {
		t.Fatalf("detach(s1) = %+v, %v", removed, ok)
	}
	if r.size() != 0 {
		t.Fatalf("size after detach = %d, want 0", r.size())
	}
}

func TestRegistryAttachSwapReportsStale(t *testing.T) {
	r := newRegistry()

	first := &ConnectedTarget{SessionID: "s1", TargetID: "t1", TargetInfo: &TargetInfo{TargetID: "t1"}}
	r.attach(first)

	second := &ConnectedTarget{SessionID: "s1", TargetID: "t2", TargetInfo: &TargetInfo{TargetID: "t2"}}
	stale, had := r.attach(second)
	if !had || stale != "t1" {
		t.Fatalf("attach swap = stale %q had %v, want t1 true", stale, had)
	}

	got, ok := r.bySessionID("s1")
	if !ok || got.TargetID != "t2" {
		t.Fatalf("bySessionID(s1) after swap = %+v, %v", got, ok)
	}
}

func TestRegistryUpdateInfoAcrossSessions(t *testing.T) {
	r := newRegistry()
	r.attach(&ConnectedTarget{SessionID: "s1", TargetID: "t1", TargetInfo: &TargetInfo{TargetID: "t1", Title: "old", URL: "https://old"}})
	r.attach(&ConnectedTarget{SessionID: "s2", TargetID: "t1", TargetInfo: &TargetInfo{TargetID: "t1", Title: "old", URL: "https://old"}})

	r.updateInfo("t1", "new title", "", true, false)

	for _, sid := range []string{"s1", "s2"} {
		got, ok := r.bySessionID(sid)
		if !ok {
			t.Fatalf("bySessionID(%s) missing", sid)
		}
		if got.TargetInfo.Title != "new title" {
			t.Errorf("session %s title = %q, want %q", sid, got.TargetInfo.Title, "new title")
		}
		if got.TargetInfo.URL != "https://old" {
			t.Errorf("session %s url changed unexpectedly to %q", sid, got.TargetInfo.URL)
		}
	}
}

func TestRegistryByTargetIDAndFirst(t *testing.T) {
	r := newRegistry()
	if _, ok := r.first(); ok {
		t.Fatal("first() on empty registry reported an entry")
	}

	r.attach(&ConnectedTarget{SessionID: "s1", TargetID: "t1", TargetInfo: &TargetInfo{TargetID: "t1"}})

	if _, ok := r.byTargetID("missing"); ok {
		t.Fatal("byTargetID found a target that was never attached")
	}
	got, ok := r.byTargetID("t1")
	if !ok || got.SessionID != "s1" {
		t.Fatalf("byTargetID(t1) = %+v, %v", got, ok)
	}

	first, ok := r.first()
	if !ok || first.TargetID != "t1" {
		t.Fatalf("first() = %+v, %v", first, ok)
	}
}

func TestRegistryClear(t *testing.T) {
	r := newRegistry()
	r.attach(&ConnectedTarget{SessionID: "s1", TargetID: "t1", TargetInfo: &TargetInfo{TargetID: "t1"}})
	r.attach(&ConnectedTarget{SessionID: "s2", TargetID: "t2", TargetInfo: &TargetInfo{TargetID: "t2"}})

	r.clear()

	if r.size() != 0 {
		t.Fatalf("size after clear = %d, want 0", r.size())
	}
	if list := r.list(); len(list) != 0 {
		t.Fatalf("list after clear = %v, want empty", list)
	}
}
