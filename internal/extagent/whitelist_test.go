package extagent

import "testing"

func TestMatchesWhitelist(t *testing.T) {
	a := &Agent{whitelist: []string{"example.com", "internal.corp"}}

	cases := []struct {
		host string
		want bool
	}{
		{"example.com", true},
		{"www.example.com", true},
		{"sub.internal.corp", true},
		{"notexample.com", false},
		{"example.com.evil.com", false},
		{"", false},
	}
	for _, c := range cases {
		if got := a.matchesWhitelist(c.host); got != c.want {
			t.Errorf("matchesWhitelist(%q) = %v, want %v", c.host, got, c.want)
		}
	}
}

func TestMatchesWhitelistEmptyConfigMatchesNothing(t *testing.T) {
	a := &Agent{}
	if a.matchesWhitelist("example.com") {
		t.Fatal("empty whitelist must match nothing")
	}
}
