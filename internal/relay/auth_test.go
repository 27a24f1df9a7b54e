package relay

import "testing"

func TestIsLoopbackIP(t *testing.T) {
	cases := []struct {
		host string
		want bool
	}{
		{"127.0.0.1", true},
		{"127.5.5.5", true},
		{"::1", true},
		{"localhost", true},
		{"10.0.0.1", false},
		{"192.168.1.1", false},
		{"", false},
	}
	for _, c := range cases {
		if got := isLoopbackIP(c.host); got != c.want {
			t.Errorf("isLoopbackIP(%q) = %v, want %v", c.host, got, c.want)
		}
	}
}

func TestIsExtensionOrigin(t *testing.T) {
	cases := []struct {
		origin string
		want   bool
	}{
		{"chrome-extension://abcdefg", true},
		{"https://example.com", false},
		{"", false},
	}
	for _, c := range cases {
		if got := isExtensionOrigin(c.origin); got != c.want {
			t.Errorf("isExtensionOrigin(%q) = %v, want %v", c.origin, got, c.want)
		}
	}
}

func TestCheckDiscoveryAuth(t *testing.T) {
	s := &Server{}
	if !s.checkDiscoveryAuth("") {
		t.Fatal("empty discoveryToken must allow every request through")
	}
	if !s.checkDiscoveryAuth("anything") {
		t.Fatal("empty discoveryToken must allow any header value through")
	}

	s.discoveryToken = "secret"
	if s.checkDiscoveryAuth("wrong") {
		t.Fatal("mismatched token was accepted")
	}
	if !s.checkDiscoveryAuth("secret") {
		t.Fatal("matching token was rejected")
	}
}
