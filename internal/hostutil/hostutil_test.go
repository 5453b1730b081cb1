package hostutil

import "testing"

func TestPad(t *testing.T) {
	tests := []struct {
		name string
		host string
		want string
	}{
		{"bare hostname", "example.com", "example.com:7000"},
		{"explicit port", "example.com:8080", "example.com:8080"},
		{"default port kept", "example.com:7000", "example.com:7000"},
		{"ipv6 no port", "[::1]", "[::1]:7000"},
		{"ipv6 with port", "[::1]:4321", "[::1]:4321"},
		{"malformed ipv6", "[::1", "[::1:7000"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := Pad(tc.host); got != tc.want {
				t.Errorf("Pad(%q) = %q, want %q", tc.host, got, tc.want)
			}
		})
	}
}

func TestPadIdempotent(t *testing.T) {
	for _, host := range []string{"example.com", "example.com:7000", "[::1]", "a:1"} {
		if Pad(Pad(host)) != Pad(host) {
			t.Errorf("Pad not idempotent for %q", host)
		}
	}
}

func TestStripDefaultPort(t *testing.T) {
	tests := []struct {
		host string
		want string
	}{
		{"example.com", "example.com"},
		{"example.com:7000", "example.com"},
		{"example.com:8080", "example.com:8080"},
		{"[::1]", "[::1]"},
		{"[::1]:7000", "[::1]"},
		{"[::1]:4321", "[::1]:4321"},
	}
	for _, tc := range tests {
		if got := StripDefaultPort(tc.host); got != tc.want {
			t.Errorf("StripDefaultPort(%q) = %q, want %q", tc.host, got, tc.want)
		}
	}
}

func TestFromIssuer(t *testing.T) {
	tests := []struct {
		issuer string
		want   string
	}{
		{"http://example.com:7000", "example.com"},
		{"https://example.com/", "example.com"},
		{"http://example.com:8080", "example.com:8080"},
	}
	for _, tc := range tests {
		if got := FromIssuer(tc.issuer); got != tc.want {
			t.Errorf("FromIssuer(%q) = %q, want %q", tc.issuer, got, tc.want)
		}
	}
}

func TestFromIssuerRoundTrip(t *testing.T) {
	// host_from_issuer(api_url(h)) == strip_default_port(pad_host(h))
	for _, host := range []string{"example.com", "example.com:8080", "[::1]", "h1:7000"} {
		if got, want := FromIssuer(APIURL(host)), StripDefaultPort(Pad(host)); got != want {
			t.Errorf("FromIssuer(APIURL(%q)) = %q, want %q", host, got, want)
		}
	}
}

func TestURLs(t *testing.T) {
	if got := APIURL("example.com"); got != "http://example.com:7000" {
		t.Errorf("APIURL = %q", got)
	}
	if got := ClientWsURL("example.com:8080"); got != "ws://example.com:8080/ws/client" {
		t.Errorf("ClientWsURL = %q", got)
	}
	if got := FederationWsURL("[::1]"); got != "ws://[::1]:7000/ws/federation" {
		t.Errorf("FederationWsURL = %q", got)
	}
}
