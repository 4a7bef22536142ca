package middleware

import (
	"net/http"
	"net/http/httptest"
	"net/netip"
	"testing"
)

func TestClientIP(t *testing.T) {
	proxies := TrustedProxies{
		netip.MustParsePrefix("10.0.0.0/8"),
		netip.MustParsePrefix("127.0.0.1/32"),
	}

	tests := []struct {
		name    string
		trusted TrustedProxies
		remote  string
		headers map[string][]string
		want    string
	}{
		{
			name:   "no proxies configured ignores headers",
			remote: "203.0.113.7:1234",
			headers: map[string][]string{
				"Cf-Connecting-Ip": {"1.1.1.1"},
				"X-Forwarded-For":  {"2.2.2.2"},
			},
			want: "203.0.113.7",
		},
		{
			name:    "untrusted peer ignores headers",
			trusted: proxies,
			remote:  "203.0.113.7:1234",
			headers: map[string][]string{"X-Forwarded-For": {"2.2.2.2"}},
			want:    "203.0.113.7",
		},
		{
			name:    "trusted peer with cloudflare header",
			trusted: proxies,
			remote:  "10.0.0.2:1234",
			headers: map[string][]string{
				"Cf-Connecting-Ip": {"1.1.1.1"},
				"X-Forwarded-For":  {"2.2.2.2"},
			},
			want: "1.1.1.1",
		},
		{
			name:    "rightmost untrusted hop wins",
			trusted: proxies,
			remote:  "10.0.0.2:1234",
			headers: map[string][]string{"X-Forwarded-For": {"9.9.9.9, 2.2.2.2, 10.0.0.5"}},
			want:    "2.2.2.2",
		},
		{
			name:    "repeated headers are one chain",
			trusted: proxies,
			remote:  "127.0.0.1:1234",
			headers: map[string][]string{"X-Forwarded-For": {"9.9.9.9", "3.3.3.3"}},
			want:    "3.3.3.3",
		},
		{
			name:    "garbage hop falls back to peer",
			trusted: proxies,
			remote:  "10.0.0.2:1234",
			headers: map[string][]string{"X-Forwarded-For": {"not-an-ip"}},
			want:    "10.0.0.2",
		},
		{
			name:    "all hops trusted falls back to peer",
			trusted: proxies,
			remote:  "10.0.0.2:1234",
			headers: map[string][]string{"X-Forwarded-For": {"10.1.1.1"}},
			want:    "10.0.0.2",
		},
	}
	for _, tt := range tests {
		var got string
		h := ClientIP(tt.trusted)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got = RealIP(r)
		}))
		req := httptest.NewRequest("GET", "/", nil)
		req.RemoteAddr = tt.remote
		for k, vs := range tt.headers {
			for _, v := range vs {
				req.Header.Add(k, v)
			}
		}
		h.ServeHTTP(httptest.NewRecorder(), req)
		if got != tt.want {
			t.Errorf("%s: RealIP = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestRealIPWithoutMiddleware(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "203.0.113.7:1234"
	req.Header.Set("X-Forwarded-For", "2.2.2.2")
	if got := RealIP(req); got != "203.0.113.7" {
		t.Errorf("RealIP = %q, want 203.0.113.7", got)
	}
}
