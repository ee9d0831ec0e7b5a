// Package security holds the response header policy and a request
// inspector that counts probes from scanners.
package security

import (
	"log/slog"
	"net"
	"net/http"
	"net/netip"
	"net/url"
	"strings"
	"sync/atomic"
)

var privateRanges = []netip.Prefix{
	netip.MustParsePrefix("127.0.0.0/8"),
	netip.MustParsePrefix("10.0.0.0/8"),
	netip.MustParsePrefix("172.16.0.0/12"),
	netip.MustParsePrefix("192.168.0.0/16"),
	netip.MustParsePrefix("::1/128"),
}

// probeMarkers appear in paths or queries of automated attack traffic.
var probeMarkers = []string{
	"../", "..\\", ".env", ".git", ".ssh", "wp-admin", "phpmyadmin",
	"admin.php", "config.php", "etc/passwd", "cmd.exe",
	"<script", "javascript:", "eval(", "union select",
}

// Scripts and health probes use curl, so only scanners are flagged.
var scannerAgents = []string{
	"sqlmap", "nmap", "nikto", "gobuster", "dirb", "masscan", "zgrab",
}

const maxURLLength = 2048

type check struct {
	reason string
	match  func(r *http.Request) bool
}

var checks = []check{
	{"probe_path", func(r *http.Request) bool {
		return containsAny(strings.ToLower(r.URL.Path), probeMarkers) ||
			containsAny(strings.ToLower(decodedQuery(r.URL)), probeMarkers)
	}},
	{"scanner_agent", func(r *http.Request) bool {
		return containsAny(strings.ToLower(r.UserAgent()), scannerAgents)
	}},
	{"method", func(r *http.Request) bool {
		switch r.Method {
		case "TRACE", "TRACK", "DEBUG", "CONNECT":
			return true
		}
		return false
	}},
	{"long_url", func(r *http.Request) bool { return len(r.URL.String()) > maxURLLength }},
	{"forward_chain", func(r *http.Request) bool {
		return strings.Count(r.Header.Get("X-Forwarded-For"), ",") > 5
	}},
}

// decodedQuery unescapes the raw query, falling back to it as sent when
// the escaping is malformed. Path is already decoded by net/http.
func decodedQuery(u *url.URL) string {
	q, err := url.QueryUnescape(u.RawQuery)
	if err != nil {
		return u.RawQuery
	}
	return q
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}

type DetectionMetrics struct {
	SuspiciousRequests int64
	InvalidIPAttempts  int64
}

// Detector flags suspicious requests and resolves the client address,
// honouring forwarding headers only from private-range proxies.
type Detector struct {
	trusted    []netip.Prefix
	suspicious atomic.Int64
	invalidIP  atomic.Int64
}

// NewDetector trusts the private ranges plus any extra proxies.
func NewDetector(extra ...netip.Prefix) *Detector {
	trusted := append([]netip.Prefix{}, privateRanges...)
	return &Detector{trusted: append(trusted, extra...)}
}

// Inspect returns the first reason r looks hostile, or "" and false.
// Every hit is counted.
func (d *Detector) Inspect(r *http.Request) (string, bool) {
	for _, c := range checks {
		if c.match(r) {
			d.suspicious.Add(1)
			return c.reason, true
		}
	}
	return "", false
}

// ExtractClientIP returns the peer address, or the first valid
// X-Forwarded-For / X-Real-IP address when the peer is a trusted proxy.
func (d *Detector) ExtractClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	peer, err := netip.ParseAddr(host)
	if err != nil {
		d.invalidIP.Add(1)
		return host
	}
	if !d.trustedPeer(peer.Unmap()) {
		return host
	}

	first, _, _ := strings.Cut(r.Header.Get("X-Forwarded-For"), ",")
	for _, candidate := range []string{first, r.Header.Get("X-Real-IP")} {
		candidate = strings.TrimSpace(candidate)
		if _, err := netip.ParseAddr(candidate); err == nil {
			return candidate
		}
	}
	return host
}

func (d *Detector) trustedPeer(ip netip.Addr) bool {
	for _, p := range d.trusted {
		if p.Contains(ip) {
			return true
		}
	}
	return false
}

// Middleware logs suspicious requests. Path traversal is rejected with
// 400; everything else is only counted.
func (d *Detector) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if reason, hit := d.Inspect(r); hit {
			slog.WarnContext(r.Context(), "Suspicious request detected",
				"reason", reason,
				"client_ip", d.ExtractClientIP(r),
				"method", r.Method,
				"path", r.URL.Path,
				"user_agent", r.UserAgent())
			if strings.Contains(r.URL.Path, "..") {
				http.Error(w, "Bad request", http.StatusBadRequest)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func (d *Detector) GetMetrics() DetectionMetrics {
	return DetectionMetrics{
		SuspiciousRequests: d.suspicious.Load(),
		InvalidIPAttempts:  d.invalidIP.Load(),
	}
}
