package security

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Directive is one Content-Security-Policy entry.
type Directive struct {
	Name    string
	Sources []string
}

// Policy describes the response headers every page gets.
type Policy struct {
	CSP []Directive
	// Static headers set as-is. Empty values are skipped.
	Static map[string]string
	// HSTS is the Strict-Transport-Security max-age, sent only over TLS.
	// Zero disables it.
	HSTS time.Duration
}

// DefaultPolicy locks pages to same-origin content. htmx is loaded from
// unpkg, which sends no CORP header, so no embedder policy is set.
func DefaultPolicy() Policy {
	self := []string{"'self'"}
	return Policy{
		CSP: []Directive{
			{"default-src", self},
			{"script-src", []string{"'self'", "https://unpkg.com"}},
			{"style-src", []string{"'self'", "'unsafe-inline'"}},
			{"img-src", []string{"'self'", "data:"}},
			{"connect-src", self}, // /api/events
			{"font-src", self},
			{"object-src", []string{"'none'"}},
			{"frame-ancestors", []string{"'none'"}},
			{"base-uri", self},
			{"form-action", self},
		},
		Static: map[string]string{
			"X-Content-Type-Options":       "nosniff",
			"X-Frame-Options":              "DENY",
			"Referrer-Policy":              "strict-origin-when-cross-origin",
			"Permissions-Policy":           "geolocation=(), microphone=(), camera=(), payment=()",
			"Cross-Origin-Opener-Policy":   "same-origin",
			"Cross-Origin-Resource-Policy": "same-origin",
		},
		HSTS: 365 * 24 * time.Hour,
	}
}

func (p Policy) csp() string {
	parts := make([]string, 0, len(p.CSP))
	for _, d := range p.CSP {
		parts = append(parts, d.Name+" "+strings.Join(d.Sources, " "))
	}
	return strings.Join(parts, "; ")
}

// Headers applies p to every response.
func Headers(p Policy) func(http.Handler) http.Handler {
	csp := p.csp()
	hsts := ""
	if p.HSTS > 0 {
		hsts = "max-age=" + strconv.Itoa(int(p.HSTS/time.Second)) + "; includeSubDomains; preload"
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			for name, value := range p.Static {
				if value != "" {
					h.Set(name, value)
				}
			}
			if csp != "" {
				h.Set("Content-Security-Policy", csp)
			}
			if hsts != "" && r.TLS != nil {
				h.Set("Strict-Transport-Security", hsts)
			}
			next.ServeHTTP(w, r)
		})
	}
}

// CacheStatic marks embedded assets cacheable for maxAge.
func CacheStatic(maxAge time.Duration) func(http.Handler) http.Handler {
	value := "public, max-age=" + strconv.Itoa(int(maxAge/time.Second)) + ", immutable"
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if maxAge > 0 {
				w.Header().Set("Cache-Control", value)
			}
			next.ServeHTTP(w, r)
		})
	}
}
