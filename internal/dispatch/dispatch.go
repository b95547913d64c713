// Package dispatch writes the final HTTP response for a redirect
// request: the 302 with its cloaking-safe headers, or the 404/410/
// fallback paths.
package dispatch

import (
	"net/http"

	"github.com/ignite/redirectgate/internal/pkg/httputil"
)

// Headers always set on a successful redirect response.
func setRedirectHeaders(w http.ResponseWriter) {
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Header().Set("X-Robots-Tag", "noindex, nofollow, noarchive, nosnippet")
}

// Redirect emits a 302 Found to destination with the headers required
// to keep the link from being cached or indexed.
func Redirect(w http.ResponseWriter, r *http.Request, destination string) {
	setRedirectHeaders(w)
	http.Redirect(w, r, destination, http.StatusFound)
}

// NotFound emits a 404 JSON error for an unknown redirect ID.
func NotFound(w http.ResponseWriter, r *http.Request) {
	httputil.NotFound(w, "Redirect not found")
}

// Disabled emits a 410 JSON error for a redirect that exists but is
// turned off.
func Disabled(w http.ResponseWriter, r *http.Request) {
	httputil.Gone(w, "Redirect disabled")
}

// Fallback redirects to a configured fallback URL on any unhandled
// internal error — the link is user-facing and must never look broken
// with a bare 5xx.
func Fallback(w http.ResponseWriter, r *http.Request, fallbackURL string) {
	setRedirectHeaders(w)
	http.Redirect(w, r, fallbackURL, http.StatusFound)
}

// Crawler emits a 403 for user agents on the dispatcher's own
// block-list (distinct from the Stage-1 signature classifier — this is
// a hard deny for known malicious scanners, not a cloaking decision).
func Crawler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("X-Robots-Tag", "noindex, nofollow, noarchive, nosnippet")
	http.Error(w, "forbidden", http.StatusForbidden)
}
