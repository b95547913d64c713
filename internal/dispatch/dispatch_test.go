package dispatch

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRedirect(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/r/abc123", nil)
	w := httptest.NewRecorder()

	Redirect(w, r, "https://human.example")

	if w.Code != http.StatusFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusFound)
	}
	if got := w.Header().Get("Location"); got != "https://human.example" {
		t.Errorf("Location = %q", got)
	}
	if got := w.Header().Get("Cache-Control"); got != "no-cache, no-store, must-revalidate" {
		t.Errorf("Cache-Control = %q", got)
	}
	if got := w.Header().Get("X-Robots-Tag"); got == "" {
		t.Error("expected X-Robots-Tag to be set on a redirect response")
	}
}

func TestNotFound(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/r/missing", nil)
	w := httptest.NewRecorder()

	NotFound(w, r)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestDisabled(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/r/off123", nil)
	w := httptest.NewRecorder()

	Disabled(w, r)

	if w.Code != http.StatusGone {
		t.Errorf("status = %d, want %d", w.Code, http.StatusGone)
	}
}

func TestFallback(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/r/abc123", nil)
	w := httptest.NewRecorder()

	Fallback(w, r, "https://fallback.example")

	if w.Code != http.StatusFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusFound)
	}
	if got := w.Header().Get("Location"); got != "https://fallback.example" {
		t.Errorf("Location = %q", got)
	}
}

func TestCrawler(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/r/abc123", nil)
	w := httptest.NewRecorder()

	Crawler(w, r)

	if w.Code != http.StatusForbidden {
		t.Errorf("status = %d, want %d", w.Code, http.StatusForbidden)
	}
	if got := w.Header().Get("X-Robots-Tag"); got == "" {
		t.Error("expected X-Robots-Tag to be set on the crawler block response")
	}
}
