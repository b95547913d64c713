package gateway

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ignite/redirectgate/internal/blacklist"
	"github.com/ignite/redirectgate/internal/classify"
	"github.com/ignite/redirectgate/internal/decision"
	"github.com/ignite/redirectgate/internal/domain"
	"github.com/ignite/redirectgate/internal/hotcache"
	"github.com/ignite/redirectgate/internal/ipintel"
	redirectsvc "github.com/ignite/redirectgate/internal/service/redirect"
	"github.com/ignite/redirectgate/internal/writebehind"
)

type fakeRedirectRepo struct {
	redirects map[string]*domain.Redirect
}

func (f *fakeRedirectRepo) GetByPublicID(ctx context.Context, publicID string) (*domain.Redirect, error) {
	r, ok := f.redirects[publicID]
	if !ok {
		return nil, redirectsvc.ErrNotFound
	}
	return r, nil
}

func (f *fakeRedirectRepo) IncrementHitCounters(ctx context.Context, redirectID string, classification domain.Classification) error {
	return nil
}

type fakeWBStore struct{}

func (fakeWBStore) InsertVisitorLogs(ctx context.Context, rows []domain.VisitorLog) error { return nil }
func (fakeWBStore) InsertRealtimeEvents(ctx context.Context, rows []domain.RealtimeEvent) error {
	return nil
}
func (fakeWBStore) InsertCapturedEmails(ctx context.Context, rows []domain.CapturedEmail) error {
	return nil
}
func (fakeWBStore) UpsertCIDRRange(ctx context.Context, e blacklist.Entry) error     { return nil }
func (fakeWBStore) UpsertIPCache(ctx context.Context, e domain.IPCacheEntry) error { return nil }

func newTestServer(t *testing.T, redirects map[string]*domain.Redirect, fallbackURL string) *httptest.Server {
	t.Helper()
	return newTestServerWithBlockList(t, redirects, fallbackURL, nil)
}

func newTestServerWithBlockList(t *testing.T, redirects map[string]*domain.Redirect, fallbackURL string, crawlerBlockList []string) *httptest.Server {
	t.Helper()

	repo := &fakeRedirectRepo{redirects: redirects}
	svc := redirectsvc.NewService(repo, hotcache.New(time.Minute))

	classifier := classify.New(classify.Signatures{
		GenericBot:   []string{"bot"},
		KnownBrowser: []string{"mozilla", "chrome"},
	})
	logger := writebehind.New(fakeWBStore{}, writebehind.Config{FlushInterval: time.Hour})

	engine := decision.New(blacklist.New(), nil, classifier, ipintel.NewCache(), ipintel.New("", "", time.Second, 1), logger, time.Second)

	handler := New(svc, engine, logger, fallbackURL, crawlerBlockList)
	health := NewHealthChecker(nil, nil)
	router := NewRouter(handler, health)

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv
}

func TestHandleRedirectHumanTraffic(t *testing.T) {
	srv := newTestServer(t, map[string]*domain.Redirect{
		"abc123": {ID: "id-1", PublicID: "abc123", HumanURL: "https://human.example", BotURL: "https://bot.example", Enabled: true},
	}, "")

	client := &http.Client{CheckRedirect: func(req *http.Request, via []*http.Request) error { return http.ErrUseLastResponse }}
	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/r/abc123", nil)
	req.Header.Set("User-Agent", "Mozilla/5.0 Chrome/115")
	req.Header.Set("X-Real-IP", "203.0.113.10")

	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusFound {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusFound)
	}
	if got := resp.Header.Get("Location"); got != "https://human.example" {
		t.Errorf("Location = %q", got)
	}
}

func TestHandleRedirectBotTraffic(t *testing.T) {
	srv := newTestServer(t, map[string]*domain.Redirect{
		"abc123": {ID: "id-1", PublicID: "abc123", HumanURL: "https://human.example", BotURL: "https://bot.example", Enabled: true},
	}, "")

	client := &http.Client{CheckRedirect: func(req *http.Request, via []*http.Request) error { return http.ErrUseLastResponse }}
	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/r/abc123", nil)
	req.Header.Set("User-Agent", "EvilBot/1.0")
	req.Header.Set("X-Real-IP", "203.0.113.11")

	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if got := resp.Header.Get("Location"); got != "https://bot.example" {
		t.Errorf("Location = %q, want bot destination", got)
	}
}

func TestHandleRedirectUnknownID(t *testing.T) {
	srv := newTestServer(t, map[string]*domain.Redirect{}, "")

	resp, err := http.Get(srv.URL + "/r/missing")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusNotFound)
	}
}

func TestHandleRedirectDisabled(t *testing.T) {
	srv := newTestServer(t, map[string]*domain.Redirect{
		"off123": {ID: "id-2", PublicID: "off123", Enabled: false},
	}, "")

	resp, err := http.Get(srv.URL + "/r/off123")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusGone {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusGone)
	}
}

func TestHandleRedirectPreservesEmailForHuman(t *testing.T) {
	srv := newTestServer(t, map[string]*domain.Redirect{
		"abc123": {ID: "id-1", PublicID: "abc123", HumanURL: "https://human.example", BotURL: "https://bot.example", Enabled: true},
	}, "")

	client := &http.Client{CheckRedirect: func(req *http.Request, via []*http.Request) error { return http.ErrUseLastResponse }}
	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/r/abc123$email=user@example.com", nil)
	req.Header.Set("User-Agent", "Mozilla/5.0 Chrome/115")
	req.Header.Set("X-Real-IP", "203.0.113.12")

	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if got := resp.Header.Get("Location"); got != "https://human.example/$email=user@example.com" {
		t.Errorf("Location = %q", got)
	}
}

func TestHandleRedirectBlockedCrawler(t *testing.T) {
	srv := newTestServerWithBlockList(t, map[string]*domain.Redirect{
		"abc123": {ID: "id-1", PublicID: "abc123", HumanURL: "https://human.example", BotURL: "https://bot.example", Enabled: true},
	}, "", []string{"sqlmap"})

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/r/abc123", nil)
	req.Header.Set("User-Agent", "sqlmap/1.7.2#stable")
	req.Header.Set("X-Real-IP", "203.0.113.13")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusForbidden)
	}
}

func TestHealthEndpoint(t *testing.T) {
	srv := newTestServer(t, map[string]*domain.Redirect{}, "")

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
}
