package redirect

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ignite/redirectgate/internal/domain"
	"github.com/ignite/redirectgate/internal/hotcache"
)

type fakeRepo struct {
	redirects map[string]*domain.Redirect
	err       error
	calls     int
}

func (f *fakeRepo) GetByPublicID(ctx context.Context, publicID string) (*domain.Redirect, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	r, ok := f.redirects[publicID]
	if !ok {
		return nil, ErrNotFound
	}
	return r, nil
}

func (f *fakeRepo) IncrementHitCounters(ctx context.Context, redirectID string, classification domain.Classification) error {
	return f.err
}

func TestResolveCacheMiss(t *testing.T) {
	repo := &fakeRepo{redirects: map[string]*domain.Redirect{
		"abc123": {PublicID: "abc123", HumanURL: "https://human.example", Enabled: true},
	}}
	svc := NewService(repo, hotcache.New(time.Minute))

	r, err := svc.Resolve(context.Background(), "abc123")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if r.HumanURL != "https://human.example" {
		t.Errorf("HumanURL = %q", r.HumanURL)
	}
	if repo.calls != 1 {
		t.Errorf("repo calls = %d, want 1", repo.calls)
	}
}

func TestResolveCacheHitAvoidsRepo(t *testing.T) {
	repo := &fakeRepo{redirects: map[string]*domain.Redirect{
		"abc123": {PublicID: "abc123", HumanURL: "https://human.example", Enabled: true},
	}}
	svc := NewService(repo, hotcache.New(time.Minute))

	if _, err := svc.Resolve(context.Background(), "abc123"); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Resolve(context.Background(), "abc123"); err != nil {
		t.Fatal(err)
	}
	if repo.calls != 1 {
		t.Errorf("repo calls = %d, want 1 (second Resolve should hit the cache)", repo.calls)
	}
}

func TestResolveNotFoundCachesNegative(t *testing.T) {
	repo := &fakeRepo{redirects: map[string]*domain.Redirect{}}
	svc := NewService(repo, hotcache.New(time.Minute))

	if _, err := svc.Resolve(context.Background(), "missing"); err != ErrNotFound {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if _, err := svc.Resolve(context.Background(), "missing"); err != ErrNotFound {
		t.Fatalf("err = %v, want ErrNotFound on cached negative", err)
	}
	if repo.calls != 1 {
		t.Errorf("repo calls = %d, want 1 (negative lookup should be cached)", repo.calls)
	}
}

func TestResolveDisabledRedirect(t *testing.T) {
	repo := &fakeRepo{redirects: map[string]*domain.Redirect{
		"off123": {PublicID: "off123", Enabled: false},
	}}
	svc := NewService(repo, hotcache.New(time.Minute))

	r, err := svc.Resolve(context.Background(), "off123")
	if err != ErrDisabled {
		t.Fatalf("err = %v, want ErrDisabled", err)
	}
	if r == nil {
		t.Fatal("expected a non-nil redirect alongside ErrDisabled")
	}
}

func TestResolveServesStaleCacheOnStoreError(t *testing.T) {
	repo := &fakeRepo{redirects: map[string]*domain.Redirect{
		"abc123": {PublicID: "abc123", HumanURL: "https://human.example", Enabled: true},
	}}
	svc := NewService(repo, hotcache.New(10*time.Millisecond))

	if _, err := svc.Resolve(context.Background(), "abc123"); err != nil {
		t.Fatal(err)
	}

	time.Sleep(25 * time.Millisecond)
	repo.err = errors.New("database unreachable")

	r, err := svc.Resolve(context.Background(), "abc123")
	if err != nil {
		t.Fatalf("expected stale cache to mask the store error, got %v", err)
	}
	if r.HumanURL != "https://human.example" {
		t.Errorf("HumanURL = %q, want stale cached value", r.HumanURL)
	}
}

func TestInvalidate(t *testing.T) {
	repo := &fakeRepo{redirects: map[string]*domain.Redirect{
		"abc123": {PublicID: "abc123", HumanURL: "https://human.example", Enabled: true},
	}}
	svc := NewService(repo, hotcache.New(time.Minute))

	if _, err := svc.Resolve(context.Background(), "abc123"); err != nil {
		t.Fatal(err)
	}
	svc.Invalidate("abc123")
	if _, err := svc.Resolve(context.Background(), "abc123"); err != nil {
		t.Fatal(err)
	}
	if repo.calls != 2 {
		t.Errorf("repo calls = %d, want 2 (Invalidate should force a fresh lookup)", repo.calls)
	}
}
