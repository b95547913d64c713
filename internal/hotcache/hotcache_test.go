package hotcache

import (
	"testing"
	"time"

	"github.com/ignite/redirectgate/internal/domain"
)

func TestGetMissing(t *testing.T) {
	c := New(time.Minute)
	if _, found, _, _ := c.Get("missing"); found {
		t.Error("expected Get to report not found for an empty cache")
	}
}

func TestPutAndGet(t *testing.T) {
	c := New(time.Minute)
	c.Put(domain.Redirect{PublicID: "abc123", HumanURL: "https://human.example"})

	r, found, fresh, negative := c.Get("abc123")
	if !found || !fresh || negative {
		t.Fatalf("Get = (found=%v, fresh=%v, negative=%v), want (true, true, false)", found, fresh, negative)
	}
	if r.HumanURL != "https://human.example" {
		t.Errorf("HumanURL = %q", r.HumanURL)
	}
}

func TestPutNegative(t *testing.T) {
	c := New(time.Minute)
	c.PutNegative("missing-id")

	_, found, fresh, negative := c.Get("missing-id")
	if !found || !fresh || !negative {
		t.Fatalf("Get = (found=%v, fresh=%v, negative=%v), want (true, true, true)", found, fresh, negative)
	}
}

func TestEntryExpiresAfterTTL(t *testing.T) {
	c := New(10 * time.Millisecond)
	c.Put(domain.Redirect{PublicID: "abc123"})

	time.Sleep(25 * time.Millisecond)
	_, found, fresh, _ := c.Get("abc123")
	if !found {
		t.Fatal("expected the entry to still be present (expiry is lazy, not a deletion)")
	}
	if fresh {
		t.Error("expected fresh=false once the TTL has elapsed")
	}
}

func TestInvalidate(t *testing.T) {
	c := New(time.Minute)
	c.Put(domain.Redirect{PublicID: "abc123"})
	c.Invalidate("abc123")

	if _, found, _, _ := c.Get("abc123"); found {
		t.Error("expected Get to report not found after Invalidate")
	}
}

func TestSweepRemovesExpiredEntriesOnly(t *testing.T) {
	c := New(10 * time.Millisecond)
	c.Put(domain.Redirect{PublicID: "stale"})
	time.Sleep(25 * time.Millisecond)
	c.Put(domain.Redirect{PublicID: "fresh"})

	c.Sweep()

	if _, found, _, _ := c.Get("stale"); found {
		t.Error("expected Sweep to remove the expired entry")
	}
	if _, found, _, _ := c.Get("fresh"); !found {
		t.Error("expected Sweep to keep the unexpired entry")
	}
}

func TestStartSweeperStopsOnSignal(t *testing.T) {
	c := New(10 * time.Millisecond)
	c.Put(domain.Redirect{PublicID: "stale"})

	stop := make(chan struct{})
	c.StartSweeper(10*time.Millisecond, stop)
	time.Sleep(50 * time.Millisecond)
	close(stop)

	if _, found, _, _ := c.Get("stale"); found {
		t.Error("expected the sweeper goroutine to have removed the expired entry")
	}
}
