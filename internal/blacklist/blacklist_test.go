package blacklist

import (
	"net"
	"testing"
)

func TestAddAndContains(t *testing.T) {
	tests := []struct {
		name      string
		usageType string
		ip        string
		probeIP   string
		wantHit   bool
	}{
		{"exact ip match for consumer isp", "ISP", "203.0.113.10", "203.0.113.10", true},
		{"sibling ip missed for /32 block", "ISP", "203.0.113.10", "203.0.113.11", false},
		{"datacenter widens to /24", "DCH", "198.51.100.23", "198.51.100.200", true},
		{"datacenter block stops outside range", "DCH", "198.51.100.23", "198.51.101.1", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bl := New()
			bl.Add(net.ParseIP(tt.ip), "test", tt.usageType, "US", "Example ISP", "auto")

			_, hit := bl.Contains(net.ParseIP(tt.probeIP))
			if hit != tt.wantHit {
				t.Errorf("Contains(%q) = %v, want %v", tt.probeIP, hit, tt.wantHit)
			}
		})
	}
}

func TestPrefixWidthFor(t *testing.T) {
	tests := []struct {
		usageType string
		want      int
	}{
		{"DCH", 24},
		{"SES", 24},
		{"RSV", 24},
		{"CDN", 24},
		{"ISP", 32},
		{"MOB", 32},
		{"", 32},
	}
	for _, tt := range tests {
		if got := prefixWidthFor(tt.usageType); got != tt.want {
			t.Errorf("prefixWidthFor(%q) = %d, want %d", tt.usageType, got, tt.want)
		}
	}
}

func TestAddIsIdempotent(t *testing.T) {
	bl := New()
	ip := net.ParseIP("203.0.113.10")
	bl.Add(ip, "first", "ISP", "US", "Example", "auto")
	bl.Add(ip, "second", "ISP", "US", "Example", "auto")

	if got := bl.Size(); got != 1 {
		t.Errorf("Size() = %d, want 1 after duplicate Add", got)
	}
}

func TestContainsBumpsHitCounters(t *testing.T) {
	bl := New()
	ip := net.ParseIP("203.0.113.10")
	bl.Add(ip, "test", "ISP", "US", "Example", "auto")

	bl.Contains(ip)
	entry, hit := bl.Contains(ip)
	if !hit {
		t.Fatal("expected hit")
	}
	if entry.HitCount != 2 {
		t.Errorf("HitCount = %d, want 2", entry.HitCount)
	}
	if bl.StatsSnapshot().TotalHits != 2 {
		t.Errorf("TotalHits = %d, want 2", bl.StatsSnapshot().TotalHits)
	}
}

func TestRemove(t *testing.T) {
	bl := New()
	ip := net.ParseIP("203.0.113.10")
	bl.Add(ip, "test", "ISP", "US", "Example", "auto")

	if !bl.Remove("203.0.113.10/32") {
		t.Fatal("Remove returned false for an existing entry")
	}
	if _, hit := bl.Contains(ip); hit {
		t.Error("expected no hit after Remove")
	}
	if bl.Remove("203.0.113.10/32") {
		t.Error("Remove returned true for an already-removed entry")
	}
}

func TestImportRoundTrips(t *testing.T) {
	bl := New()
	ip := net.ParseIP("203.0.113.10")
	bl.Add(ip, "test", "ISP", "US", "Example", "auto")
	entries := bl.List()

	fresh := New()
	fresh.Import(entries)

	if _, hit := fresh.Contains(ip); !hit {
		t.Error("expected hit after Import")
	}
	if fresh.Size() != bl.Size() {
		t.Errorf("Size() = %d, want %d", fresh.Size(), bl.Size())
	}
}

func TestClear(t *testing.T) {
	bl := New()
	bl.Add(net.ParseIP("203.0.113.10"), "test", "ISP", "US", "Example", "auto")
	bl.Clear()

	if bl.Size() != 0 {
		t.Errorf("Size() = %d after Clear, want 0", bl.Size())
	}
	if _, hit := bl.Contains(net.ParseIP("203.0.113.10")); hit {
		t.Error("expected no hit after Clear")
	}
}

func TestContainsIgnoresIPv6(t *testing.T) {
	bl := New()
	bl.Add(net.ParseIP("203.0.113.10"), "test", "ISP", "US", "Example", "auto")

	if _, hit := bl.Contains(net.ParseIP("2001:db8::1")); hit {
		t.Error("IPv6 probe should never hit an IPv4-only blacklist")
	}
}
