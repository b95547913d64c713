// Package blacklist implements the CIDR range blacklist: an in-memory,
// persisted set of IPv4 ranges convicted by the decision engine. Lookup
// is the hottest path in the gateway — every request issues one
// membership check before any other work — so the structure favors
// read speed over write convenience.
package blacklist

import (
	"encoding/binary"
	"net"
	"sort"
	"sync"
	"time"
)

// Entry is one CIDR range and its associated metadata.
type Entry struct {
	CIDR      string    `json:"cidr"`
	OriginIP  string    `json:"origin_ip,omitempty"`
	Reason    string    `json:"reason"`
	UsageType string    `json:"usage_type,omitempty"`
	Country   string    `json:"country,omitempty"`
	ISP       string    `json:"isp,omitempty"`
	IPCount   int64     `json:"ip_count"`
	HitCount  int64     `json:"hit_count"`
	LastHit   time.Time `json:"last_hit"`
	AddedBy   string    `json:"added_by"`
}

type rangeEntry struct {
	start uint32
	end   uint32
	entry *Entry
}

// Blacklist is a sorted-range membership table keyed by first octet, so
// a lookup only considers the ranges that share the address's first
// octet rather than the full table.
type Blacklist struct {
	mu      sync.RWMutex
	buckets [256][]*rangeEntry
	byCIDR  map[string]*Entry
	stats   Stats
}

// Stats are aggregate counters persisted alongside the range table.
type Stats struct {
	TotalRanges int64 `json:"total_ranges"`
	TotalHits   int64 `json:"total_hits"`
}

// New creates an empty blacklist.
func New() *Blacklist {
	return &Blacklist{byCIDR: make(map[string]*Entry)}
}

// prefixWidthFor implements the auto-widening rule: datacenter-class
// usage types get blocked a whole /24 at a time, everything else is
// blocked per-IP.
func prefixWidthFor(usageType string) int {
	switch usageType {
	case "DCH", "SES", "RSV", "CDN":
		return 24
	default:
		return 32
	}
}

// Add computes the prefix width from usageType and inserts the
// containing range if it is not already present. It is a no-op if an
// equal-or-wider range already covers ip. The returned Entry and bool
// report whether a new range was actually inserted, so callers can
// tell a fresh conviction from a redundant one before persisting it.
func (b *Blacklist) Add(ip net.IP, reason, usageType, country, isp, addedBy string) (*Entry, bool) {
	v4 := ip.To4()
	if v4 == nil {
		return nil, false
	}
	width := prefixWidthFor(usageType)
	ipInt := binary.BigEndian.Uint32(v4)
	mask := uint32(0xFFFFFFFF) << (32 - width)
	network := ipInt & mask

	ipnet := &net.IPNet{IP: make(net.IP, 4), Mask: net.CIDRMask(width, 32)}
	binary.BigEndian.PutUint32(ipnet.IP, network)
	cidr := ipnet.String()

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.byCIDR[cidr]; exists {
		return nil, false
	}
	for _, covering := range b.buckets[v4[0]] {
		if covering.start <= network && covering.end >= network|^mask {
			return nil, false
		}
	}

	e := &Entry{
		CIDR:      cidr,
		OriginIP:  ip.String(),
		Reason:    reason,
		UsageType: usageType,
		Country:   country,
		ISP:       isp,
		IPCount:   int64(1) << (32 - width),
		AddedBy:   addedBy,
		LastHit:   time.Now(),
	}
	b.byCIDR[cidr] = e

	start := network
	end := network | ^mask
	re := &rangeEntry{start: start, end: end, entry: e}

	firstOctet := v4[0]
	b.buckets[firstOctet] = insertSorted(b.buckets[firstOctet], re)
	b.stats.TotalRanges++
	return e, true
}

func insertSorted(bucket []*rangeEntry, re *rangeEntry) []*rangeEntry {
	i := sort.Search(len(bucket), func(i int) bool { return bucket[i].start >= re.start })
	bucket = append(bucket, nil)
	copy(bucket[i+1:], bucket[i:])
	bucket[i] = re
	return bucket
}

// Contains returns the first matching entry for ip, if any, and bumps
// its hit counter and last-hit timestamp.
func (b *Blacklist) Contains(ip net.IP) (*Entry, bool) {
	v4 := ip.To4()
	if v4 == nil {
		return nil, false
	}
	ipInt := binary.BigEndian.Uint32(v4)
	firstOctet := v4[0]

	b.mu.RLock()
	bucket := b.buckets[firstOctet]
	// Binary search for the last range whose start <= ipInt, then
	// scan backward through every earlier range in the bucket. Ranges
	// can nest (a /24 added after a /32 inside it), so an earlier range
	// that ends before ipInt does not end the scan: a wider range
	// further back may still contain ipInt.
	i := sort.Search(len(bucket), func(i int) bool { return bucket[i].start > ipInt }) - 1
	var found *rangeEntry
	for j := i; j >= 0; j-- {
		if ipInt >= bucket[j].start && ipInt <= bucket[j].end {
			found = bucket[j]
			break
		}
	}
	b.mu.RUnlock()

	if found == nil {
		return nil, false
	}

	b.mu.Lock()
	found.entry.HitCount++
	found.entry.LastHit = time.Now()
	b.stats.TotalHits++
	b.mu.Unlock()

	return found.entry, true
}

// Remove deletes a CIDR entry by its canonical string.
func (b *Blacklist) Remove(cidr string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	e, ok := b.byCIDR[cidr]
	if !ok {
		return false
	}
	delete(b.byCIDR, cidr)

	_, ipnet, err := net.ParseCIDR(cidr)
	if err != nil {
		return true
	}
	firstOctet := ipnet.IP.To4()[0]
	bucket := b.buckets[firstOctet]
	for i, re := range bucket {
		if re.entry == e {
			b.buckets[firstOctet] = append(bucket[:i], bucket[i+1:]...)
			break
		}
	}
	b.stats.TotalRanges--
	return true
}

// Clear removes every entry.
func (b *Blacklist) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := range b.buckets {
		b.buckets[i] = nil
	}
	b.byCIDR = make(map[string]*Entry)
	b.stats = Stats{}
}

// List returns a snapshot of every entry, for persistence or operator
// inspection.
func (b *Blacklist) List() []Entry {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]Entry, 0, len(b.byCIDR))
	for _, e := range b.byCIDR {
		out = append(out, *e)
	}
	return out
}

// Import loads entries in bulk, e.g. from a snapshot file or the
// relational mirror on startup. It does not trigger persistence.
func (b *Blacklist) Import(entries []Entry) {
	for _, e := range entries {
		_, ipnet, err := net.ParseCIDR(e.CIDR)
		if err != nil {
			continue
		}
		width, _ := ipnet.Mask.Size()
		ipInt := binary.BigEndian.Uint32(ipnet.IP.To4())
		mask := uint32(0xFFFFFFFF) << (32 - width)

		entryCopy := e
		re := &rangeEntry{start: ipInt, end: ipInt | ^mask, entry: &entryCopy}

		b.mu.Lock()
		b.byCIDR[e.CIDR] = &entryCopy
		firstOctet := ipnet.IP.To4()[0]
		b.buckets[firstOctet] = insertSorted(b.buckets[firstOctet], re)
		b.stats.TotalRanges++
		b.mu.Unlock()
	}
}

// StatsSnapshot returns a snapshot of the aggregate counters.
func (b *Blacklist) StatsSnapshot() Stats {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.stats
}

// Size returns the number of distinct ranges currently held.
func (b *Blacklist) Size() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.byCIDR)
}
