package ipintel

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ignite/redirectgate/internal/domain"
)

func TestCacheGetMiss(t *testing.T) {
	c := NewCache()
	_, hit := c.Get("203.0.113.10")
	assert.False(t, hit, "expected a miss on an empty cache")
}

func TestCachePutAndGet(t *testing.T) {
	c := NewCache()
	c.Put(domain.IPCacheEntry{IP: "203.0.113.10", Classification: "bot", Reason: "is_vpn"})

	e, hit := c.Get("203.0.113.10")
	assert.True(t, hit, "expected a hit after Put")
	assert.Equal(t, "is_vpn", e.Reason)
	assert.Equal(t, int64(2), e.HitCount, "1 from Put, bumped once by Get")
}

func TestCacheRemove(t *testing.T) {
	c := NewCache()
	c.Put(domain.IPCacheEntry{IP: "203.0.113.10"})
	c.Remove("203.0.113.10")

	_, hit := c.Get("203.0.113.10")
	assert.False(t, hit, "expected a miss after Remove")
}

func TestCacheImport(t *testing.T) {
	c := NewCache()
	c.Import([]domain.IPCacheEntry{
		{IP: "203.0.113.10", Reason: "is_vpn"},
		{IP: "203.0.113.11", Reason: "is_scanner"},
	})

	assert.Equal(t, 2, c.Size())
	e, hit := c.Get("203.0.113.11")
	assert.True(t, hit)
	assert.Equal(t, "is_scanner", e.Reason)
}
