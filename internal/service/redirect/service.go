package redirect

import (
	"context"

	"github.com/ignite/redirectgate/internal/domain"
	"github.com/ignite/redirectgate/internal/hotcache"
	"github.com/ignite/redirectgate/internal/pkg/logger"
)

// Service implements redirect lookup business logic. It is safe for
// concurrent use.
type Service struct {
	repo  Repository
	cache *hotcache.Cache
}

// NewService creates a redirect service backed by the given repository
// and hot cache.
func NewService(repo Repository, cache *hotcache.Cache) *Service {
	return &Service{repo: repo, cache: cache}
}

// Resolve looks up a redirect by public ID, preferring the hot cache.
// On a cache miss it falls through to the repository; on a store error
// during that miss, a stale cached entry (if any) is returned instead
// of propagating the error — availability over freshness for
// redirects, since a stale destination is still a working redirect.
func (s *Service) Resolve(ctx context.Context, publicID string) (*domain.Redirect, error) {
	cached, found, fresh, negative := s.cache.Get(publicID)
	if found && fresh {
		if negative {
			return nil, ErrNotFound
		}
		if !cached.Enabled {
			return &cached, ErrDisabled
		}
		return &cached, nil
	}

	r, err := s.repo.GetByPublicID(ctx, publicID)
	if err != nil {
		if err == ErrNotFound {
			s.cache.PutNegative(publicID)
			return nil, ErrNotFound
		}
		if found {
			logger.Warn("redirect store lookup failed, serving stale cache", "public_id", publicID, "error", err.Error())
			if negative {
				return nil, ErrNotFound
			}
			return &cached, nil
		}
		return nil, err
	}

	s.cache.Put(*r)
	if !r.Enabled {
		return r, ErrDisabled
	}
	return r, nil
}

// Invalidate drops a cached redirect, called whenever the owning
// code path updates a redirect row.
func (s *Service) Invalidate(publicID string) {
	s.cache.Invalidate(publicID)
}

// RecordHit asynchronously-safe increments the redirect's counters.
// Errors are logged, not returned — counter accuracy never blocks a
// redirect response.
func (s *Service) RecordHit(ctx context.Context, redirectID string, classification domain.Classification) {
	if err := s.repo.IncrementHitCounters(ctx, redirectID, classification); err != nil {
		logger.Warn("increment hit counters failed", "redirect_id", redirectID, "error", err.Error())
	}
}
