package redirect

import (
	"context"

	"github.com/ignite/redirectgate/internal/domain"
)

// Repository defines the data access contract for redirects.
type Repository interface {
	// GetByPublicID returns the redirect with the given public ID.
	// Returns ErrNotFound if no such redirect exists.
	GetByPublicID(ctx context.Context, publicID string) (*domain.Redirect, error)

	// IncrementHitCounters bumps total/human/bot counters for a
	// redirect. Failures here are logged but never propagated to the
	// caller — counter drift is acceptable, blocking a redirect is not.
	IncrementHitCounters(ctx context.Context, redirectID string, classification domain.Classification) error
}
