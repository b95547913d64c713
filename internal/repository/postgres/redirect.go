package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ignite/redirectgate/internal/domain"
	"github.com/ignite/redirectgate/internal/service/redirect"
)

// RedirectRepo implements redirect.Repository against PostgreSQL.
type RedirectRepo struct{ db *sql.DB }

// NewRedirectRepo creates a Postgres-backed redirect repository.
func NewRedirectRepo(db *sql.DB) *RedirectRepo { return &RedirectRepo{db: db} }

func (r *RedirectRepo) GetByPublicID(ctx context.Context, publicID string) (*domain.Redirect, error) {
	var d domain.Redirect
	err := r.db.QueryRowContext(ctx, `
		SELECT id, public_id, human_url, bot_url, enabled, owner_id,
		       total_hits, human_hits, bot_hits, created_at, updated_at
		FROM redirects
		WHERE public_id = $1
	`, publicID).Scan(
		&d.ID, &d.PublicID, &d.HumanURL, &d.BotURL, &d.Enabled, &d.OwnerID,
		&d.TotalHits, &d.HumanHits, &d.BotHits, &d.CreatedAt, &d.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, redirect.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get redirect by public id: %w", err)
	}
	return &d, nil
}

func (r *RedirectRepo) IncrementHitCounters(ctx context.Context, redirectID string, classification domain.Classification) error {
	var column string
	switch classification {
	case domain.ClassificationHuman:
		column = "human_hits"
	case domain.ClassificationBot:
		column = "bot_hits"
	default:
		return fmt.Errorf("increment hit counters: unknown classification %q", classification)
	}

	query := fmt.Sprintf(`
		UPDATE redirects
		SET total_hits = total_hits + 1, %s = %s + 1, updated_at = NOW()
		WHERE id = $1
	`, column, column)

	if _, err := r.db.ExecContext(ctx, query, redirectID); err != nil {
		return fmt.Errorf("increment hit counters: %w", err)
	}
	return nil
}
