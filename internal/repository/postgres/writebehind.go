package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/ignite/redirectgate/internal/blacklist"
	"github.com/ignite/redirectgate/internal/domain"
)

// WriteBehindRepo implements writebehind.Store against PostgreSQL,
// using simple per-row inserts with ON CONFLICT DO NOTHING rather than
// pq.CopyIn — COPY does not compose with conflict handling, and these
// batches are small enough (at most a few hundred rows per flush) that
// row-by-row inserts inside one transaction are plenty fast.
//
// The conviction upserts delegate to BlacklistRepo and IPCacheRepo
// rather than duplicating their SQL: those two repos also serve the
// startup LoadAll path, so the insert/update statement for a given
// table lives in exactly one place.
type WriteBehindRepo struct {
	db        *sql.DB
	blacklist *BlacklistRepo
	ipCache   *IPCacheRepo
}

// NewWriteBehindRepo creates a Postgres-backed write-behind store.
func NewWriteBehindRepo(db *sql.DB) *WriteBehindRepo {
	return &WriteBehindRepo{db: db, blacklist: NewBlacklistRepo(db), ipCache: NewIPCacheRepo(db)}
}

// UpsertCIDRRange persists a newly convicted CIDR range.
func (r *WriteBehindRepo) UpsertCIDRRange(ctx context.Context, e blacklist.Entry) error {
	return r.blacklist.Upsert(ctx, e)
}

// UpsertIPCache persists a cached Stage-1/Stage-2 verdict.
func (r *WriteBehindRepo) UpsertIPCache(ctx context.Context, e domain.IPCacheEntry) error {
	return r.ipCache.Upsert(ctx, e)
}

func (r *WriteBehindRepo) InsertVisitorLogs(ctx context.Context, rows []domain.VisitorLog) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("insert visitor logs: begin: %w", err)
	}
	defer tx.Rollback()

	for _, row := range rows {
		if row.ID == "" {
			row.ID = uuid.New().String()
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO visitor_logs (id, redirect_id, ip, user_agent, classification, stage, reason, referer, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
			ON CONFLICT (id) DO NOTHING
		`, row.ID, row.RedirectID, row.IP, row.UserAgent, row.Classification, row.Stage, row.Reason, row.Referer)
		if err != nil {
			return fmt.Errorf("insert visitor log: %w", err)
		}
	}
	return tx.Commit()
}

func (r *WriteBehindRepo) InsertRealtimeEvents(ctx context.Context, rows []domain.RealtimeEvent) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("insert realtime events: begin: %w", err)
	}
	defer tx.Rollback()

	for _, row := range rows {
		if row.ID == "" {
			row.ID = uuid.New().String()
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO realtime_events (id, redirect_id, type, ip, created_at)
			VALUES ($1, $2, $3, $4, NOW())
			ON CONFLICT (id) DO NOTHING
		`, row.ID, row.RedirectID, row.Type, row.IP)
		if err != nil {
			return fmt.Errorf("insert realtime event: %w", err)
		}
	}
	return tx.Commit()
}

func (r *WriteBehindRepo) InsertCapturedEmails(ctx context.Context, rows []domain.CapturedEmail) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("insert captured emails: begin: %w", err)
	}
	defer tx.Rollback()

	for _, row := range rows {
		if row.ID == "" {
			row.ID = uuid.New().String()
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO captured_emails (id, redirect_id, email, was_base64, created_at)
			VALUES ($1, $2, $3, $4, NOW())
			ON CONFLICT (id) DO NOTHING
		`, row.ID, row.RedirectID, row.Email, row.WasBase64)
		if err != nil {
			return fmt.Errorf("insert captured email: %w", err)
		}
	}
	return tx.Commit()
}
