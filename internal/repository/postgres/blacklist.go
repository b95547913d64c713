package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ignite/redirectgate/internal/blacklist"
	"github.com/ignite/redirectgate/internal/domain"
)

// BlacklistRepo mirrors the in-memory CIDR blacklist into the ip_ranges
// table so it survives a pod restart even when the local snapshot file
// lives on ephemeral storage.
type BlacklistRepo struct{ db *sql.DB }

// NewBlacklistRepo creates a Postgres-backed CIDR range mirror.
func NewBlacklistRepo(db *sql.DB) *BlacklistRepo { return &BlacklistRepo{db: db} }

func (r *BlacklistRepo) Upsert(ctx context.Context, e blacklist.Entry) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO ip_ranges (cidr, origin_ip, reason, usage_type, country, isp, ip_count, hit_count, last_hit, added_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (cidr) DO UPDATE SET
			hit_count = EXCLUDED.hit_count,
			last_hit = EXCLUDED.last_hit
	`, e.CIDR, e.OriginIP, e.Reason, e.UsageType, e.Country, e.ISP, e.IPCount, e.HitCount, e.LastHit, e.AddedBy)
	if err != nil {
		return fmt.Errorf("upsert cidr range: %w", err)
	}
	return nil
}

func (r *BlacklistRepo) LoadAll(ctx context.Context) ([]blacklist.Entry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT cidr, origin_ip, reason, usage_type, country, isp, ip_count, hit_count, last_hit, added_by
		FROM ip_ranges
	`)
	if err != nil {
		return nil, fmt.Errorf("load cidr ranges: %w", err)
	}
	defer rows.Close()

	var out []blacklist.Entry
	for rows.Next() {
		var e blacklist.Entry
		if err := rows.Scan(&e.CIDR, &e.OriginIP, &e.Reason, &e.UsageType, &e.Country, &e.ISP, &e.IPCount, &e.HitCount, &e.LastHit, &e.AddedBy); err != nil {
			return nil, fmt.Errorf("scan cidr range: %w", err)
		}
		out = append(out, e)
	}
	return out, nil
}

// IPCacheRepo mirrors the in-memory BOT-only IP cache into the
// relational ip_cache table.
type IPCacheRepo struct{ db *sql.DB }

// NewIPCacheRepo creates a Postgres-backed IP cache mirror.
func NewIPCacheRepo(db *sql.DB) *IPCacheRepo { return &IPCacheRepo{db: db} }

func (r *IPCacheRepo) Upsert(ctx context.Context, e domain.IPCacheEntry) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO ip_cache (ip, classification, reason, trust_level, country, region, city, isp, usage_type, cached_at, last_hit, hit_count)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (ip) DO UPDATE SET
			hit_count = EXCLUDED.hit_count,
			last_hit = EXCLUDED.last_hit
	`, e.IP, e.Classification, e.Reason, e.TrustLevel, e.Country, e.Region, e.City, e.ISP, e.UsageType, e.CachedAt, e.LastHit, e.HitCount)
	if err != nil {
		return fmt.Errorf("upsert ip cache entry: %w", err)
	}
	return nil
}

func (r *IPCacheRepo) LoadAll(ctx context.Context) ([]domain.IPCacheEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT ip, classification, reason, trust_level, country, region, city, isp, usage_type, cached_at, last_hit, hit_count
		FROM ip_cache
	`)
	if err != nil {
		return nil, fmt.Errorf("load ip cache: %w", err)
	}
	defer rows.Close()

	var out []domain.IPCacheEntry
	for rows.Next() {
		var e domain.IPCacheEntry
		if err := rows.Scan(&e.IP, &e.Classification, &e.Reason, &e.TrustLevel, &e.Country, &e.Region, &e.City, &e.ISP, &e.UsageType, &e.CachedAt, &e.LastHit, &e.HitCount); err != nil {
			return nil, fmt.Errorf("scan ip cache entry: %w", err)
		}
		out = append(out, e)
	}
	return out, nil
}
