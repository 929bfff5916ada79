package postgres

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/BraraBy/eCom-P-sub000/internal/domain/promotion"
)

const promotionColumns = `id, title, description, code, kind, discount_percent, discount_amount,
		min_order_amount, starts_at, ends_at, active, max_total_uses, max_uses_per_user,
		created_by, created_at`

// availableWhere is the flag + time-window part of the availability
// predicate. $1 is the evaluation instant.
const availableWhere = `active
		AND (starts_at IS NULL OR starts_at <= $1)
		AND (ends_at IS NULL OR ends_at >= $1)`

const (
	listPromotionsSQL = `SELECT ` + promotionColumns + ` FROM promotions
		ORDER BY created_at DESC, id DESC`

	getPromotionSQL = `SELECT ` + promotionColumns + ` FROM promotions WHERE id = $1`

	listActiveSQL = `SELECT ` + promotionColumns + ` FROM promotions p WHERE ` + availableWhere + `
		AND (max_total_uses IS NULL OR
			(SELECT COUNT(*) FROM promotion_redemptions r WHERE r.promotion_id = p.id) < max_total_uses)
		ORDER BY ends_at ASC NULLS LAST, id ASC`

	countActiveSQL = `SELECT COUNT(*) FROM promotions p WHERE ` + availableWhere + `
		AND (max_total_uses IS NULL OR
			(SELECT COUNT(*) FROM promotion_redemptions r WHERE r.promotion_id = p.id) < max_total_uses)`

	getActiveByCodeSQL = `SELECT ` + promotionColumns + ` FROM promotions
		WHERE LOWER(code) = LOWER($2) AND ` + availableWhere

	createPromotionSQL = `INSERT INTO promotions
		(title, description, code, kind, discount_percent, discount_amount, min_order_amount,
		 starts_at, ends_at, active, max_total_uses, max_uses_per_user, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING ` + promotionColumns

	savePromotionSQL = `UPDATE promotions SET
		title = $2, description = $3, code = $4, kind = $5, discount_percent = $6,
		discount_amount = $7, min_order_amount = $8, starts_at = $9, ends_at = $10,
		active = $11, max_total_uses = $12, max_uses_per_user = $13
		WHERE id = $1
		RETURNING ` + promotionColumns

	deletePromotionSQL = `DELETE FROM promotions WHERE id = $1 RETURNING ` + promotionColumns
)

var _ promotion.Repository = (*PromotionRepository)(nil)

// PromotionRepository implements promotion.Repository backed by PostgreSQL.
type PromotionRepository struct {
	pool *pgxpool.Pool
}

// NewPromotionRepository returns a PromotionRepository that uses the given pool.
func NewPromotionRepository(pool *pgxpool.Pool) *PromotionRepository {
	return &PromotionRepository{pool: pool}
}

// List returns all promotions, newest first with ties broken by id descending.
func (r *PromotionRepository) List(ctx context.Context) ([]promotion.Promotion, error) {
	rows, err := r.pool.Query(ctx, listPromotionsSQL)
	if err != nil {
		return nil, errors.Wrap(err, "list promotions")
	}
	return pgx.CollectRows(rows, scanPromotion)
}

// Get returns a single promotion by id.
func (r *PromotionRepository) Get(ctx context.Context, id int64) (*promotion.Promotion, error) {
	rows, err := r.pool.Query(ctx, getPromotionSQL, id)
	if err != nil {
		return nil, errors.Wrapf(err, "get promotion %d", id)
	}
	return collectOnePromotion(rows, "get promotion")
}

// ListActive returns promotions available at now, soonest-ending first with
// open-ended windows sorting last.
func (r *PromotionRepository) ListActive(ctx context.Context, now time.Time) ([]promotion.Promotion, error) {
	rows, err := r.pool.Query(ctx, listActiveSQL, now)
	if err != nil {
		return nil, errors.Wrap(err, "list active promotions")
	}
	return pgx.CollectRows(rows, scanPromotion)
}

// CountActive counts promotions available at now.
func (r *PromotionRepository) CountActive(ctx context.Context, now time.Time) (int64, error) {
	var n int64
	if err := r.pool.QueryRow(ctx, countActiveSQL, now).Scan(&n); err != nil {
		return 0, errors.Wrap(err, "count active promotions")
	}
	return n, nil
}

// GetActiveByCode looks up a promotion by code, case-insensitively,
// restricted to the flag + time-window availability predicate.
func (r *PromotionRepository) GetActiveByCode(ctx context.Context, code string, now time.Time) (*promotion.Promotion, error) {
	rows, err := r.pool.Query(ctx, getActiveByCodeSQL, now, code)
	if err != nil {
		return nil, errors.Wrapf(err, "get promotion by code %q", code)
	}
	return collectOnePromotion(rows, "get promotion by code")
}

// Create persists a draft and returns the stored record. A code collision
// surfaces as promotion.ErrCodeExists.
func (r *PromotionRepository) Create(ctx context.Context, d promotion.Draft) (*promotion.Promotion, error) {
	rows, err := r.pool.Query(ctx, createPromotionSQL,
		d.Title, d.Description, d.Code, string(d.Kind),
		d.DiscountPercent, d.DiscountAmount, d.MinOrderAmount,
		d.StartsAt, d.EndsAt, d.Active, d.MaxTotalUses, d.MaxUsesPerUser, d.CreatedBy,
	)
	if err != nil {
		return nil, errors.Wrap(err, "create promotion")
	}
	p, err := pgx.CollectExactlyOneRow(rows, scanPromotion)
	if err != nil {
		if isPgError(err, pgUniqueViolation) {
			return nil, promotion.ErrCodeExists
		}
		return nil, errors.Wrap(err, "create promotion")
	}
	return &p, nil
}

// Save overwrites an existing promotion row with the merged record.
func (r *PromotionRepository) Save(ctx context.Context, p *promotion.Promotion) (*promotion.Promotion, error) {
	rows, err := r.pool.Query(ctx, savePromotionSQL,
		p.ID, p.Title, p.Description, p.Code, string(p.Kind),
		p.DiscountPercent, p.DiscountAmount, p.MinOrderAmount,
		p.StartsAt, p.EndsAt, p.Active, p.MaxTotalUses, p.MaxUsesPerUser,
	)
	if err != nil {
		return nil, errors.Wrapf(err, "save promotion %d", p.ID)
	}
	saved, err := pgx.CollectExactlyOneRow(rows, scanPromotion)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, promotion.ErrNotFound
		}
		if isPgError(err, pgUniqueViolation) {
			return nil, promotion.ErrCodeExists
		}
		return nil, errors.Wrapf(err, "save promotion %d", p.ID)
	}
	return &saved, nil
}

// Delete hard-deletes a promotion, returning the removed record. Scope rows
// cascade; redemption history blocks the delete via the RESTRICT constraint.
func (r *PromotionRepository) Delete(ctx context.Context, id int64) (*promotion.Promotion, error) {
	rows, err := r.pool.Query(ctx, deletePromotionSQL, id)
	if err != nil {
		if isPgError(err, pgForeignKeyViolation) {
			return nil, promotion.ErrHasRedemptions
		}
		return nil, errors.Wrapf(err, "delete promotion %d", id)
	}
	p, err := pgx.CollectExactlyOneRow(rows, scanPromotion)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, promotion.ErrNotFound
		}
		if isPgError(err, pgForeignKeyViolation) {
			return nil, promotion.ErrHasRedemptions
		}
		return nil, errors.Wrapf(err, "delete promotion %d", id)
	}
	return &p, nil
}

func collectOnePromotion(rows pgx.Rows, op string) (*promotion.Promotion, error) {
	p, err := pgx.CollectExactlyOneRow(rows, scanPromotion)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, promotion.ErrNotFound
		}
		return nil, errors.Wrap(err, op)
	}
	return &p, nil
}

func scanPromotion(row pgx.CollectableRow) (promotion.Promotion, error) {
	var (
		p    promotion.Promotion
		kind string
	)
	err := row.Scan(
		&p.ID, &p.Title, &p.Description, &p.Code, &kind,
		&p.DiscountPercent, &p.DiscountAmount, &p.MinOrderAmount,
		&p.StartsAt, &p.EndsAt, &p.Active, &p.MaxTotalUses, &p.MaxUsesPerUser,
		&p.CreatedBy, &p.CreatedAt,
	)
	p.Kind = promotion.Kind(kind)
	return p, err
}
