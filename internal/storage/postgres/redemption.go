package postgres

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/BraraBy/eCom-P-sub000/internal/domain/promotion"
)

const (
	countByPromotionSQL = `SELECT COUNT(*) FROM promotion_redemptions WHERE promotion_id = $1`

	countByCustomerSQL = `SELECT COUNT(*) FROM promotion_redemptions
		WHERE promotion_id = $1 AND customer_id = $2`

	// Row lock on the promotion serializes concurrent redeems of the same
	// promotion for the duration of the check-then-insert sequence.
	lockPromotionSQL = `SELECT active, starts_at, ends_at, max_total_uses, max_uses_per_user
		FROM promotions WHERE id = $1 FOR UPDATE`

	insertRedemptionSQL = `INSERT INTO promotion_redemptions (promotion_id, customer_id, order_id, redeemed_at)
		VALUES ($1, $2, $3, $4)`
)

var _ promotion.RedemptionRepository = (*RedemptionRepository)(nil)

// RedemptionRepository implements promotion.RedemptionRepository backed by
// PostgreSQL.
type RedemptionRepository struct {
	pool *pgxpool.Pool
}

// NewRedemptionRepository returns a RedemptionRepository that uses the given pool.
func NewRedemptionRepository(pool *pgxpool.Pool) *RedemptionRepository {
	return &RedemptionRepository{pool: pool}
}

// CountByPromotion returns the total redemptions recorded for a promotion.
func (r *RedemptionRepository) CountByPromotion(ctx context.Context, promotionID int64) (int64, error) {
	var n int64
	if err := r.pool.QueryRow(ctx, countByPromotionSQL, promotionID).Scan(&n); err != nil {
		return 0, errors.Wrapf(err, "count redemptions for promotion %d", promotionID)
	}
	return n, nil
}

// CountByCustomer returns the redemptions recorded for a (promotion, customer) pair.
func (r *RedemptionRepository) CountByCustomer(ctx context.Context, promotionID, customerID int64) (int64, error) {
	var n int64
	if err := r.pool.QueryRow(ctx, countByCustomerSQL, promotionID, customerID).Scan(&n); err != nil {
		return 0, errors.Wrapf(err, "count redemptions for promotion %d customer %d", promotionID, customerID)
	}
	return n, nil
}

// Redeem runs the whole check-then-insert sequence in one transaction:
//
//  1. Lock the promotion row (FOR UPDATE). Two concurrent redeems of a
//     promotion at its last remaining slot cannot both pass the quota check.
//  2. Re-check the availability predicate and both quotas under the lock.
//  3. Insert the redemption record. The unique (promotion_id, order_id)
//     constraint backstops duplicate orders even so.
//
// Any failure rolls the transaction back and leaves no partial effect.
func (r *RedemptionRepository) Redeem(ctx context.Context, promotionID int64, customerID *int64, orderID int64, now time.Time) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return errors.Wrap(err, "begin redeem")
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	var (
		active           bool
		startsAt, endsAt *time.Time
		maxTotal, maxPer *int32
	)
	err = tx.QueryRow(ctx, lockPromotionSQL, promotionID).
		Scan(&active, &startsAt, &endsAt, &maxTotal, &maxPer)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return promotion.ErrNotFound
		}
		return errors.Wrapf(err, "lock promotion %d", promotionID)
	}

	p := promotion.Promotion{Active: active, StartsAt: startsAt, EndsAt: endsAt}
	if !p.AvailableAt(now) {
		return promotion.ErrNotAvailable
	}

	if maxTotal != nil {
		var used int64
		if err := tx.QueryRow(ctx, countByPromotionSQL, promotionID).Scan(&used); err != nil {
			return errors.Wrap(err, "count redemptions")
		}
		if used >= int64(*maxTotal) {
			return promotion.ErrTotalQuotaExceeded
		}
	}

	if customerID != nil && maxPer != nil {
		var used int64
		if err := tx.QueryRow(ctx, countByCustomerSQL, promotionID, *customerID).Scan(&used); err != nil {
			return errors.Wrap(err, "count customer redemptions")
		}
		if used >= int64(*maxPer) {
			return promotion.ErrUserQuotaExceeded
		}
	}

	if _, err := tx.Exec(ctx, insertRedemptionSQL, promotionID, customerID, orderID, now); err != nil {
		if isPgError(err, pgUniqueViolation) {
			return promotion.ErrOrderRedeemed
		}
		return errors.Wrap(err, "insert redemption")
	}

	if err := tx.Commit(ctx); err != nil {
		return errors.Wrap(err, "commit redeem")
	}
	return nil
}
