package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/BraraBy/eCom-P-sub000/internal/domain/promotion"
)

const (
	getScopeProductsSQL = `SELECT product_id FROM promotion_products
		WHERE promotion_id = $1 ORDER BY product_id`

	getScopeCategoriesSQL = `SELECT category_id FROM promotion_categories
		WHERE promotion_id = $1 ORDER BY category_id`

	deleteScopeProductsSQL   = `DELETE FROM promotion_products WHERE promotion_id = $1`
	deleteScopeCategoriesSQL = `DELETE FROM promotion_categories WHERE promotion_id = $1`

	insertScopeProductsSQL = `INSERT INTO promotion_products (promotion_id, product_id)
		SELECT $1, unnest($2::bigint[]) ON CONFLICT DO NOTHING`

	insertScopeCategoriesSQL = `INSERT INTO promotion_categories (promotion_id, category_id)
		SELECT $1, unnest($2::bigint[]) ON CONFLICT DO NOTHING`
)

var _ promotion.ScopeRepository = (*ScopeRepository)(nil)

// ScopeRepository implements promotion.ScopeRepository backed by PostgreSQL.
type ScopeRepository struct {
	pool *pgxpool.Pool
}

// NewScopeRepository returns a ScopeRepository that uses the given pool.
func NewScopeRepository(pool *pgxpool.Pool) *ScopeRepository {
	return &ScopeRepository{pool: pool}
}

// Get returns both scope sets for the promotion, each ordered ascending.
func (r *ScopeRepository) Get(ctx context.Context, promotionID int64) (*promotion.Scope, error) {
	products, err := collectIDs(ctx, r.pool, getScopeProductsSQL, promotionID)
	if err != nil {
		return nil, errors.Wrap(err, "get product scope")
	}
	categories, err := collectIDs(ctx, r.pool, getScopeCategoriesSQL, promotionID)
	if err != nil {
		return nil, errors.Wrap(err, "get category scope")
	}
	return &promotion.Scope{ProductIDs: products, CategoryIDs: categories}, nil
}

// Replace swaps both scope relations in one transaction: delete everything,
// then bulk-insert the new sets via unnest. Any failure rolls the whole swap
// back, so a partially replaced scope is never observable.
func (r *ScopeRepository) Replace(ctx context.Context, promotionID int64, s promotion.Scope) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return errors.Wrap(err, "begin scope replace")
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	if _, err := tx.Exec(ctx, deleteScopeProductsSQL, promotionID); err != nil {
		return errors.Wrap(err, "clear product scope")
	}
	if _, err := tx.Exec(ctx, deleteScopeCategoriesSQL, promotionID); err != nil {
		return errors.Wrap(err, "clear category scope")
	}
	if len(s.ProductIDs) > 0 {
		if _, err := tx.Exec(ctx, insertScopeProductsSQL, promotionID, s.ProductIDs); err != nil {
			return errors.Wrap(err, "insert product scope")
		}
	}
	if len(s.CategoryIDs) > 0 {
		if _, err := tx.Exec(ctx, insertScopeCategoriesSQL, promotionID, s.CategoryIDs); err != nil {
			return errors.Wrap(err, "insert category scope")
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return errors.Wrap(err, "commit scope replace")
	}
	return nil
}

func collectIDs(ctx context.Context, pool *pgxpool.Pool, sql string, promotionID int64) ([]int64, error) {
	rows, err := pool.Query(ctx, sql, promotionID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[int64])
}
