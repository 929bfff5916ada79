package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/BraraBy/eCom-P-sub000/internal/domain/product"
)

const (
	listProductsSQL = `SELECT id, name, price, category_id, image_url
		FROM products ORDER BY id`

	getProductByIDSQL = `SELECT id, name, price, category_id, image_url
		FROM products WHERE id = $1`

	productCategoriesSQL = `SELECT id, category_id FROM products WHERE id = ANY($1)`
)

var _ product.Repository = (*ProductRepository)(nil)

// ProductRepository implements product.Repository backed by PostgreSQL.
type ProductRepository struct {
	pool *pgxpool.Pool
}

// NewProductRepository returns a ProductRepository that uses the given pool.
func NewProductRepository(pool *pgxpool.Pool) *ProductRepository {
	return &ProductRepository{pool: pool}
}

// List returns all products from the catalog ordered by id.
func (r *ProductRepository) List(ctx context.Context) ([]product.Product, error) {
	rows, err := r.pool.Query(ctx, listProductsSQL)
	if err != nil {
		return nil, errors.Wrap(err, "list products")
	}
	return pgx.CollectRows(rows, scanProduct)
}

// GetByID returns a single product by its identifier.
func (r *ProductRepository) GetByID(ctx context.Context, id int64) (*product.Product, error) {
	rows, err := r.pool.Query(ctx, getProductByIDSQL, id)
	if err != nil {
		return nil, errors.Wrapf(err, "get product %d", id)
	}

	p, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, product.ErrNotFound
		}
		return nil, errors.Wrapf(err, "get product %d", id)
	}
	return &p, nil
}

// CategoriesByProductIDs resolves product ids to category ids in one query.
func (r *ProductRepository) CategoriesByProductIDs(ctx context.Context, ids []int64) (map[int64]int64, error) {
	rows, err := r.pool.Query(ctx, productCategoriesSQL, ids)
	if err != nil {
		return nil, errors.Wrap(err, "resolve product categories")
	}
	defer rows.Close()

	out := make(map[int64]int64, len(ids))
	for rows.Next() {
		var id, categoryID int64
		if err := rows.Scan(&id, &categoryID); err != nil {
			return nil, errors.Wrap(err, "scan product category")
		}
		out[id] = categoryID
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "resolve product categories")
	}
	return out, nil
}

func scanProduct(row pgx.CollectableRow) (product.Product, error) {
	var p product.Product
	err := row.Scan(&p.ID, &p.Name, &p.Price, &p.CategoryID, &p.ImageURL)
	return p, err
}
